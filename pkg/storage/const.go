package storage

const (
	DB_FILE_NAME      = "saferoute.db"
	SNAPSHOT_BUCKET   = "graph_snapshots"
	SNAPSHOT_META     = "graph_snapshot_meta"
	SNAPSHOT_FILE_EXT = ".graph.zst"
)
