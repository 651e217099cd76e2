package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lintang-b-s/saferoute/pkg/cost"
	"github.com/lintang-b-s/saferoute/pkg/datastructure"
	"github.com/lintang-b-s/saferoute/pkg/engine/routingalgorithm"
	"github.com/lintang-b-s/saferoute/pkg/kv"
	"github.com/lintang-b-s/saferoute/pkg/session"
	"github.com/lintang-b-s/saferoute/pkg/snap"
	"github.com/lintang-b-s/saferoute/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

/*
	1 ------ 2 ------ 3

1-2 carries measured safety, 2-3 has none.
*/
const nodeLink = `{
  "directed": true,
  "multigraph": true,
  "nodes": [
    {"id": 1, "x": 0.000, "y": 0},
    {"id": 2, "x": 0.001, "y": 0},
    {"id": 3, "x": 0.002, "y": 0}
  ],
  "links": [
    {"source": 1, "target": 2, "key": 0, "length": 111, "safety": [5, 5, 1, 1, 5]},
    {"source": 2, "target": 3, "key": 0, "length": 111}
  ]
}`

func writeNodeLink(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "graph.json")
	require.NoError(t, os.WriteFile(path, []byte(nodeLink), 0644))
	return path
}

func TestLoadGraphSources(t *testing.T) {
	ctx := context.Background()
	_, err := LoadGraph(ctx, GraphSource{})
	assert.ErrorIs(t, err, ErrNoGraphSource)

	g, err := LoadGraph(ctx, GraphSource{NodeLink: writeNodeLink(t)})
	require.NoError(t, err)
	assert.Equal(t, 3, g.NumNodes())
	assert.Equal(t, 2, g.NumEdges())

	dir := t.TempDir()
	file := filepath.Join(dir, "walk"+storage.SNAPSHOT_FILE_EXT)
	require.NoError(t, storage.WriteSnapshotFile(file, g))
	fromFile, err := LoadGraph(ctx, GraphSource{SnapshotFile: file})
	require.NoError(t, err)
	assert.Equal(t, g.Edges(), fromFile.Edges())

	dbPath := filepath.Join(dir, storage.DB_FILE_NAME)
	store, err := storage.OpenSnapshotStore(dbPath)
	require.NoError(t, err)
	_, err = store.Save("walk", g)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	// the snapshot store wins over the other sources
	fromStore, err := LoadGraph(ctx, GraphSource{SnapshotDB: dbPath, SnapshotName: "walk", PBF: "missing.pbf"})
	require.NoError(t, err)
	assert.Equal(t, g.Edges(), fromStore.Edges())

	_, err = LoadGraph(ctx, GraphSource{SnapshotDB: dbPath, SnapshotName: "nope"})
	assert.ErrorIs(t, err, storage.ErrSnapshotNotFound)

	_, err = LoadGraph(ctx, GraphSource{PBF: filepath.Join(dir, "missing.pbf")})
	assert.Error(t, err)
}

func TestOpenProvider(t *testing.T) {
	e := &datastructure.Edge{U: 1, V: 2, Geometry: []datastructure.Coordinate{{Lat: 0, Lon: 0}, {Lat: 0, Lon: 0.001}}}

	p, closeFn, err := OpenProvider(ProviderOptions{Fallback: "neutral"})
	require.NoError(t, err)
	v, ok, err := p.Safety(context.Background(), e)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, datastructure.NewSafetyVector(3, 3, 3, 3, 3), v)
	require.NoError(t, closeFn())

	p, _, err = OpenProvider(ProviderOptions{Fallback: "none"})
	require.NoError(t, err)
	assert.Nil(t, p)

	_, _, err = OpenProvider(ProviderOptions{Fallback: "magic"})
	assert.Error(t, err)

	// the store answers first, the random fallback covers the rest
	dir := t.TempDir()
	store, err := kv.OpenSafetyStore(dir)
	require.NoError(t, err)
	measured := datastructure.NewSafetyVector(1, 2, 3, 4, 5)
	require.NoError(t, store.PutEdgeSafety(context.Background(), e, measured, "test"))
	require.NoError(t, store.Close())

	p, closeFn, err = OpenProvider(ProviderOptions{SafetyDB: dir, Fallback: "random", Seed: 7})
	require.NoError(t, err)
	defer closeFn()
	v, ok, err = p.Safety(context.Background(), e)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, measured, v)

	other := &datastructure.Edge{U: 2, V: 3, Geometry: []datastructure.Coordinate{{Lat: 0, Lon: 0.001}, {Lat: 0, Lon: 0.002}}}
	v, ok, err = p.Safety(context.Background(), other)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, v.InRange())
	assert.False(t, v.IsUnknown())
}

func TestSessionOptions(t *testing.T) {
	cfg, err := DefaultSessionOptions().Config()
	require.NoError(t, err)
	assert.Equal(t, session.DefaultConfig(), cfg)

	o := DefaultSessionOptions()
	o.Weights = "1,1,1,1,1"
	o.Unknown = "require"
	o.SplitPolicy = "inherit"
	o.SnapMode = "node"
	o.Isolation = "shared"
	o.Algorithm = "astar"
	o.Timeout = time.Second
	cfg, err = o.Config()
	require.NoError(t, err)
	assert.Equal(t, cost.RequireMeasured, cfg.Model.Unknown)
	assert.Equal(t, snap.SplitInherit, cfg.SplitPolicy)
	assert.Equal(t, session.SnapNode, cfg.SnapMode)
	assert.Equal(t, session.IsolationShared, cfg.Isolation)
	assert.Equal(t, routingalgorithm.AStar, cfg.Algorithm)
	assert.Equal(t, time.Second, cfg.QueryTimeout)

	bad := DefaultSessionOptions()
	bad.Weights = "1,2"
	_, err = bad.Config()
	assert.ErrorIs(t, err, cost.ErrInvalidModel)

	bad = DefaultSessionOptions()
	bad.SnapTolerance = -1
	_, err = bad.Config()
	assert.ErrorIs(t, err, session.ErrInvalidConfig)
}

func TestNewSessionAndSeed(t *testing.T) {
	ctx := context.Background()
	src := GraphSource{NodeLink: writeNodeLink(t)}

	sess, closeFn, err := NewSession(ctx, src, ProviderOptions{Fallback: "random", Seed: 3}, DefaultSessionOptions())
	require.NoError(t, err)
	defer closeFn()

	st := sess.Stats()
	assert.Equal(t, 2, st.WithSafety)

	res, err := sess.Route(ctx, session.AtNode(1), session.AtNode(3))
	require.NoError(t, err)
	assert.Equal(t, []datastructure.NodeID{1, 2, 3}, res.Route.Nodes)
	// the measured vector is kept, only the empty edge got random data
	assert.Equal(t, datastructure.NewSafetyVector(5, 5, 1, 1, 5).Map(), res.Segments[0].Safety)

	store, err := kv.OpenSafetyStore("")
	require.NoError(t, err)
	defer store.Close()
	n, err := SeedSafetyStore(ctx, sess.Snapshot(), store, "random")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
