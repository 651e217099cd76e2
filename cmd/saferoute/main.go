package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/fatih/color"
	"github.com/lintang-b-s/saferoute/pkg/datastructure"
	"github.com/lintang-b-s/saferoute/pkg/engine"
	"github.com/lintang-b-s/saferoute/pkg/session"
)

// GraphFlags selects the graph and the safety data, shared by every command.
type GraphFlags struct {
	SnapshotDB   string `name:"snapshot-db" env:"SAFEROUTE_SNAPSHOT_DB" help:"bbolt file with preprocessed graph snapshots"`
	SnapshotName string `name:"snapshot" default:"walk" env:"SAFEROUTE_SNAPSHOT" help:"name of the snapshot to load"`
	SnapshotFile string `name:"snapshot-file" env:"SAFEROUTE_SNAPSHOT_FILE" help:"zstd graph snapshot file"`
	NodeLink     string `name:"nodelink" env:"SAFEROUTE_NODELINK" help:"osmnx node-link json graph"`
	MapFile      string `name:"f" env:"SAFEROUTE_MAP_FILE" help:"openstreetmap pbf file"`

	SafetyDB string `name:"safety-db" env:"SAFEROUTE_SAFETY_DB" help:"badger directory with per street safety data"`
	Fallback string `default:"neutral" enum:"random,neutral,none" env:"SAFEROUTE_SAFETY_FALLBACK" help:"safety for streets without data"`
	Seed     uint64 `default:"42" env:"SAFEROUTE_SEED" help:"seed of the random safety fallback"`

	Weights   string  `default:"1,2,1,3,2" env:"SAFEROUTE_WEIGHTS" help:"factor weights: illumination,cameras,containers,theft,pedestrians"`
	Scale     float64 `default:"100" env:"SAFEROUTE_SCALE" help:"meter per unit of weighted risk"`
	Unknown   string  `default:"exclude" enum:"exclude,require" env:"SAFEROUTE_UNKNOWN" help:"treatment of unknown factors"`
	SnapMode  string  `default:"edge" enum:"edge,node" env:"SAFEROUTE_SNAP_MODE" help:"insert query points on edges or snap to the nearest node"`
	Algorithm string  `default:"dijkstra" enum:"dijkstra,astar" env:"SAFEROUTE_ALGORITHM" help:"path solver"`
}

func (f GraphFlags) open(ctx context.Context) (*session.RoutingSession, func() error, error) {
	opts := engine.DefaultSessionOptions()
	opts.Weights = f.Weights
	opts.Scale = f.Scale
	opts.Unknown = f.Unknown
	opts.SnapMode = f.SnapMode
	opts.Algorithm = f.Algorithm
	// one query per process, nothing else reads the graph afterwards
	opts.Isolation = session.IsolationShared.String()
	opts.Timeout = 0
	return engine.NewSession(ctx,
		engine.GraphSource{
			SnapshotDB:   f.SnapshotDB,
			SnapshotName: f.SnapshotName,
			SnapshotFile: f.SnapshotFile,
			NodeLink:     f.NodeLink,
			PBF:          f.MapFile,
		},
		engine.ProviderOptions{SafetyDB: f.SafetyDB, Fallback: f.Fallback, Seed: f.Seed},
		opts)
}

// parsePoint reads "lat,lon" or "node:<id>".
func parsePoint(s string) (session.QueryPoint, error) {
	if id, ok := strings.CutPrefix(s, "node:"); ok {
		n, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			return session.QueryPoint{}, fmt.Errorf("bad node id %q: %w", id, err)
		}
		return session.AtNode(datastructure.NodeID(n)), nil
	}
	lat, lon, err := parseLatLon(s)
	if err != nil {
		return session.QueryPoint{}, err
	}
	return session.AtCoordinate(lat, lon), nil
}

func parseLatLon(s string) (float64, float64, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("expected lat,lon, got %q", s)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("bad latitude in %q: %w", s, err)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("bad longitude in %q: %w", s, err)
	}
	return lat, lon, nil
}

func output(path string) (io.Writer, func() error, error) {
	if path == "" || path == "-" {
		return os.Stdout, func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}

type RouteCmd struct {
	GraphFlags `embed:""`

	Origin      string  `arg:"" help:"origin as lat,lon or node:<id>"`
	Destination string  `arg:"" help:"destination as lat,lon or node:<id>"`
	Format      string  `short:"o" default:"geojson" enum:"geojson,polyline,json" help:"output format (geojson, polyline, json)"`
	Simplify    float64 `default:"0" help:"simplify the path with this threshold in meter before encoding"`
	Out         string  `default:"-" help:"output file, - for stdout"`
}

func (c *RouteCmd) Run() error {
	origin, err := parsePoint(c.Origin)
	if err != nil {
		return err
	}
	destination, err := parsePoint(c.Destination)
	if err != nil {
		return err
	}

	ctx := context.Background()
	sess, closeFn, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	start := time.Now()
	res, err := sess.Route(ctx, origin, destination)
	if err != nil {
		return err
	}
	if c.Simplify > 0 {
		res.Geometry = res.Simplify(c.Simplify)
		res.Polyline = datastructure.CreatePolyline(res.Geometry)
	}
	fmt.Fprintln(os.Stderr, color.GreenString("route %s -> %s: %d streets, %.1f m, cost %.1f (%s)", origin, destination,
		len(res.Segments), res.Route.Distance, res.Route.Cost, time.Since(start).Round(time.Microsecond)))

	w, closeOut, err := output(c.Out)
	if err != nil {
		return err
	}
	defer closeOut()

	switch c.Format {
	case "polyline":
		_, err = fmt.Fprintln(w, res.Polyline)
		return err
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	default:
		bb, err := session.ToGeoJSON(res).MarshalJSON()
		if err != nil {
			return err
		}
		_, err = w.Write(append(bb, '\n'))
		return err
	}
}

type NearestCmd struct {
	GraphFlags `embed:""`

	Point string `arg:"" help:"query point as lat,lon"`
}

func (c *NearestCmd) Run() error {
	lat, lon, err := parseLatLon(c.Point)
	if err != nil {
		return err
	}
	sess, closeFn, err := c.open(context.Background())
	if err != nil {
		return err
	}
	defer closeFn()

	p := datastructure.NewCoordinate(lat, lon)
	edge, err := sess.NearestEdge(p)
	if err != nil {
		return err
	}
	node, err := sess.NearestNode(p)
	if err != nil {
		return err
	}
	fmt.Printf("nearest edge %d (%d-%d) at %.2f m\n", edge.EdgeID, edge.U, edge.V, edge.Distance)
	fmt.Printf("nearest node %d at %.2f m\n", node.NodeID, node.Distance)
	return nil
}

type StatsCmd struct {
	GraphFlags `embed:""`
}

func (c *StatsCmd) Run() error {
	sess, closeFn, err := c.open(context.Background())
	if err != nil {
		return err
	}
	defer closeFn()
	st := sess.Stats()
	fmt.Printf("nodes %d\nedges %d\nedges with safety %d\nindexed edges %d\n", st.Nodes, st.Edges, st.WithSafety, st.IndexSize)
	return nil
}

type CLI struct {
	Route   RouteCmd   `cmd:"" help:"Compute the safest walking route between two points"`
	Nearest NearestCmd `cmd:"" help:"Show the street and node closest to a point"`
	Stats   StatsCmd   `cmd:"" help:"Show graph statistics"`
}

func main() {
	cli := &CLI{}
	kctx := kong.Parse(cli,
		kong.Name("saferoute"),
		kong.Description("Safety weighted pedestrian routing from the command line"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact:             true,
			NoExpandSubcommands: true,
		}),
	)
	if err := kctx.Run(); err != nil {
		color.Red("error: %v", err)
		os.Exit(1)
	}
}
