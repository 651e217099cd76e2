package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime/pprof"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/fatih/color"
	"github.com/go-chi/httplog/v2"
	"github.com/lintang-b-s/saferoute/pkg/engine"
	"github.com/lintang-b-s/saferoute/pkg/server/rest"
	"github.com/lintang-b-s/saferoute/pkg/server/rest/service"
	"github.com/prometheus/client_golang/prometheus"
)

type CLI struct {
	ListenAddr string `name:"listenaddr" default:":5000" env:"SAFEROUTE_LISTEN_ADDR" help:"server listen address"`

	SnapshotDB   string `name:"snapshot-db" env:"SAFEROUTE_SNAPSHOT_DB" help:"bbolt file with preprocessed graph snapshots"`
	SnapshotName string `name:"snapshot" default:"walk" env:"SAFEROUTE_SNAPSHOT" help:"name of the snapshot to load"`
	SnapshotFile string `name:"snapshot-file" env:"SAFEROUTE_SNAPSHOT_FILE" help:"zstd graph snapshot file"`
	NodeLink     string `name:"nodelink" env:"SAFEROUTE_NODELINK" help:"osmnx node-link json graph"`
	MapFile      string `name:"f" env:"SAFEROUTE_MAP_FILE" help:"openstreetmap pbf file, parsed on startup"`

	SafetyDB    string `name:"safety-db" env:"SAFEROUTE_SAFETY_DB" help:"badger directory with per street safety data"`
	Fallback    string `default:"neutral" enum:"random,neutral,none" env:"SAFEROUTE_SAFETY_FALLBACK" help:"safety for streets the store has no data for (random, neutral, none)"`
	Seed        uint64 `default:"42" env:"SAFEROUTE_SEED" help:"seed of the random safety fallback"`
	WithUnknown bool   `env:"SAFEROUTE_WITH_UNKNOWN" help:"let the random fallback produce unknown factors"`

	Weights       string        `default:"1,2,1,3,2" env:"SAFEROUTE_WEIGHTS" help:"factor weights: illumination,cameras,containers,theft,pedestrians"`
	Scale         float64       `default:"100" env:"SAFEROUTE_SCALE" help:"meter per unit of weighted risk"`
	Unknown       string        `default:"exclude" enum:"exclude,require" env:"SAFEROUTE_UNKNOWN" help:"treatment of unknown factors"`
	SplitPolicy   string        `default:"unknown" enum:"unknown,inherit" env:"SAFEROUTE_SPLIT_POLICY" help:"safety of the two edges created by a split"`
	SnapTolerance float64       `default:"1" env:"SAFEROUTE_SNAP_TOLERANCE" help:"meter within which a point reuses an existing node"`
	SnapMode      string        `default:"edge" enum:"edge,node" env:"SAFEROUTE_SNAP_MODE" help:"insert query points on edges or snap them to the nearest node"`
	Isolation     string        `default:"clone" enum:"clone,shared" env:"SAFEROUTE_ISOLATION" help:"route on a copy (clone) or keep inserted points (shared)"`
	Algorithm     string        `default:"dijkstra" enum:"dijkstra,astar" env:"SAFEROUTE_ALGORITHM" help:"path solver"`
	Timeout       time.Duration `default:"5s" env:"SAFEROUTE_QUERY_TIMEOUT" help:"per query timeout, 0 disables it"`

	JSONLog    bool   `name:"json-log" env:"SAFEROUTE_JSON_LOG" help:"structured json request logs"`
	Debug      bool   `env:"SAFEROUTE_DEBUG" help:"debug level request logs"`
	CPUProfile string `name:"cpuprofile" help:"write cpu profile to file"`
	MemProfile string `name:"memprofile" help:"write memory profile to this file"`
}

func (c *CLI) Run() error {
	if c.CPUProfile != "" {
		f, err := os.Create(c.CPUProfile)
		if err != nil {
			return err
		}
		defer f.Close()
		pprof.StartCPUProfile(f)
		defer pprof.StopCPUProfile()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sess, closeProvider, err := engine.NewSession(ctx,
		engine.GraphSource{
			SnapshotDB:   c.SnapshotDB,
			SnapshotName: c.SnapshotName,
			SnapshotFile: c.SnapshotFile,
			NodeLink:     c.NodeLink,
			PBF:          c.MapFile,
			Progress:     true,
		},
		engine.ProviderOptions{
			SafetyDB:    c.SafetyDB,
			Fallback:    c.Fallback,
			Seed:        c.Seed,
			WithUnknown: c.WithUnknown,
		},
		engine.SessionOptions{
			Weights:       c.Weights,
			Scale:         c.Scale,
			Unknown:       c.Unknown,
			SplitPolicy:   c.SplitPolicy,
			SnapTolerance: c.SnapTolerance,
			SnapMode:      c.SnapMode,
			Isolation:     c.Isolation,
			Algorithm:     c.Algorithm,
			Timeout:       c.Timeout,
		})
	if err != nil {
		return err
	}
	defer closeProvider()

	recordMemProfile(c.MemProfile, "session_init")

	var logger *httplog.Logger
	if c.JSONLog {
		logger = rest.NewLogger(c.Debug)
	}
	reg := prometheus.NewRegistry()
	r := rest.NewRouter(service.NewRoutingService(sess), reg, logger)

	srv := &http.Server{
		Addr:              c.ListenAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe()
	}()

	st := sess.Stats()
	color.Green("\nsafest route engine ready: %d nodes, %d edges", st.Nodes, st.Edges)
	fmt.Printf("server started at %s\n", c.ListenAddr)

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Printf("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func recordMemProfile(memprofile string, name string) {
	if memprofile == "" {
		return
	}
	memprofile = strings.Replace(memprofile, ".mprof", fmt.Sprintf("%s.mprof", name), -1)
	f, err := os.Create(memprofile)
	if err != nil {
		log.Fatal(err)
	}
	pprof.WriteHeapProfile(f)
	f.Close()
}

func main() {
	cli := &CLI{}
	kong.Parse(cli,
		kong.Name("saferoute-engine"),
		kong.Description("Safety weighted pedestrian routing server"),
		kong.UsageOnError(),
	)
	if err := cli.Run(); err != nil {
		color.Red("error: %v", err)
		os.Exit(1)
	}
}
