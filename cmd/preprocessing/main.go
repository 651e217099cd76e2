package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime/pprof"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/fatih/color"
	"github.com/lintang-b-s/saferoute/pkg/engine"
	"github.com/lintang-b-s/saferoute/pkg/kv"
	"github.com/lintang-b-s/saferoute/pkg/safety"
	"github.com/lintang-b-s/saferoute/pkg/storage"
)

type CLI struct {
	MapFile  string `name:"f" env:"SAFEROUTE_MAP_FILE" help:"openstreetmap pbf file to build the walk network from"`
	NodeLink string `name:"nodelink" env:"SAFEROUTE_NODELINK" help:"osmnx node-link json graph, used when no pbf is given"`

	SnapshotDB   string `name:"snapshot-db" default:"./saferoute.db" env:"SAFEROUTE_SNAPSHOT_DB" help:"bbolt file the snapshot is saved in"`
	SnapshotName string `name:"snapshot" default:"walk" env:"SAFEROUTE_SNAPSHOT" help:"name of the saved snapshot"`
	SnapshotFile string `name:"snapshot-file" env:"SAFEROUTE_SNAPSHOT_FILE" help:"also write the snapshot as a zstd stream to this file"`
	List         bool   `help:"list the snapshots of snapshot-db and exit"`
	RetainAll    bool   `name:"retain-all" env:"SAFEROUTE_RETAIN_ALL" help:"keep every connected component, not only the largest"`

	SafetyDB    string `name:"safety-db" env:"SAFEROUTE_SAFETY_DB" help:"badger directory to seed with the safety of every street"`
	Fallback    string `default:"random" enum:"random,neutral,none" env:"SAFEROUTE_SAFETY_FALLBACK" help:"safety for streets without measured data (random, neutral, none)"`
	Seed        uint64 `default:"42" env:"SAFEROUTE_SEED" help:"seed of the random safety"`
	WithUnknown bool   `env:"SAFEROUTE_WITH_UNKNOWN" help:"let the random safety produce unknown factors"`
	Workers     int    `default:"0" env:"SAFEROUTE_WORKERS" help:"safety assignment workers, 0 uses every cpu"`

	CPUProfile string `name:"cpuprofile" help:"write cpu profile to file"`
	MemProfile string `name:"memprofile" help:"write memory profile to this file"`
}

func (c *CLI) Run() error {
	if c.CPUProfile != "" {
		// ./bin/saferoute-preprocessing --cpuprofile=cpu.prof --memprofile=mem.mprof
		f, err := os.Create(c.CPUProfile)
		if err != nil {
			return err
		}
		defer f.Close()
		pprof.StartCPUProfile(f)
		defer pprof.StopCPUProfile()
	}

	if c.List {
		return c.listSnapshots()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	start := time.Now()

	g, err := engine.LoadGraph(ctx, engine.GraphSource{
		NodeLink:         c.NodeLink,
		PBF:              c.MapFile,
		Progress:         true,
		LargestComponent: !c.RetainAll,
	})
	if err != nil {
		return err
	}
	recordMemProfile(c.MemProfile, "parsing_osm_data")

	provider, closeProvider, err := engine.OpenProvider(engine.ProviderOptions{
		Fallback:    c.Fallback,
		Seed:        c.Seed,
		WithUnknown: c.WithUnknown,
	})
	if err != nil {
		return err
	}
	defer closeProvider()
	if provider != nil {
		stats, err := safety.Assign(ctx, g, provider, false, c.Workers)
		if err != nil {
			return err
		}
		log.Printf("%s safety assigned to %d of %d edges", c.Fallback, stats.Assigned, stats.Requested)
	}

	var (
		wg      sync.WaitGroup
		seedErr error
	)
	if c.SafetyDB != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			store, err := kv.OpenSafetyStore(c.SafetyDB)
			if err != nil {
				seedErr = err
				return
			}
			defer store.Close()
			n, err := engine.SeedSafetyStore(ctx, g, store, c.Fallback)
			if err != nil {
				seedErr = err
				return
			}
			log.Printf("seeded safety store %s with %d streets", c.SafetyDB, n)
		}()
	}

	store, err := storage.OpenSnapshotStore(c.SnapshotDB)
	if err != nil {
		return err
	}
	defer store.Close()
	info, err := store.Save(c.SnapshotName, g)
	if err != nil {
		return err
	}
	if c.SnapshotFile != "" {
		log.Printf("writing graph snapshot to %s...", c.SnapshotFile)
		if err := storage.WriteSnapshotFile(c.SnapshotFile, g); err != nil {
			return err
		}
	}

	wg.Wait()
	if seedErr != nil {
		return fmt.Errorf("seed safety store: %w", seedErr)
	}
	recordMemProfile(c.MemProfile, "finish_preprocessing")

	color.Green("\nwalk network %q ready in %s: %d nodes, %d edges, %d bytes",
		info.Name, time.Since(start).Round(time.Second), info.Nodes, info.Edges, info.Bytes)
	return nil
}

func (c *CLI) listSnapshots() error {
	store, err := storage.OpenSnapshotStore(c.SnapshotDB)
	if err != nil {
		return err
	}
	defer store.Close()
	infos, err := store.List()
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		color.Yellow("no snapshots in %s", c.SnapshotDB)
		return nil
	}
	for _, info := range infos {
		fmt.Printf("%-20s %8d nodes %8d edges %10d bytes  %s\n", info.Name, info.Nodes, info.Edges, info.Bytes,
			time.Unix(info.SavedAt, 0).Format(time.RFC3339))
	}
	return nil
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
		kong.Name("saferoute-preprocessing"),
		kong.Description("Build the walk network from an openstreetmap extract and cache it"),
		kong.UsageOnError(),
	)
	if err := cli.Run(); err != nil {
		color.Red("error: %v", err)
		os.Exit(1)
	}
}
