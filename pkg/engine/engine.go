// Package engine wires the graph suppliers, the safety providers and the routing
// session together for the command line tools.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/lintang-b-s/saferoute/pkg/connectivity"
	"github.com/lintang-b-s/saferoute/pkg/cost"
	"github.com/lintang-b-s/saferoute/pkg/datastructure"
	"github.com/lintang-b-s/saferoute/pkg/engine/routingalgorithm"
	"github.com/lintang-b-s/saferoute/pkg/graphio"
	"github.com/lintang-b-s/saferoute/pkg/kv"
	"github.com/lintang-b-s/saferoute/pkg/osmparser"
	"github.com/lintang-b-s/saferoute/pkg/safety"
	"github.com/lintang-b-s/saferoute/pkg/session"
	"github.com/lintang-b-s/saferoute/pkg/snap"
	"github.com/lintang-b-s/saferoute/pkg/storage"
)

var (
	ErrNoGraphSource = errors.New("no graph source given")
)

// GraphSource lists the places a street graph can come from. The first one set
// wins, in field order.
type GraphSource struct {
	SnapshotDB   string // bbolt file written by the preprocessing tool
	SnapshotName string
	SnapshotFile string // zstd stream written by storage.WriteSnapshotFile
	NodeLink     string // osmnx node-link json
	PBF          string // openstreetmap extract
	Progress     bool
	// LargestComponent drops the nodes outside the largest connected component.
	LargestComponent bool
}

func LoadGraph(ctx context.Context, src GraphSource) (*datastructure.Graph, error) {
	start := time.Now()
	var (
		g   *datastructure.Graph
		err error
		via string
	)
	switch {
	case src.SnapshotDB != "":
		via = fmt.Sprintf("snapshot %q in %s", src.SnapshotName, src.SnapshotDB)
		g, err = loadFromStore(src.SnapshotDB, src.SnapshotName)
	case src.SnapshotFile != "":
		via = src.SnapshotFile
		g, err = storage.ReadSnapshotFile(src.SnapshotFile)
	case src.NodeLink != "":
		via = src.NodeLink
		g, err = graphio.LoadNodeLinkFile(src.NodeLink)
	case src.PBF != "":
		via = src.PBF
		p := osmparser.NewOSMParser()
		if src.Progress {
			p = p.WithProgress()
		}
		g, err = p.Parse(ctx, src.PBF)
	default:
		return nil, ErrNoGraphSource
	}
	if err != nil {
		return nil, fmt.Errorf("load graph from %s: %w", via, err)
	}
	if src.LargestComponent {
		if g, _, err = connectivity.KeepLargestComponent(g); err != nil {
			return nil, err
		}
	}
	log.Printf("loaded graph from %s in %s: %d nodes, %d edges", via, time.Since(start).Round(time.Millisecond),
		g.NumNodes(), g.NumEdges())
	return g, nil
}

func loadFromStore(path, name string) (*datastructure.Graph, error) {
	store, err := storage.OpenSnapshotStore(path)
	if err != nil {
		return nil, err
	}
	defer store.Close()
	return store.Load(name)
}

// ProviderOptions describes the safety provider chain: the badger store first when
// SafetyDB is set, then the fallback.
type ProviderOptions struct {
	SafetyDB    string
	Fallback    string // "random", "neutral" or "none"
	Seed        uint64
	WithUnknown bool // random values may contain the unknown sentinel
}

func fallbackProvider(opts ProviderOptions) (safety.Provider, error) {
	switch opts.Fallback {
	case "random":
		return safety.NewRandomProvider(opts.Seed, opts.WithUnknown), nil
	case "neutral", "":
		return safety.NeutralProvider(), nil
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown safety fallback %q", opts.Fallback)
	}
}

// OpenProvider builds the provider chain. The returned close func releases the
// safety store and is never nil.
func OpenProvider(opts ProviderOptions) (safety.Provider, func() error, error) {
	noop := func() error { return nil }
	fallback, err := fallbackProvider(opts)
	if err != nil {
		return nil, noop, err
	}
	if opts.SafetyDB == "" {
		return fallback, noop, nil
	}

	store, err := kv.OpenSafetyStore(opts.SafetyDB)
	if err != nil {
		return nil, noop, err
	}
	if fallback == nil {
		return store, store.Close, nil
	}
	return safety.NewChainProvider(store, fallback), store.Close, nil
}

// SessionOptions is the textual form of session.Config used by the flags.
type SessionOptions struct {
	Weights       string
	Scale         float64
	Unknown       string
	SplitPolicy   string
	SnapTolerance float64
	SnapMode      string
	Isolation     string
	Algorithm     string
	Timeout       time.Duration
	AssignWorkers int
}

func DefaultSessionOptions() SessionOptions {
	cfg := session.DefaultConfig()
	return SessionOptions{
		Weights:       cfg.Model.Weights.String(),
		Scale:         cfg.Model.Scale,
		Unknown:       cfg.Model.Unknown.String(),
		SplitPolicy:   cfg.SplitPolicy.String(),
		SnapTolerance: cfg.SnapTolerance,
		SnapMode:      cfg.SnapMode.String(),
		Isolation:     cfg.Isolation.String(),
		Algorithm:     cfg.Algorithm.String(),
		Timeout:       cfg.QueryTimeout,
	}
}

func (o SessionOptions) Config() (session.Config, error) {
	cfg := session.DefaultConfig()

	w, err := cost.ParseWeights(o.Weights)
	if err != nil {
		return cfg, err
	}
	unknown, err := cost.ParseUnknownPolicy(o.Unknown)
	if err != nil {
		return cfg, err
	}
	cfg.Model, err = cost.NewModel(w, o.Scale, unknown)
	if err != nil {
		return cfg, err
	}
	if cfg.SplitPolicy, err = snap.ParseSplitPolicy(o.SplitPolicy); err != nil {
		return cfg, err
	}
	if cfg.SnapMode, err = session.ParseSnapMode(o.SnapMode); err != nil {
		return cfg, err
	}
	if cfg.Isolation, err = session.ParseIsolation(o.Isolation); err != nil {
		return cfg, err
	}
	if cfg.Algorithm, err = routingalgorithm.ParseAlgorithm(o.Algorithm); err != nil {
		return cfg, err
	}
	cfg.SnapTolerance = o.SnapTolerance
	cfg.QueryTimeout = o.Timeout
	cfg.AssignWorkers = o.AssignWorkers
	return cfg, cfg.Validate()
}

// NewSession loads the graph, opens the providers and fills the safety of every
// edge that has none. The returned close func releases the providers.
func NewSession(ctx context.Context, src GraphSource, popts ProviderOptions,
	sopts SessionOptions) (*session.RoutingSession, func() error, error) {
	cfg, err := sopts.Config()
	if err != nil {
		return nil, nil, err
	}
	g, err := LoadGraph(ctx, src)
	if err != nil {
		return nil, nil, err
	}
	provider, closeFn, err := OpenProvider(popts)
	if err != nil {
		return nil, nil, err
	}

	sess, err := session.NewRoutingSession(g, provider, cfg)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	if provider != nil {
		stats, err := sess.AssignSafety(ctx, false)
		if err != nil {
			closeFn()
			return nil, nil, err
		}
		log.Printf("safety assigned to %d of %d edges, %d without data", stats.Assigned, stats.Requested, stats.Missing)
	}
	return sess, closeFn, nil
}

// SeedSafetyStore writes the safety vector of every edge that has one into store.
func SeedSafetyStore(ctx context.Context, g *datastructure.Graph, store *kv.SafetyStore, source string) (int, error) {
	items := make([]kv.EdgeSafety, 0, g.NumEdges())
	for _, e := range g.Edges() {
		if !e.SafetySet {
			continue
		}
		items = append(items, kv.EdgeSafety{Edge: e, Safety: e.Safety})
	}
	if err := store.BatchPut(ctx, items, source); err != nil {
		return 0, err
	}
	return len(items), nil
}
