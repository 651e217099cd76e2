package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/lintang-b-s/saferoute/pkg/cost"
	"github.com/lintang-b-s/saferoute/pkg/engine/routingalgorithm"
	"github.com/lintang-b-s/saferoute/pkg/snap"
)

var (
	ErrInvalidConfig = errors.New("invalid session config")
)

// Isolation decides what a route query does to the session graph.
type Isolation int

const (
	// IsolationClone runs every query on a private clone of the graph under the
	// read lock, so queries run in parallel and leave the graph untouched.
	IsolationClone Isolation = iota
	// IsolationShared inserts origin and destination into the session graph under
	// the write lock. Inserted nodes stay in the graph and split edges keep the
	// safety their split policy gave them, so later queries see them too.
	IsolationShared
)

func (i Isolation) String() string {
	switch i {
	case IsolationShared:
		return "shared"
	case IsolationClone:
		return "clone"
	default:
		return fmt.Sprintf("Isolation(%d)", int(i))
	}
}

func ParseIsolation(s string) (Isolation, error) {
	switch s {
	case "clone", "":
		return IsolationClone, nil
	case "shared":
		return IsolationShared, nil
	default:
		return 0, fmt.Errorf("unknown isolation %q", s)
	}
}

// SnapMode decides how a coordinate query point becomes a graph node.
type SnapMode int

const (
	// SnapEdge projects the point onto the nearest street and splits it there.
	SnapEdge SnapMode = iota
	// SnapNode uses the nearest existing node and never modifies the graph.
	SnapNode
)

func (m SnapMode) String() string {
	switch m {
	case SnapEdge:
		return "edge"
	case SnapNode:
		return "node"
	default:
		return fmt.Sprintf("SnapMode(%d)", int(m))
	}
}

func ParseSnapMode(s string) (SnapMode, error) {
	switch s {
	case "edge", "":
		return SnapEdge, nil
	case "node":
		return SnapNode, nil
	default:
		return 0, fmt.Errorf("unknown snap mode %q", s)
	}
}

type Config struct {
	Model         cost.Model
	SplitPolicy   snap.SplitPolicy
	SnapTolerance float64 // meter
	SnapMode      SnapMode
	Isolation     Isolation
	Algorithm     routingalgorithm.Algorithm
	QueryTimeout  time.Duration // 0 disables the timeout
	// AssignOnSplit asks the provider for the safety of the edges created by a
	// split. Edges the provider has no data for stay unknown.
	AssignOnSplit bool
	AssignWorkers int // 0 uses every cpu
}

func DefaultConfig() Config {
	return Config{
		Model:         cost.DefaultModel(),
		SplitPolicy:   snap.SplitUnknown,
		SnapTolerance: snap.DefaultSnapTolerance,
		SnapMode:      SnapEdge,
		Isolation:     IsolationClone,
		Algorithm:     routingalgorithm.Dijkstra,
		QueryTimeout:  5 * time.Second,
		AssignOnSplit: true,
	}
}

func (c Config) Validate() error {
	if err := c.Model.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.SplitPolicy != snap.SplitUnknown && c.SplitPolicy != snap.SplitInherit {
		return fmt.Errorf("%w: split policy %d", ErrInvalidConfig, int(c.SplitPolicy))
	}
	if !(c.SnapTolerance >= 0) {
		return fmt.Errorf("%w: snap tolerance %v", ErrInvalidConfig, c.SnapTolerance)
	}
	if c.SnapMode != SnapEdge && c.SnapMode != SnapNode {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, c.SnapMode)
	}
	if c.Isolation != IsolationShared && c.Isolation != IsolationClone {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, c.Isolation)
	}
	if c.Algorithm != routingalgorithm.Dijkstra && c.Algorithm != routingalgorithm.AStar {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, c.Algorithm)
	}
	if c.QueryTimeout < 0 || c.AssignWorkers < 0 {
		return fmt.Errorf("%w: negative timeout or worker count", ErrInvalidConfig)
	}
	return nil
}
