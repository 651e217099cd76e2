package snap

import (
	"errors"
	"fmt"
	"log"

	"github.com/lintang-b-s/saferoute/pkg/datastructure"
	"github.com/lintang-b-s/saferoute/pkg/geo"
)

// SplitPolicy decides the safety data of the two edges created by a split.
type SplitPolicy int

const (
	// SplitUnknown leaves both children unset, a safety provider fills them later.
	SplitUnknown SplitPolicy = iota
	// SplitInherit copies the parent vector (and its set flag) to both children.
	SplitInherit
)

func (p SplitPolicy) String() string {
	switch p {
	case SplitUnknown:
		return "unknown"
	case SplitInherit:
		return "inherit"
	default:
		return fmt.Sprintf("SplitPolicy(%d)", int(p))
	}
}

func ParseSplitPolicy(s string) (SplitPolicy, error) {
	switch s {
	case "unknown", "":
		return SplitUnknown, nil
	case "inherit":
		return SplitInherit, nil
	default:
		return 0, fmt.Errorf("unknown split policy %q", s)
	}
}

const (
	DefaultSnapTolerance = 1.0 // meter
)

// InsertResult describes what InsertPoint did with a query point.
type InsertResult struct {
	Node     datastructure.NodeID
	Inserted bool // false when an existing endpoint was returned
	Edge     datastructure.EdgeID
	Distance float64 // meter, query point to its projection
	Split    datastructure.SplitResult
}

// RoadSnapper inserts arbitrary points into the street graph by projecting them onto
// the nearest edge and splitting it there.
type RoadSnapper struct {
	graph     *datastructure.Graph
	index     *EdgeIndex
	tolerance float64
	policy    SplitPolicy
}

func NewRoadSnapper(g *datastructure.Graph, index *EdgeIndex, tolerance float64, policy SplitPolicy) *RoadSnapper {
	return &RoadSnapper{graph: g, index: index, tolerance: tolerance, policy: policy}
}

// Fork returns a snapper over g, a clone of the snapped graph, that shares the
// spatial index of rs read only.
func (rs *RoadSnapper) Fork(g *datastructure.Graph) *RoadSnapper {
	return &RoadSnapper{
		graph:     g,
		index:     rs.index.Overlay(g),
		tolerance: rs.tolerance,
		policy:    rs.policy,
	}
}

func (rs *RoadSnapper) Graph() *datastructure.Graph {
	return rs.graph
}

func (rs *RoadSnapper) Index() *EdgeIndex {
	return rs.index
}

func (rs *RoadSnapper) NearestEdge(p datastructure.Coordinate) (EdgeHit, error) {
	if err := rs.index.Refresh(); err != nil {
		return EdgeHit{}, err
	}
	return rs.index.NearestEdge(p)
}

func (rs *RoadSnapper) NearestNode(p datastructure.Coordinate) (NodeHit, error) {
	if err := rs.index.Refresh(); err != nil {
		return NodeHit{}, err
	}
	return rs.index.NearestNode(p)
}

// InsertPoint projects p onto the nearest edge. When the projection lies within the
// snap tolerance (measured along the edge) of an endpoint, that endpoint is returned
// and the graph is left alone. Otherwise a new node is created at the projection and
// the edge is replaced by two edges whose geometries concatenate to the old one and
// whose lengths sum to the old length.
func (rs *RoadSnapper) InsertPoint(p datastructure.Coordinate) (InsertResult, error) {
	hit, err := rs.NearestEdge(p)
	if err != nil {
		return InsertResult{}, err
	}
	parent, err := rs.graph.Edge(hit.EdgeID)
	if err != nil {
		return InsertResult{}, err
	}

	geomLen := geo.PolylineLength(parent.Geometry)
	proj, ok := geo.ProjectOntoPolyline(p, parent.Geometry)
	if !ok || geomLen == 0 {
		return InsertResult{Edge: parent.ID}, fmt.Errorf("%w: edge %d (%d-%d)", ErrDegenerateGeometry, parent.ID, parent.U, parent.V)
	}

	result := InsertResult{Edge: parent.ID, Distance: proj.Distance}
	switch {
	case proj.Offset <= rs.tolerance:
		result.Node = parent.U
		return result, nil
	case geomLen-proj.Offset <= rs.tolerance:
		result.Node = parent.V
		return result, nil
	}

	first, second := geo.SplitPolyline(parent.Geometry, proj)
	firstLength := parent.Length * proj.Offset / geomLen
	split := datastructure.EdgeSplit{
		Coordinate:   proj.Point,
		First:        first,
		Second:       second,
		FirstLength:  firstLength,
		SecondLength: parent.Length - firstLength,
	}
	if rs.policy == SplitInherit {
		split.FirstSafety = parent.Safety
		split.SecondSafety = parent.Safety
		split.SafetySet = parent.SafetySet
	}

	parentID := parent.ID
	res, err := rs.graph.SplitEdge(parentID, split)
	if err != nil {
		return InsertResult{}, err
	}

	node, err := rs.graph.Node(res.Node)
	if err != nil {
		return InsertResult{}, err
	}
	e1, err := rs.graph.Edge(res.First)
	if err != nil {
		return InsertResult{}, err
	}
	e2, err := rs.graph.Edge(res.Second)
	if err != nil {
		return InsertResult{}, err
	}
	if err := rs.index.ApplySplit(parentID, node, e1, e2); err != nil {
		// the graph is already split, a full rebuild on the next query fixes the index
		log.Printf("snap: incremental index update failed, rebuilding: %v", err)
		if rerr := rs.index.Rebuild(); rerr != nil {
			return InsertResult{}, rerr
		}
	}

	result.Node = res.Node
	result.Inserted = true
	result.Split = res
	return result, nil
}

// InsertPointOrNearestEndpoint is InsertPoint with the documented fallback for
// degenerate edges: the endpoint of the degenerate edge is returned instead.
func (rs *RoadSnapper) InsertPointOrNearestEndpoint(p datastructure.Coordinate) (InsertResult, error) {
	res, err := rs.InsertPoint(p)
	if !errors.Is(err, ErrDegenerateGeometry) {
		return res, err
	}
	e, eerr := rs.graph.Edge(res.Edge)
	if eerr != nil {
		return InsertResult{}, eerr
	}
	u, _ := rs.graph.Node(e.U)
	return InsertResult{
		Node:     e.U,
		Edge:     e.ID,
		Distance: geo.HaversineDistance(p, u.Coordinate),
	}, nil
}
