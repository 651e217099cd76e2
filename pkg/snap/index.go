package snap

import (
	"errors"
	"fmt"
	"math"

	"github.com/dhconnelly/rtreego"
	"github.com/golang/geo/s2"
	"github.com/lintang-b-s/saferoute/pkg/datastructure"
	"github.com/lintang-b-s/saferoute/pkg/geo"
)

var (
	ErrNotFound           = errors.New("nothing to snap to")
	ErrDegenerateGeometry = errors.New("edge geometry has zero length")
)

const (
	rtreeDim      = 3
	rtreeMinChild = 25
	rtreeMaxChild = 50

	initialK = 8

	// two hits closer than this are treated as a tie
	tieTolerance = 1e-9 // meter
	boxEpsilon   = 1e-12
)

// Graph is the read side of the street graph the index is built over.
type Graph interface {
	Edges() []*datastructure.Edge
	Edge(id datastructure.EdgeID) (*datastructure.Edge, error)
	Nodes() []datastructure.Node
	Version() uint64
}

type EdgeHit struct {
	EdgeID   datastructure.EdgeID
	U        datastructure.NodeID
	V        datastructure.NodeID
	Geometry []datastructure.Coordinate
	Distance float64 // meter, query point to the closest point of the geometry
}

type NodeHit struct {
	NodeID     datastructure.NodeID
	Coordinate datastructure.Coordinate
	Distance   float64 // meter
}

type edgeItem struct {
	id     datastructure.EdgeID
	lo, hi [3]float64
	rect   rtreego.Rect
}

func (e *edgeItem) Bounds() rtreego.Rect {
	return e.rect
}

type nodeItem struct {
	id     datastructure.NodeID
	coord  datastructure.Coordinate
	lo, hi [3]float64
	rect   rtreego.Rect
}

func (n *nodeItem) Bounds() rtreego.Rect {
	return n.rect
}

// EdgeIndex answers nearest edge and nearest node queries over a Graph.
// Edges and nodes live in two r-trees keyed by their s2 unit vectors, so distances
// behave the same everywhere on the globe. An edge box is the bounding box of its
// shape points padded by the largest arc sagitta of its segments, which makes the
// box distance a lower bound of the chord distance to the edge. The k nearest
// boxes are then refined with exact great circle distances until no unseen box
// can beat the best hit.
//
// An overlay index (see Overlay) shares the r-trees of its base and records the
// edges removed from and added to a cloned graph.
type EdgeIndex struct {
	graph   Graph
	edges   *rtreego.Rtree
	nodes   *rtreego.Rtree
	items   map[datastructure.EdgeID]*edgeItem
	version uint64

	base    *EdgeIndex
	removed map[datastructure.EdgeID]struct{}
}

func NewEdgeIndex(g Graph) (*EdgeIndex, error) {
	ei := &EdgeIndex{graph: g}
	if err := ei.Rebuild(); err != nil {
		return nil, err
	}
	return ei, nil
}

// Rebuild bulk loads both trees from the current graph.
func (ei *EdgeIndex) Rebuild() error {
	if ei.base != nil {
		return errors.New("an overlay index cannot be rebuilt")
	}
	edges := ei.graph.Edges()
	edgeObjs := make([]rtreego.Spatial, 0, len(edges))
	ei.items = make(map[datastructure.EdgeID]*edgeItem, len(edges))
	for _, e := range edges {
		item, err := newEdgeItem(e)
		if err != nil {
			return err
		}
		ei.items[e.ID] = item
		edgeObjs = append(edgeObjs, item)
	}

	nodes := ei.graph.Nodes()
	nodeObjs := make([]rtreego.Spatial, 0, len(nodes))
	for _, n := range nodes {
		item, err := newNodeItem(n)
		if err != nil {
			return err
		}
		nodeObjs = append(nodeObjs, item)
	}

	ei.edges = rtreego.NewTree(rtreeDim, rtreeMinChild, rtreeMaxChild, edgeObjs...)
	ei.nodes = rtreego.NewTree(rtreeDim, rtreeMinChild, rtreeMaxChild, nodeObjs...)
	ei.version = ei.graph.Version()
	return nil
}

// Refresh rebuilds the index when the graph changed behind its back.
func (ei *EdgeIndex) Refresh() error {
	if ei.base != nil || ei.graph.Version() == ei.version {
		return nil
	}
	return ei.Rebuild()
}

func (ei *EdgeIndex) Stale() bool {
	return ei.base == nil && ei.graph.Version() != ei.version
}

// Overlay returns an index for g, a clone of the graph ei was built over. The
// overlay reads ei but never writes to it.
func (ei *EdgeIndex) Overlay(g Graph) *EdgeIndex {
	return &EdgeIndex{
		graph:   g,
		edges:   rtreego.NewTree(rtreeDim, rtreeMinChild, rtreeMaxChild),
		nodes:   rtreego.NewTree(rtreeDim, rtreeMinChild, rtreeMaxChild),
		items:   make(map[datastructure.EdgeID]*edgeItem),
		version: g.Version(),
		base:    ei,
		removed: make(map[datastructure.EdgeID]struct{}),
	}
}

func (ei *EdgeIndex) Size() int {
	n := ei.edges.Size()
	if ei.base != nil {
		n += ei.base.Size() - len(ei.removed)
	}
	return n
}

func (ei *EdgeIndex) insertEdge(e *datastructure.Edge) error {
	item, err := newEdgeItem(e)
	if err != nil {
		return err
	}
	ei.items[e.ID] = item
	ei.edges.Insert(item)
	return nil
}

func (ei *EdgeIndex) removeEdge(id datastructure.EdgeID) {
	if item, ok := ei.items[id]; ok {
		ei.edges.Delete(item)
		delete(ei.items, id)
		return
	}
	if ei.base != nil {
		ei.removed[id] = struct{}{}
	}
}

func (ei *EdgeIndex) insertNode(n datastructure.Node) error {
	item, err := newNodeItem(n)
	if err != nil {
		return err
	}
	ei.nodes.Insert(item)
	return nil
}

// ApplySplit replaces parent by the split children and adds the split node.
func (ei *EdgeIndex) ApplySplit(parent datastructure.EdgeID, node datastructure.Node, children ...*datastructure.Edge) error {
	ei.removeEdge(parent)
	for _, c := range children {
		if err := ei.insertEdge(c); err != nil {
			return err
		}
	}
	if err := ei.insertNode(node); err != nil {
		return err
	}
	ei.version = ei.graph.Version()
	return nil
}

// NearestEdge returns the edge whose geometry is closest to p. Ties are broken by
// the lowest (min(u,v), max(u,v)) pair.
func (ei *EdgeIndex) NearestEdge(p datastructure.Coordinate) (EdgeHit, error) {
	if !p.Valid() {
		return EdgeHit{}, fmt.Errorf("%w: invalid coordinate %v", ErrNotFound, p)
	}
	x := geo.ToS2Point(p)

	best, found, err := ei.nearestEdge(x, p, ei.graph, nil)
	if err != nil {
		return EdgeHit{}, err
	}
	if !found {
		return EdgeHit{}, fmt.Errorf("%w: graph has no edges", ErrNotFound)
	}

	e, err := ei.graph.Edge(best.id)
	if err != nil {
		return EdgeHit{}, err
	}
	return EdgeHit{
		EdgeID:   e.ID,
		U:        e.U,
		V:        e.V,
		Geometry: datastructure.CopyCoordinates(e.Geometry),
		Distance: best.dist,
	}, nil
}

type edgeCandidate struct {
	id   datastructure.EdgeID
	a, b datastructure.NodeID // a <= b
	dist float64
}

func (c edgeCandidate) betterThan(o edgeCandidate) bool {
	if math.Abs(c.dist-o.dist) > tieTolerance {
		return c.dist < o.dist
	}
	if c.a != o.a {
		return c.a < o.a
	}
	if c.b != o.b {
		return c.b < o.b
	}
	return c.id < o.id
}

// nearestEdge searches this tree and, for overlays, the base tree. Distances are
// always measured on g, the graph of the outermost index.
func (ei *EdgeIndex) nearestEdge(x s2.Point, p datastructure.Coordinate, g Graph,
	removed map[datastructure.EdgeID]struct{}) (edgeCandidate, bool, error) {
	best, found, err := searchEdges(ei.edges, x, p, g, removed)
	if err != nil {
		return edgeCandidate{}, false, err
	}
	if ei.base != nil {
		baseBest, baseFound, err := ei.base.nearestEdge(x, p, g, ei.removed)
		if err != nil {
			return edgeCandidate{}, false, err
		}
		if baseFound && (!found || baseBest.betterThan(best)) {
			best, found = baseBest, true
		}
	}
	return best, found, nil
}

func searchEdges(tree *rtreego.Rtree, x s2.Point, p datastructure.Coordinate, g Graph,
	removed map[datastructure.EdgeID]struct{}) (edgeCandidate, bool, error) {
	size := tree.Size()
	if size == 0 {
		return edgeCandidate{}, false, nil
	}
	query := rtreego.Point{x.X, x.Y, x.Z}
	var filters []rtreego.Filter
	if len(removed) > 0 {
		filters = append(filters, func(_ []rtreego.Spatial, obj rtreego.Spatial) (bool, bool) {
			_, skip := removed[obj.(*edgeItem).id]
			return skip, false
		})
	}

	exact := make(map[datastructure.EdgeID]edgeCandidate)
	var best edgeCandidate
	found := false
	for k := initialK; ; k *= 2 {
		if k > size {
			k = size
		}
		results := tree.NearestNeighbors(k, query, filters...)

		n := 0
		var farthest *edgeItem
		for _, obj := range results {
			if obj == nil {
				continue
			}
			n++
			item := obj.(*edgeItem)
			farthest = item
			c, ok := exact[item.id]
			if !ok {
				e, err := g.Edge(item.id)
				if err != nil {
					return edgeCandidate{}, false, err
				}
				a, b := e.U, e.V
				if a > b {
					a, b = b, a
				}
				c = edgeCandidate{id: e.ID, a: a, b: b, dist: geo.DistanceToPolyline(p, e.Geometry)}
				exact[item.id] = c
			}
			if !found || c.betterThan(best) {
				best, found = c, true
			}
		}

		if n < k || k == size || farthest == nil {
			return best, found, nil
		}
		// boxes are sorted by distance, every unseen edge is at least this far away
		if boxDistance(query, farthest.lo, farthest.hi) > meterToChord(best.dist+tieTolerance) {
			return best, found, nil
		}
	}
}

// NearestNode returns the node closest to p, ties broken by the lowest id.
func (ei *EdgeIndex) NearestNode(p datastructure.Coordinate) (NodeHit, error) {
	if !p.Valid() {
		return NodeHit{}, fmt.Errorf("%w: invalid coordinate %v", ErrNotFound, p)
	}
	x := geo.ToS2Point(p)
	query := rtreego.Point{x.X, x.Y, x.Z}

	var best NodeHit
	found := false
	for idx := ei; idx != nil; idx = idx.base {
		hit, ok := searchNodes(idx.nodes, query, p)
		if !ok {
			continue
		}
		if !found || hit.Distance < best.Distance-tieTolerance ||
			(math.Abs(hit.Distance-best.Distance) <= tieTolerance && hit.NodeID < best.NodeID) {
			best, found = hit, true
		}
	}
	if !found {
		return NodeHit{}, fmt.Errorf("%w: graph has no nodes", ErrNotFound)
	}
	return best, nil
}

func searchNodes(tree *rtreego.Rtree, query rtreego.Point, p datastructure.Coordinate) (NodeHit, bool) {
	size := tree.Size()
	if size == 0 {
		return NodeHit{}, false
	}
	var best NodeHit
	found := false
	for k := initialK; ; k *= 2 {
		if k > size {
			k = size
		}
		results := tree.NearestNeighbors(k, query)
		n := 0
		var farthest *nodeItem
		for _, obj := range results {
			if obj == nil {
				continue
			}
			n++
			item := obj.(*nodeItem)
			farthest = item
			d := geo.HaversineDistance(p, item.coord)
			if !found || d < best.Distance-tieTolerance ||
				(math.Abs(d-best.Distance) <= tieTolerance && item.id < best.NodeID) {
				best = NodeHit{NodeID: item.id, Coordinate: item.coord, Distance: d}
				found = true
			}
		}
		if n < k || k == size || farthest == nil {
			return best, found
		}
		if boxDistance(query, farthest.lo, farthest.hi) > meterToChord(best.Distance+tieTolerance) {
			return best, found
		}
	}
}

func newEdgeItem(e *datastructure.Edge) (*edgeItem, error) {
	lo, hi := edgeBounds(e.Geometry)
	rect, err := rtreego.NewRectFromPoints(rtreego.Point(lo[:]), rtreego.Point(hi[:]))
	if err != nil {
		return nil, fmt.Errorf("edge %d: %w", e.ID, err)
	}
	return &edgeItem{id: e.ID, lo: lo, hi: hi, rect: rect}, nil
}

func newNodeItem(n datastructure.Node) (*nodeItem, error) {
	v := geo.ToS2Point(n.Coordinate)
	lo := [3]float64{v.X - boxEpsilon, v.Y - boxEpsilon, v.Z - boxEpsilon}
	hi := [3]float64{v.X + boxEpsilon, v.Y + boxEpsilon, v.Z + boxEpsilon}
	rect, err := rtreego.NewRectFromPoints(rtreego.Point(lo[:]), rtreego.Point(hi[:]))
	if err != nil {
		return nil, fmt.Errorf("node %d: %w", n.ID, err)
	}
	return &nodeItem{id: n.ID, coord: n.Coordinate, lo: lo, hi: hi, rect: rect}, nil
}

// edgeBounds returns the unit vector bounding box of geom. An arc between two unit
// vectors with chord c leaves the chord by at most 1-sqrt(1-c²/4) <= c²/4.
func edgeBounds(geom []datastructure.Coordinate) (lo, hi [3]float64) {
	for i := 0; i < 3; i++ {
		lo[i] = math.Inf(1)
		hi[i] = math.Inf(-1)
	}
	pad := 0.0
	var prev s2.Point
	for i, c := range geom {
		v := geo.ToS2Point(c)
		for d, val := range [3]float64{v.X, v.Y, v.Z} {
			lo[d] = math.Min(lo[d], val)
			hi[d] = math.Max(hi[d], val)
		}
		if i > 0 {
			chord2 := prev.Sub(v.Vector).Norm2()
			pad = math.Max(pad, chord2/4)
		}
		prev = v
	}
	pad += boxEpsilon
	for i := 0; i < 3; i++ {
		lo[i] -= pad
		hi[i] += pad
	}
	return lo, hi
}

// boxDistance is the euclidean distance from p to the box [lo,hi].
func boxDistance(p rtreego.Point, lo, hi [3]float64) float64 {
	sum := 0.0
	for i := 0; i < 3; i++ {
		var d float64
		switch {
		case p[i] < lo[i]:
			d = lo[i] - p[i]
		case p[i] > hi[i]:
			d = p[i] - hi[i]
		}
		sum += d * d
	}
	return math.Sqrt(sum)
}

// meterToChord converts a great circle distance to the chord length on the unit sphere.
func meterToChord(m float64) float64 {
	theta := math.Min(m/geo.EarthRadiusM, math.Pi)
	return 2 * math.Sin(theta/2)
}
