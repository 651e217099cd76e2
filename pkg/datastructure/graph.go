package datastructure

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrNodeExists      = errors.New("node already exists")
	ErrNodeNotFound    = errors.New("node not found")
	ErrEdgeNotFound    = errors.New("edge not found")
	ErrSelfLoop        = errors.New("self loop edges are not allowed")
	ErrParallelEdge    = errors.New("an edge between these nodes already exists")
	ErrInvalidGeometry = errors.New("invalid edge geometry")
	ErrInvalidSafety   = errors.New("safety value out of range")
)

type NodeID int64
type EdgeID int32

type Node struct {
	ID         NodeID
	Coordinate Coordinate
}

// Edge is an undirected street segment. Geometry is oriented from U to V: the first
// point is the coordinate of U and the last point the coordinate of V.
type Edge struct {
	ID        EdgeID
	U         NodeID
	V         NodeID
	Geometry  []Coordinate
	Length    float64 // meter
	Safety    SafetyVector
	SafetySet bool
}

// Other returns the endpoint opposite to n.
func (e *Edge) Other(n NodeID) NodeID {
	if e.U == n {
		return e.V
	}
	return e.U
}

// GeometryFrom returns the geometry oriented so that it starts at node from.
func (e *Edge) GeometryFrom(from NodeID) []Coordinate {
	geom := CopyCoordinates(e.Geometry)
	if from == e.V && e.U != e.V {
		ReverseCoordinates(geom)
	}
	return geom
}

func (e *Edge) clone() *Edge {
	c := *e
	c.Geometry = CopyCoordinates(e.Geometry)
	return &c
}

func ReverseCoordinates(coords []Coordinate) {
	for i, j := 0, len(coords)-1; i < j; i, j = i+1, j-1 {
		coords[i], coords[j] = coords[j], coords[i]
	}
}

type pairKey struct {
	a, b NodeID
}

func newPairKey(u, v NodeID) pairKey {
	if u > v {
		u, v = v, u
	}
	return pairKey{u, v}
}

// Graph is an undirected street graph stored in arenas. Nodes live in a slice indexed
// through nodeIndex, edges live in a slice indexed by EdgeID where removed slots are nil.
// Adjacency lists keep insertion order so traversals are deterministic.
// At most one edge exists for every unordered pair of nodes.
type Graph struct {
	nodes     []Node
	nodeIndex map[NodeID]int32
	adjacency [][]EdgeID

	edges    []*Edge
	pairs    map[pairKey]EdgeID
	numEdges int

	nextNodeID NodeID
	version    uint64
}

func NewGraph() *Graph {
	return &Graph{
		nodes:     make([]Node, 0),
		nodeIndex: make(map[NodeID]int32),
		adjacency: make([][]EdgeID, 0),
		edges:     make([]*Edge, 0),
		pairs:     make(map[pairKey]EdgeID),
	}
}

// Version changes whenever nodes or edges are added, removed or split.
// Safety updates do not change it.
func (g *Graph) Version() uint64 {
	return g.version
}

func (g *Graph) NumNodes() int {
	return len(g.nodes)
}

func (g *Graph) NumEdges() int {
	return g.numEdges
}

// AddNode adds a node with an externally chosen id (e.g. an osm node id).
func (g *Graph) AddNode(id NodeID, coord Coordinate) error {
	if _, ok := g.nodeIndex[id]; ok {
		return fmt.Errorf("%w: %d", ErrNodeExists, id)
	}
	if !coord.Valid() {
		return fmt.Errorf("%w: node %d has invalid coordinate %v", ErrInvalidGeometry, id, coord)
	}
	g.addNode(id, coord)
	return nil
}

func (g *Graph) addNode(id NodeID, coord Coordinate) {
	g.nodeIndex[id] = int32(len(g.nodes))
	g.nodes = append(g.nodes, Node{ID: id, Coordinate: coord})
	g.adjacency = append(g.adjacency, nil)
	if id >= g.nextNodeID {
		g.nextNodeID = id + 1
	}
	g.version++
}

// NewNode adds a node with a fresh id that is greater than every id ever seen by g.
func (g *Graph) NewNode(coord Coordinate) (NodeID, error) {
	if !coord.Valid() {
		return 0, fmt.Errorf("%w: invalid coordinate %v", ErrInvalidGeometry, coord)
	}
	id := g.nextNodeID
	g.addNode(id, coord)
	return id, nil
}

func (g *Graph) HasNode(id NodeID) bool {
	_, ok := g.nodeIndex[id]
	return ok
}

func (g *Graph) Node(id NodeID) (Node, error) {
	idx, ok := g.nodeIndex[id]
	if !ok {
		return Node{}, fmt.Errorf("%w: %d", ErrNodeNotFound, id)
	}
	return g.nodes[idx], nil
}

// Nodes returns all nodes in insertion order.
func (g *Graph) Nodes() []Node {
	nodes := make([]Node, len(g.nodes))
	copy(nodes, g.nodes)
	return nodes
}

func (g *Graph) validateEdge(u, v NodeID, geometry []Coordinate, length float64) ([]Coordinate, error) {
	uIdx, ok := g.nodeIndex[u]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNodeNotFound, u)
	}
	vIdx, ok := g.nodeIndex[v]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNodeNotFound, v)
	}
	if u == v {
		return nil, fmt.Errorf("%w: node %d", ErrSelfLoop, u)
	}
	if id, ok := g.pairs[newPairKey(u, v)]; ok {
		return nil, fmt.Errorf("%w: edge %d connects %d and %d", ErrParallelEdge, id, u, v)
	}
	if math.IsNaN(length) || math.IsInf(length, 0) || length < 0 {
		return nil, fmt.Errorf("%w: length %v", ErrInvalidGeometry, length)
	}

	uCoord, vCoord := g.nodes[uIdx].Coordinate, g.nodes[vIdx].Coordinate
	if len(geometry) == 0 {
		return []Coordinate{uCoord, vCoord}, nil
	}
	if len(geometry) < 2 {
		return nil, fmt.Errorf("%w: need at least 2 points, got %d", ErrInvalidGeometry, len(geometry))
	}
	for _, c := range geometry {
		if !c.Valid() {
			return nil, fmt.Errorf("%w: invalid coordinate %v", ErrInvalidGeometry, c)
		}
	}
	if !geometry[0].Equal(uCoord) || !geometry[len(geometry)-1].Equal(vCoord) {
		return nil, fmt.Errorf("%w: geometry endpoints do not match nodes %d and %d", ErrInvalidGeometry, u, v)
	}
	return CopyCoordinates(geometry), nil
}

// AddEdge adds an undirected edge between u and v. An empty geometry becomes the
// straight segment between the two nodes.
func (g *Graph) AddEdge(u, v NodeID, geometry []Coordinate, length float64, safety SafetyVector, safetySet bool) (EdgeID, error) {
	geom, err := g.validateEdge(u, v, geometry, length)
	if err != nil {
		return 0, err
	}
	if !safety.InRange() {
		return 0, fmt.Errorf("%w: %v", ErrInvalidSafety, safety)
	}
	return g.addEdge(u, v, geom, length, safety, safetySet), nil
}

func (g *Graph) addEdge(u, v NodeID, geom []Coordinate, length float64, safety SafetyVector, safetySet bool) EdgeID {
	id := EdgeID(len(g.edges))
	g.edges = append(g.edges, &Edge{
		ID:        id,
		U:         u,
		V:         v,
		Geometry:  geom,
		Length:    length,
		Safety:    safety,
		SafetySet: safetySet,
	})
	g.pairs[newPairKey(u, v)] = id
	uIdx, vIdx := g.nodeIndex[u], g.nodeIndex[v]
	g.adjacency[uIdx] = append(g.adjacency[uIdx], id)
	g.adjacency[vIdx] = append(g.adjacency[vIdx], id)
	g.numEdges++
	g.version++
	return id
}

// Edge returns the live edge with the given id. The returned edge is owned by the
// graph and must not be modified by the caller.
func (g *Graph) Edge(id EdgeID) (*Edge, error) {
	if id < 0 || int(id) >= len(g.edges) || g.edges[id] == nil {
		return nil, fmt.Errorf("%w: %d", ErrEdgeNotFound, id)
	}
	return g.edges[id], nil
}

func (g *Graph) EdgeBetween(u, v NodeID) (*Edge, bool) {
	id, ok := g.pairs[newPairKey(u, v)]
	if !ok {
		return nil, false
	}
	return g.edges[id], true
}

// Neighbors returns the ids of the edges incident to n in insertion order.
// The slice is owned by the graph.
func (g *Graph) Neighbors(n NodeID) ([]EdgeID, error) {
	idx, ok := g.nodeIndex[n]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNodeNotFound, n)
	}
	return g.adjacency[idx], nil
}

// Edges returns the live edges in ascending id order.
func (g *Graph) Edges() []*Edge {
	edges := make([]*Edge, 0, g.numEdges)
	for _, e := range g.edges {
		if e != nil {
			edges = append(edges, e)
		}
	}
	return edges
}

func (g *Graph) RemoveEdge(id EdgeID) error {
	e, err := g.Edge(id)
	if err != nil {
		return err
	}
	g.removeEdge(e)
	return nil
}

func (g *Graph) removeEdge(e *Edge) {
	for _, n := range [2]NodeID{e.U, e.V} {
		idx := g.nodeIndex[n]
		adj := g.adjacency[idx]
		for i, eid := range adj {
			if eid == e.ID {
				g.adjacency[idx] = append(adj[:i:i], adj[i+1:]...)
				break
			}
		}
	}
	delete(g.pairs, newPairKey(e.U, e.V))
	g.edges[e.ID] = nil
	g.numEdges--
	g.version++
}

// SetSafety replaces the safety vector of an edge and marks it as set.
func (g *Graph) SetSafety(id EdgeID, safety SafetyVector) error {
	e, err := g.Edge(id)
	if err != nil {
		return err
	}
	if !safety.InRange() {
		return fmt.Errorf("%w: %v", ErrInvalidSafety, safety)
	}
	e.Safety = safety
	e.SafetySet = true
	return nil
}

// EdgeSplit describes how an edge U-V is cut at a new node X.
// First runs from U to X and Second from X to V.
type EdgeSplit struct {
	Coordinate   Coordinate
	First        []Coordinate
	Second       []Coordinate
	FirstLength  float64
	SecondLength float64
	FirstSafety  SafetyVector
	SecondSafety SafetyVector
	SafetySet    bool
}

// SplitResult holds the ids created by SplitEdge.
type SplitResult struct {
	Node   NodeID
	First  EdgeID // U-X
	Second EdgeID // X-V
}

// SplitEdge replaces edge id by a new node and the two edges U-X and X-V.
// Everything is validated before the graph is touched, so on error g is unchanged.
func (g *Graph) SplitEdge(id EdgeID, split EdgeSplit) (SplitResult, error) {
	parent, err := g.Edge(id)
	if err != nil {
		return SplitResult{}, err
	}
	if !split.Coordinate.Valid() {
		return SplitResult{}, fmt.Errorf("%w: invalid split coordinate %v", ErrInvalidGeometry, split.Coordinate)
	}
	if err := validateSplitPart(split.First, parent.Geometry[0], split.Coordinate, split.FirstLength); err != nil {
		return SplitResult{}, fmt.Errorf("first part of edge %d: %w", id, err)
	}
	if err := validateSplitPart(split.Second, split.Coordinate, parent.Geometry[len(parent.Geometry)-1], split.SecondLength); err != nil {
		return SplitResult{}, fmt.Errorf("second part of edge %d: %w", id, err)
	}
	if !split.FirstSafety.InRange() || !split.SecondSafety.InRange() {
		return SplitResult{}, fmt.Errorf("%w: split safety", ErrInvalidSafety)
	}

	u, v := parent.U, parent.V
	x, _ := g.NewNode(split.Coordinate)
	g.removeEdge(parent)
	first := g.addEdge(u, x, CopyCoordinates(split.First), split.FirstLength, split.FirstSafety, split.SafetySet)
	second := g.addEdge(x, v, CopyCoordinates(split.Second), split.SecondLength, split.SecondSafety, split.SafetySet)

	return SplitResult{Node: x, First: first, Second: second}, nil
}

func validateSplitPart(geom []Coordinate, from, to Coordinate, length float64) error {
	if len(geom) < 2 {
		return fmt.Errorf("%w: need at least 2 points, got %d", ErrInvalidGeometry, len(geom))
	}
	if !geom[0].Equal(from) || !geom[len(geom)-1].Equal(to) {
		return fmt.Errorf("%w: endpoints do not match", ErrInvalidGeometry)
	}
	if math.IsNaN(length) || math.IsInf(length, 0) || length < 0 {
		return fmt.Errorf("%w: length %v", ErrInvalidGeometry, length)
	}
	return nil
}

// Clone returns a deep copy of g. Ids, adjacency order and the id counters are kept.
func (g *Graph) Clone() *Graph {
	c := &Graph{
		nodes:      make([]Node, len(g.nodes)),
		nodeIndex:  make(map[NodeID]int32, len(g.nodeIndex)),
		adjacency:  make([][]EdgeID, len(g.adjacency)),
		edges:      make([]*Edge, len(g.edges)),
		pairs:      make(map[pairKey]EdgeID, len(g.pairs)),
		numEdges:   g.numEdges,
		nextNodeID: g.nextNodeID,
		version:    g.version,
	}
	copy(c.nodes, g.nodes)
	for id, idx := range g.nodeIndex {
		c.nodeIndex[id] = idx
	}
	for i, adj := range g.adjacency {
		c.adjacency[i] = append([]EdgeID(nil), adj...)
	}
	for i, e := range g.edges {
		if e != nil {
			c.edges[i] = e.clone()
		}
	}
	for k, v := range g.pairs {
		c.pairs[k] = v
	}
	return c
}

// CheckIntegrity verifies the structural invariants of the graph: every edge joins
// two distinct existing nodes, its geometry starts and ends at them, lengths are
// finite and non negative, and the adjacency and pair indexes agree with the edges.
func (g *Graph) CheckIntegrity() error {
	degree := make([]int, len(g.nodes))
	live := 0
	for i, e := range g.edges {
		if e == nil {
			continue
		}
		live++
		if e.ID != EdgeID(i) {
			return fmt.Errorf("edge slot %d holds edge %d", i, e.ID)
		}
		uIdx, ok := g.nodeIndex[e.U]
		if !ok {
			return fmt.Errorf("edge %d: %w: %d", e.ID, ErrNodeNotFound, e.U)
		}
		vIdx, ok := g.nodeIndex[e.V]
		if !ok {
			return fmt.Errorf("edge %d: %w: %d", e.ID, ErrNodeNotFound, e.V)
		}
		if e.U == e.V {
			return fmt.Errorf("edge %d: %w", e.ID, ErrSelfLoop)
		}
		if len(e.Geometry) < 2 ||
			!e.Geometry[0].Equal(g.nodes[uIdx].Coordinate) ||
			!e.Geometry[len(e.Geometry)-1].Equal(g.nodes[vIdx].Coordinate) {
			return fmt.Errorf("edge %d: %w", e.ID, ErrInvalidGeometry)
		}
		if math.IsNaN(e.Length) || math.IsInf(e.Length, 0) || e.Length < 0 {
			return fmt.Errorf("edge %d: %w: length %v", e.ID, ErrInvalidGeometry, e.Length)
		}
		if pid, ok := g.pairs[newPairKey(e.U, e.V)]; !ok || pid != e.ID {
			return fmt.Errorf("edge %d: pair index out of sync", e.ID)
		}
		degree[uIdx]++
		degree[vIdx]++
	}
	if live != g.numEdges || len(g.pairs) != g.numEdges {
		return fmt.Errorf("edge count out of sync: live=%d counted=%d pairs=%d", live, g.numEdges, len(g.pairs))
	}
	for i, adj := range g.adjacency {
		if len(adj) != degree[i] {
			return fmt.Errorf("node %d: adjacency has %d edges, expected %d", g.nodes[i].ID, len(adj), degree[i])
		}
		for _, eid := range adj {
			e, err := g.Edge(eid)
			if err != nil {
				return fmt.Errorf("node %d: %w", g.nodes[i].ID, err)
			}
			if e.U != g.nodes[i].ID && e.V != g.nodes[i].ID {
				return fmt.Errorf("node %d: adjacency lists edge %d which is not incident", g.nodes[i].ID, eid)
			}
		}
	}
	for id, idx := range g.nodeIndex {
		if g.nodes[idx].ID != id {
			return fmt.Errorf("node index out of sync for %d", id)
		}
	}
	return nil
}
