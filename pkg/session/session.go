package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/lintang-b-s/saferoute/pkg/datastructure"
	"github.com/lintang-b-s/saferoute/pkg/engine/routingalgorithm"
	"github.com/lintang-b-s/saferoute/pkg/geo"
	"github.com/lintang-b-s/saferoute/pkg/safety"
	"github.com/lintang-b-s/saferoute/pkg/snap"
)

var (
	ErrInvalidQuery = errors.New("invalid query point")
	ErrNoProvider   = errors.New("session has no safety provider")
)

// QueryPoint is a route endpoint, either a coordinate or an existing node.
type QueryPoint struct {
	Coordinate datastructure.Coordinate `json:"coordinate"`
	Node       datastructure.NodeID     `json:"node"`
	ByNode     bool                     `json:"by_node"`
}

func AtCoordinate(lat, lon float64) QueryPoint {
	return QueryPoint{Coordinate: datastructure.NewCoordinate(lat, lon)}
}

func AtNode(id datastructure.NodeID) QueryPoint {
	return QueryPoint{Node: id, ByNode: true}
}

func (q QueryPoint) String() string {
	if q.ByNode {
		return fmt.Sprintf("node %d", q.Node)
	}
	return fmt.Sprintf("(%v, %v)", q.Coordinate.Lat, q.Coordinate.Lon)
}

// Endpoint tells how a query point was resolved to a node.
type Endpoint struct {
	Query      QueryPoint               `json:"query"`
	Node       datastructure.NodeID     `json:"node"`
	Coordinate datastructure.Coordinate `json:"coordinate"`
	Inserted   bool                     `json:"inserted"`
	Distance   float64                  `json:"distance"` // meter from the query point to Coordinate
}

type RouteResult struct {
	Route       datastructure.Route        `json:"route"`
	Origin      Endpoint                   `json:"origin"`
	Destination Endpoint                   `json:"destination"`
	Segments    []Segment                  `json:"segments"`
	Geometry    []datastructure.Coordinate `json:"geometry"`
	Polyline    string                     `json:"polyline"`
}

type GraphStats struct {
	Nodes      int    `json:"nodes"`
	Edges      int    `json:"edges"`
	WithSafety int    `json:"with_safety"`
	IndexSize  int    `json:"index_size"`
	Version    uint64 `json:"version"`
	Isolation  string `json:"isolation"`
}

// RoutingSession owns one street graph together with its spatial index, the cost
// model and the safety provider. All methods are safe for concurrent use.
type RoutingSession struct {
	mu       sync.RWMutex
	cfg      Config
	graph    *datastructure.Graph
	snapper  *snap.RoadSnapper
	provider safety.Provider
}

// NewRoutingSession takes ownership of g; the caller must not touch it afterwards.
// provider may be nil when the graph already carries its safety data.
func NewRoutingSession(g *datastructure.Graph, provider safety.Provider, cfg Config) (*RoutingSession, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	index, err := snap.NewEdgeIndex(g)
	if err != nil {
		return nil, err
	}
	log.Printf("routing session: %d nodes, %d edges, isolation %s", g.NumNodes(), g.NumEdges(), cfg.Isolation)
	return &RoutingSession{
		cfg:      cfg,
		graph:    g,
		snapper:  snap.NewRoadSnapper(g, index, cfg.SnapTolerance, cfg.SplitPolicy),
		provider: provider,
	}, nil
}

func (s *RoutingSession) Config() Config {
	return s.cfg
}

func (s *RoutingSession) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.QueryTimeout > 0 {
		return context.WithTimeout(ctx, s.cfg.QueryTimeout)
	}
	return context.WithCancel(ctx)
}

// Route resolves origin and destination to nodes and returns the cheapest route
// between them under the session cost model.
func (s *RoutingSession) Route(ctx context.Context, origin, destination QueryPoint) (RouteResult, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if s.cfg.Isolation == IsolationClone {
		// the fork reads the shared index, so the read lock is held until the end
		s.mu.RLock()
		defer s.mu.RUnlock()
		return s.route(ctx, s.snapper.Fork(s.graph.Clone()), origin, destination)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.route(ctx, s.snapper, origin, destination)
}

func (s *RoutingSession) route(ctx context.Context, rs *snap.RoadSnapper, origin, destination QueryPoint) (RouteResult, error) {
	// both endpoints are checked before the first insertion touches the graph
	if err := s.check(rs, origin); err != nil {
		return RouteResult{}, fmt.Errorf("origin %s: %w", origin, err)
	}
	if err := s.check(rs, destination); err != nil {
		return RouteResult{}, fmt.Errorf("destination %s: %w", destination, err)
	}

	from, err := s.resolve(ctx, rs, origin)
	if err != nil {
		return RouteResult{}, fmt.Errorf("origin %s: %w", origin, err)
	}
	to, err := s.resolve(ctx, rs, destination)
	if err != nil {
		return RouteResult{}, fmt.Errorf("destination %s: %w", destination, err)
	}

	g := rs.Graph()
	solver := routingalgorithm.NewRouteAlgorithm(g)
	route, err := solver.Run(ctx, s.cfg.Algorithm, from.Node, to.Node, s.cfg.Model.Func())
	if err != nil {
		return RouteResult{}, err
	}

	segments, path, err := Assemble(g, route, s.cfg.Model)
	if err != nil {
		return RouteResult{}, err
	}
	if len(path) == 0 {
		path = []datastructure.Coordinate{from.Coordinate}
	}
	return RouteResult{
		Route:       route,
		Origin:      from,
		Destination: to,
		Segments:    segments,
		Geometry:    path,
		Polyline:    datastructure.CreatePolyline(path),
	}, nil
}

// check reports the errors resolve would fail with, without modifying the graph.
func (s *RoutingSession) check(rs *snap.RoadSnapper, q QueryPoint) error {
	g := rs.Graph()
	if q.ByNode {
		if !g.HasNode(q.Node) {
			return fmt.Errorf("%w: %d", routingalgorithm.ErrInvalidNode, q.Node)
		}
		return nil
	}
	if !q.Coordinate.Valid() {
		return fmt.Errorf("%w: coordinate %v", ErrInvalidQuery, q.Coordinate)
	}
	if s.cfg.SnapMode == SnapEdge && g.NumEdges() == 0 {
		return fmt.Errorf("%w: graph has no edges", snap.ErrNotFound)
	}
	return nil
}

func (s *RoutingSession) resolve(ctx context.Context, rs *snap.RoadSnapper, q QueryPoint) (Endpoint, error) {
	g := rs.Graph()
	if q.ByNode {
		n, err := g.Node(q.Node)
		if err != nil {
			return Endpoint{}, fmt.Errorf("%w: %d", routingalgorithm.ErrInvalidNode, q.Node)
		}
		return Endpoint{Query: q, Node: n.ID, Coordinate: n.Coordinate}, nil
	}
	if !q.Coordinate.Valid() {
		return Endpoint{}, fmt.Errorf("%w: coordinate %v", ErrInvalidQuery, q.Coordinate)
	}

	if s.cfg.SnapMode == SnapNode {
		hit, err := rs.NearestNode(q.Coordinate)
		if err != nil {
			return Endpoint{}, err
		}
		return Endpoint{Query: q, Node: hit.NodeID, Coordinate: hit.Coordinate, Distance: hit.Distance}, nil
	}

	res, err := rs.InsertPointOrNearestEndpoint(q.Coordinate)
	if err != nil {
		return Endpoint{}, err
	}
	if res.Inserted && s.cfg.AssignOnSplit && s.provider != nil {
		if err := s.assignEdges(ctx, g, res.Split.First, res.Split.Second); err != nil {
			return Endpoint{}, err
		}
	}
	n, err := g.Node(res.Node)
	if err != nil {
		return Endpoint{}, err
	}
	return Endpoint{Query: q, Node: n.ID, Coordinate: n.Coordinate, Inserted: res.Inserted, Distance: res.Distance}, nil
}

// assignEdges fills the safety of freshly split edges that are still unset.
func (s *RoutingSession) assignEdges(ctx context.Context, g *datastructure.Graph, ids ...datastructure.EdgeID) error {
	for _, id := range ids {
		e, err := g.Edge(id)
		if err != nil {
			return err
		}
		if e.SafetySet {
			continue
		}
		v, ok, err := s.provider.Safety(ctx, e)
		if err != nil {
			return fmt.Errorf("safety of edge %d: %w", id, err)
		}
		if !ok {
			continue
		}
		if err := g.SetSafety(id, v); err != nil {
			return err
		}
	}
	return nil
}

// InsertPoint inserts p into the session graph, whatever the isolation, and keeps
// the inserted node for later queries.
func (s *RoutingSession) InsertPoint(ctx context.Context, p datastructure.Coordinate) (snap.InsertResult, error) {
	if !p.Valid() {
		return snap.InsertResult{}, fmt.Errorf("%w: coordinate %v", ErrInvalidQuery, p)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.snapper.InsertPoint(p)
	if err != nil {
		return res, err
	}
	if res.Inserted && s.cfg.AssignOnSplit && s.provider != nil {
		if err := s.assignEdges(ctx, s.graph, res.Split.First, res.Split.Second); err != nil {
			return res, err
		}
	}
	return res, nil
}

func (s *RoutingSession) NearestEdge(p datastructure.Coordinate) (snap.EdgeHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapper.Index().NearestEdge(p)
}

func (s *RoutingSession) NearestNode(p datastructure.Coordinate) (snap.NodeHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapper.Index().NearestNode(p)
}

// AssignSafety asks the provider for the safety of every edge that has none yet,
// or of every edge when overwrite is set.
func (s *RoutingSession) AssignSafety(ctx context.Context, overwrite bool) (safety.AssignStats, error) {
	if s.provider == nil {
		return safety.AssignStats{}, ErrNoProvider
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return safety.Assign(ctx, s.graph, s.provider, overwrite, s.cfg.AssignWorkers)
}

func (s *RoutingSession) Stats() GraphStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	withSafety := 0
	for _, e := range s.graph.Edges() {
		if e.SafetySet {
			withSafety++
		}
	}
	return GraphStats{
		Nodes:      s.graph.NumNodes(),
		Edges:      s.graph.NumEdges(),
		WithSafety: withSafety,
		IndexSize:  s.snapper.Index().Size(),
		Version:    s.graph.Version(),
		Isolation:  s.cfg.Isolation.String(),
	}
}

// View runs fn with read access to the session graph. fn must not modify it.
func (s *RoutingSession) View(fn func(g *datastructure.Graph) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.graph)
}

// Snapshot returns a copy of the session graph.
func (s *RoutingSession) Snapshot() *datastructure.Graph {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.graph.Clone()
}

// Simplify returns the route geometry with shape points closer than threshold meter
// to the simplified line removed.
func (r RouteResult) Simplify(threshold float64) []datastructure.Coordinate {
	return geo.RamerDouglasPeucker(r.Geometry, threshold)
}
