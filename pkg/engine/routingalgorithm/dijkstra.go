package routingalgorithm

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/lintang-b-s/saferoute/pkg/cost"
	"github.com/lintang-b-s/saferoute/pkg/datastructure"
	"github.com/lintang-b-s/saferoute/pkg/geo"
	"github.com/lintang-b-s/saferoute/pkg/util"
)

var (
	ErrInvalidNode = errors.New("node does not exist in the graph")
	ErrNoPath      = errors.New("no path between source and target")
	ErrInvalidCost = errors.New("edge cost must be finite and non negative")
)

const (
	ctxCheckInterval = 1024 // pops between two ctx checks
)

type Algorithm int

const (
	Dijkstra Algorithm = iota
	// AStar uses the great circle distance to the target as heuristic. It is only
	// exact when every edge costs at least the straight line distance between its
	// endpoints, which holds for cost.Model with haversine lengths.
	AStar
)

func (a Algorithm) String() string {
	switch a {
	case Dijkstra:
		return "dijkstra"
	case AStar:
		return "astar"
	default:
		return fmt.Sprintf("Algorithm(%d)", int(a))
	}
}

func ParseAlgorithm(s string) (Algorithm, error) {
	switch s {
	case "dijkstra", "":
		return Dijkstra, nil
	case "astar":
		return AStar, nil
	default:
		return 0, fmt.Errorf("unknown algorithm %q", s)
	}
}

type RouteAlgorithm struct {
	graph Graph
}

func NewRouteAlgorithm(g Graph) *RouteAlgorithm {
	return &RouteAlgorithm{graph: g}
}

type cameFromPair struct {
	Edge   datastructure.EdgeID
	NodeID datastructure.NodeID
}

// ShortestPath runs Dijkstra from source to target. The frontier is ordered by
// (accumulated cost, node id) and adjacency is walked in insertion order, so equal
// inputs always give the same route. The search stops as soon as target is settled.
// The graph is never modified and concurrent calls are safe.
func (rt *RouteAlgorithm) ShortestPath(ctx context.Context, source, target datastructure.NodeID,
	costFn cost.Func) (datastructure.Route, error) {
	return rt.search(ctx, source, target, costFn, nil)
}

// ShortestPathAStar is ShortestPath guided by the haversine distance to target.
func (rt *RouteAlgorithm) ShortestPathAStar(ctx context.Context, source, target datastructure.NodeID,
	costFn cost.Func) (datastructure.Route, error) {
	if !rt.graph.HasNode(target) {
		return datastructure.Route{}, fmt.Errorf("%w: target %d", ErrInvalidNode, target)
	}
	to, _ := rt.graph.Node(target)
	heuristic := func(id datastructure.NodeID) float64 {
		n, err := rt.graph.Node(id)
		if err != nil {
			return 0
		}
		return geo.HaversineDistance(n.Coordinate, to.Coordinate)
	}
	return rt.search(ctx, source, target, costFn, heuristic)
}

func (rt *RouteAlgorithm) Run(ctx context.Context, algo Algorithm, source, target datastructure.NodeID,
	costFn cost.Func) (datastructure.Route, error) {
	if algo == AStar {
		return rt.ShortestPathAStar(ctx, source, target, costFn)
	}
	return rt.ShortestPath(ctx, source, target, costFn)
}

func (rt *RouteAlgorithm) search(ctx context.Context, source, target datastructure.NodeID,
	costFn cost.Func, heuristic func(datastructure.NodeID) float64) (datastructure.Route, error) {
	if !rt.graph.HasNode(source) {
		return datastructure.Route{}, fmt.Errorf("%w: source %d", ErrInvalidNode, source)
	}
	if !rt.graph.HasNode(target) {
		return datastructure.Route{}, fmt.Errorf("%w: target %d", ErrInvalidNode, target)
	}
	if source == target {
		return datastructure.NewRoute([]datastructure.NodeID{source}, []datastructure.EdgeID{}, 0, 0), nil
	}
	if err := ctx.Err(); err != nil {
		return datastructure.Route{}, err
	}

	pq := datastructure.NewMinHeap[datastructure.NodeID]()
	costSoFar := map[datastructure.NodeID]float64{source: 0}
	cameFrom := map[datastructure.NodeID]cameFromPair{source: {Edge: -1, NodeID: -1}}
	settled := make(map[datastructure.NodeID]struct{})

	priority := func(id datastructure.NodeID, g float64) float64 {
		if heuristic == nil {
			return g
		}
		return g + heuristic(id)
	}

	pq.Insert(datastructure.NewPriorityQueueNode(priority(source, 0), source))

	pops := 0
	for pq.Size() > 0 {
		if pops%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return datastructure.Route{}, err
			}
		}
		pops++

		current, _ := pq.ExtractMin()
		if _, ok := settled[current.Item]; ok {
			continue
		}
		settled[current.Item] = struct{}{}

		if current.Item == target {
			return rt.buildRoute(source, target, costSoFar[target], cameFrom)
		}

		adj, err := rt.graph.Neighbors(current.Item)
		if err != nil {
			return datastructure.Route{}, err
		}
		for _, edgeID := range adj {
			edge, err := rt.graph.Edge(edgeID)
			if err != nil {
				return datastructure.Route{}, err
			}
			next := edge.Other(current.Item)
			if _, ok := settled[next]; ok {
				continue
			}

			w, err := costFn(edge)
			if err != nil {
				return datastructure.Route{}, err
			}
			if math.IsNaN(w) || math.IsInf(w, 0) || w < 0 {
				return datastructure.Route{}, fmt.Errorf("%w: edge %d has cost %v", ErrInvalidCost, edgeID, w)
			}

			newCost := costSoFar[current.Item] + w
			old, seen := costSoFar[next]
			if seen && newCost >= old {
				continue
			}
			costSoFar[next] = newCost
			cameFrom[next] = cameFromPair{Edge: edgeID, NodeID: current.Item}

			node := datastructure.NewPriorityQueueNode(priority(next, newCost), next)
			if pq.Contains(next) {
				if err := pq.DecreaseKey(node); err != nil {
					return datastructure.Route{}, err
				}
			} else {
				pq.Insert(node)
			}
		}
	}

	return datastructure.Route{}, fmt.Errorf("%w: %d -> %d", ErrNoPath, source, target)
}

func (rt *RouteAlgorithm) buildRoute(source, target datastructure.NodeID, totalCost float64,
	cameFrom map[datastructure.NodeID]cameFromPair) (datastructure.Route, error) {
	nodes := []datastructure.NodeID{target}
	edges := []datastructure.EdgeID{}
	distance := 0.0

	curr := target
	for curr != source {
		prev := cameFrom[curr]
		e, err := rt.graph.Edge(prev.Edge)
		if err != nil {
			return datastructure.Route{}, err
		}
		edges = append(edges, prev.Edge)
		nodes = append(nodes, prev.NodeID)
		distance += e.Length
		curr = prev.NodeID
	}
	nodes = util.ReverseG(nodes)
	edges = util.ReverseG(edges)

	return datastructure.NewRoute(nodes, edges, totalCost, distance), nil
}
