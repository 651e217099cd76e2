package connectivity

import (
	"cmp"
	"log"
	"sort"

	"github.com/lintang-b-s/saferoute/pkg/datastructure"
	"github.com/lintang-b-s/saferoute/pkg/util"
)

type Graph interface {
	Nodes() []datastructure.Node
	Neighbors(id datastructure.NodeID) ([]datastructure.EdgeID, error)
	Edge(id datastructure.EdgeID) (*datastructure.Edge, error)
}

// Components returns the connected components of g, largest first. Equal sized
// components are ordered by their smallest node id, and the nodes of a component
// are sorted.
func Components(g Graph) ([][]datastructure.NodeID, error) {
	nodes := g.Nodes()
	visited := make(map[datastructure.NodeID]bool, len(nodes))
	components := make([][]datastructure.NodeID, 0)

	for _, n := range nodes {
		if visited[n.ID] {
			continue
		}
		component := make([]datastructure.NodeID, 0)
		if err := dfs(g, n.ID, &component, visited); err != nil {
			return nil, err
		}
		sort.Slice(component, func(i, j int) bool { return component[i] < component[j] })
		components = append(components, component)
	}

	components = util.QuickSortG(components, func(a, b []datastructure.NodeID) int {
		if len(a) != len(b) {
			return len(b) - len(a)
		}
		return cmp.Compare(a[0], b[0])
	})

	log.Printf("Connected Components Count: %d\n", len(components))
	return components, nil
}

// dfs appends every node reachable from v to output.
func dfs(g Graph, v datastructure.NodeID, output *[]datastructure.NodeID, visited map[datastructure.NodeID]bool) error {
	stack := []datastructure.NodeID{v}
	visited[v] = true
	for len(stack) > 0 {
		curr := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		*output = append(*output, curr)

		adj, err := g.Neighbors(curr)
		if err != nil {
			return err
		}
		for _, edgeID := range adj {
			e, err := g.Edge(edgeID)
			if err != nil {
				return err
			}
			next := e.Other(curr)
			if !visited[next] {
				visited[next] = true
				stack = append(stack, next)
			}
		}
	}
	return nil
}

// Retain builds a new graph with the nodes in keep and the edges between them.
// Node ids, geometry and safety are kept, edge ids are renumbered in their old order.
func Retain(g *datastructure.Graph, keep []datastructure.NodeID) (*datastructure.Graph, error) {
	in := make(map[datastructure.NodeID]bool, len(keep))
	for _, id := range keep {
		in[id] = true
	}

	out := datastructure.NewGraph()
	for _, n := range g.Nodes() {
		if !in[n.ID] {
			continue
		}
		if err := out.AddNode(n.ID, n.Coordinate); err != nil {
			return nil, err
		}
	}
	for _, e := range g.Edges() {
		if !in[e.U] || !in[e.V] {
			continue
		}
		if _, err := out.AddEdge(e.U, e.V, datastructure.CopyCoordinates(e.Geometry), e.Length, e.Safety, e.SafetySet); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// KeepLargestComponent drops every node outside the largest connected component,
// the walk network osmnx keeps by default. It returns the new graph and the number
// of dropped nodes.
func KeepLargestComponent(g *datastructure.Graph) (*datastructure.Graph, int, error) {
	components, err := Components(g)
	if err != nil {
		return nil, 0, err
	}
	if len(components) <= 1 {
		return g, 0, nil
	}
	out, err := Retain(g, components[0])
	if err != nil {
		return nil, 0, err
	}
	dropped := g.NumNodes() - out.NumNodes()
	log.Printf("kept the largest component: %d nodes, dropped %d nodes in %d components",
		out.NumNodes(), dropped, len(components)-1)
	return out, dropped, nil
}
