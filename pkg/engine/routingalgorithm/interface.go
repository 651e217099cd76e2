package routingalgorithm

import "github.com/lintang-b-s/saferoute/pkg/datastructure"

// Graph is the read only view of the street graph the solver runs on.
type Graph interface {
	HasNode(id datastructure.NodeID) bool
	Node(id datastructure.NodeID) (datastructure.Node, error)
	Neighbors(id datastructure.NodeID) ([]datastructure.EdgeID, error)
	Edge(id datastructure.EdgeID) (*datastructure.Edge, error)
}
