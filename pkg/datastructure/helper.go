package datastructure

import (
	"github.com/twpayne/go-polyline"
)

// Route is the result of a path query. Nodes has len(Edges)+1 entries and
// Edges[i] connects Nodes[i] with Nodes[i+1].
type Route struct {
	Nodes    []NodeID `json:"nodes"`
	Edges    []EdgeID `json:"edges"`
	Cost     float64  `json:"cost"`
	Distance float64  `json:"distance"` // meter
}

func NewRoute(nodes []NodeID, edges []EdgeID, cost, distance float64) Route {
	return Route{
		Nodes:    nodes,
		Edges:    edges,
		Cost:     cost,
		Distance: distance,
	}
}

func (r Route) Source() NodeID {
	return r.Nodes[0]
}

func (r Route) Target() NodeID {
	return r.Nodes[len(r.Nodes)-1]
}

func (r Route) Empty() bool {
	return len(r.Edges) == 0
}

// CreatePolyline encodes path with the google polyline algorithm (precision 5).
func CreatePolyline(path []Coordinate) string {
	if len(path) == 0 {
		return ""
	}
	coords := make([][]float64, 0, len(path))
	for _, p := range path {
		coords = append(coords, []float64{p.Lat, p.Lon})
	}
	return string(polyline.EncodeCoords(coords))
}

// DecodePolyline is the inverse of CreatePolyline.
func DecodePolyline(s string) ([]Coordinate, error) {
	coords, _, err := polyline.DecodeCoords([]byte(s))
	if err != nil {
		return nil, err
	}
	path := make([]Coordinate, 0, len(coords))
	for _, c := range coords {
		path = append(path, NewCoordinate(c[0], c[1]))
	}
	return path, nil
}
