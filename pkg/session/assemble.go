package session

import (
	"fmt"

	"github.com/lintang-b-s/saferoute/pkg/cost"
	"github.com/lintang-b-s/saferoute/pkg/datastructure"
)

// EdgeSource is the graph access Assemble needs.
type EdgeSource interface {
	Edge(id datastructure.EdgeID) (*datastructure.Edge, error)
}

// Segment is one traversed street with everything a renderer shows for it.
type Segment struct {
	Edge      datastructure.EdgeID       `json:"edge"`
	From      datastructure.NodeID       `json:"from"`
	To        datastructure.NodeID       `json:"to"`
	Geometry  []datastructure.Coordinate `json:"geometry"`
	Length    float64                    `json:"length"`
	Cost      float64                    `json:"cost"`
	Safety    map[string]uint8           `json:"safety"`
	SafetySet bool                       `json:"safety_set"`
	Breakdown map[string]float64         `json:"breakdown"`
}

// Assemble walks route and returns its segments, geometry oriented along the
// direction of travel, and the whole path as one coordinate sequence.
func Assemble(g EdgeSource, route datastructure.Route, model cost.Model) ([]Segment, []datastructure.Coordinate, error) {
	segments := make([]Segment, 0, len(route.Edges))
	path := make([]datastructure.Coordinate, 0)

	for i, id := range route.Edges {
		e, err := g.Edge(id)
		if err != nil {
			return nil, nil, err
		}
		from, to := route.Nodes[i], route.Nodes[i+1]
		if !(e.U == from && e.V == to) && !(e.U == to && e.V == from) {
			return nil, nil, fmt.Errorf("edge %d does not join %d and %d", id, from, to)
		}

		c, err := model.EdgeCost(e.Length, e.Safety)
		if err != nil {
			return nil, nil, fmt.Errorf("edge %d: %w", id, err)
		}
		parts, err := model.Breakdown(e.Safety)
		if err != nil {
			return nil, nil, fmt.Errorf("edge %d: %w", id, err)
		}
		breakdown := make(map[string]float64, len(parts))
		for _, f := range datastructure.SafetyFactors() {
			breakdown[f.String()] = parts[f]
		}

		geom := e.GeometryFrom(from)
		segments = append(segments, Segment{
			Edge:      id,
			From:      from,
			To:        to,
			Geometry:  geom,
			Length:    e.Length,
			Cost:      c,
			Safety:    e.Safety.Map(),
			SafetySet: e.SafetySet,
			Breakdown: breakdown,
		})

		if len(path) > 0 {
			geom = geom[1:]
		}
		path = append(path, geom...)
	}
	return segments, path, nil
}
