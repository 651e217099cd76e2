package graphio

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sort"

	"github.com/lintang-b-s/saferoute/pkg/datastructure"
	"github.com/lintang-b-s/saferoute/pkg/geo"
	"github.com/paulmach/orb/encoding/wkt"
)

var (
	ErrMalformed = errors.New("malformed node-link graph")
)

const (
	// length used when a link carries none
	defaultLength = 1.0
)

type nodeLinkNode struct {
	ID int64    `json:"id"`
	X  *float64 `json:"x"`
	Y  *float64 `json:"y"`
}

type nodeLinkEdge struct {
	Source    int64    `json:"source"`
	Target    int64    `json:"target"`
	Length    *float64 `json:"length"`
	Geometry  string   `json:"geometry"`
	Seguridad []int    `json:"seguridad"`
	Safety    []int    `json:"safety"`
}

// nodeLinkGraph is the networkx node-link layout osmnx graphs are exported with.
// Older networkx writes the edges under "links", newer under "edges".
type nodeLinkGraph struct {
	Nodes []nodeLinkNode `json:"nodes"`
	Links []nodeLinkEdge `json:"links"`
	Edges []nodeLinkEdge `json:"edges"`
}

func LoadNodeLinkFile(path string) (*datastructure.Graph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadNodeLink(f)
}

// LoadNodeLink reads an osmnx graph in node-link json. The directed multigraph is
// folded into an undirected simple graph: self loops are dropped and of parallel
// links the shortest wins. Geometry is optional WKT in lon/lat order; its ends are
// snapped onto the node coordinates. A link with a seguridad (or safety) array gets
// that vector as measured safety.
func LoadNodeLink(r io.Reader) (*datastructure.Graph, error) {
	var raw nodeLinkGraph
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	g := datastructure.NewGraph()
	sort.Slice(raw.Nodes, func(i, j int) bool { return raw.Nodes[i].ID < raw.Nodes[j].ID })
	for _, n := range raw.Nodes {
		if n.X == nil || n.Y == nil {
			return nil, fmt.Errorf("%w: node %d has no x/y", ErrMalformed, n.ID)
		}
		if err := g.AddNode(datastructure.NodeID(n.ID), datastructure.NewCoordinate(*n.Y, *n.X)); err != nil {
			return nil, fmt.Errorf("node %d: %w", n.ID, err)
		}
	}

	links := raw.Links
	if len(links) == 0 {
		links = raw.Edges
	}

	skipped := 0
	for i, l := range links {
		u, v := datastructure.NodeID(l.Source), datastructure.NodeID(l.Target)
		if u == v {
			skipped++
			continue
		}
		uNode, err := g.Node(u)
		if err != nil {
			return nil, fmt.Errorf("link %d: %w", i, err)
		}
		vNode, err := g.Node(v)
		if err != nil {
			return nil, fmt.Errorf("link %d: %w", i, err)
		}

		geom, err := parseGeometry(l.Geometry, uNode.Coordinate, vNode.Coordinate)
		if err != nil {
			return nil, fmt.Errorf("link %d (%d-%d): %w", i, u, v, err)
		}
		length := defaultLength
		if l.Length != nil {
			length = *l.Length
		}
		safety, set, err := parseSafety(l.Seguridad, l.Safety)
		if err != nil {
			return nil, fmt.Errorf("link %d (%d-%d): %w", i, u, v, err)
		}

		if old, ok := g.EdgeBetween(u, v); ok {
			skipped++
			if old.Length <= length {
				continue
			}
			if err := g.RemoveEdge(old.ID); err != nil {
				return nil, err
			}
		}
		if _, err := g.AddEdge(u, v, geom, length, safety, set); err != nil {
			return nil, fmt.Errorf("link %d (%d-%d): %w", i, u, v, err)
		}
	}

	log.Printf("node-link graph: %d nodes, %d edges, %d links folded", g.NumNodes(), g.NumEdges(), skipped)
	return g, nil
}

func parseGeometry(s string, from, to datastructure.Coordinate) ([]datastructure.Coordinate, error) {
	if s == "" {
		return nil, nil
	}
	ls, err := wkt.UnmarshalLineString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: geometry: %v", ErrMalformed, err)
	}
	if len(ls) < 2 {
		return nil, nil
	}
	geom := make([]datastructure.Coordinate, len(ls))
	for i, p := range ls {
		geom[i] = datastructure.NewCoordinate(p.Lat(), p.Lon())
	}
	if geo.HaversineDistance(geom[0], to) < geo.HaversineDistance(geom[0], from) {
		datastructure.ReverseCoordinates(geom)
	}
	geom[0] = from
	geom[len(geom)-1] = to
	return geom, nil
}

func parseSafety(seguridad, safety []int) (datastructure.SafetyVector, bool, error) {
	values := seguridad
	if values == nil {
		values = safety
	}
	if values == nil {
		return datastructure.SafetyVector{}, false, nil
	}
	if len(values) != datastructure.NumSafetyFactors {
		return datastructure.SafetyVector{}, false, fmt.Errorf("%w: want %d safety values, got %d",
			ErrMalformed, datastructure.NumSafetyFactors, len(values))
	}
	var s datastructure.SafetyVector
	for i, v := range values {
		if v < int(datastructure.SafetyUnknown) || v > int(datastructure.SafetyMax) {
			return datastructure.SafetyVector{}, false, fmt.Errorf("%w: %v", datastructure.ErrInvalidSafety, values)
		}
		s[i] = uint8(v)
	}
	return s, true, nil
}
