package storage

import (
	"errors"
	"fmt"

	"github.com/DataDog/zstd"
	"github.com/kelindar/binary"
	"github.com/lintang-b-s/saferoute/pkg/datastructure"
)

var (
	ErrCorruptSnapshot = errors.New("corrupt graph snapshot")
)

type snapshotNode struct {
	ID  int64
	Lat float64
	Lon float64
}

type snapshotEdge struct {
	U         int64
	V         int64
	Lats      []float64
	Lons      []float64
	Length    float64
	Safety    []uint8
	SafetySet bool
}

// graphSnapshot is the on disk form of a graph. Node ids are kept; edges are
// written in id order so a reload numbers them 0..n-1 in the same order.
type graphSnapshot struct {
	Nodes []snapshotNode
	Edges []snapshotEdge
}

func newSnapshot(g *datastructure.Graph) graphSnapshot {
	nodes := g.Nodes()
	s := graphSnapshot{
		Nodes: make([]snapshotNode, len(nodes)),
		Edges: make([]snapshotEdge, 0, g.NumEdges()),
	}
	for i, n := range nodes {
		s.Nodes[i] = snapshotNode{ID: int64(n.ID), Lat: n.Coordinate.Lat, Lon: n.Coordinate.Lon}
	}
	for _, e := range g.Edges() {
		se := snapshotEdge{
			U:         int64(e.U),
			V:         int64(e.V),
			Lats:      make([]float64, len(e.Geometry)),
			Lons:      make([]float64, len(e.Geometry)),
			Length:    e.Length,
			Safety:    make([]uint8, datastructure.NumSafetyFactors),
			SafetySet: e.SafetySet,
		}
		for i, c := range e.Geometry {
			se.Lats[i] = c.Lat
			se.Lons[i] = c.Lon
		}
		copy(se.Safety, e.Safety[:])
		s.Edges = append(s.Edges, se)
	}
	return s
}

func (s graphSnapshot) toGraph() (*datastructure.Graph, error) {
	g := datastructure.NewGraph()
	for _, n := range s.Nodes {
		if err := g.AddNode(datastructure.NodeID(n.ID), datastructure.NewCoordinate(n.Lat, n.Lon)); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
		}
	}
	for i, e := range s.Edges {
		if len(e.Lats) != len(e.Lons) || len(e.Safety) != datastructure.NumSafetyFactors {
			return nil, fmt.Errorf("%w: edge %d", ErrCorruptSnapshot, i)
		}
		var safety datastructure.SafetyVector
		copy(safety[:], e.Safety)
		_, err := g.AddEdge(datastructure.NodeID(e.U), datastructure.NodeID(e.V),
			datastructure.NewCoordinates(e.Lats, e.Lons), e.Length, safety, e.SafetySet)
		if err != nil {
			return nil, fmt.Errorf("%w: edge %d: %v", ErrCorruptSnapshot, i, err)
		}
	}
	return g, nil
}

// EncodeGraph serializes g with kelindar/binary and compresses it with zstd.
func EncodeGraph(g *datastructure.Graph) ([]byte, error) {
	bb, err := binary.Marshal(newSnapshot(g))
	if err != nil {
		return nil, err
	}
	return compress(bb)
}

func DecodeGraph(bbCompressed []byte) (*datastructure.Graph, error) {
	bb, err := decompress(bbCompressed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	var s graphSnapshot
	if err := binary.Unmarshal(bb, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	return s.toGraph()
}

func compress(bb []byte) ([]byte, error) {
	var bbCompressed []byte
	bbCompressed, err := zstd.Compress(bbCompressed, bb)
	if err != nil {
		return []byte{}, err
	}
	return bbCompressed, nil
}

func decompress(bbCompressed []byte) ([]byte, error) {
	var bb []byte
	bb, err := zstd.Decompress(bb, bbCompressed)
	if err != nil {
		return []byte{}, err
	}
	return bb, nil
}
