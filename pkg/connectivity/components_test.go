package connectivity

import (
	"math"
	"testing"

	"github.com/lintang-b-s/saferoute/pkg/datastructure"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

/*
	1 --- 2 --- 3        7 --- 8
	      |
	      4              9

	      5 --- 6
*/
func newGraph(t *testing.T) *datastructure.Graph {
	t.Helper()
	g := datastructure.NewGraph()
	coords := map[datastructure.NodeID]datastructure.Coordinate{
		1: {Lat: 0, Lon: 0}, 2: {Lat: 0, Lon: 0.001}, 3: {Lat: 0, Lon: 0.002}, 4: {Lat: -0.001, Lon: 0.001},
		5: {Lat: -0.002, Lon: 0.001}, 6: {Lat: -0.002, Lon: 0.002},
		7: {Lat: 0, Lon: 0.01}, 8: {Lat: 0, Lon: 0.011}, 9: {Lat: -0.001, Lon: 0.01},
	}
	// inserted out of order on purpose
	for _, id := range []datastructure.NodeID{9, 7, 8, 5, 6, 1, 2, 3, 4} {
		require.NoError(t, g.AddNode(id, coords[id]))
	}
	safety := datastructure.NewSafetyVector(2, 2, 2, 2, 2)
	for _, e := range [][2]datastructure.NodeID{{7, 8}, {5, 6}, {1, 2}, {2, 3}, {2, 4}} {
		_, err := g.AddEdge(e[0], e[1], nil, 100, safety, true)
		require.NoError(t, err)
	}
	return g
}

func TestComponents(t *testing.T) {
	components, err := Components(newGraph(t))
	require.NoError(t, err)
	assert.Equal(t, [][]datastructure.NodeID{
		{1, 2, 3, 4},
		{5, 6},
		{7, 8},
		{9},
	}, components)

	empty, err := Components(datastructure.NewGraph())
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestKeepLargestComponent(t *testing.T) {
	g := newGraph(t)
	out, dropped, err := KeepLargestComponent(g)
	require.NoError(t, err)
	assert.Equal(t, 5, dropped)
	assert.Equal(t, 4, out.NumNodes())
	assert.Equal(t, 3, out.NumEdges())
	require.NoError(t, out.CheckIntegrity())

	e, ok := out.EdgeBetween(2, 4)
	require.True(t, ok)
	assert.Equal(t, 100.0, e.Length)
	assert.True(t, e.SafetySet)
	assert.False(t, out.HasNode(7))

	// the input graph is not modified
	assert.Equal(t, 9, g.NumNodes())
	assert.Equal(t, 5, g.NumEdges())
}

func TestKeepLargestComponentConnected(t *testing.T) {
	g := datastructure.NewGraph()
	require.NoError(t, g.AddNode(1, datastructure.NewCoordinate(0, 0)))
	require.NoError(t, g.AddNode(2, datastructure.NewCoordinate(0, 0.001)))
	_, err := g.AddEdge(1, 2, nil, 111, datastructure.SafetyVector{}, false)
	require.NoError(t, err)

	out, dropped, err := KeepLargestComponent(g)
	require.NoError(t, err)
	assert.Zero(t, dropped)
	assert.Same(t, g, out)
}

func TestComponentsOrderWithFarApartIDs(t *testing.T) {
	g := datastructure.NewGraph()
	low := []datastructure.NodeID{math.MinInt64 + 1, math.MinInt64 + 2}
	high := []datastructure.NodeID{math.MaxInt64 - 2, math.MaxInt64 - 1}
	for i, id := range append(high, low...) {
		require.NoError(t, g.AddNode(id, datastructure.NewCoordinate(0, float64(i)*0.001)))
	}
	for _, pair := range [][]datastructure.NodeID{high, low} {
		_, err := g.AddEdge(pair[0], pair[1], nil, 111, datastructure.SafetyVector{}, false)
		require.NoError(t, err)
	}

	components, err := Components(g)
	require.NoError(t, err)
	// equal sizes, the lowest first id wins
	assert.Equal(t, [][]datastructure.NodeID{low, high}, components)
}
