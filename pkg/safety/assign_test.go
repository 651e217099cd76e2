package safety

import (
	"context"
	"errors"
	"testing"

	"github.com/lintang-b-s/saferoute/pkg/datastructure"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// path graph 0 - 1 - 2 - ... - n
func pathGraph(t *testing.T, n int) *datastructure.Graph {
	t.Helper()
	g := datastructure.NewGraph()
	for i := 0; i <= n; i++ {
		require.NoError(t, g.AddNode(datastructure.NodeID(i), datastructure.NewCoordinate(0, float64(i)*0.001)))
	}
	for i := 0; i < n; i++ {
		_, err := g.AddEdge(datastructure.NodeID(i), datastructure.NodeID(i+1), nil, 111, datastructure.SafetyVector{}, false)
		require.NoError(t, err)
	}
	return g
}

func TestAssign(t *testing.T) {
	g := pathGraph(t, 1000)
	preset := datastructure.NewSafetyVector(1, 1, 1, 1, 1)
	require.NoError(t, g.SetSafety(0, preset))

	stats, err := Assign(context.Background(), g, NewRandomProvider(3, false), false, 4)
	require.NoError(t, err)
	assert.Equal(t, 999, stats.Requested)
	assert.Equal(t, 999, stats.Assigned)
	assert.Equal(t, 0, stats.Missing)

	for _, e := range g.Edges() {
		assert.True(t, e.SafetySet)
		if e.ID == 0 {
			assert.Equal(t, preset, e.Safety)
		}
	}

	// same seed, same data
	other := pathGraph(t, 1000)
	_, err = Assign(context.Background(), other, NewRandomProvider(3, false), false, 1)
	require.NoError(t, err)
	for i, e := range other.Edges()[1:] {
		want, _ := g.Edge(datastructure.EdgeID(i + 1))
		assert.Equal(t, want.Safety, e.Safety)
	}

	stats, err = Assign(context.Background(), g, NeutralProvider(), true, 0)
	require.NoError(t, err)
	assert.Equal(t, 1000, stats.Assigned)
	e, _ := g.Edge(0)
	assert.Equal(t, datastructure.NewSafetyVector(3, 3, 3, 3, 3), e.Safety)
}

func TestAssignMissingAndErrors(t *testing.T) {
	g := pathGraph(t, 10)
	odd := ProviderFunc(func(ctx context.Context, e *datastructure.Edge) (datastructure.SafetyVector, bool, error) {
		if e.U%2 == 1 {
			return datastructure.SafetyVector{}, false, nil
		}
		return datastructure.NewSafetyVector(2, 2, 2, 2, 2), true, nil
	})
	stats, err := Assign(context.Background(), g, odd, false, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, stats.Assigned)
	assert.Equal(t, 5, stats.Missing)

	boom := errors.New("boom")
	failing := ProviderFunc(func(ctx context.Context, e *datastructure.Edge) (datastructure.SafetyVector, bool, error) {
		return datastructure.SafetyVector{}, false, boom
	})
	_, err = Assign(context.Background(), g, failing, false, 2)
	assert.ErrorIs(t, err, boom)

	bad := ProviderFunc(func(ctx context.Context, e *datastructure.Edge) (datastructure.SafetyVector, bool, error) {
		return datastructure.SafetyVector{7}, true, nil
	})
	_, err = Assign(context.Background(), g, bad, true, 2)
	assert.ErrorIs(t, err, datastructure.ErrInvalidSafety)
}
