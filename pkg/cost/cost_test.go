package cost

import (
	"errors"
	"math"
	"testing"

	"github.com/lintang-b-s/saferoute/pkg/datastructure"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEdgeCostDefaultModel(t *testing.T) {
	m := DefaultModel()

	cases := []struct {
		name   string
		length float64
		safety datastructure.SafetyVector
		want   float64
	}{
		// risks: 1-5/5=0, 1-5/5=0, 1/5, 1/5, 1-5/5=0 -> 100*(0.2+0.6)
		{"safest street", 50, datastructure.NewSafetyVector(5, 5, 1, 1, 5), 50 + 100*(1*0.2+3*0.2)},
		// 100*(1*0.8 + 2*0.8 + 1*1 + 3*1 + 2*0.8)
		{"riskiest street", 50, datastructure.NewSafetyVector(1, 1, 5, 5, 1), 50 + 100*(0.8+1.6+1+3+1.6)},
		{"neutral default vector", 10, datastructure.NewSafetyVector(3, 3, 3, 3, 3), 10 + 100*(0.4+0.8+0.6+1.8+0.8)},
		{"only theft known", 10, datastructure.NewSafetyVector(0, 0, 0, 5, 0), 10 + 300},
		{"zero length", 0, datastructure.NewSafetyVector(0, 0, 0, 0, 0), 0},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := m.EdgeCost(c.length, c.safety)
			require.NoError(t, err)
			assert.InDelta(t, c.want, got, 1e-9)
		})
	}
}

func TestEdgeCostUnknownIsNeutral(t *testing.T) {
	weights := []Weights{DefaultWeights(), {10, 0, 3, 7, 1}, {}}
	for _, w := range weights {
		for _, k := range []float64{0, 1, 100, 1e6} {
			m := Model{Weights: w, Scale: k}
			got, err := m.EdgeCost(123.5, datastructure.SafetyVector{})
			require.NoError(t, err)
			assert.Equal(t, 123.5, got)
		}
	}
}

func TestEdgeCostMonotonic(t *testing.T) {
	m := DefaultModel()
	base := datastructure.NewSafetyVector(3, 3, 3, 3, 3)

	for _, f := range datastructure.SafetyFactors() {
		prev, err := m.EdgeCost(100, base)
		require.NoError(t, err)
		for v := uint8(4); v <= 5; v++ {
			s := base
			s[f] = v
			c, err := m.EdgeCost(100, s)
			require.NoError(t, err)
			if f.HigherIsSafer() {
				assert.Less(t, c, prev, "factor %s", f)
			} else {
				assert.Greater(t, c, prev, "factor %s", f)
			}
			prev = c
		}
	}
}

func TestEdgeCostInvalid(t *testing.T) {
	m := DefaultModel()

	_, err := m.EdgeCost(10, datastructure.NewSafetyVector(3, 6, 3, 3, 3))
	require.ErrorIs(t, err, ErrInvalidSafetyValue)
	var sve *SafetyValueError
	require.True(t, errors.As(err, &sve))
	assert.Equal(t, datastructure.Cameras, sve.Factor)
	assert.Equal(t, uint8(6), sve.Value)

	for _, l := range []float64{-1, math.NaN(), math.Inf(1)} {
		_, err = m.EdgeCost(l, datastructure.SafetyVector{})
		assert.ErrorIs(t, err, ErrInvalidLength)
	}

	strict := m
	strict.Unknown = RequireMeasured
	_, err = strict.EdgeCost(10, datastructure.NewSafetyVector(3, 3, 0, 3, 3))
	require.ErrorIs(t, err, ErrInvalidSafetyValue)
	require.True(t, errors.As(err, &sve))
	assert.Equal(t, datastructure.Containers, sve.Factor)

	c, err := strict.EdgeCost(10, datastructure.NewSafetyVector(1, 2, 3, 4, 5))
	require.NoError(t, err)
	want, _ := m.EdgeCost(10, datastructure.NewSafetyVector(1, 2, 3, 4, 5))
	assert.Equal(t, want, c)
}

func TestModelValidate(t *testing.T) {
	require.NoError(t, DefaultModel().Validate())

	_, err := NewModel(Weights{Illumination: -1}, 100, ExcludeUnknown)
	assert.ErrorIs(t, err, ErrInvalidModel)
	_, err = NewModel(DefaultWeights(), math.NaN(), ExcludeUnknown)
	assert.ErrorIs(t, err, ErrInvalidModel)
	_, err = NewModel(DefaultWeights(), 100, UnknownPolicy(7))
	assert.ErrorIs(t, err, ErrInvalidModel)
}

func TestBreakdownSumsToPenalty(t *testing.T) {
	m := DefaultModel()
	s := datastructure.NewSafetyVector(2, 0, 4, 1, 5)
	parts, err := m.Breakdown(s)
	require.NoError(t, err)
	assert.Equal(t, 0.0, parts[datastructure.Cameras])
	assert.InDelta(t, 100*1*0.6, parts[datastructure.Illumination], 1e-9)

	penalty, err := m.SafetyPenalty(s)
	require.NoError(t, err)
	sum := 0.0
	for _, p := range parts {
		sum += p
	}
	assert.Equal(t, sum, penalty)

	c, err := m.EdgeCost(42, s)
	require.NoError(t, err)
	assert.InDelta(t, 42+penalty, c, 1e-9)
}

func TestParseWeights(t *testing.T) {
	w, err := ParseWeights("1, 2,1,3,2")
	require.NoError(t, err)
	assert.Equal(t, DefaultWeights(), w)
	assert.Equal(t, "1,2,1,3,2", w.String())

	_, err = ParseWeights("1,2,3")
	assert.ErrorIs(t, err, ErrInvalidModel)
	_, err = ParseWeights("1,2,3,a,5")
	assert.ErrorIs(t, err, ErrInvalidModel)
}

func TestFunc(t *testing.T) {
	fn := DefaultModel().Func()
	e := &datastructure.Edge{ID: 7, U: 1, V: 2, Length: 10, Safety: datastructure.NewSafetyVector(9, 0, 0, 0, 0)}
	_, err := fn(e)
	assert.ErrorIs(t, err, ErrInvalidSafetyValue)
	assert.Contains(t, err.Error(), "edge 7")

	e.Safety = datastructure.SafetyVector{}
	c, err := fn(e)
	require.NoError(t, err)
	assert.Equal(t, 10.0, c)

	d, err := DistanceFunc(e)
	require.NoError(t, err)
	assert.Equal(t, 10.0, d)
}
