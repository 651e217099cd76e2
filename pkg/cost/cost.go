package cost

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/lintang-b-s/saferoute/pkg/datastructure"
)

var (
	ErrInvalidSafetyValue = errors.New("invalid safety value")
	ErrInvalidLength      = errors.New("invalid edge length")
	ErrInvalidModel       = errors.New("invalid cost model")
)

// SafetyValueError reports the factor that failed validation.
type SafetyValueError struct {
	Factor datastructure.SafetyFactor
	Value  uint8
	Reason string
}

func (e *SafetyValueError) Error() string {
	return fmt.Sprintf("%s: %s=%d %s", ErrInvalidSafetyValue, e.Factor, e.Value, e.Reason)
}

func (e *SafetyValueError) Unwrap() error {
	return ErrInvalidSafetyValue
}

// UnknownPolicy selects how the 0 sentinel is treated.
type UnknownPolicy int

const (
	// ExcludeUnknown drops unknown factors from the sum: they neither help nor hurt.
	ExcludeUnknown UnknownPolicy = iota
	// RequireMeasured only accepts values in 1..5, an unknown factor is an error.
	RequireMeasured
)

func (p UnknownPolicy) String() string {
	switch p {
	case ExcludeUnknown:
		return "exclude"
	case RequireMeasured:
		return "require"
	default:
		return fmt.Sprintf("UnknownPolicy(%d)", int(p))
	}
}

func ParseUnknownPolicy(s string) (UnknownPolicy, error) {
	switch s {
	case "exclude", "":
		return ExcludeUnknown, nil
	case "require":
		return RequireMeasured, nil
	default:
		return 0, fmt.Errorf("%w: unknown policy %q", ErrInvalidModel, s)
	}
}

type Weights struct {
	Illumination float64 `json:"illumination"`
	Cameras      float64 `json:"cameras"`
	Containers   float64 `json:"containers"`
	Theft        float64 `json:"theft"`
	Pedestrians  float64 `json:"pedestrians"`
}

func DefaultWeights() Weights {
	return Weights{
		Illumination: 1,
		Cameras:      2,
		Containers:   1,
		Theft:        3,
		Pedestrians:  2,
	}
}

func (w Weights) Get(f datastructure.SafetyFactor) float64 {
	switch f {
	case datastructure.Illumination:
		return w.Illumination
	case datastructure.Cameras:
		return w.Cameras
	case datastructure.Containers:
		return w.Containers
	case datastructure.Theft:
		return w.Theft
	case datastructure.Pedestrians:
		return w.Pedestrians
	}
	return 0
}

func (w Weights) String() string {
	return fmt.Sprintf("%g,%g,%g,%g,%g", w.Illumination, w.Cameras, w.Containers, w.Theft, w.Pedestrians)
}

// ParseWeights parses "illumination,cameras,containers,theft,pedestrians".
func ParseWeights(s string) (Weights, error) {
	parts := strings.Split(s, ",")
	if len(parts) != datastructure.NumSafetyFactors {
		return Weights{}, fmt.Errorf("%w: expected %d weights, got %d", ErrInvalidModel, datastructure.NumSafetyFactors, len(parts))
	}
	var vals [datastructure.NumSafetyFactors]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return Weights{}, fmt.Errorf("%w: weight %d: %v", ErrInvalidModel, i, err)
		}
		vals[i] = v
	}
	return Weights{vals[0], vals[1], vals[2], vals[3], vals[4]}, nil
}

const (
	DefaultScale = 100.0 // meter per risk unit
)

// Model turns the length and safety vector of an edge into a traversal cost:
//
//	cost = length + Scale * sum(weight_i * risk_i)
//
// where risk_i = 1 - v/5 for factors where a higher value is safer and v/5 for the
// others. Unknown factors are skipped under ExcludeUnknown.
type Model struct {
	Weights Weights
	Scale   float64
	Unknown UnknownPolicy
}

func DefaultModel() Model {
	return Model{
		Weights: DefaultWeights(),
		Scale:   DefaultScale,
		Unknown: ExcludeUnknown,
	}
}

func NewModel(w Weights, scale float64, unknown UnknownPolicy) (Model, error) {
	m := Model{Weights: w, Scale: scale, Unknown: unknown}
	return m, m.Validate()
}

func (m Model) Validate() error {
	for _, f := range datastructure.SafetyFactors() {
		w := m.Weights.Get(f)
		if math.IsNaN(w) || math.IsInf(w, 0) || w < 0 {
			return fmt.Errorf("%w: weight %s=%v", ErrInvalidModel, f, w)
		}
	}
	if math.IsNaN(m.Scale) || math.IsInf(m.Scale, 0) || m.Scale < 0 {
		return fmt.Errorf("%w: scale %v", ErrInvalidModel, m.Scale)
	}
	if m.Unknown != ExcludeUnknown && m.Unknown != RequireMeasured {
		return fmt.Errorf("%w: %s", ErrInvalidModel, m.Unknown)
	}
	return nil
}

func normalizedRisk(f datastructure.SafetyFactor, v uint8) float64 {
	r := float64(v) / float64(datastructure.SafetyMax)
	if f.HigherIsSafer() {
		return 1 - r
	}
	return r
}

// Breakdown returns the scaled risk every factor adds to the cost, 0 for skipped factors.
func (m Model) Breakdown(safety datastructure.SafetyVector) ([datastructure.NumSafetyFactors]float64, error) {
	var out [datastructure.NumSafetyFactors]float64
	for _, f := range datastructure.SafetyFactors() {
		v := safety[f]
		if v > datastructure.SafetyMax {
			return out, &SafetyValueError{Factor: f, Value: v, Reason: "exceeds 5"}
		}
		if v == datastructure.SafetyUnknown {
			if m.Unknown == RequireMeasured {
				return out, &SafetyValueError{Factor: f, Value: v, Reason: "is unknown but measured values are required"}
			}
			continue
		}
		out[f] = m.Scale * m.Weights.Get(f) * normalizedRisk(f, v)
	}
	return out, nil
}

// SafetyPenalty is the safety part of the cost, i.e. EdgeCost minus the length.
func (m Model) SafetyPenalty(safety datastructure.SafetyVector) (float64, error) {
	parts, err := m.Breakdown(safety)
	if err != nil {
		return 0, err
	}
	sum := 0.0
	for _, p := range parts {
		sum += p
	}
	return sum, nil
}

// EdgeCost is pure and returns a finite non negative cost for every valid input.
func (m Model) EdgeCost(length float64, safety datastructure.SafetyVector) (float64, error) {
	if math.IsNaN(length) || math.IsInf(length, 0) || length < 0 {
		return 0, fmt.Errorf("%w: %v", ErrInvalidLength, length)
	}
	penalty, err := m.SafetyPenalty(safety)
	if err != nil {
		return 0, err
	}
	return length + penalty, nil
}

// Func is the edge weight function consumed by the path solver.
type Func func(e *datastructure.Edge) (float64, error)

func (m Model) Func() Func {
	return func(e *datastructure.Edge) (float64, error) {
		c, err := m.EdgeCost(e.Length, e.Safety)
		if err != nil {
			return 0, fmt.Errorf("edge %d (%d-%d): %w", e.ID, e.U, e.V, err)
		}
		return c, nil
	}
}

// DistanceFunc ignores safety entirely.
func DistanceFunc(e *datastructure.Edge) (float64, error) {
	if math.IsNaN(e.Length) || math.IsInf(e.Length, 0) || e.Length < 0 {
		return 0, fmt.Errorf("edge %d: %w: %v", e.ID, ErrInvalidLength, e.Length)
	}
	return e.Length, nil
}
