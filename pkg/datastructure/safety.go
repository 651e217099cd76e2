package datastructure

import "fmt"

// SafetyFactor indexes one of the five factors of a SafetyVector.
type SafetyFactor int

const (
	Illumination SafetyFactor = iota
	Cameras
	Containers
	Theft
	Pedestrians

	NumSafetyFactors = 5
)

const (
	// SafetyUnknown marks a factor that has not been measured.
	SafetyUnknown uint8 = 0
	SafetyMin     uint8 = 1
	SafetyMax     uint8 = 5
)

var safetyFactorNames = [NumSafetyFactors]string{
	"illumination",
	"cameras",
	"containers",
	"theft",
	"pedestrians",
}

func (f SafetyFactor) String() string {
	if f < 0 || int(f) >= NumSafetyFactors {
		return fmt.Sprintf("factor(%d)", int(f))
	}
	return safetyFactorNames[f]
}

// HigherIsSafer is true for illumination, cameras and pedestrians. For containers
// and theft a higher value means a riskier street.
func (f SafetyFactor) HigherIsSafer() bool {
	switch f {
	case Illumination, Cameras, Pedestrians:
		return true
	default:
		return false
	}
}

func SafetyFactors() []SafetyFactor {
	return []SafetyFactor{Illumination, Cameras, Containers, Theft, Pedestrians}
}

// SafetyVector holds the five factors of a street segment, in SafetyFactor order.
// 0 is the unknown sentinel, 1..5 a measured value.
type SafetyVector [NumSafetyFactors]uint8

func NewSafetyVector(illumination, cameras, containers, theft, pedestrians uint8) SafetyVector {
	return SafetyVector{illumination, cameras, containers, theft, pedestrians}
}

func (s SafetyVector) Get(f SafetyFactor) uint8 {
	return s[f]
}

func (s SafetyVector) IsUnknown() bool {
	for _, v := range s {
		if v != SafetyUnknown {
			return false
		}
	}
	return true
}

// InRange reports whether every factor is within [0,5].
func (s SafetyVector) InRange() bool {
	for _, v := range s {
		if v > SafetyMax {
			return false
		}
	}
	return true
}

// Map returns the factors keyed by name, handy for tooltips and json.
func (s SafetyVector) Map() map[string]uint8 {
	m := make(map[string]uint8, NumSafetyFactors)
	for _, f := range SafetyFactors() {
		m[f.String()] = s[f]
	}
	return m
}
