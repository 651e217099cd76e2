package geo

import (
	"math"

	"github.com/golang/geo/s1"
	"github.com/lintang-b-s/saferoute/pkg/datastructure"
)

const (
	earthRadiusKM = 6371.0
	EarthRadiusM  = 6371007.0
)

func havFunction(angleRad float64) float64 {
	return (1 - math.Cos(angleRad)) / 2.0
}

func degreeToRadians(angle float64) float64 {
	return angle * (math.Pi / 180.0)
}

// CalculateHaversineDistance returns the great circle distance in meter.
func CalculateHaversineDistance(latOne, longOne, latTwo, longTwo float64) float64 {
	latOne = degreeToRadians(latOne)
	longOne = degreeToRadians(longOne)
	latTwo = degreeToRadians(latTwo)
	longTwo = degreeToRadians(longTwo)

	a := havFunction(latOne-latTwo) + math.Cos(latOne)*math.Cos(latTwo)*havFunction(longOne-longTwo)
	c := 2.0 * math.Asin(math.Sqrt(math.Min(1, a)))
	return EarthRadiusM * c
}

func HaversineDistance(a, b datastructure.Coordinate) float64 {
	return CalculateHaversineDistance(a.Lat, a.Lon, b.Lat, b.Lon)
}

// PolylineLength sums the haversine length of every segment of geom.
func PolylineLength(geom []datastructure.Coordinate) float64 {
	length := 0.0
	for i := 0; i+1 < len(geom); i++ {
		length += HaversineDistance(geom[i], geom[i+1])
	}
	return length
}

func AngleToMeters(a s1.Angle) float64 {
	return a.Radians() * EarthRadiusM
}

func MetersToAngle(m float64) s1.Angle {
	return s1.Angle(m / EarthRadiusM)
}
