package geo

import (
	"math"

	"github.com/golang/geo/s2"
	"github.com/lintang-b-s/saferoute/pkg/datastructure"
)

const (
	// VertexTolerance is the distance under which a projected point is treated as
	// the shape point it lies on.
	VertexTolerance = 1e-3 // 1 mm
)

func ToS2Point(c datastructure.Coordinate) s2.Point {
	return s2.PointFromLatLng(s2.LatLngFromDegrees(c.Lat, c.Lon))
}

func FromS2Point(p s2.Point) datastructure.Coordinate {
	ll := s2.LatLngFromPoint(p)
	return datastructure.NewCoordinate(ll.Lat.Degrees(), ll.Lng.Degrees())
}

// PointSegmentDistance returns the great circle distance in meter between p and the segment a-b.
func PointSegmentDistance(p, a, b datastructure.Coordinate) float64 {
	return AngleToMeters(s2.DistanceFromSegment(ToS2Point(p), ToS2Point(a), ToS2Point(b)))
}

// DistanceToPolyline returns the distance in meter between p and the closest point of geom.
func DistanceToPolyline(p datastructure.Coordinate, geom []datastructure.Coordinate) float64 {
	if len(geom) == 0 {
		return math.Inf(1)
	}
	if len(geom) == 1 {
		return HaversineDistance(p, geom[0])
	}
	x := ToS2Point(p)
	best := math.Inf(1)
	for i := 0; i+1 < len(geom); i++ {
		d := AngleToMeters(s2.DistanceFromSegment(x, ToS2Point(geom[i]), ToS2Point(geom[i+1])))
		if d < best {
			best = d
		}
	}
	return best
}

// PolylineProjection is the closest point of a polyline to a query point.
type PolylineProjection struct {
	Point    datastructure.Coordinate
	Segment  int     // the point lies on geom[Segment]-geom[Segment+1]
	Offset   float64 // meter along the polyline from geom[0] to Point
	Distance float64 // meter from the query point to Point
	Vertex   int     // index of the shape point Point coincides with, -1 if none
}

// ProjectOntoPolyline projects p onto geom. Zero length segments are skipped, ok is
// false when geom has no segment of positive length. Among equally close segments
// the first one wins.
func ProjectOntoPolyline(p datastructure.Coordinate, geom []datastructure.Coordinate) (PolylineProjection, bool) {
	x := ToS2Point(p)
	best := PolylineProjection{Segment: -1, Vertex: -1, Distance: math.Inf(1)}
	bestOffsetBase := 0.0

	cumulative := 0.0
	for i := 0; i+1 < len(geom); i++ {
		segLen := HaversineDistance(geom[i], geom[i+1])
		if segLen == 0 || geom[i].Equal(geom[i+1]) {
			continue
		}
		a, b := ToS2Point(geom[i]), ToS2Point(geom[i+1])
		d := AngleToMeters(s2.DistanceFromSegment(x, a, b))
		if d < best.Distance {
			best.Distance = d
			best.Segment = i
			best.Point = FromS2Point(s2.Project(x, a, b))
			bestOffsetBase = cumulative
		}
		cumulative += segLen
	}
	if best.Segment < 0 {
		return PolylineProjection{}, false
	}

	a, b := geom[best.Segment], geom[best.Segment+1]
	fromA := HaversineDistance(a, best.Point)
	segLen := HaversineDistance(a, b)
	switch {
	case fromA <= VertexTolerance:
		best.Vertex = best.Segment
		best.Point = a
		best.Offset = bestOffsetBase
	case segLen-fromA <= VertexTolerance || HaversineDistance(best.Point, b) <= VertexTolerance:
		best.Vertex = best.Segment + 1
		best.Point = b
		best.Offset = bestOffsetBase + segLen
	default:
		best.Offset = bestOffsetBase + math.Min(fromA, segLen)
	}
	return best, true
}

// SplitPolyline cuts geom at proj. The two parts share exactly one point, proj.Point,
// and no coordinate is duplicated when the cut falls on a shape point.
func SplitPolyline(geom []datastructure.Coordinate, proj PolylineProjection) (first, second []datastructure.Coordinate) {
	if proj.Vertex >= 0 {
		first = datastructure.CopyCoordinates(geom[:proj.Vertex+1])
		second = datastructure.CopyCoordinates(geom[proj.Vertex:])
		return first, second
	}
	first = make([]datastructure.Coordinate, 0, proj.Segment+2)
	first = append(first, geom[:proj.Segment+1]...)
	first = append(first, proj.Point)

	second = make([]datastructure.Coordinate, 0, len(geom)-proj.Segment)
	second = append(second, proj.Point)
	second = append(second, geom[proj.Segment+1:]...)
	return first, second
}

// PointAlong returns the point offset meter along geom from its first point.
// Offsets past the end return the last point.
func PointAlong(geom []datastructure.Coordinate, offset float64) datastructure.Coordinate {
	if len(geom) == 0 {
		return datastructure.Coordinate{}
	}
	if offset <= 0 {
		return geom[0]
	}
	walked := 0.0
	for i := 0; i+1 < len(geom); i++ {
		segLen := HaversineDistance(geom[i], geom[i+1])
		if segLen > 0 && walked+segLen >= offset {
			frac := (offset - walked) / segLen
			p := s2.Interpolate(frac, ToS2Point(geom[i]), ToS2Point(geom[i+1]))
			return FromS2Point(p)
		}
		walked += segLen
	}
	return geom[len(geom)-1]
}

// MidPoint returns the point halfway along geom.
func MidPoint(geom []datastructure.Coordinate) datastructure.Coordinate {
	return PointAlong(geom, PolylineLength(geom)/2)
}
