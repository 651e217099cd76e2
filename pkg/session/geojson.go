package session

import (
	"github.com/lintang-b-s/saferoute/pkg/datastructure"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

func toLineString(coords []datastructure.Coordinate) orb.LineString {
	ls := make(orb.LineString, len(coords))
	for i, c := range coords {
		ls[i] = orb.Point{c.Lon, c.Lat}
	}
	return ls
}

func endpointFeature(role string, ep Endpoint) *geojson.Feature {
	f := geojson.NewFeature(orb.Point{ep.Coordinate.Lon, ep.Coordinate.Lat})
	f.Properties["role"] = role
	f.Properties["node"] = int64(ep.Node)
	f.Properties["inserted"] = ep.Inserted
	f.Properties["snap_distance"] = ep.Distance
	return f
}

// ToGeoJSON renders a route as a feature collection: an origin and a destination
// marker, then one line per traversed street carrying its length, cost and safety
// factors as properties.
func ToGeoJSON(res RouteResult) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	fc.Append(endpointFeature("origin", res.Origin))
	fc.Append(endpointFeature("destination", res.Destination))

	for i, seg := range res.Segments {
		f := geojson.NewFeature(toLineString(seg.Geometry))
		f.Properties["index"] = i
		f.Properties["edge"] = int64(seg.Edge)
		f.Properties["from"] = int64(seg.From)
		f.Properties["to"] = int64(seg.To)
		f.Properties["length"] = seg.Length
		f.Properties["cost"] = seg.Cost
		f.Properties["safety_set"] = seg.SafetySet
		for name, v := range seg.Safety {
			f.Properties[name] = v
		}
		fc.Append(f)
	}
	return fc
}
