package osmparser

import (
	"strings"

	"github.com/paulmach/osm"
)

// highway values that are never walkable, matched as substrings so "motor" covers
// motorway and motorway_link.
var rejectedHighway = []string{
	"abandoned",
	"bus_guideway",
	"construction",
	"cycleway",
	"motor",
	"planned",
	"platform",
	"proposed",
	"raceway",
	"razed",
}

// acceptWalkWay reports whether way belongs to the pedestrian network. The rules
// follow the osmnx "walk" network type.
func acceptWalkWay(way *osm.Way) bool {
	highway := way.Tags.Find("highway")
	if highway == "" {
		return false
	}
	for _, r := range rejectedHighway {
		if strings.Contains(highway, r) {
			return false
		}
	}
	if way.Tags.Find("area") == "yes" {
		return false
	}
	if way.Tags.Find("foot") == "no" {
		return false
	}
	if way.Tags.Find("access") == "private" || way.Tags.Find("service") == "private" {
		return false
	}
	return true
}
