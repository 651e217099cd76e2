package service

import (
	"context"

	"github.com/lintang-b-s/saferoute/pkg/datastructure"
	"github.com/lintang-b-s/saferoute/pkg/session"
	"github.com/lintang-b-s/saferoute/pkg/snap"
)

type RoutingSession interface {
	Route(ctx context.Context, origin, destination session.QueryPoint) (session.RouteResult, error)
	NearestEdge(p datastructure.Coordinate) (snap.EdgeHit, error)
	NearestNode(p datastructure.Coordinate) (snap.NodeHit, error)
	Stats() session.GraphStats
	View(fn func(g *datastructure.Graph) error) error
}
