package service

import (
	"context"

	"github.com/lintang-b-s/saferoute/pkg/datastructure"
	"github.com/lintang-b-s/saferoute/pkg/server"
	"github.com/lintang-b-s/saferoute/pkg/session"
	"github.com/lintang-b-s/saferoute/pkg/snap"
)

type RoutingService struct {
	sess RoutingSession
}

func NewRoutingService(sess RoutingSession) *RoutingService {
	return &RoutingService{sess: sess}
}

// SafestRoute returns the cheapest route between origin and destination. When
// simplify is positive the returned geometry and polyline are simplified with
// that threshold in meter; segments keep their full geometry.
func (uc *RoutingService) SafestRoute(ctx context.Context, origin, destination session.QueryPoint,
	simplify float64) (session.RouteResult, error) {
	res, err := uc.sess.Route(ctx, origin, destination)
	if err != nil {
		return session.RouteResult{}, server.FromDomain(err)
	}
	if simplify > 0 {
		res.Geometry = res.Simplify(simplify)
		res.Polyline = datastructure.CreatePolyline(res.Geometry)
	}
	return res, nil
}

type NearestEdgeResult struct {
	Edge      snap.EdgeHit
	Length    float64
	Safety    map[string]uint8
	SafetySet bool
	Node      snap.NodeHit // closest endpoint of the graph, not only of Edge
}

func (uc *RoutingService) NearestEdge(ctx context.Context, lat, lon float64) (NearestEdgeResult, error) {
	if err := ctx.Err(); err != nil {
		return NearestEdgeResult{}, server.FromDomain(err)
	}
	p := datastructure.NewCoordinate(lat, lon)
	hit, err := uc.sess.NearestEdge(p)
	if err != nil {
		return NearestEdgeResult{}, server.WrapErrorf(err, server.ErrNotFound,
			"the location (%v, %v) is not covered by the street graph", lat, lon)
	}
	node, err := uc.sess.NearestNode(p)
	if err != nil {
		return NearestEdgeResult{}, server.FromDomain(err)
	}

	res := NearestEdgeResult{Edge: hit, Node: node}
	err = uc.sess.View(func(g *datastructure.Graph) error {
		e, err := g.Edge(hit.EdgeID)
		if err != nil {
			return err
		}
		res.Length = e.Length
		res.Safety = e.Safety.Map()
		res.SafetySet = e.SafetySet
		return nil
	})
	if err != nil {
		return NearestEdgeResult{}, server.WrapErrorf(err, server.ErrInternalServerError, "internal server error")
	}
	return res, nil
}

func (uc *RoutingService) Stats(ctx context.Context) session.GraphStats {
	return uc.sess.Stats()
}
