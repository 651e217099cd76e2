package rest

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	enTranslations "github.com/go-playground/validator/v10/translations/en"
	"github.com/lintang-b-s/saferoute/pkg/datastructure"
	"github.com/lintang-b-s/saferoute/pkg/server/rest/service"
	"github.com/lintang-b-s/saferoute/pkg/session"
	"github.com/lintang-b-s/saferoute/pkg/util"
)

type RoutingService interface {
	SafestRoute(ctx context.Context, origin, destination session.QueryPoint, simplify float64) (session.RouteResult, error)
	NearestEdge(ctx context.Context, lat, lon float64) (service.NearestEdgeResult, error)
	Stats(ctx context.Context) session.GraphStats
}

type RoutingHandler struct {
	svc RoutingService
}

func RoutingRouter(r *chi.Mux, svc RoutingService) {
	handler := &RoutingHandler{svc}

	r.Group(func(r chi.Router) {
		r.Route("/api/routes", func(r chi.Router) {
			r.Post("/safest", handler.SafestRoute)
		})
		r.Post("/api/nearest-edge", handler.NearestEdge)
		r.Get("/api/graph/stats", handler.GraphStats)
	})
}

func validateRequest(data interface{}) ([]error, error) {
	validate := validator.New()
	if err := validate.Struct(data); err != nil {
		english := en.New()
		uni := ut.New(english, english)
		trans, _ := uni.GetTranslator("en")
		_ = enTranslations.RegisterDefaultTranslations(validate, trans)
		return translateError(err, trans), err
	}
	return nil, nil
}

// Location is a route endpoint: either lat and lon, or the id of a graph node.
type Location struct {
	Lat  *float64 `json:"lat,omitempty" validate:"omitempty,gte=-90,lte=90"`
	Lon  *float64 `json:"lon,omitempty" validate:"omitempty,gte=-180,lte=180"`
	Node *int64   `json:"node,omitempty" validate:"omitempty,gte=0"`
}

func (l Location) check(name string) error {
	hasCoord := l.Lat != nil || l.Lon != nil
	switch {
	case hasCoord && l.Node != nil:
		return errors.New(name + ": give either lat and lon or node, not both")
	case l.Node != nil:
		return nil
	case l.Lat == nil || l.Lon == nil:
		return errors.New(name + ": lat and lon are required")
	}
	return nil
}

func (l Location) queryPoint() session.QueryPoint {
	if l.Node != nil {
		return session.AtNode(datastructure.NodeID(*l.Node))
	}
	return session.AtCoordinate(*l.Lat, *l.Lon)
}

type SafestRouteRequest struct {
	Origin      Location `json:"origin"`
	Destination Location `json:"destination"`
	// Simplify is the Ramer Douglas Peucker threshold in meter applied to the
	// returned path, 0 keeps every shape point.
	Simplify float64 `json:"simplify" validate:"gte=0,lte=1000"`
}

func (s *SafestRouteRequest) Bind(r *http.Request) error {
	if err := s.Origin.check("origin"); err != nil {
		return err
	}
	return s.Destination.check("destination")
}

type SegmentResponse struct {
	Edge      datastructure.EdgeID `json:"edge"`
	From      datastructure.NodeID `json:"from"`
	To        datastructure.NodeID `json:"to"`
	Length    float64              `json:"length"`
	Cost      float64              `json:"cost"`
	SafetySet bool                 `json:"safety_set"`
	Safety    map[string]uint8     `json:"safety"`
	Breakdown map[string]float64   `json:"breakdown"`
}

type SafestRouteResponse struct {
	Path        string                 `json:"path"`
	Distance    float64                `json:"distance"`
	Cost        float64                `json:"cost"`
	Nodes       []datastructure.NodeID `json:"nodes"`
	Edges       []datastructure.EdgeID `json:"edges"`
	Origin      session.Endpoint       `json:"origin"`
	Destination session.Endpoint       `json:"destination"`
	Segments    []SegmentResponse      `json:"segments"`
}

func RenderSafestRouteResponse(res session.RouteResult) *SafestRouteResponse {
	segments := make([]SegmentResponse, 0, len(res.Segments))
	for _, s := range res.Segments {
		segments = append(segments, SegmentResponse{
			Edge:      s.Edge,
			From:      s.From,
			To:        s.To,
			Length:    s.Length,
			Cost:      s.Cost,
			SafetySet: s.SafetySet,
			Safety:    s.Safety,
			Breakdown: s.Breakdown,
		})
	}
	return &SafestRouteResponse{
		Path:        res.Polyline,
		Distance:    util.RoundFloat(res.Route.Distance, 2),
		Cost:        util.RoundFloat(res.Route.Cost, 2),
		Nodes:       res.Route.Nodes,
		Edges:       res.Route.Edges,
		Origin:      res.Origin,
		Destination: res.Destination,
		Segments:    segments,
	}
}

// SafestRoute answers POST /api/routes/safest. With ?format=geojson the route is
// returned as a feature collection instead of the polyline response.
func (h *RoutingHandler) SafestRoute(w http.ResponseWriter, r *http.Request) {
	data := &SafestRouteRequest{}
	if err := render.Bind(r, data); err != nil {
		render.Render(w, r, ErrInvalidRequest(err))
		return
	}
	if vv, err := validateRequest(*data); err != nil {
		render.Render(w, r, ErrValidation(err, vv))
		return
	}

	res, err := h.svc.SafestRoute(r.Context(), data.Origin.queryPoint(), data.Destination.queryPoint(), data.Simplify)
	if err != nil {
		render.Render(w, r, ErrFromService(err))
		return
	}

	render.Status(r, http.StatusOK)
	if r.URL.Query().Get("format") == "geojson" {
		render.JSON(w, r, session.ToGeoJSON(res))
		return
	}
	render.JSON(w, r, RenderSafestRouteResponse(res))
}

type NearestEdgeRequest struct {
	Lat *float64 `json:"lat" validate:"required,gte=-90,lte=90"`
	Lon *float64 `json:"lon" validate:"required,gte=-180,lte=180"`
}

func (s *NearestEdgeRequest) Bind(r *http.Request) error {
	if s.Lat == nil || s.Lon == nil {
		return errors.New("lat and lon are required")
	}
	return nil
}

type NearestEdgeResponse struct {
	Edge        datastructure.EdgeID       `json:"edge"`
	U           datastructure.NodeID       `json:"u"`
	V           datastructure.NodeID       `json:"v"`
	Distance    float64                    `json:"distance"`
	Length      float64                    `json:"length"`
	Geometry    []datastructure.Coordinate `json:"geometry"`
	SafetySet   bool                       `json:"safety_set"`
	Safety      map[string]uint8           `json:"safety"`
	NearestNode datastructure.NodeID       `json:"nearest_node"`
	NodeDist    float64                    `json:"nearest_node_distance"`
}

func (h *RoutingHandler) NearestEdge(w http.ResponseWriter, r *http.Request) {
	data := &NearestEdgeRequest{}
	if err := render.Bind(r, data); err != nil {
		render.Render(w, r, ErrInvalidRequest(err))
		return
	}
	if vv, err := validateRequest(*data); err != nil {
		render.Render(w, r, ErrValidation(err, vv))
		return
	}

	res, err := h.svc.NearestEdge(r.Context(), *data.Lat, *data.Lon)
	if err != nil {
		render.Render(w, r, ErrFromService(err))
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, &NearestEdgeResponse{
		Edge:        res.Edge.EdgeID,
		U:           res.Edge.U,
		V:           res.Edge.V,
		Distance:    res.Edge.Distance,
		Length:      res.Length,
		Geometry:    res.Edge.Geometry,
		SafetySet:   res.SafetySet,
		Safety:      res.Safety,
		NearestNode: res.Node.NodeID,
		NodeDist:    res.Node.Distance,
	})
}

func (h *RoutingHandler) GraphStats(w http.ResponseWriter, r *http.Request) {
	render.Status(r, http.StatusOK)
	render.JSON(w, r, h.svc.Stats(r.Context()))
}
