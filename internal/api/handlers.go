// Package api exposes the planner and the scooter gateway over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"multimodal-router/internal/geo"
	"multimodal-router/internal/itinerary"
	"multimodal-router/internal/mobility"
	"multimodal-router/internal/planner"
)

// primary mode name that maps to the planner default of TRANSIT,WALK
const publicTransport = "public_transport"

// Planner is the part of planner.Service the handlers use.
type Planner interface {
	Plan(ctx context.Context, req planner.Request) ([]planner.Route, error)
	PlanMultimodal(ctx context.Context, from, to geo.Coordinate) ([]planner.MultimodalRoute, error)
	DefaultModes() []mobility.Mode
}

// ErrorResponse is the JSON body of every non-2xx answer.
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// Handler serves the routing and scooter endpoints.
type Handler struct {
	planner  Planner
	scooters mobility.Gateway
	radius   float64
	timeout  time.Duration
}

// NewHandler creates a handler. scooters may be nil, in which case the nearby
// scooter endpoint answers 503.
func NewHandler(p Planner, scooters mobility.Gateway, radius float64, timeout time.Duration) *Handler {
	if radius <= 0 {
		radius = 300
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Handler{planner: p, scooters: scooters, radius: radius, timeout: timeout}
}

// SegmentedRequest is the body of POST /api/routes/segmented.
type SegmentedRequest struct {
	From             *geo.Coordinate `json:"from"`
	To               *geo.Coordinate `json:"to"`
	PrimaryMode      string          `json:"primary_mode,omitempty"`
	AlternativeModes []string        `json:"alternative_modes,omitempty"`
}

// SegmentedResponse is the JSON response structure for POST /api/routes/segmented
type SegmentedResponse struct {
	RequestID string           `json:"request_id"`
	Received  SegmentedRequest `json:"received"`
	Routes    []planner.Route  `json:"routes"`
}

// PlanSegmented handles POST /api/routes/segmented
func (h *Handler) PlanSegmented(w http.ResponseWriter, r *http.Request) {
	var body SegmentedRequest
	if !decodeEndpoints(w, r, &body) {
		return
	}
	received := map[string]interface{}{"from": body.From, "to": body.To}

	req := planner.Request{
		From:         *body.From,
		To:           *body.To,
		PrimaryModes: primaryModes(body.PrimaryMode),
	}
	if body.AlternativeModes != nil {
		req.AlternativeModes = make([]mobility.Mode, 0, len(body.AlternativeModes))
		for _, name := range body.AlternativeModes {
			m, ok := mobility.ParseMode(strings.ToLower(strings.TrimSpace(name)))
			if !ok {
				writeError(w, http.StatusBadRequest, fmt.Sprintf("Unknown alternative mode %q", name), received)
				return
			}
			req.AlternativeModes = append(req.AlternativeModes, m)
		}
	}

	routes, err := h.planner.Plan(r.Context(), req)
	if err != nil {
		if errors.Is(err, itinerary.ErrNoItineraries) {
			writeError(w, http.StatusNotFound, "No routes found", received)
			return
		}
		log.Printf("plan %s -> %s: %v", body.From, body.To, err)
		writeError(w, http.StatusBadGateway, "Routing service error", map[string]interface{}{
			"internal": err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, SegmentedResponse{
		RequestID: RequestID(r.Context()),
		Received:  body,
		Routes:    routes,
	})
}

// MultimodalResponse is the JSON response structure for POST /api/routes/multimodal
type MultimodalResponse struct {
	RequestID string                    `json:"request_id"`
	Received  SegmentedRequest          `json:"received"`
	Routes    []planner.MultimodalRoute `json:"routes"`
}

// PlanMultimodal handles POST /api/routes/multimodal
// Returns transit+bike and bike+transit itineraries without alternatives.
func (h *Handler) PlanMultimodal(w http.ResponseWriter, r *http.Request) {
	var body SegmentedRequest
	if !decodeEndpoints(w, r, &body) {
		return
	}
	routes, err := h.planner.PlanMultimodal(r.Context(), *body.From, *body.To)
	if err != nil {
		log.Printf("multimodal %s -> %s: %v", body.From, body.To, err)
		writeError(w, http.StatusBadGateway, "Routing service error", map[string]interface{}{
			"internal": err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, MultimodalResponse{
		RequestID: RequestID(r.Context()),
		Received:  SegmentedRequest{From: body.From, To: body.To},
		Routes:    routes,
	})
}

// NearbyScootersResponse is the JSON response structure for GET /api/escooters/nearby
type NearbyScootersResponse struct {
	Scooters []mobility.Candidate `json:"scooters"`
	Count    int                  `json:"count"`
	Query    NearbyQuery          `json:"query"`
}

type NearbyQuery struct {
	Lat    float64 `json:"lat"`
	Lon    float64 `json:"lon"`
	Radius float64 `json:"radius_m"`
}

// NearbyScooters handles GET /api/escooters/nearby
// Returns every scooter within radius, including unavailable ones.
func (h *Handler) NearbyScooters(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, errLat := strconv.ParseFloat(q.Get("lat"), 64)
	lon, errLon := strconv.ParseFloat(q.Get("lon"), 64)
	c := geo.Coordinate{Lat: lat, Lon: lon}
	if errLat != nil || errLon != nil || c.Validate() != nil {
		writeError(w, http.StatusBadRequest, "Invalid or missing lat/lon parameters", nil)
		return
	}
	radius := h.radius
	if v := q.Get("radius"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 {
			writeError(w, http.StatusBadRequest, "Invalid radius parameter", nil)
			return
		}
		radius = f
	}

	if h.scooters == nil {
		writeError(w, http.StatusServiceUnavailable, "E-Scooter API not available", nil)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	scooters, err := h.scooters.FindNearby(ctx, c, radius, mobility.Filter{})
	if err != nil {
		log.Printf("nearby scooters at %s: %v", c, err)
		writeError(w, http.StatusServiceUnavailable, "E-Scooter API not available", nil)
		return
	}
	if scooters == nil {
		scooters = []mobility.Candidate{}
	}

	writeJSON(w, http.StatusOK, NearbyScootersResponse{
		Scooters: scooters,
		Count:    len(scooters),
		Query:    NearbyQuery{Lat: lat, Lon: lon, Radius: radius},
	})
}

// Modes handles GET /api/modes
func (h *Handler) Modes(w http.ResponseWriter, r *http.Request) {
	modes := []string{publicTransport}
	for _, m := range h.planner.DefaultModes() {
		modes = append(modes, string(m))
	}
	writeJSON(w, http.StatusOK, map[string][]string{"modes": modes})
}

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// decodeEndpoints reads the body and checks both coordinates, answering 400
// itself when they are missing or invalid.
func decodeEndpoints(w http.ResponseWriter, r *http.Request, body *SegmentedRequest) bool {
	if err := json.NewDecoder(r.Body).Decode(body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body", nil)
		return false
	}
	received := map[string]interface{}{"from": body.From, "to": body.To}
	if body.From == nil || body.To == nil {
		writeError(w, http.StatusBadRequest, `Both "from" and "to" are required.`, received)
		return false
	}
	if err := body.From.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid from: %v", err), received)
		return false
	}
	if err := body.To.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid to: %v", err), received)
		return false
	}
	return true
}

// primaryModes maps the request's primary mode onto planner modes. Empty and
// public_transport both leave the choice to the planner.
func primaryModes(s string) []itinerary.Mode {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, publicTransport) {
		return nil
	}
	return itinerary.ParseModes(s)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string, details map[string]interface{}) {
	writeJSON(w, status, ErrorResponse{Error: msg, Details: details})
}
