// Package planner serves one journey request: it asks the itinerary source for
// candidate itineraries, augments each with shared-mobility alternatives and
// publishes the results.
package planner

import (
	"context"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"multimodal-router/internal/augment"
	"multimodal-router/internal/geo"
	"multimodal-router/internal/gtfs"
	"multimodal-router/internal/itinerary"
	"multimodal-router/internal/mobility"
	"multimodal-router/internal/segment"
)

const (
	// margin around the itineraries when loading GTFS stations
	stationAreaPadding = 200.0
	// a transfer within this distance of a GTFS station is a major station
	stationMatchRadius = 50.0
)

// StationStore supplies GTFS parent stations for an area.
type StationStore interface {
	StationsIn(ctx context.Context, b geo.Bounds) ([]gtfs.Station, error)
}

// RoutePublisher receives every successfully augmented route.
type RoutePublisher interface {
	PublishRoute(routeID string, route any) error
}

type Metrics interface {
	ObserveAugmentation(d time.Duration, transfers int, err error)
	ObserveStationLoad(err error)
}

// Request is one journey query.
type Request struct {
	From geo.Coordinate
	To   geo.Coordinate
	// empty means TRANSIT,WALK
	PrimaryModes []itinerary.Mode
	// nil means the service defaults, an empty slice means none
	AlternativeModes []mobility.Mode
}

// LegView is a leg with its duration in minutes, as returned to clients.
type LegView struct {
	itinerary.Leg
	DurationMin float64 `json:"duration_min"`
}

// Route is one augmented itinerary.
type Route struct {
	ID               string                  `json:"route_id"`
	Summary          string                  `json:"summary"`
	TotalDurationMin float64                 `json:"total_duration_min"`
	TotalTransfers   int                     `json:"total_transfers"`
	TotalSegments    int                     `json:"total_segments"`
	TransferPoints   []segment.TransferPoint `json:"transfer_points"`
	Segments         []augment.RouteSegment  `json:"segments"`
	Legs             []LegView               `json:"original_legs"`
	Error            string                  `json:"error,omitempty"`
}

type Options struct {
	MaxItineraries int
	StationTerms   []string
	DefaultModes   []mobility.Mode
	Stations       StationStore
	Publisher      RoutePublisher
	Metrics        Metrics
}

type Service struct {
	source       itinerary.Source
	augmenter    *augment.Augmenter
	terms        segment.TermMatcher
	maxIts       int
	defaultModes []mobility.Mode
	stations     StationStore
	pub          RoutePublisher
	metrics      Metrics
}

func NewService(source itinerary.Source, augmenter *augment.Augmenter, opts Options) *Service {
	terms := opts.StationTerms
	if len(terms) == 0 {
		terms = segment.DefaultStationTerms
	}
	maxIts := opts.MaxItineraries
	if maxIts <= 0 {
		maxIts = 3
	}
	return &Service{
		source:       source,
		augmenter:    augmenter,
		terms:        segment.NewTermMatcher(terms),
		maxIts:       maxIts,
		defaultModes: opts.DefaultModes,
		stations:     opts.Stations,
		pub:          opts.Publisher,
		metrics:      opts.Metrics,
	}
}

// DefaultModes returns the alternative modes used when a request names none.
func (s *Service) DefaultModes() []mobility.Mode {
	return append([]mobility.Mode(nil), s.defaultModes...)
}

// Plan returns one route per non walk-only itinerary, in source order. It
// fails only when the source fails or finds nothing; a single itinerary that
// cannot be augmented yields a route with Error set.
func (s *Service) Plan(ctx context.Context, req Request) ([]Route, error) {
	its, err := s.source.Plan(ctx, itinerary.PlanRequest{
		From:           req.From,
		To:             req.To,
		Modes:          req.PrimaryModes,
		NumItineraries: s.maxIts,
	})
	if err != nil {
		return nil, fmt.Errorf("plan itineraries: %w", err)
	}
	if len(its) == 0 {
		return nil, itinerary.ErrNoItineraries
	}

	var kept []itinerary.Itinerary
	for _, it := range its {
		if it.WalkOnly() {
			continue
		}
		kept = append(kept, it)
	}
	if len(kept) == 0 {
		return []Route{}, nil
	}

	modes := req.AlternativeModes
	if modes == nil {
		modes = s.defaultModes
	}
	opts := augment.Options{Modes: modes, Matcher: s.matcher(ctx, kept)}

	routes := make([]Route, len(kept))
	var g errgroup.Group
	for i, it := range kept {
		g.Go(func() error {
			routes[i] = s.augment(ctx, fmt.Sprintf("segmented-%d", i+1), it, opts)
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range routes {
		if r.Error != "" || s.pub == nil {
			continue
		}
		if err := s.pub.PublishRoute(r.ID, r); err != nil {
			log.Printf("publish route %s: %v", r.ID, err)
		}
	}
	return routes, nil
}

func (s *Service) augment(ctx context.Context, id string, it itinerary.Itinerary, opts augment.Options) Route {
	route := Route{
		ID:               id,
		Summary:          itinerary.Summary(it),
		TotalDurationMin: it.DurationMinutes(),
		Legs:             legViews(it.Legs),
	}

	start := time.Now()
	res, err := s.augmenter.Augment(ctx, it.Legs, opts)
	if s.metrics != nil {
		transfers := 0
		if res != nil {
			transfers = res.TotalTransfers
		}
		s.metrics.ObserveAugmentation(time.Since(start), transfers, err)
	}
	if err != nil {
		log.Printf("augment %s: %v", id, err)
		route.Error = err.Error()
		return route
	}

	route.TotalTransfers = res.TotalTransfers
	route.TotalSegments = res.TotalSegments
	route.TransferPoints = res.TransferPoints
	route.Segments = res.Segments
	return route
}

// matcher combines the name terms with GTFS stations around the itineraries.
// Station lookup failures fall back to the terms alone.
func (s *Service) matcher(ctx context.Context, its []itinerary.Itinerary) segment.StationMatcher {
	if s.stations == nil {
		return s.terms
	}
	var pts []geo.Coordinate
	for _, it := range its {
		for _, l := range it.Legs {
			if l.From.Located {
				pts = append(pts, l.From.Coordinate)
			}
			if l.To.Located {
				pts = append(pts, l.To.Coordinate)
			}
		}
	}
	b, ok := geo.BoundsOf(pts...)
	if !ok {
		return s.terms
	}

	stations, err := s.stations.StationsIn(ctx, b.Pad(stationAreaPadding))
	if s.metrics != nil {
		s.metrics.ObserveStationLoad(err)
	}
	if err != nil {
		log.Printf("station lookup failed, using name terms only: %v", err)
		return s.terms
	}
	return segment.AnyMatcher{s.terms, segment.NearStations{Stations: gtfs.Coordinates(stations), Radius: stationMatchRadius}}
}

func legViews(legs []itinerary.Leg) []LegView {
	out := make([]LegView, len(legs))
	for i, l := range legs {
		out[i] = LegView{Leg: l, DurationMin: l.DurationMinutes()}
	}
	return out
}
