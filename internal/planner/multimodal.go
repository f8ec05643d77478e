package planner

import (
	"context"
	"errors"
	"fmt"
	"log"

	"golang.org/x/sync/errgroup"

	"multimodal-router/internal/geo"
	"multimodal-router/internal/itinerary"
)

// mixedPlan is one planner query combining transit with the rider's own bike.
type mixedPlan struct {
	prefix string
	used   []string
	modes  []itinerary.Mode
	n      int
}

var mixedPlans = []mixedPlan{
	{prefix: "multi-transit-bike", used: []string{"transit", "bicycle"},
		modes: []itinerary.Mode{itinerary.Transit, itinerary.Bicycle, itinerary.Walk}, n: 2},
	{prefix: "multi-bike-transit", used: []string{"bicycle", "transit"},
		modes: []itinerary.Mode{itinerary.Bicycle, itinerary.Transit, itinerary.Walk}, n: 1},
}

// MultimodalRoute is a plain itinerary mixing transit and cycling. It is not
// segmented or augmented.
type MultimodalRoute struct {
	ID          string    `json:"route_id"`
	Mode        string    `json:"mode"`
	ModesUsed   []string  `json:"modes_used"`
	Summary     string    `json:"summary"`
	DurationMin float64   `json:"duration_min"`
	Transfers   int       `json:"transfers"`
	Legs        []LegView `json:"legs"`
}

// PlanMultimodal asks the source for transit+bike and bike+transit
// itineraries. A failing query is logged and skipped; only when every query
// fails is an error returned. Walk-only itineraries are dropped.
func (s *Service) PlanMultimodal(ctx context.Context, from, to geo.Coordinate) ([]MultimodalRoute, error) {
	found := make([][]MultimodalRoute, len(mixedPlans))
	errs := make([]error, len(mixedPlans))

	var g errgroup.Group
	for i, p := range mixedPlans {
		g.Go(func() error {
			its, err := s.source.Plan(ctx, itinerary.PlanRequest{From: from, To: to, Modes: p.modes, NumItineraries: p.n})
			if err != nil {
				log.Printf("multimodal %s: %v", p.prefix, err)
				errs[i] = err
				return nil
			}
			for j, it := range its {
				if it.WalkOnly() {
					continue
				}
				found[i] = append(found[i], MultimodalRoute{
					ID:          fmt.Sprintf("%s-%d", p.prefix, j+1),
					Mode:        "multimodal",
					ModesUsed:   p.used,
					Summary:     itinerary.Summary(it),
					DurationMin: it.DurationMinutes(),
					Transfers:   it.Transfers,
					Legs:        legViews(it.Legs),
				})
			}
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, err := range errs {
		if err != nil {
			failed++
		}
	}
	if failed == len(mixedPlans) {
		return nil, fmt.Errorf("plan multimodal itineraries: %w", errors.Join(errs...))
	}

	routes := []MultimodalRoute{}
	for _, r := range found {
		routes = append(routes, r...)
	}
	return routes, nil
}
