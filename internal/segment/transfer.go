// Package segment splits a normalized itinerary into transfer points and the
// route segments between them.
package segment

import (
	"fmt"
	"strings"
	"time"

	"multimodal-router/internal/geo"
	"multimodal-router/internal/itinerary"
)

// DefaultStationTerms are the name fragments treated as major stations.
var DefaultStationTerms = []string{"bahnhof", "station"}

// TransferPoint is a named coordinate marking a boundary between segments.
type TransferPoint struct {
	Name       string         `json:"name"`
	Coordinate geo.Coordinate `json:"coordinate"`
	Arrival    *time.Time     `json:"arrival_time,omitempty"`
	Departure  *time.Time     `json:"departure_time,omitempty"`
	IsStation  bool           `json:"is_station"`
	// false when the planner gave no coordinates; Coordinate is then zero
	Located bool `json:"-"`
	// index of the leg ending here; -1 for the itinerary origin
	LegIndex int `json:"-"`
}

// StationMatcher classifies a leg destination as a major station.
type StationMatcher interface {
	MajorStation(name string, c geo.Coordinate) bool
}

// TermMatcher matches names containing any term, case-insensitively.
// It is a heuristic: station names in languages not covered by the terms are missed.
type TermMatcher struct {
	terms []string
}

// NewTermMatcher lowercases and de-blanks terms.
func NewTermMatcher(terms []string) TermMatcher {
	m := TermMatcher{}
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			m.terms = append(m.terms, t)
		}
	}
	return m
}

func (m TermMatcher) MajorStation(name string, _ geo.Coordinate) bool {
	name = strings.ToLower(name)
	for _, t := range m.terms {
		if strings.Contains(name, t) {
			return true
		}
	}
	return false
}

// AnyMatcher matches when any of its matchers does.
type AnyMatcher []StationMatcher

func (a AnyMatcher) MajorStation(name string, c geo.Coordinate) bool {
	for _, m := range a {
		if m != nil && m.MajorStation(name, c) {
			return true
		}
	}
	return false
}

// NearStations matches coordinates within Radius meters of a known station.
type NearStations struct {
	Stations []geo.Coordinate
	Radius   float64
}

func (n NearStations) MajorStation(_ string, c geo.Coordinate) bool {
	for _, s := range n.Stations {
		if geo.Haversine(s, c) <= n.Radius {
			return true
		}
	}
	return false
}

// DetectTransferPoints walks legs once and returns the origin, every genuine
// transfer and the destination. The result always has at least two points for
// a non-empty input and is nil for an empty one. A boundary touching a
// malformed leg is never a transfer.
func DetectTransferPoints(legs []itinerary.Leg, matcher StationMatcher) []TransferPoint {
	if len(legs) == 0 {
		return nil
	}
	if matcher == nil {
		matcher = NewTermMatcher(DefaultStationTerms)
	}

	first := legs[0]
	points := []TransferPoint{{
		Name:       nameOr(first.From.Name, "Start"),
		Coordinate: first.From.Coordinate,
		Departure:  first.Start,
		IsStation:  first.Mode != itinerary.Walk,
		Located:    first.From.Located,
		LegIndex:   -1,
	}}

	for i := 0; i < len(legs)-1; i++ {
		leg, next := legs[i], legs[i+1]
		if leg.Malformed() || next.Malformed() {
			continue
		}
		major := matcher.MajorStation(leg.To.Name, leg.To.Coordinate)
		if leg.Mode == next.Mode && leg.SameRoute(next) && !major {
			continue
		}
		at := leg.End
		if at == nil {
			at = next.Start
		}
		points = append(points, TransferPoint{
			Name:       nameOr(leg.To.Name, fmt.Sprintf("Transfer %d", i+1)),
			Coordinate: leg.To.Coordinate,
			Arrival:    at,
			Departure:  at,
			IsStation:  leg.Mode != itinerary.Walk || major,
			Located:    true,
			LegIndex:   i,
		})
	}

	last := legs[len(legs)-1]
	points = append(points, TransferPoint{
		Name:       nameOr(last.To.Name, "Destination"),
		Coordinate: last.To.Coordinate,
		Arrival:    last.End,
		IsStation:  false,
		Located:    last.To.Located,
		LegIndex:   len(legs) - 1,
	})
	return points
}

func nameOr(name, fallback string) string {
	if strings.TrimSpace(name) == "" {
		return fallback
	}
	return name
}
