// Package itinerary models transit itineraries as returned by an OpenTripPlanner
// style trip planner and normalizes them into a canonical leg sequence.
package itinerary

import (
	"errors"
	"strings"
	"time"

	"multimodal-router/internal/geo"
)

// ErrNoItineraries is returned when the planner found no itinerary for a request.
var ErrNoItineraries = errors.New("no itineraries found")

// Mode is a travel mode as reported by the planner (WALK, BUS, TRAM, ...).
type Mode string

const (
	Walk    Mode = "WALK"
	Bus     Mode = "BUS"
	Tram    Mode = "TRAM"
	Rail    Mode = "RAIL"
	Subway  Mode = "SUBWAY"
	Ferry   Mode = "FERRY"
	Bicycle Mode = "BICYCLE"
	Scooter Mode = "SCOOTER"
	Transit Mode = "TRANSIT"
)

// IsTransit reports whether the mode is a scheduled public transport mode.
func (m Mode) IsTransit() bool {
	switch m {
	case Bus, Tram, Rail, Subway, Ferry:
		return true
	}
	return false
}

// Place is a named leg endpoint. Located is false when the planner omitted coordinates.
type Place struct {
	Name       string         `json:"name"`
	Coordinate geo.Coordinate `json:"coordinate"`
	Located    bool           `json:"located"`
}

// RouteInfo identifies the transit line a leg runs on.
type RouteInfo struct {
	Route     string `json:"route,omitempty"`
	ShortName string `json:"route_short_name,omitempty"`
	LongName  string `json:"route_long_name,omitempty"`
	Headsign  string `json:"headsign,omitempty"`
}

// Leg is one continuous travel segment of a single mode.
type Leg struct {
	Mode     Mode          `json:"mode"`
	From     Place         `json:"from"`
	To       Place         `json:"to"`
	Start    *time.Time    `json:"start_time,omitempty"`
	End      *time.Time    `json:"end_time,omitempty"`
	Duration time.Duration `json:"-"`
	Distance float64       `json:"distance_m"`
	Route    *RouteInfo    `json:"route_info,omitempty"`
}

// Malformed reports whether the leg lacks the mode or coordinates needed for
// transfer detection.
func (l Leg) Malformed() bool {
	return strings.TrimSpace(string(l.Mode)) == "" || !l.From.Located || !l.To.Located
}

// SameRoute compares the route identity of two legs. Two legs without route
// information are on the same (empty) route.
func (l Leg) SameRoute(o Leg) bool {
	if l.Route == nil || o.Route == nil {
		return l.Route == nil && o.Route == nil
	}
	return *l.Route == *o.Route
}

// DurationMinutes is the leg duration in minutes rounded to one decimal.
func (l Leg) DurationMinutes() float64 {
	return Minutes(l.Duration)
}

// Itinerary is one ranked planner result.
type Itinerary struct {
	Duration     time.Duration
	Start        *time.Time
	End          *time.Time
	WalkDistance float64
	Transfers    int
	Legs         []Leg
}

// DurationMinutes is the itinerary duration in minutes rounded to one decimal.
func (it Itinerary) DurationMinutes() float64 {
	return Minutes(it.Duration)
}

// Distance sums the leg distances in meters.
func (it Itinerary) Distance() float64 {
	total := 0.0
	for _, l := range it.Legs {
		total += l.Distance
	}
	return total
}

// WalkOnly reports whether the itinerary has no leg other than WALK.
func (it Itinerary) WalkOnly() bool {
	for _, l := range it.Legs {
		if l.Mode != Walk {
			return false
		}
	}
	return true
}

// Minutes converts d to minutes rounded to one decimal.
func Minutes(d time.Duration) float64 {
	return roundTenth(d.Minutes())
}

func roundTenth(v float64) float64 {
	if v < 0 {
		return -roundTenth(-v)
	}
	return float64(int64(v*10+0.5)) / 10
}
