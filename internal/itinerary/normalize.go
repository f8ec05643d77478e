package itinerary

import (
	"strings"
	"time"

	"multimodal-router/internal/geo"
)

// RawPlace is a leg endpoint as encoded by the planner.
type RawPlace struct {
	Name string   `json:"name"`
	Lat  *float64 `json:"lat"`
	Lon  *float64 `json:"lon"`
}

// RawLeg is a leg as encoded by the planner. Duration is in seconds, distance in
// meters and times in epoch milliseconds.
type RawLeg struct {
	Mode           string   `json:"mode"`
	From           RawPlace `json:"from"`
	To             RawPlace `json:"to"`
	StartTime      *int64   `json:"startTime"`
	EndTime        *int64   `json:"endTime"`
	Duration       float64  `json:"duration"`
	Distance       float64  `json:"distance"`
	Route          string   `json:"route"`
	RouteShortName string   `json:"routeShortName"`
	RouteLongName  string   `json:"routeLongName"`
	Headsign       string   `json:"headsign"`
}

// RawItinerary is an itinerary as encoded by the planner.
type RawItinerary struct {
	Duration     float64  `json:"duration"`
	StartTime    *int64   `json:"startTime"`
	EndTime      *int64   `json:"endTime"`
	WalkDistance float64  `json:"walkDistance"`
	Transfers    int      `json:"transfers"`
	Legs         []RawLeg `json:"legs"`
}

// Normalize converts a raw itinerary into the canonical form, preserving leg
// order. An empty leg list yields an itinerary without legs and no error;
// rejecting it is the caller's decision.
func Normalize(raw RawItinerary) Itinerary {
	it := Itinerary{
		Duration:     seconds(raw.Duration),
		Start:        epochMillis(raw.StartTime),
		End:          epochMillis(raw.EndTime),
		WalkDistance: raw.WalkDistance,
		Transfers:    raw.Transfers,
		Legs:         NormalizeLegs(raw.Legs),
	}
	if it.Duration == 0 && len(it.Legs) > 0 {
		for _, l := range it.Legs {
			it.Duration += l.Duration
		}
	}
	return it
}

// NormalizeLegs converts raw legs into canonical legs.
func NormalizeLegs(raw []RawLeg) []Leg {
	legs := make([]Leg, 0, len(raw))
	for _, r := range raw {
		legs = append(legs, normalizeLeg(r))
	}
	return legs
}

func normalizeLeg(r RawLeg) Leg {
	leg := Leg{
		Mode:     Mode(strings.ToUpper(strings.TrimSpace(r.Mode))),
		From:     place(r.From),
		To:       place(r.To),
		Start:    epochMillis(r.StartTime),
		End:      epochMillis(r.EndTime),
		Duration: seconds(r.Duration),
		Distance: r.Distance,
	}
	if leg.Duration == 0 && leg.Start != nil && leg.End != nil && leg.End.After(*leg.Start) {
		leg.Duration = leg.End.Sub(*leg.Start)
	}
	route := RouteInfo{
		Route:     r.Route,
		ShortName: r.RouteShortName,
		LongName:  r.RouteLongName,
		Headsign:  r.Headsign,
	}
	if route != (RouteInfo{}) {
		leg.Route = &route
	}
	return leg
}

func place(r RawPlace) Place {
	p := Place{Name: r.Name}
	if r.Lat != nil && r.Lon != nil {
		p.Coordinate = geo.Coordinate{Lat: *r.Lat, Lon: *r.Lon}
		p.Located = p.Coordinate.Validate() == nil
	}
	return p
}

func seconds(s float64) time.Duration {
	if s <= 0 {
		return 0
	}
	return time.Duration(s * float64(time.Second))
}

func epochMillis(ms *int64) *time.Time {
	if ms == nil || *ms <= 0 {
		return nil
	}
	t := time.UnixMilli(*ms).UTC()
	return &t
}
