// Package mobility exposes shared-mobility providers (bike-share docks,
// free-floating scooters) behind a single nearby-search capability.
package mobility

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"

	"multimodal-router/internal/geo"
)

// Mode identifies a shared-mobility provider type.
type Mode string

const (
	BikeShare    Mode = "publibike"
	ScooterShare Mode = "e_scooter"
)

// ParseMode accepts the API names and a few aliases.
func ParseMode(s string) (Mode, bool) {
	switch s {
	case "publibike", "bike_share", "bike":
		return BikeShare, true
	case "e_scooter", "scooter_share", "scooter", "escooter":
		return ScooterShare, true
	}
	return "", false
}

// ErrProviderUnavailable marks a failed or timed out provider call.
var ErrProviderUnavailable = errors.New("provider unavailable")

// UnavailableError wraps the cause of a failed provider call.
type UnavailableError struct {
	Provider string
	Err      error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Provider, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

func (e *UnavailableError) Is(target error) bool { return target == ErrProviderUnavailable }

// Timeout reports whether the cause was a deadline.
func (e *UnavailableError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(e.Err, &ne) && ne.Timeout()
}

func unavailable(provider string, err error) error {
	return &UnavailableError{Provider: provider, Err: err}
}

// Filter narrows a nearby search.
type Filter struct {
	// exclude reserved, disabled, inactive or empty candidates
	AvailableOnly bool
	// search return-capable docks instead of rentable vehicles
	Return bool
	// minimum battery percentage; nil disables the check
	MinBattery *float64
}

// Candidate is a vehicle or dock returned by one query. It is a snapshot and is
// not retained across calls.
type Candidate struct {
	ID         string         `json:"id"`
	Name       string         `json:"name,omitempty"`
	Provider   string         `json:"provider"`
	Coordinate geo.Coordinate `json:"coordinate"`
	// meters from the query point
	Distance  float64  `json:"distance_m"`
	Available bool     `json:"is_available"`
	Battery   *float64 `json:"battery_percentage,omitempty"`
	Vehicles  int      `json:"vehicles_available,omitempty"`
	EBikes    int      `json:"ebikes_available,omitempty"`
	Type      string   `json:"vehicle_type,omitempty"`
}

// Gateway is the nearby-search capability every provider implements.
// FindNearby returns candidates within radius meters of c, sorted by distance
// then by ID. Failures are *UnavailableError.
type Gateway interface {
	Mode() Mode
	Name() string
	FindNearby(ctx context.Context, c geo.Coordinate, radius float64, f Filter) ([]Candidate, error)
}

// SortCandidates orders by ascending distance, ties by ID.
func SortCandidates(cs []Candidate) {
	sort.SliceStable(cs, func(i, j int) bool {
		if cs[i].Distance != cs[j].Distance {
			return cs[i].Distance < cs[j].Distance
		}
		return cs[i].ID < cs[j].ID
	})
}

// withinRadius sets Distance by Haversine, drops candidates beyond radius and
// sorts the rest.
func withinRadius(c geo.Coordinate, radius float64, cs []Candidate) []Candidate {
	out := cs[:0]
	for _, cand := range cs {
		cand.Distance = geo.Haversine(c, cand.Coordinate)
		if cand.Distance <= radius {
			out = append(out, cand)
		}
	}
	SortCandidates(out)
	return out
}

func batteryOK(b, floor *float64) bool {
	if floor == nil {
		return true
	}
	return b != nil && *b >= *floor
}
