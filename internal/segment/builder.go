package segment

import (
	"fmt"
	"time"

	"multimodal-router/internal/itinerary"
)

// CoordinateTolerance is the per-axis tolerance in degrees (about 10 m) used
// to decide that a leg ends at a transfer point. Planner and provider
// coordinate precision varies, so it is kept loose.
const CoordinateTolerance = 1e-4

// Segment is the journey between two consecutive transfer points.
type Segment struct {
	ID       string
	From     TransferPoint
	To       TransferPoint
	Mode     itinerary.Mode
	Duration time.Duration
	Distance float64
	Route    *itinerary.RouteInfo
	// inclusive leg index range covered by the segment
	FirstLeg int
	LastLeg  int
}

// DurationMinutes is the segment duration rounded to one decimal.
func (s Segment) DurationMinutes() float64 {
	return itinerary.Minutes(s.Duration)
}

// Build groups legs into contiguous segments between consecutive transfer
// points. A segment closes when a leg ends within CoordinateTolerance of the
// next expected transfer point; the destination is only closed by the last
// leg so trailing legs are never dropped.
func Build(legs []itinerary.Leg, points []TransferPoint) []Segment {
	if len(legs) == 0 || len(points) < 2 {
		return nil
	}

	segments := make([]Segment, 0, len(points)-1)
	start := 0
	next := 1
	for i, leg := range legs {
		if next >= len(points) {
			break
		}
		last := i == len(legs)-1
		tp := points[next]

		var closes bool
		if next == len(points)-1 {
			closes = last
		} else {
			closes = leg.To.Located && leg.To.Coordinate.Near(tp.Coordinate, CoordinateTolerance)
		}
		if !closes {
			continue
		}

		segments = append(segments, aggregate(len(segments)+1, legs[start:i+1], start, points[next-1], tp))
		start = i + 1
		next++
	}
	return segments
}

func aggregate(n int, legs []itinerary.Leg, offset int, from, to TransferPoint) Segment {
	s := Segment{
		ID:       fmt.Sprintf("seg-%d", n),
		From:     from,
		To:       to,
		Mode:     itinerary.Walk,
		FirstLeg: offset,
		LastLeg:  offset + len(legs) - 1,
	}
	modeSet := false
	for _, l := range legs {
		s.Duration += l.Duration
		s.Distance += l.Distance
		if !modeSet && l.Mode != itinerary.Walk && l.Mode != "" {
			s.Mode = l.Mode
			if l.Route != nil {
				r := *l.Route
				s.Route = &r
			}
			modeSet = true
		}
	}
	return s
}
