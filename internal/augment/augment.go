// Package augment turns an itinerary into segmented routes with shared-mobility
// alternatives attached at the origin and at every intermediate transfer.
package augment

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"multimodal-router/internal/alternatives"
	"multimodal-router/internal/geo"
	"multimodal-router/internal/itinerary"
	"multimodal-router/internal/mobility"
	"multimodal-router/internal/segment"
)

// ErrNoLegs is returned for an itinerary without legs; nothing can be segmented.
var ErrNoLegs = errors.New("itinerary has no legs")

// Finder is the part of alternatives.Finder the orchestrator needs.
type Finder interface {
	Find(ctx context.Context, from, dest geo.Coordinate, modes []mobility.Mode) []alternatives.Alternative
}

// RouteSegment is a segment as presented to clients.
type RouteSegment struct {
	ID                    string                     `json:"segment_id"`
	From                  segment.TransferPoint      `json:"from"`
	To                    segment.TransferPoint      `json:"to"`
	Mode                  itinerary.Mode             `json:"mode"`
	DurationMin           float64                    `json:"duration_min"`
	DistanceM             float64                    `json:"distance_m"`
	Route                 *itinerary.RouteInfo       `json:"route_info,omitempty"`
	Alternatives          []alternatives.Alternative `json:"alternatives"`
	AlternativesAvailable bool                       `json:"alternatives_available"`
}

// Result is one augmented itinerary.
type Result struct {
	TransferPoints []segment.TransferPoint `json:"transfer_points"`
	Segments       []RouteSegment          `json:"segments"`
	TotalSegments  int                     `json:"total_segments"`
	TotalTransfers int                     `json:"total_transfers"`
}

// Options select the provider modes to probe and the station matcher used for
// transfer detection. A nil Matcher uses the default station terms.
type Options struct {
	Modes   []mobility.Mode
	Matcher segment.StationMatcher
}

// Augmenter is stateless and safe for concurrent use.
type Augmenter struct {
	finder Finder
}

// New returns an Augmenter; a nil finder yields no alternatives.
func New(finder Finder) *Augmenter {
	return &Augmenter{finder: finder}
}

type probe struct {
	segment int
	from    geo.Coordinate
}

// Augment segments legs and attaches alternatives. Only ErrNoLegs is fatal;
// provider problems show up as segments without alternatives.
func (a *Augmenter) Augment(ctx context.Context, legs []itinerary.Leg, opts Options) (*Result, error) {
	if len(legs) == 0 {
		return nil, ErrNoLegs
	}

	points := segment.DetectTransferPoints(legs, opts.Matcher)
	segs := segment.Build(legs, points)

	out := make([]RouteSegment, len(segs))
	for i, s := range segs {
		out[i] = RouteSegment{
			ID:           s.ID,
			From:         s.From,
			To:           s.To,
			Mode:         s.Mode,
			DurationMin:  s.DurationMinutes(),
			DistanceM:    s.Distance,
			Route:        s.Route,
			Alternatives: []alternatives.Alternative{},
		}
	}

	probes := planProbes(segs)
	if !points[len(points)-1].Located {
		// nothing to head toward
		probes = nil
	}
	if a.finder != nil && len(opts.Modes) > 0 && len(probes) > 0 {
		dest := points[len(points)-1].Coordinate
		found := make([][]alternatives.Alternative, len(probes))

		var g errgroup.Group
		for i, p := range probes {
			g.Go(func() error {
				found[i] = a.finder.Find(ctx, p.from, dest, opts.Modes)
				return nil
			})
		}
		_ = g.Wait()

		// probes are ordered so the origin probe lands before the transfer probe
		for i, p := range probes {
			out[p.segment].Alternatives = append(out[p.segment].Alternatives, found[i]...)
		}
	}
	for i := range out {
		out[i].AlternativesAvailable = len(out[i].Alternatives) > 0
	}

	transfers := len(points) - 2
	if transfers < 0 {
		transfers = 0
	}
	return &Result{
		TransferPoints: points,
		Segments:       out,
		TotalSegments:  len(out),
		TotalTransfers: transfers,
	}, nil
}

// planProbes lists the origin of the first segment, when located, and the
// end of every segment but the last.
func planProbes(segs []segment.Segment) []probe {
	if len(segs) == 0 {
		return nil
	}
	var probes []probe
	if segs[0].From.Located {
		probes = append(probes, probe{segment: 0, from: segs[0].From.Coordinate})
	}
	for i := 0; i < len(segs)-1; i++ {
		probes = append(probes, probe{segment: i, from: segs[i].To.Coordinate})
	}
	return probes
}
