package alternatives

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"multimodal-router/internal/geo"
	"multimodal-router/internal/itinerary"
	"multimodal-router/internal/mobility"
)

// Alternative is a snapshot of one shared-mobility continuation toward the
// final destination.
type Alternative struct {
	Mode        mobility.Mode `json:"mode"`
	Type        string        `json:"type"`
	Summary     string        `json:"summary"`
	DurationMin float64       `json:"duration_min"`
	// nil when the ride could not be routed
	DistanceKm *float64 `json:"distance_km"`
	Cost       float64  `json:"est_cost_chf"`
	// duration came from the fallback constant
	Estimated  bool                `json:"estimated"`
	Vehicle    mobility.Candidate  `json:"vehicle"`
	ReturnDock *mobility.Candidate `json:"return_station,omitempty"`
}

// Metrics receives per-call observations. Implementations must be safe for
// concurrent use.
type Metrics interface {
	ObserveProviderQuery(provider string, d time.Duration, err error)
	ObserveRoutingFallback(mode string)
	ObserveAlternative(mode string)
}

type nopMetrics struct{}

func (nopMetrics) ObserveProviderQuery(string, time.Duration, error) {}
func (nopMetrics) ObserveRoutingFallback(string)                      {}
func (nopMetrics) ObserveAlternative(string)                          {}

// Finder queries gateways at a transfer point. It holds no per-request state
// and may be shared.
type Finder struct {
	cfg      Config
	gateways map[mobility.Mode]mobility.Gateway
	router   itinerary.Router
	metrics  Metrics
}

// NewFinder wires gateways by their mode. router and metrics may be nil; a nil
// router sends every estimate to the fallback.
func NewFinder(cfg Config, router itinerary.Router, metrics Metrics, gateways ...mobility.Gateway) *Finder {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	f := &Finder{
		cfg:      cfg.withDefaults(),
		gateways: make(map[mobility.Mode]mobility.Gateway, len(gateways)),
		router:   router,
		metrics:  metrics,
	}
	for _, g := range gateways {
		if g != nil {
			f.gateways[g.Mode()] = g
		}
	}
	return f
}

// Modes lists the modes with both a gateway and a profile, in the given order.
func (f *Finder) Modes(order []mobility.Mode) []mobility.Mode {
	var out []mobility.Mode
	for _, m := range order {
		_, hasGW := f.gateways[m]
		_, hasProfile := f.cfg.Profiles[m]
		if hasGW && hasProfile {
			out = append(out, m)
		}
	}
	return out
}

// Gateway returns the gateway registered for m.
func (f *Finder) Gateway(m mobility.Mode) (mobility.Gateway, bool) {
	g, ok := f.gateways[m]
	return g, ok
}

// Find returns at most one Alternative per mode in modes, in that order.
// Provider modes run concurrently; failures and empty results omit the mode.
func (f *Finder) Find(ctx context.Context, from, dest geo.Coordinate, modes []mobility.Mode) []Alternative {
	modes = dedupe(modes)
	results := make([]*Alternative, len(modes))

	var g errgroup.Group
	for i, m := range modes {
		g.Go(func() error {
			alt, err := f.findOne(ctx, m, from, dest)
			if err != nil {
				log.Printf("alternatives: %s lookup at %s failed: %v", m, from, err)
				return nil
			}
			results[i] = alt
			return nil
		})
	}
	_ = g.Wait()

	var out []Alternative
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
			f.metrics.ObserveAlternative(string(r.Mode))
		}
	}
	return out
}

func (f *Finder) findOne(ctx context.Context, m mobility.Mode, from, dest geo.Coordinate) (*Alternative, error) {
	gw, ok := f.gateways[m]
	if !ok {
		return nil, nil
	}
	p, ok := f.cfg.Profiles[m]
	if !ok {
		return nil, nil
	}

	var pickups, docks []mobility.Candidate
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		pickups, err = f.query(gctx, gw, from, mobility.Filter{AvailableOnly: true, MinBattery: p.MinBattery})
		return err
	})
	if p.ReturnDock {
		g.Go(func() error {
			var err error
			docks, err = f.query(gctx, gw, dest, mobility.Filter{AvailableOnly: true, Return: true})
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if len(pickups) == 0 {
		return nil, nil
	}
	if p.ReturnDock && len(docks) == 0 {
		return nil, nil
	}

	alt := &Alternative{
		Mode:    p.Mode,
		Type:    p.Type,
		Vehicle: pickups[0],
	}
	rideTo := dest
	if p.ReturnDock {
		dock := docks[0]
		alt.ReturnDock = &dock
		rideTo = dock.Coordinate
	}

	f.estimate(ctx, p, alt, rideTo)
	alt.Summary = summary(p, *alt)
	return alt, nil
}

func (f *Finder) query(ctx context.Context, gw mobility.Gateway, at geo.Coordinate, filter mobility.Filter) ([]mobility.Candidate, error) {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.CallTimeout)
	defer cancel()

	start := time.Now()
	cands, err := gw.FindNearby(ctx, at, f.cfg.SearchRadius, filter)
	f.metrics.ObserveProviderQuery(gw.Name(), time.Since(start), err)
	if err != nil {
		var ue *mobility.UnavailableError
		if !errors.As(err, &ue) {
			err = &mobility.UnavailableError{Provider: gw.Name(), Err: err}
		}
		return nil, err
	}
	return cands, nil
}

// estimate fills duration, distance and cost. Walking to the vehicle and, for
// dock-based modes, from the return dock is added to the routed ride.
func (f *Finder) estimate(ctx context.Context, p Profile, alt *Alternative, rideTo geo.Coordinate) {
	routed, err := f.route(ctx, p.RoutingMode, alt.Vehicle.Coordinate, rideTo)
	if err != nil {
		log.Printf("alternatives: %s routing failed, using %s estimate: %v", p.RoutingMode, p.FallbackRide, err)
		f.metrics.ObserveRoutingFallback(string(p.Mode))
		ride := itinerary.Minutes(p.FallbackRide)
		alt.DurationMin = ride
		alt.Estimated = true
		alt.Cost = p.Cost(ride)
		return
	}

	ride := p.Ride(routed.Duration)
	total := ride + f.walkMinutes(alt.Vehicle.Distance)
	if alt.ReturnDock != nil {
		total += f.walkMinutes(alt.ReturnDock.Distance)
	}
	km := round(routed.Distance()/1000, 2)
	alt.DurationMin = round(total, 1)
	alt.DistanceKm = &km
	alt.Cost = p.Cost(ride)
}

func (f *Finder) route(ctx context.Context, mode itinerary.Mode, from, to geo.Coordinate) (*itinerary.Itinerary, error) {
	if f.router == nil {
		return nil, errors.New("no router configured")
	}
	ctx, cancel := context.WithTimeout(ctx, f.cfg.CallTimeout)
	defer cancel()
	return f.router.Route(ctx, from, to, mode)
}

func (f *Finder) walkMinutes(meters float64) float64 {
	return round(meters/f.cfg.WalkSpeed, 1)
}

func summary(p Profile, alt Alternative) string {
	v := alt.Vehicle
	if p.ReturnDock {
		name := v.Name
		if name == "" {
			name = v.ID
		}
		return fmt.Sprintf("%s from %s (%dm)", p.Label, name, int(v.Distance))
	}
	if v.Battery != nil {
		return fmt.Sprintf("%s (%dm away, %.0f%% battery)", p.Label, int(v.Distance), *v.Battery)
	}
	return fmt.Sprintf("%s (%dm away)", p.Label, int(v.Distance))
}

func dedupe(modes []mobility.Mode) []mobility.Mode {
	seen := make(map[mobility.Mode]bool, len(modes))
	out := make([]mobility.Mode, 0, len(modes))
	for _, m := range modes {
		if !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	return out
}
