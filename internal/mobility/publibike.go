package mobility

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"multimodal-router/internal/geo"
)

const (
	DefaultPubliBikeBase = "https://api.publibike.ch/v1"
	publiBikeName        = "PubliBike"
	stationActiveState   = 1
	detailConcurrency    = 8
)

type pbVehicle struct {
	ID           int      `json:"id"`
	Name         string   `json:"name"`
	EBikeBattery *float64 `json:"ebike_battery_level"`
}

type pbStation struct {
	ID        int      `json:"id"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Name      string   `json:"name"`
	Address   string   `json:"address"`
	City      string   `json:"city"`
	State     struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	} `json:"state"`
	Vehicles []pbVehicle `json:"vehicles"`
}

func (s pbStation) located() (geo.Coordinate, bool) {
	if s.Latitude == nil || s.Longitude == nil {
		return geo.Coordinate{}, false
	}
	c := geo.Coordinate{Lat: *s.Latitude, Lon: *s.Longitude}
	return c, c.Validate() == nil
}

func (s pbStation) candidate() Candidate {
	c, _ := s.located()
	cand := Candidate{
		ID:         strconv.Itoa(s.ID),
		Name:       s.Name,
		Provider:   publiBikeName,
		Coordinate: c,
		Vehicles:   len(s.Vehicles),
		Type:       "dock",
	}
	if cand.Name == "" {
		cand.Name = strings.TrimSpace(s.Address)
	}
	for _, v := range s.Vehicles {
		if v.EBikeBattery != nil {
			cand.EBikes++
		}
	}
	return cand
}

// PubliBike is the dock-based bike-share gateway.
type PubliBike struct {
	baseURL string
	client  *http.Client
}

// NewPubliBike creates a gateway for baseURL; empty means the public API.
func NewPubliBike(baseURL string, timeout time.Duration) *PubliBike {
	if baseURL == "" {
		baseURL = DefaultPubliBikeBase
	}
	return &PubliBike{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (p *PubliBike) Mode() Mode   { return BikeShare }
func (p *PubliBike) Name() string { return publiBikeName }

// FindNearby lists stations within radius. Pick-up searches need at least one
// vehicle at an active station; return searches only need an active station.
// Station details are fetched only for stations in range.
func (p *PubliBike) FindNearby(ctx context.Context, c geo.Coordinate, radius float64, f Filter) ([]Candidate, error) {
	var overview []pbStation
	if err := p.get(ctx, "/public/stations", &overview); err != nil {
		return nil, unavailable(publiBikeName, err)
	}

	var inRange []pbStation
	for _, s := range overview {
		at, ok := s.located()
		if !ok || geo.Haversine(c, at) > radius {
			continue
		}
		if f.AvailableOnly && s.State.ID != stationActiveState {
			continue
		}
		inRange = append(inRange, s)
	}
	if len(inRange) == 0 {
		return nil, nil
	}

	details := make([]*pbStation, len(inRange))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(detailConcurrency)
	for i, s := range inRange {
		g.Go(func() error {
			var d pbStation
			if err := p.get(gctx, fmt.Sprintf("/public/stations/%d", s.ID), &d); err != nil {
				if ctx.Err() != nil {
					return err
				}
				log.Printf("publibike: station %d details: %v", s.ID, err)
				return nil
			}
			details[i] = &d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, unavailable(publiBikeName, err)
	}

	out := make([]Candidate, 0, len(inRange))
	for i, s := range inRange {
		st := s
		if details[i] != nil {
			st = mergeDetail(s, *details[i])
		} else if !f.Return {
			// vehicle counts are unknown without details
			continue
		}
		cand := st.candidate()
		cand.Available = st.State.ID == stationActiveState && (f.Return || cand.Vehicles > 0)
		if f.AvailableOnly && !cand.Available {
			continue
		}
		out = append(out, cand)
	}
	return withinRadius(c, radius, out), nil
}

// mergeDetail prefers detail fields but keeps overview coordinates when the
// detail payload omits them.
func mergeDetail(overview, detail pbStation) pbStation {
	if _, ok := detail.located(); !ok {
		detail.Latitude, detail.Longitude = overview.Latitude, overview.Longitude
	}
	if detail.Name == "" {
		detail.Name = overview.Name
	}
	if detail.ID == 0 {
		detail.ID = overview.ID
	}
	if detail.State.ID == 0 {
		detail.State = overview.State
	}
	return detail
}

func (p *PubliBike) get(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("request %s: status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
