package mobility

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"multimodal-router/internal/geo"
)

const (
	DefaultSharedMobilityBase = "https://api.sharedmobility.ch/v1/sharedmobility"
	DefaultScooterProvider    = "voiscooters.com"
	scooterVehicleType        = "E-Scooter"
)

type smFeature struct {
	ID         json.RawMessage `json:"id"`
	Attributes struct {
		ID           string          `json:"id"`
		ProviderID   string          `json:"provider_id"`
		ProviderName string          `json:"provider_name"`
		VehicleType  json.RawMessage `json:"vehicle_type"`
		Battery      *float64        `json:"battery_level"`
		Reserved     bool            `json:"vehicle_status_reserved"`
		Disabled     bool            `json:"vehicle_status_disabled"`
	} `json:"attributes"`
	Geometry struct {
		X *float64 `json:"x"`
		Y *float64 `json:"y"`
	} `json:"geometry"`
}

// vehicleType accepts a plain string or a list whose first element wins.
func (f smFeature) vehicleType() string {
	var s string
	if json.Unmarshal(f.Attributes.VehicleType, &s) == nil && s != "" {
		return s
	}
	var list []string
	if json.Unmarshal(f.Attributes.VehicleType, &list) == nil && len(list) > 0 {
		return list[0]
	}
	return scooterVehicleType
}

func (f smFeature) id() string {
	if f.Attributes.ID != "" {
		return f.Attributes.ID
	}
	var s string
	if json.Unmarshal(f.ID, &s) == nil {
		return s
	}
	return strings.Trim(string(f.ID), `"`)
}

// SharedMobility is the free-floating scooter gateway backed by the
// sharedmobility.ch identify endpoint, restricted to one provider.
type SharedMobility struct {
	baseURL    string
	providerID string
	client     *http.Client
}

// NewSharedMobility creates a gateway; empty arguments select the public API
// and the default scooter provider.
func NewSharedMobility(baseURL, providerID string, timeout time.Duration) *SharedMobility {
	if baseURL == "" {
		baseURL = DefaultSharedMobilityBase
	}
	if providerID == "" {
		providerID = DefaultScooterProvider
	}
	return &SharedMobility{
		baseURL:    strings.TrimRight(baseURL, "/"),
		providerID: providerID,
		client:     &http.Client{Timeout: timeout},
	}
}

func (s *SharedMobility) Mode() Mode   { return ScooterShare }
func (s *SharedMobility) Name() string { return "SharedMobility" }

func (s *SharedMobility) FindNearby(ctx context.Context, c geo.Coordinate, radius float64, f Filter) ([]Candidate, error) {
	features, err := s.identify(ctx, c, radius)
	if err != nil {
		return nil, unavailable(s.providerID, err)
	}

	out := make([]Candidate, 0, len(features))
	for _, feat := range features {
		if feat.Attributes.ProviderID != s.providerID {
			continue
		}
		if feat.Geometry.X == nil || feat.Geometry.Y == nil {
			log.Printf("sharedmobility: vehicle %s has no geometry", feat.id())
			continue
		}
		at := geo.Coordinate{Lat: *feat.Geometry.Y, Lon: *feat.Geometry.X}
		if at.Validate() != nil {
			continue
		}
		available := !feat.Attributes.Reserved && !feat.Attributes.Disabled
		if f.AvailableOnly && !available {
			continue
		}
		if !batteryOK(feat.Attributes.Battery, f.MinBattery) {
			continue
		}
		provider := feat.Attributes.ProviderName
		if provider == "" {
			provider = s.providerID
		}
		out = append(out, Candidate{
			ID:         feat.id(),
			Provider:   provider,
			Coordinate: at,
			Available:  available,
			Battery:    feat.Attributes.Battery,
			Type:       feat.vehicleType(),
		})
	}
	// the reported distance is in the service's projection; recompute
	return withinRadius(c, radius, out), nil
}

func (s *SharedMobility) identify(ctx context.Context, c geo.Coordinate, radius float64) ([]smFeature, error) {
	q := url.Values{}
	q.Set("filters", fmt.Sprintf("ch.bfe.sharedmobility.provider_id=%s,ch.bfe.sharedmobility.vehicle_type=%s", s.providerID, scooterVehicleType))
	q.Set("geometry", fmt.Sprintf("%f,%f", c.Lon, c.Lat))
	q.Set("tolerance", strconv.FormatFloat(radius, 'f', -1, 64))
	q.Set("offset", "0")
	q.Set("geometryFormat", "esrijson")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/identify?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("identify request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("identify returned status %d", resp.StatusCode)
	}

	// the endpoint answers with a bare array or {"results": [...]}
	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode identify response: %w", err)
	}
	var features []smFeature
	if err := json.Unmarshal(raw, &features); err == nil {
		return features, nil
	}
	var wrapped struct {
		Results []smFeature `json:"results"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("decode identify response: %w", err)
	}
	return wrapped.Results, nil
}
