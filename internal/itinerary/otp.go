package itinerary

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"multimodal-router/internal/geo"
)

const (
	defaultMaxWalkDistance = 1000
	// single-mode WALK requests stand in for scooter rides, which cover more ground
	singleModeWalkDistance = 10000
)

// PlanRequest is an itinerary query between two coordinates.
type PlanRequest struct {
	From           geo.Coordinate
	To             geo.Coordinate
	Modes          []Mode
	NumItineraries int
	// zero means the planner default
	MaxWalkDistance int
}

// Source returns ranked itineraries for an origin/destination pair.
type Source interface {
	Plan(ctx context.Context, req PlanRequest) ([]Itinerary, error)
}

// Router is the narrow single-mode form of Source used to estimate a
// shared-mobility ride.
type Router interface {
	Route(ctx context.Context, from, to geo.Coordinate, mode Mode) (*Itinerary, error)
}

type otpResponse struct {
	Plan *struct {
		Itineraries []RawItinerary `json:"itineraries"`
	} `json:"plan"`
	Error *struct {
		ID      int    `json:"id"`
		Msg     string `json:"msg"`
		Message string `json:"message"`
	} `json:"error"`
}

// OTPClient talks to the OpenTripPlanner REST plan endpoint.
type OTPClient struct {
	baseURL  string
	routerID string
	client   *http.Client
}

// NewOTPClient creates a client for baseURL (e.g. http://localhost:8080/otp).
func NewOTPClient(baseURL, routerID string, timeout time.Duration) *OTPClient {
	if routerID == "" {
		routerID = "default"
	}
	return &OTPClient{
		baseURL:  strings.TrimRight(baseURL, "/"),
		routerID: routerID,
		client:   &http.Client{Timeout: timeout},
	}
}

// Plan implements Source. Planner-reported "no path" answers return an empty slice.
func (c *OTPClient) Plan(ctx context.Context, req PlanRequest) ([]Itinerary, error) {
	modes := req.Modes
	if len(modes) == 0 {
		modes = []Mode{Transit, Walk}
	}
	n := req.NumItineraries
	if n <= 0 {
		n = 3
	}
	maxWalk := req.MaxWalkDistance
	if maxWalk <= 0 {
		maxWalk = defaultMaxWalkDistance
	}

	q := url.Values{}
	q.Set("fromPlace", fmt.Sprintf("%f,%f", req.From.Lat, req.From.Lon))
	q.Set("toPlace", fmt.Sprintf("%f,%f", req.To.Lat, req.To.Lon))
	q.Set("mode", joinModes(modes))
	q.Set("maxWalkDistance", strconv.Itoa(maxWalk))
	q.Set("wheelchair", "false")
	q.Set("numItineraries", strconv.Itoa(n))
	q.Set("arriveBy", "false")

	endpoint := fmt.Sprintf("%s/routers/%s/plan?%s", c.baseURL, url.PathEscape(c.routerID), q.Encode())
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("OpenTripPlanner request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("OpenTripPlanner returned status %d", resp.StatusCode)
	}

	var body otpResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode OpenTripPlanner response: %w", err)
	}
	if body.Error != nil && (body.Plan == nil || len(body.Plan.Itineraries) == 0) {
		if body.Error.ID == http.StatusNotFound || body.Error.Message == "PATH_NOT_FOUND" {
			return nil, nil
		}
		return nil, fmt.Errorf("OpenTripPlanner error %d: %s", body.Error.ID, body.Error.Msg)
	}
	if body.Plan == nil {
		return nil, nil
	}

	out := make([]Itinerary, 0, len(body.Plan.Itineraries))
	for _, raw := range body.Plan.Itineraries {
		out = append(out, Normalize(raw))
	}
	return out, nil
}

// Route implements Router with a single itinerary restricted to mode.
func (c *OTPClient) Route(ctx context.Context, from, to geo.Coordinate, mode Mode) (*Itinerary, error) {
	req := PlanRequest{From: from, To: to, Modes: []Mode{mode}, NumItineraries: 1}
	if mode == Walk {
		req.MaxWalkDistance = singleModeWalkDistance
	}
	its, err := c.Plan(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(its) == 0 {
		return nil, ErrNoItineraries
	}
	return &its[0], nil
}

func joinModes(modes []Mode) string {
	s := make([]string, len(modes))
	for i, m := range modes {
		s[i] = string(m)
	}
	return strings.Join(s, ",")
}

// ParseModes turns a comma separated list into modes, ignoring blanks.
func ParseModes(s string) []Mode {
	var out []Mode
	for _, part := range strings.Split(s, ",") {
		part = strings.ToUpper(strings.TrimSpace(part))
		if part != "" {
			out = append(out, Mode(part))
		}
	}
	return out
}
