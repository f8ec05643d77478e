package mobility

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"multimodal-router/internal/geo"
)

var bahnhof = geo.Coordinate{Lat: 46.9490, Lon: 7.4390}

// offset returns a point roughly meters north of c.
func offset(c geo.Coordinate, meters float64) geo.Coordinate {
	return geo.Coordinate{Lat: c.Lat + meters/111195.0, Lon: c.Lon}
}

func scooterFeature(id, provider string, at geo.Coordinate, battery string, reserved bool) string {
	return fmt.Sprintf(`{"id": %q, "attributes": {"id": %q, "provider_id": %q, "provider_name": "Voi Technology AB",
		"vehicle_type": ["E-Scooter"], "battery_level": %s, "vehicle_status_reserved": %t, "vehicle_status_disabled": false},
		"geometry": {"x": %f, "y": %f}}`, id, id, provider, battery, reserved, at.Lon, at.Lat)
}

func scooterServer(t *testing.T, features ...string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/identify", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "ch.bfe.sharedmobility.provider_id=voiscooters.com,ch.bfe.sharedmobility.vehicle_type=E-Scooter", q.Get("filters"))
		assert.Equal(t, "esrijson", q.Get("geometryFormat"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte("[" + strings.Join(features, ",") + "]"))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSharedMobilityFindNearby(t *testing.T) {
	srv := scooterServer(t,
		scooterFeature("far", "voiscooters.com", offset(bahnhof, 250), "80", false),
		scooterFeature("near", "voiscooters.com", offset(bahnhof, 40), "42", false),
		scooterFeature("reserved", "voiscooters.com", offset(bahnhof, 10), "90", true),
		scooterFeature("other", "tier.app", offset(bahnhof, 5), "90", false),
		scooterFeature("outside", "voiscooters.com", offset(bahnhof, 600), "90", false),
	)

	gw := NewSharedMobility(srv.URL, "", time.Second)
	assert.Equal(t, ScooterShare, gw.Mode())

	got, err := gw.FindNearby(context.Background(), bahnhof, 300, Filter{AvailableOnly: true})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "near", got[0].ID)
	assert.Equal(t, "far", got[1].ID)
	assert.InDelta(t, 40, got[0].Distance, 1)
	require.NotNil(t, got[0].Battery)
	assert.Equal(t, 42.0, *got[0].Battery)
	assert.Equal(t, "E-Scooter", got[0].Type)
	assert.True(t, got[0].Available)

	all, err := gw.FindNearby(context.Background(), bahnhof, 300, Filter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"reserved", "near", "far"}, ids(all))
	assert.False(t, all[0].Available)

	floor := 50.0
	charged, err := gw.FindNearby(context.Background(), bahnhof, 300, Filter{AvailableOnly: true, MinBattery: &floor})
	require.NoError(t, err)
	assert.Equal(t, []string{"far"}, ids(charged))
}

func TestSharedMobilityWrappedResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results": [` + scooterFeature("a", "voiscooters.com", bahnhof, "null", false) + `]}`))
	}))
	defer srv.Close()

	got, err := NewSharedMobility(srv.URL, "", time.Second).FindNearby(context.Background(), bahnhof, 300, Filter{AvailableOnly: true})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Nil(t, got[0].Battery)
}

func TestRadiusIsMonotone(t *testing.T) {
	var features []string
	for i, d := range []float64{5, 60, 120, 180, 299, 301, 450, 800} {
		features = append(features, scooterFeature(fmt.Sprintf("v%d", i), "voiscooters.com", offset(bahnhof, d), "70", false))
	}
	gw := NewSharedMobility(scooterServer(t, features...).URL, "", time.Second)

	var prev []Candidate
	for _, r := range []float64{0, 50, 100, 300, 500, 1000} {
		got, err := gw.FindNearby(context.Background(), bahnhof, r, Filter{AvailableOnly: true})
		require.NoError(t, err)
		for _, c := range got {
			assert.LessOrEqual(t, c.Distance, r)
		}
		assert.Subset(t, ids(got), ids(prev), "radius %v", r)
		prev = got
	}
	assert.Len(t, prev, 8)
}

func TestTiesOrderedByID(t *testing.T) {
	cs := []Candidate{
		{ID: "c", Distance: 10},
		{ID: "a", Distance: 10},
		{ID: "b", Distance: 5},
	}
	SortCandidates(cs)
	assert.Equal(t, []string{"b", "a", "c"}, ids(cs))

	srv := scooterServer(t,
		scooterFeature("z", "voiscooters.com", bahnhof, "70", false),
		scooterFeature("m", "voiscooters.com", bahnhof, "70", false),
	)
	got, err := NewSharedMobility(srv.URL, "", time.Second).FindNearby(context.Background(), bahnhof, 10, Filter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"m", "z"}, ids(got))
}

func TestGatewayFailureIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewSharedMobility(srv.URL, "", time.Second).FindNearby(context.Background(), bahnhof, 300, Filter{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrProviderUnavailable))
	var ue *UnavailableError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, "voiscooters.com", ue.Provider)
	assert.False(t, ue.Timeout())

	_, err = NewPubliBike(srv.URL, time.Second).FindNearby(context.Background(), bahnhof, 300, Filter{})
	assert.True(t, errors.Is(err, ErrProviderUnavailable))
}

func TestGatewayTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	_, err := NewSharedMobility(srv.URL, "", 50*time.Millisecond).FindNearby(context.Background(), bahnhof, 300, Filter{})
	var ue *UnavailableError
	require.True(t, errors.As(err, &ue))
	assert.True(t, ue.Timeout())
}

func publiBikeServer(t *testing.T, failDetail map[int]bool) *httptest.Server {
	t.Helper()
	stations := map[int]string{
		1: fmt.Sprintf(`{"id": 1, "latitude": %f, "longitude": %f, "name": "Bahnhof Süd", "state": {"id": 1, "name": "Active"}`, offset(bahnhof, 80).Lat, bahnhof.Lon),
		2: fmt.Sprintf(`{"id": 2, "latitude": %f, "longitude": %f, "name": "Bundesplatz", "state": {"id": 1, "name": "Active"}`, offset(bahnhof, 200).Lat, bahnhof.Lon),
		3: fmt.Sprintf(`{"id": 3, "latitude": %f, "longitude": %f, "name": "Closed", "state": {"id": 2, "name": "Inactive"}`, offset(bahnhof, 20).Lat, bahnhof.Lon),
		4: fmt.Sprintf(`{"id": 4, "latitude": %f, "longitude": %f, "name": "Wankdorf", "state": {"id": 1, "name": "Active"}`, offset(bahnhof, 3000).Lat, bahnhof.Lon),
	}
	vehicles := map[int]string{
		1: `[{"id": 10, "name": "b10", "ebike_battery_level": 77}, {"id": 11, "name": "b11"}]`,
		2: `[]`,
		3: `[{"id": 30, "name": "b30"}]`,
		4: `[{"id": 40, "name": "b40"}]`,
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/public/stations" {
			var parts []string
			for id := 1; id <= 4; id++ {
				parts = append(parts, stations[id]+"}")
			}
			w.Write([]byte("[" + strings.Join(parts, ",") + "]"))
			return
		}
		var id int
		if _, err := fmt.Sscanf(r.URL.Path, "/public/stations/%d", &id); err != nil || failDetail[id] {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		assert.NotEqual(t, 4, id, "details fetched for a station out of range")
		w.Write([]byte(stations[id] + `, "vehicles": ` + vehicles[id] + "}"))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestPubliBikePickUp(t *testing.T) {
	gw := NewPubliBike(publiBikeServer(t, nil).URL, time.Second)
	assert.Equal(t, BikeShare, gw.Mode())

	got, err := gw.FindNearby(context.Background(), bahnhof, 300, Filter{AvailableOnly: true})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "1", got[0].ID)
	assert.Equal(t, "Bahnhof Süd", got[0].Name)
	assert.Equal(t, 2, got[0].Vehicles)
	assert.Equal(t, 1, got[0].EBikes)
	assert.InDelta(t, 80, got[0].Distance, 1)
}

func TestPubliBikeReturnDocks(t *testing.T) {
	gw := NewPubliBike(publiBikeServer(t, map[int]bool{2: true}).URL, time.Second)

	got, err := gw.FindNearby(context.Background(), bahnhof, 300, Filter{AvailableOnly: true, Return: true})
	require.NoError(t, err)
	// station 2 has no bikes and no details but can still take a return
	assert.Equal(t, []string{"1", "2"}, ids(got))
	assert.Equal(t, "Bundesplatz", got[1].Name)
}

func TestPubliBikeSkipsPickUpWithoutDetails(t *testing.T) {
	gw := NewPubliBike(publiBikeServer(t, map[int]bool{1: true}).URL, time.Second)

	got, err := gw.FindNearby(context.Background(), bahnhof, 300, Filter{AvailableOnly: true})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestParseMode(t *testing.T) {
	m, ok := ParseMode("scooter")
	assert.True(t, ok)
	assert.Equal(t, ScooterShare, m)
	m, ok = ParseMode("publibike")
	assert.True(t, ok)
	assert.Equal(t, BikeShare, m)
	_, ok = ParseMode("gondola")
	assert.False(t, ok)
}

func ids(cs []Candidate) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.ID
	}
	return out
}
