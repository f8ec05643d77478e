package segment

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"multimodal-router/internal/geo"
	"multimodal-router/internal/itinerary"
)

func place(name string, lat, lon float64) itinerary.Place {
	return itinerary.Place{Name: name, Coordinate: geo.Coordinate{Lat: lat, Lon: lon}, Located: true}
}

func leg(mode itinerary.Mode, from, to itinerary.Place, d time.Duration, dist float64, route string) itinerary.Leg {
	l := itinerary.Leg{Mode: mode, From: from, To: to, Duration: d, Distance: dist}
	if route != "" {
		l.Route = &itinerary.RouteInfo{Route: route, ShortName: route}
	}
	return l
}

func TestSingleWalkLeg(t *testing.T) {
	legs := []itinerary.Leg{
		leg(itinerary.Walk, place("Home", 46.95, 7.44), place("Office", 46.94, 7.43), 15*time.Minute, 1300, ""),
	}

	points := DetectTransferPoints(legs, nil)
	require.Len(t, points, 2)
	assert.Equal(t, "Home", points[0].Name)
	assert.False(t, points[0].IsStation)
	assert.Equal(t, "Office", points[1].Name)
	assert.False(t, points[1].IsStation)

	segs := Build(legs, points)
	require.Len(t, segs, 1)
	assert.Equal(t, itinerary.Walk, segs[0].Mode)
	assert.Nil(t, segs[0].Route)
	assert.Equal(t, 15.0, segs[0].DurationMinutes())
	assert.Equal(t, 1300.0, segs[0].Distance)
}

func TestWalkTramWalk(t *testing.T) {
	a := place("Home", 46.9600, 7.4500)
	b := place("Zytglogge", 46.9480, 7.4470)
	c := place("Hirschengraben", 46.9470, 7.4380)
	d := place("Office", 46.9400, 7.4300)
	legs := []itinerary.Leg{
		leg(itinerary.Walk, a, b, 4*time.Minute, 300, ""),
		leg(itinerary.Tram, b, c, 6*time.Minute, 900, "9"),
		leg(itinerary.Walk, c, d, 7*time.Minute, 500, ""),
	}

	points := DetectTransferPoints(legs, nil)
	require.Len(t, points, 4)
	assert.Equal(t, []string{"Home", "Zytglogge", "Hirschengraben", "Office"}, names(points))
	assert.False(t, points[1].IsStation, "reached on foot")
	assert.True(t, points[2].IsStation, "reached by tram")

	segs := Build(legs, points)
	require.Len(t, segs, 3)
	assert.Equal(t, itinerary.Tram, segs[1].Mode)
	require.NotNil(t, segs[1].Route)
	assert.Equal(t, "9", segs[1].Route.ShortName)
	assert.Equal(t, []string{"seg-1", "seg-2", "seg-3"}, []string{segs[0].ID, segs[1].ID, segs[2].ID})
	assert.Equal(t, "Zytglogge", segs[1].From.Name)
	assert.Equal(t, "Hirschengraben", segs[1].To.Name)
}

func TestTransferTimesShareOneMoment(t *testing.T) {
	start := time.UnixMilli(1700000000000).UTC()
	mid := start.Add(5 * time.Minute)
	nextStart := mid.Add(2 * time.Minute)
	end := nextStart.Add(10 * time.Minute)

	l1 := leg(itinerary.Walk, place("A", 1, 1), place("B", 1.01, 1.01), 5*time.Minute, 400, "")
	l1.Start, l1.End = &start, &mid
	l2 := leg(itinerary.Bus, place("B", 1.01, 1.01), place("C", 1.02, 1.02), 10*time.Minute, 3000, "12")
	l2.Start, l2.End = &nextStart, &end

	points := DetectTransferPoints([]itinerary.Leg{l1, l2}, nil)
	require.Len(t, points, 3)
	assert.Equal(t, &start, points[0].Departure)
	assert.Nil(t, points[0].Arrival)
	assert.Equal(t, mid, *points[1].Arrival)
	assert.Equal(t, mid, *points[1].Departure)
	assert.Equal(t, &end, points[2].Arrival)
	assert.Nil(t, points[2].Departure)
}

func TestSameLineIsNotATransfer(t *testing.T) {
	legs := []itinerary.Leg{
		leg(itinerary.Bus, place("A", 1, 1), place("B", 1.01, 1.01), time.Minute, 100, "12"),
		leg(itinerary.Bus, place("B", 1.01, 1.01), place("C", 1.02, 1.02), time.Minute, 100, "12"),
		leg(itinerary.Bus, place("C", 1.02, 1.02), place("D", 1.03, 1.03), time.Minute, 100, "19"),
	}
	points := DetectTransferPoints(legs, nil)
	assert.Equal(t, []string{"A", "C", "D"}, names(points))
	assert.True(t, points[0].IsStation)

	segs := Build(legs, points)
	require.Len(t, segs, 2)
	assert.Equal(t, 0, segs[0].FirstLeg)
	assert.Equal(t, 1, segs[0].LastLeg)
	assert.Equal(t, 2*time.Minute, segs[0].Duration)
	assert.Equal(t, "19", segs[1].Route.Route)
}

func TestMajorStationTerm(t *testing.T) {
	legs := []itinerary.Leg{
		leg(itinerary.Rail, place("Thun", 46.75, 7.63), place("Bern, Bahnhof", 46.949, 7.439), 20*time.Minute, 26000, "IC6"),
		leg(itinerary.Rail, place("Bern, Bahnhof", 46.949, 7.439), place("Zürich HB", 47.378, 8.540), 56*time.Minute, 96000, "IC6"),
	}

	points := DetectTransferPoints(legs, nil)
	assert.Equal(t, []string{"Thun", "Bern, Bahnhof", "Zürich HB"}, names(points))

	points = DetectTransferPoints(legs, NewTermMatcher([]string{" gare "}))
	assert.Equal(t, []string{"Thun", "Zürich HB"}, names(points))
}

func TestStationMatchers(t *testing.T) {
	bahnhof := geo.Coordinate{Lat: 46.9490, Lon: 7.4390}
	near := NearStations{Stations: []geo.Coordinate{bahnhof}, Radius: 50}
	assert.True(t, near.MajorStation("", geo.Coordinate{Lat: 46.9492, Lon: 7.4391}))
	assert.False(t, near.MajorStation("", geo.Coordinate{Lat: 46.9530, Lon: 7.4390}))

	terms := NewTermMatcher([]string{"Gare", ""})
	assert.True(t, terms.MajorStation("Lausanne GARE", geo.Coordinate{}))
	assert.False(t, terms.MajorStation("Ouchy", geo.Coordinate{}))

	either := AnyMatcher{terms, nil, near}
	assert.True(t, either.MajorStation("Ouchy", bahnhof))
	assert.False(t, either.MajorStation("Ouchy", geo.Coordinate{}))
}

func TestMalformedBoundaryIsNotATransfer(t *testing.T) {
	broken := leg(itinerary.Tram, place("B", 1.01, 1.01), itinerary.Place{Name: "?"}, time.Minute, 100, "9")
	legs := []itinerary.Leg{
		leg(itinerary.Walk, place("A", 1, 1), place("B", 1.01, 1.01), time.Minute, 100, ""),
		broken,
		leg(itinerary.Walk, place("C", 1.02, 1.02), place("D", 1.03, 1.03), time.Minute, 100, ""),
	}

	points := DetectTransferPoints(legs, nil)
	assert.Equal(t, []string{"A", "D"}, names(points))

	segs := Build(legs, points)
	require.Len(t, segs, 1)
	assert.Equal(t, itinerary.Tram, segs[0].Mode)
	assert.Equal(t, 0, segs[0].FirstLeg)
	assert.Equal(t, 2, segs[0].LastLeg)
}

func TestEndpointsWithoutCoordinatesAreUnlocated(t *testing.T) {
	legs := []itinerary.Leg{
		leg(itinerary.Walk, itinerary.Place{Name: "Home"}, place("Zytglogge", 46.948, 7.447), time.Minute, 100, ""),
		leg(itinerary.Bus, place("Zytglogge", 46.948, 7.447), place("Bern, Bahnhof", 46.949, 7.439), time.Minute, 800, "12"),
		leg(itinerary.Walk, place("Bern, Bahnhof", 46.949, 7.439), itinerary.Place{Name: "Office"}, time.Minute, 200, ""),
	}

	points := DetectTransferPoints(legs, nil)
	require.Len(t, points, 3)
	assert.False(t, points[0].Located)
	assert.True(t, points[1].Located)
	assert.False(t, points[2].Located)

	legs[0].From = place("Home", 46.95, 7.45)
	legs[2].To = place("Office", 46.94, 7.43)
	points = DetectTransferPoints(legs, nil)
	assert.True(t, points[0].Located)
	assert.True(t, points[len(points)-1].Located)
}

func TestLegNearDestinationDoesNotCloseEarly(t *testing.T) {
	dest := place("Office", 46.9400, 7.4300)
	loop := place("Corner", 46.94003, 7.43003)
	legs := []itinerary.Leg{
		leg(itinerary.Walk, place("Home", 46.95, 7.44), loop, 10*time.Minute, 900, ""),
		leg(itinerary.Walk, loop, place("Kiosk", 46.941, 7.431), time.Minute, 80, ""),
		leg(itinerary.Walk, place("Kiosk", 46.941, 7.431), dest, time.Minute, 80, ""),
	}
	points := DetectTransferPoints(legs, nil)
	require.Len(t, points, 2)

	segs := Build(legs, points)
	require.Len(t, segs, 1)
	assert.Equal(t, 2, segs[0].LastLeg)
	assert.Equal(t, 12*time.Minute, segs[0].Duration)
}

func TestEmptyInput(t *testing.T) {
	assert.Nil(t, DetectTransferPoints(nil, nil))
	assert.Nil(t, Build(nil, nil))
}

func TestCoverageAndCountProperties(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	modes := []itinerary.Mode{itinerary.Walk, itinerary.Bus, itinerary.Tram, itinerary.Rail}
	stationNames := []string{"Stop", "Platz", "Bahnhof", "Station", "Gasse"}

	for run := 0; run < 500; run++ {
		n := 1 + r.Intn(8)
		legs := make([]itinerary.Leg, n)
		cur := place("Origin", 46.9+r.Float64()*0.1, 7.4+r.Float64()*0.1)
		for i := 0; i < n; i++ {
			// occasional revisits put a leg end on top of an earlier point
			to := place(fmt.Sprintf("%s %d", stationNames[r.Intn(len(stationNames))], i), 46.9+r.Float64()*0.1, 7.4+r.Float64()*0.1)
			if i > 0 && r.Intn(5) == 0 {
				to = legs[r.Intn(i)].From
			}
			route := ""
			if r.Intn(2) == 0 {
				route = fmt.Sprint(r.Intn(3))
			}
			legs[i] = leg(modes[r.Intn(len(modes))], cur, to, time.Duration(1+r.Intn(600))*time.Second, float64(r.Intn(2000)), route)
			if r.Intn(15) == 0 {
				legs[i].Mode = ""
			}
			cur = to
		}

		points := DetectTransferPoints(legs, nil)
		segs := Build(legs, points)
		require.GreaterOrEqual(t, len(points), 2)
		require.Len(t, segs, len(points)-1, "run %d", run)

		nextLeg := 0
		var total time.Duration
		for _, s := range segs {
			require.Equal(t, nextLeg, s.FirstLeg, "run %d: gap or overlap", run)
			require.GreaterOrEqual(t, s.LastLeg, s.FirstLeg)
			nextLeg = s.LastLeg + 1
			total += s.Duration
		}
		require.Equal(t, n, nextLeg, "run %d: legs not fully covered", run)

		var want time.Duration
		for _, l := range legs {
			want += l.Duration
		}
		require.Equal(t, want, total)

		// pure functions: a second pass is identical
		assert.Equal(t, points, DetectTransferPoints(legs, nil))
		assert.Equal(t, segs, Build(legs, points))
	}
}

func names(points []TransferPoint) []string {
	out := make([]string, len(points))
	for i, p := range points {
		out[i] = p.Name
	}
	return out
}
