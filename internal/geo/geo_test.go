package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHaversine(t *testing.T) {
	bern := Coordinate{Lat: 46.9490, Lon: 7.4390}
	zurich := Coordinate{Lat: 47.3779, Lon: 8.5403}

	assert.InDelta(t, 95500, Haversine(bern, zurich), 1500)
	assert.Equal(t, 0.0, Haversine(bern, bern))
	assert.InDelta(t, Haversine(bern, zurich), Haversine(zurich, bern), 1e-9)
}

func TestHaversineOneDegreeLatitude(t *testing.T) {
	d := Haversine(Coordinate{Lat: 0, Lon: 0}, Coordinate{Lat: 1, Lon: 0})
	assert.InDelta(t, EarthRadiusM*math.Pi/180, d, 1e-6)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		c    Coordinate
		ok   bool
	}{
		{"origin", Coordinate{0, 0}, true},
		{"bern", Coordinate{46.95, 7.44}, true},
		{"north pole", Coordinate{90, 0}, true},
		{"lat too big", Coordinate{90.1, 0}, false},
		{"lon too small", Coordinate{0, -180.5}, false},
		{"nan", Coordinate{math.NaN(), 0}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.c.Validate()
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestNear(t *testing.T) {
	a := Coordinate{Lat: 46.94800, Lon: 7.43900}
	assert.True(t, a.Near(Coordinate{Lat: 46.94805, Lon: 7.43905}, 1e-4))
	assert.False(t, a.Near(Coordinate{Lat: 46.94820, Lon: 7.43900}, 1e-4))
}

func TestBounds(t *testing.T) {
	_, ok := BoundsOf()
	assert.False(t, ok)

	b, ok := BoundsOf(Coordinate{46.95, 7.44}, Coordinate{46.94, 7.43}, Coordinate{46.96, 7.45})
	require.True(t, ok)
	assert.Equal(t, Bounds{MinLat: 46.94, MinLon: 7.43, MaxLat: 46.96, MaxLon: 7.45}, b)

	padded := b.Pad(200)
	assert.Less(t, padded.MinLat, b.MinLat)
	assert.Greater(t, padded.MaxLon, b.MaxLon)
	assert.True(t, padded.Contains(Coordinate{46.9395, 7.4295}))
	assert.False(t, b.Contains(Coordinate{46.9395, 7.4295}))
}
