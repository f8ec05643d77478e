// Package alternatives finds shared-mobility continuations from a transfer
// point to the final destination and estimates their duration and cost.
package alternatives

import (
	"math"
	"time"

	"multimodal-router/internal/itinerary"
	"multimodal-router/internal/mobility"
)

const (
	DefaultSearchRadius = 300.0
	// pedestrian speed in meters per minute
	DefaultWalkSpeed   = 80.0
	DefaultCallTimeout = 5 * time.Second
)

// Profile describes how one provider mode is estimated and priced.
type Profile struct {
	Mode  mobility.Mode
	Type  string
	Label string
	// mode of the secondary routing call for the ride itself
	RoutingMode itinerary.Mode
	// routed duration is divided by SpeedFactor
	SpeedFactor float64
	MinRide     time.Duration
	// flat estimate when the secondary routing call fails
	FallbackRide time.Duration
	// dock-based modes need a return station near the destination
	ReturnDock bool
	MinBattery *float64

	// non-nil selects flat pricing, zero included
	FlatRate  *float64
	UnlockFee float64
	PerMinute float64
}

// Cost prices a ride of rideMin minutes. A flat rate, when set, wins.
func (p Profile) Cost(rideMin float64) float64 {
	if p.FlatRate != nil {
		return *p.FlatRate
	}
	return round(p.UnlockFee+p.PerMinute*rideMin, 2)
}

// Ride converts a routed duration into the vehicle ride time in minutes.
func (p Profile) Ride(routed time.Duration) float64 {
	ride := itinerary.Minutes(routed)
	if p.SpeedFactor > 0 && p.SpeedFactor != 1 {
		ride = round(ride/p.SpeedFactor, 1)
	}
	return math.Max(ride, itinerary.Minutes(p.MinRide))
}

// BikeShareProfile is the dock-based PubliBike profile.
func BikeShareProfile() Profile {
	return Profile{
		Mode:         mobility.BikeShare,
		Type:         "bike_share",
		Label:        "PubliBike",
		RoutingMode:  itinerary.Bicycle,
		SpeedFactor:  1,
		FallbackRide: 18 * time.Minute,
		ReturnDock:   true,
		FlatRate:     Flat(4.0),
	}
}

// ScooterShareProfile is the free-floating scooter profile. Rides are routed
// on foot and sped up by a factor of three.
func ScooterShareProfile() Profile {
	return Profile{
		Mode:         mobility.ScooterShare,
		Type:         "scooter_share",
		Label:        "Voi Scooter",
		RoutingMode:  itinerary.Walk,
		SpeedFactor:  3,
		MinRide:      3 * time.Minute,
		FallbackRide: 10 * time.Minute,
		UnlockFee:    1.0,
		PerMinute:    0.29,
	}
}

// Flat returns a flat rate for Profile.FlatRate.
func Flat(chf float64) *float64 {
	return &chf
}

// Config holds the tunables of a Finder.
type Config struct {
	SearchRadius float64
	WalkSpeed    float64
	// bound on every gateway query and secondary routing call
	CallTimeout time.Duration
	Profiles    map[mobility.Mode]Profile
}

// DefaultConfig returns the stock radius, walking speed, timeout and profiles.
func DefaultConfig() Config {
	return Config{
		SearchRadius: DefaultSearchRadius,
		WalkSpeed:    DefaultWalkSpeed,
		CallTimeout:  DefaultCallTimeout,
		Profiles: map[mobility.Mode]Profile{
			mobility.BikeShare:    BikeShareProfile(),
			mobility.ScooterShare: ScooterShareProfile(),
		},
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.SearchRadius <= 0 {
		c.SearchRadius = d.SearchRadius
	}
	if c.WalkSpeed <= 0 {
		c.WalkSpeed = d.WalkSpeed
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = d.CallTimeout
	}
	if c.Profiles == nil {
		c.Profiles = d.Profiles
	}
	return c
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
