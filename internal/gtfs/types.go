package gtfs

import "multimodal-router/internal/geo"

// Station is a GTFS parent station (location_type 1).
type Station struct {
	StopID string
	Name   string
	Lat    float64
	Lon    float64
}

func (s Station) Coordinate() geo.Coordinate {
	return geo.Coordinate{Lat: s.Lat, Lon: s.Lon}
}

// Coordinates returns the positions of stations, skipping invalid ones.
func Coordinates(stations []Station) []geo.Coordinate {
	out := make([]geo.Coordinate, 0, len(stations))
	for _, s := range stations {
		c := s.Coordinate()
		if c.Validate() == nil && !(c.Lat == 0 && c.Lon == 0) {
			out = append(out, c)
		}
	}
	return out
}
