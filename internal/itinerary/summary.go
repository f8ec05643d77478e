package itinerary

import (
	"fmt"
	"math"
	"strings"
)

// Summary renders a one-line description such as
// "Walk 5 min → Tram 9 → Walk 3 min (32.0 min total)".
func Summary(it Itinerary) string {
	parts := make([]string, 0, len(it.Legs))
	for _, leg := range it.Legs {
		switch {
		case leg.Mode == Walk:
			parts = append(parts, fmt.Sprintf("Walk %d min", int(math.Round(leg.Duration.Minutes()))))
		case leg.Mode.IsTransit():
			name := ""
			if leg.Route != nil {
				name = leg.Route.ShortName
				if name == "" {
					name = leg.Route.Route
				}
			}
			if name != "" {
				parts = append(parts, fmt.Sprintf("%s %s", title(leg.Mode), name))
			} else {
				parts = append(parts, title(leg.Mode))
			}
		default:
			parts = append(parts, title(leg.Mode))
		}
	}
	return fmt.Sprintf("%s (%.1f min total)", strings.Join(parts, " → "), it.DurationMinutes())
}

func title(m Mode) string {
	s := strings.ToLower(string(m))
	if s == "" {
		return "Unknown"
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
