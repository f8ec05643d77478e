package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr           string
	CORSAllowedOrigins []string

	OTPBaseURL     string
	OTPRouterID    string
	OTPTimeout     time.Duration
	MaxItineraries int

	PubliBikeBase      string
	SharedMobilityBase string
	ScooterProviderID  string
	ScooterMinBattery  *float64

	SearchRadius      float64 // meters
	ProviderTimeout   time.Duration
	WalkSpeed         float64 // meters per minute
	MajorStationTerms []string

	BikeFallback     time.Duration
	ScooterFallback  time.Duration
	BikeFlatRate     float64
	ScooterUnlockFee float64
	ScooterPerMinute float64

	DatabaseURL string
	City        string

	NATSURL           string
	NATSSubjectPrefix string
	LogNATSSubjects   bool

	MetricsAddr string
}

func Load() (*Config, error) {
	// Load .env into environment (ignore if missing)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error

	cfg.HTTPAddr = getenvDefault("HTTP_ADDR", ":5000")
	cfg.CORSAllowedOrigins = splitList(getenvDefault("CORS_ALLOWED_ORIGINS", "*"))

	// Itinerary source
	cfg.OTPBaseURL = getenvDefault("OTP_BASE_URL", "http://localhost:8080/otp")
	cfg.OTPRouterID = getenvDefault("OTP_ROUTER_ID", "default")
	sec, err := positiveInt("OTP_TIMEOUT_SEC", 30)
	if err != nil {
		return nil, err
	}
	cfg.OTPTimeout = time.Duration(sec) * time.Second
	if cfg.MaxItineraries, err = positiveInt("MAX_ITINERARIES", 3); err != nil {
		return nil, err
	}

	// Mobility providers
	cfg.PubliBikeBase = getenvDefault("PUBLIBIKE_API_BASE", "https://api.publibike.ch/v1")
	cfg.SharedMobilityBase = getenvDefault("SHAREDMOBILITY_BASE_URL", "https://api.sharedmobility.ch/v1/sharedmobility")
	cfg.ScooterProviderID = getenvDefault("SCOOTER_PROVIDER_ID", "voiscooters.com")
	if v := os.Getenv("SCOOTER_MIN_BATTERY"); v != "" {
		f, perr := strconv.ParseFloat(v, 64)
		if perr != nil || f < 0 || f > 100 {
			return nil, fmt.Errorf("invalid SCOOTER_MIN_BATTERY: %q", v)
		}
		cfg.ScooterMinBattery = &f
	}

	if cfg.SearchRadius, err = positiveFloat("SEARCH_RADIUS_M", 300); err != nil {
		return nil, err
	}
	ms, err := positiveInt("PROVIDER_TIMEOUT_MS", 5000)
	if err != nil {
		return nil, err
	}
	cfg.ProviderTimeout = time.Duration(ms) * time.Millisecond
	if cfg.WalkSpeed, err = positiveFloat("WALK_SPEED_M_PER_MIN", 80); err != nil {
		return nil, err
	}
	cfg.MajorStationTerms = splitList(getenvDefault("MAJOR_STATION_TERMS", "bahnhof,station"))

	// Estimates used when a ride cannot be routed
	bikeMin, err := positiveFloat("BIKE_FALLBACK_MIN", 18)
	if err != nil {
		return nil, err
	}
	cfg.BikeFallback = minutes(bikeMin)
	scooterMin, err := positiveFloat("SCOOTER_FALLBACK_MIN", 10)
	if err != nil {
		return nil, err
	}
	cfg.ScooterFallback = minutes(scooterMin)
	if cfg.BikeFlatRate, err = nonNegativeFloat("BIKE_FLAT_RATE", 4.0); err != nil {
		return nil, err
	}
	if cfg.ScooterUnlockFee, err = nonNegativeFloat("SCOOTER_UNLOCK_FEE", 1.0); err != nil {
		return nil, err
	}
	if cfg.ScooterPerMinute, err = nonNegativeFloat("SCOOTER_PER_MINUTE", 0.29); err != nil {
		return nil, err
	}

	// Database URL (cluster DSN): prefer DATABASE_URL / PG_DSN, else build from PG* vars.
	// Without any of them the GTFS station lookup is disabled.
	cfg.City = firstNonEmpty(os.Getenv("CITY"), os.Getenv("CITY_NAME"))
	dsn := firstNonEmpty(
		os.Getenv("DATABASE_URL"),
		os.Getenv("PG_DSN"),
	)
	if dsn == "" {
		db := os.Getenv("PGDATABASE")
		// If CITY is provided, default base DB to 'postgres' when PGDATABASE is not set.
		if db == "" && cfg.City != "" {
			db = "postgres"
		}
		if db != "" {
			host := getenvDefault("PGHOST", "127.0.0.1")
			port := getenvDefault("PGPORT", "5432")
			user := getenvDefault("PGUSER", "postgres")
			pass := os.Getenv("PGPASSWORD")
			sslmode := getenvDefault("PGSSLMODE", "disable")
			if pass != "" {
				cfg.DatabaseURL = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", urlEscape(user), urlEscape(pass), host, port, db, sslmode)
			} else {
				cfg.DatabaseURL = fmt.Sprintf("postgres://%s@%s:%s/%s?sslmode=%s", urlEscape(user), host, port, db, sslmode)
			}
		}
	} else {
		cfg.DatabaseURL = dsn
	}

	// Empty NATS_URL disables route publishing
	cfg.NATSURL = os.Getenv("NATS_URL")
	cfg.NATSSubjectPrefix = strings.Trim(getenvDefault("NATS_SUBJECT_PREFIX", "routes.augmented"), ".")

	// Debug logging for NATS publish subjects
	if v := os.Getenv("LOG_NATS_SUBJECTS"); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "t", "yes", "y", "on":
			cfg.LogNATSSubjects = true
		default:
			cfg.LogNATSSubjects = false
		}
	}

	// Metrics listen address (e.g., ":9102"). Empty disables the metrics server.
	cfg.MetricsAddr = os.Getenv("METRICS_ADDR")

	return cfg, nil
}

func positiveInt(name string, def int) (int, error) {
	v := os.Getenv(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", name, v)
	}
	return n, nil
}

func positiveFloat(name string, def float64) (float64, error) {
	v := os.Getenv(name)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", name, v)
	}
	return f, nil
}

// nonNegativeFloat is positiveFloat for prices, where zero means free.
func nonNegativeFloat(name string, def float64) (float64, error) {
	v := os.Getenv(name)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		return 0, fmt.Errorf("invalid %s: %q", name, v)
	}
	return f, nil
}

func minutes(m float64) time.Duration {
	return time.Duration(m * float64(time.Minute))
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func urlEscape(s string) string {
	// Minimal escape for DSN user/pass with special chars
	r := strings.NewReplacer("@", "%40", ":", "%3A", "/", "%2F", "?", "%3F", "#", "%23")
	return r.Replace(s)
}
