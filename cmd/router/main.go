package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"multimodal-router/internal/alternatives"
	"multimodal-router/internal/api"
	"multimodal-router/internal/augment"
	"multimodal-router/internal/config"
	"multimodal-router/internal/db"
	"multimodal-router/internal/itinerary"
	"multimodal-router/internal/metrics"
	"multimodal-router/internal/mobility"
	"multimodal-router/internal/planner"
	"multimodal-router/internal/publisher"
)

func main() {
	// Load configuration from .env and environment
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	// Root context with cancellation on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Metrics setup
	var mcol *metrics.Collector
	if cfg.MetricsAddr != "" {
		mcol = metrics.NewCollector(cfg.SearchRadius, cfg.ProviderTimeout)
		srv := mcol.Serve(cfg.MetricsAddr)
		defer shutdown(srv)
	}

	opts := planner.Options{
		MaxItineraries: cfg.MaxItineraries,
		StationTerms:   cfg.MajorStationTerms,
		DefaultModes:   []mobility.Mode{mobility.BikeShare, mobility.ScooterShare},
	}
	if mcol != nil {
		opts.Metrics = mcol
	}

	// GTFS stations are optional; without a database only the name terms mark major stations
	if cfg.DatabaseURL != "" {
		sqlDB, name, err := db.Connect(ctx, cfg.DatabaseURL, cfg.City)
		if err != nil {
			log.Fatalf("db error: %v", err)
		}
		defer sqlDB.Close()
		if name != "" {
			log.Printf("Using database %q for city %q", name, cfg.City)
		}
		opts.Stations = db.NewStationStore(sqlDB)
	}

	// Route events are optional as well
	if cfg.NATSURL != "" {
		pub, err := publisher.NewNATSPublisher(cfg.NATSURL, cfg.NATSSubjectPrefix, cfg.LogNATSSubjects, wrapPublisherMetrics(mcol))
		if err != nil {
			log.Fatalf("nats error: %v", err)
		}
		defer pub.Close()
		opts.Publisher = pub
	}

	otp := itinerary.NewOTPClient(cfg.OTPBaseURL, cfg.OTPRouterID, cfg.OTPTimeout)
	bikes := mobility.NewPubliBike(cfg.PubliBikeBase, cfg.ProviderTimeout)
	scooters := mobility.NewSharedMobility(cfg.SharedMobilityBase, cfg.ScooterProviderID, cfg.ProviderTimeout)

	var finderMetrics alternatives.Metrics
	if mcol != nil {
		finderMetrics = mcol
	}
	finder := alternatives.NewFinder(finderConfig(cfg), otp, finderMetrics, bikes, scooters)
	svc := planner.NewService(otp, augment.New(finder), opts)

	handler := api.NewHandler(svc, scooters, cfg.SearchRadius, cfg.ProviderTimeout)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.NewRouter(handler, cfg.CORSAllowedOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("http server error: %v", err)
			cancel()
		}
	}()
	log.Printf("router listening on %s (otp %s)", cfg.HTTPAddr, cfg.OTPBaseURL)

	// Block until context cancelled
	<-ctx.Done()
	shutdown(srv)
	log.Println("shutdown complete")
}

func finderConfig(cfg *config.Config) alternatives.Config {
	fc := alternatives.DefaultConfig()
	fc.SearchRadius = cfg.SearchRadius
	fc.WalkSpeed = cfg.WalkSpeed
	fc.CallTimeout = cfg.ProviderTimeout

	bike := alternatives.BikeShareProfile()
	bike.FallbackRide = cfg.BikeFallback
	bike.FlatRate = alternatives.Flat(cfg.BikeFlatRate)

	scooter := alternatives.ScooterShareProfile()
	scooter.FallbackRide = cfg.ScooterFallback
	scooter.UnlockFee = cfg.ScooterUnlockFee
	scooter.PerMinute = cfg.ScooterPerMinute
	scooter.MinBattery = cfg.ScooterMinBattery

	fc.Profiles = map[mobility.Mode]alternatives.Profile{
		mobility.BikeShare:    bike,
		mobility.ScooterShare: scooter,
	}
	return fc
}

func shutdown(srv *http.Server) {
	// Shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

// wrapPublisherMetrics adapts our Collector to the PublisherMetrics interface.
func wrapPublisherMetrics(c *metrics.Collector) publisher.PublisherMetrics {
	if c == nil {
		return nil
	}
	return &pubMetrics{c: c}
}

type pubMetrics struct{ c *metrics.Collector }

func (p *pubMetrics) NATSPublishedInc()              { p.c.NATSPublished.Inc() }
func (p *pubMetrics) NATSPublishErrInc()             { p.c.NATSPublishErrs.Inc() }
func (p *pubMetrics) PublishObserve(d time.Duration) { p.c.PublishDuration.Observe(d.Seconds()) }
func (p *pubMetrics) NATSSetConnected(b bool) {
	if b {
		p.c.NATSConnected.Set(1)
	} else {
		p.c.NATSConnected.Set(0)
	}
}
