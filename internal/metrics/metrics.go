package metrics

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	reg *prometheus.Registry

	Augmentations   *prometheus.CounterVec // result label: ok|error
	AugmentDuration prometheus.Histogram
	Transfers       prometheus.Histogram

	ProviderQueries  *prometheus.CounterVec // provider
	ProviderFailures *prometheus.CounterVec // provider, reason: error|timeout
	ProviderLatency  *prometheus.HistogramVec

	RoutingFallbacks *prometheus.CounterVec // mode
	Alternatives     *prometheus.CounterVec // mode

	StationLoads *prometheus.CounterVec // result label: ok|error

	NATSPublished   prometheus.Counter
	NATSPublishErrs prometheus.Counter
	NATSConnected   prometheus.Gauge
	PublishDuration prometheus.Histogram

	SearchRadius    prometheus.Gauge // meters
	ProviderTimeout prometheus.Gauge // seconds
}

func NewCollector(searchRadius float64, providerTimeout time.Duration) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		Augmentations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "router_augmentations_total",
			Help: "Itineraries augmented, by result.",
		}, []string{"result"}),
		AugmentDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "router_augment_duration_seconds",
			Help:    "Time to segment one itinerary and collect its alternatives.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		Transfers: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "router_itinerary_transfers",
			Help:    "Transfers per augmented itinerary.",
			Buckets: prometheus.LinearBuckets(0, 1, 8),
		}),
		ProviderQueries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "router_provider_queries_total",
			Help: "Mobility provider nearby queries.",
		}, []string{"provider"}),
		ProviderFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "router_provider_failures_total",
			Help: "Mobility provider queries that failed or timed out.",
		}, []string{"provider", "reason"}),
		ProviderLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "router_provider_query_duration_seconds",
			Help:    "Latency of mobility provider queries.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"provider"}),
		RoutingFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "router_routing_fallbacks_total",
			Help: "Alternatives estimated from fallback constants because the ride could not be routed.",
		}, []string{"mode"}),
		Alternatives: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "router_alternatives_total",
			Help: "Alternatives attached to segments.",
		}, []string{"mode"}),
		StationLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "router_station_loads_total",
			Help: "GTFS station lookups, by result.",
		}, []string{"result"}),
		NATSPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "router_nats_published_total",
			Help: "Total NATS messages published.",
		}),
		NATSPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "router_nats_publish_errors_total",
			Help: "Total NATS publish errors.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "router_nats_connected",
			Help: "1 if NATS connection is established, 0 otherwise.",
		}),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "router_publish_duration_seconds",
			Help:    "Duration to marshal and publish a NATS message.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
		SearchRadius: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "router_search_radius_meters",
			Help: "Provider search radius in meters.",
		}),
		ProviderTimeout: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "router_provider_timeout_seconds",
			Help: "Per-call provider and routing timeout in seconds.",
		}),
	}

	// Register
	reg.MustRegister(
		c.Augmentations, c.AugmentDuration, c.Transfers,
		c.ProviderQueries, c.ProviderFailures, c.ProviderLatency,
		c.RoutingFallbacks, c.Alternatives, c.StationLoads,
		c.NATSPublished, c.NATSPublishErrs, c.NATSConnected, c.PublishDuration,
		c.SearchRadius, c.ProviderTimeout,
	)

	// Static gauges
	c.SearchRadius.Set(searchRadius)
	c.ProviderTimeout.Set(providerTimeout.Seconds())

	return c
}

func (c *Collector) ObserveProviderQuery(provider string, d time.Duration, err error) {
	c.ProviderQueries.WithLabelValues(provider).Inc()
	c.ProviderLatency.WithLabelValues(provider).Observe(d.Seconds())
	if err != nil {
		c.ProviderFailures.WithLabelValues(provider, failureReason(err)).Inc()
	}
}

func (c *Collector) ObserveRoutingFallback(mode string) {
	c.RoutingFallbacks.WithLabelValues(mode).Inc()
}

func (c *Collector) ObserveAlternative(mode string) {
	c.Alternatives.WithLabelValues(mode).Inc()
}

func (c *Collector) ObserveAugmentation(d time.Duration, transfers int, err error) {
	if err != nil {
		c.Augmentations.WithLabelValues("error").Inc()
		return
	}
	c.Augmentations.WithLabelValues("ok").Inc()
	c.AugmentDuration.Observe(d.Seconds())
	c.Transfers.Observe(float64(transfers))
}

func (c *Collector) ObserveStationLoad(err error) {
	if err != nil {
		c.StationLoads.WithLabelValues("error").Inc()
		return
	}
	c.StationLoads.WithLabelValues("ok").Inc()
}

func failureReason(err error) string {
	var t interface{ Timeout() bool }
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &t) && t.Timeout()) {
		return "timeout"
	}
	return "error"
}

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Serve starts an HTTP server exposing /metrics on the given address.
func (c *Collector) Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()
	log.Printf("metrics listening on %s", addr)
	return srv
}
