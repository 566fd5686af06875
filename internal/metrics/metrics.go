// Package metrics exposes Prometheus collectors and the health endpoint for
// the chart host.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the chart host's Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	CandlesIngested  *prometheus.CounterVec // labels: source
	CandlesDropped   *prometheus.CounterVec // labels: reason=invalid|duplicate|unparseable
	EventsTotal      *prometheus.CounterVec // labels: type
	ViewportUpdates  *prometheus.CounterVec // labels: cause=fit|zoom|pan|set
	SessionsActive   prometheus.Gauge
	AggregateDur     prometheus.Histogram
	CycleDur         prometheus.Histogram
	FanoutDropsTotal prometheus.Counter
	LiveStaleTotal   prometheus.Counter

	RedisCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisCircuitBreakerTrips prometheus.Counter
	RedisBufferedCandles     prometheus.Gauge
}

// NewMetrics creates the collectors on a private registry that also carries
// the Go runtime and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		CandlesIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chart_candles_ingested_total",
			Help: "Candles accepted into a chart series",
		}, []string{"source"}),
		CandlesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chart_candles_dropped_total",
			Help: "Candles removed during ingestion",
		}, []string{"reason"}),
		EventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chart_events_total",
			Help: "Interaction events dispatched to chart sessions",
		}, []string{"type"}),
		ViewportUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chart_viewport_updates_total",
			Help: "Viewport replacements by cause",
		}, []string{"cause"}),
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chart_sessions_active",
			Help: "Connected chart sessions",
		}),
		AggregateDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "chart_aggregate_duration_seconds",
			Help:    "Time to re-aggregate a series for a timeframe",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
		}),
		CycleDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "chart_cycle_duration_seconds",
			Help:    "Time from receiving a session message to publishing its snapshot",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
		}),
		FanoutDropsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chart_fanout_drops_total",
			Help: "Live updates dropped for slow sessions",
		}),
		LiveStaleTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chart_live_stale_total",
			Help: "Live candles older than a session's forming bucket",
		}),
		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chart_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chart_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker opened",
		}),
		RedisBufferedCandles: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chart_redis_buffered_candles",
			Help: "Candles held while Redis is unavailable",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.CandlesIngested,
		m.CandlesDropped,
		m.EventsTotal,
		m.ViewportUpdates,
		m.SessionsActive,
		m.AggregateDur,
		m.CycleDur,
		m.FanoutDropsTotal,
		m.LiveStaleTotal,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
		m.RedisBufferedCandles,
	)
	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveAggregate records how long an aggregation started at start took.
func (m *Metrics) ObserveAggregate(start time.Time) {
	m.AggregateDur.Observe(time.Since(start).Seconds())
}

// ObserveCycle records one session cycle started at start.
func (m *Metrics) ObserveCycle(start time.Time) {
	m.CycleDur.Observe(time.Since(start).Seconds())
}

// RecordDrops adds the per-reason drop counts of one ingestion.
func (m *Metrics) RecordDrops(invalid, duplicates, unparseable int) {
	if invalid > 0 {
		m.CandlesDropped.WithLabelValues("invalid").Add(float64(invalid))
	}
	if duplicates > 0 {
		m.CandlesDropped.WithLabelValues("duplicate").Add(float64(duplicates))
	}
	if unparseable > 0 {
		m.CandlesDropped.WithLabelValues("unparseable").Add(float64(unparseable))
	}
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	addr string
	srv  *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, m *Metrics, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.Handle("/healthz", health)

	return &Server{
		addr: addr,
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log().Info("metrics server listening", "addr", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log().Error("metrics server error", "error", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
