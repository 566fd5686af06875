// Package gateway serves chart sessions over WebSocket and the chart REST API.
// Each connection owns one chart.Chart driven by a single session goroutine;
// the Hub keeps the shared native series and fans live candles out to every
// session.
package gateway

import (
	"context"
	"log/slog"
	"sync"

	"ohlcchart/internal/chart"
	"ohlcchart/internal/chart/validate"
	"ohlcchart/internal/marketdata/bus"
	"ohlcchart/internal/metrics"
	"ohlcchart/internal/model"
)

const defaultSessionBuffer = 256

// Options configures a Hub.
type Options struct {
	// Chart is the template each session's chart starts from.
	Chart chart.Options

	// TOTPSecret, when set, gates /ws behind a one-time code.
	TOTPSecret string

	// AllowedOrigins for CORS on the REST API. Empty allows all.
	AllowedOrigins []string

	Metrics *metrics.Metrics
	Health  *metrics.HealthStatus

	// SessionBuffer is the per-session live update queue length.
	SessionBuffer int
}

// Hub owns the native series shared by all sessions.
type Hub struct {
	opts Options
	fan  *bus.FanOut
	log  *slog.Logger

	mu       sync.RWMutex
	history  []model.Candle // replaced, never mutated in place
	report   validate.Report
	sessions map[string]*Session
}

// NewHub creates a Hub with an empty series.
func NewHub(opts Options) *Hub {
	if opts.SessionBuffer <= 0 {
		opts.SessionBuffer = defaultSessionBuffer
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewMetrics()
	}
	if opts.Health == nil {
		opts.Health = metrics.NewHealthStatus()
	}
	h := &Hub{
		opts:     opts,
		fan:      bus.New(opts.SessionBuffer),
		log:      slog.With("component", "gateway"),
		history:  []model.Candle{},
		sessions: make(map[string]*Session),
	}
	h.fan.OnDrop = func(id int) {
		h.opts.Metrics.FanoutDropsTotal.Inc()
		h.log.Warn("session queue full, live update dropped", "subscriber", id)
	}
	return h
}

// SetHistory replaces the native series with raw candles.
func (h *Hub) SetHistory(raw []model.Candle) validate.Report {
	series, rep := validate.Normalize(raw)
	series = validate.Tail(series, h.opts.Chart.MaxCandles)

	h.mu.Lock()
	h.history = series
	h.report = rep
	h.mu.Unlock()

	h.opts.Metrics.CandlesIngested.WithLabelValues("history").Add(float64(len(series)))
	h.opts.Metrics.RecordDrops(rep.Dropped, rep.Duplicates, 0)
	h.updateHealth(series)
	h.log.Info("history loaded", "candles", len(series), "dropped", rep.Dropped, "duplicates", rep.Duplicates)
	return rep
}

// History returns the current native series. The slice must not be modified.
func (h *Hub) History() []model.Candle {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.history
}

// Ingest merges one live candle into the shared series and forwards it to
// every session. Invalid candles are counted and dropped.
func (h *Hub) Ingest(u bus.Update) {
	if h.merge(u) {
		h.fan.Publish(u)
	}
}

func (h *Hub) merge(u bus.Update) bool {
	if !validate.Valid(u.Candle) {
		h.opts.Metrics.RecordDrops(1, 0, 0)
		return false
	}
	h.mu.Lock()
	h.history = validate.Tail(validate.Merge(h.history, []model.Candle{u.Candle}), h.opts.Chart.MaxCandles)
	series := h.history
	h.mu.Unlock()

	if u.Closed {
		h.opts.Metrics.CandlesIngested.WithLabelValues("live").Inc()
	}
	h.updateHealth(series)
	return true
}

// Run ingests live updates until ctx is cancelled or in is closed, then
// closes every session's update channel.
func (h *Hub) Run(ctx context.Context, in <-chan bus.Update) {
	merged := make(chan bus.Update, h.opts.SessionBuffer)
	go func() {
		defer close(merged)
		for {
			select {
			case <-ctx.Done():
				return
			case u, ok := <-in:
				if !ok {
					return
				}
				if !h.merge(u) {
					continue
				}
				select {
				case merged <- u:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	h.fan.Run(ctx, merged)
}

// Sessions returns the number of connected sessions.
func (h *Hub) Sessions() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

func (h *Hub) addSession(s *Session) {
	h.mu.Lock()
	h.sessions[s.id] = s
	n := len(h.sessions)
	h.mu.Unlock()
	h.opts.Metrics.SessionsActive.Set(float64(n))
	h.opts.Health.SetSessions(n)
}

func (h *Hub) removeSession(s *Session) {
	h.mu.Lock()
	delete(h.sessions, s.id)
	n := len(h.sessions)
	h.mu.Unlock()
	h.opts.Metrics.SessionsActive.Set(float64(n))
	h.opts.Health.SetSessions(n)
}

func (h *Hub) updateHealth(series []model.Candle) {
	var last int64
	if len(series) > 0 {
		last = series[len(series)-1].Time
	}
	h.opts.Health.SetSeries(len(series), last)
}
