package gateway

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/pquerna/otp/totp"

	"ohlcchart/internal/chart"
	"ohlcchart/internal/chart/tfagg"
	"ohlcchart/internal/chart/viewport"
	"ohlcchart/internal/model"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

// WriteJSON writes data as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// WriteError writes {"error": msg}.
func WriteError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, map[string]string{"error": msg})
}

// Router builds the HTTP surface: /ws, the /api group, /healthz and /metrics.
func (h *Hub) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	origins := h.opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Handle("/healthz", h.opts.Health)
	r.Handle("/metrics", h.opts.Metrics.Handler())

	r.With(h.requireTOTP).Get("/ws", h.handleWS)

	r.Route("/api", func(r chi.Router) {
		r.Get("/timeframes", h.handleTimeframes)
		r.Get("/candles", h.handleCandles)
		r.Get("/fit", h.handleFit)
	})
	return r
}

// requireTOTP rejects requests without a valid ?otp= code when a secret is
// configured.
func (h *Hub) requireTOTP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.opts.TOTPSecret != "" && !totp.Validate(r.URL.Query().Get("otp"), h.opts.TOTPSecret) {
			WriteError(w, http.StatusUnauthorized, "invalid one-time code")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// handleWS upgrades the connection and runs a chart session. Query
// parameters tf, width and height override the hub's chart template.
func (h *Hub) handleWS(w http.ResponseWriter, r *http.Request) {
	opts, err := h.sessionOptions(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", "error", err)
		return
	}
	s := newSession(r.Context(), h, conn, opts)
	// The request context ends when the handler returns, so the session
	// runs on a detached one and stops when the peer goes away.
	go s.serve(context.WithoutCancel(r.Context()))
}

func (h *Hub) sessionOptions(r *http.Request) (chart.Options, error) {
	opts := h.opts.Chart
	q := r.URL.Query()
	if v := q.Get("tf"); v != "" {
		tf, err := model.ParseTimeframe(v)
		if err != nil {
			return opts, err
		}
		opts.Timeframe = tf
	}
	if v, err := strconv.ParseFloat(q.Get("width"), 64); err == nil && v > 0 {
		opts.Width = v
	}
	if v, err := strconv.ParseFloat(q.Get("height"), 64); err == nil && v > 0 {
		opts.Height = v
	}
	return opts, nil
}

func (h *Hub) handleTimeframes(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, model.Timeframes)
}

// timeframeParam reads ?tf=, defaulting to the hub's chart timeframe.
func (h *Hub) timeframeParam(r *http.Request) (model.Timeframe, error) {
	v := r.URL.Query().Get("tf")
	if v == "" {
		if h.opts.Chart.Timeframe.Minutes > 0 {
			return h.opts.Chart.Timeframe, nil
		}
		return model.Native, nil
	}
	return model.ParseTimeframe(v)
}

func (h *Hub) handleCandles(w http.ResponseWriter, r *http.Request) {
	tf, err := h.timeframeParam(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, h.aggregate(tf))
}

func (h *Hub) handleFit(w http.ResponseWriter, r *http.Request) {
	tf, err := h.timeframeParam(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	padding := viewport.DefaultPadding
	if p := h.opts.Chart.Padding; p != nil {
		padding = *p
	}
	if v := r.URL.Query().Get("padding"); v != "" {
		p, err := strconv.ParseFloat(v, 64)
		if err != nil || p < 0 || math.IsNaN(p) || math.IsInf(p, 0) {
			WriteError(w, http.StatusBadRequest, "padding must be a finite non-negative number")
			return
		}
		padding = p
	}
	series := h.aggregate(tf)
	WriteJSON(w, http.StatusOK, FitOut{
		Timeframe: tf,
		Viewport:  viewport.FitToData(series, padding),
		Candles:   len(series),
	})
}

func (h *Hub) aggregate(tf model.Timeframe) []model.Candle {
	m := h.opts.Metrics
	start := time.Now()
	series := tfagg.Aggregate(h.History(), tf.Minutes)
	m.ObserveAggregate(start)
	if series == nil {
		series = []model.Candle{}
	}
	return series
}
