// cmd/chartd serves interactive candlestick chart sessions over WebSocket.
// History comes from SQLite, a candle file, or a generated random walk; live
// candles optionally follow a Redis stream.
package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ohlcchart/config"
	"ohlcchart/internal/chart"
	"ohlcchart/internal/feed"
	"ohlcchart/internal/gateway"
	"ohlcchart/internal/logger"
	"ohlcchart/internal/marketdata/bus"
	"ohlcchart/internal/metrics"
	"ohlcchart/internal/model"
	redisstore "ohlcchart/internal/store/redis"
	sqlitestore "ohlcchart/internal/store/sqlite"

	goredis "github.com/go-redis/redis/v8"
)

const demoCandles = 500

func main() {
	cfg := config.Load()
	log := logger.Init("chartd", cfg.LogLevel)
	log.Info("starting", "addr", cfg.ChartAddr, "symbol", cfg.Symbol, "timeframe", cfg.Timeframe.Label)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, prom, health)
	metricsSrv.Start()

	hub := gateway.NewHub(gateway.Options{
		Chart: chart.Options{
			Width:      cfg.Width,
			Height:     cfg.Height,
			Timeframe:  cfg.Timeframe,
			Padding:    &cfg.Padding,
			ZoomStep:   cfg.ZoomStep,
			MaxCandles: cfg.MaxCandles,
		},
		TOTPSecret:     cfg.TOTPSecret,
		AllowedOrigins: cfg.AllowedOrigins,
		Metrics:        prom,
		Health:         health,
	})

	// ---- History ----
	reader, history := loadHistory(ctx, cfg, prom)
	if reader != nil {
		defer reader.Close()
	}

	// ---- Live feed ----
	updates := make(chan bus.Update, 1024)
	var stream *redisstore.Stream
	if cfg.Live {
		var err error
		stream, err = redisstore.NewStream(ctx, redisstore.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			Symbol:   cfg.Symbol,
			Stream:   cfg.RedisStream,
		})
		if err != nil {
			log.Warn("redis unavailable, continuing without live feed", "error", err)
		} else {
			defer stream.Close()
			// Candles already on the stream but not yet persisted.
			recent, lastID, err := stream.Backfill(ctx, int64(cfg.MaxCandles))
			if err != nil {
				log.Warn("redis backfill failed", "error", err)
				lastID = "$"
			}
			// Normalization keeps the later of equal times, so stream
			// entries win over stored ones.
			history = append(history, recent...)
			go followStream(ctx, stream, lastID, updates)
		}
	}
	hub.SetHistory(history)
	go hub.Run(ctx, updates)

	sqlDB := readerDB(reader)
	if stream != nil || sqlDB != nil {
		health.StartLivenessChecker(ctx, streamClient(stream), sqlDB, 15*time.Second)
	}

	// ---- HTTP ----
	srv := &http.Server{
		Addr:              cfg.ChartAddr,
		Handler:           hub.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("chart server listening", "addr", cfg.ChartAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("chart server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
	metricsSrv.Stop(shutdownCtx)
}

// loadHistory prefers SQLite, then CHART_CANDLE_FILE, then a generated walk.
func loadHistory(ctx context.Context, cfg *config.Config, prom *metrics.Metrics) (*sqlitestore.Reader, []model.Candle) {
	log := logger.With("history")

	if _, err := os.Stat(cfg.SQLitePath); err == nil {
		reader, err := sqlitestore.NewReader(cfg.SQLitePath)
		if err != nil {
			log.Warn("sqlite unavailable", "path", cfg.SQLitePath, "error", err)
		} else {
			candles, err := reader.ReadCandles(ctx, cfg.Symbol, 0, 0)
			if err != nil {
				log.Warn("sqlite read failed", "error", err)
			}
			if len(candles) > 0 {
				log.Info("history from sqlite", "candles", len(candles))
				return reader, candles
			}
			return reader, loadFallback(cfg, prom)
		}
	}
	return nil, loadFallback(cfg, prom)
}

func loadFallback(cfg *config.Config, prom *metrics.Metrics) []model.Candle {
	log := logger.With("history")
	if cfg.CandleFile != "" {
		candles, rep, err := feed.LoadFile(cfg.CandleFile)
		if err == nil {
			prom.RecordDrops(0, 0, rep.Rejected)
			log.Info("history from file", "path", cfg.CandleFile, "records", rep.Records, "rejected", rep.Rejected)
			return candles
		}
		log.Warn("candle file unreadable", "path", cfg.CandleFile, "error", err)
	}
	log.Info("history generated", "candles", demoCandles)
	return feed.Generate(demoCandles, time.Now().UnixMilli(), time.Now().UnixNano())
}

// followStream relays closed and forming candles from Redis into updates.
func followStream(ctx context.Context, s *redisstore.Stream, lastID string, updates chan<- bus.Update) {
	log := logger.With("live")
	closed := make(chan model.Candle, 256)
	forming := make(chan model.Candle, 256)

	go func() {
		if err := s.SubscribeFrom(ctx, lastID, closed); err != nil {
			log.Error("stream subscription ended", "error", err)
		}
	}()
	go func() {
		if err := s.SubscribeForming(ctx, forming); err != nil {
			log.Warn("forming subscription ended", "error", err)
		}
	}()

	for {
		var u bus.Update
		select {
		case <-ctx.Done():
			return
		case c := <-closed:
			u = bus.Update{Candle: c, Closed: true}
		case c := <-forming:
			u = bus.Update{Candle: c}
		}
		select {
		case updates <- u:
		case <-ctx.Done():
			return
		}
	}
}

func readerDB(r *sqlitestore.Reader) *sql.DB {
	if r == nil {
		return nil
	}
	return r.DB()
}

func streamClient(s *redisstore.Stream) *goredis.Client {
	if s == nil {
		return nil
	}
	return s.Client()
}
