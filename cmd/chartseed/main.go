// cmd/chartseed fills the candle store and drives the live stream.
//
// Usage:
//
//	chartseed import --file candles.json      # or --generate 1000
//	chartseed replay --speed 60 --forming 4    # SQLite → Redis stream
//	chartseed live --interval 1s               # random walk → SQLite + Redis
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"ohlcchart/config"
	"ohlcchart/internal/chart/validate"
	"ohlcchart/internal/feed"
	"ohlcchart/internal/logger"
	"ohlcchart/internal/marketdata/bus"
	"ohlcchart/internal/marketdata/replay"
	"ohlcchart/internal/metrics"
	"ohlcchart/internal/model"
	redisstore "ohlcchart/internal/store/redis"
	sqlitestore "ohlcchart/internal/store/sqlite"
)

func main() {
	cfg := config.Load()
	logger.Init("chartseed", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(cfg).ExecuteContext(ctx); err != nil && ctx.Err() == nil {
		logger.With("chartseed").Error("failed", "error", err)
		os.Exit(1)
	}
}

func newRootCmd(cfg *config.Config) *cobra.Command {
	root := &cobra.Command{
		Use:           "chartseed",
		Short:         "Fill the candle store and drive the live candle stream",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("symbol", cfg.Symbol, "Symbol to operate on")
	root.PersistentFlags().String("db", cfg.SQLitePath, "SQLite database path")
	root.AddCommand(importCmd(cfg), replayCmd(cfg), liveCmd(cfg))
	return root
}

// target reads the shared --symbol and --db flags.
func target(cmd *cobra.Command) (symbol, db string) {
	symbol, _ = cmd.Flags().GetString("symbol")
	db, _ = cmd.Flags().GetString("db")
	return symbol, db
}

func openWriter(path string) (*sqlitestore.Writer, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	return sqlitestore.New(sqlitestore.WriterConfig{DBPath: path})
}

type importOptions struct {
	file     string
	generate int
	seed     int64
}

func importCmd(cfg *config.Config) *cobra.Command {
	var o importOptions
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Load a candle file or a generated walk into SQLite",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			symbol, db := target(cmd)
			return runImport(cmd.Context(), symbol, db, o)
		},
	}
	cmd.Flags().StringVar(&o.file, "file", "", "JSON or YAML candle file")
	cmd.Flags().IntVar(&o.generate, "generate", 0, "Generate N one-minute random-walk candles instead")
	cmd.Flags().Int64Var(&o.seed, "seed", time.Now().UnixNano(), "Random seed for --generate")
	return cmd
}

func runImport(ctx context.Context, symbol, db string, o importOptions) error {
	log := logger.With("import")

	var raw []model.Candle
	switch {
	case o.file != "":
		candles, rep, err := feed.LoadFile(o.file)
		if err != nil {
			return err
		}
		log.Info("decoded candle file", "records", rep.Records, "rejected", rep.Rejected)
		raw = candles
	case o.generate > 0:
		raw = feed.Generate(o.generate, time.Now().UnixMilli(), o.seed)
	default:
		return fmt.Errorf("import needs --file or --generate")
	}

	candles, rep := validate.Normalize(raw)
	log.Info("normalized", "candles", len(candles), "dropped", rep.Dropped, "duplicates", rep.Duplicates)

	w, err := openWriter(db)
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.WriteCandles(ctx, symbol, candles); err != nil {
		return err
	}
	log.Info("import complete", "symbol", symbol, "candles", len(candles), "db", db)
	return nil
}

func newPublisher(ctx context.Context, cfg *config.Config, symbol string, prom *metrics.Metrics) (*redisstore.Publisher, error) {
	cb := redisstore.NewCircuitBreaker(5, 10*time.Second)
	cb.OnStateChange = func(from, to redisstore.State) {
		prom.RedisCircuitBreakerState.Set(float64(to))
		if to == redisstore.StateOpen {
			prom.RedisCircuitBreakerTrips.Inc()
		}
		logger.With("redis").Warn("circuit breaker", "from", from.String(), "to", to.String())
	}
	return redisstore.NewPublisher(ctx, redisstore.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		Symbol:   symbol,
		Stream:   cfg.RedisStream,
	}, cb)
}

// publish sends updates to Redis until ctx ends or updates closes.
func publish(ctx context.Context, p *redisstore.Publisher, prom *metrics.Metrics, updates <-chan bus.Update) {
	log := logger.With("publish")
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			var err error
			if u.Closed {
				err = p.Publish(ctx, u.Candle)
			} else {
				err = p.PublishForming(ctx, u.Candle)
			}
			buffered, _ := p.Pending()
			prom.RedisBufferedCandles.Set(float64(buffered))
			if err != nil {
				log.Debug("publish failed", "time", u.Candle.Time, "closed", u.Closed, "error", err)
			}
		}
	}
}

func replayCmd(cfg *config.Config) *cobra.Command {
	var o replay.Options
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay stored candles onto the Redis stream",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			symbol, db := target(cmd)
			o.Symbol = symbol
			return runReplay(cmd.Context(), cfg, db, o)
		},
	}
	cmd.Flags().Float64Var(&o.Speed, "speed", 60, "Playback speed multiplier (0=max, 1=realtime)")
	cmd.Flags().IntVar(&o.Forming, "forming", 0, "Forming updates per candle")
	cmd.Flags().Int64Var(&o.From, "from", 0, "First candle time, Unix ms (0=all)")
	cmd.Flags().Int64Var(&o.To, "to", 0, "Stop before this candle time, Unix ms (0=all)")
	return cmd
}

func runReplay(ctx context.Context, cfg *config.Config, db string, o replay.Options) error {
	prom := metrics.NewMetrics()
	reader, err := sqlitestore.NewReader(db)
	if err != nil {
		return err
	}
	defer reader.Close()

	pub, err := newPublisher(ctx, cfg, o.Symbol, prom)
	if err != nil {
		return err
	}
	defer pub.Close()

	updates := make(chan bus.Update, 256)
	done := make(chan struct{})
	go func() {
		publish(ctx, pub, prom, updates)
		close(done)
	}()

	n, err := replay.New(reader).Run(ctx, o, updates)
	close(updates)
	<-done
	logger.With("replay").Info("replay finished", "candles", n)
	return err
}

type liveOptions struct {
	interval time.Duration
	forming  int
	price    float64
}

func liveCmd(cfg *config.Config) *cobra.Command {
	var o liveOptions
	cmd := &cobra.Command{
		Use:   "live",
		Short: "Generate a live random walk into SQLite and Redis",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if o.interval <= 0 || o.forming < 0 {
				return fmt.Errorf("live needs --interval > 0 and --forming >= 0")
			}
			symbol, db := target(cmd)
			return runLive(cmd.Context(), cfg, symbol, db, o)
		},
	}
	cmd.Flags().DurationVar(&o.interval, "interval", time.Second, "Wall time per generated candle")
	cmd.Flags().IntVar(&o.forming, "forming", 3, "Forming updates per candle")
	cmd.Flags().Float64Var(&o.price, "price", 100, "Starting price when the store is empty")
	return cmd
}

func runLive(ctx context.Context, cfg *config.Config, symbol, db string, o liveOptions) error {
	log := logger.With("live")
	prom := metrics.NewMetrics()

	w, err := openWriter(db)
	if err != nil {
		return err
	}
	defer w.Close()

	// Continue after the newest stored candle.
	start := tfStart(time.Now().UnixMilli())
	last, err := w.LastTime(ctx, symbol)
	if err != nil {
		return err
	}
	if last > 0 {
		start = last + model.MinuteMs
	}

	pub, err := newPublisher(ctx, cfg, symbol, prom)
	if err != nil {
		log.Warn("redis unavailable, storing only", "error", err)
	}

	persist := make(chan model.Candle, 256)
	stored := make(chan struct{})
	go func() {
		w.Run(ctx, symbol, persist)
		close(stored)
	}()

	updates := make(chan bus.Update, 256)
	published := make(chan struct{})
	go func() {
		if pub != nil {
			publish(ctx, pub, prom, updates)
			pub.Close()
		} else {
			for range updates {
			}
		}
		close(published)
	}()

	walker := feed.NewWalker(time.Now().UnixNano(), start, o.price, model.MinuteMs)
	ticker := time.NewTicker(o.interval / time.Duration(o.forming+1))
	defer ticker.Stop()

	shutdown := func() {
		close(updates)
		close(persist)
		<-published
		<-stored
	}

	log.Info("generating", "symbol", symbol, "start", start, "interval", o.interval.String())
	c := walker.Next()
	step := 0
	for {
		select {
		case <-ctx.Done():
			shutdown()
			return nil
		case <-ticker.C:
		}
		if step < o.forming {
			step++
			offer(updates, bus.Update{Candle: replay.Partial(c, step, o.forming+1)})
			continue
		}
		offer(updates, bus.Update{Candle: c, Closed: true})
		select {
		case persist <- c:
		case <-ctx.Done():
			shutdown()
			return nil
		}
		c = walker.Next()
		step = 0
	}
}

// offer drops u when the publisher is behind; the closed candle still
// reaches SQLite.
func offer(ch chan<- bus.Update, u bus.Update) {
	select {
	case ch <- u:
	default:
	}
}

// tfStart floors a Unix ms time to its minute.
func tfStart(ms int64) int64 {
	return ms - ms%model.MinuteMs
}
