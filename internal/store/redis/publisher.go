package redis

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"ohlcchart/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

const (
	// defaultMaxLen keeps roughly a week of one-minute candles.
	defaultMaxLen    = 10080
	defaultBufferCap = 1000
)

// Config configures the Redis connection.
type Config struct {
	Addr     string // e.g. "localhost:6379"
	Password string
	DB       int
	Symbol   string
	Stream   string // overrides StreamKey(Symbol) when set
	MaxLen   int64  // stream trim length, approximate
}

func (c Config) streamKey() string {
	if c.Stream != "" {
		return c.Stream
	}
	return StreamKey(c.Symbol)
}

func newClient(ctx context.Context, cfg Config) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// Publisher appends closed candles to the symbol's stream and broadcasts
// forming candles over Pub/Sub. Writes go through a circuit breaker; while it
// is open, closed candles are held in a bounded buffer and replayed in order
// on the next successful write.
type Publisher struct {
	client *goredis.Client
	cb     *CircuitBreaker
	stream string
	pubsub string
	maxLen int64

	mu      sync.Mutex
	pending []model.Candle
	dropped int
}

// NewPublisher connects to Redis.
func NewPublisher(ctx context.Context, cfg Config, cb *CircuitBreaker) (*Publisher, error) {
	client, err := newClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if cb == nil {
		cb = NewCircuitBreaker(5, 10*time.Second)
	}
	maxLen := cfg.MaxLen
	if maxLen <= 0 {
		maxLen = defaultMaxLen
	}
	slog.Info("redis publisher connected", "addr", cfg.Addr, "stream", cfg.streamKey())
	return &Publisher{
		client: client,
		cb:     cb,
		stream: cfg.streamKey(),
		pubsub: FormingChannel(cfg.Symbol),
		maxLen: maxLen,
	}, nil
}

// Client returns the underlying Redis client for health checks.
func (p *Publisher) Client() *goredis.Client { return p.client }

// Publish appends a closed candle. When the breaker rejects the write the
// candle is buffered and ErrCircuitOpen is returned.
func (p *Publisher) Publish(ctx context.Context, c model.Candle) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	batch := append(p.pending, c)
	err := p.cb.Execute(func() error {
		pipe := p.client.Pipeline()
		for _, x := range batch {
			pipe.XAdd(ctx, &goredis.XAddArgs{
				Stream: p.stream,
				MaxLen: p.maxLen,
				Approx: true,
				Values: encodeValues(x),
			})
		}
		_, err := pipe.Exec(ctx)
		return err
	})
	if err != nil {
		p.pending = p.hold(batch)
		return fmt.Errorf("redis publish: %w", err)
	}
	if n := len(p.pending); n > 0 {
		slog.Info("redis publisher drained buffer", "count", n)
	}
	p.pending = p.pending[:0]
	return nil
}

// hold keeps the newest defaultBufferCap candles.
func (p *Publisher) hold(batch []model.Candle) []model.Candle {
	if over := len(batch) - defaultBufferCap; over > 0 {
		p.dropped += over
		batch = append(batch[:0:0], batch[over:]...)
	}
	return batch
}

// PublishForming broadcasts the in-progress candle. Losses are tolerated.
func (p *Publisher) PublishForming(ctx context.Context, c model.Candle) error {
	return p.cb.Execute(func() error {
		return p.client.Publish(ctx, p.pubsub, c.JSON()).Err()
	})
}

// Pending returns the number of buffered candles and how many were dropped
// from a full buffer.
func (p *Publisher) Pending() (buffered, dropped int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending), p.dropped
}

// Close closes the Redis client.
func (p *Publisher) Close() error {
	return p.client.Close()
}

var _ model.CandlePublisher = (*Publisher)(nil)
