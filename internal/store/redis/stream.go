package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"ohlcchart/internal/feed"
	"ohlcchart/internal/model"

	"github.com/cenkalti/backoff/v4"
	goredis "github.com/go-redis/redis/v8"
)

const (
	blockTimeout = 2 * time.Second
	// retryWindow bounds how long XREAD errors are retried before giving up.
	retryWindow = time.Minute
)

// Stream reads a symbol's candle stream.
type Stream struct {
	client *goredis.Client
	stream string
	pubsub string
}

// NewStream connects to Redis.
func NewStream(ctx context.Context, cfg Config) (*Stream, error) {
	client, err := newClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	slog.Info("redis stream connected", "addr", cfg.Addr, "stream", cfg.streamKey())
	return &Stream{
		client: client,
		stream: cfg.streamKey(),
		pubsub: FormingChannel(cfg.Symbol),
	}, nil
}

// Client returns the underlying Redis client for health checks.
func (s *Stream) Client() *goredis.Client { return s.client }

// Backfill returns up to count of the newest closed candles, oldest first,
// and the stream ID to continue from.
func (s *Stream) Backfill(ctx context.Context, count int64) ([]model.Candle, string, error) {
	msgs, err := s.client.XRevRangeN(ctx, s.stream, "+", "-", count).Result()
	if err != nil {
		return nil, "", fmt.Errorf("xrevrange %s: %w", s.stream, err)
	}
	if len(msgs) == 0 {
		return nil, "$", nil
	}
	out := make([]model.Candle, 0, len(msgs))
	for i := len(msgs) - 1; i >= 0; i-- {
		c, err := decodeValues(msgs[i].Values)
		if err != nil {
			slog.Warn("redis stream entry skipped", "id", msgs[i].ID, "error", err)
			continue
		}
		out = append(out, c)
	}
	return out, msgs[0].ID, nil
}

// Subscribe blocks on XREAD from the newest entry and sends each closed
// candle to out. Returns nil when ctx is cancelled.
func (s *Stream) Subscribe(ctx context.Context, out chan<- model.Candle) error {
	return s.SubscribeFrom(ctx, "$", out)
}

// SubscribeFrom is Subscribe starting after lastID. Read errors are retried
// with exponential backoff for up to retryWindow.
func (s *Stream) SubscribeFrom(ctx context.Context, lastID string, out chan<- model.Candle) error {
	bo := newBackoff()
	for {
		res, err := s.client.XRead(ctx, &goredis.XReadArgs{
			Streams: []string{s.stream, lastID},
			Count:   100,
			Block:   blockTimeout,
		}).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, goredis.Nil) {
				continue
			}
			wait := bo.NextBackOff()
			if wait == backoff.Stop {
				return fmt.Errorf("xread %s: %w", s.stream, err)
			}
			slog.Warn("redis xread failed, retrying", "stream", s.stream, "wait", wait, "error", err)
			select {
			case <-time.After(wait):
				continue
			case <-ctx.Done():
				return nil
			}
		}
		bo.Reset()
		for _, st := range res {
			for _, msg := range st.Messages {
				lastID = msg.ID
				c, err := decodeValues(msg.Values)
				if err != nil {
					slog.Warn("redis stream entry skipped", "id", msg.ID, "error", err)
					continue
				}
				select {
				case out <- c:
				case <-ctx.Done():
					return nil
				}
			}
		}
	}
}

func newBackoff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxInterval = 10 * time.Second
	bo.MaxElapsedTime = retryWindow
	return bo
}

// SubscribeForming relays forming-candle updates from Pub/Sub until ctx is
// cancelled.
func (s *Stream) SubscribeForming(ctx context.Context, out chan<- model.Candle) error {
	sub := s.client.Subscribe(ctx, s.pubsub)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", s.pubsub, err)
	}
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			c, err := feed.ParseMessage([]byte(msg.Payload))
			if err != nil {
				slog.Warn("redis forming message skipped", "error", err)
				continue
			}
			select {
			case out <- c:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// Close closes the Redis client.
func (s *Stream) Close() error {
	return s.client.Close()
}

var _ model.CandleStream = (*Stream)(nil)
