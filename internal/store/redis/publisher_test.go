package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"ohlcchart/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

// unreachablePublisher points at a port nothing listens on.
func unreachablePublisher(cb *CircuitBreaker) *Publisher {
	client := goredis.NewClient(&goredis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	return &Publisher{client: client, cb: cb, stream: StreamKey("T"), pubsub: FormingChannel("T"), maxLen: 10}
}

func TestPublisher_BuffersWhileFailing(t *testing.T) {
	cb := NewCircuitBreaker(2, time.Hour)
	p := unreachablePublisher(cb)
	defer p.Close()
	ctx := context.Background()

	for i := int64(1); i <= 4; i++ {
		if err := p.Publish(ctx, model.Candle{Time: i * 60000}); err == nil {
			t.Fatal("expected publish to fail")
		}
	}
	if cb.CurrentState() != StateOpen {
		t.Errorf("expected breaker open, got %v", cb.CurrentState())
	}
	buffered, dropped := p.Pending()
	if buffered != 4 || dropped != 0 {
		t.Errorf("expected 4 buffered 0 dropped, got %d %d", buffered, dropped)
	}

	err := p.Publish(ctx, model.Candle{Time: 5 * 60000})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestPublisher_HoldKeepsNewest(t *testing.T) {
	p := &Publisher{}
	batch := make([]model.Candle, defaultBufferCap+5)
	for i := range batch {
		batch[i].Time = int64(i)
	}
	kept := p.hold(batch)
	if len(kept) != defaultBufferCap {
		t.Fatalf("expected %d kept, got %d", defaultBufferCap, len(kept))
	}
	if kept[0].Time != 5 {
		t.Errorf("expected oldest kept at 5, got %d", kept[0].Time)
	}
	if p.dropped != 5 {
		t.Errorf("expected 5 dropped, got %d", p.dropped)
	}
}
