package model

import "context"

// ── Storage Port Interfaces ──
// These decouple the chart host from concrete stores (SQLite, Redis).

// CandleWriter persists native-resolution candles for a symbol.
type CandleWriter interface {
	// WriteCandles upserts a batch. A candle with an existing time replaces it.
	WriteCandles(ctx context.Context, symbol string, candles []Candle) error

	// Run drains candleCh in batches until ctx is cancelled or the channel closes.
	Run(ctx context.Context, symbol string, candleCh <-chan Candle)

	Close() error
}

// CandleReader loads stored candles in ascending time order.
type CandleReader interface {
	// ReadCandles returns candles with from <= time < to. to <= 0 means unbounded.
	ReadCandles(ctx context.Context, symbol string, from, to int64) ([]Candle, error)

	// LastTime returns the newest stored time, or 0 if none.
	LastTime(ctx context.Context, symbol string) (int64, error)

	Close() error
}

// CandlePublisher pushes live candles onto a stream.
type CandlePublisher interface {
	Publish(ctx context.Context, c Candle) error
	Close() error
}

// CandleStream delivers live candles until ctx is cancelled.
type CandleStream interface {
	Subscribe(ctx context.Context, out chan<- Candle) error
	Close() error
}
