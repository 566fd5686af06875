// Package replay plays stored candles back at a configurable speed, e.g. to
// feed a live chart from history.
package replay

import (
	"context"
	"log/slog"
	"math"
	"time"

	"ohlcchart/internal/marketdata/bus"
	"ohlcchart/internal/model"
)

const maxGap = 5 * time.Second

// Options controls playback.
type Options struct {
	Symbol string
	From   int64   // first candle time in Unix ms (0 = all)
	To     int64   // exclusive upper bound (0 = unbounded)
	Speed  float64 // 1 = real time, 60 = a minute per second, 0 = as fast as possible

	// Forming emits this many partial updates of each candle before the
	// closed one, spread over the candle's scaled duration.
	Forming int
}

// Replayer reads candles from a store and replays them.
type Replayer struct {
	reader model.CandleReader
	sleep  func(ctx context.Context, d time.Duration) error
}

// New creates a Replayer backed by reader.
func New(reader model.CandleReader) *Replayer {
	return &Replayer{reader: reader, sleep: sleepCtx}
}

// Run emits every stored candle in [From, To) to out in time order. Gaps
// between candles are scaled by Speed and capped at five seconds.
func (r *Replayer) Run(ctx context.Context, opts Options, out chan<- bus.Update) (int, error) {
	candles, err := r.reader.ReadCandles(ctx, opts.Symbol, opts.From, opts.To)
	if err != nil {
		return 0, err
	}
	if len(candles) == 0 {
		slog.Info("replay found no candles", "symbol", opts.Symbol)
		return 0, nil
	}
	slog.Info("replay starting", "symbol", opts.Symbol, "candles", len(candles), "speed", opts.Speed)

	emitted := 0
	for i, c := range candles {
		var step time.Duration
		if opts.Speed > 0 && i > 0 {
			step = scaledGap(candles[i-1].Time, c.Time, opts.Speed)
		}

		if opts.Forming > 0 {
			slice := step / time.Duration(opts.Forming+1)
			for k := 1; k <= opts.Forming; k++ {
				if err := r.sleep(ctx, slice); err != nil {
					return emitted, err
				}
				if err := emit(ctx, out, bus.Update{Candle: Partial(c, k, opts.Forming+1)}); err != nil {
					return emitted, err
				}
			}
			step = slice
		}

		if err := r.sleep(ctx, step); err != nil {
			return emitted, err
		}
		if err := emit(ctx, out, bus.Update{Candle: c, Closed: true}); err != nil {
			return emitted, err
		}
		emitted++
	}

	slog.Info("replay completed", "symbol", opts.Symbol, "candles", emitted)
	return emitted, nil
}

// Partial is candle c as it looked k/n of the way through its interval: the
// close moves linearly from open toward the final close, and the extremes
// cover what has been traded so far, never exceeding the final ones.
func Partial(c model.Candle, k, n int) model.Candle {
	if n <= 0 || k >= n {
		return c
	}
	f := float64(k) / float64(n)
	closePrice := c.Open + (c.Close-c.Open)*f
	return model.Candle{
		Time:  c.Time,
		Open:  c.Open,
		Close: closePrice,
		High:  math.Max(c.Open, closePrice) + (c.High-math.Max(c.Open, c.Close))*f,
		Low:   math.Min(c.Open, closePrice) - (math.Min(c.Open, c.Close)-c.Low)*f,
	}
}

func scaledGap(prev, next int64, speed float64) time.Duration {
	gap := time.Duration(next-prev) * time.Millisecond
	if gap <= 0 {
		return 0
	}
	return min(time.Duration(float64(gap)/speed), maxGap)
}

func emit(ctx context.Context, out chan<- bus.Update, u bus.Update) error {
	select {
	case out <- u:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
