package feed

import (
	"math"
	"math/rand"

	"ohlcchart/internal/model"
)

// Walker produces a random-walk candle series at a fixed interval. Each
// candle opens at the previous close.
type Walker struct {
	rng      *rand.Rand
	price    float64
	next     int64
	interval int64
}

// NewWalker starts a walk at price whose first candle is at start.
func NewWalker(seed int64, start int64, price float64, intervalMs int64) *Walker {
	if intervalMs <= 0 {
		intervalMs = model.MinuteMs
	}
	return &Walker{
		rng:      rand.New(rand.NewSource(seed)),
		price:    price,
		next:     start,
		interval: intervalMs,
	}
}

// Next returns the next closed candle.
func (w *Walker) Next() model.Candle {
	vol := 0.5 + w.rng.Float64()
	open := w.price
	closePrice := open + (w.rng.Float64()-0.5)*vol
	c := model.Candle{
		Time:  w.next,
		Open:  open,
		Close: closePrice,
		High:  math.Max(open, closePrice) + w.rng.Float64()*vol*0.3,
		Low:   math.Min(open, closePrice) - w.rng.Float64()*vol*0.3,
	}
	w.price = closePrice
	w.next += w.interval
	return c
}

// Generate returns count one-minute candles ending one interval before end,
// starting at price 100.
func Generate(count int, end int64, seed int64) []model.Candle {
	if count <= 0 {
		return nil
	}
	w := NewWalker(seed, end-int64(count)*model.MinuteMs, 100, model.MinuteMs)
	out := make([]model.Candle, count)
	for i := range out {
		out[i] = w.Next()
	}
	return out
}
