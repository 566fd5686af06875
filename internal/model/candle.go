package model

import (
	"encoding/json"
	"time"
)

// Candle is one OHLC sample for a fixed time bucket.
// Time is the bucket start in Unix milliseconds, not an arbitrary sample time.
type Candle struct {
	Time  int64   `json:"time"` // bucket start (Unix ms, UTC)
	Open  float64 `json:"open"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`
}

// TS returns the bucket start as a UTC time.Time.
func (c Candle) TS() time.Time {
	return time.UnixMilli(c.Time).UTC()
}

// Bull reports whether the candle closed at or above its open.
func (c Candle) Bull() bool {
	return c.Close >= c.Open
}

// JSON returns the JSON-encoded candle (ignoring errors for hot-path usage).
func (c Candle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}

// Contains reports whether t (Unix ms) falls in [Time, Time+intervalMs).
func (c Candle) Contains(t float64, intervalMs int64) bool {
	start := float64(c.Time)
	return t >= start && t < start+float64(intervalMs)
}
