// Package feed is the boundary between raw candle input and the chart engine.
// It decodes JSON and YAML records, normalizes their timestamps to Unix
// milliseconds, and rejects records it cannot interpret. OHLC validity is not
// checked here; that is the validator's job.
package feed

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"ohlcchart/internal/model"
)

// secondsCutoff separates epoch seconds from epoch milliseconds: 1e11 s is in
// the year 5138, 1e11 ms is in March 1973.
const secondsCutoff = 1e11

var (
	ErrNoTime      = errors.New("feed: record has no time")
	ErrBadTime     = errors.New("feed: unparseable time")
	ErrNoPrice     = errors.New("feed: record is missing a price")
	ErrUnsupported = errors.New("feed: unsupported file type")
)

// Record is one raw input record. Time may be given under "time" or
// "timestamp" as an ISO-8601 string, epoch seconds or epoch milliseconds.
// Prices are pointers so a missing or null price is told apart from 0.
type Record struct {
	Time      any      `json:"time,omitempty" yaml:"time,omitempty"`
	Timestamp any      `json:"timestamp,omitempty" yaml:"timestamp,omitempty"`
	Open      *float64 `json:"open" yaml:"open"`
	High      *float64 `json:"high" yaml:"high"`
	Low       *float64 `json:"low" yaml:"low"`
	Close     *float64 `json:"close" yaml:"close"`
}

// Candle converts the record, normalizing its time to Unix milliseconds.
// Records without all four prices are rejected with ErrNoPrice.
func (r Record) Candle() (model.Candle, error) {
	if r.Open == nil || r.High == nil || r.Low == nil || r.Close == nil {
		return model.Candle{}, ErrNoPrice
	}
	raw := r.Time
	if raw == nil {
		raw = r.Timestamp
	}
	if raw == nil {
		return model.Candle{}, ErrNoTime
	}
	ms, err := ParseTime(raw)
	if err != nil {
		return model.Candle{}, err
	}
	return model.Candle{Time: ms, Open: *r.Open, High: *r.High, Low: *r.Low, Close: *r.Close}, nil
}

// isoLayouts are tried in order for string timestamps.
var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseTime normalizes a raw time value to Unix milliseconds. Numbers below
// 1e11 in magnitude are epoch seconds, larger ones epoch milliseconds.
// Strings are parsed as numbers first, then as ISO-8601 (UTC when no zone is
// given).
func ParseTime(v any) (int64, error) {
	switch t := v.(type) {
	case float64:
		return EpochToMs(t)
	case float32:
		return EpochToMs(float64(t))
	case int:
		return EpochToMs(float64(t))
	case int64:
		return EpochToMs(float64(t))
	case uint64:
		return EpochToMs(float64(t))
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrBadTime, t)
		}
		return EpochToMs(f)
	case time.Time:
		return t.UnixMilli(), nil
	case string:
		s := strings.TrimSpace(t)
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return EpochToMs(f)
		}
		for _, layout := range isoLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts.UnixMilli(), nil
			}
		}
		return 0, fmt.Errorf("%w: %q", ErrBadTime, s)
	default:
		return 0, fmt.Errorf("%w: %T", ErrBadTime, v)
	}
}

// EpochToMs converts an epoch number in seconds or milliseconds to milliseconds.
func EpochToMs(n float64) (int64, error) {
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, fmt.Errorf("%w: %v", ErrBadTime, n)
	}
	if math.Abs(n) < secondsCutoff {
		n *= 1000
	}
	return int64(math.Round(n)), nil
}
