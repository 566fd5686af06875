// Package tfagg re-buckets ascending 1-minute candles into coarser timeframes.
//
// Aggregate is the batch form used whenever the series or the selected
// timeframe changes. Builder is the incremental form used for live appends; it
// keeps one forming candle and finalizes it when a candle for a later bucket
// arrives. Both place bucket boundaries at multiples of the interval in
// absolute time, so results do not depend on where a series starts.
package tfagg

import (
	"fmt"

	"ohlcchart/internal/model"
)

// Aggregate buckets series into candles of the given width in minutes.
//
// series must be ascending by Time; Aggregate does not re-sort. Builds tagged
// chartdebug panic on unsorted input, release builds leave the output order
// undefined. minutes <= 1 or an empty series returns a copy of the input.
func Aggregate(series []model.Candle, minutes int) []model.Candle {
	if len(series) == 0 || minutes <= 1 {
		out := make([]model.Candle, len(series))
		copy(out, series)
		return out
	}
	if debugChecks {
		mustBeAscending(series)
	}

	intervalMs := int64(minutes) * model.MinuteMs
	out := make([]model.Candle, 0, len(series)/minutes+1)

	cur := series[0]
	curBucket := BucketOf(cur.Time, intervalMs)
	cur.Time = curBucket * intervalMs

	for _, c := range series[1:] {
		bucket := BucketOf(c.Time, intervalMs)
		if bucket != curBucket {
			out = append(out, cur)
			curBucket = bucket
			cur = c
			cur.Time = bucket * intervalMs
			continue
		}
		if c.High > cur.High {
			cur.High = c.High
		}
		if c.Low < cur.Low {
			cur.Low = c.Low
		}
		cur.Close = c.Close
	}
	return append(out, cur)
}

// BucketOf returns floor(t / intervalMs), rounding towards negative infinity
// so that pre-epoch timestamps land in the same buckets as absolute time.
func BucketOf(t, intervalMs int64) int64 {
	q := t / intervalMs
	if t%intervalMs != 0 && t < 0 {
		q--
	}
	return q
}

// BucketStart returns the start (Unix ms) of the bucket containing t.
func BucketStart(t, intervalMs int64) int64 {
	return BucketOf(t, intervalMs) * intervalMs
}

func mustBeAscending(series []model.Candle) {
	for i := 1; i < len(series); i++ {
		if series[i].Time < series[i-1].Time {
			panic(fmt.Sprintf("tfagg: input not ascending at index %d (%d after %d)",
				i, series[i].Time, series[i-1].Time))
		}
	}
}
