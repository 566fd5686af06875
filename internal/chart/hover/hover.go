// Package hover finds the candle under the cursor.
//
// A candle owns the half-open interval [Time, Time+interval). A cursor that
// falls on a bucket boundary therefore belongs to the candle starting there.
// There is no nearest-neighbour fallback: gaps between candles resolve to none.
package hover

import (
	"sort"

	"ohlcchart/internal/chart/scale"
	"ohlcchart/internal/model"
)

// Resolve returns the candle whose bucket contains the data time under pixel
// x. series must be ascending with unique times.
func Resolve(series []model.Candle, x float64, sc scale.Scale, intervalMs int64) (model.Candle, bool) {
	return At(series, sc.XToTime(x), intervalMs)
}

// At returns the candle whose bucket contains data time t, using a binary
// search over bucket starts.
func At(series []model.Candle, t float64, intervalMs int64) (model.Candle, bool) {
	// First candle starting strictly after t; its predecessor is the only
	// candidate.
	i := sort.Search(len(series), func(i int) bool {
		return float64(series[i].Time) > t
	})
	if i == 0 {
		return model.Candle{}, false
	}
	c := series[i-1]
	if !c.Contains(t, intervalMs) {
		return model.Candle{}, false
	}
	return c, true
}

// AtLinear is the linear-scan form of At. Results are identical; it exists as
// the reference the binary search is checked against.
func AtLinear(series []model.Candle, t float64, intervalMs int64) (model.Candle, bool) {
	for _, c := range series {
		if c.Contains(t, intervalMs) {
			return c, true
		}
	}
	return model.Candle{}, false
}
