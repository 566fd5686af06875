// Package validate normalizes raw candle input into a well-formed,
// time-ascending series. Malformed records are dropped, never reported as
// errors: callers observe a shorter, valid series.
package validate

import (
	"math"
	"sort"

	"ohlcchart/internal/model"
)

// Report counts what Normalize removed.
type Report struct {
	Input      int `json:"input"`
	Dropped    int `json:"dropped"`    // malformed records
	Duplicates int `json:"duplicates"` // records replaced by a later one with the same time
}

// Valid reports whether c satisfies low ≤ min(open,close) ≤ max(open,close) ≤ high
// with all four prices finite.
func Valid(c model.Candle) bool {
	for _, v := range [...]float64{c.Open, c.High, c.Low, c.Close} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	if c.High < c.Low {
		return false
	}
	if c.Open < c.Low || c.Open > c.High {
		return false
	}
	if c.Close < c.Low || c.Close > c.High {
		return false
	}
	return true
}

// Filter returns the valid records of raw in their original order.
func Filter(raw []model.Candle) []model.Candle {
	out := make([]model.Candle, 0, len(raw))
	for _, c := range raw {
		if Valid(c) {
			out = append(out, c)
		}
	}
	return out
}

// Sort returns a copy of s ordered by Time ascending. Equal times keep their
// input order.
func Sort(s []model.Candle) []model.Candle {
	out := make([]model.Candle, len(s))
	copy(out, s)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Time < out[j].Time
	})
	return out
}

// Dedupe collapses runs of equal Time in an ascending series. The last record
// of each run wins. Returns the new series and the number of records removed.
func Dedupe(sorted []model.Candle) ([]model.Candle, int) {
	out := make([]model.Candle, 0, len(sorted))
	removed := 0
	for _, c := range sorted {
		if n := len(out); n > 0 && out[n-1].Time == c.Time {
			out[n-1] = c
			removed++
			continue
		}
		out = append(out, c)
	}
	return out, removed
}

// Normalize filters, stable-sorts and de-duplicates raw input.
// Empty input yields an empty, non-nil series.
func Normalize(raw []model.Candle) ([]model.Candle, Report) {
	rep := Report{Input: len(raw)}
	valid := Filter(raw)
	rep.Dropped = len(raw) - len(valid)
	out, dups := Dedupe(Sort(valid))
	rep.Duplicates = dups
	return out, rep
}

// Ascending reports whether s is non-decreasing in Time.
func Ascending(s []model.Candle) bool {
	for i := 1; i < len(s); i++ {
		if s[i].Time < s[i-1].Time {
			return false
		}
	}
	return true
}

// Merge folds incoming candles into an ascending, de-duplicated series and
// returns a new series. On equal times the incoming candle replaces the
// existing one, and later incoming records win over earlier ones, matching
// Dedupe. Neither input is modified.
func Merge(existing, incoming []model.Candle) []model.Candle {
	if len(incoming) == 0 {
		out := make([]model.Candle, len(existing))
		copy(out, existing)
		return out
	}
	in, _ := Dedupe(Sort(incoming))

	out := make([]model.Candle, 0, len(existing)+len(in))
	i, j := 0, 0
	for i < len(existing) && j < len(in) {
		switch {
		case existing[i].Time < in[j].Time:
			out = append(out, existing[i])
			i++
		case existing[i].Time > in[j].Time:
			out = append(out, in[j])
			j++
		default:
			out = append(out, in[j])
			i++
			j++
		}
	}
	out = append(out, existing[i:]...)
	return append(out, in[j:]...)
}

// Tail returns the last n candles of s (all of s when n <= 0 or len(s) <= n).
func Tail(s []model.Candle, n int) []model.Candle {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
