// Package viewport computes and transforms the visible (time × price) region.
// Every function returns a new Viewport; none mutates its input.
package viewport

import (
	"errors"
	"math"

	"ohlcchart/internal/model"
)

const (
	// DefaultPadding is the fraction of each span added on both sides by FitToData.
	DefaultPadding = 0.05

	// MinTimeSpan is the narrowest time range allowed: one native candle.
	MinTimeSpan = float64(model.MinuteMs)

	// MinPriceSpan is the narrowest price range allowed.
	MinPriceSpan = 1e-6
)

// ErrNonFinite is returned for viewports with NaN or infinite bounds.
var ErrNonFinite = errors.New("viewport: non-finite bounds")

// Default is the sentinel viewport used for an empty series.
var Default = model.Viewport{
	Time:  model.Range{Min: 0, Max: 1},
	Price: model.Range{Min: 0, Max: 1},
}

// Axis selects which axes a zoom applies to.
type Axis uint8

const (
	AxisTime Axis = 1 << iota
	AxisPrice

	AxisBoth = AxisTime | AxisPrice
)

func (a Axis) String() string {
	switch a {
	case AxisTime:
		return "time"
	case AxisPrice:
		return "price"
	case AxisBoth:
		return "both"
	default:
		return "none"
	}
}

// FitToData returns a viewport enclosing every candle of series: time from the
// first to the last bucket start, price from the lowest low to the highest
// high, each widened by padding × span on both sides. An empty series yields
// Default. Zero spans (a single candle, a flat series) are widened to the
// minimum span around their value.
func FitToData(series []model.Candle, padding float64) model.Viewport {
	if len(series) == 0 {
		return Default
	}

	minTime, maxTime := series[0].Time, series[0].Time
	minPrice, maxPrice := series[0].Low, series[0].High
	for _, c := range series[1:] {
		minTime = min(minTime, c.Time)
		maxTime = max(maxTime, c.Time)
		minPrice = min(minPrice, c.Low)
		maxPrice = max(maxPrice, c.High)
	}

	timeSpan := float64(maxTime - minTime)
	priceSpan := maxPrice - minPrice

	vp := model.Viewport{
		Time: model.Range{
			Min: float64(minTime) - timeSpan*padding,
			Max: float64(maxTime) + timeSpan*padding,
		},
		Price: model.Range{
			Min: minPrice - priceSpan*padding,
			Max: maxPrice + priceSpan*padding,
		},
	}
	return Clamp(vp)
}

// Clamp widens any span below its minimum (zero and negative included) to the
// minimum span centred on the range midpoint. Valid viewports pass through.
func Clamp(vp model.Viewport) model.Viewport {
	vp.Time = clampRange(vp.Time, MinTimeSpan)
	vp.Price = clampRange(vp.Price, MinPriceSpan)
	return vp
}

func clampRange(r model.Range, minSpan float64) model.Range {
	if r.Span() >= minSpan {
		return r
	}
	mid := r.Mid()
	return model.Range{Min: mid - minSpan/2, Max: mid + minSpan/2}
}

// Check rejects viewports that Clamp cannot repair.
func Check(vp model.Viewport) error {
	if !vp.Time.Finite() || !vp.Price.Finite() {
		return ErrNonFinite
	}
	return nil
}

// ApplyZoom scales the selected axes around anchor by factor: factor < 1 zooms
// in, factor > 1 zooms out. Each bound moves to anchor + (bound-anchor)·factor,
// which keeps the anchor at the same pixel. Unselected axes pass through.
// A non-positive or non-finite factor leaves the viewport unchanged. An axis
// keeps its current range when the zoom would shrink it below its minimum
// span; zooming out of a span already below the minimum still widens it.
func ApplyZoom(cur model.Viewport, anchor model.Point, factor float64, axes Axis) model.Viewport {
	if !(factor > 0) || math.IsInf(factor, 0) {
		return cur
	}
	next := cur
	if axes&AxisTime != 0 {
		next.Time = zoomAxis(cur.Time, anchor.Time, factor, MinTimeSpan)
	}
	if axes&AxisPrice != 0 {
		next.Price = zoomAxis(cur.Price, anchor.Price, factor, MinPriceSpan)
	}
	return next
}

func zoomAxis(r model.Range, anchor, factor, minSpan float64) model.Range {
	z := zoomRange(r, anchor, factor)
	if z.Span() < minSpan && z.Span() < r.Span() {
		return r
	}
	return z
}

func zoomRange(r model.Range, anchor, factor float64) model.Range {
	return model.Range{
		Min: anchor - (anchor-r.Min)*factor,
		Max: anchor + (r.Max-anchor)*factor,
	}
}

// ApplyPan shifts start by a pixel displacement (dx, dy) measured over a drag.
// start must be the viewport captured when the drag began, and (dx, dy) the
// cumulative displacement since then, so a long drag never accumulates
// rounding drift. Dragging right moves the time window left; dragging down
// moves the price window up.
func ApplyPan(start model.Viewport, dx, dy float64, dims model.Dims) model.Viewport {
	dt := -dx / dims.Width * start.Time.Span()
	dp := dy / dims.Height * start.Price.Span()
	return model.Viewport{
		Time:  start.Time.Shift(dt),
		Price: start.Price.Shift(dp),
	}
}
