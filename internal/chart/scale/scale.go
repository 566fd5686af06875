// Package scale maps between data coordinates (time, price) and pixel
// coordinates for a viewport drawn into a pixel area. The price axis is
// inverted: higher prices have smaller Y.
package scale

import "ohlcchart/internal/model"

// Scale is a pure, immutable coordinate transform. Recompute it whenever the
// viewport or the pixel dimensions change.
type Scale struct {
	vp   model.Viewport
	dims model.Dims
}

// New builds the transform for vp drawn into dims. vp must have positive
// spans and dims must be non-zero; both are the caller's responsibility.
func New(vp model.Viewport, dims model.Dims) Scale {
	return Scale{vp: vp, dims: dims}
}

// Viewport returns the viewport the scale was built from.
func (s Scale) Viewport() model.Viewport { return s.vp }

// Dims returns the pixel dimensions the scale was built from.
func (s Scale) Dims() model.Dims { return s.dims }

// TimeToX maps a time (Unix ms) to a pixel X.
func (s Scale) TimeToX(t float64) float64 {
	return (t - s.vp.Time.Min) / s.vp.Time.Span() * s.dims.Width
}

// PriceToY maps a price to a pixel Y.
func (s Scale) PriceToY(p float64) float64 {
	return (1 - (p-s.vp.Price.Min)/s.vp.Price.Span()) * s.dims.Height
}

// XToTime is the inverse of TimeToX.
func (s Scale) XToTime(x float64) float64 {
	return s.vp.Time.Min + x/s.dims.Width*s.vp.Time.Span()
}

// YToPrice is the inverse of PriceToY.
func (s Scale) YToPrice(y float64) float64 {
	return s.vp.Price.Min + (1-y/s.dims.Height)*s.vp.Price.Span()
}

// ToData maps a pixel position to data space.
func (s Scale) ToData(p model.PixelPoint) model.Point {
	return model.Point{Time: s.XToTime(p.X), Price: s.YToPrice(p.Y)}
}

// ToPixel maps a data position to pixel space.
func (s Scale) ToPixel(p model.Point) model.PixelPoint {
	return model.PixelPoint{X: s.TimeToX(p.Time), Y: s.PriceToY(p.Price)}
}

// CandleWidth returns the pixel width of one bucket of intervalMs.
func (s Scale) CandleWidth(intervalMs int64) float64 {
	return float64(intervalMs) / s.vp.Time.Span() * s.dims.Width
}
