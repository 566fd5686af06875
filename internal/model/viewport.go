package model

import "math"

// Range is a numeric interval [Min, Max]. A usable range has Min < Max.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Span returns Max - Min.
func (r Range) Span() float64 {
	return r.Max - r.Min
}

// Mid returns the midpoint of the range.
func (r Range) Mid() float64 {
	return r.Min + (r.Max-r.Min)/2
}

// Shift returns the range moved by d.
func (r Range) Shift(d float64) Range {
	return Range{Min: r.Min + d, Max: r.Max + d}
}

// Finite reports whether both bounds are finite numbers.
func (r Range) Finite() bool {
	return !math.IsNaN(r.Min) && !math.IsInf(r.Min, 0) &&
		!math.IsNaN(r.Max) && !math.IsInf(r.Max, 0)
}

// Viewport is the visible region in data coordinates: time (Unix ms) × price.
// Both spans are strictly positive once produced by the viewport package.
type Viewport struct {
	Time  Range `json:"timeRange"`
	Price Range `json:"priceRange"`
}

// Point is a position in data space.
type Point struct {
	Time  float64 `json:"time"`
	Price float64 `json:"price"`
}

// PixelPoint is a position in pixel space, relative to the top-left of the
// main plotting area.
type PixelPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Dims is the pixel size of a drawing area.
type Dims struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}
