// Package interact is the pointer state machine behind zoom, pan and hover.
//
// The controller holds no state of its own: each call takes the current State
// and the event, and returns the next State plus the viewport to apply. That
// keeps every transition testable without a drawing surface.
package interact

import (
	"ohlcchart/internal/chart/hover"
	"ohlcchart/internal/chart/scale"
	"ohlcchart/internal/chart/viewport"
	"ohlcchart/internal/model"
)

// DefaultZoomStep is the fraction of the span removed per wheel notch when
// zooming in.
const DefaultZoomStep = 0.1

// Mode is the pointer mode.
type Mode int

const (
	Idle Mode = iota
	Panning
)

func (m Mode) String() string {
	if m == Panning {
		return "panning"
	}
	return "idle"
}

// PanAnchor is captured when a drag starts.
type PanAnchor struct {
	X, Y     float64
	Viewport model.Viewport
}

// State is the transient interaction state. Values are never shared: each
// transition returns a fresh State.
type State struct {
	Mode    Mode
	Pan     *PanAnchor
	Pointer *model.PixelPoint
	Hovered *model.Candle
}

// Env is the read-only context an event is evaluated against. It must be a
// consistent snapshot: the series, viewport and dims of the same cycle.
type Env struct {
	Viewport   model.Viewport
	Series     []model.Candle
	Dims       model.Dims
	IntervalMs int64
}

// Effect is what the host must apply after a transition.
type Effect struct {
	Viewport        model.Viewport
	ViewportChanged bool
}

// Controller translates pointer events into viewport changes and hover lookups.
type Controller struct {
	// ZoomStep is the per-notch zoom fraction in (0, 1). Zero means DefaultZoomStep.
	ZoomStep float64
}

// Handle applies ev to st and returns the next state and its effect.
func (ctl Controller) Handle(st State, ev Event, env Env) (State, Effect) {
	eff := Effect{Viewport: env.Viewport}

	switch e := ev.(type) {
	case PointerDown:
		next := withPointer(st, e.X, e.Y)
		if st.Mode != Idle || e.Button != ButtonPrimary {
			return next, eff
		}
		next.Mode = Panning
		next.Pan = &PanAnchor{X: e.X, Y: e.Y, Viewport: env.Viewport}
		next.Hovered = nil
		return next, eff

	case PointerMove:
		next := withPointer(st, e.X, e.Y)
		if st.Mode == Panning && st.Pan != nil {
			vp := viewport.ApplyPan(st.Pan.Viewport, e.X-st.Pan.X, e.Y-st.Pan.Y, env.Dims)
			next.Hovered = nil
			return next, Effect{Viewport: vp, ViewportChanged: true}
		}
		next.Hovered = resolve(env, e.X)
		return next, eff

	case PointerUp:
		next := withPointer(st, e.X, e.Y)
		next.Mode = Idle
		next.Pan = nil
		next.Hovered = resolve(env, e.X)
		return next, eff

	case PointerLeave:
		return State{Mode: Idle}, eff

	case Wheel:
		return ctl.wheel(st, e, env)
	}
	return st, eff
}

func (ctl Controller) wheel(st State, e Wheel, env Env) (State, Effect) {
	next := withPointer(st, e.X, e.Y)
	if e.DeltaY == 0 {
		return next, Effect{Viewport: env.Viewport}
	}

	step := ctl.ZoomStep
	if !(step > 0 && step < 1) {
		step = DefaultZoomStep
	}
	factor := 1 - step // zoom in
	if e.DeltaY > 0 {
		factor = 1 / (1 - step) // zoom out, exact inverse of one notch in
	}

	anchor := scale.New(env.Viewport, env.Dims).ToData(model.PixelPoint{X: e.X, Y: e.Y})
	vp := viewport.ApplyZoom(env.Viewport, anchor, factor, AxesFor(e.Mods))

	if next.Mode == Idle {
		zoomed := env
		zoomed.Viewport = vp
		next.Hovered = resolve(zoomed, e.X)
	}
	return next, Effect{Viewport: vp, ViewportChanged: vp != env.Viewport}
}

// AxesFor maps wheel modifiers to zoom axes: none zooms time, Shift zooms
// price, Ctrl or Meta zooms both.
func AxesFor(m Modifiers) viewport.Axis {
	switch {
	case m.Ctrl || m.Meta:
		return viewport.AxisBoth
	case m.Shift:
		return viewport.AxisPrice
	default:
		return viewport.AxisTime
	}
}

// Rehover re-resolves the hovered candle for the current pointer against env.
// Hosts call it after the series or viewport changed outside an event.
func Rehover(st State, env Env) State {
	next := st
	next.Hovered = nil
	if st.Mode == Idle && st.Pointer != nil {
		next.Hovered = resolve(env, st.Pointer.X)
	}
	return next
}

func withPointer(st State, x, y float64) State {
	next := st
	next.Pointer = &model.PixelPoint{X: x, Y: y}
	return next
}

func resolve(env Env, x float64) *model.Candle {
	c, ok := hover.Resolve(env.Series, x, scale.New(env.Viewport, env.Dims), env.IntervalMs)
	if !ok {
		return nil
	}
	return &c
}
