package viewport

import (
	"math"
	"sync/atomic"

	"ohlcchart/internal/model"
)

// Options configures a Manager.
type Options struct {
	// TimeRange and PriceRange, when both set, replace fit-to-data on Reset.
	TimeRange  *model.Range
	PriceRange *model.Range

	// Padding for fit-to-data. Nil or an invalid value means DefaultPadding;
	// zero disables it.
	Padding *float64

	// OnChange is called after every viewport swap (optional).
	OnChange func(model.Viewport)
}

// Manager owns the current viewport. The viewport is replaced as a whole value
// on every change, so readers never observe a half-updated viewport.
type Manager struct {
	opts    Options
	padding float64
	current atomic.Pointer[model.Viewport]
	touched atomic.Bool
}

// NewManager creates a Manager holding Default until the first Reset.
func NewManager(opts Options) *Manager {
	m := &Manager{opts: opts, padding: DefaultPadding}
	if p := opts.Padding; p != nil && *p >= 0 && !math.IsInf(*p, 0) {
		m.padding = *p
	}
	vp := Default
	m.current.Store(&vp)
	return m
}

// Current returns the current viewport.
func (m *Manager) Current() model.Viewport {
	return *m.current.Load()
}

// Reset installs the initial viewport for series: the externally supplied
// ranges if configured, otherwise FitToData. Clears Touched.
func (m *Manager) Reset(series []model.Candle) model.Viewport {
	var vp model.Viewport
	if m.opts.TimeRange != nil && m.opts.PriceRange != nil {
		vp = Clamp(model.Viewport{Time: *m.opts.TimeRange, Price: *m.opts.PriceRange})
	} else {
		vp = FitToData(series, m.padding)
	}
	m.touched.Store(false)
	m.swap(vp)
	return vp
}

// Update replaces the viewport with vp after clamping degenerate spans.
// Non-finite viewports are rejected and the current one is kept.
func (m *Manager) Update(vp model.Viewport) error {
	if err := Check(vp); err != nil {
		return err
	}
	m.touched.Store(true)
	m.swap(Clamp(vp))
	return nil
}

// Touched reports whether Update has been called since the last Reset.
func (m *Manager) Touched() bool {
	return m.touched.Load()
}

func (m *Manager) swap(vp model.Viewport) {
	m.current.Store(&vp)
	if m.opts.OnChange != nil {
		m.opts.OnChange(vp)
	}
}
