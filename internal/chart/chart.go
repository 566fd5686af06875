// Package chart composes the chart engine: validated data, the selected
// timeframe, the viewport and the interaction state, advanced one event at a
// time. Each mutating call ends by publishing a new Snapshot as a whole value,
// so readers on other goroutines never see a half-applied cycle.
//
// A Chart is driven by a single goroutine. Snapshot may be read concurrently.
package chart

import (
	"sort"
	"sync/atomic"

	"ohlcchart/internal/chart/interact"
	"ohlcchart/internal/chart/scale"
	"ohlcchart/internal/chart/tfagg"
	"ohlcchart/internal/chart/validate"
	"ohlcchart/internal/chart/viewport"
	"ohlcchart/internal/model"
)

const (
	// PriceAxisWidth is the pixel width reserved right of the plot for the price axis.
	PriceAxisWidth = 70
	// TimeAxisHeight is the pixel height reserved below the plot for the time axis.
	TimeAxisHeight = 30

	DefaultWidth  = 800
	DefaultHeight = 400
)

// Options configures a Chart. Zero values select defaults.
type Options struct {
	Width, Height float64 // outer size including axes
	Timeframe     model.Timeframe

	// TimeRange and PriceRange, when both set, replace fit-to-data.
	TimeRange  *model.Range
	PriceRange *model.Range

	// Padding for fit-to-data. Nil selects viewport.DefaultPadding and an
	// explicit zero disables padding.
	Padding  *float64
	ZoomStep float64

	// MaxCandles bounds the native series kept by Append (0 = unbounded).
	MaxCandles int

	// OnViewportChange is called after every viewport swap (optional).
	OnViewportChange func(model.Viewport)

	// OnStale is called when Stream receives a candle older than the forming
	// bucket (optional). The candle is still merged by a full rebuild.
	OnStale func(model.Candle)
}

// Snapshot is the consistent output of one cycle.
type Snapshot struct {
	Seq       uint64            `json:"seq"`
	Viewport  model.Viewport    `json:"viewport"`
	Dims      model.Dims        `json:"dims"` // plot area, axes excluded
	Timeframe model.Timeframe   `json:"timeframe"`
	Series    []model.Candle    `json:"-"`
	Hovered   *model.Candle     `json:"hovered,omitempty"`
	Pointer   *model.PixelPoint `json:"pointer,omitempty"`
	Panning   bool              `json:"panning"`
	Report    validate.Report   `json:"report"`
}

// Scale returns the coordinate transform for the snapshot.
func (s *Snapshot) Scale() scale.Scale {
	return scale.New(s.Viewport, s.Dims)
}

// Chart is one interactive chart instance.
type Chart struct {
	opts Options
	ctl  interact.Controller
	vm   *viewport.Manager

	tf     model.Timeframe
	width  float64
	height float64

	data   []model.Candle // validated native series
	series []model.Candle // aggregated to tf
	report validate.Report
	state  interact.State

	live      *tfagg.Builder // forming bucket of series for Stream
	sealed    int64          // time of the last bucket reported closed
	hasSealed bool

	seq  uint64
	snap atomic.Pointer[Snapshot]
}

// New creates an empty chart.
func New(opts Options) *Chart {
	if opts.Width <= 0 {
		opts.Width = DefaultWidth
	}
	if opts.Height <= 0 {
		opts.Height = DefaultHeight
	}
	if opts.Timeframe.Minutes <= 0 {
		opts.Timeframe = model.Native
	}
	c := &Chart{
		opts:   opts,
		ctl:    interact.Controller{ZoomStep: opts.ZoomStep},
		tf:     opts.Timeframe,
		width:  opts.Width,
		height: opts.Height,
		data:   []model.Candle{},
		series: []model.Candle{},
		vm: viewport.NewManager(viewport.Options{
			TimeRange:  opts.TimeRange,
			PriceRange: opts.PriceRange,
			Padding:    opts.Padding,
			OnChange:   opts.OnViewportChange,
		}),
	}
	c.reaggregate()
	c.publish()
	return c
}

// PlotDims returns the plot area for an outer size, never below 1×1.
func PlotDims(width, height float64) model.Dims {
	return model.Dims{
		Width:  max(width-PriceAxisWidth, 1),
		Height: max(height-TimeAxisHeight, 1),
	}
}

// SetData replaces the native series with raw input and refits the viewport.
func (c *Chart) SetData(raw []model.Candle) *Snapshot {
	c.data, c.report = validate.Normalize(raw)
	c.data = validate.Tail(c.data, c.opts.MaxCandles)
	c.reaggregate()
	c.hasSealed = false
	c.vm.Reset(c.series)
	c.state = interact.Rehover(c.state, c.env())
	return c.publish()
}

// Append merges live candles into the native series. Equal times replace the
// existing candle. The viewport follows the data until the user moves it.
func (c *Chart) Append(candles ...model.Candle) *Snapshot {
	valid, rep := validate.Normalize(candles)
	c.report.Input += rep.Input
	c.report.Dropped += rep.Dropped
	c.report.Duplicates += rep.Duplicates

	c.data = validate.Tail(validate.Merge(c.data, valid), c.opts.MaxCandles)
	c.reaggregate()
	if !c.vm.Touched() {
		c.vm.Reset(c.series)
	}
	c.state = interact.Rehover(c.state, c.env())
	return c.publish()
}

// Live is the outcome of streaming one native candle.
type Live struct {
	Snapshot *Snapshot

	// Candle is the aggregated candle the update landed in. Closed reports
	// whether the update completed that bucket. Both are unset when the
	// update was dropped as invalid.
	Candle model.Candle
	Closed bool
	OK     bool

	// Finalized is an earlier bucket this update closed that had not been
	// reported closed yet.
	Finalized *model.Candle

	// Stale is set when the update was older than the forming bucket and
	// the series was rebuilt in full.
	Stale bool
}

// Stream merges one live native candle. Updates for the forming bucket or a
// later one touch only the tail of the aggregated series; older updates fall
// back to Append. closed marks the native candle as complete.
func (c *Chart) Stream(k model.Candle, closed bool) Live {
	if !validate.Valid(k) {
		return Live{Snapshot: c.Append(k)}
	}
	forming, finalized, ok := c.live.Push(k)
	if !ok {
		snap := c.Append(k)
		res := Live{Snapshot: snap, Stale: true}
		if agg, found := c.bucketOf(k.Time); found {
			res.Candle, res.Closed, res.OK = agg, closed && c.endsBucket(k.Time), true
		}
		return res
	}

	c.report.Input++
	merged := validate.Merge(c.data, []model.Candle{k})
	c.data = validate.Tail(merged, c.opts.MaxCandles)
	c.series = withTail(c.series, forming)
	if len(merged) > len(c.data) {
		c.trimHead()
		if f, ok := c.live.Forming(); ok {
			forming = f
		}
	}
	if !c.vm.Touched() {
		c.vm.Reset(c.series)
	}
	c.state = interact.Rehover(c.state, c.env())

	res := Live{Snapshot: c.publish(), Candle: forming, OK: true}
	if finalized != nil && !(c.hasSealed && c.sealed == finalized.Time) {
		res.Finalized = finalized
	}
	if closed && c.endsBucket(k.Time) {
		res.Closed = true
		c.sealed, c.hasSealed = forming.Time, true
	}
	return res
}

// bucketStart is the aggregated candle time for native time t.
func (c *Chart) bucketStart(t int64) int64 {
	if c.tf.Minutes <= 1 {
		return t
	}
	return tfagg.BucketStart(t, c.tf.Interval())
}

// endsBucket reports whether the native candle at t is the last minute of
// its aggregated bucket.
func (c *Chart) endsBucket(t int64) bool {
	if c.tf.Minutes <= 1 {
		return true
	}
	return t+model.MinuteMs >= c.bucketStart(t)+c.tf.Interval()
}

func (c *Chart) bucketOf(t int64) (model.Candle, bool) {
	start := c.bucketStart(t)
	i := sort.Search(len(c.series), func(i int) bool { return c.series[i].Time >= start })
	if i < len(c.series) && c.series[i].Time == start {
		return c.series[i], true
	}
	return model.Candle{}, false
}

// trimHead realigns the head of series after MaxCandles dropped native
// candles from the front of data.
func (c *Chart) trimHead() {
	if len(c.data) == 0 {
		c.series = []model.Candle{}
		c.live.Seed(nil)
		return
	}
	start := c.bucketStart(c.data[0].Time)
	if forming, ok := c.live.Forming(); ok && forming.Time == start {
		// The forming bucket lost members; rebuild it from data.
		c.reaggregate()
		return
	}
	j := sort.Search(len(c.data), func(j int) bool { return c.bucketStart(c.data[j].Time) != start })
	head := tfagg.Aggregate(c.data[:j], c.tf.Minutes)[0]
	i := sort.Search(len(c.series), func(i int) bool { return c.series[i].Time >= start })
	// series is a fresh copy from withTail, so it may be edited in place.
	c.series = c.series[i:]
	c.series[0] = head
}

// withTail returns a copy of series with its last candle replaced by
// forming, or forming appended when it opens a new bucket. Published
// snapshots keep the old slice.
func withTail(series []model.Candle, forming model.Candle) []model.Candle {
	n := len(series)
	out := make([]model.Candle, n, n+1)
	copy(out, series)
	if n > 0 && out[n-1].Time == forming.Time {
		out[n-1] = forming
		return out
	}
	return append(out, forming)
}

// SetTimeframe re-aggregates the native series and refits the viewport.
func (c *Chart) SetTimeframe(tf model.Timeframe) *Snapshot {
	if tf.Minutes <= 0 {
		tf = model.Native
	}
	c.tf = tf
	c.reaggregate()
	c.hasSealed = false
	c.vm.Reset(c.series)
	c.state = interact.Rehover(c.state, c.env())
	return c.publish()
}

// Resize changes the outer size. The viewport is kept.
func (c *Chart) Resize(width, height float64) *Snapshot {
	if width > 0 {
		c.width = width
	}
	if height > 0 {
		c.height = height
	}
	c.state = interact.Rehover(c.state, c.env())
	return c.publish()
}

// SetViewport installs an externally supplied viewport. Degenerate spans are
// clamped; non-finite bounds are rejected.
func (c *Chart) SetViewport(vp model.Viewport) (*Snapshot, error) {
	if err := c.vm.Update(vp); err != nil {
		return c.snap.Load(), err
	}
	c.state = interact.Rehover(c.state, c.env())
	return c.publish(), nil
}

// Dispatch runs one pointer event through the controller.
func (c *Chart) Dispatch(ev interact.Event) *Snapshot {
	st, eff := c.ctl.Handle(c.state, ev, c.env())
	if eff.ViewportChanged {
		// Non-finite results cannot come out of pan/zoom on a valid viewport;
		// if one does, the previous viewport stays.
		_ = c.vm.Update(eff.Viewport)
	}
	c.state = st
	return c.publish()
}

// Snapshot returns the latest published snapshot. Safe for concurrent use.
func (c *Chart) Snapshot() *Snapshot {
	return c.snap.Load()
}

// Timeframe returns the selected timeframe.
func (c *Chart) Timeframe() model.Timeframe {
	return c.tf
}

func (c *Chart) reaggregate() {
	c.series = tfagg.Aggregate(c.data, c.tf.Minutes)
	c.live = tfagg.NewBuilder(c.tf.Minutes)
	c.live.OnStale = c.opts.OnStale
	c.live.Seed(c.data)
}

func (c *Chart) env() interact.Env {
	return interact.Env{
		Viewport:   c.vm.Current(),
		Series:     c.series,
		Dims:       PlotDims(c.width, c.height),
		IntervalMs: c.tf.Interval(),
	}
}

func (c *Chart) publish() *Snapshot {
	c.seq++
	s := &Snapshot{
		Seq:       c.seq,
		Viewport:  c.vm.Current(),
		Dims:      PlotDims(c.width, c.height),
		Timeframe: c.tf,
		Series:    c.series,
		Hovered:   c.state.Hovered,
		Pointer:   c.state.Pointer,
		Panning:   c.state.Mode == interact.Panning,
		Report:    c.report,
	}
	c.snap.Store(s)
	return s
}
