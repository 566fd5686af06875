package tfagg

import (
	"sort"

	"ohlcchart/internal/model"
)

// Builder aggregates a live candle stream for one timeframe. It keeps the
// native candles of the forming bucket, so a repeated time replaces the
// earlier candle (last wins) and the forming candle always equals
// Aggregate over the bucket. When a candle arrives in a later bucket, the
// forming candle is finalized and returned. Not goroutine-safe: designed to
// be driven by a single consumer.
type Builder struct {
	minutes    int
	intervalMs int64

	bucket  int64          // key of the forming bucket
	members []model.Candle // native candles of the forming bucket, ascending
	forming model.Candle
	started bool

	// OnStale is called when a candle older than the forming bucket is
	// rejected (optional).
	OnStale func(c model.Candle)
}

// NewBuilder creates a Builder for the given width in minutes.
// Widths below one minute are treated as one minute.
func NewBuilder(minutes int) *Builder {
	if minutes < 1 {
		minutes = 1
	}
	return &Builder{
		minutes:    minutes,
		intervalMs: int64(minutes) * model.MinuteMs,
	}
}

// Minutes returns the bucket width.
func (b *Builder) Minutes() int {
	return b.minutes
}

// key is the bucket a native time belongs to. At one minute every distinct
// time is its own bucket, matching Aggregate's pass-through.
func (b *Builder) key(t int64) int64 {
	if b.minutes == 1 {
		return t
	}
	return BucketOf(t, b.intervalMs)
}

// Push merges c into the forming candle.
//
// It returns the forming candle after the merge and, when c opened a new
// bucket, the finalized previous candle. A candle whose bucket lies behind the
// forming bucket is rejected: ok is false and nothing changes.
func (b *Builder) Push(c model.Candle) (forming model.Candle, finalized *model.Candle, ok bool) {
	bucket := b.key(c.Time)

	if b.started && bucket < b.bucket {
		if b.OnStale != nil {
			b.OnStale(c)
		}
		return b.forming, nil, false
	}

	if b.started && bucket > b.bucket {
		done := b.forming
		finalized = &done
		b.members = b.members[:0]
	}

	b.bucket = bucket
	b.started = true
	b.members = upsert(b.members, c)
	b.forming = b.fold()
	return b.forming, finalized, true
}

// Seed resets the builder to the last bucket of an ascending native series,
// so live candles continue where the series ends.
func (b *Builder) Seed(series []model.Candle) {
	b.reset()
	if len(series) == 0 {
		return
	}
	last := b.key(series[len(series)-1].Time)
	i := len(series)
	for i > 0 && b.key(series[i-1].Time) == last {
		i--
	}
	for _, c := range series[i:] {
		b.Push(c)
	}
}

// Forming returns the in-progress candle, if any.
func (b *Builder) Forming() (model.Candle, bool) {
	return b.forming, b.started
}

// Flush finalizes and returns the forming candle and resets the builder.
func (b *Builder) Flush() (model.Candle, bool) {
	if !b.started {
		return model.Candle{}, false
	}
	c := b.forming
	b.reset()
	return c, true
}

func (b *Builder) reset() {
	b.started = false
	b.members = b.members[:0]
	b.forming = model.Candle{}
}

func (b *Builder) fold() model.Candle {
	out := b.members[0]
	if b.minutes > 1 {
		out.Time = b.bucket * b.intervalMs
	}
	for _, c := range b.members[1:] {
		out.High = max(out.High, c.High)
		out.Low = min(out.Low, c.Low)
	}
	out.Close = b.members[len(b.members)-1].Close
	return out
}

// upsert places c in the ascending members, replacing an equal time.
func upsert(members []model.Candle, c model.Candle) []model.Candle {
	n := len(members)
	if n == 0 || c.Time > members[n-1].Time {
		return append(members, c)
	}
	i := sort.Search(n, func(i int) bool { return members[i].Time >= c.Time })
	if members[i].Time == c.Time {
		members[i] = c
		return members
	}
	members = append(members, model.Candle{})
	copy(members[i+1:], members[i:])
	members[i] = c
	return members
}

// Run feeds an ascending series through a fresh Builder and collects every
// finalized candle. The result equals Aggregate(series, minutes).
func Run(series []model.Candle, minutes int) []model.Candle {
	b := NewBuilder(minutes)
	out := make([]model.Candle, 0, len(series)/b.minutes+1)
	for _, c := range series {
		if _, done, _ := b.Push(c); done != nil {
			out = append(out, *done)
		}
	}
	if last, ok := b.Flush(); ok {
		out = append(out, last)
	}
	return out
}
