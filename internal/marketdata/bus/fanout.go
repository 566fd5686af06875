// Package bus fans live candle updates out to chart sessions.
package bus

import (
	"context"
	"log/slog"
	"sync"

	"ohlcchart/internal/model"
)

// Update is one live candle. Closed is false for a forming candle that a
// later update with the same time will replace.
type Update struct {
	Candle model.Candle
	Closed bool
}

// FanOut broadcasts updates from a single input channel to every subscriber.
// A full subscriber channel drops the update for that subscriber only, so a
// slow session never blocks the feed.
type FanOut struct {
	mu      sync.RWMutex
	outputs map[int]chan Update
	nextID  int
	bufSize int
	closed  bool

	// OnDrop is called when an update is dropped for subscriber id.
	OnDrop func(id int)
}

// New creates a FanOut with the given buffer size for output channels.
func New(outputBufferSize int) *FanOut {
	return &FanOut{
		outputs: make(map[int]chan Update),
		bufSize: outputBufferSize,
	}
}

// Subscribe registers a new output channel. The channel is closed by
// Unsubscribe or when Run returns.
func (f *FanOut) Subscribe() (int, <-chan Update) {
	ch := make(chan Update, f.bufSize)
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	if f.closed {
		close(ch)
		return id, ch
	}
	f.outputs[id] = ch
	return id, ch
}

// Unsubscribe removes and closes subscriber id. Unknown ids are ignored.
func (f *FanOut) Unsubscribe(id int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ch, ok := f.outputs[id]; ok {
		delete(f.outputs, id)
		close(ch)
	}
}

// Len returns the number of subscribers.
func (f *FanOut) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.outputs)
}

// Run reads from input and fans out to all subscribers.
// Blocks until ctx is cancelled or input is closed.
func (f *FanOut) Run(ctx context.Context, input <-chan Update) {
	defer func() {
		f.mu.Lock()
		for id, ch := range f.outputs {
			close(ch)
			delete(f.outputs, id)
		}
		f.closed = true
		f.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-input:
			if !ok {
				return
			}
			f.Publish(u)
		}
	}
}

// Publish delivers u to every subscriber without blocking.
func (f *FanOut) Publish(u Update) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for id, ch := range f.outputs {
		select {
		case ch <- u:
		default:
			if f.OnDrop != nil {
				f.OnDrop(id)
			} else {
				slog.Warn("bus subscriber full, dropping update", "subscriber", id, "time", u.Candle.Time)
			}
		}
	}
}

// ChannelStat is the fill level of one subscriber channel.
type ChannelStat struct {
	ID  int
	Len int
	Cap int
}

// ChannelStats reports saturation per subscriber.
func (f *FanOut) ChannelStats() []ChannelStat {
	f.mu.RLock()
	defer f.mu.RUnlock()
	stats := make([]ChannelStat, 0, len(f.outputs))
	for id, ch := range f.outputs {
		stats = append(stats, ChannelStat{ID: id, Len: len(ch), Cap: cap(ch)})
	}
	return stats
}
