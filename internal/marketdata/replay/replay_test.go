package replay

import (
	"context"
	"errors"
	"testing"
	"time"

	"ohlcchart/internal/chart/validate"
	"ohlcchart/internal/marketdata/bus"
	"ohlcchart/internal/model"
)

type memReader struct {
	candles []model.Candle
	err     error
}

func (m *memReader) ReadCandles(_ context.Context, _ string, from, to int64) ([]model.Candle, error) {
	var out []model.Candle
	for _, c := range m.candles {
		if c.Time >= from && (to <= 0 || c.Time < to) {
			out = append(out, c)
		}
	}
	return out, m.err
}

func (m *memReader) LastTime(context.Context, string) (int64, error) { return 0, nil }
func (m *memReader) Close() error                                     { return nil }

func testCandles() []model.Candle {
	return []model.Candle{
		{Time: 0, Open: 10, High: 12, Low: 9, Close: 11},
		{Time: 60000, Open: 11, High: 13, Low: 10, Close: 12},
		{Time: 120000, Open: 12, High: 12.5, Low: 8, Close: 9},
	}
}

func collect(ch chan bus.Update) []bus.Update {
	var out []bus.Update
	for {
		select {
		case u := <-ch:
			out = append(out, u)
		default:
			return out
		}
	}
}

func TestRun_EmitsInOrder(t *testing.T) {
	r := New(&memReader{candles: testCandles()})
	var slept []time.Duration
	r.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	out := make(chan bus.Update, 10)
	n, err := r.Run(context.Background(), Options{Speed: 60}, out)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 emitted, got %d", n)
	}
	got := collect(out)
	for i, u := range got {
		if !u.Closed || u.Candle != testCandles()[i] {
			t.Errorf("update %d: unexpected %+v", i, u)
		}
	}
	// One minute at 60x is one second.
	if len(slept) != 3 || slept[0] != 0 || slept[1] != time.Second {
		t.Errorf("unexpected sleeps %v", slept)
	}
}

func TestRun_Range(t *testing.T) {
	r := New(&memReader{candles: testCandles()})
	out := make(chan bus.Update, 10)
	n, _ := r.Run(context.Background(), Options{From: 60000, To: 120000}, out)
	if n != 1 {
		t.Errorf("expected 1 candle in range, got %d", n)
	}
}

func TestRun_Forming(t *testing.T) {
	r := New(&memReader{candles: testCandles()[:1]})
	out := make(chan bus.Update, 10)
	if _, err := r.Run(context.Background(), Options{Forming: 3}, out); err != nil {
		t.Fatal(err)
	}
	got := collect(out)
	if len(got) != 4 {
		t.Fatalf("expected 3 forming + 1 closed, got %d", len(got))
	}
	for _, u := range got[:3] {
		if u.Closed || u.Candle.Time != 0 {
			t.Errorf("unexpected forming update %+v", u)
		}
	}
	if !got[3].Closed {
		t.Error("expected final update closed")
	}
}

func TestRun_Cancelled(t *testing.T) {
	r := New(&memReader{candles: testCandles()})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := make(chan bus.Update)
	if _, err := r.Run(ctx, Options{}, out); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestRun_ReaderError(t *testing.T) {
	boom := errors.New("boom")
	r := New(&memReader{err: boom})
	if _, err := r.Run(context.Background(), Options{}, make(chan bus.Update, 1)); !errors.Is(err, boom) {
		t.Errorf("expected reader error, got %v", err)
	}
}

func TestPartial(t *testing.T) {
	c := model.Candle{Time: 0, Open: 10, High: 15, Low: 7, Close: 12}
	prev := model.Candle{Open: 10, High: 10, Low: 10, Close: 10}
	for k := 1; k <= 4; k++ {
		p := Partial(c, k, 4)
		if !validate.Valid(p) {
			t.Fatalf("partial %d invalid: %+v", k, p)
		}
		if p.High > c.High || p.Low < c.Low {
			t.Errorf("partial %d exceeds final extremes: %+v", k, p)
		}
		if p.High < prev.High || p.Low > prev.Low {
			t.Errorf("partial %d extremes shrank", k)
		}
		prev = p
	}
	if Partial(c, 4, 4) != c {
		t.Error("expected final partial to equal the candle")
	}
}
