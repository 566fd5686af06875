package feed

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"ohlcchart/internal/chart/validate"
)

func TestParseTime(t *testing.T) {
	iso := time.Date(2024, 3, 5, 9, 15, 0, 0, time.UTC).UnixMilli()
	tests := []struct {
		name string
		in   any
		want int64
	}{
		{"millis", float64(1709630100000), 1709630100000},
		{"seconds", float64(1709630100), 1709630100000},
		{"int seconds", 1709630100, 1709630100000},
		{"int64 millis", int64(1709630100000), 1709630100000},
		{"json number", json.Number("1709630100"), 1709630100000},
		{"numeric string", "1709630100000", 1709630100000},
		{"rfc3339", "2024-03-05T09:15:00Z", iso},
		{"rfc3339 offset", "2024-03-05T10:15:00+01:00", iso},
		{"no zone", "2024-03-05T09:15:00", iso},
		{"space", "2024-03-05 09:15:00", iso},
		{"time value", time.UnixMilli(iso), iso},
		{"zero", 0, 0},
	}
	for _, tt := range tests {
		got, err := ParseTime(tt.in)
		if err != nil {
			t.Errorf("%s: unexpected error %v", tt.name, err)
			continue
		}
		if got != tt.want {
			t.Errorf("%s: expected %d, got %d", tt.name, tt.want, got)
		}
	}
}

func TestParseTimeRejects(t *testing.T) {
	for _, in := range []any{"yesterday", true, nil, []int{1}} {
		if _, err := ParseTime(in); !errors.Is(err, ErrBadTime) {
			t.Errorf("expected ErrBadTime for %v, got %v", in, err)
		}
	}
}

func TestDecodeJSON(t *testing.T) {
	in := `[
		{"time": 1709630100000, "open": 10, "high": 11, "low": 9, "close": 10.5},
		{"timestamp": "2024-03-05T09:16:00Z", "open": 10.5, "high": 12, "low": 10, "close": 11},
		{"open": 1, "high": 2, "low": 0, "close": 1},
		{"time": "not a time", "open": 1, "high": 2, "low": 0, "close": 1}
	]`
	got, rep, err := DecodeJSON(strings.NewReader(in))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rep.Records != 4 || rep.Rejected != 2 {
		t.Errorf("expected 4 records 2 rejected, got %+v", rep)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 candles, got %d", len(got))
	}
	if got[1].Time-got[0].Time != 60000 {
		t.Errorf("expected one minute apart, got %d", got[1].Time-got[0].Time)
	}
}

func TestDecodeJSONRejectsBadRecordOnly(t *testing.T) {
	in := `[
		{"time": 0, "open": 10, "high": 12, "low": 9, "close": 11},
		{"time": 60000, "open": "x", "high": 12, "low": 9, "close": 11},
		{"time": 120000, "open": 11, "high": 13, "low": 10, "close": 12}
	]`
	got, rep, err := DecodeJSON(strings.NewReader(in))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rep.Records != 3 || rep.Rejected != 1 {
		t.Errorf("expected 3 records 1 rejected, got %+v", rep)
	}
	if len(got) != 2 || got[0].Close != 11 || got[1].Close != 12 {
		t.Errorf("expected the two good candles, got %+v", got)
	}
}

func TestDecodeJSONMissingPrices(t *testing.T) {
	in := `[
		{"time": 0, "open": 10, "high": 12, "low": 9, "close": 11},
		{"time": 60},
		{"time": 120, "open": 10, "high": null, "low": 9, "close": 11},
		null
	]`
	got, rep, err := DecodeJSON(strings.NewReader(in))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rep.Rejected != 3 {
		t.Errorf("expected 3 rejected, got %+v", rep)
	}
	series, vrep := validate.Normalize(got)
	if len(series) != 1 || vrep.Dropped != 0 {
		t.Fatalf("expected 1 candle, got %+v (%+v)", series, vrep)
	}
	if series[0].Low != 9 {
		t.Errorf("expected low 9, got %v", series[0].Low)
	}
}

func TestRecordCandleNoPrice(t *testing.T) {
	one := 1.0
	rec := Record{Time: float64(60), Open: &one, High: &one, Low: &one}
	if _, err := rec.Candle(); !errors.Is(err, ErrNoPrice) {
		t.Errorf("expected ErrNoPrice, got %v", err)
	}
	rec.Close = &one
	if _, err := rec.Candle(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestDecodeJSONMalformed(t *testing.T) {
	if _, _, err := DecodeJSON(strings.NewReader(`{"time":`)); err == nil {
		t.Error("expected error for malformed json")
	}
}

func TestDecodeYAML(t *testing.T) {
	in := `
- time: 2024-03-05T09:15:00Z
  open: 10
  high: 11
  low: 9
  close: 10.5
- time: 1709630160
  open: 10.5
  high: 12
  low: 10
  close: 11
`
	got, rep, err := DecodeYAML(strings.NewReader(in))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rep.Rejected != 0 || len(got) != 2 {
		t.Fatalf("expected 2 candles, got %d (%+v)", len(got), rep)
	}
	if got[0].Time != 1709630100000 || got[1].Time != 1709630160000 {
		t.Errorf("unexpected times %d %d", got[0].Time, got[1].Time)
	}
}

func TestDecodeYAMLRejectsBadRecordOnly(t *testing.T) {
	in := `
- time: 0
  open: 10
  high: 12
  low: 9
  close: 11
- time: 60
  open: [1, 2]
  high: 12
  low: 9
  close: 11
- time: 120
  open: 10
  high: 12
  low: 9
`
	got, rep, err := DecodeYAML(strings.NewReader(in))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rep.Records != 3 || rep.Rejected != 2 {
		t.Errorf("expected 3 records 2 rejected, got %+v", rep)
	}
	if len(got) != 1 || got[0].Time != 0 {
		t.Errorf("expected the first candle only, got %+v", got)
	}
}

func TestDecodeYAMLNotASequence(t *testing.T) {
	if _, _, err := DecodeYAML(strings.NewReader("open: 1\n")); err == nil {
		t.Error("expected error for a mapping document")
	}
	got, rep, err := DecodeYAML(strings.NewReader(""))
	if err != nil || len(got) != 0 || rep.Records != 0 {
		t.Errorf("expected empty result for empty input, got %+v %+v %v", got, rep, err)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "candles.json")
	if err := os.WriteFile(path, []byte(`[{"time":60000,"open":1,"high":2,"low":0.5,"close":1.5}]`), 0o644); err != nil {
		t.Fatal(err)
	}
	got, _, err := LoadFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// 60000 is below the seconds cutoff.
	if len(got) != 1 || got[0].Time != 60000000 {
		t.Errorf("unexpected result %+v", got)
	}

	if _, _, err := LoadFile(filepath.Join(dir, "candles.csv")); err == nil {
		t.Error("expected error for missing file")
	}
	csv := filepath.Join(dir, "x.csv")
	os.WriteFile(csv, nil, 0o644)
	if _, _, err := LoadFile(csv); !errors.Is(err, ErrUnsupported) {
		t.Errorf("expected ErrUnsupported, got %v", err)
	}
}

func TestParseMessage(t *testing.T) {
	c, err := ParseMessage([]byte(`{"time":"1709630100","open":1,"high":2,"low":0.5,"close":1.5}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Time != 1709630100000 || c.Close != 1.5 {
		t.Errorf("unexpected candle %+v", c)
	}
}

func TestGenerate(t *testing.T) {
	end := int64(1709630100000)
	s := Generate(200, end, 7)
	if len(s) != 200 {
		t.Fatalf("expected 200 candles, got %d", len(s))
	}
	if !validate.Ascending(s) {
		t.Error("expected strictly ascending times")
	}
	for i, c := range s {
		if !validate.Valid(c) {
			t.Fatalf("candle %d invalid: %+v", i, c)
		}
		if i > 0 && c.Open != s[i-1].Close {
			t.Fatalf("candle %d does not open at previous close", i)
		}
	}
	if s[len(s)-1].Time != end-60000 {
		t.Errorf("expected last candle at %d, got %d", end-60000, s[len(s)-1].Time)
	}
	if Generate(0, end, 7) != nil {
		t.Error("expected nil for zero count")
	}
}

func TestWalkerInterval(t *testing.T) {
	w := NewWalker(1, 0, 100, 0)
	a, b := w.Next(), w.Next()
	if b.Time-a.Time != 60000 {
		t.Errorf("expected default one-minute spacing, got %d", b.Time-a.Time)
	}
	if b.Open != a.Close {
		t.Error("expected next candle to open at previous close")
	}
}
