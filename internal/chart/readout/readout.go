// Package readout derives the numbers shown in the hovered-candle info box.
package readout

import (
	"fmt"
	"strconv"

	"ohlcchart/internal/model"
)

// TimeLayout is the day-first layout used for the info box header.
const TimeLayout = "02/01/2006 15:04:05"

// Info is the info-box content for one candle.
type Info struct {
	Time          int64   `json:"time"`
	Open          float64 `json:"open"`
	High          float64 `json:"high"`
	Low           float64 `json:"low"`
	Close         float64 `json:"close"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"changePercent"`
	Bull          bool    `json:"bull"`
	Precision     int     `json:"precision"`
}

// Describe computes the readout for c.
func Describe(c model.Candle) Info {
	change := c.Close - c.Open
	pct := 0.0
	if c.Open != 0 {
		pct = change / c.Open * 100
	}
	return Info{
		Time:          c.Time,
		Open:          c.Open,
		High:          c.High,
		Low:           c.Low,
		Close:         c.Close,
		Change:        change,
		ChangePercent: pct,
		Bull:          c.Bull(),
		Precision:     Precision(c.High - c.Low),
	}
}

// Precision picks the number of decimals from the candle's high-low range.
func Precision(priceRange float64) int {
	switch {
	case priceRange < 0.01:
		return 6
	case priceRange < 0.1:
		return 4
	case priceRange < 10:
		return 2
	case priceRange < 1000:
		return 1
	default:
		return 0
	}
}

// Lines is the formatted info box, one entry per row.
type Lines struct {
	Header string `json:"header"`
	Open   string `json:"open"`
	High   string `json:"high"`
	Low    string `json:"low"`
	Close  string `json:"close"`
	Change string `json:"change"`
}

// Format renders the readout as display strings. Times are shown in UTC.
func (i Info) Format() Lines {
	p := func(v float64) string { return strconv.FormatFloat(v, 'f', i.Precision, 64) }
	return Lines{
		Header: model.Candle{Time: i.Time}.TS().Format(TimeLayout),
		Open:   p(i.Open),
		High:   p(i.High),
		Low:    p(i.Low),
		Close:  p(i.Close),
		Change: fmt.Sprintf("%s%s (%s%.2f%%)", sign(i.Change), p(i.Change), sign(i.ChangePercent), i.ChangePercent),
	}
}

func sign(v float64) string {
	if v >= 0 {
		return "+"
	}
	return ""
}
