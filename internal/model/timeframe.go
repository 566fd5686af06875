package model

import (
	"fmt"
	"strconv"
	"strings"
)

// MinuteMs is the length of one native (1-minute) candle in milliseconds.
const MinuteMs int64 = 60_000

// Timeframe is a supported bucket width.
type Timeframe struct {
	Minutes int    `json:"minutes"`
	Label   string `json:"label"`
}

// Interval returns the bucket width in milliseconds.
func (tf Timeframe) Interval() int64 {
	return int64(tf.Minutes) * MinuteMs
}

func (tf Timeframe) String() string {
	return tf.Label
}

// Timeframes lists the supported bucket widths, finest first.
var Timeframes = []Timeframe{
	{Minutes: 1, Label: "1m"},
	{Minutes: 2, Label: "2m"},
	{Minutes: 3, Label: "3m"},
	{Minutes: 5, Label: "5m"},
	{Minutes: 10, Label: "10m"},
	{Minutes: 15, Label: "15m"},
	{Minutes: 30, Label: "30m"},
	{Minutes: 60, Label: "1h"},
	{Minutes: 120, Label: "2h"},
	{Minutes: 240, Label: "4h"},
	{Minutes: 1440, Label: "1D"},
}

// Native is the 1-minute timeframe raw input is expressed in.
var Native = Timeframes[0]

// LookupTimeframe returns the supported timeframe with the given width.
func LookupTimeframe(minutes int) (Timeframe, bool) {
	for _, tf := range Timeframes {
		if tf.Minutes == minutes {
			return tf, true
		}
	}
	return Timeframe{}, false
}

// ParseTimeframe accepts a label ("5m", "1h", "1D") or a bare minute count ("15").
func ParseTimeframe(s string) (Timeframe, error) {
	s = strings.TrimSpace(s)
	for _, tf := range Timeframes {
		if strings.EqualFold(tf.Label, s) {
			return tf, nil
		}
	}
	if n, err := strconv.Atoi(s); err == nil {
		if tf, ok := LookupTimeframe(n); ok {
			return tf, nil
		}
	}
	return Timeframe{}, fmt.Errorf("unsupported timeframe %q", s)
}
