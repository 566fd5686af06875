package gateway

import (
	"fmt"

	"ohlcchart/internal/chart"
	"ohlcchart/internal/chart/interact"
	"ohlcchart/internal/chart/readout"
	"ohlcchart/internal/model"
)

// Inbound message types.
const (
	MsgPointerDown  = "pointerdown"
	MsgPointerMove  = "pointermove"
	MsgPointerUp    = "pointerup"
	MsgPointerLeave = "pointerleave"
	MsgWheel        = "wheel"
	MsgTimeframe    = "timeframe"
	MsgResize       = "resize"
	MsgViewport     = "viewport"
	MsgPing         = "ping"
)

// ClientMsg is one message from a chart session's browser.
type ClientMsg struct {
	Type string `json:"type"`

	// Pointer and wheel events.
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Button int     `json:"button"`
	DeltaY float64 `json:"deltaY"`
	Shift  bool    `json:"shift"`
	Ctrl   bool    `json:"ctrl"`
	Meta   bool    `json:"meta"`

	// Control messages.
	Timeframe string          `json:"timeframe,omitempty"`
	Width     float64         `json:"width,omitempty"`
	Height    float64         `json:"height,omitempty"`
	Viewport  *model.Viewport `json:"viewport,omitempty"`
	Ping      int64           `json:"ping,omitempty"`
}

// Event converts a pointer or wheel message to a controller event.
func (m ClientMsg) Event() (interact.Event, error) {
	switch m.Type {
	case MsgPointerDown:
		return interact.PointerDown{X: m.X, Y: m.Y, Button: interact.Button(m.Button)}, nil
	case MsgPointerMove:
		return interact.PointerMove{X: m.X, Y: m.Y}, nil
	case MsgPointerUp:
		return interact.PointerUp{X: m.X, Y: m.Y}, nil
	case MsgPointerLeave:
		return interact.PointerLeave{}, nil
	case MsgWheel:
		return interact.Wheel{
			X: m.X, Y: m.Y, DeltaY: m.DeltaY,
			Mods: interact.Modifiers{Shift: m.Shift, Ctrl: m.Ctrl, Meta: m.Meta},
		}, nil
	default:
		return nil, fmt.Errorf("not an event: %q", m.Type)
	}
}

// HoverOut is the hovered candle with its info-box content.
type HoverOut struct {
	Candle model.Candle  `json:"candle"`
	Info   readout.Info  `json:"info"`
	Lines  readout.Lines `json:"lines"`
	X      float64       `json:"x"` // candle centre in plot pixels
}

// SnapshotMsg is the server's view of one chart cycle.
type SnapshotMsg struct {
	Type      string            `json:"type"`
	Seq       uint64            `json:"seq"`
	Viewport  model.Viewport    `json:"viewport"`
	Dims      model.Dims        `json:"dims"`
	Timeframe model.Timeframe   `json:"timeframe"`
	Candles   int               `json:"candles"`
	Panning   bool              `json:"panning"`
	Pointer   *model.PixelPoint `json:"pointer,omitempty"`
	Hover     *HoverOut         `json:"hover,omitempty"`
	CandleW   float64           `json:"candleWidth"`
}

// NewSnapshotMsg renders a chart snapshot for the wire.
func NewSnapshotMsg(s *chart.Snapshot) SnapshotMsg {
	sc := s.Scale()
	msg := SnapshotMsg{
		Type:      "snapshot",
		Seq:       s.Seq,
		Viewport:  s.Viewport,
		Dims:      s.Dims,
		Timeframe: s.Timeframe,
		Candles:   len(s.Series),
		Panning:   s.Panning,
		Pointer:   s.Pointer,
		CandleW:   sc.CandleWidth(s.Timeframe.Interval()),
	}
	if s.Hovered != nil {
		info := readout.Describe(*s.Hovered)
		msg.Hover = &HoverOut{
			Candle: *s.Hovered,
			Info:   info,
			Lines:  info.Format(),
			X:      sc.TimeToX(float64(s.Hovered.Time) + float64(s.Timeframe.Interval())/2),
		}
	}
	return msg
}

// SeriesMsg carries the aggregated series after a data or timeframe change.
type SeriesMsg struct {
	Type      string          `json:"type"`
	Timeframe model.Timeframe `json:"timeframe"`
	Candles   []model.Candle  `json:"candles"`
	Dropped   int             `json:"dropped"`
}

// NewSeriesMsg renders the snapshot's series.
func NewSeriesMsg(s *chart.Snapshot) SeriesMsg {
	candles := s.Series
	if candles == nil {
		candles = []model.Candle{}
	}
	return SeriesMsg{
		Type:      "series",
		Timeframe: s.Timeframe,
		Candles:   candles,
		Dropped:   s.Report.Dropped + s.Report.Duplicates,
	}
}

// ErrorMsg reports a rejected client message.
type ErrorMsg struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// PongMsg answers a ping.
type PongMsg struct {
	Type     string `json:"type"`
	Ping     int64  `json:"ping"`
	ServerTS int64  `json:"server_ts"`
}

// FitOut is the REST response for /api/fit.
type FitOut struct {
	Timeframe model.Timeframe `json:"timeframe"`
	Viewport  model.Viewport  `json:"viewport"`
	Candles   int             `json:"candles"`
}
