package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"ohlcchart/internal/chart"
	"ohlcchart/internal/logger"
	"ohlcchart/internal/marketdata/bus"
	"ohlcchart/internal/model"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	readLimit  = 4096
)

// Session is one WebSocket peer and the chart it drives. Only the run
// goroutine touches the chart.
type Session struct {
	id    string
	hub   *Hub
	conn  *websocket.Conn
	send  chan []byte
	in    chan ClientMsg
	chart *chart.Chart
	log   *slog.Logger
}

// CandleMsg carries one live update, already aggregated to the session's
// timeframe.
type CandleMsg struct {
	Type   string       `json:"type"`
	Candle model.Candle `json:"candle"`
	Closed bool         `json:"closed"`
}

func newSession(ctx context.Context, h *Hub, conn *websocket.Conn, opts chart.Options) *Session {
	id := logger.NewSessionID()
	ctx = logger.WithSessionID(ctx, id)
	opts.OnStale = func(model.Candle) { h.opts.Metrics.LiveStaleTotal.Inc() }
	return &Session{
		id:    id,
		hub:   h,
		conn:  conn,
		send:  make(chan []byte, h.opts.SessionBuffer),
		in:    make(chan ClientMsg, 64),
		chart: chart.New(opts),
		log:   h.log.With(logger.LogWithSession(ctx)...),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// serve runs the session until the peer disconnects or ctx is cancelled.
func (s *Session) serve(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	subID, updates := s.hub.fan.Subscribe()
	defer s.hub.fan.Unsubscribe(subID)

	s.hub.addSession(s)
	defer s.hub.removeSession(s)

	s.log.Info("session opened", "remote", s.conn.RemoteAddr().String())
	go s.writePump()
	go s.readPump(ctx, cancel)

	s.run(ctx, updates)
	s.log.Info("session closed")
}

// run owns the chart: it applies history, client messages and live updates
// one at a time and queues the resulting envelopes.
func (s *Session) run(ctx context.Context, updates <-chan bus.Update) {
	defer close(s.send)

	snap := s.chart.SetData(s.hub.History())
	s.queue(NewSeriesMsg(snap))
	s.queue(NewSnapshotMsg(snap))

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-s.in:
			if !ok {
				return
			}
			start := time.Now()
			s.handle(msg)
			s.hub.opts.Metrics.ObserveCycle(start)
		case u, ok := <-updates:
			if !ok {
				return
			}
			s.live(u)
		}
	}
}

func (s *Session) handle(msg ClientMsg) {
	m := s.hub.opts.Metrics
	m.EventsTotal.WithLabelValues(eventLabel(msg.Type)).Inc()

	switch msg.Type {
	case MsgPing:
		s.queue(PongMsg{Type: "pong", Ping: msg.Ping, ServerTS: time.Now().UnixMilli()})

	case MsgTimeframe:
		tf, err := model.ParseTimeframe(msg.Timeframe)
		if err != nil {
			s.queueError(err.Error())
			return
		}
		start := time.Now()
		snap := s.chart.SetTimeframe(tf)
		m.ObserveAggregate(start)
		m.ViewportUpdates.WithLabelValues("fit").Inc()
		s.queue(NewSeriesMsg(snap))
		s.queue(NewSnapshotMsg(snap))

	case MsgResize:
		s.queue(NewSnapshotMsg(s.chart.Resize(msg.Width, msg.Height)))

	case MsgViewport:
		if msg.Viewport == nil {
			s.queueError("viewport message without viewport")
			return
		}
		snap, err := s.chart.SetViewport(*msg.Viewport)
		if err != nil {
			s.queueError(err.Error())
			return
		}
		m.ViewportUpdates.WithLabelValues("set").Inc()
		s.queue(NewSnapshotMsg(snap))

	default:
		ev, err := msg.Event()
		if err != nil {
			s.queueError("unknown message type " + msg.Type)
			return
		}
		before := s.chart.Snapshot().Viewport
		snap := s.chart.Dispatch(ev)
		if snap.Viewport != before {
			cause := "pan"
			if msg.Type == MsgWheel {
				cause = "zoom"
			}
			m.ViewportUpdates.WithLabelValues(cause).Inc()
		}
		s.queue(NewSnapshotMsg(snap))
	}
}

// eventLabel bounds the metric label set to known message types.
func eventLabel(t string) string {
	switch t {
	case MsgPointerDown, MsgPointerMove, MsgPointerUp, MsgPointerLeave, MsgWheel,
		MsgTimeframe, MsgResize, MsgViewport, MsgPing:
		return t
	default:
		return "unknown"
	}
}

// live streams one update into the chart and queues the aggregated candles
// it touched: a bucket it closed first, then the bucket it landed in.
func (s *Session) live(u bus.Update) {
	res := s.chart.Stream(u.Candle, u.Closed)
	if res.Finalized != nil {
		s.queue(CandleMsg{Type: "candle", Candle: *res.Finalized, Closed: true})
	}
	if res.OK {
		s.queue(CandleMsg{Type: "candle", Candle: res.Candle, Closed: res.Closed})
	}
	s.queue(NewSnapshotMsg(res.Snapshot))
}

// queue marshals v onto the send channel, dropping it if the peer is not
// keeping up.
func (s *Session) queue(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.log.Error("marshal envelope failed", "error", err)
		return
	}
	select {
	case s.send <- data:
	default:
		s.log.Warn("send queue full, envelope dropped")
	}
}

func (s *Session) queueError(msg string) {
	s.queue(ErrorMsg{Type: "error", Message: msg})
}

func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Session) readPump(ctx context.Context, cancel context.CancelFunc) {
	defer cancel()

	s.conn.SetReadLimit(readLimit)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Warn("session read failed", "error", err)
			}
			return
		}
		var msg ClientMsg
		if err := json.Unmarshal(data, &msg); err != nil {
			s.hub.opts.Metrics.EventsTotal.WithLabelValues("malformed").Inc()
			continue
		}
		select {
		case s.in <- msg:
		case <-ctx.Done():
			return
		}
	}
}
