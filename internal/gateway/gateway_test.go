package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pquerna/otp/totp"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"ohlcchart/internal/chart"
	"ohlcchart/internal/chart/interact"
	"ohlcchart/internal/marketdata/bus"
	"ohlcchart/internal/model"
)

// base is aligned to the hour so every supported bucket starts on it.
const base int64 = 1709629200000

func testHistory() []model.Candle {
	return []model.Candle{
		{Time: base, Open: 10, High: 12, Low: 9, Close: 11},
		{Time: base + 60000, Open: 11, High: 13, Low: 10, Close: 12},
		{Time: base + 120000, Open: 12, High: 12.5, Low: 8, Close: 9},
	}
}

func newTestHub(t *testing.T, opts Options) (*Hub, *httptest.Server) {
	t.Helper()
	h := NewHub(opts)
	h.SetHistory(testHistory())
	srv := httptest.NewServer(h.Router())
	t.Cleanup(srv.Close)
	return h, srv
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readType reads envelopes until one of the wanted type arrives.
func readType(t *testing.T, conn *websocket.Conn, want string, out any) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("waiting for %q: %v", want, err)
		}
		var env struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(data, &env); err != nil {
			t.Fatalf("bad envelope %s: %v", data, err)
		}
		if env.Type == want {
			if out != nil {
				if err := json.Unmarshal(data, out); err != nil {
					t.Fatalf("decode %q: %v", want, err)
				}
			}
			return
		}
	}
}

func send(t *testing.T, conn *websocket.Conn, msg ClientMsg) {
	t.Helper()
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestSession_InitialSeriesAndSnapshot(t *testing.T) {
	_, srv := newTestHub(t, Options{})
	conn := dial(t, srv, "")

	var series SeriesMsg
	readType(t, conn, "series", &series)
	if len(series.Candles) != 3 || series.Timeframe.Label != "1m" {
		t.Errorf("expected 3 candles at 1m, got %d at %s", len(series.Candles), series.Timeframe.Label)
	}

	var snap SnapshotMsg
	readType(t, conn, "snapshot", &snap)
	if snap.Dims.Width != 730 || snap.Dims.Height != 370 {
		t.Errorf("expected plot 730x370, got %vx%v", snap.Dims.Width, snap.Dims.Height)
	}
	if snap.Candles != 3 {
		t.Errorf("expected 3 candles, got %d", snap.Candles)
	}
}

func TestSession_HoverAndTimeframe(t *testing.T) {
	_, srv := newTestHub(t, Options{})
	conn := dial(t, srv, "")

	var snap SnapshotMsg
	readType(t, conn, "snapshot", &snap)

	// Pointer over the middle of the second candle.
	vp := snap.Viewport.Time
	mid := float64(base+60000) + 30000
	x := (mid - vp.Min) / (vp.Max - vp.Min) * snap.Dims.Width
	send(t, conn, ClientMsg{Type: MsgPointerMove, X: x, Y: 100})

	readType(t, conn, "snapshot", &snap)
	if snap.Hover == nil {
		t.Fatal("expected a hovered candle")
	}
	if snap.Hover.Candle.Time != base+60000 {
		t.Errorf("expected hovered time %d, got %d", base+60000, snap.Hover.Candle.Time)
	}
	if snap.Hover.Lines.Change != "+1.00 (+9.09%)" {
		t.Errorf("unexpected change line %q", snap.Hover.Lines.Change)
	}

	send(t, conn, ClientMsg{Type: MsgTimeframe, Timeframe: "3m"})
	var series SeriesMsg
	readType(t, conn, "series", &series)
	if len(series.Candles) != 1 {
		t.Fatalf("expected 1 aggregated candle, got %d", len(series.Candles))
	}
	c := series.Candles[0]
	if c.Open != 10 || c.High != 13 || c.Low != 8 || c.Close != 9 {
		t.Errorf("unexpected aggregate %+v", c)
	}
}

func TestSession_PingAndErrors(t *testing.T) {
	_, srv := newTestHub(t, Options{})
	conn := dial(t, srv, "")

	send(t, conn, ClientMsg{Type: MsgPing, Ping: 42})
	var pong PongMsg
	readType(t, conn, "pong", &pong)
	if pong.Ping != 42 {
		t.Errorf("expected ping 42, got %d", pong.Ping)
	}

	send(t, conn, ClientMsg{Type: MsgTimeframe, Timeframe: "7m"})
	var e ErrorMsg
	readType(t, conn, "error", &e)
	if !strings.Contains(e.Message, "unsupported timeframe") {
		t.Errorf("unexpected error %q", e.Message)
	}

	send(t, conn, ClientMsg{Type: "dance"})
	readType(t, conn, "error", &e)
}

func TestSession_LiveUpdate(t *testing.T) {
	h, srv := newTestHub(t, Options{})
	conn := dial(t, srv, "")
	readType(t, conn, "snapshot", nil)

	// Wait for the session to subscribe.
	deadline := time.Now().Add(2 * time.Second)
	for h.Sessions() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	h.Ingest(bus.Update{Candle: model.Candle{Time: base + 180000, Open: 9, High: 10, Low: 8.5, Close: 9.5}, Closed: true})

	// The first live candle completes the last history candle.
	var cm CandleMsg
	readType(t, conn, "candle", &cm)
	if cm.Candle.Time != base+120000 || !cm.Closed {
		t.Errorf("expected history tail closed, got %+v", cm)
	}
	readType(t, conn, "candle", &cm)
	if cm.Candle.Time != base+180000 || !cm.Closed {
		t.Errorf("unexpected live candle %+v", cm)
	}
	var snap SnapshotMsg
	readType(t, conn, "snapshot", &snap)
	if snap.Candles != 4 {
		t.Errorf("expected 4 candles after update, got %d", snap.Candles)
	}
	if len(h.History()) != 4 {
		t.Errorf("expected hub history of 4, got %d", len(h.History()))
	}
}

func waitForSession(h *Hub) {
	deadline := time.Now().Add(2 * time.Second)
	for h.Sessions() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSession_LiveUpdateAggregated(t *testing.T) {
	h, srv := newTestHub(t, Options{})
	conn := dial(t, srv, "?tf=3m")
	readType(t, conn, "snapshot", nil)
	waitForSession(h)

	h.Ingest(bus.Update{Candle: model.Candle{Time: base + 180000, Open: 9, High: 10, Low: 8.5, Close: 9.5}, Closed: true})

	var cm CandleMsg
	readType(t, conn, "candle", &cm)
	want := model.Candle{Time: base, Open: 10, High: 13, Low: 8, Close: 9}
	if cm.Candle != want || !cm.Closed {
		t.Errorf("expected finalized %+v, got %+v", want, cm)
	}
	readType(t, conn, "candle", &cm)
	if cm.Candle.Time != base+180000 || cm.Closed {
		t.Errorf("expected forming 3m candle, got %+v", cm)
	}

	// A correction to the closed bucket takes the rebuild path.
	h.Ingest(bus.Update{Candle: model.Candle{Time: base + 60000, Open: 11, High: 20, Low: 10, Close: 12}, Closed: true})
	readType(t, conn, "candle", &cm)
	if cm.Candle.Time != base || cm.Candle.High != 20 {
		t.Errorf("expected corrected bucket, got %+v", cm)
	}
	if got := testutil.ToFloat64(h.opts.Metrics.LiveStaleTotal); got != 1 {
		t.Errorf("expected 1 stale update, got %v", got)
	}
}

func TestIngest_DropsInvalid(t *testing.T) {
	h := NewHub(Options{})
	h.Ingest(bus.Update{Candle: model.Candle{Time: 1, Open: 5, High: 4, Low: 3, Close: 4}})
	if len(h.History()) != 0 {
		t.Errorf("expected invalid candle dropped, got %d", len(h.History()))
	}
}

func TestREST_Timeframes(t *testing.T) {
	_, srv := newTestHub(t, Options{})
	resp, err := http.Get(srv.URL + "/api/timeframes")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var tfs []model.Timeframe
	json.NewDecoder(resp.Body).Decode(&tfs)
	if len(tfs) != len(model.Timeframes) || tfs[len(tfs)-1].Label != "1D" {
		t.Errorf("unexpected timeframes %+v", tfs)
	}
}

func TestREST_CandlesAndFit(t *testing.T) {
	_, srv := newTestHub(t, Options{})

	resp, err := http.Get(srv.URL + "/api/candles?tf=3m")
	if err != nil {
		t.Fatal(err)
	}
	var candles []model.Candle
	json.NewDecoder(resp.Body).Decode(&candles)
	resp.Body.Close()
	if len(candles) != 1 || candles[0].Time != base {
		t.Errorf("unexpected candles %+v", candles)
	}

	resp, err = http.Get(srv.URL + "/api/fit?tf=1m&padding=0")
	if err != nil {
		t.Fatal(err)
	}
	var fit FitOut
	json.NewDecoder(resp.Body).Decode(&fit)
	resp.Body.Close()
	if fit.Viewport.Price.Min != 8 || fit.Viewport.Price.Max != 13 {
		t.Errorf("expected unpadded price range 8..13, got %+v", fit.Viewport.Price)
	}

	resp, err = http.Get(srv.URL + "/api/candles?tf=bogus")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

func getFit(t *testing.T, srv *httptest.Server, query string) (FitOut, int) {
	t.Helper()
	resp, err := http.Get(srv.URL + "/api/fit" + query)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var fit FitOut
	json.NewDecoder(resp.Body).Decode(&fit)
	return fit, resp.StatusCode
}

func TestREST_FitPadding(t *testing.T) {
	_, srv := newTestHub(t, Options{})

	for _, q := range []string{"NaN", "Inf", "-Inf", "-0.1", "abc"} {
		if _, code := getFit(t, srv, "?padding="+q); code != http.StatusBadRequest {
			t.Errorf("padding=%s: expected 400, got %d", q, code)
		}
	}

	fit, _ := getFit(t, srv, "")
	if fit.Viewport.Price.Min != 7.75 || fit.Viewport.Price.Max != 13.25 {
		t.Errorf("expected default padded price range 7.75..13.25, got %+v", fit.Viewport.Price)
	}

	zero := 0.0
	_, bare := newTestHub(t, Options{Chart: chart.Options{Padding: &zero}})
	fit, _ = getFit(t, bare, "")
	if fit.Viewport.Price.Min != 8 || fit.Viewport.Price.Max != 13 {
		t.Errorf("expected configured zero padding to give 8..13, got %+v", fit.Viewport.Price)
	}
}

func TestREST_HealthAndMetrics(t *testing.T) {
	_, srv := newTestHub(t, Options{})
	for _, path := range []string{"/healthz", "/metrics"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", path, resp.StatusCode)
		}
	}
}

func TestTOTPGate(t *testing.T) {
	key, err := totp.Generate(totp.GenerateOpts{Issuer: "ohlcchart", AccountName: "test"})
	if err != nil {
		t.Fatal(err)
	}
	_, srv := newTestHub(t, Options{TOTPSecret: key.Secret()})

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("expected dial without code to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401, got %v", resp)
	}

	code, err := totp.GenerateCode(key.Secret(), time.Now())
	if err != nil {
		t.Fatal(err)
	}
	conn := dial(t, srv, "?otp="+code)
	readType(t, conn, "series", nil)
}

func TestSessionOptions(t *testing.T) {
	h := NewHub(Options{Chart: chart.Options{Width: 500}})
	r := httptest.NewRequest(http.MethodGet, "/ws?tf=1h&height=300", nil)
	opts, err := h.sessionOptions(r)
	if err != nil {
		t.Fatal(err)
	}
	if opts.Timeframe.Minutes != 60 || opts.Width != 500 || opts.Height != 300 {
		t.Errorf("unexpected options %+v", opts)
	}

	r = httptest.NewRequest(http.MethodGet, "/ws?tf=9m", nil)
	if _, err := h.sessionOptions(r); err == nil {
		t.Error("expected error for unsupported timeframe")
	}
}

func TestClientMsgEvent(t *testing.T) {
	if _, err := (ClientMsg{Type: MsgResize}).Event(); err == nil {
		t.Error("expected resize not to be an event")
	}
	ev, err := ClientMsg{Type: MsgWheel, DeltaY: -1, Shift: true}.Event()
	if err != nil {
		t.Fatal(err)
	}
	if w, ok := ev.(interact.Wheel); !ok || !w.Mods.Shift {
		t.Errorf("unexpected event %#v", ev)
	}
}
