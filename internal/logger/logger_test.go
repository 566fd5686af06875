package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/google/uuid"
)

func TestInit(t *testing.T) {
	logger := Init("test-service", slog.LevelInfo)
	if logger == nil {
		t.Fatal("expected non-nil logger")
	}
}

func TestInitTo_JSONWithService(t *testing.T) {
	var buf bytes.Buffer
	log := InitTo(&buf, "chartd", slog.LevelInfo)
	log.Debug("hidden")
	log.Info("hello", slog.Int("n", 3))

	var rec map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec); err != nil {
		t.Fatalf("expected one JSON record, got %q: %v", buf.String(), err)
	}
	if rec["service"] != "chartd" {
		t.Errorf("expected service=chartd, got %v", rec["service"])
	}
	if rec["msg"] != "hello" {
		t.Errorf("expected msg=hello, got %v", rec["msg"])
	}
}

func TestSessionID_RoundTrip(t *testing.T) {
	ctx := context.Background()

	if id := SessionID(ctx); id != "" {
		t.Errorf("expected empty session id, got %q", id)
	}
	if attrs := LogWithSession(ctx); attrs != nil {
		t.Errorf("expected nil attrs when no session id, got %v", attrs)
	}

	ctx = WithSessionID(ctx, "abc-123")
	if id := SessionID(ctx); id != "abc-123" {
		t.Errorf("expected 'abc-123', got %q", id)
	}
	if attrs := LogWithSession(ctx); len(attrs) == 0 {
		t.Fatal("expected non-empty attrs with session id set")
	}
}

func TestNewSessionID(t *testing.T) {
	a, b := NewSessionID(), NewSessionID()
	if a == b {
		t.Error("expected distinct session ids")
	}
	if _, err := uuid.Parse(a); err != nil {
		t.Errorf("expected a UUID, got %q: %v", a, err)
	}
}
