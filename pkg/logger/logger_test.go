package logger

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, err := New(&Config{Level: "loud"}); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestLoggerWritesJSONFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.log")
	l, err := New(&Config{Level: "debug", Format: "json", Output: path})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	l.With(String("component", "ledger")).Info("verified",
		Int("horizon", 5),
		Float("change_pct", 0.2),
		Bool("success", true),
		Duration("elapsed", 1500*time.Millisecond),
		Error(errors.New("boom")),
	)

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	var entry map[string]interface{}
	if err := json.Unmarshal(raw, &entry); err != nil {
		t.Fatalf("log line is not json: %v (%s)", err, raw)
	}
	if entry["component"] != "ledger" || entry["message"] != "verified" {
		t.Fatalf("unexpected entry: %v", entry)
	}
	if entry["horizon"].(float64) != 5 || entry["elapsed"].(float64) != 1500 {
		t.Fatalf("unexpected numeric fields: %v", entry)
	}
	if entry["error"] != "boom" {
		t.Fatalf("expected error field, got %v", entry["error"])
	}
}

func TestNopDiscards(t *testing.T) {
	Nop().Warn("ignored", String("k", "v"))
}
