package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/DeBrosOfficial/collab/pkg/config"
)

func TestComponentPrefix(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger(&buf, zapcore.DebugLevel, false)
	l.ComponentInfo(ComponentLocks, "Lock granted", zap.String("field", "hero.title"))
	l.ComponentDebug(ComponentSession, "Window closed")

	out := buf.String()
	if !strings.Contains(out, "[LOCKS] Lock granted") || !strings.Contains(out, `"field": "hero.title"`) {
		t.Errorf("unexpected output: %q", out)
	}
	if !strings.Contains(out, "[SESSION] Window closed") {
		t.Errorf("debug line missing: %q", out)
	}
	if strings.Contains(out, Reset) {
		t.Errorf("colors disabled but escape found: %q", out)
	}
}

func TestNewFromConfigJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "collab.log")
	l, err := NewFromConfig(config.LoggingConfig{Level: "warn", Format: "json", OutputFile: path})
	if err != nil {
		t.Fatal(err)
	}
	l.ComponentInfo(ComponentHost, "dropped below warn")
	l.ComponentWarn(ComponentHost, "Peer send queue full")
	if err := l.Close(); err != nil {
		t.Fatalf("Close() = %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("second Close() = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line, got %q", data)
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatal(err)
	}
	if entry["level"] != "warn" || entry["msg"] != "[HOST] Peer send queue full" {
		t.Errorf("unexpected entry: %v", entry)
	}
}

func TestNewFromConfigRejectsLevel(t *testing.T) {
	if _, err := NewFromConfig(config.LoggingConfig{Level: "loud"}); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestCloseWithoutFile(t *testing.T) {
	if err := NewNopLogger().Close(); err != nil {
		t.Errorf("Close() on nop logger = %v", err)
	}
}
