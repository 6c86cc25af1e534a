package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{" error ", slog.LevelError},
		{"", slog.LevelInfo},
		{"loud", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewWithWriter(t *testing.T) {
	t.Run("json format", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewWithWriter(&buf, Config{Level: "info", Format: "json"}, false)
		logger.Info("session: connected", "bot", "b1")

		var entry map[string]any
		if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
			t.Fatalf("expected JSON output, got %q: %v", buf.String(), err)
		}
		if entry["msg"] != "session: connected" || entry["bot"] != "b1" {
			t.Errorf("unexpected entry: %v", entry)
		}
	})

	t.Run("level filters debug", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewWithWriter(&buf, Config{Level: "info"}, false)
		logger.Debug("hidden")
		if buf.Len() != 0 {
			t.Errorf("expected no output, got %q", buf.String())
		}
	})

	t.Run("verbose forces debug", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewWithWriter(&buf, Config{Level: "error"}, true)
		logger.Debug("shown")
		if !strings.Contains(buf.String(), "shown") {
			t.Errorf("expected debug output, got %q", buf.String())
		}
	})
}

func TestWhatsmeowAdapter(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, Config{Level: "info"}, false)

	wa := Whatsmeow(logger, "bot-1").Sub("Client")

	wa.Infof("noisy %d", 1)
	if buf.Len() != 0 {
		t.Errorf("expected info to be demoted below the info level, got %q", buf.String())
	}

	wa.Warnf("socket %s", "closed")
	out := buf.String()
	if !strings.Contains(out, "whatsmeow: socket closed") {
		t.Errorf("expected formatted warning, got %q", out)
	}
	if !strings.Contains(out, "module=bot-1/Client") {
		t.Errorf("expected module attribute, got %q", out)
	}
}
