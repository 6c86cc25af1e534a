package commands

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/zalando/go-keyring"

	"github.com/victorbta777-del/arcabot-flow/pkg/arcabot/store"
)

func writeTestConfig(t *testing.T) string {
	t.Helper()
	keyring.MockInit()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := `
name: test
database:
  backend: sqlite
  sqlite:
    path: arcabot.db
dispatch:
  uploads_dir: uploads
metrics:
  enabled: false
ai:
  provider: none
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func run(t *testing.T, cfgPath string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd("test")
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--config", cfgPath}, args...))
	err := root.Execute()
	return out.String(), err
}

var idPattern = regexp.MustCompile(`[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`)

func TestBotAndScheduleCommands(t *testing.T) {
	cfgPath := writeTestConfig(t)

	out, err := run(t, cfgPath, "bot", "add", "Atendimento")
	if err != nil {
		t.Fatalf("bot add failed: %v", err)
	}
	botID := idPattern.FindString(out)
	if botID == "" {
		t.Fatalf("expected a bot id in %q", out)
	}

	t.Run("list bots", func(t *testing.T) {
		out, err := run(t, cfgPath, "bot", "list")
		if err != nil {
			t.Fatalf("bot list failed: %v", err)
		}
		if !strings.Contains(out, "Atendimento") || !strings.Contains(out, "OFFLINE") {
			t.Errorf("unexpected list output: %q", out)
		}
	})

	t.Run("configure bot", func(t *testing.T) {
		out, err := run(t, cfgPath, "bot", "config", botID, "--welcome", "Olá!", "--ignore-groups=true")
		if err != nil {
			t.Fatalf("bot config failed: %v", err)
		}
		if !strings.Contains(out, "Olá!") {
			t.Errorf("expected welcome in output: %q", out)
		}
	})

	t.Run("pause toggles", func(t *testing.T) {
		out, err := run(t, cfgPath, "bot", "pause", botID)
		if err != nil {
			t.Fatalf("bot pause failed: %v", err)
		}
		if !strings.Contains(out, string(store.BotOnline)) {
			t.Errorf("offline bot should become ONLINE, got %q", out)
		}
	})

	var msgID string
	t.Run("schedule add", func(t *testing.T) {
		out, err := run(t, cfgPath, "schedule", "add", "--bot", botID, "--to", "5511999998888",
			"--text", "Lembrete da consulta", "--at", "30m", "--recurrence", "weekly")
		if err != nil {
			t.Fatalf("schedule add failed: %v", err)
		}
		msgID = idPattern.FindString(out)
		if msgID == "" {
			t.Fatalf("expected a message id in %q", out)
		}
	})

	t.Run("schedule list and cancel", func(t *testing.T) {
		out, err := run(t, cfgPath, "schedule", "list", "--status", "pending")
		if err != nil {
			t.Fatalf("schedule list failed: %v", err)
		}
		if !strings.Contains(out, "Lembrete da consulta") || !strings.Contains(out, "weekly") {
			t.Errorf("unexpected schedule list: %q", out)
		}

		if _, err := run(t, cfgPath, "schedule", "cancel", msgID); err != nil {
			t.Fatalf("schedule cancel failed: %v", err)
		}
		_, err = run(t, cfgPath, "schedule", "cancel", msgID)
		if err == nil || !strings.Contains(err.Error(), "no longer pending") {
			t.Errorf("expected not pending error, got %v", err)
		}
	})

	t.Run("reset bot", func(t *testing.T) {
		out, err := run(t, cfgPath, "bot", "reset", botID)
		if err != nil {
			t.Fatalf("bot reset failed: %v", err)
		}
		if !strings.Contains(out, "reset") {
			t.Errorf("unexpected reset output: %q", out)
		}
		out, _ = run(t, cfgPath, "bot", "list")
		if !strings.Contains(out, "OFFLINE") {
			t.Errorf("expected bot OFFLINE after reset, got %q", out)
		}
	})

	t.Run("unknown bot", func(t *testing.T) {
		_, err := run(t, cfgPath, "bot", "remove", "nope")
		if err == nil || !strings.Contains(err.Error(), "not found") {
			t.Errorf("expected not found, got %v", err)
		}
	})

	t.Run("remove bot", func(t *testing.T) {
		if _, err := run(t, cfgPath, "bot", "remove", botID); err != nil {
			t.Fatalf("bot remove failed: %v", err)
		}
		out, _ := run(t, cfgPath, "bot", "list")
		if !strings.Contains(out, "No bots") {
			t.Errorf("expected empty list, got %q", out)
		}
	})
}

func TestRecurrenceFromFlags(t *testing.T) {
	newCmd := func(args ...string) *cobra.Command {
		cmd := &cobra.Command{Use: "x"}
		addRecurrenceFlags(cmd)
		if err := cmd.Flags().Parse(args); err != nil {
			t.Fatalf("parse flags: %v", err)
		}
		return cmd
	}

	rec, err := recurrenceFromFlags(newCmd("--recurrence", "Monthly", "--day", "31"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Type != store.RecurrenceMonthly || rec.DayOfMonth == nil || *rec.DayOfMonth != 31 {
		t.Errorf("unexpected recurrence: %+v", rec)
	}
	if rec.Weekday != nil {
		t.Error("weekday should stay unset")
	}

	if _, err := recurrenceFromFlags(newCmd("--recurrence", "hourly")); err == nil {
		t.Error("expected error for unknown recurrence")
	}
	if _, err := recurrenceFromFlags(newCmd("--recurrence", "weekly", "--weekday", "9")); err == nil {
		t.Error("expected error for weekday out of range")
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("olá mundo", 20); got != "olá mundo" {
		t.Errorf("short text changed: %q", got)
	}
	if got := truncate("abcdefghij", 5); got != "abcd…" {
		t.Errorf("expected abcd…, got %q", got)
	}
}

type recordingSessions struct {
	calls []string
}

func (r *recordingSessions) CreateSession(_ context.Context, botID string) error {
	r.calls = append(r.calls, "create "+botID)
	if botID == "broken" {
		return errors.New("connect failed")
	}
	return nil
}

func (r *recordingSessions) ResetSession(_ context.Context, botID string) error {
	r.calls = append(r.calls, "reset "+botID)
	return nil
}

func TestStartSessions(t *testing.T) {
	sessions := &recordingSessions{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	startSessions(context.Background(), sessions, []string{"broken", "b1"}, []string{"b2"}, logger)

	want := []string{"create broken", "create b1", "reset b2"}
	if strings.Join(sessions.calls, ",") != strings.Join(want, ",") {
		t.Errorf("expected %v, got %v", want, sessions.calls)
	}
}
