package autoreply

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/victorbta777-del/arcabot-flow/pkg/arcabot/ai"
	"github.com/victorbta777-del/arcabot-flow/pkg/arcabot/store"
)

type memHistory struct {
	turns []store.ConversationTurn
}

func (m *memHistory) AppendTurn(_ context.Context, turn store.ConversationTurn) error {
	m.turns = append(m.turns, turn)
	return nil
}

func (m *memHistory) RecentTurns(_ context.Context, botID, peerID string, limit int, since time.Time) ([]store.ConversationTurn, error) {
	var out []store.ConversationTurn
	for _, t := range m.turns {
		if t.BotID == botID && t.PeerID == peerID && !t.Timestamp.Before(since) {
			out = append(out, t)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

type recordingProvider struct {
	reply   string
	err     error
	system  string
	history []ai.Turn
	message string
}

func (p *recordingProvider) Complete(_ context.Context, system string, history []ai.Turn, message string) (string, error) {
	p.system, p.history, p.message = system, history, message
	return p.reply, p.err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDecideStatic(t *testing.T) {
	ctx := context.Background()
	d := New(&memHistory{}, nil, quietLogger())

	cfg := &store.BotConfig{AutoReplyEnabled: true, FallbackText: "X"}

	t.Run("fallback without welcome", func(t *testing.T) {
		reply, ok := d.Decide(ctx, cfg, "b1", "p1", "oi")
		if !ok || reply != "X" {
			t.Errorf("expected X, got %q (%v)", reply, ok)
		}
	})

	t.Run("welcome on greeting", func(t *testing.T) {
		withWelcome := *cfg
		withWelcome.WelcomeText = "Hi"
		reply, ok := d.Decide(ctx, &withWelcome, "b1", "p1", "oi")
		if !ok || reply != "Hi" {
			t.Errorf("expected Hi, got %q (%v)", reply, ok)
		}
	})

	t.Run("fallback on other text", func(t *testing.T) {
		withWelcome := *cfg
		withWelcome.WelcomeText = "Hi"
		reply, _ := d.Decide(ctx, &withWelcome, "b1", "p1", "preço do produto")
		if reply != "X" {
			t.Errorf("expected X, got %q", reply)
		}
	})

	t.Run("disabled", func(t *testing.T) {
		off := *cfg
		off.AutoReplyEnabled = false
		if _, ok := d.Decide(ctx, &off, "b1", "p1", "oi"); ok {
			t.Error("expected no reply when auto-reply is disabled")
		}
		if _, ok := d.Decide(ctx, nil, "b1", "p1", "oi"); ok {
			t.Error("expected no reply without config")
		}
	})

	t.Run("empty fallback", func(t *testing.T) {
		empty := store.BotConfig{AutoReplyEnabled: true}
		reply, ok := d.Decide(ctx, &empty, "b1", "p1", "qualquer")
		if !ok || reply != FallbackText {
			t.Errorf("expected default fallback, got %q (ok=%v)", reply, ok)
		}
	})
}

func TestIsGreeting(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"Oi, tudo bem?", true},
		{"BOM DIA", true},
		{"Olá", true},
		{"hey there", true},
		{"quero um orçamento", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsGreeting(tt.text); got != tt.want {
			t.Errorf("IsGreeting(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestDecideAI(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	cfg := &store.BotConfig{AutoReplyEnabled: true, AIEnabled: true, FallbackText: "X"}

	t.Run("success appends both turns", func(t *testing.T) {
		hist := &memHistory{turns: []store.ConversationTurn{
			{BotID: "b1", PeerID: "p1", Role: store.RoleUser, Text: "velho", Timestamp: now.Add(-5 * time.Hour)},
			{BotID: "b1", PeerID: "p1", Role: store.RoleUser, Text: "oi", Timestamp: now.Add(-time.Minute)},
			{BotID: "b1", PeerID: "p1", Role: store.RoleAssistant, Text: "olá!", Timestamp: now.Add(-time.Minute)},
		}}
		p := &recordingProvider{reply: "Claro, posso ajudar."}
		d := New(hist, p, quietLogger())
		d.now = func() time.Time { return now }

		reply, ok := d.Decide(ctx, cfg, "b1", "p1", "preciso de ajuda")
		if !ok || reply != "Claro, posso ajudar." {
			t.Fatalf("unexpected reply %q (%v)", reply, ok)
		}
		if p.system != DefaultSystemInstruction {
			t.Errorf("expected default system instruction, got %q", p.system)
		}
		if p.message != "preciso de ajuda" {
			t.Errorf("expected inbound as message, got %q", p.message)
		}
		if len(p.history) != 2 || p.history[0].Text != "oi" || p.history[1].Role != ai.RoleAssistant {
			t.Errorf("expected the two recent turns without the new message, got %+v", p.history)
		}
		if len(hist.turns) != 5 {
			t.Fatalf("expected 5 stored turns, got %d", len(hist.turns))
		}
		if last := hist.turns[4]; last.Role != store.RoleAssistant || last.Text != reply {
			t.Errorf("expected assistant turn last, got %+v", last)
		}
	})

	t.Run("failure returns apology", func(t *testing.T) {
		hist := &memHistory{}
		d := New(hist, &recordingProvider{err: errors.New("quota exceeded")}, quietLogger())
		d.now = func() time.Time { return now }

		reply, ok := d.Decide(ctx, cfg, "b1", "p2", "oi")
		if !ok || reply != ApologyText {
			t.Errorf("expected apology, got %q (%v)", reply, ok)
		}
		if len(hist.turns) != 1 || hist.turns[0].Role != store.RoleUser {
			t.Errorf("expected only the user turn stored, got %+v", hist.turns)
		}
	})

	t.Run("custom system instruction", func(t *testing.T) {
		p := &recordingProvider{reply: "ok"}
		d := New(&memHistory{}, p, quietLogger())
		custom := *cfg
		custom.SystemInstruction = "Responda em inglês."
		d.Decide(ctx, &custom, "b1", "p3", "oi")
		if p.system != "Responda em inglês." {
			t.Errorf("expected custom instruction, got %q", p.system)
		}
	})

	t.Run("history is capped", func(t *testing.T) {
		hist := &memHistory{}
		for i := 0; i < 30; i++ {
			hist.turns = append(hist.turns, store.ConversationTurn{
				BotID: "b1", PeerID: "p4", Role: store.RoleUser, Text: "msg", Timestamp: now.Add(-time.Duration(30-i) * time.Second),
			})
		}
		p := &recordingProvider{reply: "ok"}
		d := New(hist, p, quietLogger())
		d.now = func() time.Time { return now }
		d.Decide(ctx, cfg, "b1", "p4", "nova")
		if len(p.history) != HistoryLimit-1 {
			t.Errorf("expected %d history turns, got %d", HistoryLimit-1, len(p.history))
		}
		if p.message != "nova" {
			t.Errorf("expected the new message passed separately, got %q", p.message)
		}
	})
}
