// Package autoreply decides what a bot answers to an inbound message.
package autoreply

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/victorbta777-del/arcabot-flow/pkg/arcabot/ai"
	"github.com/victorbta777-del/arcabot-flow/pkg/arcabot/metrics"
	"github.com/victorbta777-del/arcabot-flow/pkg/arcabot/store"
)

const (
	// DefaultSystemInstruction is used when a bot has none configured.
	DefaultSystemInstruction = "Você é um assistente útil."

	// ApologyText is returned when the AI provider fails.
	ApologyText = "Desculpe, estou com dificuldades para pensar agora."

	// FallbackText answers unrecognised messages in static mode when the
	// bot has no fallback configured.
	FallbackText = "Desculpe, não entendi."

	// HistoryLimit is the number of stored turns read per reply, the
	// message being answered included.
	HistoryLimit = 10

	// HistoryWindow bounds the age of turns sent to the provider.
	HistoryWindow = 4 * time.Hour
)

var greetings = []string{"oi", "olá", "ola", "bom dia", "boa tarde", "boa noite", "hello", "hi", "hey"}

// History is the rolling conversation context used in AI mode.
type History interface {
	AppendTurn(ctx context.Context, turn store.ConversationTurn) error
	RecentTurns(ctx context.Context, botID, peerID string, limit int, since time.Time) ([]store.ConversationTurn, error)
}

// Decider produces replies. It never performs transport I/O.
type Decider struct {
	history  History
	provider ai.Provider
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a Decider. provider may be nil, in which case AI mode
// always answers with ApologyText.
func New(history History, provider ai.Provider, logger *slog.Logger) *Decider {
	if logger == nil {
		logger = slog.Default()
	}
	if provider == nil {
		provider = ai.Disabled{Reason: "no provider configured"}
	}
	return &Decider{
		history:  history,
		provider: provider,
		logger:   logger.With("component", "autoreply"),
		now:      time.Now,
	}
}

// Decide returns the reply to inbound and whether one should be sent.
func (d *Decider) Decide(ctx context.Context, cfg *store.BotConfig, botID, peerID, inbound string) (string, bool) {
	if cfg == nil || !cfg.AutoReplyEnabled {
		return "", false
	}
	if cfg.AIEnabled {
		return d.aiReply(ctx, cfg, botID, peerID, inbound), true
	}
	return staticReply(cfg, inbound)
}

func staticReply(cfg *store.BotConfig, inbound string) (string, bool) {
	if cfg.WelcomeText != "" && IsGreeting(inbound) {
		metrics.AutoReplies.WithLabelValues("static", "welcome").Inc()
		return cfg.WelcomeText, true
	}
	metrics.AutoReplies.WithLabelValues("static", "fallback").Inc()
	if cfg.FallbackText == "" {
		return FallbackText, true
	}
	return cfg.FallbackText, true
}

// IsGreeting reports whether text contains one of the greeting tokens,
// ignoring case.
func IsGreeting(text string) bool {
	lower := strings.ToLower(text)
	for _, g := range greetings {
		if strings.Contains(lower, g) {
			return true
		}
	}
	return false
}

func (d *Decider) aiReply(ctx context.Context, cfg *store.BotConfig, botID, peerID, inbound string) string {
	now := d.now()
	log := d.logger.With("bot_id", botID, "peer", peerID)

	if err := d.history.AppendTurn(ctx, store.ConversationTurn{
		BotID: botID, PeerID: peerID, Role: store.RoleUser, Text: inbound, Timestamp: now,
	}); err != nil {
		log.Warn("autoreply: failed to store user turn", "error", err)
	}

	turns, err := d.history.RecentTurns(ctx, botID, peerID, HistoryLimit, now.Add(-HistoryWindow))
	if err != nil {
		log.Warn("autoreply: failed to load history", "error", err)
		turns = nil
	}
	history := priorTurns(turns, inbound)

	system := cfg.SystemInstruction
	if strings.TrimSpace(system) == "" {
		system = DefaultSystemInstruction
	}

	reply, err := d.provider.Complete(ctx, system, history, inbound)
	if err != nil {
		log.Warn("autoreply: ai completion failed", "error", err)
		metrics.AutoReplies.WithLabelValues("ai", "error").Inc()
		return ApologyText
	}

	if err := d.history.AppendTurn(ctx, store.ConversationTurn{
		BotID: botID, PeerID: peerID, Role: store.RoleAssistant, Text: reply, Timestamp: d.now(),
	}); err != nil {
		log.Warn("autoreply: failed to store assistant turn", "error", err)
	}
	metrics.AutoReplies.WithLabelValues("ai", "ok").Inc()
	return reply
}

// priorTurns drops the trailing user turn matching the message being
// answered, leaving at most HistoryLimit-1 entries.
func priorTurns(turns []store.ConversationTurn, inbound string) []ai.Turn {
	if len(turns) > HistoryLimit {
		turns = turns[len(turns)-HistoryLimit:]
	}
	if n := len(turns); n > 0 && turns[n-1].Role == store.RoleUser && turns[n-1].Text == inbound {
		turns = turns[:n-1]
	}
	out := make([]ai.Turn, 0, len(turns))
	for _, t := range turns {
		role := ai.RoleUser
		if t.Role == store.RoleAssistant {
			role = ai.RoleAssistant
		}
		out = append(out, ai.Turn{Role: role, Text: t.Text})
	}
	return out
}
