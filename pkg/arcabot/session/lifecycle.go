package session

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/victorbta777-del/arcabot-flow/pkg/arcabot/events"
	"github.com/victorbta777-del/arcabot-flow/pkg/arcabot/metrics"
	"github.com/victorbta777-del/arcabot-flow/pkg/arcabot/store"
	"github.com/victorbta777-del/arcabot-flow/pkg/arcabot/transport"
)

// run consumes the handle's events until it is closed.
func (m *Manager) run(s *session, h transport.Handle) {
	defer m.wg.Done()
	log := m.logger.With("bot_id", s.botID)

	for evt := range h.Events() {
		switch e := evt.(type) {
		case transport.PairingCode:
			m.onPairingCode(s, e.Code)
		case transport.CredentialsChanged:
			if err := s.creds.Apply(m.ctx, e.Updates); err != nil {
				log.Error("session: failed to persist credentials", "error", err)
			}
		case transport.StatusChanged:
			if e.Status == transport.StatusOpen {
				m.onOpen(s, h, e.AccountID)
			} else {
				m.onClose(s, h, e)
			}
		case transport.MessageReceived:
			m.onMessage(s, e.Message)
		}
	}
}

func (m *Manager) onPairingCode(s *session, code string) {
	m.mu.Lock()
	current := m.sessions[s.botID] == s
	if current {
		s.code = code
	}
	m.mu.Unlock()
	if !current {
		return
	}

	dataURL, err := events.QRDataURL(code)
	if err != nil {
		m.logger.Warn("session: failed to render pairing code", "bot_id", s.botID, "error", err)
	}
	m.logger.Info("session: pairing code issued", "bot_id", s.botID)
	m.publisher.Publish(events.PairingCode{BotID: s.botID, Code: code, DataURL: dataURL})
}

func (m *Manager) onOpen(s *session, h transport.Handle, account string) {
	if account == "" {
		account = h.AccountID()
	}
	now := m.now()

	m.mu.Lock()
	current := m.sessions[s.botID] == s
	if current {
		s.status = store.BotOnline
		s.code = ""
		s.account = account
		s.since = now
	}
	m.mu.Unlock()
	if !current {
		return
	}
	m.updateGauge()

	if err := m.store.MarkBotOnline(m.ctx, s.botID, account, now); err != nil {
		m.logger.Error("session: failed to persist online status", "bot_id", s.botID, "error", err)
	}
	m.logger.Info("session: connected", "bot_id", s.botID, "account", account)
	m.publisher.Publish(events.StatusChanged{BotID: s.botID, Status: store.BotOnline})
}

func (m *Manager) onClose(s *session, h transport.Handle, e transport.StatusChanged) {
	current := m.drop(s)
	_ = h.Close()
	if !current {
		return
	}

	log := m.logger.With("bot_id", s.botID, "reason", e.Reason)
	if !e.Terminal {
		log.Warn("session: connection closed, reconnecting", "delay", m.cfg.ReconnectDelay)
		m.scheduleReconnect(s.botID)
		return
	}

	log.Warn("session: logged out")
	if err := m.store.UpdateBotStatus(m.ctx, s.botID, store.BotOffline); err != nil {
		log.Error("session: failed to persist offline status", "error", err)
	}
	if err := s.creds.Clear(m.ctx); err != nil {
		log.Error("session: failed to clear credentials", "error", err)
	}
	m.publisher.Publish(events.StatusChanged{BotID: s.botID, Status: store.BotOffline})
}

// scheduleReconnect arms a single-shot CreateSession after the reconnect
// delay, replacing any pending one for the bot.
func (m *Manager) scheduleReconnect(botID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.stopReconnectLocked(botID)

	r := &reconnect{}
	m.timers[botID] = r
	r.timer = time.AfterFunc(m.cfg.ReconnectDelay, func() {
		m.mu.Lock()
		if m.timers[botID] != r {
			m.mu.Unlock()
			return
		}
		delete(m.timers, botID)
		m.mu.Unlock()
		m.reconnect(botID)
	})
	metrics.Reconnects.Inc()
}

func (m *Manager) reconnect(botID string) {
	err := m.CreateSession(m.ctx, botID)
	switch {
	case err == nil:
	case errors.Is(err, ErrShutdown):
	case errors.Is(err, ErrDestroyed):
		m.logger.Debug("session: destroyed during reconnect", "bot_id", botID)
	case errors.Is(err, store.ErrNotFound):
		m.logger.Info("session: bot no longer exists, not reconnecting", "bot_id", botID)
	default:
		m.logger.Error("session: reconnect failed", "bot_id", botID, "error", err)
		m.scheduleReconnect(botID)
	}
}

func (m *Manager) stopReconnectLocked(botID string) {
	if r, ok := m.timers[botID]; ok {
		if r.timer != nil {
			r.timer.Stop()
		}
		delete(m.timers, botID)
	}
}

// onMessage filters an inbound message and answers it in the background.
func (m *Manager) onMessage(s *session, msg transport.InboundMessage) {
	if msg.FromMe {
		return
	}
	text := msg.Conversation
	if text == "" {
		text = msg.ExtendedText
	}
	if strings.TrimSpace(text) == "" {
		return
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.reply(m.ctx, s.botID, msg, text)
	}()
}

func (m *Manager) reply(ctx context.Context, botID string, msg transport.InboundMessage, text string) {
	log := m.logger.With("bot_id", botID, "chat", msg.Chat)

	cfg, err := m.store.GetBotConfig(ctx, botID)
	if err != nil {
		log.Debug("session: no reply config, skipping", "error", err)
		return
	}
	if !cfg.AutoReplyEnabled {
		return
	}
	if msg.IsGroup && cfg.IgnoreGroups {
		log.Debug("session: ignoring group message")
		return
	}

	reply, ok := m.decider.Decide(ctx, cfg, botID, msg.Chat, text)
	if !ok || reply == "" {
		return
	}
	if err := m.Send(ctx, botID, msg.Chat, transport.Content{Text: reply}); err != nil {
		log.Error("session: failed to send reply", "error", err)
		return
	}
	log.Info("session: replied")
}
