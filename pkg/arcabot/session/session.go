// Package session owns the live connection of every bot. It keeps one
// entry per bot, persists lifecycle transitions, reconnects after
// transient closes and routes inbound messages to the auto-reply.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/victorbta777-del/arcabot-flow/pkg/arcabot/credentials"
	"github.com/victorbta777-del/arcabot-flow/pkg/arcabot/events"
	"github.com/victorbta777-del/arcabot-flow/pkg/arcabot/metrics"
	"github.com/victorbta777-del/arcabot-flow/pkg/arcabot/store"
	"github.com/victorbta777-del/arcabot-flow/pkg/arcabot/transport"
)

var (
	// ErrNotConnected is returned when a bot has no usable connection.
	ErrNotConnected = errors.New("session not connected")

	// ErrShutdown is returned after Shutdown.
	ErrShutdown = errors.New("session: manager shut down")
	// ErrDestroyed is returned by CreateSession when the entry it reserved
	// was removed by DestroySession before the connection finished.
	ErrDestroyed = errors.New("session: destroyed while connecting")
)

// Store is the persistence the manager needs.
type Store interface {
	GetBot(ctx context.Context, id string) (*store.Bot, error)
	ListBots(ctx context.Context, statuses ...store.BotStatus) ([]*store.Bot, error)
	UpdateBotStatus(ctx context.Context, id string, status store.BotStatus) error
	MarkBotOnline(ctx context.Context, id, phoneNumber string, at time.Time) error
	GetBotConfig(ctx context.Context, botID string) (*store.BotConfig, error)
	store.Credentials
}

// Decider picks the reply to an inbound message.
type Decider interface {
	Decide(ctx context.Context, cfg *store.BotConfig, botID, peerID, inbound string) (string, bool)
}

// Config holds manager settings.
type Config struct {
	// ReconnectDelay is the wait before recreating a session after a
	// non-terminal close.
	ReconnectDelay time.Duration
}

// Info is a read-only snapshot of a session.
type Info struct {
	BotID       string          `json:"bot_id"`
	Status      store.BotStatus `json:"status"`
	AccountID   string          `json:"account_id,omitempty"`
	PairingCode string          `json:"pairing_code,omitempty"`
	Since       time.Time       `json:"since"`
}

type session struct {
	botID   string
	creds   *credentials.Adapter
	handle  transport.Handle
	status  store.BotStatus
	code    string
	account string
	since   time.Time
}

type reconnect struct {
	timer *time.Timer
}

// Manager is the session table. All entries and reconnect timers are
// guarded by mu.
type Manager struct {
	transport transport.Transport
	store     Store
	decider   Decider
	publisher events.Publisher
	cfg       Config
	logger    *slog.Logger
	now       func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	sessions map[string]*session
	timers   map[string]*reconnect
	closed   bool
}

// New creates a Manager. publisher may be nil.
func New(tr transport.Transport, st Store, decider Decider, publisher events.Publisher, cfg Config, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if publisher == nil {
		publisher = events.Discard{}
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		transport: tr,
		store:     st,
		decider:   decider,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger.With("component", "session"),
		now:       time.Now,
		ctx:       ctx,
		cancel:    cancel,
		sessions:  make(map[string]*session),
		timers:    make(map[string]*reconnect),
	}
}

// CreateSession connects botID unless it already has an entry. The entry
// is reserved before connecting so concurrent callers see it.
func (m *Manager) CreateSession(ctx context.Context, botID string) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrShutdown
	}
	if _, ok := m.sessions[botID]; ok {
		m.mu.Unlock()
		return nil
	}
	s := &session{
		botID:  botID,
		creds:  credentials.NewAdapter(botID, m.store),
		status: store.BotConnecting,
		since:  m.now(),
	}
	m.sessions[botID] = s
	m.stopReconnectLocked(botID)
	m.mu.Unlock()
	m.updateGauge()

	if _, err := m.store.GetBot(ctx, botID); err != nil {
		if !m.drop(s) {
			return fmt.Errorf("bot %s: %w", botID, ErrDestroyed)
		}
		return fmt.Errorf("load bot %s: %w", botID, err)
	}

	h, err := m.transport.Connect(m.ctx, botID, s.creds)
	if err != nil {
		if !m.drop(s) {
			return fmt.Errorf("bot %s: %w", botID, ErrDestroyed)
		}
		return fmt.Errorf("connect bot %s: %w", botID, err)
	}

	m.mu.Lock()
	if m.closed || m.sessions[botID] != s {
		closed := m.closed
		m.mu.Unlock()
		_ = h.Close()
		if closed {
			return ErrShutdown
		}
		return fmt.Errorf("bot %s: %w", botID, ErrDestroyed)
	}
	s.handle = h
	m.wg.Add(1)
	m.mu.Unlock()

	m.logger.Info("session: created", "bot_id", botID)
	go m.run(s, h)
	return nil
}

// DestroySession logs the bot out, closes its connection and removes its
// entry and credentials. Logout failures are logged and do not prevent
// the removal.
func (m *Manager) DestroySession(ctx context.Context, botID string) error {
	m.mu.Lock()
	s, ok := m.sessions[botID]
	var h transport.Handle
	if ok {
		h = s.handle
	}
	delete(m.sessions, botID)
	m.stopReconnectLocked(botID)
	m.mu.Unlock()
	m.updateGauge()

	log := m.logger.With("bot_id", botID)
	if h != nil {
		if err := h.Logout(ctx); err != nil {
			log.Warn("session: logout failed", "error", err)
		}
		if err := h.Close(); err != nil {
			log.Warn("session: close failed", "error", err)
		}
	}

	if err := credentials.NewAdapter(botID, m.store).Clear(ctx); err != nil {
		log.Error("session: failed to clear credentials", "error", err)
	}
	if err := m.store.UpdateBotStatus(ctx, botID, store.BotOffline); err != nil && !errors.Is(err, store.ErrNotFound) {
		log.Error("session: failed to persist status", "error", err)
	}
	if ok {
		m.publisher.Publish(events.StatusChanged{BotID: botID, Status: store.BotOffline})
		log.Info("session: destroyed")
	}
	return nil
}

// ResetSession destroys and recreates the session so a fresh pairing code
// is issued.
func (m *Manager) ResetSession(ctx context.Context, botID string) error {
	if err := m.DestroySession(ctx, botID); err != nil {
		return err
	}
	return m.CreateSession(ctx, botID)
}

// Restore creates sessions for every bot persisted as ONLINE or PAUSED and
// returns how many were started.
func (m *Manager) Restore(ctx context.Context) (int, error) {
	bots, err := m.store.ListBots(ctx, store.BotOnline, store.BotPaused)
	if err != nil {
		return 0, fmt.Errorf("list bots to restore: %w", err)
	}

	var errs []error
	restored := 0
	for _, bot := range bots {
		if err := m.CreateSession(ctx, bot.ID); err != nil {
			errs = append(errs, err)
			continue
		}
		restored++
	}
	m.logger.Info("session: restored", "count", restored, "failed", len(errs))
	return restored, errors.Join(errs...)
}

// GetSession returns a snapshot of the bot's session.
func (m *Manager) GetSession(botID string) (Info, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[botID]
	if !ok {
		return Info{}, false
	}
	return s.info(), true
}

// ListSessions returns snapshots of every session ordered by bot id.
func (m *Manager) ListSessions() []Info {
	m.mu.Lock()
	out := make([]Info, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.info())
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].BotID < out[j].BotID })
	return out
}

// PairingCode returns the last pairing code of a connecting session.
func (m *Manager) PairingCode(botID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[botID]
	if !ok || s.code == "" {
		return "", false
	}
	return s.code, true
}

// Send delivers content through the bot's live connection.
func (m *Manager) Send(ctx context.Context, botID, address string, content transport.Content) error {
	m.mu.Lock()
	s, ok := m.sessions[botID]
	var h transport.Handle
	if ok {
		h = s.handle
	}
	m.mu.Unlock()

	if h == nil {
		return ErrNotConnected
	}
	return h.Send(ctx, address, content)
}

// Shutdown cancels pending reconnects and closes every connection without
// logging out. It waits for in-flight replies to finish.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	for botID := range m.timers {
		m.stopReconnectLocked(botID)
	}
	handles := make([]transport.Handle, 0, len(m.sessions))
	for _, s := range m.sessions {
		if s.handle != nil {
			handles = append(handles, s.handle)
		}
	}
	m.sessions = make(map[string]*session)
	m.mu.Unlock()

	for _, h := range handles {
		_ = h.Close()
	}
	m.wg.Wait()
	m.cancel()
	m.updateGauge()
	m.logger.Info("session: manager stopped", "closed", len(handles))
}

func (s *session) info() Info {
	return Info{
		BotID:       s.botID,
		Status:      s.status,
		AccountID:   s.account,
		PairingCode: s.code,
		Since:       s.since,
	}
}

// drop removes s if it is still the current entry.
func (m *Manager) drop(s *session) bool {
	m.mu.Lock()
	current := m.sessions[s.botID] == s
	if current {
		delete(m.sessions, s.botID)
	}
	m.mu.Unlock()
	m.updateGauge()
	return current
}

func (m *Manager) updateGauge() {
	m.mu.Lock()
	var connecting, online int
	for _, s := range m.sessions {
		if s.status == store.BotOnline {
			online++
		} else {
			connecting++
		}
	}
	m.mu.Unlock()
	metrics.Sessions.WithLabelValues(string(store.BotConnecting)).Set(float64(connecting))
	metrics.Sessions.WithLabelValues(string(store.BotOnline)).Set(float64(online))
}
