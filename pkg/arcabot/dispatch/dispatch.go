// Package dispatch sends due scheduled messages through the bots' live
// sessions on a cron tick and schedules the next occurrence of recurring
// ones.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/victorbta777-del/arcabot-flow/pkg/arcabot/media"
	"github.com/victorbta777-del/arcabot-flow/pkg/arcabot/metrics"
	"github.com/victorbta777-del/arcabot-flow/pkg/arcabot/session"
	"github.com/victorbta777-del/arcabot-flow/pkg/arcabot/store"
	"github.com/victorbta777-del/arcabot-flow/pkg/arcabot/transport"
)

// ErrAttachmentNotFound is recorded when a message's attachment cannot be
// read.
var ErrAttachmentNotFound = errors.New("attachment not found")

// UserServer is appended to bare phone numbers.
const UserServer = "@s.whatsapp.net"

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Config controls the dispatch tick.
type Config struct {
	// Schedule is a cron spec or descriptor (default: "@every 1m").
	Schedule string `yaml:"schedule"`

	Media media.Config `yaml:",inline"`
}

// DefaultConfig ticks every minute.
func DefaultConfig() Config {
	return Config{Schedule: "@every 1m", Media: media.DefaultConfig()}
}

// Validate checks the schedule spec.
func (c Config) Validate() error {
	if _, err := parser.Parse(c.Schedule); err != nil {
		return fmt.Errorf("dispatch.schedule %q: %w", c.Schedule, err)
	}
	return nil
}

// Store is the schedule persistence the engine needs.
type Store interface {
	DueScheduledMessages(ctx context.Context, now time.Time) ([]*store.ScheduledMessage, error)
	MarkSent(ctx context.Context, id string, at time.Time) error
	MarkFailed(ctx context.Context, id, reason string) error
	CreateScheduledMessage(ctx context.Context, msg *store.ScheduledMessage) error
}

// Sessions resolves and sends through live sessions.
type Sessions interface {
	GetSession(botID string) (session.Info, bool)
	Send(ctx context.Context, botID, address string, content transport.Content) error
}

// Attachments loads attachment files.
type Attachments interface {
	Open(ctx context.Context, ref string) (*media.Attachment, error)
}

// Result summarizes one tick.
type Result struct {
	Due    int
	Sent   int
	Failed int
}

// Engine runs the dispatch tick.
type Engine struct {
	store       Store
	sessions    Sessions
	attachments Attachments
	cfg         Config
	logger      *slog.Logger
	now         func() time.Time

	tickMu sync.Mutex
	cron   *cron.Cron
	cancel context.CancelFunc
}

// New creates an Engine. Call Start to run it on the schedule.
func New(st Store, sessions Sessions, attachments Attachments, cfg Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultConfig().Schedule
	}
	return &Engine{
		store:       st,
		sessions:    sessions,
		attachments: attachments,
		cfg:         cfg,
		logger:      logger.With("component", "dispatch"),
		now:         time.Now,
	}
}

// Start registers the tick with cron. Overlapping ticks are skipped.
func (e *Engine) Start(ctx context.Context) error {
	ctx, e.cancel = context.WithCancel(ctx)

	l := cronLogger{e.logger}
	e.cron = cron.New(
		cron.WithParser(parser),
		cron.WithLogger(l),
		cron.WithChain(cron.Recover(l), cron.SkipIfStillRunning(l)),
	)
	if _, err := e.cron.AddFunc(e.cfg.Schedule, func() {
		if _, err := e.Tick(ctx); err != nil {
			e.logger.Error("dispatch: tick failed", "error", err)
		}
	}); err != nil {
		e.cancel()
		return fmt.Errorf("register dispatch schedule %q: %w", e.cfg.Schedule, err)
	}

	e.cron.Start()
	e.logger.Info("dispatch: started", "schedule", e.cfg.Schedule)
	return nil
}

// Stop waits up to 10s for a running tick to finish.
func (e *Engine) Stop() {
	if e.cron != nil {
		done := e.cron.Stop()
		select {
		case <-done.Done():
		case <-time.After(10 * time.Second):
			e.logger.Warn("dispatch: stop timed out")
		}
	}
	if e.cancel != nil {
		e.cancel()
	}
	e.logger.Info("dispatch: stopped")
}

// Tick processes every pending message due now, oldest first. Per-message
// failures are recorded on the records; the returned error only reports a
// failure to query the due messages.
func (e *Engine) Tick(ctx context.Context) (Result, error) {
	e.tickMu.Lock()
	defer e.tickMu.Unlock()

	start := e.now()
	defer func() { metrics.DispatchTick.Observe(time.Since(start).Seconds()) }()

	due, err := e.store.DueScheduledMessages(ctx, start)
	if err != nil {
		return Result{}, fmt.Errorf("query due messages: %w", err)
	}

	res := Result{Due: len(due)}
	for _, msg := range due {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if e.process(ctx, msg) {
			res.Sent++
		} else {
			res.Failed++
		}
	}
	if res.Due > 0 {
		e.logger.Info("dispatch: tick done", "due", res.Due, "sent", res.Sent, "failed", res.Failed)
	}
	return res, nil
}

func (e *Engine) process(ctx context.Context, msg *store.ScheduledMessage) bool {
	log := e.logger.With("message_id", msg.ID, "bot_id", msg.BotID)

	if err := e.send(ctx, msg); err != nil {
		log.Warn("dispatch: message failed", "error", err)
		if merr := e.store.MarkFailed(ctx, msg.ID, failureText(err)); merr != nil {
			log.Error("dispatch: failed to record failure", "error", merr)
		}
		metrics.Dispatches.WithLabelValues("failed").Inc()
		return false
	}

	sentAt := e.now()
	if err := e.store.MarkSent(ctx, msg.ID, sentAt); err != nil {
		log.Error("dispatch: failed to record delivery", "error", err)
		metrics.Dispatches.WithLabelValues("sent").Inc()
		return true
	}
	metrics.Dispatches.WithLabelValues("sent").Inc()
	log.Info("dispatch: message sent", "recipient", msg.RecipientAddress, "name", msg.RecipientName)

	next, ok := NextOccurrence(msg.ScheduledFor, msg.Recurrence)
	if !ok {
		return true
	}
	following := &store.ScheduledMessage{
		BotID:            msg.BotID,
		RecipientAddress: msg.RecipientAddress,
		RecipientName:    msg.RecipientName,
		Text:             msg.Text,
		AttachmentRef:    msg.AttachmentRef,
		ScheduledFor:     next,
		Recurrence:       msg.Recurrence,
	}
	if err := e.store.CreateScheduledMessage(ctx, following); err != nil {
		log.Error("dispatch: failed to schedule next occurrence", "next", next, "error", err)
		return true
	}
	log.Debug("dispatch: next occurrence scheduled", "next_id", following.ID, "next", next)
	return true
}

func (e *Engine) send(ctx context.Context, msg *store.ScheduledMessage) error {
	if _, ok := e.sessions.GetSession(msg.BotID); !ok {
		return session.ErrNotConnected
	}

	content := transport.Content{Text: msg.Text}
	if msg.AttachmentRef != "" {
		att, err := e.attachments.Open(ctx, msg.AttachmentRef)
		if err != nil {
			if errors.Is(err, media.ErrNotFound) {
				return ErrAttachmentNotFound
			}
			return err
		}
		content = transport.Content{Document: &transport.Document{
			Data:     att.Data,
			MimeType: att.MimeType,
			FileName: att.FileName,
			Caption:  msg.Text,
		}}
	}

	return e.sessions.Send(ctx, msg.BotID, NormalizeRecipient(msg.RecipientAddress), content)
}

func failureText(err error) string {
	switch {
	case errors.Is(err, session.ErrNotConnected):
		return session.ErrNotConnected.Error()
	case errors.Is(err, ErrAttachmentNotFound):
		return ErrAttachmentNotFound.Error()
	default:
		return err.Error()
	}
}

// NormalizeRecipient returns address unchanged when it already names a
// server, otherwise its digits followed by UserServer.
func NormalizeRecipient(address string) string {
	if strings.Contains(address, "@") {
		return address
	}
	var b strings.Builder
	for _, r := range address {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String() + UserServer
}

type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug("dispatch: cron "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error("dispatch: cron "+msg, append(keysAndValues, "error", err)...)
}
