package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/victorbta777-del/arcabot-flow/pkg/arcabot/ai"
	"github.com/victorbta777-del/arcabot-flow/pkg/arcabot/autoreply"
	"github.com/victorbta777-del/arcabot-flow/pkg/arcabot/dispatch"
	"github.com/victorbta777-del/arcabot-flow/pkg/arcabot/events"
	"github.com/victorbta777-del/arcabot-flow/pkg/arcabot/media"
	"github.com/victorbta777-del/arcabot-flow/pkg/arcabot/metrics"
	"github.com/victorbta777-del/arcabot-flow/pkg/arcabot/session"
	"github.com/victorbta777-del/arcabot-flow/pkg/arcabot/transport/whatsapp"
)

// newServeCmd creates the `arcabot serve` command that starts the daemon.
func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the daemon",
		Long: `Start ArcaBot as a daemon: reconnect the bots that were online,
answer inbound messages, deliver scheduled messages and expose /metrics.

Pairing codes for new bots are printed as QR codes in the terminal.

Examples:
  arcabot serve
  arcabot serve --connect <bot-id>
  arcabot serve --reset <bot-id>
  arcabot serve --no-restore --config ./config.yaml`,
		RunE: runServe,
	}

	cmd.Flags().Bool("no-restore", false, "do not reconnect bots persisted as online or paused")
	cmd.Flags().StringSlice("connect", nil, "bot ids to connect (or pair) at startup")
	cmd.Flags().StringSlice("reset", nil, "bot ids to log out and pair again with a fresh code")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := openAppWithLogs(cmd, os.Stdout)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(ctx, a, cmd.OutOrStdout())
	if err != nil {
		return err
	}

	noRestore, _ := cmd.Flags().GetBool("no-restore")
	if !noRestore {
		if _, err := rt.sessions.Restore(ctx); err != nil {
			a.logger.Warn("some sessions failed to restore", "error", err)
		}
	}
	connect, _ := cmd.Flags().GetStringSlice("connect")
	reset, _ := cmd.Flags().GetStringSlice("reset")
	startSessions(ctx, rt.sessions, connect, reset, a.logger)

	if err := rt.engine.Start(ctx); err != nil {
		rt.close()
		return err
	}

	var ops *metrics.Server
	if a.cfg.Metrics.Enabled {
		ops = metrics.NewServer(a.cfg.Metrics, rt.registry, a.logger, metrics.Health{
			Checks: []metrics.HealthCheck{func(ctx context.Context) error {
				return a.hub.Ping(ctx, time.Second)
			}},
			Report: func(ctx context.Context) any { return a.hub.Status(ctx) },
		})
		ops.Start()
	}

	go pruneConversations(ctx, a, time.Hour)

	a.logger.Info("ArcaBot running. Press Ctrl+C to stop.",
		"name", a.cfg.Name,
		"sessions", len(rt.sessions.ListSessions()),
		"schedule", a.cfg.Dispatch.Schedule,
	)

	<-ctx.Done()
	a.logger.Info("shutdown signal received, stopping...")

	done := make(chan struct{})
	go func() {
		rt.engine.Stop()
		if ops != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := ops.Shutdown(shutdownCtx); err != nil {
				a.logger.Warn("ops server shutdown failed", "error", err)
			}
			cancel()
		}
		rt.close()
		close(done)
	}()

	select {
	case <-done:
		a.logger.Info("shutdown complete")
	case <-time.After(10 * time.Second):
		a.logger.Warn("shutdown timed out after 10s, forcing exit")
	}
	return nil
}

// runtime is the wired session manager and dispatch engine.
type runtime struct {
	sessions *session.Manager
	engine   *dispatch.Engine
	media    *media.Store
	bus      *events.Bus
	registry *prometheus.Registry

	unsubscribe func()
}

func newRuntime(ctx context.Context, a *app, out io.Writer) (*runtime, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics.Register(registry)

	provider, err := ai.New(ctx, a.cfg.AI, a.logger)
	if err != nil {
		return nil, fmt.Errorf("creating ai provider: %w", err)
	}
	decider := autoreply.New(a.store, provider, a.logger)

	tr, err := whatsapp.New(ctx, a.hub.DB(), a.hub.Primary().Dialect(), a.cfg.WhatsApp, a.logger)
	if err != nil {
		return nil, fmt.Errorf("creating whatsapp transport: %w", err)
	}

	bus := events.NewBus()
	sub, unsubscribe := bus.Subscribe(32)
	go renderEvents(out, sub, a.logger)

	mgr := session.New(tr, a.store, decider, bus, session.Config{ReconnectDelay: a.cfg.WhatsApp.ReconnectDelay}, a.logger)

	files := media.NewStore(a.cfg.Dispatch.Media, a.logger)
	if err := files.EnsureDir(); err != nil {
		mgr.Shutdown()
		unsubscribe()
		return nil, err
	}

	return &runtime{
		sessions:    mgr,
		engine:      dispatch.New(a.store, mgr, files, a.cfg.Dispatch, a.logger),
		media:       files,
		bus:         bus,
		registry:    registry,
		unsubscribe: unsubscribe,
	}, nil
}

func (rt *runtime) close() {
	rt.sessions.Shutdown()
	rt.unsubscribe()
}

// renderEvents prints pairing codes as terminal QR art and status changes
// as plain lines until the subscription is closed.
func renderEvents(w io.Writer, sub <-chan events.Event, logger *slog.Logger) {
	for evt := range sub {
		switch e := evt.(type) {
		case events.PairingCode:
			if err := events.RenderTerminal(w, e.BotID, e.Code); err != nil {
				logger.Warn("failed to render pairing code", "bot_id", e.BotID, "error", err)
			}
		case events.StatusChanged:
			fmt.Fprintf(w, "bot %s is now %s\n", e.BotID, e.Status)
		}
	}
}

// pruneConversations drops conversation turns that fell out of the AI
// context window.
func pruneConversations(ctx context.Context, a *app, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := a.store.PruneTurns(ctx, time.Now().Add(-autoreply.HistoryWindow))
			if err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Warn("conversation prune failed", "error", err)
				continue
			}
			if n > 0 {
				a.logger.Debug("conversation turns pruned", "count", n)
			}
		}
	}
}

type sessionStarter interface {
	CreateSession(ctx context.Context, botID string) error
	ResetSession(ctx context.Context, botID string) error
}

// startSessions connects the --connect bots, then re-pairs the --reset
// bots. Failures are logged per bot.
func startSessions(ctx context.Context, sessions sessionStarter, connect, reset []string, logger *slog.Logger) {
	for _, botID := range connect {
		if err := sessions.CreateSession(ctx, botID); err != nil {
			logger.Error("failed to connect bot", "bot_id", botID, "error", err)
		}
	}
	for _, botID := range reset {
		if err := sessions.ResetSession(ctx, botID); err != nil {
			logger.Error("failed to reset bot", "bot_id", botID, "error", err)
		}
	}
}
