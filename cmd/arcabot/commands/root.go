// Package commands implements the arcabot CLI commands using cobra.
package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/victorbta777-del/arcabot-flow/pkg/arcabot/config"
	"github.com/victorbta777-del/arcabot-flow/pkg/arcabot/database"
	"github.com/victorbta777-del/arcabot-flow/pkg/arcabot/logging"
	"github.com/victorbta777-del/arcabot-flow/pkg/arcabot/store"
)

// NewRootCmd creates the root command with every subcommand registered.
func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "arcabot",
		Short: "ArcaBot - WhatsApp auto-reply and scheduled messaging",
		Long: `ArcaBot runs many WhatsApp bots from one process. Each bot answers
inbound messages with a static or AI reply and delivers scheduled messages.

Examples:
  arcabot bot add "Atendimento"
  arcabot serve --connect <bot-id>
  arcabot schedule add --bot <bot-id> --to 5511999998888 --text "Bom dia" --at 09:00 --recurrence daily
  arcabot config init`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		newServeCmd(),
		newBotCmd(),
		newScheduleCmd(),
		newConfigCmd(),
	)

	rootCmd.PersistentFlags().StringP("config", "c", "", "path to the configuration file")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logs")

	return rootCmd
}

// loadConfig reads the --config file, or a discovered one, and validates
// it.
func loadConfig(cmd *cobra.Command) (*config.Config, string, error) {
	path, _ := cmd.Root().PersistentFlags().GetString("config")
	cfg, found, err := config.Load(path)
	if err != nil {
		return nil, found, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, found, err
	}
	return cfg, found, nil
}

func newLogger(cmd *cobra.Command, cfg *config.Config, w io.Writer) *slog.Logger {
	verbose, _ := cmd.Root().PersistentFlags().GetBool("verbose")
	return logging.NewWithWriter(w, cfg.Logging, verbose)
}

// app is what the admin commands share: config, logger and an open store.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	hub    *database.Hub
	store  *store.Store
}

// openApp loads the config and opens the database. Logs go to stderr so
// command output stays clean.
func openApp(cmd *cobra.Command) (*app, error) {
	return openAppWithLogs(cmd, os.Stderr)
}

func openAppWithLogs(cmd *cobra.Command, logs io.Writer) (*app, error) {
	cfg, path, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger := newLogger(cmd, cfg, logs)
	if path != "" {
		logger.Debug("config loaded", "path", path)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	hub, err := database.NewHub(ctx, cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	return &app{cfg: cfg, logger: logger, hub: hub, store: store.New(hub.DB())}, nil
}

func (a *app) Close() {
	if err := a.hub.Close(); err != nil {
		a.logger.Warn("database close failed", "error", err)
	}
}
