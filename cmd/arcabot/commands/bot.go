package commands

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/victorbta777-del/arcabot-flow/pkg/arcabot/credentials"
	"github.com/victorbta777-del/arcabot-flow/pkg/arcabot/store"
	"github.com/victorbta777-del/arcabot-flow/pkg/arcabot/transport/whatsapp"
)

// newBotCmd creates the `arcabot bot` command group.
func newBotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bot",
		Short: "Manage bots",
		Long: `Create, inspect and configure bots.

Examples:
  arcabot bot add "Atendimento"
  arcabot bot list
  arcabot bot config <id> --ai=true --system "Responda em português."
  arcabot bot pause <id>`,
	}

	cmd.AddCommand(
		newBotAddCmd(),
		newBotListCmd(),
		newBotRemoveCmd(),
		newBotConfigCmd(),
		newBotPauseCmd(),
		newBotResetCmd(),
	)
	return cmd
}

func newBotAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <name>",
		Short: "Create a bot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			bot, err := a.store.CreateBot(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Bot %q created: %s\n", bot.Name, bot.ID)
			fmt.Fprintf(out, "Pair it with: arcabot serve --connect %s\n", bot.ID)
			return nil
		},
	}
}

func newBotListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List bots",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			bots, err := a.store.ListBots(cmd.Context())
			if err != nil {
				return err
			}
			if len(bots) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No bots. Create one with 'arcabot bot add <name>'.")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tSTATUS\tPHONE\tLAST SYNC")
			for _, b := range bots {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", b.ID, b.Name, b.Status, orDash(b.PhoneNumber), formatTime(b.LastSync))
			}
			return tw.Flush()
		},
	}
}

func newBotRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Delete a bot with its configuration, schedules and credentials",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			if _, err := a.store.GetBot(ctx, args[0]); err != nil {
				return botError(args[0], err)
			}
			if err := forgetDevice(ctx, a, args[0]); err != nil {
				return err
			}
			if err := a.store.DeleteBot(ctx, args[0]); err != nil {
				return botError(args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Bot %s removed.\n", args[0])
			return nil
		},
	}
}

func newBotConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config <id>",
		Short: "Show or change a bot's auto-reply configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			cfg, err := a.store.GetBotConfig(ctx, args[0])
			if err != nil {
				return botError(args[0], err)
			}

			flags := cmd.Flags()
			changed := false
			if flags.Changed("fallback") {
				cfg.FallbackText, _ = flags.GetString("fallback")
				changed = true
			}
			if flags.Changed("welcome") {
				cfg.WelcomeText, _ = flags.GetString("welcome")
				changed = true
			}
			if flags.Changed("system") {
				cfg.SystemInstruction, _ = flags.GetString("system")
				changed = true
			}
			if flags.Changed("auto-reply") {
				cfg.AutoReplyEnabled, _ = flags.GetBool("auto-reply")
				changed = true
			}
			if flags.Changed("ai") {
				cfg.AIEnabled, _ = flags.GetBool("ai")
				changed = true
			}
			if flags.Changed("ignore-groups") {
				cfg.IgnoreGroups, _ = flags.GetBool("ignore-groups")
				changed = true
			}

			if changed {
				if err := a.store.SaveBotConfig(ctx, cfg); err != nil {
					return err
				}
			}
			printBotConfig(cmd, cfg)
			return nil
		},
	}

	cmd.Flags().String("fallback", "", "reply sent when nothing else matches")
	cmd.Flags().String("welcome", "", "reply sent to greetings")
	cmd.Flags().String("system", "", "system instruction for AI replies")
	cmd.Flags().Bool("auto-reply", true, "answer inbound messages")
	cmd.Flags().Bool("ai", false, "answer with the AI provider")
	cmd.Flags().Bool("ignore-groups", false, "do not answer group messages")
	return cmd
}

func printBotConfig(cmd *cobra.Command, cfg *store.BotConfig) {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "bot\t%s\n", cfg.BotID)
	fmt.Fprintf(tw, "auto-reply\t%v\n", cfg.AutoReplyEnabled)
	fmt.Fprintf(tw, "ai\t%v\n", cfg.AIEnabled)
	fmt.Fprintf(tw, "ignore-groups\t%v\n", cfg.IgnoreGroups)
	fmt.Fprintf(tw, "welcome\t%s\n", orDash(cfg.WelcomeText))
	fmt.Fprintf(tw, "fallback\t%s\n", orDash(cfg.FallbackText))
	fmt.Fprintf(tw, "system\t%s\n", orDash(cfg.SystemInstruction))
	tw.Flush()
}

func newBotPauseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pause <id>",
		Short: "Toggle a bot between ONLINE and PAUSED",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			status, err := a.store.TogglePause(cmd.Context(), args[0])
			if err != nil {
				return botError(args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Bot %s is now %s.\n", args[0], status)
			return nil
		},
	}
}

func newBotResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset <id>",
		Short: "Forget a bot's WhatsApp credentials so it pairs again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			if _, err := a.store.GetBot(ctx, args[0]); err != nil {
				return botError(args[0], err)
			}
			if err := forgetDevice(ctx, a, args[0]); err != nil {
				return err
			}
			if err := a.store.DeleteCredentials(ctx, args[0]); err != nil {
				return err
			}
			if err := a.store.UpdateBotStatus(ctx, args[0], store.BotOffline); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Bot %s reset. Pair it again with: arcabot serve --connect %s\n", args[0], args[0])
			return nil
		},
	}
}

// forgetDevice removes the bot's whatsmeow device rows, which live outside
// the bot's credential blobs.
func forgetDevice(ctx context.Context, a *app, botID string) error {
	tr, err := whatsapp.New(ctx, a.hub.DB(), a.hub.Primary().Dialect(), a.cfg.WhatsApp, a.logger)
	if err != nil {
		return err
	}
	if err := tr.ForgetDevice(ctx, botID, credentials.NewAdapter(botID, a.store)); err != nil {
		return fmt.Errorf("forget device of bot %s: %w", botID, err)
	}
	return nil
}

func botError(id string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("bot %s not found", id)
	}
	return err
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}
