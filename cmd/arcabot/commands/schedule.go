package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/victorbta777-del/arcabot-flow/pkg/arcabot/dispatch"
	"github.com/victorbta777-del/arcabot-flow/pkg/arcabot/media"
	"github.com/victorbta777-del/arcabot-flow/pkg/arcabot/store"
)

// newScheduleCmd creates the `arcabot schedule` command group.
func newScheduleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Manage scheduled messages",
		Long: `Schedule messages for delivery by a running 'arcabot serve'.

Times accept a duration ("30m"), "15:04", "2006-01-02 15:04" or RFC 3339.

Examples:
  arcabot schedule add --bot <id> --to 5511999998888 --text "Bom dia!" --at 09:00 --recurrence daily
  arcabot schedule add --bot <id> --to 5511999998888 --text "Boleto" --attachment ./boleto.pdf --at "2025-03-10 10:00"
  arcabot schedule list --bot <id> --status pending
  arcabot schedule cancel <message-id>`,
	}

	cmd.AddCommand(
		newScheduleAddCmd(),
		newScheduleListCmd(),
		newScheduleUpdateCmd(),
		newScheduleCancelCmd(),
		newScheduleRunOnceCmd(),
	)
	return cmd
}

func newScheduleAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Schedule a message",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			flags := cmd.Flags()
			botID, _ := flags.GetString("bot")
			to, _ := flags.GetString("to")
			text, _ := flags.GetString("text")
			at, _ := flags.GetString("at")
			name, _ := flags.GetString("name")
			attachment, _ := flags.GetString("attachment")

			when, err := dispatch.ParseTime(at, time.Now())
			if err != nil {
				return err
			}
			rec, err := recurrenceFromFlags(cmd)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if _, err := a.store.GetBot(ctx, botID); err != nil {
				return botError(botID, err)
			}

			msg := &store.ScheduledMessage{
				BotID:            botID,
				RecipientAddress: to,
				RecipientName:    name,
				Text:             text,
				ScheduledFor:     when,
				Recurrence:       rec,
			}
			if attachment != "" {
				files := media.NewStore(a.cfg.Dispatch.Media, a.logger)
				ref, err := files.SaveFile(ctx, attachment)
				if err != nil {
					return err
				}
				msg.AttachmentRef = ref
			}

			if err := a.store.CreateScheduledMessage(ctx, msg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Message %s scheduled for %s (%s).\n",
				msg.ID, msg.ScheduledFor.Local().Format("2006-01-02 15:04"), msg.Recurrence.Type)
			return nil
		},
	}

	cmd.Flags().String("bot", "", "bot id (required)")
	cmd.Flags().String("to", "", "recipient phone number or WhatsApp address (required)")
	cmd.Flags().String("text", "", "message text, or the caption of an attachment")
	cmd.Flags().String("at", "", "send time (required)")
	cmd.Flags().String("name", "", "recipient display name")
	cmd.Flags().String("attachment", "", "file to send as a document")
	addRecurrenceFlags(cmd)
	_ = cmd.MarkFlagRequired("bot")
	_ = cmd.MarkFlagRequired("to")
	_ = cmd.MarkFlagRequired("at")
	return cmd
}

func addRecurrenceFlags(cmd *cobra.Command) {
	cmd.Flags().String("recurrence", string(store.RecurrenceOnce), "once, daily, weekly or monthly")
	cmd.Flags().Int("day", 0, "day of month for monthly recurrence (1-31)")
	cmd.Flags().Int("weekday", -1, "weekday for weekly recurrence (0=Sunday)")
}

func recurrenceFromFlags(cmd *cobra.Command) (store.Recurrence, error) {
	flags := cmd.Flags()
	kind, _ := flags.GetString("recurrence")
	rec := store.Recurrence{Type: store.RecurrenceType(strings.ToLower(kind))}
	if flags.Changed("day") {
		day, _ := flags.GetInt("day")
		rec.DayOfMonth = &day
	}
	if flags.Changed("weekday") {
		wd, _ := flags.GetInt("weekday")
		rec.Weekday = &wd
	}
	return rec, rec.Validate()
}

func newScheduleListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List scheduled messages",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			botID, _ := cmd.Flags().GetString("bot")
			status, _ := cmd.Flags().GetString("status")
			msgs, err := a.store.ListScheduledMessages(cmd.Context(), store.ScheduleFilter{
				BotID:  botID,
				Status: store.MessageStatus(strings.ToLower(status)),
			})
			if err != nil {
				return err
			}
			if len(msgs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No scheduled messages.")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tBOT\tTO\tWHEN\tREPEAT\tSTATUS\tTEXT")
			for _, m := range msgs {
				state := string(m.Status)
				if m.ErrorText != "" {
					state += " (" + m.ErrorText + ")"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					m.ID, shortID(m.BotID), recipientLabel(m), formatTime(&m.ScheduledFor),
					m.Recurrence.Type, state, truncate(m.Text, 40))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().String("bot", "", "only messages of this bot")
	cmd.Flags().String("status", "", "pending, sent, failed or cancelled")
	return cmd
}

func newScheduleUpdateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change a pending message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			msg, err := a.store.GetScheduledMessage(ctx, args[0])
			if err != nil {
				return scheduleError(args[0], err)
			}

			flags := cmd.Flags()
			if flags.Changed("to") {
				msg.RecipientAddress, _ = flags.GetString("to")
			}
			if flags.Changed("name") {
				msg.RecipientName, _ = flags.GetString("name")
			}
			if flags.Changed("text") {
				msg.Text, _ = flags.GetString("text")
			}
			if flags.Changed("at") {
				at, _ := flags.GetString("at")
				if msg.ScheduledFor, err = dispatch.ParseTime(at, time.Now()); err != nil {
					return err
				}
			}
			if flags.Changed("recurrence") || flags.Changed("day") || flags.Changed("weekday") {
				if msg.Recurrence, err = recurrenceFromFlags(cmd); err != nil {
					return err
				}
			}

			if err := a.store.UpdateScheduledMessage(ctx, msg); err != nil {
				return scheduleError(args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Message %s updated.\n", msg.ID)
			return nil
		},
	}

	cmd.Flags().String("to", "", "recipient phone number or WhatsApp address")
	cmd.Flags().String("name", "", "recipient display name")
	cmd.Flags().String("text", "", "message text")
	cmd.Flags().String("at", "", "send time")
	addRecurrenceFlags(cmd)
	return cmd
}

func newScheduleCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a pending message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.store.CancelScheduledMessage(cmd.Context(), args[0]); err != nil {
				return scheduleError(args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Message %s cancelled.\n", args[0])
			return nil
		},
	}
}

func newScheduleRunOnceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run-once",
		Short: "Connect the online bots, deliver due messages once and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			rt, err := newRuntime(ctx, a, os.Stderr)
			if err != nil {
				return err
			}
			defer rt.close()

			if _, err := rt.sessions.Restore(ctx); err != nil {
				a.logger.Warn("some sessions failed to restore", "error", err)
			}
			wait, _ := cmd.Flags().GetDuration("wait")
			waitOnline(ctx, rt, wait)

			res, err := rt.engine.Tick(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Due: %d, sent: %d, failed: %d\n", res.Due, res.Sent, res.Failed)
			return nil
		},
	}

	cmd.Flags().Duration("wait", 30*time.Second, "how long to wait for sessions to come online")
	return cmd
}

// waitOnline polls until every session reports ONLINE or the wait ends.
func waitOnline(ctx context.Context, rt *runtime, wait time.Duration) {
	deadline := time.Now().Add(wait)
	for time.Now().Before(deadline) {
		online := true
		for _, info := range rt.sessions.ListSessions() {
			if info.Status != store.BotOnline {
				online = false
				break
			}
		}
		if online {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(250 * time.Millisecond):
		}
	}
}

func scheduleError(id string, err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("scheduled message %s not found", id)
	case errors.Is(err, store.ErrNotPending):
		return fmt.Errorf("scheduled message %s is no longer pending", id)
	}
	return err
}

func recipientLabel(m *store.ScheduledMessage) string {
	if m.RecipientName != "" {
		return m.RecipientName + " <" + m.RecipientAddress + ">"
	}
	return m.RecipientAddress
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
