package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const scheduledColumns = `id, bot_id, recipient_address, recipient_name, message_text, attachment_ref,
	scheduled_for, recurrence_type, recurrence_day, recurrence_weekday, status, sent_at,
	error_text, created_at`

// ScheduleFilter narrows ListScheduledMessages. Zero fields match anything.
type ScheduleFilter struct {
	BotID  string
	Status MessageStatus
}

// Validate checks the recurrence rule.
func (r Recurrence) Validate() error {
	switch r.Type {
	case "", RecurrenceOnce, RecurrenceDaily:
	case RecurrenceWeekly:
		if r.Weekday != nil && (*r.Weekday < 0 || *r.Weekday > 6) {
			return fmt.Errorf("weekday must be between 0 and 6, got %d", *r.Weekday)
		}
	case RecurrenceMonthly:
		if r.DayOfMonth != nil && (*r.DayOfMonth < 1 || *r.DayOfMonth > 31) {
			return fmt.Errorf("day of month must be between 1 and 31, got %d", *r.DayOfMonth)
		}
	default:
		return fmt.Errorf("unknown recurrence type %q", r.Type)
	}
	return nil
}

// CreateScheduledMessage validates and inserts msg as pending. ID, Status
// and CreatedAt are assigned here.
func (s *Store) CreateScheduledMessage(ctx context.Context, msg *ScheduledMessage) error {
	if msg.BotID == "" {
		return fmt.Errorf("scheduled message requires a bot id")
	}
	if strings.TrimSpace(msg.RecipientAddress) == "" {
		return fmt.Errorf("scheduled message requires a recipient")
	}
	if strings.TrimSpace(msg.Text) == "" && msg.AttachmentRef == "" {
		return fmt.Errorf("scheduled message requires text or an attachment")
	}
	if msg.ScheduledFor.IsZero() {
		return fmt.Errorf("scheduled message requires a send time")
	}
	if err := msg.Recurrence.Validate(); err != nil {
		return err
	}
	if msg.Recurrence.Type == "" {
		msg.Recurrence.Type = RecurrenceOnce
	}

	now := s.now()
	msg.ID = uuid.New().String()
	msg.Status = StatusPending
	msg.SentAt = nil
	msg.ErrorText = ""
	msg.CreatedAt = fromUnix(now.Unix())

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scheduled_messages (id, bot_id, recipient_address, recipient_name,
			message_text, attachment_ref, scheduled_for, recurrence_type, recurrence_day,
			recurrence_weekday, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		msg.ID, msg.BotID, msg.RecipientAddress, msg.RecipientName, msg.Text, msg.AttachmentRef,
		toUnix(msg.ScheduledFor), string(msg.Recurrence.Type), nullInt(msg.Recurrence.DayOfMonth),
		nullInt(msg.Recurrence.Weekday), string(msg.Status), toUnix(now))
	if err != nil {
		return fmt.Errorf("insert scheduled message: %w", err)
	}
	return nil
}

// GetScheduledMessage returns a scheduled message by id.
func (s *Store) GetScheduledMessage(ctx context.Context, id string) (*ScheduledMessage, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+scheduledColumns+" FROM scheduled_messages WHERE id = $1", id)
	msg, err := scanScheduled(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return msg, err
}

// ListScheduledMessages returns scheduled messages ordered by send time.
func (s *Store) ListScheduledMessages(ctx context.Context, filter ScheduleFilter) ([]*ScheduledMessage, error) {
	var (
		where []string
		args  []any
	)
	if filter.BotID != "" {
		args = append(args, filter.BotID)
		where = append(where, fmt.Sprintf("bot_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}

	query := "SELECT " + scheduledColumns + " FROM scheduled_messages"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY scheduled_for, created_at"
	return s.queryScheduled(ctx, query, args...)
}

// DueScheduledMessages returns every pending message whose send time is at
// or before now, oldest first.
func (s *Store) DueScheduledMessages(ctx context.Context, now time.Time) ([]*ScheduledMessage, error) {
	return s.queryScheduled(ctx,
		"SELECT "+scheduledColumns+" FROM scheduled_messages WHERE status = $1 AND scheduled_for <= $2 ORDER BY scheduled_for, created_at",
		string(StatusPending), toUnix(now))
}

// MarkSent moves a pending message to sent.
func (s *Store) MarkSent(ctx context.Context, id string, at time.Time) error {
	return s.finish(ctx, id, StatusSent, &at, "")
}

// MarkFailed moves a pending message to failed with the given reason.
func (s *Store) MarkFailed(ctx context.Context, id, reason string) error {
	return s.finish(ctx, id, StatusFailed, nil, reason)
}

// CancelScheduledMessage moves a pending message to cancelled.
func (s *Store) CancelScheduledMessage(ctx context.Context, id string) error {
	return s.finish(ctx, id, StatusCancelled, nil, "")
}

func (s *Store) finish(ctx context.Context, id string, status MessageStatus, sentAt *time.Time, reason string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE scheduled_messages SET status = $1, sent_at = $2, error_text = $3
		WHERE id = $4 AND status = $5`,
		string(status), nullUnix(sentAt), reason, id, string(StatusPending))
	if err != nil {
		return fmt.Errorf("update scheduled message: %w", err)
	}
	return s.pendingResult(ctx, res, id)
}

// UpdateScheduledMessage rewrites the editable fields of a pending message.
func (s *Store) UpdateScheduledMessage(ctx context.Context, msg *ScheduledMessage) error {
	if err := msg.Recurrence.Validate(); err != nil {
		return err
	}
	if msg.Recurrence.Type == "" {
		msg.Recurrence.Type = RecurrenceOnce
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE scheduled_messages SET recipient_address = $1, recipient_name = $2,
			message_text = $3, attachment_ref = $4, scheduled_for = $5, recurrence_type = $6,
			recurrence_day = $7, recurrence_weekday = $8
		WHERE id = $9 AND status = $10`,
		msg.RecipientAddress, msg.RecipientName, msg.Text, msg.AttachmentRef,
		toUnix(msg.ScheduledFor), string(msg.Recurrence.Type), nullInt(msg.Recurrence.DayOfMonth),
		nullInt(msg.Recurrence.Weekday), msg.ID, string(StatusPending))
	if err != nil {
		return fmt.Errorf("update scheduled message: %w", err)
	}
	return s.pendingResult(ctx, res, msg.ID)
}

// pendingResult tells a missing message apart from one that already left
// the pending state.
func (s *Store) pendingResult(ctx context.Context, res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	if _, err := s.GetScheduledMessage(ctx, id); err != nil {
		return err
	}
	return ErrNotPending
}

func (s *Store) queryScheduled(ctx context.Context, query string, args ...any) ([]*ScheduledMessage, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query scheduled messages: %w", err)
	}
	defer rows.Close()

	var out []*ScheduledMessage
	for rows.Next() {
		msg, err := scanScheduled(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

func scanScheduled(row rowScanner) (*ScheduledMessage, error) {
	var (
		msg                     ScheduledMessage
		scheduledFor, createdAt int64
		recurrence, status      string
		recurrenceDay, weekday  sql.NullInt64
		sentAt                  sql.NullInt64
	)
	err := row.Scan(&msg.ID, &msg.BotID, &msg.RecipientAddress, &msg.RecipientName, &msg.Text,
		&msg.AttachmentRef, &scheduledFor, &recurrence, &recurrenceDay, &weekday, &status,
		&sentAt, &msg.ErrorText, &createdAt)
	if err != nil {
		return nil, err
	}
	msg.ScheduledFor = fromUnix(scheduledFor)
	msg.Recurrence = Recurrence{
		Type:       RecurrenceType(recurrence),
		DayOfMonth: intPtr(recurrenceDay),
		Weekday:    intPtr(weekday),
	}
	msg.Status = MessageStatus(status)
	msg.SentAt = timePtr(sentAt)
	msg.CreatedAt = fromUnix(createdAt)
	return &msg, nil
}
