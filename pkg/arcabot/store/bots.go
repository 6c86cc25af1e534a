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

const botColumns = "id, name, phone_number, status, last_sync, created_at, updated_at"

// CreateBot inserts a new OFFLINE bot together with its default reply
// configuration.
func (s *Store) CreateBot(ctx context.Context, name string) (*Bot, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("bot name is required")
	}

	now := s.now()
	bot := &Bot{
		ID:        uuid.New().String(),
		Name:      name,
		Status:    BotOffline,
		CreatedAt: fromUnix(now.Unix()),
		UpdatedAt: fromUnix(now.Unix()),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO bots (id, name, phone_number, status, created_at, updated_at)
		VALUES ($1, $2, '', $3, $4, $5)`,
		bot.ID, bot.Name, string(bot.Status), toUnix(now), toUnix(now))
	if err != nil {
		return nil, fmt.Errorf("insert bot: %w", err)
	}

	if err := saveBotConfig(ctx, tx, DefaultBotConfig(bot.ID), now); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return bot, nil
}

// GetBot returns a bot by id.
func (s *Store) GetBot(ctx context.Context, id string) (*Bot, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+botColumns+" FROM bots WHERE id = $1", id)
	bot, err := scanBot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return bot, err
}

// ListBots returns every bot, newest first. When statuses are given only
// bots in one of them are returned.
func (s *Store) ListBots(ctx context.Context, statuses ...BotStatus) ([]*Bot, error) {
	query := "SELECT " + botColumns + " FROM bots"
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		placeholders := make([]string, len(statuses))
		for i, st := range statuses {
			placeholders[i] = fmt.Sprintf("$%d", i+1)
			args = append(args, string(st))
		}
		query += " WHERE status IN (" + strings.Join(placeholders, ", ") + ")"
	}
	query += " ORDER BY created_at DESC, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list bots: %w", err)
	}
	defer rows.Close()

	var bots []*Bot
	for rows.Next() {
		bot, err := scanBot(rows)
		if err != nil {
			return nil, err
		}
		bots = append(bots, bot)
	}
	return bots, rows.Err()
}

// UpdateBotStatus sets the persisted status of a bot.
func (s *Store) UpdateBotStatus(ctx context.Context, id string, status BotStatus) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE bots SET status = $1, updated_at = $2 WHERE id = $3",
		string(status), toUnix(s.now()), id)
	if err != nil {
		return fmt.Errorf("update bot status: %w", err)
	}
	return expectOne(res)
}

// MarkBotOnline records a successful handshake: status ONLINE, the account
// phone number and the sync time.
func (s *Store) MarkBotOnline(ctx context.Context, id, phoneNumber string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE bots SET status = $1, phone_number = $2, last_sync = $3, updated_at = $4 WHERE id = $5",
		string(BotOnline), phoneNumber, toUnix(at), toUnix(s.now()), id)
	if err != nil {
		return fmt.Errorf("mark bot online: %w", err)
	}
	return expectOne(res)
}

// TogglePause flips a bot between ONLINE and PAUSED and returns the new
// status. Any other status becomes ONLINE.
func (s *Store) TogglePause(ctx context.Context, id string) (BotStatus, error) {
	bot, err := s.GetBot(ctx, id)
	if err != nil {
		return "", err
	}
	next := BotOnline
	if bot.Status == BotOnline {
		next = BotPaused
	}
	if err := s.UpdateBotStatus(ctx, id, next); err != nil {
		return "", err
	}
	return next, nil
}

// DeleteBot removes a bot. Configuration, schedules, conversation turns and
// credentials go with it through ON DELETE CASCADE.
func (s *Store) DeleteBot(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM bots WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete bot: %w", err)
	}
	return expectOne(res)
}

func scanBot(row rowScanner) (*Bot, error) {
	var (
		bot                  Bot
		status               string
		lastSync             sql.NullInt64
		createdAt, updatedAt int64
	)
	if err := row.Scan(&bot.ID, &bot.Name, &bot.PhoneNumber, &status, &lastSync, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	bot.Status = BotStatus(status)
	bot.LastSync = timePtr(lastSync)
	bot.CreatedAt = fromUnix(createdAt)
	bot.UpdatedAt = fromUnix(updatedAt)
	return &bot, nil
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
