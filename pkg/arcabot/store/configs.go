package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// GetBotConfig returns the reply configuration of a bot.
func (s *Store) GetBotConfig(ctx context.Context, botID string) (*BotConfig, error) {
	var cfg BotConfig
	err := s.db.QueryRowContext(ctx, `
		SELECT bot_id, fallback_text, welcome_text, auto_reply_enabled, ai_enabled,
		       ignore_groups, system_instruction
		FROM bot_configs WHERE bot_id = $1`, botID).
		Scan(&cfg.BotID, &cfg.FallbackText, &cfg.WelcomeText, &cfg.AutoReplyEnabled,
			&cfg.AIEnabled, &cfg.IgnoreGroups, &cfg.SystemInstruction)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get bot config: %w", err)
	}
	return &cfg, nil
}

// SaveBotConfig creates or replaces the reply configuration of a bot.
func (s *Store) SaveBotConfig(ctx context.Context, cfg *BotConfig) error {
	if cfg == nil || cfg.BotID == "" {
		return fmt.Errorf("bot config requires a bot id")
	}
	return saveBotConfig(ctx, s.db, cfg, s.now())
}

func saveBotConfig(ctx context.Context, db execer, cfg *BotConfig, now time.Time) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO bot_configs (bot_id, fallback_text, welcome_text, auto_reply_enabled,
			ai_enabled, ignore_groups, system_instruction, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT(bot_id) DO UPDATE SET
			fallback_text = excluded.fallback_text,
			welcome_text = excluded.welcome_text,
			auto_reply_enabled = excluded.auto_reply_enabled,
			ai_enabled = excluded.ai_enabled,
			ignore_groups = excluded.ignore_groups,
			system_instruction = excluded.system_instruction,
			updated_at = excluded.updated_at`,
		cfg.BotID, cfg.FallbackText, cfg.WelcomeText, cfg.AutoReplyEnabled,
		cfg.AIEnabled, cfg.IgnoreGroups, cfg.SystemInstruction, toUnix(now))
	if err != nil {
		return fmt.Errorf("save bot config: %w", err)
	}
	return nil
}
