package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// GetCredential returns the blob stored under (botID, category, keyID).
func (s *Store) GetCredential(ctx context.Context, botID, category, keyID string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM bot_credentials WHERE bot_id = $1 AND category = $2 AND key_id = $3",
		botID, category, keyID).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get credential: %w", err)
	}
	return value, nil
}

// SetCredential stores or replaces a credential blob.
func (s *Store) SetCredential(ctx context.Context, botID, category, keyID string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bot_credentials (bot_id, category, key_id, value, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT(bot_id, category, key_id) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at`,
		botID, category, keyID, value, toUnix(s.now()))
	if err != nil {
		return fmt.Errorf("set credential: %w", err)
	}
	return nil
}

// DeleteCredential removes one credential blob. Deleting a missing key is
// not an error.
func (s *Store) DeleteCredential(ctx context.Context, botID, category, keyID string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM bot_credentials WHERE bot_id = $1 AND category = $2 AND key_id = $3",
		botID, category, keyID)
	if err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	return nil
}

// DeleteCredentials removes every credential blob of a bot.
func (s *Store) DeleteCredentials(ctx context.Context, botID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM bot_credentials WHERE bot_id = $1", botID)
	if err != nil {
		return fmt.Errorf("delete credentials: %w", err)
	}
	return nil
}

// CountCredentials returns how many credential blobs a bot holds.
func (s *Store) CountCredentials(ctx context.Context, botID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM bot_credentials WHERE bot_id = $1", botID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count credentials: %w", err)
	}
	return n, nil
}
