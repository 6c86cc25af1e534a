package store

import (
	"context"
	"fmt"
	"time"
)

// AppendTurn adds one entry to the conversation log of (BotID, PeerID). A
// zero Timestamp is replaced by the current time.
func (s *Store) AppendTurn(ctx context.Context, turn ConversationTurn) error {
	if turn.Timestamp.IsZero() {
		turn.Timestamp = s.now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversation_turns (bot_id, peer_id, role, content, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		turn.BotID, turn.PeerID, string(turn.Role), turn.Text, toUnix(turn.Timestamp))
	if err != nil {
		return fmt.Errorf("append conversation turn: %w", err)
	}
	return nil
}

// RecentTurns returns at most limit turns of (botID, peerID) created at or
// after since, oldest first.
func (s *Store) RecentTurns(ctx context.Context, botID, peerID string, limit int, since time.Time) ([]ConversationTurn, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT bot_id, peer_id, role, content, created_at FROM conversation_turns
		WHERE bot_id = $1 AND peer_id = $2 AND created_at >= $3
		ORDER BY created_at DESC, seq DESC
		LIMIT $4`,
		botID, peerID, toUnix(since), limit)
	if err != nil {
		return nil, fmt.Errorf("query conversation turns: %w", err)
	}
	defer rows.Close()

	var turns []ConversationTurn
	for rows.Next() {
		var (
			turn      ConversationTurn
			role      string
			createdAt int64
		)
		if err := rows.Scan(&turn.BotID, &turn.PeerID, &role, &turn.Text, &createdAt); err != nil {
			return nil, err
		}
		turn.Role = Role(role)
		turn.Timestamp = fromUnix(createdAt)
		turns = append(turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

// PruneTurns deletes conversation turns older than before and returns how
// many were removed.
func (s *Store) PruneTurns(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM conversation_turns WHERE created_at < $1", toUnix(before))
	if err != nil {
		return 0, fmt.Errorf("prune conversation turns: %w", err)
	}
	return res.RowsAffected()
}
