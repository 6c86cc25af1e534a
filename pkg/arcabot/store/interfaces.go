package store

import (
	"context"
	"time"
)

// Bots is the bot record repository.
type Bots interface {
	CreateBot(ctx context.Context, name string) (*Bot, error)
	GetBot(ctx context.Context, id string) (*Bot, error)
	ListBots(ctx context.Context, statuses ...BotStatus) ([]*Bot, error)
	UpdateBotStatus(ctx context.Context, id string, status BotStatus) error
	MarkBotOnline(ctx context.Context, id, phoneNumber string, at time.Time) error
	TogglePause(ctx context.Context, id string) (BotStatus, error)
	DeleteBot(ctx context.Context, id string) error
}

// Configs is the reply configuration repository.
type Configs interface {
	GetBotConfig(ctx context.Context, botID string) (*BotConfig, error)
	SaveBotConfig(ctx context.Context, cfg *BotConfig) error
}

// ScheduledMessages is the outbound schedule repository.
type ScheduledMessages interface {
	CreateScheduledMessage(ctx context.Context, msg *ScheduledMessage) error
	GetScheduledMessage(ctx context.Context, id string) (*ScheduledMessage, error)
	ListScheduledMessages(ctx context.Context, filter ScheduleFilter) ([]*ScheduledMessage, error)
	DueScheduledMessages(ctx context.Context, now time.Time) ([]*ScheduledMessage, error)
	MarkSent(ctx context.Context, id string, at time.Time) error
	MarkFailed(ctx context.Context, id, reason string) error
	CancelScheduledMessage(ctx context.Context, id string) error
	UpdateScheduledMessage(ctx context.Context, msg *ScheduledMessage) error
}

// Conversations is the AI conversation log.
type Conversations interface {
	AppendTurn(ctx context.Context, turn ConversationTurn) error
	RecentTurns(ctx context.Context, botID, peerID string, limit int, since time.Time) ([]ConversationTurn, error)
}

// Credentials stores opaque credential blobs per bot.
type Credentials interface {
	GetCredential(ctx context.Context, botID, category, keyID string) ([]byte, error)
	SetCredential(ctx context.Context, botID, category, keyID string, value []byte) error
	DeleteCredential(ctx context.Context, botID, category, keyID string) error
	DeleteCredentials(ctx context.Context, botID string) error
}

var (
	_ Bots              = (*Store)(nil)
	_ Configs           = (*Store)(nil)
	_ ScheduledMessages = (*Store)(nil)
	_ Conversations     = (*Store)(nil)
	_ Credentials       = (*Store)(nil)
)
