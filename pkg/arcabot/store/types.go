// Package store holds the persistent records of ArcaBot (bots, their reply
// configuration, scheduled messages, conversation turns and credential
// blobs) on top of database/sql. Queries use $n placeholders, which both
// go-sqlite3 and pgx accept.
package store

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrNotPending is returned when a scheduled message has already left
	// the pending state.
	ErrNotPending = errors.New("store: scheduled message is not pending")
)

// BotStatus is the persisted status of a bot instance.
type BotStatus string

const (
	BotOnline     BotStatus = "ONLINE"
	BotOffline    BotStatus = "OFFLINE"
	BotPaused     BotStatus = "PAUSED"
	BotConnecting BotStatus = "CONNECTING"
)

// Bot is the persisted view of one bot instance.
type Bot struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	PhoneNumber string     `json:"phone_number,omitempty"`
	Status      BotStatus  `json:"status"`
	LastSync    *time.Time `json:"last_sync,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// BotConfig drives the auto-reply decision for one bot.
type BotConfig struct {
	BotID             string `json:"bot_id"`
	FallbackText      string `json:"fallback_text"`
	WelcomeText       string `json:"welcome_text,omitempty"`
	AutoReplyEnabled  bool   `json:"auto_reply_enabled"`
	AIEnabled         bool   `json:"ai_enabled"`
	IgnoreGroups      bool   `json:"ignore_groups"`
	SystemInstruction string `json:"system_instruction,omitempty"`
}

// DefaultFallbackText is the fallback reply given to newly created bots.
const DefaultFallbackText = "Desculpe, não entendi. Um humano irá atendê-lo em breve."

// DefaultBotConfig returns the configuration a new bot starts with.
func DefaultBotConfig(botID string) *BotConfig {
	return &BotConfig{
		BotID:            botID,
		FallbackText:     DefaultFallbackText,
		AutoReplyEnabled: true,
	}
}

// RecurrenceType is how a sent scheduled message repeats.
type RecurrenceType string

const (
	RecurrenceOnce    RecurrenceType = "once"
	RecurrenceDaily   RecurrenceType = "daily"
	RecurrenceWeekly  RecurrenceType = "weekly"
	RecurrenceMonthly RecurrenceType = "monthly"
)

// Recurrence describes the repetition rule of a scheduled message.
type Recurrence struct {
	Type       RecurrenceType `json:"type"`
	DayOfMonth *int           `json:"day_of_month,omitempty"`
	Weekday    *int           `json:"weekday,omitempty"`
}

// MessageStatus is the delivery status of a scheduled message. It only
// moves forward: pending to sent, failed or cancelled.
type MessageStatus string

const (
	StatusPending   MessageStatus = "pending"
	StatusSent      MessageStatus = "sent"
	StatusFailed    MessageStatus = "failed"
	StatusCancelled MessageStatus = "cancelled"
)

// ScheduledMessage is one outbound message due at ScheduledFor.
type ScheduledMessage struct {
	ID               string        `json:"id"`
	BotID            string        `json:"bot_id"`
	RecipientAddress string        `json:"recipient_address"`
	RecipientName    string        `json:"recipient_name,omitempty"`
	Text             string        `json:"text"`
	AttachmentRef    string        `json:"attachment_ref,omitempty"`
	ScheduledFor     time.Time     `json:"scheduled_for"`
	Recurrence       Recurrence    `json:"recurrence"`
	Status           MessageStatus `json:"status"`
	SentAt           *time.Time    `json:"sent_at,omitempty"`
	ErrorText        string        `json:"error_text,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
}

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ConversationTurn is one entry of the rolling AI conversation context.
type ConversationTurn struct {
	BotID     string    `json:"bot_id"`
	PeerID    string    `json:"peer_id"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}
