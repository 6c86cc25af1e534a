// Package transport defines the messaging connection contract the session
// manager drives. Implementations live in subpackages.
package transport

import (
	"context"
	"errors"
	"time"

	"github.com/victorbta777-del/arcabot-flow/pkg/arcabot/credentials"
)

// ErrClosed is returned by operations on a closed handle.
var ErrClosed = errors.New("transport: handle closed")

// Event is emitted by a Handle. It is one of PairingCode, StatusChanged,
// CredentialsChanged or MessageReceived.
type Event interface {
	transportEvent()
}

// PairingCode carries a code to be rendered as a QR for device linking.
type PairingCode struct {
	Code string
}

// ConnectionStatus is the state reported by StatusChanged.
type ConnectionStatus string

const (
	StatusOpen   ConnectionStatus = "open"
	StatusClosed ConnectionStatus = "closed"
)

// StatusChanged reports that the connection opened or closed. Terminal is
// only meaningful for closes: it is true when the account logged out and a
// reconnect would be pointless.
type StatusChanged struct {
	Status    ConnectionStatus
	AccountID string
	Terminal  bool
	Reason    string
}

// CredentialsChanged asks the owner to persist credential updates.
type CredentialsChanged struct {
	Updates []credentials.Update
}

// MessageReceived carries one inbound message.
type MessageReceived struct {
	Message InboundMessage
}

func (PairingCode) transportEvent()        {}
func (StatusChanged) transportEvent()      {}
func (CredentialsChanged) transportEvent() {}
func (MessageReceived) transportEvent()    {}

// InboundMessage is the transport-neutral view of a received message. Only
// the text shapes the auto-reply understands are populated.
type InboundMessage struct {
	ID           string
	Chat         string
	Sender       string
	PushName     string
	FromMe       bool
	IsGroup      bool
	Conversation string
	ExtendedText string
	Timestamp    time.Time
}

// Document is a file sent as a document message.
type Document struct {
	Data     []byte
	MimeType string
	FileName string
	Caption  string
}

// Content is an outbound message: either plain text or a captioned
// document.
type Content struct {
	Text     string
	Document *Document
}

// Handle is one live connection.
type Handle interface {
	// Events delivers lifecycle and message events. It is closed by Close.
	Events() <-chan Event

	// Send delivers content to address.
	Send(ctx context.Context, address string, content Content) error

	// Logout unlinks the device from the account.
	Logout(ctx context.Context) error

	// Close releases the connection without logging out.
	Close() error

	// AccountID returns the account id once the connection has opened.
	AccountID() string
}

// CredentialStore is the credential access a transport needs.
type CredentialStore interface {
	Get(ctx context.Context, key credentials.Key) ([]byte, bool, error)
	Apply(ctx context.Context, updates []credentials.Update) error
	Clear(ctx context.Context) error
}

// Transport opens connections for bots.
type Transport interface {
	Connect(ctx context.Context, botID string, creds CredentialStore) (Handle, error)
}
