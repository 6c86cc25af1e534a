// Package credentials persists the per-bot key material of the messaging
// transport as opaque blobs addressed by a typed key.
package credentials

import (
	"context"
	"errors"
	"fmt"

	"github.com/victorbta777-del/arcabot-flow/pkg/arcabot/store"
)

// Category groups credential blobs of the same kind.
type Category string

const (
	CategoryCreds               Category = "creds"
	CategoryPreKey              Category = "pre-key"
	CategorySession             Category = "session"
	CategorySenderKey           Category = "sender-key"
	CategoryAppStateSyncKey     Category = "app-state-sync-key"
	CategoryAppStateSyncVersion Category = "app-state-sync-version"
	CategorySenderKeyMemory     Category = "sender-key-memory"
	CategoryDevice              Category = "device"
)

var categories = map[Category]struct{}{
	CategoryCreds:               {},
	CategoryPreKey:              {},
	CategorySession:             {},
	CategorySenderKey:           {},
	CategoryAppStateSyncKey:     {},
	CategoryAppStateSyncVersion: {},
	CategorySenderKeyMemory:     {},
	CategoryDevice:              {},
}

// ParseCategory validates a category name.
func ParseCategory(s string) (Category, error) {
	c := Category(s)
	if _, ok := categories[c]; !ok {
		return "", fmt.Errorf("unknown credential category %q", s)
	}
	return c, nil
}

// Key addresses one credential blob of a bot.
type Key struct {
	Category Category
	ID       string
}

// String renders the key for logs only. Storage uses the two fields
// separately.
func (k Key) String() string {
	if k.ID == "" {
		return string(k.Category)
	}
	return string(k.Category) + "-" + k.ID
}

// Update is one write in a batch. A nil Value deletes the key.
type Update struct {
	Key   Key
	Value []byte
}

// Adapter reads and writes the credentials of a single bot.
type Adapter struct {
	botID string
	store store.Credentials
}

// NewAdapter binds an adapter to botID.
func NewAdapter(botID string, s store.Credentials) *Adapter {
	return &Adapter{botID: botID, store: s}
}

// BotID returns the bot this adapter is bound to.
func (a *Adapter) BotID() string {
	return a.botID
}

// Get returns the blob stored under key. The boolean is false when the key
// is absent.
func (a *Adapter) Get(ctx context.Context, key Key) ([]byte, bool, error) {
	if _, err := ParseCategory(string(key.Category)); err != nil {
		return nil, false, err
	}
	value, err := a.store.GetCredential(ctx, a.botID, string(key.Category), key.ID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s: %w", key, err)
	}
	return value, true, nil
}

// GetMany returns the present blobs among ids of one category, keyed by id.
func (a *Adapter) GetMany(ctx context.Context, category Category, ids []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(ids))
	for _, id := range ids {
		value, ok, err := a.Get(ctx, Key{Category: category, ID: id})
		if err != nil {
			return nil, err
		}
		if ok {
			out[id] = value
		}
	}
	return out, nil
}

// Apply writes a batch of updates in order, stopping at the first error.
func (a *Adapter) Apply(ctx context.Context, updates []Update) error {
	for _, u := range updates {
		if _, err := ParseCategory(string(u.Key.Category)); err != nil {
			return err
		}
		var err error
		if u.Value == nil {
			err = a.store.DeleteCredential(ctx, a.botID, string(u.Key.Category), u.Key.ID)
		} else {
			err = a.store.SetCredential(ctx, a.botID, string(u.Key.Category), u.Key.ID, u.Value)
		}
		if err != nil {
			return fmt.Errorf("apply %s: %w", u.Key, err)
		}
	}
	return nil
}

// Clear removes every blob of the bot.
func (a *Adapter) Clear(ctx context.Context) error {
	if err := a.store.DeleteCredentials(ctx, a.botID); err != nil {
		return fmt.Errorf("clear credentials of %s: %w", a.botID, err)
	}
	return nil
}
