package credentials

import (
	"context"
	"errors"
	"testing"

	"github.com/victorbta777-del/arcabot-flow/pkg/arcabot/store"
)

type memStore struct {
	blobs    map[string][]byte
	failSets bool
}

func newMemStore() *memStore {
	return &memStore{blobs: make(map[string][]byte)}
}

func (m *memStore) key(botID, category, keyID string) string {
	return botID + "|" + category + "|" + keyID
}

func (m *memStore) GetCredential(_ context.Context, botID, category, keyID string) ([]byte, error) {
	v, ok := m.blobs[m.key(botID, category, keyID)]
	if !ok {
		return nil, store.ErrNotFound
	}
	return v, nil
}

func (m *memStore) SetCredential(_ context.Context, botID, category, keyID string, value []byte) error {
	if m.failSets {
		return errors.New("disk full")
	}
	m.blobs[m.key(botID, category, keyID)] = value
	return nil
}

func (m *memStore) DeleteCredential(_ context.Context, botID, category, keyID string) error {
	delete(m.blobs, m.key(botID, category, keyID))
	return nil
}

func (m *memStore) DeleteCredentials(_ context.Context, botID string) error {
	for k := range m.blobs {
		if len(k) > len(botID) && k[:len(botID)+1] == botID+"|" {
			delete(m.blobs, k)
		}
	}
	return nil
}

func TestParseCategory(t *testing.T) {
	for _, name := range []string{"creds", "pre-key", "session", "sender-key", "app-state-sync-key", "app-state-sync-version", "sender-key-memory", "device"} {
		if _, err := ParseCategory(name); err != nil {
			t.Errorf("expected %q to be valid: %v", name, err)
		}
	}
	if _, err := ParseCategory("identity"); err == nil {
		t.Error("expected unknown category to be rejected")
	}
}

func TestKey_String(t *testing.T) {
	if got := (Key{Category: CategoryPreKey, ID: "42"}).String(); got != "pre-key-42" {
		t.Errorf("expected pre-key-42, got %q", got)
	}
	if got := (Key{Category: CategoryCreds}).String(); got != "creds" {
		t.Errorf("expected creds, got %q", got)
	}
}

func TestAdapter_ApplyAndGet(t *testing.T) {
	ctx := context.Background()
	mem := newMemStore()
	a := NewAdapter("bot-1", mem)
	other := NewAdapter("bot-2", mem)

	err := a.Apply(ctx, []Update{
		{Key: Key{Category: CategoryPreKey, ID: "1"}, Value: []byte("one")},
		{Key: Key{Category: CategoryPreKey, ID: "2"}, Value: []byte("two")},
		{Key: Key{Category: CategorySession, ID: "5511@s.whatsapp.net"}, Value: []byte("s")},
	})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	t.Run("get present", func(t *testing.T) {
		v, ok, err := a.Get(ctx, Key{Category: CategoryPreKey, ID: "1"})
		if err != nil || !ok || string(v) != "one" {
			t.Errorf("expected one, got %q ok=%v err=%v", v, ok, err)
		}
	})

	t.Run("bots are isolated", func(t *testing.T) {
		_, ok, err := other.Get(ctx, Key{Category: CategoryPreKey, ID: "1"})
		if err != nil || ok {
			t.Errorf("expected absent key for other bot, ok=%v err=%v", ok, err)
		}
	})

	t.Run("get many skips absent", func(t *testing.T) {
		got, err := a.GetMany(ctx, CategoryPreKey, []string{"1", "2", "3"})
		if err != nil {
			t.Fatalf("GetMany failed: %v", err)
		}
		if len(got) != 2 || string(got["2"]) != "two" {
			t.Errorf("unexpected result: %v", got)
		}
	})

	t.Run("nil value deletes", func(t *testing.T) {
		if err := a.Apply(ctx, []Update{{Key: Key{Category: CategoryPreKey, ID: "1"}}}); err != nil {
			t.Fatalf("Apply failed: %v", err)
		}
		if _, ok, _ := a.Get(ctx, Key{Category: CategoryPreKey, ID: "1"}); ok {
			t.Error("expected key to be deleted")
		}
	})

	t.Run("clear", func(t *testing.T) {
		other.Apply(ctx, []Update{{Key: Key{Category: CategoryCreds}, Value: []byte("c")}})
		if err := a.Clear(ctx); err != nil {
			t.Fatalf("Clear failed: %v", err)
		}
		if _, ok, _ := a.Get(ctx, Key{Category: CategorySession, ID: "5511@s.whatsapp.net"}); ok {
			t.Error("expected bot-1 credentials to be cleared")
		}
		if _, ok, _ := other.Get(ctx, Key{Category: CategoryCreds}); !ok {
			t.Error("expected bot-2 credentials to survive")
		}
	})
}

func TestAdapter_Errors(t *testing.T) {
	ctx := context.Background()
	mem := newMemStore()
	a := NewAdapter("bot-1", mem)

	if _, _, err := a.Get(ctx, Key{Category: "bogus", ID: "1"}); err == nil {
		t.Error("expected error for unknown category")
	}

	mem.failSets = true
	err := a.Apply(ctx, []Update{{Key: Key{Category: CategoryCreds}, Value: []byte("x")}})
	if err == nil {
		t.Fatal("expected store failure to surface")
	}
}
