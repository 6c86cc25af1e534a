package events

import (
	"bytes"
	"strings"
	"testing"

	"github.com/victorbta777-del/arcabot-flow/pkg/arcabot/store"
)

func TestBus(t *testing.T) {
	t.Run("fan out", func(t *testing.T) {
		bus := NewBus()
		a, unsubA := bus.Subscribe(4)
		b, unsubB := bus.Subscribe(4)
		defer unsubA()
		defer unsubB()

		bus.Publish(StatusChanged{BotID: "b1", Status: store.BotOnline})

		for _, ch := range []<-chan Event{a, b} {
			evt := <-ch
			sc, ok := evt.(StatusChanged)
			if !ok || sc.Status != store.BotOnline || sc.Bot() != "b1" {
				t.Errorf("unexpected event %+v", evt)
			}
		}
	})

	t.Run("slow subscriber drops", func(t *testing.T) {
		bus := NewBus()
		ch, unsub := bus.Subscribe(1)
		defer unsub()

		bus.Publish(PairingCode{BotID: "b1", Code: "1"})
		bus.Publish(PairingCode{BotID: "b1", Code: "2"})

		if got := (<-ch).(PairingCode).Code; got != "1" {
			t.Errorf("expected first code kept, got %s", got)
		}
		select {
		case evt := <-ch:
			t.Errorf("expected second event dropped, got %+v", evt)
		default:
		}
	})

	t.Run("unsubscribe closes", func(t *testing.T) {
		bus := NewBus()
		ch, unsub := bus.Subscribe(1)
		unsub()
		unsub()
		if _, ok := <-ch; ok {
			t.Error("expected closed channel")
		}
		bus.Publish(StatusChanged{BotID: "b1"})
	})
}

func TestQR(t *testing.T) {
	url, err := QRDataURL("2@abc,def,ghi")
	if err != nil {
		t.Fatalf("QRDataURL failed: %v", err)
	}
	if !strings.HasPrefix(url, "data:image/png;base64,") {
		t.Errorf("unexpected data url prefix: %.40s", url)
	}

	var buf bytes.Buffer
	if err := RenderTerminal(&buf, "b1", "2@abc,def,ghi"); err != nil {
		t.Fatalf("RenderTerminal failed: %v", err)
	}
	if !strings.Contains(buf.String(), "b1") || buf.Len() < 100 {
		t.Errorf("expected rendered qr art, got %q", buf.String())
	}
}
