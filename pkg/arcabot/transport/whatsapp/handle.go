package whatsapp

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"go.mau.fi/whatsmeow"
	waE2E "go.mau.fi/whatsmeow/proto/waE2E"
	"google.golang.org/protobuf/proto"

	"github.com/victorbta777-del/arcabot-flow/pkg/arcabot/transport"
)

// handle is one bot's whatsmeow connection.
type handle struct {
	botID  string
	client *whatsmeow.Client
	logger *slog.Logger

	events chan transport.Event

	// ctx is cancelled by Close and unblocks pending emits.
	ctx    context.Context
	cancel context.CancelFunc

	// mu guards closed and the send side of events.
	mu     sync.Mutex
	closed bool

	isClosed  atomic.Bool
	closeSent atomic.Bool
	closeOnce sync.Once
}

func newHandle(botID string, buffer int, logger *slog.Logger) *handle {
	ctx, cancel := context.WithCancel(context.Background())
	return &handle{
		botID:  botID,
		logger: logger.With("bot", botID),
		events: make(chan transport.Event, buffer),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (h *handle) Events() <-chan transport.Event {
	return h.events
}

// emit delivers evt unless the handle is closed. It blocks while the
// buffer is full so lifecycle events are never dropped.
func (h *handle) emit(evt transport.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	select {
	case h.events <- evt:
	case <-h.ctx.Done():
	}
}

// emitClose reports the first close of this connection only.
func (h *handle) emitClose(terminal bool, reason string) {
	if !h.closeSent.CompareAndSwap(false, true) {
		return
	}
	h.emit(transport.StatusChanged{
		Status:   transport.StatusClosed,
		Terminal: terminal,
		Reason:   reason,
	})
}

func (h *handle) Send(ctx context.Context, address string, content transport.Content) error {
	if h.isClosed.Load() {
		return transport.ErrClosed
	}

	jid, err := parseJID(address)
	if err != nil {
		return fmt.Errorf("invalid JID %q: %w", address, err)
	}

	msg, err := h.buildMessage(ctx, content)
	if err != nil {
		return err
	}

	if _, err := h.client.SendMessage(ctx, jid, msg); err != nil {
		return fmt.Errorf("sending message: %w", err)
	}
	return nil
}

func (h *handle) buildMessage(ctx context.Context, content transport.Content) (*waE2E.Message, error) {
	doc := content.Document
	if doc == nil {
		return &waE2E.Message{Conversation: proto.String(content.Text)}, nil
	}

	resp, err := h.client.Upload(ctx, doc.Data, whatsmeow.MediaDocument)
	if err != nil {
		return nil, fmt.Errorf("uploading document: %w", err)
	}

	docMsg := &waE2E.DocumentMessage{
		URL:           proto.String(resp.URL),
		DirectPath:    proto.String(resp.DirectPath),
		MediaKey:      resp.MediaKey,
		Mimetype:      proto.String(doc.MimeType),
		FileEncSHA256: resp.FileEncSHA256,
		FileSHA256:    resp.FileSHA256,
		FileLength:    proto.Uint64(resp.FileLength),
		FileName:      proto.String(doc.FileName),
		Title:         proto.String(doc.FileName),
	}
	if doc.Caption != "" {
		docMsg.Caption = proto.String(doc.Caption)
	}
	return &waE2E.Message{DocumentMessage: docMsg}, nil
}

// Logout unlinks the device. A device that never paired has nothing to
// unlink.
func (h *handle) Logout(ctx context.Context) error {
	if h.isClosed.Load() {
		return transport.ErrClosed
	}
	if h.client == nil || h.client.Store == nil || h.client.Store.ID == nil {
		return nil
	}
	if err := h.client.Logout(ctx); err != nil {
		return fmt.Errorf("logging out: %w", err)
	}
	return nil
}

func (h *handle) Close() error {
	h.closeOnce.Do(func() {
		h.isClosed.Store(true)
		h.cancel()
		if h.client != nil {
			h.client.Disconnect()
		}

		h.mu.Lock()
		h.closed = true
		close(h.events)
		h.mu.Unlock()

		h.logger.Debug("whatsapp: handle closed")
	})
	return nil
}

func (h *handle) AccountID() string {
	if h.client == nil || h.client.Store == nil || h.client.Store.ID == nil {
		return ""
	}
	return h.client.Store.ID.User
}

// watchQR forwards pairing codes until the QR channel closes. An expired
// or failed pairing is reported as a non-terminal close so the manager
// reconnects and a fresh code is issued.
func (h *handle) watchQR(qrChan <-chan whatsmeow.QRChannelItem) {
	for item := range qrChan {
		switch item.Event {
		case "code":
			h.logger.Info("whatsapp: pairing code ready")
			h.emit(transport.PairingCode{Code: item.Code})
		case "success":
			h.logger.Info("whatsapp: pairing successful")
		case "timeout":
			h.logger.Warn("whatsapp: pairing code expired")
			h.emitClose(false, "pairing timeout")
		default:
			reason := item.Event
			if item.Error != nil {
				reason = item.Error.Error()
			}
			h.logger.Warn("whatsapp: pairing failed", "reason", reason)
			h.emitClose(false, "pairing failed: "+reason)
		}
	}
}
