// Package whatsapp implements the transport over whatsmeow, a native Go
// WhatsApp Web client.
//
// Each bot gets its own whatsmeow client and device. Device key material
// lives in whatsmeow's sqlstore tables inside the application database; the
// bot's credential adapter only remembers which device JID belongs to it.
// Reconnects are left to the session manager, so whatsmeow's own
// auto-reconnect is disabled.
package whatsapp

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	waLog "go.mau.fi/whatsmeow/util/log"

	"github.com/victorbta777-del/arcabot-flow/pkg/arcabot/credentials"
	"github.com/victorbta777-del/arcabot-flow/pkg/arcabot/logging"
	"github.com/victorbta777-del/arcabot-flow/pkg/arcabot/transport"
)

// Config holds WhatsApp transport configuration.
type Config struct {
	// DeviceName is shown in the phone's linked devices list.
	DeviceName string `yaml:"device_name"`

	// ReconnectDelay is how long the session manager waits before
	// reconnecting after a non-terminal close.
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`

	// Limit bounds outbound sends per bot.
	Limit transport.LimitConfig `yaml:",inline"`

	// EventBuffer is the capacity of each handle's event channel.
	EventBuffer int `yaml:"event_buffer"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		DeviceName:     "ArcaBot",
		ReconnectDelay: time.Second,
		Limit:          transport.DefaultLimitConfig(),
		EventBuffer:    64,
	}
}

// deviceKey is where a bot's device JID is remembered.
var deviceKey = credentials.Key{Category: credentials.CategoryDevice, ID: "jid"}

// Transport opens whatsmeow connections backed by a shared sqlstore.
type Transport struct {
	cfg       Config
	container *sqlstore.Container
	logger    *slog.Logger
	waLogger  waLog.Logger
}

// New creates the transport over db and upgrades whatsmeow's tables.
// dialect is "sqlite3" or "postgres".
func New(ctx context.Context, db *sql.DB, dialect string, cfg Config, logger *slog.Logger) (*Transport, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 64
	}

	waLogger := logging.Whatsmeow(logger, "whatsmeow")
	container := sqlstore.NewWithDB(db, dialect, waLogger.Sub("store"))
	if err := container.Upgrade(ctx); err != nil {
		return nil, fmt.Errorf("upgrading whatsmeow store: %w", err)
	}

	if cfg.DeviceName != "" {
		store.SetOSInfo(cfg.DeviceName, [3]uint32{1, 0, 0})
	}

	return &Transport{
		cfg:       cfg,
		container: container,
		logger:    logger.With("component", "whatsapp"),
		waLogger:  waLogger,
	}, nil
}

// Connect opens a connection for botID. A bot without a known device
// starts pairing and reports codes as PairingCode events.
func (t *Transport) Connect(ctx context.Context, botID string, creds transport.CredentialStore) (transport.Handle, error) {
	device, err := t.device(ctx, botID, creds)
	if err != nil {
		return nil, fmt.Errorf("getting device: %w", err)
	}

	client := whatsmeow.NewClient(device, t.waLogger.Sub(botID))
	client.EnableAutoReconnect = false

	h := newHandle(botID, t.cfg.EventBuffer, t.logger)
	h.client = client
	client.AddEventHandler(h.handleEvent)

	if client.Store.ID == nil {
		qrChan, err := client.GetQRChannel(h.ctx)
		if err != nil {
			h.Close()
			return nil, fmt.Errorf("getting QR channel: %w", err)
		}
		go h.watchQR(qrChan)
		t.logger.Info("whatsapp: no linked device, pairing required", "bot", botID)
	}

	if err := client.Connect(); err != nil {
		h.Close()
		return nil, fmt.Errorf("connecting: %w", err)
	}

	return transport.Limit(h, t.cfg.Limit), nil
}

// device returns the bot's linked device, or a fresh one when the bot has
// never paired or its device is gone.
func (t *Transport) device(ctx context.Context, botID string, creds transport.CredentialStore) (*store.Device, error) {
	raw, ok, err := creds.Get(ctx, deviceKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		return t.container.NewDevice(), nil
	}

	jid, err := types.ParseJID(string(raw))
	if err != nil {
		t.logger.Warn("whatsapp: invalid stored device jid, pairing again", "bot", botID, "error", err)
		return t.container.NewDevice(), nil
	}

	device, err := t.container.GetDevice(ctx, jid)
	if err != nil {
		return nil, err
	}
	if device == nil {
		t.logger.Warn("whatsapp: stored device not found, pairing again", "bot", botID, "jid", jid.String())
		return t.container.NewDevice(), nil
	}
	return device, nil
}

// ForgetDevice deletes the bot's device rows from whatsmeow's store and
// drops the remembered JID. It does not unlink the device on the phone.
func (t *Transport) ForgetDevice(ctx context.Context, botID string, creds transport.CredentialStore) error {
	raw, ok, err := creds.Get(ctx, deviceKey)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	if jid, err := types.ParseJID(string(raw)); err == nil {
		device, err := t.container.GetDevice(ctx, jid)
		if err != nil {
			return fmt.Errorf("getting device: %w", err)
		}
		if device != nil {
			if err := device.Delete(ctx); err != nil {
				return fmt.Errorf("deleting device: %w", err)
			}
			t.logger.Info("whatsapp: device deleted", "bot", botID, "jid", jid.String())
		}
	}

	return creds.Apply(ctx, []credentials.Update{{Key: deviceKey}})
}
