package whatsapp

import (
	"fmt"
	"strings"

	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"

	"github.com/victorbta777-del/arcabot-flow/pkg/arcabot/credentials"
	"github.com/victorbta777-del/arcabot-flow/pkg/arcabot/transport"
)

// keepAliveLimit is the number of consecutive keep-alive failures after
// which the connection is treated as dead.
const keepAliveLimit = 3

// handleEvent maps whatsmeow events onto transport events.
func (h *handle) handleEvent(rawEvt interface{}) {
	switch evt := rawEvt.(type) {
	case *events.Connected:
		account := h.AccountID()
		h.logger.Info("whatsapp: connected", "account", account)
		h.emit(transport.StatusChanged{Status: transport.StatusOpen, AccountID: account})

	case *events.PairSuccess:
		h.logger.Info("whatsapp: device paired", "jid", evt.ID.String(), "platform", evt.Platform)
		h.emit(transport.CredentialsChanged{Updates: []credentials.Update{
			{Key: deviceKey, Value: []byte(evt.ID.String())},
		}})

	case *events.Disconnected:
		h.logger.Warn("whatsapp: disconnected")
		h.emitClose(false, "disconnected")

	case *events.StreamReplaced:
		h.logger.Warn("whatsapp: stream replaced by another client")
		h.emitClose(false, "stream replaced")

	case *events.KeepAliveTimeout:
		h.logger.Warn("whatsapp: keep-alive timeout", "error_count", evt.ErrorCount)
		if evt.ErrorCount >= keepAliveLimit {
			h.emitClose(false, "keep-alive timeout")
		}

	case *events.TemporaryBan:
		h.logger.Error("whatsapp: temporary ban", "code", evt.Code, "expire", evt.Expire)
		h.emitClose(false, "temporary ban")

	case *events.LoggedOut:
		h.logger.Error("whatsapp: logged out", "reason", evt.Reason.String(), "on_connect", evt.OnConnect)
		h.emitClose(true, "logged out")

	case *events.ConnectFailure:
		terminal := evt.Reason.IsLoggedOut()
		h.logger.Error("whatsapp: connect failure", "reason", evt.Reason.String(), "message", evt.Message, "terminal", terminal)
		h.emitClose(terminal, fmt.Sprintf("connect failure: %s", evt.Reason.String()))

	case *events.Message:
		// Status updates arrive as broadcast chats.
		if evt.Info.Chat.Server == types.BroadcastServer {
			return
		}
		h.emit(transport.MessageReceived{Message: toInbound(evt)})
	}
}

func toInbound(evt *events.Message) transport.InboundMessage {
	return transport.InboundMessage{
		ID:           string(evt.Info.ID),
		Chat:         evt.Info.Chat.String(),
		Sender:       evt.Info.Sender.String(),
		PushName:     evt.Info.PushName,
		FromMe:       evt.Info.IsFromMe,
		IsGroup:      evt.Info.IsGroup,
		Conversation: evt.Message.GetConversation(),
		ExtendedText: evt.Message.GetExtendedTextMessage().GetText(),
		Timestamp:    evt.Info.Timestamp,
	}
}

// parseJID converts an address to a JID. Accepts "5511999999999",
// "5511999999999@s.whatsapp.net" or group ids like "123456789-1234@g.us".
func parseJID(s string) (types.JID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return types.JID{}, fmt.Errorf("empty JID")
	}

	if strings.Contains(s, "@") {
		return types.ParseJID(s)
	}

	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
	if digits == "" {
		return types.JID{}, fmt.Errorf("no digits in %q", s)
	}
	return types.NewJID(digits, types.DefaultUserServer), nil
}
