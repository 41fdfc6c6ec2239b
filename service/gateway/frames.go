package gateway

import (
	"encoding/json"
	"fmt"
)

// Client -> server events.
const (
	EvtJoinConversation = "join_conversation"
	EvtSendMessage      = "send_message"
	EvtMarkMessagesRead = "mark_messages_read"
	EvtTypingStart      = "typing_start"
	EvtTypingStop       = "typing_stop"
	EvtGetOnlineUsers   = "get_online_users"

	EvtSendNotification      = "send_notification"
	EvtSendConnectionRequest = "send_connection_request"
	EvtSendOpportunityNotif  = "send_opportunity_notification"
	EvtMarkNotificationRead  = "mark_notification_read"
	EvtGetNotifications      = "get_notifications"
)

// Server -> client events.
const (
	EvtConnected          = "connected"
	EvtConversationJoined = "conversation_joined"
	EvtMessageSent        = "message_sent"
	EvtNewMessage         = "new_message"
	EvtMessagesRead       = "messages_read"
	EvtUserTyping         = "user_typing"
	EvtOnlineUsers        = "online_users"
	EvtUserOffline        = "user_offline"

	EvtNotificationSent = "notification_sent"
	EvtNewNotification  = "new_notification"
	EvtNotificationRead = "notification_read"
	EvtNotifications    = "notifications"

	EvtError = "error"
)

// Frame is the wire unit in both directions: a named event plus a free-form
// JSON payload. Handlers decode Data into their typed payload via
// tools/decode.
type Frame struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data,omitempty"`
}

func ParseFrame(raw []byte) (*Frame, error) {
	f := &Frame{}
	if err := json.Unmarshal(raw, f); err != nil {
		return nil, fmt.Errorf("unmarshal frame: %w", err)
	}
	if f.Event == "" {
		return nil, fmt.Errorf("frame missing event")
	}
	return f, nil
}

// BuildFrame encodes an outbound event. data may be any JSON-encodable value;
// marshalling is infallible for the payload types used here, so errors are
// collapsed into an empty-data frame rather than propagated per call site.
func BuildFrame(event string, data any) []byte {
	body := map[string]any{"event": event}
	if data != nil {
		body["data"] = data
	}
	b, err := json.Marshal(body)
	if err != nil {
		b, _ = json.Marshal(map[string]any{"event": event})
	}
	return b
}

func BuildErrorFrame(code int, msg string) []byte {
	return BuildFrame(EvtError, map[string]any{"code": code, "message": msg})
}
