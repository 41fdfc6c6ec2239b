package gateway

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"bizlink/logger"
	"bizlink/service/storage"
	"bizlink/tools/errs"
	"bizlink/tools/safe"
)

// persistTimeout bounds every best-effort store write issued off the delivery
// path.
const persistTimeout = 3 * time.Second

type MessageAck struct {
	MessageID string    `json:"messageId"`
	Timestamp time.Time `json:"timestamp"`
}

// ConversationRouter delivers chat traffic to the canonical room for a pair
// of participants and to the receiver's personal room, persisting
// asynchronously: a dead store degrades durability, never delivery.
type ConversationRouter struct {
	reg    *ConnManager
	store  storage.MessageStore // nil runs live-only
	health *storage.Health
	relay  Relay // nil runs standalone
	clock  func() time.Time
}

func NewConversationRouter(reg *ConnManager, store storage.MessageStore, health *storage.Health, relay Relay) *ConversationRouter {
	return &ConversationRouter{reg: reg, store: store, health: health, relay: relay, clock: time.Now}
}

// SendMessage validates, persists best-effort, then emits new_message to the
// conversation room and the receiver's personal room. The returned ack goes
// back to the sender only.
func (r *ConversationRouter) SendMessage(senderID, receiverID, content, msgType string) (*MessageAck, error) {
	if receiverID == "" {
		return nil, errs.ErrBadPayload.WithDetail("receiverId is required")
	}
	if strings.TrimSpace(content) == "" {
		return nil, errs.ErrBadPayload.WithDetail("content must not be blank")
	}
	if msgType == "" {
		msgType = "text"
	}

	now := r.clock()
	msg := &storage.Message{
		ID:         uuid.NewString(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    content,
		Type:       msgType,
		CreatedAt:  now,
	}

	r.persistMessage(msg)

	payload := BuildFrame(EvtNewMessage, msg)
	r.reg.SendToRoom(ConversationRoom(senderID, receiverID), payload, "")
	r.reg.SendToUser(receiverID, payload)
	if r.relay != nil {
		r.relay.PublishUser(receiverID, payload)
	}

	return &MessageAck{MessageID: msg.ID, Timestamp: now}, nil
}

// MarkRead flips every unread message from senderID to readerID, best-effort,
// and tells the sender regardless of the store outcome.
func (r *ConversationRouter) MarkRead(readerID, senderID string) error {
	if senderID == "" {
		return errs.ErrBadPayload.WithDetail("senderId is required")
	}
	readAt := r.clock()

	if r.store != nil {
		safe.Go(func() {
			ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
			defer cancel()
			if _, err := r.store.MarkConversationRead(ctx, readerID, senderID, readAt); err != nil {
				r.health.MarkDown(err)
				logger.Warnf("[router] mark read not persisted reader=%s sender=%s: %v", readerID, senderID, err)
			} else {
				r.health.MarkUp()
			}
		})
	}

	payload := BuildFrame(EvtMessagesRead, map[string]any{"readerId": readerID, "readAt": readAt})
	r.reg.SendToUser(senderID, payload)
	if r.relay != nil {
		r.relay.PublishUser(senderID, payload)
	}
	return nil
}

// Typing is pure signaling: no persistence, personal room only.
func (r *ConversationRouter) Typing(fromID, toID string, typing bool) error {
	if toID == "" {
		return errs.ErrBadPayload.WithDetail("receiverId is required")
	}
	payload := BuildFrame(EvtUserTyping, map[string]any{"userId": fromID, "typing": typing})
	r.reg.SendToUser(toID, payload)
	if r.relay != nil {
		r.relay.PublishUser(toID, payload)
	}
	return nil
}

func (r *ConversationRouter) persistMessage(msg *storage.Message) {
	if r.store == nil {
		return
	}
	safe.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := r.store.InsertMessage(ctx, msg); err != nil {
			r.health.MarkDown(err)
			logger.Warnf("[router] message not persisted id=%s: %v", msg.ID, err)
			return
		}
		r.health.MarkUp()
	})
}
