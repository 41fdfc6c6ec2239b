package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"bizlink/logger"
	"bizlink/service/storage"
	"bizlink/tools/errs"
	"bizlink/tools/safe"
)

// NotificationInput is what callers provide; the fan-out assigns id,
// timestamp and read state.
type NotificationInput struct {
	Title      string         `json:"title"`
	Message    string         `json:"message"`
	Type       string         `json:"type"`
	Payload    map[string]any `json:"payload,omitempty"`
	FromUserID string         `json:"fromUserId,omitempty"`
}

// NotificationFanout delivers notifications to one recipient, a list, or
// every connected client. Persistence is best-effort per recipient; a failed
// write never stops live delivery or the remaining recipients.
type NotificationFanout struct {
	reg    *ConnManager
	fanout *Fanout
	store  storage.NotificationStore // nil runs live-only
	health *storage.Health
	relay  Relay // nil runs standalone
	clock  func() time.Time
}

func NewNotificationFanout(reg *ConnManager, fanout *Fanout, store storage.NotificationStore, health *storage.Health, relay Relay) *NotificationFanout {
	return &NotificationFanout{reg: reg, fanout: fanout, store: store, health: health, relay: relay, clock: time.Now}
}

// Notify builds the record, persists best-effort, emits new_notification to
// the recipient's personal room, and returns the record regardless of the
// persistence outcome so callers can still confirm locally.
func (n *NotificationFanout) Notify(recipientID string, in NotificationInput) (*storage.Notification, error) {
	if recipientID == "" {
		return nil, errs.ErrBadPayload.WithDetail("targetUserId is required")
	}
	if in.Type == "" {
		in.Type = "general"
	}

	rec := &storage.Notification{
		ID:          uuid.NewString(),
		RecipientID: recipientID,
		Title:       in.Title,
		Message:     in.Message,
		Type:        in.Type,
		Payload:     in.Payload,
		CreatedAt:   n.clock(),
		FromUserID:  in.FromUserID,
	}

	n.persist(rec)

	payload := BuildFrame(EvtNewNotification, rec)
	n.reg.SendToUser(recipientID, payload)
	if n.relay != nil {
		n.relay.PublishUser(recipientID, payload)
	}
	return rec, nil
}

// NotifyMany delivers to each recipient in turn; one failure does not abort
// the rest.
func (n *NotificationFanout) NotifyMany(recipientIDs []string, in NotificationInput) []*storage.Notification {
	out := make([]*storage.Notification, 0, len(recipientIDs))
	for _, id := range recipientIDs {
		rec, err := n.Notify(id, in)
		if err != nil {
			logger.Warnf("[notifier] skip recipient=%q: %v", id, err)
			continue
		}
		out = append(out, rec)
	}
	return out
}

// Broadcast emits to every connected client on this gateway (via the worker
// pool) and relays to sibling gateways. System-wide announcements are not
// attributed to a single recipient row, so nothing is persisted.
func (n *NotificationFanout) Broadcast(in NotificationInput) *storage.Notification {
	if in.Type == "" {
		in.Type = "general"
	}
	rec := &storage.Notification{
		ID:         uuid.NewString(),
		Title:      in.Title,
		Message:    in.Message,
		Type:       in.Type,
		Payload:    in.Payload,
		CreatedAt:  n.clock(),
		FromUserID: in.FromUserID,
	}
	payload := BuildFrame(EvtNewNotification, rec)
	n.fanout.Broadcast(n.reg.AllClients(), payload)
	if n.relay != nil {
		n.relay.PublishBroadcast(payload)
	}
	return rec
}

// MarkRead flips read best-effort. Idempotent: re-marking an already-read id
// is a no-op.
func (n *NotificationFanout) MarkRead(recipientID, notificationID string) error {
	if notificationID == "" {
		return errs.ErrBadPayload.WithDetail("notificationId is required")
	}
	if n.store == nil {
		return nil
	}
	safe.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := n.store.MarkNotificationRead(ctx, recipientID, notificationID); err != nil {
			n.health.MarkDown(err)
			logger.Warnf("[notifier] mark read not persisted id=%s: %v", notificationID, err)
			return
		}
		n.health.MarkUp()
	})
	return nil
}

// List pages a recipient's notifications. In degraded mode (no store, or the
// store errors) it answers an empty page flagged degraded instead of failing.
func (n *NotificationFanout) List(ctx context.Context, recipientID string, q storage.NotificationQuery) (*storage.NotificationPage, bool) {
	if n.store == nil {
		return &storage.NotificationPage{Items: []storage.Notification{}}, true
	}
	page, err := n.store.ListNotifications(ctx, recipientID, q)
	if err != nil {
		n.health.MarkDown(err)
		logger.Warnf("[notifier] list failed recipient=%s: %v", recipientID, err)
		return &storage.NotificationPage{Items: []storage.Notification{}}, true
	}
	n.health.MarkUp()
	return page, false
}

// ===== derived convenience notifications =====

// ConnectionRequest is the profile-connect specialization of Notify.
func (n *NotificationFanout) ConnectionRequest(fromID, fromName, targetID string) (*storage.Notification, error) {
	who := fromName
	if who == "" {
		who = "Someone"
	}
	return n.Notify(targetID, NotificationInput{
		Title:      "New connection request",
		Message:    fmt.Sprintf("%s wants to connect with you", who),
		Type:       "connection_request",
		Payload:    map[string]any{"fromUserId": fromID},
		FromUserID: fromID,
	})
}

// opportunityText maps an opportunity action to its notification copy.
var opportunityText = map[string]struct{ title, message string }{
	"apply":  {"New application", "Someone applied to your opportunity"},
	"accept": {"Application accepted", "Your application was accepted"},
	"reject": {"Application update", "Your application was not selected"},
}

// OpportunityUpdate is the opportunity-workflow specialization of Notify.
func (n *NotificationFanout) OpportunityUpdate(fromID, targetID, opportunityID, action string) (*storage.Notification, error) {
	txt, ok := opportunityText[action]
	if !ok {
		return nil, errs.ErrBadPayload.WithDetail("unknown action: " + action)
	}
	return n.Notify(targetID, NotificationInput{
		Title:      txt.title,
		Message:    txt.message,
		Type:       "opportunity",
		Payload:    map[string]any{"opportunityId": opportunityID, "action": action},
		FromUserID: fromID,
	})
}

func (n *NotificationFanout) persist(rec *storage.Notification) {
	if n.store == nil {
		return
	}
	safe.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := n.store.InsertNotification(ctx, rec); err != nil {
			n.health.MarkDown(err)
			logger.Warnf("[notifier] notification not persisted id=%s: %v", rec.ID, err)
			return
		}
		n.health.MarkUp()
	})
}
