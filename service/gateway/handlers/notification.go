package handlers

import (
	"context"
	"time"

	"bizlink/service/gateway"
	"bizlink/service/storage"
	"bizlink/tools/decode"
	"bizlink/tools/errs"
)

type sendNotificationPayload struct {
	TargetUserID     string         `json:"targetUserId"`
	Title            string         `json:"title"`
	Message          string         `json:"message"`
	Type             string         `json:"type"`
	NotificationData map[string]any `json:"notificationData"`
}

type SendNotificationHandler struct{}

func (h *SendNotificationHandler) Event() string { return gateway.EvtSendNotification }
func (h *SendNotificationHandler) Handle(ctx *gateway.Context, f *gateway.Frame, c *gateway.Client) error {
	p, err := decode.DecodeMap[sendNotificationPayload](f.Data)
	if err != nil {
		return errs.ErrBadPayload.WithDetail(err.Error())
	}
	rec, err := ctx.S.Notifier().Notify(p.TargetUserID, gateway.NotificationInput{
		Title:      p.Title,
		Message:    p.Message,
		Type:       p.Type,
		Payload:    p.NotificationData,
		FromUserID: c.UserID,
	})
	if err != nil {
		return err
	}
	c.Enqueue(gateway.BuildFrame(gateway.EvtNotificationSent, map[string]any{
		"notificationId": rec.ID,
		"timestamp":      rec.CreatedAt,
	}))
	return nil
}

type connectionRequestPayload struct {
	TargetUserID string `json:"targetUserId"`
}

type ConnectionRequestHandler struct{}

func (h *ConnectionRequestHandler) Event() string { return gateway.EvtSendConnectionRequest }
func (h *ConnectionRequestHandler) Handle(ctx *gateway.Context, f *gateway.Frame, c *gateway.Client) error {
	p, err := decode.DecodeMap[connectionRequestPayload](f.Data)
	if err != nil || p.TargetUserID == "" {
		return errs.ErrBadPayload.WithDetail("targetUserId is required")
	}
	_, err = ctx.S.Notifier().ConnectionRequest(c.UserID, c.Email, p.TargetUserID)
	return err
}

type opportunityNotificationPayload struct {
	OpportunityID string `json:"opportunityId"`
	TargetUserID  string `json:"targetUserId"`
	Action        string `json:"action"`
}

type OpportunityNotificationHandler struct{}

func (h *OpportunityNotificationHandler) Event() string { return gateway.EvtSendOpportunityNotif }
func (h *OpportunityNotificationHandler) Handle(ctx *gateway.Context, f *gateway.Frame, c *gateway.Client) error {
	p, err := decode.DecodeMap[opportunityNotificationPayload](f.Data)
	if err != nil {
		return errs.ErrBadPayload.WithDetail(err.Error())
	}
	if p.TargetUserID == "" {
		return errs.ErrBadPayload.WithDetail("targetUserId is required")
	}
	_, err = ctx.S.Notifier().OpportunityUpdate(c.UserID, p.TargetUserID, p.OpportunityID, p.Action)
	return err
}

type markNotificationReadPayload struct {
	NotificationID string `json:"notificationId"`
}

type MarkNotificationReadHandler struct{}

func (h *MarkNotificationReadHandler) Event() string { return gateway.EvtMarkNotificationRead }
func (h *MarkNotificationReadHandler) Handle(ctx *gateway.Context, f *gateway.Frame, c *gateway.Client) error {
	p, err := decode.DecodeMap[markNotificationReadPayload](f.Data)
	if err != nil {
		return errs.ErrBadPayload.WithDetail(err.Error())
	}
	if err := ctx.S.Notifier().MarkRead(c.UserID, p.NotificationID); err != nil {
		return err
	}
	c.Enqueue(gateway.BuildFrame(gateway.EvtNotificationRead, map[string]any{
		"notificationId": p.NotificationID,
	}))
	return nil
}

type getNotificationsPayload struct {
	Limit      int  `json:"limit"`
	Offset     int  `json:"offset"`
	UnreadOnly bool `json:"unreadOnly"`
}

type GetNotificationsHandler struct{}

func (h *GetNotificationsHandler) Event() string { return gateway.EvtGetNotifications }
func (h *GetNotificationsHandler) Handle(ctx *gateway.Context, f *gateway.Frame, c *gateway.Client) error {
	p := &getNotificationsPayload{}
	if f.Data != nil {
		var err error
		p, err = decode.DecodeMap[getNotificationsPayload](f.Data)
		if err != nil {
			return errs.ErrBadPayload.WithDetail(err.Error())
		}
	}

	qctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	page, degraded := ctx.S.Notifier().List(qctx, c.UserID, storage.NotificationQuery{
		Limit:      p.Limit,
		Offset:     p.Offset,
		UnreadOnly: p.UnreadOnly,
	})

	data := map[string]any{
		"notifications": page.Items,
		"total":         page.Total,
		"unreadCount":   page.UnreadCount,
	}
	if degraded {
		data["degraded"] = true
	}
	c.Enqueue(gateway.BuildFrame(gateway.EvtNotifications, data))
	return nil
}
