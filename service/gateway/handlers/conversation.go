package handlers

import (
	"bizlink/service/gateway"
	"bizlink/tools/decode"
	"bizlink/tools/errs"
)

type joinConversationPayload struct {
	ContactID string `json:"contactId"`
}

type JoinConversationHandler struct{}

func (h *JoinConversationHandler) Event() string { return gateway.EvtJoinConversation }
func (h *JoinConversationHandler) Handle(ctx *gateway.Context, f *gateway.Frame, c *gateway.Client) error {
	p, err := decode.DecodeMap[joinConversationPayload](f.Data)
	if err != nil || p.ContactID == "" {
		return errs.ErrBadPayload.WithDetail("contactId is required")
	}
	room := gateway.ConversationRoom(c.UserID, p.ContactID)
	ctx.S.Reg().JoinRoom(c.ConnID, room)
	c.Enqueue(gateway.BuildFrame(gateway.EvtConversationJoined, map[string]any{
		"roomId":    room,
		"contactId": p.ContactID,
	}))
	return nil
}

type sendMessagePayload struct {
	ReceiverID  string `json:"receiverId"`
	Content     string `json:"content"`
	MessageType string `json:"messageType"`
}

type SendMessageHandler struct{}

func (h *SendMessageHandler) Event() string { return gateway.EvtSendMessage }
func (h *SendMessageHandler) Handle(ctx *gateway.Context, f *gateway.Frame, c *gateway.Client) error {
	p, err := decode.DecodeMap[sendMessagePayload](f.Data)
	if err != nil {
		return errs.ErrBadPayload.WithDetail(err.Error())
	}
	ack, err := ctx.S.Router().SendMessage(c.UserID, p.ReceiverID, p.Content, p.MessageType)
	if err != nil {
		return err
	}
	c.Enqueue(gateway.BuildFrame(gateway.EvtMessageSent, ack))
	return nil
}

type markMessagesReadPayload struct {
	SenderID string `json:"senderId"`
}

type MarkMessagesReadHandler struct{}

func (h *MarkMessagesReadHandler) Event() string { return gateway.EvtMarkMessagesRead }
func (h *MarkMessagesReadHandler) Handle(ctx *gateway.Context, f *gateway.Frame, c *gateway.Client) error {
	p, err := decode.DecodeMap[markMessagesReadPayload](f.Data)
	if err != nil {
		return errs.ErrBadPayload.WithDetail(err.Error())
	}
	return ctx.S.Router().MarkRead(c.UserID, p.SenderID)
}

type typingPayload struct {
	ReceiverID string `json:"receiverId"`
}

type TypingHandler struct {
	event  string
	typing bool
}

func NewTypingStartHandler() *TypingHandler {
	return &TypingHandler{event: gateway.EvtTypingStart, typing: true}
}

func NewTypingStopHandler() *TypingHandler {
	return &TypingHandler{event: gateway.EvtTypingStop, typing: false}
}

func (h *TypingHandler) Event() string { return h.event }
func (h *TypingHandler) Handle(ctx *gateway.Context, f *gateway.Frame, c *gateway.Client) error {
	p, err := decode.DecodeMap[typingPayload](f.Data)
	if err != nil {
		return errs.ErrBadPayload.WithDetail(err.Error())
	}
	return ctx.S.Router().Typing(c.UserID, p.ReceiverID, h.typing)
}
