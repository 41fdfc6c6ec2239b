package handlers

import (
	"bizlink/service/gateway"
)

type GetOnlineUsersHandler struct{}

func (h *GetOnlineUsersHandler) Event() string { return gateway.EvtGetOnlineUsers }
func (h *GetOnlineUsersHandler) Handle(ctx *gateway.Context, _ *gateway.Frame, c *gateway.Client) error {
	users := ctx.S.Reg().OnlineUsers()
	c.Enqueue(gateway.BuildFrame(gateway.EvtOnlineUsers, users))
	return nil
}

// RegisterAll wires every event handler into the dispatcher.
func RegisterAll(d *gateway.Dispatcher) {
	d.Register(&JoinConversationHandler{})
	d.Register(&SendMessageHandler{})
	d.Register(&MarkMessagesReadHandler{})
	d.Register(NewTypingStartHandler())
	d.Register(NewTypingStopHandler())
	d.Register(&GetOnlineUsersHandler{})
	d.Register(&SendNotificationHandler{})
	d.Register(&ConnectionRequestHandler{})
	d.Register(&OpportunityNotificationHandler{})
	d.Register(&MarkNotificationReadHandler{})
	d.Register(&GetNotificationsHandler{})
}
