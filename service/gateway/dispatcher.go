package gateway

import (
	"fmt"
)

// Handler processes one client event type.
type Handler interface {
	Event() string
	Handle(ctx *Context, f *Frame, c *Client) error
}

// Context is what handlers get to talk back through.
type Context struct {
	S *Server
}

// Dispatcher routes parsed frames to their handler through a typed table, so
// adding an event means registering exactly one handler for it.
type Dispatcher struct {
	handlers map[string]Handler
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]Handler)}
}

func (d *Dispatcher) Register(h Handler) { d.handlers[h.Event()] = h }

func (d *Dispatcher) Dispatch(ctx *Context, f *Frame, c *Client) error {
	h, ok := d.handlers[f.Event]
	if !ok {
		return fmt.Errorf("no handler for event=%q", f.Event)
	}
	return h.Handle(ctx, f, c)
}

func (d *Dispatcher) Has(event string) bool {
	_, ok := d.handlers[event]
	return ok
}
