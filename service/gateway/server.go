package gateway

import (
	"context"
	"errors"
	"time"

	"bizlink/logger"
	"bizlink/service/storage"
	"bizlink/tools/errs"
	"bizlink/tools/safe"
	"bizlink/tools/security"
)

// Relay carries personal-room and broadcast emissions to sibling gateway
// nodes. A nil Relay runs the gateway standalone.
type Relay interface {
	PublishUser(userID string, payload []byte)
	PublishBroadcast(payload []byte)
}

type ServerConf struct {
	GatewayID     string
	JWT           security.Options
	SendQueueSize int
	FanoutWorkers int
	FanoutQueue   int
	Manager       ManagerConf
}

// Server owns the gateway wiring: registry, dispatcher, conversation router,
// notification fan-out, presence mirror and relay. One instance per process,
// built at startup and drained at shutdown.
type Server struct {
	conf ServerConf

	reg      *ConnManager
	disp     *Dispatcher
	fanout   *Fanout
	router   *ConversationRouter
	notifier *NotificationFanout
	health   *storage.Health
	mirror   *storage.PresenceMirror
	relay    Relay
}

// Stores is the slice of the external store the gateway consumes. Either
// field may be nil: the gateway then serves that concern live-only.
type Stores struct {
	Messages      storage.MessageStore
	Notifications storage.NotificationStore
}

func NewServer(conf ServerConf, stores Stores, mirror *storage.PresenceMirror, relay Relay) *Server {
	health := storage.NewHealth()
	reg := NewConnManager(conf.Manager, conf.GatewayID)
	fanout := NewFanout(conf.FanoutWorkers, conf.FanoutQueue)

	s := &Server{
		conf:     conf,
		reg:      reg,
		disp:     NewDispatcher(),
		fanout:   fanout,
		router:   NewConversationRouter(reg, stores.Messages, health, relay),
		notifier: NewNotificationFanout(reg, fanout, stores.Notifications, health, relay),
		health:   health,
		mirror:   mirror,
		relay:    relay,
	}
	return s
}

func (s *Server) Reg() *ConnManager             { return s.reg }
func (s *Server) Disp() *Dispatcher             { return s.disp }
func (s *Server) Router() *ConversationRouter   { return s.router }
func (s *Server) Notifier() *NotificationFanout { return s.notifier }
func (s *Server) Health() *storage.Health       { return s.health }

// Close drains the gateway: every socket closed, pools stopped.
func (s *Server) Close() {
	s.reg.Close()
	s.fanout.Close()
}

// Authenticate validates a handshake bearer token. The two failure modes stay
// distinct so clients can tell retry-worthy (refresh, reconnect) from fatal.
func (s *Server) Authenticate(token string) (*security.Claims, *errs.CodeError) {
	if token == "" {
		return nil, errs.ErrNoToken
	}
	claims, err := security.Verify(s.conf.JWT, token)
	if err != nil {
		// An expired access token on handshake is still "invalid" for this
		// connection attempt; the client refreshes over HTTP and reconnects.
		return nil, errs.ErrInvalidToken
	}
	if claims.Kind != "access" {
		return nil, errs.ErrInvalidToken
	}
	return claims, nil
}

// onConnect registers the client and mirrors presence best-effort.
func (s *Server) onConnect(c *Client) {
	first := s.reg.Add(c)
	if first {
		s.mirrorOnline(c.UserID)
	}
	c.Enqueue(BuildFrame(EvtConnected, map[string]any{
		"connId":     c.ConnID,
		"userId":     c.UserID,
		"serverTime": time.Now().UnixMilli(),
	}))
	logger.Infof("[gateway] connected user=%s conn=%s first=%v", c.UserID, c.ConnID, first)
}

// onDisconnect drops the connection; only the user's last connection going
// away broadcasts user_offline.
func (s *Server) onDisconnect(connID string) {
	userID, offline := s.reg.Remove(connID)
	if userID == "" {
		return
	}
	logger.Infof("[gateway] disconnected user=%s conn=%s offline=%v", userID, connID, offline)
	if !offline {
		return
	}
	s.mirrorOffline(userID)
	payload := BuildFrame(EvtUserOffline, map[string]any{"userId": userID})
	s.fanout.Broadcast(s.reg.AllClients(), payload)
	if s.relay != nil {
		s.relay.PublishBroadcast(payload)
	}
}

// DeliverLocalUser hands a relayed frame to the user's local connections.
// Implements the relay's delivery side.
func (s *Server) DeliverLocalUser(userID string, payload []byte) {
	s.reg.SendToUser(userID, payload)
}

// DeliverLocalBroadcast fans a relayed frame out to every local connection.
func (s *Server) DeliverLocalBroadcast(payload []byte) {
	s.fanout.Broadcast(s.reg.AllClients(), payload)
}

func (s *Server) mirrorOnline(userID string) {
	if s.mirror == nil {
		return
	}
	safe.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := s.mirror.Online(ctx, userID); err != nil {
			logger.Warnf("[gateway] presence mirror online failed user=%s: %v", userID, err)
		}
	})
}

// heartbeat renews the connection TTL and keeps the mirrored presence entry
// from expiring.
func (s *Server) heartbeat(c *Client) {
	s.reg.Heartbeat(c.ConnID)
	if s.mirror == nil {
		return
	}
	userID := c.UserID
	safe.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := s.mirror.Refresh(ctx, userID); err != nil {
			logger.Warnf("[gateway] presence mirror refresh failed user=%s: %v", userID, err)
		}
	})
}

func (s *Server) mirrorOffline(userID string) {
	if s.mirror == nil {
		return
	}
	safe.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := s.mirror.Offline(ctx, userID); err != nil {
			logger.Warnf("[gateway] presence mirror offline failed user=%s: %v", userID, err)
		}
	})
}

// dispatchError maps a handler failure to an error frame for the caller.
// Validation and auth failures carry their code; anything else is logged and
// reported generically.
func (s *Server) dispatchError(c *Client, event string, err error) {
	var ce *errs.CodeError
	if errors.As(err, &ce) {
		c.Enqueue(BuildErrorFrame(ce.Code, ce.Error()))
		return
	}
	logger.Errorf("[gateway] handler failed event=%s user=%s: %v", event, c.UserID, err)
	c.Enqueue(BuildErrorFrame(0, "internal error"))
}
