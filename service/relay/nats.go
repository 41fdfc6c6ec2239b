// Package relay bridges gateway nodes over NATS core pub/sub: personal-room
// emissions and broadcasts published on one node get delivered to the
// connections held by every other node. A gateway without a relay runs
// standalone, the rest of the system unchanged.
package relay

import (
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"bizlink/logger"
)

const (
	userSubjectPrefix = "rt.user."
	broadcastSubject  = "rt.broadcast"
)

// LocalDeliverer is the gateway-side delivery surface for relayed frames.
type LocalDeliverer interface {
	DeliverLocalUser(userID string, payload []byte)
	DeliverLocalBroadcast(payload []byte)
}

type Relay struct {
	nc   *nats.Conn
	subs []*nats.Subscription
}

// Connect dials NATS. NoEcho keeps a node from re-delivering its own
// publishes to itself.
func Connect(url, gatewayID string) (*Relay, error) {
	nc, err := nats.Connect(url,
		nats.Name("bizlink-gateway-"+gatewayID),
		nats.NoEcho(),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warnf("[relay] nats disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Infof("[relay] nats reconnected: %s", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, err
	}
	return &Relay{nc: nc}, nil
}

// Start subscribes to sibling-gateway traffic and feeds it into d.
func (r *Relay) Start(d LocalDeliverer) error {
	userSub, err := r.nc.Subscribe(userSubjectPrefix+"*", func(m *nats.Msg) {
		userID := strings.TrimPrefix(m.Subject, userSubjectPrefix)
		if userID == "" {
			return
		}
		d.DeliverLocalUser(userID, m.Data)
	})
	if err != nil {
		return err
	}
	r.subs = append(r.subs, userSub)

	bcastSub, err := r.nc.Subscribe(broadcastSubject, func(m *nats.Msg) {
		d.DeliverLocalBroadcast(m.Data)
	})
	if err != nil {
		return err
	}
	r.subs = append(r.subs, bcastSub)
	return nil
}

// PublishUser forwards a personal-room frame; best-effort, the local delivery
// already happened.
func (r *Relay) PublishUser(userID string, payload []byte) {
	if err := r.nc.Publish(userSubjectPrefix+userID, payload); err != nil {
		logger.Warnf("[relay] publish user=%s failed: %v", userID, err)
	}
}

func (r *Relay) PublishBroadcast(payload []byte) {
	if err := r.nc.Publish(broadcastSubject, payload); err != nil {
		logger.Warnf("[relay] publish broadcast failed: %v", err)
	}
}

func (r *Relay) Close() {
	for _, s := range r.subs {
		_ = s.Unsubscribe()
	}
	if err := r.nc.Drain(); err != nil {
		r.nc.Close()
	}
}
