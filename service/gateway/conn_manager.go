package gateway

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"bizlink/logger"
)

// ===== configuration =====

type ManagerConf struct {
	AuthTTL    time.Duration    // connection TTL, renewed by heartbeat
	SweepEvery time.Duration    // sweep interval for expired connections
	Clock      func() time.Time // injectable clock (tests); nil => time.Now
}

func (c *ManagerConf) norm() {
	if c.Clock == nil {
		c.Clock = time.Now
	}
	if c.SweepEvery <= 0 {
		c.SweepEvery = 30 * time.Second
	}
	if c.AuthTTL <= 0 {
		c.AuthTTL = 2 * time.Hour
	}
}

// ===== data structures =====

type connEntry struct {
	client    *Client
	rooms     map[string]struct{}
	createdAt time.Time
	heartbeat time.Time
	expireAt  time.Time
}

// ConnManager is the connection registry: it owns the presence set and room
// membership for every live socket on this gateway. Presence is
// reference-counted per user: online iff at least one connection is
// registered, offline only when the last one goes.
//
// An instance is created at startup and injected into the server; there is no
// package-level registry.
type ConnManager struct {
	mu     sync.RWMutex
	byConn map[string]*connEntry            // primary index: connID -> entry
	byUser map[string]map[string]*connEntry // userID -> connID -> entry
	byRoom map[string]map[string]*connEntry // roomID -> connID -> entry

	conf     ManagerConf
	gwID     string
	stopOnce sync.Once
	stopCh   chan struct{}
}

func NewConnManager(conf ManagerConf, gwID string) *ConnManager {
	conf.norm()
	m := &ConnManager{
		byConn: make(map[string]*connEntry),
		byUser: make(map[string]map[string]*connEntry),
		byRoom: make(map[string]map[string]*connEntry),
		conf:   conf,
		gwID:   gwID,
		stopCh: make(chan struct{}),
	}
	go m.sweeper()
	return m
}

func (m *ConnManager) GwID() string { return m.gwID }

// Close drains the registry: every socket is closed, all indexes cleared.
func (m *ConnManager) Close() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.byConn {
		closeQuiet(e.client.WS)
	}
	m.byConn = map[string]*connEntry{}
	m.byUser = map[string]map[string]*connEntry{}
	m.byRoom = map[string]map[string]*connEntry{}
}

// ===== registration =====

// Add registers an authenticated client and auto-joins its personal room.
// Returns true when this is the user's first live connection (user came
// online).
func (m *ConnManager) Add(c *Client) bool {
	now := m.conf.Clock()
	m.mu.Lock()
	defer m.mu.Unlock()

	e := &connEntry{
		client:    c,
		rooms:     make(map[string]struct{}),
		createdAt: now,
		heartbeat: now,
		expireAt:  now.Add(m.conf.AuthTTL),
	}
	m.byConn[c.ConnID] = e

	mm := m.byUser[c.UserID]
	first := len(mm) == 0
	if mm == nil {
		mm = make(map[string]*connEntry)
		m.byUser[c.UserID] = mm
	}
	mm[c.ConnID] = e

	m.joinRoomLocked(e, PersonalRoom(c.UserID))
	return first
}

// Remove drops a connection. Returns the owning user and whether that user is
// now offline (no remaining connections). Unknown connIDs are a no-op, so
// Remove stays idempotent under racing disconnect paths.
func (m *ConnManager) Remove(connID string) (userID string, offline bool) {
	m.mu.Lock()
	e, ok := m.byConn[connID]
	if !ok {
		m.mu.Unlock()
		return "", false
	}
	delete(m.byConn, connID)
	userID = e.client.UserID

	for room := range e.rooms {
		if rm := m.byRoom[room]; rm != nil {
			delete(rm, connID)
			if len(rm) == 0 {
				delete(m.byRoom, room)
			}
		}
	}

	if mm := m.byUser[userID]; mm != nil {
		delete(mm, connID)
		if len(mm) == 0 {
			delete(m.byUser, userID)
			offline = true
		}
	}
	m.mu.Unlock()

	closeQuiet(e.client.WS)
	return userID, offline
}

// Heartbeat renews a connection's TTL.
func (m *ConnManager) Heartbeat(connID string) {
	now := m.conf.Clock()
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.byConn[connID]; ok {
		e.heartbeat = now
		e.expireAt = now.Add(m.conf.AuthTTL)
	}
}

// ===== rooms =====

// JoinRoom subscribes a connection to a room.
func (m *ConnManager) JoinRoom(connID, room string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.byConn[connID]
	if !ok {
		return false
	}
	m.joinRoomLocked(e, room)
	return true
}

func (m *ConnManager) joinRoomLocked(e *connEntry, room string) {
	e.rooms[room] = struct{}{}
	rm := m.byRoom[room]
	if rm == nil {
		rm = make(map[string]*connEntry)
		m.byRoom[room] = rm
	}
	rm[e.client.ConnID] = e
}

// RoomClients snapshots the members of a room.
func (m *ConnManager) RoomClients(room string) []*Client {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rm := m.byRoom[room]
	if len(rm) == 0 {
		return nil
	}
	out := make([]*Client, 0, len(rm))
	for _, e := range rm {
		out = append(out, e.client)
	}
	return out
}

// ===== delivery =====

// SendToRoom enqueues a payload for every member of a room, excluding
// exceptConnID when set. Returns how many queues accepted the frame.
func (m *ConnManager) SendToRoom(room string, payload []byte, exceptConnID string) int {
	n := 0
	for _, c := range m.RoomClients(room) {
		if exceptConnID != "" && c.ConnID == exceptConnID {
			continue
		}
		if c.Enqueue(payload) {
			n++
		}
	}
	return n
}

// SendToUser enqueues a payload for all of a user's connections.
func (m *ConnManager) SendToUser(userID string, payload []byte) int {
	m.mu.RLock()
	mm := m.byUser[userID]
	clients := make([]*Client, 0, len(mm))
	for _, e := range mm {
		clients = append(clients, e.client)
	}
	m.mu.RUnlock()

	n := 0
	for _, c := range clients {
		if c.Enqueue(payload) {
			n++
		}
	}
	return n
}

// AllClients snapshots every registered connection.
func (m *ConnManager) AllClients() []*Client {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Client, 0, len(m.byConn))
	for _, e := range m.byConn {
		out = append(out, e.client)
	}
	return out
}

// ===== presence =====

// OnlineUsers snapshots the set of users holding at least one connection.
func (m *ConnManager) OnlineUsers() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.byUser))
	for u := range m.byUser {
		out = append(out, u)
	}
	return out
}

func (m *ConnManager) IsOnline(userID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byUser[userID]) > 0
}

func (m *ConnManager) ConnCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byConn)
}

// ===== sweeper =====

func (m *ConnManager) sweeper() {
	t := time.NewTicker(m.conf.SweepEvery)
	defer t.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case now := <-t.C:
			m.sweepOnce(now)
		}
	}
}

func (m *ConnManager) sweepOnce(now time.Time) {
	m.mu.RLock()
	var expired []*Client
	for _, e := range m.byConn {
		if now.After(e.expireAt) {
			expired = append(expired, e.client)
		}
	}
	m.mu.RUnlock()

	// Only close the socket here; the connection's own read loop observes the
	// close and runs the single disconnect path (Remove + offline broadcast).
	for _, c := range expired {
		logger.Infof("[conn] ttl expired gw=%s user=%s conn=%s", m.gwID, c.UserID, c.ConnID)
		closeQuiet(c.WS)
	}
}

func closeQuiet(c *websocket.Conn) {
	if c != nil {
		_ = c.Close()
	}
}
