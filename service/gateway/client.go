package gateway

import (
	"time"

	"github.com/gorilla/websocket"

	"bizlink/logger"
)

// Client is one authenticated socket. A user may hold several clients at once
// (multi-tab/device); each keeps its own outbound queue drained by a single
// writer goroutine, so fan-out never blocks on a slow reader.
type Client struct {
	ConnID   string
	UserID   string
	Email    string
	UserType string

	WS   *websocket.Conn
	Send chan []byte
}

func NewClient(connID, userID, email, userType string, ws *websocket.Conn, sendQueueSize int) *Client {
	if sendQueueSize <= 0 {
		sendQueueSize = 256
	}
	return &Client{
		ConnID:   connID,
		UserID:   userID,
		Email:    email,
		UserType: userType,
		WS:       ws,
		Send:     make(chan []byte, sendQueueSize),
	}
}

// Enqueue hands a payload to the writer. A full queue drops the frame rather
// than blocking the caller; the sweeper or read loop will evict clients that
// stay stuck.
func (c *Client) Enqueue(payload []byte) bool {
	select {
	case c.Send <- payload:
		return true
	default:
		logger.Warnf("[gateway] send queue full, dropping frame user=%s conn=%s", c.UserID, c.ConnID)
		return false
	}
}

const (
	writeWait  = 5 * time.Second
	pingPeriod = 25 * time.Second
)

// writePump is the single writer for this socket: outbound frames plus
// keepalive pings. Exits when a write or ping fails; Send itself is never
// closed, the socket going away is the shutdown signal.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.WS.Close()
	}()
	for {
		select {
		case payload := <-c.Send:
			_ = c.WS.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.WS.WriteMessage(websocket.TextMessage, payload); err != nil {
				logger.Infof("[gateway] write err user=%s conn=%s: %v", c.UserID, c.ConnID, err)
				return
			}
		case <-ticker.C:
			if err := c.WS.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
