package gateway

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"bizlink/logger"
	"bizlink/tools/ids"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const (
	readLimit = 1 << 20 // 1MB
	pongWait  = 75 * time.Second
)

// HandleWS is the gateway entrypoint: authenticate the handshake, admit the
// connection, then pump frames through the dispatcher until the socket dies.
func (s *Server) HandleWS(c *gin.Context) {
	token := handshakeToken(c)
	claims, aerr := s.Authenticate(token)
	if aerr != nil {
		// Refuse before upgrading; the two codes let the client distinguish
		// missing-token from invalid-token.
		c.AbortWithStatusJSON(http.StatusUnauthorized, aerr)
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Infof("[HandleWS] upgrade failed: %v", err)
		return
	}

	client := NewClient(ids.GenerateString(), claims.UserID, claims.Email, claims.UserType, ws, s.conf.SendQueueSize)
	go client.writePump()

	ws.SetReadLimit(readLimit)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		s.heartbeat(client)
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	s.onConnect(client)
	defer s.onDisconnect(client.ConnID)

	ctx := &Context{S: s}
	for {
		mt, data, rerr := ws.ReadMessage()
		if rerr != nil {
			if websocket.IsCloseError(rerr,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				logger.Infof("[WS] peer closed user=%s conn=%s", client.UserID, client.ConnID)
			} else if ne, ok := rerr.(net.Error); ok && ne.Timeout() {
				logger.Infof("[WS] read timeout user=%s conn=%s", client.UserID, client.ConnID)
			} else {
				logger.Infof("[WS] read err user=%s conn=%s: %v", client.UserID, client.ConnID, rerr)
			}
			return
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}

		frame, perr := ParseFrame(data)
		if perr != nil {
			sample := data
			if len(sample) > 256 {
				sample = sample[:256]
			}
			logger.Infof("[WS] bad frame conn=%s err=%v sample=%q", client.ConnID, perr, sample)
			continue
		}

		if err := s.disp.Dispatch(ctx, frame, client); err != nil {
			s.dispatchError(client, frame.Event, err)
		}
	}
}

// handshakeToken pulls the bearer token from the query string or the
// Authorization header.
func handshakeToken(c *gin.Context) string {
	if t := strings.TrimSpace(c.Query("token")); t != "" {
		return t
	}
	authz := strings.TrimSpace(c.GetHeader("Authorization"))
	if authz != "" && strings.HasPrefix(strings.ToLower(authz), "bearer ") {
		return strings.TrimSpace(authz[len("bearer "):])
	}
	return ""
}
