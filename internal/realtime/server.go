package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"signaling-platform/internal/audit"
	"signaling-platform/internal/auth"
	"signaling-platform/internal/coordinator"
	"signaling-platform/internal/rbac"
	"signaling-platform/pkg/logger"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = (pongWait * 9) / 10
	maxFrame     = 64 << 10
	eventTimeout = 10 * time.Second
)

// Verifier checks a bearer token. *auth.Manager satisfies it.
type Verifier interface {
	Verify(token string, expected auth.TokenType, now time.Time) (auth.Claims, error)
}

// Server upgrades authenticated requests and dispatches inbound events to the coordinator.
type Server struct {
	hub      *Hub
	coord    *coordinator.Coordinator
	verifier Verifier
	upgrader websocket.Upgrader
	log      *slog.Logger
}

func NewServer(hub *Hub, coord *coordinator.Coordinator, verifier Verifier, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		hub:      hub,
		coord:    coord,
		verifier: verifier,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Browser clients are served from other origins; the token is the gate.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log: log.With("component", "realtime"),
	}
}

// Handle serves GET /v1/rtc?token=<jwt>.
func (s *Server) Handle(c *gin.Context) {
	tok := auth.TokenFromRequest(c.Request)
	if tok == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}
	claims, err := s.verifier.Verify(tok, auth.TokenTypeAccess, time.Now())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	ws, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "err", err)
		return
	}

	id := claims.Identity()
	conn := &Conn{
		id:       uuid.NewString(),
		ws:       ws,
		identity: id,
		send:     make(chan []byte, sendBuffer),
		rooms:    map[string]struct{}{},
	}
	conn.log = s.log.With("conn_id", conn.id, "user_id", id.UserID, "role", id.Role)
	if !s.hub.add(conn) {
		_ = ws.Close()
		return
	}

	base := auth.WithIdentity(context.Background(), id)
	base = audit.WithClientIP(base, c.ClientIP())
	base = logger.With(base, conn.log)

	s.hub.join(conn, coordinator.UserRoom(id.Role, id.UserID))
	s.hub.join(conn, coordinator.OrgRoom(id.OrgID))
	go s.writePump(conn)
	conn.log.Info("realtime connected")

	if rbac.Allows(id.Role, rbac.RoleStaff) {
		ctx, cancel := context.WithTimeout(base, eventTimeout)
		if _, err := s.coord.DeliverPending(ctx, id.UserID); err != nil {
			conn.log.Warn("pending delivery failed", "err", err)
		}
		cancel()
	}

	s.readPump(base, conn)
	s.disconnect(base, conn)
}

func (s *Server) readPump(base context.Context, c *Conn) {
	c.ws.SetReadLimit(maxFrame)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug("realtime read failed", "err", err)
			}
			return
		}
		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil || env.Event == "" {
			s.replyTo(c, EventError, "", nil, errMalformed)
			continue
		}
		ctx, cancel := context.WithTimeout(base, eventTimeout)
		s.dispatch(ctx, c, env)
		cancel()
	}
}

func (s *Server) writePump(c *Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()
	for {
		select {
		case frame, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// disconnect leaves every room and marks the user as gone from joined calls.
func (s *Server) disconnect(base context.Context, c *Conn) {
	rooms := s.hub.remove(c)
	ctx, cancel := context.WithTimeout(base, eventTimeout)
	defer cancel()
	for _, room := range rooms {
		callID, ok := strings.CutPrefix(room, "call:")
		if !ok {
			continue
		}
		if err := s.coord.Leave(ctx, callID, c.identity.UserID); err != nil {
			c.log.Debug("leave failed", "call_id", callID, "err", err)
		}
	}
	c.log.Info("realtime disconnected")
}
