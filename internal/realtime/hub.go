package realtime

import (
	"log/slog"
	"sync"

	"signaling-platform/internal/auth"

	"github.com/gorilla/websocket"
)

const sendBuffer = 64

// Conn is one websocket connection. Writes go through send and a single
// writer goroutine; a full buffer drops the frame rather than block the emitter.
type Conn struct {
	id       string
	ws       *websocket.Conn
	identity auth.Identity
	send     chan []byte
	log      *slog.Logger

	// rooms is guarded by the hub lock.
	rooms map[string]struct{}
}

// Hub tracks connections by room.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[string]map[*Conn]struct{}
	conns  map[*Conn]struct{}
	closed bool
	log    *slog.Logger
}

func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		rooms: map[string]map[*Conn]struct{}{},
		conns: map[*Conn]struct{}{},
		log:   log.With("component", "realtime"),
	}
}

// Emit sends event to every connection in room and returns how many
// connections accepted the frame into their buffer.
func (h *Hub) Emit(room, event string, payload any) int {
	return h.emit(room, event, payload, nil)
}

// EmitExcept is Emit without the sender.
func (h *Hub) EmitExcept(room, event string, payload any, except *Conn) int {
	return h.emit(room, event, payload, except)
}

func (h *Hub) emit(room, event string, payload any, except *Conn) int {
	frame, err := encode(event, "", payload)
	if err != nil {
		h.log.Error("encode event failed", "event", event, "err", err)
		return 0
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for c := range h.rooms[room] {
		if c == except {
			continue
		}
		if c.enqueue(frame) {
			n++
		}
	}
	return n
}

func (c *Conn) enqueue(frame []byte) bool {
	select {
	case c.send <- frame:
		return true
	default:
		c.log.Warn("send buffer full, frame dropped")
		return false
	}
}

func (h *Hub) add(c *Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.conns[c] = struct{}{}
	return true
}

func (h *Hub) join(c *Conn, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[c]; !ok {
		return
	}
	members := h.rooms[room]
	if members == nil {
		members = map[*Conn]struct{}{}
		h.rooms[room] = members
	}
	members[c] = struct{}{}
	c.rooms[room] = struct{}{}
}

func (h *Hub) inRoom(c *Conn, room string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := c.rooms[room]
	return ok
}

// remove drops c from every room and closes its send channel. It returns the
// rooms c was in.
func (h *Hub) remove(c *Conn) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[c]; !ok {
		return nil
	}
	delete(h.conns, c)
	left := make([]string, 0, len(c.rooms))
	for room := range c.rooms {
		members := h.rooms[room]
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
		left = append(left, room)
	}
	c.rooms = map[string]struct{}{}
	close(c.send)
	return left
}

// Size reports the number of connections in room.
func (h *Hub) Size(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Close disconnects everyone and refuses new connections.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	conns := make([]*Conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()
	for _, c := range conns {
		_ = c.ws.Close()
	}
}
