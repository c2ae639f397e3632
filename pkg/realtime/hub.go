// Package realtime is the socket side of the live session core: the room hub,
// the connection gateway that authenticates and dispatches events, and the
// websocket transport.
package realtime

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/Aman-Thakur002/Bantr/pkg/event"
	"github.com/Aman-Thakur002/Bantr/pkg/metrics"
)

// DefaultSendBuffer is the per-session outbound queue length.
const DefaultSendBuffer = 256

// Session binds one live connection to one authenticated user for its
// whole lifetime.
type Session struct {
	ID        string
	UserID    string
	Name      string
	AvatarURL string

	send      chan []byte
	closeOnce sync.Once

	// guarded by Hub.mu
	rooms      map[string]struct{}
	registered bool
}

// NewSession creates an unregistered session with a fresh connection id.
func NewSession(userID, name, avatarURL string, buffer int) *Session {
	if buffer <= 0 {
		buffer = DefaultSendBuffer
	}
	return &Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      name,
		AvatarURL: avatarURL,
		send:      make(chan []byte, buffer),
		rooms:     make(map[string]struct{}),
	}
}

// Outbound returns the queue the transport drains. It is closed when the
// session is unregistered.
func (s *Session) Outbound() <-chan []byte {
	return s.send
}

func (s *Session) close() {
	s.closeOnce.Do(func() { close(s.send) })
}

// Hub tracks sessions and room membership and delivers outbound events.
// Delivery never blocks: a session whose queue is full misses the event.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	rooms    map[string]map[string]*Session

	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewHub creates an empty hub. m may be nil.
func NewHub(logger *slog.Logger, m *metrics.Metrics) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		sessions: make(map[string]*Session),
		rooms:    make(map[string]map[string]*Session),
		logger:   logger,
		metrics:  m,
	}
}

// Register adds a session.
func (h *Hub) Register(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions[s.ID] = s
	s.registered = true
}

// Unregister removes a session from every room and closes its queue.
// It is safe to call more than once.
func (h *Hub) Unregister(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unregisterLocked(s)
}

func (h *Hub) unregisterLocked(s *Session) {
	for room := range s.rooms {
		h.leaveLocked(s, room)
	}
	if cur, ok := h.sessions[s.ID]; ok && cur == s {
		delete(h.sessions, s.ID)
	}
	s.registered = false
	s.close()
}

// Join adds s to room. It performs no authorization.
func (h *Hub) Join(s *Session, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !s.registered {
		return
	}
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[string]*Session)
		h.rooms[room] = members
	}
	members[s.ID] = s
	s.rooms[room] = struct{}{}
}

// Leave removes s from room.
func (h *Hub) Leave(s *Session, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(s, room)
}

func (h *Hub) leaveLocked(s *Session, room string) {
	delete(s.rooms, room)
	members, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(members, s.ID)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

// InRoom reports whether s is a member of room.
func (h *Hub) InRoom(s *Session, room string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := s.rooms[room]
	return ok
}

// Count returns the number of registered sessions.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// ToConn implements event.Emitter.
func (h *Hub) ToConn(connID string, ev event.Outbound) {
	frame, ok := h.encode(ev)
	if !ok {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if s, ok := h.sessions[connID]; ok {
		h.enqueue(s, frame, ev.Event)
	}
}

// ToRoom implements event.Emitter.
func (h *Hub) ToRoom(room string, ev event.Outbound, exceptConn string) {
	frame, ok := h.encode(ev)
	if !ok {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, s := range h.rooms[room] {
		if id != exceptConn {
			h.enqueue(s, frame, ev.Event)
		}
	}
}

// ToAll implements event.Emitter.
func (h *Hub) ToAll(ev event.Outbound, exceptConn string) {
	frame, ok := h.encode(ev)
	if !ok {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, s := range h.sessions {
		if id != exceptConn {
			h.enqueue(s, frame, ev.Event)
		}
	}
}

// Close unregisters every session.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range h.sessions {
		h.unregisterLocked(s)
	}
	return nil
}

// enqueue must be called with mu held so the queue cannot be closed
// underneath it.
func (h *Hub) enqueue(s *Session, frame []byte, name string) {
	select {
	case s.send <- frame:
	default:
		h.metrics.Dropped()
		h.logger.Warn("session queue full, dropping event",
			"conn_id", s.ID, "user_id", s.UserID, "event", name)
	}
}

func (h *Hub) encode(ev event.Outbound) ([]byte, bool) {
	frame, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("failed to encode event", "event", ev.Event, "error", err)
		return nil, false
	}
	return frame, true
}

// Verify interface compliance.
var _ event.Emitter = (*Hub)(nil)
