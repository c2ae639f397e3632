// Package typing tracks short-lived "user is typing" indicators per
// conversation and expires them from a single deadline queue.
package typing

import (
	"container/heap"
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Aman-Thakur002/Bantr/pkg/event"
)

// Event is the payload of chat:typing broadcasts.
type Event struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	UserName       string `json:"userName"`
	IsTyping       bool   `json:"isTyping"`
}

// Typer identifies who is typing and from which connection.
type Typer struct {
	UserID string
	Name   string
	ConnID string
}

type key struct {
	conversationID string
	userID         string
}

type entry struct {
	key
	name     string
	connID   string
	deadline time.Time
	index    int
}

// deadlineQueue is a min-heap of entries ordered by deadline.
type deadlineQueue []*entry

func (q deadlineQueue) Len() int           { return len(q) }
func (q deadlineQueue) Less(i, j int) bool { return q[i].deadline.Before(q[j].deadline) }
func (q deadlineQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *deadlineQueue) Push(x any) {
	e := x.(*entry)
	e.index = len(*q)
	*q = append(*q, e)
}

func (q *deadlineQueue) Pop() any {
	old := *q
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*q = old[:n-1]
	return e
}

// Config configures a Coordinator.
type Config struct {
	// TTL is how long a typing indicator lives without renewal. Default: 3s.
	TTL     time.Duration
	Emitter event.Emitter
	Now     func() time.Time
	Logger  *slog.Logger
}

const defaultTTL = 3 * time.Second

// Coordinator owns every typing entry. It is safe for concurrent use.
// Broadcasts are issued while holding mu so that a start and its expiry
// reach the room in order; the Emitter must not call back into the
// Coordinator.
type Coordinator struct {
	mu      sync.Mutex
	entries map[key]*entry
	queue   deadlineQueue

	ttl     time.Duration
	emitter event.Emitter
	now     func() time.Time
	logger  *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a Coordinator.
func New(cfg Config) *Coordinator {
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Coordinator{
		entries: make(map[key]*entry),
		ttl:     cfg.TTL,
		emitter: cfg.Emitter,
		now:     cfg.Now,
		logger:  cfg.Logger,
	}
}

// SetTyping echoes isTyping to the conversation room, excluding the sender's
// connection. A true value creates or renews the entry; false removes it.
func (c *Coordinator) SetTyping(conversationID string, who Typer, isTyping bool) {
	k := key{conversationID: conversationID, userID: who.UserID}

	c.mu.Lock()
	if isTyping {
		deadline := c.now().Add(c.ttl)
		if e, ok := c.entries[k]; ok {
			e.deadline = deadline
			e.connID = who.ConnID
			e.name = who.Name
			heap.Fix(&c.queue, e.index)
		} else {
			e := &entry{key: k, name: who.Name, connID: who.ConnID, deadline: deadline}
			c.entries[k] = e
			heap.Push(&c.queue, e)
		}
	} else {
		c.removeLocked(k)
	}

	c.broadcast(Event{
		ConversationID: conversationID,
		UserID:         who.UserID,
		UserName:       who.Name,
		IsTyping:       isTyping,
	}, who.ConnID)
	c.mu.Unlock()
}

// Sweep expires every entry whose deadline is not after now, broadcasting
// isTyping=false once per expired entry. It returns how many expired.
func (c *Coordinator) Sweep(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for c.queue.Len() > 0 && !c.queue[0].deadline.After(now) {
		e := heap.Pop(&c.queue).(*entry)
		delete(c.entries, e.key)
		c.broadcast(stopped(e), e.connID)
		n++
	}
	return n
}

// DisconnectUser removes every entry owned by userID and broadcasts
// isTyping=false to each affected conversation.
func (c *Coordinator) DisconnectUser(userID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	var removed []*entry
	for k, e := range c.entries {
		if k.userID == userID {
			removed = append(removed, e)
		}
	}
	for _, e := range removed {
		c.removeLocked(e.key)
		c.broadcast(stopped(e), e.connID)
	}
	return len(removed)
}

// TypingIn returns the live indicators of a conversation ordered by user
// id, so a late joiner can be told who is already typing.
func (c *Coordinator) TypingIn(conversationID string) []Event {
	c.mu.Lock()
	var out []Event
	for k, e := range c.entries {
		if k.conversationID == conversationID {
			out = append(out, Event{ConversationID: conversationID, UserID: k.userID, UserName: e.name, IsTyping: true})
		}
	}
	c.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// Len returns the number of live entries.
func (c *Coordinator) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// StartSweepRoutine runs Sweep on every tick until Close is called.
func (c *Coordinator) StartSweepRoutine(interval time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})

	go func() {
		defer close(c.done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := c.Sweep(c.now()); n > 0 {
					c.logger.Debug("expired typing indicators", "count", n)
				}
			}
		}
	}()
}

// Close stops the sweep goroutine and waits for it to exit.
func (c *Coordinator) Close() error {
	if c.cancel != nil {
		c.cancel()
		<-c.done
		c.cancel = nil
	}
	return nil
}

func (c *Coordinator) removeLocked(k key) {
	e, ok := c.entries[k]
	if !ok {
		return
	}
	delete(c.entries, k)
	heap.Remove(&c.queue, e.index)
}

func (c *Coordinator) broadcast(ev Event, exceptConn string) {
	if c.emitter == nil {
		return
	}
	c.emitter.ToRoom(event.ConvRoom(ev.ConversationID), event.New(event.ChatTyping, ev), exceptConn)
}

func stopped(e *entry) Event {
	return Event{
		ConversationID: e.conversationID,
		UserID:         e.userID,
		UserName:       e.name,
		IsTyping:       false,
	}
}
