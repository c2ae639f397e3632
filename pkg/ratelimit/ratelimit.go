// Package ratelimit provides per-user, per-event fixed-window admission
// control for client-originated socket events.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/Aman-Thakur002/Bantr/pkg/event"
)

// Policy caps an event kind at Max calls per Window.
type Policy struct {
	Max    int           `yaml:"max"`
	Window time.Duration `yaml:"window"`
}

// DefaultPolicies returns the built-in per-event limits. It covers every
// registered inbound event plus event.Unknown, which also serves as the
// fallback for kinds missing from the table.
func DefaultPolicies() map[string]Policy {
	return map[string]Policy{
		event.JoinConversation:  {Max: 20, Window: time.Minute},
		event.LeaveConversation: {Max: 20, Window: time.Minute},
		event.JoinGame:          {Max: 10, Window: time.Minute},
		event.LeaveGame:         {Max: 10, Window: time.Minute},

		event.PresenceStatus:    {Max: 20, Window: time.Minute},
		event.PresenceHeartbeat: {Max: 12, Window: time.Minute},
		event.PresenceGetOnline: {Max: 30, Window: time.Minute},

		event.ChatSend:    {Max: 30, Window: 10 * time.Second},
		event.ChatTyping:  {Max: 60, Window: 10 * time.Second},
		event.ChatRead:    {Max: 120, Window: time.Minute},
		event.ChatReact:   {Max: 60, Window: time.Minute},
		event.ChatUnreact: {Max: 60, Window: time.Minute},
		event.ChatEdit:    {Max: 20, Window: time.Minute},
		event.ChatDelete:  {Max: 20, Window: time.Minute},

		event.GameCreate:    {Max: 10, Window: time.Minute},
		event.GameJoinSeat:  {Max: 10, Window: time.Minute},
		event.GameMove:      {Max: 60, Window: time.Minute},
		event.GameReset:     {Max: 10, Window: time.Minute},
		event.GameGetState:  {Max: 30, Window: time.Minute},
		event.GameJoinRoom:  {Max: 10, Window: time.Minute},
		event.GameLeaveRoom: {Max: 10, Window: time.Minute},
		event.GameInvite:    {Max: 10, Window: time.Minute},

		event.Unknown: {Max: 10, Window: time.Minute},
	}
}

// fallbackPolicy applies when even the event.Unknown entry was overridden
// with an unusable value.
var fallbackPolicy = Policy{Max: 10, Window: time.Minute}

type key struct {
	userID string
	kind   string
}

type window struct {
	count   int
	resetAt time.Time
}

// Limiter counts calls per (user, event kind). It is safe for concurrent use.
type Limiter struct {
	mu       sync.Mutex
	windows  map[key]*window
	policies map[string]Policy
	now      func() time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// WithPolicies merges overrides into the default policy table.
func WithPolicies(p map[string]Policy) Option {
	return func(l *Limiter) {
		for k, v := range p {
			l.policies[k] = v
		}
	}
}

// New creates a Limiter with the default policies.
func New(opts ...Option) *Limiter {
	l := &Limiter{
		windows:  make(map[key]*window),
		policies: DefaultPolicies(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow records a call and reports whether it is within max calls per
// window. A rejected call does not count against the window.
func (l *Limiter) Allow(userID, kind string, limit int, per time.Duration) bool {
	now := l.now()
	k := key{userID: userID, kind: kind}

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[k]
	if !ok || now.After(w.resetAt) {
		l.windows[k] = &window{count: 1, resetAt: now.Add(per)}
		return true
	}
	if w.count >= limit {
		return false
	}
	w.count++
	return true
}

// AllowEvent applies the configured policy for kind. Kinds with no usable
// policy share the event.Unknown window.
func (l *Limiter) AllowEvent(userID, kind string) bool {
	p, kind := l.policy(kind)
	return l.Allow(userID, kind, p.Max, p.Window)
}

func (l *Limiter) policy(kind string) (Policy, string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if p, ok := l.policies[kind]; ok && p.Max > 0 && p.Window > 0 {
		return p, kind
	}
	if p, ok := l.policies[event.Unknown]; ok && p.Max > 0 && p.Window > 0 {
		return p, event.Unknown
	}
	return fallbackPolicy, event.Unknown
}

// Cleanup removes windows that expired before now and returns how many were removed.
func (l *Limiter) Cleanup(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for k, w := range l.windows {
		if now.After(w.resetAt) {
			delete(l.windows, k)
			n++
		}
	}
	return n
}

// Len returns the number of tracked windows.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// StartCleanupRoutine starts a background goroutine that periodically removes
// expired windows. The goroutine is stopped when Close is called.
func (l *Limiter) StartCleanupRoutine(interval time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.done = make(chan struct{})

	go func() {
		defer close(l.done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.Cleanup(l.now())
			}
		}
	}()
}

// Close stops the cleanup goroutine and waits for it to exit.
// It is safe to call Close even if StartCleanupRoutine was never called.
func (l *Limiter) Close() error {
	if l.cancel != nil {
		l.cancel()
		<-l.done
		l.cancel = nil
	}
	return nil
}
