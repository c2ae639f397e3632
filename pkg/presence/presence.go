// Package presence tracks which users are connected to this process, their
// declared status and their liveness.
//
// The tracker answers only for the local process. A user stays online while
// any of their connections is open. Status changes are written through to
// the user store asynchronously, in order per user; a failed write is logged
// and never blocks the in-memory transition or its broadcast.
package presence

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Aman-Thakur002/Bantr/pkg/event"
	"github.com/Aman-Thakur002/Bantr/pkg/store"
)

// Default timings.
const (
	DefaultPersistInterval = 30 * time.Second
	DefaultStaleAfter      = 60 * time.Second
	defaultWriteTimeout    = 5 * time.Second
)

// Change is the payload of presence:online, presence:status and
// presence:offline.
type Change struct {
	UserID   string       `json:"userId"`
	Status   store.Status `json:"status"`
	LastSeen *time.Time   `json:"lastSeen,omitempty"`
}

// OnlineStatus is one row of a presence:online_status reply.
type OnlineStatus struct {
	UserID   string       `json:"userId"`
	IsOnline bool         `json:"isOnline"`
	Status   store.Status `json:"status"`
	LastSeen *time.Time   `json:"lastSeen"`
}

type entry struct {
	status      store.Status
	lastSeen    time.Time
	lastPersist time.Time
	conns       map[string]struct{}
}

func newEntry(connID string) *entry {
	return &entry{conns: map[string]struct{}{connID: {}}}
}

// writeJob is one pending store write.
type writeJob struct {
	what string
	fn   func(ctx context.Context) error
}

// Config configures a Tracker.
type Config struct {
	Store   store.UserStore
	Emitter event.Emitter

	// PersistInterval throttles heartbeat write-through per user. Default: 30s.
	PersistInterval time.Duration

	// StaleAfter is how long an entry may go without a heartbeat before the
	// sweep marks it offline. Default: 60s.
	StaleAfter time.Duration

	// WriteTimeout bounds each asynchronous store write. Default: 5s.
	WriteTimeout time.Duration

	Now    func() time.Time
	Logger *slog.Logger
}

// Tracker is the in-memory presence map. It is safe for concurrent use.
type Tracker struct {
	mu      sync.Mutex
	entries map[string]*entry

	store           store.UserStore
	emitter         event.Emitter
	persistInterval time.Duration
	staleAfter      time.Duration
	writeTimeout    time.Duration
	now             func() time.Time
	logger          *slog.Logger

	// queues holds pending writes per user while a drain for that user is
	// running; a user key is present exactly while its drain runs.
	writes  sync.WaitGroup
	wmu     sync.Mutex
	queues  map[string][]writeJob
	closing bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates a Tracker.
func New(cfg Config) *Tracker {
	if cfg.PersistInterval <= 0 {
		cfg.PersistInterval = DefaultPersistInterval
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = DefaultStaleAfter
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Tracker{
		entries:         make(map[string]*entry),
		queues:          make(map[string][]writeJob),
		store:           cfg.Store,
		emitter:         cfg.Emitter,
		persistInterval: cfg.PersistInterval,
		staleAfter:      cfg.StaleAfter,
		writeTimeout:    cfg.WriteTimeout,
		now:             cfg.Now,
		logger:          cfg.Logger,
	}
}

// Connect adds connID to the user's connections, marks the user online and
// announces it to every other session.
func (t *Tracker) Connect(user store.User, connID string) {
	now := t.now()

	t.mu.Lock()
	e, ok := t.entries[user.ID]
	if !ok {
		e = newEntry(connID)
		t.entries[user.ID] = e
	}
	e.conns[connID] = struct{}{}
	e.status = store.StatusOnline
	e.lastSeen = now
	e.lastPersist = now
	t.broadcastAll(event.PresenceOnline, Change{UserID: user.ID, Status: store.StatusOnline}, connID)
	t.mu.Unlock()

	t.persistStatus(user.ID, store.StatusOnline, now)
}

// SetStatus records an explicit status change and announces it to every
// other session.
func (t *Tracker) SetStatus(userID, connID string, status store.Status) {
	now := t.now()

	t.mu.Lock()
	e, ok := t.entries[userID]
	if !ok {
		e = newEntry(connID)
		t.entries[userID] = e
	}
	e.conns[connID] = struct{}{}
	e.status = status
	e.lastSeen = now
	e.lastPersist = now
	t.broadcastAll(event.PresenceStatus, Change{UserID: userID, Status: status}, connID)
	t.mu.Unlock()

	t.persistStatus(userID, status, now)
}

// Heartbeat refreshes lastSeen. The store is written at most once per
// PersistInterval per user. A heartbeat from a connection whose entry was
// already swept brings the user back online.
func (t *Tracker) Heartbeat(userID, connID string) {
	now := t.now()

	t.mu.Lock()
	e, ok := t.entries[userID]
	if !ok {
		e = newEntry(connID)
		e.status = store.StatusOnline
		t.entries[userID] = e
		t.broadcastAll(event.PresenceOnline, Change{UserID: userID, Status: store.StatusOnline}, connID)
	}
	e.conns[connID] = struct{}{}
	e.lastSeen = now
	persist := now.Sub(e.lastPersist) >= t.persistInterval
	if persist {
		e.lastPersist = now
	}
	revived := !ok
	t.mu.Unlock()

	switch {
	case revived:
		t.persistStatus(userID, store.StatusOnline, now)
	case persist:
		t.persistLastSeen(userID, now)
	}
}

// Disconnect drops connID from the user's connections. When it was the last
// one the entry is released and the user announced offline. It reports
// whether the user went offline.
func (t *Tracker) Disconnect(userID, connID string) bool {
	now := t.now()

	t.mu.Lock()
	e, ok := t.entries[userID]
	if !ok {
		t.mu.Unlock()
		return false
	}
	if _, owned := e.conns[connID]; !owned {
		t.mu.Unlock()
		return false
	}
	delete(e.conns, connID)
	if len(e.conns) > 0 {
		t.mu.Unlock()
		return false
	}
	delete(t.entries, userID)
	t.broadcastAll(event.PresenceOffline, Change{UserID: userID, Status: store.StatusOffline, LastSeen: &now}, connID)
	t.mu.Unlock()

	t.persistStatus(userID, store.StatusOffline, now)
	return true
}

// Sweep marks every entry whose lastSeen is older than StaleAfter offline,
// broadcasting once per entry to everyone. It returns how many were swept.
func (t *Tracker) Sweep(now time.Time) int {
	type stale struct {
		userID   string
		lastSeen time.Time
	}
	var swept []stale

	t.mu.Lock()
	for id, e := range t.entries {
		if now.Sub(e.lastSeen) <= t.staleAfter {
			continue
		}
		lastSeen := e.lastSeen
		delete(t.entries, id)
		t.broadcastAll(event.PresenceOffline, Change{UserID: id, Status: store.StatusOffline, LastSeen: &lastSeen}, "")
		swept = append(swept, stale{userID: id, lastSeen: lastSeen})
	}
	t.mu.Unlock()

	for _, s := range swept {
		t.persistStatus(s.userID, store.StatusOffline, s.lastSeen)
	}
	return len(swept)
}

// GetOnline answers from local memory only, in the order of userIDs.
func (t *Tracker) GetOnline(userIDs []string) []OnlineStatus {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]OnlineStatus, 0, len(userIDs))
	for _, id := range userIDs {
		e, ok := t.entries[id]
		if !ok {
			out = append(out, OnlineStatus{UserID: id, Status: store.StatusOffline})
			continue
		}
		lastSeen := e.lastSeen
		out = append(out, OnlineStatus{UserID: id, IsOnline: true, Status: e.status, LastSeen: &lastSeen})
	}
	return out
}

// Count returns the number of tracked users.
func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// StartSweepRoutine runs Sweep on every tick until Close is called.
func (t *Tracker) StartSweepRoutine(interval time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	t.done = make(chan struct{})

	go func() {
		defer close(t.done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := t.Sweep(t.now()); n > 0 {
					t.logger.Info("marked stale users offline", "count", n)
				}
			}
		}
	}()
}

// Close stops the sweep goroutine and waits for pending store writes.
func (t *Tracker) Close() error {
	if t.cancel != nil {
		t.cancel()
		<-t.done
		t.cancel = nil
	}
	t.wmu.Lock()
	t.closing = true
	t.wmu.Unlock()
	t.writes.Wait()
	return nil
}

func (t *Tracker) broadcastAll(name string, c Change, exceptConn string) {
	if t.emitter == nil {
		return
	}
	t.emitter.ToAll(event.New(name, c), exceptConn)
}

func (t *Tracker) persistStatus(userID string, status store.Status, at time.Time) {
	t.write(userID, "status", func(ctx context.Context) error {
		return t.store.UpdateStatus(ctx, userID, status, at)
	})
}

func (t *Tracker) persistLastSeen(userID string, at time.Time) {
	t.write(userID, "last_seen", func(ctx context.Context) error {
		return t.store.UpdateLastSeen(ctx, userID, at)
	})
}

// write queues fn behind any pending write for the same user, so each
// user's writes reach the store in the order they were made. After Close,
// a write with nothing pending runs inline so late disconnects are still
// persisted.
func (t *Tracker) write(userID, what string, fn func(ctx context.Context) error) {
	if t.store == nil {
		return
	}
	job := writeJob{what: what, fn: fn}

	t.wmu.Lock()
	if pending, running := t.queues[userID]; running {
		t.queues[userID] = append(pending, job)
		t.wmu.Unlock()
		return
	}
	t.queues[userID] = nil
	if t.closing {
		t.wmu.Unlock()
		t.drain(userID, job)
		return
	}
	t.writes.Add(1)
	t.wmu.Unlock()

	go func() {
		defer t.writes.Done()
		t.drain(userID, job)
	}()
}

// drain runs job and then every write queued for userID behind it.
func (t *Tracker) drain(userID string, job writeJob) {
	for {
		t.run(userID, job)

		t.wmu.Lock()
		pending := t.queues[userID]
		if len(pending) == 0 {
			delete(t.queues, userID)
			t.wmu.Unlock()
			return
		}
		job = pending[0]
		t.queues[userID] = pending[1:]
		t.wmu.Unlock()
	}
}

func (t *Tracker) run(userID string, job writeJob) {
	ctx, cancel := context.WithTimeout(context.Background(), t.writeTimeout)
	defer cancel()
	if err := job.fn(ctx); err != nil {
		t.logger.Warn("failed to persist presence", "user_id", userID, "field", job.what, "error", err)
	}
}
