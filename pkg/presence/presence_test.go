package presence

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-Thakur002/Bantr/pkg/event"
	"github.com/Aman-Thakur002/Bantr/pkg/event/eventtest"
	"github.com/Aman-Thakur002/Bantr/pkg/store"
)

type write struct {
	userID string
	status store.Status // empty for last-seen only writes
	at     time.Time
}

type fakeUsers struct {
	mu     sync.Mutex
	writes []write
	err    error

	// delay, when set, stalls a status write before it is recorded.
	delay func(status store.Status) time.Duration
}

func (f *fakeUsers) GetUser(_ context.Context, id string) (*store.User, error) {
	return &store.User{ID: id}, nil
}

func (f *fakeUsers) UpdateStatus(_ context.Context, id string, status store.Status, at time.Time) error {
	if f.delay != nil {
		time.Sleep(f.delay(status))
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, write{userID: id, status: status, at: at})
	return f.err
}

func (f *fakeUsers) UpdateLastSeen(_ context.Context, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, write{userID: id, at: at})
	return f.err
}

func (f *fakeUsers) all() []write {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]write(nil), f.writes...)
}

type harness struct {
	tracker *Tracker
	rec     *eventtest.Recorder
	users   *fakeUsers
	now     time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		rec:   &eventtest.Recorder{},
		users: &fakeUsers{},
		now:   time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	h.tracker = New(Config{
		Store:   h.users,
		Emitter: h.rec,
		Now:     func() time.Time { return h.now },
	})
	return h
}

// settle waits for background writes so assertions see them.
func (h *harness) settle() {
	h.tracker.writes.Wait()
}

func connections(tr *Tracker, userID string) int {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if e, ok := tr.entries[userID]; ok {
		return len(e.conns)
	}
	return 0
}

func TestConnect(t *testing.T) {
	h := newHarness(t)

	h.tracker.Connect(store.User{ID: "u1", Name: "Ada"}, "c1")
	h.settle()

	online := h.rec.Named(event.PresenceOnline)
	require.Len(t, online, 1)
	assert.Equal(t, eventtest.TargetAll, online[0].Target)
	assert.Equal(t, "c1", online[0].ExceptConn)
	assert.Equal(t, Change{UserID: "u1", Status: store.StatusOnline}, online[0].Event.Data)

	assert.Equal(t, []write{{userID: "u1", status: store.StatusOnline, at: h.now}}, h.users.all())

	assert.Equal(t, 1, connections(h.tracker, "u1"))
	assert.Equal(t, 1, h.tracker.Count())
}

func TestSetStatus(t *testing.T) {
	h := newHarness(t)
	h.tracker.Connect(store.User{ID: "u1"}, "c1")

	h.tracker.SetStatus("u1", "c1", store.StatusAway)
	h.settle()

	got := h.rec.Named(event.PresenceStatus)
	require.Len(t, got, 1)
	assert.Equal(t, Change{UserID: "u1", Status: store.StatusAway}, got[0].Event.Data)
	assert.Equal(t, "c1", got[0].ExceptConn)

	assert.Equal(t, store.StatusAway, h.tracker.GetOnline([]string{"u1"})[0].Status)
	assert.Len(t, h.users.all(), 2)
}

func TestHeartbeat_ThrottlesWrites(t *testing.T) {
	h := newHarness(t)
	h.tracker.Connect(store.User{ID: "u1"}, "c1")
	h.settle()

	h.now = h.now.Add(10 * time.Second)
	h.tracker.Heartbeat("u1", "c1")
	h.now = h.now.Add(10 * time.Second)
	h.tracker.Heartbeat("u1", "c1")
	h.settle()
	assert.Len(t, h.users.all(), 1, "heartbeats inside the interval are not persisted")

	got := h.tracker.GetOnline([]string{"u1"})[0]
	require.NotNil(t, got.LastSeen)
	assert.Equal(t, h.now, *got.LastSeen, "lastSeen is refreshed in memory on every heartbeat")

	h.now = h.now.Add(10 * time.Second)
	h.tracker.Heartbeat("u1", "c1")
	h.settle()

	writes := h.users.all()
	require.Len(t, writes, 2)
	assert.Equal(t, write{userID: "u1", at: h.now}, writes[1])
}

func TestHeartbeat_RevivesSweptUser(t *testing.T) {
	h := newHarness(t)

	h.tracker.Heartbeat("u1", "c1")
	h.settle()

	assert.Len(t, h.rec.Named(event.PresenceOnline), 1)
	assert.Equal(t, 1, h.tracker.Count())
}

func TestDisconnect_LastConnectionReleases(t *testing.T) {
	tests := []struct {
		name        string
		first, last string
	}{
		{name: "older tab closes first", first: "tab-1", last: "tab-2"},
		{name: "newer tab closes first", first: "tab-2", last: "tab-1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.tracker.Connect(store.User{ID: "u1"}, "tab-1")
			h.tracker.Connect(store.User{ID: "u1"}, "tab-2")
			assert.Equal(t, 2, connections(h.tracker, "u1"))

			assert.False(t, h.tracker.Disconnect("u1", tt.first), "another tab is still open")
			assert.Equal(t, 1, h.tracker.Count())
			assert.True(t, h.tracker.GetOnline([]string{"u1"})[0].IsOnline)
			assert.Empty(t, h.rec.Named(event.PresenceOffline))

			assert.True(t, h.tracker.Disconnect("u1", tt.last))
			assert.Equal(t, 0, h.tracker.Count())
			h.settle()

			off := h.rec.Named(event.PresenceOffline)
			require.Len(t, off, 1)
			assert.Equal(t, tt.last, off[0].ExceptConn)

			writes := h.users.all()
			assert.Equal(t, store.StatusOffline, writes[len(writes)-1].status)
		})
	}
}

func TestDisconnect_UnknownConnection(t *testing.T) {
	h := newHarness(t)
	h.tracker.Connect(store.User{ID: "u1"}, "tab-1")

	assert.False(t, h.tracker.Disconnect("u1", "tab-9"))
	assert.False(t, h.tracker.Disconnect("ghost", "tab-1"))
	assert.Equal(t, 1, h.tracker.Count())
}

func TestWrites_OrderedPerUser(t *testing.T) {
	h := newHarness(t)
	h.users.delay = func(status store.Status) time.Duration {
		if status == store.StatusOnline {
			return 30 * time.Millisecond
		}
		return 0
	}

	h.tracker.Connect(store.User{ID: "u1"}, "c1")
	h.tracker.SetStatus("u1", "c1", store.StatusAway)
	h.tracker.Disconnect("u1", "c1")
	require.NoError(t, h.tracker.Close())

	writes := h.users.all()
	require.Len(t, writes, 3)
	assert.Equal(t, []store.Status{store.StatusOnline, store.StatusAway, store.StatusOffline},
		[]store.Status{writes[0].status, writes[1].status, writes[2].status})
}

func TestWrites_AfterCloseRunInline(t *testing.T) {
	h := newHarness(t)
	h.tracker.Connect(store.User{ID: "u1"}, "c1")
	require.NoError(t, h.tracker.Close())

	h.tracker.Disconnect("u1", "c1")

	writes := h.users.all()
	require.Len(t, writes, 2)
	assert.Equal(t, store.StatusOffline, writes[1].status)
}

func TestSweep_StaleUserOfflineExactlyOnce(t *testing.T) {
	h := newHarness(t)
	h.tracker.Connect(store.User{ID: "u1"}, "c1")
	h.tracker.Connect(store.User{ID: "u2"}, "c2")
	connectedAt := h.now

	h.now = h.now.Add(45 * time.Second)
	h.tracker.Heartbeat("u2", "c2")

	h.now = h.now.Add(20 * time.Second)
	assert.Equal(t, 1, h.tracker.Sweep(h.now))
	assert.Equal(t, 0, h.tracker.Sweep(h.now))
	h.now = h.now.Add(5 * time.Second)
	assert.Equal(t, 0, h.tracker.Sweep(h.now))
	h.settle()

	off := h.rec.Named(event.PresenceOffline)
	require.Len(t, off, 1)
	assert.Equal(t, eventtest.TargetAll, off[0].Target)
	assert.Empty(t, off[0].ExceptConn)
	change := off[0].Event.Data.(Change)
	assert.Equal(t, "u1", change.UserID)
	require.NotNil(t, change.LastSeen)
	assert.Equal(t, connectedAt, *change.LastSeen)

	assert.True(t, h.tracker.GetOnline([]string{"u2"})[0].IsOnline)
}

func TestSweep_AtThresholdKeepsEntry(t *testing.T) {
	h := newHarness(t)
	h.tracker.Connect(store.User{ID: "u1"}, "c1")

	h.now = h.now.Add(DefaultStaleAfter)
	assert.Equal(t, 0, h.tracker.Sweep(h.now))
}

func TestGetOnline(t *testing.T) {
	h := newHarness(t)
	h.tracker.Connect(store.User{ID: "u1"}, "c1")
	h.tracker.SetStatus("u1", "c1", store.StatusAway)

	got := h.tracker.GetOnline([]string{"u1", "ghost"})
	require.Len(t, got, 2)

	assert.True(t, got[0].IsOnline)
	assert.Equal(t, store.StatusAway, got[0].Status)
	require.NotNil(t, got[0].LastSeen)

	assert.Equal(t, OnlineStatus{UserID: "ghost", Status: store.StatusOffline}, got[1])
	assert.Empty(t, h.tracker.GetOnline([]string{}))
}

func TestPersistFailureDoesNotBlock(t *testing.T) {
	h := newHarness(t)
	h.users.err = errors.New("db down")

	h.tracker.Connect(store.User{ID: "u1"}, "c1")
	require.NoError(t, h.tracker.Close())

	assert.Equal(t, 1, h.tracker.Count())
	assert.Len(t, h.rec.Named(event.PresenceOnline), 1)
}

func TestSweepRoutine(t *testing.T) {
	rec := &eventtest.Recorder{}
	tr := New(Config{Emitter: rec, StaleAfter: 10 * time.Millisecond})
	tr.Connect(store.User{ID: "u1"}, "c1")

	tr.StartSweepRoutine(5 * time.Millisecond)
	defer func() { _ = tr.Close() }()

	assert.Eventually(t, func() bool { return tr.Count() == 0 }, time.Second, 5*time.Millisecond)
	assert.Len(t, rec.Named(event.PresenceOffline), 1)
}
