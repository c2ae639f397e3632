package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-Thakur002/Bantr/pkg/store"
)

const (
	memTestUser  = "user-1"
	memTestOther = "user-2"
	memTestConv  = "conv-1"
)

func seeded() *Store {
	s := New()
	s.PutUser(store.User{ID: memTestUser, Name: "Ada"})
	s.PutUser(store.User{ID: memTestOther, Name: "Grace"})
	s.PutConversation(store.Conversation{ID: memTestConv, Members: []string{memTestUser, memTestOther}})
	return s
}

func TestStore_GetUserNotFound(t *testing.T) {
	_, err := New().GetUser(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStore_UpdateStatus(t *testing.T) {
	s := seeded()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.UpdateStatus(ctx, memTestUser, store.StatusAway, now))

	u, err := s.GetUser(ctx, memTestUser)
	require.NoError(t, err)
	assert.Equal(t, store.StatusAway, u.Status)
	require.NotNil(t, u.LastSeenAt)
	assert.True(t, now.Equal(*u.LastSeenAt))

	later := now.Add(time.Minute)
	require.NoError(t, s.UpdateLastSeen(ctx, memTestUser, later))
	u, err = s.GetUser(ctx, memTestUser)
	require.NoError(t, err)
	assert.Equal(t, store.StatusAway, u.Status)
	assert.True(t, later.Equal(*u.LastSeenAt))

	assert.ErrorIs(t, s.UpdateStatus(ctx, "missing", store.StatusOnline, now), store.ErrNotFound)
}

func TestStore_GetConversationReturnsCopy(t *testing.T) {
	s := seeded()
	ctx := context.Background()

	c, err := s.GetConversation(ctx, memTestConv)
	require.NoError(t, err)
	c.Members[0] = "intruder"

	again, err := s.GetConversation(ctx, memTestConv)
	require.NoError(t, err)
	assert.True(t, again.IsMember(memTestUser))
}

func TestStore_MessageLifecycle(t *testing.T) {
	s := seeded()
	ctx := context.Background()
	now := time.Now()

	m := &store.Message{ID: "m1", ConversationID: memTestConv, SenderID: memTestUser, Text: "hi", CreatedAt: now}
	require.NoError(t, s.CreateMessage(ctx, m))

	later := now.Add(time.Minute)
	require.NoError(t, s.SetText(ctx, "m1", "edited", later))
	require.NoError(t, s.HideFor(ctx, "m1", []string{memTestOther, memTestOther}, later))
	rs, changed, err := s.UpdateReactions(ctx, "m1", later, store.PutReaction(memTestOther, "👍", later))
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Len(t, rs, 1)

	got, err := s.GetMessage(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "edited", got.Text)
	assert.True(t, got.Edited)
	require.NotNil(t, got.EditedAt)
	assert.Equal(t, later, *got.EditedAt)
	assert.Equal(t, []string{memTestOther}, got.DeletedFor)
	assert.Len(t, got.Reactions, 1)

	assert.ErrorIs(t, s.SetText(ctx, "nope", "x", now), store.ErrNotFound)
	assert.ErrorIs(t, s.HideFor(ctx, "nope", []string{memTestUser}, now), store.ErrNotFound)
	_, _, err = s.UpdateReactions(ctx, "nope", now, store.DropReaction(memTestUser, "👍"))
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStore_FieldUpdatesKeepOtherFields(t *testing.T) {
	s := seeded()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.CreateMessage(ctx, &store.Message{ID: "m1", ConversationID: memTestConv, SenderID: memTestOther, Text: "hi"}))
	marked, err := s.MarkRead(ctx, memTestConv, memTestUser, []string{"m1"}, now)
	require.NoError(t, err)
	require.Equal(t, []string{"m1"}, marked)

	require.NoError(t, s.HideFor(ctx, "m1", []string{memTestUser}, now))
	_, _, err = s.UpdateReactions(ctx, "m1", now, store.PutReaction(memTestOther, "🎉", now))
	require.NoError(t, err)
	require.NoError(t, s.SetText(ctx, "m1", "edited", now))

	got, err := s.GetMessage(ctx, "m1")
	require.NoError(t, err)
	assert.True(t, got.IsReadBy(memTestUser), "read receipts survive later updates")
	assert.True(t, got.IsDeletedFor(memTestUser), "hidden state survives later updates")
	assert.Len(t, got.Reactions, 1)
}

func TestStore_PutConversationCopiesRoles(t *testing.T) {
	s := New()
	admins := []string{memTestUser}
	mods := []string{memTestOther}
	s.PutConversation(store.Conversation{ID: "c", Members: []string{memTestUser, memTestOther}, Admins: admins, Moderators: mods})

	admins[0] = "intruder"
	mods[0] = "intruder"

	c, err := s.GetConversation(context.Background(), "c")
	require.NoError(t, err)
	assert.True(t, c.CanManage(memTestUser))
	assert.True(t, c.CanManage(memTestOther))
	assert.False(t, c.CanManage("intruder"))
}

func TestStore_MarkRead(t *testing.T) {
	s := seeded()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.CreateMessage(ctx, &store.Message{ID: "own", ConversationID: memTestConv, SenderID: memTestOther}))
	require.NoError(t, s.CreateMessage(ctx, &store.Message{ID: "mine", ConversationID: memTestConv, SenderID: memTestUser}))
	require.NoError(t, s.CreateMessage(ctx, &store.Message{ID: "elsewhere", ConversationID: "conv-2", SenderID: memTestOther}))

	marked, err := s.MarkRead(ctx, memTestConv, memTestUser, []string{"own", "mine", "elsewhere", "missing"}, now)
	require.NoError(t, err)
	assert.Equal(t, []string{"own"}, marked)

	marked, err = s.MarkRead(ctx, memTestConv, memTestUser, []string{"own"}, now)
	require.NoError(t, err)
	assert.Empty(t, marked, "repeat reads are no-ops")
}
