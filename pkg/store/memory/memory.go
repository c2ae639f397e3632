// Package memory provides an in-process implementation of store.Store for
// development and tests.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/Aman-Thakur002/Bantr/pkg/store"
)

// Store implements store.Store using in-memory maps.
type Store struct {
	mu            sync.RWMutex
	users         map[string]*store.User
	conversations map[string]*store.Conversation
	messages      map[string]*store.Message
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		users:         make(map[string]*store.User),
		conversations: make(map[string]*store.Conversation),
		messages:      make(map[string]*store.Message),
	}
}

// PutUser inserts or replaces a user.
func (s *Store) PutUser(u store.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = &u
}

// PutConversation inserts or replaces a conversation.
func (s *Store) PutConversation(c store.Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.Members = slices.Clone(c.Members)
	c.Admins = slices.Clone(c.Admins)
	c.Moderators = slices.Clone(c.Moderators)
	s.conversations[c.ID] = &c
}

// GetUser returns a copy of the user.
func (s *Store) GetUser(_ context.Context, id string) (*store.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	c := *u
	return &c, nil
}

// UpdateStatus sets the user's status and last-seen time.
func (s *Store) UpdateStatus(_ context.Context, id string, status store.Status, lastSeen time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return store.ErrNotFound
	}
	u.Status = status
	u.LastSeenAt = &lastSeen
	return nil
}

// UpdateLastSeen refreshes the user's last-seen time.
func (s *Store) UpdateLastSeen(_ context.Context, id string, lastSeen time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return store.ErrNotFound
	}
	u.LastSeenAt = &lastSeen
	return nil
}

// GetConversation returns a copy of the conversation.
func (s *Store) GetConversation(_ context.Context, id string) (*store.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.conversations[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *c
	cp.Members = slices.Clone(c.Members)
	cp.Admins = slices.Clone(c.Admins)
	cp.Moderators = slices.Clone(c.Moderators)
	return &cp, nil
}

// TouchLastMessage records the newest message time.
func (s *Store) TouchLastMessage(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conversations[id]
	if !ok {
		return store.ErrNotFound
	}
	c.LastMessageAt = &at
	return nil
}

// CreateMessage stores a copy of m.
func (s *Store) CreateMessage(_ context.Context, m *store.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[m.ID] = m.Clone()
	return nil
}

// GetMessage returns a copy of the message.
func (s *Store) GetMessage(_ context.Context, id string) (*store.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.messages[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return m.Clone(), nil
}

// SetText replaces the message text and marks it edited.
func (s *Store) SetText(_ context.Context, id, text string, editedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[id]
	if !ok {
		return store.ErrNotFound
	}
	m.Text = text
	m.Edited = true
	m.EditedAt = &editedAt
	m.UpdatedAt = editedAt
	return nil
}

// HideFor adds userIDs to the message's deleted-for set.
func (s *Store) HideFor(_ context.Context, id string, userIDs []string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[id]
	if !ok {
		return store.ErrNotFound
	}
	for _, u := range userIDs {
		if !m.IsDeletedFor(u) {
			m.DeletedFor = append(m.DeletedFor, u)
		}
	}
	m.UpdatedAt = at
	return nil
}

// UpdateReactions applies fn under the store lock.
func (s *Store) UpdateReactions(_ context.Context, id string, at time.Time, fn store.ReactionFunc) ([]store.Reaction, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[id]
	if !ok {
		return nil, false, store.ErrNotFound
	}
	next, changed := fn(slices.Clone(m.Reactions))
	if changed {
		m.Reactions = next
		m.UpdatedAt = at
	}
	return slices.Clone(m.Reactions), changed, nil
}

// MarkRead adds read receipts for readerID.
func (s *Store) MarkRead(_ context.Context, conversationID, readerID string, ids []string, at time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var marked []string
	for _, id := range ids {
		m, ok := s.messages[id]
		if !ok || m.ConversationID != conversationID || m.SenderID == readerID || m.IsReadBy(readerID) {
			continue
		}
		m.ReadBy = append(m.ReadBy, store.ReadReceipt{UserID: readerID, ReadAt: at})
		marked = append(marked, id)
	}
	return marked, nil
}

// Verify interface compliance.
var _ store.Store = (*Store)(nil)
