// Package store defines the persisted records the live session core reads and
// writes, and the interfaces their backends implement.
package store

import (
	"context"
	"errors"
	"slices"
	"time"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// Status is a user's declared presence status.
type Status string

// Presence statuses.
const (
	StatusOnline  Status = "online"
	StatusAway    Status = "away"
	StatusOffline Status = "offline"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusOnline, StatusAway, StatusOffline:
		return true
	}
	return false
}

// MessageStatus is the delivery state of a message.
type MessageStatus string

// Message statuses.
const (
	MessagePending   MessageStatus = "pending"
	MessageSent      MessageStatus = "sent"
	MessageDelivered MessageStatus = "delivered"
	MessageFailed    MessageStatus = "failed"
)

// User is a registered account.
type User struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Email      string     `json:"email,omitempty"`
	AvatarURL  string     `json:"avatarUrl,omitempty"`
	Status     Status     `json:"status"`
	LastSeenAt *time.Time `json:"lastSeenAt,omitempty"`
}

// Conversation is a direct or group chat.
type Conversation struct {
	ID            string     `json:"id"`
	Title         string     `json:"title,omitempty"`
	IsGroup       bool       `json:"isGroup"`
	Members       []string   `json:"members"`
	Admins        []string   `json:"admins,omitempty"`
	Moderators    []string   `json:"moderators,omitempty"`
	LastMessageAt *time.Time `json:"lastMessageAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// IsMember reports whether userID belongs to the conversation.
func (c *Conversation) IsMember(userID string) bool {
	return slices.Contains(c.Members, userID)
}

// CanManage reports whether userID may moderate other members' messages.
func (c *Conversation) CanManage(userID string) bool {
	return slices.Contains(c.Admins, userID) || slices.Contains(c.Moderators, userID)
}

// Reaction is one user's emoji on a message.
type Reaction struct {
	UserID    string    `json:"userId"`
	Emoji     string    `json:"emoji"`
	CreatedAt time.Time `json:"createdAt"`
}

// ReadReceipt records when a user read a message.
type ReadReceipt struct {
	UserID string    `json:"userId"`
	ReadAt time.Time `json:"readAt"`
}

// Message is a chat message.
type Message struct {
	ID             string        `json:"id"`
	ConversationID string        `json:"conversationId"`
	SenderID       string        `json:"senderId"`
	Text           string        `json:"text"`
	Attachments    []string      `json:"attachments"`
	ReplyTo        string        `json:"replyTo,omitempty"`
	Reactions      []Reaction    `json:"reactions"`
	Edited         bool          `json:"edited"`
	EditedAt       *time.Time    `json:"editedAt,omitempty"`
	DeletedFor     []string      `json:"-"`
	ReadBy         []ReadReceipt `json:"readBy"`
	Status         MessageStatus `json:"status"`
	CreatedAt      time.Time     `json:"createdAt"`
	UpdatedAt      time.Time     `json:"updatedAt"`
}

// IsDeletedFor reports whether the message is hidden from userID.
func (m *Message) IsDeletedFor(userID string) bool {
	return slices.Contains(m.DeletedFor, userID)
}

// IsReadBy reports whether userID has a read receipt on the message.
func (m *Message) IsReadBy(userID string) bool {
	return slices.ContainsFunc(m.ReadBy, func(r ReadReceipt) bool { return r.UserID == userID })
}

// ReactionFunc computes a message's reactions from the current ones and
// reports whether anything changed. Stores apply it while holding the
// message, so concurrent reactions never overwrite each other.
type ReactionFunc func(current []Reaction) ([]Reaction, bool)

// PutReaction sets userID's reaction to emoji. A user holds at most one
// reaction per message, so any other emoji from the same user is replaced.
// Reacting again with the same emoji changes nothing.
func PutReaction(userID, emoji string, at time.Time) ReactionFunc {
	return func(current []Reaction) ([]Reaction, bool) {
		if slices.ContainsFunc(current, func(r Reaction) bool {
			return r.UserID == userID && r.Emoji == emoji
		}) {
			return current, false
		}
		next := slices.DeleteFunc(slices.Clone(current), func(r Reaction) bool { return r.UserID == userID })
		return append(next, Reaction{UserID: userID, Emoji: emoji, CreatedAt: at}), true
	}
}

// DropReaction deletes userID's emoji reaction.
func DropReaction(userID, emoji string) ReactionFunc {
	return func(current []Reaction) ([]Reaction, bool) {
		next := slices.DeleteFunc(slices.Clone(current), func(r Reaction) bool {
			return r.UserID == userID && r.Emoji == emoji
		})
		return next, len(next) < len(current)
	}
}

// Clone returns a deep copy of the message.
func (m *Message) Clone() *Message {
	c := *m
	c.Attachments = slices.Clone(m.Attachments)
	c.Reactions = slices.Clone(m.Reactions)
	c.DeletedFor = slices.Clone(m.DeletedFor)
	c.ReadBy = slices.Clone(m.ReadBy)
	if m.EditedAt != nil {
		t := *m.EditedAt
		c.EditedAt = &t
	}
	return &c
}

// UserStore persists users.
type UserStore interface {
	// GetUser returns ErrNotFound when the user does not exist.
	GetUser(ctx context.Context, id string) (*User, error)

	// UpdateStatus sets the user's presence status and last-seen time.
	UpdateStatus(ctx context.Context, id string, status Status, lastSeen time.Time) error

	// UpdateLastSeen refreshes only the last-seen time.
	UpdateLastSeen(ctx context.Context, id string, lastSeen time.Time) error
}

// ConversationStore persists conversations.
type ConversationStore interface {
	// GetConversation returns ErrNotFound when the conversation does not exist.
	GetConversation(ctx context.Context, id string) (*Conversation, error)

	// TouchLastMessage records the time of the newest message.
	TouchLastMessage(ctx context.Context, id string, at time.Time) error
}

// MessageStore persists messages.
type MessageStore interface {
	CreateMessage(ctx context.Context, m *Message) error

	// GetMessage returns ErrNotFound when the message does not exist.
	GetMessage(ctx context.Context, id string) (*Message, error)

	// SetText replaces the text and marks the message edited at editedAt.
	SetText(ctx context.Context, id, text string, editedAt time.Time) error

	// HideFor adds userIDs to the set of users the message is deleted for,
	// keeping whoever is already in it.
	HideFor(ctx context.Context, id string, userIDs []string, at time.Time) error

	// UpdateReactions applies fn to the stored reactions and saves the result
	// when fn reports a change. It returns the reactions after the call.
	UpdateReactions(ctx context.Context, id string, at time.Time, fn ReactionFunc) ([]Reaction, bool, error)

	// MarkRead adds a read receipt for readerID to every message in ids that
	// belongs to conversationID, was not sent by readerID and is not already
	// read by readerID. It returns the ids that were marked.
	MarkRead(ctx context.Context, conversationID, readerID string, ids []string, at time.Time) ([]string, error)
}

// Store combines every persisted collaborator.
type Store interface {
	UserStore
	ConversationStore
	MessageStore
}
