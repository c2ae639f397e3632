// Package chat holds the message rules shared by the socket handlers and the
// REST API: membership, ownership, the edit window, reactions and read
// receipts. Both entry points call the same Service so their behavior
// cannot drift apart.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/Aman-Thakur002/Bantr/pkg/apperr"
	"github.com/Aman-Thakur002/Bantr/pkg/event"
	"github.com/Aman-Thakur002/Bantr/pkg/store"
)

// DefaultEditWindow is how long after creation a message may be edited.
const DefaultEditWindow = 24 * time.Hour

// Error codes.
const (
	CodeConversationNotFound = "CONVERSATION_NOT_FOUND"
	CodeNotMember            = "NOT_MEMBER"
	CodeMessageNotFound      = "MESSAGE_NOT_FOUND"
	CodeEditExpired          = "EDIT_TIME_EXPIRED"
	CodeInvalidReply         = "INVALID_REPLY"
	CodeDeleteForbidden      = "DELETE_FORBIDDEN"
	CodeReactionNotFound     = "REACTION_NOT_FOUND"
)

// Reaction actions reported to clients.
const (
	ActionAdd    = "add"
	ActionUpdate = "update"
	ActionRemove = "remove"
)

var (
	errConversationNotFound = apperr.NotFound(CodeConversationNotFound, "Conversation not found")
	errNotMember            = apperr.Forbidden(CodeNotMember, "Not a member of this conversation")
	errMessageNotFound      = apperr.NotFound(CodeMessageNotFound, "Message not found or access denied")
)

// Config configures a Service.
type Config struct {
	Store store.Store

	// EditWindow bounds edits after creation. Default: 24h.
	EditWindow time.Duration

	Now    func() time.Time
	NewID  func() string
	Logger *slog.Logger
}

// Service applies message rules against the persisted store.
type Service struct {
	store      store.Store
	editWindow time.Duration
	now        func() time.Time
	newID      func() string
	logger     *slog.Logger
}

// New creates a Service.
func New(cfg Config) *Service {
	if cfg.EditWindow <= 0 {
		cfg.EditWindow = DefaultEditWindow
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Service{
		store:      cfg.Store,
		editWindow: cfg.EditWindow,
		now:        cfg.Now,
		newID:      cfg.NewID,
		logger:     cfg.Logger,
	}
}

// SendInput is a new message.
type SendInput struct {
	ConversationID string
	Text           string
	Attachments    []string
	ReplyTo        string
}

// Sender is the display snapshot of a message author.
type Sender struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// ReplySummary is the quoted message of a reply.
type ReplySummary struct {
	ID       string `json:"id"`
	SenderID string `json:"senderId"`
	Text     string `json:"text"`
}

// MessageView is a message resolved for clients.
type MessageView struct {
	*store.Message
	Sender         Sender        `json:"sender"`
	ReplyToMessage *ReplySummary `json:"replyToMessage,omitempty"`
}

// DeleteResult describes a completed deletion.
type DeleteResult struct {
	MessageID      string   `json:"messageId"`
	ConversationID string   `json:"conversationId"`
	DeletedBy      string   `json:"deletedBy"`
	ForEveryone    bool     `json:"forEveryone"`
	HiddenFor      []string `json:"-"`
}

// ReactionResult describes a reaction change.
type ReactionResult struct {
	MessageID      string           `json:"messageId"`
	ConversationID string           `json:"-"`
	UserID         string           `json:"userId"`
	Emoji          string           `json:"emoji"`
	Reactions      []store.Reaction `json:"reactions"`
	Action         string           `json:"action"`
}

// ReadResult lists the messages newly marked read.
type ReadResult struct {
	ConversationID string    `json:"conversationId"`
	MessageIDs     []string  `json:"messageIds"`
	UserID         string    `json:"userId"`
	ReadAt         time.Time `json:"readAt"`
}

// RequireMember loads the conversation and checks that userID belongs to it.
func (s *Service) RequireMember(ctx context.Context, userID, conversationID string) (*store.Conversation, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, errConversationNotFound
	}
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("loading conversation: %w", err))
	}
	if !conv.IsMember(userID) {
		return nil, errNotMember
	}
	return conv, nil
}

// CheckMember is RequireMember without the conversation. It satisfies
// game.MemberCheck.
func (s *Service) CheckMember(ctx context.Context, userID, conversationID string) error {
	_, err := s.RequireMember(ctx, userID, conversationID)
	return err
}

// Send persists a new message from senderID.
func (s *Service) Send(ctx context.Context, senderID string, in SendInput) (*MessageView, error) {
	if err := event.ValidateText(in.Text, len(in.Attachments)); err != nil {
		return nil, err
	}
	if _, err := s.RequireMember(ctx, senderID, in.ConversationID); err != nil {
		return nil, err
	}

	var reply *store.Message
	if in.ReplyTo != "" {
		r, err := s.store.GetMessage(ctx, in.ReplyTo)
		switch {
		case errors.Is(err, store.ErrNotFound):
			return nil, apperr.Invalid(CodeInvalidReply, "reply target not found")
		case err != nil:
			return nil, apperr.Internal(fmt.Errorf("loading reply target: %w", err))
		case r.ConversationID != in.ConversationID || r.IsDeletedFor(senderID):
			return nil, apperr.Invalid(CodeInvalidReply, "reply target is not in this conversation")
		}
		reply = r
	}

	now := s.now()
	m := &store.Message{
		ID:             s.newID(),
		ConversationID: in.ConversationID,
		SenderID:       senderID,
		Text:           in.Text,
		Attachments:    nonNil(in.Attachments),
		ReplyTo:        in.ReplyTo,
		Reactions:      []store.Reaction{},
		ReadBy:         []store.ReadReceipt{},
		Status:         store.MessageSent,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.CreateMessage(ctx, m); err != nil {
		return nil, apperr.Internal(fmt.Errorf("creating message: %w", err))
	}
	if err := s.store.TouchLastMessage(ctx, in.ConversationID, now); err != nil {
		s.logger.Warn("failed to update conversation activity",
			"conversation_id", in.ConversationID, "error", err)
	}

	view := s.view(ctx, m)
	if reply != nil {
		view.ReplyToMessage = &ReplySummary{ID: reply.ID, SenderID: reply.SenderID, Text: reply.Text}
	}
	return view, nil
}

// Edit replaces the text of a message. Only the sender may edit, and only
// within the edit window.
func (s *Service) Edit(ctx context.Context, userID, messageID, text string) (*MessageView, error) {
	m, err := s.message(ctx, userID, messageID)
	if err != nil {
		return nil, err
	}
	if m.SenderID != userID {
		return nil, errMessageNotFound
	}
	if err := event.ValidateText(text, len(m.Attachments)); err != nil {
		return nil, err
	}

	now := s.now()
	if now.Sub(m.CreatedAt) > s.editWindow {
		return nil, apperr.Invalid(CodeEditExpired, "Message can only be edited within 24 hours")
	}

	if err := s.store.SetText(ctx, messageID, text, now); err != nil {
		return nil, writeErr("updating message", err)
	}
	m.Text = text
	m.Edited = true
	m.EditedAt = &now
	m.UpdatedAt = now
	return s.view(ctx, m), nil
}

// Delete hides a message. Without forEveryone it is hidden for userID only;
// with it, the sender or a conversation admin or moderator hides it for
// every member.
func (s *Service) Delete(ctx context.Context, userID, messageID string, forEveryone bool) (*DeleteResult, error) {
	m, err := s.message(ctx, userID, messageID)
	if err != nil {
		return nil, err
	}
	conv, err := s.RequireMember(ctx, userID, m.ConversationID)
	if err != nil {
		return nil, err
	}

	hidden := []string{userID}
	if forEveryone {
		if m.SenderID != userID && !conv.CanManage(userID) {
			return nil, apperr.Forbidden(CodeDeleteForbidden,
				"Only the sender or a conversation admin can delete for everyone")
		}
		hidden = conv.Members
	}
	if err := s.store.HideFor(ctx, messageID, hidden, s.now()); err != nil {
		return nil, writeErr("deleting message", err)
	}
	return &DeleteResult{
		MessageID:      m.ID,
		ConversationID: m.ConversationID,
		DeletedBy:      userID,
		ForEveryone:    forEveryone,
		HiddenFor:      slices.Clone(hidden),
	}, nil
}

// React sets userID's reaction on a message. Re-sending the same emoji is a
// no-op reported as ActionUpdate; any other emoji replaces the user's
// previous reaction and is reported as ActionAdd.
func (s *Service) React(ctx context.Context, userID, messageID, emoji string) (*ReactionResult, error) {
	m, err := s.memberMessage(ctx, userID, messageID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	reactions, changed, err := s.store.UpdateReactions(ctx, messageID, now, store.PutReaction(userID, emoji, now))
	if err != nil {
		return nil, writeErr("saving reaction", err)
	}
	action := ActionUpdate
	if changed {
		action = ActionAdd
	}
	return reactionResult(m, userID, emoji, reactions, action), nil
}

// RemoveReaction removes userID's emoji reaction from a message.
func (s *Service) RemoveReaction(ctx context.Context, userID, messageID, emoji string) (*ReactionResult, error) {
	m, err := s.memberMessage(ctx, userID, messageID)
	if err != nil {
		return nil, err
	}
	reactions, changed, err := s.store.UpdateReactions(ctx, messageID, s.now(), store.DropReaction(userID, emoji))
	if err != nil {
		return nil, writeErr("removing reaction", err)
	}
	if !changed {
		return nil, apperr.NotFound(CodeReactionNotFound, "reaction not found")
	}
	return reactionResult(m, userID, emoji, reactions, ActionRemove), nil
}

// MarkRead records read receipts for userID. Messages userID sent or has
// already read are skipped, so repeating the call is harmless.
func (s *Service) MarkRead(ctx context.Context, userID, conversationID string, messageIDs []string) (*ReadResult, error) {
	if _, err := s.RequireMember(ctx, userID, conversationID); err != nil {
		return nil, err
	}

	now := s.now()
	marked, err := s.store.MarkRead(ctx, conversationID, userID, messageIDs, now)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("marking messages read: %w", err))
	}
	return &ReadResult{
		ConversationID: conversationID,
		MessageIDs:     nonNil(marked),
		UserID:         userID,
		ReadAt:         now,
	}, nil
}

// message loads a message visible to userID.
func (s *Service) message(ctx context.Context, userID, messageID string) (*store.Message, error) {
	m, err := s.store.GetMessage(ctx, messageID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, errMessageNotFound
	}
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("loading message: %w", err))
	}
	if m.IsDeletedFor(userID) {
		return nil, errMessageNotFound
	}
	return m, nil
}

func (s *Service) memberMessage(ctx context.Context, userID, messageID string) (*store.Message, error) {
	m, err := s.message(ctx, userID, messageID)
	if err != nil {
		return nil, err
	}
	if _, err := s.RequireMember(ctx, userID, m.ConversationID); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Service) view(ctx context.Context, m *store.Message) *MessageView {
	v := &MessageView{Message: m, Sender: Sender{ID: m.SenderID}}
	u, err := s.store.GetUser(ctx, m.SenderID)
	if err != nil {
		s.logger.Warn("failed to resolve message sender", "user_id", m.SenderID, "error", err)
		return v
	}
	v.Sender.Name = u.Name
	v.Sender.AvatarURL = u.AvatarURL
	return v
}

// writeErr maps a store write failure. A message removed between the read
// and the write is reported as not found.
func writeErr(op string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return errMessageNotFound
	}
	return apperr.Internal(fmt.Errorf("%s: %w", op, err))
}

func reactionResult(m *store.Message, userID, emoji string, reactions []store.Reaction, action string) *ReactionResult {
	return &ReactionResult{
		MessageID:      m.ID,
		ConversationID: m.ConversationID,
		UserID:         userID,
		Emoji:          emoji,
		Reactions:      nonNil(reactions),
		Action:         action,
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
