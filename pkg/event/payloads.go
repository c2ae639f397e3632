package event

import (
	"encoding/json"
	"strings"
	"unicode/utf8"

	"github.com/Aman-Thakur002/Bantr/pkg/apperr"
)

// Inbound event names.
const (
	JoinConversation  = "join:conversation"
	LeaveConversation = "leave:conversation"
	JoinGame          = "join:game"
	LeaveGame         = "leave:game"

	PresenceStatus    = "presence:status"
	PresenceHeartbeat = "presence:heartbeat"
	PresenceGetOnline = "presence:get_online"

	ChatSend    = "chat:send"
	ChatTyping  = "chat:typing"
	ChatRead    = "chat:read"
	ChatReact   = "chat:react"
	ChatUnreact = "chat:unreact"
	ChatEdit    = "chat:edit"
	ChatDelete  = "chat:delete"

	GameCreate    = "tictactoe:create"
	GameJoinSeat  = "tictactoe:join"
	GameMove      = "tictactoe:move"
	GameReset     = "tictactoe:reset"
	GameGetState  = "tictactoe:get_state"
	GameJoinRoom  = "tictactoe:join_room"
	GameLeaveRoom = "tictactoe:leave_room"
	GameInvite    = "tictactoe:invite"
)

// Outbound event names.
const (
	ErrorEvent = "error"

	PresenceOnline       = "presence:online"
	PresenceOffline      = "presence:offline"
	PresenceOnlineStatus = "presence:online_status"

	ChatNew       = "chat:new"
	ChatDelivered = "chat:delivered"
	ChatEdited    = "chat:edited"
	ChatDeleted   = "chat:deleted"
	ChatReaction  = "chat:reaction"

	GameState        = "tictactoe:state"
	GameWin          = "tictactoe:win"
	GameDraw         = "tictactoe:draw"
	GamePlayerJoined = "tictactoe:player_joined"
	GamePlayerLeft   = "tictactoe:player_left"
	GameInvitation   = "tictactoe:invitation"
)

// Payload limits.
const (
	MaxTextLength     = 4000
	MaxBatchIDs       = 200
	MaxAttachments    = 10
	maxEmojiRuneCount = 16
)

var registry = map[string]func() Payload{
	JoinConversation:  func() Payload { return &ConversationRef{} },
	LeaveConversation: func() Payload { return &ConversationRef{} },
	JoinGame:          func() Payload { return &GameRef{} },
	LeaveGame:         func() Payload { return &GameRef{} },

	PresenceStatus:    func() Payload { return &StatusChange{} },
	PresenceHeartbeat: func() Payload { return &Heartbeat{} },
	PresenceGetOnline: func() Payload { return &OnlineQuery{} },

	ChatSend:    func() Payload { return &SendMessage{} },
	ChatTyping:  func() Payload { return &Typing{} },
	ChatRead:    func() Payload { return &ReadReceipt{} },
	ChatReact:   func() Payload { return &Reaction{} },
	ChatUnreact: func() Payload { return &Reaction{} },
	ChatEdit:    func() Payload { return &EditMessage{} },
	ChatDelete:  func() Payload { return &DeleteMessage{} },

	GameCreate:    func() Payload { return &CreateGame{} },
	GameJoinSeat:  func() Payload { return &GameRef{} },
	GameMove:      func() Payload { return &Move{} },
	GameReset:     func() Payload { return &GameRef{} },
	GameGetState:  func() Payload { return &GameRef{} },
	GameJoinRoom:  func() Payload { return &GameRef{} },
	GameLeaveRoom: func() Payload { return &GameRef{} },
	GameInvite:    func() Payload { return &Invite{} },
}

// ConversationRef names a conversation. It also accepts a bare JSON string.
type ConversationRef struct {
	ConversationID string `json:"conversationId"`
}

// UnmarshalJSON accepts "id" or {"conversationId": "id"}.
func (p *ConversationRef) UnmarshalJSON(b []byte) error {
	var id string
	if err := json.Unmarshal(b, &id); err == nil {
		p.ConversationID = id
		return nil
	}
	type plain ConversationRef
	return json.Unmarshal(b, (*plain)(p))
}

// Validate implements Payload.
func (p *ConversationRef) Validate() error { return required("conversationId", p.ConversationID) }

// GameRef names a game. It also accepts a bare JSON string.
type GameRef struct {
	GameID string `json:"gameId"`
}

// UnmarshalJSON accepts "id" or {"gameId": "id"}.
func (p *GameRef) UnmarshalJSON(b []byte) error {
	var id string
	if err := json.Unmarshal(b, &id); err == nil {
		p.GameID = id
		return nil
	}
	type plain GameRef
	return json.Unmarshal(b, (*plain)(p))
}

// Validate implements Payload.
func (p *GameRef) Validate() error { return required("gameId", p.GameID) }

// StatusChange is the body of presence:status.
type StatusChange struct {
	Status string `json:"status"`
}

// Validate implements Payload.
func (p *StatusChange) Validate() error {
	switch p.Status {
	case "online", "away", "offline":
		return nil
	}
	return apperr.Invalid("INVALID_STATUS", "invalid status")
}

// Heartbeat carries no data.
type Heartbeat struct{}

// Validate implements Payload.
func (*Heartbeat) Validate() error { return nil }

// OnlineQuery is the body of presence:get_online.
type OnlineQuery struct {
	UserIDs []string `json:"userIds"`
}

// Validate implements Payload.
func (p *OnlineQuery) Validate() error {
	if p.UserIDs == nil {
		return apperr.Invalid("INVALID_PAYLOAD", "userIds must be an array")
	}
	if len(p.UserIDs) > MaxBatchIDs {
		return apperr.Invalid("INVALID_PAYLOAD", "too many userIds")
	}
	return nil
}

// SendMessage is the body of chat:send.
type SendMessage struct {
	ConversationID string   `json:"conversationId"`
	Text           string   `json:"text"`
	Attachments    []string `json:"attachments,omitempty"`
	ReplyTo        string   `json:"replyTo,omitempty"`
	ClientID       string   `json:"clientId,omitempty"`
}

// Validate implements Payload.
func (p *SendMessage) Validate() error {
	if err := required("conversationId", p.ConversationID); err != nil {
		return err
	}
	return ValidateText(p.Text, len(p.Attachments))
}

// ValidateText checks message text length and that a message is not empty.
func ValidateText(text string, attachments int) error {
	if utf8.RuneCountInString(text) > MaxTextLength {
		return apperr.Invalid("TEXT_TOO_LONG", "message text exceeds 4000 characters")
	}
	if strings.TrimSpace(text) == "" && attachments == 0 {
		return apperr.Invalid("EMPTY_MESSAGE", "message must contain text or attachments")
	}
	if attachments > MaxAttachments {
		return apperr.Invalid("TOO_MANY_ATTACHMENTS", "too many attachments")
	}
	return nil
}

// Typing is the body of chat:typing.
type Typing struct {
	ConversationID string `json:"conversationId"`
	IsTyping       bool   `json:"isTyping"`
}

// Validate implements Payload.
func (p *Typing) Validate() error { return required("conversationId", p.ConversationID) }

// ReadReceipt is the body of chat:read.
type ReadReceipt struct {
	ConversationID string   `json:"conversationId"`
	MessageIDs     []string `json:"messageIds"`
}

// Validate implements Payload.
func (p *ReadReceipt) Validate() error {
	if err := required("conversationId", p.ConversationID); err != nil {
		return err
	}
	if len(p.MessageIDs) == 0 {
		return apperr.Invalid("INVALID_PAYLOAD", "invalid read receipt data")
	}
	if len(p.MessageIDs) > MaxBatchIDs {
		return apperr.Invalid("INVALID_PAYLOAD", "too many messageIds")
	}
	return nil
}

// Reaction is the body of chat:react and chat:unreact.
type Reaction struct {
	MessageID string `json:"messageId"`
	Emoji     string `json:"emoji"`
}

// Validate implements Payload.
func (p *Reaction) Validate() error {
	if err := required("messageId", p.MessageID); err != nil {
		return err
	}
	if err := required("emoji", p.Emoji); err != nil {
		return err
	}
	if utf8.RuneCountInString(p.Emoji) > maxEmojiRuneCount {
		return apperr.Invalid("INVALID_EMOJI", "emoji is too long")
	}
	return nil
}

// EditMessage is the body of chat:edit.
type EditMessage struct {
	MessageID string `json:"messageId"`
	Text      string `json:"text"`
}

// Validate implements Payload.
func (p *EditMessage) Validate() error {
	if err := required("messageId", p.MessageID); err != nil {
		return err
	}
	return ValidateText(p.Text, 0)
}

// DeleteMessage is the body of chat:delete.
type DeleteMessage struct {
	MessageID   string `json:"messageId"`
	ForEveryone bool   `json:"forEveryone"`
}

// Validate implements Payload.
func (p *DeleteMessage) Validate() error { return required("messageId", p.MessageID) }

// CreateGame is the body of tictactoe:create.
type CreateGame struct {
	ConversationID string `json:"conversationId"`
}

// Validate implements Payload.
func (p *CreateGame) Validate() error { return required("conversationId", p.ConversationID) }

// Move is the body of tictactoe:move.
type Move struct {
	GameID   string `json:"gameId"`
	Position *int   `json:"position"`
}

// Validate implements Payload.
func (p *Move) Validate() error {
	if err := required("gameId", p.GameID); err != nil {
		return err
	}
	if p.Position == nil || *p.Position < 0 || *p.Position > 8 {
		return apperr.Invalid("INVALID_POSITION", "invalid position")
	}
	return nil
}

// Invite is the body of tictactoe:invite.
type Invite struct {
	GameID    string `json:"gameId"`
	InviteeID string `json:"inviteeId"`
}

// Validate implements Payload.
func (p *Invite) Validate() error {
	if err := required("gameId", p.GameID); err != nil {
		return err
	}
	return required("inviteeId", p.InviteeID)
}
