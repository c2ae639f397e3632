package realtime

import (
	"time"

	"github.com/Aman-Thakur002/Bantr/pkg/chat"
	"github.com/Aman-Thakur002/Bantr/pkg/event"
	"github.com/Aman-Thakur002/Bantr/pkg/game"
)

// Delivered acknowledges a chat:send to its sender.
type Delivered struct {
	MessageID string `json:"messageId"`
	ClientID  string `json:"clientId,omitempty"`
}

// ReadEvent is the payload of chat:read.
type ReadEvent struct {
	ConversationID string    `json:"conversationId"`
	MessageIDs     []string  `json:"messageIds"`
	UserID         string    `json:"userId"`
	UserName       string    `json:"userName"`
	ReadAt         time.Time `json:"readAt"`
}

// ReactionEvent is the payload of chat:reaction.
type ReactionEvent struct {
	*chat.ReactionResult
	UserName string `json:"userName"`
}

// PlayerEvent is the payload of tictactoe:player_joined and
// tictactoe:player_left.
type PlayerEvent struct {
	GameID     string `json:"gameId"`
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
}

// GameResult is the payload of tictactoe:win and tictactoe:draw.
type GameResult struct {
	GameID string    `json:"gameId"`
	Winner *string   `json:"winner"`
	Game   game.Game `json:"game"`
}

// GameResetEvent is the payload of tictactoe:reset.
type GameResetEvent struct {
	GameID  string    `json:"gameId"`
	ResetBy string    `json:"resetBy"`
	Game    game.Game `json:"game"`
}

// Inviter identifies who sent a game invitation.
type Inviter struct {
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
}

// Invitation is the payload of tictactoe:invitation.
type Invitation struct {
	GameID string    `json:"gameId"`
	From   Inviter   `json:"from"`
	Game   game.Game `json:"game"`
}

// Fanout relays completed mutations to the rooms that must see them. The
// socket handlers and the REST API share it, so a change made through either
// entry point reaches the same listeners. originConn is the connection that
// caused the change, or "" for REST callers.
type Fanout struct {
	emitter event.Emitter
}

// NewFanout creates a Fanout over emitter.
func NewFanout(emitter event.Emitter) *Fanout {
	return &Fanout{emitter: emitter}
}

// MessageCreated broadcasts chat:new to the whole conversation room and, for
// socket senders, acknowledges with chat:delivered.
func (f *Fanout) MessageCreated(view *chat.MessageView, originConn, clientID string) {
	f.emitter.ToRoom(event.ConvRoom(view.ConversationID), event.New(event.ChatNew, view), "")
	if originConn != "" {
		f.emitter.ToConn(originConn, event.New(event.ChatDelivered, Delivered{MessageID: view.ID, ClientID: clientID}))
	}
}

// MessageEdited broadcasts chat:edited.
func (f *Fanout) MessageEdited(view *chat.MessageView) {
	f.emitter.ToRoom(event.ConvRoom(view.ConversationID), event.New(event.ChatEdited, view), "")
}

// MessageDeleted broadcasts chat:deleted to the room, or only to the
// deleting user's own connections for a delete-for-me.
func (f *Fanout) MessageDeleted(res *chat.DeleteResult) {
	ev := event.New(event.ChatDeleted, res)
	if res.ForEveryone {
		f.emitter.ToRoom(event.ConvRoom(res.ConversationID), ev, "")
		return
	}
	f.emitter.ToRoom(event.UserRoom(res.DeletedBy), ev, "")
}

// ReactionChanged broadcasts chat:reaction.
func (f *Fanout) ReactionChanged(res *chat.ReactionResult, userName string) {
	f.emitter.ToRoom(event.ConvRoom(res.ConversationID),
		event.New(event.ChatReaction, ReactionEvent{ReactionResult: res, UserName: userName}), "")
}

// MessagesRead broadcasts chat:read to everyone but the reader's connection.
// Nothing is sent when no message changed.
func (f *Fanout) MessagesRead(res *chat.ReadResult, userName, originConn string) {
	if len(res.MessageIDs) == 0 {
		return
	}
	f.emitter.ToRoom(event.ConvRoom(res.ConversationID), event.New(event.ChatRead, ReadEvent{
		ConversationID: res.ConversationID,
		MessageIDs:     res.MessageIDs,
		UserID:         res.UserID,
		UserName:       userName,
		ReadAt:         res.ReadAt,
	}), originConn)
}

// GameState broadcasts tictactoe:state to the game room, followed by
// tictactoe:win or tictactoe:draw when the game just ended.
func (f *Fanout) GameState(g game.Game) {
	room := event.GameRoom(g.ID)
	f.emitter.ToRoom(room, event.New(event.GameState, g), "")

	if g.Status != game.StatusFinished {
		return
	}
	result := GameResult{GameID: g.ID, Winner: g.Winner, Game: g}
	if g.IsDraw() {
		f.emitter.ToRoom(room, event.New(event.GameDraw, result), "")
		return
	}
	f.emitter.ToRoom(room, event.New(event.GameWin, result), "")
}

// GameReset broadcasts tictactoe:reset.
func (f *Fanout) GameReset(g game.Game, resetBy string) {
	f.emitter.ToRoom(event.GameRoom(g.ID), event.New(event.GameReset, GameResetEvent{
		GameID:  g.ID,
		ResetBy: resetBy,
		Game:    g,
	}), "")
}

// PlayerJoined notifies the game room, except originConn, of a new player.
func (f *Fanout) PlayerJoined(gameID, playerID, playerName, originConn string) {
	f.emitter.ToRoom(event.GameRoom(gameID), event.New(event.GamePlayerJoined, PlayerEvent{
		GameID:     gameID,
		PlayerID:   playerID,
		PlayerName: playerName,
	}), originConn)
}

// PlayerLeft notifies the game room, except originConn, that a player left.
func (f *Fanout) PlayerLeft(gameID, playerID, playerName, originConn string) {
	f.emitter.ToRoom(event.GameRoom(gameID), event.New(event.GamePlayerLeft, PlayerEvent{
		GameID:     gameID,
		PlayerID:   playerID,
		PlayerName: playerName,
	}), originConn)
}

// Invite delivers tictactoe:invitation to every connection of inviteeID.
func (f *Fanout) Invite(g game.Game, inviteeID string, from Inviter) {
	f.emitter.ToRoom(event.UserRoom(inviteeID), event.New(event.GameInvitation, Invitation{
		GameID: g.ID,
		From:   from,
		Game:   g,
	}), "")
}
