package realtime

import (
	"context"

	"github.com/Aman-Thakur002/Bantr/pkg/apperr"
	"github.com/Aman-Thakur002/Bantr/pkg/chat"
	"github.com/Aman-Thakur002/Bantr/pkg/event"
	"github.com/Aman-Thakur002/Bantr/pkg/game"
	"github.com/Aman-Thakur002/Bantr/pkg/store"
	"github.com/Aman-Thakur002/Bantr/pkg/typing"
)

var (
	errNotPlayer = apperr.Forbidden(game.CodeNotPlayer, "Not a player in this game")
	errNotInRoom = apperr.Forbidden("NOT_IN_ROOM", "Join the conversation first")
)

// routes binds each inbound event name to its handler. Payloads arrive
// already validated, so each handler can assert its concrete type.
func (g *Gateway) routes() map[string]handlerFunc {
	return map[string]handlerFunc{
		event.JoinConversation:  g.joinConversation,
		event.LeaveConversation: g.leaveConversation,
		event.JoinGame:          g.joinGame,
		event.LeaveGame:         g.leaveGame,

		event.PresenceStatus:    g.setStatus,
		event.PresenceHeartbeat: g.heartbeat,
		event.PresenceGetOnline: g.getOnline,

		event.ChatSend:    g.sendMessage,
		event.ChatTyping:  g.setTyping,
		event.ChatRead:    g.markRead,
		event.ChatReact:   g.react,
		event.ChatUnreact: g.unreact,
		event.ChatEdit:    g.editMessage,
		event.ChatDelete:  g.deleteMessage,

		event.GameCreate:    g.createGame,
		event.GameJoinSeat:  g.takeSeat,
		event.GameMove:      g.move,
		event.GameReset:     g.resetGame,
		event.GameGetState:  g.gameState,
		event.GameJoinRoom:  g.joinGameRoom,
		event.GameLeaveRoom: g.leaveGameRoom,
		event.GameInvite:    g.invite,
	}
}

// Rooms

func (g *Gateway) joinConversation(ctx context.Context, s *Session, p event.Payload) error {
	ref := p.(*event.ConversationRef)
	if _, err := g.chat.RequireMember(ctx, s.UserID, ref.ConversationID); err != nil {
		return err
	}
	g.hub.Join(s, event.ConvRoom(ref.ConversationID))
	for _, ev := range g.typing.TypingIn(ref.ConversationID) {
		if ev.UserID != s.UserID {
			g.hub.ToConn(s.ID, event.New(event.ChatTyping, ev))
		}
	}
	return nil
}

func (g *Gateway) leaveConversation(_ context.Context, s *Session, p event.Payload) error {
	ref := p.(*event.ConversationRef)
	g.hub.Leave(s, event.ConvRoom(ref.ConversationID))
	return nil
}

// joinGame admits seated players and members of the game's conversation,
// then sends the current state to the caller.
func (g *Gateway) joinGame(ctx context.Context, s *Session, p event.Payload) error {
	gm, err := g.games.Visible(ctx, p.(*event.GameRef).GameID, s.UserID, g.chat.CheckMember)
	if err != nil {
		return err
	}
	g.hub.Join(s, event.GameRoom(gm.ID))
	g.hub.ToConn(s.ID, event.New(event.GameState, gm))
	return nil
}

func (g *Gateway) leaveGame(_ context.Context, s *Session, p event.Payload) error {
	g.hub.Leave(s, event.GameRoom(p.(*event.GameRef).GameID))
	return nil
}

// Presence

func (g *Gateway) setStatus(_ context.Context, s *Session, p event.Payload) error {
	g.presence.SetStatus(s.UserID, s.ID, store.Status(p.(*event.StatusChange).Status))
	return nil
}

func (g *Gateway) heartbeat(_ context.Context, s *Session, _ event.Payload) error {
	g.presence.Heartbeat(s.UserID, s.ID)
	return nil
}

func (g *Gateway) getOnline(_ context.Context, s *Session, p event.Payload) error {
	statuses := g.presence.GetOnline(p.(*event.OnlineQuery).UserIDs)
	g.hub.ToConn(s.ID, event.New(event.PresenceOnlineStatus, statuses))
	return nil
}

// Chat

func (g *Gateway) sendMessage(ctx context.Context, s *Session, p event.Payload) error {
	in := p.(*event.SendMessage)
	view, err := g.chat.Send(ctx, s.UserID, chat.SendInput{
		ConversationID: in.ConversationID,
		Text:           in.Text,
		Attachments:    in.Attachments,
		ReplyTo:        in.ReplyTo,
	})
	if err != nil {
		return err
	}
	g.fanout.MessageCreated(view, s.ID, in.ClientID)
	return nil
}

// setTyping only accepts indicators for conversations the session joined,
// which already required membership.
func (g *Gateway) setTyping(_ context.Context, s *Session, p event.Payload) error {
	in := p.(*event.Typing)
	if !g.hub.InRoom(s, event.ConvRoom(in.ConversationID)) {
		return errNotInRoom
	}
	g.typing.SetTyping(in.ConversationID, typing.Typer{UserID: s.UserID, Name: s.Name, ConnID: s.ID}, in.IsTyping)
	return nil
}

func (g *Gateway) markRead(ctx context.Context, s *Session, p event.Payload) error {
	in := p.(*event.ReadReceipt)
	res, err := g.chat.MarkRead(ctx, s.UserID, in.ConversationID, in.MessageIDs)
	if err != nil {
		return err
	}
	g.fanout.MessagesRead(res, s.Name, s.ID)
	return nil
}

func (g *Gateway) react(ctx context.Context, s *Session, p event.Payload) error {
	in := p.(*event.Reaction)
	res, err := g.chat.React(ctx, s.UserID, in.MessageID, in.Emoji)
	if err != nil {
		return err
	}
	g.fanout.ReactionChanged(res, s.Name)
	return nil
}

func (g *Gateway) unreact(ctx context.Context, s *Session, p event.Payload) error {
	in := p.(*event.Reaction)
	res, err := g.chat.RemoveReaction(ctx, s.UserID, in.MessageID, in.Emoji)
	if err != nil {
		return err
	}
	g.fanout.ReactionChanged(res, s.Name)
	return nil
}

func (g *Gateway) editMessage(ctx context.Context, s *Session, p event.Payload) error {
	in := p.(*event.EditMessage)
	view, err := g.chat.Edit(ctx, s.UserID, in.MessageID, in.Text)
	if err != nil {
		return err
	}
	g.fanout.MessageEdited(view)
	return nil
}

func (g *Gateway) deleteMessage(ctx context.Context, s *Session, p event.Payload) error {
	in := p.(*event.DeleteMessage)
	res, err := g.chat.Delete(ctx, s.UserID, in.MessageID, in.ForEveryone)
	if err != nil {
		return err
	}
	g.fanout.MessageDeleted(res)
	return nil
}

// Games

func (g *Gateway) createGame(ctx context.Context, s *Session, p event.Payload) error {
	in := p.(*event.CreateGame)
	if _, err := g.chat.RequireMember(ctx, s.UserID, in.ConversationID); err != nil {
		return err
	}
	gm := g.games.Create(s.UserID, in.ConversationID)
	g.hub.Join(s, event.GameRoom(gm.ID))
	g.fanout.GameState(gm)
	return nil
}

func (g *Gateway) takeSeat(_ context.Context, s *Session, p event.Payload) error {
	gm, err := g.games.Join(p.(*event.GameRef).GameID, s.UserID)
	if err != nil {
		return err
	}
	g.hub.Join(s, event.GameRoom(gm.ID))
	g.fanout.PlayerJoined(gm.ID, s.UserID, s.Name, s.ID)
	g.fanout.GameState(gm)
	return nil
}

func (g *Gateway) move(_ context.Context, s *Session, p event.Payload) error {
	in := p.(*event.Move)
	gm, err := g.games.Move(in.GameID, s.UserID, *in.Position)
	if err != nil {
		return err
	}
	g.fanout.GameState(gm)
	return nil
}

func (g *Gateway) resetGame(_ context.Context, s *Session, p event.Payload) error {
	gm, err := g.games.Reset(p.(*event.GameRef).GameID, s.UserID)
	if err != nil {
		return err
	}
	g.fanout.GameReset(gm, s.UserID)
	return nil
}

func (g *Gateway) gameState(ctx context.Context, s *Session, p event.Payload) error {
	gm, err := g.games.Visible(ctx, p.(*event.GameRef).GameID, s.UserID, g.chat.CheckMember)
	if err != nil {
		return err
	}
	g.hub.ToConn(s.ID, event.New(event.GameState, gm))
	return nil
}

// joinGameRoom is the seated-player variant of join:game that also tells
// the other participants who arrived.
func (g *Gateway) joinGameRoom(_ context.Context, s *Session, p event.Payload) error {
	gm, err := g.games.Get(p.(*event.GameRef).GameID)
	if err != nil {
		return err
	}
	if !gm.HasPlayer(s.UserID) {
		return errNotPlayer
	}
	g.hub.Join(s, event.GameRoom(gm.ID))
	g.hub.ToConn(s.ID, event.New(event.GameState, gm))
	g.fanout.PlayerJoined(gm.ID, s.UserID, s.Name, s.ID)
	return nil
}

func (g *Gateway) leaveGameRoom(_ context.Context, s *Session, p event.Payload) error {
	id := p.(*event.GameRef).GameID
	room := event.GameRoom(id)
	if !g.hub.InRoom(s, room) {
		return nil
	}
	g.hub.Leave(s, room)
	g.fanout.PlayerLeft(id, s.UserID, s.Name, s.ID)
	return nil
}

func (g *Gateway) invite(_ context.Context, s *Session, p event.Payload) error {
	in := p.(*event.Invite)
	gm, err := g.games.Get(in.GameID)
	if err != nil {
		return err
	}
	if !gm.HasPlayer(s.UserID) {
		return errNotPlayer
	}
	g.fanout.Invite(gm, in.InviteeID, Inviter{PlayerID: s.UserID, PlayerName: s.Name})
	return nil
}
