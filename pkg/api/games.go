package api

import (
	"net/http"

	"github.com/Aman-Thakur002/Bantr/pkg/apperr"
	"github.com/Aman-Thakur002/Bantr/pkg/event"
)

func (h *Handler) createGame(w http.ResponseWriter, r *http.Request) {
	id := caller(r)
	if err := h.allow(id.UserID, event.GameCreate); err != nil {
		h.fail(w, r, err)
		return
	}

	var req event.CreateGame
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if _, err := h.chat.RequireMember(r.Context(), id.UserID, req.ConversationID); err != nil {
		h.fail(w, r, err)
		return
	}

	g := h.games.Create(id.UserID, req.ConversationID)
	h.fanout.GameState(g)
	writeJSON(w, http.StatusCreated, g)
}

// listGames lists the games of a conversation the caller belongs to.
func (h *Handler) listGames(w http.ResponseWriter, r *http.Request) {
	id := caller(r)
	convID := r.URL.Query().Get("conversationId")
	if convID == "" {
		h.fail(w, r, apperr.Invalid("INVALID_QUERY", "conversationId is required"))
		return
	}
	if _, err := h.chat.RequireMember(r.Context(), id.UserID, convID); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"games": h.games.ListByConversation(convID)})
}

func (h *Handler) getGame(w http.ResponseWriter, r *http.Request) {
	g, err := h.games.Visible(r.Context(), r.PathValue("id"), caller(r).UserID, h.chat.CheckMember)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (h *Handler) joinGame(w http.ResponseWriter, r *http.Request) {
	id := caller(r)
	if err := h.allow(id.UserID, event.GameJoinSeat); err != nil {
		h.fail(w, r, err)
		return
	}

	g, err := h.games.Join(r.PathValue("id"), id.UserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.fanout.PlayerJoined(g.ID, id.UserID, h.displayName(r.Context(), id), "")
	h.fanout.GameState(g)
	writeJSON(w, http.StatusOK, g)
}

type moveRequest struct {
	Position *int `json:"position"`
}

func (h *Handler) move(w http.ResponseWriter, r *http.Request) {
	id := caller(r)
	if err := h.allow(id.UserID, event.GameMove); err != nil {
		h.fail(w, r, err)
		return
	}

	var req moveRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	mv := event.Move{GameID: r.PathValue("id"), Position: req.Position}
	if err := mv.Validate(); err != nil {
		h.fail(w, r, err)
		return
	}

	g, err := h.games.Move(mv.GameID, id.UserID, *mv.Position)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.fanout.GameState(g)
	writeJSON(w, http.StatusOK, g)
}

func (h *Handler) resetGame(w http.ResponseWriter, r *http.Request) {
	id := caller(r)
	if err := h.allow(id.UserID, event.GameReset); err != nil {
		h.fail(w, r, err)
		return
	}

	g, err := h.games.Reset(r.PathValue("id"), id.UserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.fanout.GameReset(g, id.UserID)
	writeJSON(w, http.StatusOK, g)
}
