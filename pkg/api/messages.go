package api

import (
	"net/http"
	"strconv"

	"github.com/Aman-Thakur002/Bantr/pkg/chat"
	"github.com/Aman-Thakur002/Bantr/pkg/event"
)

type sendMessageRequest struct {
	Text        string   `json:"text"`
	Attachments []string `json:"attachments,omitempty"`
	ReplyTo     string   `json:"replyTo,omitempty"`
}

func (h *Handler) sendMessage(w http.ResponseWriter, r *http.Request) {
	id := caller(r)
	if err := h.allow(id.UserID, event.ChatSend); err != nil {
		h.fail(w, r, err)
		return
	}

	var req sendMessageRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	view, err := h.chat.Send(r.Context(), id.UserID, chat.SendInput{
		ConversationID: r.PathValue("id"),
		Text:           req.Text,
		Attachments:    req.Attachments,
		ReplyTo:        req.ReplyTo,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.fanout.MessageCreated(view, "", "")
	writeJSON(w, http.StatusCreated, view)
}

type editMessageRequest struct {
	Text string `json:"text"`
}

func (h *Handler) editMessage(w http.ResponseWriter, r *http.Request) {
	id := caller(r)
	if err := h.allow(id.UserID, event.ChatEdit); err != nil {
		h.fail(w, r, err)
		return
	}

	var req editMessageRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	view, err := h.chat.Edit(r.Context(), id.UserID, r.PathValue("id"), req.Text)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.fanout.MessageEdited(view)
	writeJSON(w, http.StatusOK, view)
}

// deleteMessage hides a message for the caller, or for everyone when
// ?everyone=true.
func (h *Handler) deleteMessage(w http.ResponseWriter, r *http.Request) {
	id := caller(r)
	if err := h.allow(id.UserID, event.ChatDelete); err != nil {
		h.fail(w, r, err)
		return
	}

	forEveryone, _ := strconv.ParseBool(r.URL.Query().Get("everyone"))
	res, err := h.chat.Delete(r.Context(), id.UserID, r.PathValue("id"), forEveryone)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.fanout.MessageDeleted(res)
	writeJSON(w, http.StatusOK, res)
}

type reactionRequest struct {
	Emoji string `json:"emoji"`
}

func (h *Handler) addReaction(w http.ResponseWriter, r *http.Request) {
	id := caller(r)
	if err := h.allow(id.UserID, event.ChatReact); err != nil {
		h.fail(w, r, err)
		return
	}

	var body reactionRequest
	if err := decode(r, &body); err != nil {
		h.fail(w, r, err)
		return
	}
	req := event.Reaction{MessageID: r.PathValue("id"), Emoji: body.Emoji}
	if err := req.Validate(); err != nil {
		h.fail(w, r, err)
		return
	}

	res, err := h.chat.React(r.Context(), id.UserID, req.MessageID, req.Emoji)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.fanout.ReactionChanged(res, h.displayName(r.Context(), id))
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) removeReaction(w http.ResponseWriter, r *http.Request) {
	id := caller(r)
	if err := h.allow(id.UserID, event.ChatUnreact); err != nil {
		h.fail(w, r, err)
		return
	}

	req := event.Reaction{MessageID: r.PathValue("id"), Emoji: r.PathValue("emoji")}
	if err := req.Validate(); err != nil {
		h.fail(w, r, err)
		return
	}

	res, err := h.chat.RemoveReaction(r.Context(), id.UserID, req.MessageID, req.Emoji)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.fanout.ReactionChanged(res, h.displayName(r.Context(), id))
	writeJSON(w, http.StatusOK, res)
}

type markReadRequest struct {
	MessageIDs []string `json:"messageIds"`
}

func (h *Handler) markRead(w http.ResponseWriter, r *http.Request) {
	id := caller(r)
	if err := h.allow(id.UserID, event.ChatRead); err != nil {
		h.fail(w, r, err)
		return
	}

	var req markReadRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	receipt := event.ReadReceipt{ConversationID: r.PathValue("id"), MessageIDs: req.MessageIDs}
	if err := receipt.Validate(); err != nil {
		h.fail(w, r, err)
		return
	}

	res, err := h.chat.MarkRead(r.Context(), id.UserID, receipt.ConversationID, receipt.MessageIDs)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.fanout.MessagesRead(res, h.displayName(r.Context(), id), "")
	writeJSON(w, http.StatusOK, map[string]any{
		"conversationId": res.ConversationID,
		"messageIds":     res.MessageIDs,
		"count":          len(res.MessageIDs),
		"readAt":         res.ReadAt,
	})
}
