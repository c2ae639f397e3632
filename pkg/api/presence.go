package api

import (
	"net/http"
	"strings"

	"github.com/Aman-Thakur002/Bantr/pkg/apperr"
	"github.com/Aman-Thakur002/Bantr/pkg/event"
)

// getPresence answers GET /api/v1/presence?userIds=a,b from the in-memory
// tracker. Repeated userIds parameters are also accepted.
func (h *Handler) getPresence(w http.ResponseWriter, r *http.Request) {
	id := caller(r)
	if err := h.allow(id.UserID, event.PresenceGetOnline); err != nil {
		h.fail(w, r, err)
		return
	}

	var ids []string
	for _, v := range r.URL.Query()["userIds"] {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				ids = append(ids, part)
			}
		}
	}
	if len(ids) == 0 {
		h.fail(w, r, apperr.Invalid("INVALID_QUERY", "userIds is required"))
		return
	}
	if len(ids) > event.MaxBatchIDs {
		h.fail(w, r, apperr.Invalid("INVALID_QUERY", "too many userIds"))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"users": h.presence.GetOnline(ids)})
}
