// Package api provides the REST endpoints for messages, games and presence.
// Mutations go through the same services as the websocket handlers and are
// fanned out to connected sessions.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/Aman-Thakur002/Bantr/pkg/apperr"
	"github.com/Aman-Thakur002/Bantr/pkg/auth"
	"github.com/Aman-Thakur002/Bantr/pkg/chat"
	"github.com/Aman-Thakur002/Bantr/pkg/game"
	"github.com/Aman-Thakur002/Bantr/pkg/metrics"
	"github.com/Aman-Thakur002/Bantr/pkg/presence"
	"github.com/Aman-Thakur002/Bantr/pkg/ratelimit"
	"github.com/Aman-Thakur002/Bantr/pkg/realtime"
	"github.com/Aman-Thakur002/Bantr/pkg/store"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// Config wires a Handler to its collaborators. Limiter and Metrics are
// optional.
type Config struct {
	Verifier *auth.Verifier
	Users    store.UserStore
	Chat     *chat.Service
	Games    *game.Engine
	Presence *presence.Tracker
	Fanout   *realtime.Fanout
	Limiter  *ratelimit.Limiter
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

// Handler serves the REST API.
type Handler struct {
	mux      *http.ServeMux
	authn    func(http.Handler) http.Handler
	users    store.UserStore
	chat     *chat.Service
	games    *game.Engine
	presence *presence.Tracker
	fanout   *realtime.Fanout
	limiter  *ratelimit.Limiter
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewHandler creates a REST API handler.
func NewHandler(cfg Config) (*Handler, error) {
	switch {
	case cfg.Verifier == nil:
		return nil, errors.New("api: verifier is required")
	case cfg.Users == nil:
		return nil, errors.New("api: user store is required")
	case cfg.Chat == nil:
		return nil, errors.New("api: chat service is required")
	case cfg.Games == nil:
		return nil, errors.New("api: game engine is required")
	case cfg.Presence == nil:
		return nil, errors.New("api: presence tracker is required")
	case cfg.Fanout == nil:
		return nil, errors.New("api: fanout is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	h := &Handler{
		mux:      http.NewServeMux(),
		users:    cfg.Users,
		chat:     cfg.Chat,
		games:    cfg.Games,
		presence: cfg.Presence,
		fanout:   cfg.Fanout,
		limiter:  cfg.Limiter,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
	}
	h.authn = auth.Middleware(cfg.Verifier, func(w http.ResponseWriter, _ *http.Request, err error) {
		w.Header().Set("WWW-Authenticate", "Bearer")
		msg := "authentication failed"
		if errors.Is(err, auth.ErrMissingToken) {
			msg = "authentication token required"
		}
		writeError(w, apperr.Authentication(msg))
	})
	h.registerRoutes()
	return h, nil
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) registerRoutes() {
	h.handle("POST /api/v1/conversations/{id}/messages", h.sendMessage)
	h.handle("POST /api/v1/conversations/{id}/read", h.markRead)
	h.handle("PATCH /api/v1/messages/{id}", h.editMessage)
	h.handle("DELETE /api/v1/messages/{id}", h.deleteMessage)
	h.handle("POST /api/v1/messages/{id}/reactions", h.addReaction)
	h.handle("DELETE /api/v1/messages/{id}/reactions/{emoji}", h.removeReaction)

	h.handle("POST /api/v1/games", h.createGame)
	h.handle("GET /api/v1/games", h.listGames)
	h.handle("GET /api/v1/games/{id}", h.getGame)
	h.handle("POST /api/v1/games/{id}/join", h.joinGame)
	h.handle("POST /api/v1/games/{id}/moves", h.move)
	h.handle("POST /api/v1/games/{id}/reset", h.resetGame)

	h.handle("GET /api/v1/presence", h.getPresence)
}

// handle registers an authenticated, instrumented route. Instrumentation
// sits inside the mux so the matched pattern is available as a label.
func (h *Handler) handle(pattern string, fn http.HandlerFunc) {
	h.mux.Handle(pattern, h.metrics.InstrumentHandler(h.authn(fn)))
}

// caller returns the authenticated identity. The auth middleware guarantees
// one is present.
func caller(r *http.Request) *auth.Identity {
	return auth.IdentityFrom(r.Context())
}

// displayName prefers the token's name claim and falls back to the stored
// user.
func (h *Handler) displayName(ctx context.Context, id *auth.Identity) string {
	if id.Name != "" {
		return id.Name
	}
	u, err := h.users.GetUser(ctx, id.UserID)
	if err != nil {
		return ""
	}
	return u.Name
}

// allow applies the same per-user policy as the equivalent socket event.
func (h *Handler) allow(userID, kind string) error {
	if h.limiter == nil || h.limiter.AllowEvent(userID, kind) {
		return nil
	}
	h.metrics.RateLimited(kind)
	return apperr.RateLimited()
}

// decode reads a JSON body into v and validates it when v knows how.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return apperr.Invalid("INVALID_BODY", "request body must be valid JSON")
	}
	if val, ok := v.(interface{ Validate() error }); ok {
		return val.Validate()
	}
	return nil
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if apperr.KindOf(err) == apperr.KindInternal {
		h.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	} else {
		h.logger.Debug("request rejected", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeError(w, err)
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response. Internal causes are not exposed.
func writeError(w http.ResponseWriter, err error) {
	ae := apperr.From(err)
	writeJSON(w, apperr.HTTPStatus(ae), map[string]string{"error": ae.Message, "code": ae.Code})
}
