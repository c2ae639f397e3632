package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/Aman-Thakur002/Bantr/pkg/apperr"
	"github.com/Aman-Thakur002/Bantr/pkg/auth"
	"github.com/Aman-Thakur002/Bantr/pkg/chat"
	"github.com/Aman-Thakur002/Bantr/pkg/event"
	"github.com/Aman-Thakur002/Bantr/pkg/game"
	"github.com/Aman-Thakur002/Bantr/pkg/metrics"
	"github.com/Aman-Thakur002/Bantr/pkg/presence"
	"github.com/Aman-Thakur002/Bantr/pkg/ratelimit"
	"github.com/Aman-Thakur002/Bantr/pkg/store"
	"github.com/Aman-Thakur002/Bantr/pkg/typing"
)

// GatewayConfig wires the gateway to the components it hands sessions to.
type GatewayConfig struct {
	Users      store.UserStore
	Verifier   *auth.Verifier
	Hub        *Hub
	Presence   *presence.Tracker
	Typing     *typing.Coordinator
	Limiter    *ratelimit.Limiter
	Chat       *chat.Service
	Games      *game.Engine
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
	SendBuffer int
}

type handlerFunc func(ctx context.Context, s *Session, p event.Payload) error

// Gateway authenticates connections, owns their sessions and routes inbound
// events to the presence, typing, chat and game components.
type Gateway struct {
	users    store.UserStore
	verifier *auth.Verifier
	hub      *Hub
	presence *presence.Tracker
	typing   *typing.Coordinator
	limiter  *ratelimit.Limiter
	chat     *chat.Service
	games    *game.Engine
	fanout   *Fanout
	metrics  *metrics.Metrics
	logger   *slog.Logger

	sendBuffer int
	handlers   map[string]handlerFunc
}

// NewGateway creates a Gateway.
func NewGateway(cfg GatewayConfig) (*Gateway, error) {
	switch {
	case cfg.Users == nil:
		return nil, fmt.Errorf("gateway requires a user store")
	case cfg.Verifier == nil:
		return nil, fmt.Errorf("gateway requires a token verifier")
	case cfg.Hub == nil:
		return nil, fmt.Errorf("gateway requires a hub")
	case cfg.Presence == nil, cfg.Typing == nil, cfg.Limiter == nil, cfg.Chat == nil, cfg.Games == nil:
		return nil, fmt.Errorf("gateway requires presence, typing, rate limiter, chat and game components")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	g := &Gateway{
		users:      cfg.Users,
		verifier:   cfg.Verifier,
		hub:        cfg.Hub,
		presence:   cfg.Presence,
		typing:     cfg.Typing,
		limiter:    cfg.Limiter,
		chat:       cfg.Chat,
		games:      cfg.Games,
		fanout:     NewFanout(cfg.Hub),
		metrics:    cfg.Metrics,
		logger:     cfg.Logger,
		sendBuffer: cfg.SendBuffer,
	}
	g.handlers = g.routes()
	for _, name := range event.Names() {
		if _, ok := g.handlers[name]; !ok {
			return nil, fmt.Errorf("gateway has no handler for event %s", name)
		}
	}
	return g, nil
}

// Fanout returns the broadcaster shared with the REST API.
func (g *Gateway) Fanout() *Fanout {
	return g.fanout
}

// Authenticate verifies token and loads the user. No session exists unless
// it succeeds.
func (g *Gateway) Authenticate(ctx context.Context, token string) (*Session, error) {
	id, err := g.verifier.Verify(token)
	if errors.Is(err, auth.ErrMissingToken) {
		return nil, apperr.Authentication("authentication token required")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindAuthentication, "UNAUTHENTICATED", "authentication failed", err)
	}

	user, err := g.users.GetUser(ctx, id.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.Authentication("user not found")
	}
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("loading user %s: %w", id.UserID, err))
	}

	return NewSession(user.ID, user.Name, user.AvatarURL, g.sendBuffer), nil
}

// Connect registers an authenticated session, joins its private room and
// announces the user online.
func (g *Gateway) Connect(_ context.Context, s *Session) {
	g.hub.Register(s)
	g.hub.Join(s, event.UserRoom(s.UserID))
	g.metrics.ConnectionOpened()
	g.presence.Connect(store.User{ID: s.UserID, Name: s.Name, AvatarURL: s.AvatarURL}, s.ID)

	g.logger.Info("session connected", "conn_id", s.ID, "user_id", s.UserID)
}

// Disconnect releases everything the session owned. The transport calls it
// once per session.
func (g *Gateway) Disconnect(_ context.Context, s *Session) {
	g.typing.DisconnectUser(s.UserID)
	g.presence.Disconnect(s.UserID, s.ID)
	g.hub.Unregister(s)
	g.metrics.ConnectionClosed()

	g.logger.Info("session disconnected", "conn_id", s.ID, "user_id", s.UserID)
}

// Dispatch decodes one inbound frame, applies the rate limit for its event
// kind and runs its handler. Every failure becomes an error event on the
// originating connection. Frames with an empty or unregistered event name are
// limited and counted under event.Unknown.
func (g *Gateway) Dispatch(ctx context.Context, s *Session, frame []byte) {
	name, payload, err := event.Decode(frame)
	label := event.Label(name)

	if !g.limiter.AllowEvent(s.UserID, label) {
		g.metrics.Event(label, metrics.OutcomeRateLimited)
		g.metrics.RateLimited(label)
		g.emitError(s, name, apperr.RateLimited())
		return
	}

	if err != nil {
		g.metrics.Event(label, metrics.OutcomeInvalid)
		g.emitError(s, name, err)
		return
	}

	if err := g.run(ctx, s, name, payload); err != nil {
		g.metrics.Event(name, metrics.OutcomeError)
		g.emitError(s, name, err)
		return
	}
	g.metrics.Event(name, metrics.OutcomeOK)
}

func (g *Gateway) run(ctx context.Context, s *Session, name string, p event.Payload) (err error) {
	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("event handler panicked",
				"event", name, "conn_id", s.ID, "panic", r, "stack", string(debug.Stack()))
			err = apperr.Internal(fmt.Errorf("handler panic: %v", r))
		}
	}()

	h, ok := g.handlers[name]
	if !ok {
		return apperr.Invalid("UNKNOWN_EVENT", "unknown event "+name)
	}
	return h(ctx, s, p)
}

func (g *Gateway) emitError(s *Session, name string, err error) {
	ae := apperr.From(err)
	if ae.Kind == apperr.KindInternal {
		g.logger.Error("event failed", "event", name, "conn_id", s.ID, "user_id", s.UserID, "error", err)
	} else {
		g.logger.Debug("event rejected", "event", name, "conn_id", s.ID, "code", ae.Code)
	}
	g.hub.ToConn(s.ID, event.New(event.ErrorEvent, event.Error{
		Message: ae.Message,
		Code:    ae.Code,
		Event:   name,
	}))
}
