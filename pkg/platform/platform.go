package platform

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	_ "github.com/lib/pq" // postgres driver

	"github.com/Aman-Thakur002/Bantr/pkg/api"
	"github.com/Aman-Thakur002/Bantr/pkg/auth"
	"github.com/Aman-Thakur002/Bantr/pkg/chat"
	"github.com/Aman-Thakur002/Bantr/pkg/database/migrate"
	"github.com/Aman-Thakur002/Bantr/pkg/game"
	"github.com/Aman-Thakur002/Bantr/pkg/health"
	"github.com/Aman-Thakur002/Bantr/pkg/metrics"
	"github.com/Aman-Thakur002/Bantr/pkg/presence"
	"github.com/Aman-Thakur002/Bantr/pkg/ratelimit"
	"github.com/Aman-Thakur002/Bantr/pkg/realtime"
	"github.com/Aman-Thakur002/Bantr/pkg/store"
	"github.com/Aman-Thakur002/Bantr/pkg/store/memory"
	"github.com/Aman-Thakur002/Bantr/pkg/store/postgres"
	"github.com/Aman-Thakur002/Bantr/pkg/typing"
)

// handshakeCleanupInterval is how often idle handshake limiters are dropped.
const handshakeCleanupInterval = 5 * time.Minute

// Platform is the assembled server: stores, live session components and
// their HTTP surface.
type Platform struct {
	config    *Config
	logger    *slog.Logger
	lifecycle *Lifecycle
	health    *health.Checker
	metrics   *metrics.Metrics

	db    *sql.DB
	store store.Store

	verifier *auth.Verifier
	hub      *realtime.Hub
	presence *presence.Tracker
	typing   *typing.Coordinator
	limiter  *ratelimit.Limiter
	chat     *chat.Service
	games    *game.Engine
	gateway  *realtime.Gateway
	ws       *realtime.Server
	api      *api.Handler
}

// New creates a new platform instance.
func New(opts ...Option) (*Platform, error) {
	options := &Options{}
	for _, opt := range opts {
		opt(options)
	}

	if options.Config == nil {
		return nil, errors.New("config is required")
	}
	if err := options.Config.Validate(); err != nil {
		return nil, err
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}

	p := &Platform{
		config:    options.Config,
		logger:    options.Logger,
		lifecycle: NewLifecycle(options.Logger),
		health:    health.NewChecker(),
		metrics:   metrics.New(),
	}

	if err := p.initializeComponents(options); err != nil {
		return nil, fmt.Errorf("initializing components: %w", err)
	}
	return p, nil
}

// initializeComponents builds every component and registers its background
// work with the lifecycle.
func (p *Platform) initializeComponents(opts *Options) error {
	if err := p.initStore(opts); err != nil {
		return err
	}
	if err := p.initRealtime(); err != nil {
		return err
	}
	if err := p.initAPI(); err != nil {
		return err
	}
	p.registerObservers()
	p.registerBackgroundWork()
	return nil
}

// initStore selects the store: an explicit one, then Postgres, then memory.
func (p *Platform) initStore(opts *Options) error {
	cfg := p.config.Database

	switch {
	case opts.Store != nil:
		p.store = opts.Store
		p.db = opts.DB

	case opts.DB != nil:
		p.db = opts.DB
		p.store = postgres.New(opts.DB)

	case cfg.DSN != "":
		db, err := sql.Open("postgres", cfg.DSN)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		p.db = db
		p.store = postgres.New(db)
		p.lifecycle.RegisterCloser("database", db)

	default:
		mem := memory.New()
		seedMemory(mem, p.config.Seed)
		p.store = mem
		p.logger.Info("using in-memory store", "users", len(p.config.Seed.Users))
	}

	if p.db != nil {
		p.lifecycle.Append("database", p.prepareDatabase, nil)
	}
	return nil
}

// prepareDatabase checks connectivity and applies migrations if enabled.
func (p *Platform) prepareDatabase(ctx context.Context) error {
	if err := p.db.PingContext(ctx); err != nil {
		return fmt.Errorf("pinging database: %w", err)
	}
	if !p.config.Database.Migrate {
		return nil
	}
	if err := migrate.Run(p.db); err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}
	return nil
}

func seedMemory(mem *memory.Store, seed SeedConfig) {
	for _, u := range seed.Users {
		mem.PutUser(store.User{
			ID:        u.ID,
			Name:      u.Name,
			Email:     u.Email,
			AvatarURL: u.AvatarURL,
			Status:    store.StatusOffline,
		})
	}
	for _, c := range seed.Conversations {
		mem.PutConversation(store.Conversation{
			ID:         c.ID,
			Title:      c.Title,
			IsGroup:    len(c.Members) > 2,
			Members:    c.Members,
			Admins:     c.Admins,
			Moderators: c.Moderators,
			CreatedAt:  time.Now(),
		})
	}
}

func (p *Platform) initRealtime() error {
	cfg := p.config

	verifier, err := auth.NewVerifier(auth.VerifierConfig{
		Secret: []byte(cfg.Auth.AccessSecret),
		Issuer: cfg.Auth.Issuer,
	})
	if err != nil {
		return fmt.Errorf("creating token verifier: %w", err)
	}
	p.verifier = verifier

	p.hub = realtime.NewHub(p.logger, p.metrics)
	p.presence = presence.New(presence.Config{
		Store:           p.store,
		Emitter:         p.hub,
		PersistInterval: cfg.Presence.HeartbeatPersistInterval,
		StaleAfter:      cfg.Presence.StaleAfter,
		Logger:          p.logger,
	})
	p.typing = typing.New(typing.Config{
		TTL:     cfg.Typing.TTL,
		Emitter: p.hub,
		Logger:  p.logger,
	})
	p.limiter = ratelimit.New(ratelimit.WithPolicies(cfg.ratePolicies()))
	p.chat = chat.New(chat.Config{
		Store:      p.store,
		EditWindow: cfg.Chat.EditWindow,
		Logger:     p.logger,
	})
	p.games = game.NewEngine(game.Config{TTL: cfg.Games.TTL, Logger: p.logger})

	p.gateway, err = realtime.NewGateway(realtime.GatewayConfig{
		Users:      p.store,
		Verifier:   verifier,
		Hub:        p.hub,
		Presence:   p.presence,
		Typing:     p.typing,
		Limiter:    p.limiter,
		Chat:       p.chat,
		Games:      p.games,
		Metrics:    p.metrics,
		Logger:     p.logger,
		SendBuffer: cfg.Realtime.SendBuffer,
	})
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	p.ws = realtime.NewServer(p.gateway, realtime.TransportConfig{
		AllowedOrigins:  cfg.Server.AllowedOrigins,
		PingInterval:    cfg.Realtime.PingInterval,
		PongWait:        cfg.Realtime.PongWait,
		WriteWait:       cfg.Realtime.WriteWait,
		MaxMessageBytes: cfg.Realtime.MaxMessageBytes,
		HandshakeRate:   cfg.Realtime.HandshakeRate,
		HandshakeBurst:  cfg.Realtime.HandshakeBurst,
		Logger:          p.logger,
	})
	return nil
}

func (p *Platform) initAPI() error {
	h, err := api.NewHandler(api.Config{
		Verifier: p.verifier,
		Users:    p.store,
		Chat:     p.chat,
		Games:    p.games,
		Presence: p.presence,
		Fanout:   p.gateway.Fanout(),
		Limiter:  p.limiter,
		Metrics:  p.metrics,
		Logger:   p.logger,
	})
	if err != nil {
		return fmt.Errorf("creating api handler: %w", err)
	}
	p.api = h
	return nil
}

// registerObservers exposes live counts to metrics and readiness.
func (p *Platform) registerObservers() {
	p.metrics.ObserveGauge("presence_online", "Users currently online.", func() float64 {
		return float64(p.presence.Count())
	})
	p.metrics.ObserveGauge("games_active", "Games held in memory.", func() float64 {
		return float64(p.games.Len())
	})

	p.health.Report("connections", p.hub.Count)
	p.health.Report("online_users", p.presence.Count)
	p.health.Report("games", p.games.Len)
}

// registerBackgroundWork starts the sweeps on Start and stops them, then
// closes every session, on Stop. The hub is registered last so it closes
// first.
func (p *Platform) registerBackgroundWork() {
	cfg := p.config

	p.lifecycle.Append("rate limiter", func(context.Context) error {
		p.limiter.StartCleanupRoutine(cfg.RateLimit.SweepInterval)
		return nil
	}, closeHook(p.limiter))

	p.lifecycle.Append("presence", func(context.Context) error {
		p.presence.StartSweepRoutine(cfg.Presence.SweepInterval)
		return nil
	}, closeHook(p.presence))

	p.lifecycle.Append("typing", func(context.Context) error {
		p.typing.StartSweepRoutine(cfg.Typing.SweepInterval)
		return nil
	}, closeHook(p.typing))

	p.lifecycle.Append("games", func(context.Context) error {
		p.games.StartCleanupRoutine(cfg.Games.SweepInterval)
		return nil
	}, closeHook(p.games))

	p.lifecycle.Append("websocket server", func(context.Context) error {
		p.ws.StartCleanupRoutine(handshakeCleanupInterval)
		return nil
	}, closeHook(p.ws))

	p.lifecycle.RegisterCloser("hub", p.hub)
}

func closeHook(c Closer) func(context.Context) error {
	return func(context.Context) error { return c.Close() }
}

// Handler returns the HTTP surface: the websocket endpoint, the REST API,
// metrics and health checks.
func (p *Platform) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /ws", p.metrics.InstrumentHandler(p.ws))
	mux.Handle("/api/v1/", p.api)
	mux.Handle("GET /metrics", p.metrics.Handler())
	mux.Handle("GET /healthz", p.health.LivenessHandler())
	mux.Handle("GET /readyz", p.health.ReadinessHandler())
	return mux
}

// Start starts background work and marks the platform ready.
func (p *Platform) Start(ctx context.Context) error {
	if err := p.lifecycle.Start(ctx); err != nil {
		return err
	}
	p.health.SetReady()
	return nil
}

// Drain marks the platform as not ready so load balancers stop routing new
// connections to it.
func (p *Platform) Drain() {
	p.health.SetDraining()
}

// Stop stops background work and closes every session.
func (p *Platform) Stop(ctx context.Context) error {
	p.health.SetDraining()
	return p.lifecycle.Stop(ctx)
}

// Config returns the platform configuration.
func (p *Platform) Config() *Config {
	return p.config
}

// Health returns the readiness checker.
func (p *Platform) Health() *health.Checker {
	return p.health
}

// Metrics returns the metrics registry.
func (p *Platform) Metrics() *metrics.Metrics {
	return p.metrics
}

// Store returns the backing store.
func (p *Platform) Store() store.Store {
	return p.store
}

// Hub returns the session hub.
func (p *Platform) Hub() *realtime.Hub {
	return p.hub
}
