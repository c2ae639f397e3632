package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Aman-Thakur002/Bantr/pkg/apperr"
	"github.com/Aman-Thakur002/Bantr/pkg/auth"
)

// Transport defaults.
const (
	DefaultPingInterval    = 54 * time.Second
	DefaultPongWait        = 60 * time.Second
	DefaultWriteWait       = 10 * time.Second
	DefaultMaxMessageBytes = 64 << 10
	DefaultHandshakeRate   = 5.0
	DefaultHandshakeBurst  = 10

	disconnectTimeout = 5 * time.Second
)

// TransportConfig configures the websocket server.
type TransportConfig struct {
	// AllowedOrigins lists accepted Origin headers. Empty accepts requests
	// without an Origin and same-host origins only; "*" accepts any.
	AllowedOrigins []string

	PingInterval    time.Duration
	PongWait        time.Duration
	WriteWait       time.Duration
	MaxMessageBytes int64

	// HandshakeRate is handshakes per second per remote address.
	HandshakeRate  float64
	HandshakeBurst int

	Logger *slog.Logger
}

// Server upgrades authenticated HTTP requests to websocket sessions.
type Server struct {
	gateway    *Gateway
	upgrader   websocket.Upgrader
	handshakes *handshakeLimiter
	cfg        TransportConfig
	logger     *slog.Logger
}

// NewServer creates a websocket Server over gw.
func NewServer(gw *Gateway, cfg TransportConfig) *Server {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = DefaultPingInterval
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = DefaultPongWait
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = DefaultWriteWait
	}
	if cfg.MaxMessageBytes <= 0 {
		cfg.MaxMessageBytes = DefaultMaxMessageBytes
	}
	if cfg.HandshakeRate <= 0 {
		cfg.HandshakeRate = DefaultHandshakeRate
	}
	if cfg.HandshakeBurst <= 0 {
		cfg.HandshakeBurst = DefaultHandshakeBurst
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Server{
		gateway:    gw,
		handshakes: newHandshakeLimiter(cfg.HandshakeRate, cfg.HandshakeBurst),
		cfg:        cfg,
		logger:     cfg.Logger,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// StartCleanupRoutine periodically forgets idle handshake limiters.
func (s *Server) StartCleanupRoutine(interval time.Duration) {
	s.handshakes.startCleanup(interval)
}

// Close stops background work. Open connections are closed by the hub.
func (s *Server) Close() error {
	s.handshakes.close()
	return nil
}

// ServeHTTP authenticates before upgrading, so a rejected client gets an
// HTTP error instead of an application error event.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !s.handshakes.allow(r) {
		writeHandshakeError(w, apperr.RateLimited())
		return
	}

	sess, err := s.gateway.Authenticate(r.Context(), auth.TokenFromRequest(r))
	if err != nil {
		if apperr.KindOf(err) == apperr.KindInternal {
			s.logger.Error("handshake failed", "remote_addr", r.RemoteAddr, "error", err)
		} else {
			s.logger.Debug("handshake rejected", "remote_addr", r.RemoteAddr, "error", err)
		}
		writeHandshakeError(w, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &connection{
		conn:    conn,
		session: sess,
		server:  s,
		cancel:  cancel,
	}

	s.gateway.Connect(ctx, sess)

	go c.writePump()
	go c.readPump(ctx)
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if slices.Contains(s.cfg.AllowedOrigins, "*") || slices.Contains(s.cfg.AllowedOrigins, origin) {
		return true
	}
	u, err := url.Parse(origin)
	return err == nil && u.Host == r.Host
}

func writeHandshakeError(w http.ResponseWriter, err error) {
	ae := apperr.From(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apperr.HTTPStatus(ae))
	_ = json.NewEncoder(w).Encode(map[string]string{"error": ae.Message, "code": ae.Code})
}

// connection pumps frames between one websocket and its session.
type connection struct {
	conn    *websocket.Conn
	session *Session
	server  *Server
	cancel  context.CancelFunc
}

// readPump dispatches inbound frames in order. It owns teardown: when the
// socket fails it disconnects the session, which closes the outbound queue
// and stops writePump.
func (c *connection) readPump(ctx context.Context) {
	cfg := c.server.cfg
	logger := c.server.logger

	defer func() {
		c.cancel()
		dctx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
		defer cancel()
		c.server.gateway.Disconnect(dctx, c.session)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(cfg.MaxMessageBytes)
	if err := c.conn.SetReadDeadline(time.Now().Add(cfg.PongWait)); err != nil {
		logger.Error("failed to set read deadline", "error", err)
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("websocket read error",
					"conn_id", c.session.ID, "user_id", c.session.UserID, "error", err)
			}
			return
		}
		if messageType == websocket.TextMessage {
			c.server.gateway.Dispatch(ctx, c.session, message)
		}
	}
}

// writePump drains the session queue and keeps the peer alive with pings.
func (c *connection) writePump() {
	cfg := c.server.cfg
	ticker := time.NewTicker(cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	out := c.session.Outbound()
	for {
		select {
		case message, ok := <-out:
			if !ok {
				if err := c.conn.SetWriteDeadline(time.Now().Add(time.Second)); err == nil {
					_ = c.conn.WriteMessage(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				}
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

			// Flush whatever queued up meanwhile.
			for range len(out) {
				message, ok := <-out
				if !ok {
					return
				}
				if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
					return
				}
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
