// Package server builds the HTTP server and logger for the bantr binary.
package server

import (
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Aman-Thakur002/Bantr/pkg/platform"
)

// Version is set at build time.
var Version = "dev"

// New returns an http.Server serving the platform on cfg.Server.Address.
func New(cfg *platform.Config, p *platform.Platform) *http.Server {
	return &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           p.Handler(),
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}
}

// NewLogger builds the slog logger described by cfg.
func NewLogger(cfg platform.LogConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
