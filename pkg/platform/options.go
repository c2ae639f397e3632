package platform

import (
	"database/sql"
	"log/slog"

	"github.com/Aman-Thakur002/Bantr/pkg/store"
)

// Options configures the platform.
type Options struct {
	// Config is the platform configuration.
	Config *Config

	// DB is an open Postgres pool (optional, opened from Config.Database.DSN
	// if not provided). The platform does not close a pool it was given.
	DB *sql.DB

	// Store overrides the store selection entirely (optional).
	Store store.Store

	// Logger (optional, defaults to slog.Default()).
	Logger *slog.Logger
}

// Option is a functional option for configuring the platform.
type Option func(*Options)

// WithConfig sets the configuration.
func WithConfig(cfg *Config) Option {
	return func(o *Options) {
		o.Config = cfg
	}
}

// WithDB sets the database connection.
func WithDB(db *sql.DB) Option {
	return func(o *Options) {
		o.DB = db
	}
}

// WithStore sets the store used for users, conversations and messages.
func WithStore(s store.Store) Option {
	return func(o *Options) {
		o.Store = s
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}
