// Package platform wires the live session components into one server.
package platform

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Aman-Thakur002/Bantr/pkg/auth"
	"github.com/Aman-Thakur002/Bantr/pkg/ratelimit"
)

// CurrentConfigVersion is the only accepted apiVersion.
const CurrentConfigVersion = "v1"

// SecretEnvVar supplies the access secret when no config file is used.
const SecretEnvVar = "BANTR_ACCESS_SECRET"

// Config holds the complete server configuration.
type Config struct {
	APIVersion string          `yaml:"apiVersion"`
	Server     ServerConfig    `yaml:"server"`
	Auth       AuthConfig      `yaml:"auth"`
	Database   DatabaseConfig  `yaml:"database"`
	Log        LogConfig       `yaml:"log"`
	Realtime   RealtimeConfig  `yaml:"realtime"`
	Presence   PresenceConfig  `yaml:"presence"`
	Typing     TypingConfig    `yaml:"typing"`
	RateLimit  RateLimitConfig `yaml:"rate_limit"`
	Games      GamesConfig     `yaml:"games"`
	Chat       ChatConfig      `yaml:"chat"`
	Seed       SeedConfig      `yaml:"seed"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Address           string        `yaml:"address"`
	AllowedOrigins    []string      `yaml:"allowed_origins"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
}

// AuthConfig configures access token verification.
type AuthConfig struct {
	AccessSecret string `yaml:"access_secret"`
	Issuer       string `yaml:"issuer"`
}

// DatabaseConfig configures the database connection. An empty DSN selects
// the in-memory store.
type DatabaseConfig struct {
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	Migrate      bool   `yaml:"migrate"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// RealtimeConfig configures the websocket transport.
type RealtimeConfig struct {
	SendBuffer      int           `yaml:"send_buffer"`
	MaxMessageBytes int64         `yaml:"max_message_bytes"`
	PingInterval    time.Duration `yaml:"ping_interval"`
	PongWait        time.Duration `yaml:"pong_wait"`
	WriteWait       time.Duration `yaml:"write_wait"`
	HandshakeRate   float64       `yaml:"handshake_rate"`
	HandshakeBurst  int           `yaml:"handshake_burst"`
}

// PresenceConfig configures the presence tracker.
type PresenceConfig struct {
	HeartbeatPersistInterval time.Duration `yaml:"heartbeat_persist_interval"`
	StaleAfter               time.Duration `yaml:"stale_after"`
	SweepInterval            time.Duration `yaml:"sweep_interval"`
}

// TypingConfig configures typing indicators.
type TypingConfig struct {
	TTL           time.Duration `yaml:"ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// RateLimitConfig configures per-user event limits. Events entries override
// the built-in policy of the same event name.
type RateLimitConfig struct {
	SweepInterval time.Duration              `yaml:"sweep_interval"`
	Events        map[string]RateLimitPolicy `yaml:"events"`
}

// RateLimitPolicy allows Max events per Window.
type RateLimitPolicy struct {
	Max    int           `yaml:"max"`
	Window time.Duration `yaml:"window"`
}

// GamesConfig configures the game engine.
type GamesConfig struct {
	TTL           time.Duration `yaml:"ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// ChatConfig configures message rules.
type ChatConfig struct {
	EditWindow time.Duration `yaml:"edit_window"`
}

// SeedConfig preloads the in-memory store. It is ignored when a database
// is configured.
type SeedConfig struct {
	Users         []SeedUser         `yaml:"users"`
	Conversations []SeedConversation `yaml:"conversations"`
}

// SeedUser is a user created at startup.
type SeedUser struct {
	ID        string `yaml:"id"`
	Name      string `yaml:"name"`
	Email     string `yaml:"email"`
	AvatarURL string `yaml:"avatar_url"`
}

// SeedConversation is a conversation created at startup.
type SeedConversation struct {
	ID         string   `yaml:"id"`
	Title      string   `yaml:"title"`
	Members    []string `yaml:"members"`
	Admins     []string `yaml:"admins"`
	Moderators []string `yaml:"moderators"`
}

// LoadConfig loads configuration from a file.
// The path is expected to come from command line arguments, controlled by the administrator.
func LoadConfig(path string) (*Config, error) {
	// #nosec G304 -- path is from CLI args, controlled by admin
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig parses YAML configuration, expanding ${VAR} references and
// applying defaults.
func ParseConfig(data []byte) (*Config, error) {
	data = []byte(expandEnvVars(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

// DefaultConfig returns the configuration used without a config file. The
// access secret comes from the environment.
func DefaultConfig() *Config {
	cfg := &Config{Auth: AuthConfig{AccessSecret: os.Getenv(SecretEnvVar)}}
	applyDefaults(cfg)
	return cfg
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars expands ${VAR} patterns in the string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(match[2 : len(match)-1])
	})
}

// applyDefaults applies default values to the config.
func applyDefaults(cfg *Config) {
	if cfg.APIVersion == "" {
		cfg.APIVersion = CurrentConfigVersion
	}

	setDefault(&cfg.Server.Address, ":8080")
	setDefault(&cfg.Server.ReadHeaderTimeout, 10*time.Second)
	setDefault(&cfg.Server.ShutdownTimeout, 15*time.Second)

	setDefault(&cfg.Database.MaxOpenConns, 25)

	setDefault(&cfg.Log.Level, "info")
	setDefault(&cfg.Log.Format, "json")

	setDefault(&cfg.Realtime.SendBuffer, 256)
	setDefault(&cfg.Realtime.MaxMessageBytes, 64<<10)
	setDefault(&cfg.Realtime.PingInterval, 54*time.Second)
	setDefault(&cfg.Realtime.PongWait, 60*time.Second)
	setDefault(&cfg.Realtime.WriteWait, 10*time.Second)
	setDefault(&cfg.Realtime.HandshakeRate, 5)
	setDefault(&cfg.Realtime.HandshakeBurst, 10)

	setDefault(&cfg.Presence.HeartbeatPersistInterval, 30*time.Second)
	setDefault(&cfg.Presence.StaleAfter, 60*time.Second)
	setDefault(&cfg.Presence.SweepInterval, 30*time.Second)

	setDefault(&cfg.Typing.TTL, 3*time.Second)
	setDefault(&cfg.Typing.SweepInterval, 2*time.Second)

	setDefault(&cfg.RateLimit.SweepInterval, 60*time.Second)

	setDefault(&cfg.Games.TTL, time.Hour)
	setDefault(&cfg.Games.SweepInterval, 5*time.Minute)

	setDefault(&cfg.Chat.EditWindow, 24*time.Hour)
}

func setDefault[T comparable](field *T, value T) {
	var zero T
	if *field == zero {
		*field = value
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []string

	if c.APIVersion != CurrentConfigVersion {
		errs = append(errs, fmt.Sprintf("unsupported apiVersion %q (want %q)", c.APIVersion, CurrentConfigVersion))
	}

	if len(c.Auth.AccessSecret) < auth.MinSecretLength {
		errs = append(errs, fmt.Sprintf("auth.access_secret must be at least %d bytes (set it in the config file or %s)",
			auth.MinSecretLength, SecretEnvVar))
	}

	if c.Database.Migrate && c.Database.DSN == "" {
		errs = append(errs, "database.dsn is required when database.migrate is enabled")
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Sprintf("log.format %q is not one of text, json", c.Log.Format))
	}

	if c.Realtime.PingInterval >= c.Realtime.PongWait {
		errs = append(errs, "realtime.ping_interval must be shorter than realtime.pong_wait")
	}

	if c.Presence.StaleAfter <= c.Presence.HeartbeatPersistInterval {
		errs = append(errs, "presence.stale_after must be longer than presence.heartbeat_persist_interval")
	}

	for name, p := range c.RateLimit.Events {
		if p.Max <= 0 || p.Window <= 0 {
			errs = append(errs, fmt.Sprintf("rate_limit.events.%s needs a positive max and window", name))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// ratePolicies converts the configured overrides for ratelimit.WithPolicies.
func (c *Config) ratePolicies() map[string]ratelimit.Policy {
	out := make(map[string]ratelimit.Policy, len(c.RateLimit.Events))
	for name, p := range c.RateLimit.Events {
		out[name] = ratelimit.Policy{Max: p.Max, Window: p.Window}
	}
	return out
}
