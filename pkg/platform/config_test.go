package platform

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "platform-test-secret-0123456789"

func TestLoadConfig(t *testing.T) {
	t.Setenv("TEST_BANTR_SECRET", testSecret)
	t.Setenv("TEST_BANTR_DSN", "postgres://bantr@localhost/bantr?sslmode=disable")

	path := filepath.Join(t.TempDir(), "bantr.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
apiVersion: v1
server:
  address: ":9090"
  allowed_origins: ["https://chat.example"]
auth:
  access_secret: ${TEST_BANTR_SECRET}
  issuer: bantr
database:
  dsn: ${TEST_BANTR_DSN}
  migrate: true
log:
  level: debug
  format: text
typing:
  ttl: 5s
rate_limit:
  events:
    chat:send:
      max: 5
      window: 1m
games:
  ttl: 30m
`), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, ":9090", cfg.Server.Address)
	assert.Equal(t, []string{"https://chat.example"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, testSecret, cfg.Auth.AccessSecret)
	assert.Equal(t, "bantr", cfg.Auth.Issuer)
	assert.Equal(t, "postgres://bantr@localhost/bantr?sslmode=disable", cfg.Database.DSN)
	assert.True(t, cfg.Database.Migrate)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 5*time.Second, cfg.Typing.TTL)
	assert.Equal(t, 30*time.Minute, cfg.Games.TTL)
	assert.Equal(t, RateLimitPolicy{Max: 5, Window: time.Minute}, cfg.RateLimit.Events["chat:send"])

	// Untouched sections get defaults.
	assert.Equal(t, 2*time.Second, cfg.Typing.SweepInterval)
	assert.Equal(t, 60*time.Second, cfg.Presence.StaleAfter)
	assert.Equal(t, 25, cfg.Database.MaxOpenConns)
}

func TestLoadConfig_Errors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "reading config file")

	_, err = ParseConfig([]byte("server: [unterminated"))
	assert.ErrorContains(t, err, "parsing config")
}

func TestDefaultConfig(t *testing.T) {
	t.Setenv(SecretEnvVar, testSecret)

	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, CurrentConfigVersion, cfg.APIVersion)
	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Empty(t, cfg.Database.DSN)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 256, cfg.Realtime.SendBuffer)
	assert.Equal(t, int64(64<<10), cfg.Realtime.MaxMessageBytes)
	assert.Equal(t, 54*time.Second, cfg.Realtime.PingInterval)
	assert.Equal(t, 60*time.Second, cfg.Realtime.PongWait)
	assert.Equal(t, 10*time.Second, cfg.Realtime.WriteWait)
	assert.Equal(t, 30*time.Second, cfg.Presence.HeartbeatPersistInterval)
	assert.Equal(t, 30*time.Second, cfg.Presence.SweepInterval)
	assert.Equal(t, 3*time.Second, cfg.Typing.TTL)
	assert.Equal(t, 60*time.Second, cfg.RateLimit.SweepInterval)
	assert.Equal(t, time.Hour, cfg.Games.TTL)
	assert.Equal(t, 5*time.Minute, cfg.Games.SweepInterval)
	assert.Equal(t, 24*time.Hour, cfg.Chat.EditWindow)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "short secret", mutate: func(c *Config) { c.Auth.AccessSecret = "short" }, wantErr: "auth.access_secret"},
		{name: "unknown version", mutate: func(c *Config) { c.APIVersion = "v0" }, wantErr: "unsupported apiVersion"},
		{name: "migrate without dsn", mutate: func(c *Config) { c.Database.Migrate = true }, wantErr: "database.dsn"},
		{name: "bad level", mutate: func(c *Config) { c.Log.Level = "loud" }, wantErr: "log.level"},
		{name: "bad format", mutate: func(c *Config) { c.Log.Format = "xml" }, wantErr: "log.format"},
		{name: "ping after pong", mutate: func(c *Config) { c.Realtime.PingInterval = 2 * time.Minute }, wantErr: "ping_interval"},
		{name: "stale before persist", mutate: func(c *Config) { c.Presence.StaleAfter = 10 * time.Second }, wantErr: "stale_after"},
		{name: "bad policy", mutate: func(c *Config) {
			c.RateLimit.Events = map[string]RateLimitPolicy{"chat:send": {Max: 0, Window: time.Minute}}
		}, wantErr: "rate_limit.events.chat:send"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Auth: AuthConfig{AccessSecret: testSecret}}
			applyDefaults(cfg)
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_ReportsAllErrors(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)
	cfg.Log.Level = "loud"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Equal(t, 2, strings.Count(err.Error(), ";")+1)
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("BANTR_A", "alpha")
	assert.Equal(t, "x=alpha y=", expandEnvVars("x=${BANTR_A} y=${BANTR_UNSET_VAR}"))
	assert.Equal(t, "plain $HOME", expandEnvVars("plain $HOME"))
}

func TestRatePolicies(t *testing.T) {
	cfg := &Config{RateLimit: RateLimitConfig{Events: map[string]RateLimitPolicy{
		"join:game": {Max: 3, Window: time.Second},
	}}}
	p := cfg.ratePolicies()
	assert.Equal(t, 3, p["join:game"].Max)
	assert.Equal(t, time.Second, p["join:game"].Window)
}
