package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "0123456789abcdef-secret"

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	t.Setenv("APP_AUTH_JWT_SECRET", secret)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, "data/demandes.db", cfg.Database.Path)
	assert.Equal(t, "json", cfg.Logger.Format)
	assert.False(t, cfg.Notification.Lark.Enabled)
	assert.Equal(t, "demande.events", cfg.Notification.Redis.Channel)
	assert.True(t, cfg.Reminder.Enabled)
	assert.Equal(t, 48*time.Hour, cfg.Reminder.StaleAfter)
	assert.Equal(t, secret, cfg.Auth.JWTSecret)
}

func TestLoad_FileThenEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
server:
  port: 9090
  read_timeout: 5s
database:
  driver: memory
auth:
  jwt_secret: "`+secret+`"
notification:
  lark:
    enabled: true
    app_id: cli_a1
  redis:
    enabled: true
    addr: redis:6379
reminder:
  interval: 15m
  stale_after: 24h
`)
	t.Setenv("APP_SERVER_PORT", "9191")
	t.Setenv("LARK_APP_SECRET", "lark-secret")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, DriverMemory, cfg.Database.Driver)
	assert.Equal(t, "cli_a1", cfg.Notification.Lark.AppID)
	assert.Equal(t, "lark-secret", cfg.Notification.Lark.AppSecret)
	assert.Equal(t, "redis:6379", cfg.Notification.Redis.Addr)
	assert.Equal(t, 15*time.Minute, cfg.Reminder.Interval)
	assert.Equal(t, 24*time.Hour, cfg.Reminder.StaleAfter)
}

func TestLoad_EnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := writeFile(t, dir, ".env", "JWT_SECRET="+secret+"\nAPP_DATABASE_DRIVER=memory\n")
	t.Cleanup(func() {
		os.Unsetenv("JWT_SECRET")
		os.Unsetenv("APP_DATABASE_DRIVER")
	})

	cfg, err := Load("", filepath.Join(dir, "missing.env"), envFile)
	require.NoError(t, err)
	assert.Equal(t, secret, cfg.Auth.JWTSecret)
	assert.Equal(t, DriverMemory, cfg.Database.Driver)
}

func TestLoad_MissingConfigFile(t *testing.T) {
	t.Setenv("APP_AUTH_JWT_SECRET", secret)
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server:   ServerConfig{Port: 8080},
			Database: DatabaseConfig{Driver: DriverSQLite, Path: "data/x.db"},
			Auth:     AuthConfig{JWTSecret: secret},
			Reminder: ReminderConfig{Enabled: true, Interval: time.Hour, StaleAfter: 48 * time.Hour},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"memory needs no path", func(c *Config) { c.Database = DatabaseConfig{Driver: DriverMemory} }, false},
		{"disabled reminder needs no interval", func(c *Config) { c.Reminder = ReminderConfig{} }, false},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, true},
		{"unknown driver", func(c *Config) { c.Database.Driver = "postgres" }, true},
		{"sqlite without path", func(c *Config) { c.Database.Path = "" }, true},
		{"missing secret", func(c *Config) { c.Auth.JWTSecret = "" }, true},
		{"short secret", func(c *Config) { c.Auth.JWTSecret = "short" }, true},
		{"lark without credentials", func(c *Config) { c.Notification.Lark.Enabled = true }, true},
		{"redis without addr", func(c *Config) { c.Notification.Redis = RedisConfig{Enabled: true} }, true},
		{"reminder too frequent", func(c *Config) { c.Reminder.Interval = time.Millisecond }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
