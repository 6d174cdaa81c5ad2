package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// Database drivers
const (
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// EnvPrefix prefixes every environment override, e.g. APP_SERVER_PORT
const EnvPrefix = "APP"

// Config holds all application configuration
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Logger       LoggerConfig       `mapstructure:"logger"`
	Auth         AuthConfig         `mapstructure:"auth"`
	Notification NotificationConfig `mapstructure:"notification"`
	Reminder     ReminderConfig     `mapstructure:"reminder"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	Debug           bool          `mapstructure:"debug"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite or memory
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// AuthConfig holds bearer token verification settings
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

// NotificationConfig groups the optional notification sinks
type NotificationConfig struct {
	Lark  LarkConfig  `mapstructure:"lark"`
	Redis RedisConfig `mapstructure:"redis"`
}

// LarkConfig holds Lark API configuration
type LarkConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	AppID     string `mapstructure:"app_id"`
	AppSecret string `mapstructure:"app_secret"`
	BaseURL   string `mapstructure:"base_url"`
}

// RedisConfig holds the event forwarding broker configuration
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
	Channel  string `mapstructure:"channel"`
}

// ReminderConfig holds the stale demande reminder settings
type ReminderConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Interval   time.Duration `mapstructure:"interval"`
	StaleAfter time.Duration `mapstructure:"stale_after"`
	BatchSize  int           `mapstructure:"batch_size"`
}

// Load reads configuration from an optional YAML file, the given .env files and the environment.
// Missing .env files are skipped; variables already set in the environment win over .env values.
// Precedence is environment, then file, then defaults.
func Load(configPath string, envFiles ...string) (*Config, error) {
	for _, f := range envFiles {
		if err := gotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file %s: %w", f, err)
		}
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := bindEnvVars(v); err != nil {
		return nil, err
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values. Every key needs a default
// so AutomaticEnv can override it during Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.debug", false)

	v.SetDefault("database.driver", DriverSQLite)
	v.SetDefault("database.path", "data/demandes.db")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")

	v.SetDefault("auth.jwt_secret", "")

	v.SetDefault("notification.lark.enabled", false)
	v.SetDefault("notification.lark.app_id", "")
	v.SetDefault("notification.lark.app_secret", "")
	v.SetDefault("notification.lark.base_url", "")

	v.SetDefault("notification.redis.enabled", false)
	v.SetDefault("notification.redis.addr", "localhost:6379")
	v.SetDefault("notification.redis.password", "")
	v.SetDefault("notification.redis.db", 0)
	v.SetDefault("notification.redis.pool_size", 10)
	v.SetDefault("notification.redis.channel", "demande.events")

	v.SetDefault("reminder.enabled", true)
	v.SetDefault("reminder.interval", time.Hour)
	v.SetDefault("reminder.stale_after", 48*time.Hour)
	v.SetDefault("reminder.batch_size", 100)
}

// bindEnvVars binds the conventional unprefixed names of credentials
func bindEnvVars(v *viper.Viper) error {
	bindings := map[string][]string{
		"auth.jwt_secret":              {"APP_AUTH_JWT_SECRET", "JWT_SECRET"},
		"notification.lark.app_id":     {"APP_NOTIFICATION_LARK_APP_ID", "LARK_APP_ID"},
		"notification.lark.app_secret": {"APP_NOTIFICATION_LARK_APP_SECRET", "LARK_APP_SECRET"},
		"notification.redis.password":  {"APP_NOTIFICATION_REDIS_PASSWORD", "REDIS_PASSWORD"},
	}
	for key, envs := range bindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}
	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	authErr := validation.ValidateStruct(&c.Auth,
		validation.Field(&c.Auth.JWTSecret, validation.Required, validation.Length(16, 0)),
	)
	return validation.Errors{
		"server":             c.Server.validate(),
		"database":           c.Database.validate(),
		"auth":               authErr,
		"notification.lark":  c.Notification.Lark.validate(),
		"notification.redis": c.Notification.Redis.validate(),
		"reminder":           c.Reminder.validate(),
	}.Filter()
}

func (s *ServerConfig) validate() error {
	return validation.ValidateStruct(s,
		validation.Field(&s.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

func (d *DatabaseConfig) validate() error {
	return validation.ValidateStruct(d,
		validation.Field(&d.Driver, validation.Required, validation.In(DriverSQLite, DriverMemory)),
		validation.Field(&d.Path, validation.When(d.Driver == DriverSQLite, validation.Required)),
	)
}

func (l *LarkConfig) validate() error {
	return validation.ValidateStruct(l,
		validation.Field(&l.AppID, validation.When(l.Enabled, validation.Required)),
		validation.Field(&l.AppSecret, validation.When(l.Enabled, validation.Required)),
	)
}

func (r *RedisConfig) validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Addr, validation.When(r.Enabled, validation.Required)),
		validation.Field(&r.DB, validation.Min(0)),
	)
}

func (r *ReminderConfig) validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Interval, validation.When(r.Enabled, validation.Required, validation.Min(time.Second))),
		validation.Field(&r.StaleAfter, validation.When(r.Enabled, validation.Required, validation.Min(time.Minute))),
	)
}
