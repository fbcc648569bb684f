// Package config loads and validates all runtime configuration for the relay.
//
// Configuration is read from environment variables (preferred for containers)
// or from a config.yaml file in the working directory. Environment variables
// take precedence over the YAML file. A .env file, when present, is loaded
// into the process environment first.
//
// The upstream API key is optional at startup: without it both relays answer
// "AI not configured" instead of refusing to boot.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// Upstream providers.
const (
	ProviderGateway   = "gateway"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
)

// Store modes.
const (
	StorePostgREST  = "postgrest"
	StoreRedis      = "redis"
	StoreClickHouse = "clickhouse"
	StoreDisabled   = "none"
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Config is the top-level configuration container. It is built once at
// startup and passed explicitly to every subsystem.
type Config struct {
	// Port is the TCP port the HTTP server listens on. Default: 8080.
	Port int

	// LogLevel controls the minimum log level. One of: debug, info, warn, error.
	LogLevel string

	AI         AIConfig
	Store      StoreConfig
	Supabase   SupabaseConfig
	Redis      RedisConfig
	ClickHouse ClickHouseConfig
}

// AIConfig selects and configures the upstream completion service.
type AIConfig struct {
	// Provider is one of gateway, anthropic, gemini. Default: gateway.
	Provider string

	// APIKey is the bearer credential (AI_API_KEY, or LOVABLE_API_KEY).
	APIKey string

	// BaseURL and Model override the provider defaults when set.
	BaseURL string
	Model   string

	// Timeout is the transport-level timeout for one upstream call.
	Timeout time.Duration
}

// StoreConfig controls where the persisting relay records exchanges.
type StoreConfig struct {
	// Mode is one of postgrest, redis, clickhouse, none. Default: postgrest.
	Mode string

	// Table is the PostgREST/ClickHouse table name. Default: ai_chat_messages.
	Table string

	// Timeout bounds one store write or identity lookup. Default: 10s.
	Timeout time.Duration
}

// SupabaseConfig points at the identity provider and PostgREST endpoint.
type SupabaseConfig struct {
	URL     string
	AnonKey string
}

// RedisConfig holds Redis stream settings (STORE_MODE=redis).
type RedisConfig struct {
	// URL is a redis:// or rediss:// URL. Example: redis://localhost:6379
	URL string

	Stream string

	// MaxLen > 0 trims the stream approximately. 0 keeps everything.
	MaxLen int64
}

// ClickHouseConfig holds the ClickHouse DSN (STORE_MODE=clickhouse).
type ClickHouseConfig struct {
	DSN string
}

// Load reads configuration from environment variables and (optionally) from
// config.yaml in the current working directory.
func Load() (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	_ = v.ReadInConfig()

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// ── Defaults ──────────────────────────────────────────────────────────────
	v.SetDefault("PORT", 8080)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("AI_PROVIDER", ProviderGateway)
	v.SetDefault("AI_TIMEOUT", "60s")
	v.SetDefault("STORE_MODE", StorePostgREST)
	v.SetDefault("STORE_TABLE", "ai_chat_messages")
	v.SetDefault("STORE_TIMEOUT", "10s")
	v.SetDefault("REDIS_STREAM", "ai_chat_messages")
	v.SetDefault("REDIS_STREAM_MAXLEN", 0)

	apiKey := v.GetString("AI_API_KEY")
	if apiKey == "" {
		apiKey = v.GetString("LOVABLE_API_KEY")
	}

	// ── Build config ──────────────────────────────────────────────────────────
	cfg := &Config{
		Port:     v.GetInt("PORT"),
		LogLevel: strings.ToLower(v.GetString("LOG_LEVEL")),

		AI: AIConfig{
			Provider: strings.ToLower(v.GetString("AI_PROVIDER")),
			APIKey:   apiKey,
			BaseURL:  v.GetString("AI_BASE_URL"),
			Model:    v.GetString("AI_MODEL"),
			Timeout:  v.GetDuration("AI_TIMEOUT"),
		},

		Store: StoreConfig{
			Mode:    strings.ToLower(v.GetString("STORE_MODE")),
			Table:   v.GetString("STORE_TABLE"),
			Timeout: v.GetDuration("STORE_TIMEOUT"),
		},

		Supabase: SupabaseConfig{
			URL:     v.GetString("SUPABASE_URL"),
			AnonKey: v.GetString("SUPABASE_ANON_KEY"),
		},

		Redis: RedisConfig{
			URL:    v.GetString("REDIS_URL"),
			Stream: v.GetString("REDIS_STREAM"),
			MaxLen: v.GetInt64("REDIS_STREAM_MAXLEN"),
		},

		ClickHouse: ClickHouseConfig{DSN: v.GetString("CLICKHOUSE_DSN")},
	}

	// ── Validation ────────────────────────────────────────────────────────────
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate checks all semantic constraints that cannot be expressed as defaults.
func (c *Config) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("config: PORT must be in 1..65535, got %d", c.Port)
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf(
			"config: invalid LOG_LEVEL %q; must be one of: debug, info, warn, error",
			c.LogLevel,
		)
	}

	switch c.AI.Provider {
	case ProviderGateway, ProviderAnthropic, ProviderGemini:
	default:
		return fmt.Errorf(
			"config: invalid AI_PROVIDER %q; must be one of: gateway, anthropic, gemini",
			c.AI.Provider,
		)
	}
	if c.AI.Timeout <= 0 {
		return fmt.Errorf("config: AI_TIMEOUT must be a positive duration")
	}

	switch c.Store.Mode {
	case StorePostgREST, StoreRedis, StoreClickHouse, StoreDisabled:
	default:
		return fmt.Errorf(
			"config: invalid STORE_MODE %q; must be one of: postgrest, redis, clickhouse, none",
			c.Store.Mode,
		)
	}
	if c.Store.Mode == StoreDisabled {
		return nil
	}

	if c.Store.Timeout <= 0 {
		return fmt.Errorf("config: STORE_TIMEOUT must be a positive duration")
	}
	if !identRe.MatchString(c.Store.Table) {
		return fmt.Errorf("config: STORE_TABLE %q is not a valid identifier", c.Store.Table)
	}

	// Identity always comes from Supabase auth, whatever the backend.
	if c.Supabase.URL == "" || c.Supabase.AnonKey == "" {
		return fmt.Errorf(
			"config: SUPABASE_URL and SUPABASE_ANON_KEY are required when STORE_MODE=%s; "+
				"set STORE_MODE=none to disable persistence",
			c.Store.Mode,
		)
	}

	switch c.Store.Mode {
	case StoreRedis:
		if c.Redis.URL == "" {
			return errors.New("config: REDIS_URL is required when STORE_MODE=redis")
		}
		if c.Redis.MaxLen < 0 {
			return fmt.Errorf("config: REDIS_STREAM_MAXLEN must be ≥ 0, got %d", c.Redis.MaxLen)
		}
	case StoreClickHouse:
		if c.ClickHouse.DSN == "" {
			return errors.New("config: CLICKHOUSE_DSN is required when STORE_MODE=clickhouse")
		}
	}

	return nil
}

// AIConfigured reports whether an upstream credential is present.
func (c *Config) AIConfigured() bool { return c.AI.APIKey != "" }

// loadDotEnv populates process env vars from a .env file when present.
func loadDotEnv(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("config: %s is a directory, expected a file", path)
	}
	if err := gotenv.Load(path); err != nil {
		return fmt.Errorf("config: failed to load %s: %w", path, err)
	}
	return nil
}
