package app

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/bdobrica/nakama/common/environment"
	"github.com/bdobrica/nakama/common/redact"
	"github.com/bdobrica/nakama/internal/nakama/matrix"
)

// LLM providers.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	// ProviderNone runs without a model: decisions fail open and no reply
	// is ever composed. Useful for exercising transports.
	ProviderNone = "none"
)

// Cache backends for model completions.
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
	CacheNone   = "none"
)

// LLMConfig selects and configures the language model provider.
type LLMConfig struct {
	Provider string
	APIKey   string
	// Endpoint overrides the provider's base URL (Ollama, Azure, proxies).
	Endpoint string
	Model    string
	Timeout  time.Duration
}

// CacheConfig configures the completion cache.
type CacheConfig struct {
	Backend string
	// RedisAddr is host:port or a redis:// URL.
	RedisAddr string
	TTL       time.Duration
	// MaxCost bounds the in-process cache in bytes of cached text.
	MaxCost int64
}

// Config holds application configuration.
type Config struct {
	DatabasePath string
	// HTTPAddr is the listen address of the WebSocket gateway and JSON API.
	// Empty disables the gateway.
	HTTPAddr string

	LLM   LLMConfig
	Cache CacheConfig

	// PersonasFile is an optional YAML file of named persona presets.
	PersonasFile string
	// DefaultPersona names the preset new rooms start with. Empty means a
	// random persona per room.
	DefaultPersona string
	// DefaultTask replaces the built-in Desert Survival task text.
	DefaultTask string

	// ShortTermLimit and SummaryThreshold size conversation memory.
	ShortTermLimit   int
	SummaryThreshold int

	// RespondCooldown and RespondLimit cap replies per room. A zero window
	// disables the cap.
	RespondCooldown time.Duration
	RespondLimit    int

	// TypingDelay enables the human-like pause before replies.
	TypingDelay bool

	// APIRate caps JSON API requests per client address per second.
	APIRate rate.Limit
	// AllowedOrigins lists browser origins, besides the gateway's own, that
	// may open chat sockets.
	AllowedOrigins []string

	// Matrix is used when Matrix.Homeserver is set.
	Matrix matrix.Config

	LogLevel  string
	LogFormat string
}

// MatrixEnabled reports whether the Matrix transport is configured.
func (c *Config) MatrixEnabled() bool {
	return c.Matrix.Homeserver != ""
}

// LoadConfig reads the configuration from the environment. The model API
// key and the Matrix access token may instead be read from the files named
// by NAKAMA_LLM_API_KEY_FILE and MATRIX_ACCESS_TOKEN_FILE.
func LoadConfig() (*Config, error) {
	apiKey, err := environment.Secret("NAKAMA_LLM_API_KEY")
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	accessToken, err := environment.Secret("MATRIX_ACCESS_TOKEN")
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	cfg := &Config{
		DatabasePath: environment.StringOr("NAKAMA_DATABASE_PATH", "./nakama.db"),
		HTTPAddr:     environment.StringOr("NAKAMA_HTTP_ADDR", ":8080"),
		LLM: LLMConfig{
			Provider: environment.OneOf("NAKAMA_LLM_PROVIDER", ProviderOpenAI,
				ProviderOpenAI, ProviderAnthropic, ProviderNone),
			APIKey:   apiKey,
			Endpoint: environment.StringOr("NAKAMA_LLM_ENDPOINT", ""),
			Model:    environment.StringOr("NAKAMA_LLM_MODEL", ""),
			Timeout:  environment.DurationOr("NAKAMA_LLM_TIMEOUT", 30*time.Second),
		},
		Cache: CacheConfig{
			Backend:   environment.OneOf("NAKAMA_CACHE_BACKEND", CacheMemory, CacheMemory, CacheRedis, CacheNone),
			RedisAddr: environment.StringOr("NAKAMA_REDIS_ADDR", ""),
			TTL:       environment.DurationOr("NAKAMA_CACHE_TTL", time.Hour),
			MaxCost:   int64(environment.IntOr("NAKAMA_CACHE_MAX_BYTES", 8<<20)),
		},
		PersonasFile:     environment.StringOr("NAKAMA_PERSONAS_FILE", ""),
		DefaultPersona:   environment.StringOr("NAKAMA_DEFAULT_PERSONA", ""),
		DefaultTask:      environment.StringOr("NAKAMA_DEFAULT_TASK", ""),
		ShortTermLimit:   environment.IntOr("NAKAMA_SHORT_TERM_LIMIT", 10),
		SummaryThreshold: environment.IntOr("NAKAMA_SUMMARY_THRESHOLD", 5),
		RespondCooldown:  environment.DurationOr("NAKAMA_RESPOND_COOLDOWN", 0),
		RespondLimit:     environment.IntOr("NAKAMA_RESPOND_LIMIT", 3),
		TypingDelay:      environment.BoolOr("NAKAMA_TYPING_DELAY", true),
		APIRate:          rate.Limit(environment.Float64Or("NAKAMA_API_RATE", 10)),
		AllowedOrigins:   environment.StringSliceOr("NAKAMA_ALLOWED_ORIGINS", nil),
		Matrix: matrix.Config{
			Homeserver:  environment.StringOr("MATRIX_HOMESERVER", ""),
			UserID:      environment.StringOr("MATRIX_USER_ID", ""),
			AccessToken: accessToken,
			Rooms:       environment.StringSliceOr("MATRIX_ROOMS", nil),
		},
		LogLevel:  environment.StringOr("LOG_LEVEL", "info"),
		LogFormat: environment.OneOf("LOG_FORMAT", "text", "text", "json"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field requirements.
func (c *Config) Validate() error {
	var errs []error
	if c.DatabasePath == "" {
		errs = append(errs, errors.New("database path is required"))
	}
	if c.LLM.Provider == ProviderAnthropic && c.LLM.APIKey == "" {
		errs = append(errs, errors.New("NAKAMA_LLM_API_KEY is required for the anthropic provider"))
	}
	if c.Cache.Backend == CacheRedis && c.Cache.RedisAddr == "" {
		errs = append(errs, errors.New("NAKAMA_REDIS_ADDR is required for the redis cache"))
	}
	if c.MatrixEnabled() {
		if c.Matrix.UserID == "" {
			errs = append(errs, errors.New("MATRIX_USER_ID is required when MATRIX_HOMESERVER is set"))
		}
		if c.Matrix.AccessToken == "" {
			errs = append(errs, errors.New("MATRIX_ACCESS_TOKEN is required when MATRIX_HOMESERVER is set"))
		}
	}
	if c.HTTPAddr == "" && !c.MatrixEnabled() {
		errs = append(errs, errors.New("no transport configured: set NAKAMA_HTTP_ADDR or MATRIX_HOMESERVER"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("app: invalid config: %w", err)
	}
	return nil
}

// Secrets lists the credential values loggers must scrub.
func (c *Config) Secrets() []string {
	var out []string
	for _, s := range []string{c.LLM.APIKey, c.Matrix.AccessToken} {
		if s != "" {
			out = append(out, s)
		}
	}
	if u, err := url.Parse(c.Cache.RedisAddr); err == nil && u.User != nil {
		if pw, ok := u.User.Password(); ok && pw != "" {
			out = append(out, pw)
		}
	}
	return out
}

// LogValue implements slog.LogValuer with secrets reduced to hints.
func (c *Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("database_path", c.DatabasePath),
		slog.String("http_addr", c.HTTPAddr),
		slog.Any("allowed_origins", c.AllowedOrigins),
		slog.String("llm_provider", c.LLM.Provider),
		slog.String("llm_endpoint", redact.URL(c.LLM.Endpoint)),
		slog.String("llm_model", c.LLM.Model),
		slog.String("llm_api_key", redact.Hint(c.LLM.APIKey)),
		slog.String("cache_backend", c.Cache.Backend),
		slog.String("redis_addr", redact.URL(c.Cache.RedisAddr)),
		slog.String("default_persona", c.DefaultPersona),
		slog.Bool("typing_delay", c.TypingDelay),
		slog.String("matrix_homeserver", c.Matrix.Homeserver),
		slog.String("matrix_user_id", c.Matrix.UserID),
		slog.String("matrix_access_token", redact.Hint(c.Matrix.AccessToken)),
		slog.Int("matrix_rooms", len(c.Matrix.Rooms)),
	)
}
