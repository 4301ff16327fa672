package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	ProviderAnthropic    = "anthropic_messages"
	ProviderOpenAICompat = "openai_compat"
	ProviderCustomHTTP   = "custom_http"
)

var (
	ErrMissingAPIKey      = errors.New("LLM_API_KEY is required")
	ErrMissingDatabaseDSN = errors.New("DB_DSN is required")
	ErrMissingRedisAddr   = errors.New("REDIS_ADDR is required")
	ErrInvalidDailyLimit  = errors.New("CHAT_DAILY_LIMIT must be > 0")
)

type Config struct {
	HTTP     HTTPConfig
	Redis    RedisConfig
	DB       DBConfig
	Provider ProviderConfig
	Quota    QuotaConfig
	Worker   WorkerConfig
	Log      LogConfig
}

type HTTPConfig struct {
	ListenAddr     string
	HealthPath     string
	MetricsPath    string
	RequestTimeout time.Duration
	AllowedOrigins []string
}

type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	EventStream string
	EventGroup  string
	EventBlock  time.Duration
}

type DBConfig struct {
	Driver      string
	DSN         string
	AutoMigrate bool
}

type ProviderConfig struct {
	Kind        string
	BaseURL     string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
	MaxAttempts int
	BackoffBase time.Duration
	CallTimeout time.Duration
	APIVersion  string
}

type QuotaConfig struct {
	DailyLimit int64
	KeyPrefix  string
}

type WorkerConfig struct {
	Concurrency  int
	ConsumerName string
	MaxRetries   int
}

type LogConfig struct {
	Level string
}

func Load() (*Config, error) {
	cfg := &Config{
		HTTP: HTTPConfig{
			ListenAddr:     mustEnv("LISTEN_ADDR", ":8080"),
			HealthPath:     mustEnv("HEALTH_PATH", "/healthz"),
			MetricsPath:    mustEnv("METRICS_PATH", "/metrics"),
			RequestTimeout: mustDuration("HTTP_REQUEST_TIMEOUT", 60*time.Second),
			AllowedOrigins: splitCSV(mustEnv("CORS_ALLOWED_ORIGINS", "*")),
		},
		Redis: RedisConfig{
			Addr:        mustEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password:    mustEnv("REDIS_PASSWORD", ""),
			DB:          mustInt("REDIS_DB", 0),
			EventStream: mustEnv("EVENT_STREAM", "showchat:events"),
			EventGroup:  mustEnv("EVENT_GROUP", "showchat-loggers"),
			EventBlock:  mustDuration("EVENT_BLOCK", 5*time.Second),
		},
		DB: DBConfig{
			Driver:      strings.ToLower(mustEnv("DB_DRIVER", "postgres")),
			DSN:         mustEnv("DB_DSN", ""),
			AutoMigrate: mustBool("AUTO_MIGRATE", true),
		},
		Provider: ProviderConfig{
			Kind:        strings.ToLower(mustEnv("LLM_PROVIDER", ProviderAnthropic)),
			BaseURL:     mustEnv("LLM_BASE_URL", "https://api.anthropic.com"),
			APIKey:      mustEnv("LLM_API_KEY", ""),
			Model:       mustEnv("LLM_MODEL", "claude-3-5-sonnet-20241022"),
			MaxTokens:   mustInt("LLM_MAX_TOKENS", 1024),
			Temperature: mustFloat("LLM_TEMPERATURE", 0.7),
			MaxAttempts: mustInt("LLM_MAX_ATTEMPTS", 3),
			BackoffBase: mustDuration("LLM_BACKOFF_BASE", time.Second),
			CallTimeout: mustDuration("LLM_TIMEOUT", 30*time.Second),
			APIVersion:  mustEnv("ANTHROPIC_VERSION", "2023-06-01"),
		},
		Quota: QuotaConfig{
			DailyLimit: int64(mustInt("CHAT_DAILY_LIMIT", 100)),
			KeyPrefix:  mustEnv("QUOTA_KEY_PREFIX", "showchat:daily"),
		},
		Worker: WorkerConfig{
			Concurrency:  mustInt("WORKER_CONCURRENCY", 2),
			ConsumerName: mustEnv("WORKER_CONSUMER_NAME", hostnameOr("logger")),
			MaxRetries:   mustInt("WORKER_MAX_RETRIES", 3),
		},
		Log: LogConfig{
			Level: strings.ToLower(mustEnv("LOG_LEVEL", "info")),
		},
	}

	if cfg.Provider.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.DB.DSN == "" {
		return nil, ErrMissingDatabaseDSN
	}
	if cfg.Redis.Addr == "" {
		return nil, ErrMissingRedisAddr
	}
	if cfg.Quota.DailyLimit <= 0 {
		return nil, ErrInvalidDailyLimit
	}
	switch cfg.Provider.Kind {
	case ProviderAnthropic, ProviderOpenAICompat, ProviderCustomHTTP:
	default:
		return nil, fmt.Errorf("unsupported LLM_PROVIDER %q", cfg.Provider.Kind)
	}

	return cfg, nil
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func mustEnv(key string, def string) string {
	if v := os.Getenv(key); v != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func mustInt(key string, def int) int {
	v := mustEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func mustFloat(key string, def float64) float64 {
	v := mustEnv(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func mustBool(key string, def bool) bool {
	v := mustEnv(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func mustDuration(key string, def time.Duration) time.Duration {
	v := mustEnv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func hostnameOr(def string) string {
	h, err := os.Hostname()
	if err != nil || strings.TrimSpace(h) == "" {
		return def
	}
	return h
}
