package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the Greenie chat service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	AllowAnyOrigin bool

	// Storage. DatabaseURL selects Postgres; otherwise DBPath selects a
	// local SQLite file (":memory:" keeps everything in-process).
	DatabaseURL string
	DBPath      string

	// Completion backend.
	AdapterMode string
	GroqAPIKey  string
	GroqBaseURL string

	AssistantName string
	DefaultModel  string
	FastModel     string
	ChatTimeout   time.Duration
	FastTimeout   time.Duration
	Temperature   float64
	MaxTokens     int

	Timezone     string
	SessionMax   int
	MemoryMax    int
	KnowledgeN   int
	RecentN      int
	UpdateWindow time.Duration
	RepoDir      string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8000"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "greenie"),
		AllowAnyOrigin:   false,
		DatabaseURL:      trimmedEnv("DATABASE_URL"),
		DBPath:           envOrDefault("GREENIE_DB_PATH", "greenie.db"),
		AdapterMode:      envOrDefault("GREENIE_ADAPTER_MODE", "auto"),
		GroqAPIKey:       trimmedEnv("GROQ_API_KEY"),
		GroqBaseURL:      envOrDefault("GROQ_BASE_URL", "https://api.groq.com/openai/v1"),
		AssistantName:    envOrDefault("GREENIE_ASSISTANT_NAME", "Greenie"),
		DefaultModel:     envOrDefault("GREENIE_MODEL", "llama3-70b-8192"),
		FastModel:        envOrDefault("GREENIE_FAST_MODEL", "llama3-8b-8192"),
		Timezone:         envOrDefault("GREENIE_TIMEZONE", "Europe/London"),
		RepoDir:          envOrDefault("GREENIE_REPO_DIR", "."),
		ShutdownTimeout:  15 * time.Second,
		ChatTimeout:      60 * time.Second,
		FastTimeout:      30 * time.Second,
		Temperature:      0.7,
		MaxTokens:        2048,
		SessionMax:       10,
		MemoryMax:        1000,
		KnowledgeN:       5,
		RecentN:          5,
		UpdateWindow:     60 * time.Second,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.ChatTimeout, err = durationFromEnv("GREENIE_CHAT_TIMEOUT", cfg.ChatTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.FastTimeout, err = durationFromEnv("GREENIE_FAST_TIMEOUT", cfg.FastTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.UpdateWindow, err = durationFromEnv("GREENIE_UPDATE_WINDOW", cfg.UpdateWindow)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionMax, err = intFromEnv("GREENIE_SESSION_MAX", cfg.SessionMax)
	if err != nil {
		return Config{}, err
	}
	cfg.MemoryMax, err = intFromEnv("GREENIE_MEMORY_MAX", cfg.MemoryMax)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxTokens, err = intFromEnv("GREENIE_MAX_TOKENS", cfg.MaxTokens)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}

	if cfg.SessionMax <= 0 {
		return Config{}, fmt.Errorf("GREENIE_SESSION_MAX must be positive")
	}
	if cfg.MemoryMax <= 0 {
		return Config{}, fmt.Errorf("GREENIE_MEMORY_MAX must be positive")
	}
	if cfg.ChatTimeout < time.Second {
		return Config{}, fmt.Errorf("GREENIE_CHAT_TIMEOUT must be at least 1s")
	}
	if cfg.FastTimeout < time.Second {
		return Config{}, fmt.Errorf("GREENIE_FAST_TIMEOUT must be at least 1s")
	}
	if cfg.UpdateWindow < time.Second {
		return Config{}, fmt.Errorf("GREENIE_UPDATE_WINDOW must be at least 1s")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.AdapterMode)) {
	case "auto", "groq", "mock":
	default:
		return Config{}, fmt.Errorf("invalid GREENIE_ADAPTER_MODE: %q (expected auto|groq|mock)", cfg.AdapterMode)
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func trimmedEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(trimmedEnv(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
