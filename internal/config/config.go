package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the companion memory service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	DatabaseURL string

	MaxRecentTurns            int
	MaxTokensBeforeCompaction int
	MaxSummaryTokens          int
	OverlapTurns              int

	SummarizerMode    string
	SummarizerURL     string
	SummarizerTimeout time.Duration

	ContextIdleTimeout time.Duration
	JanitorInterval    time.Duration
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:                  envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:          envOrDefault("APP_METRICS_NAMESPACE", "cupido"),
		DatabaseURL:               strings.TrimSpace(os.Getenv("DATABASE_URL")),
		MaxRecentTurns:            12,
		MaxTokensBeforeCompaction: 2000,
		MaxSummaryTokens:          300,
		OverlapTurns:              2,
		SummarizerMode:            envOrDefault("SUMMARIZER_MODE", "auto"),
		SummarizerURL:             strings.TrimSpace(os.Getenv("SUMMARIZER_URL")),
		SummarizerTimeout:         20 * time.Second,
		ShutdownTimeout:           15 * time.Second,
		ContextIdleTimeout:        30 * time.Minute,
		JanitorInterval:           time.Minute,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SummarizerTimeout, err = durationFromEnv("SUMMARIZER_TIMEOUT", cfg.SummarizerTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.ContextIdleTimeout, err = durationFromEnv("MEMORY_CONTEXT_IDLE_TIMEOUT", cfg.ContextIdleTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.JanitorInterval, err = durationFromEnv("MEMORY_JANITOR_INTERVAL", cfg.JanitorInterval)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxRecentTurns, err = intFromEnv("MEMORY_MAX_RECENT_TURNS", cfg.MaxRecentTurns)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxTokensBeforeCompaction, err = intFromEnv("MEMORY_MAX_TOKENS_BEFORE_COMPACTION", cfg.MaxTokensBeforeCompaction)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxSummaryTokens, err = intFromEnv("MEMORY_MAX_SUMMARY_TOKENS", cfg.MaxSummaryTokens)
	if err != nil {
		return Config{}, err
	}
	cfg.OverlapTurns, err = intFromEnv("MEMORY_OVERLAP_TURNS", cfg.OverlapTurns)
	if err != nil {
		return Config{}, err
	}

	if cfg.OverlapTurns < 1 {
		return Config{}, fmt.Errorf("MEMORY_OVERLAP_TURNS must be at least 1")
	}
	if cfg.MaxRecentTurns <= cfg.OverlapTurns {
		return Config{}, fmt.Errorf("MEMORY_MAX_RECENT_TURNS must exceed MEMORY_OVERLAP_TURNS")
	}
	if cfg.MaxTokensBeforeCompaction <= 0 {
		return Config{}, fmt.Errorf("MEMORY_MAX_TOKENS_BEFORE_COMPACTION must be positive")
	}
	if cfg.MaxSummaryTokens <= 0 {
		return Config{}, fmt.Errorf("MEMORY_MAX_SUMMARY_TOKENS must be positive")
	}
	if cfg.SummarizerTimeout <= 0 {
		return Config{}, fmt.Errorf("SUMMARIZER_TIMEOUT must be positive")
	}
	if cfg.ContextIdleTimeout < 10*time.Second {
		return Config{}, fmt.Errorf("MEMORY_CONTEXT_IDLE_TIMEOUT must be at least 10s")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
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
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}
