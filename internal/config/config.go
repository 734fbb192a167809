// Package config loads service configuration from the environment and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port           string
	DatabaseURL    string
	AllowedOrigins []string
	LogLevel       string
	Matching       MatchingConfig
	Hints          HintsConfig
}

// MatchingConfig bounds the remote fetch and the matcher.
type MatchingConfig struct {
	WindowDays        int
	PageSize          int
	PageCap           int
	Timeout           time.Duration
	RequestsPerSecond float64
}

type HintsConfig struct {
	CachePath string
	RulesPath string
}

const (
	DefaultWindowDays        = 5
	DefaultPageSize          = 50
	DefaultPageCap           = 20
	DefaultTimeoutSeconds    = 60
	DefaultRequestsPerSecond = 2
)

func DefaultMatching() MatchingConfig {
	return MatchingConfig{
		WindowDays:        DefaultWindowDays,
		PageSize:          DefaultPageSize,
		PageCap:           DefaultPageCap,
		Timeout:           DefaultTimeoutSeconds * time.Second,
		RequestsPerSecond: DefaultRequestsPerSecond,
	}
}

// Load reads configuration from environment variables. A .env file in the
// working directory is loaded when present; an explicit path must exist.
func Load(envPath ...string) (*Config, error) {
	if len(envPath) > 0 && envPath[0] != "" {
		if err := godotenv.Load(envPath[0]); err != nil {
			return nil, fmt.Errorf("failed to load .env file: %w", err)
		}
	} else {
		_ = godotenv.Load()
	}

	window, err := parseIntEnv("MATCH_WINDOW_DAYS", DefaultWindowDays)
	if err != nil {
		return nil, err
	}
	pageSize, err := parseIntEnv("LEDGER_PAGE_SIZE", DefaultPageSize)
	if err != nil {
		return nil, err
	}
	pageCap, err := parseIntEnv("LEDGER_PAGE_CAP", DefaultPageCap)
	if err != nil {
		return nil, err
	}
	timeout, err := parseIntEnv("LEDGER_TIMEOUT_SECONDS", DefaultTimeoutSeconds)
	if err != nil {
		return nil, err
	}
	rps, err := parseFloatEnv("LEDGER_REQUESTS_PER_SECOND", DefaultRequestsPerSecond)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:           getEnvOrDefault("PORT", "8080"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		AllowedOrigins: splitList(getEnvOrDefault("CORS_ALLOWED_ORIGINS", "http://localhost:3000")),
		LogLevel:       getEnvOrDefault("LOG_LEVEL", "info"),
		Matching: MatchingConfig{
			WindowDays:        window,
			PageSize:          pageSize,
			PageCap:           pageCap,
			Timeout:           time.Duration(timeout) * time.Second,
			RequestsPerSecond: rps,
		},
		Hints: HintsConfig{
			CachePath: getEnvOrDefault("HINT_CACHE_PATH", "./data/hints.db"),
			RulesPath: os.Getenv("HINT_RULES_PATH"),
		},
	}

	return cfg, nil
}

// Validate checks the settings the engine cannot run without.
func (c *Config) Validate() error {
	var problems []string
	if c.DatabaseURL == "" {
		problems = append(problems, "DATABASE_URL is required")
	}
	problems = append(problems, c.Matching.problems()...)
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (m MatchingConfig) problems() []string {
	var problems []string
	if m.WindowDays < 0 {
		problems = append(problems, "MATCH_WINDOW_DAYS must not be negative")
	}
	if m.PageSize <= 0 {
		problems = append(problems, "LEDGER_PAGE_SIZE must be positive")
	}
	if m.PageCap <= 0 {
		problems = append(problems, "LEDGER_PAGE_CAP must be positive")
	}
	if m.Timeout <= 0 {
		problems = append(problems, "LEDGER_TIMEOUT_SECONDS must be positive")
	}
	return problems
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseIntEnv(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid integer value for %s: %s", key, value)
	}
	return parsed, nil
}

func parseFloatEnv(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number value for %s: %s", key, value)
	}
	return parsed, nil
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
