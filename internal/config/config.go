// Package config reads the service configuration from the environment.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/petasbytes/chatd/internal/provider"
	"github.com/petasbytes/chatd/internal/windowing"
	"github.com/petasbytes/chatd/memory"
)

// Config holds everything needed to start the service.
type Config struct {
	Addr string

	StoreKind memory.Kind
	StorePath string

	Provider        provider.Config
	Model           string
	SystemPrompt    string
	ProviderTimeout time.Duration

	MaxExchanges     int
	WindowMode       windowing.Mode
	RetrimAfterReply bool

	LogLevel slog.Level
}

// Load reads configuration from environment variables. Malformed values are
// errors rather than silent fallbacks.
func Load() (Config, error) {
	var errs []string
	fail := func(err error) {
		if err != nil {
			errs = append(errs, err.Error())
		}
	}

	kind := provider.Kind(strings.ToLower(envOrDefault("CHATD_PROVIDER", string(provider.KindOpenAI))))
	storeKind := memory.Kind(strings.ToLower(envOrDefault("CHATD_STORE", string(memory.KindFile))))
	cfg := Config{
		Addr:      envOrDefault("CHATD_ADDR", ":5000"),
		StoreKind: storeKind,
		StorePath: envOrDefault("CHATD_STORE_PATH", memory.DefaultPath(storeKind)),
		Provider: provider.Config{
			Kind:        kind,
			StaticReply: envOrDefault("CHATD_STATIC_REPLY", "ok"),
		},
		Model:        envOrDefault("CHATD_MODEL", provider.DefaultModel(kind)),
		SystemPrompt: os.Getenv("CHATD_SYSTEM_PROMPT"),
	}

	var err error
	cfg.ProviderTimeout, err = envDuration("CHATD_PROVIDER_TIMEOUT", 60*time.Second)
	fail(err)
	cfg.MaxExchanges, err = envInt("CHATD_MAX_EXCHANGES", windowing.MaxExchanges)
	fail(err)
	maxTokens, err := envInt("CHATD_MAX_TOKENS", 1024)
	fail(err)
	cfg.Provider.MaxTokens = int64(maxTokens)
	cfg.RetrimAfterReply, err = envBool("CHATD_RETRIM_AFTER_REPLY", false)
	fail(err)
	cfg.WindowMode, err = windowing.ParseMode(os.Getenv("CHATD_WINDOW_MODE"))
	fail(err)
	fail(cfg.LogLevel.UnmarshalText([]byte(envOrDefault("CHATD_LOG_LEVEL", "info"))))

	switch kind {
	case provider.KindOpenAI:
		cfg.Provider.APIKey = os.Getenv("OPENAI_API_KEY")
		cfg.Provider.BaseURL = os.Getenv("OPENAI_BASE_URL")
		if cfg.Provider.APIKey == "" {
			errs = append(errs, "OPENAI_API_KEY is required when CHATD_PROVIDER=openai")
		}
	case provider.KindAnthropic:
		cfg.Provider.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		cfg.Provider.BaseURL = os.Getenv("ANTHROPIC_BASE_URL")
		if cfg.Provider.APIKey == "" {
			errs = append(errs, "ANTHROPIC_API_KEY is required when CHATD_PROVIDER=anthropic")
		}
	case provider.KindStatic:
	default:
		errs = append(errs, fmt.Sprintf("unknown CHATD_PROVIDER %q", kind))
	}

	switch cfg.StoreKind {
	case memory.KindFile, memory.KindBolt, memory.KindSQLite:
	default:
		errs = append(errs, fmt.Sprintf("unknown CHATD_STORE %q", cfg.StoreKind))
	}
	if cfg.MaxExchanges < 1 {
		errs = append(errs, fmt.Sprintf("CHATD_MAX_EXCHANGES must be at least 1, got %d", cfg.MaxExchanges))
	}
	if cfg.ProviderTimeout <= 0 {
		errs = append(errs, "CHATD_PROVIDER_TIMEOUT must be positive")
	}

	if len(errs) > 0 {
		return Config{}, fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return n, nil
}

func envBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return b, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return d, nil
}
