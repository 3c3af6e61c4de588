package config

import (
	"fmt"
	"time"
)

// Config carries everything the server and CLI need. Values come from
// defaults, then the platform config backend, then DAYLINE_* environment
// variables, with later sources winning.
type Config struct {
	Server    ServerConfig
	Engine    EngineConfig
	RateLimit RateLimitConfig
	Retry     RetryConfig
	Worker    WorkerConfig
	Sweep     SweepConfig
	Storage   StorageConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port int
}

// EngineConfig selects and configures the enrichment provider: "textkit"
// for the hosted API, "stub" for the offline canned enricher.
type EngineConfig struct {
	Provider string
	BaseURL  string
	APIKey   string
	Model    string
}

// RateLimitConfig bounds calls to the enrichment provider. The defaults
// match the provider's free-tier budget.
type RateLimitConfig struct {
	RequestsPerMinute int
	TokensPerMinute   int
	MaxWaitAttempts   int
	BaseDelay         time.Duration
}

type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	Jitter     float64
}

type WorkerConfig struct {
	PollInterval time.Duration
	Concurrency  int
}

type SweepConfig struct {
	Schedule      string
	StaleAfter    time.Duration
	Requeue       bool
	RequeueMaxAge time.Duration
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	dataDir := defaultDataDir()
	return Config{
		Server: ServerConfig{
			Port: 4400,
		},
		Engine: EngineConfig{
			Provider: "stub",
			BaseURL:  "https://api.textkit.dev",
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 60,
			TokensPerMinute:   90000,
			MaxWaitAttempts:   3,
			BaseDelay:         time.Second,
		},
		Retry: RetryConfig{
			MaxRetries: 3,
			BaseDelay:  time.Second,
			Jitter:     0.1,
		},
		Worker: WorkerConfig{
			PollInterval: 500 * time.Millisecond,
			Concurrency:  2,
		},
		Sweep: SweepConfig{
			Schedule:      "@every 1m",
			StaleAfter:    15 * time.Minute,
			RequeueMaxAge: 24 * time.Hour,
		},
		Storage: StorageConfig{
			DataDir: dataDir,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the platform-native backend, environment
// variables, and the platform secret store.
//
// On macOS the backend is UserDefaults (domain: com.dayline.app) and secrets
// fall back to macOS Keychain.
// On Linux the backend is a JSON file at $XDG_CONFIG_HOME/dayline/config.json
// and secrets live in a restricted file under the data dir.
//
// Environment variables (DAYLINE_*) override backend values on all platforms.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), NewKeychain())
}

// keychain abstracts secret reads for testing.
type keychain interface {
	Get(service, account string) (string, error)
}

func loadWith(b ConfigBackend, kc keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	// Try the platform secret store for the provider key if still empty.
	if cfg.Engine.APIKey == "" {
		if key, err := kc.Get(keychainService, apiKeyAccount); err == nil && key != "" {
			cfg.Engine.APIKey = key
		}
	}

	switch cfg.Engine.Provider {
	case "", "stub":
	case "textkit":
		if cfg.Engine.APIKey == "" {
			msg := "missing required config: TextKit API key. " +
				"Set it via environment variable DAYLINE_TEXTKIT_API_KEY" +
				apiKeyHint()
			return Config{}, fmt.Errorf("%s", msg)
		}
	default:
		return Config{}, fmt.Errorf("unknown engine provider %q: want textkit or stub", cfg.Engine.Provider)
	}

	return cfg, nil
}
