package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kFloat
	kDuration
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "DAYLINE_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "engine.provider", typ: kString, env: "DAYLINE_ENGINE_PROVIDER",
		apply:   func(cfg *Config, v any) { cfg.Engine.Provider = v.(string) },
		extract: func(cfg Config) any { return cfg.Engine.Provider },
	},
	{
		key: "engine.base_url", typ: kString, env: "DAYLINE_ENGINE_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Engine.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Engine.BaseURL },
	},
	{
		key: "engine.api_key", typ: kString, env: "DAYLINE_TEXTKIT_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Engine.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Engine.APIKey },
	},
	{
		key: "engine.model", typ: kString, env: "DAYLINE_ENGINE_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Engine.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Engine.Model },
	},
	{
		key: "ratelimit.requests_per_minute", typ: kInt, env: "DAYLINE_RATELIMIT_REQUESTS_PER_MINUTE",
		apply:   func(cfg *Config, v any) { cfg.RateLimit.RequestsPerMinute = v.(int) },
		extract: func(cfg Config) any { return cfg.RateLimit.RequestsPerMinute },
	},
	{
		key: "ratelimit.tokens_per_minute", typ: kInt, env: "DAYLINE_RATELIMIT_TOKENS_PER_MINUTE",
		apply:   func(cfg *Config, v any) { cfg.RateLimit.TokensPerMinute = v.(int) },
		extract: func(cfg Config) any { return cfg.RateLimit.TokensPerMinute },
	},
	{
		key: "ratelimit.max_wait_attempts", typ: kInt, env: "DAYLINE_RATELIMIT_MAX_WAIT_ATTEMPTS",
		apply:   func(cfg *Config, v any) { cfg.RateLimit.MaxWaitAttempts = v.(int) },
		extract: func(cfg Config) any { return cfg.RateLimit.MaxWaitAttempts },
	},
	{
		key: "ratelimit.base_delay", typ: kDuration, env: "DAYLINE_RATELIMIT_BASE_DELAY",
		apply:   func(cfg *Config, v any) { cfg.RateLimit.BaseDelay = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.RateLimit.BaseDelay },
	},
	{
		key: "retry.max_retries", typ: kInt, env: "DAYLINE_RETRY_MAX_RETRIES",
		apply:   func(cfg *Config, v any) { cfg.Retry.MaxRetries = v.(int) },
		extract: func(cfg Config) any { return cfg.Retry.MaxRetries },
	},
	{
		key: "retry.base_delay", typ: kDuration, env: "DAYLINE_RETRY_BASE_DELAY",
		apply:   func(cfg *Config, v any) { cfg.Retry.BaseDelay = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Retry.BaseDelay },
	},
	{
		key: "retry.jitter", typ: kFloat, env: "DAYLINE_RETRY_JITTER",
		apply:   func(cfg *Config, v any) { cfg.Retry.Jitter = v.(float64) },
		extract: func(cfg Config) any { return cfg.Retry.Jitter },
	},
	{
		key: "worker.poll_interval", typ: kDuration, env: "DAYLINE_WORKER_POLL_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Worker.PollInterval = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Worker.PollInterval },
	},
	{
		key: "worker.concurrency", typ: kInt, env: "DAYLINE_WORKER_CONCURRENCY",
		apply:   func(cfg *Config, v any) { cfg.Worker.Concurrency = v.(int) },
		extract: func(cfg Config) any { return cfg.Worker.Concurrency },
	},
	{
		key: "sweep.schedule", typ: kString, env: "DAYLINE_SWEEP_SCHEDULE",
		apply:   func(cfg *Config, v any) { cfg.Sweep.Schedule = v.(string) },
		extract: func(cfg Config) any { return cfg.Sweep.Schedule },
	},
	{
		key: "sweep.stale_after", typ: kDuration, env: "DAYLINE_SWEEP_STALE_AFTER",
		apply:   func(cfg *Config, v any) { cfg.Sweep.StaleAfter = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Sweep.StaleAfter },
	},
	{
		key: "sweep.requeue", typ: kBool, env: "DAYLINE_SWEEP_REQUEUE",
		apply:   func(cfg *Config, v any) { cfg.Sweep.Requeue = v.(bool) },
		extract: func(cfg Config) any { return cfg.Sweep.Requeue },
	},
	{
		key: "sweep.requeue_max_age", typ: kDuration, env: "DAYLINE_SWEEP_REQUEUE_MAX_AGE",
		apply:   func(cfg *Config, v any) { cfg.Sweep.RequeueMaxAge = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Sweep.RequeueMaxAge },
	},
	{
		key: "storage.data_dir", typ: kString, env: "DAYLINE_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "log.level", typ: kString, env: "DAYLINE_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kBool:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if bv, err := strconv.ParseBool(v); err == nil {
					s.apply(cfg, bv)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		case kFloat:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if f, err := strconv.ParseFloat(v, 64); err == nil {
					s.apply(cfg, f)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse float from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		case kDuration:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if d, err := time.ParseDuration(v); err == nil {
					s.apply(cfg, d)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse duration from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kBool:
			if b, err := strconv.ParseBool(raw); err == nil {
				s.apply(cfg, b)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kFloat:
			if f, err := strconv.ParseFloat(raw, 64); err == nil {
				s.apply(cfg, f)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse float from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kDuration:
			if d, err := time.ParseDuration(raw); err == nil {
				s.apply(cfg, d)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse duration from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
