package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port            string `yaml:"port"`
		ShutdownTimeout string `yaml:"shutdownTimeout"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Catalog struct {
		TTL  string `yaml:"ttl"`
		File string `yaml:"file"`
	} `yaml:"catalog"`
	Review struct {
		Lock    string `yaml:"lock"` // memory | redis
		LockTTL string `yaml:"lockTTL"`
	} `yaml:"review"`
	Notifier struct {
		RedisChannel string `yaml:"redisChannel"`
	} `yaml:"notifier"`
	Analytics struct {
		ScoreBuckets []int `yaml:"scoreBuckets"`
	} `yaml:"analytics"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"` // text | json
	} `yaml:"log"`
}

// Load reads YAML config from path. Environment references like ${VAR} are expanded first.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Review.Lock {
	case "", "memory":
	case "redis":
		if c.Redis.Addr == "" {
			return fmt.Errorf("review.lock=redis requires redis.addr")
		}
	default:
		return fmt.Errorf("unknown review.lock %q", c.Review.Lock)
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown log.format %q", c.Log.Format)
	}
	for i := 1; i < len(c.Analytics.ScoreBuckets); i++ {
		if c.Analytics.ScoreBuckets[i] <= c.Analytics.ScoreBuckets[i-1] {
			return fmt.Errorf("analytics.scoreBuckets must be strictly increasing")
		}
	}
	return nil
}

// Warnings lists settings that are valid but risky for the deployment they describe.
func (c Config) Warnings() []string {
	var out []string
	if c.Postgres.URL != "" && c.Review.Lock != "redis" {
		out = append(out, "review.lock=memory serializes reviews within one instance only; use review.lock=redis for several instances")
	}
	return out
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}

// LogLevel maps log.level to a slog level, defaulting to info.
func (c Config) LogLevel() slog.Level {
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
