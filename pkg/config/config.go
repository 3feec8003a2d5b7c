// Package config loads service configuration from a JSON file with
// environment overrides. A .env file is honored when present.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	defaultServerPort   = 8000
	defaultStoreBackend = "file"
	defaultStorePath    = "userdata.json"
)

// ErrInvalidStripeKey is returned when the payment API key does not carry
// the secret-key prefix. Startup must abort: a publishable or malformed
// key would fail on the first re-fetch, long after the config mistake.
var ErrInvalidStripeKey = errors.New("invalid Stripe API key (must start with 'sk_')")

// Config is the service configuration, loaded once at startup.
// JSON keys match the original config.json layout.
type Config struct {
	DiscordToken   string            `json:"DISCORD_TOKEN"`
	StripeAPIKey   string            `json:"STRIPE_API_KEY"`
	DiscordGuildID string            `json:"DISCORD_GUILD_ID"`
	ServerPort     int               `json:"SERVER_PORT"`
	Roles          map[string]string `json:"ROLES"`
	NotifyWebhook  string            `json:"NOTIFY_WEBHOOK"`

	// StripeWebhookSecret enables signature verification when set.
	StripeWebhookSecret string `json:"STRIPE_WEBHOOK_SECRET"`

	// StoreBackend selects the durable store: file, memory, redis or
	// postgres (default: file).
	StoreBackend string `json:"STORE_BACKEND"`
	StorePath    string `json:"STORE_PATH"`
	RedisAddr    string `json:"REDIS_ADDR"`
	PostgresDSN  string `json:"POSTGRES_DSN"`

	// MutationPaceMS is the minimum delay in milliseconds between
	// consecutive role mutations for one account.
	MutationPaceMS int `json:"MUTATION_PACE_MS"`

	// Live is derived from the API key prefix, never set directly.
	Live bool `json:"-"`
}

// Load reads configuration from path (optional; missing file is fine
// when the environment supplies everything) and applies environment
// overrides on top.
func Load(path string) (*Config, error) {
	// Best effort; a missing .env just means the environment is already
	// populated.
	_ = godotenv.Load()

	cfg := &Config{
		ServerPort:   defaultServerPort,
		StoreBackend: defaultStoreBackend,
		StorePath:    defaultStorePath,
		Roles:        make(map[string]string),
	}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := json.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	applyEnv(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	cfg.Live = strings.HasPrefix(cfg.StripeAPIKey, "sk_live_")
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString := func(dst *string, key string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	setString(&cfg.DiscordToken, "DISCORD_TOKEN")
	setString(&cfg.StripeAPIKey, "STRIPE_API_KEY")
	setString(&cfg.DiscordGuildID, "DISCORD_GUILD_ID")
	setString(&cfg.NotifyWebhook, "NOTIFY_WEBHOOK")
	setString(&cfg.StripeWebhookSecret, "STRIPE_WEBHOOK_SECRET")
	setString(&cfg.StoreBackend, "STORE_BACKEND")
	setString(&cfg.StorePath, "STORE_PATH")
	setString(&cfg.RedisAddr, "REDIS_ADDR")
	setString(&cfg.PostgresDSN, "POSTGRES_DSN")

	if v, ok := os.LookupEnv("SERVER_PORT"); ok {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.ServerPort = port
		}
	}
	if v, ok := os.LookupEnv("MUTATION_PACE_MS"); ok {
		if pace, err := strconv.Atoi(v); err == nil {
			cfg.MutationPaceMS = pace
		}
	}
}

func (c *Config) validate() error {
	if !strings.HasPrefix(c.StripeAPIKey, "sk_") {
		return ErrInvalidStripeKey
	}
	if c.DiscordToken == "" {
		return errors.New("DISCORD_TOKEN is required")
	}
	if c.DiscordGuildID == "" {
		return errors.New("DISCORD_GUILD_ID is required")
	}
	if c.ServerPort <= 0 || c.ServerPort > 65535 {
		return fmt.Errorf("SERVER_PORT out of range: %d", c.ServerPort)
	}

	switch c.StoreBackend {
	case "file":
		if c.StorePath == "" {
			return errors.New("STORE_PATH is required for the file backend")
		}
	case "memory":
	case "redis":
		if c.RedisAddr == "" {
			return errors.New("REDIS_ADDR is required for the redis backend")
		}
	case "postgres":
		if c.PostgresDSN == "" {
			return errors.New("POSTGRES_DSN is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.StoreBackend)
	}

	return nil
}
