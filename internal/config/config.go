package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port           string   `yaml:"port"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Store struct {
		// Driver selects where live session state lives: memory, redis or postgres.
		Driver string `yaml:"driver"`
	} `yaml:"store"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Quiz struct {
		TTL string `yaml:"ttl"`
	} `yaml:"quiz"`
	Game struct {
		QuestionDuration string `yaml:"question_duration"`
		BasePoints       int    `yaml:"base_points"`
		TimeBonus        int    `yaml:"time_bonus"`
		MinPoints        int    `yaml:"min_points"`
		// RevealMode is "result" (question_result after each question) or "leaderboard".
		RevealMode       string `yaml:"reveal_mode"`
		JoinCodeLength   int    `yaml:"join_code_length"`
		SubscriberBuffer int    `yaml:"subscriber_buffer"`
	} `yaml:"game"`
	Generator struct {
		BaseURL       string `yaml:"base_url"`
		APIKey        string `yaml:"api_key"`
		Model         string `yaml:"model"`
		Timeout       string `yaml:"timeout"`
		QuestionCount int    `yaml:"question_count"`
	} `yaml:"generator"`
	Events struct {
		AMQPURL  string `yaml:"amqp_url"`
		Exchange string `yaml:"exchange"`
	} `yaml:"events"`
	Auth struct {
		Secret   string `yaml:"secret"`
		TokenTTL string `yaml:"token_ttl"`
	} `yaml:"auth"`
}

const (
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"

	RevealResult      = "result"
	RevealLeaderboard = "leaderboard"
)

// Default returns the configuration used for anything a file leaves out.
func Default() Config {
	var cfg Config
	cfg.Server.Port = "8080"
	cfg.Log.Level = "info"
	cfg.Log.Format = "json"
	cfg.Store.Driver = DriverMemory
	cfg.Redis.TTL = "24h"
	cfg.Quiz.TTL = "10m"
	cfg.Game.QuestionDuration = "30s"
	cfg.Game.BasePoints = 1000
	cfg.Game.RevealMode = RevealResult
	cfg.Game.JoinCodeLength = 6
	cfg.Game.SubscriberBuffer = 16
	cfg.Generator.Model = "gpt-4o-mini"
	cfg.Generator.Timeout = "60s"
	cfg.Generator.QuestionCount = 5
	cfg.Events.Exchange = "quiz.events"
	cfg.Auth.TokenTTL = "12h"
	return cfg
}

// Load reads YAML config from path on top of Default. A missing file is not
// an error; the defaults and environment still apply.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return cfg, err
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	cfg.ApplyEnv(os.LookupEnv)
	return cfg, cfg.Validate()
}

// ApplyEnv overrides connection strings and secrets from the environment.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	set := func(dst *string, key string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	set(&c.Store.Driver, "STORE_DRIVER")
	set(&c.Redis.Addr, "REDIS_ADDR")
	set(&c.Redis.Password, "REDIS_PASSWORD")
	set(&c.Postgres.URL, "POSTGRES_URL")
	set(&c.Events.AMQPURL, "AMQP_URL")
	set(&c.Generator.BaseURL, "GENERATOR_BASE_URL")
	set(&c.Generator.APIKey, "GENERATOR_API_KEY")
	set(&c.Auth.Secret, "HOST_TOKEN_SECRET")
	set(&c.Log.Level, "LOG_LEVEL")
}

func (c Config) Validate() error {
	switch c.Store.Driver {
	case DriverMemory:
	case DriverRedis:
		if c.Redis.Addr == "" {
			return errors.New("store driver redis needs redis.addr")
		}
	case DriverPostgres:
		if c.Postgres.URL == "" {
			return errors.New("store driver postgres needs postgres.url")
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	switch c.Game.RevealMode {
	case "", RevealResult, RevealLeaderboard:
	default:
		return fmt.Errorf("unknown reveal mode %q", c.Game.RevealMode)
	}
	if d := TTLDuration(c.Game.QuestionDuration, 0); d <= 0 {
		return fmt.Errorf("game.question_duration must be positive, got %q", c.Game.QuestionDuration)
	}
	return nil
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
