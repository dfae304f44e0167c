// Package config defines the settlement engine configuration and its
// validation rules.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration. Fields come from a TOML file and are
// then optionally overridden by SETTLEMENT_* environment variables.
type Config struct {
	Env      string         `toml:"env"`
	LogLevel string         `toml:"log_level"`
	Owner    string         `toml:"owner"`
	Server   ServerConfig   `toml:"server"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	Kafka    KafkaConfig    `toml:"kafka"`
	S3       S3Config       `toml:"s3"`
	Events   EventsConfig   `toml:"events"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Port         int      `toml:"port"`
	ReadTimeout  Duration `toml:"read_timeout"`
	WriteTimeout Duration `toml:"write_timeout"`
	IdleTimeout  Duration `toml:"idle_timeout"`
	CORSOrigins  []string `toml:"cors_origins"`
}

// PostgresConfig holds the source-of-truth database settings. An empty DSN
// selects the in-memory store.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	MaxConns      int    `toml:"max_conns"`
	MinConns      int    `toml:"min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds the view cache settings. An empty URL disables caching.
type RedisConfig struct {
	URL string   `toml:"url"`
	TTL Duration `toml:"ttl"`
}

// KafkaConfig holds the event stream settings. Empty brokers disable it.
type KafkaConfig struct {
	Brokers string `toml:"brokers"`
	Topic   string `toml:"topic"`
}

// S3Config holds the event archive settings. An empty bucket disables it.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	Prefix         string `toml:"prefix"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// EventsConfig tunes the dispatcher.
type EventsConfig struct {
	Buffer      int      `toml:"buffer"`
	SinkTimeout Duration `toml:"sink_timeout"`
}

// Duration decodes TOML strings such as "30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Env:      "local",
		LogLevel: "info",
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  Duration{10 * time.Second},
			WriteTimeout: Duration{10 * time.Second},
			IdleTimeout:  Duration{60 * time.Second},
			CORSOrigins:  []string{"*"},
		},
		Postgres: PostgresConfig{
			MaxConns:      10,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			TTL: Duration{30 * time.Second},
		},
		Kafka: KafkaConfig{
			Topic: "settlement.events",
		},
		S3: S3Config{
			Region: "us-east-1",
			Prefix: "settlement-events",
		},
		Events: EventsConfig{
			Buffer:      1024,
			SinkTimeout: Duration{5 * time.Second},
		},
	}
}

// Validate reports every problem in one error.
func (c *Config) Validate() error {
	var errs []string

	if strings.TrimSpace(c.Owner) == "" {
		errs = append(errs, "owner is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port %d out of range", c.Server.Port))
	}
	if c.Postgres.MinConns > c.Postgres.MaxConns && c.Postgres.MaxConns > 0 {
		errs = append(errs, "postgres.min_conns exceeds postgres.max_conns")
	}
	if c.Redis.URL != "" && c.Redis.TTL.Duration <= 0 {
		errs = append(errs, "redis.ttl must be positive")
	}
	if c.Kafka.Brokers != "" && c.Kafka.Topic == "" {
		errs = append(errs, "kafka.topic is required when brokers are set")
	}
	if c.S3.Bucket != "" && c.S3.Region == "" {
		errs = append(errs, "s3.region is required when bucket is set")
	}
	if c.Events.Buffer <= 0 {
		errs = append(errs, "events.buffer must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}
