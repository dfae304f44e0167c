package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads the TOML file at path (skipped when path is empty) on top of
// Defaults, loads .env if present, and applies SETTLEMENT_* overrides. The
// result is not validated; call Validate.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Env, "SETTLEMENT_ENV")
	setStr(&cfg.LogLevel, "SETTLEMENT_LOG_LEVEL")
	setStr(&cfg.Owner, "SETTLEMENT_OWNER")

	// ── Server ──
	setInt(&cfg.Server.Port, "PORT") // platform alias
	setInt(&cfg.Server.Port, "SETTLEMENT_SERVER_PORT")
	setDuration(&cfg.Server.ReadTimeout, "SETTLEMENT_SERVER_READ_TIMEOUT")
	setDuration(&cfg.Server.WriteTimeout, "SETTLEMENT_SERVER_WRITE_TIMEOUT")
	setDuration(&cfg.Server.IdleTimeout, "SETTLEMENT_SERVER_IDLE_TIMEOUT")
	setStringSlice(&cfg.Server.CORSOrigins, "SETTLEMENT_SERVER_CORS_ORIGINS")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // platform alias
	setStr(&cfg.Postgres.DSN, "SETTLEMENT_POSTGRES_DSN")
	setInt(&cfg.Postgres.MaxConns, "SETTLEMENT_POSTGRES_MAX_CONNS")
	setInt(&cfg.Postgres.MinConns, "SETTLEMENT_POSTGRES_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "SETTLEMENT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.URL, "REDIS_URL") // platform alias
	setStr(&cfg.Redis.URL, "SETTLEMENT_REDIS_URL")
	setDuration(&cfg.Redis.TTL, "SETTLEMENT_REDIS_TTL")

	// ── Kafka ──
	setStr(&cfg.Kafka.Brokers, "SETTLEMENT_KAFKA_BROKERS")
	setStr(&cfg.Kafka.Topic, "SETTLEMENT_KAFKA_TOPIC")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "SETTLEMENT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "SETTLEMENT_S3_REGION")
	setStr(&cfg.S3.Bucket, "SETTLEMENT_S3_BUCKET")
	setStr(&cfg.S3.Prefix, "SETTLEMENT_S3_PREFIX")
	setStr(&cfg.S3.AccessKey, "SETTLEMENT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "SETTLEMENT_S3_SECRET_KEY")
	setBool(&cfg.S3.ForcePathStyle, "SETTLEMENT_S3_FORCE_PATH_STYLE")

	// ── Events ──
	setInt(&cfg.Events.Buffer, "SETTLEMENT_EVENTS_BUFFER")
	setDuration(&cfg.Events.SinkTimeout, "SETTLEMENT_EVENTS_SINK_TIMEOUT")
}

// ---------------------------------------------------------------------------
// Typed setters. Each is a no-op when the variable is unset or unparsable.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		*dst = out
	}
}
