package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// chdir changes the working directory for the duration of the test and
// restores it on cleanup (t.Chdir is unavailable before Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Fatal(err)
		}
	})
}

func writeTOML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "settlement.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	chdir(t, t.TempDir()) // keep a developer .env out of the test
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 8080 || cfg.Events.Buffer != 1024 {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if cfg.Kafka.Topic != "settlement.events" || cfg.Redis.TTL.Duration != 30*time.Second {
		t.Errorf("unexpected defaults %+v", cfg)
	}
}

func TestLoad_TOML(t *testing.T) {
	chdir(t, t.TempDir())
	path := writeTOML(t, `
owner = "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed"
log_level = "debug"

[server]
port = 9090
read_timeout = "3s"
cors_origins = ["https://app.example"]

[redis]
url = "redis://localhost:6379/0"
ttl = "1m"

[events]
sink_timeout = "250ms"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 9090 || cfg.Server.ReadTimeout.Duration != 3*time.Second {
		t.Errorf("unexpected server config %+v", cfg.Server)
	}
	// Unset keys keep their defaults.
	if cfg.Server.WriteTimeout.Duration != 10*time.Second {
		t.Errorf("expected default write timeout, got %s", cfg.Server.WriteTimeout)
	}
	if cfg.Redis.TTL.Duration != time.Minute || cfg.Events.SinkTimeout.Duration != 250*time.Millisecond {
		t.Errorf("unexpected durations %+v %+v", cfg.Redis, cfg.Events)
	}
	if len(cfg.Server.CORSOrigins) != 1 || cfg.Server.CORSOrigins[0] != "https://app.example" {
		t.Errorf("unexpected origins %v", cfg.Server.CORSOrigins)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid config, got %v", err)
	}
}

func TestLoad_BadDuration(t *testing.T) {
	chdir(t, t.TempDir())
	path := writeTOML(t, "[server]\nread_timeout = \"soon\"\n")
	if _, err := Load(path); err == nil {
		t.Error("expected decode error")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	chdir(t, t.TempDir())
	path := writeTOML(t, "owner = \"from-file\"\n[server]\nport = 9090\n")

	t.Setenv("SETTLEMENT_OWNER", "from-env")
	t.Setenv("PORT", "7000")
	t.Setenv("SETTLEMENT_SERVER_PORT", "7001")
	t.Setenv("DATABASE_URL", "postgres://alias")
	t.Setenv("SETTLEMENT_KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("SETTLEMENT_SERVER_CORS_ORIGINS", " https://a , ,https://b")
	t.Setenv("SETTLEMENT_POSTGRES_RUN_MIGRATIONS", "false")
	t.Setenv("SETTLEMENT_EVENTS_SINK_TIMEOUT", "2s")
	t.Setenv("SETTLEMENT_EVENTS_BUFFER", "not-a-number")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Owner != "from-env" {
		t.Errorf("expected env owner, got %q", cfg.Owner)
	}
	// The SETTLEMENT_ variable wins over the platform alias.
	if cfg.Server.Port != 7001 {
		t.Errorf("expected port 7001, got %d", cfg.Server.Port)
	}
	if cfg.Postgres.DSN != "postgres://alias" || cfg.Postgres.RunMigrations {
		t.Errorf("unexpected postgres config %+v", cfg.Postgres)
	}
	if cfg.Kafka.Brokers != "k1:9092,k2:9092" {
		t.Errorf("unexpected brokers %q", cfg.Kafka.Brokers)
	}
	if got := strings.Join(cfg.Server.CORSOrigins, "|"); got != "https://a|https://b" {
		t.Errorf("unexpected origins %q", got)
	}
	if cfg.Events.SinkTimeout.Duration != 2*time.Second {
		t.Errorf("unexpected sink timeout %s", cfg.Events.SinkTimeout)
	}
	// Unparsable values are ignored.
	if cfg.Events.Buffer != 1024 {
		t.Errorf("expected default buffer, got %d", cfg.Events.Buffer)
	}
}

func TestValidate(t *testing.T) {
	cfg := Defaults()
	cfg.Owner = ""
	cfg.Server.Port = 0
	cfg.Redis.URL = "redis://x"
	cfg.Redis.TTL = Duration{}
	cfg.Kafka.Brokers = "k:9092"
	cfg.Kafka.Topic = ""
	cfg.Events.Buffer = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"owner is required", "server.port", "redis.ttl", "kafka.topic", "events.buffer"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected %q in %v", want, err)
		}
	}

	ok := Defaults()
	ok.Owner = "owner"
	if err := ok.Validate(); err != nil {
		t.Errorf("expected defaults plus owner to validate, got %v", err)
	}
}

func TestDuration_Text(t *testing.T) {
	var d Duration
	if err := d.UnmarshalText([]byte("90s")); err != nil {
		t.Fatal(err)
	}
	b, _ := d.MarshalText()
	if string(b) != "1m30s" {
		t.Errorf("unexpected text %q", b)
	}
}
