package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/atmx/settlement-engine/internal/account"
	"github.com/atmx/settlement-engine/internal/api"
	"github.com/atmx/settlement-engine/internal/config"
	"github.com/atmx/settlement-engine/internal/events"
	"github.com/atmx/settlement-engine/internal/logger"
	"github.com/atmx/settlement-engine/internal/registry"
	"github.com/atmx/settlement-engine/internal/store"
)

func main() {
	configPath := flag.String("config", os.Getenv("SETTLEMENT_CONFIG"), "path to TOML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log, err := logger.New("settlement-engine", cfg.Env, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Error("settlement-engine failed", zap.Error(err))
		os.Exit(1)
	}
	log.Info("settlement-engine stopped")
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	owner, err := account.Normalize(cfg.Owner)
	if err != nil {
		return fmt.Errorf("owner: %w", err)
	}

	// --- Initialize store ---
	var st store.Store
	var views store.MarketReader
	var cleanup []func()
	defer func() {
		for i := len(cleanup) - 1; i >= 0; i-- {
			cleanup[i]()
		}
	}()

	if cfg.Postgres.DSN != "" {
		poolCfg, err := pgxpool.ParseConfig(cfg.Postgres.DSN)
		if err != nil {
			return fmt.Errorf("postgres: parse config: %w", err)
		}
		if cfg.Postgres.MaxConns > 0 {
			poolCfg.MaxConns = int32(cfg.Postgres.MaxConns)
		}
		if cfg.Postgres.MinConns > 0 {
			poolCfg.MinConns = int32(cfg.Postgres.MinConns)
		}
		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return fmt.Errorf("postgres: connect: %w", err)
		}
		cleanup = append(cleanup, pool.Close)

		pg := store.NewPostgresStore(pool)
		if cfg.Postgres.RunMigrations {
			if err := pg.Migrate(ctx); err != nil {
				return err
			}
		}
		st = pg
		log.Info("connected to PostgreSQL")
	} else {
		log.Warn("postgres dsn not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}
	views = st

	// Wrap market reads with Redis read-through cache if configured.
	if cfg.Redis.URL != "" {
		opt, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("invalid redis url: %w", err)
		}
		rdb := redis.NewClient(opt)
		cleanup = append(cleanup, func() { rdb.Close() })
		views = store.NewCachedStore(st, rdb, cfg.Redis.TTL.Duration)
		log.Info("Redis view cache enabled", zap.Duration("ttl", cfg.Redis.TTL.Duration))
	}

	// --- Event sinks ---
	hub := events.NewWSHub(log.Named("ws"))
	sinks := []events.Sink{hub}

	if cfg.Kafka.Brokers != "" {
		ks := events.NewKafkaSink(events.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic))
		cleanup = append(cleanup, func() {
			if err := ks.Close(); err != nil {
				log.Warn("kafka close", zap.Error(err))
			}
		})
		sinks = append(sinks, ks)
		log.Info("Kafka event stream enabled", zap.String("topic", cfg.Kafka.Topic))
	}

	if cfg.S3.Bucket != "" {
		client, err := events.NewS3Client(ctx, events.S3Config{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			Prefix:         cfg.S3.Prefix,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return err
		}
		sinks = append(sinks, events.NewS3Sink(client, cfg.S3.Bucket, cfg.S3.Prefix))
		log.Info("S3 event archive enabled", zap.String("bucket", cfg.S3.Bucket))
	}

	dispatcher := events.NewDispatcher(cfg.Events.Buffer, cfg.Events.SinkTimeout.Duration, log.Named("events"), sinks...)

	// --- Registry ---
	reg, err := registry.New(ctx, owner, st,
		registry.WithViews(views),
		registry.WithNotifier(dispatcher),
		registry.WithLogger(log.Named("registry")),
	)
	if err != nil {
		return err
	}
	log.Info("registry ready", zap.String("owner", string(owner)))

	// --- HTTP ---
	svc := api.NewService(reg, log.Named("api"))
	srv := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Server.Port),
		Handler:      api.NewRouter(svc, hub.HandleWS, cfg.Server.CORSOrigins),
		ReadTimeout:  cfg.Server.ReadTimeout.Duration,
		WriteTimeout: cfg.Server.WriteTimeout.Duration,
		IdleTimeout:  cfg.Server.IdleTimeout.Duration,
	}

	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", srv.Addr, err)
	}
	return serve(ctx, srv, ln, dispatcher, hub, log)
}
