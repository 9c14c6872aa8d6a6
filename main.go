package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"github.com/Billy-Davies-2/frc-line-service/internal/cache"
	"github.com/Billy-Davies-2/frc-line-service/internal/clickhouse"
	"github.com/Billy-Davies-2/frc-line-service/internal/config"
	"github.com/Billy-Davies-2/frc-line-service/internal/dal"
	grpcserver "github.com/Billy-Davies-2/frc-line-service/internal/grpc"
	"github.com/Billy-Davies-2/frc-line-service/internal/handlers"
	"github.com/Billy-Davies-2/frc-line-service/internal/logger"
	"github.com/Billy-Davies-2/frc-line-service/internal/market"
	"github.com/Billy-Davies-2/frc-line-service/internal/metrics"
	"github.com/Billy-Davies-2/frc-line-service/internal/mocks"
	"github.com/Billy-Davies-2/frc-line-service/internal/pubsub"
)

// analyticsStore is the prediction history backend, ClickHouse or its mock
type analyticsStore interface {
	market.Analytics
	Ping(ctx context.Context) error
	Close() error
}

// eventBus is the upstream event transport, NATS JetStream or its mock
type eventBus interface {
	pubsub.Upstream
	Close()
}

func main() {
	// Initialize logger first
	logger.Init()

	logger.Info("Starting FRC line service")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ledger := openLedger(cfg)
	defer ledger.Close()

	bus, busPing := openEventBus(cfg)
	defer bus.Close()
	ps := pubsub.NewWithUpstream(bus)

	lineCache := openCache(cfg)
	defer lineCache.Close()

	analytics := openAnalytics(cfg)
	defer analytics.Close()

	m := metrics.New()

	svc := market.NewService(market.Options{
		Valuation: cfg.Valuation,
		Ledger:    ledger,
		Cache:     lineCache,
		Analytics: analytics,
		Events:    ps,
		Metrics:   m,
		MaxBet:    cfg.MaxBet,
	})

	// Start gRPC server in a goroutine
	grpcServer := grpc.NewServer()
	grpcserver.RegisterLineServiceServer(grpcServer, grpcserver.NewServer(svc, ps))

	go func() {
		lis, err := net.Listen("tcp", "0.0.0.0:"+cfg.GRPCPort)
		if err != nil {
			logger.Error("Failed to listen for gRPC", "error", err, "port", cfg.GRPCPort)
			log.Fatalf("Failed to listen for gRPC: %v", err)
		}

		logger.Info("gRPC server starting", "address", "0.0.0.0:"+cfg.GRPCPort)
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("Failed to serve gRPC", "error", err)
			log.Fatalf("Failed to serve gRPC: %v", err)
		}
	}()

	// Set up HTTP routes
	mux := http.NewServeMux()

	api := handlers.NewAPIHandlers(svc, ps)
	for path, h := range api.Routes() {
		mux.Handle(path, m.Instrument(path, h))
	}

	health := handlers.NewHealthHandlers()
	health.Register("database", func(context.Context) error { return ledger.Ping() }, true)
	health.Register("cache", lineCache.Ping, false)
	health.Register("analytics", analytics.Ping, false)
	health.Register("nats", busPing, false)

	// Health check endpoints
	mux.HandleFunc("/api/health", health.Health)
	mux.HandleFunc("/healthz", health.Liveness) // Kubernetes liveness check
	mux.HandleFunc("/readyz", health.Readiness) // Kubernetes readiness check
	mux.Handle("/metrics", m.Handler())

	addr := "0.0.0.0:" + cfg.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("Server starting", "address", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed", "error", err)
			log.Fatal(err)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown incomplete", "error", err)
	}
	grpcServer.GracefulStop()
}

func openLedger(cfg *config.Config) dal.BetDAL {
	switch cfg.DBDriver {
	case "memory":
		logger.Info("Using in-memory bet ledger")
		return dal.NewMemoryDAL()
	case "sqlite":
		ledger, err := dal.NewSQLiteDAL(cfg.SQLiteFile)
		if err != nil {
			logger.Error("Failed to initialize SQLite", "error", err)
			log.Fatalf("Failed to initialize SQLite: %v", err)
		}
		logger.Info("Connected to SQLite database", "file", cfg.SQLiteFile)
		return ledger
	case "postgres":
		if cfg.DatabaseURL == "" && cfg.IsDevelopment() {
			ledger, err := mocks.NewMockPostgresDAL(cfg.SQLiteFile)
			if err != nil {
				logger.Error("Failed to initialize mock Postgres", "error", err)
				log.Fatalf("Failed to initialize mock Postgres: %v", err)
			}
			return ledger
		}
		if cfg.DatabaseURL == "" {
			logger.Error("DATABASE_URL environment variable is required for postgres driver")
			log.Fatal("DATABASE_URL environment variable is required for postgres driver")
		}
		ledger, err := dal.NewPostgresDAL(cfg.DatabaseURL)
		if err != nil {
			logger.Error("Failed to initialize Postgres", "error", err)
			log.Fatalf("Failed to initialize Postgres: %v", err)
		}
		logger.Info("Connected to Postgres database")
		return ledger
	default:
		logger.Error("Unknown DB_DRIVER", "driver", cfg.DBDriver)
		log.Fatalf("Unknown DB_DRIVER: %s (valid: memory, sqlite, postgres)", cfg.DBDriver)
		return nil
	}
}

// openEventBus picks the NATS transport. Development defaults to an
// embedded server, everything else to an external one.
func openEventBus(cfg *config.Config) (eventBus, handlers.Check) {
	mode := cfg.NATSMode
	if mode == "" {
		mode = "external"
		if cfg.IsDevelopment() {
			mode = "embedded"
		}
	}

	switch mode {
	case "mock":
		logger.Info("Using mock NATS (no server required)")
		return pubsub.NewMockNATSPubSub(cfg.NATSSubject, 1000), func(context.Context) error { return nil }
	case "embedded":
		logger.Info("Starting embedded NATS server for local development")
		opts := pubsub.DefaultEmbeddedNATSOptions()
		opts.Subject = cfg.NATSSubject
		bus, err := pubsub.NewEmbeddedNATSPubSub(opts)
		if err != nil {
			logger.Error("Failed to initialize embedded NATS", "error", err)
			log.Fatalf("Failed to initialize embedded NATS: %v", err)
		}
		logger.Info("Embedded NATS server ready", "url", bus.ServerURL())
		return bus, func(context.Context) error { return bus.Ping() }
	case "external":
		bus, err := pubsub.NewNATSPubSub(cfg.NATSURL, cfg.NATSSubject)
		if err != nil {
			logger.Error("Failed to initialize NATS", "error", err)
			log.Fatalf("Failed to initialize NATS: %v", err)
		}
		return bus, func(context.Context) error { return bus.Ping() }
	default:
		logger.Error("Unknown NATS_MODE", "mode", mode)
		log.Fatalf("Unknown NATS_MODE: %s (valid: embedded, external, mock)", mode)
		return nil, nil
	}
}

func openCache(cfg *config.Config) cache.LineCache {
	if cfg.RedisAddr == "" {
		logger.Info("Using in-memory line cache", "ttl", cfg.CacheTTL)
		return cache.NewMemoryCache(cfg.CacheTTL)
	}

	c, err := cache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.CacheTTL)
	if err != nil {
		logger.Error("Failed to initialize Redis", "error", err, "address", cfg.RedisAddr)
		log.Fatalf("Failed to initialize Redis: %v", err)
	}
	logger.Info("Connected to Redis", "address", cfg.RedisAddr)
	return c
}

func openAnalytics(cfg *config.Config) analyticsStore {
	if cfg.IsDevelopment() {
		logger.Info("Using mock ClickHouse for local development (no ClickHouse server required)")
		return mocks.NewMockClickHouseClient()
	}

	client, err := clickhouse.NewClient(cfg.ClickHouseAddr, cfg.ClickHouseDB, cfg.ClickHouseUser, cfg.ClickHousePassword)
	if err != nil {
		logger.Error("Failed to initialize ClickHouse", "error", err, "address", cfg.ClickHouseAddr)
		log.Fatalf("Failed to initialize ClickHouse: %v", err)
	}
	logger.Info("Connected to ClickHouse", "address", cfg.ClickHouseAddr, "database", cfg.ClickHouseDB)
	return client
}
