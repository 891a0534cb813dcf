package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/layer-3/keeper/adapters/events"
	"github.com/layer-3/keeper/adapters/identity"
	"github.com/layer-3/keeper/adapters/store"
	"github.com/layer-3/keeper/adapters/tokenizer"
	"github.com/layer-3/keeper/config"
	"github.com/layer-3/keeper/ports"
	"github.com/layer-3/keeper/service"
	"github.com/layer-3/keeper/transport/http"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(cfg.AppEnv)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	policies, err := cfg.Policies()
	if err != nil {
		logger.Fatal("Invalid token policies", zap.Error(err))
	}
	sweepInterval, err := cfg.SweepInterval()
	if err != nil {
		logger.Fatal("Invalid sweep interval", zap.Error(err))
	}

	// Session ledger and event bus share Redis when it is configured
	var (
		ledger    ports.Ledger
		publisher message.Publisher
	)
	wmLogger := watermill.NewStdLogger(false, false)
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal("Failed to parse Redis URL", zap.Error(err))
		}
		redisClient := redis.NewClient(opts)
		defer redisClient.Close()

		ledger = store.NewRedisLedger(redisClient)
		publisher, err = redisstream.NewPublisher(
			redisstream.PublisherConfig{
				Client: redisClient,
			},
			wmLogger,
		)
		if err != nil {
			logger.Fatal("Failed to create Redis publisher", zap.Error(err))
		}
	} else {
		logger.Warn("REDIS_URL not set, sessions are kept in memory")
		ledger = store.NewMemoryLedger()
		publisher = gochannel.NewGoChannel(gochannel.Config{}, wmLogger)
	}
	defer publisher.Close()

	var users ports.UserStore
	if cfg.DatabaseURL != "" {
		pool, err := newPool(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("Failed to connect database", zap.Error(err))
		}
		defer pool.Close()

		pgUsers := store.NewPostgresUserStore(pool)
		if err := pgUsers.EnsureSchema(ctx); err != nil {
			logger.Fatal("Failed to apply schema", zap.Error(err))
		}
		users = pgUsers
	} else {
		logger.Warn("DATABASE_URL not set, users are kept in memory")
		users = store.NewMemoryUserStore()
	}

	tk := tokenizer.NewJWTTokenizer(policies)
	eventPub := events.NewWatermillPublisher(publisher)
	verifier := identity.NewJWTVerifier([]byte(cfg.IdentityKey), cfg.IdentityIssuer, cfg.IdentityAudience)

	sessions := service.NewSessionService(tk, ledger, eventPub, logger)
	bonding := service.NewBondingService(tk, users, eventPub, cfg.MaxBonds, logger)

	go service.NewSweeper(ledger, sweepInterval, logger).Run(ctx)

	// Setup Gin router
	if cfg.AppEnv != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	handlers := http.NewHandlers(sessions, bonding, users, verifier)
	router := http.SetupRouter(handlers, http.AuthMiddleware(sessions), logger)

	// Start server
	logger.Info("Starting server", zap.String("addr", cfg.HTTPAddr))
	if err := router.Run(cfg.HTTPAddr); err != nil {
		logger.Fatal("Failed to start server", zap.Error(err))
	}
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "development" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func newPool(ctx context.Context, url string) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}
