package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	intDatabase "learnhub-backend/internal/database"
	callHandler "learnhub-backend/internal/handler/http/call"
	pushHandler "learnhub-backend/internal/handler/http/push"
	wsHandler "learnhub-backend/internal/handler/ws"
	"learnhub-backend/internal/middleware"
	"learnhub-backend/internal/presence"
	"learnhub-backend/internal/repository/cassandra"
	"learnhub-backend/internal/repository/cockroach"
	redisRepo "learnhub-backend/internal/repository/redis"
	"learnhub-backend/internal/room"
	callService "learnhub-backend/internal/service/call"
	"learnhub-backend/internal/signaling"
	"learnhub-backend/pkg/config"
	"learnhub-backend/pkg/constants"
	pkgDatabase "learnhub-backend/pkg/database"
	"learnhub-backend/pkg/jwt"
	"learnhub-backend/pkg/logger"
	"learnhub-backend/pkg/metrics"
	"learnhub-backend/pkg/push"
)

func main() {
	// .env is optional; real deployments pass the environment directly
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := logger.Init(&logger.Config{
		Level:    cfg.Log.Level,
		Format:   cfg.Log.Format,
		Output:   cfg.Log.Output,
		FilePath: cfg.Log.FilePath,
	}); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// Root context, cancelled on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	instanceID := uuid.NewString()
	productionMode := cfg.Server.Environment == "production"

	// 1. Initialize Metrics
	appMetrics := metrics.NewMetrics(cfg.Server.ServiceName)

	// 2. Setup JWT Manager
	if cfg.JWT.Secret == "" {
		logger.Fatal("JWT_SECRET environment variable is required")
	}
	jwtManager := jwt.NewJWTManager(cfg.JWT.Secret, 15*time.Minute)

	// 3. Connect to CockroachDB for calls and users
	db, err := pkgDatabase.ConnectCockroachWithRetry(ctx, &pkgDatabase.CockroachConfig{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Database: cfg.Database.Database,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: int32(cfg.Database.MaxConns),
		MinConns: int32(cfg.Database.MinConns),
	}, 5)
	if err != nil {
		logger.Fatal("Failed to connect to CockroachDB", zap.Error(err))
	}
	defer db.Close()
	logger.Info("Connected to CockroachDB")

	// 4. Connect to Cassandra for call history messages
	cassandraDB, err := pkgDatabase.ConnectCassandraWithRetry(ctx, &pkgDatabase.CassandraConfig{
		Hosts:       cfg.Cassandra.Hosts,
		Keyspace:    cfg.Cassandra.Keyspace,
		Consistency: cfg.Cassandra.Consistency,
		Username:    cfg.Cassandra.Username,
		Password:    cfg.Cassandra.Password,
		Timeout:     cfg.Cassandra.Timeout,
	}, 5)
	if err != nil {
		logger.Fatal("Failed to connect to Cassandra", zap.Error(err))
	}
	defer cassandraDB.Close()
	logger.Info("Connected to Cassandra")

	// 5. Initialize Redis with degraded mode support
	redisDB, err := intDatabase.NewRedisDB(&intDatabase.RedisConfig{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
		Timeout:  cfg.Redis.Timeout,
	}, appMetrics)
	if err != nil {
		logger.Warn("Redis unavailable, starting in degraded mode", zap.Error(err))
	} else {
		logger.Info("Connected to Redis")
	}
	defer redisDB.Close()

	go redisDB.StartHealthCheck(ctx, 10*time.Second)

	// 6. Presence and relay
	presenceRepo := redisRepo.NewPresenceRepository(redisDB, instanceID)
	registry := presence.NewRegistry(presenceRepo, cfg.WebSocket.PresenceTTL, appMetrics)
	relay := signaling.NewRelay(registry, presenceRepo, signaling.NewRedisBus(redisDB), instanceID, appMetrics)
	registry.OnTakeover(relay.AnnounceTakeover)
	rooms := room.NewManager(redisRepo.NewRoomRepository(redisDB), room.NewRedisBus(redisDB), instanceID, appMetrics)

	// 7. Push notifications
	if productionMode && cfg.Push.Provider == "mock" {
		logger.Fatal("PUSH_PROVIDER=mock is not allowed in production")
	}
	pushProvider, err := push.NewProvider(ctx, &cfg.Push)
	if err != nil {
		if productionMode {
			logger.Fatal("Failed to initialize push provider", zap.Error(err))
		}
		logger.Warn("Falling back to mock push provider", zap.Error(err))
		pushProvider = &push.MockProvider{}
	}
	pushSvc := push.NewService(pushProvider, redisRepo.NewPushTokenRepository(redisDB.Client), appMetrics)

	// 8. Call service
	callSvc := callService.NewService(
		cockroach.NewCallRepository(db.Pool),
		cockroach.NewUserRepository(db.Pool),
		cassandra.NewCallMessageRepository(cassandraDB.Session),
		relay,
		pushSvc,
		appMetrics,
		cfg.Call.StaleAfter,
	)
	sweeper := callService.NewSweeper(callSvc, cfg.Call.SweepInterval)

	// 9. Background tasks
	go registry.Run(ctx)
	go sweeper.Run(ctx)
	go runRelay(ctx, relay)

	// 10. Initialize Handlers
	callHdlr := callHandler.NewHandler(callSvc)
	pushHdlr := pushHandler.NewHandler(pushSvc)
	gateway := wsHandler.NewGateway(registry, relay, callSvc, rooms,
		cfg.Server.AllowedOrigins, cfg.WebSocket.MaxConnections, appMetrics)

	// 11. Setup Gin Router
	if productionMode {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CORSMiddleware(cfg.Server.AllowedOrigins))
	router.Use(middleware.HTTPMetrics(appMetrics))
	router.Use(middleware.HealthCheck(cfg.Server.ServiceName))

	// Metrics endpoint (for Prometheus scraping)
	router.GET("/metrics", middleware.MetricsHandler(appMetrics))

	revocationChecker := middleware.NewRedisRevocationChecker(redisDB)
	auth := middleware.AuthMiddleware(jwtManager, revocationChecker)
	initiateLimiter := middleware.NewRateLimiter(redisDB.Client, "call_initiate", 10, time.Minute)

	v1 := router.Group("/v1")
	v1.Use(auth)
	{
		v1.GET("/calls/ws", gateway.ServeWS)

		// Request deadlines apply to REST only
		rest := v1.Group("", middleware.Timeout(constants.DefaultTimeout, appMetrics))

		calls := rest.Group("/calls")
		callHdlr.RegisterRoutes(calls, initiateLimiter.Middleware())

		pushRoutes := rest.Group("/push")
		pushRoutes.POST("/tokens", pushHdlr.RegisterToken)
		pushRoutes.DELETE("/tokens", pushHdlr.UnregisterToken)
	}

	// 12. Start server
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("Call service starting",
			zap.Int("port", cfg.Server.Port),
			zap.String("instance_id", instanceID))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down call service")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.GracefulShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", zap.Error(err))
	}
	rooms.Close(shutdownCtx)
	registry.Close(shutdownCtx)
}

// runRelay keeps the cross-instance relay subscribed, resubscribing after Redis outages
func runRelay(ctx context.Context, relay *signaling.Relay) {
	const retryDelay = 5 * time.Second

	for {
		err := relay.Run(ctx)
		if ctx.Err() != nil {
			return
		}
		logger.Warn("Relay subscription lost, retrying",
			zap.Duration("retry_in", retryDelay),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return
		case <-time.After(retryDelay):
		}
	}
}
