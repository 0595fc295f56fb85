package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/weiawesome/trailchat/internal/cache"
	"github.com/weiawesome/trailchat/internal/cassandra"
	"github.com/weiawesome/trailchat/internal/client"
	"github.com/weiawesome/trailchat/internal/config"
	"github.com/weiawesome/trailchat/internal/connection"
	"github.com/weiawesome/trailchat/internal/dispatcher"
	"github.com/weiawesome/trailchat/internal/domain"
	chatgrpc "github.com/weiawesome/trailchat/internal/grpc"
	"github.com/weiawesome/trailchat/internal/handler"
	"github.com/weiawesome/trailchat/internal/hub"
	"github.com/weiawesome/trailchat/internal/presence"
	"github.com/weiawesome/trailchat/internal/repository"
	"github.com/weiawesome/trailchat/internal/service"
	"github.com/weiawesome/trailchat/internal/store"
	pkgconfig "github.com/weiawesome/trailchat/pkg/config"
	"github.com/weiawesome/trailchat/pkg/database"
	pkglog "github.com/weiawesome/trailchat/pkg/log"
	"github.com/weiawesome/trailchat/pkg/middleware"
	"github.com/weiawesome/trailchat/pkg/pubsub"
)

func main() {
	if err := pkgconfig.LoadDotEnv(".env"); err != nil {
		l := pkglog.L()
		l.Warn().Err(err).Msg("ignoring .env file")
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		l := pkglog.L()
		l.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Initialize structured logger
	pkglog.Init(cfg.Log)
	logger := pkglog.L()

	logger.Info().
		Str("instance_id", cfg.Server.InstanceID).
		Str("store", cfg.Store.Driver).
		Str("pubsub", cfg.PubSub.Driver).
		Msg("starting trailchat")

	// Relational database holds rooms, and messages when store.driver is sql
	db, err := database.New(&cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer database.Close(db)

	models := []any{&domain.RoomModel{}}
	if cfg.Store.Driver == "sql" {
		models = append(models, &domain.MessageModel{})
	}
	if err := database.AutoMigrate(db, models...); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate database")
	}

	// Message store
	var (
		messages store.MessageStore
		sweeper  *store.Sweeper
	)
	switch cfg.Store.Driver {
	case "cassandra":
		cassClient, err := cassandra.NewClient(cfg.Cassandra, cfg.Store.Retention)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to cassandra")
		}
		defer cassClient.Close()
		messages = store.NewCassandraMessageStore(cassClient.Session(), store.WithRetention(cfg.Store.Retention))
	default:
		gormStore := store.NewGormMessageStore(db, store.WithRetention(cfg.Store.Retention))
		sweeper = store.NewSweeper(gormStore, cfg.Store.SweepInterval)
		messages = gormStore
	}

	// Redis backs presence and the room cache. Without it the instance runs alone.
	var redisClient *redis.Client
	rc := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := rc.Ping(pingCtx).Err(); err != nil {
		logger.Warn().Err(err).Str("address", cfg.Redis.Address).Msg("redis unavailable, running without shared presence and room cache")
		rc.Close()
	} else {
		redisClient = rc
		defer redisClient.Close()
	}
	pingCancel()

	// Broker for presence broadcasts and delivery intents
	bus, err := pubsub.NewPubSub(cfg.PubSub)
	if err != nil {
		logger.Warn().Err(err).Str("driver", cfg.PubSub.Driver).Msg("broker unavailable, falling back to in-process pubsub")
		bus = pubsub.NewMemoryPubSub()
	}
	defer bus.Close()

	// Room registry
	var roomCache cache.RoomCache
	if cfg.Cache.Enabled && redisClient != nil {
		roomCache = cache.NewRedisRoomCache(redisClient, cfg.Cache.Prefix)
	}
	rooms := service.NewRoomService(repository.NewGormRoomRepository(db), roomCache, service.RoomServiceConfig{
		MaxParticipants: cfg.Room.MaxParticipants,
		UpdateRetries:   cfg.Room.UpdateRetries,
		CacheTTL:        cfg.Cache.TTL,
	})

	// Presence tracker
	var presenceStore presence.Store
	if redisClient != nil {
		presenceStore = presence.NewRedisStore(redisClient, cfg.Redis.PresencePrefix)
	}
	tracker := presence.NewTracker(presenceStore, bus, presence.Config{
		InstanceID:        cfg.Server.InstanceID,
		TTL:               cfg.Redis.PresenceTTL,
		HeartbeatInterval: cfg.Redis.HeartbeatInterval,
	})

	// Delivery dispatcher
	h := hub.NewHub()
	disp := dispatcher.New(messages, rooms, tracker, h, bus, dispatcher.Config{
		InstanceID:   cfg.Server.InstanceID,
		Workers:      cfg.Dispatcher.Workers,
		QueueSize:    cfg.Dispatcher.QueueSize,
		PendingBatch: cfg.Store.PendingBatch,
	})
	tracker.OnOnline(disp.OnPresenceOnline)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	disp.Start(ctx)

	// Connection manager
	manager := connection.NewManager(h, tracker, rooms, disp)
	verifier := client.NewJWTVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer)

	// Background loops
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		tracker.Run(gctx)
		return nil
	})
	g.Go(func() error {
		disp.Run(gctx, bus)
		return nil
	})
	if sweeper != nil {
		sweeper.Start(gctx)
	}

	// WebSocket server (gorilla/mux)
	wsHandler := handler.NewWSHandler(manager, verifier, cfg.WebSocket)
	wsRouter := mux.NewRouter()
	wsHandler.RegisterRoutes(wsRouter)

	wsAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.WSPort)
	wsServer := &http.Server{
		Addr:        wsAddr,
		Handler:     pkglog.HTTPMiddleware(logger)(wsRouter),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	// HTTP API server (gin)
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(pkglog.GinMiddleware(logger))

	apiHandler := handler.NewHandler(disp, messages, rooms, tracker, middleware.NewAuthMiddleware(verifier))
	apiHandler.RegisterRoutes(engine)

	apiAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.APIPort)
	apiServer := &http.Server{
		Addr:         apiAddr,
		Handler:      engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// gRPC health server
	grpcAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.GRPCPort)
	grpcServer, err := chatgrpc.StartGRPCServer(grpcAddr, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to start gRPC server")
	}

	go func() {
		logger.Info().Str("addr", wsAddr).Msg("websocket server listening")
		if err := wsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("websocket server error")
		}
	}()

	go func() {
		logger.Info().Str("addr", apiAddr).Msg("http api server listening")
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http api server error")
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down trailchat...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := wsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("websocket server forced to shutdown")
	}
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http api server forced to shutdown")
	}
	grpcServer.Stop()

	cancel()
	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("background loop failed")
	}
	if sweeper != nil {
		sweeper.Stop()
	}
	disp.Stop()
	h.Stop()

	logger.Info().Msg("trailchat stopped")
}
