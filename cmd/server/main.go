package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"panicdesk/internal/config"
	handlers "panicdesk/internal/handlers/shared"
	"panicdesk/internal/middleware"
	"panicdesk/internal/repositories/interfaces"
	"panicdesk/internal/repositories/memory"
	mongorepo "panicdesk/internal/repositories/mongodb"
	redisrepo "panicdesk/internal/repositories/redis"
	"panicdesk/internal/services"
	"panicdesk/pkg/cache"
	"panicdesk/pkg/database"
	"panicdesk/pkg/logger"
	"panicdesk/pkg/maps"
	"panicdesk/pkg/push"
	"panicdesk/pkg/snapshot"
	"panicdesk/pkg/websocket"
	"panicdesk/routes"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLogger, err := logger.NewLogger(&logger.Config{
		Level:      logger.LogLevel(cfg.App.LogLevel),
		Format:     cfg.App.LogFormat,
		Output:     cfg.App.LogOutput,
		TimeFormat: time.RFC3339,
		AppName:    cfg.App.Name,
		Version:    cfg.App.Version,
	})
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	if !cfg.App.Debug || cfg.App.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Pending tray storage
	repo, closeStore := newPendingAlertRepository(cfg, appLogger)
	defer closeStore()

	alerts := services.NewAlertLifecycleService(ctx, repo, appLogger, services.AlertLifecycleOptions{
		PersistTimeout: cfg.Console.PersistTimeout,
	})
	officers := services.NewOfficerLocationService(appLogger)
	proximity := services.NewProximityService(officers, newMapsProvider(cfg, appLogger), cfg.Maps.TravelMode, appLogger)

	// Console UI hub
	hub := websocket.NewHub(appLogger)
	broadcaster := services.NewConsoleBroadcaster(hub, appLogger)
	alerts.AddListener(broadcaster)
	officers.AddListener(broadcaster)

	// Backend event channel
	channel := websocket.NewChannel(websocket.ChannelOptions{
		URL:               cfg.Channel.URL,
		ReadBufferSize:    cfg.Channel.ReadBufferSize,
		WriteBufferSize:   cfg.Channel.WriteBufferSize,
		HandshakeTimeout:  cfg.Channel.HandshakeTimeout,
		PingInterval:      cfg.Channel.PingInterval,
		PongTimeout:       cfg.Channel.PongTimeout,
		WriteTimeout:      cfg.Channel.WriteTimeout,
		MaxMessageSize:    cfg.Channel.MaxMessageSize,
		EnableCompression: cfg.Channel.EnableCompression,
	}, appLogger)
	channel.AddConnectivityListener(broadcaster)

	snapshots := snapshot.NewClient(cfg.Console.SnapshotBaseURL, cfg.Console.SnapshotTimeout, appLogger)
	session := services.NewConsoleSession(channel, snapshots, alerts, officers, services.SessionOptions{
		ConnectTimeout:     cfg.Channel.HandshakeTimeout,
		SnapshotTimeout:    cfg.Console.SnapshotTimeout,
		WatermarkRetention: cfg.Console.WatermarkRetention,
	}, appLogger)

	// Prompt surfaces
	sinks := []services.PromptSink{broadcaster}
	if pushSink := newPushPromptSink(ctx, cfg, session, appLogger); pushSink != nil {
		go pushSink.Run(ctx)
		sinks = append(sinks, pushSink)
	}
	notifications := services.NewNotificationService(alerts, sinks, services.NotificationOptions{
		Lifetime:     cfg.Console.PromptLifetime,
		DeepLinkBase: cfg.Console.DeepLinkBase,
	}, appLogger)

	// Initialize handlers
	consoleHandler := handlers.NewConsoleHandler(session, alerts, officers, proximity, notifications, handlers.ProximityConfig{
		DefaultRadiusKM: cfg.Console.DefaultRadiusKM,
		MaxRadiusKM:     cfg.Console.MaxRadiusKM,
	}, appLogger)
	hub.SetCommandHandler(consoleHandler)
	hub.SetWelcomeProvider(consoleHandler.Welcome)
	wsHandler := websocket.NewHandler(hub, websocket.HandlerConfig{
		ReadBufferSize:    cfg.WebSocket.ReadBufferSize,
		WriteBufferSize:   cfg.WebSocket.WriteBufferSize,
		MaxConnections:    cfg.WebSocket.MaxConnections,
		EnableCompression: cfg.WebSocket.EnableCompression,
		AllowedOrigins:    cfg.WebSocket.AllowedOrigins,
	})

	go hub.Run(ctx)
	go session.Run(ctx)

	// Initialize Gin router
	router := gin.New()
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.RecoveryMiddleware(appLogger))
	router.Use(middleware.LoggingMiddleware(appLogger))
	router.Use(middleware.CORSMiddleware(cfg.Security.CORSAllowedOrigins))
	if err := router.SetTrustedProxies(cfg.Security.TrustedProxies); err != nil {
		appLogger.WithError(err).Warn("Invalid trusted proxies, trusting none")
		_ = router.SetTrustedProxies(nil)
	}

	v1 := router.Group("/api/v1")
	routes.SetupConsoleRoutes(v1, consoleHandler, cfg.Security.JWTSecret)
	routes.SetupWebSocketRoutes(router, cfg.WebSocket.Path, wsHandler, cfg.Security.JWTSecret)
	routes.SetupHealthRoutes(router, consoleHandler, hub)

	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.App.Host, cfg.App.Port),
		Handler: router,
	}

	go func() {
		appLogger.WithField("addr", server.Addr).Info("Starting console server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.WithError(err).Fatal("Console server failed")
		}
	}()

	<-ctx.Done()
	appLogger.Info("Shutting down console server")

	session.Close()
	notifications.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Error("Console server shutdown failed")
	}
}

// newPendingAlertRepository opens the configured store. An unreachable store
// falls back to memory so the console still runs, without surviving restarts.
func newPendingAlertRepository(cfg *config.Config, log *logger.Logger) (interfaces.PendingAlertRepository, func()) {
	switch cfg.Console.PendingStore {
	case config.PendingStoreRedis:
		redisCache, err := cache.NewRedisCache(&cache.RedisConfig{
			Host:         cfg.Redis.Host,
			Port:         cfg.Redis.Port,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		if err != nil {
			log.WithError(err).Warn("Redis unavailable, pending alerts kept in memory only")
			break
		}
		return redisrepo.NewPendingAlertRepository(redisCache, cfg.Console.PendingNamespace), func() {
			if err := redisCache.Close(); err != nil {
				log.WithError(err).Warn("Failed to close redis")
			}
		}

	case config.PendingStoreMongoDB:
		db, err := database.NewMongoDB(&database.DatabaseConfig{
			URI:            cfg.Database.URI,
			Database:       cfg.Database.Database,
			MaxPoolSize:    cfg.Database.MaxPoolSize,
			MinPoolSize:    cfg.Database.MinPoolSize,
			ConnectTimeout: cfg.Database.ConnectTimeout,
			SocketTimeout:  cfg.Database.SocketTimeout,
		})
		if err != nil {
			log.WithError(err).Warn("MongoDB unavailable, pending alerts kept in memory only")
			break
		}
		return mongorepo.NewPendingAlertRepository(db.Database, cfg.Database.Collection, cfg.Console.PendingNamespace), func() {
			if err := db.Close(); err != nil {
				log.WithError(err).Warn("Failed to close mongodb")
			}
		}
	}

	return memory.NewPendingAlertRepository(), func() {}
}

func newMapsProvider(cfg *config.Config, log *logger.Logger) maps.MapsProvider {
	if !cfg.Maps.Enabled() {
		return nil
	}
	if cfg.Maps.Provider == config.MapsProviderMapbox {
		return maps.NewMapboxProvider(cfg.Maps.Mapbox.AccessToken, cfg.Maps.Mapbox.BaseURL)
	}
	provider, err := maps.NewGoogleMapsProvider(cfg.Maps.GoogleMaps.APIKey)
	if err != nil {
		log.WithError(err).Warn("Google Maps unavailable, ranking by straight-line distance only")
		return nil
	}
	return provider
}

func newPushPromptSink(ctx context.Context, cfg *config.Config, session *services.ConsoleSession, log *logger.Logger) *services.PushPromptSink {
	if !cfg.Push.Enabled() {
		return nil
	}
	provider, err := push.NewFCMProvider(ctx, cfg.Push.FCM.ProjectID, cfg.Push.FCM.Credentials)
	if err != nil {
		log.WithError(err).Warn("FCM unavailable, prompts stay on the console only")
		return nil
	}

	topic := func() string {
		districtID := session.DistrictID()
		if districtID == "" {
			return ""
		}
		return cfg.Push.FCM.TopicPrefix + districtID
	}
	return services.NewPushPromptSink(provider, topic, cfg.Console.PromptLifetime, log)
}
