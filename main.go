package main

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"messaging-service/internal/auth"
	"messaging-service/internal/config"
	"messaging-service/internal/db"
	"messaging-service/internal/delivery"
	"messaging-service/internal/handlers"
	"messaging-service/internal/middleware"
	"messaging-service/internal/observability"
	"messaging-service/internal/rabbitmq"
	"messaging-service/internal/repositories"
	"messaging-service/internal/telemetry"
	"messaging-service/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("failed to load config: %v", err)
	}

	shutdownTracing, err := observability.SetupTracing(context.Background(), cfg.OTLPEndpoint, cfg.ServiceName, cfg.Environment)
	if err != nil {
		logrus.Fatalf("failed to set up tracing: %v", err)
	}
	defer shutdownTracing(context.Background())

	database, err := db.Connect(cfg.DBDSN)
	if err != nil {
		logrus.Fatalf("failed to connect to db: %v", err)
	}

	var tokenCache *redis.Client
	if cfg.RedisAddr != "" {
		tokenCache = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		logrus.WithField("addr", cfg.RedisAddr).Info("token cache enabled")
	}

	if cfg.AMQPURL != "" {
		publisher, err := observability.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			logrus.WithError(err).Warn("event publisher disabled")
		} else {
			observability.SetPublisher(publisher)
			defer publisher.Close()
		}
	}

	auditPublisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AuditExchange)
	defer auditPublisher.Close()
	logrus.WithField("mode", rabbitmq.PublisherMode(auditPublisher)).Info("audit publisher ready")
	emitter := telemetry.NewAuditEmitter(auditPublisher, "audit.messaging", cfg.ServiceName, cfg.Environment)

	userRepo := repositories.NewUserRepo(database)
	tokenRepo := repositories.NewTokenRepo(database)
	messageRepo := repositories.NewMessageRepo(database)

	resolver := auth.NewStoreResolver(tokenRepo, tokenCache, cfg.TokenCacheTTLDuration())

	hub := ws.NewHub()
	engine := delivery.NewEngine(messageRepo, hub)
	chatWS := ws.NewChatWebSocketHandler(hub, resolver, engine)

	authHandler := handlers.NewAuthHandler(userRepo, tokenRepo, emitter)
	messageHandler := handlers.NewMessageHandler(messageRepo, cfg.PhotoDir, cfg.PhotoBaseURL)
	userHandler := handlers.NewUserHandler(userRepo)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(observability.HTTPMetricsMiddleware())

	authMiddleware := middleware.AuthMiddleware(resolver)

	router.POST("/api/register", authHandler.Register)
	router.POST("/api/login", authHandler.Login)

	router.GET("/api/messages", authMiddleware, messageHandler.ListMessages)
	router.POST("/api/messages/read", authMiddleware, messageHandler.MarkRead)
	router.POST("/api/upload-photo", authMiddleware, messageHandler.UploadPhoto)
	router.GET("/api/users", authMiddleware, userHandler.ListUsers)

	router.GET("/ws/chat", chatWS.Handle)

	router.Static(cfg.PhotoBaseURL, cfg.PhotoDir)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	handlers.RegisterDebugRoutes(router, emitter, cfg.DebugRoutes)

	logrus.WithField("port", cfg.Port).Info("messaging service listening")
	if err := router.Run(":" + cfg.Port); err != nil {
		logrus.Fatalf("server error: %v", err)
	}
}
