package main

import (
	"context"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"chattrix-service/internal/config"
	"chattrix-service/internal/db"
	"chattrix-service/internal/handlers"
	"chattrix-service/internal/observability"
	"chattrix-service/internal/rabbitmq"
	"chattrix-service/internal/repositories"
	"chattrix-service/internal/rooms"
	"chattrix-service/internal/security"
	"chattrix-service/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.OTLPEndpoint, "chattrix-service", cfg.Environment)
	if err != nil {
		log.Fatalf("failed to set up tracing: %v", err)
	}
	defer shutdownTracing(context.Background())

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	defer publisher.Close()
	observability.SetPublisher(publisher)

	// One storage backend is chosen here, once; nothing downstream branches on it.
	var (
		roomRepo    repositories.RoomRepository
		sessionRepo repositories.SessionRepository
		messageRepo repositories.MessageRepository
	)
	if cfg.DatabaseDSN != "" {
		database, err := db.Connect(cfg.DatabaseDSN)
		if err != nil {
			log.Fatalf("failed to connect to db: %v", err)
		}
		roomRepo = repositories.NewRoomRepo(database)
		sessionRepo = repositories.NewSessionRepo(database)
		messageRepo = repositories.NewMessageRepo(database)
	} else {
		log.Println("no DB_DSN configured, using in-memory storage")
		mem := repositories.NewMemoryStore()
		roomRepo, sessionRepo, messageRepo = mem, mem, mem
	}

	hasher := security.NewBcryptHasher(cfg.BcryptCost)

	store := rooms.NewStore(roomRepo, sessionRepo, hasher, cfg.RoomTTL, cfg.DefaultMaxUsers)
	registry := rooms.NewRegistry(store, sessionRepo, cfg.SessionTTL)
	ledger := rooms.NewLedger(messageRepo, cfg.MessageTTL, cfg.RateLimitMax, cfg.RateLimitSpan)

	hub := ws.NewHub()
	panics := rooms.NewPanicController(ledger, hub)

	reaper := rooms.NewReaper(roomRepo, sessionRepo, messageRepo, cfg.ReapInterval, cfg.RoomGrace, registry.Forget)
	go reaper.Run(ctx)

	roomHandler := handlers.NewRoomHandler(store, registry)
	wsHandler := ws.NewHandler(hub, store, registry, ledger, panics, cfg.IdleTimeout)

	router := gin.Default()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("chattrix-service"))
	router.Use(observability.HTTPMetricsMiddleware())

	router.GET("/api/health", handlers.Health)
	router.POST("/api/rooms", roomHandler.CreateRoom)
	router.POST("/api/rooms/:room_id/join", roomHandler.JoinRoom)
	router.GET("/api/rooms/:room_id", roomHandler.RoomInfo)
	router.GET("/ws", wsHandler.Handle)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
