package main

import (
	"context"
	"log"
	"os"

	fbapp "firebase.google.com/go/v4"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"google.golang.org/api/option"

	"lostpaws/internal/adapter/api"
	"lostpaws/internal/adapter/api/handler"
	apimiddleware "lostpaws/internal/adapter/api/middleware"
	"lostpaws/internal/adapter/api/router"
	"lostpaws/internal/adapter/repository"
	"lostpaws/internal/infrastructure/identity"
	"lostpaws/internal/infrastructure/notify"
	"lostpaws/internal/infrastructure/postgres"
	"lostpaws/internal/infrastructure/ratelimit"
	"lostpaws/internal/usecase"
	"lostpaws/pkg/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()

	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}
	database, err := postgres.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := database.AutoMigrate(); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	var opts []option.ClientOption
	if path := os.Getenv("FIREBASE_SERVICE_ACCOUNT_PATH"); path != "" {
		opts = append(opts, option.WithCredentialsFile(path))
	}
	firebaseApp, err := fbapp.NewApp(ctx, &fbapp.Config{ProjectID: cfg.FirebaseProject}, opts...)
	if err != nil {
		log.Fatalf("Failed to initialize Firebase: %v", err)
	}
	authClient, err := firebaseApp.Auth(ctx)
	if err != nil {
		log.Fatalf("Failed to initialize Firebase Auth: %v", err)
	}

	chatRepo := repository.NewPostgresChatRepository(database.Conn)
	petRepo := repository.NewPostgresPetRepository(database.Conn)
	resolver := identity.NewResolver(authClient)

	bus := notify.NewBus()
	var notifier notify.Publisher = bus
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if _, err := redisClient.Ping(ctx).Result(); err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		bridge := notify.NewRedisBridge(bus, redisClient)
		go bridge.Run(ctx)
		notifier = bridge
	}

	unreadTracker := usecase.NewUnreadTracker(chatRepo, notifier, bus)
	chatRegistry := usecase.NewChatRegistry(chatRepo, petRepo, resolver, cfg.ChatActiveLimit)
	chatLifecycle := usecase.NewChatLifecycle(chatRepo, unreadTracker, notifier)
	chatMessages := usecase.NewChatMessages(chatRepo, unreadTracker, notifier)

	e := echo.New()
	e.Use(echomiddleware.Logger())
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())
	e.Validator = api.NewValidator()

	limiter := ratelimit.NewLimiter()
	go limiter.Run(ctx)

	authMiddleware := apimiddleware.NewAuthMiddleware(authClient, cfg.IsAdmin)
	rateLimitMiddleware := apimiddleware.NewRateLimitMiddleware(limiter)
	chatHandler := handler.NewChatHandler(chatRegistry, chatLifecycle, chatMessages)
	wsHandler := handler.NewWebSocketHandler(bus, authMiddleware)

	router.Setup(e, chatHandler, wsHandler, authMiddleware, rateLimitMiddleware)

	log.Printf("Starting server on port %s...", cfg.ServerPort)
	e.Logger.Fatal(e.Start(":" + cfg.ServerPort))
}
