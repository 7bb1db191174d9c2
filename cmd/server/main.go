package main

import (
	"context"
	"flag"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"

	"peerchat/internal/auth"
	"peerchat/internal/changefeed"
	"peerchat/internal/config"
	"peerchat/internal/conversation"
	"peerchat/internal/db"
	"peerchat/internal/message"
	myMiddleware "peerchat/internal/middleware"
	"peerchat/internal/profile"
	"peerchat/internal/typing"
	"peerchat/internal/ws"
)

func main() {
	// 1. Config
	flag.Parse()
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}
	cfg := config.Load()
	if cfg.DatabaseDSN == "" {
		log.Fatal("DB_DSN is not set")
	}
	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET is not set")
	}

	// 2. Platform layer: Postgres + Redis
	database, err := db.NewDatabase(cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	log.Println("connected to PostgreSQL")

	if err := database.AutoMigrate(); err != nil {
		log.Fatalf("migration failed: %v", err)
	}
	log.Println("database schema initialized")

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if _, err := redisClient.Ping(context.Background()).Result(); err != nil {
		log.Fatalf("failed to connect to Redis: %v", err)
	}
	log.Println("connected to Redis")

	feed := changefeed.New(redisClient)

	// 3. Features
	profileRepo := profile.NewRepository(database.Conn)
	presence := profile.NewPresence(profileRepo, feed)
	profileHandler := profile.NewHandler(profileRepo)

	authService := auth.NewService(profileRepo, cfg.JWTSecret)
	authHandler := auth.NewHandler(authService)

	conversationRepo := conversation.NewRepository(database.Conn, feed)
	conversationHandler := conversation.NewHandler(conversationRepo)

	messageRepo := message.NewRepository(database.Conn, feed)
	typingCoord := typing.NewCoordinator(database.Conn, feed)

	hub := ws.NewHub(feed, conversationRepo, messageRepo, typingCoord, presence)
	go hub.Run()
	wsHandler := ws.NewHandler(hub)

	messageHandler := message.NewHandler(messageRepo, conversationRepo, hub)

	authMiddleware := myMiddleware.NewAuthMiddleware(authService)

	// 4. Routes
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	}).Handler)

	// Public routes
	r.Post("/register", authHandler.Register)
	r.Post("/login", authHandler.Login)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.Handle)

		r.Get("/api/users/search", profileHandler.Search)
		r.Get("/api/users/find", profileHandler.Find)

		r.Post("/api/conversations", conversationHandler.Start)
		r.Get("/api/conversations", conversationHandler.List)

		r.Get("/api/messages", messageHandler.History)
		r.Post("/api/messages", messageHandler.Send)
		r.Post("/api/messages/{id}/read", messageHandler.MarkRead)

		r.Get("/ws", wsHandler.ServeWs)
	})

	log.Printf("server starting on %s", cfg.Addr)
	if err := http.ListenAndServe(cfg.Addr, r); err != nil {
		log.Fatal(err)
	}
}
