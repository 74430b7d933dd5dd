// Package server contains HTTP and WebSocket handlers for the application's API endpoints.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "academy/docs" // swagger docs
	"academy/internal/access"
	"academy/internal/cache"
	"academy/internal/config"
	"academy/internal/database"
	"academy/internal/featureflags"
	"academy/internal/middleware"
	"academy/internal/models"
	"academy/internal/notifications"
	"academy/internal/push"
	"academy/internal/repository"
	"academy/internal/service"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/swagger"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	shutdownCtx    context.Context
	shutdownFn     context.CancelFunc

	tokens       *middleware.TokenManager
	policy       *access.Policy
	featureFlags *featureflags.Manager

	userRepo    repository.UserRepository
	chatRepo    repository.ChatRepository
	contentRepo repository.ContentRepository

	notifier    *notifications.Notifier
	chatHub     *notifications.ChatHub
	connections *notifications.ConnectionManager
	pusher      notifications.Pusher
	pushClient  *asynq.Client

	userService      *service.UserService
	chatService      *service.ChatService
	contentService   *service.ContentService
	assistantService *service.AssistantService
}

// NewServer connects to the database and Redis and builds a server around them.
func NewServer(cfg *config.Config) (*Server, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	// Redis is optional; without it fan-out stays in-process.
	redisClient := cache.InitRedis(cfg.RedisURL)

	return NewServerWithDeps(cfg, db, redisClient)
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// Use this in tests or when a bootstrap layer establishes DB/Redis and optionally
// performs explicit seeding.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client) (*Server, error) {
	policy, err := loadPolicy(cfg)
	if err != nil {
		return nil, err
	}

	s := &Server{
		config:         cfg,
		db:             db,
		redis:          redisClient,
		promMiddleware: middleware.InitMetrics("academy-api"),
		tokens:         middleware.NewTokenManager(cfg),
		policy:         policy,
		featureFlags:   featureflags.NewManager(cfg.FeatureFlags),
		userRepo:       repository.NewUserRepository(db),
		chatRepo:       repository.NewChatRepository(db),
		contentRepo:    repository.NewContentRepository(db),
	}

	s.userService = service.NewUserService(s.userRepo)
	s.chatService = service.NewChatService(s.chatRepo, s.userRepo)
	s.contentService = service.NewContentService(s.contentRepo, policy)
	s.assistantService = service.NewAssistantService(s.userRepo, s.contentRepo, policy, s.featureFlags)

	s.notifier = notifications.NewNotifier(redisClient)
	s.chatHub = notifications.NewChatHub(cfg.ChatMaxConnsPerUser, s.notifier)
	s.connections = notifications.NewConnectionManager(redisClient)
	s.pusher, s.pushClient, err = newPusher(cfg, redisClient, s.featureFlags)
	if err != nil {
		return nil, err
	}

	return s, nil
}

func loadPolicy(cfg *config.Config) (*access.Policy, error) {
	if cfg.AccessPolicyPath == "" {
		return access.DefaultPolicy(), nil
	}
	policy, err := access.LoadPolicy(cfg.AccessPolicyPath)
	if err != nil {
		return nil, fmt.Errorf("access policy: %w", err)
	}
	return policy, nil
}

func newPusher(cfg *config.Config, rdb *redis.Client, flags *featureflags.Manager) (notifications.Pusher, *asynq.Client, error) {
	if cfg.PushMode != "queue" {
		return notifications.LogPusher{}, nil, nil
	}
	if rdb == nil {
		middleware.Logger.Warn("PUSH_MODE=queue without Redis, falling back to log pusher")
		return notifications.LogPusher{}, nil, nil
	}
	opt, err := push.RedisOpt(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("push queue: %w", err)
	}
	client := asynq.NewClient(opt)
	return notifications.NewQueuePusher(client, cfg.PushQueue, flags), client, nil
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(middleware.ContextMiddleware())

	if s.config.TracingEnabled {
		app.Use(middleware.TracingMiddleware())
	}
	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	app.Use(helmet.New())
	app.Use(middleware.StructuredLogger())

	// CORS runs before the limiter so rejected browser requests still carry CORS headers.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000,http://127.0.0.1:5173"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version",
		AllowCredentials: origins != "*",
		MaxAge:           86400,
	}))

	app.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return models.RespondWithError(c, fiber.StatusTooManyRequests,
				models.NewRateLimitedError("Too many requests, please try again later."))
		},
	}))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	api := app.Group("/api")

	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)
	app.Get("/health", s.ReadinessCheck)

	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}
	api.Get("/metrics/dashboard", monitor.New(monitor.Config{
		Title: "Academy Metrics Dashboard",
	}))
	api.Get("/swagger/*", swagger.HandlerDefault)

	// Auth
	auth := api.Group("/auth")
	auth.Post("/register", middleware.RateLimit(s.redis, 3, 10*time.Minute, "register"), s.Register)
	auth.Post("/login", middleware.RateLimit(s.redis, 10, 5*time.Minute, "login"), s.Login)
	auth.Get("/me", s.AuthRequired(), s.Me)
	auth.Post("/logout", s.AuthRequired(), s.Logout)

	api.Post("/ws/ticket", s.AuthRequired(), s.IssueWSTicket)

	// Catalogue: identity is optional, denied reads are redacted.
	protocols := api.Group("/protocols")
	protocols.Get("/", s.ListProtocols)
	protocols.Get("/:slug", s.GetProtocol)

	quizzes := api.Group("/quizzes")
	quizzes.Get("/", s.ListQuizzes)
	quizzes.Post("/:id/submit", s.AuthRequired(), s.SubmitQuiz)
	quizzes.Get("/:id", s.GetQuiz)

	resources := api.Group("/resources")
	resources.Get("/", s.ListResources)
	resources.Get("/:slug", s.GetResource)

	// Registered ahead of the protected group so the ticket is consumed once.
	ws := api.Group("/ws", wsUpgradeRequired, s.AuthRequired(), s.ChatTierRequired())
	ws.Get("/chat", s.WebSocketChatHandler())

	protected := api.Group("", s.AuthRequired())

	assistant := protected.Group("/assistant")
	assistant.Get("/quota", s.GetAssistantQuota)
	assistant.Post("/ask", middleware.RateLimit(s.redis, 20, time.Minute, "assistant"), s.AskAssistant)

	// Chat
	conversations := protected.Group("/conversations", s.ChatTierRequired())
	conversations.Get("/", s.GetConversations)
	conversations.Post("/private", s.CreatePrivateConversation)
	conversations.Post("/group", s.CreateGroupConversation)
	// Define specific /:id/:resource routes BEFORE generic /:id route
	conversations.Get("/:id/messages", s.GetMessages)
	conversations.Post("/:id/messages", middleware.RateLimit(s.redis, 30, time.Minute, "send_chat"), s.SendMessage)
	conversations.Post("/:id/read", s.MarkConversationRead)
	conversations.Delete("/:id", s.DeleteConversation)
	conversations.Get("/:id", s.GetConversation)

	protected.Get("/chat/online", s.ChatTierRequired(), s.GetOnlineUsers)

	// Admin
	admin := protected.Group("/admin", s.AdminRequired())
	admin.Get("/users", s.ListUsers)
	admin.Put("/users/:id/access", s.UpdateUserAccess)
	admin.Get("/feature-flags", s.GetFeatureFlags)
}

// App builds the Fiber application with middleware and routes.
func (s *Server) App() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "Massage Academy API",
		ErrorHandler: s.errorHandler,
	})
	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	return app
}

func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(models.ErrorResponse{Error: fe.Message})
	}
	middleware.Logger.ErrorContext(c.UserContext(), "unhandled error", slog.String("error", err.Error()))
	return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewInternalError(err))
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck handles readiness probe requests
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	if err := database.Ping(ctx, s.db); err != nil {
		dbStatus = "unhealthy"
	}

	// Redis carries fan-out and tickets but the API works without it.
	redisStatus := "disabled"
	if s.redis != nil {
		redisStatus = "healthy"
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	}

	status := fiber.StatusOK
	overallStatus := "healthy"
	if dbStatus != "healthy" || redisStatus == "unhealthy" {
		status = fiber.StatusServiceUnavailable
		overallStatus = "unhealthy"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overallStatus,
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
		},
		"connections": s.chatHub.ConnectionCount(),
		"time":        time.Now(),
	})
}

// StartRealtime subscribes the chat hub to the Redis relay. It must run
// before the first chat event is published when Redis is configured.
func (s *Server) StartRealtime(ctx context.Context) error {
	if err := s.chatHub.StartWiring(ctx); err != nil {
		return fmt.Errorf("chat relay: %w", err)
	}
	return nil
}

// Start starts the server
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.shutdownCtx = ctx
	s.shutdownFn = cancel

	s.app = s.App()

	if err := s.StartRealtime(ctx); err != nil {
		return err
	}

	middleware.Logger.Info("server starting", slog.String("port", s.config.Port))
	return s.app.Listen(":" + s.config.Port)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.shutdownFn != nil {
		s.shutdownFn()
	}

	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			middleware.Logger.Error("error shutting down HTTP server", slog.String("error", err.Error()))
		}
	}

	if err := s.chatHub.Shutdown(ctx); err != nil {
		middleware.Logger.Error("error shutting down chat hub", slog.String("error", err.Error()))
	}

	if s.pushClient != nil {
		if err := s.pushClient.Close(); err != nil {
			middleware.Logger.Error("error closing push queue client", slog.String("error", err.Error()))
		}
	}

	if sqlDB, err := s.db.DB(); err == nil {
		if cerr := sqlDB.Close(); cerr != nil {
			middleware.Logger.Error("error closing sql DB", slog.String("error", cerr.Error()))
		}
	}

	if s.redis != nil {
		if rerr := s.redis.Close(); rerr != nil {
			middleware.Logger.Error("error closing redis", slog.String("error", rerr.Error()))
		}
	}

	middleware.Logger.Info("server shutdown complete")
	return nil
}

// baseContext is the parent of long-lived per-connection contexts.
func (s *Server) baseContext() context.Context {
	if s.shutdownCtx != nil {
		return s.shutdownCtx
	}
	return context.Background()
}
