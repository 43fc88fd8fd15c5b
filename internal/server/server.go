// Package server contains the HTTP and WebSocket handlers for the Chit Chat API.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "chitchat/docs" // swagger docs
	"chitchat/internal/cache"
	"chitchat/internal/config"
	"chitchat/internal/database"
	"chitchat/internal/featureflags"
	"chitchat/internal/media"
	"chitchat/internal/middleware"
	"chitchat/internal/models"
	"chitchat/internal/notifications"
	"chitchat/internal/observability"
	"chitchat/internal/repository"
	"chitchat/internal/service"
	"chitchat/internal/token"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/swagger"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// ImageUploader stores post attachments.
type ImageUploader interface {
	Enabled() bool
	MaxBytes() int64
	Upload(ctx context.Context, in media.UploadInput) (*media.Upload, error)
}

// Server holds all dependencies and provides handlers.
type Server struct {
	config      *config.Config
	db          *gorm.DB
	redis       *redis.Client
	cache       *cache.Store
	shutdownCtx context.Context
	shutdownFn  context.CancelFunc

	tokens   *token.Service
	auth     *middleware.Auth
	limiter  *middleware.RateLimiter
	flags    *featureflags.Manager
	notifier *notifications.Notifier
	hub      *notifications.Hub
	uploader ImageUploader

	userRepo    repository.UserRepository
	postRepo    repository.PostRepository
	authService *service.AuthService
	userService *service.UserService
	postService *service.PostService
}

var (
	promOnce       sync.Once
	promMiddleware *fiberprometheus.FiberPrometheus
)

// metrics returns the process-wide Prometheus middleware. The collectors
// live on the default registry, which rejects a second registration.
func metrics() *fiberprometheus.FiberPrometheus {
	promOnce.Do(func() {
		promMiddleware = fiberprometheus.New("chitchat-api")
	})
	return promMiddleware
}

// NewServer connects the database, Redis and object storage described by cfg
// and builds the server on top of them.
func NewServer(cfg *config.Config) (*Server, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	rdb := cache.Connect(cfg.RedisURL)

	var objects media.ObjectStore
	if cfg.MediaEnabled() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		store, err := media.NewMinioStore(ctx, cfg)
		cancel()
		if err != nil {
			observability.Logger.Warn("media storage unavailable, uploads disabled", slog.String("error", err.Error()))
		} else {
			objects = store
		}
	}

	return NewServerWithDeps(cfg, db, rdb, objects)
}

// NewServerWithDeps builds a Server from already-initialized dependencies.
// rdb and objects may be nil.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, rdb *redis.Client, objects media.ObjectStore) (*Server, error) {
	ttl, err := cfg.TokenTTL()
	if err != nil {
		return nil, err
	}

	store := cache.NewStore(rdb)
	tokens := token.NewService(token.Options{
		Secret:   cfg.JWTSecret,
		TTL:      ttl,
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
	})

	s := &Server{
		config:   cfg,
		db:       db,
		redis:    rdb,
		cache:    store,
		tokens:   tokens,
		limiter:  middleware.NewRateLimiter(rdb, cfg.Env),
		flags:    featureflags.NewManager(cfg.FeatureFlags),
		notifier: notifications.NewNotifier(rdb),
		hub:      notifications.NewHub(),
		userRepo: repository.NewUserRepository(db, store),
		postRepo: repository.NewPostRepository(db, store),
		uploader: media.NewUploader(objects, cfg.MediaMaxUploadMB),
	}

	s.auth = middleware.NewAuth(tokens, s.userRepo, store)
	s.authService = service.NewAuthService(s.userRepo, tokens, store, 0)
	s.userService = service.NewUserService(s.userRepo, s.notifier)
	s.postService = service.NewPostService(s.postRepo, s.userRepo, s.notifier)

	s.shutdownCtx, s.shutdownFn = context.WithCancel(context.Background())
	if err := s.hub.StartWiring(s.shutdownCtx, s.notifier); err != nil {
		s.shutdownFn()
		return nil, fmt.Errorf("wire notification hub: %w", err)
	}

	return s, nil
}

// SetupMiddleware configures middleware for the Fiber app.
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(middleware.TracingMiddleware())
	app.Use(middleware.ContextMiddleware())
	app.Use(metrics().Middleware)
	app.Use(helmet.New())
	app.Use(middleware.StructuredLogger())

	// CORS runs before the limiter so throttled responses still carry CORS headers.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowMethods:     "GET,POST,PATCH,DELETE,OPTIONS",
		AllowCredentials: origins != "*",
		MaxAge:           86400,
	}))

	app.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: time.Minute,
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return models.RespondWithError(c, fiber.StatusTooManyRequests, &models.AppError{
				Code:    models.CodeRateLimited,
				Message: "Too many requests, please try again later",
			})
		},
	}))
}

// SetupRoutes configures all routes for the application.
func (s *Server) SetupRoutes(app *fiber.App) {
	requireAuth := s.auth.RequireAuth()
	optionalAuth := s.auth.OptionalAuth()

	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)
	metrics().RegisterAt(app, "/metrics")

	api := app.Group("/api")
	api.Get("/swagger/*", swagger.HandlerDefault)
	api.Get("/features", optionalAuth, s.GetFeatureFlags)

	auth := api.Group("/auth")
	auth.Post("/register", s.limiter.Limit("register", 5, 10*time.Minute), s.Register)
	auth.Post("/login", s.limiter.Limit("login", 10, 5*time.Minute), s.Login)
	auth.Get("/me", requireAuth, s.GetMe)
	auth.Patch("/me", requireAuth, s.UpdateMe)
	auth.Post("/logout", requireAuth, s.Logout)
	auth.Post("/refresh", requireAuth, s.Refresh)

	// Static segments are registered before /:postId so they win.
	posts := api.Group("/posts")
	posts.Post("/create", requireAuth, s.limiter.Limit("create_post", 30, time.Minute), s.CreatePost)
	posts.Get("/timeline", requireAuth, s.GetTimeline)
	posts.Get("/public", optionalAuth, s.GetPublicPosts)
	posts.Get("/search/:query", optionalAuth, s.limiter.Limit("search", 30, time.Minute), s.SearchPosts)
	posts.Get("/:postId", optionalAuth, s.GetPost)
	posts.Patch("/:postId", requireAuth, middleware.RequireFlag(s.flags, featureflags.PostEditing), s.UpdatePost)
	posts.Delete("/:postId", requireAuth, s.DeletePost)
	posts.Post("/:postId/like", requireAuth, s.ToggleLike)
	posts.Post("/:postId/repost", requireAuth, s.ToggleRepost)

	users := api.Group("/users")
	users.Get("/search/:query", optionalAuth, s.limiter.Limit("search", 30, time.Minute), s.SearchUsers)
	users.Get("/:username", optionalAuth, s.GetUser)
	users.Get("/:username/posts", optionalAuth, s.GetUserPosts)
	users.Post("/:username/follow", requireAuth, s.limiter.Limit("follow", 60, time.Minute), s.ToggleFollow)
	users.Get("/:username/followers", optionalAuth, s.GetFollowers)
	users.Get("/:username/following", optionalAuth, s.GetFollowing)

	api.Post("/media/images", requireAuth, middleware.RequireFlag(s.flags, featureflags.MediaUploads),
		s.limiter.Limit("upload", 20, time.Minute), s.UploadImage)

	api.Get("/ws", s.WebSocketUpgrade, s.WebSocketHandler())
}

// LivenessCheck handles liveness probe requests.
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck reports database and Redis health. Redis is optional, so a
// Redis outage only degrades the response.
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	if err := database.Ping(ctx, s.db); err != nil {
		dbStatus = "unhealthy"
	}

	redisStatus := "disabled"
	if s.redis != nil {
		redisStatus = "healthy"
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	}

	status := fiber.StatusOK
	overall := "healthy"
	switch {
	case dbStatus != "healthy":
		status = fiber.StatusServiceUnavailable
		overall = "unhealthy"
	case redisStatus == "unhealthy":
		overall = "degraded"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overall,
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
		},
		"time": time.Now(),
	})
}

// Shutdown stops the notification hub and releases Redis and the database.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.shutdownFn != nil {
		s.shutdownFn()
	}
	if err := s.hub.Shutdown(ctx); err != nil {
		observability.Logger.Warn("hub shutdown failed", slog.String("error", err.Error()))
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			observability.Logger.Warn("redis close failed", slog.String("error", err.Error()))
		}
	}
	return database.Close(s.db)
}
