// Package server contains HTTP and WebSocket handlers for the application's API endpoints.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "folio/docs" // swagger docs
	"folio/internal/auth"
	"folio/internal/bootstrap"
	"folio/internal/cache"
	"folio/internal/config"
	"folio/internal/database"
	"folio/internal/events"
	"folio/internal/featureflags"
	"folio/internal/middleware"
	"folio/internal/models"
	"folio/internal/notifications"
	"folio/internal/repository"
	"folio/internal/service"
	"folio/internal/storage"
	"folio/internal/themes"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/swagger"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const defaultAllowedOrigins = "http://localhost:5173,http://localhost:3000,http://127.0.0.1:5173"

// wireableHub is implemented by every WebSocket hub that can be wired to
// Redis pub/sub and gracefully shut down.
type wireableHub interface {
	Name() string
	StartWiring(ctx context.Context, n *notifications.Notifier) error
	Shutdown(ctx context.Context) error
}

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	store          storage.ObjectStore
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	shutdownCtx    context.Context
	shutdownFn     context.CancelFunc
	tokens         *auth.Manager
	notifier       *notifications.Notifier
	hub            *notifications.Hub
	hubs           []wireableHub
	featureFlags   *featureflags.Manager
	catalog        *themes.Catalog

	authService      *service.AuthService
	oauthService     *service.OAuthService
	usernameService  *service.UsernameService
	publishService   *service.PublishService
	pageService      *service.PageService
	analyticsService *service.AnalyticsService
	avatarService    *service.AvatarService
	accountService   *service.AccountService
	waitlistService  *service.WaitlistService
	adminService     *service.AdminService
}

// NewServer initializes the runtime and object storage, then builds the
// server on top of them.
func NewServer(cfg *config.Config) (*Server, error) {
	db, rdb, err := bootstrap.InitRuntime(context.Background(), cfg, bootstrap.Options{})
	if err != nil {
		return nil, err
	}

	store, err := storage.New(context.Background(), cfg)
	if err != nil {
		return nil, fmt.Errorf("object storage init failed: %w", err)
	}

	return NewServerWithDeps(cfg, db, rdb, store)
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// redisClient and store may be nil; the features that need them degrade.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client, store storage.ObjectStore) (*Server, error) {
	if db == nil {
		return nil, errors.New("database is required")
	}

	pageCache := cache.NewStore(redisClient)
	users := repository.NewUserRepository(db, pageCache)
	pages := repository.NewPageRepository(db)
	views := repository.NewPageViewRepository(db)
	waitlist := repository.NewWaitlistRepository(db)

	s := &Server{
		config:         cfg,
		db:             db,
		redis:          redisClient,
		store:          store,
		promMiddleware: middleware.InitMetrics("folio-api"),
		tokens:         auth.NewManager(cfg.JWTSecret, time.Duration(cfg.JWTTTLHours)*time.Hour, redisClient),
		featureFlags:   featureflags.NewManager(cfg.FeatureFlags),
		catalog:        themes.Builtin(),
	}

	var emitter events.Emitter
	var publisher service.ViewPublisher
	if redisClient != nil {
		emitter = events.NewRedisEmitter(redisClient)
		s.notifier = notifications.NewNotifier(redisClient)
		s.hub = notifications.NewHub()
		s.hubs = []wireableHub{s.hub}
		publisher = s.notifier
	}
	dispatcher := events.NewDispatcher(emitter)

	s.usernameService = service.NewUsernameService(users, dispatcher)
	s.authService = service.NewAuthService(users, s.usernameService, s.tokens, dispatcher, cfg.AdminEmailList())
	s.oauthService = service.NewOAuthService(cfg, s.authService, redisClient, s.featureFlags)
	s.publishService = service.NewPublishService(pages, users, s.catalog, dispatcher, pageCache)
	s.pageService = service.NewPageService(pages, users, s.catalog, dispatcher, pageCache)
	s.analyticsService = service.NewAnalyticsService(pages, views, publisher)
	s.avatarService = service.NewAvatarService(users, store, dispatcher, cfg.AvatarMaxBytes)
	s.accountService = service.NewAccountService(users, pages, store, s.tokens, dispatcher, pageCache)
	s.waitlistService = service.NewWaitlistService(waitlist, dispatcher)
	s.adminService = service.NewAdminService(users, pages, views, waitlist, s.featureFlags)

	return s, nil
}

// NewApp builds the Fiber app with middleware and routes attached.
func (s *Server) NewApp() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:   "Folio API",
		BodyLimit: int(s.avatarService.MaxBytes()) + 1<<20,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			var fe *fiber.Error
			if errors.As(err, &fe) {
				return models.RespondWithError(c, fe.Code, err)
			}
			middleware.Logger.ErrorContext(c.UserContext(), "unhandled error", slog.String("error", err.Error()))
			return models.RespondWithError(c, fiber.StatusInternalServerError,
				models.NewInternalError(err))
		},
	})

	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	return app
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(middleware.TracingMiddleware())

	// Context Middleware to propagate Request ID and User ID
	app.Use(middleware.ContextMiddleware())

	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	// Public pages embed avatars served from /uploads on another origin.
	app.Use(helmet.New(helmet.Config{
		CrossOriginResourcePolicy: "cross-origin",
	}))

	app.Use(middleware.StructuredLogger())
	app.Use(compress.New())

	// CORS middleware should run before middlewares that can short-circuit (e.g. limiter)
	// so browser clients still receive CORS headers on error responses.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = defaultAllowedOrigins
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     "GET,POST,PATCH,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Global rate limiting (100 requests per minute per IP)
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
			return c.Status(fiber.StatusTooManyRequests).JSON(models.ErrorResponse{
				Error: "Too many requests, please try again later.",
				Code:  "RATE_LIMITED",
			})
		},
	}))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)
	app.Get("/health", s.ReadinessCheck)

	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}

	if local, ok := s.store.(*storage.LocalStore); ok {
		app.Static("/uploads", local.Root(), fiber.Static{MaxAge: 3600})
	}

	api := app.Group("/api")
	api.Get("/", s.HealthCheck)
	api.Get("/metrics/dashboard", monitor.New(monitor.Config{
		Title: "Folio API Metrics",
	}))
	api.Get("/swagger/*", swagger.HandlerDefault)

	authRequired := middleware.AuthRequired(s.tokens)

	// Auth routes
	authGroup := api.Group("/auth")
	authGroup.Post("/signup", middleware.RateLimit(s.redis, middleware.Limit{
		Resource: "signup", Max: 5, Window: 10 * time.Minute,
	}), s.Signup)
	authGroup.Post("/login", middleware.RateLimit(s.redis, middleware.Limit{
		Resource: "login", Max: 10, Window: 5 * time.Minute,
	}), s.Login)
	authGroup.Post("/logout", authRequired, s.Logout)
	authGroup.Get("/me", authRequired, s.Me)
	authGroup.Get("/oauth/:provider", middleware.RateLimit(s.redis, middleware.Limit{
		Resource: "oauth", Max: 20, Window: 5 * time.Minute,
	}), s.OAuthStart)
	authGroup.Get("/oauth/:provider/callback", s.OAuthCallback)

	// Public routes. These are registered before the protected groups that
	// share their prefixes.
	api.Get("/themes", s.ListThemes)
	api.Get("/public/:username", s.GetPublicPage)
	api.Get("/public/:username/:slug", s.GetPublicPage)
	// One visitor counts at most a few views per page per hour, while still
	// browsing many pages.
	api.Post("/pages/view", middleware.RateLimit(s.redis, middleware.Limit{
		Resource: "page_view", Max: 5, Window: time.Hour, Key: middleware.PageViewKey,
	}), middleware.RateLimit(s.redis, middleware.Limit{
		Resource: "page_view_ip", Max: 120, Window: time.Minute,
	}), s.RecordView)
	api.Get("/username", middleware.OptionalAuth(s.tokens), s.CheckUsername)
	api.Post("/waitlist", middleware.RateLimit(s.redis, middleware.Limit{
		Resource: "waitlist", Max: 5, Window: 10 * time.Minute,
	}), s.JoinWaitlist)

	// Pages
	pages := api.Group("/pages", authRequired)
	pages.Get("/", s.ListPages)
	pages.Post("/publish", middleware.RateLimit(s.redis, middleware.Limit{
		Resource: "publish", Max: 30, Window: time.Minute,
	}), s.PublishPage)
	// Define specific /:id/:resource routes BEFORE generic /:id route
	pages.Get("/:id/analytics", s.GetPageAnalytics)
	pages.Get("/:id", s.GetPage)
	pages.Patch("/:id", s.UpdatePage)
	pages.Delete("/:id", s.DeletePage)

	api.Patch("/username", authRequired, middleware.RateLimit(s.redis, middleware.Limit{
		Resource: "rename", Max: 10, Window: time.Hour,
	}), s.RenameUsername)

	avatar := api.Group("/avatar", authRequired)
	avatar.Post("/", middleware.RateLimit(s.redis, middleware.Limit{
		Resource: "avatar", Max: 10, Window: 10 * time.Minute,
	}), s.UploadAvatar)
	avatar.Delete("/", s.DeleteAvatar)

	account := api.Group("/account", authRequired)
	account.Get("/", s.GetAccount)
	account.Patch("/", s.UpdateAccount)
	account.Post("/delete", s.DeleteAccount)

	// Browsers cannot set headers on a WebSocket handshake, so the token may
	// arrive as a query parameter on this route only.
	api.Get("/ws/views", s.WebSocketUpgrade(), websocketToken(), authRequired, s.LiveViewsHandler())

	admin := api.Group("/admin", authRequired, s.AdminRequired())
	admin.Get("/overview", s.AdminOverview)
	admin.Get("/users", s.AdminUsers)
	admin.Patch("/users/:id/plan", s.AdminSetPlan)
	admin.Get("/pages", s.AdminPages)
	admin.Get("/waitlist", s.AdminWaitlist)
	admin.Get("/feature-flags", s.GetFeatureFlags)
}

// HealthCheck is a legacy/simple alias for ReadinessCheck
func (s *Server) HealthCheck(c *fiber.Ctx) error {
	return s.ReadinessCheck(c)
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck reports the database and Redis. Only the database gates
// readiness; without Redis the API runs with caching, revocation and live
// views disabled.
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	if err := database.Ping(ctx, s.db); err != nil {
		dbStatus = "unhealthy"
	}

	redisStatus := "healthy"
	if s.redis == nil {
		redisStatus = "unavailable"
	} else if err := s.redis.Ping(ctx).Err(); err != nil {
		redisStatus = "unhealthy"
	}

	status := fiber.StatusOK
	overallStatus := "healthy"
	switch {
	case dbStatus != "healthy":
		status = fiber.StatusServiceUnavailable
		overallStatus = "unhealthy"
	case redisStatus != "healthy":
		overallStatus = "degraded"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overallStatus,
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
		},
		"time": time.Now(),
	})
}

// AdminRequired returns middleware that rejects non-admin users with 403.
// Must be placed after AuthRequired so that userID is available in locals.
func (s *Server) AdminRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := s.authService.Me(c.UserContext(), currentUserID(c))
		if err != nil {
			return s.respondError(c, err)
		}
		if !s.authService.IsAdmin(user) {
			return models.RespondWithError(c, fiber.StatusForbidden,
				models.NewForbiddenError("Admin access required"))
		}
		return c.Next()
	}
}

// Start starts the server
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.shutdownCtx = ctx
	s.shutdownFn = cancel

	s.app = s.NewApp()

	if s.notifier != nil {
		for _, h := range s.hubs {
			h := h
			go func() {
				if err := h.StartWiring(s.shutdownCtx, s.notifier); err != nil && !errors.Is(err, context.Canceled) {
					middleware.Logger.Error("hub wiring stopped",
						slog.String("hub", h.Name()),
						slog.String("error", err.Error()))
				}
			}()
		}
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

	for _, h := range s.hubs {
		if err := h.Shutdown(ctx); err != nil {
			middleware.Logger.Error("error shutting down hub",
				slog.String("hub", h.Name()),
				slog.String("error", err.Error()))
		}
	}

	database.Close(s.db)

	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			middleware.Logger.Error("error closing redis", slog.String("error", err.Error()))
		}
	}

	middleware.Logger.Info("server shutdown complete")
	return nil
}
