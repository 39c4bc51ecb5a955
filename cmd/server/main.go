package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/joho/godotenv"

	"github.com/docsight/docsight/internal/adapter/identity"
	"github.com/docsight/docsight/internal/adapter/sourcehost"
	"github.com/docsight/docsight/internal/adapter/store"
	"github.com/docsight/docsight/internal/handler"
	"github.com/docsight/docsight/internal/liveview"
	"github.com/docsight/docsight/internal/middleware"
	"github.com/docsight/docsight/internal/onboarding"
	"github.com/docsight/docsight/internal/port"
	"github.com/docsight/docsight/internal/service"
	"github.com/docsight/docsight/internal/session"
	"github.com/docsight/docsight/pkg/config"

	_ "github.com/lib/pq"
)

func main() {
	// ── Load .env file ───────────────────────────────────────────────────
	_ = godotenv.Load() // silently ignore if .env doesn't exist

	// ── Configuration ────────────────────────────────────────────────────
	cfg := config.Load()

	slog.Info("🚀 Starting DocSight",
		"port", cfg.Port,
		"database", cfg.DatabaseURL != "",
		"redis", cfg.RedisURL != "",
	)

	// ── Document store ───────────────────────────────────────────────────
	// Without DATABASE_URL everything runs in process: memory store, log
	// audit trail. With it, documents live in Postgres and change events
	// flow through Redis when REDIS_URL is set, or in process otherwise.
	var (
		docStore    port.DocumentStore
		auditWriter middleware.AuditWriter = middleware.LogAuditWriter{}
	)
	if cfg.DatabaseURL == "" {
		slog.Warn("DATABASE_URL not set, using in-memory store")
		docStore = store.NewMemoryStore()
	} else {
		var notifier store.Notifier = store.NewLocalNotifier()
		if cfg.RedisURL != "" {
			redisNotifier, err := store.NewRedisNotifier(cfg.RedisURL)
			if err != nil {
				slog.Error("failed to connect to redis", "error", err)
				os.Exit(1)
			}
			defer redisNotifier.Close()
			notifier = redisNotifier
		}

		pgStore, err := store.NewPostgresStore(cfg.DatabaseURL, notifier)
		if err != nil {
			slog.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pgStore.Close()

		if err := pgStore.EnsureSchema(context.Background()); err != nil {
			slog.Error("failed to ensure schema", "error", err)
			os.Exit(1)
		}
		docStore = pgStore
		auditWriter = pgStore
	}

	// ── Adapters ─────────────────────────────────────────────────────────
	identityProvider := identity.NewBroker(cfg.IdentityBrokerURL)
	githubHost := sourcehost.NewGitHubHost(cfg.WebhookCallbackURL)

	// ── Session + services ───────────────────────────────────────────────
	sessions := session.NewManager(identityProvider, docStore)
	defer sessions.Close()

	repoService := service.NewRepoService(docStore)
	liveCache := liveview.New(docStore)

	// ── Fiber App ────────────────────────────────────────────────────────
	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: []string{cfg.FrontendURL},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
	}))

	// Audit middleware (logs all requests)
	app.Use(middleware.AuditMiddleware(auditWriter))

	// ── Public Routes ────────────────────────────────────────────────────
	jwtCfg := middleware.JWTConfig{
		Secret:    cfg.JWTSecret,
		Issuer:    cfg.JWTIssuer,
		ExpiresIn: time.Duration(cfg.JWTExpiration) * time.Hour,
	}

	sessionHandler := handler.NewSessionHandler(sessions, jwtCfg, auditWriter)
	sessionHandler.Register(app)

	// Health check
	app.Get("/api/v1/health", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"app":     cfg.AppName,
			"version": "1.0.0",
		})
	})

	// ── Protected Routes ─────────────────────────────────────────────────
	api := app.Group("/api/v1", middleware.JWTMiddleware(jwtCfg))

	repoHandler := handler.NewRepoHandler(repoService, liveCache)
	repoHandler.Register(api)

	jobsHandler := handler.NewJobsHandler(repoService, liveCache)
	jobsHandler.Register(api)

	onboardingHandler := handler.NewOnboardingHandler(sessions, githubHost, docStore,
		onboarding.WithItemDelay(cfg.ConnectItemDelay))
	onboardingHandler.Register(api)

	// ── Start ────────────────────────────────────────────────────────────
	slog.Info("🌐 Fiber listening", "port", cfg.Port)
	if err := app.Listen(":" + cfg.Port); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}
