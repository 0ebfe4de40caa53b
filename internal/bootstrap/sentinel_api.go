package bootstrap

import (
	"os"
	"strings"
	"time"

	"sentinel_server/adapter/in/http"
	"sentinel_server/config"
	"sentinel_server/infra/middleware"
	"sentinel_server/pkg/logger"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/rs/zerolog"
)

// NewAPI builds the HTTP application: scan intake for internal
// services, the reviewer alert API, and the live SSE alert feed.
func NewAPI(cfg *config.Config) (*fiber.App, func(), error) {
	logLevel := logger.LevelInfo
	if cfg.IsDevelopment() {
		logLevel = logger.LevelDebug
	}
	logger.Init(logger.Config{
		Level:   logLevel,
		Service: "sentinel-api",
	})

	deps, cleanup, err := NewDependencies(cfg)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize dependencies")
		return nil, nil, err
	}

	middleware.InitTokenBlacklist(deps.Redis)

	app := fiber.New(fiber.Config{
		ErrorHandler:          middleware.ErrorHandler(),
		DisableStartupMessage: cfg.IsProduction(),
		Prefork:               false,

		ReadBufferSize:  16384,
		WriteBufferSize: 16384,

		// go-json over encoding/json for serialization throughput
		JSONEncoder: json.Marshal,
		JSONDecoder: json.Unmarshal,

		BodyLimit:   1 * 1024 * 1024, // scans are short text
		Concurrency: 256 * 1024,

		ServerHeader:       "",
		DisableDefaultDate: true,

		StreamRequestBody: true,
	})

	// Global middleware stack (order matters)
	app.Use(middleware.Recover())
	app.Use(middleware.RequestID())
	app.Use(middleware.SecurityHeaders())
	app.Use(middleware.RequestLogger())

	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))

	// CORS for the reviewer dashboard
	allowOrigins := strings.Join(cfg.AllowedOrigins, ",")
	allowCredentials := true
	if allowOrigins == "" || allowOrigins == "*" {
		if cfg.IsProduction() {
			allowOrigins = ""
			allowCredentials = false
		} else {
			allowOrigins = "http://localhost:3000,http://localhost:5173"
		}
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowOrigins,
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization,X-Request-ID,X-Internal-Key",
		ExposeHeaders:    "X-Request-ID",
		AllowCredentials: allowCredentials,
		MaxAge:           86400,
	}))

	// Health and metrics (no auth required)
	healthHandler := http.NewHealthHandlerWithDeps(deps.DB, deps.Redis, deps.MongoDB)
	healthHandler.Register(app)

	// Internal scan intake: service-to-service, shared-key auth
	scanLimiter := middleware.NewRateLimiter(300, time.Minute)
	internal := app.Group("/internal", scanLimiter.Handler(), middleware.InternalAuth(cfg.InternalAPIKey))
	http.NewScanHandler(deps.PipelineService).Register(internal)

	// Reviewer API: JWT auth
	api := app.Group("/api", middleware.JWTAuth(cfg.JWTSecret))
	http.NewAlertHandler(deps.AlertService).Register(api)

	sseLogger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	http.NewSSEHandler(deps.SSEHub, deps.RealtimeAdapter, sseLogger).Register(api)

	return app, cleanup, nil
}
