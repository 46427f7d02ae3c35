package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/acharya-agent/backend/internal/api/handlers"
	"github.com/acharya-agent/backend/internal/app"
	"github.com/acharya-agent/backend/internal/metrics"
	"github.com/acharya-agent/backend/internal/middleware/ratelimit"
	"github.com/acharya-agent/backend/internal/middleware/security"
	"github.com/acharya-agent/backend/internal/middleware/validation"
	"github.com/acharya-agent/backend/pkg/config"
	appLogger "github.com/acharya-agent/backend/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting Acharya API Server")

	application, err := app.New(cfg)
	if err != nil {
		appLogger.Fatal("Failed to build application", zap.Error(err))
	}
	defer application.Close()

	server := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	server.Use(recover.New())
	server.Use(logger.New())
	server.Use(cors.New(cors.Config{
		AllowOrigins: cfg.Server.AllowOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, X-Client-ID",
		AllowMethods: "GET, POST, OPTIONS",
	}))
	server.Use(security.HeadersMiddleware(security.HeadersConfig{
		AllowedOrigins: allowedOrigins(cfg.Server.AllowOrigins),
		IsDevelopment:  cfg.Logging.Level == "debug",
	}))

	if cfg.RateLimit.Enabled {
		limiter := ratelimit.New(ratelimit.Config{
			MaxRequestsPerMinute: cfg.RateLimit.MaxRequestsPerMinute,
			Logger:               appLogger.GetLogger(),
		})
		defer limiter.Stop()
		server.Use("/api", limiter.Middleware())
	}
	server.Use("/api", validation.Middleware(validation.Config{
		Logger: appLogger.GetLogger(),
	}))

	routes := handlers.Routes{
		Query:     handlers.NewQueryHandler(application.Engine, nil),
		Knowledge: handlers.NewKnowledgeHandler(application.Knowledge, application.Learning, nil),
		Review:    handlers.NewReviewHandler(application.Learning, cfg.Learning.AutoApproveThreshold),
		Voice:     handlers.NewVoiceHandler(application.Engine),
		Health:    application.Health,
	}
	if application.Store != nil {
		routes.Query = handlers.NewQueryHandler(application.Engine, application.Store)
		routes.Knowledge = handlers.NewKnowledgeHandler(application.Knowledge, application.Learning, application.Store)
	}
	handlers.Register(server, routes)

	server.Get("/metrics", metrics.MetricsHandler())

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := server.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	if err := server.Shutdown(); err != nil {
		appLogger.Warn("Shutdown incomplete", zap.Error(err))
	}
	appLogger.Info("Server stopped")
}

func allowedOrigins(raw string) []string {
	var out []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" && o != "*" {
			out = append(out, o)
		}
	}
	return out
}
