package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/stampwise/passd/internal/config"
	"github.com/stampwise/passd/internal/database"
	"github.com/stampwise/passd/internal/logger"
	"github.com/stampwise/passd/internal/server"
	"github.com/stampwise/passd/internal/version"
)

//	@title			passd-server
//	@description	passd-server issues and updates loyalty wallet passes. It builds
//	@description	and signs pass archives, implements the wallet web service
//	@description	protocol for device registration and pass updates, and exposes a
//	@description	collaborator API for issuing passes and recording scans.
//	@description
//	@description	## Common Error Responses
//	@description	All endpoints may return:
//	@description	- `413` Request body exceeds size limit
//	@description	- `429` Rate limit exceeded
//	@description	- `500` Internal server error
//	@description
//	@description	Individual endpoints document their specific business logic errors.
//	@description
//	@description	## Request Limits
//	@description	All endpoints are protected by a global rate limit plus a per-caller
//	@description	fixed window on top of it, and a request body size limit.
//	@description	Check the X-Max-Request-Body response header for the configured limit.
//	@description
//	@description	## Authentication
//	@description	The wallet protocol endpoints under /v1 authenticate with the
//	@description	ApplePass authorization scheme using the per-pass token embedded in
//	@description	the archive. The collaborator API under /api is expected to sit
//	@description	behind the product backend's own access controls.
//	@description
//	@license.name	MIT

//	@servers.url			https://passes.example.com
//	@servers.description	Production server
//	@servers.url			http://localhost:8080
//	@servers.description	Development server

//	@accept		json
//	@produce	json

//	@tag.name			Wallet
//	@tag.description	Wallet web service protocol endpoints (driven by devices)

//	@tag.name			Passes
//	@tag.description	Pass issuance and archive download

//	@tag.name			Scans
//	@tag.description	Scan event processing

//	@tag.name			Common
//	@tag.description	Server endpoints (health, readiness, version, metrics)

func main() {
	cmd := &cobra.Command{
		Use:   "passd-server",
		Short: "loyalty wallet pass service",
		Long:  `passd-server builds, signs and updates loyalty wallet passes and serves the wallet web service protocol`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run()
		},
	}

	v := version.Get()
	cmd.Version = fmt.Sprintf("%s (built %s, commit %s)", v.Version, v.BuildDate, v.GitCommit)

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.NewServerConfig()
	if err != nil {
		log.Printf("failed to load configuration: %v", err.Error())
		os.Exit(1)
	}

	appLogger := logger.InitLogger(logger.ParseLogLevel(cfg.LogLevel), cfg.Environment)

	appLogger.Info("Configuration loaded",
		slog.String("ENVIRONMENT", cfg.Environment),
		slog.String("HOST", cfg.Host),
		slog.Int("PORT", cfg.Port),
		slog.String("LOG_LEVEL", cfg.LogLevel),
		slog.String("PASS_TYPE_IDENTIFIER", cfg.PassTypeIdentifier),
		slog.String("TEAM_IDENTIFIER", cfg.TeamIdentifier),
		slog.String("PUBLIC_BASE_URL", cfg.PublicBaseURL),
		slog.String("PUSH_ENVIRONMENT", cfg.PushEnvironment),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := database.NewPool(ctx, cfg)
	if err != nil {
		appLogger.Error("Failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}

	appLogger.Info("connected to PostgreSQL")

	if err := database.Migrate(ctx, pool, appLogger); err != nil {
		appLogger.Error("Failed to apply migrations", slog.String("error", err.Error()))
		pool.Close()
		os.Exit(1)
	}

	appLogger.Info("Starting server", slog.String("version", version.Get().Version))

	server, err := server.NewServer(pool, cfg, appLogger)
	if err != nil {
		appLogger.Error("Failed to create server", slog.String("error", err.Error()))
		pool.Close()
		os.Exit(1)
	}

	defer server.DatabaseShutdown()

	if err := server.Start(ctx); err != nil {
		appLogger.Error("Server error", slog.String("error", err.Error()))
		return err
	}

	appLogger.Info("server shutdown complete")
	return nil
}
