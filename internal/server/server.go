// Package server wires the service together: certificate provider, store,
// pass builder, loyalty engine, push dispatcher and the HTTP surface.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stampwise/passd/internal/config"
	"github.com/stampwise/passd/internal/crypto"
	"github.com/stampwise/passd/internal/loyalty"
	"github.com/stampwise/passd/internal/pass"
	"github.com/stampwise/passd/internal/push"
	"github.com/stampwise/passd/internal/server/handlers"
	"github.com/stampwise/passd/internal/server/middleware"
	"github.com/stampwise/passd/internal/services"
	"github.com/stampwise/passd/internal/store"
	"github.com/stampwise/passd/internal/wallet"
)

type Server struct {
	pool     *pgxpool.Pool
	config   *config.ServerEnvironment
	logger   *slog.Logger
	router   *chi.Mux
	provider *crypto.Provider

	store      *store.Store
	builder    *pass.Builder
	tokens     *wallet.Tokens
	dispatcher *push.Dispatcher
	issuer     *services.Issuer
	scanner    *services.Scanner
	wallet     *wallet.Handlers
}

func NewServer(
	pool *pgxpool.Pool,
	cfg *config.ServerEnvironment,
	logger *slog.Logger,
) (*Server, error) {
	server := &Server{
		pool:   pool,
		config: cfg,
		logger: logger,
		router: chi.NewRouter(),
	}

	server.initProvider()
	server.initComponents()

	server.setupMiddleware()
	server.registerRoutes()

	return server, nil
}

// initProvider loads the signing material. The service starts without it:
// signing and push report "not configured" until an operator supplies
// certificates and restarts or reloads.
func (s *Server) initProvider() {
	s.provider = crypto.NewProvider(crypto.Source{
		CertInline:         s.config.SigningCert,
		CertFile:           s.config.SigningCertFile,
		KeyInline:          s.config.SigningKey,
		KeyFile:            s.config.SigningKeyFile,
		IntermediateInline: s.config.WWDRCert,
		IntermediateFile:   s.config.WWDRCertFile,
	})

	if s.provider.Configured() {
		s.logger.Info("pass signing material loaded")
		return
	}

	s.logger.Warn("pass signing material not configured, signing and push are disabled")
	for _, result := range s.provider.Diagnostics().Results {
		s.logger.Warn("signing diagnostics", slog.String("result", result))
	}
}

// initComponents builds the domain components over the provider and pool.
func (s *Server) initComponents() {
	s.store = store.New(s.pool)

	s.builder = pass.NewBuilder(s.provider, pass.BuilderConfig{
		PassTypeIdentifier: s.config.PassTypeIdentifier,
		TeamIdentifier:     s.config.TeamIdentifier,
		OrganizationName:   s.config.OrganizationName,
		WebServiceURL:      s.config.PublicBaseURL,
		SigningTimeout:     s.config.SigningTimeout,
	})

	s.tokens = wallet.NewTokens(s.store)

	var apnsClient push.Client
	if material, err := s.provider.Material(); err == nil {
		apnsClient = push.NewClient(material, s.config.PushEnvironment)
	}
	s.dispatcher = push.NewDispatcher(apnsClient, s.store, push.Config{
		Topic:       s.config.PassTypeIdentifier,
		Concurrency: s.config.PushConcurrency,
	}, s.logger)

	engine := loyalty.NewEngine(s.store)
	s.issuer = services.NewIssuer(s.store, s.tokens, s.config.PublicBaseURL)
	s.scanner = services.NewScanner(engine, s.dispatcher, s.config.PushTimeout, s.logger)

	s.wallet = wallet.NewHandlers(s.store, s.builder, s.tokens, s.config.PassTypeIdentifier)
}

func (s *Server) setupMiddleware() {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.RequestLogging(s.logger))
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.SecurityHeaders(s.config.Environment))
	s.router.Use(middleware.RequestSizeLimit(s.config.MaxRequestBytes))
	s.router.Use(middleware.RateLimit(s.config.RateLimitRPS, s.config.RateLimitBurst))
	s.router.Use(middleware.CallerRateLimit(s.config.CallerRateLimit, s.config.CallerRateWindow, s.config.CallerRateSweepEvery))
	s.router.Use(chimiddleware.Timeout(s.config.WriteTimeout))
}

func (s *Server) registerRoutes() {
	// wallet web service protocol (driven by the wallet client)
	s.router.Route("/v1", func(r chi.Router) {
		r.Post("/devices/{deviceLibraryId}/registrations/{passTypeId}/{serialNumber}", s.wallet.HandleRegisterDevice)
		r.Delete("/devices/{deviceLibraryId}/registrations/{passTypeId}/{serialNumber}", s.wallet.HandleUnregisterDevice)
		r.Get("/devices/{deviceLibraryId}/registrations/{passTypeId}", s.wallet.HandleListRegistrations)
		r.Get("/passes/{passTypeId}/{serialNumber}", s.wallet.HandleGetPass)
		r.Post("/log", s.wallet.HandleLog)
	})

	// collaborator API (driven by the product backend)
	s.router.Route("/api", func(r chi.Router) {
		r.Post("/passes", handlers.HandleIssuePass(s.issuer))
		r.Get("/passes/{serialNumber}/download", handlers.HandleDownloadPass(s.store, s.builder, s.tokens))
		r.Get("/passes/{serialNumber}/transactions", handlers.HandleListTransactions(s.store))
		r.Post("/scan", handlers.HandleScan(s.scanner))
		r.Get("/certificates/diagnostics", handlers.HandleCertificateDiagnostics(s.provider))
	})

	s.router.Get("/health/live", handlers.HandleHealth)
	s.router.Get("/ready", handlers.HandleReadiness(s.pool))
	s.router.Get("/version", handlers.HandleVersion("passd-server"))
	s.router.Handle("/metrics", promhttp.Handler())
}

func (s *Server) Start(ctx context.Context) error {
	serverAddr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	httpServer := &http.Server{
		Addr:         serverAddr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("service listening",
			slog.String("environment", s.config.Environment),
			slog.String("address", serverAddr),
			slog.Bool("signing_configured", s.provider.Configured()),
			slog.Bool("push_configured", s.dispatcher.Configured()))

		err := httpServer.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			serverErrors <- fmt.Errorf("server failed to start: %w", err)
		}
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), s.config.ServerShutdownTimeout)
	defer shutdownCancel()

	s.logger.Info("shutting down HTTP server")

	err := httpServer.Shutdown(shutdownCtx)
	if err != nil {
		s.logger.Warn("HTTP server shutdown error",
			slog.String("error", err.Error()))
		return fmt.Errorf("HTTP server shutdown failed: %w", err)
	}

	s.logger.Info("HTTP server shutdown complete")
	return nil
}

func (s *Server) DatabaseShutdown() {
	if s.pool != nil {
		s.pool.Close()
		s.logger.Info("database connection closed")
	}
}
