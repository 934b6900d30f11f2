// Package main provides the entry point for the editor gateway server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/sipico/editor-gateway/internal/admin"
	"github.com/sipico/editor-gateway/internal/config"
	"github.com/sipico/editor-gateway/internal/metrics"
	"github.com/sipico/editor-gateway/internal/middleware"
	"github.com/sipico/editor-gateway/internal/proxy"
	"github.com/sipico/editor-gateway/internal/storage"
	"github.com/sipico/editor-gateway/internal/upstream"
	"github.com/sipico/editor-gateway/internal/urlnorm"
)

const (
	version                = "0.1.0"
	serverShutdownTimeout  = 30 * time.Second
	backendRequestTimeout  = 10 * time.Second
	defaultHealthCheckPort = "8080"
	healthCheckTimeout     = 5 * time.Second
)

// loggedBodyFields are redacted from request and response bodies in debug logs.
var loggedBodyFields = []string{"password"}

// components holds everything initializeComponents wires together.
type components struct {
	logger          *slog.Logger
	logLevel        *slog.LevelVar
	store           *storage.SQLiteStorage
	backendClient   *upstream.Client
	metricsRegistry *prometheus.Registry
	proxyHandler    *proxy.Handler
	adminHandler    *admin.Handler
	mainRouter      http.Handler
}

func main() {
	// Health check subcommand for distroless container health checks
	if len(os.Args) > 1 && os.Args[1] == "health" {
		os.Exit(runHealthCheck())
	}

	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

// run loads configuration, wires the components and serves until a shutdown signal.
func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config load failed: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	c, err := initializeComponents(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := c.store.Close(); err != nil {
			c.logger.Error("failed to close storage", "error", err)
		}
	}()

	for _, w := range cfg.Warnings() {
		c.logger.Warn("insecure configuration", "detail", w)
	}

	metricsServer := createMetricsServer(cfg, c.metricsRegistry)
	go func() {
		c.logger.Info("Metrics listener starting", "addr", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			c.logger.Error("metrics server error", "error", err)
		}
	}()
	defer func() {
		//nolint:errcheck
		metricsServer.Close()
	}()

	c.logger.Info("Editor gateway starting",
		"version", version,
		"addr", cfg.ListenAddr,
		"backend", c.backendClient.BaseURL(),
		"log_level", cfg.LogLevel,
	)

	return startServerAndWaitForShutdown(c.logger, createServer(cfg, c.mainRouter))
}

// parseLogLevel maps a configured level name to a slog level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid log level: %q", level)
	}
}

// initializeComponents builds the logger, storage, backend client, handlers and router.
func initializeComponents(cfg *config.Config) (*components, error) {
	level, err := parseLogLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	logLevel := new(slog.LevelVar)
	logLevel.Set(level)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	store, err := storage.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("storage initialization failed: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if err := metrics.Init(reg, version); err != nil {
		//nolint:errcheck
		store.Close()
		return nil, fmt.Errorf("metrics initialization failed: %w", err)
	}

	httpClient := &http.Client{
		Timeout: backendRequestTimeout,
		Transport: &upstream.LoggingTransport{
			Transport: http.DefaultTransport,
			Logger:    logger,
		},
	}
	backendClient := upstream.NewClient(cfg.BackendURL, upstream.WithHTTPClient(httpClient))

	urls := urlnorm.NewBuilder(cfg.PublicBaseURL, cfg.UploadsPrefix)
	proxyHandler := proxy.NewHandler(backendClient, urls, cfg.IngestKey, store, logger)
	adminHandler := admin.NewHandler(admin.Credentials{
		Password:       cfg.AdminPassword,
		PasswordBcrypt: cfg.AdminPasswordBcrypt,
	}, store, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recover(logger))
	r.Use(metrics.Middleware)
	r.Use(middleware.MaxBodySize(cfg.MaxBodyBytes))
	r.Use(middleware.HTTPLogging(logger, loggedBodyFields))
	r.Use(admin.Guard(cfg.ProtectedPrefix, cfg.LoginPath, logger, admin.LogoutPath))

	adminHandler.Mount(r)
	proxyHandler.Mount(r)

	return &components{
		logger:          logger,
		logLevel:        logLevel,
		store:           store,
		backendClient:   backendClient,
		metricsRegistry: reg,
		proxyHandler:    proxyHandler,
		adminHandler:    adminHandler,
		mainRouter:      r,
	}, nil
}

// createServer creates an HTTP server with the given configuration and handler.
func createServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// createMetricsServer creates the separate listener serving /metrics.
func createMetricsServer(cfg *config.Config, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	return &http.Server{
		Addr:              cfg.MetricsListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// startServerAndWaitForShutdown starts the server and blocks until SIGINT/SIGTERM
// triggers a graceful shutdown or the server fails.
func startServerAndWaitForShutdown(logger *slog.Logger, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		logger.Info("Received signal, shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	logger.Info("Server shut down gracefully")
	return nil
}

// runHealthCheck performs an HTTP health check against the local server.
// Returns 0 on success, 1 on failure. Used by container HEALTHCHECK.
func runHealthCheck() int {
	port := os.Getenv("HEALTHCHECK_PORT")
	if port == "" {
		port = defaultHealthCheckPort
	}
	return doHealthCheck("http://localhost:" + port + "/health")
}

// doHealthCheck performs the actual health check HTTP request.
func doHealthCheck(url string) int {
	client := &http.Client{Timeout: healthCheckTimeout}
	resp, err := client.Get(url)
	if err != nil {
		return 1
	}
	//nolint:errcheck // Response body close errors are unrecoverable in health check
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 1
	}
	return 0
}
