package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fabricd/fabricd/internal/shell/api"
	"github.com/fabricd/fabricd/internal/shell/archive"
	"github.com/fabricd/fabricd/internal/shell/fabric"
	"github.com/fabricd/fabricd/internal/shell/monitor"
	"github.com/fabricd/fabricd/internal/shell/orchestrator"
	"github.com/fabricd/fabricd/internal/shell/store"
	"github.com/fabricd/fabricd/internal/shell/telemetry"
)

// =============================================================================
// Exit Codes
// =============================================================================

const (
	ExitSuccess         = 0
	ExitConfigError     = 1
	ExitDatabaseError   = 2
	ExitStorageError    = 3
	ExitHTTPServerError = 4
	ExitTelemetryError  = 5
)

// =============================================================================
// Server
// =============================================================================

// Server represents the fabricd application server.
type Server struct {
	config     *Config
	httpServer *http.Server
	store      *store.SQLiteStore
	service    *orchestrator.Service
	tracer     *telemetry.Tracer
	logger     *slog.Logger
}

// NewServer creates a new server with the given config.
func NewServer(cfg *Config, logger *slog.Logger) (*Server, error) {
	if err := ensureDataDir(cfg.Database.DSN); err != nil {
		return nil, &ServerError{Op: "NewServer", Err: err, ExitCode: ExitDatabaseError}
	}

	s, err := store.NewSQLiteStore(cfg.Database.DSN)
	if err != nil {
		return nil, &ServerError{Op: "NewServer", Err: err, ExitCode: ExitDatabaseError}
	}

	archives, err := archive.NewFileStore(cfg.Archive.Dir)
	if err != nil {
		s.Close()
		return nil, &ServerError{Op: "NewServer", Err: err, ExitCode: ExitStorageError}
	}

	tracer, err := telemetry.NewTracer(telemetry.TracingConfig{
		Enabled:      cfg.Tracing.Enabled,
		Exporter:     cfg.Tracing.Exporter,
		Endpoint:     cfg.Tracing.Endpoint,
		Insecure:     cfg.Tracing.Insecure,
		SamplingRate: cfg.Tracing.SamplingRate,
	}, "fabricd", Version)
	if err != nil {
		s.Close()
		return nil, &ServerError{Op: "NewServer", Err: err, ExitCode: ExitTelemetryError}
	}

	metrics := telemetry.NewMetrics(telemetry.MetricsConfig{
		Enabled:   cfg.Metrics.Enabled,
		Namespace: cfg.Metrics.Namespace,
	})

	fabricClient := fabric.NewClient(fabric.Config{
		BaseURL:  cfg.Fabric.URL,
		Username: cfg.Fabric.Username,
		Password: cfg.Fabric.Password,
		Tenant:   cfg.Fabric.Tenant,
		Timeout:  cfg.Fabric.Timeout,
	}, logger)

	registrar := monitor.NewClient(monitor.Config{Timeout: cfg.Monitor.Timeout}, logger)

	service := orchestrator.NewService(orchestrator.Deps{
		Store:     s,
		Fabric:    fabricClient,
		Archives:  archives,
		Registrar: registrar,
		Metrics:   metrics,
		Tracer:    tracer,
		Logger:    logger,
	}, orchestrator.Config{
		PollInterval: cfg.Pipeline.PollInterval,
		MaxRetries:   cfg.Pipeline.MaxRetries,
		RetryDelay:   cfg.Pipeline.RetryDelay,
		Workers:      cfg.Pipeline.Workers,
		QueueSize:    cfg.Pipeline.QueueSize,
	})

	handlerCfg := api.Config{
		Orchestrator: service,
		Logger:       logger,
		Version:      Version,
	}
	if cfg.Metrics.Enabled {
		handlerCfg.Metrics = metrics.Handler()
	}
	handler := api.NewHandler(handlerCfg)

	httpServer := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      handler.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return &Server{
		config:     cfg,
		httpServer: httpServer,
		store:      s,
		service:    service,
		tracer:     tracer,
		logger:     logger,
	}, nil
}

// Start runs the pipeline workers and the HTTP server and blocks until a
// shutdown signal arrives, the server fails or ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.service.Start()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "address", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case sig := <-sigCh:
		s.logger.Info("received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		s.abandon()
		return &ServerError{Op: "Start", Err: err, ExitCode: ExitHTTPServerError}
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown stops accepting requests, releases running pipelines and closes
// the store.
func (s *Server) Shutdown() error {
	s.logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
	defer cancel()

	var httpErr error
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
		httpErr = err
	}

	// Running pipelines fail their current step and release their container.
	s.service.Stop()

	if err := s.tracer.Shutdown(ctx); err != nil {
		s.logger.Warn("tracer shutdown error", "error", err)
	}

	if err := s.store.Close(); err != nil {
		s.logger.Error("store close error", "error", err)
		return &ServerError{Op: "Shutdown", Err: err, ExitCode: ExitDatabaseError}
	}

	if httpErr != nil {
		return &ServerError{Op: "Shutdown", Err: httpErr, ExitCode: ExitHTTPServerError}
	}

	s.logger.Info("server stopped")
	return nil
}

// ensureDataDir creates the directory holding a file-backed database.
func ensureDataDir(dsn string) error {
	if dsn == "" || strings.HasPrefix(dsn, ":memory:") || strings.HasPrefix(dsn, "file:") {
		return nil
	}
	return os.MkdirAll(filepath.Dir(dsn), 0o755)
}

// abandon tears the server down after the HTTP listener failed. Errors are
// logged; the listener error is the one reported.
func (s *Server) abandon() {
	s.service.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
	defer cancel()
	if err := s.tracer.Shutdown(ctx); err != nil {
		s.logger.Warn("tracer shutdown error", "error", err)
	}
	if err := s.store.Close(); err != nil {
		s.logger.Error("store close error", "error", err)
	}
}

// =============================================================================
// Errors
// =============================================================================

// ServerError represents a server error with exit code.
type ServerError struct {
	Op       string
	Err      error
	ExitCode int
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServerError) Unwrap() error {
	return e.Err
}
