package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/artpar/simplets/internal/shell/api"
	"github.com/artpar/simplets/internal/shell/docker"
	"github.com/artpar/simplets/internal/shell/jobs"
	"github.com/artpar/simplets/internal/shell/metrics"
	"github.com/artpar/simplets/internal/shell/registry"
	"github.com/artpar/simplets/internal/shell/store"
)

// =============================================================================
// Exit Codes
// =============================================================================

const (
	ExitSuccess         = 0
	ExitConfigError     = 1
	ExitDatabaseError   = 2
	ExitDockerError     = 3
	ExitHTTPServerError = 4
	ExitDeployFailed    = 5
)

// =============================================================================
// Runtime
// =============================================================================

// runtime holds the components shared by the serve and deploy commands.
type runtime struct {
	store   store.Store
	docker  docker.Client
	runner  *jobs.Runner
	metrics *metrics.Recorder
	logger  *slog.Logger
}

// newRuntime opens the ledger, connects to Docker and wires the job runner.
func newRuntime(ctx context.Context, cfg *Config, logger *slog.Logger) (*runtime, error) {
	policy, err := registry.ParsePolicy(cfg.Registry.CollisionPolicy)
	if err != nil {
		return nil, &ServerError{Op: "NewRuntime", Err: err, ExitCode: ExitConfigError}
	}
	defaults, err := cfg.ServiceDefaults()
	if err != nil {
		return nil, &ServerError{Op: "NewRuntime", Err: err, ExitCode: ExitConfigError}
	}

	// Connect to database
	var ledger store.Store
	if cfg.Database.DSN != "" {
		s, err := store.NewSQLiteStore(cfg.Database.DSN)
		if err != nil {
			return nil, &ServerError{Op: "NewRuntime", Err: err, ExitCode: ExitDatabaseError}
		}
		ledger = s
	} else {
		logger.Info("deployment ledger disabled")
	}

	// Connect to Docker
	cli, err := docker.DialDocker(cfg.Docker.Host)(ctx)
	if err != nil {
		if ledger != nil {
			ledger.Close()
		}
		return nil, &ServerError{Op: "NewRuntime", Err: err, ExitCode: ExitDockerError}
	}

	rec := metrics.NewRecorder()
	deployer := docker.NewDeployer(docker.StaticClient(cli), docker.DeployerOptions{
		RollbackOnFailure: cfg.Stack.RollbackOnFailure,
		Metrics:           rec,
		Logger:            logger,
	})
	runner := jobs.NewRunner(deployer, registry.New(policy), jobs.Options{
		Defaults: defaults,
		Store:    ledger,
		Metrics:  rec,
		Logger:   logger,
	})

	return &runtime{
		store:   ledger,
		docker:  cli,
		runner:  runner,
		metrics: rec,
		logger:  logger,
	}, nil
}

// Close releases the Docker client and the ledger.
func (rt *runtime) Close() {
	if err := rt.docker.Close(); err != nil {
		rt.logger.Error("Docker client close error", "error", err)
	}
	if rt.store != nil {
		if err := rt.store.Close(); err != nil {
			rt.logger.Error("database close error", "error", err)
		}
	}
}

// =============================================================================
// Server
// =============================================================================

// Server represents the simplets application server.
type Server struct {
	config     *Config
	httpServer *http.Server
	runtime    *runtime
	logger     *slog.Logger
}

// NewServer creates a new server with the given config.
func NewServer(ctx context.Context, cfg *Config, logger *slog.Logger) (*Server, error) {
	rt, err := newRuntime(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	handler := api.NewHandler(rt.runner, rt.runner.Registry(), rt.store, rt.metrics.Handler(), logger)

	httpServer := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      handler.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return &Server{
		config:     cfg,
		httpServer: httpServer,
		runtime:    rt,
		logger:     logger,
	}, nil
}

// Start starts the server and blocks until shutdown.
func (s *Server) Start(ctx context.Context) error {
	// Setup signal handling
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server",
			"address", s.config.Server.Address())
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for shutdown signal or error
	select {
	case sig := <-sigCh:
		s.logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		s.runtime.Close()
		return &ServerError{
			Op:       "Start",
			Err:      err,
			ExitCode: ExitHTTPServerError,
		}
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown(context.Background())
}

// Shutdown gracefully shuts down the server. Running stacks are left in
// place.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("initiating graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.Server.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	s.runtime.Close()

	s.logger.Info("shutdown complete")
	return nil
}

// =============================================================================
// Server Error
// =============================================================================

// ServerError represents an error during server operation.
type ServerError struct {
	Op       string
	Err      error
	ExitCode int
}

func (e *ServerError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *ServerError) Unwrap() error {
	return e.Err
}

// exitCode maps an error to a process exit code.
func exitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var sErr *ServerError
	if errors.As(err, &sErr) {
		return sErr.ExitCode
	}
	return ExitConfigError
}
