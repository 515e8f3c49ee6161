package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/go-chi/chi/v5"

	"nowcast/internal/config"
	"nowcast/internal/infrastructure"
	"nowcast/internal/services"
	handlers "nowcast/internal/transport/http"
	"nowcast/pkg/contracts"
)

// Application is the results server: configuration, observability, the
// router and the HTTP server that serves it
type Application struct {
	Config        *config.Config
	Logger        *slog.Logger
	OTelProviders *infrastructure.OTelProviders
	Metrics       *infrastructure.PipelineMetrics
	Results       *services.ResultsService
	Router        chi.Router
	Server        *http.Server

	mu       sync.Mutex
	listener net.Listener
}

// NewApplication wires the results server from cfg. A nil logger falls back
// to slog.Default.
func NewApplication(cfg *config.Config, logger *slog.Logger) (*Application, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	providers, err := infrastructure.InitializeOTel(cfg.Telemetry, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	metrics, err := infrastructure.NewPipelineMetrics(providers.Meter)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}

	a := &Application{
		Config:        cfg,
		Logger:        logger.With(slog.String("component", "results_server")),
		OTelProviders: providers,
		Metrics:       metrics,
		Results:       services.NewResultsService(cfg.Paths.ResultsDir, logger),
	}
	a.setupRouter(logger)
	a.createServer()
	return a, nil
}

func (a *Application) setupRouter(logger *slog.Logger) {
	a.Router = handlers.NewRouter(handlers.RouterOptions{
		Results:        a.Results,
		Health:         services.NewHealthService(a.Config.Paths.ResultsDir, logger),
		Logger:         logger,
		Recorder:       a.Metrics,
		Metrics:        a.OTelProviders.PrometheusHTTP,
		Tracer:         a.OTelProviders.Tracer,
		RateLimitRPS:   a.Config.Server.RateLimitRPS,
		RateLimitBurst: a.Config.Server.RateLimitBurst,
		IncludeStack:   a.Config.Server.IncludeStack,
	})
}

func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:         a.Config.Server.Addr,
		Handler:      a.Router,
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
		IdleTimeout:  a.Config.Server.IdleTimeout,
	}
}

// Addr returns the address the server listens on once started
func (a *Application) Addr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listener == nil {
		return a.Server.Addr
	}
	return a.listener.Addr().String()
}

// Start binds the listener and serves in the background. A serve failure
// calls cancel.
func (a *Application) Start(ctx context.Context, cancel context.CancelFunc) error {
	a.Logger.InfoContext(ctx, "Starting results server",
		slog.String("version", contracts.Version),
		slog.String("addr", a.Config.Server.Addr),
		slog.String("results_dir", a.Config.Paths.ResultsDir),
		slog.String("level", a.Config.Logging.Level))

	ln, err := net.Listen("tcp", a.Config.Server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", a.Config.Server.Addr, err)
	}
	a.mu.Lock()
	a.listener = ln
	a.mu.Unlock()

	go func() {
		if err := a.Server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.ErrorContext(ctx, "Server error", slog.String("error", err.Error()))
			cancel()
		}
	}()

	if err := a.performStartupHealthCheck(ctx); err != nil {
		a.Logger.WarnContext(ctx, "Startup health check warnings", slog.String("warnings", err.Error()))
	}
	a.Logger.InfoContext(ctx, "Results server started", slog.String("address", ln.Addr().String()))
	return nil
}

// Stop shuts the server down within the configured shutdown timeout, then
// flushes telemetry
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "Shutting down results server")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.Config.Server.ShutdownTimeout)
	defer cancel()

	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}
	if a.OTelProviders != nil {
		if err := a.OTelProviders.Shutdown(shutdownCtx); err != nil {
			a.Logger.ErrorContext(ctx, "Error shutting down OpenTelemetry", slog.String("error", err.Error()))
		}
	}
	a.Logger.InfoContext(ctx, "Results server shutdown complete")
	return nil
}

// Run serves until SIGINT, SIGTERM or a serve failure
func (a *Application) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	if err := a.Start(ctx, cancel); err != nil {
		return err
	}

	select {
	case sig := <-sigChan:
		a.Logger.InfoContext(ctx, "Received signal", slog.String("signal", sig.String()))
	case <-ctx.Done():
		a.Logger.WarnContext(ctx, "Server stopped unexpectedly")
	}
	return a.Stop(ctx)
}

// performStartupHealthCheck reports a results directory that is missing,
// unreadable or holds no runs
func (a *Application) performStartupHealthCheck(ctx context.Context) error {
	dir := a.Config.Paths.ResultsDir
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return fmt.Errorf("results directory not found: %s", dir)
	}
	if err != nil {
		return fmt.Errorf("results directory not readable: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("results path is not a directory: %s", dir)
	}
	matches, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		return fmt.Errorf("no run bundles in %s", dir)
	}
	a.Logger.InfoContext(ctx, "Startup health check passed", slog.Int("bundles", len(matches)))
	return nil
}
