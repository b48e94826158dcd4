// Package container wires installkit's services from configuration.
package container

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/relicta-tech/installkit/internal/config"
	rperrors "github.com/relicta-tech/installkit/internal/errors"
	"github.com/relicta-tech/installkit/internal/installation/adapters"
	"github.com/relicta-tech/installkit/internal/installation/app"
	"github.com/relicta-tech/installkit/internal/observability"
	"github.com/relicta-tech/installkit/internal/sandbox"
)

// defaultShutdownTimeout bounds Close.
const defaultShutdownTimeout = 10 * time.Second

// Closeable represents a component that can be closed.
type Closeable interface {
	Close() error
}

// App holds the wired services shared by the CLI and the session API.
type App struct {
	config  *config.Config
	logger  *slog.Logger
	mu      sync.Mutex
	closed  bool
	version string

	daemon   *sandbox.Daemon
	releases *adapters.ResilientReleaseFetcher
	metrics  *observability.Metrics
	resolver *app.InstalledVersionResolver
	advisor  *app.UpdateAdvisor

	closeables []Closeable
}

// Option configures New.
type Option func(*App)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *App) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithVersion sets the version reported by metrics.
func WithVersion(v string) Option {
	return func(a *App) {
		a.version = v
	}
}

// WithDaemon replaces the backend built from the sandbox config.
func WithDaemon(d *sandbox.Daemon) Option {
	return func(a *App) {
		a.daemon = d
	}
}

// New wires the services described by cfg.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	const op = "container.New"
	if cfg == nil {
		return nil, rperrors.Config(op, "configuration is required")
	}

	a := &App{
		config:  cfg,
		logger:  slog.Default(),
		version: "dev",
	}
	for _, opt := range opts {
		opt(a)
	}

	if a.daemon == nil {
		d, err := newDaemon(cfg.Sandbox, a.logger)
		if err != nil {
			return nil, err
		}
		a.daemon = d
	}

	observability.InitTracer(observability.TracerConfig{
		Enabled:     cfg.Output.Trace,
		ServiceName: "installkit",
		Logger:      a.logger,
	})
	a.metrics = observability.NewMetrics(a.version)
	a.releases = adapters.NewResilientReleaseFetcher(a.daemon, resilienceConfig(cfg.Releases),
		adapters.WithFetcherLogger(a.logger),
		adapters.WithFetcherMetrics(a.metrics),
	)
	a.registerCloseable(a.releases)
	a.resolver = app.NewInstalledVersionResolver(a.daemon, a.logger)
	a.advisor = app.NewUpdateAdvisor(a.releases, a.logger)

	a.logger.Debug("services wired",
		"catalog", cfg.Sandbox.Catalog,
		"poll_interval", cfg.Poller.Interval,
		"host_version", cfg.Host.Version,
	)
	return a, nil
}

func newDaemon(cfg config.SandboxConfig, logger *slog.Logger) (*sandbox.Daemon, error) {
	catalog := sandbox.DefaultCatalog()
	if cfg.Catalog != "" {
		c, err := sandbox.LoadCatalog(cfg.Catalog)
		if err != nil {
			return nil, err
		}
		catalog = c
	}

	opts := []sandbox.Option{sandbox.WithLogger(logger), sandbox.WithTaskLatency(cfg.TaskLatency)}
	if cfg.TaskSteps > 0 {
		opts = append(opts, sandbox.WithTaskSteps(cfg.TaskSteps))
	}
	return sandbox.NewDaemon(catalog, opts...), nil
}

func resilienceConfig(cfg config.ReleasesConfig) adapters.ResilienceConfig {
	return adapters.ResilienceConfig{
		RateLimitRPM:              cfg.RateLimitRPM,
		RetryAttempts:             cfg.RetryAttempts,
		RetryInitialWait:          cfg.RetryInitialWait,
		RetryMaxWait:              cfg.RetryMaxWait,
		CircuitBreakerEnabled:     cfg.CircuitBreakerEnabled,
		CircuitBreakerThreshold:   cfg.CircuitBreakerThreshold,
		CircuitBreakerTimeout:     cfg.CircuitBreakerTimeout,
		CircuitBreakerMaxRequests: cfg.CircuitBreakerMaxRequests,
	}
}

// Services returns the collaborators wizards are built from.
func (a *App) Services() app.Services {
	return app.Services{
		Releases:              a.releases,
		Uploader:              a.daemon,
		Installer:             a.daemon,
		Tasks:                 a.daemon,
		Invalidator:           a.daemon,
		Catalog:               a.daemon,
		Resolver:              a.resolver,
		Logger:                a.logger,
		Metrics:               a.metrics,
		PollInterval:          a.config.Poller.Interval,
		LegacyRejectedSuccess: a.config.Upload.LegacyRejectedSuccess,
		MaxConcurrentPolls:    a.config.Bundle.MaxConcurrentPolls,
		HostVersion:           a.config.Host.Version,
	}
}

// Advisor returns the update advisor.
func (a *App) Advisor() *app.UpdateAdvisor { return a.advisor }

// Daemon returns the backend.
func (a *App) Daemon() *sandbox.Daemon { return a.daemon }

// Metrics returns the metrics sink.
func (a *App) Metrics() *observability.Metrics { return a.metrics }

// Config returns the configuration the app was wired from.
func (a *App) Config() *config.Config { return a.config }

// Logger returns the logger.
func (a *App) Logger() *slog.Logger { return a.logger }

func (a *App) registerCloseable(c Closeable) {
	if c != nil {
		a.closeables = append(a.closeables, c)
	}
}

// RegisterCloseable adds c to the components closed by Close, which closes
// them in reverse order of registration.
func (a *App) RegisterCloseable(c Closeable) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.registerCloseable(c)
}

// Close shuts down every registered component.
func (a *App) Close() error {
	return a.CloseWithTimeout(defaultShutdownTimeout)
}

// CloseWithTimeout shuts down every registered component within timeout.
func (a *App) CloseWithTimeout(timeout time.Duration) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	for i := len(a.closeables) - 1; i >= 0; i-- {
		if err := closeWithContext(ctx, a.closeables[i]); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		a.logger.Warn("some components failed to close cleanly", "error_count", len(errs))
		return errors.Join(errs...)
	}
	return nil
}

func closeWithContext(ctx context.Context, c Closeable) error {
	done := make(chan error, 1)
	go func() {
		done <- c.Close()
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
