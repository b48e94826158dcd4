package adapters

import (
	"context"
	"log/slog"

	rperrors "github.com/relicta-tech/installkit/internal/errors"
	"github.com/relicta-tech/installkit/internal/installation/domain"
	"github.com/relicta-tech/installkit/internal/installation/ports"
	"github.com/relicta-tech/installkit/internal/observability"
)

// ResilientReleaseFetcher guards a ReleaseFetcher with rate limiting, a
// circuit breaker and retries. Only release lookups go through it; uploads
// and installs are never retried.
type ResilientReleaseFetcher struct {
	next    ports.ReleaseFetcher
	res     *resilience[[]domain.GitHubRelease]
	logger  *slog.Logger
	metrics *observability.Metrics
}

// FetcherOption configures a ResilientReleaseFetcher.
type FetcherOption func(*ResilientReleaseFetcher)

// WithFetcherLogger sets the logger.
func WithFetcherLogger(l *slog.Logger) FetcherOption {
	return func(f *ResilientReleaseFetcher) {
		if l != nil {
			f.logger = l
		}
	}
}

// WithFetcherMetrics sets the metrics sink.
func WithFetcherMetrics(m *observability.Metrics) FetcherOption {
	return func(f *ResilientReleaseFetcher) {
		f.metrics = m
	}
}

// NewResilientReleaseFetcher wraps next.
func NewResilientReleaseFetcher(next ports.ReleaseFetcher, cfg ResilienceConfig, opts ...FetcherOption) *ResilientReleaseFetcher {
	f := &ResilientReleaseFetcher{
		next:   next,
		res:    newResilience[[]domain.GitHubRelease]("github-releases", cfg),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FetchReleases implements ports.ReleaseFetcher.
func (f *ResilientReleaseFetcher) FetchReleases(ctx context.Context, owner, repo string) ([]domain.GitHubRelease, error) {
	ctx, span := observability.StartSpan(ctx, "releases.fetch",
		observability.AttrRepository, owner+"/"+repo,
	)
	defer span.End()

	attempt := 0
	releases, err := f.res.execute(ctx, func(ctx context.Context) ([]domain.GitHubRelease, error) {
		attempt++
		if attempt > 1 {
			f.logger.Debug("retrying release fetch", "repo", owner+"/"+repo, "attempt", attempt)
		}
		return f.next.FetchReleases(ctx, owner, repo)
	})
	f.metrics.RecordReleaseFetch(err == nil)
	if err != nil {
		span.RecordError(err)
		f.logger.Warn("release fetch failed",
			"repo", owner+"/"+repo,
			"attempts", attempt,
			"circuit", f.res.circuitState(),
			"error", rperrors.RedactError(err),
		)
		return nil, err
	}
	span.SetAttribute("releases.count", len(releases))
	return releases, nil
}

// CircuitState reports the circuit breaker state.
func (f *ResilientReleaseFetcher) CircuitState() string {
	return f.res.circuitState()
}

// Close releases the rate limiter.
func (f *ResilientReleaseFetcher) Close() error {
	return f.res.close()
}
