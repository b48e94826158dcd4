package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	rperrors "github.com/relicta-tech/installkit/internal/errors"
	"github.com/relicta-tech/installkit/internal/installation/domain"
	"github.com/relicta-tech/installkit/internal/installation/ports"
	"github.com/relicta-tech/installkit/internal/observability"
)

// DefaultMaxConcurrentPolls bounds how many bundle tasks are polled at once.
const DefaultMaxConcurrentPolls = 4

// BundleOutcome is the result of installing a bundle.
type BundleOutcome struct {
	Status       AttemptStatus             `json:"status"`
	Items        []domain.BundleItemResult `json:"items"`
	NeedsRefresh bool                      `json:"needs_refresh"`
	Message      string                    `json:"message,omitempty"`
}

// Failed returns the number of members that failed.
func (o BundleOutcome) Failed() int {
	n := 0
	for _, it := range o.Items {
		if it.Status == domain.TaskFailed {
			n++
		}
	}
	return n
}

// BundleInstaller installs every member of a bundle and follows their tasks.
type BundleInstaller struct {
	installer     ports.PluginInstaller
	tasks         ports.TaskStatusChecker
	invalidator   ports.Invalidator
	resolver      *InstalledVersionResolver
	pollerOpts    []PollerOption
	maxConcurrent int64
	logger        *slog.Logger
	metrics       *observability.Metrics

	installing atomic.Bool

	mu       sync.Mutex
	pollers  []*TaskStatusPoller
	canceled bool
}

// BundleOption configures a BundleInstaller.
type BundleOption func(*BundleInstaller)

// WithMaxConcurrentPolls bounds concurrent task polling.
func WithMaxConcurrentPolls(n int) BundleOption {
	return func(b *BundleInstaller) {
		if n > 0 {
			b.maxConcurrent = int64(n)
		}
	}
}

// WithBundleInvalidator sets the host cache invalidator.
func WithBundleInvalidator(inv ports.Invalidator) BundleOption {
	return func(b *BundleInstaller) {
		if inv != nil {
			b.invalidator = inv
		}
	}
}

// WithBundleResolver sets the installed info cache to invalidate.
func WithBundleResolver(r *InstalledVersionResolver) BundleOption {
	return func(b *BundleInstaller) {
		b.resolver = r
	}
}

// WithBundlePollerOptions sets the options of the task pollers.
func WithBundlePollerOptions(opts ...PollerOption) BundleOption {
	return func(b *BundleInstaller) {
		b.pollerOpts = append(b.pollerOpts, opts...)
	}
}

// WithBundleLogger sets the logger.
func WithBundleLogger(l *slog.Logger) BundleOption {
	return func(b *BundleInstaller) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithBundleMetrics sets the metrics sink.
func WithBundleMetrics(m *observability.Metrics) BundleOption {
	return func(b *BundleInstaller) {
		b.metrics = m
	}
}

// NewBundleInstaller creates a bundle installer.
func NewBundleInstaller(installer ports.PluginInstaller, tasks ports.TaskStatusChecker, opts ...BundleOption) *BundleInstaller {
	b := &BundleInstaller{
		installer:     installer,
		tasks:         tasks,
		invalidator:   ports.NopInvalidator{},
		maxConcurrent: DefaultMaxConcurrentPolls,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// IsInstalling reports whether a bundle install is in flight.
func (b *BundleInstaller) IsInstalling() bool {
	return b.installing.Load()
}

// Install submits deps and waits for every running member. Members whose
// identifier is already installed are skipped. The plugin list is refreshed
// only when at least one member was installed.
func (b *BundleInstaller) Install(ctx context.Context, deps []domain.Dependency, installed map[string]*domain.InstalledPluginInfo, opts ...AttemptOption) BundleOutcome {
	const op = "bundle.Install"
	cfg := newAttemptConfig(opts)

	if !b.installing.CompareAndSwap(false, true) {
		b.metrics.RecordInstallAttempt(string(domain.SourceBundle), observability.OutcomeIgnored, 0)
		return BundleOutcome{Status: AttemptIgnored}
	}

	start := time.Now()
	defer func() {
		b.mu.Lock()
		b.canceled = false
		b.pollers = nil
		b.installing.Store(false)
		b.mu.Unlock()
		cfg.observer.InstallingChanged(false)
	}()
	cfg.observer.StartedInstalling()

	items := make([]domain.BundleItemResult, len(deps))
	var pending []domain.Dependency
	var pendingIdx []int
	for i, dep := range deps {
		items[i] = domain.BundleItemResult{Dependency: dep, UniqueIdentifier: dep.UniqueIdentifier()}
		if info := installed[dep.PluginID()]; info != nil && dep.UniqueIdentifier() != "" && info.UniqueIdentifier == dep.UniqueIdentifier() {
			items[i].Status = domain.TaskSuccess
			items[i].Skipped = true
			continue
		}
		pending = append(pending, dep)
		pendingIdx = append(pendingIdx, i)
	}

	if len(pending) > 0 {
		statuses, err := b.installer.InstallOrUpdateBundle(ctx, pending)
		if err == nil && len(statuses) != len(pending) {
			err = rperrors.Install(op, fmt.Sprintf("expected %d results, got %d", len(pending), len(statuses)))
		}
		if err != nil {
			msg, ok := rperrors.UserMessage(err)
			if !ok {
				b.logger.Error("bundle install failed", "error", rperrors.RedactError(err))
			}
			for _, i := range pendingIdx {
				items[i].Status = domain.TaskFailed
				items[i].Message = msg
			}
			return b.finish(ctx, cfg, items, start)
		}

		if err := b.invalidator.InvalidateTaskList(ctx); err != nil {
			b.logger.Warn("failed to refresh task list", "error", err)
		}
		if canceled := b.await(ctx, statuses, pendingIdx, items); canceled {
			b.metrics.RecordInstallAttempt(string(domain.SourceBundle), string(AttemptCanceled), time.Since(start))
			return BundleOutcome{Status: AttemptCanceled, Items: items}
		}
	}

	return b.finish(ctx, cfg, items, start)
}

// await fills items from the backend statuses, polling running members
// concurrently.
func (b *BundleInstaller) await(ctx context.Context, statuses []ports.BundleEntryStatus, idx []int, items []domain.BundleItemResult) bool {
	sem := semaphore.NewWeighted(b.maxConcurrent)
	g, gctx := errgroup.WithContext(ctx)

	for n, st := range statuses {
		i := idx[n]
		if st.UniqueIdentifier != "" {
			items[i].UniqueIdentifier = st.UniqueIdentifier
		}
		if st.Status.IsTerminal() {
			items[i].Status = st.Status
			items[i].Message = st.Message
			continue
		}

		if err := sem.Acquire(gctx, 1); err != nil {
			items[i].Status = domain.TaskFailed
			continue
		}
		poller := b.newPoller()
		if poller == nil {
			sem.Release(1)
			break
		}

		g.Go(func() error {
			defer sem.Release(1)
			res, err := poller.Check(gctx, st.TaskID, items[i].UniqueIdentifier)
			if err != nil {
				msg, ok := rperrors.UserMessage(err)
				if !ok {
					b.logger.Error("bundle task polling failed", "task_id", st.TaskID, "error", rperrors.RedactError(err))
				}
				items[i].Status = domain.TaskFailed
				items[i].Message = msg
				return nil
			}
			items[i].Status = res.Status
			items[i].Message = res.Message
			return nil
		})
	}
	_ = g.Wait()

	b.mu.Lock()
	defer b.mu.Unlock()
	b.pollers = nil
	return b.canceled
}

func (b *BundleInstaller) newPoller() *TaskStatusPoller {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.canceled {
		return nil
	}
	p := NewTaskStatusPoller(b.tasks, append([]PollerOption{
		WithPollerLogger(b.logger),
		WithPollerMetrics(b.metrics),
	}, b.pollerOpts...)...)
	b.pollers = append(b.pollers, p)
	return p
}

func (b *BundleInstaller) finish(ctx context.Context, cfg attemptConfig, items []domain.BundleItemResult, start time.Time) BundleOutcome {
	out := BundleOutcome{Items: items}

	var installedIDs []string
	for _, it := range items {
		if it.Status == domain.TaskSuccess && !it.Skipped {
			installedIDs = append(installedIDs, it.Dependency.PluginID())
		}
	}

	if len(installedIDs) > 0 {
		out.NeedsRefresh = true
		if b.resolver != nil {
			b.resolver.Invalidate(installedIDs...)
		}
		if cfg.refresh {
			if err := b.invalidator.InvalidatePluginList(ctx); err != nil {
				b.logger.Warn("failed to refresh plugin list", "error", err)
			}
		}
	}

	if failed := out.Failed(); failed > 0 {
		out.Status = AttemptFailed
		out.Message = fmt.Sprintf("%d of %d plugins failed to install", failed, len(items))
		cfg.observer.Failed(out.Message)
	} else {
		out.Status = AttemptInstalled
		cfg.observer.Installed(out.NeedsRefresh)
	}

	b.metrics.RecordInstallAttempt(string(domain.SourceBundle), string(out.Status), time.Since(start))
	b.logger.Info("bundle install finished", "status", out.Status, "members", len(items), "installed", len(installedIDs))
	return out
}

// Cancel stops every poller of the in-flight bundle install.
func (b *BundleInstaller) Cancel() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.installing.Load() {
		return
	}
	b.canceled = true
	for _, p := range b.pollers {
		p.Stop()
	}
}
