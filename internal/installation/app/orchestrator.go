package app

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	rperrors "github.com/relicta-tech/installkit/internal/errors"
	"github.com/relicta-tech/installkit/internal/installation/domain"
	"github.com/relicta-tech/installkit/internal/installation/ports"
	"github.com/relicta-tech/installkit/internal/observability"
)

// AttemptStatus is the outcome of an install attempt.
type AttemptStatus string

// Attempt outcomes.
const (
	AttemptInstalled AttemptStatus = "installed"
	AttemptFailed    AttemptStatus = "failed"
	// AttemptIgnored is returned when another attempt was already in flight.
	AttemptIgnored AttemptStatus = "ignored"
	// AttemptCanceled is returned when Cancel stopped the attempt while it
	// was waiting for its task.
	AttemptCanceled AttemptStatus = "canceled"
)

// AttemptOutcome describes how an install attempt ended.
type AttemptOutcome struct {
	Status AttemptStatus `json:"status"`
	// NeedsRefresh is set when the install completed through a task.
	NeedsRefresh bool   `json:"needs_refresh"`
	Message      string `json:"message,omitempty"`
	TaskID       string `json:"task_id,omitempty"`
}

// InstallObserver is notified as an attempt progresses, in this order:
// StartedInstalling, then Installed or Failed, then InstallingChanged(false).
// An already-installed target only produces Installed; a canceled attempt
// skips the outcome notification.
type InstallObserver interface {
	StartedInstalling()
	Installed(needsRefresh bool)
	Failed(message string)
	InstallingChanged(installing bool)
}

// NopObserver ignores every notification.
type NopObserver struct{}

func (NopObserver) StartedInstalling()     {}
func (NopObserver) Installed(bool)         {}
func (NopObserver) Failed(string)          {}
func (NopObserver) InstallingChanged(bool) {}

// AttemptOption configures one install attempt.
type AttemptOption func(*attemptConfig)

type attemptConfig struct {
	refresh  bool
	observer InstallObserver
}

// WithoutRefresh skips the plugin list refresh after a successful install.
func WithoutRefresh() AttemptOption {
	return func(c *attemptConfig) {
		c.refresh = false
	}
}

// WithObserver sets the observer of the attempt.
func WithObserver(o InstallObserver) AttemptOption {
	return func(c *attemptConfig) {
		if o != nil {
			c.observer = o
		}
	}
}

func newAttemptConfig(opts []AttemptOption) attemptConfig {
	c := attemptConfig{refresh: true, observer: NopObserver{}}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// OrchestratorOption configures an InstallOrchestrator.
type OrchestratorOption func(*InstallOrchestrator)

// WithInvalidator sets the host cache invalidator.
func WithInvalidator(inv ports.Invalidator) OrchestratorOption {
	return func(o *InstallOrchestrator) {
		if inv != nil {
			o.invalidator = inv
		}
	}
}

// WithResolver sets the installed info cache to invalidate after installs.
func WithResolver(r *InstalledVersionResolver) OrchestratorOption {
	return func(o *InstallOrchestrator) {
		o.resolver = r
	}
}

// WithPollerOptions sets the options of the task pollers the orchestrator creates.
func WithPollerOptions(opts ...PollerOption) OrchestratorOption {
	return func(o *InstallOrchestrator) {
		o.pollerOpts = append(o.pollerOpts, opts...)
	}
}

// WithOrchestratorLogger sets the logger.
func WithOrchestratorLogger(l *slog.Logger) OrchestratorOption {
	return func(o *InstallOrchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithOrchestratorMetrics sets the metrics sink.
func WithOrchestratorMetrics(m *observability.Metrics) OrchestratorOption {
	return func(o *InstallOrchestrator) {
		o.metrics = m
	}
}

// InstallOrchestrator runs install and update attempts for one wizard. At
// most one attempt is in flight at a time.
type InstallOrchestrator struct {
	installer   ports.PluginInstaller
	tasks       ports.TaskStatusChecker
	invalidator ports.Invalidator
	resolver    *InstalledVersionResolver
	pollerOpts  []PollerOption
	logger      *slog.Logger
	metrics     *observability.Metrics

	installing atomic.Bool

	mu       sync.Mutex
	poller   *TaskStatusPoller
	canceled bool
}

// NewInstallOrchestrator creates an orchestrator.
func NewInstallOrchestrator(installer ports.PluginInstaller, tasks ports.TaskStatusChecker, opts ...OrchestratorOption) *InstallOrchestrator {
	o := &InstallOrchestrator{
		installer:   installer,
		tasks:       tasks,
		invalidator: ports.NopInvalidator{},
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// IsInstalling reports whether an attempt is in flight.
func (o *InstallOrchestrator) IsInstalling() bool {
	return o.installing.Load()
}

// AttemptInstall installs target, or updates the copy described by installed.
//
// A target whose identifier is already installed completes immediately
// without calling the installer. A call made while another attempt is in
// flight is ignored. Local packages and bundles replace an installed copy by
// uninstalling it first; other sources use the update operation. Installs
// that return a task are polled to completion.
func (o *InstallOrchestrator) AttemptInstall(ctx context.Context, target domain.InstallTarget, installed *domain.InstalledPluginInfo, opts ...AttemptOption) AttemptOutcome {
	cfg := newAttemptConfig(opts)
	source := string(target.Source())

	if installed != nil && installed.UniqueIdentifier == target.UniqueIdentifier() {
		o.logger.Debug("plugin already installed", "unique_identifier", target.UniqueIdentifier())
		cfg.observer.Installed(false)
		o.metrics.RecordInstallAttempt(source, observability.OutcomeInstalled, 0)
		return AttemptOutcome{Status: AttemptInstalled}
	}

	if !o.installing.CompareAndSwap(false, true) {
		o.metrics.RecordInstallAttempt(source, observability.OutcomeIgnored, 0)
		return AttemptOutcome{Status: AttemptIgnored}
	}

	start := time.Now()
	o.metrics.IncActiveInstalls()
	defer func() {
		o.metrics.DecActiveInstalls()
		// Cancel checks installing under mu, so a Cancel that arrives
		// after the claim is kept until the attempt ends.
		o.mu.Lock()
		o.canceled = false
		o.installing.Store(false)
		o.mu.Unlock()
		cfg.observer.InstallingChanged(false)
	}()

	ctx, span := observability.StartSpan(ctx, "install.attempt",
		observability.AttrSource, source,
		observability.AttrUniqueIdentifier, target.UniqueIdentifier(),
	)
	defer span.End()

	cfg.observer.StartedInstalling()
	outcome := o.run(ctx, target, installed, cfg)

	span.SetAttribute(observability.AttrOutcome, string(outcome.Status))
	o.metrics.RecordInstallAttempt(source, string(outcome.Status), time.Since(start))
	return outcome
}

func (o *InstallOrchestrator) run(ctx context.Context, target domain.InstallTarget, installed *domain.InstalledPluginInfo, cfg attemptConfig) AttemptOutcome {
	result, err := o.submit(ctx, target, installed)
	if err != nil {
		return o.fail(cfg, err, "")
	}

	if result.AllInstalled {
		o.succeeded(ctx, target, cfg)
		cfg.observer.Installed(false)
		return AttemptOutcome{Status: AttemptInstalled}
	}

	if err := o.invalidator.InvalidateTaskList(ctx); err != nil {
		o.logger.Warn("failed to refresh task list", "error", err)
	}

	poller := NewTaskStatusPoller(o.tasks, append([]PollerOption{
		WithPollerLogger(o.logger),
		WithPollerMetrics(o.metrics),
	}, o.pollerOpts...)...)
	if !o.setPoller(poller) {
		return AttemptOutcome{Status: AttemptCanceled, TaskID: result.TaskID}
	}
	res, err := poller.Check(ctx, result.TaskID, target.UniqueIdentifier())
	canceled := o.clearPoller()

	switch {
	case canceled:
		o.logger.Info("install canceled", "task_id", result.TaskID)
		return AttemptOutcome{Status: AttemptCanceled, TaskID: result.TaskID}
	case err != nil:
		return o.fail(cfg, err, result.TaskID)
	case res.Status == domain.TaskFailed:
		cfg.observer.Failed(res.Message)
		return AttemptOutcome{Status: AttemptFailed, Message: res.Message, TaskID: result.TaskID}
	}

	o.succeeded(ctx, target, cfg)
	cfg.observer.Installed(true)
	return AttemptOutcome{Status: AttemptInstalled, NeedsRefresh: true, TaskID: result.TaskID}
}

func (o *InstallOrchestrator) submit(ctx context.Context, target domain.InstallTarget, installed *domain.InstalledPluginInfo) (domain.InstallResult, error) {
	const op = "orchestrator.submit"

	if installed == nil {
		return o.installer.InstallFromSource(ctx, target)
	}

	if target.Source().IsLocal() {
		ok, err := o.installer.Uninstall(ctx, installed.InstalledID)
		if err != nil {
			return domain.InstallResult{}, err
		}
		if !ok {
			return domain.InstallResult{}, rperrors.Install(op, MessageUninstallFailed).
				WithDetail("installed_id", installed.InstalledID)
		}
		return o.installer.InstallFromSource(ctx, target)
	}

	return o.installer.UpdateFromSource(ctx, installed.UniqueIdentifier, target)
}

// fail reports err. Only errors carrying a user-facing message produce one;
// anything else is logged and reported without a message.
func (o *InstallOrchestrator) fail(cfg attemptConfig, err error, taskID string) AttemptOutcome {
	msg, ok := rperrors.UserMessage(err)
	if !ok {
		o.logger.Error("install attempt failed", "task_id", taskID, "error", rperrors.RedactError(err))
	} else {
		o.logger.Warn("install attempt failed", "task_id", taskID, "message", msg)
	}
	cfg.observer.Failed(msg)
	return AttemptOutcome{Status: AttemptFailed, Message: msg, TaskID: taskID}
}

func (o *InstallOrchestrator) succeeded(ctx context.Context, target domain.InstallTarget, cfg attemptConfig) {
	if o.resolver != nil {
		o.resolver.Invalidate(target.PluginID())
	}
	if !cfg.refresh {
		return
	}
	if err := o.invalidator.InvalidatePluginList(ctx); err != nil {
		o.logger.Warn("failed to refresh plugin list", "error", err)
	}
}

// setPoller registers the active poller. It returns false when Cancel was
// called before polling started.
func (o *InstallOrchestrator) setPoller(p *TaskStatusPoller) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.canceled {
		return false
	}
	o.poller = p
	return true
}

func (o *InstallOrchestrator) clearPoller() (canceled bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.poller = nil
	return o.canceled
}

// Cancel stops the task poller of the in-flight attempt, if any. The
// attempt then ends with AttemptCanceled.
func (o *InstallOrchestrator) Cancel() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.installing.Load() {
		return
	}
	o.canceled = true
	if o.poller != nil {
		o.poller.Stop()
	}
}
