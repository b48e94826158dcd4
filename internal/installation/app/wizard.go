package app

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/felixgeelhaar/statekit"

	rperrors "github.com/relicta-tech/installkit/internal/errors"
	"github.com/relicta-tech/installkit/internal/installation/domain"
	"github.com/relicta-tech/installkit/internal/installation/ports"
	"github.com/relicta-tech/installkit/internal/observability"
)

// Services holds the collaborators shared by wizards. Each wizard builds its
// own uploader and orchestrator from it, so re-entrancy guards are per wizard.
type Services struct {
	Releases    ports.ReleaseFetcher
	Uploader    ports.PackageUploader
	Installer   ports.PluginInstaller
	Tasks       ports.TaskStatusChecker
	Invalidator ports.Invalidator
	Catalog     ports.MarketplaceCatalog
	Resolver    *InstalledVersionResolver

	Logger  *slog.Logger
	Metrics *observability.Metrics

	PollInterval          time.Duration
	LegacyRejectedSuccess bool
	MaxConcurrentPolls    int
	// HostVersion enables the minimum host version warning when set.
	HostVersion string
}

func (s Services) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func (s Services) uploaderOptions() []UploaderOption {
	return []UploaderOption{
		WithLegacyRejectedSuccess(s.LegacyRejectedSuccess),
		WithUploadLogger(s.logger()),
		WithUploadMetrics(s.Metrics),
	}
}

func (s Services) newOrchestrator() *InstallOrchestrator {
	return NewInstallOrchestrator(s.Installer, s.Tasks,
		WithInvalidator(s.Invalidator),
		WithResolver(s.Resolver),
		WithPollerOptions(WithPollInterval(s.PollInterval)),
		WithOrchestratorLogger(s.logger()),
		WithOrchestratorMetrics(s.Metrics),
	)
}

func (s Services) newBundleInstaller() *BundleInstaller {
	return NewBundleInstaller(s.Installer, s.Tasks,
		WithMaxConcurrentPolls(s.MaxConcurrentPolls),
		WithBundleInvalidator(s.Invalidator),
		WithBundleResolver(s.Resolver),
		WithBundlePollerOptions(WithPollInterval(s.PollInterval)),
		WithBundleLogger(s.logger()),
		WithBundleMetrics(s.Metrics),
	)
}

// hostWarning returns a warning when the host is older than the manifest requires.
func (s Services) hostWarning(m *domain.PluginManifest) string {
	if m == nil || m.IsHostCompatible(s.HostVersion) {
		return ""
	}
	return "this plugin requires host version " + m.MinimumHostVersion + " or later"
}

// Listener is called with every new step.
type Listener func(domain.Step)

// wizard holds what every flow shares: the step machine, the current step
// and the install orchestrator.
type wizard struct {
	services     Services
	logger       *slog.Logger
	orchestrator *InstallOrchestrator

	mu        sync.Mutex
	machine   *domain.WizardMachine
	step      domain.Step
	listeners []Listener
	closed    bool
	// attempting is held from the ready check until the outcome step.
	attempting bool
}

func newWizard(services Services, flow domain.Flow, initial domain.Step) (*wizard, error) {
	machine, err := domain.NewWizardMachine(flow)
	if err != nil {
		return nil, rperrors.InternalWrap(err, "wizard.New", "failed to build wizard")
	}
	machine.Start()

	return &wizard{
		services:     services,
		logger:       services.logger().With("flow", string(flow)),
		orchestrator: services.newOrchestrator(),
		machine:      machine,
		step:         initial,
	}, nil
}

// Step returns the current step.
func (w *wizard) Step() domain.Step {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.step
}

// OnStep registers a listener for step changes. Listeners run while the
// wizard is locked and must not call back into it.
func (w *wizard) OnStep(l Listener) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.listeners = append(w.listeners, l)
}

// Closed reports whether Cancel was called.
func (w *wizard) Closed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

// transitionLocked moves to next when event is legal in the current step.
// Callers hold w.mu.
func (w *wizard) transitionLocked(event statekit.EventType, next domain.Step) bool {
	if w.closed || !w.machine.Send(event) {
		return false
	}
	w.setStepLocked(next)
	return true
}

// replaceLocked swaps the data of the current step without moving.
func (w *wizard) replaceLocked(next domain.Step) bool {
	if w.closed || next.ID() != w.step.ID() {
		return false
	}
	w.setStepLocked(next)
	return true
}

func (w *wizard) setStepLocked(next domain.Step) {
	w.step = next
	for _, l := range w.listeners {
		l(next)
	}
}

// IsInstalling reports whether an install attempt is in flight.
func (w *wizard) IsInstalling() bool {
	w.mu.Lock()
	attempting := w.attempting
	w.mu.Unlock()
	return attempting || w.orchestrator.IsInstalling()
}

// CanInstall reports whether Install would start an attempt.
func (w *wizard) CanInstall() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	st, ok := w.step.(domain.ReadyToInstallStep)
	return ok && !w.closed && !w.attempting && !st.Installing
}

// Title returns the heading for the current step.
func (w *wizard) Title() string {
	switch w.Step().ID() {
	case domain.StepInstalled:
		return "Installation successful"
	case domain.StepInstallFailed:
		return "Installation failed"
	case domain.StepUploadFailed:
		return "Upload failed"
	default:
		return "Install plugin"
	}
}

// Cancel stops a running task poller and closes the wizard. Later actions
// are ignored.
func (w *wizard) Cancel() {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	w.orchestrator.Cancel()
}

// beginInstall claims the wizard for one attempt and returns the ready
// step. It fails while another attempt holds the claim. Callers release it
// with endInstall.
func (w *wizard) beginInstall() (domain.ReadyToInstallStep, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	st, ok := w.step.(domain.ReadyToInstallStep)
	if !ok || w.closed || w.attempting || st.Installing {
		return domain.ReadyToInstallStep{}, false
	}
	w.attempting = true
	return st, true
}

func (w *wizard) endInstall() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.attempting = false
}

// stillReady reports whether the wizard is open and ready to install. Back
// or Cancel may move it while installed info is resolved.
func (w *wizard) stillReady() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.step.(domain.ReadyToInstallStep)
	return ok && !w.closed
}

// installedInfo resolves what is installed under the target's plugin id.
func (w *wizard) installedInfo(ctx context.Context, target domain.InstallTarget) (*domain.InstalledPluginInfo, error) {
	if w.services.Resolver == nil {
		return nil, nil
	}
	id := target.PluginID()
	infos, err := w.services.Resolver.Resolve(ctx, []string{id})
	if err != nil {
		return nil, rperrors.NetworkWrap(err, "wizard.installedInfo", "failed to check installed plugins")
	}
	return infos[id], nil
}

// install runs one attempt for the ready target and moves to its outcome step.
func (w *wizard) install(ctx context.Context, target domain.InstallTarget, installed *domain.InstalledPluginInfo, opts ...AttemptOption) AttemptOutcome {
	if !w.stillReady() {
		return AttemptOutcome{Status: AttemptIgnored}
	}
	manifest := target.Manifest()
	obs := &stepObserver{w: w}
	outcome := w.orchestrator.AttemptInstall(ctx, target, installed, append(opts, WithObserver(obs))...)

	w.mu.Lock()
	defer w.mu.Unlock()
	switch outcome.Status {
	case AttemptInstalled:
		w.transitionLocked(domain.EventInstalled, domain.InstalledStep{Manifest: manifest, NeedsRefresh: outcome.NeedsRefresh})
	case AttemptFailed:
		w.transitionLocked(domain.EventInstallFailed, domain.InstallFailedStep{Manifest: manifest, Message: outcome.Message})
	}
	return outcome
}

// failInstall moves to InstallFailed without an attempt.
func (w *wizard) failInstall(manifest *domain.PluginManifest, err error) AttemptOutcome {
	msg, ok := rperrors.UserMessage(err)
	if !ok {
		w.logger.Error("install failed", "error", rperrors.RedactError(err))
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.transitionLocked(domain.EventInstallFailed, domain.InstallFailedStep{Manifest: manifest, Message: msg})
	return AttemptOutcome{Status: AttemptFailed, Message: msg}
}

// stepObserver mirrors the installing flag into the ready step.
type stepObserver struct {
	NopObserver
	w *wizard
}

func (o *stepObserver) StartedInstalling() { o.setInstalling(true) }

func (o *stepObserver) InstallingChanged(installing bool) { o.setInstalling(installing) }

func (o *stepObserver) setInstalling(installing bool) {
	o.w.mu.Lock()
	defer o.w.mu.Unlock()
	if st, ok := o.w.step.(domain.ReadyToInstallStep); ok && st.Installing != installing {
		st.Installing = installing
		o.w.replaceLocked(st)
	}
}
