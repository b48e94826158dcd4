package sandbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	rperrors "github.com/relicta-tech/installkit/internal/errors"
	"github.com/relicta-tech/installkit/internal/installation/domain"
	"github.com/relicta-tech/installkit/internal/installation/ports"
)

// Compile-time checks.
var (
	_ ports.ReleaseFetcher        = (*Daemon)(nil)
	_ ports.MarketplaceCatalog    = (*Daemon)(nil)
	_ ports.PackageUploader       = (*Daemon)(nil)
	_ ports.PluginInstaller       = (*Daemon)(nil)
	_ ports.TaskStatusChecker     = (*Daemon)(nil)
	_ ports.InstalledPluginLister = (*Daemon)(nil)
	_ ports.Invalidator           = (*Daemon)(nil)
)

// Default task timing.
const (
	DefaultTaskLatency = 2 * time.Second
	DefaultTaskSteps   = 2
)

// Option configures a Daemon.
type Option func(*Daemon)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(d *Daemon) {
		if now != nil {
			d.now = now
		}
	}
}

// WithTaskLatency sets how long each task phase lasts. Zero completes
// installs synchronously.
func WithTaskLatency(latency time.Duration) Option {
	return func(d *Daemon) {
		if latency >= 0 {
			d.latency = latency
		}
	}
}

// WithTaskSteps sets the number of phases before a task finishes: one pending
// phase followed by running phases.
func WithTaskSteps(steps int) Option {
	return func(d *Daemon) {
		if steps > 0 {
			d.steps = steps
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Daemon) {
		if l != nil {
			d.logger = l
		}
	}
}

type storedPackage struct {
	manifest domain.PluginManifest
	fail     string
}

type taskPlugin struct {
	uid         string
	originalUID string
	manifest    domain.PluginManifest
	fail        string
}

type task struct {
	id        string
	created   time.Time
	plugins   []taskPlugin
	finalized bool
}

// Daemon is an in-memory plugin host.
type Daemon struct {
	catalog *Catalog
	now     func() time.Time
	latency time.Duration
	steps   int
	logger  *slog.Logger

	mu        sync.Mutex
	packages  map[string]storedPackage
	tasks     map[string]*task
	installed map[string]domain.InstalledPluginInfo

	taskInvalidations   int
	pluginInvalidations int
}

// NewDaemon creates a daemon serving catalog. A nil catalog serves
// DefaultCatalog.
func NewDaemon(catalog *Catalog, opts ...Option) *Daemon {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	d := &Daemon{
		catalog:   catalog,
		now:       time.Now,
		latency:   DefaultTaskLatency,
		steps:     DefaultTaskSteps,
		logger:    slog.Default(),
		packages:  make(map[string]storedPackage),
		tasks:     make(map[string]*task),
		installed: make(map[string]domain.InstalledPluginInfo),
	}
	for _, opt := range opts {
		opt(d)
	}
	for _, uid := range catalog.Installed {
		id := domain.PluginIDFromUniqueIdentifier(uid)
		d.installed[id] = domain.InstalledPluginInfo{
			InstalledID:      uuid.NewString(),
			InstalledVersion: versionFromUniqueIdentifier(uid),
			UniqueIdentifier: uid,
		}
	}
	return d
}

// FetchReleases returns the catalog releases of owner/repo.
func (d *Daemon) FetchReleases(ctx context.Context, owner, repo string) ([]domain.GitHubRelease, error) {
	const op = "sandbox.FetchReleases"
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r, ok := d.catalog.repository(owner + "/" + repo)
	if !ok {
		return nil, rperrors.NotFound(op, fmt.Sprintf("repository %s/%s not found", owner, repo))
	}
	releases := make([]domain.GitHubRelease, 0, len(r.Releases))
	for _, rel := range r.Releases {
		gr := domain.GitHubRelease{Tag: rel.Tag, Assets: make([]domain.ReleaseAsset, 0, len(rel.Assets))}
		for _, a := range rel.Assets {
			gr.Assets = append(gr.Assets, domain.ReleaseAsset{
				Name:        a.Name,
				DownloadURL: fmt.Sprintf("https://github.com/%s/releases/download/%s/%s", r.Repo, rel.Tag, a.Name),
			})
		}
		releases = append(releases, gr)
	}
	return releases, nil
}

// LookupMarketplace returns the manifest of a marketplace entry.
func (d *Daemon) LookupMarketplace(ctx context.Context, uniqueIdentifier string) (*domain.PluginManifest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e, ok := d.catalog.marketplaceEntry(uniqueIdentifier)
	if !ok {
		return nil, rperrors.NotFound("sandbox.LookupMarketplace", "marketplace plugin not found")
	}
	m := e.Manifest
	return &m, nil
}

// UploadFromGitHub registers a release asset as an uploaded package.
func (d *Daemon) UploadFromGitHub(ctx context.Context, repo, tag, asset string) (ports.UploadResponse, error) {
	if err := ctx.Err(); err != nil {
		return ports.UploadResponse{}, err
	}
	a, ok := d.catalog.asset(repo, tag, asset)
	if !ok {
		resp := ports.UploadResponse{Message: fmt.Sprintf("asset %s not found in %s@%s", asset, repo, tag)}
		return resp, &ports.RejectedUploadError{Response: resp, Cause: errors.New("status 404")}
	}
	if a.Reject != "" {
		resp := ports.UploadResponse{Message: a.Reject}
		return resp, &ports.RejectedUploadError{Response: resp, Cause: errors.New("status 400")}
	}

	uid := AssetUniqueIdentifier(repo, tag, *a)
	d.store(uid, a.Manifest, a.Fail)
	m := a.Manifest
	d.logger.Debug("uploaded release asset", "repository", repo, "tag", tag, "asset", asset, "unique_identifier", uid)
	return ports.UploadResponse{UniqueIdentifier: uid, Manifest: &m}, nil
}

// UploadPackage parses and registers a package archive.
func (d *Daemon) UploadPackage(ctx context.Context, name string, r io.Reader) (ports.UploadResponse, error) {
	if err := ctx.Err(); err != nil {
		return ports.UploadResponse{}, err
	}
	pkg, err := ReadPackage(r)
	if err != nil {
		resp := ports.UploadResponse{Message: fmt.Sprintf("invalid package %s: %v", name, err)}
		return resp, &ports.RejectedUploadError{Response: resp, Cause: err}
	}
	d.store(pkg.UniqueIdentifier, pkg.Manifest, "")
	m := pkg.Manifest
	d.logger.Debug("uploaded package", "file", name, "unique_identifier", pkg.UniqueIdentifier)
	return ports.UploadResponse{UniqueIdentifier: pkg.UniqueIdentifier, Manifest: &m}, nil
}

// UploadBundle parses a bundle and registers its packages. GitHub members are
// resolved against the catalog so their identifiers are known.
func (d *Daemon) UploadBundle(ctx context.Context, name string, r io.Reader) (ports.UploadResponse, error) {
	if err := ctx.Err(); err != nil {
		return ports.UploadResponse{}, err
	}
	reject := func(err error) (ports.UploadResponse, error) {
		resp := ports.UploadResponse{Message: fmt.Sprintf("invalid bundle %s: %v", name, err)}
		return resp, &ports.RejectedUploadError{Response: resp, Cause: err}
	}

	b, err := ReadBundle(r)
	if err != nil {
		return reject(err)
	}
	deps := make([]domain.Dependency, 0, len(b.Dependencies))
	for _, dep := range b.Dependencies {
		switch dep.Type {
		case domain.DependencyGitHub:
			gh := *dep.GitHub
			a, ok := d.catalog.asset(gh.Repo, gh.Release, gh.Package)
			if !ok {
				return reject(fmt.Errorf("release asset %s not found", dep.Name()))
			}
			gh.UniqueIdentifier = AssetUniqueIdentifier(gh.Repo, gh.Release, *a)
			d.store(gh.UniqueIdentifier, a.Manifest, a.Fail)
			dep.GitHub = &gh
		case domain.DependencyPackage:
			if pkg, ok := b.Packages[dep.Package.UniqueIdentifier]; ok {
				d.store(pkg.UniqueIdentifier, pkg.Manifest, "")
			}
		}
		deps = append(deps, dep)
	}
	d.logger.Debug("uploaded bundle", "file", name, "dependencies", len(deps))
	return ports.UploadResponse{Dependencies: deps}, nil
}

func (d *Daemon) store(uid string, m domain.PluginManifest, fail string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.packages[uid] = storedPackage{manifest: m, fail: fail}
}

// lookupLocked finds an uploaded or marketplace package.
func (d *Daemon) lookupLocked(uid string) (storedPackage, bool) {
	if p, ok := d.packages[uid]; ok {
		return p, true
	}
	if e, ok := d.catalog.marketplaceEntry(uid); ok {
		return storedPackage{manifest: e.Manifest, fail: e.Fail}, true
	}
	return storedPackage{}, false
}

// InstallFromSource starts an install task for target.
func (d *Daemon) InstallFromSource(ctx context.Context, target domain.InstallTarget) (domain.InstallResult, error) {
	const op = "sandbox.InstallFromSource"
	if err := ctx.Err(); err != nil {
		return domain.InstallResult{}, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.settleLocked()

	pkg, ok := d.lookupLocked(target.UniqueIdentifier())
	if !ok {
		return domain.InstallResult{}, rperrors.Install(op, "plugin package not found, upload it first")
	}
	if _, exists := d.installed[pkg.manifest.PluginID()]; exists {
		return domain.InstallResult{}, rperrors.Install(op, "plugin already installed")
	}
	return d.startLocked(taskPlugin{uid: target.UniqueIdentifier(), manifest: pkg.manifest, fail: pkg.fail}), nil
}

// UpdateFromSource starts a task replacing originalUID with target.
func (d *Daemon) UpdateFromSource(ctx context.Context, originalUID string, target domain.InstallTarget) (domain.InstallResult, error) {
	const op = "sandbox.UpdateFromSource"
	if err := ctx.Err(); err != nil {
		return domain.InstallResult{}, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.settleLocked()

	if _, ok := d.installedByUIDLocked(originalUID); !ok {
		return domain.InstallResult{}, rperrors.Install(op, "original plugin is not installed")
	}
	pkg, ok := d.lookupLocked(target.UniqueIdentifier())
	if !ok {
		return domain.InstallResult{}, rperrors.Install(op, "plugin package not found, upload it first")
	}
	return d.startLocked(taskPlugin{
		uid:         target.UniqueIdentifier(),
		originalUID: originalUID,
		manifest:    pkg.manifest,
		fail:        pkg.fail,
	}), nil
}

// Uninstall removes an installation. It reports false for unknown ids.
func (d *Daemon) Uninstall(ctx context.Context, installedID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.settleLocked()

	for id, info := range d.installed {
		if info.InstalledID == installedID {
			delete(d.installed, id)
			d.logger.Debug("uninstalled plugin", "plugin_id", id, "installed_id", installedID)
			return true, nil
		}
	}
	return false, nil
}

// InstallOrUpdateBundle submits every dependency in one task. Members that
// are already installed at the same identifier succeed immediately; unknown
// packages fail immediately.
func (d *Daemon) InstallOrUpdateBundle(ctx context.Context, deps []domain.Dependency) ([]ports.BundleEntryStatus, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.settleLocked()

	statuses := make([]ports.BundleEntryStatus, len(deps))
	var plugins []taskPlugin
	var running []int
	for i, dep := range deps {
		uid := dep.UniqueIdentifier()
		statuses[i].UniqueIdentifier = uid
		if info, ok := d.installed[dep.PluginID()]; ok && info.UniqueIdentifier == uid {
			statuses[i].Status = domain.TaskSuccess
			continue
		}
		pkg, ok := d.lookupLocked(uid)
		if !ok {
			statuses[i].Status = domain.TaskFailed
			statuses[i].Message = fmt.Sprintf("package %s not found", dep.Name())
			continue
		}
		tp := taskPlugin{uid: uid, manifest: pkg.manifest, fail: pkg.fail}
		if info, ok := d.installed[pkg.manifest.PluginID()]; ok {
			tp.originalUID = info.UniqueIdentifier
		}
		plugins = append(plugins, tp)
		running = append(running, i)
	}
	if len(plugins) == 0 {
		return statuses, nil
	}

	t := d.newTaskLocked(plugins...)
	snap := d.snapshotLocked(t)
	for n, i := range running {
		e := snap.Plugins[n]
		statuses[i].Status = e.Status
		statuses[i].Message = e.Message
		if !e.Status.IsTerminal() {
			statuses[i].TaskID = t.id
		}
	}
	return statuses, nil
}

// CheckTask returns the current state of a task.
func (d *Daemon) CheckTask(ctx context.Context, taskID string) (domain.TaskSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return domain.TaskSnapshot{}, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.tasks[taskID]
	if !ok {
		return domain.TaskSnapshot{}, rperrors.NotFound("sandbox.CheckTask", "install task not found")
	}
	return d.snapshotLocked(t), nil
}

// ListInstalled returns installed info for the requested plugin ids.
func (d *Daemon) ListInstalled(ctx context.Context, pluginIDs []string) (map[string]domain.InstalledPluginInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.settleLocked()

	out := make(map[string]domain.InstalledPluginInfo, len(pluginIDs))
	for _, id := range pluginIDs {
		if info, ok := d.installed[id]; ok {
			out[id] = info
		}
	}
	return out, nil
}

// Installed returns every installation ordered by plugin id.
func (d *Daemon) Installed() []domain.InstalledPluginInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.settleLocked()

	ids := make([]string, 0, len(d.installed))
	for id := range d.installed {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]domain.InstalledPluginInfo, 0, len(ids))
	for _, id := range ids {
		out = append(out, d.installed[id])
	}
	return out
}

// InvalidateTaskList records a task list refresh.
func (d *Daemon) InvalidateTaskList(context.Context) error {
	d.mu.Lock()
	d.taskInvalidations++
	d.mu.Unlock()
	d.logger.Debug("task list invalidated")
	return nil
}

// InvalidatePluginList records a plugin list refresh.
func (d *Daemon) InvalidatePluginList(context.Context) error {
	d.mu.Lock()
	d.pluginInvalidations++
	d.mu.Unlock()
	d.logger.Debug("plugin list invalidated")
	return nil
}

// Invalidations returns how often each list was refreshed.
func (d *Daemon) Invalidations() (tasks, plugins int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.taskInvalidations, d.pluginInvalidations
}

// startLocked creates a task for a single plugin. With no latency the task
// finishes immediately and successful installs report AllInstalled.
func (d *Daemon) startLocked(p taskPlugin) domain.InstallResult {
	t := d.newTaskLocked(p)
	snap := d.snapshotLocked(t)
	if snap.Status == domain.TaskSuccess {
		return domain.InstallResult{AllInstalled: true}
	}
	return domain.InstallResult{TaskID: t.id}
}

func (d *Daemon) newTaskLocked(plugins ...taskPlugin) *task {
	t := &task{id: uuid.NewString(), created: d.now(), plugins: plugins}
	d.tasks[t.id] = t
	d.logger.Debug("install task created", "task_id", t.id, "plugins", len(plugins))
	return t
}

// phase returns 0 while pending, 1..steps-1 while running and steps once
// finished.
func (d *Daemon) phase(t *task) int {
	if d.latency <= 0 {
		return d.steps
	}
	n := int(d.now().Sub(t.created) / d.latency)
	if n > d.steps {
		n = d.steps
	}
	return n
}

// snapshotLocked computes the task state and applies finished installs.
func (d *Daemon) snapshotLocked(t *task) domain.TaskSnapshot {
	phase := d.phase(t)
	snap := domain.TaskSnapshot{ID: t.id, Plugins: make([]domain.TaskPluginEntry, 0, len(t.plugins))}

	var status domain.TaskStatus
	switch {
	case phase == 0:
		status = domain.TaskPending
	case phase < d.steps:
		status = domain.TaskRunning
	}

	failed := false
	for _, p := range t.plugins {
		e := domain.TaskPluginEntry{
			PluginUniqueIdentifier: p.uid,
			PluginID:               p.manifest.PluginID(),
			Status:                 status,
		}
		if status == "" {
			e.Status = domain.TaskSuccess
			if p.fail != "" {
				e.Status = domain.TaskFailed
				e.Message = p.fail
				failed = true
			}
		}
		snap.Plugins = append(snap.Plugins, e)
	}

	switch {
	case status != "":
		snap.Status = status
	case failed:
		snap.Status = domain.TaskFailed
	default:
		snap.Status = domain.TaskSuccess
	}

	if snap.Status.IsTerminal() && !t.finalized {
		d.finalizeLocked(t)
	}
	return snap
}

func (d *Daemon) finalizeLocked(t *task) {
	t.finalized = true
	for _, p := range t.plugins {
		if p.fail != "" {
			continue
		}
		if p.originalUID != "" {
			if id, ok := d.installedByUIDLocked(p.originalUID); ok {
				delete(d.installed, id)
			}
		}
		d.installed[p.manifest.PluginID()] = domain.InstalledPluginInfo{
			InstalledID:      uuid.NewString(),
			InstalledVersion: p.manifest.Version,
			UniqueIdentifier: p.uid,
		}
		d.logger.Debug("plugin installed", "plugin_id", p.manifest.PluginID(), "unique_identifier", p.uid, "task_id", t.id)
	}
}

// settleLocked finalizes every task that has finished by now.
func (d *Daemon) settleLocked() {
	var due []*task
	for _, t := range d.tasks {
		if !t.finalized && d.phase(t) >= d.steps {
			due = append(due, t)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].created.Before(due[j].created) })
	for _, t := range due {
		d.snapshotLocked(t)
	}
}

func (d *Daemon) installedByUIDLocked(uid string) (string, bool) {
	for id, info := range d.installed {
		if info.UniqueIdentifier == uid {
			return id, true
		}
	}
	return "", false
}

// versionFromUniqueIdentifier extracts the version of author/name:version@checksum.
func versionFromUniqueIdentifier(uid string) string {
	_, rest, ok := strings.Cut(uid, ":")
	if !ok {
		return ""
	}
	v, _, _ := strings.Cut(rest, "@")
	return v
}
