package app

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/relicta-tech/installkit/internal/installation/domain"
	"github.com/relicta-tech/installkit/internal/installation/ports"
)

// fakeTasks replays a scripted list of snapshots, repeating the last one.
type fakeTasks struct {
	mu        sync.Mutex
	snapshots []domain.TaskSnapshot
	err       error
	calls     atomic.Int32
	// onCall runs after a fetch has been counted.
	onCall func(n int32)
}

func (f *fakeTasks) CheckTask(_ context.Context, taskID string) (domain.TaskSnapshot, error) {
	n := f.calls.Add(1)
	if f.onCall != nil {
		f.onCall(n)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return domain.TaskSnapshot{}, f.err
	}
	i := int(n) - 1
	if i >= len(f.snapshots) {
		i = len(f.snapshots) - 1
	}
	snap := f.snapshots[i]
	snap.ID = taskID
	return snap, nil
}

func entrySnapshot(uid string, status domain.TaskStatus, msg string) domain.TaskSnapshot {
	return domain.TaskSnapshot{Plugins: []domain.TaskPluginEntry{{PluginUniqueIdentifier: uid, Status: status, Message: msg}}}
}

type installCall struct {
	kind        string
	originalUID string
	uid         string
}

// fakeInstaller records every call.
type fakeInstaller struct {
	mu           sync.Mutex
	calls        []installCall
	result       domain.InstallResult
	err          error
	uninstallOK  bool
	uninstallErr error
	bundle       []ports.BundleEntryStatus
	bundleErr    error
	bundleDeps   []domain.Dependency
	// block, when set, is waited on before answering install, update and
	// bundle calls.
	block chan struct{}
}

func (f *fakeInstaller) record(c installCall) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
}

func (f *fakeInstaller) Calls() []installCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]installCall(nil), f.calls...)
}

func (f *fakeInstaller) InstallFromSource(_ context.Context, target domain.InstallTarget) (domain.InstallResult, error) {
	f.record(installCall{kind: "install", uid: target.UniqueIdentifier()})
	if f.block != nil {
		<-f.block
	}
	return f.result, f.err
}

func (f *fakeInstaller) UpdateFromSource(_ context.Context, originalUID string, target domain.InstallTarget) (domain.InstallResult, error) {
	f.record(installCall{kind: "update", originalUID: originalUID, uid: target.UniqueIdentifier()})
	if f.block != nil {
		<-f.block
	}
	return f.result, f.err
}

func (f *fakeInstaller) Uninstall(_ context.Context, installedID string) (bool, error) {
	f.record(installCall{kind: "uninstall", uid: installedID})
	return f.uninstallOK, f.uninstallErr
}

func (f *fakeInstaller) InstallOrUpdateBundle(_ context.Context, deps []domain.Dependency) ([]ports.BundleEntryStatus, error) {
	f.record(installCall{kind: "bundle"})
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	f.bundleDeps = deps
	f.mu.Unlock()
	return f.bundle, f.bundleErr
}

type fakeInvalidator struct {
	tasks   atomic.Int32
	plugins atomic.Int32
}

func (f *fakeInvalidator) InvalidateTaskList(context.Context) error {
	f.tasks.Add(1)
	return nil
}

func (f *fakeInvalidator) InvalidatePluginList(context.Context) error {
	f.plugins.Add(1)
	return nil
}

type fakeLister struct {
	mu        sync.Mutex
	installed map[string]domain.InstalledPluginInfo
	err       error
	calls     atomic.Int32
	delay     time.Duration
	requested [][]string
	// block, when set, is waited on before answering.
	block chan struct{}
}

func (f *fakeLister) ListInstalled(_ context.Context, ids []string) (map[string]domain.InstalledPluginInfo, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requested = append(f.requested, append([]string(nil), ids...))
	if f.err != nil {
		return nil, f.err
	}
	out := map[string]domain.InstalledPluginInfo{}
	for _, id := range ids {
		if info, ok := f.installed[id]; ok {
			out[id] = info
		}
	}
	return out, nil
}

func (f *fakeLister) set(id string, info domain.InstalledPluginInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.installed == nil {
		f.installed = map[string]domain.InstalledPluginInfo{}
	}
	f.installed[id] = info
}

type fakeFetcher struct {
	releases []domain.GitHubRelease
	err      error
	calls    atomic.Int32
}

func (f *fakeFetcher) FetchReleases(context.Context, string, string) ([]domain.GitHubRelease, error) {
	f.calls.Add(1)
	return f.releases, f.err
}

type fakeUploader struct {
	resp  ports.UploadResponse
	err   error
	calls atomic.Int32
	last  string
	block chan struct{}
	mu    sync.Mutex
}

func (f *fakeUploader) answer(what string) (ports.UploadResponse, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.last = what
	f.mu.Unlock()
	if f.block != nil {
		<-f.block
	}
	return f.resp, f.err
}

func (f *fakeUploader) UploadFromGitHub(_ context.Context, repo, tag, asset string) (ports.UploadResponse, error) {
	return f.answer("github:" + repo + "@" + tag + "/" + asset)
}

func (f *fakeUploader) UploadPackage(_ context.Context, name string, r io.Reader) (ports.UploadResponse, error) {
	_, _ = io.Copy(io.Discard, r)
	return f.answer("package:" + name)
}

func (f *fakeUploader) UploadBundle(_ context.Context, name string, r io.Reader) (ports.UploadResponse, error) {
	_, _ = io.Copy(io.Discard, r)
	return f.answer("bundle:" + name)
}

type fakeCatalog struct {
	manifests map[string]*domain.PluginManifest
}

func (f *fakeCatalog) LookupMarketplace(_ context.Context, uid string) (*domain.PluginManifest, error) {
	if m, ok := f.manifests[uid]; ok {
		return m, nil
	}
	return nil, errors.New("not in catalog")
}

// recordingObserver records notifications in order.
type recordingObserver struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingObserver) add(e string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingObserver) StartedInstalling() { r.add("started") }
func (r *recordingObserver) Installed(needsRefresh bool) {
	if needsRefresh {
		r.add("installed:refresh")
		return
	}
	r.add("installed")
}
func (r *recordingObserver) Failed(msg string) { r.add("failed:" + msg) }
func (r *recordingObserver) InstallingChanged(installing bool) {
	if installing {
		r.add("installing:true")
		return
	}
	r.add("installing:false")
}

func (r *recordingObserver) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func stringReader(s string) func() (io.ReadCloser, error) {
	return func() (io.ReadCloser, error) {
		return io.NopCloser(stringsReader(s)), nil
	}
}

func stringsReader(s string) io.Reader { return &sliceReader{b: []byte(s)} }

type sliceReader struct{ b []byte }

func (r *sliceReader) Read(p []byte) (int, error) {
	if len(r.b) == 0 {
		return 0, io.EOF
	}
	n := copy(p, r.b)
	r.b = r.b[n:]
	return n, nil
}
