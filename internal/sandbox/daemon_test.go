package sandbox

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	rperrors "github.com/relicta-tech/installkit/internal/errors"
	"github.com/relicta-tech/installkit/internal/installation/domain"
	"github.com/relicta-tech/installkit/internal/installation/ports"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func manifest(name, version string) domain.PluginManifest {
	return domain.PluginManifest{Name: name, Author: "acme", Version: version}
}

func testCatalog() *Catalog {
	return &Catalog{
		Repositories: []Repository{{
			Repo: "acme/search-plugin",
			Releases: []Release{
				{Tag: "v2.0.0", Assets: []Asset{
					{Name: "search.difypkg", Manifest: manifest("search", "2.0.0")},
					{Name: "broken.difypkg", Manifest: manifest("broken", "2.0.0"), Fail: "missing dependency"},
					{Name: "rejected.difypkg", Manifest: manifest("rejected", "2.0.0"), Reject: "signature check failed"},
				}},
				{Tag: "v1.0.0", Assets: []Asset{
					{Name: "search.difypkg", Manifest: manifest("search", "1.0.0"), Checksum: "one"},
				}},
			},
		}},
		Marketplace: []MarketplaceEntry{
			{UniqueIdentifier: "acme/translate:0.3.1@feed", Manifest: manifest("translate", "0.3.1")},
		},
	}
}

func newTestDaemon(clock *fakeClock, opts ...Option) *Daemon {
	return NewDaemon(testCatalog(), append([]Option{
		WithClock(clock.Now),
		WithTaskLatency(time.Second),
		WithTaskSteps(2),
	}, opts...)...)
}

func target(t *testing.T, source domain.Source, uid string) domain.InstallTarget {
	t.Helper()
	tg, err := domain.NewInstallTarget(source, uid, nil)
	if err != nil {
		t.Fatal(err)
	}
	return tg
}

func uploadAsset(t *testing.T, d *Daemon, tag, asset string) string {
	t.Helper()
	resp, err := d.UploadFromGitHub(context.Background(), "acme/search-plugin", tag, asset)
	if err != nil {
		t.Fatalf("UploadFromGitHub() error = %v", err)
	}
	return resp.UniqueIdentifier
}

func TestDaemon_FetchReleases(t *testing.T) {
	d := newTestDaemon(newFakeClock())
	ctx := context.Background()

	releases, err := d.FetchReleases(ctx, "acme", "search-plugin")
	if err != nil {
		t.Fatalf("FetchReleases() error = %v", err)
	}
	if got := domain.ReleaseTags(releases); len(got) != 2 || got[0] != "v2.0.0" {
		t.Errorf("tags = %v", got)
	}
	if want := "https://github.com/acme/search-plugin/releases/download/v1.0.0/search.difypkg"; releases[1].Assets[0].DownloadURL != want {
		t.Errorf("DownloadURL = %q, want %q", releases[1].Assets[0].DownloadURL, want)
	}

	if _, err := d.FetchReleases(ctx, "acme", "missing"); !rperrors.IsKind(err, rperrors.KindNotFound) {
		t.Errorf("FetchReleases(missing) error = %v, want not found", err)
	}
}

func TestDaemon_UploadFromGitHub(t *testing.T) {
	d := newTestDaemon(newFakeClock())
	ctx := context.Background()

	resp, err := d.UploadFromGitHub(ctx, "acme/search-plugin", "v1.0.0", "search.difypkg")
	if err != nil {
		t.Fatalf("UploadFromGitHub() error = %v", err)
	}
	if resp.UniqueIdentifier != "acme/search:1.0.0@one" || resp.Manifest == nil || resp.Manifest.Version != "1.0.0" {
		t.Errorf("response = %+v", resp)
	}

	tests := []struct {
		name    string
		tag     string
		asset   string
		wantMsg string
	}{
		{"rejected asset", "v2.0.0", "rejected.difypkg", "signature check failed"},
		{"unknown asset", "v2.0.0", "nope.difypkg", "asset nope.difypkg not found in acme/search-plugin@v2.0.0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.UploadFromGitHub(ctx, "acme/search-plugin", tt.tag, tt.asset)
			var rejected *ports.RejectedUploadError
			if !errors.As(err, &rejected) {
				t.Fatalf("error = %v, want RejectedUploadError", err)
			}
			if rejected.Response.Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", rejected.Response.Message, tt.wantMsg)
			}
		})
	}
}

func TestDaemon_InstallLifecycle(t *testing.T) {
	clock := newFakeClock()
	d := newTestDaemon(clock)
	ctx := context.Background()
	uid := uploadAsset(t, d, "v2.0.0", "search.difypkg")

	res, err := d.InstallFromSource(ctx, target(t, domain.SourceGitHub, uid))
	if err != nil {
		t.Fatalf("InstallFromSource() error = %v", err)
	}
	if res.AllInstalled || res.TaskID == "" {
		t.Fatalf("result = %+v, want a running task", res)
	}

	steps := []domain.TaskStatus{domain.TaskPending, domain.TaskRunning, domain.TaskSuccess, domain.TaskSuccess}
	for i, want := range steps {
		snap, err := d.CheckTask(ctx, res.TaskID)
		if err != nil {
			t.Fatalf("CheckTask() error = %v", err)
		}
		if snap.Status != want {
			t.Errorf("step %d: status = %q, want %q", i, snap.Status, want)
		}
		e, ok := snap.Entry(uid)
		if !ok || e.Status != want || e.PluginID != "acme/search" {
			t.Errorf("step %d: entry = %+v, %v", i, e, ok)
		}
		clock.Advance(time.Second)
	}

	installed, err := d.ListInstalled(ctx, []string{"acme/search", "acme/other"})
	if err != nil {
		t.Fatalf("ListInstalled() error = %v", err)
	}
	if len(installed) != 1 {
		t.Fatalf("ListInstalled() = %v, want only acme/search", installed)
	}
	info := installed["acme/search"]
	if info.UniqueIdentifier != uid || info.InstalledVersion != "2.0.0" || info.InstalledID == "" {
		t.Errorf("installed = %+v", info)
	}

	if _, err := d.InstallFromSource(ctx, target(t, domain.SourceGitHub, uid)); !rperrors.IsKind(err, rperrors.KindInstall) {
		t.Errorf("second InstallFromSource() error = %v, want install error", err)
	}
}

func TestDaemon_ZeroLatencyInstallsImmediately(t *testing.T) {
	d := newTestDaemon(newFakeClock(), WithTaskLatency(0))
	ctx := context.Background()
	uid := uploadAsset(t, d, "v2.0.0", "search.difypkg")

	res, err := d.InstallFromSource(ctx, target(t, domain.SourceGitHub, uid))
	if err != nil {
		t.Fatalf("InstallFromSource() error = %v", err)
	}
	if !res.AllInstalled || res.TaskID != "" {
		t.Errorf("result = %+v, want AllInstalled", res)
	}
	if got := d.Installed(); len(got) != 1 || got[0].UniqueIdentifier != uid {
		t.Errorf("Installed() = %+v", got)
	}
}

func TestDaemon_FailingTask(t *testing.T) {
	clock := newFakeClock()
	d := newTestDaemon(clock)
	ctx := context.Background()
	uid := uploadAsset(t, d, "v2.0.0", "broken.difypkg")

	res, err := d.InstallFromSource(ctx, target(t, domain.SourceGitHub, uid))
	if err != nil {
		t.Fatalf("InstallFromSource() error = %v", err)
	}
	clock.Advance(2 * time.Second)

	snap, err := d.CheckTask(ctx, res.TaskID)
	if err != nil {
		t.Fatalf("CheckTask() error = %v", err)
	}
	e, _ := snap.Entry(uid)
	if snap.Status != domain.TaskFailed || e.Status != domain.TaskFailed || e.Message != "missing dependency" {
		t.Errorf("snapshot = %+v", snap)
	}
	if got := d.Installed(); len(got) != 0 {
		t.Errorf("Installed() = %+v, want none", got)
	}
}

func TestDaemon_InstallRequiresUpload(t *testing.T) {
	d := newTestDaemon(newFakeClock())
	_, err := d.InstallFromSource(context.Background(), target(t, domain.SourceGitHub, "acme/search:9.9.9@x"))
	if msg, _ := rperrors.UserMessage(err); msg != "plugin package not found, upload it first" {
		t.Errorf("InstallFromSource() error = %v", err)
	}
}

func TestDaemon_Update(t *testing.T) {
	clock := newFakeClock()
	cat := testCatalog()
	cat.Installed = []string{"acme/search:1.0.0@one"}
	d := NewDaemon(cat, WithClock(clock.Now), WithTaskLatency(time.Second), WithTaskSteps(2))
	ctx := context.Background()

	before := d.Installed()
	if len(before) != 1 || before[0].InstalledVersion != "1.0.0" {
		t.Fatalf("seeded installs = %+v", before)
	}

	uid := uploadAsset(t, d, "v2.0.0", "search.difypkg")
	if _, err := d.UpdateFromSource(ctx, "acme/search:0.1.0@zzz", target(t, domain.SourceGitHub, uid)); !rperrors.IsKind(err, rperrors.KindInstall) {
		t.Errorf("UpdateFromSource(wrong original) error = %v, want install error", err)
	}

	res, err := d.UpdateFromSource(ctx, "acme/search:1.0.0@one", target(t, domain.SourceGitHub, uid))
	if err != nil {
		t.Fatalf("UpdateFromSource() error = %v", err)
	}
	if res.TaskID == "" {
		t.Fatalf("result = %+v, want task", res)
	}
	clock.Advance(2 * time.Second)

	after := d.Installed()
	if len(after) != 1 || after[0].UniqueIdentifier != uid || after[0].InstalledVersion != "2.0.0" {
		t.Errorf("installs after update = %+v", after)
	}
	if after[0].InstalledID == before[0].InstalledID {
		t.Error("update should produce a new installation id")
	}
}

func TestDaemon_Uninstall(t *testing.T) {
	cat := testCatalog()
	cat.Installed = []string{"acme/search:1.0.0@one"}
	d := NewDaemon(cat)
	ctx := context.Background()
	id := d.Installed()[0].InstalledID

	ok, err := d.Uninstall(ctx, id)
	if err != nil || !ok {
		t.Fatalf("Uninstall() = %v, %v", ok, err)
	}
	ok, err = d.Uninstall(ctx, id)
	if err != nil || ok {
		t.Errorf("second Uninstall() = %v, %v, want false", ok, err)
	}
}

func TestDaemon_Marketplace(t *testing.T) {
	d := newTestDaemon(newFakeClock(), WithTaskLatency(0))
	ctx := context.Background()

	m, err := d.LookupMarketplace(ctx, "acme/translate:0.3.1@feed")
	if err != nil || m.Name != "translate" {
		t.Fatalf("LookupMarketplace() = %+v, %v", m, err)
	}
	if _, err := d.LookupMarketplace(ctx, "acme/nope:1.0.0@x"); !rperrors.IsKind(err, rperrors.KindNotFound) {
		t.Errorf("LookupMarketplace(unknown) error = %v", err)
	}

	res, err := d.InstallFromSource(ctx, target(t, domain.SourceMarketplace, "acme/translate:0.3.1@feed"))
	if err != nil || !res.AllInstalled {
		t.Errorf("InstallFromSource() = %+v, %v", res, err)
	}
}

func TestDaemon_UploadPackage(t *testing.T) {
	d := newTestDaemon(newFakeClock())
	var buf bytes.Buffer
	if err := WritePackage(&buf, manifest("local", "0.1.0"), nil); err != nil {
		t.Fatal(err)
	}

	resp, err := d.UploadPackage(context.Background(), "local.difypkg", bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("UploadPackage() error = %v", err)
	}
	if !strings.HasPrefix(resp.UniqueIdentifier, "acme/local:0.1.0@") || resp.Manifest.Name != "local" {
		t.Errorf("response = %+v", resp)
	}

	_, err = d.UploadPackage(context.Background(), "junk.difypkg", strings.NewReader("junk"))
	var rejected *ports.RejectedUploadError
	if !errors.As(err, &rejected) || !strings.HasPrefix(rejected.Response.Message, "invalid package junk.difypkg") {
		t.Errorf("UploadPackage(junk) error = %v", err)
	}
}

func TestDaemon_Bundle(t *testing.T) {
	clock := newFakeClock()
	cat := testCatalog()
	cat.Installed = []string{"acme/translate:0.3.1@feed"}
	d := NewDaemon(cat, WithClock(clock.Now), WithTaskLatency(time.Second), WithTaskSteps(2))
	ctx := context.Background()

	var pkg bytes.Buffer
	if err := WritePackage(&pkg, manifest("local", "0.1.0"), nil); err != nil {
		t.Fatal(err)
	}
	deps := []domain.Dependency{
		{Type: domain.DependencyGitHub, GitHub: &domain.GitHubDependency{Repo: "acme/search-plugin", Release: "v2.0.0", Package: "search.difypkg"}},
		{Type: domain.DependencyMarketplace, Marketplace: &domain.MarketplaceDependency{MarketplacePluginUniqueIdentifier: "acme/translate:0.3.1@feed"}},
		{Type: domain.DependencyMarketplace, Marketplace: &domain.MarketplaceDependency{MarketplacePluginUniqueIdentifier: "acme/gone:1.0.0@x"}},
	}
	var bundle bytes.Buffer
	if err := WriteBundle(&bundle, deps, map[string][]byte{"local.difypkg": pkg.Bytes()}); err != nil {
		t.Fatal(err)
	}

	resp, err := d.UploadBundle(ctx, "tools.difybndl", &bundle)
	if err != nil {
		t.Fatalf("UploadBundle() error = %v", err)
	}
	if len(resp.Dependencies) != 4 {
		t.Fatalf("len(Dependencies) = %d, want 4", len(resp.Dependencies))
	}
	if resp.Dependencies[0].GitHub.UniqueIdentifier == "" {
		t.Error("github member should be resolved to an identifier")
	}

	statuses, err := d.InstallOrUpdateBundle(ctx, resp.Dependencies)
	if err != nil {
		t.Fatalf("InstallOrUpdateBundle() error = %v", err)
	}
	want := []domain.TaskStatus{domain.TaskPending, domain.TaskSuccess, domain.TaskFailed, domain.TaskPending}
	for i, st := range statuses {
		if st.Status != want[i] {
			t.Errorf("statuses[%d].Status = %q, want %q", i, st.Status, want[i])
		}
		if (st.TaskID != "") != !st.Status.IsTerminal() {
			t.Errorf("statuses[%d].TaskID = %q with status %q", i, st.TaskID, st.Status)
		}
	}
	if statuses[0].TaskID != statuses[3].TaskID {
		t.Error("pending members should share one task")
	}
	if statuses[2].Message != "package acme/gone not found" {
		t.Errorf("statuses[2].Message = %q", statuses[2].Message)
	}

	clock.Advance(2 * time.Second)
	snap, err := d.CheckTask(ctx, statuses[0].TaskID)
	if err != nil || snap.Status != domain.TaskSuccess {
		t.Fatalf("CheckTask() = %+v, %v", snap, err)
	}
	if got := len(d.Installed()); got != 3 {
		t.Errorf("len(Installed()) = %d, want 3", got)
	}
}

func TestDaemon_UploadBundleUnknownAsset(t *testing.T) {
	d := newTestDaemon(newFakeClock())
	deps := []domain.Dependency{
		{Type: domain.DependencyGitHub, GitHub: &domain.GitHubDependency{Repo: "acme/search-plugin", Release: "v9", Package: "search.difypkg"}},
	}
	var bundle bytes.Buffer
	if err := WriteBundle(&bundle, deps, nil); err != nil {
		t.Fatal(err)
	}

	_, err := d.UploadBundle(context.Background(), "b.difybndl", &bundle)
	var rejected *ports.RejectedUploadError
	if !errors.As(err, &rejected) {
		t.Fatalf("UploadBundle() error = %v, want RejectedUploadError", err)
	}
}

func TestDaemon_CheckTaskUnknown(t *testing.T) {
	d := newTestDaemon(newFakeClock())
	if _, err := d.CheckTask(context.Background(), "nope"); !rperrors.IsKind(err, rperrors.KindNotFound) {
		t.Errorf("CheckTask() error = %v, want not found", err)
	}
}

func TestDaemon_Invalidations(t *testing.T) {
	d := newTestDaemon(newFakeClock())
	ctx := context.Background()
	_ = d.InvalidateTaskList(ctx)
	_ = d.InvalidatePluginList(ctx)
	_ = d.InvalidatePluginList(ctx)

	tasks, plugins := d.Invalidations()
	if tasks != 1 || plugins != 2 {
		t.Errorf("Invalidations() = %d, %d, want 1, 2", tasks, plugins)
	}
}

func TestDaemon_CanceledContext(t *testing.T) {
	d := newTestDaemon(newFakeClock())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := d.FetchReleases(ctx, "acme", "search-plugin"); !errors.Is(err, context.Canceled) {
		t.Errorf("FetchReleases() error = %v, want context.Canceled", err)
	}
	if _, err := d.ListInstalled(ctx, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("ListInstalled() error = %v, want context.Canceled", err)
	}
}

func TestVersionFromUniqueIdentifier(t *testing.T) {
	tests := map[string]string{
		"acme/search:1.2.3@abc": "1.2.3",
		"acme/search:1.2.3":     "1.2.3",
		"acme/search":           "",
	}
	for uid, want := range tests {
		if got := versionFromUniqueIdentifier(uid); got != want {
			t.Errorf("versionFromUniqueIdentifier(%q) = %q, want %q", uid, got, want)
		}
	}
}
