package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relicta-tech/installkit/internal/installation/domain"
	"github.com/relicta-tech/installkit/internal/installation/ports"
)

const (
	uidA = "acme/alpha:1.0.0@a1"
	uidB = "acme/beta:1.0.0@b1"
	uidC = "acme/gamma:1.0.0@c1"
)

// taskPerUID answers CheckTask with one snapshot per task id.
type taskPerUID struct {
	fakeTasks
	byTask map[string]domain.TaskSnapshot
}

func (f *taskPerUID) CheckTask(ctx context.Context, taskID string) (domain.TaskSnapshot, error) {
	f.calls.Add(1)
	return f.byTask[taskID], nil
}

func newTestBundleInstaller(installer *fakeInstaller, tasks ports.TaskStatusChecker, inv *fakeInvalidator, opts ...BundleOption) *BundleInstaller {
	opts = append([]BundleOption{
		WithBundleInvalidator(inv),
		WithBundlePollerOptions(WithPollInterval(time.Millisecond)),
	}, opts...)
	return NewBundleInstaller(installer, tasks, opts...)
}

func TestBundleInstaller_Install(t *testing.T) {
	installer := &fakeInstaller{bundle: []ports.BundleEntryStatus{
		{UniqueIdentifier: uidA, Status: domain.TaskSuccess},
		{UniqueIdentifier: uidB, Status: domain.TaskRunning, TaskID: "task-b"},
	}}
	tasks := &taskPerUID{byTask: map[string]domain.TaskSnapshot{
		"task-b": entrySnapshot(uidB, domain.TaskSuccess, ""),
	}}
	inv := &fakeInvalidator{}
	obs := &recordingObserver{}
	b := newTestBundleInstaller(installer, tasks, inv)

	out := b.Install(context.Background(), []domain.Dependency{marketplaceDep(uidA), marketplaceDep(uidB)}, nil, WithObserver(obs))

	assert.Equal(t, AttemptInstalled, out.Status)
	assert.True(t, out.NeedsRefresh)
	require.Len(t, out.Items, 2)
	assert.Equal(t, domain.TaskSuccess, out.Items[0].Status)
	assert.Equal(t, domain.TaskSuccess, out.Items[1].Status)
	assert.Equal(t, int32(1), tasks.calls.Load())
	assert.Equal(t, int32(1), inv.tasks.Load())
	assert.Equal(t, int32(1), inv.plugins.Load())
	assert.Equal(t, []string{"started", "installed:refresh", "installing:false"}, obs.Events())
}

func TestBundleInstaller_SkipsInstalledMembers(t *testing.T) {
	installer := &fakeInstaller{bundle: []ports.BundleEntryStatus{{UniqueIdentifier: uidB, Status: domain.TaskSuccess}}}
	inv := &fakeInvalidator{}
	b := newTestBundleInstaller(installer, &fakeTasks{}, inv)

	installed := map[string]*domain.InstalledPluginInfo{
		"acme/alpha": {InstalledID: "inst-a", UniqueIdentifier: uidA},
	}
	out := b.Install(context.Background(), []domain.Dependency{marketplaceDep(uidA), marketplaceDep(uidB)}, installed)

	assert.Equal(t, AttemptInstalled, out.Status)
	assert.True(t, out.Items[0].Skipped)
	assert.False(t, out.Items[1].Skipped)
	require.Len(t, installer.bundleDeps, 1)
	assert.Equal(t, uidB, installer.bundleDeps[0].UniqueIdentifier())
}

func TestBundleInstaller_AllInstalledAlready(t *testing.T) {
	installer := &fakeInstaller{}
	inv := &fakeInvalidator{}
	b := newTestBundleInstaller(installer, &fakeTasks{}, inv)

	installed := map[string]*domain.InstalledPluginInfo{"acme/alpha": {UniqueIdentifier: uidA}}
	out := b.Install(context.Background(), []domain.Dependency{marketplaceDep(uidA)}, installed)

	assert.Equal(t, AttemptInstalled, out.Status)
	assert.False(t, out.NeedsRefresh)
	assert.Empty(t, installer.Calls())
	assert.Equal(t, int32(0), inv.plugins.Load())
}

func TestBundleInstaller_PartialFailure(t *testing.T) {
	installer := &fakeInstaller{bundle: []ports.BundleEntryStatus{
		{UniqueIdentifier: uidA, Status: domain.TaskRunning, TaskID: "task-a"},
		{UniqueIdentifier: uidB, Status: domain.TaskFailed, Message: "unsupported architecture"},
		{UniqueIdentifier: uidC, Status: domain.TaskRunning, TaskID: "task-c"},
	}}
	tasks := &taskPerUID{byTask: map[string]domain.TaskSnapshot{
		"task-a": entrySnapshot(uidA, domain.TaskSuccess, ""),
		"task-c": entrySnapshot(uidC, domain.TaskFailed, "timeout"),
	}}
	inv := &fakeInvalidator{}
	b := newTestBundleInstaller(installer, tasks, inv, WithMaxConcurrentPolls(1))

	out := b.Install(context.Background(), []domain.Dependency{marketplaceDep(uidA), marketplaceDep(uidB), marketplaceDep(uidC)}, nil)

	assert.Equal(t, AttemptFailed, out.Status)
	assert.Equal(t, 2, out.Failed())
	assert.Equal(t, "2 of 3 plugins failed to install", out.Message)
	assert.Equal(t, "unsupported architecture", out.Items[1].Message)
	assert.Equal(t, "timeout", out.Items[2].Message)
	assert.True(t, out.NeedsRefresh, "one member was installed")
	assert.Equal(t, int32(1), inv.plugins.Load())
}

func TestBundleInstaller_SubmitErrors(t *testing.T) {
	tests := []struct {
		name      string
		installer *fakeInstaller
	}{
		{"backend error", &fakeInstaller{bundleErr: errors.New("503")}},
		{"result count mismatch", &fakeInstaller{bundle: []ports.BundleEntryStatus{{Status: domain.TaskSuccess}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newTestBundleInstaller(tt.installer, &fakeTasks{}, &fakeInvalidator{})
			out := b.Install(context.Background(), []domain.Dependency{marketplaceDep(uidA), marketplaceDep(uidB)}, nil)

			assert.Equal(t, AttemptFailed, out.Status)
			assert.Equal(t, 2, out.Failed())
			assert.False(t, out.NeedsRefresh)
		})
	}
}

func TestBundleInstaller_Cancel(t *testing.T) {
	installer := &fakeInstaller{bundle: []ports.BundleEntryStatus{{UniqueIdentifier: uidA, Status: domain.TaskRunning, TaskID: "task-a"}}}
	tasks := &fakeTasks{snapshots: []domain.TaskSnapshot{entrySnapshot(uidA, domain.TaskRunning, "")}}
	b := NewBundleInstaller(installer, tasks, WithBundlePollerOptions(WithPollInterval(time.Hour)))

	done := make(chan BundleOutcome, 1)
	go func() {
		done <- b.Install(context.Background(), []domain.Dependency{marketplaceDep(uidA)}, nil)
	}()
	require.Eventually(t, func() bool { return tasks.calls.Load() == 1 }, time.Second, time.Millisecond)
	b.Cancel()

	select {
	case out := <-done:
		assert.Equal(t, AttemptCanceled, out.Status)
	case <-time.After(2 * time.Second):
		t.Fatal("bundle install did not stop after Cancel")
	}
	assert.False(t, b.IsInstalling())
}

func TestBundleInstaller_CancelDuringSubmit(t *testing.T) {
	installer := &fakeInstaller{
		bundle: []ports.BundleEntryStatus{{UniqueIdentifier: uidA, Status: domain.TaskRunning, TaskID: "task-a"}},
		block:  make(chan struct{}),
	}
	tasks := &fakeTasks{snapshots: []domain.TaskSnapshot{entrySnapshot(uidA, domain.TaskSuccess, "")}}
	b := newTestBundleInstaller(installer, tasks, &fakeInvalidator{})
	deps := []domain.Dependency{marketplaceDep(uidA)}

	done := make(chan BundleOutcome, 1)
	go func() {
		done <- b.Install(context.Background(), deps, nil)
	}()
	require.Eventually(t, func() bool { return len(installer.Calls()) == 1 }, time.Second, time.Millisecond)

	b.Cancel()
	close(installer.block)

	assert.Equal(t, AttemptCanceled, (<-done).Status)
	assert.Equal(t, int32(0), tasks.calls.Load())

	installer.block = nil
	assert.Equal(t, AttemptInstalled, b.Install(context.Background(), deps, nil).Status)
	assert.Equal(t, int32(1), tasks.calls.Load())
}
