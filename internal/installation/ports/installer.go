// Package ports defines the interfaces (ports) for the installation bounded context.
package ports

import (
	"context"

	"github.com/relicta-tech/installkit/internal/installation/domain"
)

// BundleEntryStatus is the backend's answer for one bundle member.
type BundleEntryStatus struct {
	UniqueIdentifier string            `json:"unique_identifier"`
	Status           domain.TaskStatus `json:"status"`
	// TaskID is set while Status is running or pending.
	TaskID  string `json:"task_id,omitempty"`
	Message string `json:"message,omitempty"`
}

// PluginInstaller installs, updates and removes plugins.
type PluginInstaller interface {
	// InstallFromSource installs target.
	InstallFromSource(ctx context.Context, target domain.InstallTarget) (domain.InstallResult, error)

	// UpdateFromSource replaces the package originalUID with target.
	UpdateFromSource(ctx context.Context, originalUID string, target domain.InstallTarget) (domain.InstallResult, error)

	// Uninstall removes a local installation and reports whether it succeeded.
	Uninstall(ctx context.Context, installedID string) (bool, error)

	// InstallOrUpdateBundle submits every dependency of a bundle at once.
	InstallOrUpdateBundle(ctx context.Context, deps []domain.Dependency) ([]BundleEntryStatus, error)
}

// TaskStatusChecker fetches the state of an install task.
type TaskStatusChecker interface {
	// CheckTask returns a snapshot of the task.
	CheckTask(ctx context.Context, taskID string) (domain.TaskSnapshot, error)
}

// InstalledPluginLister reports which plugins are installed.
type InstalledPluginLister interface {
	// ListInstalled returns installed info keyed by plugin id. Plugins that are
	// not installed are absent from the map.
	ListInstalled(ctx context.Context, pluginIDs []string) (map[string]domain.InstalledPluginInfo, error)
}

// Invalidator asks the host to refresh cached lists.
type Invalidator interface {
	// InvalidateTaskList refreshes the list of running install tasks.
	InvalidateTaskList(ctx context.Context) error

	// InvalidatePluginList refreshes the list of installed plugins.
	InvalidatePluginList(ctx context.Context) error
}

// NopInvalidator ignores invalidation requests.
type NopInvalidator struct{}

// InvalidateTaskList does nothing.
func (NopInvalidator) InvalidateTaskList(context.Context) error { return nil }

// InvalidatePluginList does nothing.
func (NopInvalidator) InvalidatePluginList(context.Context) error { return nil }
