package domain

// TaskStatus is the status of a server-side install task entry.
type TaskStatus string

// Task statuses.
const (
	TaskPending TaskStatus = "pending"
	TaskRunning TaskStatus = "running"
	TaskSuccess TaskStatus = "success"
	TaskFailed  TaskStatus = "failed"
)

// IsTerminal returns true when the status will not change anymore.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskSuccess || s == TaskFailed
}

// TaskPluginEntry is the progress of one plugin within a task.
type TaskPluginEntry struct {
	PluginUniqueIdentifier string     `json:"plugin_unique_identifier"`
	PluginID               string     `json:"plugin_id"`
	Status                 TaskStatus `json:"status"`
	Message                string     `json:"message"`
}

// TaskSnapshot is a point-in-time view of a task.
type TaskSnapshot struct {
	ID      string            `json:"id"`
	Status  TaskStatus        `json:"status"`
	Plugins []TaskPluginEntry `json:"plugins"`
}

// Entry returns the entry for the given unique identifier.
func (t TaskSnapshot) Entry(uid string) (TaskPluginEntry, bool) {
	for _, p := range t.Plugins {
		if p.PluginUniqueIdentifier == uid {
			return p, true
		}
	}
	return TaskPluginEntry{}, false
}
