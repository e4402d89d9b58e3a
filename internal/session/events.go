// Package session records the host's task lifecycle as a newline-delimited
// JSON journal and renders journals as timelines.
package session

import "time"

// EventType identifies the kind of journal event.
type EventType string

const (
	EventHostOpen       EventType = "host_open"
	EventHostClose      EventType = "host_close"
	EventTaskStart      EventType = "task_start"
	EventTaskResume     EventType = "task_resume"
	EventTaskCancel     EventType = "task_cancel"
	EventTaskDelete     EventType = "task_delete"
	EventCatalogRefresh EventType = "catalog_refresh"
	EventError          EventType = "error"
)

// Event is a single timestamped journal entry.
type Event struct {
	Timestamp time.Time      `json:"timestamp"`
	Type      EventType      `json:"type"`
	Data      map[string]any `json:"data,omitempty"`
}

// NewEvent creates an event with the current timestamp.
func NewEvent(t EventType, data map[string]any) Event {
	return Event{
		Timestamp: time.Now().UTC(),
		Type:      t,
		Data:      data,
	}
}

// HostOpenData returns event data for a host session opening.
func HostOpenData(version, engine, storageDir string) map[string]any {
	return map[string]any{
		"version":     version,
		"engine":      engine,
		"storage_dir": storageDir,
	}
}

// TaskData returns event data for task start, resume and delete.
func TaskData(taskID, task string) map[string]any {
	return map[string]any{
		"task_id": taskID,
		"task":    task,
	}
}

// TaskCancelData returns event data for a cancellation. acknowledged is false
// when the executor did not confirm the abort in time.
func TaskCancelData(taskID string, acknowledged bool, waitMs int64) map[string]any {
	return map[string]any{
		"task_id":      taskID,
		"acknowledged": acknowledged,
		"wait_ms":      waitMs,
	}
}

// CatalogRefreshData returns event data for a catalog refresh.
func CatalogRefreshData(entries int, err error) map[string]any {
	d := map[string]any{
		"entries": entries,
		"ok":      err == nil,
	}
	if err != nil {
		d["error"] = err.Error()
	}
	return d
}

// ErrorData returns event data for an error.
func ErrorData(message string, details map[string]any) map[string]any {
	d := map[string]any{
		"message": message,
	}
	for k, v := range details {
		d[k] = v
	}
	return d
}
