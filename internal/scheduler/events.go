package scheduler

import "time"

// RunEvent is the payload attached to task lifecycle events on the bus.
// Keep it compact and JSON-serializable; the run journal persists it as-is.
type RunEvent struct {
	ID       string
	Kind     string
	Started  time.Time
	Duration time.Duration
	Error    string
	Reason   string // for task.skipped: "disabled" or "busy"
}
