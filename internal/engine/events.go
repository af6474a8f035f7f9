package engine

import "time"

// State is the lifecycle phase of a reconstruction run.
type State string

const (
	StateIdle                State = "idle"
	StateValidating          State = "validating"
	StateScanning            State = "scanning"
	StateProcessing          State = "processing"
	StateReporting           State = "reporting"
	StateCompleted           State = "completed"
	StateCompletedWithErrors State = "completed_with_errors"
	StateFailed              State = "failed"
	StateCancelled           State = "cancelled"
)

// Terminal reports whether a state ends the run.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateCompletedWithErrors, StateFailed, StateCancelled:
		return true
	}
	return false
}

// EventKind discriminates the Event union.
type EventKind string

const (
	EventLog      EventKind = "log"
	EventProgress EventKind = "progress"
	EventStats    EventKind = "stats"
	EventStatus   EventKind = "status"
)

// Event is a single notification from a running reconstruction. Exactly one
// of the payload fields is set, selected by Kind.
type Event struct {
	Kind      EventKind      `json:"kind"`
	Timestamp time.Time      `json:"timestamp"`
	Log       *LogEvent      `json:"log,omitempty"`
	Progress  *ProgressEvent `json:"progress,omitempty"`
	Stats     *Stats         `json:"stats,omitempty"`
	Status    *StatusEvent   `json:"status,omitempty"`
}

// LogEvent carries a human-readable run log line.
type LogEvent struct {
	Level   string `json:"level"` // "info", "warning", "error"
	Message string `json:"message"`
}

// ProgressEvent reports how far through the current phase the run is.
type ProgressEvent struct {
	Percent     float64 `json:"percent"`
	CurrentFile string  `json:"current_file,omitempty"`
	Operation   string  `json:"operation,omitempty"`
}

// StatusEvent reports a state transition.
type StatusEvent struct {
	State   State  `json:"state"`
	Message string `json:"message,omitempty"`
}

// Stats is a snapshot of the run counters, safe for JSON serialization.
type Stats struct {
	TotalFiles      int   `json:"total_files"`
	ProcessedFiles  int   `json:"processed_files"`
	CopiedFiles     int   `json:"copied_files"`
	SkippedDups     int   `json:"skipped_dups"`
	SkippedMetadata int   `json:"skipped_metadata"`
	RenamedFiles    int   `json:"renamed_files"`
	Errors          int   `json:"errors"`
	TotalBytes      int64 `json:"total_bytes"`
	CopiedBytes     int64 `json:"copied_bytes"`
}

// Observer receives events synchronously as the run emits them. Observers
// must not block; slow consumers should snapshot and return.
type Observer interface {
	OnEvent(Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(Event)

// OnEvent calls f(ev).
func (f ObserverFunc) OnEvent(ev Event) { f(ev) }
