package engine

import (
	"sync"
	"time"
)

// RecentEvent is one line of the rolling activity log shown on the dashboard.
type RecentEvent struct {
	Time    time.Time `json:"time"`
	Level   string    `json:"level"`
	Message string    `json:"message"`
}

// Progress is a snapshot of the tracked run state, safe for JSON serialization.
type Progress struct {
	State          State         `json:"state"`
	Message        string        `json:"message,omitempty"`
	Percent        float64       `json:"percent"`
	CurrentFile    string        `json:"current_file,omitempty"`
	Operation      string        `json:"operation,omitempty"`
	Stats          Stats         `json:"stats"`
	RecentEvents   []RecentEvent `json:"recent_events,omitempty"`
	BytesPerSecond int64         `json:"bytes_per_second"`
	ETA            string        `json:"eta,omitempty"`
	StartTime      time.Time     `json:"start_time"`
	Elapsed        string        `json:"elapsed"`
	Stalled        bool          `json:"stalled"`
}

// Tracker accumulates run events into a queryable snapshot in a thread-safe
// manner. It implements Observer, so installing it on a Rebuilder is all the
// wiring the dashboard needs. SSE handlers use Wait() to block until new
// updates are available.
type Tracker struct {
	mu sync.Mutex

	state       State
	message     string
	percent     float64
	currentFile string
	operation   string
	stats       Stats
	startTime   time.Time

	// Timestamp of the last event received, for stall detection.
	lastEvent time.Time

	// Rolling log of recent log events (capped at 20, newest first).
	recentEvents []RecentEvent

	// Notification channel: close-and-replace pattern.
	// Listeners call Wait() to get the current channel, then block on it.
	// Any update closes the old channel and replaces it with a new one.
	notify chan struct{}
}

// NewTracker creates a tracker in the idle state.
func NewTracker() *Tracker {
	now := time.Now()
	return &Tracker{
		state:     StateIdle,
		startTime: now,
		lastEvent: now,
		notify:    make(chan struct{}),
	}
}

// OnEvent folds one run event into the snapshot.
func (t *Tracker) OnEvent(ev Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.lastEvent = time.Now()

	switch ev.Kind {
	case EventStatus:
		if ev.Status != nil {
			t.state = ev.Status.State
			if ev.Status.Message != "" {
				t.message = ev.Status.Message
			}
		}
	case EventProgress:
		if ev.Progress != nil {
			t.percent = ev.Progress.Percent
			t.currentFile = ev.Progress.CurrentFile
			t.operation = ev.Progress.Operation
		}
	case EventStats:
		if ev.Stats != nil {
			t.stats = *ev.Stats
		}
	case EventLog:
		if ev.Log != nil {
			t.addRecentEvent(RecentEvent{
				Time:    ev.Timestamp,
				Level:   ev.Log.Level,
				Message: ev.Log.Message,
			})
		}
	}

	t.signal()
}

// addRecentEvent prepends an event to the rolling log, capping at 20.
// Must be called with t.mu held.
func (t *Tracker) addRecentEvent(ev RecentEvent) {
	t.recentEvents = append([]RecentEvent{ev}, t.recentEvents...)
	if len(t.recentEvents) > 20 {
		t.recentEvents = t.recentEvents[:20]
	}
}

// Wait returns a channel that will be closed when the next update occurs.
// Callers should select on this channel alongside a timeout for heartbeats.
func (t *Tracker) Wait() <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.notify
}

// signal closes the current notify channel and replaces it with a new one.
// Must be called with t.mu held.
func (t *Tracker) signal() {
	close(t.notify)
	t.notify = make(chan struct{})
}

// Stalled reports whether no event has arrived within timeout while the run
// is still in a non-terminal state. It never terminates anything; callers
// surface it as a warning.
func (t *Tracker) Stalled(timeout time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state.Terminal() || t.state == StateIdle {
		return false
	}
	return time.Since(t.lastEvent) > timeout
}

// Snapshot returns a copy of the current progress state.
func (t *Tracker) Snapshot() Progress {
	return t.snapshotWithTimeout(0)
}

// SnapshotWithStall is Snapshot with stall detection against the given timeout.
func (t *Tracker) SnapshotWithStall(timeout time.Duration) Progress {
	return t.snapshotWithTimeout(timeout)
}

func (t *Tracker) snapshotWithTimeout(stallTimeout time.Duration) Progress {
	t.mu.Lock()
	defer t.mu.Unlock()

	recentEvents := make([]RecentEvent, len(t.recentEvents))
	copy(recentEvents, t.recentEvents)

	elapsed := time.Since(t.startTime)
	var bytesPerSecond int64
	var eta string
	if elapsed > time.Second && t.stats.CopiedBytes > 0 {
		bytesPerSecond = int64(float64(t.stats.CopiedBytes) / elapsed.Seconds())
		if bytesPerSecond > 0 && t.stats.TotalBytes > t.stats.CopiedBytes {
			remaining := t.stats.TotalBytes - t.stats.CopiedBytes
			etaDuration := time.Duration(float64(remaining) / float64(bytesPerSecond) * float64(time.Second))
			eta = etaDuration.Truncate(time.Second).String()
		}
	}

	stalled := false
	if stallTimeout > 0 && !t.state.Terminal() && t.state != StateIdle {
		stalled = time.Since(t.lastEvent) > stallTimeout
	}

	return Progress{
		State:          t.state,
		Message:        t.message,
		Percent:        t.percent,
		CurrentFile:    t.currentFile,
		Operation:      t.operation,
		Stats:          t.stats,
		RecentEvents:   recentEvents,
		BytesPerSecond: bytesPerSecond,
		ETA:            eta,
		StartTime:      t.startTime,
		Elapsed:        elapsed.Truncate(time.Second).String(),
		Stalled:        stalled,
	}
}
