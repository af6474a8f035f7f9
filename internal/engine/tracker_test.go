package engine

import (
	"testing"
	"time"
)

func TestTrackerFoldsEvents(t *testing.T) {
	tr := NewTracker()

	tr.OnEvent(Event{Kind: EventStatus, Status: &StatusEvent{State: StateProcessing, Message: "working"}})
	tr.OnEvent(Event{Kind: EventProgress, Progress: &ProgressEvent{Percent: 42.5, CurrentFile: "a.txt", Operation: "processing"}})
	tr.OnEvent(Event{Kind: EventStats, Stats: &Stats{TotalFiles: 10, CopiedFiles: 4}})
	tr.OnEvent(Event{Kind: EventLog, Timestamp: time.Now(), Log: &LogEvent{Level: "info", Message: "hello"}})

	snap := tr.Snapshot()
	if snap.State != StateProcessing || snap.Message != "working" {
		t.Errorf("state/message = %s/%s", snap.State, snap.Message)
	}
	if snap.Percent != 42.5 || snap.CurrentFile != "a.txt" {
		t.Errorf("progress = %+v", snap)
	}
	if snap.Stats.TotalFiles != 10 || snap.Stats.CopiedFiles != 4 {
		t.Errorf("stats = %+v", snap.Stats)
	}
	if len(snap.RecentEvents) != 1 || snap.RecentEvents[0].Message != "hello" {
		t.Errorf("recent events = %+v", snap.RecentEvents)
	}
}

func TestTrackerRecentEventsCapped(t *testing.T) {
	tr := NewTracker()
	for i := 0; i < 30; i++ {
		tr.OnEvent(Event{Kind: EventLog, Log: &LogEvent{Level: "info", Message: "line"}})
	}
	if got := len(tr.Snapshot().RecentEvents); got != 20 {
		t.Errorf("recent events = %d, want 20", got)
	}
}

func TestTrackerWaitSignalsOnUpdate(t *testing.T) {
	tr := NewTracker()
	ch := tr.Wait()

	select {
	case <-ch:
		t.Fatal("channel closed before any update")
	default:
	}

	tr.OnEvent(Event{Kind: EventStatus, Status: &StatusEvent{State: StateScanning}})

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("update did not signal waiters")
	}

	// A fresh Wait() channel blocks until the next update.
	ch2 := tr.Wait()
	select {
	case <-ch2:
		t.Fatal("new channel closed without an update")
	default:
	}
}

func TestTrackerStalled(t *testing.T) {
	tr := NewTracker()

	// Idle trackers are never stalled.
	if tr.Stalled(time.Nanosecond) {
		t.Error("idle tracker reported stalled")
	}

	tr.OnEvent(Event{Kind: EventStatus, Status: &StatusEvent{State: StateProcessing}})
	time.Sleep(5 * time.Millisecond)
	if !tr.Stalled(time.Millisecond) {
		t.Error("quiet processing run not reported stalled")
	}
	if tr.Stalled(time.Hour) {
		t.Error("run stalled against a generous timeout")
	}

	// Terminal states are never stalled.
	tr.OnEvent(Event{Kind: EventStatus, Status: &StatusEvent{State: StateCompleted}})
	time.Sleep(5 * time.Millisecond)
	if tr.Stalled(time.Millisecond) {
		t.Error("completed run reported stalled")
	}
}
