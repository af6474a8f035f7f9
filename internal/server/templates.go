package server

import (
	"fmt"
	"html/template"
	"time"

	"github.com/dustin/go-humanize"
)

// templateFuncs sets up custom template functions.
func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"formatBytes":    formatBytes,
		"formatTime":     formatTime,
		"formatDuration": formatDuration,
	}
}

// formatBytes converts a byte count to a human-readable format.
func formatBytes(bytes int64) string {
	if bytes < 0 {
		return "-"
	}
	return humanize.Bytes(uint64(bytes))
}

// formatTime formats a time.Time for display.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02 15:04:05")
}

// formatDuration renders the span between two times, or "-" while a run is
// still open.
func formatDuration(start, end time.Time) string {
	if start.IsZero() || end.IsZero() {
		return "-"
	}
	d := end.Sub(start)
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%.1fm", d.Minutes())
	}
	return fmt.Sprintf("%.1fh", d.Hours())
}
