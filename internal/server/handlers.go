package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/takeback/takeback/internal/engine"
	"github.com/takeback/takeback/internal/store"
)

// sseHeartbeat is how often a comment line keeps an otherwise quiet SSE
// connection alive through proxies.
const sseHeartbeat = 15 * time.Second

// handleRedirectDashboard redirects / to /dashboard.
func (s *Server) handleRedirectDashboard(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/dashboard", http.StatusMovedPermanently)
}

// handleDashboard renders the dashboard page.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	var runs []store.Run
	if s.store != nil {
		var err error
		runs, err = s.store.ListRuns(20)
		if err != nil {
			s.logger.Warn("failed to list runs", "error", err)
		}
	}

	data := map[string]interface{}{
		"Title": "Dashboard",
		"Runs":  runs,
	}

	if err := s.templates.ExecuteTemplate(w, "dashboard.html", data); err != nil {
		s.logger.Error("failed to render dashboard", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
}

// statusResponse is the /api/status payload: the latest run plus the live
// progress snapshot when a tracker exists.
type statusResponse struct {
	LatestRun *store.Run       `json:"latest_run,omitempty"`
	Live      *engine.Progress `json:"live,omitempty"`
}

// handleAPIStatus returns the latest run and live progress as JSON.
func (s *Server) handleAPIStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{}

	if s.store != nil {
		runs, err := s.store.ListRuns(1)
		if err != nil {
			s.logger.Warn("failed to query latest run", "error", err)
		} else if len(runs) > 0 {
			resp.LatestRun = &runs[0]
		}
	}

	if tracker := s.rebuilder.ActiveProgress(); tracker != nil {
		snap := tracker.SnapshotWithStall(s.config.Processing.StallTimeout)
		resp.Live = &snap
	}

	s.writeJSON(w, resp)
}

// handleAPIRuns returns run history as JSON.
func (s *Server) handleAPIRuns(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeJSON(w, []store.Run{})
		return
	}

	runs, err := s.store.ListRuns(50)
	if err != nil {
		s.logger.Error("failed to list runs", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []store.Run{}
	}
	s.writeJSON(w, runs)
}

// handleAPIRunDetail returns one run and its copied files.
func (s *Server) handleAPIRunDetail(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		http.Error(w, "Run history disabled", http.StatusNotFound)
		return
	}

	runID := r.PathValue("id")
	run, err := s.store.GetRun(runID)
	if err != nil {
		http.Error(w, "Run not found", http.StatusNotFound)
		return
	}

	files, err := s.store.ListCopiedFiles(run.ID)
	if err != nil {
		s.logger.Error("failed to list copied files", "run_id", runID, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, map[string]interface{}{
		"run":   run,
		"files": files,
	})
}

// handleProgressStream streams live run progress as server-sent events.
// Each update from the engine tracker produces one "progress" event; quiet
// periods produce heartbeat comments so proxies keep the connection open.
func (s *Server) handleProgressStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	flusher.Flush()

	sendSnapshot := func() {
		var snap engine.Progress
		if tracker := s.rebuilder.ActiveProgress(); tracker != nil {
			snap = tracker.SnapshotWithStall(s.config.Processing.StallTimeout)
		} else {
			snap = engine.Progress{State: engine.StateIdle}
		}
		data, err := json.Marshal(snap)
		if err != nil {
			s.logger.Error("failed to marshal progress snapshot", "error", err)
			return
		}
		fmt.Fprintf(w, "event: progress\ndata: %s\n\n", data)
		flusher.Flush()
	}

	sendSnapshot()

	for {
		// Re-fetch the tracker each round so the stream follows a new run
		// when one starts.
		var wait <-chan struct{}
		if tracker := s.rebuilder.ActiveProgress(); tracker != nil {
			wait = tracker.Wait()
		}

		select {
		case <-r.Context().Done():
			return
		case <-wait:
			sendSnapshot()
		case <-time.After(sseHeartbeat):
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()
		}
	}
}

// writeJSON encodes v as the JSON response body.
func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode JSON response", "error", err)
	}
}
