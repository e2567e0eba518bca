package handlers

import (
	"net/http"
	"time"

	"modelcat/internal/database"
	"modelcat/internal/logging"
	"modelcat/internal/scanner"
)

const (
	defaultScanHistory = 20
	maxScanHistory     = 500
)

// ScanResponse describes the scanner state.
type ScanResponse struct {
	Progress    scanner.Progress `json:"progress"`
	LastStats   *scanner.Stats   `json:"lastStats,omitempty"`
	LastScanned *time.Time       `json:"lastScanned,omitempty"`
	LastError   string           `json:"lastError,omitempty"`
}

// GetScan returns the current progress and the result of the last pass.
func (h *Handlers) GetScan(w http.ResponseWriter, _ *http.Request) {
	stats, at, err := h.scanner.LastStats()

	response := ScanResponse{Progress: h.scanner.Progress()}
	if !at.IsZero() {
		response.LastStats = &stats
		response.LastScanned = &at
	}
	if err != nil {
		response.LastError = err.Error()
	}

	w.Header().Set("Cache-Control", "no-cache")
	writeJSONStatusCode(w, http.StatusOK, response)
}

// TriggerScan starts a background pass. It answers 202 when a pass was
// started and 409 when one is already running.
func (h *Handlers) TriggerScan(w http.ResponseWriter, _ *http.Request) {
	if !h.scanner.TriggerScan(scanner.SourceAPI) {
		writeJSONError(w, "scan already in progress", http.StatusConflict)
		return
	}

	logging.Info("Scan triggered via API")
	writeJSONStatusCode(w, http.StatusAccepted, map[string]string{"status": "started"})
}

// ListScans returns recent scan history, newest first.
func (h *Handlers) ListScans(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultScanHistory, maxScanHistory)
	if err != nil {
		writeJSONError(w, "limit must be a positive integer", http.StatusBadRequest)
		return
	}

	runs, err := h.db.ListScanRuns(r.Context(), limit)
	if err != nil {
		logging.Error("Failed to list scan runs: %v", err)
		writeJSONError(w, "failed to list scan runs", http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []database.ScanRun{}
	}

	writeJSONStatusCode(w, http.StatusOK, runs)
}
