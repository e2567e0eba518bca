package handlers

import (
	"net/http"
	"runtime"
	"time"

	"modelcat/internal/database"
	"modelcat/internal/logging"
	"modelcat/internal/startup"
)

const (
	statusHealthy  = "healthy"
	statusStarting = "starting"
	statusDegraded = "degraded"
)

// HealthResponse contains the health check response
type HealthResponse struct {
	Status        string `json:"status"`
	Ready         bool   `json:"ready"`
	Version       string `json:"version"`
	Uptime        string `json:"uptime"`
	Scanning      bool   `json:"scanning"`
	LastScanned   string `json:"lastScanned,omitempty"`
	LastScanError string `json:"lastScanError,omitempty"`
	DatabaseError string `json:"databaseError,omitempty"`

	FilesSeen int64 `json:"filesSeen"`
	Watching  bool  `json:"watching"`

	// System info
	GoVersion    string `json:"goVersion"`
	NumCPU       int    `json:"numCpu"`
	NumGoroutine int    `json:"numGoroutine"`

	ActiveModels  int `json:"activeModels"`
	MissingModels int `json:"missingModels"`
}

// HealthCheck returns the health status of the service. It answers 503 until
// the first scan pass has finished and reports "degraded" when the last pass
// failed or the database is unreachable.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ready := h.scanner.IsReady()
	progress := h.scanner.Progress()
	_, lastScan, lastErr := h.scanner.LastStats()

	response := HealthResponse{
		Ready:        ready,
		Version:      startup.Version,
		Uptime:       time.Since(h.startTime).Round(time.Second).String(),
		Scanning:     progress.IsScanning,
		FilesSeen:    progress.FilesSeen,
		GoVersion:    runtime.Version(),
		NumCPU:       runtime.NumCPU(),
		NumGoroutine: runtime.NumGoroutine(),
	}
	if h.watcher != nil {
		response.Watching = h.watcher.Status().Running
	}

	if ready {
		response.Status = statusHealthy
	} else {
		response.Status = statusStarting
	}

	if !lastScan.IsZero() {
		response.LastScanned = lastScan.Format(time.RFC3339)
	}
	if lastErr != nil {
		response.LastScanError = lastErr.Error()
		response.Status = statusDegraded
	}

	ctx := r.Context()
	if err := h.db.Ping(ctx); err != nil {
		logging.Warn("Health check: database ping failed: %v", err)
		response.DatabaseError = err.Error()
		response.Status = statusDegraded
	} else {
		if n, err := h.db.CountModels(ctx, database.StatusActive); err == nil {
			response.ActiveModels = n
		}
		if n, err := h.db.CountModels(ctx, database.StatusMissing); err == nil {
			response.MissingModels = n
		}
	}

	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if r.Method != http.MethodHead {
		writeJSON(w, response)
	}
}

// LivenessCheck is a simple liveness probe (always returns 200 if server is running)
func (h *Handlers) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	// For HEAD requests, only send headers (no body)
	if r.Method != http.MethodHead {
		writeJSON(w, map[string]string{
			"status": "alive",
		})
	}
}

// ReadinessCheck returns 200 once the first scan pass has finished
func (h *Handlers) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	status, body := http.StatusOK, "ready"
	if !h.scanner.IsReady() {
		status, body = http.StatusServiceUnavailable, "not_ready"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if r.Method != http.MethodHead {
		writeJSON(w, map[string]string{"status": body})
	}
}
