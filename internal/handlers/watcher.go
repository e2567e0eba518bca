package handlers

import (
	"net/http"

	"modelcat/internal/watcher"
)

// GetWatcher reports the realtime watcher state. A disabled watcher is
// reported as not running with no roots.
func (h *Handlers) GetWatcher(w http.ResponseWriter, _ *http.Request) {
	status := watcher.Status{Roots: []string{}}
	if h.watcher != nil {
		status = h.watcher.Status()
	}

	w.Header().Set("Cache-Control", "no-cache")
	writeJSONStatusCode(w, http.StatusOK, status)
}
