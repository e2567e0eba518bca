package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"modelcat/internal/database"
	"modelcat/internal/scanner"
	"modelcat/internal/watcher"
)

// ScanController is the part of the batch scanner the ops API drives.
type ScanController interface {
	IsReady() bool
	Progress() scanner.Progress
	LastStats() (scanner.Stats, time.Time, error)
	TriggerScan(source string) bool
}

// WatchStatus reports the realtime watcher state.
type WatchStatus interface {
	Status() watcher.Status
}

// Catalog is the read-only view of the database used by the ops API.
type Catalog interface {
	Ping(ctx context.Context) error
	CountModels(ctx context.Context, status database.Status) (int, error)
	ListScanRuns(ctx context.Context, limit int) ([]database.ScanRun, error)
}

type Handlers struct {
	db        Catalog
	scanner   ScanController
	watcher   WatchStatus
	startTime time.Time
}

// New creates the ops handlers. w may be nil when watching is disabled.
func New(db Catalog, s ScanController, w WatchStatus) *Handlers {
	return &Handlers{
		db:        db,
		scanner:   s,
		watcher:   w,
		startTime: time.Now(),
	}
}

// Router registers every ops route on a new gorilla/mux router.
func (h *Handlers) Router(metricsEnabled bool) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", h.HealthCheck).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/livez", h.LivenessCheck).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/readyz", h.ReadinessCheck).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/version", h.GetVersion).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/scan", h.GetScan).Methods(http.MethodGet)
	api.HandleFunc("/scan", h.TriggerScan).Methods(http.MethodPost)
	api.HandleFunc("/scans", h.ListScans).Methods(http.MethodGet)
	api.HandleFunc("/watcher", h.GetWatcher).Methods(http.MethodGet)

	if metricsEnabled {
		r.Handle("/metrics", h.MetricsHandler()).Methods(http.MethodGet)
	}

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSONError(w, "not found", http.StatusNotFound)
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSONError(w, "method not allowed", http.StatusMethodNotAllowed)
	})

	return r
}
