package handlers

import (
	"net/http"
	"runtime"
	"testing"
	"time"

	"modelcat/internal/database"
	"modelcat/internal/scanner"
	"modelcat/internal/watcher"
)

// =============================================================================
// HealthCheck Tests
// =============================================================================

func TestHealthCheckStarting(t *testing.T) {
	t.Parallel()

	h, s, _ := newTestHandlers()
	s.progress = scanner.Progress{IsScanning: true, FilesSeen: 42}

	w := serve(t, http.HandlerFunc(h.HealthCheck), http.MethodGet, "/healthz")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 before the first scan, got %d", w.Code)
	}

	resp := decode[HealthResponse](t, w)
	if resp.Status != statusStarting {
		t.Errorf("Expected status %q, got %q", statusStarting, resp.Status)
	}
	if resp.Ready {
		t.Error("Expected ready=false")
	}
	if !resp.Scanning || resp.FilesSeen != 42 {
		t.Errorf("Expected scanning with 42 files seen, got %v/%d", resp.Scanning, resp.FilesSeen)
	}
}

func TestHealthCheckHealthy(t *testing.T) {
	t.Parallel()

	s := &mockScanner{ready: true, lastScan: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	db := &mockCatalog{counts: map[database.Status]int{
		database.StatusActive:  7,
		database.StatusMissing: 2,
	}}
	wt := &mockWatcher{status: watcher.Status{Running: true}}
	h := New(db, s, wt)

	w := serve(t, http.HandlerFunc(h.HealthCheck), http.MethodGet, "/healthz")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected JSON content type, got %q", ct)
	}

	resp := decode[HealthResponse](t, w)
	if resp.Status != statusHealthy {
		t.Errorf("Expected status %q, got %q", statusHealthy, resp.Status)
	}
	if resp.ActiveModels != 7 || resp.MissingModels != 2 {
		t.Errorf("Expected 7 active and 2 missing, got %d/%d", resp.ActiveModels, resp.MissingModels)
	}
	if !resp.Watching {
		t.Error("Expected watching=true")
	}
	if resp.LastScanned != "2026-03-01T12:00:00Z" {
		t.Errorf("Unexpected lastScanned %q", resp.LastScanned)
	}
	if resp.GoVersion != runtime.Version() || resp.NumCPU != runtime.NumCPU() {
		t.Error("Expected runtime info in response")
	}
}

func TestHealthCheckDegraded(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		scanErr error
		pingErr error
	}{
		{"last scan failed", errTest, nil},
		{"database unreachable", nil, errTest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := &mockScanner{ready: true, lastErr: tt.scanErr}
			db := &mockCatalog{pingErr: tt.pingErr}
			h := New(db, s, nil)

			w := serve(t, http.HandlerFunc(h.HealthCheck), http.MethodGet, "/healthz")
			if w.Code != http.StatusOK {
				t.Errorf("Expected 200 for a degraded but ready service, got %d", w.Code)
			}
			resp := decode[HealthResponse](t, w)
			if resp.Status != statusDegraded {
				t.Errorf("Expected status %q, got %q", statusDegraded, resp.Status)
			}
			if tt.scanErr != nil && resp.LastScanError != "boom" {
				t.Errorf("Expected lastScanError, got %q", resp.LastScanError)
			}
			if tt.pingErr != nil && resp.DatabaseError != "boom" {
				t.Errorf("Expected databaseError, got %q", resp.DatabaseError)
			}
		})
	}
}

func TestHealthCheckHead(t *testing.T) {
	t.Parallel()

	h, s, _ := newTestHandlers()
	s.ready = true

	w := serve(t, http.HandlerFunc(h.HealthCheck), http.MethodHead, "/healthz")
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}
	if w.Body.Len() != 0 {
		t.Errorf("Expected empty body for HEAD, got %q", w.Body.String())
	}
}

// =============================================================================
// Liveness / Readiness Tests
// =============================================================================

func TestLivenessCheck(t *testing.T) {
	t.Parallel()

	h, _, _ := newTestHandlers()

	w := serve(t, http.HandlerFunc(h.LivenessCheck), http.MethodGet, "/livez")
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}
	if resp := decode[map[string]string](t, w); resp["status"] != "alive" {
		t.Errorf("Expected status alive, got %v", resp)
	}

	w = serve(t, http.HandlerFunc(h.LivenessCheck), http.MethodHead, "/livez")
	if w.Body.Len() != 0 {
		t.Error("Expected empty body for HEAD")
	}
}

func TestReadinessCheck(t *testing.T) {
	t.Parallel()

	h, s, _ := newTestHandlers()

	w := serve(t, http.HandlerFunc(h.ReadinessCheck), http.MethodGet, "/readyz")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 before ready, got %d", w.Code)
	}
	if resp := decode[map[string]string](t, w); resp["status"] != "not_ready" {
		t.Errorf("Expected not_ready, got %v", resp)
	}

	s.mu.Lock()
	s.ready = true
	s.mu.Unlock()

	w = serve(t, http.HandlerFunc(h.ReadinessCheck), http.MethodGet, "/readyz")
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200 once ready, got %d", w.Code)
	}
	if resp := decode[map[string]string](t, w); resp["status"] != "ready" {
		t.Errorf("Expected ready, got %v", resp)
	}
}
