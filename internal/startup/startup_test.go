package startup

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/gorilla/mux"

	"modelcat/internal/memory"
)

func TestGetBuildInfo(t *testing.T) {
	info := GetBuildInfo()

	if info.Version == "" {
		t.Error("Expected Version to be set")
	}
	if info.GoVersion == "" {
		t.Error("Expected GoVersion to be set")
	}
	if info.OS == "" {
		t.Error("Expected OS to be set")
	}
	if info.Arch == "" {
		t.Error("Expected Arch to be set")
	}
	if info.GoVersion != GoVersion {
		t.Errorf("Expected GoVersion=%s, got %s", GoVersion, info.GoVersion)
	}
}

func TestGetRoutes(t *testing.T) {
	router := mux.NewRouter()
	router.HandleFunc("/healthz", func(_ http.ResponseWriter, _ *http.Request) {}).Methods("GET", "HEAD")
	router.HandleFunc("/api/scan", func(_ http.ResponseWriter, _ *http.Request) {}).Methods("POST").Name("triggerScan")
	router.HandleFunc("/anything", func(_ http.ResponseWriter, _ *http.Request) {})

	routes, err := GetRoutes(router)
	if err != nil {
		t.Fatalf("GetRoutes failed: %v", err)
	}
	if len(routes) != 4 {
		t.Fatalf("Expected 4 routes, got %d: %+v", len(routes), routes)
	}

	found := false
	for _, r := range routes {
		if r.Path == "/api/scan" && r.Method == "POST" && r.Name == "triggerScan" {
			found = true
		}
		if r.Path == "/anything" && r.Method != "*" {
			t.Errorf("Expected wildcard method for /anything, got %s", r.Method)
		}
	}
	if !found {
		t.Error("Expected named POST /api/scan route")
	}

	// Logging must not panic
	LogHTTPRoutes(router, true)
}

func TestGetRouteGroup(t *testing.T) {
	tests := []struct {
		path     string
		expected string
	}{
		{"/healthz", "healthz"},
		{"/api/scan", "api/scan"},
		{"/api/watcher/status", "api/watcher"},
		{"/", ""},
		{"/metrics", "metrics"},
	}
	for _, tt := range tests {
		if got := getRouteGroup(tt.path); got != tt.expected {
			t.Errorf("getRouteGroup(%q) = %q, want %q", tt.path, got, tt.expected)
		}
	}
}

func TestEnsureDirectory(t *testing.T) {
	base := t.TempDir()

	created := filepath.Join(base, "a", "b")
	if err := ensureDirectory(created, "test", true); err != nil {
		t.Fatalf("Expected directory to be created: %v", err)
	}
	if info, err := os.Stat(created); err != nil || !info.IsDir() {
		t.Errorf("Expected %s to exist", created)
	}

	if err := ensureDirectory(filepath.Join(base, "missing"), "test", false); err == nil {
		t.Error("Expected error for a missing directory without create")
	}

	file := filepath.Join(base, "file")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := ensureDirectory(file, "test", true); err == nil {
		t.Error("Expected error for a file path")
	}
}

func TestSetupOptionalDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "thumbs")
	if !setupOptionalDir(dir, "thumbnails") {
		t.Fatal("Expected writable directory to be enabled")
	}
	if _, err := os.Stat(filepath.Join(dir, ".write-test")); !os.IsNotExist(err) {
		t.Error("Expected write test file to be removed")
	}

	file := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if setupOptionalDir(filepath.Join(file, "sub"), "thumbnails") {
		t.Error("Expected directory below a file to be disabled")
	}
}

func TestEnabledString(t *testing.T) {
	if enabledString(true) != "ENABLED" || enabledString(false) != "DISABLED" {
		t.Error("Unexpected enabledString output")
	}
}

func TestLifecycleLogging(t *testing.T) {
	tests := []struct {
		name string
		fn   func()
	}{
		{name: "Memory not configured", fn: func() { LogMemoryConfig(memory.ConfigResult{Source: "none"}) }},
		{name: "Memory configured", fn: func() {
			LogMemoryConfig(memory.ConfigResult{Configured: true, Source: "config", ContainerLimit: 1 << 30, GoMemLimit: 900 << 20, Ratio: 0.85})
		}},
		{name: "No libraries", fn: func() { LogLibraries(nil, nil) }},
		{name: "Libraries", fn: func() { LogLibraries([]string{"minis"}, []string{"/data/minis"}) }},
		{name: "Scanner", fn: func() { LogScannerInit(0, true) }},
		{name: "Watcher disabled", fn: func() { LogWatcherInit(false, 0, 0) }},
		{name: "Server", fn: func() { LogServerStarted(ServerConfig{Port: "8080", MetricsEnabled: true}) }},
		{name: "Shutdown", fn: func() {
			LogShutdownInitiated("SIGTERM")
			LogShutdownStep("Stopping watcher")
			LogShutdownStepComplete("Watcher stopped")
			LogShutdownComplete()
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				if r := recover(); r != nil {
					t.Errorf("Function panicked: %v", r)
				}
			}()
			tt.fn()
		})
	}
}
