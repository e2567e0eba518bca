package startup

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"modelcat/internal/thumbnail"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "modelcat.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDecode_Defaults(t *testing.T) {
	v, err := NewViper(writeConfig(t, "{}\n"))
	if err != nil {
		t.Fatalf("NewViper failed: %v", err)
	}
	cfg, err := Decode(v)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("Expected port 8080, got %s", cfg.Port)
	}
	if cfg.ScanIntervalDuration != 30*time.Minute {
		t.Errorf("Expected 30m scan interval, got %v", cfg.ScanIntervalDuration)
	}
	if cfg.DebounceWindowDuration != 2*time.Second || cfg.SweepIntervalDuration != 500*time.Millisecond {
		t.Errorf("Unexpected debounce settings %v/%v", cfg.DebounceWindowDuration, cfg.SweepIntervalDuration)
	}
	if cfg.RenamePairWindowDuration != 250*time.Millisecond {
		t.Errorf("Expected 250ms pairing window, got %v", cfg.RenamePairWindowDuration)
	}
	if cfg.QueueSize != 1024 {
		t.Errorf("Expected queue size 1024, got %d", cfg.QueueSize)
	}
	if !cfg.WatchEnabled || !cfg.ScanOnStartup || !cfg.Thumbnails.Enabled {
		t.Error("Expected watcher, startup scan and thumbnails enabled by default")
	}
	if cfg.ThumbnailMode != thumbnail.ModeSolid || cfg.ThumbnailQuality != thumbnail.QualityMedium {
		t.Errorf("Unexpected thumbnail defaults %s/%s", cfg.ThumbnailMode, cfg.ThumbnailQuality)
	}
	if len(cfg.Libraries) != 0 {
		t.Errorf("Expected no libraries, got %v", cfg.Libraries)
	}
}

func TestDecode_File(t *testing.T) {
	path := writeConfig(t, `
port: "9000"
scan_interval: 1h
watch_enabled: false
debounce_window: 750ms
queue_size: 64
thumbnails:
  mode: wireframe
  quality: high
memory:
  limit: 2GiB
  ratio: 0.5
log:
  level: debug
  max_size: 10
libraries:
  - name: minis
    path: /data/minis
  - path: /data/terrain
`)
	v, err := NewViper(path)
	if err != nil {
		t.Fatal(err)
	}
	cfg, err := Decode(v)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Source != path {
		t.Errorf("Expected source %s, got %s", path, cfg.Source)
	}
	if cfg.Port != "9000" || cfg.ScanIntervalDuration != time.Hour || cfg.WatchEnabled {
		t.Errorf("Unexpected top-level values %+v", cfg.FileConfig)
	}
	if cfg.DebounceWindowDuration != 750*time.Millisecond || cfg.QueueSize != 64 {
		t.Errorf("Unexpected watcher values %v %d", cfg.DebounceWindowDuration, cfg.QueueSize)
	}
	if cfg.ThumbnailMode != thumbnail.ModeWireframe || cfg.ThumbnailQuality != thumbnail.QualityHigh {
		t.Errorf("Unexpected thumbnail settings %s/%s", cfg.ThumbnailMode, cfg.ThumbnailQuality)
	}
	if cfg.MemoryLimitBytes != 2<<30 || cfg.Memory.Ratio != 0.5 {
		t.Errorf("Unexpected memory settings %d %v", cfg.MemoryLimitBytes, cfg.Memory.Ratio)
	}
	if opts := cfg.LoggingOptions(); opts.Level != "debug" || opts.MaxSizeMB != 10 || opts.MaxBackups != 5 {
		t.Errorf("Unexpected logging options %+v", opts)
	}

	if len(cfg.Libraries) != 2 {
		t.Fatalf("Expected 2 libraries, got %v", cfg.Libraries)
	}
	if cfg.Libraries[0].Name != "minis" || cfg.Libraries[1].Name != "terrain" {
		t.Errorf("Expected names minis and terrain, got %v", cfg.Libraries)
	}
}

func TestDecode_EnvOverrides(t *testing.T) {
	t.Setenv("MODELCAT_PORT", "7070")
	t.Setenv("MODELCAT_LOG_LEVEL", "warn")
	t.Setenv("MODELCAT_THUMBNAILS_ENABLED", "false")

	v, err := NewViper(writeConfig(t, "port: \"9000\"\n"))
	if err != nil {
		t.Fatal(err)
	}
	cfg, err := Decode(v)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Port != "7070" {
		t.Errorf("Expected env to override file, got port %s", cfg.Port)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Expected log level warn, got %s", cfg.Log.Level)
	}
	if cfg.Thumbnails.Enabled {
		t.Error("Expected thumbnails disabled by env")
	}
}

func TestDecode_DotEnvNextToConfig(t *testing.T) {
	path := writeConfig(t, "{}\n")
	dotenv := filepath.Join(filepath.Dir(path), ".env")
	if err := os.WriteFile(dotenv, []byte("MODELCAT_QUEUE_SIZE=32\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("MODELCAT_QUEUE_SIZE") })

	v, err := NewViper(path)
	if err != nil {
		t.Fatal(err)
	}
	cfg, err := Decode(v)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.QueueSize != 32 {
		t.Errorf("Expected queue size from .env, got %d", cfg.QueueSize)
	}
}

func TestDecode_InvalidValuesFallBack(t *testing.T) {
	v, err := NewViper(writeConfig(t, `
scan_interval: soon
sweep_interval: -1s
queue_size: 0
memory:
  limit: lots
`))
	if err != nil {
		t.Fatal(err)
	}
	cfg, err := Decode(v)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.ScanIntervalDuration != 30*time.Minute {
		t.Errorf("Expected default scan interval, got %v", cfg.ScanIntervalDuration)
	}
	if cfg.SweepIntervalDuration != 500*time.Millisecond {
		t.Errorf("Expected default sweep interval, got %v", cfg.SweepIntervalDuration)
	}
	if cfg.QueueSize != 1024 {
		t.Errorf("Expected default queue size, got %d", cfg.QueueSize)
	}
	if cfg.MemoryLimitBytes != 0 {
		t.Errorf("Expected invalid memory limit to be ignored, got %d", cfg.MemoryLimitBytes)
	}
}

func TestDecode_LibraryWithoutPath(t *testing.T) {
	v, err := NewViper(writeConfig(t, "libraries:\n  - name: broken\n"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Decode(v); err == nil {
		t.Error("Expected error for a library without a path")
	}
}

func TestNewViper_BadFile(t *testing.T) {
	if _, err := NewViper(writeConfig(t, "port: [unclosed\n")); err == nil {
		t.Error("Expected error for malformed YAML")
	}
}

func TestLoadConfig_PreparesDirectories(t *testing.T) {
	base := t.TempDir()
	lib := filepath.Join(base, "models")
	if err := os.MkdirAll(lib, 0o755); err != nil {
		t.Fatal(err)
	}

	path := writeConfig(t, "database_dir: "+filepath.Join(base, "db")+"\n"+
		"cache_dir: "+filepath.Join(base, "cache")+"\n"+
		"libraries:\n  - name: models\n    path: "+lib+"\n")
	v, err := NewViper(path)
	if err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(v)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.DatabasePath != filepath.Join(base, "db", "modelcat.db") {
		t.Errorf("Unexpected database path %s", cfg.DatabasePath)
	}
	if !cfg.ThumbnailsEnabled {
		t.Error("Expected thumbnails enabled")
	}
	if _, err := os.Stat(cfg.ThumbnailDir); err != nil {
		t.Errorf("Expected thumbnail dir to exist: %v", err)
	}
}

func TestResolve_RelativePaths(t *testing.T) {
	base := t.TempDir()
	t.Chdir(base)

	path := writeConfig(t, "database_dir: db\ncache_dir: cache\nlibraries:\n  - path: prints\n")
	v, err := NewViper(path)
	if err != nil {
		t.Fatal(err)
	}
	cfg, err := Resolve(v)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if cfg.DatabasePath != filepath.Join(base, "db", "modelcat.db") {
		t.Errorf("Unexpected database path %s", cfg.DatabasePath)
	}
	if cfg.ThumbnailDir != filepath.Join(base, "cache", "thumbnails") {
		t.Errorf("Unexpected thumbnail dir %s", cfg.ThumbnailDir)
	}
	if got := cfg.Libraries[0]; got.Name != "prints" || got.Path != filepath.Join(base, "prints") {
		t.Errorf("Unexpected library %+v", got)
	}
	if _, err := os.Stat(filepath.Join(base, "db")); err != nil {
		t.Errorf("Expected database dir to be created: %v", err)
	}
	if _, err := os.Stat(filepath.Join(base, "cache")); !os.IsNotExist(err) {
		t.Errorf("Expected cache dir to be left alone, stat err = %v", err)
	}
}

func TestDefaults_RoundTripThroughYAML(t *testing.T) {
	data, err := yaml.Marshal(Defaults())
	if err != nil {
		t.Fatal(err)
	}
	path := writeConfig(t, string(data))

	v, err := NewViper(path)
	if err != nil {
		t.Fatal(err)
	}
	cfg, err := Decode(v)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.FileConfig.Port != Defaults().Port || cfg.QueueSize != Defaults().QueueSize {
		t.Errorf("Expected written defaults to load back, got %+v", cfg.FileConfig)
	}
}
