package startup

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"modelcat/internal/logging"
	"modelcat/internal/memory"
	"modelcat/internal/thumbnail"
)

// EnvPrefix prefixes every environment override, e.g. MODELCAT_LOG_LEVEL.
const EnvPrefix = "MODELCAT"

// LibraryConfig declares one library root.
type LibraryConfig struct {
	Name string `mapstructure:"name" yaml:"name"`
	Path string `mapstructure:"path" yaml:"path"`
}

// ThumbnailConfig controls thumbnail rendering.
type ThumbnailConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Mode    string `mapstructure:"mode" yaml:"mode"`
	Quality string `mapstructure:"quality" yaml:"quality"`
	Workers int    `mapstructure:"workers" yaml:"workers"`
}

// LogConfig controls log output.
type LogConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	File       string `mapstructure:"file" yaml:"file"`
	NoTerminal bool   `mapstructure:"no_terminal" yaml:"no_terminal"`
	MaxSize    int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge     int    `mapstructure:"max_age" yaml:"max_age"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// MemoryConfig sizes GOMEMLIMIT and the scan backpressure thresholds.
type MemoryConfig struct {
	Limit string  `mapstructure:"limit" yaml:"limit"`
	Ratio float64 `mapstructure:"ratio" yaml:"ratio"`
}

// FileConfig is the on-disk shape of modelcat.yaml. Durations are Go
// duration strings.
type FileConfig struct {
	DatabaseDir     string `mapstructure:"database_dir" yaml:"database_dir"`
	CacheDir        string `mapstructure:"cache_dir" yaml:"cache_dir"`
	Port            string `mapstructure:"port" yaml:"port"`
	MetricsEnabled  bool   `mapstructure:"metrics_enabled" yaml:"metrics_enabled"`
	LogHealthChecks bool   `mapstructure:"log_health_checks" yaml:"log_health_checks"`
	ShutdownTimeout string `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`

	ScanOnStartup bool   `mapstructure:"scan_on_startup" yaml:"scan_on_startup"`
	ScanInterval  string `mapstructure:"scan_interval" yaml:"scan_interval"`
	ScanWorkers   int    `mapstructure:"scan_workers" yaml:"scan_workers"`

	WatchEnabled     bool   `mapstructure:"watch_enabled" yaml:"watch_enabled"`
	DebounceWindow   string `mapstructure:"debounce_window" yaml:"debounce_window"`
	SweepInterval    string `mapstructure:"sweep_interval" yaml:"sweep_interval"`
	RenamePairWindow string `mapstructure:"rename_pair_window" yaml:"rename_pair_window"`
	QueueSize        int    `mapstructure:"queue_size" yaml:"queue_size"`

	Thumbnails ThumbnailConfig `mapstructure:"thumbnails" yaml:"thumbnails"`
	Memory     MemoryConfig    `mapstructure:"memory" yaml:"memory"`
	Log        LogConfig       `mapstructure:"log" yaml:"log"`
	Libraries  []LibraryConfig `mapstructure:"libraries" yaml:"libraries"`
}

// Defaults returns the built-in configuration.
func Defaults() FileConfig {
	return FileConfig{
		DatabaseDir:     "/database",
		CacheDir:        "/cache",
		Port:            "8080",
		MetricsEnabled:  true,
		LogHealthChecks: false,
		ShutdownTimeout: "10s",

		ScanOnStartup: true,
		ScanInterval:  "30m",

		WatchEnabled:     true,
		DebounceWindow:   "2s",
		SweepInterval:    "500ms",
		RenamePairWindow: "250ms",
		QueueSize:        1024,

		Thumbnails: ThumbnailConfig{
			Enabled: true,
			Mode:    string(thumbnail.ModeSolid),
			Quality: string(thumbnail.QualityMedium),
		},
		Memory: MemoryConfig{Ratio: memory.DefaultMemoryRatio},
		Log: LogConfig{
			Level:      "info",
			MaxSize:    128,
			MaxBackups: 5,
			MaxAge:     16,
		},
		Libraries: []LibraryConfig{},
	}
}

func setDefaults(v *viper.Viper) {
	d := Defaults()

	v.SetDefault("database_dir", d.DatabaseDir)
	v.SetDefault("cache_dir", d.CacheDir)
	v.SetDefault("port", d.Port)
	v.SetDefault("metrics_enabled", d.MetricsEnabled)
	v.SetDefault("log_health_checks", d.LogHealthChecks)
	v.SetDefault("shutdown_timeout", d.ShutdownTimeout)

	v.SetDefault("scan_on_startup", d.ScanOnStartup)
	v.SetDefault("scan_interval", d.ScanInterval)
	v.SetDefault("scan_workers", d.ScanWorkers)

	v.SetDefault("watch_enabled", d.WatchEnabled)
	v.SetDefault("debounce_window", d.DebounceWindow)
	v.SetDefault("sweep_interval", d.SweepInterval)
	v.SetDefault("rename_pair_window", d.RenamePairWindow)
	v.SetDefault("queue_size", d.QueueSize)

	v.SetDefault("thumbnails.enabled", d.Thumbnails.Enabled)
	v.SetDefault("thumbnails.mode", d.Thumbnails.Mode)
	v.SetDefault("thumbnails.quality", d.Thumbnails.Quality)
	v.SetDefault("thumbnails.workers", d.Thumbnails.Workers)

	v.SetDefault("memory.limit", d.Memory.Limit)
	v.SetDefault("memory.ratio", d.Memory.Ratio)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.no_terminal", d.Log.NoTerminal)
	v.SetDefault("log.max_size", d.Log.MaxSize)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.max_age", d.Log.MaxAge)
	v.SetDefault("log.compress", d.Log.Compress)

	v.SetDefault("libraries", d.Libraries)
}

var envFiles = []string{".env", ".env.local"}

// configDirs are searched in order for modelcat.yaml.
var configDirs = []string{".", "./config", "/etc/modelcat", "$HOME/.modelcat"}

// NewViper prepares a viper instance: .env files, the config file (path, or
// modelcat.yaml in the usual places) and MODELCAT_* environment overrides.
// A missing config file is not an error.
func NewViper(path string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)

	dirs := configDirs
	if path != "" {
		v.SetConfigFile(path)
		dirs = []string{filepath.Dir(path)}
	} else {
		v.SetConfigName("modelcat")
		v.SetConfigType("yaml")
		for _, dir := range configDirs {
			v.AddConfigPath(dir)
		}
	}

	for _, dir := range dirs {
		for _, name := range envFiles {
			// Missing .env files are fine
			_ = godotenv.Load(filepath.Join(os.ExpandEnv(dir), name))
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}
	return v, nil
}

// Config is the resolved runtime configuration.
type Config struct {
	FileConfig

	// Source is the config file in use, empty when running on defaults.
	Source string

	ScanIntervalDuration     time.Duration
	DebounceWindowDuration   time.Duration
	SweepIntervalDuration    time.Duration
	RenamePairWindowDuration time.Duration
	ShutdownTimeoutDuration  time.Duration
	MemoryLimitBytes         int64

	ThumbnailMode    thumbnail.Mode
	ThumbnailQuality thumbnail.Quality

	// Derived paths
	DatabasePath string
	ThumbnailDir string

	// Feature flags based on directory availability
	ThumbnailsEnabled bool
}

// Decode unmarshals v and parses durations and sizes. Invalid values fall
// back to their defaults with a warning.
func Decode(v *viper.Viper) (*Config, error) {
	var fc FileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	d := Defaults()
	cfg := &Config{
		FileConfig:               fc,
		Source:                   v.ConfigFileUsed(),
		ScanIntervalDuration:     parseDuration("scan_interval", fc.ScanInterval, d.ScanInterval),
		DebounceWindowDuration:   parseDuration("debounce_window", fc.DebounceWindow, d.DebounceWindow),
		SweepIntervalDuration:    parseDuration("sweep_interval", fc.SweepInterval, d.SweepInterval),
		RenamePairWindowDuration: parseDuration("rename_pair_window", fc.RenamePairWindow, d.RenamePairWindow),
		ShutdownTimeoutDuration:  parseDuration("shutdown_timeout", fc.ShutdownTimeout, d.ShutdownTimeout),
		ThumbnailMode:            thumbnail.ParseMode(fc.Thumbnails.Mode),
		ThumbnailQuality:         thumbnail.ParseQuality(fc.Thumbnails.Quality),
	}

	if fc.Memory.Limit != "" {
		limit, err := memory.ParseSize(fc.Memory.Limit)
		if err != nil {
			logging.Warn("  Invalid memory.limit %q, ignoring: %v", fc.Memory.Limit, err)
		} else {
			cfg.MemoryLimitBytes = limit
		}
	}

	if cfg.QueueSize <= 0 {
		logging.Warn("  Invalid queue_size %d, using default: %d", cfg.QueueSize, d.QueueSize)
		cfg.QueueSize = d.QueueSize
	}

	for i, lib := range cfg.Libraries {
		if lib.Path == "" {
			return nil, fmt.Errorf("library %d (%q) has no path", i, lib.Name)
		}
		if lib.Name == "" {
			cfg.Libraries[i].Name = filepath.Base(filepath.Clean(lib.Path))
		}
	}

	return cfg, nil
}

func parseDuration(key, value, fallback string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		logging.Warn("  Invalid %s %q, using default: %s", key, value, fallback)
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

// Resolve decodes v and makes every path absolute without printing the
// startup report. Commands that only touch the database use it.
func Resolve(v *viper.Viper) (*Config, error) {
	cfg, err := Decode(v)
	if err != nil {
		return nil, err
	}

	if cfg.DatabaseDir, err = filepath.Abs(cfg.DatabaseDir); err != nil {
		return nil, fmt.Errorf("failed to resolve database directory path: %w", err)
	}
	if cfg.CacheDir, err = filepath.Abs(cfg.CacheDir); err != nil {
		return nil, fmt.Errorf("failed to resolve cache directory path: %w", err)
	}
	for i, lib := range cfg.Libraries {
		abs, err := filepath.Abs(lib.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve library %s path: %w", lib.Name, err)
		}
		cfg.Libraries[i].Path = abs
	}

	cfg.DatabasePath = filepath.Join(cfg.DatabaseDir, "modelcat.db")
	cfg.ThumbnailDir = filepath.Join(cfg.CacheDir, "thumbnails")
	cfg.ThumbnailsEnabled = cfg.Thumbnails.Enabled

	if err := ensureDirectory(cfg.DatabaseDir, "database", true); err != nil {
		return nil, fmt.Errorf("database directory error: %w", err)
	}
	return cfg, nil
}

// LoadConfig resolves v, prints the startup banner and configuration, and
// checks the library, database and cache directories.
func LoadConfig(v *viper.Viper) (*Config, error) {
	printBanner()
	logSystemInfo()

	logging.Info("------------------------------------------------------------")
	logging.Info("CONFIGURATION")
	logging.Info("------------------------------------------------------------")

	cfg, err := Resolve(v)
	if err != nil {
		return nil, err
	}

	if cfg.Source != "" {
		logging.Info("  Config file:         %s", cfg.Source)
	} else {
		logging.Info("  Config file:         (none, using defaults and %s_* environment)", EnvPrefix)
	}
	logging.Info("  DATABASE_DIR:        %s", cfg.DatabaseDir)
	logging.Info("  CACHE_DIR:           %s", cfg.CacheDir)
	logging.Info("  PORT:                %s", cfg.Port)
	logging.Info("  METRICS_ENABLED:     %v", cfg.MetricsEnabled)
	logging.Info("  SCAN_ON_STARTUP:     %v", cfg.ScanOnStartup)
	logging.Info("  SCAN_INTERVAL:       %v", cfg.ScanIntervalDuration)
	logging.Info("  WATCH_ENABLED:       %v", cfg.WatchEnabled)
	logging.Info("  DEBOUNCE_WINDOW:     %v", cfg.DebounceWindowDuration)
	logging.Info("  QUEUE_SIZE:          %d", cfg.QueueSize)
	logging.Info("  THUMBNAILS:          %s/%s", cfg.ThumbnailMode, cfg.ThumbnailQuality)
	logging.Info("  LOG_LEVEL:           %s", logging.GetLevel())

	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("DIRECTORY SETUP")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Database directory (absolute): %s", cfg.DatabaseDir)
	logging.Info("  Cache directory (absolute): %s", cfg.CacheDir)

	for _, lib := range cfg.Libraries {
		if err := ensureDirectory(lib.Path, "library "+lib.Name, false); err != nil {
			logging.Warn("  Library %s: %v", lib.Name, err)
		} else {
			logging.Info("  Library %s: %s", lib.Name, lib.Path)
		}
	}

	logging.Debug("  Testing database directory write access...")
	if err := testWriteAccess(cfg.DatabaseDir); err != nil {
		return nil, fmt.Errorf("database directory is not writable (required for database): %w", err)
	}
	logging.Info("  [OK] Database directory is writable")

	cfg.ThumbnailsEnabled = cfg.Thumbnails.Enabled && setupOptionalDir(cfg.ThumbnailDir, "thumbnails")

	logging.Info("")
	logging.Info("  Feature availability:")
	logging.Info("    Database:    ENABLED (required)")
	logging.Info("    Thumbnails:  %s", enabledString(cfg.ThumbnailsEnabled))
	logging.Info("    Watcher:     %s", enabledString(cfg.WatchEnabled))
	logging.Info("    Metrics:     %s", enabledString(cfg.MetricsEnabled))

	return cfg, nil
}

// LoggingOptions maps the log section onto logging.Options.
func (c *Config) LoggingOptions() logging.Options {
	return logging.Options{
		Level:      c.Log.Level,
		File:       c.Log.File,
		NoTerminal: c.Log.NoTerminal,
		MaxSizeMB:  c.Log.MaxSize,
		MaxBackups: c.Log.MaxBackups,
		MaxAgeDays: c.Log.MaxAge,
		Compress:   c.Log.Compress,
	}
}
