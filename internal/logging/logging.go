package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	// LevelDebug is the debug log level
	LevelDebug LogLevel = iota
	// LevelInfo is the info log level
	LevelInfo
	// LevelWarn is the warning log level
	LevelWarn
	// LevelError is the error log level
	LevelError
)

var (
	levelMu      sync.RWMutex
	currentLevel LogLevel
	levelOnce    sync.Once

	fileWriter *lumberjack.Logger
)

// Options configures where log output goes.
type Options struct {
	// Level overrides the environment-derived level when non-empty.
	Level string
	// File enables a rotating log file in addition to stdout.
	File string
	// NoTerminal disables stdout output when File is set.
	NoTerminal bool
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// initLevel initializes the log level from environment variables
func initLevel() {
	levelOnce.Do(func() {
		// Check DEBUG environment variable first
		if debug := os.Getenv("DEBUG"); debug != "" {
			switch strings.ToLower(debug) {
			case "1", "true", "yes", "on":
				currentLevel = LevelDebug
				return
			}
		}

		currentLevel = ParseLevel(os.Getenv("LOG_LEVEL"))
	})
}

// ParseLevel converts a level name to a LogLevel. Unknown names map to info.
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Configure applies output and level options. It is safe to call more than once;
// a previously opened log file is closed.
func Configure(opts Options) error {
	initLevel()
	if opts.Level != "" {
		SetLevel(ParseLevel(opts.Level))
	}

	levelMu.Lock()
	defer levelMu.Unlock()

	if fileWriter != nil {
		if err := fileWriter.Close(); err != nil {
			return fmt.Errorf("failed to close previous log file: %w", err)
		}
		fileWriter = nil
	}

	if opts.File == "" {
		log.SetOutput(os.Stderr)
		return nil
	}

	fileWriter = &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
		Compress:   opts.Compress,
	}

	var writers []io.Writer
	if !opts.NoTerminal {
		writers = append(writers, os.Stderr)
	}
	writers = append(writers, fileWriter)
	log.SetOutput(io.MultiWriter(writers...))
	return nil
}

// SetLevel sets the active log level.
func SetLevel(level LogLevel) {
	initLevel()
	levelMu.Lock()
	currentLevel = level
	levelMu.Unlock()
}

// GetLevel returns the current log level
func GetLevel() LogLevel {
	initLevel()
	levelMu.RLock()
	defer levelMu.RUnlock()
	return currentLevel
}

// IsDebugEnabled returns true if debug logging is enabled
func IsDebugEnabled() bool {
	return GetLevel() <= LevelDebug
}

// Debug logs a debug message (only if DEBUG=true or LOG_LEVEL=debug)
func Debug(format string, args ...interface{}) {
	if GetLevel() <= LevelDebug {
		log.Printf("[DEBUG] "+format, args...)
	}
}

// Info logs an info message
func Info(format string, args ...interface{}) {
	if GetLevel() <= LevelInfo {
		log.Printf("[INFO] "+format, args...)
	}
}

// Warn logs a warning message
func Warn(format string, args ...interface{}) {
	if GetLevel() <= LevelWarn {
		log.Printf("[WARN] "+format, args...)
	}
}

// Error logs an error message
func Error(format string, args ...interface{}) {
	if GetLevel() <= LevelError {
		log.Printf("[ERROR] "+format, args...)
	}
}

// Fatal logs an error message and exits
func Fatal(format string, args ...interface{}) {
	log.Fatalf("[FATAL] "+format, args...)
}

// Printf is a pass-through to log.Printf for messages that should always print
func Printf(format string, args ...interface{}) {
	log.Printf(format, args...)
}

// String returns the string representation of a log level
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return fmt.Sprintf("unknown(%d)", l)
	}
}
