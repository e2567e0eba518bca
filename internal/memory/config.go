package memory

import (
	"fmt"
	"math"
	"os"
	"runtime/debug"
	"strconv"
	"strings"

	"modelcat/internal/logging"
)

// DefaultMemoryRatio is the share of the container limit given to the Go heap.
// The remainder covers mesh buffers, SQLite page cache and goroutine stacks.
const DefaultMemoryRatio = 0.85

// LimitSettings describes the container memory budget.
type LimitSettings struct {
	// ContainerLimit is the container memory limit in bytes (0 = unknown).
	ContainerLimit int64
	// Ratio is the share of ContainerLimit used for GOMEMLIMIT (0 = default).
	Ratio float64
}

// ConfigResult reports what ApplyLimit did.
type ConfigResult struct {
	Configured     bool
	Source         string // "GOMEMLIMIT", "config" or "none"
	ContainerLimit int64
	GoMemLimit     int64
	Ratio          float64
}

// ApplyLimit sets the runtime soft memory limit from s. An explicit GOMEMLIMIT
// environment variable always wins. Call it before the first scan.
func ApplyLimit(s LimitSettings) ConfigResult {
	if env := os.Getenv("GOMEMLIMIT"); env != "" {
		result := ConfigResult{Source: "GOMEMLIMIT"}
		if limit := debug.SetMemoryLimit(-1); limit > 0 && limit < math.MaxInt64 {
			result.Configured = true
			result.GoMemLimit = limit
		}
		logging.Info("GOMEMLIMIT set via environment: %s", env)
		return result
	}

	if s.ContainerLimit <= 0 {
		logging.Debug("No memory limit configured, GOMEMLIMIT left unset")
		return ConfigResult{Source: "none"}
	}

	ratio := s.Ratio
	if ratio <= 0 || ratio > 1 {
		if ratio != 0 {
			logging.Warn("Memory ratio %.2f out of range (0.0-1.0), using default %.2f", ratio, DefaultMemoryRatio)
		}
		ratio = DefaultMemoryRatio
	}

	goMemLimit := int64(float64(s.ContainerLimit) * ratio)
	debug.SetMemoryLimit(goMemLimit)

	logging.Info("Configured GOMEMLIMIT: %s (%.1f%% of %s container limit)",
		FormatBytes(goMemLimit), ratio*100, FormatBytes(s.ContainerLimit))

	return ConfigResult{
		Configured:     true,
		Source:         "config",
		ContainerLimit: s.ContainerLimit,
		GoMemLimit:     goMemLimit,
		Ratio:          ratio,
	}
}

var sizeUnits = []struct {
	suffix string
	mult   int64
}{
	{"KIB", 1 << 10}, {"MIB", 1 << 20}, {"GIB", 1 << 30}, {"TIB", 1 << 40},
	{"KB", 1000}, {"MB", 1000 * 1000}, {"GB", 1000 * 1000 * 1000}, {"TB", 1000 * 1000 * 1000 * 1000},
	{"K", 1 << 10}, {"M", 1 << 20}, {"G", 1 << 30}, {"T", 1 << 40},
	{"B", 1},
}

// ParseSize parses byte sizes such as "1073741824", "512MiB", "2G" or "1.5GB".
// Single-letter suffixes are binary, as in Kubernetes quantities.
func ParseSize(s string) (int64, error) {
	v := strings.ToUpper(strings.TrimSpace(s))
	if v == "" {
		return 0, nil
	}

	mult := int64(1)
	for _, u := range sizeUnits {
		if strings.HasSuffix(v, u.suffix) {
			v = strings.TrimSpace(strings.TrimSuffix(v, u.suffix))
			mult = u.mult
			break
		}
	}

	n, err := strconv.ParseFloat(v, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	return int64(n * float64(mult)), nil
}

// FormatBytes formats b with binary units.
func FormatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return strconv.FormatInt(b, 10) + " B"
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return strconv.FormatFloat(float64(b)/float64(div), 'f', 1, 64) + " " + string("KMGTPE"[exp]) + "iB"
}
