package memory

import (
	"context"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"modelcat/internal/logging"
	"modelcat/internal/metrics"
)

// Config holds the backpressure thresholds.
type Config struct {
	// LimitBytes is the soft limit to measure against (0 = use GOMEMLIMIT).
	LimitBytes int64
	// HighWaterMark is the usage ratio below which a paused monitor resumes.
	HighWaterMark float64
	// CriticalWaterMark is the usage ratio at which scanning pauses.
	CriticalWaterMark float64
	// CheckInterval is how often heap usage is sampled.
	CheckInterval time.Duration
}

// DefaultConfig returns the default thresholds.
func DefaultConfig() Config {
	return Config{
		HighWaterMark:     0.7,
		CriticalWaterMark: 0.85,
		CheckInterval:     5 * time.Second,
	}
}

// Monitor samples heap usage and pauses scan workers while it is critical.
// A nil *Monitor never pauses.
type Monitor struct {
	config   Config
	limit    int64
	stopOnce sync.Once
	stopChan chan struct{}

	mu       sync.RWMutex
	current  uint64
	paused   bool
	resumeCh chan struct{}
}

// NewMonitor creates a monitor. Without a limit it never pauses.
func NewMonitor(config Config) *Monitor {
	limit := config.LimitBytes
	if limit == 0 {
		if goMemLimit := debug.SetMemoryLimit(-1); goMemLimit > 0 && goMemLimit < 1<<62 {
			limit = goMemLimit
			logging.Info("Memory monitor using GOMEMLIMIT: %s", FormatBytes(limit))
		}
	}
	if limit == 0 {
		logging.Debug("Memory monitor: no memory limit configured, backpressure disabled")
	}
	if config.CheckInterval <= 0 {
		config.CheckInterval = DefaultConfig().CheckInterval
	}

	return &Monitor{
		config:   config,
		limit:    limit,
		stopChan: make(chan struct{}),
		resumeCh: make(chan struct{}),
	}
}

// Start begins sampling in the background.
func (m *Monitor) Start() {
	if m == nil || m.limit == 0 {
		return
	}
	go m.loop()
}

// Stop ends sampling and releases any waiter. Safe to call more than once.
func (m *Monitor) Stop() {
	if m == nil {
		return
	}
	m.stopOnce.Do(func() { close(m.stopChan) })
}

func (m *Monitor) loop() {
	ticker := time.NewTicker(m.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			var stats runtime.MemStats
			runtime.ReadMemStats(&stats)
			m.observe(stats.Alloc)
		case <-m.stopChan:
			return
		}
	}
}

// observe updates the paused state from a heap sample.
func (m *Monitor) observe(alloc uint64) {
	if m.limit == 0 {
		return
	}
	usage := float64(alloc) / float64(m.limit)
	metrics.MemoryUsageRatio.Set(usage)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = alloc

	switch {
	case usage >= m.config.CriticalWaterMark && !m.paused:
		logging.Warn("Memory critical (%.1f%% of limit), pausing scan", usage*100)
		m.paused = true
		metrics.MemoryPaused.Set(1)
		metrics.MemoryGCPauses.Inc()
		go runtime.GC()
	case usage < m.config.HighWaterMark && m.paused:
		logging.Info("Memory recovered (%.1f%% of limit), resuming scan", usage*100)
		m.paused = false
		metrics.MemoryPaused.Set(0)
		close(m.resumeCh)
		m.resumeCh = make(chan struct{})
	}
}

// Wait blocks while usage is critical. It returns ctx.Err() if ctx ends
// first and nil once it is safe to continue or the monitor is stopped.
func (m *Monitor) Wait(ctx context.Context) error {
	if m == nil {
		return nil
	}

	m.mu.RLock()
	if !m.paused {
		m.mu.RUnlock()
		return nil
	}
	resume := m.resumeCh
	m.mu.RUnlock()

	logging.Debug("Scan waiting for memory to recover")
	select {
	case <-resume:
		return nil
	case <-m.stopChan:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsPaused reports whether usage is currently critical.
func (m *Monitor) IsPaused() bool {
	if m == nil {
		return false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.paused
}

// Usage returns the last sampled heap usage as a ratio of the limit.
func (m *Monitor) Usage() float64 {
	if m == nil || m.limit == 0 {
		return 0
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return float64(m.current) / float64(m.limit)
}
