package workers

import (
	"context"
	"runtime"
	"sync"
)

// Task identifies a kind of background work with its own sizing rule.
type Task int

const (
	// TaskScan covers directory walking, hashing and geometry extraction:
	// mostly I/O bound, so it runs two workers per CPU.
	TaskScan Task = iota
	// TaskThumbnail is CPU bound rasterization, one worker per CPU.
	TaskThumbnail
)

var taskSizing = map[Task]struct {
	multiplier float64
	limit      int
}{
	TaskScan:      {multiplier: 2.0, limit: 16},
	TaskThumbnail: {multiplier: 1.0, limit: 8},
}

// Count returns GOMAXPROCS scaled by multiplier, at least 1 and at most
// limit (0 for no limit). GOMAXPROCS follows container CPU limits.
func Count(multiplier float64, limit int) int {
	workers := int(float64(runtime.GOMAXPROCS(0)) * multiplier)
	if workers < 1 {
		workers = 1
	}
	if limit > 0 && workers > limit {
		workers = limit
	}
	return workers
}

// For returns the worker count for task. A positive configured value
// (scan_workers, thumbnail_workers) wins over the computed default.
func For(task Task, configured int) int {
	if configured > 0 {
		return configured
	}
	sizing, ok := taskSizing[task]
	if !ok {
		return 1
	}
	return Count(sizing.multiplier, sizing.limit)
}

// ForEach calls fn for every item using n goroutines and returns when all
// calls have finished or ctx is cancelled. Items not yet started when ctx
// ends are skipped.
func ForEach[T any](ctx context.Context, n int, items []T, fn func(T)) {
	if n < 1 {
		n = 1
	}
	if n > len(items) {
		n = len(items)
	}

	jobs := make(chan T)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range jobs {
				fn(item)
			}
		}()
	}

feed:
	for _, item := range items {
		select {
		case jobs <- item:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()
}
