package workers

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestCount(t *testing.T) {
	available := runtime.GOMAXPROCS(0)

	tests := []struct {
		name       string
		multiplier float64
		limit      int
		want       int
	}{
		{name: "One per CPU", multiplier: 1.0, limit: 0, want: available},
		{name: "Two per CPU", multiplier: 2.0, limit: 0, want: available * 2},
		{name: "Capped by limit", multiplier: 100.0, limit: 3, want: 3},
		{name: "At least one", multiplier: 0.0001, limit: 0, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Count(tt.multiplier, tt.limit); got != tt.want {
				t.Errorf("Count(%v, %d) = %d, want %d", tt.multiplier, tt.limit, got, tt.want)
			}
		})
	}
}

func TestFor(t *testing.T) {
	if got := For(TaskScan, 5); got != 5 {
		t.Errorf("Expected configured value 5, got %d", got)
	}

	scan := For(TaskScan, 0)
	if scan < 1 || scan > 16 {
		t.Errorf("Expected scan workers in [1,16], got %d", scan)
	}

	thumbs := For(TaskThumbnail, 0)
	if thumbs < 1 || thumbs > 8 {
		t.Errorf("Expected thumbnail workers in [1,8], got %d", thumbs)
	}
	if thumbs > scan {
		t.Errorf("Expected thumbnail workers (%d) <= scan workers (%d)", thumbs, scan)
	}

	if got := For(Task(99), 0); got != 1 {
		t.Errorf("Expected unknown task to get 1 worker, got %d", got)
	}
}

func TestForEach(t *testing.T) {
	items := make([]int, 100)
	for i := range items {
		items[i] = i
	}

	var mu sync.Mutex
	seen := make(map[int]bool)
	var running, peak int32

	ForEach(context.Background(), 4, items, func(i int) {
		n := atomic.AddInt32(&running, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		atomic.AddInt32(&running, -1)

		mu.Lock()
		seen[i] = true
		mu.Unlock()
	})

	if len(seen) != len(items) {
		t.Errorf("Expected %d items processed, got %d", len(items), len(seen))
	}
	if peak > 4 {
		t.Errorf("Expected at most 4 concurrent calls, got %d", peak)
	}
}

func TestForEach_Empty(t *testing.T) {
	called := false
	ForEach(context.Background(), 4, []string{}, func(string) { called = true })
	if called {
		t.Error("Expected no calls for empty input")
	}
}

func TestForEach_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var count int32
	ForEach(ctx, 1, make([]int, 1000), func(int) { atomic.AddInt32(&count, 1) })

	if count >= 1000 {
		t.Errorf("Expected cancellation to skip items, processed %d", count)
	}
}
