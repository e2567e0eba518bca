package memory

import (
	"context"
	"errors"
	"testing"
	"time"
)

func testMonitor() *Monitor {
	return NewMonitor(Config{
		LimitBytes:        1000,
		HighWaterMark:     0.7,
		CriticalWaterMark: 0.85,
		CheckInterval:     time.Hour,
	})
}

func TestNewMonitor(t *testing.T) {
	m := testMonitor()
	if m.limit != 1000 {
		t.Errorf("Expected limit 1000, got %d", m.limit)
	}

	m = NewMonitor(Config{LimitBytes: 1, CheckInterval: 0})
	if m.config.CheckInterval != 5*time.Second {
		t.Errorf("Expected zero interval to default to 5s, got %v", m.config.CheckInterval)
	}
}

func TestMonitor_PauseAndResume(t *testing.T) {
	m := testMonitor()

	m.observe(500)
	if m.IsPaused() {
		t.Fatal("Expected not paused at 50%")
	}

	m.observe(900)
	if !m.IsPaused() {
		t.Fatal("Expected paused at 90%")
	}
	if usage := m.Usage(); usage != 0.9 {
		t.Errorf("Expected usage 0.9, got %f", usage)
	}

	// Between the water marks the state does not change
	m.observe(800)
	if !m.IsPaused() {
		t.Fatal("Expected still paused at 80%")
	}

	done := make(chan error, 1)
	go func() { done <- m.Wait(context.Background()) }()

	select {
	case <-done:
		t.Fatal("Wait returned while paused")
	case <-time.After(50 * time.Millisecond):
	}

	m.observe(100)
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected nil from Wait, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after resume")
	}
}

func TestMonitor_WaitHonorsContext(t *testing.T) {
	m := testMonitor()
	m.observe(950)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := m.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
}

func TestMonitor_StopReleasesWaiters(t *testing.T) {
	m := testMonitor()
	m.observe(950)

	done := make(chan error, 1)
	go func() { done <- m.Wait(context.Background()) }()

	m.Stop()
	m.Stop()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected nil after stop, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after Stop")
	}
}

func TestMonitor_Nil(t *testing.T) {
	var m *Monitor
	m.Start()
	m.Stop()
	if err := m.Wait(context.Background()); err != nil {
		t.Errorf("Expected nil monitor to never block, got %v", err)
	}
	if m.IsPaused() || m.Usage() != 0 {
		t.Error("Expected nil monitor to report idle")
	}
}

func TestMonitor_StartStop(t *testing.T) {
	m := NewMonitor(Config{
		LimitBytes:        1 << 40,
		HighWaterMark:     0.7,
		CriticalWaterMark: 0.85,
		CheckInterval:     10 * time.Millisecond,
	})
	m.Start()
	time.Sleep(50 * time.Millisecond)
	m.Stop()

	if m.IsPaused() {
		t.Error("Expected no pause with a huge limit")
	}
	if m.Usage() <= 0 {
		t.Error("Expected a usage sample after running")
	}
}
