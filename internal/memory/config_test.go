package memory

import (
	"os"
	"runtime/debug"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.LimitBytes != 0 {
		t.Errorf("Expected LimitBytes to be 0, got %d", cfg.LimitBytes)
	}
	if cfg.HighWaterMark != 0.7 {
		t.Errorf("Expected HighWaterMark to be 0.7, got %f", cfg.HighWaterMark)
	}
	if cfg.CriticalWaterMark != 0.85 {
		t.Errorf("Expected CriticalWaterMark to be 0.85, got %f", cfg.CriticalWaterMark)
	}
	if cfg.CheckInterval != 5*time.Second {
		t.Errorf("Expected CheckInterval to be 5s, got %v", cfg.CheckInterval)
	}
	if cfg.HighWaterMark >= cfg.CriticalWaterMark {
		t.Error("HighWaterMark should be less than CriticalWaterMark")
	}
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		input   string
		want    int64
		wantErr bool
	}{
		{"", 0, false},
		{"1073741824", 1 << 30, false},
		{"512MiB", 512 << 20, false},
		{"512mi", 0, true},
		{"2G", 2 << 30, false},
		{"1.5GB", 1_500_000_000, false},
		{" 64 KiB ", 64 << 10, false},
		{"100B", 100, false},
		{"lots", 0, true},
		{"-1G", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseSize(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseSize(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseSize(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		input int64
		want  string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{1 << 20, "1.0 MiB"},
		{1 << 30, "1.0 GiB"},
	}
	for _, tt := range tests {
		if got := FormatBytes(tt.input); got != tt.want {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func withCleanLimit(t *testing.T) {
	t.Helper()
	oldEnv, hadEnv := os.LookupEnv("GOMEMLIMIT")
	oldLimit := debug.SetMemoryLimit(-1)
	os.Unsetenv("GOMEMLIMIT")
	t.Cleanup(func() {
		if hadEnv {
			os.Setenv("GOMEMLIMIT", oldEnv)
		}
		debug.SetMemoryLimit(oldLimit)
	})
}

func TestApplyLimit_None(t *testing.T) {
	withCleanLimit(t)

	result := ApplyLimit(LimitSettings{})
	if result.Configured {
		t.Error("Expected Configured to be false without a limit")
	}
	if result.Source != "none" {
		t.Errorf("Expected Source to be 'none', got %q", result.Source)
	}
}

func TestApplyLimit_FromConfig(t *testing.T) {
	withCleanLimit(t)

	result := ApplyLimit(LimitSettings{ContainerLimit: 1 << 30, Ratio: 0.5})
	if !result.Configured || result.Source != "config" {
		t.Fatalf("Expected config source, got %+v", result)
	}
	if result.GoMemLimit != 1<<29 {
		t.Errorf("Expected GoMemLimit %d, got %d", int64(1<<29), result.GoMemLimit)
	}
	if got := debug.SetMemoryLimit(-1); got != 1<<29 {
		t.Errorf("Expected runtime limit %d, got %d", int64(1<<29), got)
	}
}

func TestApplyLimit_InvalidRatioUsesDefault(t *testing.T) {
	withCleanLimit(t)

	result := ApplyLimit(LimitSettings{ContainerLimit: 1000, Ratio: 1.5})
	if result.Ratio != DefaultMemoryRatio {
		t.Errorf("Expected default ratio, got %f", result.Ratio)
	}
	if result.GoMemLimit != 850 {
		t.Errorf("Expected GoMemLimit 850, got %d", result.GoMemLimit)
	}
}

func TestApplyLimit_EnvironmentWins(t *testing.T) {
	withCleanLimit(t)
	os.Setenv("GOMEMLIMIT", "500MiB")
	debug.SetMemoryLimit(500 << 20)

	result := ApplyLimit(LimitSettings{ContainerLimit: 1 << 30})
	if result.Source != "GOMEMLIMIT" {
		t.Errorf("Expected Source 'GOMEMLIMIT', got %q", result.Source)
	}
	if result.GoMemLimit != 500<<20 {
		t.Errorf("Expected GoMemLimit %d, got %d", int64(500<<20), result.GoMemLimit)
	}
}
