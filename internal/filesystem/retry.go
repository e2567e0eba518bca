// Package filesystem provides utilities for filesystem operations with retry logic for NFS
package filesystem

import (
	"errors"
	"os"
	"syscall"
	"time"

	"modelcat/internal/logging"
)

// RetryConfig configures retry behavior for filesystem operations
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// Resolver overrides the package-level resolver for metric labels.
	// If nil, the package-level default is used.
	Resolver *RootResolver
}

// DefaultRetryConfig returns sensible defaults for NFS retry behavior
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 50 * time.Millisecond,
		MaxBackoff:     500 * time.Millisecond,
	}
}

func (c *RetryConfig) resolveVolume(path string) string {
	if c.Resolver != nil {
		return c.Resolver.Resolve(path)
	}
	return defaultRootResolver().Resolve(path)
}

// isNFSStaleError checks if an error is an NFS stale file handle error
func isNFSStaleError(err error) bool {
	if err == nil {
		return false
	}

	// ESTALE is errno 116 on Linux
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.ESTALE
	}

	return false
}

// withRetry runs op until it succeeds, fails with a non-ESTALE error, or
// exhausts the configured retries.
func withRetry[T any](opName, path string, config RetryConfig, op func(string) (T, error)) (T, error) {
	start := time.Now()
	volume := config.resolveVolume(path)
	obs := observe()
	var lastErr error
	var zero T
	backoff := config.InitialBackoff

	done := func() {
		if obs != nil {
			obs.ObserveRetryDuration(opName, volume, time.Since(start).Seconds())
		}
	}

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		result, err := op(path)
		if err == nil {
			if attempt > 0 {
				logging.Info("NFS %s succeeded on retry %d for %s", opName, attempt, path)
				if obs != nil {
					obs.ObserveRetrySuccess(opName, volume)
				}
			}
			done()
			return result, nil
		}

		lastErr = err

		if !isNFSStaleError(err) {
			done()
			return zero, err
		}

		if obs != nil {
			obs.ObserveStaleError(opName, volume)
		}

		// Don't sleep after the last attempt
		if attempt < config.MaxRetries {
			if obs != nil {
				obs.ObserveRetryAttempt(opName, volume)
			}
			logging.Debug("NFS %s stale file handle for %s, retrying in %v (attempt %d/%d)",
				opName, path, backoff, attempt+1, config.MaxRetries)
			time.Sleep(backoff)

			backoff *= 2
			if backoff > config.MaxBackoff {
				backoff = config.MaxBackoff
			}
		}
	}

	logging.Warn("NFS %s failed after %d retries for %s: %v", opName, config.MaxRetries, path, lastErr)
	if obs != nil {
		obs.ObserveRetryFailure(opName, volume)
	}
	done()
	return zero, lastErr
}

// StatWithRetry performs os.Stat with retry logic for NFS stale file handle errors
func StatWithRetry(path string, config RetryConfig) (os.FileInfo, error) {
	return withRetry("stat", path, config, os.Stat)
}

// OpenWithRetry performs os.Open with retry logic for NFS stale file handle errors
func OpenWithRetry(path string, config RetryConfig) (*os.File, error) {
	return withRetry("open", path, config, os.Open)
}

// Exists reports whether path exists on disk. ESTALE is retried and errors
// other than not-exist count as present.
func Exists(path string) bool {
	_, err := StatWithRetry(path, DefaultRetryConfig())
	if err == nil {
		return true
	}
	return !errors.Is(err, os.ErrNotExist)
}
