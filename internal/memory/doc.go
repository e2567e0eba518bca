// Package memory sizes the Go heap for container deployments and pauses scan
// work while the heap is close to its limit.
//
// ApplyLimit derives GOMEMLIMIT from the configured container limit
// (memory.limit, usually fed from the Kubernetes Downward API) and ratio
// (memory.ratio, default 0.85). An explicit GOMEMLIMIT environment variable
// takes precedence.
//
// A Monitor samples heap usage every CheckInterval. When usage reaches the
// critical water mark the scanner blocks in Wait between files until usage
// drops below the high water mark again.
package memory
