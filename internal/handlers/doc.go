// Package handlers provides the operational HTTP API of the catalog service.
//
// It includes handlers for:
//   - Health, liveness and readiness probes
//   - Scan progress, history and on-demand scan triggers
//   - Realtime watcher status
//   - Build information and Prometheus metrics
package handlers
