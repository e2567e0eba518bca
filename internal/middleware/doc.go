// Package middleware provides HTTP middleware for the catalog ops server.
//
// It includes:
//   - Request logging in W3C Extended Log Format
//   - Prometheus request metrics labelled by route template
//   - Response compression via klauspost/compress gzhttp
package middleware
