package middleware

import (
	"compress/gzip"
	"net/http"

	"github.com/klauspost/compress/gzhttp"
)

// CompressionConfig holds configuration for the compression middleware
type CompressionConfig struct {
	// MinSize is the minimum response size in bytes before compression is applied
	MinSize int
	// Level is the gzip compression level (gzip.BestSpeed to gzip.BestCompression)
	Level int
	// ContentTypes limits compression to these media types
	ContentTypes []string
}

// DefaultCompressionConfig compresses JSON and text bodies of 1KB or more.
func DefaultCompressionConfig() CompressionConfig {
	return CompressionConfig{
		MinSize: 1024,
		Level:   gzip.DefaultCompression,
		ContentTypes: []string{
			"application/json",
			"text/plain",
		},
	}
}

// Compression returns gzip middleware for clients that accept it.
func Compression(config CompressionConfig) (func(http.Handler) http.Handler, error) {
	wrap, err := gzhttp.NewWrapper(
		gzhttp.MinSize(config.MinSize),
		gzhttp.CompressionLevel(config.Level),
		gzhttp.ContentTypes(config.ContentTypes),
	)
	if err != nil {
		return nil, err
	}
	return func(next http.Handler) http.Handler {
		return wrap(next)
	}, nil
}
