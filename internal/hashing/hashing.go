// Package hashing computes content digests used as catalog identity.
//
// Digests are BLAKE3-256 over the whole file, streamed in fixed-size chunks so
// memory use is independent of file size. The hex digest is what the catalog
// stores in content_hash and compares during move detection.
package hashing

import (
	"encoding/hex"
	"fmt"
	"io"

	"github.com/zeebo/blake3"

	"modelcat/internal/filesystem"
)

// ChunkSize is the read buffer size used when streaming file content.
const ChunkSize = 64 * 1024

// HashFile returns the hex BLAKE3 digest of the file at path.
// Open and read errors are returned; there is no fallback digest.
func HashFile(path string) (string, error) {
	f, err := filesystem.OpenWithRetry(path, filesystem.DefaultRetryConfig())
	if err != nil {
		return "", fmt.Errorf("failed to open %s for hashing: %w", path, err)
	}
	defer f.Close()

	sum, err := HashReader(f)
	if err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return sum, nil
}

// HashReader returns the hex BLAKE3 digest of everything readable from r.
func HashReader(r io.Reader) (string, error) {
	h := blake3.New()
	buf := make([]byte, ChunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			_, _ = h.Write(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
