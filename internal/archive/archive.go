// Package archive lists and extracts model files stored inside ZIP archives.
//
// Archive entries are catalogued under a synthetic path made of the archive's
// absolute path and the entry name joined by "::", for example
// "/models/pack.zip::figures/knight.stl".
package archive

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"strings"

	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"

	"modelcat/internal/filesystem"
	"modelcat/internal/logging"
	"modelcat/internal/modeltypes"
)

// Separator joins an archive path and an entry name in a synthetic path.
const Separator = "::"

var (
	// ErrEntryNotFound is returned when the requested entry is not in the archive.
	ErrEntryNotFound = fmt.Errorf("archive entry not found: %w", fs.ErrNotExist)

	// ErrCorruptArchive is returned when the archive cannot be opened as a ZIP file.
	ErrCorruptArchive = errors.New("corrupt or unreadable archive")
)

// Open opens a ZIP archive with zstd (WinZip method 93) support registered
// in addition to store and deflate.
func Open(archivePath string) (*zip.ReadCloser, error) {
	// Stat first so a stale NFS handle is retried before zip opens the file
	if _, err := filesystem.StatWithRetry(archivePath, filesystem.DefaultRetryConfig()); err != nil {
		return nil, err
	}

	rc, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptArchive, archivePath, err)
	}
	rc.RegisterDecompressor(zstd.ZipMethodWinZip, zstd.ZipDecompressor())
	return rc, nil
}

// ListEntries returns the names of non-directory entries whose lowercase
// extension satisfies allowed. macOS resource forks and hidden entries are
// skipped. A corrupt or unreadable archive yields an empty list; the failure
// is logged.
func ListEntries(archivePath string, allowed func(ext string) bool) []string {
	entries, err := Entries(archivePath, allowed)
	if err != nil {
		logging.Warn("Skipping unreadable archive %s: %v", archivePath, err)
		return []string{}
	}
	return entries
}

// Entries is ListEntries for callers that account for unreadable archives
// themselves: the open failure is returned instead of logged.
func Entries(archivePath string, allowed func(ext string) bool) ([]string, error) {
	rc, err := Open(archivePath)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	entries := make([]string, 0, len(rc.File))
	for _, f := range rc.File {
		name := normalizeEntryName(f.Name)
		if f.FileInfo().IsDir() || strings.HasSuffix(name, "/") {
			continue
		}
		if skipEntry(name) {
			continue
		}
		if allowed != nil && !allowed(strings.ToLower(path.Ext(name))) {
			continue
		}
		entries = append(entries, name)
	}
	return entries, nil
}

// ModelEntries lists entries with a catalogued model extension.
func ModelEntries(archivePath string) ([]string, error) {
	return Entries(archivePath, modeltypes.IsModelExt)
}

// ExtractToTemp copies entryName out of the archive into a new temporary file
// carrying the entry's extension and returns its path. The caller owns the
// file and must remove it.
func ExtractToTemp(archivePath, entryName string) (string, error) {
	rc, err := Open(archivePath)
	if err != nil {
		if errors.Is(err, ErrCorruptArchive) {
			return "", err
		}
		return "", fmt.Errorf("%w: %s: %v", ErrCorruptArchive, archivePath, err)
	}
	defer rc.Close()

	var entry *zip.File
	for _, f := range rc.File {
		if normalizeEntryName(f.Name) == entryName && !f.FileInfo().IsDir() {
			entry = f
			break
		}
	}
	if entry == nil {
		return "", fmt.Errorf("%w: %s in %s", ErrEntryNotFound, entryName, archivePath)
	}

	src, err := entry.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open entry %s in %s: %w", entryName, archivePath, err)
	}
	defer src.Close()

	tmp, err := os.CreateTemp("", "modelcat-*"+strings.ToLower(path.Ext(entryName)))
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		removeTemp(tmpPath)
		return "", fmt.Errorf("failed to extract %s from %s: %w", entryName, archivePath, err)
	}
	if err := tmp.Close(); err != nil {
		removeTemp(tmpPath)
		return "", fmt.Errorf("failed to write extracted %s: %w", entryName, err)
	}

	return tmpPath, nil
}

func removeTemp(p string) {
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logging.Warn("Failed to remove temp file %s: %v", p, err)
	}
}

// SyntheticPath builds the catalog path of an archive entry.
func SyntheticPath(archivePath, entryName string) string {
	return archivePath + Separator + entryName
}

// SplitSyntheticPath splits a synthetic path into archive path and entry
// name. ok is false for regular file paths.
func SplitSyntheticPath(p string) (archivePath, entryName string, ok bool) {
	// Prefer a separator that directly follows an archive extension so that
	// "::" inside entry names or directory names does not confuse the split.
	lower := strings.ToLower(p)
	for ext := range modeltypes.ArchiveExtensions {
		marker := ext + Separator
		if i := strings.Index(lower, marker); i >= 0 {
			cut := i + len(ext)
			return p[:cut], p[cut+len(Separator):], true
		}
	}

	i := strings.Index(p, Separator)
	if i < 0 {
		return "", "", false
	}
	return p[:i], p[i+len(Separator):], true
}

func normalizeEntryName(name string) string {
	return strings.TrimPrefix(strings.ReplaceAll(name, "\\", "/"), "./")
}

func skipEntry(name string) bool {
	if strings.HasPrefix(name, "__MACOSX/") {
		return true
	}
	for _, part := range strings.Split(name, "/") {
		if strings.HasPrefix(part, ".") {
			return true
		}
	}
	return false
}
