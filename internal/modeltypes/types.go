package modeltypes

import (
	"path/filepath"
	"strings"
)

// Format identifies a 3D model file format.
type Format string

const (
	// FormatSTL is a stereolithography mesh (binary or ASCII).
	FormatSTL Format = "stl"
	// FormatOBJ is a Wavefront OBJ mesh.
	FormatOBJ Format = "obj"
	// Format3MF is a 3D Manufacturing Format package.
	Format3MF Format = "3mf"
	// FormatPLY is a Stanford polygon file.
	FormatPLY Format = "ply"
	// FormatSTEP is an ISO 10303 STEP CAD exchange file.
	FormatSTEP Format = "step"
	// FormatUnknown represents an unsupported file.
	FormatUnknown Format = ""
)

// ModelExtensions maps catalog-eligible extensions to their format.
var ModelExtensions = map[string]Format{
	".stl":  FormatSTL,
	".obj":  FormatOBJ,
	".3mf":  Format3MF,
	".ply":  FormatPLY,
	".step": FormatSTEP,
	".stp":  FormatSTEP,
}

// ArchiveExtensions maps container extensions that are expanded during scans.
var ArchiveExtensions = map[string]bool{
	".zip": true,
}

// MimeTypes maps file extensions to their MIME types.
var MimeTypes = map[string]string{
	".stl":  "model/stl",
	".obj":  "model/obj",
	".3mf":  "model/3mf",
	".ply":  "application/ply",
	".step": "model/step",
	".stp":  "model/step",
	".zip":  "application/zip",
}

// Ext returns the lowercase extension of name including the leading dot.
func Ext(name string) string {
	return strings.ToLower(filepath.Ext(name))
}

// GetFormat returns the Format for a given lowercase extension such as ".stl".
// Returns FormatUnknown if the extension is not recognized.
func GetFormat(ext string) Format {
	return ModelExtensions[ext]
}

// IsModelExt reports whether ext is catalog-eligible.
func IsModelExt(ext string) bool {
	return GetFormat(ext) != FormatUnknown
}

// IsArchiveExt reports whether ext names an archive container.
func IsArchiveExt(ext string) bool {
	return ArchiveExtensions[ext]
}

// IsModelFile reports whether the file name has a catalog-eligible extension.
func IsModelFile(name string) bool {
	return IsModelExt(Ext(name))
}

// IsArchiveFile reports whether the file name has an archive extension.
func IsArchiveFile(name string) bool {
	return IsArchiveExt(Ext(name))
}

// GetMimeType returns the MIME type for a given lowercase extension.
// Returns "application/octet-stream" if the extension is not recognized.
func GetMimeType(ext string) string {
	if mime, ok := MimeTypes[ext]; ok {
		return mime
	}
	return "application/octet-stream"
}

// IsHidden reports whether a single path component is hidden.
func IsHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

// Stem returns the base name of path without its extension.
func Stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
