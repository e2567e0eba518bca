// Package modeltypes provides shared type definitions for 3D model file
// handling across modelcat.
//
// This package is a dependency-free foundation that can be imported by other
// packages without creating import cycles.
//
// # Formats
//
// A file is catalog-eligible when its lowercase extension appears in
// ModelExtensions:
//
//	ext := modeltypes.Ext(filename)
//	if modeltypes.IsModelExt(ext) {
//	    format := modeltypes.GetFormat(ext) // e.g. modeltypes.FormatSTL
//	}
//
// Archive containers (ArchiveExtensions) are not catalogued themselves; their
// eligible entries are, under a synthetic path.
package modeltypes
