package database

import (
	"time"

	"modelcat/internal/modeltypes"
)

// Status is the lifecycle state of a catalog entry.
type Status string

const (
	StatusActive  Status = "active"
	StatusMissing Status = "missing"
)

// Library is a configured directory root.
type Library struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	RootPath  string    `json:"rootPath"`
	CreatedAt time.Time `json:"createdAt"`
}

// Metadata is stored alongside each model; geometry columns are NULL when
// HasGeometry is false.
type Metadata = modeltypes.Metadata

// Model is a catalog entry for a model file on disk or inside an archive.
// Empty strings and a zero LibraryID are stored as NULL.
type Model struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	FilePath     string    `json:"filePath"`
	ContentHash  string    `json:"contentHash,omitempty"`
	Status       Status    `json:"status"`
	LibraryID    int64     `json:"libraryId,omitempty"`
	ArchivePath  string    `json:"archivePath,omitempty"`
	ArchiveEntry string    `json:"archiveEntry,omitempty"`
	Metadata     Metadata  `json:"metadata"`
	Thumbnail    string    `json:"thumbnail,omitempty"`
	MissingSince time.Time `json:"missingSince,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// IsArchiveEntry reports whether the model lives inside an archive.
func (m *Model) IsArchiveEntry() bool {
	return m.ArchivePath != ""
}

// Category is a node in the folder-derived category tree. ParentID is zero for roots.
type Category struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	ParentID int64  `json:"parentId,omitempty"`
}

type Tag struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Color     string    `json:"color,omitempty"`
	ItemCount int       `json:"itemCount"`
	CreatedAt time.Time `json:"createdAt"`
}

// ScanRun records the outcome of one completed scan pass.
type ScanRun struct {
	ID               string    `json:"id"`
	Source           string    `json:"source"`
	StartedAt        time.Time `json:"startedAt"`
	FinishedAt       time.Time `json:"finishedAt"`
	TotalFiles       int       `json:"totalFiles"`
	NewFiles         int       `json:"newFiles"`
	MovedFiles       int       `json:"movedFiles"`
	MissingFiles     int       `json:"missingFiles"`
	ReactivatedFiles int       `json:"reactivatedFiles"`
	Errors           int       `json:"errors"`
}

// PurgedModel identifies a hard-deleted row so callers can clean up its files.
type PurgedModel struct {
	ID        int64
	FilePath  string
	Thumbnail string
}
