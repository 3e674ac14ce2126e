package models

import (
	"time"

	"github.com/google/uuid"
)

// Compression identifies the archive blob's container format.
type Compression string

const (
	CompressionGzip Compression = "GZIP"
	CompressionZip  Compression = "ZIP"
	CompressionTar  Compression = "TAR"
)

// ArchiveStatus tracks an archive blob through creation.
type ArchiveStatus string

const (
	ArchiveStatusPending    ArchiveStatus = "PENDING"
	ArchiveStatusInProgress ArchiveStatus = "IN_PROGRESS"
	ArchiveStatusCompleted  ArchiveStatus = "COMPLETED"
	ArchiveStatusFailed     ArchiveStatus = "FAILED"
)

// ManifestEntry describes one file captured in an Archive.
type ManifestEntry struct {
	RelPath string `json:"relpath"`
	Size    int64  `json:"size"`
	SHA256  string `json:"sha256"`
}

// Archive is the one-per-session record of a compressed working
// directory snapshot.
type Archive struct {
	ID          uuid.UUID       `json:"id"`
	SessionID   uuid.UUID       `json:"session_id"`
	Path        string          `json:"path"`
	SizeBytes   int64           `json:"size_bytes"`
	Compression Compression     `json:"compression"`
	Manifest    []ManifestEntry `json:"manifest"`
	Status      ArchiveStatus   `json:"status"`
	Error       *string         `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	ArchivedAt  *time.Time      `json:"archived_at,omitempty"`
}
