package model

import "time"

const (
	TempFileStatusLive    = "live"
	TempFileStatusDeleted = "deleted"
)

// TempFile is a per-session ephemeral upload. At most one row per
// (tenant, session) has status "live"; superseded rows are kept for audit
// with status "deleted" and their physical file and vector index removed.
type TempFile struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	TenantID     string    `gorm:"size:64;not null;index" json:"tenant_id"`
	SessionID    string    `gorm:"size:64;not null;index" json:"session_id"`
	StoredName   string    `gorm:"size:512;not null" json:"stored_name"`
	OriginalName string    `gorm:"size:512;not null" json:"original_name"`
	MimeType     string    `gorm:"size:128;not null" json:"mime_type"`
	ByteSize     int64     `gorm:"not null" json:"byte_size"`
	StoragePath  string    `gorm:"size:1024;not null" json:"storage_path"`
	Status       string    `gorm:"size:16;not null;default:live;index" json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	DeletedAt    time.Time `json:"deleted_at,omitempty"`
}
