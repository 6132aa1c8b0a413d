package model

import "time"

type KnowledgeDocument struct {
	ID              string    `gorm:"primaryKey;size:36" json:"id"`
	KnowledgeBaseID string    `gorm:"size:36;not null;index" json:"knowledge_base_id"`
	TenantID        string    `gorm:"size:64;not null;index" json:"tenant_id"`
	StoredName      string    `gorm:"size:512;not null" json:"stored_name"`
	OriginalName    string    `gorm:"size:512;not null" json:"original_name"`
	MimeType        string    `gorm:"size:128;not null" json:"mime_type"`
	ByteSize        int64     `gorm:"not null" json:"byte_size"`
	StoragePath     string    `gorm:"size:1024;not null" json:"storage_path"`
	CreatedAt       time.Time `json:"created_at"`
}
