package model

import "time"

// KnowledgeBase groups uploaded documents under one durable vector-index
// scope. DocumentCount mirrors the number of KnowledgeDocument rows and is
// capped at MaxDocumentsPerBase.
type KnowledgeBase struct {
	ID            string    `gorm:"primaryKey;size:36" json:"id"`
	TenantID      string    `gorm:"size:64;not null;index" json:"tenant_id"`
	Name          string    `gorm:"size:256;not null" json:"name"`
	DocumentCount int       `gorm:"not null;default:0" json:"document_count"`
	CreatedAt     time.Time `json:"created_at"`
}

// MaxDocumentsPerBase is the hard per-base document quota.
const MaxDocumentsPerBase = 8
