package model

import "time"

// Session is a chat conversation. The ID is supplied by the caller, so the
// same id resolves to the same conversation across requests.
type Session struct {
	ID           string    `gorm:"primaryKey;size:64" json:"session_id"`
	TenantID     string    `gorm:"size:64;not null;index" json:"tenant_id"`
	RoleName     string    `gorm:"size:128" json:"role_name,omitempty"`
	SystemPrompt string    `gorm:"type:text" json:"system_prompt,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
