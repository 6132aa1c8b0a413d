package repository

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"ragchat/internal/model"
)

type TempFileRepository struct {
	db *gorm.DB
}

func NewTempFileRepository(db *gorm.DB) *TempFileRepository {
	return &TempFileRepository{db: db}
}

func (r *TempFileRepository) Create(file *model.TempFile) error {
	if err := r.db.Create(file).Error; err != nil {
		return fmt.Errorf("create temp file failed: %w", err)
	}
	return nil
}

// ListLive returns the non-superseded temp files for a session. The single
// live file invariant means this holds at most one row in practice.
func (r *TempFileRepository) ListLive(sessionID, tenantID string) ([]model.TempFile, error) {
	var files []model.TempFile
	if err := r.db.Where("session_id = ? AND tenant_id = ? AND status = ?",
		sessionID, tenantID, model.TempFileStatusLive).
		Order("created_at ASC").Find(&files).Error; err != nil {
		return nil, fmt.Errorf("list live temp files failed: %w", err)
	}
	return files, nil
}

// MarkDeleted soft-deletes a temp file row; the row is retained for audit.
func (r *TempFileRepository) MarkDeleted(id uint) error {
	if err := r.db.Model(&model.TempFile{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     model.TempFileStatusDeleted,
			"deleted_at": time.Now(),
		}).Error; err != nil {
		return fmt.Errorf("mark temp file deleted failed: %w", err)
	}
	return nil
}
