package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"ragchat/internal/model"
)

type SessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(session *model.Session) error {
	if err := r.db.Create(session).Error; err != nil {
		return fmt.Errorf("create session failed: %w", err)
	}
	return nil
}

func (r *SessionRepository) GetByIDAndTenantID(sessionID, tenantID string) (*model.Session, error) {
	var session model.Session
	if err := r.db.Where("id = ? AND tenant_id = ?", sessionID, tenantID).First(&session).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get session failed: %w", err)
	}
	return &session, nil
}

func (r *SessionRepository) ListByTenantID(tenantID string) ([]model.Session, error) {
	var sessions []model.Session
	if err := r.db.Where("tenant_id = ?", tenantID).Order("updated_at DESC").Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("list sessions failed: %w", err)
	}
	return sessions, nil
}

func (r *SessionRepository) Touch(sessionID, tenantID string) error {
	if err := r.db.Model(&model.Session{}).
		Where("id = ? AND tenant_id = ?", sessionID, tenantID).
		Update("updated_at", gorm.Expr("CURRENT_TIMESTAMP")).Error; err != nil {
		return fmt.Errorf("touch session failed: %w", err)
	}
	return nil
}

func (r *SessionRepository) DeleteByIDAndTenantID(sessionID, tenantID string) error {
	if err := r.db.Where("id = ? AND tenant_id = ?", sessionID, tenantID).Delete(&model.Session{}).Error; err != nil {
		return fmt.Errorf("delete session failed: %w", err)
	}
	return nil
}
