package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"ragchat/internal/model"
)

type KnowledgeBaseRepository struct {
	db *gorm.DB
}

func NewKnowledgeBaseRepository(db *gorm.DB) *KnowledgeBaseRepository {
	return &KnowledgeBaseRepository{db: db}
}

func (r *KnowledgeBaseRepository) Create(base *model.KnowledgeBase) error {
	if err := r.db.Create(base).Error; err != nil {
		return fmt.Errorf("create knowledge base failed: %w", err)
	}
	return nil
}

func (r *KnowledgeBaseRepository) GetByIDAndTenantID(baseID, tenantID string) (*model.KnowledgeBase, error) {
	var base model.KnowledgeBase
	if err := r.db.Where("id = ? AND tenant_id = ?", baseID, tenantID).First(&base).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get knowledge base failed: %w", err)
	}
	return &base, nil
}

func (r *KnowledgeBaseRepository) ListByTenantID(tenantID string) ([]model.KnowledgeBase, error) {
	var bases []model.KnowledgeBase
	if err := r.db.Where("tenant_id = ?", tenantID).Order("created_at DESC").Find(&bases).Error; err != nil {
		return nil, fmt.Errorf("list knowledge bases failed: %w", err)
	}
	return bases, nil
}

// AdjustDocumentCount shifts DocumentCount by delta (positive or negative).
func (r *KnowledgeBaseRepository) AdjustDocumentCount(baseID, tenantID string, delta int) error {
	if err := r.db.Model(&model.KnowledgeBase{}).
		Where("id = ? AND tenant_id = ?", baseID, tenantID).
		Update("document_count", gorm.Expr("document_count + ?", delta)).Error; err != nil {
		return fmt.Errorf("adjust document count failed: %w", err)
	}
	return nil
}

func (r *KnowledgeBaseRepository) DeleteByIDAndTenantID(baseID, tenantID string) error {
	if err := r.db.Where("id = ? AND tenant_id = ?", baseID, tenantID).Delete(&model.KnowledgeBase{}).Error; err != nil {
		return fmt.Errorf("delete knowledge base failed: %w", err)
	}
	return nil
}
