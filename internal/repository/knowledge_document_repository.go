package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"ragchat/internal/model"
)

type KnowledgeDocumentRepository struct {
	db *gorm.DB
}

func NewKnowledgeDocumentRepository(db *gorm.DB) *KnowledgeDocumentRepository {
	return &KnowledgeDocumentRepository{db: db}
}

func (r *KnowledgeDocumentRepository) Create(doc *model.KnowledgeDocument) error {
	if err := r.db.Create(doc).Error; err != nil {
		return fmt.Errorf("create knowledge document failed: %w", err)
	}
	return nil
}

func (r *KnowledgeDocumentRepository) GetByIDAndTenantID(docID, tenantID string) (*model.KnowledgeDocument, error) {
	var doc model.KnowledgeDocument
	if err := r.db.Where("id = ? AND tenant_id = ?", docID, tenantID).First(&doc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get knowledge document failed: %w", err)
	}
	return &doc, nil
}

// ListByBaseID returns the base's documents in creation order, which is the
// order index rebuilds replay ingestion in.
func (r *KnowledgeDocumentRepository) ListByBaseID(baseID, tenantID string) ([]model.KnowledgeDocument, error) {
	var docs []model.KnowledgeDocument
	if err := r.db.Where("knowledge_base_id = ? AND tenant_id = ?", baseID, tenantID).
		Order("created_at ASC").Find(&docs).Error; err != nil {
		return nil, fmt.Errorf("list knowledge documents failed: %w", err)
	}
	return docs, nil
}

func (r *KnowledgeDocumentRepository) CountByBaseID(baseID, tenantID string) (int64, error) {
	var count int64
	if err := r.db.Model(&model.KnowledgeDocument{}).
		Where("knowledge_base_id = ? AND tenant_id = ?", baseID, tenantID).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count knowledge documents failed: %w", err)
	}
	return count, nil
}

func (r *KnowledgeDocumentRepository) DeleteByIDAndTenantID(docID, tenantID string) error {
	if err := r.db.Where("id = ? AND tenant_id = ?", docID, tenantID).Delete(&model.KnowledgeDocument{}).Error; err != nil {
		return fmt.Errorf("delete knowledge document failed: %w", err)
	}
	return nil
}

func (r *KnowledgeDocumentRepository) DeleteByBaseID(baseID, tenantID string) error {
	if err := r.db.Where("knowledge_base_id = ? AND tenant_id = ?", baseID, tenantID).
		Delete(&model.KnowledgeDocument{}).Error; err != nil {
		return fmt.Errorf("delete knowledge documents by base failed: %w", err)
	}
	return nil
}
