package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ragchat/internal/ingest"
	"ragchat/internal/model"
	"ragchat/internal/repository"
	"ragchat/internal/vectorstore"
)

// KnowledgeBaseService drives document ingestion into durable per-tenant
// knowledge bases and keeps their vector indexes in step with the rows.
type KnowledgeBaseService struct {
	baseRepo  *repository.KnowledgeBaseRepository
	docRepo   *repository.KnowledgeDocumentRepository
	registry  *vectorstore.Registry
	uploadDir string
	chunkSize int
	logger    *zap.Logger
}

func NewKnowledgeBaseService(
	baseRepo *repository.KnowledgeBaseRepository,
	docRepo *repository.KnowledgeDocumentRepository,
	registry *vectorstore.Registry,
	uploadDir string,
	chunkSize int,
	logger *zap.Logger,
) *KnowledgeBaseService {
	if chunkSize <= 0 {
		chunkSize = ingest.DefaultChunkSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KnowledgeBaseService{
		baseRepo:  baseRepo,
		docRepo:   docRepo,
		registry:  registry,
		uploadDir: uploadDir,
		chunkSize: chunkSize,
		logger:    logger,
	}
}

func (s *KnowledgeBaseService) CreateBase(tenantID, name string) (*model.KnowledgeBase, error) {
	if tenantID == "" {
		return nil, ErrInvalidInput
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = "New Knowledge Base"
	}

	base := &model.KnowledgeBase{
		ID:       uuid.NewString(),
		TenantID: tenantID,
		Name:     name,
	}
	if err := s.baseRepo.Create(base); err != nil {
		return nil, err
	}
	return base, nil
}

func (s *KnowledgeBaseService) ListBases(tenantID string) ([]model.KnowledgeBase, error) {
	if tenantID == "" {
		return nil, ErrInvalidInput
	}
	return s.baseRepo.ListByTenantID(tenantID)
}

func (s *KnowledgeBaseService) ListDocuments(tenantID, baseID string) ([]model.KnowledgeDocument, error) {
	if tenantID == "" || baseID == "" {
		return nil, ErrInvalidInput
	}
	base, err := s.baseRepo.GetByIDAndTenantID(baseID, tenantID)
	if err != nil {
		return nil, err
	}
	if base == nil {
		return nil, fmt.Errorf("%w: knowledge base %s", ErrNotFound, baseID)
	}
	return s.docRepo.ListByBaseID(baseID, tenantID)
}

type UploadDocumentInput struct {
	TenantID  string
	BaseID    string
	FileName  string
	MimeType  string
	Content   io.Reader
	ChunkSize int
}

// UploadDocument checks the quota before any file I/O, persists the file and
// row, then ingests and indexes the document. Failure after the file was
// written rolls the file, row and counter back so no orphaned state remains.
func (s *KnowledgeBaseService) UploadDocument(ctx context.Context, input UploadDocumentInput) (*model.KnowledgeDocument, error) {
	if input.TenantID == "" || input.BaseID == "" || input.FileName == "" || input.Content == nil {
		return nil, ErrInvalidInput
	}

	base, err := s.baseRepo.GetByIDAndTenantID(input.BaseID, input.TenantID)
	if err != nil {
		return nil, err
	}
	if base == nil {
		return nil, fmt.Errorf("%w: knowledge base %s", ErrNotFound, input.BaseID)
	}
	if base.DocumentCount >= model.MaxDocumentsPerBase {
		return nil, fmt.Errorf("%w: base %s already holds %d documents",
			ErrQuotaExceeded, base.ID, base.DocumentCount)
	}

	storedName := storedFileName(input.FileName, time.Now())
	dir := filepath.Join(s.uploadDir, input.TenantID, input.BaseID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir failed: %w", err)
	}
	storagePath := filepath.Join(dir, storedName)

	byteSize, err := writeFile(storagePath, input.Content)
	if err != nil {
		return nil, err
	}

	doc := &model.KnowledgeDocument{
		ID:              uuid.NewString(),
		KnowledgeBaseID: base.ID,
		TenantID:        input.TenantID,
		StoredName:      storedName,
		OriginalName:    filepath.Base(input.FileName),
		MimeType:        input.MimeType,
		ByteSize:        byteSize,
		StoragePath:     storagePath,
	}
	if err := s.docRepo.Create(doc); err != nil {
		_ = os.Remove(storagePath)
		return nil, err
	}
	if err := s.baseRepo.AdjustDocumentCount(base.ID, input.TenantID, 1); err != nil {
		s.rollbackUpload(doc, false)
		return nil, err
	}

	if err := s.indexDocument(ctx, doc, input.ChunkSize); err != nil {
		s.rollbackUpload(doc, true)
		return nil, err
	}

	s.logger.Info("uploaded knowledge document",
		zap.String("tenant_id", input.TenantID),
		zap.String("base_id", base.ID),
		zap.String("document_id", doc.ID),
		zap.Int64("byte_size", byteSize),
	)
	return doc, nil
}

func (s *KnowledgeBaseService) indexDocument(ctx context.Context, doc *model.KnowledgeDocument, chunkSize int) error {
	if chunkSize <= 0 {
		chunkSize = s.chunkSize
	}
	result, err := ingest.Ingest(doc.StoragePath, doc.MimeType, s.chunkMetadata(doc), chunkSize)
	if err != nil {
		return err
	}

	handle, err := s.registry.GetOrCreate(ctx, doc.TenantID, doc.KnowledgeBaseID)
	if err != nil {
		return err
	}
	return s.registry.Add(ctx, handle, result.Chunks)
}

func (s *KnowledgeBaseService) chunkMetadata(doc *model.KnowledgeDocument) map[string]string {
	return map[string]string{
		"original_name":     doc.OriginalName,
		"tenant_id":         doc.TenantID,
		"knowledge_base_id": doc.KnowledgeBaseID,
		"mime_type":         doc.MimeType,
		"uploaded_at":       doc.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func (s *KnowledgeBaseService) rollbackUpload(doc *model.KnowledgeDocument, decrement bool) {
	_ = os.Remove(doc.StoragePath)
	if err := s.docRepo.DeleteByIDAndTenantID(doc.ID, doc.TenantID); err != nil {
		s.logger.Warn("rollback document row failed", zap.String("document_id", doc.ID), zap.Error(err))
	}
	if decrement {
		if err := s.baseRepo.AdjustDocumentCount(doc.KnowledgeBaseID, doc.TenantID, -1); err != nil {
			s.logger.Warn("rollback document count failed", zap.String("base_id", doc.KnowledgeBaseID), zap.Error(err))
		}
	}
}

// DeleteDocument removes the file and row, then rebuilds the base's vector
// index from the remaining documents: the underlying index has no targeted
// delete, so drop-and-replay is the only way to remove one document's
// vectors. Cost is linear in the remaining chunks.
func (s *KnowledgeBaseService) DeleteDocument(ctx context.Context, tenantID, baseID, docID string) error {
	if tenantID == "" || baseID == "" || docID == "" {
		return ErrInvalidInput
	}

	doc, err := s.docRepo.GetByIDAndTenantID(docID, tenantID)
	if err != nil {
		return err
	}
	if doc == nil || doc.KnowledgeBaseID != baseID {
		return fmt.Errorf("%w: document %s", ErrNotFound, docID)
	}

	if err := os.Remove(doc.StoragePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove document file failed: %w", err)
	}
	if err := s.docRepo.DeleteByIDAndTenantID(doc.ID, tenantID); err != nil {
		return err
	}
	if err := s.baseRepo.AdjustDocumentCount(baseID, tenantID, -1); err != nil {
		return err
	}

	return s.rebuildIndex(ctx, tenantID, baseID)
}

func (s *KnowledgeBaseService) rebuildIndex(ctx context.Context, tenantID, baseID string) error {
	if err := s.registry.Drop(tenantID, baseID); err != nil {
		return err
	}

	remaining, err := s.docRepo.ListByBaseID(baseID, tenantID)
	if err != nil {
		return err
	}
	for i := range remaining {
		doc := &remaining[i]
		if err := s.indexDocument(ctx, doc, 0); err != nil {
			return fmt.Errorf("rebuild index for document %s failed: %w", doc.ID, err)
		}
	}

	s.logger.Info("rebuilt knowledge base index",
		zap.String("tenant_id", tenantID),
		zap.String("base_id", baseID),
		zap.Int("documents", len(remaining)),
	)
	return nil
}

// DeleteBase removes all documents' files, the upload directory, the rows
// and the base's vector index. No rebuild is needed since nothing remains.
func (s *KnowledgeBaseService) DeleteBase(ctx context.Context, tenantID, baseID string) error {
	if tenantID == "" || baseID == "" {
		return ErrInvalidInput
	}

	base, err := s.baseRepo.GetByIDAndTenantID(baseID, tenantID)
	if err != nil {
		return err
	}
	if base == nil {
		return fmt.Errorf("%w: knowledge base %s", ErrNotFound, baseID)
	}

	docs, err := s.docRepo.ListByBaseID(baseID, tenantID)
	if err != nil {
		return err
	}
	for i := range docs {
		if err := os.Remove(docs[i].StoragePath); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("remove document file failed",
				zap.String("path", docs[i].StoragePath), zap.Error(err))
		}
	}
	if err := os.RemoveAll(filepath.Join(s.uploadDir, tenantID, baseID)); err != nil {
		return fmt.Errorf("remove base upload dir failed: %w", err)
	}

	if err := s.docRepo.DeleteByBaseID(baseID, tenantID); err != nil {
		return err
	}
	if err := s.baseRepo.DeleteByIDAndTenantID(baseID, tenantID); err != nil {
		return err
	}
	return s.registry.Drop(tenantID, baseID)
}

// storedFileName strips directory components and appends a nanosecond
// timestamp before the extension, so repeated uploads of the same name never
// collide.
func storedFileName(original string, now time.Time) string {
	base := filepath.Base(strings.ReplaceAll(original, "\\", "/"))
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(base, ext)
	if name == "" || name == "." {
		name = "document"
	}
	return fmt.Sprintf("%s_%d%s", name, now.UnixNano(), ext)
}

func writeFile(path string, content io.Reader) (int64, error) {
	out, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create upload file failed: %w", err)
	}
	byteSize, err := io.Copy(out, content)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
		return 0, fmt.Errorf("write upload file failed: %w", err)
	}
	return byteSize, nil
}
