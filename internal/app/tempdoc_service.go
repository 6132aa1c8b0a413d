package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"ragchat/internal/ingest"
	"ragchat/internal/model"
	"ragchat/internal/repository"
	"ragchat/internal/vectorstore"
)

// TempDocService manages per-session ephemeral uploads. A session holds at
// most one live temp file; uploading another one supersedes the first
// completely (file, vector index, cache entry, row) before the new file is
// written.
type TempDocService struct {
	tempRepo  *repository.TempFileRepository
	registry  *vectorstore.Registry
	uploadDir string
	chunkSize int
	logger    *zap.Logger
}

func NewTempDocService(
	tempRepo *repository.TempFileRepository,
	registry *vectorstore.Registry,
	uploadDir string,
	chunkSize int,
	logger *zap.Logger,
) *TempDocService {
	if chunkSize <= 0 {
		chunkSize = ingest.DefaultChunkSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TempDocService{
		tempRepo:  tempRepo,
		registry:  registry,
		uploadDir: uploadDir,
		chunkSize: chunkSize,
		logger:    logger,
	}
}

type UploadTempDocInput struct {
	TenantID  string
	SessionID string
	FileName  string
	MimeType  string
	Content   io.Reader
	ChunkSize int
}

func (s *TempDocService) sessionDir(tenantID, sessionID string) string {
	return filepath.Join(s.uploadDir, tenantID, "tmp", sessionID)
}

// Upload replaces any live temp file for the session, then writes, ingests
// and indexes the new one under the session's vector scope.
func (s *TempDocService) Upload(ctx context.Context, input UploadTempDocInput) (*model.TempFile, error) {
	if input.TenantID == "" || input.SessionID == "" || input.FileName == "" || input.Content == nil {
		return nil, ErrInvalidInput
	}

	// supersede before writing so there is never a state with two live files
	if err := s.teardown(input.TenantID, input.SessionID); err != nil {
		return nil, err
	}

	storedName := storedFileName(input.FileName, time.Now())
	dir := s.sessionDir(input.TenantID, input.SessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create temp upload dir failed: %w", err)
	}
	storagePath := filepath.Join(dir, storedName)

	byteSize, err := writeFile(storagePath, input.Content)
	if err != nil {
		return nil, err
	}

	file := &model.TempFile{
		TenantID:     input.TenantID,
		SessionID:    input.SessionID,
		StoredName:   storedName,
		OriginalName: filepath.Base(input.FileName),
		MimeType:     input.MimeType,
		ByteSize:     byteSize,
		StoragePath:  storagePath,
		Status:       model.TempFileStatusLive,
	}
	if err := s.tempRepo.Create(file); err != nil {
		_ = os.Remove(storagePath)
		return nil, err
	}

	if err := s.index(ctx, file, input.ChunkSize); err != nil {
		_ = os.Remove(storagePath)
		if markErr := s.tempRepo.MarkDeleted(file.ID); markErr != nil {
			s.logger.Warn("rollback temp file row failed", zap.Uint("id", file.ID), zap.Error(markErr))
		}
		_ = s.registry.Drop(input.TenantID, input.SessionID)
		return nil, err
	}

	s.logger.Info("uploaded temp document",
		zap.String("tenant_id", input.TenantID),
		zap.String("session_id", input.SessionID),
		zap.String("stored_name", storedName),
	)
	return file, nil
}

func (s *TempDocService) index(ctx context.Context, file *model.TempFile, chunkSize int) error {
	if chunkSize <= 0 {
		chunkSize = s.chunkSize
	}
	extra := map[string]string{
		"original_name": file.OriginalName,
		"tenant_id":     file.TenantID,
		"session_id":    file.SessionID,
		"mime_type":     file.MimeType,
		"uploaded_at":   file.CreatedAt.UTC().Format(time.RFC3339),
	}
	result, err := ingest.Ingest(file.StoragePath, file.MimeType, extra, chunkSize)
	if err != nil {
		return err
	}

	handle, err := s.registry.GetOrCreate(ctx, file.TenantID, file.SessionID)
	if err != nil {
		return err
	}
	return s.registry.Add(ctx, handle, result.Chunks)
}

// ListLive returns the session's live temp files (zero or one row).
func (s *TempDocService) ListLive(tenantID, sessionID string) ([]model.TempFile, error) {
	if tenantID == "" || sessionID == "" {
		return nil, ErrInvalidInput
	}
	return s.tempRepo.ListLive(sessionID, tenantID)
}

// Cleanup tears down the session's temp file, its vector index and upload
// directory. Cleaning up a session with nothing live is a no-op.
func (s *TempDocService) Cleanup(ctx context.Context, tenantID, sessionID string) error {
	if tenantID == "" || sessionID == "" {
		return ErrInvalidInput
	}
	return s.teardown(tenantID, sessionID)
}

func (s *TempDocService) teardown(tenantID, sessionID string) error {
	live, err := s.tempRepo.ListLive(sessionID, tenantID)
	if err != nil {
		return err
	}
	for i := range live {
		if err := os.Remove(live[i].StoragePath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove temp file failed: %w", err)
		}
		if err := s.tempRepo.MarkDeleted(live[i].ID); err != nil {
			return err
		}
	}

	if err := os.RemoveAll(s.sessionDir(tenantID, sessionID)); err != nil {
		return fmt.Errorf("remove temp session dir failed: %w", err)
	}
	return s.registry.Drop(tenantID, sessionID)
}
