package app

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragchat/internal/ingest"
	"ragchat/internal/repository"
)

func newTempDocService(t *testing.T) *TempDocService {
	t.Helper()
	db := newTestDB(t)
	return NewTempDocService(repository.NewTempFileRepository(db), newTestVectorRegistry(t), t.TempDir(), 0, nil)
}

func uploadTemp(t *testing.T, svc *TempDocService, tenantID, sessionID, name, content string) {
	t.Helper()
	_, err := svc.Upload(context.Background(), UploadTempDocInput{
		TenantID:  tenantID,
		SessionID: sessionID,
		FileName:  name,
		MimeType:  "text/plain",
		Content:   strings.NewReader(content),
	})
	require.NoError(t, err)
}

func TestTempDocUploadSingleLiveFile(t *testing.T) {
	svc := newTempDocService(t)

	uploadTemp(t, svc, "tenant-a", "sess-1", "first.txt", "first upload body")
	live, err := svc.ListLive("tenant-a", "sess-1")
	require.NoError(t, err)
	require.Len(t, live, 1)
	firstPath := live[0].StoragePath
	assert.FileExists(t, firstPath)

	uploadTemp(t, svc, "tenant-a", "sess-1", "second.txt", "second upload body")
	live, err = svc.ListLive("tenant-a", "sess-1")
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.Equal(t, "second.txt", live[0].OriginalName)

	// the superseded upload is gone from disk
	assert.NoFileExists(t, firstPath)
}

func TestTempDocUploadReplacesVectorScope(t *testing.T) {
	svc := newTempDocService(t)
	ctx := context.Background()

	uploadTemp(t, svc, "tenant-a", "sess-1", "first.txt", "facts about lighthouse keepers")
	uploadTemp(t, svc, "tenant-a", "sess-1", "second.txt", "notes about tidal currents")

	handle, err := svc.registry.GetOrCreate(ctx, "tenant-a", "sess-1")
	require.NoError(t, err)
	hits, err := svc.registry.Search(ctx, handle, "facts about lighthouse keepers", 10)
	require.NoError(t, err)
	for _, hit := range hits {
		assert.NotEqual(t, "first.txt", hit.Metadata["original_name"])
	}
}

func TestTempDocUploadUnsupportedFormat(t *testing.T) {
	svc := newTempDocService(t)

	_, err := svc.Upload(context.Background(), UploadTempDocInput{
		TenantID:  "tenant-a",
		SessionID: "sess-1",
		FileName:  "photo.png",
		MimeType:  "image/png",
		Content:   strings.NewReader("binary"),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ingest.ErrUnsupportedFormat)

	live, err := svc.ListLive("tenant-a", "sess-1")
	require.NoError(t, err)
	assert.Empty(t, live)
}

func TestTempDocCleanupIdempotent(t *testing.T) {
	svc := newTempDocService(t)
	ctx := context.Background()

	uploadTemp(t, svc, "tenant-a", "sess-1", "doc.txt", "ephemeral content")

	require.NoError(t, svc.Cleanup(ctx, "tenant-a", "sess-1"))
	live, err := svc.ListLive("tenant-a", "sess-1")
	require.NoError(t, err)
	assert.Empty(t, live)

	// second pass and never-uploaded sessions are no-ops
	require.NoError(t, svc.Cleanup(ctx, "tenant-a", "sess-1"))
	require.NoError(t, svc.Cleanup(ctx, "tenant-a", "sess-never"))
}

func TestTempDocSessionIsolation(t *testing.T) {
	svc := newTempDocService(t)

	uploadTemp(t, svc, "tenant-a", "sess-1", "one.txt", "session one content")
	uploadTemp(t, svc, "tenant-a", "sess-2", "two.txt", "session two content")

	live1, err := svc.ListLive("tenant-a", "sess-1")
	require.NoError(t, err)
	live2, err := svc.ListLive("tenant-a", "sess-2")
	require.NoError(t, err)
	require.Len(t, live1, 1)
	require.Len(t, live2, 1)
	assert.Equal(t, "one.txt", live1[0].OriginalName)
	assert.Equal(t, "two.txt", live2[0].OriginalName)
}

func TestTempDocUploadUsesConfiguredChunkSize(t *testing.T) {
	db := newTestDB(t)
	svc := NewTempDocService(repository.NewTempFileRepository(db), newTestVectorRegistry(t), t.TempDir(), 120, nil)

	body := strings.Repeat("session attachment about orchard irrigation lines. ", 12)
	uploadTemp(t, svc, "tenant-a", "sess-cs", "orchard.txt", body)

	ctx := context.Background()
	handle, err := svc.registry.GetOrCreate(ctx, "tenant-a", "sess-cs")
	require.NoError(t, err)
	hits, err := svc.registry.Search(ctx, handle, "orchard irrigation", 50)
	require.NoError(t, err)
	assert.Greater(t, len(hits), 1)
}
