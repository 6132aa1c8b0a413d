package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"ragchat/internal/model"
	"ragchat/internal/repository"
)

func seedMessage(t *testing.T, db *gorm.DB, sessionID, role, content string, at time.Time) {
	t.Helper()
	require.NoError(t, db.Create(&model.Message{
		SessionID: sessionID,
		TenantID:  "tenant-a",
		Role:      role,
		Content:   content,
		CreatedAt: at,
	}).Error)
}

func TestHistoryLoadPairsTurns(t *testing.T) {
	db := newTestDB(t)
	store := NewHistoryStore(repository.NewMessageRepository(db), nil, 8)

	base := time.Now().Add(-time.Hour)
	seedMessage(t, db, "sess-1", "user", "q1", base)
	seedMessage(t, db, "sess-1", "assistant", "a1", base.Add(1*time.Second))
	seedMessage(t, db, "sess-1", "user", "q2", base.Add(2*time.Second))
	seedMessage(t, db, "sess-1", "assistant", "a2", base.Add(3*time.Second))

	history, err := store.Load(context.Background(), "tenant-a", "sess-1")
	require.NoError(t, err)
	require.Len(t, history, 4)
	assert.Equal(t, []string{"q1", "a1", "q2", "a2"}, contents(history))
}

func TestHistoryLoadDropsUnpairedTrailingUser(t *testing.T) {
	db := newTestDB(t)
	store := NewHistoryStore(repository.NewMessageRepository(db), nil, 8)

	base := time.Now().Add(-time.Hour)
	seedMessage(t, db, "sess-1", "user", "q1", base)
	seedMessage(t, db, "sess-1", "assistant", "a1", base.Add(1*time.Second))
	seedMessage(t, db, "sess-1", "user", "pending", base.Add(2*time.Second))

	history, err := store.Load(context.Background(), "tenant-a", "sess-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"q1", "a1"}, contents(history))
}

func TestHistoryLoadBoundedWindow(t *testing.T) {
	db := newTestDB(t)
	store := NewHistoryStore(repository.NewMessageRepository(db), nil, 2)

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		offset := time.Duration(i*2) * time.Second
		seedMessage(t, db, "sess-1", "user", "q", base.Add(offset))
		seedMessage(t, db, "sess-1", "assistant", "a", base.Add(offset+time.Second))
	}

	history, err := store.Load(context.Background(), "tenant-a", "sess-1")
	require.NoError(t, err)
	// two turns, flattened
	assert.Len(t, history, 4)
}

func TestHistoryLoadEmptySession(t *testing.T) {
	db := newTestDB(t)
	store := NewHistoryStore(repository.NewMessageRepository(db), nil, 8)

	history, err := store.Load(context.Background(), "tenant-a", "sess-never")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestHistoryLoadSkipsOrphanAssistant(t *testing.T) {
	db := newTestDB(t)
	store := NewHistoryStore(repository.NewMessageRepository(db), nil, 8)

	base := time.Now().Add(-time.Hour)
	seedMessage(t, db, "sess-1", "assistant", "orphan", base)
	seedMessage(t, db, "sess-1", "user", "q1", base.Add(1*time.Second))
	seedMessage(t, db, "sess-1", "assistant", "a1", base.Add(2*time.Second))

	history, err := store.Load(context.Background(), "tenant-a", "sess-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"q1", "a1"}, contents(history))
}

func contents(messages []model.Message) []string {
	out := make([]string, len(messages))
	for i, m := range messages {
		out[i] = m.Content
	}
	return out
}

type recordingCache struct {
	cached      []model.Message
	hit         bool
	dirty       bool
	gets        int
	sets        int
	invalidates int
	stored      []model.Message
}

func (c *recordingCache) GetHistory(ctx context.Context, sessionID string) ([]model.Message, bool, error) {
	c.gets++
	return c.cached, c.hit, nil
}

func (c *recordingCache) SetHistory(ctx context.Context, sessionID string, messages []model.Message) error {
	c.sets++
	c.stored = messages
	return nil
}

func (c *recordingCache) Invalidate(ctx context.Context, sessionID string) error {
	c.invalidates++
	return nil
}

func (c *recordingCache) IsDirty(ctx context.Context, sessionID string) (bool, error) {
	return c.dirty, nil
}

func TestHistoryLoadServesFromCache(t *testing.T) {
	db := newTestDB(t)
	base := time.Now().Add(-time.Hour)
	seedMessage(t, db, "sess-1", "user", "db question", base)
	seedMessage(t, db, "sess-1", "assistant", "db answer", base.Add(time.Second))

	cache := &recordingCache{
		hit: true,
		cached: []model.Message{
			{SessionID: "sess-1", TenantID: "tenant-a", Role: "user", Content: "cached question"},
			{SessionID: "sess-1", TenantID: "tenant-a", Role: "assistant", Content: "cached answer"},
		},
	}
	store := NewHistoryStore(repository.NewMessageRepository(db), cache, 8)

	history, err := store.Load(context.Background(), "tenant-a", "sess-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"cached question", "cached answer"}, contents(history))
	assert.Equal(t, 1, cache.gets)
	assert.Zero(t, cache.sets)
}

func TestHistoryLoadPopulatesCacheOnMiss(t *testing.T) {
	db := newTestDB(t)
	base := time.Now().Add(-time.Hour)
	seedMessage(t, db, "sess-1", "user", "q1", base)
	seedMessage(t, db, "sess-1", "assistant", "a1", base.Add(time.Second))

	cache := &recordingCache{}
	store := NewHistoryStore(repository.NewMessageRepository(db), cache, 8)

	history, err := store.Load(context.Background(), "tenant-a", "sess-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"q1", "a1"}, contents(history))
	require.Equal(t, 1, cache.sets)
	assert.Equal(t, []string{"q1", "a1"}, contents(cache.stored))
}

func TestHistoryLoadDirtySkipsCache(t *testing.T) {
	db := newTestDB(t)
	base := time.Now().Add(-time.Hour)
	seedMessage(t, db, "sess-1", "user", "q1", base)
	seedMessage(t, db, "sess-1", "assistant", "a1", base.Add(time.Second))

	cache := &recordingCache{
		dirty: true,
		hit:   true,
		cached: []model.Message{
			{Role: "user", Content: "stale question"},
			{Role: "assistant", Content: "stale answer"},
		},
	}
	store := NewHistoryStore(repository.NewMessageRepository(db), cache, 8)

	history, err := store.Load(context.Background(), "tenant-a", "sess-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"q1", "a1"}, contents(history))
	assert.Zero(t, cache.gets)
	assert.Zero(t, cache.sets)
}

func TestHistoryInvalidateForwardsToCache(t *testing.T) {
	db := newTestDB(t)
	cache := &recordingCache{}
	store := NewHistoryStore(repository.NewMessageRepository(db), cache, 8)

	store.Invalidate(context.Background(), "sess-1")
	assert.Equal(t, 1, cache.invalidates)
}
