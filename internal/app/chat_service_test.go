package app

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"ragchat/internal/ai"
	"ragchat/internal/model"
	"ragchat/internal/repository"
)

type scriptedStreamer struct {
	deltas   []ai.StreamDelta
	finalErr error
	onStart  func()
	cancel   context.CancelFunc
}

func (s *scriptedStreamer) StreamChat(ctx context.Context, _ ai.ChatConfig, _ []ai.ChatMessage, onDelta func(ai.StreamDelta) error) error {
	if s.onStart != nil {
		s.onStart()
	}
	for _, delta := range s.deltas {
		if err := onDelta(delta); err != nil {
			return err
		}
	}
	if s.cancel != nil {
		s.cancel()
		return ctx.Err()
	}
	return s.finalErr
}

type recordingPublisher struct {
	jobs []model.SessionCleanupJob
}

func (p *recordingPublisher) Publish(_ context.Context, job model.SessionCleanupJob) error {
	p.jobs = append(p.jobs, job)
	return nil
}

func newChatTestService(t *testing.T, streamer CompletionStreamer, publisher CleanupPublisher) (*ChatService, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	messageRepo := repository.NewMessageRepository(db)
	svc := NewChatService(
		repository.NewSessionRepository(db),
		messageRepo,
		NewHistoryStore(messageRepo, nil, 8),
		NewRetrievalService(newTestVectorRegistry(t), nil, 5, 0, nil),
		streamer,
		ai.ChatConfig{Model: "test-model"},
		publisher,
		nil,
	)
	return svc, db
}

func collect(t *testing.T, events <-chan ChatEvent) []ChatEvent {
	t.Helper()
	var got []ChatEvent
	for event := range events {
		got = append(got, event)
	}
	require.NotEmpty(t, got)
	return got
}

func messagesByRole(t *testing.T, db *gorm.DB, sessionID, role string) []model.Message {
	t.Helper()
	var out []model.Message
	require.NoError(t, db.Where("session_id = ? AND role = ?", sessionID, role).
		Order("created_at ASC, id ASC").Find(&out).Error)
	return out
}

func TestStreamChatEventOrdering(t *testing.T) {
	streamer := &scriptedStreamer{deltas: []ai.StreamDelta{
		{Reasoning: "thinking"},
		{Content: "Hello"},
		{Content: " world"},
	}}
	svc, db := newChatTestService(t, streamer, nil)

	events, err := svc.StreamChat(context.Background(), StreamChatInput{
		TenantID:  "tenant-a",
		SessionID: "sess-1",
		Content:   "hi there",
	})
	require.NoError(t, err)
	got := collect(t, events)

	assert.Equal(t, EventDone, got[len(got)-1].Type)
	assert.Equal(t, EventSources, got[len(got)-2].Type)

	lastContent := -1
	sourcesIdx := -1
	var answer strings.Builder
	for i, event := range got {
		switch event.Type {
		case EventContent:
			lastContent = i
			answer.WriteString(event.Text)
		case EventSources:
			sourcesIdx = i
		case EventError:
			t.Fatalf("unexpected error event: %v", event.Err)
		}
	}
	assert.Greater(t, sourcesIdx, lastContent)
	assert.Equal(t, "Hello world", answer.String())

	assistant := messagesByRole(t, db, "sess-1", "assistant")
	require.Len(t, assistant, 1)
	assert.Equal(t, "Hello world", assistant[0].Content)
}

func TestStreamChatPersistsUserBeforeStreaming(t *testing.T) {
	var userRowsAtStreamStart int64
	svc, db := newChatTestService(t, nil, nil)
	streamer := &scriptedStreamer{
		deltas: []ai.StreamDelta{{Content: "ok"}},
		onStart: func() {
			db.Model(&model.Message{}).
				Where("session_id = ? AND role = ?", "sess-1", "user").
				Count(&userRowsAtStreamStart)
		},
	}
	svc.llm = streamer

	events, err := svc.StreamChat(context.Background(), StreamChatInput{
		TenantID:  "tenant-a",
		SessionID: "sess-1",
		Content:   "persist me first",
	})
	require.NoError(t, err)
	collect(t, events)

	assert.Equal(t, int64(1), userRowsAtStreamStart)
}

func TestStreamChatStripsLeadingArtifact(t *testing.T) {
	streamer := &scriptedStreamer{deltas: []ai.StreamDelta{
		{Content: "\n\n"},
		{Content: "Answer body"},
	}}
	svc, db := newChatTestService(t, streamer, nil)

	events, err := svc.StreamChat(context.Background(), StreamChatInput{
		TenantID:  "tenant-a",
		SessionID: "sess-1",
		Content:   "question",
	})
	require.NoError(t, err)
	got := collect(t, events)

	var answer strings.Builder
	for _, event := range got {
		if event.Type == EventContent {
			answer.WriteString(event.Text)
		}
	}
	assert.Equal(t, "Answer body", answer.String())

	assistant := messagesByRole(t, db, "sess-1", "assistant")
	require.Len(t, assistant, 1)
	assert.Equal(t, "Answer body", assistant[0].Content)
}

func TestStreamChatUpstreamFailurePersistsPartial(t *testing.T) {
	streamer := &scriptedStreamer{
		deltas:   []ai.StreamDelta{{Content: "partial "}, {Content: "answer"}},
		finalErr: errors.New("connection reset"),
	}
	svc, db := newChatTestService(t, streamer, nil)

	events, err := svc.StreamChat(context.Background(), StreamChatInput{
		TenantID:  "tenant-a",
		SessionID: "sess-1",
		Content:   "question",
	})
	require.NoError(t, err)
	got := collect(t, events)

	last := got[len(got)-1]
	assert.Equal(t, EventError, last.Type)
	assert.ErrorIs(t, last.Err, ErrUpstream)

	assistant := messagesByRole(t, db, "sess-1", "assistant")
	require.Len(t, assistant, 1)
	assert.Equal(t, "partial answer", assistant[0].Content)
}

func TestStreamChatCancellationPersistsEmittedContent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	streamer := &scriptedStreamer{
		deltas: []ai.StreamDelta{{Content: "before "}, {Content: "cancel"}},
		cancel: cancel,
	}
	svc, db := newChatTestService(t, streamer, nil)

	events, err := svc.StreamChat(ctx, StreamChatInput{
		TenantID:  "tenant-a",
		SessionID: "sess-1",
		Content:   "question",
	})
	require.NoError(t, err)
	got := collect(t, events)

	assert.Equal(t, EventError, got[len(got)-1].Type)

	assistant := messagesByRole(t, db, "sess-1", "assistant")
	require.Len(t, assistant, 1)
	assert.Equal(t, "before cancel", assistant[0].Content)
}

func TestStreamChatEmptyContentRejected(t *testing.T) {
	svc, _ := newChatTestService(t, &scriptedStreamer{}, nil)

	_, err := svc.StreamChat(context.Background(), StreamChatInput{
		TenantID:  "tenant-a",
		SessionID: "sess-1",
		Content:   "   ",
	})
	assert.ErrorIs(t, err, ErrMessageEmpty)
}

func TestStreamChatCreatesSessionOnDemand(t *testing.T) {
	streamer := &scriptedStreamer{deltas: []ai.StreamDelta{{Content: "ok"}}}
	svc, _ := newChatTestService(t, streamer, nil)

	events, err := svc.StreamChat(context.Background(), StreamChatInput{
		TenantID:     "tenant-a",
		SessionID:    "fresh-session",
		Content:      "hello",
		RoleName:     "travel agent",
		SystemPrompt: "You plan trips.",
	})
	require.NoError(t, err)
	collect(t, events)

	sessions, err := svc.ListSessions("tenant-a")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "fresh-session", sessions[0].ID)
	assert.Equal(t, "travel agent", sessions[0].RoleName)
}

func TestDeleteSessionPublishesCleanupJob(t *testing.T) {
	publisher := &recordingPublisher{}
	streamer := &scriptedStreamer{deltas: []ai.StreamDelta{{Content: "ok"}}}
	svc, db := newChatTestService(t, streamer, publisher)

	events, err := svc.StreamChat(context.Background(), StreamChatInput{
		TenantID:  "tenant-a",
		SessionID: "sess-1",
		Content:   "hello",
	})
	require.NoError(t, err)
	collect(t, events)

	require.NoError(t, svc.DeleteSession(context.Background(), "tenant-a", "sess-1"))

	require.Len(t, publisher.jobs, 1)
	assert.Equal(t, model.SessionCleanupJob{TenantID: "tenant-a", SessionID: "sess-1"}, publisher.jobs[0])

	var count int64
	require.NoError(t, db.Model(&model.Message{}).Where("session_id = ?", "sess-1").Count(&count).Error)
	assert.Zero(t, count)

	err = svc.DeleteSession(context.Background(), "tenant-a", "sess-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetHistoryUnknownSession(t *testing.T) {
	svc, _ := newChatTestService(t, &scriptedStreamer{}, nil)
	_, err := svc.GetHistory("tenant-a", "no-such-session", 10)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStreamChatStripsArtifactSplitAcrossDeltas(t *testing.T) {
	streamer := &scriptedStreamer{deltas: []ai.StreamDelta{
		{Content: "\n"},
		{Content: "\n"},
		{Content: "Answer body"},
	}}
	svc, db := newChatTestService(t, streamer, nil)

	events, err := svc.StreamChat(context.Background(), StreamChatInput{
		TenantID:  "tenant-a",
		SessionID: "sess-1",
		Content:   "question",
	})
	require.NoError(t, err)
	got := collect(t, events)

	var answer strings.Builder
	for _, event := range got {
		if event.Type == EventContent {
			answer.WriteString(event.Text)
		}
	}
	assert.Equal(t, "Answer body", answer.String())

	assistant := messagesByRole(t, db, "sess-1", "assistant")
	require.Len(t, assistant, 1)
	assert.Equal(t, "Answer body", assistant[0].Content)
}

func TestStreamChatSingleCharacterAnswer(t *testing.T) {
	streamer := &scriptedStreamer{deltas: []ai.StreamDelta{{Content: "7"}}}
	svc, db := newChatTestService(t, streamer, nil)

	events, err := svc.StreamChat(context.Background(), StreamChatInput{
		TenantID:  "tenant-a",
		SessionID: "sess-1",
		Content:   "question",
	})
	require.NoError(t, err)
	got := collect(t, events)

	var answer strings.Builder
	for _, event := range got {
		if event.Type == EventContent {
			answer.WriteString(event.Text)
		}
	}
	assert.Equal(t, "7", answer.String())

	assistant := messagesByRole(t, db, "sess-1", "assistant")
	require.Len(t, assistant, 1)
	assert.Equal(t, "7", assistant[0].Content)
}
