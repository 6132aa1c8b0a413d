package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"ragchat/internal/ai"
	"ragchat/internal/model"
	"ragchat/internal/repository"
)

const defaultSystemPrompt = "You are a concise and helpful AI assistant."

// EventType tags one entry of a chat event stream.
type EventType string

const (
	EventContent   EventType = "content"
	EventReasoning EventType = "reasoning"
	EventSources   EventType = "sources"
	EventDone      EventType = "done"
	EventError     EventType = "error"
)

// ChatEvent is one element of the finite event sequence produced by a
// streamed chat turn. Content and reasoning arrive in model-emission order,
// a single sources event follows the last token, and the sequence ends with
// exactly one done or error event.
type ChatEvent struct {
	Type    EventType  `json:"type"`
	Text    string     `json:"text,omitempty"`
	Sources []Citation `json:"sources,omitempty"`
	Err     error      `json:"-"`
}

// CompletionStreamer is the completion capability consumed by the
// orchestrator.
type CompletionStreamer interface {
	StreamChat(ctx context.Context, cfg ai.ChatConfig, messages []ai.ChatMessage, onDelta func(ai.StreamDelta) error) error
}

// CleanupPublisher enqueues asynchronous session-teardown jobs.
type CleanupPublisher interface {
	Publish(ctx context.Context, job model.SessionCleanupJob) error
}

// ChatService orchestrates a streamed chat turn: session resolution, bounded
// history, retrieval, prompt assembly and durable persistence of both sides
// of the exchange.
type ChatService struct {
	sessionRepo *repository.SessionRepository
	messageRepo *repository.MessageRepository
	history     *HistoryStore
	retrieval   *RetrievalService
	llm         CompletionStreamer
	chatCfg     ai.ChatConfig
	cleanup     CleanupPublisher
	logger      *zap.Logger
}

func NewChatService(
	sessionRepo *repository.SessionRepository,
	messageRepo *repository.MessageRepository,
	history *HistoryStore,
	retrieval *RetrievalService,
	llm CompletionStreamer,
	chatCfg ai.ChatConfig,
	cleanup CleanupPublisher,
	logger *zap.Logger,
) *ChatService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatService{
		sessionRepo: sessionRepo,
		messageRepo: messageRepo,
		history:     history,
		retrieval:   retrieval,
		llm:         llm,
		chatCfg:     chatCfg,
		cleanup:     cleanup,
		logger:      logger,
	}
}

type CreateSessionInput struct {
	TenantID     string
	SessionID    string
	RoleName     string
	SystemPrompt string
}

func (s *ChatService) CreateSession(input CreateSessionInput) (*model.Session, error) {
	if input.TenantID == "" || input.SessionID == "" {
		return nil, ErrInvalidInput
	}
	session := &model.Session{
		ID:           input.SessionID,
		TenantID:     input.TenantID,
		RoleName:     strings.TrimSpace(input.RoleName),
		SystemPrompt: strings.TrimSpace(input.SystemPrompt),
	}
	if err := s.sessionRepo.Create(session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *ChatService) ListSessions(tenantID string) ([]model.Session, error) {
	if tenantID == "" {
		return nil, ErrInvalidInput
	}
	return s.sessionRepo.ListByTenantID(tenantID)
}

// DeleteSession removes the session and its messages; temp-file and vector
// index teardown is handed off to the async cleanup worker.
func (s *ChatService) DeleteSession(ctx context.Context, tenantID, sessionID string) error {
	if tenantID == "" || sessionID == "" {
		return ErrInvalidInput
	}
	session, err := s.sessionRepo.GetByIDAndTenantID(sessionID, tenantID)
	if err != nil {
		return err
	}
	if session == nil {
		return fmt.Errorf("%w: session %s", ErrNotFound, sessionID)
	}

	if err := s.messageRepo.DeleteBySessionID(sessionID, tenantID); err != nil {
		return err
	}
	if err := s.sessionRepo.DeleteByIDAndTenantID(sessionID, tenantID); err != nil {
		return err
	}
	s.history.Invalidate(ctx, sessionID)

	if s.cleanup != nil {
		job := model.SessionCleanupJob{TenantID: tenantID, SessionID: sessionID}
		if err := s.cleanup.Publish(ctx, job); err != nil {
			s.logger.Warn("enqueue session cleanup failed",
				zap.String("session_id", sessionID), zap.Error(err))
		}
	}
	return nil
}

func (s *ChatService) GetHistory(tenantID, sessionID string, limit int) ([]model.Message, error) {
	if tenantID == "" || sessionID == "" {
		return nil, ErrInvalidInput
	}
	session, err := s.sessionRepo.GetByIDAndTenantID(sessionID, tenantID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, fmt.Errorf("%w: session %s", ErrNotFound, sessionID)
	}
	return s.messageRepo.ListBySessionID(sessionID, tenantID, limit)
}

type StreamChatInput struct {
	TenantID     string
	SessionID    string
	Content      string
	RoleName     string
	SystemPrompt string
	Sources      RetrievalSources
}

// StreamChat runs one chat turn and returns its event stream. The channel is
// closed after the terminal done or error event. Cancelling ctx stops the
// upstream model stream; the partial answer assembled so far is persisted
// either way.
func (s *ChatService) StreamChat(ctx context.Context, input StreamChatInput) (<-chan ChatEvent, error) {
	if input.TenantID == "" || input.SessionID == "" {
		return nil, ErrInvalidInput
	}
	content := strings.TrimSpace(input.Content)
	if content == "" {
		return nil, ErrMessageEmpty
	}

	session, err := s.resolveSession(input)
	if err != nil {
		return nil, err
	}

	events := make(chan ChatEvent, 8)
	go s.run(ctx, session, content, input.Sources, events)
	return events, nil
}

func (s *ChatService) resolveSession(input StreamChatInput) (*model.Session, error) {
	session, err := s.sessionRepo.GetByIDAndTenantID(input.SessionID, input.TenantID)
	if err != nil {
		return nil, err
	}
	if session != nil {
		return session, nil
	}
	return s.CreateSession(CreateSessionInput{
		TenantID:     input.TenantID,
		SessionID:    input.SessionID,
		RoleName:     input.RoleName,
		SystemPrompt: input.SystemPrompt,
	})
}

func (s *ChatService) run(ctx context.Context, session *model.Session, content string, sources RetrievalSources, events chan<- ChatEvent) {
	defer close(events)

	history, err := s.history.Load(ctx, session.TenantID, session.ID)
	if err != nil {
		s.emitError(events, err)
		return
	}

	// the user's turn is durable before any token streams back
	userMessage := &model.Message{
		SessionID: session.ID,
		TenantID:  session.TenantID,
		Role:      "user",
		Content:   content,
		CreatedAt: time.Now(),
	}
	if err := s.messageRepo.Create(userMessage); err != nil {
		s.emitError(events, err)
		return
	}
	s.history.Invalidate(ctx, session.ID)
	if err := s.sessionRepo.Touch(session.ID, session.TenantID); err != nil {
		s.logger.Warn("touch session failed", zap.String("session_id", session.ID), zap.Error(err))
	}

	retrieved := s.retrieval.Retrieve(ctx, content, session.TenantID, session.ID, sources)
	prompt := buildPromptMessages(session, retrieved.ContextText, history, content)

	var answer strings.Builder
	// some models prefix the answer with a two-character artifact; hold the
	// first content until two characters arrived so a split prefix is still
	// caught
	var lead string
	leadDone := false
	streamErr := s.llm.StreamChat(ctx, s.chatCfg, prompt, func(delta ai.StreamDelta) error {
		if delta.Reasoning != "" {
			if err := emit(ctx, events, ChatEvent{Type: EventReasoning, Text: delta.Reasoning}); err != nil {
				return err
			}
		}
		text := delta.Content
		if text == "" {
			return nil
		}
		if !leadDone {
			lead += text
			if len(lead) < 2 {
				return nil
			}
			text = strings.TrimPrefix(lead, "\n\n")
			lead = ""
			leadDone = true
			if text == "" {
				return nil
			}
		}
		if err := emit(ctx, events, ChatEvent{Type: EventContent, Text: text}); err != nil {
			return err
		}
		answer.WriteString(text)
		return nil
	})
	if streamErr == nil && !leadDone && lead != "" {
		// a one-character answer never reached the two-character threshold
		if err := emit(ctx, events, ChatEvent{Type: EventContent, Text: lead}); err == nil {
			answer.WriteString(lead)
		}
	}
	if streamErr == nil && ctx.Err() != nil {
		streamErr = ctx.Err()
	}

	if streamErr != nil {
		// keep whatever was already emitted to the consumer
		if err := s.persistAssistant(session, answer.String()); err != nil {
			s.logger.Error("persist partial answer failed",
				zap.String("session_id", session.ID), zap.Error(err))
		}
		s.emitError(events, fmt.Errorf("%w: %v", ErrUpstream, streamErr))
		return
	}

	full := answer.String()
	if strings.TrimSpace(full) == "" {
		full = "The model returned an empty response."
	}

	// sources never interleave with content: one event, after the last token
	if err := emit(ctx, events, ChatEvent{Type: EventSources, Sources: retrieved.Citations}); err != nil {
		_ = s.persistAssistant(session, full)
		return
	}
	if err := s.persistAssistant(session, full); err != nil {
		s.emitError(events, err)
		return
	}
	_ = emit(ctx, events, ChatEvent{Type: EventDone})
}

func (s *ChatService) persistAssistant(session *model.Session, content string) error {
	if strings.TrimSpace(content) == "" {
		return nil
	}
	message := &model.Message{
		SessionID: session.ID,
		TenantID:  session.TenantID,
		Role:      "assistant",
		Content:   content,
		CreatedAt: time.Now(),
	}
	if err := s.messageRepo.Create(message); err != nil {
		return err
	}
	s.history.Invalidate(context.Background(), session.ID)
	return nil
}

func emit(ctx context.Context, events chan<- ChatEvent, event ChatEvent) error {
	select {
	case events <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// emitError delivers a terminal error event without blocking on a consumer
// that may already be gone.
func (s *ChatService) emitError(events chan<- ChatEvent, err error) {
	event := ChatEvent{Type: EventError, Text: err.Error(), Err: err}
	select {
	case events <- event:
	default:
		s.logger.Warn("dropping error event, consumer gone", zap.Error(err))
	}
}

func buildPromptMessages(session *model.Session, contextText string, history []model.Message, userInput string) []ai.ChatMessage {
	system := session.SystemPrompt
	if system == "" {
		system = defaultSystemPrompt
	}
	if session.RoleName != "" {
		system = fmt.Sprintf("You are acting as %s. %s", session.RoleName, system)
	}
	system += "\n\nReference material retrieved for this conversation:\n" + contextText +
		"\n\nUse the reference material when it is relevant and say so when it is not."

	messages := make([]ai.ChatMessage, 0, len(history)+2)
	messages = append(messages, ai.ChatMessage{Role: "system", Content: system})
	for _, item := range history {
		messages = append(messages, ai.ChatMessage{Role: item.Role, Content: item.Content})
	}
	messages = append(messages, ai.ChatMessage{Role: "user", Content: userInput})
	return messages
}
