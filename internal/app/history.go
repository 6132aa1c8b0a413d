package app

import (
	"context"

	"ragchat/internal/model"
	"ragchat/internal/repository"
)

// DefaultMaxHistoryTurns is the sliding window of prior exchanges fed back
// into the model.
const DefaultMaxHistoryTurns = 8

// HistoryCache is an optional read-through cache in front of the message
// table. The dirty marker suppresses caching while a write is in flight.
type HistoryCache interface {
	GetHistory(ctx context.Context, sessionID string) ([]model.Message, bool, error)
	SetHistory(ctx context.Context, sessionID string, messages []model.Message) error
	Invalidate(ctx context.Context, sessionID string) error
	IsDirty(ctx context.Context, sessionID string) (bool, error)
}

// HistoryStore reconstructs bounded conversational memory from persisted
// messages.
type HistoryStore struct {
	messageRepo *repository.MessageRepository
	cache       HistoryCache
	maxTurns    int
}

func NewHistoryStore(messageRepo *repository.MessageRepository, cache HistoryCache, maxTurns int) *HistoryStore {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxHistoryTurns
	}
	return &HistoryStore{
		messageRepo: messageRepo,
		cache:       cache,
		maxTurns:    maxTurns,
	}
}

// Load returns the most recent complete (user, assistant) turns, flattened
// in chronological order. An unpaired trailing user message is excluded so
// the model never sees an incomplete turn.
func (s *HistoryStore) Load(ctx context.Context, tenantID, sessionID string) ([]model.Message, error) {
	messages, err := s.fetch(ctx, tenantID, sessionID)
	if err != nil {
		return nil, err
	}

	turns := pairTurns(messages)
	if len(turns) > s.maxTurns {
		turns = turns[len(turns)-s.maxTurns:]
	}

	history := make([]model.Message, 0, len(turns)*2)
	for _, turn := range turns {
		history = append(history, turn[0], turn[1])
	}
	return history, nil
}

func (s *HistoryStore) fetch(ctx context.Context, tenantID, sessionID string) ([]model.Message, error) {
	if s.cache != nil {
		if dirty, err := s.cache.IsDirty(ctx, sessionID); err == nil && !dirty {
			if cached, hit, cacheErr := s.cache.GetHistory(ctx, sessionID); cacheErr == nil && hit {
				return cached, nil
			}
		}
	}

	// one extra message beyond the window so a truncated leading turn
	// cannot cost a full pair
	messages, err := s.messageRepo.ListRecentBySessionID(sessionID, tenantID, s.maxTurns*2+1)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if dirty, err := s.cache.IsDirty(ctx, sessionID); err == nil && !dirty {
			_ = s.cache.SetHistory(ctx, sessionID, messages)
		}
	}
	return messages, nil
}

// Invalidate drops the cached window and marks the session dirty; called on
// every message append.
func (s *HistoryStore) Invalidate(ctx context.Context, sessionID string) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Invalidate(ctx, sessionID)
}

// pairTurns walks messages chronologically and pairs each user message with
// the immediately following assistant reply. Unpaired messages are dropped.
func pairTurns(messages []model.Message) [][2]model.Message {
	var turns [][2]model.Message
	i := 0
	for i < len(messages) {
		if messages[i].Role == "user" && i+1 < len(messages) && messages[i+1].Role == "assistant" {
			turns = append(turns, [2]model.Message{messages[i], messages[i+1]})
			i += 2
			continue
		}
		i++
	}
	return turns
}
