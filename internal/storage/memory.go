package storage

import (
	"context"
	"sync"

	"github.com/xaenox/gigachat-bot/internal/models"
)

type MemoryStorage struct {
	mu       sync.RWMutex
	messages map[string][]models.Message
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		messages: make(map[string][]models.Message),
	}
}

func (s *MemoryStorage) SaveMessage(ctx context.Context, sessionID string, msg models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages[sessionID] = append(s.messages[sessionID], msg)
	return nil
}

func (s *MemoryStorage) GetSessionMessages(ctx context.Context, sessionID string, limit int) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.messages[sessionID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]models.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (s *MemoryStorage) Close() error {
	// Nothing to close for in-memory storage
	return nil
}
