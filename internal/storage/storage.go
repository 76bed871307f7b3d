package storage

import (
	"context"

	"github.com/xaenox/gigachat-bot/internal/models"
)

// Storage is an append-only transcript of the running session. It is never
// read back to restore a conversation.
type Storage interface {
	SaveMessage(ctx context.Context, sessionID string, msg models.Message) error
	// GetSessionMessages returns up to limit of the most recent messages,
	// oldest first.
	GetSessionMessages(ctx context.Context, sessionID string, limit int) ([]models.Message, error)
	Close() error
}
