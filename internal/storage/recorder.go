package storage

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/xaenox/gigachat-bot/internal/conversation"
)

const saveTimeout = 5 * time.Second

// TranscriptRecorder returns a conversation listener that saves every newly
// appended message. Save failures are logged and do not affect the
// conversation.
func TranscriptRecorder(store Storage, sessionID string, logger *zap.Logger) conversation.Listener {
	return func(prev, next conversation.State) {
		if len(next.Messages) <= len(prev.Messages) {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
		defer cancel()

		for _, msg := range next.Messages[len(prev.Messages):] {
			if err := store.SaveMessage(ctx, sessionID, msg); err != nil {
				logger.Error("Failed to save message",
					zap.Error(err),
					zap.String("session_id", sessionID),
					zap.Bool("is_user", msg.IsUser))
			}
		}
	}
}
