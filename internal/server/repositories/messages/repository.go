// Package messages provides the repository for direct-message rows in a
// personal store.
package messages

import (
	"context"

	"github.com/openchat-im/openchat/internal/server/models"
)

type Repository interface {
	Save(ctx context.Context, m *models.Message) error
	// ListConversation returns every message exchanged between the two users,
	// in either direction, oldest first.
	ListConversation(ctx context.Context, userA, userB string) ([]*models.Message, error)
}
