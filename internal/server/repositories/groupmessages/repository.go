// Package groupmessages provides the repository for replicated group-message
// rows.
package groupmessages

import (
	"context"

	"github.com/openchat-im/openchat/internal/server/models"
)

type Repository interface {
	// Save inserts the message if its ID is not present yet. Replication
	// delivers the same message to every member's store, so repeats are
	// silently absorbed.
	Save(ctx context.Context, m *models.GroupMessage) error
	ListForGroup(ctx context.Context, groupID string) ([]*models.GroupMessage, error)
	DeleteForGroup(ctx context.Context, groupID string) error
}
