// Package groups provides the repository for replicated group records.
package groups

import (
	"context"

	"github.com/openchat-im/openchat/internal/server/models"
)

type Repository interface {
	// Upsert inserts the group or replaces its mutable fields. Replication
	// re-applies the same record to every member's store, so the operation
	// must be safe to repeat.
	Upsert(ctx context.Context, g *models.Group) error
	Get(ctx context.Context, id string) (*models.Group, error)
	// ListForMember returns the groups whose member list contains username.
	ListForMember(ctx context.Context, username string) ([]*models.Group, error)
	Delete(ctx context.Context, id string) error
}
