// Package links provides the repository for external links, the rows that
// record which remote stores a personal store is connected to.
package links

import (
	"context"

	"github.com/openchat-im/openchat/internal/server/models"
)

type Repository interface {
	// Upsert inserts a link or refreshes its location and public key if the
	// (username, authenticator) pair already exists.
	Upsert(ctx context.Context, link *models.ExternalLink) error
	Get(ctx context.Context, username string) (*models.ExternalLink, error)
	List(ctx context.Context) ([]*models.ExternalLink, error)
	Exists(ctx context.Context, username, authenticator string) (bool, error)
	Delete(ctx context.Context, username string) error
}
