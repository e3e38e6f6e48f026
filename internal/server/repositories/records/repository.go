// Package records provides the repository for directory records, the rows of
// the shared directory store.
package records

import (
	"context"

	"github.com/openchat-im/openchat/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, rec *models.DirectoryRecord) error
	FindByUsername(ctx context.Context, username string) (*models.DirectoryRecord, error)
	FindByAuthenticator(ctx context.Context, code string) (*models.DirectoryRecord, error)
	AuthenticatorExists(ctx context.Context, code string) (bool, error)
	UpdateStoreLocation(ctx context.Context, username, location string) error
}
