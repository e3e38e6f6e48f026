// Package profiles provides the repository for personal-store profile rows:
// the owner's full profile plus placeholder rows for linked peers.
package profiles

import (
	"context"

	"github.com/openchat-im/openchat/internal/server/models"
)

type Repository interface {
	// Save inserts or fully replaces a profile row. Used for the store
	// owner's own profile.
	Save(ctx context.Context, p *models.Profile) error
	// UpsertPlaceholder ensures a `{username, online:false}` row exists for a
	// known peer without touching any existing key material.
	UpsertPlaceholder(ctx context.Context, username string) error
	Get(ctx context.Context, username string) (*models.Profile, error)
	List(ctx context.Context) ([]*models.Profile, error)
	SetOnline(ctx context.Context, username string, online bool) error
	SetPushSubscription(ctx context.Context, username, subscription string) error
	SetKeyPair(ctx context.Context, username, publicKey, privateKey string) error
	SetSymmetricKey(ctx context.Context, username, symmetricKey string) error
}
