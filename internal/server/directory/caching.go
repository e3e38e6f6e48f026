package directory

import (
	"context"

	"github.com/openchat-im/openchat/internal/logging"
	"github.com/openchat-im/openchat/internal/server/models"
	"github.com/openchat-im/openchat/internal/server/repositories/records"
)

// CachingRepository wraps the real directory repository and writes every
// record it sees through to the local cache, so degraded mode has something
// to answer from later. Cache write failures are logged, never surfaced: the
// cache is an optimization, not part of the contract.
type CachingRepository struct {
	inner records.Repository
	cache *Cache
	log   logging.Logger
}

func NewCachingRepository(inner records.Repository, cache *Cache, log logging.Logger) *CachingRepository {
	return &CachingRepository{inner: inner, cache: cache, log: log}
}

func (r *CachingRepository) put(ctx context.Context, rec *models.DirectoryRecord) {
	if err := r.cache.Put(rec); err != nil {
		r.log.Warn(ctx, "directory cache write failed", "username", rec.Username, "error", err)
	}
}

func (r *CachingRepository) Create(ctx context.Context, rec *models.DirectoryRecord) error {
	if err := r.inner.Create(ctx, rec); err != nil {
		return err
	}
	r.put(ctx, rec)
	return nil
}

func (r *CachingRepository) FindByUsername(ctx context.Context, username string) (*models.DirectoryRecord, error) {
	rec, err := r.inner.FindByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	r.put(ctx, rec)
	return rec, nil
}

func (r *CachingRepository) FindByAuthenticator(ctx context.Context, code string) (*models.DirectoryRecord, error) {
	rec, err := r.inner.FindByAuthenticator(ctx, code)
	if err != nil {
		return nil, err
	}
	r.put(ctx, rec)
	return rec, nil
}

func (r *CachingRepository) AuthenticatorExists(ctx context.Context, code string) (bool, error) {
	return r.inner.AuthenticatorExists(ctx, code)
}

func (r *CachingRepository) UpdateStoreLocation(ctx context.Context, username, location string) error {
	if err := r.inner.UpdateStoreLocation(ctx, username, location); err != nil {
		return err
	}
	if rec, ok := r.cache.GetByUsername(username); ok {
		rec.StoreLocation = location
		r.put(ctx, rec)
	}
	return nil
}
