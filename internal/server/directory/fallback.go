package directory

import (
	"context"
	"sync"

	"github.com/openchat-im/openchat/internal/common"
	"github.com/openchat-im/openchat/internal/server/models"
)

// FallbackRepository serves directory lookups while the directory database
// is unreachable. Reads come from the last-known cache; new registrations
// are held in memory only and are lost on restart, which is the accepted
// cost of staying up.
type FallbackRepository struct {
	cache *Cache

	mu     sync.RWMutex
	byUser map[string]*models.DirectoryRecord
	byAuth map[string]*models.DirectoryRecord
}

func NewFallbackRepository(cache *Cache) *FallbackRepository {
	return &FallbackRepository{
		cache:  cache,
		byUser: make(map[string]*models.DirectoryRecord),
		byAuth: make(map[string]*models.DirectoryRecord),
	}
}

func (r *FallbackRepository) Create(ctx context.Context, rec *models.DirectoryRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byUser[rec.Username]; ok {
		return common.ErrorDuplicateUsername
	}
	if _, ok := r.cache.GetByUsername(rec.Username); ok {
		return common.ErrorDuplicateUsername
	}
	if _, ok := r.byAuth[rec.Authenticator]; ok {
		return common.ErrorAuthenticatorExhausted
	}
	if _, ok := r.cache.GetByAuthenticator(rec.Authenticator); ok {
		return common.ErrorAuthenticatorExhausted
	}

	cp := *rec
	r.byUser[rec.Username] = &cp
	r.byAuth[rec.Authenticator] = &cp
	return nil
}

func (r *FallbackRepository) FindByUsername(ctx context.Context, username string) (*models.DirectoryRecord, error) {
	r.mu.RLock()
	rec, ok := r.byUser[username]
	r.mu.RUnlock()
	if ok {
		cp := *rec
		return &cp, nil
	}
	if rec, ok := r.cache.GetByUsername(username); ok {
		return rec, nil
	}
	return nil, common.ErrorNotFound
}

func (r *FallbackRepository) FindByAuthenticator(ctx context.Context, code string) (*models.DirectoryRecord, error) {
	r.mu.RLock()
	rec, ok := r.byAuth[code]
	r.mu.RUnlock()
	if ok {
		cp := *rec
		return &cp, nil
	}
	if rec, ok := r.cache.GetByAuthenticator(code); ok {
		return rec, nil
	}
	return nil, common.ErrorNotFound
}

func (r *FallbackRepository) AuthenticatorExists(ctx context.Context, code string) (bool, error) {
	r.mu.RLock()
	_, ok := r.byAuth[code]
	r.mu.RUnlock()
	if ok {
		return true, nil
	}
	_, ok = r.cache.GetByAuthenticator(code)
	return ok, nil
}

func (r *FallbackRepository) UpdateStoreLocation(ctx context.Context, username, location string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rec, ok := r.byUser[username]; ok {
		rec.StoreLocation = location
		return nil
	}
	if rec, ok := r.cache.GetByUsername(username); ok {
		rec.StoreLocation = location
		return r.cache.Put(rec)
	}
	return common.ErrorNotFound
}
