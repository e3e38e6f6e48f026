package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/openchat-im/openchat/internal/common"
	"github.com/openchat-im/openchat/internal/logging"
	"github.com/openchat-im/openchat/internal/server/models"
	"github.com/openchat-im/openchat/internal/server/repositories/records"
	"golang.org/x/crypto/bcrypt"
)

const (
	minPasswordLength     = 6
	authenticatorAttempts = 5
)

// provisionPostgres is a seam for testing store provisioning. Creating a
// database that already exists (SQLSTATE 42P04) is not an error: a retried
// registration may have gotten that far before.
var provisionPostgres = func(ctx context.Context, adminDSN, name string) error {
	db, err := sql.Open("pgx", adminDSN)
	if err != nil {
		return err
	}
	defer db.Close()

	_, err = db.ExecContext(ctx, fmt.Sprintf(`CREATE DATABASE %q`, name))
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "42P04" {
		return nil
	}
	return err
}

// Service owns account registration and lookup against the directory store.
type Service struct {
	repo records.Repository
	log  logging.Logger

	storeBaseDSN       string
	publicStoreBaseDSN string
}

func NewService(repo records.Repository, log logging.Logger, storeBaseDSN, publicStoreBaseDSN string) *Service {
	return &Service{
		repo:               repo,
		log:                log,
		storeBaseDSN:       storeBaseDSN,
		publicStoreBaseDSN: publicStoreBaseDSN,
	}
}

// Register creates a directory record for a new account: a unique
// authenticator, a bcrypt password hash and a freshly provisioned personal
// store location.
func (s *Service) Register(ctx context.Context, username, password string) (*models.DirectoryRecord, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, common.ErrorInvalidInput
	}
	if len(password) < minPasswordLength {
		return nil, common.ErrorWeakPassword
	}

	if _, err := s.repo.FindByUsername(ctx, username); err == nil {
		return nil, common.ErrorDuplicateUsername
	} else if !errors.Is(err, common.ErrorNotFound) {
		return nil, err
	}

	code, err := s.mintAuthenticator(ctx)
	if err != nil {
		return nil, err
	}

	name, err := common.MakeStoreName()
	if err != nil {
		return nil, err
	}
	location := BuildLocation(s.storeBaseDSN, name)

	if strings.HasPrefix(location, "postgres://") || strings.HasPrefix(location, "postgresql://") {
		adminDSN := strings.TrimSuffix(s.storeBaseDSN, "/") + "/postgres"
		if err := provisionPostgres(ctx, adminDSN, name); err != nil {
			return nil, fmt.Errorf("provisioning store %s: %w", name, err)
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	rec := &models.DirectoryRecord{
		Authenticator: code,
		Username:      username,
		PasswordHash:  string(hash),
		StoreLocation: location,
	}
	if err := s.repo.Create(ctx, rec); err != nil {
		return nil, err
	}

	s.log.Info(ctx, "registered account", "username", username, "store", name)
	return rec, nil
}

// mintAuthenticator samples candidates until one is free. The keyspace is
// 26^8, so more than a few collisions in a row means something is badly
// wrong with the directory, not with the dice.
func (s *Service) mintAuthenticator(ctx context.Context) (string, error) {
	for i := 0; i < authenticatorAttempts; i++ {
		code, err := common.MakeAuthenticator()
		if err != nil {
			return "", err
		}
		exists, err := s.repo.AuthenticatorExists(ctx, code)
		if err != nil {
			return "", err
		}
		if !exists {
			return code, nil
		}
	}
	return "", common.ErrorAuthenticatorExhausted
}

// Authenticate verifies a username and password against the directory.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*models.DirectoryRecord, error) {
	rec, err := s.repo.FindByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(rec.PasswordHash), []byte(password)); err != nil {
		return nil, common.ErrInvalidPassword
	}
	return rec, nil
}

// Lookup returns the directory record for a username.
func (s *Service) Lookup(ctx context.Context, username string) (*models.DirectoryRecord, error) {
	return s.repo.FindByUsername(ctx, username)
}

// ResolveByAuthenticator finds the account an authenticator belongs to.
func (s *Service) ResolveByAuthenticator(ctx context.Context, code string) (*models.DirectoryRecord, error) {
	rec, err := s.repo.FindByAuthenticator(ctx, code)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorAuthenticatorNotFound
		}
		return nil, err
	}
	return rec, nil
}

// PromoteLocation rewrites a store location onto the public base so peers
// outside this deployment can reach it, and records the result.
func (s *Service) PromoteLocation(ctx context.Context, username string) (string, error) {
	rec, err := s.repo.FindByUsername(ctx, username)
	if err != nil {
		return "", err
	}

	public := s.PublicLocation(rec.StoreLocation)
	if public == rec.StoreLocation {
		return public, nil
	}

	if err := s.repo.UpdateStoreLocation(ctx, username, public); err != nil {
		return "", err
	}
	return public, nil
}

// PublicLocation maps an internal store location onto the publicly
// reachable base DSN. Locations outside the internal base pass through.
func (s *Service) PublicLocation(location string) string {
	if s.publicStoreBaseDSN == "" || s.publicStoreBaseDSN == s.storeBaseDSN {
		return location
	}
	base := strings.TrimSuffix(s.storeBaseDSN, "/")
	if !strings.HasPrefix(location, base) {
		return location
	}
	return strings.TrimSuffix(s.publicStoreBaseDSN, "/") + strings.TrimPrefix(location, base)
}

// BuildLocation joins a base DSN and a store name into a full location.
// sqlite bases become file paths, everything else gets the name as the
// database component.
func BuildLocation(baseDSN, name string) string {
	base := strings.TrimSuffix(baseDSN, "/")
	if strings.HasPrefix(base, "sqlite://") {
		return base + "/" + name + ".db"
	}
	return base + "/" + name
}
