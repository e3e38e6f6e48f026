// Package accounts ties a directory record to its personal store: signup
// provisions the store's owner profile and key material, login verifies
// credentials and heals whatever the profile is missing.
package accounts

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/openchat-im/openchat/internal/common"
	"github.com/openchat-im/openchat/internal/logging"
	"github.com/openchat-im/openchat/internal/server/auth"
	"github.com/openchat-im/openchat/internal/server/keys"
	"github.com/openchat-im/openchat/internal/server/models"
	"github.com/openchat-im/openchat/internal/server/repositories/links"
	"github.com/openchat-im/openchat/internal/server/repositories/profiles"
	"github.com/openchat-im/openchat/internal/server/storepool"
)

// Directory is the slice of the directory service the account flow needs.
type Directory interface {
	Register(ctx context.Context, username, password string) (*models.DirectoryRecord, error)
	Authenticate(ctx context.Context, username, password string) (*models.DirectoryRecord, error)
	Lookup(ctx context.Context, username string) (*models.DirectoryRecord, error)
}

// Reconciler repairs one-sided links after login.
type Reconciler interface {
	Reconcile(ctx context.Context, username string) (int, error)
}

// Session is what a successful signup or login hands back.
type Session struct {
	Token         string
	Username      string
	Authenticator string
}

type Service struct {
	dir        Directory
	pool       *storepool.Pool
	reconciler Reconciler
	log        logging.Logger

	secretKey     []byte
	tokenValidity time.Duration
}

func NewService(dir Directory, pool *storepool.Pool, reconciler Reconciler, log logging.Logger, secretKey []byte, tokenValidity time.Duration) *Service {
	return &Service{
		dir:           dir,
		pool:          pool,
		reconciler:    reconciler,
		log:           log,
		secretKey:     secretKey,
		tokenValidity: tokenValidity,
	}
}

// SignUp registers the account and writes the owner profile, key material
// included, into the fresh personal store.
func (s *Service) SignUp(ctx context.Context, username, password string) (*Session, error) {
	rec, err := s.dir.Register(ctx, username, password)
	if err != nil {
		return nil, err
	}

	id, err := keys.GenerateIdentity()
	if err != nil {
		return nil, err
	}

	err = s.pool.Do(ctx, rec.StoreLocation, func(db *sql.DB) error {
		return profiles.NewSQLRepository(db).Save(ctx, &models.Profile{
			Username:     username,
			PasswordHash: rec.PasswordHash,
			Online:       true,
			PublicKey:    id.PublicKeyPEM,
			PrivateKey:   id.PrivateKeyPEM,
			SymmetricKey: id.SymmetricKeyHex,
		})
	})
	if err != nil {
		return nil, err
	}

	return s.session(username, rec.Authenticator)
}

// Login verifies credentials, heals missing profile rows or key material,
// flips the online flag and repairs one-sided links.
func (s *Service) Login(ctx context.Context, username, password string) (*Session, error) {
	rec, err := s.dir.Authenticate(ctx, username, password)
	if err != nil {
		return nil, err
	}

	if _, err := storepool.NormalizeLocation(rec.StoreLocation); err != nil {
		// Directory knows the account but not where its store lives.
		return nil, common.ErrorIncompleteAccount
	}

	err = s.pool.Do(ctx, rec.StoreLocation, func(db *sql.DB) error {
		return s.healProfile(ctx, db, rec)
	})
	if err != nil {
		return nil, err
	}

	if s.reconciler != nil {
		if _, err := s.reconciler.Reconcile(ctx, username); err != nil {
			s.log.Warn(ctx, "link reconciliation failed at login", "username", username, "error", err)
		}
	}

	return s.session(username, rec.Authenticator)
}

// healProfile rebuilds whatever an owner profile lost: the whole row after
// a store restore, or just the keys.
func (s *Service) healProfile(ctx context.Context, db *sql.DB, rec *models.DirectoryRecord) error {
	repo := profiles.NewSQLRepository(db)

	profile, err := repo.Get(ctx, rec.Username)
	if errors.Is(err, common.ErrorNotFound) {
		id, err := keys.GenerateIdentity()
		if err != nil {
			return err
		}
		s.log.Warn(ctx, "owner profile missing, recreating", "username", rec.Username)
		return repo.Save(ctx, &models.Profile{
			Username:     rec.Username,
			PasswordHash: rec.PasswordHash,
			Online:       true,
			PublicKey:    id.PublicKeyPEM,
			PrivateKey:   id.PrivateKeyPEM,
			SymmetricKey: id.SymmetricKeyHex,
		})
	}
	if err != nil {
		return err
	}

	if profile.PublicKey == "" || profile.PrivateKey == "" {
		id, err := keys.GenerateIdentity()
		if err != nil {
			return err
		}
		if err := repo.SetKeyPair(ctx, rec.Username, id.PublicKeyPEM, id.PrivateKeyPEM); err != nil {
			return err
		}
		s.log.Info(ctx, "regenerated key pair", "username", rec.Username)
	}
	if profile.SymmetricKey == "" {
		key, err := common.MakeRandHexString(32)
		if err != nil {
			return err
		}
		if err := repo.SetSymmetricKey(ctx, rec.Username, key); err != nil {
			return err
		}
		s.log.Info(ctx, "regenerated symmetric key", "username", rec.Username)
	}

	return repo.SetOnline(ctx, rec.Username, true)
}

// SetOnline flips the stored online flag; wired to websocket presence.
func (s *Service) SetOnline(ctx context.Context, username string, online bool) error {
	rec, err := s.dir.Lookup(ctx, username)
	if err != nil {
		return err
	}
	return s.pool.Do(ctx, rec.StoreLocation, func(db *sql.DB) error {
		return profiles.NewSQLRepository(db).SetOnline(ctx, username, online)
	})
}

// SubscribePush stores a push subscription on the owner profile.
func (s *Service) SubscribePush(ctx context.Context, username, subscription string) error {
	rec, err := s.dir.Lookup(ctx, username)
	if err != nil {
		return err
	}
	return s.pool.Do(ctx, rec.StoreLocation, func(db *sql.DB) error {
		return profiles.NewSQLRepository(db).SetPushSubscription(ctx, username, subscription)
	})
}

// Contact is a linked peer as shown in the caller's contact list.
type Contact struct {
	Username      string
	Authenticator string
	Online        bool
}

// Contacts lists the caller's linked peers with their last-known presence.
func (s *Service) Contacts(ctx context.Context, username string) ([]Contact, error) {
	rec, err := s.dir.Lookup(ctx, username)
	if err != nil {
		return nil, err
	}

	var out []Contact
	err = s.pool.Do(ctx, rec.StoreLocation, func(db *sql.DB) error {
		linkRows, err := links.NewSQLRepository(db).List(ctx)
		if err != nil {
			return err
		}
		profileRepo := profiles.NewSQLRepository(db)
		for _, l := range linkRows {
			c := Contact{Username: l.Username, Authenticator: l.Authenticator}
			if p, err := profileRepo.Get(ctx, l.Username); err == nil {
				c.Online = p.Online
			}
			out = append(out, c)
		}
		return nil
	})
	return out, err
}

func (s *Service) session(username, authenticator string) (*Session, error) {
	token, err := auth.GenerateToken(username, s.secretKey, s.tokenValidity)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, Username: username, Authenticator: authenticator}, nil
}
