// Package linking implements the handshake that connects two personal
// stores: resolving a peer by authenticator, writing link rows and
// placeholder profiles into both stores, and repairing links that only
// completed on one side.
package linking

import (
	"context"
	"database/sql"
	"errors"

	"github.com/openchat-im/openchat/internal/common"
	"github.com/openchat-im/openchat/internal/logging"
	"github.com/openchat-im/openchat/internal/server/models"
	"github.com/openchat-im/openchat/internal/server/repositories/links"
	"github.com/openchat-im/openchat/internal/server/repositories/profiles"
	"github.com/openchat-im/openchat/internal/server/storepool"
)

// Directory is the slice of the directory service the linker needs.
type Directory interface {
	Lookup(ctx context.Context, username string) (*models.DirectoryRecord, error)
	ResolveByAuthenticator(ctx context.Context, code string) (*models.DirectoryRecord, error)
	PromoteLocation(ctx context.Context, username string) (string, error)
}

// Result describes a completed link from the caller's point of view.
type Result struct {
	PeerUsername  string
	PeerLocation  string
	Authenticator string
}

type Service struct {
	dir  Directory
	pool *storepool.Pool
	log  logging.Logger
}

func NewService(dir Directory, pool *storepool.Pool, log logging.Logger) *Service {
	return &Service{dir: dir, pool: pool, log: log}
}

// Link connects the caller's store with the store behind the given
// authenticator. Both stores end up with a link row and a placeholder
// profile for the other side. If the caller's side is written but the
// peer's store cannot be reached, ErrorPartialLink is returned; Reconcile
// finishes the job later.
func (s *Service) Link(ctx context.Context, caller, authenticator string) (*Result, error) {
	callerRec, err := s.dir.Lookup(ctx, caller)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnknownCaller
		}
		return nil, err
	}

	if authenticator == callerRec.Authenticator {
		return nil, common.ErrorSelfLinkRejected
	}

	peerRec, err := s.dir.ResolveByAuthenticator(ctx, authenticator)
	if err != nil {
		return nil, err
	}

	var alreadyLinked bool
	var callerKey string
	err = s.pool.Do(ctx, callerRec.StoreLocation, func(db *sql.DB) error {
		linked, err := links.NewSQLRepository(db).Exists(ctx, peerRec.Username, peerRec.Authenticator)
		if err != nil {
			return err
		}
		alreadyLinked = linked

		profile, err := profiles.NewSQLRepository(db).Get(ctx, caller)
		if err != nil {
			return err
		}
		callerKey = profile.PublicKey
		return nil
	})
	if err != nil {
		return nil, err
	}
	if alreadyLinked {
		return nil, common.ErrorAlreadyLinked
	}
	if callerKey == "" {
		return nil, common.ErrorMissingKeys
	}

	// Link rows carry publicly reachable locations so either node can dial
	// the other later.
	callerLoc, err := s.dir.PromoteLocation(ctx, caller)
	if err != nil {
		return nil, err
	}
	peerLoc, err := s.dir.PromoteLocation(ctx, peerRec.Username)
	if err != nil {
		return nil, err
	}

	// The peer's key is read best-effort. Absence is tolerated: the link row
	// carries an empty key until the peer's next login heals it.
	var peerKey string
	err = s.pool.Do(ctx, peerLoc, func(db *sql.DB) error {
		profile, err := profiles.NewSQLRepository(db).Get(ctx, peerRec.Username)
		if err != nil {
			return err
		}
		peerKey = profile.PublicKey
		return nil
	})
	if err != nil {
		s.log.Warn(ctx, "peer public key unavailable, linking without it",
			"caller", caller, "peer", peerRec.Username, "error", err)
	}

	err = s.pool.Do(ctx, callerRec.StoreLocation, func(db *sql.DB) error {
		return writeSide(ctx, db, &models.ExternalLink{
			Username:      peerRec.Username,
			Authenticator: peerRec.Authenticator,
			StoreLocation: peerLoc,
			PublicKey:     peerKey,
		})
	})
	if err != nil {
		return nil, err
	}

	err = s.pool.Do(ctx, peerLoc, func(db *sql.DB) error {
		return writeSide(ctx, db, &models.ExternalLink{
			Username:      caller,
			Authenticator: callerRec.Authenticator,
			StoreLocation: callerLoc,
			PublicKey:     callerKey,
		})
	})
	if err != nil {
		// The caller's side is in place, the peer's is not. Surface the
		// half-done state so the client can tell the user, and let
		// Reconcile repair it on a later login.
		s.log.Warn(ctx, "link completed on one side only",
			"caller", caller, "peer", peerRec.Username, "error", err)
		return nil, common.ErrorPartialLink
	}

	s.log.Info(ctx, "linked stores", "caller", caller, "peer", peerRec.Username)
	return &Result{
		PeerUsername:  peerRec.Username,
		PeerLocation:  peerLoc,
		Authenticator: peerRec.Authenticator,
	}, nil
}

// writeSide records one direction of a link: the placeholder profile first,
// then the link row itself.
func writeSide(ctx context.Context, db *sql.DB, link *models.ExternalLink) error {
	if err := profiles.NewSQLRepository(db).UpsertPlaceholder(ctx, link.Username); err != nil {
		return err
	}
	return links.NewSQLRepository(db).Upsert(ctx, link)
}

// Reconcile walks the caller's link rows and re-writes the reverse side
// wherever the peer's store is missing it. Unreachable peers are skipped,
// not fatal. Returns how many links were repaired.
func (s *Service) Reconcile(ctx context.Context, username string) (int, error) {
	rec, err := s.dir.Lookup(ctx, username)
	if err != nil {
		return 0, err
	}

	var own []*models.ExternalLink
	var ownKey string
	err = s.pool.Do(ctx, rec.StoreLocation, func(db *sql.DB) error {
		own, err = links.NewSQLRepository(db).List(ctx)
		if err != nil {
			return err
		}
		profile, err := profiles.NewSQLRepository(db).Get(ctx, username)
		if err != nil {
			return err
		}
		ownKey = profile.PublicKey
		return nil
	})
	if err != nil {
		return 0, err
	}

	ownLoc, err := s.dir.PromoteLocation(ctx, username)
	if err != nil {
		ownLoc = rec.StoreLocation
	}

	repaired := 0
	for _, link := range own {
		err := s.pool.Do(ctx, link.StoreLocation, func(db *sql.DB) error {
			exists, err := links.NewSQLRepository(db).Exists(ctx, username, rec.Authenticator)
			if err != nil {
				return err
			}
			if exists {
				return nil
			}
			if err := writeSide(ctx, db, &models.ExternalLink{
				Username:      username,
				Authenticator: rec.Authenticator,
				StoreLocation: ownLoc,
				PublicKey:     ownKey,
			}); err != nil {
				return err
			}
			repaired++
			return nil
		})
		if err != nil {
			s.log.Warn(ctx, "link reconciliation skipped peer",
				"username", username, "peer", link.Username, "error", err)
		}
	}

	if repaired > 0 {
		s.log.Info(ctx, "repaired one-sided links", "username", username, "count", repaired)
	}
	return repaired, nil
}
