// Package messaging implements direct messages between personal stores. An
// archival copy always lands in the sender's store, encrypted with the
// sender's symmetric key; when the receiver is linked, a delivered copy
// encrypted with the receiver's public key is written to their store
// best-effort. The sender's write is the anchor.
package messaging

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/openchat-im/openchat/internal/common"
	"github.com/openchat-im/openchat/internal/logging"
	"github.com/openchat-im/openchat/internal/server/keys"
	"github.com/openchat-im/openchat/internal/server/models"
	"github.com/openchat-im/openchat/internal/server/notify"
	"github.com/openchat-im/openchat/internal/server/repositories/links"
	"github.com/openchat-im/openchat/internal/server/repositories/messages"
	"github.com/openchat-im/openchat/internal/server/repositories/profiles"
	"github.com/openchat-im/openchat/internal/server/storepool"
)

// Directory is the slice of the directory service the messenger needs.
type Directory interface {
	Lookup(ctx context.Context, username string) (*models.DirectoryRecord, error)
}

// Draft is an outgoing message before routing.
type Draft struct {
	Body     string
	FileURL  string
	FileName string
	FileType string
	FileSize int64
}

type Service struct {
	dir      Directory
	pool     *storepool.Pool
	notifier notify.Notifier
	pusher   notify.Pusher
	log      logging.Logger
}

func NewService(dir Directory, pool *storepool.Pool, notifier notify.Notifier, pusher notify.Pusher, log logging.Logger) *Service {
	return &Service{dir: dir, pool: pool, notifier: notifier, pusher: pusher, log: log}
}

// Send routes a direct message. The sender's archive is always written;
// delivery to the receiver's store requires a link. The returned message is
// the sender's plaintext view.
func (s *Service) Send(ctx context.Context, sender, receiver string, draft *Draft) (*models.Message, error) {
	if draft.Body == "" && draft.FileURL == "" {
		return nil, common.ErrorInvalidInput
	}

	senderRec, err := s.dir.Lookup(ctx, sender)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnknownCaller
		}
		return nil, err
	}

	var senderProfile *models.Profile
	var link *models.ExternalLink
	var recipientKey string
	err = s.pool.Do(ctx, senderRec.StoreLocation, func(db *sql.DB) error {
		senderProfile, err = profiles.NewSQLRepository(db).Get(ctx, sender)
		if err != nil {
			return err
		}
		// The receiver's key comes from their profile row when present,
		// falling back to the link row. Neither is required: without a link
		// the message still lands in the sender's archive.
		if p, err := profiles.NewSQLRepository(db).Get(ctx, receiver); err == nil {
			recipientKey = p.PublicKey
		}
		l, err := links.NewSQLRepository(db).Get(ctx, receiver)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return nil
			}
			return err
		}
		link = l
		if recipientKey == "" {
			recipientKey = l.PublicKey
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	ts := time.Now().UnixMilli()
	plain := &models.Message{
		Sender:    sender,
		Receiver:  receiver,
		Body:      draft.Body,
		FileURL:   draft.FileURL,
		FileName:  draft.FileName,
		FileType:  draft.FileType,
		FileSize:  draft.FileSize,
		Timestamp: ts,
	}

	// Archival copy. This write decides whether the send succeeded.
	selfCopy := *plain
	if draft.Body != "" && senderProfile.SymmetricKey != "" {
		if enc, err := keys.EncryptSelf(senderProfile.SymmetricKey, draft.Body); err == nil {
			selfCopy.Body = enc
			selfCopy.IsEncrypted = true
		}
	}
	err = s.pool.Do(ctx, senderRec.StoreLocation, func(db *sql.DB) error {
		return messages.NewSQLRepository(db).Save(ctx, &selfCopy)
	})
	if err != nil {
		return nil, err
	}

	// Delivered copy, written only when a link exists. Failure here must not
	// fail the send; the sender's archive is the source of truth.
	var subscription string
	if link != nil {
		peerCopy := *plain
		if draft.Body != "" && recipientKey != "" {
			if enc, err := keys.EncryptForRecipient(recipientKey, draft.Body); err == nil {
				peerCopy.Body = enc
				peerCopy.IsEncrypted = true
			}
		}
		err = s.pool.Do(ctx, link.StoreLocation, func(db *sql.DB) error {
			if err := messages.NewSQLRepository(db).Save(ctx, &peerCopy); err != nil {
				return err
			}
			if p, err := profiles.NewSQLRepository(db).Get(ctx, receiver); err == nil {
				subscription = p.PushSubscription
			}
			return nil
		})
		if err != nil {
			s.log.Warn(ctx, "message not delivered to receiver store",
				"sender", sender, "receiver", receiver, "error", err)
		}
	}

	ev := &notify.Event{
		Kind:      notify.KindMessage,
		From:      sender,
		To:        receiver,
		Body:      draft.Body,
		FileURL:   draft.FileURL,
		FileName:  draft.FileName,
		FileType:  draft.FileType,
		FileSize:  draft.FileSize,
		Timestamp: ts,
	}
	s.notifier.Notify(receiver, ev)
	if subscription != "" {
		if err := s.pusher.Push(ctx, subscription, ev); err != nil {
			s.log.Debug(ctx, "push delivery failed", "receiver", receiver, "error", err)
		}
	}

	return plain, nil
}

// LoadHistory returns the viewer's conversation with peer, read from the
// viewer's own store only, with bodies decrypted for display. Rows that do
// not decrypt are returned as stored.
func (s *Service) LoadHistory(ctx context.Context, viewer, peer string) ([]*models.Message, error) {
	rec, err := s.dir.Lookup(ctx, viewer)
	if err != nil {
		return nil, err
	}

	var profile *models.Profile
	var history []*models.Message
	err = s.pool.Do(ctx, rec.StoreLocation, func(db *sql.DB) error {
		profile, err = profiles.NewSQLRepository(db).Get(ctx, viewer)
		if err != nil {
			return err
		}
		history, err = messages.NewSQLRepository(db).ListConversation(ctx, viewer, peer)
		return err
	})
	if err != nil {
		return nil, err
	}

	for _, m := range history {
		if !m.IsEncrypted || m.Body == "" {
			continue
		}
		if m.Sender == viewer {
			m.Body = keys.DecryptSelf(profile.SymmetricKey, m.Body)
		} else {
			m.Body = keys.DecryptWithPrivate(profile.PrivateKey, m.Body)
		}
		m.IsEncrypted = false
	}
	return history, nil
}
