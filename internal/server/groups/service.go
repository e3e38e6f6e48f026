// Package groups implements replicated group chats. There is no single
// group store: the group record and its messages are copied into the
// personal store of every member, in small batches, and re-upserted on
// every write so lagging stores converge.
package groups

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/openchat-im/openchat/internal/common"
	"github.com/openchat-im/openchat/internal/logging"
	"github.com/openchat-im/openchat/internal/server/models"
	"github.com/openchat-im/openchat/internal/server/notify"
	"github.com/openchat-im/openchat/internal/server/repositories/groupmessages"
	groupsrepo "github.com/openchat-im/openchat/internal/server/repositories/groups"
	"github.com/openchat-im/openchat/internal/server/repositories/links"
	"github.com/openchat-im/openchat/internal/server/storepool"
)

const (
	// fanOutBatchSize limits how many member stores are written at once;
	// fanOutPause separates the batches so a big group does not slam every
	// store simultaneously.
	fanOutBatchSize = 3
	fanOutPause     = 100 * time.Millisecond
)

// Directory is the slice of the directory service the group engine needs.
type Directory interface {
	Lookup(ctx context.Context, username string) (*models.DirectoryRecord, error)
}

// Draft is an outgoing group message before replication.
type Draft struct {
	Body     string
	FileURL  string
	FileName string
	FileType string
	FileSize int64
}

// Details is a group plus the caller's linked contacts that could still be
// added to it.
type Details struct {
	Group             *models.Group
	AvailableContacts []string
}

type target struct {
	username string
	location string
}

type Service struct {
	dir      Directory
	pool     *storepool.Pool
	notifier notify.Notifier
	log      logging.Logger

	batchSize int
	pause     time.Duration
}

func NewService(dir Directory, pool *storepool.Pool, notifier notify.Notifier, log logging.Logger) *Service {
	return &Service{
		dir:       dir,
		pool:      pool,
		notifier:  notifier,
		log:       log,
		batchSize: fanOutBatchSize,
		pause:     fanOutPause,
	}
}

// Create makes a new group and replicates it to every member's store. The
// actor is always a member. Members the actor is not linked to are dropped.
// If some replicas cannot be written the group still exists and
// ErrorPartialFailure is returned alongside it.
func (s *Service) Create(ctx context.Context, actor, name string, members []string) (*models.Group, error) {
	if name == "" {
		return nil, common.ErrorInvalidInput
	}

	actorLoc, err := s.actorLocation(ctx, actor)
	if err != nil {
		return nil, err
	}

	targets, kept, err := s.resolveMembers(ctx, actor, actorLoc, members)
	if err != nil {
		return nil, err
	}

	now := time.Now().UnixMilli()
	g := &models.Group{
		ID:        uuid.NewString(),
		Name:      name,
		Creator:   actor,
		Members:   kept,
		CreatedAt: now,
		UpdatedAt: now,
	}

	// The actor's store is the anchor; it must take the record.
	if err := s.upsertGroupAt(ctx, actorLoc, g); err != nil {
		return nil, err
	}

	failed := s.fanOut(ctx, targets, actor, func(tg target) error {
		return s.upsertGroupAt(ctx, tg.location, g)
	})

	ev := &notify.Event{Kind: notify.KindGroupUpdate, From: actor, GroupID: g.ID, GroupName: g.Name, Timestamp: now}
	for _, m := range kept {
		if m != actor {
			s.notifier.Notify(m, ev)
		}
	}

	if failed > 0 {
		return g, common.ErrorPartialFailure
	}
	return g, nil
}

// Message replicates a group message into every member's store. The group
// record rides along with each copy so stores that missed a membership
// update converge.
func (s *Service) Message(ctx context.Context, actor, groupID string, draft *Draft) (*models.GroupMessage, error) {
	if draft.Body == "" && draft.FileURL == "" {
		return nil, common.ErrorInvalidInput
	}

	actorLoc, g, err := s.loadGroup(ctx, actor, groupID)
	if err != nil {
		return nil, err
	}

	msg := &models.GroupMessage{
		ID:        uuid.NewString(),
		GroupID:   groupID,
		Sender:    actor,
		Body:      draft.Body,
		FileURL:   draft.FileURL,
		FileName:  draft.FileName,
		FileType:  draft.FileType,
		FileSize:  draft.FileSize,
		Timestamp: time.Now().UnixMilli(),
	}

	// A message is activity on the group; the bumped timestamp replicates
	// with the record so every store sorts the group to the top.
	g.UpdatedAt = msg.Timestamp

	if err := s.pool.Do(ctx, actorLoc, func(db *sql.DB) error {
		if err := groupsrepo.NewSQLRepository(db).Upsert(ctx, g); err != nil {
			return err
		}
		return groupmessages.NewSQLRepository(db).Save(ctx, msg)
	}); err != nil {
		return nil, err
	}

	targets, _, err := s.resolveMembers(ctx, actor, actorLoc, g.Members)
	if err != nil {
		return nil, err
	}

	failed := s.fanOut(ctx, targets, actor, func(tg target) error {
		return s.pool.Do(ctx, tg.location, func(db *sql.DB) error {
			if err := groupsrepo.NewSQLRepository(db).Upsert(ctx, g); err != nil {
				return err
			}
			return groupmessages.NewSQLRepository(db).Save(ctx, msg)
		})
	})

	ev := &notify.Event{
		Kind:      notify.KindGroupMessage,
		From:      actor,
		GroupID:   groupID,
		GroupName: g.Name,
		Body:      draft.Body,
		FileURL:   draft.FileURL,
		FileName:  draft.FileName,
		FileType:  draft.FileType,
		FileSize:  draft.FileSize,
		Timestamp: msg.Timestamp,
	}
	for _, m := range g.Members {
		if m != actor {
			s.notifier.Notify(m, ev)
		}
	}

	if failed > 0 {
		return msg, common.ErrorPartialFailure
	}
	return msg, nil
}

// AddMembers grows the member list and replicates the updated record to
// every store, new members included.
func (s *Service) AddMembers(ctx context.Context, actor, groupID string, newMembers []string) (*models.Group, error) {
	actorLoc, g, err := s.loadGroup(ctx, actor, groupID)
	if err != nil {
		return nil, err
	}

	for _, m := range newMembers {
		if !g.HasMember(m) {
			g.Members = append(g.Members, m)
		}
	}
	g.UpdatedAt = time.Now().UnixMilli()

	if err := s.upsertGroupAt(ctx, actorLoc, g); err != nil {
		return nil, err
	}

	targets, _, err := s.resolveMembers(ctx, actor, actorLoc, g.Members)
	if err != nil {
		return nil, err
	}

	failed := s.fanOut(ctx, targets, actor, func(tg target) error {
		return s.upsertGroupAt(ctx, tg.location, g)
	})

	ev := &notify.Event{Kind: notify.KindGroupUpdate, From: actor, GroupID: g.ID, GroupName: g.Name, Timestamp: g.UpdatedAt}
	for _, m := range g.Members {
		if m != actor {
			s.notifier.Notify(m, ev)
		}
	}

	if failed > 0 {
		return g, common.ErrorPartialFailure
	}
	return g, nil
}

// Delete removes the group and its messages from every member's store.
// Only the creator may delete a group.
func (s *Service) Delete(ctx context.Context, actor, groupID string) error {
	actorLoc, g, err := s.loadGroup(ctx, actor, groupID)
	if err != nil {
		return err
	}
	if g.Creator != actor {
		return common.ErrorUnauthorized
	}

	targets, _, err := s.resolveMembers(ctx, actor, actorLoc, g.Members)
	if err != nil {
		return err
	}

	if err := s.pool.Do(ctx, actorLoc, func(db *sql.DB) error {
		return groupsrepo.NewSQLRepository(db).Delete(ctx, groupID)
	}); err != nil {
		return err
	}

	failed := s.fanOut(ctx, targets, actor, func(tg target) error {
		return s.pool.Do(ctx, tg.location, func(db *sql.DB) error {
			return groupsrepo.NewSQLRepository(db).Delete(ctx, groupID)
		})
	})

	ev := &notify.Event{Kind: notify.KindGroupDeleted, From: actor, GroupID: groupID, GroupName: g.Name}
	for _, m := range g.Members {
		if m != actor {
			s.notifier.Notify(m, ev)
		}
	}

	if failed > 0 {
		return common.ErrorPartialFailure
	}
	return nil
}

// List returns every group the actor is a member of, read from their store.
func (s *Service) List(ctx context.Context, actor string) ([]*models.Group, error) {
	actorLoc, err := s.actorLocation(ctx, actor)
	if err != nil {
		return nil, err
	}

	var out []*models.Group
	err = s.pool.Do(ctx, actorLoc, func(db *sql.DB) error {
		out, err = groupsrepo.NewSQLRepository(db).ListForMember(ctx, actor)
		return err
	})
	return out, err
}

// GetDetails returns the group plus the actor's linked contacts that are
// not yet members.
func (s *Service) GetDetails(ctx context.Context, actor, groupID string) (*Details, error) {
	actorLoc, g, err := s.loadGroup(ctx, actor, groupID)
	if err != nil {
		return nil, err
	}

	var contacts []*models.ExternalLink
	err = s.pool.Do(ctx, actorLoc, func(db *sql.DB) error {
		contacts, err = links.NewSQLRepository(db).List(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	available := []string{}
	for _, c := range contacts {
		if !g.HasMember(c.Username) {
			available = append(available, c.Username)
		}
	}
	return &Details{Group: g, AvailableContacts: available}, nil
}

// LoadMessages returns the group's messages from the actor's own store.
func (s *Service) LoadMessages(ctx context.Context, actor, groupID string) ([]*models.GroupMessage, error) {
	actorLoc, _, err := s.loadGroup(ctx, actor, groupID)
	if err != nil {
		return nil, err
	}

	var out []*models.GroupMessage
	err = s.pool.Do(ctx, actorLoc, func(db *sql.DB) error {
		out, err = groupmessages.NewSQLRepository(db).ListForGroup(ctx, groupID)
		return err
	})
	return out, err
}

func (s *Service) actorLocation(ctx context.Context, actor string) (string, error) {
	rec, err := s.dir.Lookup(ctx, actor)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return "", common.ErrorUnknownCaller
		}
		return "", err
	}
	return rec.StoreLocation, nil
}

// loadGroup reads the group from the actor's store and checks membership.
func (s *Service) loadGroup(ctx context.Context, actor, groupID string) (string, *models.Group, error) {
	actorLoc, err := s.actorLocation(ctx, actor)
	if err != nil {
		return "", nil, err
	}

	var g *models.Group
	err = s.pool.Do(ctx, actorLoc, func(db *sql.DB) error {
		g, err = groupsrepo.NewSQLRepository(db).Get(ctx, groupID)
		return err
	})
	if err != nil {
		return "", nil, err
	}
	if !g.HasMember(actor) {
		return "", nil, common.ErrorUnauthorized
	}
	return actorLoc, g, nil
}

// resolveMembers maps member usernames onto store locations using the
// actor's link rows. The actor resolves to their own store. Members the
// actor is not linked to are dropped with a log line; replication can only
// reach stores this node knows how to find.
func (s *Service) resolveMembers(ctx context.Context, actor, actorLoc string, members []string) ([]target, []string, error) {
	var contacts []*models.ExternalLink
	err := s.pool.Do(ctx, actorLoc, func(db *sql.DB) error {
		var err error
		contacts, err = links.NewSQLRepository(db).List(ctx)
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	byName := make(map[string]string, len(contacts))
	for _, c := range contacts {
		byName[c.Username] = c.StoreLocation
	}

	kept := []string{actor}
	var targets []target
	for _, m := range members {
		if m == actor {
			continue
		}
		loc, ok := byName[m]
		if !ok {
			s.log.Warn(ctx, "group member not linked, dropping", "actor", actor, "member", m)
			continue
		}
		kept = append(kept, m)
		targets = append(targets, target{username: m, location: loc})
	}
	return targets, kept, nil
}

// fanOut applies fn to each target, batches written concurrently with a
// pause between batches. Returns the number of targets that failed.
func (s *Service) fanOut(ctx context.Context, targets []target, actor string, fn func(target) error) int {
	var failed atomic.Int64
	for i := 0; i < len(targets); i += s.batchSize {
		end := i + s.batchSize
		if end > len(targets) {
			end = len(targets)
		}

		var wg sync.WaitGroup
		for _, tg := range targets[i:end] {
			wg.Add(1)
			go func(tg target) {
				defer wg.Done()
				if err := fn(tg); err != nil {
					failed.Add(1)
					s.log.Warn(ctx, "group replication failed for member",
						"actor", actor, "member", tg.username, "error", err)
				}
			}(tg)
		}
		wg.Wait()

		if end < len(targets) {
			select {
			case <-ctx.Done():
				failed.Add(int64(len(targets) - end))
				return int(failed.Load())
			case <-time.After(s.pause):
			}
		}
	}
	return int(failed.Load())
}

func (s *Service) upsertGroupAt(ctx context.Context, location string, g *models.Group) error {
	return s.pool.Do(ctx, location, func(db *sql.DB) error {
		return groupsrepo.NewSQLRepository(db).Upsert(ctx, g)
	})
}
