// Package storepool manages live connections to the personal stores the
// node talks to. Every store is addressed by its location string; handles
// are cached, revalidated with a ping before reuse, capped to a fixed number
// of concurrent operations, and reaped after sitting idle.
package storepool

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"sync"
	"time"

	"github.com/openchat-im/openchat/internal/logging"
	"github.com/pressly/goose/v3"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

const (
	// maxActiveOps is the per-store concurrency cap. Waiters poll for a free
	// slot instead of queueing, matching the deliberately simple contention
	// model of small personal stores.
	maxActiveOps   = 10
	opPollInterval = 100 * time.Millisecond

	defaultReapInterval  = time.Minute
	defaultIdleThreshold = time.Minute
)

// entry is one store's cached handle. Its mutex serializes dialing,
// revalidation and slot accounting for that store only, so a slow or hung
// store never blocks operations on other stores. A dead entry has been
// evicted from the pool map and must not be reused.
type entry struct {
	mu       sync.Mutex
	db       *sql.DB
	dead     bool
	lastUsed time.Time
	active   int
}

type Pool struct {
	log        logging.Logger
	migrations fs.FS

	reapInterval  time.Duration
	idleThreshold time.Duration

	mu      sync.Mutex
	entries map[string]*entry

	done      chan struct{}
	closeOnce sync.Once
}

// NewPool returns a pool that applies the given goose migrations to every
// store on first open. The idle reaper starts immediately and runs until
// CloseAll.
func NewPool(log logging.Logger, migrations fs.FS) *Pool {
	p := &Pool{
		log:           log,
		migrations:    migrations,
		reapInterval:  defaultReapInterval,
		idleThreshold: defaultIdleThreshold,
		entries:       make(map[string]*entry),
		done:          make(chan struct{}),
	}
	go p.reapLoop()
	return p
}

// open dials the location, verifies the connection and brings the schema up
// to date. It takes no pool locks; callers hold the entry's own mutex.
func (p *Pool) open(ctx context.Context, location string) (*sql.DB, error) {
	driver, dsn, dialect, err := ResolveDriver(location)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening store %s: %w", location, err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging store %s: %w", location, err)
	}

	provider, err := goose.NewProvider(dialect, db, p.migrations)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("preparing migrations for %s: %w", location, err)
	}
	if _, err := provider.Up(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating store %s: %w", location, err)
	}

	p.log.Debug(ctx, "opened store connection", "location", location)
	return db, nil
}

// drop removes e from the pool map unless a fresh entry already replaced it.
func (p *Pool) drop(location string, e *entry) {
	p.mu.Lock()
	if p.entries[location] == e {
		delete(p.entries, location)
	}
	p.mu.Unlock()
}

// acquire returns the store handle with an operation slot held. The caller
// must invoke the release func exactly once.
func (p *Pool) acquire(ctx context.Context, location string) (*sql.DB, func(), error) {
	normalized, err := NormalizeLocation(location)
	if err != nil {
		return nil, nil, err
	}

	for {
		p.mu.Lock()
		e, ok := p.entries[normalized]
		if !ok {
			e = &entry{}
			p.entries[normalized] = e
		}
		p.mu.Unlock()

		e.mu.Lock()
		if e.dead {
			// Evicted while we waited for its lock; re-read the map.
			e.mu.Unlock()
			continue
		}
		if e.db == nil {
			db, err := p.open(ctx, normalized)
			if err != nil {
				e.dead = true
				e.mu.Unlock()
				p.drop(normalized, e)
				return nil, nil, err
			}
			e.db = db
		} else if err := e.db.PingContext(ctx); err != nil {
			// Stale handle. Drop it and dial fresh.
			p.log.Warn(ctx, "evicting stale store connection", "location", normalized, "error", err)
			e.db.Close()
			e.dead = true
			e.mu.Unlock()
			p.drop(normalized, e)
			continue
		}

		if e.active < maxActiveOps {
			e.active++
			e.lastUsed = time.Now()
			db := e.db
			e.mu.Unlock()

			release := func() {
				e.mu.Lock()
				e.active--
				e.lastUsed = time.Now()
				e.mu.Unlock()
			}
			return db, release, nil
		}
		e.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		case <-time.After(opPollInterval):
		}
	}
}

// Do runs fn against the store at location, holding one of its operation
// slots for the duration.
func (p *Pool) Do(ctx context.Context, location string, fn func(db *sql.DB) error) error {
	db, release, err := p.acquire(ctx, location)
	if err != nil {
		return err
	}
	defer release()
	return fn(db)
}

func (p *Pool) reapLoop() {
	ticker := time.NewTicker(p.reapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.done:
			return
		case <-ticker.C:
			p.reapIdle()
		}
	}
}

func (p *Pool) reapIdle() {
	cutoff := time.Now().Add(-p.idleThreshold)

	p.mu.Lock()
	snapshot := make(map[string]*entry, len(p.entries))
	for location, e := range p.entries {
		snapshot[location] = e
	}
	p.mu.Unlock()

	for location, e := range snapshot {
		e.mu.Lock()
		idle := !e.dead && e.db != nil && e.active == 0 && e.lastUsed.Before(cutoff)
		if idle {
			e.db.Close()
			e.dead = true
		}
		e.mu.Unlock()
		if idle {
			p.drop(location, e)
			p.log.Debug(context.Background(), "reaped idle store connection", "location", location)
		}
	}
}

// Len reports how many store connections are currently cached.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// CloseAll stops the reaper and closes every cached connection.
func (p *Pool) CloseAll() {
	p.closeOnce.Do(func() { close(p.done) })

	p.mu.Lock()
	entries := p.entries
	p.entries = make(map[string]*entry)
	p.mu.Unlock()

	for _, e := range entries {
		e.mu.Lock()
		if e.db != nil && !e.dead {
			e.db.Close()
		}
		e.dead = true
		e.mu.Unlock()
	}
}
