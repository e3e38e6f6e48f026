package storepool

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	"github.com/openchat-im/openchat/internal/common"
	"github.com/openchat-im/openchat/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeLocation(t *testing.T) {
	tests := []struct {
		name     string
		location string
		want     string
		wantErr  error
	}{
		{"postgres passthrough", "postgres://u:p@db.example.com/store", "postgres://u:p@db.example.com/store", nil},
		{"postgresql passthrough", "postgresql://u:p@db.example.com/store", "postgresql://u:p@db.example.com/store", nil},
		{"sqlite passthrough", "sqlite:///var/lib/oc/store.db", "sqlite:///var/lib/oc/store.db", nil},
		{"stripped scheme repaired", "u:p@db.example.com/store", "postgres://u:p@db.example.com/store", nil},
		{"surrounding whitespace", "  postgres://u:p@db.example.com/s  ", "postgres://u:p@db.example.com/s", nil},
		{"empty", "", "", common.ErrorInvalidLocation},
		{"garbage", "not-a-location", "", common.ErrorInvalidLocation},
		{"unknown scheme", "mysql://u:p@db.example.com/s", "", common.ErrorInvalidLocation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeLocation(tt.location)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func testMigrations() fstest.MapFS {
	return fstest.MapFS{
		"00001_init.sql": &fstest.MapFile{Data: []byte(
			"-- +goose Up\nCREATE TABLE notes (body TEXT NOT NULL);\n-- +goose Down\nDROP TABLE notes;\n")},
	}
}

func newTestPool(t *testing.T) (*Pool, string) {
	t.Helper()
	p := NewPool(testLogger(), testMigrations())
	t.Cleanup(p.CloseAll)
	location := "sqlite://" + filepath.Join(t.TempDir(), "store.db")
	return p, location
}

func TestDo_MigratesAndRuns(t *testing.T) {
	p, location := newTestPool(t)
	ctx := context.Background()

	err := p.Do(ctx, location, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `INSERT INTO notes (body) VALUES ('hello')`)
		return err
	})
	require.NoError(t, err)

	var n int
	err = p.Do(ctx, location, func(db *sql.DB) error {
		return db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notes`).Scan(&n)
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, p.Len())
}

func TestDo_ReusesCachedHandle(t *testing.T) {
	p, location := newTestPool(t)
	ctx := context.Background()

	var first, second *sql.DB
	require.NoError(t, p.Do(ctx, location, func(db *sql.DB) error { first = db; return nil }))
	require.NoError(t, p.Do(ctx, location, func(db *sql.DB) error { second = db; return nil }))
	assert.Same(t, first, second)
}

func TestDo_InvalidLocation(t *testing.T) {
	p, _ := newTestPool(t)

	err := p.Do(context.Background(), "nonsense", func(db *sql.DB) error { return nil })
	require.ErrorIs(t, err, common.ErrorInvalidLocation)
}

func TestDo_PropagatesCallbackError(t *testing.T) {
	p, location := newTestPool(t)

	sentinel := errors.New("boom")
	err := p.Do(context.Background(), location, func(db *sql.DB) error { return sentinel })
	require.ErrorIs(t, err, sentinel)
}

func TestReapIdle(t *testing.T) {
	p, location := newTestPool(t)
	p.idleThreshold = 10 * time.Millisecond
	ctx := context.Background()

	require.NoError(t, p.Do(ctx, location, func(db *sql.DB) error { return nil }))
	require.Equal(t, 1, p.Len())

	time.Sleep(20 * time.Millisecond)
	p.reapIdle()
	assert.Equal(t, 0, p.Len())

	// A reaped store is reopened transparently on next use.
	require.NoError(t, p.Do(ctx, location, func(db *sql.DB) error { return nil }))
	assert.Equal(t, 1, p.Len())
}

func TestReapIdle_SkipsActive(t *testing.T) {
	p, location := newTestPool(t)
	p.idleThreshold = 0
	ctx := context.Background()

	db, release, err := p.acquire(ctx, location)
	require.NoError(t, err)
	require.NotNil(t, db)

	p.reapIdle()
	assert.Equal(t, 1, p.Len(), "store with an operation in flight must not be reaped")

	release()
}

func TestDo_IndependentOfStuckStore(t *testing.T) {
	p, healthy := newTestPool(t)
	ctx := context.Background()

	// Simulate a store stuck mid-dial or mid-ping by holding its entry lock.
	stuck := &entry{}
	p.mu.Lock()
	p.entries["sqlite:///stuck.db"] = stuck
	p.mu.Unlock()
	stuck.mu.Lock()
	defer stuck.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		done <- p.Do(ctx, healthy, func(db *sql.DB) error { return nil })
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("operation on a healthy store blocked behind an unrelated store")
	}
}

func TestCloseAll(t *testing.T) {
	p, location := newTestPool(t)
	ctx := context.Background()

	require.NoError(t, p.Do(ctx, location, func(db *sql.DB) error { return nil }))
	p.CloseAll()
	assert.Equal(t, 0, p.Len())

	// Idempotent.
	p.CloseAll()
}
