package groups

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/openchat-im/openchat/internal/common"
	"github.com/openchat-im/openchat/internal/server/models"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`CREATE TABLE groups (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		creator TEXT NOT NULL,
		members TEXT NOT NULL DEFAULT '[]',
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL
	);
	CREATE TABLE group_messages (
		id TEXT PRIMARY KEY,
		group_id TEXT NOT NULL,
		sender TEXT NOT NULL,
		body TEXT NOT NULL DEFAULT '',
		file_url TEXT NOT NULL DEFAULT '',
		file_name TEXT NOT NULL DEFAULT '',
		file_type TEXT NOT NULL DEFAULT '',
		file_size BIGINT NOT NULL DEFAULT 0,
		ts BIGINT NOT NULL
	)`)
	require.NoError(t, err)
	return db
}

func TestUpsert_InsertThenUpdate(t *testing.T) {
	db := newTestDB(t)
	repo := NewSQLRepository(db)
	ctx := context.Background()

	g := &models.Group{
		ID: "g-1", Name: "team", Creator: "alice",
		Members: []string{"alice", "bob"}, CreatedAt: 100, UpdatedAt: 100,
	}
	require.NoError(t, repo.Upsert(ctx, g))

	// Replication re-applies the record with a grown member list.
	g.Members = append(g.Members, "carol")
	g.UpdatedAt = 200
	require.NoError(t, repo.Upsert(ctx, g))

	got, err := repo.Get(ctx, "g-1")
	require.NoError(t, err)
	require.Equal(t, []string{"alice", "bob", "carol"}, got.Members)
	require.Equal(t, int64(200), got.UpdatedAt)
	require.Equal(t, int64(100), got.CreatedAt)
	require.Equal(t, "alice", got.Creator)
}

func TestGet_NotFound(t *testing.T) {
	db := newTestDB(t)
	repo := NewSQLRepository(db)

	_, err := repo.Get(context.Background(), "nope")
	require.True(t, errors.Is(err, common.ErrorNotFound))
}

func TestListForMember(t *testing.T) {
	db := newTestDB(t)
	repo := NewSQLRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, &models.Group{
		ID: "g-1", Name: "team", Creator: "alice",
		Members: []string{"alice", "bob"}, CreatedAt: 100, UpdatedAt: 100,
	}))
	require.NoError(t, repo.Upsert(ctx, &models.Group{
		ID: "g-2", Name: "other", Creator: "carol",
		Members: []string{"carol"}, CreatedAt: 100, UpdatedAt: 300,
	}))
	require.NoError(t, repo.Upsert(ctx, &models.Group{
		ID: "g-3", Name: "both", Creator: "bob",
		Members: []string{"bob", "carol"}, CreatedAt: 100, UpdatedAt: 200,
	}))

	got, err := repo.ListForMember(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, got, 2)
	// Most recently updated first.
	require.Equal(t, "g-3", got[0].ID)
	require.Equal(t, "g-1", got[1].ID)
}

func TestDelete_RemovesGroupAndMessages(t *testing.T) {
	db := newTestDB(t)
	repo := NewSQLRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, &models.Group{
		ID: "g-1", Name: "team", Creator: "alice",
		Members: []string{"alice"}, CreatedAt: 100, UpdatedAt: 100,
	}))
	_, err := db.Exec(`INSERT INTO group_messages (id, group_id, sender, body, ts) VALUES ('m-1', 'g-1', 'alice', 'hi', 100)`)
	require.NoError(t, err)

	require.NoError(t, repo.Delete(ctx, "g-1"))

	_, err = repo.Get(ctx, "g-1")
	require.True(t, errors.Is(err, common.ErrorNotFound))

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM group_messages WHERE group_id = 'g-1'`).Scan(&n))
	require.Zero(t, n)
}
