package messages

import (
	"context"
	"database/sql"
	"testing"

	"github.com/openchat-im/openchat/internal/server/models"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`CREATE TABLE messages (
		sender TEXT NOT NULL,
		receiver TEXT NOT NULL,
		body TEXT NOT NULL DEFAULT '',
		file_url TEXT NOT NULL DEFAULT '',
		file_name TEXT NOT NULL DEFAULT '',
		file_type TEXT NOT NULL DEFAULT '',
		file_size BIGINT NOT NULL DEFAULT 0,
		is_encrypted BOOLEAN NOT NULL DEFAULT TRUE,
		ts BIGINT NOT NULL
	)`)
	require.NoError(t, err)
	return db
}

func TestSaveAndListConversation(t *testing.T) {
	db := newTestDB(t)
	repo := NewSQLRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, &models.Message{
		Sender: "alice", Receiver: "bob", Body: "hi", IsEncrypted: true, Timestamp: 100,
	}))
	require.NoError(t, repo.Save(ctx, &models.Message{
		Sender: "bob", Receiver: "alice", Body: "hello", IsEncrypted: true, Timestamp: 200,
	}))
	require.NoError(t, repo.Save(ctx, &models.Message{
		Sender: "alice", Receiver: "carol", Body: "other thread", Timestamp: 150,
	}))

	got, err := repo.ListConversation(ctx, "alice", "bob")
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "hi", got[0].Body)
	require.Equal(t, "hello", got[1].Body)

	// Same conversation regardless of argument order.
	reversed, err := repo.ListConversation(ctx, "bob", "alice")
	require.NoError(t, err)
	require.Equal(t, got, reversed)
}

func TestListConversation_Empty(t *testing.T) {
	db := newTestDB(t)
	repo := NewSQLRepository(db)

	got, err := repo.ListConversation(context.Background(), "alice", "ghost")
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestSave_FileMessage(t *testing.T) {
	db := newTestDB(t)
	repo := NewSQLRepository(db)
	ctx := context.Background()

	m := &models.Message{
		Sender: "alice", Receiver: "bob",
		FileURL: "https://files/abc", FileName: "report.pdf", FileType: "application/pdf", FileSize: 1024,
		Timestamp: 100,
	}
	require.NoError(t, repo.Save(ctx, m))

	got, err := repo.ListConversation(ctx, "alice", "bob")
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.True(t, got[0].IsFile())
	require.Equal(t, int64(1024), got[0].FileSize)
}
