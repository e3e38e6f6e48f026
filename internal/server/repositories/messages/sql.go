package messages

import (
	"context"
	"fmt"

	"github.com/openchat-im/openchat/internal/dbx"
	"github.com/openchat-im/openchat/internal/server/models"
)

type SQLRepository struct {
	db dbx.DBTX
}

func NewSQLRepository(db dbx.DBTX) *SQLRepository {
	return &SQLRepository{db: db}
}

func (r *SQLRepository) Save(ctx context.Context, m *models.Message) error {
	query :=
		`INSERT INTO messages (sender, receiver, body, file_url, file_name, file_type, file_size, is_encrypted, ts)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 `

	_, err := r.db.ExecContext(ctx, query,
		m.Sender, m.Receiver, m.Body, m.FileURL, m.FileName, m.FileType, m.FileSize, m.IsEncrypted, m.Timestamp)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *SQLRepository) ListConversation(ctx context.Context, userA, userB string) ([]*models.Message, error) {
	query :=
		`SELECT sender, receiver, body, file_url, file_name, file_type, file_size, is_encrypted, ts
		 FROM messages
		 WHERE (sender = $1 AND receiver = $2) OR (sender = $2 AND receiver = $1)
		 ORDER BY ts
		 `

	rows, err := r.db.QueryContext(ctx, query, userA, userB)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.Message
	for rows.Next() {
		m := &models.Message{}
		if err := rows.Scan(&m.Sender, &m.Receiver, &m.Body, &m.FileURL, &m.FileName, &m.FileType, &m.FileSize, &m.IsEncrypted, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, m)
	}
	return result, rows.Err()
}
