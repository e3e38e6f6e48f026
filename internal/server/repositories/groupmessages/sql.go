package groupmessages

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

func (r *SQLRepository) Save(ctx context.Context, m *models.GroupMessage) error {
	query :=
		`INSERT INTO group_messages (id, group_id, sender, body, file_url, file_name, file_type, file_size, ts)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (id) DO NOTHING
		 `

	_, err := r.db.ExecContext(ctx, query,
		m.ID, m.GroupID, m.Sender, m.Body, m.FileURL, m.FileName, m.FileType, m.FileSize, m.Timestamp)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *SQLRepository) ListForGroup(ctx context.Context, groupID string) ([]*models.GroupMessage, error) {
	query :=
		`SELECT id, group_id, sender, body, file_url, file_name, file_type, file_size, ts
		 FROM group_messages WHERE group_id = $1 ORDER BY ts
		 `

	rows, err := r.db.QueryContext(ctx, query, groupID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.GroupMessage
	for rows.Next() {
		m := &models.GroupMessage{}
		if err := rows.Scan(&m.ID, &m.GroupID, &m.Sender, &m.Body, &m.FileURL, &m.FileName, &m.FileType, &m.FileSize, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

func (r *SQLRepository) DeleteForGroup(ctx context.Context, groupID string) error {
	query := `DELETE FROM group_messages WHERE group_id = $1`

	if _, err := r.db.ExecContext(ctx, query, groupID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
