package groups

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/openchat-im/openchat/internal/common"
	"github.com/openchat-im/openchat/internal/dbx"
	"github.com/openchat-im/openchat/internal/server/models"
)

type SQLRepository struct {
	db dbx.DBTX
}

func NewSQLRepository(db dbx.DBTX) *SQLRepository {
	return &SQLRepository{db: db}
}

func (r *SQLRepository) Upsert(ctx context.Context, g *models.Group) error {
	members, err := json.Marshal(g.Members)
	if err != nil {
		return fmt.Errorf("encoding members: %w", err)
	}

	query :=
		`INSERT INTO groups (id, name, creator, members, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO UPDATE SET
		   name = excluded.name,
		   members = excluded.members,
		   updated_at = excluded.updated_at
		 `

	_, err = r.db.ExecContext(ctx, query,
		g.ID, g.Name, g.Creator, string(members), g.CreatedAt, g.UpdatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *SQLRepository) Get(ctx context.Context, id string) (*models.Group, error) {
	query :=
		`SELECT id, name, creator, members, created_at, updated_at FROM groups
		 WHERE id = $1
		 `

	g, err := scanGroup(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, err
	}
	return g, nil
}

func (r *SQLRepository) ListForMember(ctx context.Context, username string) ([]*models.Group, error) {
	// Members is a JSON array column, so membership is filtered in Go rather
	// than in SQL to stay portable across backends.
	query :=
		`SELECT id, name, creator, members, created_at, updated_at FROM groups
		 ORDER BY updated_at DESC
		 `

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		if g.HasMember(username) {
			result = append(result, g)
		}
	}
	return result, rows.Err()
}

func (r *SQLRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM group_messages WHERE group_id = $1`, id); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, `DELETE FROM groups WHERE id = $1`, id); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGroup(row rowScanner) (*models.Group, error) {
	g := &models.Group{}
	var members string
	if err := row.Scan(&g.ID, &g.Name, &g.Creator, &members, &g.CreatedAt, &g.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	if err := json.Unmarshal([]byte(members), &g.Members); err != nil {
		return nil, fmt.Errorf("decoding members: %w", err)
	}
	return g, nil
}
