package links

import (
	"context"
	"database/sql"
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

func (r *SQLRepository) Upsert(ctx context.Context, link *models.ExternalLink) error {
	query :=
		`INSERT INTO external_links (username, authenticator, store_location, public_key)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (username, authenticator) DO UPDATE SET
		   store_location = excluded.store_location,
		   public_key = excluded.public_key
		 `

	_, err := r.db.ExecContext(ctx, query,
		link.Username, link.Authenticator, link.StoreLocation, link.PublicKey)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *SQLRepository) Get(ctx context.Context, username string) (*models.ExternalLink, error) {
	query :=
		`SELECT username, authenticator, store_location, public_key FROM external_links
		 WHERE username = $1
		 `

	link := &models.ExternalLink{}
	err := r.db.QueryRowContext(ctx, query, username).
		Scan(&link.Username, &link.Authenticator, &link.StoreLocation, &link.PublicKey)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return link, nil
}

func (r *SQLRepository) List(ctx context.Context) ([]*models.ExternalLink, error) {
	query :=
		`SELECT username, authenticator, store_location, public_key FROM external_links
		 ORDER BY username
		 `

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.ExternalLink
	for rows.Next() {
		link := &models.ExternalLink{}
		if err := rows.Scan(&link.Username, &link.Authenticator, &link.StoreLocation, &link.PublicKey); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, link)
	}
	return result, rows.Err()
}

// Exists checks for a link row by the same key the upsert uses.
func (r *SQLRepository) Exists(ctx context.Context, username, authenticator string) (bool, error) {
	query := `SELECT COUNT(*) FROM external_links WHERE username = $1 AND authenticator = $2`

	var n int
	if err := r.db.QueryRowContext(ctx, query, username, authenticator).Scan(&n); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return n > 0, nil
}

func (r *SQLRepository) Delete(ctx context.Context, username string) error {
	query := `DELETE FROM external_links WHERE username = $1`

	if _, err := r.db.ExecContext(ctx, query, username); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
