package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
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

// isUniqueViolation reports whether err is a unique-constraint failure and,
// if so, whether it involves the given column. Works for both pgx (SQLSTATE
// 23505) and sqlite ("UNIQUE constraint failed: ...").
func isUniqueViolation(err error, column string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" && strings.Contains(pgErr.ConstraintName+pgErr.Detail, column)
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint") && strings.Contains(msg, column)
}

func (r *SQLRepository) Create(ctx context.Context, rec *models.DirectoryRecord) error {
	query :=
		`INSERT INTO directory_records (authenticator, username, password_hash, store_location)
		 VALUES ($1, $2, $3, $4)
		 `

	_, err := r.db.ExecContext(ctx, query,
		rec.Authenticator, rec.Username, rec.PasswordHash, rec.StoreLocation)

	if err != nil {
		// A raced duplicate insert surfaces here even though the caller
		// checked first.
		if isUniqueViolation(err, "username") {
			return common.ErrorDuplicateUsername
		}
		if isUniqueViolation(err, "authenticator") {
			return common.ErrorAuthenticatorExhausted
		}
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

func (r *SQLRepository) FindByUsername(ctx context.Context, username string) (*models.DirectoryRecord, error) {
	query :=
		`SELECT authenticator, username, password_hash, store_location FROM directory_records
		 WHERE username = $1
		 `

	rec := &models.DirectoryRecord{}
	err := r.db.QueryRowContext(ctx, query, username).
		Scan(&rec.Authenticator, &rec.Username, &rec.PasswordHash, &rec.StoreLocation)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return rec, nil
}

func (r *SQLRepository) FindByAuthenticator(ctx context.Context, code string) (*models.DirectoryRecord, error) {
	query :=
		`SELECT authenticator, username, password_hash, store_location FROM directory_records
		 WHERE authenticator = $1
		 `

	rec := &models.DirectoryRecord{}
	err := r.db.QueryRowContext(ctx, query, code).
		Scan(&rec.Authenticator, &rec.Username, &rec.PasswordHash, &rec.StoreLocation)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return rec, nil
}

func (r *SQLRepository) AuthenticatorExists(ctx context.Context, code string) (bool, error) {
	query := `SELECT COUNT(*) FROM directory_records WHERE authenticator = $1`

	var n int
	if err := r.db.QueryRowContext(ctx, query, code).Scan(&n); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return n > 0, nil
}

func (r *SQLRepository) UpdateStoreLocation(ctx context.Context, username, location string) error {
	query := `UPDATE directory_records SET store_location = $1 WHERE username = $2`

	if _, err := r.db.ExecContext(ctx, query, location, username); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
