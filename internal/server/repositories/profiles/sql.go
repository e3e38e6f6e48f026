package profiles

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

func (r *SQLRepository) Save(ctx context.Context, p *models.Profile) error {
	query :=
		`INSERT INTO profiles (username, password_hash, online, push_subscription, public_key, private_key, symmetric_key)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (username) DO UPDATE SET
		   password_hash = excluded.password_hash,
		   online = excluded.online,
		   push_subscription = excluded.push_subscription,
		   public_key = excluded.public_key,
		   private_key = excluded.private_key,
		   symmetric_key = excluded.symmetric_key
		 `

	_, err := r.db.ExecContext(ctx, query,
		p.Username, p.PasswordHash, p.Online, p.PushSubscription, p.PublicKey, p.PrivateKey, p.SymmetricKey)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *SQLRepository) UpsertPlaceholder(ctx context.Context, username string) error {
	// DO NOTHING: a placeholder must never clobber an owner profile's keys.
	query :=
		`INSERT INTO profiles (username, online) VALUES ($1, FALSE)
		 ON CONFLICT (username) DO NOTHING
		 `

	if _, err := r.db.ExecContext(ctx, query, username); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *SQLRepository) Get(ctx context.Context, username string) (*models.Profile, error) {
	query :=
		`SELECT username, password_hash, online, push_subscription, public_key, private_key, symmetric_key
		 FROM profiles WHERE username = $1
		 `

	p := &models.Profile{}
	err := r.db.QueryRowContext(ctx, query, username).
		Scan(&p.Username, &p.PasswordHash, &p.Online, &p.PushSubscription, &p.PublicKey, &p.PrivateKey, &p.SymmetricKey)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return p, nil
}

func (r *SQLRepository) List(ctx context.Context) ([]*models.Profile, error) {
	query :=
		`SELECT username, password_hash, online, push_subscription, public_key, private_key, symmetric_key
		 FROM profiles ORDER BY username
		 `

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.Profile
	for rows.Next() {
		p := &models.Profile{}
		if err := rows.Scan(&p.Username, &p.PasswordHash, &p.Online, &p.PushSubscription, &p.PublicKey, &p.PrivateKey, &p.SymmetricKey); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func (r *SQLRepository) SetOnline(ctx context.Context, username string, online bool) error {
	query := `UPDATE profiles SET online = $1 WHERE username = $2`
	if _, err := r.db.ExecContext(ctx, query, online, username); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *SQLRepository) SetPushSubscription(ctx context.Context, username, subscription string) error {
	query := `UPDATE profiles SET push_subscription = $1 WHERE username = $2`
	if _, err := r.db.ExecContext(ctx, query, subscription, username); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *SQLRepository) SetKeyPair(ctx context.Context, username, publicKey, privateKey string) error {
	query := `UPDATE profiles SET public_key = $1, private_key = $2 WHERE username = $3`
	if _, err := r.db.ExecContext(ctx, query, publicKey, privateKey, username); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *SQLRepository) SetSymmetricKey(ctx context.Context, username, symmetricKey string) error {
	query := `UPDATE profiles SET symmetric_key = $1 WHERE username = $2`
	if _, err := r.db.ExecContext(ctx, query, symmetricKey, username); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
