package directory

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/openchat-im/openchat/internal/logging"
	"github.com/openchat-im/openchat/internal/server/migrations"
	"github.com/openchat-im/openchat/internal/server/storepool"
	"github.com/pressly/goose/v3"
	"github.com/sethvargo/go-retry"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

const connectAttempts = 5

// Connect dials the directory database, retrying with capped exponential
// backoff, and brings its schema up to date. Callers fall back to degraded
// mode when it returns an error.
func Connect(ctx context.Context, log logging.Logger, location string) (*sql.DB, error) {
	driver, dsn, dialect, err := storepool.ResolveDriver(location)
	if err != nil {
		return nil, err
	}

	var db *sql.DB
	backoff := retry.WithMaxRetries(connectAttempts-1,
		retry.WithCappedDuration(5*time.Second, retry.NewExponential(500*time.Millisecond)))

	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		var err error
		db, err = sql.Open(driver, dsn)
		if err != nil {
			return err
		}
		if err = db.PingContext(ctx); err != nil {
			db.Close()
			log.Warn(ctx, "directory unreachable, retrying", "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to directory: %w", err)
	}

	provider, err := goose.NewProvider(dialect, db, migrations.Directory())
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("preparing directory migrations: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating directory: %w", err)
	}

	return db, nil
}
