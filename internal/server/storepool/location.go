package storepool

import (
	"strings"

	"github.com/openchat-im/openchat/internal/common"
	"github.com/pressly/goose/v3/database"
)

// DefaultScheme is prefixed onto scheme-less locations that still look like
// real connection strings (credentials and a host with a dot).
const DefaultScheme = "postgres://"

var knownSchemes = []string{"postgres://", "postgresql://", "sqlite://"}

// NormalizeLocation validates a store location and repairs the common damage
// pattern where the scheme prefix was stripped somewhere along the way.
// Locations that cannot be repaired are rejected rather than dialed blind.
func NormalizeLocation(location string) (string, error) {
	loc := strings.TrimSpace(location)
	if loc == "" {
		return "", common.ErrorInvalidLocation
	}

	for _, s := range knownSchemes {
		if strings.HasPrefix(loc, s) {
			return loc, nil
		}
	}

	if strings.Contains(loc, "@") && strings.Contains(loc, ".") {
		return DefaultScheme + loc, nil
	}

	return "", common.ErrorInvalidLocation
}

// ResolveDriver maps a normalized location onto a database/sql driver name,
// the DSN that driver expects, and the matching goose dialect.
func ResolveDriver(location string) (driver, dsn string, dialect database.Dialect, err error) {
	switch {
	case strings.HasPrefix(location, "postgres://"), strings.HasPrefix(location, "postgresql://"):
		return "pgx", location, database.DialectPostgres, nil
	case strings.HasPrefix(location, "sqlite://"):
		return "sqlite", strings.TrimPrefix(location, "sqlite://"), database.DialectSQLite3, nil
	default:
		return "", "", "", common.ErrorInvalidLocation
	}
}
