// Package migrations embeds the goose SQL migrations for the two store
// schemas: the shared directory store and the per-user personal stores.
// The SQL is kept portable between the postgres and sqlite dialects, since a
// single process runs migrations against both (timestamps are unix
// milliseconds in BIGINT columns, group member lists are JSON-encoded TEXT).
package migrations

import (
	"embed"
	"io/fs"
)

//go:embed directory/*.sql personal/*.sql
var embedded embed.FS

// Directory returns the migration set for the shared directory store.
func Directory() fs.FS {
	sub, err := fs.Sub(embedded, "directory")
	if err != nil {
		panic(err)
	}
	return sub
}

// Personal returns the migration set for a personal store.
func Personal() fs.FS {
	sub, err := fs.Sub(embedded, "personal")
	if err != nil {
		panic(err)
	}
	return sub
}
