// Package directory implements the shared directory store: account records
// keyed by username and by authenticator, plus the degraded mode used while
// the directory database is unreachable.
package directory

import (
	"encoding/json"
	"fmt"

	"github.com/openchat-im/openchat/internal/server/models"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketByUsername      = []byte("records_by_username")
	bucketByAuthenticator = []byte("records_by_authenticator")
)

// Cache is a local last-known copy of directory records, kept in a bbolt
// file so lookups keep working while the directory database is down.
type Cache struct {
	db *bolt.DB
}

func OpenCache(path string) (*Cache, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("opening directory cache: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketByUsername); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketByAuthenticator)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing directory cache: %w", err)
	}

	return &Cache{db: db}, nil
}

func (c *Cache) Put(rec *models.DirectoryRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding record: %w", err)
	}

	return c.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketByUsername).Put([]byte(rec.Username), data); err != nil {
			return err
		}
		return tx.Bucket(bucketByAuthenticator).Put([]byte(rec.Authenticator), data)
	})
}

func (c *Cache) GetByUsername(username string) (*models.DirectoryRecord, bool) {
	return c.get(bucketByUsername, username)
}

func (c *Cache) GetByAuthenticator(code string) (*models.DirectoryRecord, bool) {
	return c.get(bucketByAuthenticator, code)
}

func (c *Cache) get(bucket []byte, key string) (*models.DirectoryRecord, bool) {
	var rec *models.DirectoryRecord
	c.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucket).Get([]byte(key))
		if data == nil {
			return nil
		}
		r := &models.DirectoryRecord{}
		if err := json.Unmarshal(data, r); err == nil {
			rec = r
		}
		return nil
	})
	return rec, rec != nil
}

func (c *Cache) Close() error {
	return c.db.Close()
}
