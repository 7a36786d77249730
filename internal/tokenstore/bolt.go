package tokenstore

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/alexjbarnes/bff-proxy/internal/models"
	bolt "go.etcd.io/bbolt"
)

const (
	// dbDirPerm is the permission mode for the database directory.
	dbDirPerm = fs.FileMode(0o700)

	// dbFilePerm is the permission mode for the database file. It holds
	// live bearer tokens.
	dbFilePerm = fs.FileMode(0o600)

	// dbOpenTimeout is the maximum time to wait for the bolt database lock.
	dbOpenTimeout = 5 * time.Second
)

var sessionTokensBucket = []byte("session_tokens")

// BoltStore persists session tokens in a bbolt database so sessions
// survive a restart of a single instance. Each write is one transaction.
type BoltStore struct {
	db *bolt.DB
}

// OpenBolt opens the database at path, creating it and its directory if
// they do not exist.
func OpenBolt(path string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), dbDirPerm); err != nil {
		return nil, fmt.Errorf("creating session db directory: %w", err)
	}

	db, err := bolt.Open(path, dbFilePerm, &bolt.Options{Timeout: dbOpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("opening session db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(sessionTokensBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing session db: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Get returns the session's token, or nil if none is stored.
func (s *BoltStore) Get(sessionID string) (*models.TokenInfo, error) {
	var ti *models.TokenInfo

	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(sessionTokensBucket).Get([]byte(sessionID))
		if v == nil {
			return nil
		}

		ti = &models.TokenInfo{}

		return json.Unmarshal(v, ti)
	})
	if err != nil {
		return nil, fmt.Errorf("reading session token: %w", err)
	}

	return ti, nil
}

// Set replaces the session's token.
func (s *BoltStore) Set(sessionID string, ti models.TokenInfo) error {
	data, err := json.Marshal(ti)
	if err != nil {
		return fmt.Errorf("encoding session token: %w", err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(sessionTokensBucket).Put([]byte(sessionID), data)
	})
}

// Clear removes the session's token.
func (s *BoltStore) Clear(sessionID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(sessionTokensBucket).Delete([]byte(sessionID))
	})
}

// Prune removes every token that is no longer valid at now. Entries that
// fail to decode are removed as well.
func (s *BoltStore) Prune(now time.Time) (int, error) {
	removed := 0

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(sessionTokensBucket)

		var stale [][]byte

		err := b.ForEach(func(k, v []byte) error {
			var ti models.TokenInfo
			if json.Unmarshal(v, &ti) != nil || !ti.ValidAt(now) {
				stale = append(stale, append([]byte(nil), k...))
			}

			return nil
		})
		if err != nil {
			return err
		}

		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}

		removed = len(stale)

		return nil
	})

	return removed, err
}
