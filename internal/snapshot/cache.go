// Package snapshot persists the last successfully loaded record collection
// in a local bolt database so the dashboard can render instantly on cold
// start, before the first live load from the shared medium completes.
//
// The cache is purely advisory: it is superseded wholesale by every save,
// never merged, and always safe to discard. A malformed slot is deleted on
// read rather than served.
package snapshot

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	bolt "go.etcd.io/bbolt"

	"feedtrack/internal/logging"
	"feedtrack/internal/record"
)

var bucketName = []byte("snapshots")

// Snapshot is a cached record collection plus the time it was captured.
type Snapshot struct {
	Data       *record.Collection `json:"records"`
	LastUpdate time.Time          `json:"lastUpdate"`
}

// Cache is a single durable key-value slot for one logical resource.
type Cache struct {
	db     *bolt.DB
	key    []byte
	now    func() time.Time
	logger *slog.Logger
}

// Open opens (creating if needed) the bolt database at path and returns a
// Cache keyed by cacheID. Multiple caches may share one database file as
// long as their IDs differ.
func Open(path, cacheID string, logger *slog.Logger) (*Cache, error) {
	logger = logging.Default(logger)

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open snapshot database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create snapshot bucket: %w", err)
	}

	return &Cache{
		db:     db,
		key:    []byte(cacheID),
		now:    time.Now,
		logger: logger.With("component", "snapshot", "cache", cacheID),
	}, nil
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Load returns the cached snapshot, or nil if the slot is empty. A slot
// that does not decode is deleted as a side effect and nil is returned:
// corrupt data is never served silently.
func (c *Cache) Load() (*Snapshot, error) {
	var raw []byte
	err := c.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketName).Get(c.key)
		if v != nil {
			raw = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read snapshot slot: %w", err)
	}
	if raw == nil {
		return nil, nil
	}

	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil || snap.Data == nil {
		c.logger.Warn("clearing malformed snapshot slot", "error", err)
		if clearErr := c.Clear(); clearErr != nil {
			return nil, clearErr
		}
		return nil, nil
	}

	snap.Data.Normalize()
	return &snap, nil
}

// Save overwrites the slot with the collection and the current time. The
// stored timestamp is clamped to be monotonically non-decreasing across
// successive saves, even if the wall clock steps backwards.
func (c *Cache) Save(coll *record.Collection) error {
	ts := c.now().UTC()

	return c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)

		if prev := b.Get(c.key); prev != nil {
			var old Snapshot
			if err := json.Unmarshal(prev, &old); err == nil && old.LastUpdate.After(ts) {
				ts = old.LastUpdate
			}
		}

		data, err := json.Marshal(Snapshot{Data: coll, LastUpdate: ts})
		if err != nil {
			return fmt.Errorf("encode snapshot: %w", err)
		}
		if err := b.Put(c.key, data); err != nil {
			return fmt.Errorf("write snapshot slot: %w", err)
		}
		return nil
	})
}

// Clear removes the slot. Missing slots are not an error.
func (c *Cache) Clear() error {
	return c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Delete(c.key)
	})
}
