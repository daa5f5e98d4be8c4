package sync

import (
	"encoding/json"
	"fmt"
	"strconv"

	"go.etcd.io/bbolt"

	"github.com/stocklinehq/stockline/pkg/api"
)

// Cache is the client's local mirror of the server datasets, one bbolt
// bucket per dataset, rows keyed by id. A full sync replaces a bucket
// wholesale; broadcasts patch individual rows.
type Cache struct {
	db *bbolt.DB
}

// NewCache opens (or creates) the mirror database at dbPath.
func NewCache(dbPath string) (*Cache, error) {
	db, err := bbolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}

	cache := &Cache{db: db}
	if err := cache.initBuckets(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize buckets: %w", err)
	}
	return cache, nil
}

// Close closes the database.
func (c *Cache) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

func (c *Cache) initBuckets() error {
	return c.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range api.DefaultDatasets() {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", name, err)
			}
		}
		return nil
	})
}

// row is the minimal shape needed to key dataset rows by id.
type row struct {
	ID int64 `json:"id"`
}

// ReplaceDataset drops the dataset bucket and refills it from the rows of
// a SYNC_RESPONSE. Unknown datasets are ignored.
func (c *Cache) ReplaceDataset(dataset string, data json.RawMessage) error {
	var rows []json.RawMessage
	if err := json.Unmarshal(data, &rows); err != nil {
		return fmt.Errorf("failed to decode %s rows: %w", dataset, err)
	}

	return c.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket([]byte(dataset)) != nil {
			if err := tx.DeleteBucket([]byte(dataset)); err != nil {
				return fmt.Errorf("failed to reset bucket %s: %w", dataset, err)
			}
		}
		b, err := tx.CreateBucket([]byte(dataset))
		if err != nil {
			return fmt.Errorf("failed to recreate bucket %s: %w", dataset, err)
		}

		for _, raw := range rows {
			var r row
			if err := json.Unmarshal(raw, &r); err != nil {
				return fmt.Errorf("failed to decode %s row: %w", dataset, err)
			}
			if err := b.Put(idKey(r.ID), raw); err != nil {
				return fmt.Errorf("failed to store %s row: %w", dataset, err)
			}
		}
		return nil
	})
}

// ApplyChange patches one row in response to a DATA_CHANGE broadcast.
// Entity names match dataset names on the wire.
func (c *Cache) ApplyChange(entity string, action api.ChangeAction, id int64, data json.RawMessage) error {
	return c.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(entity))
		if b == nil {
			// Entity the mirror does not track; nothing to do.
			return nil
		}

		switch action {
		case api.ActionDelete:
			return b.Delete(idKey(id))
		case api.ActionCreate, api.ActionUpdate:
			if id == 0 {
				var r row
				if err := json.Unmarshal(data, &r); err != nil {
					return fmt.Errorf("failed to decode %s change: %w", entity, err)
				}
				id = r.ID
			}
			return b.Put(idKey(id), data)
		default:
			return fmt.Errorf("unknown action %q", action)
		}
	})
}

// Get fetches one row by id; the second return is false when absent.
func (c *Cache) Get(dataset string, id int64, v any) (bool, error) {
	var raw []byte
	err := c.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(dataset))
		if b == nil {
			return nil
		}
		if data := b.Get(idKey(id)); data != nil {
			raw = append([]byte(nil), data...)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	if raw == nil {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("failed to decode row: %w", err)
	}
	return true, nil
}

// Count returns the number of rows mirrored for a dataset.
func (c *Cache) Count(dataset string) (int, error) {
	var n int
	err := c.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(dataset))
		if b == nil {
			return nil
		}
		n = b.Stats().KeyN
		return nil
	})
	return n, err
}

func idKey(id int64) []byte {
	return []byte(strconv.FormatInt(id, 10))
}
