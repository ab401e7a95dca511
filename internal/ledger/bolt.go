//
//
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

const dispatchesBucket = "dispatches"

// keyLayout is fixed width so keys sort in time order.
const keyLayout = "2006-01-02T15:04:05.000000000Z"

const openTimeout = time.Second

// ErrLocked is returned when another process holds the ledger file.
var ErrLocked = errors.New("ledger is locked by another process")

// BoltStore implements Store using bbolt.
type BoltStore struct {
	db *bbolt.DB
}

// OpenBolt opens (or creates) the ledger database at path.
func OpenBolt(path string) (*BoltStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ledger: create directory %s: %w", dir, err)
		}
	}

	db, err := open(path, &bbolt.Options{Timeout: openTimeout})
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(dispatchesBucket))
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ledger: create bucket: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// OpenBoltReadOnly opens an existing ledger for reading. It shares the file
// lock with other readers but not with a writer such as a running server.
func OpenBoltReadOnly(path string) (*BoltStore, error) {
	db, err := open(path, &bbolt.Options{ReadOnly: true, Timeout: openTimeout})
	if err != nil {
		return nil, err
	}
	return &BoltStore{db: db}, nil
}

func open(path string, opts *bbolt.Options) (*bbolt.DB, error) {
	db, err := bbolt.Open(path, 0o600, opts)
	if errors.Is(err, bbolt.ErrTimeout) {
		return nil, fmt.Errorf("ledger: open %s: %w", path, ErrLocked)
	}
	if err != nil {
		return nil, fmt.Errorf("ledger: open %s: %w", path, err)
	}
	return db, nil
}

func recordKey(rec Record) []byte {
	return []byte(rec.Timestamp.UTC().Format(keyLayout) + "/" + rec.OrderID)
}

// Record stores rec. A zero timestamp is set to now.
func (s *BoltStore) Record(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("ledger: marshal record: %w", err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket([]byte(dispatchesBucket)).Put(recordKey(rec), data); err != nil {
			return fmt.Errorf("ledger: store record: %w", err)
		}
		return nil
	})
}

// List returns up to limit records, newest first.
func (s *BoltStore) List(ctx context.Context, limit int) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []Record
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(dispatchesBucket))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("ledger: decode %s: %w", k, err)
			}
			out = append(out, rec)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Latest returns the newest record for orderID.
func (s *BoltStore) Latest(ctx context.Context, orderID string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}

	var (
		rec   Record
		found bool
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(dispatchesBucket))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		suffix := "/" + orderID
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			key := string(k)
			if len(key) < len(suffix) || key[len(key)-len(suffix):] != suffix {
				continue
			}
			found = true
			return json.Unmarshal(v, &rec)
		}
		return nil
	})
	if err != nil {
		return Record{}, fmt.Errorf("ledger: lookup %s: %w", orderID, err)
	}
	if !found {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

// Close closes the database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}
