// Package spool keeps interactions that could not be delivered to the sink
// in a badger store so they can be retried on the next start.
package spool

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/vincentbai/classtrace/internal/models"
)

var keyPrefix = []byte("spool:")

// Store is an ordered FIFO of interaction records.
type Store struct {
	db    *badger.DB
	owned bool

	mu  sync.Mutex
	seq uint64
}

// Open opens (or creates) a spool in dir. An empty dir opens an in-memory
// spool.
func Open(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open spool: %w", err)
	}
	s, err := New(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	s.owned = true
	return s, nil
}

// New wraps an already open database. The caller keeps ownership of db.
func New(db *badger.DB) (*Store, error) {
	s := &Store{db: db}
	err := db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		// seek past the last possible key under the prefix
		it.Seek(append(append([]byte{}, keyPrefix...), 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff))
		if it.ValidForPrefix(keyPrefix) {
			s.seq = binary.BigEndian.Uint64(it.Item().Key()[len(keyPrefix):])
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan spool: %w", err)
	}
	return s, nil
}

func (s *Store) nextKey() []byte {
	s.seq++
	key := make([]byte, len(keyPrefix)+8)
	copy(key, keyPrefix)
	binary.BigEndian.PutUint64(key[len(keyPrefix):], s.seq)
	return key
}

// Put appends records in order.
func (s *Store) Put(records ...models.InteractionRecord) error {
	if len(records) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, r := range records {
		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("failed to marshal spooled record: %w", err)
		}
		if err := wb.Set(s.nextKey(), data); err != nil {
			return fmt.Errorf("failed to spool record: %w", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("failed to flush spool: %w", err)
	}
	return nil
}

// Drain removes and returns up to limit of the oldest records. limit <= 0
// drains everything.
func (s *Store) Drain(limit int) ([]models.InteractionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.InteractionRecord
	err := s.db.Update(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		var keys [][]byte
		for it.Seek(keyPrefix); it.ValidForPrefix(keyPrefix); it.Next() {
			if limit > 0 && len(out) >= limit {
				break
			}
			item := it.Item()
			var r models.InteractionRecord
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &r)
			}); err != nil {
				it.Close()
				return fmt.Errorf("failed to decode spooled record: %w", err)
			}
			out = append(out, r)
			keys = append(keys, item.KeyCopy(nil))
		}
		it.Close()

		for _, k := range keys {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, badger.ErrTxnTooBig) {
			return nil, fmt.Errorf("spool drain too large, lower the limit: %w", err)
		}
		return nil, err
	}
	return out, nil
}

// Count reports how many records are spooled.
func (s *Store) Count() (int, error) {
	n := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(keyPrefix); it.ValidForPrefix(keyPrefix); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

// Close closes the database if Open created it.
func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}
