package dedup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// BadgerStore is an embedded alternative for single-host deployments without
// redis. Badger's optimistic transactions turn a lost race into ErrConflict,
// which is reported as "already present".
type BadgerStore struct {
	db *badger.DB
}

func OpenBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger at %q: %w", path, err)
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) SetIfAbsent(_ context.Context, key string, value string, ttl time.Duration) (bool, error) {
	err := s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(key))
		if err == nil {
			return errAlreadyPresent
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.SetEntry(badger.NewEntry([]byte(key), []byte(value)).WithTTL(ttl))
	})
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, errAlreadyPresent), errors.Is(err, badger.ErrConflict):
		return false, nil
	default:
		return false, err
	}
}

func (s *BadgerStore) Delete(_ context.Context, key string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

func (s *BadgerStore) DeletePrefix(_ context.Context, prefix string) (int, error) {
	var keys [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			keys = append(keys, bytes.Clone(it.Item().Key()))
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		for _, k := range keys {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

var errAlreadyPresent = errors.New("key already present")
