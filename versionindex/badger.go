package versionindex

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	badgerdb "github.com/dgraph-io/badger/v3"
	"github.com/ruteri/storage-adapter/interfaces"
)

const badgerMaxRetries = 256

// BadgerIndex stores version sets in an embedded Badger database.
//
// Layout:
//
//	s/<stable>                 big-endian uint64 counter
//	v/<stable>\x00<version>    JSON reference, version as big-endian uint64
type BadgerIndex struct {
	db *badgerdb.DB
}

// NewBadgerIndex opens (or creates) a database in dir. An empty dir opens
// an in-memory database.
func NewBadgerIndex(dir string) (*BadgerIndex, error) {
	opts := badgerdb.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger db: %w", err)
	}
	return &BadgerIndex{db: db}, nil
}

func counterKey(stable interfaces.BackendKey) []byte {
	return append([]byte("s/"), string(stable)...)
}

func versionPrefix(stable interfaces.BackendKey) []byte {
	p := append([]byte("v/"), string(stable)...)
	return append(p, 0)
}

func versionKey(stable interfaces.BackendKey, version uint64) []byte {
	return binary.BigEndian.AppendUint64(versionPrefix(stable), version)
}

// Reserve increments the counter of stable in a read-write transaction,
// retrying when a concurrent transaction commits first.
func (idx *BadgerIndex) Reserve(ctx context.Context, stable interfaces.BackendKey) (uint64, error) {
	for attempt := 0; attempt < badgerMaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		var next uint64
		err := idx.db.Update(func(txn *badgerdb.Txn) error {
			current, err := readCounter(txn, stable)
			if err != nil {
				return err
			}
			next = current + 1
			return txn.Set(counterKey(stable), binary.BigEndian.AppendUint64(nil, next))
		})
		if errors.Is(err, badgerdb.ErrConflict) {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("reserve version: %w", err)
		}
		return next, nil
	}
	return 0, fmt.Errorf("reserve version: %w after %d attempts", badgerdb.ErrConflict, badgerMaxRetries)
}

func readCounter(txn *badgerdb.Txn, stable interfaces.BackendKey) (uint64, error) {
	item, err := txn.Get(counterKey(stable))
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var current uint64
	err = item.Value(func(val []byte) error {
		if len(val) != 8 {
			return fmt.Errorf("corrupt counter for %s", stable)
		}
		current = binary.BigEndian.Uint64(val)
		return nil
	})
	return current, err
}

// Commit stores ref under its version index and raises the counter to at
// least that index.
func (idx *BadgerIndex) Commit(ctx context.Context, stable interfaces.BackendKey, ref interfaces.StoredFileReference) error {
	data, err := json.Marshal(ref)
	if err != nil {
		return fmt.Errorf("failed to encode reference: %w", err)
	}

	for attempt := 0; attempt < badgerMaxRetries; attempt++ {
		err = idx.db.Update(func(txn *badgerdb.Txn) error {
			current, err := readCounter(txn, stable)
			if err != nil {
				return err
			}
			if ref.Version > current {
				if err := txn.Set(counterKey(stable), binary.BigEndian.AppendUint64(nil, ref.Version)); err != nil {
					return err
				}
			}
			return txn.Set(versionKey(stable, ref.Version), data)
		})
		if !errors.Is(err, badgerdb.ErrConflict) {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("commit version: %w", err)
	}
	return nil
}

// List returns the committed versions of stable, oldest first.
func (idx *BadgerIndex) List(ctx context.Context, stable interfaces.BackendKey) ([]interfaces.StoredFileReference, error) {
	var refs []interfaces.StoredFileReference
	prefix := versionPrefix(stable)

	err := idx.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var ref interfaces.StoredFileReference
				if err := json.Unmarshal(val, &ref); err != nil {
					return fmt.Errorf("corrupt version of %s: %w", stable, err)
				}
				refs = append(refs, ref)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(refs) == 0 {
		return nil, interfaces.ErrContentNotFound
	}
	// Big-endian version suffixes already iterate in order
	return refs, nil
}

// Remove deletes the counter and every version of stable.
func (idx *BadgerIndex) Remove(ctx context.Context, stable interfaces.BackendKey) error {
	prefix := versionPrefix(stable)
	return idx.db.Update(func(txn *badgerdb.Txn) error {
		var keys [][]byte
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		it.Close()

		for _, k := range keys {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return txn.Delete(counterKey(stable))
	})
}

// Close closes the database.
func (idx *BadgerIndex) Close() error {
	return idx.db.Close()
}
