package mech

import (
	"errors"
	"unicode/utf8"

	badger "github.com/dgraph-io/badger/v3"
)

// Badger stores data in an embedded Badger database on disk, giving a
// persistent mechanism with no external service to run.
type Badger struct {
	db *badger.DB
}

// BadgerArgs are the arguments for creating a new Badger mechanism.
type BadgerArgs struct {
	Dir      string // Required unless InMemory. The directory holding the database files.
	InMemory bool   // Optional. Keep the database off disk; useful for tests.
}

// NewBadger opens the database under args.Dir. The caller owns the handle and
// should Close it when done.
func NewBadger(args BadgerArgs) (*Badger, error) {
	opt := badger.DefaultOptions(args.Dir).WithLogger(nil)
	if args.InMemory {
		opt = opt.WithInMemory(true)
	}
	db, err := badger.Open(opt)
	if err != nil {
		return nil, WrapError(err, StorageDisabled, "can't open badger database at %q", args.Dir)
	}
	return &Badger{db: db}, nil
}

// Set stores value under key.
func (b *Badger) Set(key Key, value string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), []byte(value))
	})
	if err == nil {
		return nil
	}
	// Badger reports capacity explicitly, so no empty-store heuristic is needed.
	if errors.Is(err, badger.ErrTxnTooBig) {
		return WrapError(err, QuotaExceeded, "badger rejected write of key %s", key)
	}
	return WrapError(err, StorageDisabled, "badger write of key %s failed", key)
}

// Get returns the stored string for key. Stored bytes that are not valid
// UTF-8 violate the string invariant and return InvalidValue.
func (b *Badger) Get(key Key) (string, bool, error) {
	var raw []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		// Copy out: item values are undefined once the transaction ends.
		raw, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if !utf8.Valid(raw) {
		return "", true, NewError(InvalidValue, "value for key %s is not a string", key)
	}
	return string(raw), true, nil
}

// Remove deletes the key-value pair for the given key.
func (b *Badger) Remove(key Key) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

// Count returns the number of stored entries.
func (b *Badger) Count() (int, error) {
	count := 0
	err := b.db.View(func(txn *badger.Txn) error {
		opt := badger.DefaultIteratorOptions
		opt.PrefetchValues = false
		it := txn.NewIterator(opt)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

// Iterate walks keys in badger's sorted key order, or their values.
func (b *Badger) Iterate(keysOnly bool, fn func(item string) bool) error {
	return b.db.View(func(txn *badger.Txn) error {
		opt := badger.DefaultIteratorOptions
		opt.PrefetchValues = !keysOnly
		it := txn.NewIterator(opt)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			if keysOnly {
				if !fn(string(item.Key())) {
					return nil
				}
				continue
			}
			raw, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if !utf8.Valid(raw) {
				return NewError(InvalidValue, "value for key %s is not a string", string(item.Key()))
			}
			if !fn(string(raw)) {
				return nil
			}
		}
		return nil
	})
}

// Clear removes all entries.
func (b *Badger) Clear() error {
	return b.db.DropAll()
}

// Close releases the database handle. Badger is the one substrate that
// demands explicit teardown.
func (b *Badger) Close() error {
	return b.db.Close()
}
