// Package mech defines the storage mechanism contract and its adapters.
//
// A Mechanism is the smallest useful key-value capability: set, get, remove.
// An IterableMechanism adds counting, enumeration and wholesale clearing.
// The concrete adapters in this package map that contract onto different
// substrates: process memory, a web-storage style host API, Badger, Redis
// and S3. Pick one explicitly, or describe candidates in a Config and let
// Select probe them in order, keeping the first substrate that works.
package mech

// Key is the key for a key-value pair in a mechanism. Keys are opaque;
// a mechanism never interprets them.
type Key = string

// Mechanism is the minimal contract for a single key-value storage backend.
// A mechanism owns exactly one underlying storage handle and holds no state
// beyond it: no caching, no buffering.
type Mechanism interface {
	// Set stores value under key. It may fail with a QuotaExceeded or
	// StorageDisabled error.
	Set(key Key, value string) error
	// Get returns the value for the given key, whether the key exists, and any
	// error that occurred. An absent key is not an error.
	Get(key Key) (value string, found bool, err error)
	// Remove deletes the key-value pair for the given key. Removing an absent
	// key succeeds silently.
	Remove(key Key) error
}

// IterableMechanism is a Mechanism that can also enumerate and clear its
// contents.
type IterableMechanism interface {
	Mechanism
	// Count returns the number of stored entries.
	Count() (int, error)
	// Iterate lazily walks the mechanism's keys (keysOnly) or values, calling
	// fn for each item until fn returns false or the backend is exhausted.
	// The walk snapshots nothing: it reflects live backend state, so mutating
	// the mechanism mid-walk yields unspecified (but memory-safe) results.
	// A stored value that is not valid UTF-8 aborts the walk immediately with
	// an InvalidValue error.
	Iterate(keysOnly bool, fn func(item string) bool) error
	// Clear removes all entries.
	Clear() error
}

// Prober is implemented by mechanisms that can cheaply check whether their
// substrate is usable before any data rides on it.
type Prober interface {
	// Available reports whether the mechanism's substrate accepts operations.
	Available() bool
}
