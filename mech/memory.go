package mech

import (
	"fmt"
	"sort"
	"time"
	"unicode/utf8"

	golock "github.com/viney-shih/go-lock"

	"github.com/mplewis/kvmech/keylock"
)

// lockWait is how long memory operations wait on contended locks before
// giving up.
const lockWait = 100 * time.Millisecond

// Memory stores data in a synchronized in-process map. It is always
// available, making it the fallback of last resort for Select. An optional
// quota caps the total bytes of stored values so callers can exercise
// QuotaExceeded handling without a constrained substrate.
type Memory struct {
	mu    *golock.CASMutex // guards data and used
	keys  *keylock.KeyLock // serializes read-modify-write per key
	data  map[Key]string
	used  int
	quota int
}

// MemoryArgs are the arguments for creating a new Memory mechanism.
type MemoryArgs struct {
	Quota int // Optional. Maximum total bytes of stored values. Zero means unlimited.
}

// NewMemory creates an empty in-process mechanism.
func NewMemory(args MemoryArgs) *Memory {
	return &Memory{
		mu:    golock.NewCASMutex(),
		keys:  keylock.New(),
		data:  map[Key]string{},
		quota: args.Quota,
	}
}

// Available always reports true: process memory cannot be disabled.
func (m *Memory) Available() bool {
	return true
}

// Set stores value under key, failing with QuotaExceeded if the byte quota
// would be passed.
func (m *Memory) Set(key Key, value string) error {
	if !m.keys.Acquire(lockWait, key) {
		return fmt.Errorf("timed out locking key: %s", key)
	}
	defer m.keys.Release(lockWait, key)

	m.mu.Lock()
	defer m.mu.Unlock()
	next := m.used - len(m.data[key]) + len(value)
	if m.quota > 0 && next > m.quota {
		return NewError(QuotaExceeded, "quota of %d bytes passed writing key %s", m.quota, key)
	}
	m.used = next
	m.data[key] = value
	return nil
}

// Get returns the value for the given key and whether it exists. A stored
// value that is not valid UTF-8 violates the string invariant and returns
// InvalidValue.
func (m *Memory) Get(key Key) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, found := m.data[key]
	if found && !utf8.ValidString(value) {
		return "", true, NewError(InvalidValue, "value for key %s is not a string", key)
	}
	return value, found, nil
}

// Remove deletes the key-value pair for the given key.
func (m *Memory) Remove(key Key) error {
	if !m.keys.Acquire(lockWait, key) {
		return fmt.Errorf("timed out locking key: %s", key)
	}
	defer m.keys.Release(lockWait, key)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.used -= len(m.data[key])
	delete(m.data, key)
	return nil
}

// Count returns the number of stored entries.
func (m *Memory) Count() (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data), nil
}

// Iterate walks keys in sorted order, or their values. Each value is fetched
// live, so entries removed mid-walk are skipped rather than replayed.
func (m *Memory) Iterate(keysOnly bool, fn func(item string) bool) error {
	m.mu.RLock()
	keys := make([]Key, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	m.mu.RUnlock()
	sort.Strings(keys)

	for _, k := range keys {
		if keysOnly {
			if !fn(k) {
				return nil
			}
			continue
		}
		m.mu.RLock()
		v, ok := m.data[k]
		m.mu.RUnlock()
		if !ok {
			continue
		}
		if !utf8.ValidString(v) {
			return NewError(InvalidValue, "value for key %s is not a string", k)
		}
		if !fn(v) {
			return nil
		}
	}
	return nil
}

// Clear removes all entries.
func (m *Memory) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = map[Key]string{}
	m.used = 0
	return nil
}
