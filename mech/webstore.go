package mech

import "unicode/utf8"

// sentinelKey is a throwaway key used only to probe write availability.
const sentinelKey = "__kvmech_probe__"

// Host is a host-provided key-value storage API addressed both by key and by
// position, in the manner of web storage: a flat list of entries that can be
// walked by index. Implementations decide key ordering; it must only be
// stable while the contents do not change.
type Host interface {
	// Len returns the number of stored entries.
	Len() int
	// Key returns the key at position i, or false when i is past the end.
	Key(i int) (Key, bool)
	// GetItem returns the raw value for a key and whether the key exists.
	GetItem(key Key) (value []byte, found bool, err error)
	// SetItem stores a raw value under a key. The host rejects writes it
	// cannot honor with an error.
	SetItem(key Key, value []byte) error
	// RemoveItem deletes a key. Absent keys are ignored.
	RemoveItem(key Key)
	// Clear removes all entries.
	Clear()
}

// WebStore adapts a Host to the IterableMechanism contract. It owns no state
// beyond the host handle: every operation is a direct, synchronous call into
// the host API.
type WebStore struct {
	host Host
}

// NewWebStore wraps a host in a WebStore mechanism.
func NewWebStore(host Host) *WebStore {
	return &WebStore{host: host}
}

// Available probes the host by writing and removing a sentinel key. Any write
// failure means unavailable; this covers hosts that always reject writes.
func (w *WebStore) Available() bool {
	if w.host == nil {
		return false
	}
	if err := w.host.SetItem(sentinelKey, []byte("1")); err != nil {
		return false
	}
	w.host.RemoveItem(sentinelKey)
	return true
}

// Set stores value under key. A rejected write on an empty host means the
// host never accepts writes, so it maps to StorageDisabled; on a non-empty
// host the write failed for room, so it maps to QuotaExceeded.
func (w *WebStore) Set(key Key, value string) error {
	err := w.host.SetItem(key, []byte(value))
	if err == nil {
		return nil
	}
	if w.host.Len() == 0 {
		return WrapError(err, StorageDisabled, "empty storage rejected write of key %s", key)
	}
	return WrapError(err, QuotaExceeded, "storage rejected write of key %s", key)
}

// Get returns the stored string for key. A stored value that is not valid
// UTF-8 violates the string invariant and returns InvalidValue.
func (w *WebStore) Get(key Key) (string, bool, error) {
	raw, found, err := w.host.GetItem(key)
	if err != nil {
		return "", false, err
	}
	if !found {
		return "", false, nil
	}
	if !utf8.Valid(raw) {
		return "", true, NewError(InvalidValue, "value for key %s is not a string", key)
	}
	return string(raw), true, nil
}

// Remove deletes the key-value pair for the given key.
func (w *WebStore) Remove(key Key) error {
	w.host.RemoveItem(key)
	return nil
}

// Count returns the number of stored entries.
func (w *WebStore) Count() (int, error) {
	return w.host.Len(), nil
}

// Iterate walks the host by positional index. Keys that vanish mid-walk are
// skipped. A value failing the string invariant aborts the walk with
// InvalidValue.
func (w *WebStore) Iterate(keysOnly bool, fn func(item string) bool) error {
	for i := 0; ; i++ {
		key, ok := w.host.Key(i)
		if !ok {
			return nil
		}
		if keysOnly {
			if !fn(key) {
				return nil
			}
			continue
		}
		raw, found, err := w.host.GetItem(key)
		if err != nil {
			return err
		}
		if !found {
			continue
		}
		if !utf8.Valid(raw) {
			return NewError(InvalidValue, "value for key %s is not a string", key)
		}
		if !fn(string(raw)) {
			return nil
		}
	}
}

// Clear removes all entries.
func (w *WebStore) Clear() error {
	w.host.Clear()
	return nil
}
