package mech

import (
	"errors"
	"sync"
)

// MemHost is an in-memory Host with a configurable byte quota and write
// failure injection. It backs WebStore in environments without a native
// host API, and doubles as a stand-in for callers testing failure paths,
// much like pointing an S3 client at a local fake endpoint.
type MemHost struct {
	mu      sync.Mutex
	order   []Key
	values  map[Key][]byte
	quota   int
	refuse  bool
}

// MemHostArgs are the arguments for creating a new MemHost.
type MemHostArgs struct {
	Quota int // Optional. Maximum total bytes of stored values. Zero means unlimited.
}

// NewMemHost creates an empty in-memory host.
func NewMemHost(args MemHostArgs) *MemHost {
	return &MemHost{values: map[Key][]byte{}, quota: args.Quota}
}

// RefuseWrites toggles rejection of all SetItem calls, simulating a host
// whose storage is inaccessible.
func (h *MemHost) RefuseWrites(refuse bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.refuse = refuse
}

// Len returns the number of stored entries.
func (h *MemHost) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.order)
}

// Key returns the key at position i in insertion order.
func (h *MemHost) Key(i int) (Key, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if i < 0 || i >= len(h.order) {
		return "", false
	}
	return h.order[i], true
}

// GetItem returns the raw value for a key and whether the key exists.
func (h *MemHost) GetItem(key Key) ([]byte, bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	value, found := h.values[key]
	return value, found, nil
}

// SetItem stores a raw value under a key, rejecting the write when refusal is
// toggled on or the quota would be passed.
func (h *MemHost) SetItem(key Key, value []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.refuse {
		return errors.New("storage write refused")
	}
	used := 0
	for k, v := range h.values {
		if k != key {
			used += len(v)
		}
	}
	if h.quota > 0 && used+len(value) > h.quota {
		return errors.New("storage quota reached")
	}
	if _, exists := h.values[key]; !exists {
		h.order = append(h.order, key)
	}
	h.values[key] = value
	return nil
}

// RemoveItem deletes a key. Absent keys are ignored.
func (h *MemHost) RemoveItem(key Key) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.values[key]; !exists {
		return
	}
	delete(h.values, key)
	for i, k := range h.order {
		if k == key {
			h.order = append(h.order[:i], h.order[i+1:]...)
			break
		}
	}
}

// Clear removes all entries.
func (h *MemHost) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.order = nil
	h.values = map[Key][]byte{}
}
