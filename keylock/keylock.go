// Package keylock hands out one try-lock per string key, so callers can
// serialize work on individual keyed resources without a global mutex.
package keylock

import (
	"time"

	golock "github.com/viney-shih/go-lock"
)

// KeyLock is a set of independently lockable string keys. The zero value is
// not usable; call New.
type KeyLock struct {
	box   *golock.CASMutex
	locks map[string]*golock.CASMutex
}

// New instantiates an empty KeyLock.
func New() *KeyLock {
	return &KeyLock{box: golock.NewCASMutex(), locks: map[string]*golock.CASMutex{}}
}

// Acquire locks the given key, returning true on success and false on timeout.
func (k *KeyLock) Acquire(timeout time.Duration, key string) bool {
	lock, ok := k.forKey(timeout, key)
	if !ok {
		return false
	}
	return lock.TryLockWithTimeout(timeout)
}

// Release unlocks the given key, returning true on success and false on
// timeout. Releasing a key that was never acquired, or is not currently
// held, succeeds as a no-op.
func (k *KeyLock) Release(timeout time.Duration, key string) bool {
	if !k.box.TryLockWithTimeout(timeout) {
		return false
	}
	defer k.box.Unlock()

	lock, ok := k.locks[key]
	if !ok {
		return true
	}
	// A lock that can be taken right now is not held; unlocking it would
	// panic, so the release is a no-op.
	if lock.TryLock() {
		lock.Unlock()
		return true
	}
	lock.Unlock()
	return true
}

// forKey fetches or creates the lock for a key under the box lock.
func (k *KeyLock) forKey(timeout time.Duration, key string) (*golock.CASMutex, bool) {
	if !k.box.TryLockWithTimeout(timeout) {
		return nil, false
	}
	defer k.box.Unlock()

	lock, ok := k.locks[key]
	if !ok {
		lock = golock.NewCASMutex()
		k.locks[key] = lock
	}
	return lock, true
}
