// Package kvmech implements a key-value store over pluggable storage
// mechanisms.
//
// Example usage:
//
//		// Pick the best available backend for this environment
//		m, err := mech.Open(mech.Config{
//			Badger: mech.BadgerConfig{Dir: "/var/lib/myapp"},
//			Redis:  mech.RedisConfig{Addr: "localhost:6379"},
//		}, zerolog.Nop())
//		if err != nil {
//			return err
//		}
//
//		// Wrap it in a store for session-locked writes
//		store, err := kvmech.New(kvmech.Args{Mechanism: m, Namespace: "myapp"})
//		if err != nil {
//			return err
//		}
//
//		// Lock keys so you can exclusively write their data
//		sid, err := store.Lock("key_one", "key_two")
//		if err != nil {
//			return err
//		}
//		// Don't forget to release the session eventually!
//		defer store.Unlock(sid)
//
//		// Get a value
//		data, found, err := store.Get("key_one")
//		if err != nil {
//			return err
//		}
//		if !found {
//			return errors.New("couldn't read data from key_one")
//		}
//		fmt.Println(data)
//
//		// Set a value under the session
//		err = store.Set(sid, "key_one", "your data goes here")
//		if err != nil {
//			return err
//		}
//
//		// Delete a value under the session
//		return store.Del(sid, "key_one")
package kvmech

import (
	"github.com/mplewis/kvmech/sesslock"
)

// defaultSessionArgs is the configuration used for the session lock table if
// none is specified in New().
var defaultSessionArgs = sesslock.Args{
	RetryInterval:  sesslock.DEFAULT_RETRY_INTERVAL,
	AcquireTimeout: sesslock.DEFAULT_ACQUIRE_TIMEOUT,
	TTL:            sesslock.DEFAULT_TTL,
}

// Key is the key for a key-value pair in the store.
type Key = string

// SessionID is the ID for an open session. Use this to write under the
// session's keys and to close the session.
type SessionID string
