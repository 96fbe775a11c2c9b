// Package sesslock groups keys into auto-expiring exclusive sessions: a
// caller locks a set of keys in one shot, works on them under a session ID,
// and the table forcibly releases the session if the caller never does.
package sesslock

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
)

// jitterFrac is the percentage of jitter added to each retry delay so
// contending lockers don't retry in lockstep.
const jitterFrac = 0.1 // 10%

// Default values for Args fields, if unset.
const (
	DEFAULT_RETRY_INTERVAL  = 100 * time.Millisecond
	DEFAULT_ACQUIRE_TIMEOUT = 5 * time.Second
	DEFAULT_TTL             = 15 * time.Second
)

// Args is the set of arguments for creating a new Table. All are optional.
type Args struct {
	RetryInterval  time.Duration // Minimum wait between lock attempts (jitter is added automatically).
	AcquireTimeout time.Duration // How long to keep retrying a contended key set before giving up.
	TTL            time.Duration // How long a session may exist before its keys are force-released.
}

// Table tracks which keys are held and by which session.
type Table struct {
	retry     time.Duration
	acquireTO time.Duration
	ttl       time.Duration
	mu        sync.Mutex
	held      map[string]bool
	sessions  map[string][]string
}

// New creates a Table from the given configuration.
func New(args Args) *Table {
	if args.RetryInterval == 0 {
		args.RetryInterval = DEFAULT_RETRY_INTERVAL
	}
	if args.AcquireTimeout == 0 {
		args.AcquireTimeout = DEFAULT_ACQUIRE_TIMEOUT
	}
	if args.TTL == 0 {
		args.TTL = DEFAULT_TTL
	}
	return &Table{
		retry:     args.RetryInterval,
		acquireTO: args.AcquireTimeout,
		ttl:       args.TTL,
		held:      map[string]bool{},
		sessions:  map[string][]string{},
	}
}

// Lock opens a session holding every given key, retrying with jitter until
// the whole set is free or the acquire timeout passes. Locking is
// all-or-nothing: on timeout no key stays held.
func (t *Table) Lock(keys ...string) (string, error) {
	start := time.Now()
	for {
		id, blocked := t.tryLock(keys...)
		if blocked == "" {
			return id, nil
		}
		if time.Since(start) > t.acquireTO {
			return "", fmt.Errorf("timed out locking key: %s", blocked)
		}
		jitter := time.Duration(float64(t.retry) * rand.Float64() * jitterFrac)
		time.Sleep(t.retry + jitter)
	}
}

// tryLock takes all keys at once, or reports the first key that blocked it.
func (t *Table) tryLock(keys ...string) (id, blocked string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, key := range keys {
		if t.held[key] {
			return "", key
		}
	}

	id = uuid.New().String()
	t.sessions[id] = keys
	for _, key := range keys {
		t.held[key] = true
	}
	time.AfterFunc(t.ttl, func() { t.Release(id) })
	return id, ""
}

// Release frees the session's keys and closes it. Releasing a session that
// already expired is a no-op.
func (t *Table) Release(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	keys, ok := t.sessions[id]
	if !ok {
		return
	}
	for _, key := range keys {
		delete(t.held, key)
	}
	delete(t.sessions, id)
}

// Keys returns the keys held by a session and whether the session is open.
func (t *Table) Keys(id string) ([]string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	keys, ok := t.sessions[id]
	if !ok {
		return nil, false
	}
	out := make([]string, len(keys))
	copy(out, keys)
	return out, true
}
