package kvmech

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	goredislib "github.com/go-redis/redis/v8"
	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v8"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
	"github.com/thoas/go-funk"

	"github.com/mplewis/kvmech/mech"
	"github.com/mplewis/kvmech/sesslock"
)

// GLOBAL_NAMESPACE prefixes every key this library writes into a shared
// substrate.
const GLOBAL_NAMESPACE = "kvmech"

// Store wraps a storage mechanism with session-locked writes: readers go
// straight through, but writers must first lock the keys they intend to
// touch. With a redis client configured, sessions also take distributed
// locks so stores in other processes honor them.
type Store struct {
	namespace string
	mechanism mech.Mechanism
	sessions  *sesslock.Table
	logger    zerolog.Logger
	locks     *redsync.Redsync
	context   context.Context
	ttl       time.Duration

	mu   sync.Mutex
	dist map[SessionID][]*redsync.Mutex
}

// Args are the arguments for a new store.
type Args struct {
	Mechanism      mech.Mechanism     // Required. The backend for this store, where the data lives and is accessed.
	Namespace      string             // Optional. Separates this store's keys from other stores sharing the mechanism.
	LockTimeout    time.Duration      // Optional. The timeout for acquisition of all locks.
	SessionTimeout time.Duration      // Optional. The timeout for a session if it is not closed by a client.
	Redis          *goredislib.Client // Optional. Coordinates sessions across processes with distributed locks.
	Logger         *zerolog.Logger    // Optional. The logger for session diagnostics. Defaults to no logging.
	Context        context.Context    // Optional. The context for distributed lock operations. Defaults to context.Background().
}

// New builds a new Store.
func New(args Args) (*Store, error) {
	if args.Mechanism == nil {
		return nil, fmt.Errorf("a store requires a mechanism")
	}
	slArgs := defaultSessionArgs
	if args.LockTimeout != 0 {
		slArgs.AcquireTimeout = args.LockTimeout
	}
	if args.SessionTimeout != 0 {
		slArgs.TTL = args.SessionTimeout
	}
	if args.Context == nil {
		args.Context = context.Background()
	}
	logger := zerolog.Nop()
	if args.Logger != nil {
		logger = *args.Logger
	}

	store := &Store{
		namespace: args.Namespace,
		mechanism: args.Mechanism,
		sessions:  sesslock.New(slArgs),
		logger:    logger,
		context:   args.Context,
		ttl:       slArgs.TTL,
		dist:      map[SessionID][]*redsync.Mutex{},
	}
	if args.Redis != nil {
		store.locks = redsync.New(goredis.NewPool(args.Redis))
	}
	return store, nil
}

// Lock acquires the given keys for exclusive writing and returns a new
// session ID, or an error if the keys could not be locked. Sessions expire
// on their own if never unlocked.
func (s *Store) Lock(keys ...Key) (SessionID, error) {
	id, err := s.sessions.Lock(keys...)
	if err != nil {
		return "", err
	}
	sid := SessionID(id)

	if s.locks != nil {
		taken := []*redsync.Mutex{}
		for _, key := range keys {
			m := s.locks.NewMutex(s.nsKey("lock_"+key), redsync.WithExpiry(s.ttl))
			if err := m.LockContext(s.context); err != nil {
				for _, t := range taken {
					if _, uerr := t.UnlockContext(s.context); uerr != nil {
						s.logger.Warn().Str("mutex", t.Name()).Err(uerr).Msg("failed to roll back distributed lock")
					}
				}
				s.sessions.Release(id)
				return "", fmt.Errorf("failed to take distributed lock for key %s: %w", key, err)
			}
			taken = append(taken, m)
		}
		s.mu.Lock()
		s.dist[sid] = taken
		s.mu.Unlock()
	}
	return sid, nil
}

// Unlock releases the exclusive write locks on the keys in the session.
func (s *Store) Unlock(sid SessionID) error {
	var errs *multierror.Error

	s.mu.Lock()
	taken := s.dist[sid]
	delete(s.dist, sid)
	s.mu.Unlock()
	for _, m := range taken {
		if _, err := m.UnlockContext(s.context); err != nil {
			errs = multierror.Append(errs, err)
		}
	}

	s.sessions.Release(string(sid))
	return errs.ErrorOrNil()
}

// Get returns the value for the given key, whether it exists, and any error
// that occurred. Reads require no session.
func (s *Store) Get(key Key) (string, bool, error) {
	return s.mechanism.Get(s.nsKey(key))
}

// Set sets the value for the given key. You must have an open session for
// the key.
func (s *Store) Set(sid SessionID, key Key, value string) error {
	if !s.sessionHas(sid, key) {
		return fmt.Errorf("session %s does not include key %s", sid, key)
	}
	return s.mechanism.Set(s.nsKey(key), value)
}

// Del deletes the key-value pair for the given key. You must have an open
// session for the key.
func (s *Store) Del(sid SessionID, key Key) error {
	if !s.sessionHas(sid, key) {
		return fmt.Errorf("session %s does not include key %s", sid, key)
	}
	return s.mechanism.Remove(s.nsKey(key))
}

// Keys lists all keys in the store with the given prefix. The mechanism must
// be iterable. This is likely a very slow operation, so use with caution.
func (s *Store) Keys(prefix string) ([]Key, error) {
	im, ok := s.mechanism.(mech.IterableMechanism)
	if !ok {
		return nil, fmt.Errorf("mechanism %T does not support iteration", s.mechanism)
	}
	mine := s.nsKey("")
	var keys []Key
	err := im.Iterate(true, func(raw string) bool {
		if !strings.HasPrefix(raw, mine) {
			return true
		}
		key := strings.TrimPrefix(raw, mine)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// nsKey prepends the global and store namespaces to the given key.
func (s *Store) nsKey(key Key) string {
	return fmt.Sprintf("%s:%s:%s", GLOBAL_NAMESPACE, s.namespace, key)
}

// sessionHas reports whether the session is open and holds the key.
func (s *Store) sessionHas(sid SessionID, key Key) bool {
	keys, ok := s.sessions.Keys(string(sid))
	if !ok {
		s.logger.Warn().Str("session", string(sid)).Msg("session is closed or expired")
		return false
	}
	return funk.ContainsString(keys, key)
}
