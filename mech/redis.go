package mech

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/go-redis/redis/v8"
)

// scanPageSize is the per-SCAN hint for iteration over a redis namespace.
const scanPageSize = 100

// Redis stores data in a redis server, namespacing its keys so multiple
// mechanisms can share one database.
type Redis struct {
	client    *redis.Client
	namespace string
	context   context.Context
}

// RedisArgs are the arguments for creating a new Redis mechanism.
type RedisArgs struct {
	Addr      string          // Required unless Client is given. The host:port of the redis server.
	DB        int             // Optional. The redis logical database to select.
	Namespace string          // Optional. The prefix for all keys. Defaults to "kvmech".
	Client    *redis.Client   // Optional. An existing client to reuse.
	Context   context.Context // Optional. The context for redis operations. Defaults to context.Background().
}

// NewRedis creates a mechanism over a redis connection.
func NewRedis(args RedisArgs) *Redis {
	if args.Context == nil {
		args.Context = context.Background()
	}
	if args.Client == nil {
		args.Client = redis.NewClient(&redis.Options{Addr: args.Addr, DB: args.DB})
	}
	if args.Namespace == "" {
		args.Namespace = "kvmech"
	}
	return &Redis{client: args.Client, namespace: args.Namespace, context: args.Context}
}

// Available reports whether the server answers a ping.
func (r *Redis) Available() bool {
	return r.client.Ping(r.context).Err() == nil
}

// ns prepends the namespace prefix to the given key.
func (r *Redis) ns(key Key) string {
	return fmt.Sprintf("%s:%s", r.namespace, key)
}

// strip removes the namespace prefix from a raw redis key.
func (r *Redis) strip(raw string) Key {
	return strings.TrimPrefix(raw, r.namespace+":")
}

// Set stores value under key. Redis signals exhausted memory with an OOM
// reply; anything else means the server is unusable.
func (r *Redis) Set(key Key, value string) error {
	err := r.client.Set(r.context, r.ns(key), value, 0).Err()
	if err == nil {
		return nil
	}
	if strings.HasPrefix(err.Error(), "OOM") {
		return WrapError(err, QuotaExceeded, "redis rejected write of key %s", key)
	}
	return WrapError(err, StorageDisabled, "redis write of key %s failed", key)
}

// Get returns the stored string for key. Stored bytes that are not valid
// UTF-8 violate the string invariant and return InvalidValue.
func (r *Redis) Get(key Key) (string, bool, error) {
	value, err := r.client.Get(r.context, r.ns(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if !utf8.ValidString(value) {
		return "", true, NewError(InvalidValue, "value for key %s is not a string", key)
	}
	return value, true, nil
}

// Remove deletes the key-value pair for the given key.
func (r *Redis) Remove(key Key) error {
	return r.client.Del(r.context, r.ns(key)).Err()
}

// Count returns the number of entries in this mechanism's namespace. SCAN
// may deliver a key more than once, so hits are deduplicated to keep the
// count in step with what iteration reports.
func (r *Redis) Count() (int, error) {
	seen := map[string]bool{}
	iter := r.client.Scan(r.context, 0, r.ns("*"), scanPageSize).Iterator()
	for iter.Next(r.context) {
		seen[iter.Val()] = true
	}
	return len(seen), iter.Err()
}

// Iterate walks the namespace with SCAN. SCAN guarantees each key present
// for the whole walk is seen at least once, not exactly once; duplicates are
// filtered so the sequence stays finite and sensible.
func (r *Redis) Iterate(keysOnly bool, fn func(item string) bool) error {
	seen := map[string]bool{}
	iter := r.client.Scan(r.context, 0, r.ns("*"), scanPageSize).Iterator()
	for iter.Next(r.context) {
		key := r.strip(iter.Val())
		if seen[key] {
			continue
		}
		seen[key] = true
		if keysOnly {
			if !fn(key) {
				return nil
			}
			continue
		}
		value, found, err := r.Get(key)
		if err != nil {
			return err
		}
		if !found {
			continue
		}
		if !fn(value) {
			return nil
		}
	}
	return iter.Err()
}

// Clear removes every entry in this mechanism's namespace.
func (r *Redis) Clear() error {
	iter := r.client.Scan(r.context, 0, r.ns("*"), scanPageSize).Iterator()
	for iter.Next(r.context) {
		if err := r.client.Del(r.context, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}
