package mech

import (
	"fmt"

	"github.com/rs/zerolog"
)

// Backend names accepted by Config.
const (
	BackendMemory = "memory"
	BackendBadger = "badger"
	BackendRedis  = "redis"
	BackendS3     = "s3"
)

// Config selects and configures a storage backend. An empty Backend means
// "probe everything configured, in order": badger, then redis, then s3,
// with memory as the fallback of last resort.
type Config struct {
	Backend string       `yaml:"backend"`
	Memory  MemoryConfig `yaml:"memory"`
	Badger  BadgerConfig `yaml:"badger"`
	Redis   RedisConfig  `yaml:"redis"`
	S3      S3Config     `yaml:"s3"`
}

// MemoryConfig contains settings for the in-process backend.
type MemoryConfig struct {
	Quota int `yaml:"quota"`
}

// BadgerConfig contains settings for the embedded Badger backend.
type BadgerConfig struct {
	Dir string `yaml:"dir"`
}

// RedisConfig contains settings for the redis backend.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	DB        int    `yaml:"db"`
	Namespace string `yaml:"namespace"`
}

// S3Config contains settings for the S3 backend.
type S3Config struct {
	Bucket    string `yaml:"bucket"`
	Namespace string `yaml:"namespace"`
}

// Validate rejects unknown backend names and explicit backends missing their
// required settings.
func (c Config) Validate() error {
	switch c.Backend {
	case "", BackendMemory:
	case BackendBadger:
		if c.Badger.Dir == "" {
			return fmt.Errorf("badger backend requires a dir")
		}
	case BackendRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis backend requires an addr")
		}
	case BackendS3:
		if c.S3.Bucket == "" {
			return fmt.Errorf("s3 backend requires a bucket")
		}
	default:
		return fmt.Errorf("unknown backend: %s", c.Backend)
	}
	return nil
}

// Candidates expands the config into an ordered probe list. An explicit
// Backend yields exactly one candidate; otherwise every backend with enough
// configuration to try is listed, memory last.
func (c Config) Candidates() []Candidate {
	if c.Backend != "" {
		return []Candidate{c.candidate(c.Backend)}
	}
	var cands []Candidate
	if c.Badger.Dir != "" {
		cands = append(cands, c.candidate(BackendBadger))
	}
	if c.Redis.Addr != "" {
		cands = append(cands, c.candidate(BackendRedis))
	}
	if c.S3.Bucket != "" {
		cands = append(cands, c.candidate(BackendS3))
	}
	return append(cands, c.candidate(BackendMemory))
}

// candidate builds the lazy opener for a single named backend.
func (c Config) candidate(name string) Candidate {
	switch name {
	case BackendBadger:
		return Candidate{Name: name, Open: func() (IterableMechanism, error) {
			return NewBadger(BadgerArgs{Dir: c.Badger.Dir})
		}}
	case BackendRedis:
		return Candidate{Name: name, Open: func() (IterableMechanism, error) {
			return NewRedis(RedisArgs{Addr: c.Redis.Addr, DB: c.Redis.DB, Namespace: c.Redis.Namespace}), nil
		}}
	case BackendS3:
		return Candidate{Name: name, Open: func() (IterableMechanism, error) {
			return NewS3(S3Args{Bucket: c.S3.Bucket, Namespace: c.S3.Namespace})
		}}
	default:
		return Candidate{Name: BackendMemory, Open: func() (IterableMechanism, error) {
			return NewMemory(MemoryArgs{Quota: c.Memory.Quota}), nil
		}}
	}
}

// Open validates the config and selects the first available backend it
// describes.
func Open(cfg Config, logger zerolog.Logger) (IterableMechanism, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return Select(logger, cfg.Candidates()...)
}
