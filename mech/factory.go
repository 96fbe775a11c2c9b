package mech

import (
	"io"

	"github.com/rs/zerolog"
)

// Candidate names a mechanism that might be usable in this environment. Open
// is called lazily, so describing a candidate costs nothing until Select
// reaches it.
type Candidate struct {
	Name string
	Open func() (IterableMechanism, error)
}

// Select probes candidates in order and returns the first whose substrate
// works, or StorageDisabled when none does. A candidate passes when it opens
// without error, reports itself available, and survives a sentinel
// write-and-remove. Probe outcomes are logged at debug level.
func Select(logger zerolog.Logger, candidates ...Candidate) (IterableMechanism, error) {
	for _, c := range candidates {
		m, err := c.Open()
		if err != nil {
			logger.Debug().Str("mechanism", c.Name).Err(err).Msg("failed to open")
			continue
		}
		if !probe(m) {
			logger.Debug().Str("mechanism", c.Name).Msg("failed availability probe")
			if closer, ok := m.(io.Closer); ok {
				_ = closer.Close()
			}
			continue
		}
		logger.Debug().Str("mechanism", c.Name).Msg("selected")
		return m, nil
	}
	return nil, NewError(StorageDisabled, "no storage mechanism is available")
}

// probe checks that a mechanism accepts writes by setting and removing a
// sentinel key. Mechanisms that know their own availability are asked first,
// so an unreachable server fails fast instead of timing out on a write.
func probe(m IterableMechanism) bool {
	if p, ok := m.(Prober); ok && !p.Available() {
		return false
	}
	if err := m.Set(sentinelKey, ""); err != nil {
		return false
	}
	return m.Remove(sentinelKey) == nil
}
