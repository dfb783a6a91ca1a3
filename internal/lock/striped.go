// Package lock provides keyed mutual exclusion for service-level
// read-modify-write sequences.
package lock

import (
	"hash/fnv"
	"sync"
)

// DefaultStripes is the stripe count used when NewStriped gets n <= 0.
const DefaultStripes = 64

// Striped is a fixed set of mutexes addressed by the FNV-1a hash of a key.
//
// Two different keys may share a stripe; that only costs throughput. A key
// always maps to the same stripe, so callers holding Lock(k) exclude every
// other caller of Lock(k).
type Striped struct {
	stripes []sync.Mutex
}

// NewStriped returns a Striped with n mutexes.
func NewStriped(n int) *Striped {
	if n <= 0 {
		n = DefaultStripes
	}
	return &Striped{stripes: make([]sync.Mutex, n)}
}

// Lock acquires the stripe for key and returns its unlock function.
//
//	unlock := s.Lock(email)
//	defer unlock()
func (s *Striped) Lock(key string) (unlock func()) {
	m := &s.stripes[s.index(key)]
	m.Lock()
	return m.Unlock
}

func (s *Striped) index(key string) int {
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(s.stripes)))
}
