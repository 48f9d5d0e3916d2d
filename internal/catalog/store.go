package catalog

import (
	"sync"
	"sync/atomic"
	"time"
)

// Store holds the dataset currently in use. Reads never block; refreshes
// run one at a time through Exclusive.
type Store struct {
	current atomic.Pointer[Dataset]
	version atomic.Uint64
	refresh sync.Mutex
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{}
}

// Get returns the current dataset, or nil before the first Set.
func (s *Store) Get() *Dataset {
	return s.current.Load()
}

// Set installs ds and returns the dataset it replaced.
func (s *Store) Set(ds *Dataset) *Dataset {
	prev := s.current.Swap(ds)
	s.version.Add(1)
	return prev
}

// Version counts the datasets installed so far.
func (s *Store) Version() uint64 {
	return s.version.Load()
}

// Age is the time since the current dataset was loaded. ok is false when
// the store is empty.
func (s *Store) Age() (age time.Duration, ok bool) {
	ds := s.current.Load()
	if ds == nil {
		return 0, false
	}
	return time.Since(ds.LoadedAt), true
}

// Exclusive runs fn with the refresh lock held.
func (s *Store) Exclusive(fn func() error) error {
	s.refresh.Lock()
	defer s.refresh.Unlock()
	return fn()
}
