package ratelimit

import (
	"context"
	"sync"
	"time"
)

const defaultSweepInterval = time.Minute

type memoryWindow struct {
	hits   []time.Time
	window time.Duration
}

// MemoryStore keeps hit timestamps in process memory. Used for tests and
// single-instance deployments without Redis. Keys whose hits have all left
// their window are swept lazily, at most once per sweep interval.
type MemoryStore struct {
	mu            sync.Mutex
	windows       map[string]*memoryWindow
	sweepInterval time.Duration
	lastSweep     time.Time
}

type MemoryStoreOption func(*MemoryStore)

func WithSweepInterval(interval time.Duration) MemoryStoreOption {
	return func(s *MemoryStore) {
		if interval > 0 {
			s.sweepInterval = interval
		}
	}
}

func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	s := &MemoryStore{
		windows:       make(map[string]*memoryWindow),
		sweepInterval: defaultSweepInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) Hit(_ context.Context, key string, now time.Time, window time.Duration, limit int) (WindowState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if now.Sub(s.lastSweep) >= s.sweepInterval {
		s.sweep(now)
		s.lastSweep = now
	}

	w, ok := s.windows[key]
	if !ok {
		w = &memoryWindow{}
		s.windows[key] = w
	}
	w.window = window

	cutoff := now.Add(-window)
	kept := w.hits[:0]
	for _, ts := range w.hits {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	allowed := len(kept) < limit
	if allowed {
		kept = append(kept, now)
	}
	w.hits = kept

	return WindowState{Allowed: allowed, Count: len(kept), Oldest: kept[0]}, nil
}

// Len returns the number of tracked keys.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows)
}

func (s *MemoryStore) sweep(now time.Time) {
	for key, w := range s.windows {
		if len(w.hits) == 0 || !w.hits[len(w.hits)-1].After(now.Add(-w.window)) {
			delete(s.windows, key)
		}
	}
}
