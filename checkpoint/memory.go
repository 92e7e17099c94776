package checkpoint

import (
	"context"
	"sync"
)

// MemoryStore is an in-process Store for tests and single-node deployments.
type MemoryStore struct {
	maxPerRun   int
	checkpoints map[string]*Checkpoint
	byRun       map[string][]string // checkpoint ids, oldest first
	mu          sync.RWMutex
}

// MemoryStoreOption configures a MemoryStore.
type MemoryStoreOption func(*MemoryStore)

// WithMaxPerRun bounds how many checkpoints are retained per run
// (0 = unlimited).
func WithMaxPerRun(n int) MemoryStoreOption {
	return func(s *MemoryStore) {
		s.maxPerRun = n
	}
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	s := &MemoryStore{
		checkpoints: make(map[string]*Checkpoint),
		byRun:       make(map[string][]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) Save(ctx context.Context, cp *Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *cp
	if _, exists := s.checkpoints[cp.ID]; !exists {
		s.byRun[cp.RunID] = append(s.byRun[cp.RunID], cp.ID)
	}
	s.checkpoints[cp.ID] = &copied

	if s.maxPerRun > 0 {
		ids := s.byRun[cp.RunID]
		for len(ids) > s.maxPerRun {
			evicted := ids[0]
			ids = ids[1:]
			delete(s.checkpoints, evicted)
		}
		s.byRun[cp.RunID] = ids
	}
	return nil
}

func (s *MemoryStore) Load(ctx context.Context, id string) (*Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cp, ok := s.checkpoints[id]
	if !ok {
		return nil, ErrNotFound(id)
	}
	copied := *cp
	return &copied, nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp, ok := s.checkpoints[id]
	if !ok {
		return nil
	}
	delete(s.checkpoints, id)

	ids := s.byRun[cp.RunID]
	for i, cid := range ids {
		if cid == id {
			s.byRun[cp.RunID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	return nil
}

func (s *MemoryStore) ListByRun(ctx context.Context, runID string) ([]*Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byRun[runID]
	out := make([]*Checkpoint, 0, len(ids))
	for _, id := range ids {
		if cp, ok := s.checkpoints[id]; ok {
			copied := *cp
			out = append(out, &copied)
		}
	}
	return out, nil
}
