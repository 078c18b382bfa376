package store

import (
	"context"
	"sync"

	"github.com/coordcore/core/internal/task"
)

// MemoryStore is an in-memory Store backed by a map and RWMutex, grounded
// on the teacher's repository/memory.go map-plus-RWMutex pattern.
type MemoryStore struct {
	mu    sync.RWMutex
	tasks map[string]*task.Task
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tasks: make(map[string]*task.Task)}
}

func (s *MemoryStore) Save(ctx context.Context, t *task.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *t
	cp.History = append([]task.HistoryEntry(nil), t.History...)
	cp.Artifacts = append([]task.Artifact(nil), t.Artifacts...)
	cp.Dependencies = append([]string(nil), t.Dependencies...)
	s.tasks[t.TaskID] = &cp
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, taskID string) (*task.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[taskID]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (s *MemoryStore) List(ctx context.Context, filter task.Filter) ([]*task.Task, error) {
	all, _ := s.All(ctx)
	out := make([]*task.Task, 0, len(all))
	for _, t := range all {
		if filter.Matches(t) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *MemoryStore) All(ctx context.Context) ([]*task.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*task.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		cp := *t
		out = append(out, &cp)
	}
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }
