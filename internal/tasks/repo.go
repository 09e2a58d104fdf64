package tasks

import (
	"context"
	"sync"
)

// Store is an append-only, position-addressed task ledger.
// Complete on an index past the end is a no-op and returns nil.
type Store interface {
	Create(ctx context.Context, description string) error
	Complete(ctx context.Context, index uint16) error
	List(ctx context.Context) ([]Task, error)
}

// Completer is implemented by stores that can tell, in the same atomic step,
// whether a complete touched a task. It never changes Complete's contract.
type Completer interface {
	MarkComplete(ctx context.Context, index uint16) (bool, error)
}

var (
	_ Store = (*InMemoryStore)(nil)
	_ Store = (*SQLStore)(nil)
	_ Store = (*InstrumentedStore)(nil)

	_ Completer = (*InMemoryStore)(nil)
	_ Completer = (*SQLStore)(nil)
)

type InMemoryStore struct {
	mu    sync.Mutex
	tasks []Task
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		tasks: make([]Task, 0, 16),
	}
}

func (s *InMemoryStore) Create(_ context.Context, description string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tasks = append(s.tasks, Task{Description: description})
	return nil
}

func (s *InMemoryStore) Complete(ctx context.Context, index uint16) error {
	_, err := s.MarkComplete(ctx, index)
	return err
}

// MarkComplete reports whether index named an existing task.
func (s *InMemoryStore) MarkComplete(_ context.Context, index uint16) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if int(index) >= len(s.tasks) {
		return false, nil
	}
	s.tasks[index].Completed = true
	return true, nil
}

func (s *InMemoryStore) List(_ context.Context) ([]Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Task, len(s.tasks))
	copy(out, s.tasks)
	return out, nil
}

