package tasks

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store. It backs deployments without a
// configured database and the test suite. List and Get hand out copies,
// so readers never observe a half-applied mutation.
type MemoryStore struct {
	mu     sync.RWMutex
	byID   map[int]Task
	nextID int
	now    func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:   make(map[int]Task),
		nextID: 1,
		now:    time.Now,
	}
}

// SetClock overrides the time source. Test hook.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *MemoryStore) Create(_ context.Context, t Task) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t.ID = s.nextID
	s.nextID++

	ts := s.now().UTC()
	t.CreatedAt = ts
	t.UpdatedAt = ts
	if t.Priority == 0 {
		t.Priority = DefaultPriority
	}
	if t.Category == "" {
		t.Category = DefaultCategory
	}

	s.byID[t.ID] = t
	return t, nil
}

func (s *MemoryStore) Get(_ context.Context, id int) (Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.byID[id]
	if !ok {
		return Task{}, ErrNotFound
	}
	return t, nil
}

func (s *MemoryStore) List(_ context.Context, includeCompleted bool) ([]Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Task, 0, len(s.byID))
	for _, t := range s.byID {
		if !includeCompleted && t.Completed {
			continue
		}
		out = append(out, t)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) Update(_ context.Context, id int, upd Update) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.byID[id]
	if !ok {
		return Task{}, ErrNotFound
	}

	if upd.Description != nil {
		t.Description = *upd.Description
	}
	if upd.Completed != nil {
		t.Completed = *upd.Completed
	}
	if upd.Priority != nil {
		t.Priority = ClampPriority(*upd.Priority)
	}
	if upd.Category != nil {
		t.Category = *upd.Category
	}
	if upd.ClearRemindAt {
		t.RemindAt = nil
	} else if upd.RemindAt != nil {
		at := *upd.RemindAt
		t.RemindAt = &at
	}
	if upd.Recurring != nil {
		t.Recurring = *upd.Recurring
	}
	t.UpdatedAt = s.now().UTC()

	s.byID[id] = t
	return t, nil
}

func (s *MemoryStore) Delete(_ context.Context, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[id]; !ok {
		return ErrNotFound
	}
	delete(s.byID, id)
	return nil
}

func (s *MemoryStore) DeleteCompleted(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for id, t := range s.byID {
		if t.Completed {
			delete(s.byID, id)
			count++
		}
	}
	return count, nil
}
