package rostercache

import (
	"context"
	"sync"
)

// ContextStore remembers the current course per owner. Entries never expire;
// they change when a call names a course and go away when cleared.
type ContextStore interface {
	SetCourseContext(ctx context.Context, ownerID string, courseID int64) error
	// GetCourseContext reports ok=false when no course is set.
	GetCourseContext(ctx context.Context, ownerID string) (courseID int64, ok bool, err error)
	ClearCourseContext(ctx context.Context, ownerID string) error
}

// MemoryContextStore is a process-local ContextStore.
type MemoryContextStore struct {
	mu      sync.RWMutex
	courses map[string]int64
}

func NewMemoryContextStore() *MemoryContextStore {
	return &MemoryContextStore{courses: make(map[string]int64)}
}

func (s *MemoryContextStore) SetCourseContext(_ context.Context, ownerID string, courseID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.courses[ownerID] = courseID
	return nil
}

func (s *MemoryContextStore) GetCourseContext(_ context.Context, ownerID string) (int64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.courses[ownerID]
	return id, ok, nil
}

func (s *MemoryContextStore) ClearCourseContext(_ context.Context, ownerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.courses, ownerID)
	return nil
}
