package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/John-Robertt/wallpipe/internal/domain"
)

type MemoryQuotaStore struct {
	mu sync.RWMutex
	m  map[string]domain.QuotaState
}

func NewMemoryQuotaStore() *MemoryQuotaStore {
	return &MemoryQuotaStore{m: make(map[string]domain.QuotaState)}
}

func (s *MemoryQuotaStore) Get(ctx context.Context, consumerID string) (domain.QuotaState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.m[consumerID]
	if !ok {
		return domain.QuotaState{}, ErrNotFound
	}
	return cloneQuota(st), nil
}

func (s *MemoryQuotaStore) Put(ctx context.Context, st domain.QuotaState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[st.ConsumerID] = cloneQuota(st)
	return nil
}

type MemoryScheduleStore struct {
	mu sync.RWMutex
	m  map[string]domain.ScheduleEntry
}

func NewMemoryScheduleStore() *MemoryScheduleStore {
	return &MemoryScheduleStore{m: make(map[string]domain.ScheduleEntry)}
}

func (s *MemoryScheduleStore) List(ctx context.Context) ([]domain.ScheduleEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.ScheduleEntry, 0, len(s.m))
	for _, e := range s.m {
		if e.Active {
			out = append(out, cloneEntry(e))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryScheduleStore) Get(ctx context.Context, id string) (domain.ScheduleEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.m[id]
	if !ok {
		return domain.ScheduleEntry{}, ErrNotFound
	}
	return cloneEntry(e), nil
}

func (s *MemoryScheduleStore) GetActiveByKey(ctx context.Context, destinationID string, interval domain.Interval) (domain.ScheduleEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	dest := strings.TrimSpace(destinationID)
	for _, e := range s.m {
		if e.Active && e.DestinationID == dest && e.Interval == interval {
			return cloneEntry(e), nil
		}
	}
	return domain.ScheduleEntry{}, ErrNotFound
}

func (s *MemoryScheduleStore) Put(ctx context.Context, e domain.ScheduleEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[e.ID] = cloneEntry(e)
	return nil
}

func (s *MemoryScheduleStore) Deactivate(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.m[id]
	if !ok {
		return ErrNotFound
	}
	e.Active = false
	s.m[id] = e
	return nil
}

func cloneQuota(st domain.QuotaState) domain.QuotaState {
	st.UnlimitedUntil = cloneTime(st.UnlimitedUntil)
	return st
}

func cloneEntry(e domain.ScheduleEntry) domain.ScheduleEntry {
	e.LastRunAt = cloneTime(e.LastRunAt)
	return e
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
