package record

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps records in a mutex-guarded map, for development and
// tests. The store owns its copies; callers never share memory with it.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*ActivationRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*ActivationRecord)}
}

func (s *MemoryStore) Get(_ context.Context, deviceID string) (*ActivationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[deviceID]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(rec), nil
}

func (s *MemoryStore) Create(_ context.Context, rec *ActivationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[rec.DeviceID]; exists {
		return ErrAlreadyExists
	}

	cp := clone(rec)
	now := time.Now()
	cp.CreatedAt = now
	cp.UpdatedAt = now
	s.records[rec.DeviceID] = cp

	rec.CreatedAt = cp.CreatedAt
	rec.UpdatedAt = cp.UpdatedAt
	return nil
}

func (s *MemoryStore) Update(_ context.Context, rec *ActivationRecord, expectedSeq int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.records[rec.DeviceID]
	if !ok {
		return ErrNotFound
	}
	if existing.SequenceNumber != expectedSeq {
		return ErrSequenceConflict
	}

	cp := clone(rec)
	cp.CreatedAt = existing.CreatedAt
	cp.UpdatedAt = time.Now()
	s.records[rec.DeviceID] = cp

	rec.UpdatedAt = cp.UpdatedAt
	return nil
}

func clone(rec *ActivationRecord) *ActivationRecord {
	cp := *rec
	if rec.Location != nil {
		loc := *rec.Location
		cp.Location = &loc
	}
	if rec.LastAttemptAt != nil {
		ts := *rec.LastAttemptAt
		cp.LastAttemptAt = &ts
	}
	return &cp
}
