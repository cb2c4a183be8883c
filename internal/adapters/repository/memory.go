package repository

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/okian/rankready/internal/domain/model"
)

// MemoryStore keeps everything in process memory.
type MemoryStore struct {
	mu          sync.RWMutex
	records     map[string]model.IndicatorRecord
	submissions map[string]model.Submission
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:     make(map[string]model.IndicatorRecord),
		submissions: make(map[string]model.Submission),
	}
}

func (s *MemoryStore) SaveIndicators(_ context.Context, rec model.IndicatorRecord) error {
	if err := validateRecord(rec); err != nil {
		return err
	}
	rec.Values = maps.Clone(rec.Values)
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.Key()] = rec
	return nil
}

func (s *MemoryStore) LoadIndicators(_ context.Context, institutionID string, year int) (model.IndicatorRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[model.RecordKey(institutionID, year)]
	if !ok || len(rec.Values) == 0 {
		return model.IndicatorRecord{}, ErrNotFound
	}
	rec.Values = maps.Clone(rec.Values)
	return rec, nil
}

func (s *MemoryStore) ListInstitutions(_ context.Context, year int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make(map[string]struct{})
	for _, rec := range s.records {
		if rec.Year == year && len(rec.Values) > 0 {
			ids[rec.InstitutionID] = struct{}{}
		}
	}
	return sortedKeys(ids), nil
}

func (s *MemoryStore) IndicatorAverages(_ context.Context, year int) (map[string]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	avg := newAverager()
	for _, rec := range s.records {
		if rec.Year != year {
			continue
		}
		for code, raw := range rec.Values {
			avg.add(code, raw)
		}
	}
	return avg.result(), nil
}

func (s *MemoryStore) PutSubmission(_ context.Context, sub model.Submission) error {
	if err := validateSubmission(sub); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submissions[sub.ID] = sub
	return nil
}

func (s *MemoryStore) GetSubmission(_ context.Context, id string) (model.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.submissions[id]
	if !ok {
		return model.Submission{}, ErrNotFound
	}
	return sub, nil
}

func (s *MemoryStore) Close() error { return nil }
