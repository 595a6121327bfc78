package history

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mgrande/ladevakt/core/model"
)

// MemoryStore is an in-memory Store.
type MemoryStore struct {
	mu       sync.RWMutex
	snaps    []model.Status
	recs     []model.Recommendation
	failures []ErrorRecord
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (s *MemoryStore) SaveSnapshot(_ context.Context, st model.Status) error {
	s.mu.Lock()
	s.snaps = append(s.snaps, st)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) SaveRecommendation(_ context.Context, rec model.Recommendation) error {
	s.mu.Lock()
	s.recs = append(s.recs, rec)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) SaveError(_ context.Context, source, kind, message string) error {
	s.mu.Lock()
	s.failures = append(s.failures, ErrorRecord{
		Timestamp: time.Now().UTC(),
		Source:    source,
		Kind:      kind,
		Message:   message,
	})
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Query(_ context.Context, q Query) ([]model.Status, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []model.Status
	for _, st := range s.snaps {
		if q.VehicleID != "" && st.VehicleID != q.VehicleID {
			continue
		}
		if !q.Since.IsZero() && st.CapturedAt.Before(q.Since) {
			continue
		}
		res = append(res, st)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CapturedAt.After(res[j].CapturedAt) })
	return res, nil
}

func (s *MemoryStore) Latest(_ context.Context, vehicleID string) (model.Status, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest model.Status
	found := false
	for _, st := range s.snaps {
		if st.VehicleID != vehicleID {
			continue
		}
		if !found || st.CapturedAt.After(latest.CapturedAt) {
			latest = st
			found = true
		}
	}
	return latest, found, nil
}

func (s *MemoryStore) DeleteOlderThan(_ context.Context, cutoff time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snaps := s.snaps[:0]
	for _, st := range s.snaps {
		if !st.CapturedAt.Before(cutoff) {
			snaps = append(snaps, st)
		}
	}
	s.snaps = snaps
	recs := s.recs[:0]
	for _, r := range s.recs {
		if !r.CreatedAt.Before(cutoff) {
			recs = append(recs, r)
		}
	}
	s.recs = recs
	failures := s.failures[:0]
	for _, f := range s.failures {
		if !f.Timestamp.Before(cutoff) {
			failures = append(failures, f)
		}
	}
	s.failures = failures
	return nil
}

func (s *MemoryStore) Close() error { return nil }

// Recommendations returns all stored recommendations, oldest first.
func (s *MemoryStore) Recommendations() []model.Recommendation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Recommendation, len(s.recs))
	copy(out, s.recs)
	return out
}

// Errors returns all stored error records, oldest first.
func (s *MemoryStore) Errors() []ErrorRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ErrorRecord, len(s.failures))
	copy(out, s.failures)
	return out
}
