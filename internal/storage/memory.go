package storage

import (
	"context"
	"errors"
	"sync"

	"mlvisuals/internal/model"
)

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	curves      map[string]model.LearningCurve
	batches     map[string]model.BoundaryBatch
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.curves = make(map[string]model.LearningCurve)
	s.batches = make(map[string]model.BoundaryBatch)
	return nil
}

func (s *MemoryStore) SaveLearningCurve(_ context.Context, curve model.LearningCurve) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errors.New("store is not initialized")
	}
	curve.Points = append([]model.CurvePoint(nil), curve.Points...)
	curve.Skipped = append([]int(nil), curve.Skipped...)
	s.curves[curve.ID] = curve
	return nil
}

func (s *MemoryStore) GetLearningCurve(_ context.Context, id string) (model.LearningCurve, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	curve, ok := s.curves[id]
	return curve, ok, nil
}

func (s *MemoryStore) SaveBoundaryBatch(_ context.Context, batch model.BoundaryBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errors.New("store is not initialized")
	}
	batch.Segments = append([]model.Segment(nil), batch.Segments...)
	s.batches[batch.ID] = batch
	return nil
}

func (s *MemoryStore) GetBoundaryBatch(_ context.Context, id string) (model.BoundaryBatch, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	batch, ok := s.batches[id]
	return batch, ok, nil
}

func (s *MemoryStore) ListRuns(_ context.Context) ([]model.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := make([]model.RunRecord, 0, len(s.curves)+len(s.batches))
	for _, curve := range s.curves {
		runs = append(runs, curveRecord(curve))
	}
	for _, batch := range s.batches {
		runs = append(runs, batchRecord(batch))
	}
	sortRuns(runs)
	return runs, nil
}
