package storage

import (
	"context"

	"mlvisuals/internal/model"
)

// Store persists finished and in-progress batch results.
type Store interface {
	Init(ctx context.Context) error
	SaveLearningCurve(ctx context.Context, curve model.LearningCurve) error
	GetLearningCurve(ctx context.Context, id string) (model.LearningCurve, bool, error)
	SaveBoundaryBatch(ctx context.Context, batch model.BoundaryBatch) error
	GetBoundaryBatch(ctx context.Context, id string) (model.BoundaryBatch, bool, error)
	ListRuns(ctx context.Context) ([]model.RunRecord, error)
}
