package presenter

import (
	"context"
	"sync"

	"mlvisuals/internal/model"
	"mlvisuals/internal/scheduler"
	"mlvisuals/internal/storage"
)

// CurveStore saves the learning curve after every forwarded step so a
// cancelled sweep leaves its partial curve behind.
type CurveStore struct {
	mu    sync.Mutex
	store storage.Store
	curve model.LearningCurve
}

func NewCurveStore(store storage.Store, curve model.LearningCurve) *CurveStore {
	curve.VersionedRecord = storage.CurrentVersion()
	return &CurveStore{store: store, curve: curve}
}

func (p *CurveStore) PresentStep(ctx context.Context, point model.CurvePoint) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.curve.Points = append(p.curve.Points, point)
	return p.store.SaveLearningCurve(ctx, p.curve)
}

func (p *CurveStore) PresentGeometry(context.Context, model.Geometry) error {
	return nil
}

// Finish records the final state. It uses its own context so a cancelled
// batch is still saved.
func (p *CurveStore) Finish(ctx context.Context, result scheduler.BatchResult) (model.LearningCurve, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.curve.Points = append([]model.CurvePoint(nil), result.Points...)
	p.curve.Skipped = append([]int(nil), result.Skipped...)
	p.curve.Complete = result.Complete
	return p.curve, p.store.SaveLearningCurve(ctx, p.curve)
}

// BatchStore collects fixed-batch geometry. Contours are counted, not kept.
type BatchStore struct {
	mu    sync.Mutex
	store storage.Store
	batch model.BoundaryBatch
}

func NewBatchStore(store storage.Store, batch model.BoundaryBatch) *BatchStore {
	batch.VersionedRecord = storage.CurrentVersion()
	return &BatchStore{store: store, batch: batch}
}

func (p *BatchStore) PresentStep(context.Context, model.CurvePoint) error {
	return nil
}

func (p *BatchStore) PresentGeometry(ctx context.Context, g model.Geometry) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case g.Kind == model.GeometrySegment && g.Reference:
		seg := *g.Segment
		p.batch.Reference = &seg
	case g.Kind == model.GeometrySegment:
		p.batch.Segments = append(p.batch.Segments, *g.Segment)
	case g.Kind == model.GeometryContour && !g.Reference:
		p.batch.Contours++
	default:
		return nil
	}
	return p.store.SaveBoundaryBatch(ctx, p.batch)
}

func (p *BatchStore) Finish(ctx context.Context, result scheduler.FixedResult) (model.BoundaryBatch, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.batch.Segments = append([]model.Segment(nil), result.Segments...)
	p.batch.Contours = result.Contours
	p.batch.Degenerate = result.Degenerate
	p.batch.Failed = result.Failed
	p.batch.Complete = result.Complete
	return p.batch, p.store.SaveBoundaryBatch(ctx, p.batch)
}

// Fanout forwards to each presenter in order and stops at the first error.
type Fanout []scheduler.Presenter

func (f Fanout) PresentStep(ctx context.Context, point model.CurvePoint) error {
	for _, p := range f {
		if err := p.PresentStep(ctx, point); err != nil {
			return err
		}
	}
	return nil
}

func (f Fanout) PresentGeometry(ctx context.Context, g model.Geometry) error {
	for _, p := range f {
		if err := p.PresentGeometry(ctx, g); err != nil {
			return err
		}
	}
	return nil
}

// Discard accepts everything.
type Discard struct{}

func (Discard) PresentStep(context.Context, model.CurvePoint) error   { return nil }
func (Discard) PresentGeometry(context.Context, model.Geometry) error { return nil }
