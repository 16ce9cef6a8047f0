// Package scheduler drives batches of trials through the cooperative Loop.
// One batch owns one resource.Handle from start to finish; every Model call is
// made from inside a Loop task and each task is one sweep step or one fixed
// trial.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"mlvisuals/internal/classifier"
	"mlvisuals/internal/model"
	"mlvisuals/internal/resource"
)

// ErrCancelled reports that a presenter stopped the batch.
var ErrCancelled = errors.New("batch cancelled")

// Presenter receives finished numbers only. A non-nil error stops the batch.
type Presenter interface {
	PresentStep(ctx context.Context, point model.CurvePoint) error
	PresentGeometry(ctx context.Context, g model.Geometry) error
}

// Bounds limits the sample sizes and run counts a batch may request.
type Bounds struct {
	MinN    int
	MaxN    int
	MinRuns int
	MaxRuns int
}

func DefaultBounds() Bounds {
	return Bounds{MinN: 1, MaxN: 10000, MinRuns: 1, MaxRuns: 10000}
}

type Scheduler struct {
	model  classifier.Model
	loop   *Loop
	bounds Bounds
	logger *slog.Logger
}

type Option func(*Scheduler)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithBounds(b Bounds) Option {
	return func(s *Scheduler) {
		s.bounds = b
	}
}

func New(m classifier.Model, loop *Loop, opts ...Option) *Scheduler {
	s := &Scheduler{
		model:  m,
		loop:   loop,
		bounds: DefaultBounds(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Scheduler) checkN(name string, n int) error {
	if n < s.bounds.MinN || n > s.bounds.MaxN {
		return fmt.Errorf("%w: %s=%d outside [%d,%d]", model.ErrInvalidParameter, name, n, s.bounds.MinN, s.bounds.MaxN)
	}
	return nil
}

func (s *Scheduler) checkRuns(runs int) error {
	if runs < s.bounds.MinRuns || runs > s.bounds.MaxRuns {
		return fmt.Errorf("%w: runs=%d outside [%d,%d]", model.ErrInvalidParameter, runs, s.bounds.MinRuns, s.bounds.MaxRuns)
	}
	return nil
}

// acquire creates the batch's handle on the loop and selects its features.
func (s *Scheduler) acquire(ctx context.Context, kind model.FeatureKind) (*resource.Handle, error) {
	var (
		h      *resource.Handle
		runErr error
	)
	err := s.loop.Do(ctx, func() {
		h, runErr = resource.Acquire(s.model)
		if runErr != nil || kind == model.FeatureLinear {
			return
		}
		if runErr = h.SetFeatures(kind); runErr != nil {
			if relErr := h.Release(); relErr != nil {
				s.logger.Warn("release after failed setup", "handle_id", h.ID(), "error", relErr)
			}
			h = nil
		}
	})
	if err != nil {
		// The task never ran, so nothing was created.
		return nil, err
	}
	if runErr != nil {
		return nil, runErr
	}
	activeHandles.Inc()
	return h, nil
}

// release runs as the last task of the batch. If the loop has already stopped
// no task can be in flight, so the handle is released directly.
func (s *Scheduler) release(h *resource.Handle) {
	var relErr error
	err := s.loop.Do(context.Background(), func() { relErr = h.Release() })
	if errors.Is(err, ErrLoopClosed) {
		<-s.loop.Done()
		relErr = h.Release()
	}
	activeHandles.Dec()
	if relErr != nil {
		s.logger.Warn("release handle", "handle_id", h.ID(), "error", relErr)
		return
	}
	s.logger.Debug("released handle", "handle_id", h.ID())
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

func spanAttrs(id string, kind model.FeatureKind, runs int) trace.SpanStartOption {
	return trace.WithAttributes(
		attribute.String("batch.id", id),
		attribute.String("batch.feature", kind.String()),
		attribute.Int("batch.runs", runs),
	)
}
