package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"mlvisuals/internal/classifier"
	"mlvisuals/internal/model"
	"mlvisuals/internal/resource"
	"mlvisuals/internal/trial"
)

type FixedMode int

const (
	// FixedBoundary draws each trial's fitted line. Linear features only.
	FixedBoundary FixedMode = iota + 1
	// FixedContour draws each trial's decision function on the contour grid.
	FixedContour
)

func (m FixedMode) String() string {
	switch m {
	case FixedBoundary:
		return "boundary"
	case FixedContour:
		return "contour"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

type FixedConfig struct {
	ID         string
	N          int
	Runs       int
	Mode       FixedMode
	Kind       model.FeatureKind
	Target     model.Target
	Seed       int64
	ShowSample bool
}

type FixedResult struct {
	ID         string
	Segments   []model.Segment
	Contours   int
	Degenerate int
	Failed     int
	Started    bool
	Complete   bool
}

type segmenter interface {
	Segment(x0, x1 float64) model.Segment
}

func (s *Scheduler) validateFixed(cfg FixedConfig) error {
	if err := s.checkN("n", cfg.N); err != nil {
		return err
	}
	if err := s.checkRuns(cfg.Runs); err != nil {
		return err
	}
	if !cfg.Kind.Valid() {
		return fmt.Errorf("%w: feature kind %d", model.ErrInvalidParameter, int(cfg.Kind))
	}
	if cfg.Target == nil {
		return fmt.Errorf("%w: target is required", model.ErrInvalidParameter)
	}
	switch cfg.Mode {
	case FixedBoundary:
		if cfg.Kind != model.FeatureLinear {
			return fmt.Errorf("%w: boundary mode needs linear features, got %s", model.ErrInvalidParameter, cfg.Kind)
		}
	case FixedContour:
	default:
		return fmt.Errorf("%w: unknown fixed mode %d", model.ErrInvalidParameter, int(cfg.Mode))
	}
	return nil
}

// Fixed runs Runs independent trials at one configuration and forwards each
// trial's geometry as soon as it is available, after the reference geometry
// of the target.
func (s *Scheduler) Fixed(ctx context.Context, cfg FixedConfig, p Presenter) (FixedResult, error) {
	result := FixedResult{ID: cfg.ID}
	if err := s.validateFixed(cfg); err != nil {
		return result, err
	}

	ctx, span := tracer.Start(ctx, "scheduler.fixed", spanAttrs(cfg.ID, cfg.Kind, cfg.Runs),
		trace.WithAttributes(
			attribute.String("fixed.mode", cfg.Mode.String()),
			attribute.Int("fixed.n", cfg.N),
		))
	var err error
	defer func() { endSpan(span, err) }()

	h, err := s.acquire(ctx, cfg.Kind)
	if err != nil {
		return result, err
	}
	defer s.release(h)
	result.Started = true

	logger := s.logger.With("batch_id", cfg.ID, "handle_id", h.ID())
	logger.Info("fixed batch started", "mode", cfg.Mode.String(), "n", cfg.N, "runs", cfg.Runs)

	present := func(g model.Geometry) error {
		geometriesTotal.WithLabelValues(string(g.Kind)).Inc()
		if perr := p.PresentGeometry(ctx, g); perr != nil {
			logger.Info("fixed batch stopped by presenter", "trial", g.Trial, "error", perr)
			return fmt.Errorf("%w: presenter: %v", ErrCancelled, perr)
		}
		return nil
	}

	if err = present(referenceGeometry(cfg)); err != nil {
		return result, err
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	for i := 0; i < cfg.Runs; i++ {
		var (
			geoms    []model.Geometry
			trialErr error
		)
		if err = s.loop.Do(ctx, func() {
			sample := trial.RandomSample(rng, cfg.N, cfg.Target)
			if cfg.ShowSample {
				geoms = sampleGeometry(i, sample)
			}
			var g model.Geometry
			g, trialErr = s.fixedTrial(h, cfg, i, sample)
			if trialErr == nil {
				geoms = append(geoms, g)
			}
		}); err != nil {
			logger.Info("fixed batch stopped", "trial", i, "error", err)
			return result, err
		}

		switch {
		case errors.Is(trialErr, trial.ErrDegenerateBoundary):
			trialsTotal.WithLabelValues("fixed", "degenerate").Inc()
			result.Degenerate++
			logger.Warn("degenerate boundary skipped", "trial", i)
			geoms = nil
		case errors.Is(trialErr, classifier.ErrTrainingError):
			trialsTotal.WithLabelValues("fixed", "failed").Inc()
			result.Failed++
			geoms = nil
		case trialErr != nil:
			err = trialErr
			logger.Error("fixed batch aborted", "trial", i, "error", err)
			return result, err
		default:
			trialsTotal.WithLabelValues("fixed", "ok").Inc()
		}

		for _, g := range geoms {
			if err = present(g); err != nil {
				return result, err
			}
			switch g.Kind {
			case model.GeometrySegment:
				result.Segments = append(result.Segments, *g.Segment)
			case model.GeometryContour:
				result.Contours++
			}
		}
	}

	result.Complete = true
	logger.Info("fixed batch finished", "segments", len(result.Segments), "contours", result.Contours,
		"degenerate", result.Degenerate, "failed", result.Failed)
	return result, nil
}

func (s *Scheduler) fixedTrial(h *resource.Handle, cfg FixedConfig, i int, sample model.Sample) (model.Geometry, error) {
	switch cfg.Mode {
	case FixedBoundary:
		seg, err := trial.BoundaryTrial{N: cfg.N, Target: cfg.Target}.Fit(h, sample)
		if err != nil {
			return model.Geometry{}, err
		}
		return model.Geometry{Kind: model.GeometrySegment, Trial: i, Segment: &seg}, nil
	default:
		contour, err := trial.ContourTrial{N: cfg.N, Target: cfg.Target}.Fit(h, sample)
		if err != nil {
			return model.Geometry{}, err
		}
		return model.Geometry{Kind: model.GeometryContour, Trial: i, Contour: &contour}, nil
	}
}

func referenceGeometry(cfg FixedConfig) model.Geometry {
	if line, ok := cfg.Target.(segmenter); ok && cfg.Mode == FixedBoundary {
		seg := line.Segment(trial.BoundaryX0, trial.BoundaryX1)
		return model.Geometry{Kind: model.GeometrySegment, Trial: -1, Reference: true, Segment: &seg}
	}
	contour := trial.TargetContour(cfg.Target)
	return model.Geometry{Kind: model.GeometryContour, Trial: -1, Reference: true, Contour: &contour}
}

func sampleGeometry(i int, sample model.Sample) []model.Geometry {
	out := make([]model.Geometry, 0, sample.Len()+1)
	for j, p := range sample.Points {
		lp := model.LabeledPoint{Point: p, Label: sample.Labels[j]}
		out = append(out, model.Geometry{Kind: model.GeometryPoint, Trial: i, Point: &lp})
	}
	return out
}
