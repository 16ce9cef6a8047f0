package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"mlvisuals/internal/classifier"
	"mlvisuals/internal/model"
	"mlvisuals/internal/resource"
	"mlvisuals/internal/stats"
	"mlvisuals/internal/trial"
)

// SweepConfig runs Runs error trials at every sample size From, From+Step, ... <= To.
type SweepConfig struct {
	ID     string
	From   int
	To     int
	Step   int
	Runs   int
	Target model.Target
	Kind   model.FeatureKind
	// Seed is used as given, zero included.
	Seed int64
}

// BatchResult holds one entry per plotted step in increasing Param order.
// Skipped lists steps where no trial succeeded. Started is set once the batch
// owns a handle.
type BatchResult struct {
	ID       string
	Points   []model.CurvePoint
	Skipped  []int
	Started  bool
	Complete bool
}

func (s *Scheduler) validateSweep(cfg SweepConfig) error {
	if cfg.Step < 1 {
		return fmt.Errorf("%w: step=%d must be >= 1", model.ErrInvalidParameter, cfg.Step)
	}
	if cfg.From > cfg.To {
		return fmt.Errorf("%w: from=%d greater than to=%d", model.ErrInvalidParameter, cfg.From, cfg.To)
	}
	if err := s.checkN("from", cfg.From); err != nil {
		return err
	}
	if err := s.checkN("to", cfg.To); err != nil {
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
	return nil
}

// Sweep produces a learning curve. Each step is one loop task and reaches the
// presenter before the next step is posted. On cancellation the entries
// already forwarded are returned with Complete=false.
func (s *Scheduler) Sweep(ctx context.Context, cfg SweepConfig, p Presenter) (BatchResult, error) {
	result := BatchResult{ID: cfg.ID}
	if err := s.validateSweep(cfg); err != nil {
		return result, err
	}

	ctx, span := tracer.Start(ctx, "scheduler.sweep", spanAttrs(cfg.ID, cfg.Kind, cfg.Runs),
		trace.WithAttributes(
			attribute.Int("sweep.from", cfg.From),
			attribute.Int("sweep.to", cfg.To),
			attribute.Int("sweep.step", cfg.Step),
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
	logger.Info("sweep started", "from", cfg.From, "to", cfg.To, "step", cfg.Step, "runs", cfg.Runs)

	rng := rand.New(rand.NewSource(cfg.Seed))
	for n := cfg.From; n <= cfg.To; n += cfg.Step {
		var (
			point   model.CurvePoint
			stepErr error
		)
		if err = s.loop.Do(ctx, func() {
			point, stepErr = s.runStep(ctx, h, rng, cfg, n)
		}); err != nil {
			logger.Info("sweep stopped", "param", n, "error", err)
			return result, err
		}

		if errors.Is(stepErr, stats.ErrEmptySample) {
			stepsTotal.WithLabelValues("skipped").Inc()
			result.Skipped = append(result.Skipped, n)
			logger.Warn("step skipped, no trial succeeded", "param", n, "failed", point.Failed)
			continue
		}
		if stepErr != nil {
			err = stepErr
			logger.Error("sweep aborted", "param", n, "error", err)
			return result, err
		}

		stepsTotal.WithLabelValues("plotted").Inc()
		result.Points = append(result.Points, point)
		if perr := p.PresentStep(ctx, point); perr != nil {
			err = fmt.Errorf("%w: presenter: %v", ErrCancelled, perr)
			logger.Info("sweep stopped by presenter", "param", n, "error", perr)
			return result, err
		}
	}

	result.Complete = true
	logger.Info("sweep finished", "steps", len(result.Points), "skipped", len(result.Skipped))
	return result, nil
}

// runStep folds Runs trials at sample size n. Trials failing to train are
// excluded from the statistics; any other error aborts the batch.
func (s *Scheduler) runStep(ctx context.Context, h *resource.Handle, rng *rand.Rand, cfg SweepConfig, n int) (model.CurvePoint, error) {
	_, span := tracer.Start(ctx, "scheduler.step", trace.WithAttributes(attribute.Int("step.param", n)))
	start := time.Now()
	defer func() { stepDuration.Observe(time.Since(start).Seconds()) }()

	point := model.CurvePoint{Param: n}
	var acc stats.Running
	run := trial.ErrorTrial{N: n, Target: cfg.Target}
	for i := 0; i < cfg.Runs; i++ {
		ratio, err := run.Run(h, rng)
		if errors.Is(err, classifier.ErrTrainingError) {
			trialsTotal.WithLabelValues("sweep", "failed").Inc()
			point.Failed++
			continue
		}
		if err != nil {
			endSpan(span, err)
			return point, err
		}
		trialsTotal.WithLabelValues("sweep", "ok").Inc()
		acc.Push(ratio)
	}

	mean, err := acc.Mean()
	if err != nil {
		endSpan(span, err)
		return point, err
	}
	std, err := acc.Std()
	if err != nil {
		endSpan(span, err)
		return point, err
	}
	point.Mean, point.Std, point.Runs = mean, std, acc.Count()
	span.SetAttributes(attribute.Float64("step.mean", mean), attribute.Float64("step.std", std))
	endSpan(span, nil)
	return point, nil
}
