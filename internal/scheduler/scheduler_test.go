package scheduler

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mlvisuals/internal/classifier"
	"mlvisuals/internal/classifier/classifiertest"
	"mlvisuals/internal/model"
)

var defaultTarget = model.HypothesisLine{Slope: -1, Intercept: 0.25}

type recordingPresenter struct {
	mu        sync.Mutex
	steps     []model.CurvePoint
	geoms     []model.Geometry
	stopAfter int
	onStep    func(model.CurvePoint)
}

func (p *recordingPresenter) PresentStep(_ context.Context, point model.CurvePoint) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.steps = append(p.steps, point)
	if p.onStep != nil {
		p.onStep(point)
	}
	if p.stopAfter > 0 && len(p.steps) >= p.stopAfter {
		return errors.New("viewer closed")
	}
	return nil
}

func (p *recordingPresenter) PresentGeometry(_ context.Context, g model.Geometry) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.geoms = append(p.geoms, g)
	if p.stopAfter > 0 && len(p.geoms) >= p.stopAfter {
		return errors.New("viewer closed")
	}
	return nil
}

func newTestScheduler(t *testing.T, m classifier.Model) *Scheduler {
	t.Helper()
	return New(m, startLoop(t, 0))
}

func assertReleasedLast(t *testing.T, rec *classifiertest.Recorder) {
	t.Helper()
	calls := rec.Calls()
	require.NotEmpty(t, calls)
	assert.Equal(t, 1, rec.Count("create"))
	assert.Equal(t, 1, rec.Count("release"))
	assert.Equal(t, "release", calls[len(calls)-1].Op)
	assert.Empty(t, rec.CallsAfterRelease())
}

func TestSweepProducesOrderedSteps(t *testing.T) {
	rec := classifiertest.New()
	s := newTestScheduler(t, rec)
	p := &recordingPresenter{}

	result, err := s.Sweep(context.Background(), SweepConfig{
		ID: "lc-test", From: 10, To: 100, Step: 10, Runs: 1,
		Target: defaultTarget, Kind: model.FeatureLinear, Seed: 1,
	}, p)
	require.NoError(t, err)
	assert.True(t, result.Complete)
	require.Len(t, result.Points, 10)
	for i, point := range result.Points {
		assert.Equal(t, 10*(i+1), point.Param)
		assert.Equal(t, 1, point.Runs)
		assert.Equal(t, 0.0, point.Std, "one run has no spread")
		assert.True(t, point.Mean >= 0 && point.Mean <= 1)
	}
	assert.Equal(t, result.Points, p.steps)
	assert.Equal(t, 10, rec.Count("train"))
	assert.Equal(t, 10, rec.Count("predict"))
	assertReleasedLast(t, rec)
}

func TestSweepAggregatesRuns(t *testing.T) {
	rec := classifiertest.New()
	s := newTestScheduler(t, rec)

	result, err := s.Sweep(context.Background(), SweepConfig{
		From: 50, To: 60, Step: 10, Runs: 30,
		Target: defaultTarget, Kind: model.FeatureLinear, Seed: 3,
	}, &recordingPresenter{})
	require.NoError(t, err)
	require.Len(t, result.Points, 2)
	for _, point := range result.Points {
		assert.Equal(t, 30, point.Runs)
		assert.Greater(t, point.Std, 0.0)
		assert.Less(t, point.Mean, 0.3)
	}
}

func TestSweepStopsWhenPresenterFails(t *testing.T) {
	rec := classifiertest.New()
	s := newTestScheduler(t, rec)
	p := &recordingPresenter{stopAfter: 3}

	result, err := s.Sweep(context.Background(), SweepConfig{
		From: 10, To: 1000, Step: 10, Runs: 2,
		Target: defaultTarget, Kind: model.FeatureLinear, Seed: 1,
	}, p)
	assert.True(t, errors.Is(err, ErrCancelled))
	assert.False(t, result.Complete)
	assert.Len(t, result.Points, 3)
	assert.Len(t, p.steps, 3)
	assert.Equal(t, 6, rec.Count("train"))
	assertReleasedLast(t, rec)
}

func TestSweepStopsOnContextCancel(t *testing.T) {
	rec := classifiertest.New()
	s := newTestScheduler(t, rec)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p := &recordingPresenter{onStep: func(point model.CurvePoint) {
		if point.Param == 20 {
			cancel()
		}
	}}

	result, err := s.Sweep(ctx, SweepConfig{
		From: 10, To: 1000, Step: 10, Runs: 1,
		Target: defaultTarget, Kind: model.FeatureLinear, Seed: 1,
	}, p)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, result.Complete)
	assert.Len(t, result.Points, 2)
	assertReleasedLast(t, rec)
}

func TestSweepExcludesFailedTrials(t *testing.T) {
	rec := classifiertest.New()
	var calls int
	rec.TrainErr = func(sample model.Sample) error {
		calls++
		if sample.Len() == 20 || calls%2 == 0 {
			return classifier.ErrTrainingError
		}
		return nil
	}
	s := newTestScheduler(t, rec)
	p := &recordingPresenter{}

	result, err := s.Sweep(context.Background(), SweepConfig{
		From: 10, To: 30, Step: 10, Runs: 4,
		Target: defaultTarget, Kind: model.FeatureLinear, Seed: 1,
	}, p)
	require.NoError(t, err)
	assert.Equal(t, []int{20}, result.Skipped)
	require.Len(t, result.Points, 2)
	assert.Equal(t, 10, result.Points[0].Param)
	assert.Equal(t, 30, result.Points[1].Param)
	for _, point := range result.Points {
		assert.Equal(t, 2, point.Runs)
		assert.Equal(t, 2, point.Failed)
	}
	assert.Len(t, p.steps, 2, "a skipped step is never presented")
	assertReleasedLast(t, rec)
}

func TestSweepAbortsWhenModelCannotBeCreated(t *testing.T) {
	rec := classifiertest.New()
	rec.CreateErr = errors.New("no memory")
	s := newTestScheduler(t, rec)
	p := &recordingPresenter{}

	result, err := s.Sweep(context.Background(), SweepConfig{
		From: 10, To: 100, Step: 10, Runs: 1,
		Target: defaultTarget, Kind: model.FeatureLinear,
	}, p)
	assert.True(t, errors.Is(err, classifier.ErrResourceExhausted))
	assert.Empty(t, result.Points)
	assert.Empty(t, p.steps)
	assert.Equal(t, 0, rec.Count("release"))
	assert.Equal(t, 0, rec.Count("train"))
}

func TestSweepRejectsInvalidParameters(t *testing.T) {
	rec := classifiertest.New()
	s := newTestScheduler(t, rec)

	cases := []SweepConfig{
		{From: 100, To: 10, Step: 10, Runs: 1, Target: defaultTarget, Kind: model.FeatureLinear},
		{From: 10, To: 100, Step: 0, Runs: 1, Target: defaultTarget, Kind: model.FeatureLinear},
		{From: 10, To: 100, Step: 10, Runs: 0, Target: defaultTarget, Kind: model.FeatureLinear},
		{From: 10, To: 100000, Step: 10, Runs: 1, Target: defaultTarget, Kind: model.FeatureLinear},
		{From: 10, To: 100, Step: 10, Runs: 1, Target: defaultTarget},
		{From: 10, To: 100, Step: 10, Runs: 1, Kind: model.FeatureLinear},
	}
	for _, cfg := range cases {
		_, err := s.Sweep(context.Background(), cfg, &recordingPresenter{})
		assert.True(t, errors.Is(err, model.ErrInvalidParameter), "config %+v", cfg)
	}
	assert.Empty(t, rec.Calls(), "nothing is scheduled for an invalid batch")
}

func TestFixedBoundaryForwardsEachTrial(t *testing.T) {
	rec := classifiertest.New()
	s := newTestScheduler(t, rec)
	p := &recordingPresenter{}

	result, err := s.Fixed(context.Background(), FixedConfig{
		N: 100, Runs: 5, Mode: FixedBoundary, Kind: model.FeatureLinear,
		Target: defaultTarget, Seed: 2,
	}, p)
	require.NoError(t, err)
	assert.True(t, result.Complete)
	assert.Len(t, result.Segments, 5)
	require.Len(t, p.geoms, 6)

	ref := p.geoms[0]
	assert.True(t, ref.Reference)
	require.NotNil(t, ref.Segment)
	assert.Equal(t, defaultTarget.Segment(-2, 2), *ref.Segment)
	for i, g := range p.geoms[1:] {
		assert.Equal(t, model.GeometrySegment, g.Kind)
		assert.Equal(t, i, g.Trial)
	}
	assert.Equal(t, 0, rec.Count("predict"))
	assert.Equal(t, 5, rec.Count("weights"))
	assertReleasedLast(t, rec)
}

func TestFixedShowsSamplePoints(t *testing.T) {
	rec := classifiertest.New()
	s := newTestScheduler(t, rec)
	p := &recordingPresenter{}

	_, err := s.Fixed(context.Background(), FixedConfig{
		N: 10, Runs: 2, Mode: FixedBoundary, Kind: model.FeatureLinear,
		Target: defaultTarget, Seed: 2, ShowSample: true,
	}, p)
	require.NoError(t, err)
	points := 0
	for _, g := range p.geoms {
		if g.Kind == model.GeometryPoint {
			points++
			assert.Equal(t, defaultTarget.Label(g.Point.Point), g.Point.Label)
		}
	}
	assert.Equal(t, 20, points)
	assert.Len(t, p.geoms, 1+2*11)
}

// flatModel always fits w = [0, 1, 0].
type flatModel struct {
	buf []byte
}

func newFlatModel() *flatModel {
	buf := make([]byte, 32)
	for i, w := range []float64{0, 1, 0} {
		binary.LittleEndian.PutUint64(buf[8+8*i:], math.Float64bits(w))
	}
	return &flatModel{buf: buf}
}

func (m *flatModel) Create() (classifier.Instance, error)                     { return 1, nil }
func (m *flatModel) Release(classifier.Instance) error                        { return nil }
func (m *flatModel) SetFeatures(classifier.Instance, model.FeatureKind) error { return nil }
func (m *flatModel) Train(classifier.Instance, model.Sample) error            { return nil }
func (m *flatModel) Predict(classifier.Instance, []model.Point) (classifier.Region, error) {
	return classifier.Region{}, classifier.ErrNotTrained
}
func (m *flatModel) Evaluate(classifier.Instance, []model.Point) (classifier.Region, error) {
	return classifier.Region{}, classifier.ErrNotTrained
}
func (m *flatModel) Weights(classifier.Instance) (classifier.Region, error) {
	return classifier.Region{Ptr: 8, Len: 3}, nil
}
func (m *flatModel) Buffer() []byte { return m.buf }

func TestFixedSkipsDegenerateBoundaries(t *testing.T) {
	rec := &classifiertest.Recorder{Inner: newFlatModel()}
	s := newTestScheduler(t, rec)
	p := &recordingPresenter{}

	result, err := s.Fixed(context.Background(), FixedConfig{
		N: 20, Runs: 3, Mode: FixedBoundary, Kind: model.FeatureLinear,
		Target: defaultTarget, Seed: 1,
	}, p)
	require.NoError(t, err)
	assert.True(t, result.Complete)
	assert.Equal(t, 3, result.Degenerate)
	assert.Empty(t, result.Segments)
	require.Len(t, p.geoms, 1, "only the reference line is drawn")
	assertReleasedLast(t, rec)
}

func TestFixedContourQuadratic(t *testing.T) {
	rec := classifiertest.New()
	s := newTestScheduler(t, rec)
	p := &recordingPresenter{}

	target := model.QuadraticTarget{Weights: [6]float64{-0.05, 0.02, -0.01, 0.03, 0.1, 0.08}}
	result, err := s.Fixed(context.Background(), FixedConfig{
		N: 200, Runs: 2, Mode: FixedContour, Kind: model.FeatureQuadratic,
		Target: target, Seed: 5,
	}, p)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Contours)
	require.Len(t, p.geoms, 3)
	assert.True(t, p.geoms[0].Reference)
	for _, g := range p.geoms {
		require.NotNil(t, g.Contour)
		assert.Len(t, g.Contour.Values, 961)
	}
	assert.Equal(t, 1, rec.Count("set_features"))
	assertReleasedLast(t, rec)
}

func TestFixedBoundaryRejectsQuadraticFeatures(t *testing.T) {
	rec := classifiertest.New()
	s := newTestScheduler(t, rec)

	_, err := s.Fixed(context.Background(), FixedConfig{
		N: 20, Runs: 3, Mode: FixedBoundary, Kind: model.FeatureQuadratic, Target: defaultTarget,
	}, &recordingPresenter{})
	assert.True(t, errors.Is(err, model.ErrInvalidParameter))
	assert.Empty(t, rec.Calls())
}

func TestFixedStopsWhenPresenterFails(t *testing.T) {
	rec := classifiertest.New()
	s := newTestScheduler(t, rec)
	p := &recordingPresenter{stopAfter: 3}

	result, err := s.Fixed(context.Background(), FixedConfig{
		N: 50, Runs: 10, Mode: FixedBoundary, Kind: model.FeatureLinear, Target: defaultTarget, Seed: 4,
	}, p)
	assert.True(t, errors.Is(err, ErrCancelled))
	assert.False(t, result.Complete)
	assert.Equal(t, 2, rec.Count("train"))
	assertReleasedLast(t, rec)
}

func TestSweepWithCancelledContextNeverStarts(t *testing.T) {
	rec := classifiertest.New()
	s := newTestScheduler(t, rec)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result, err := s.Sweep(ctx, SweepConfig{
		From: 10, To: 30, Step: 10, Runs: 2,
		Target: defaultTarget, Kind: model.FeatureLinear, Seed: 1,
	}, &recordingPresenter{})
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, result.Started)
	assert.Empty(t, rec.Calls())

	result, err = s.Sweep(context.Background(), SweepConfig{
		From: 10, To: 10, Step: 1, Runs: 1,
		Target: defaultTarget, Kind: model.FeatureLinear, Seed: 1,
	}, &recordingPresenter{})
	require.NoError(t, err)
	assert.True(t, result.Started)
}

func TestFixedWithCancelledContextNeverStarts(t *testing.T) {
	rec := classifiertest.New()
	s := newTestScheduler(t, rec)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result, err := s.Fixed(ctx, FixedConfig{
		N: 20, Runs: 2, Mode: FixedBoundary, Kind: model.FeatureLinear, Target: defaultTarget, Seed: 1,
	}, &recordingPresenter{})
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, result.Started)
	assert.Empty(t, rec.Calls())
}

func TestZeroSeedIsReproducible(t *testing.T) {
	run := func() []model.Segment {
		s := newTestScheduler(t, classifiertest.New())
		result, err := s.Fixed(context.Background(), FixedConfig{
			N: 20, Runs: 3, Mode: FixedBoundary, Kind: model.FeatureLinear, Target: defaultTarget, Seed: 0,
		}, &recordingPresenter{})
		require.NoError(t, err)
		return result.Segments
	}
	first := run()
	require.NotEmpty(t, first)
	assert.Equal(t, first, run())
}
