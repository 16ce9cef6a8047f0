package mlvisuals

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"mlvisuals/internal/classifier"
	"mlvisuals/internal/model"
	"mlvisuals/internal/presenter"
	"mlvisuals/internal/scheduler"
	"mlvisuals/internal/stats"
	"mlvisuals/internal/storage"
	"mlvisuals/internal/trial"
)

const (
	defaultArtifactsDir = "mlvisuals_runs"
	defaultExportsDir   = "exports"
	defaultDBPath       = "mlvisuals.db"
)

// DefaultCurveTarget is the line used by learning curves when none is given.
var DefaultCurveTarget = model.HypothesisLine{Slope: -1, Intercept: 0.25}

// Presenter receives every finished step or geometry of a batch.
type Presenter = scheduler.Presenter

type Options struct {
	StoreKind    string
	DBPath       string
	ArtifactsDir string
	ExportsDir   string
	// TickRate caps loop tasks per second. 0 disables pacing.
	TickRate float64
	Memory   classifier.Options
	Bounds   scheduler.Bounds
	Logger   *slog.Logger
	// Model overrides the least-squares model; tests use it to inject faults.
	Model classifier.Model
}

type Client struct {
	store     storage.Store
	model     classifier.Model
	loop      *scheduler.Loop
	scheduler *scheduler.Scheduler
	logger    *slog.Logger
	stopLoop  context.CancelFunc

	initMu      sync.Mutex
	initialized bool

	tickRate     float64
	artifactsDir string
	exportsDir   string
}

type LearningCurveRequest struct {
	// RunID, when set, names the run instead of a generated id. Callers that
	// need the id before the batch starts take it from NewRunID.
	RunID   string
	From    int
	To      int
	Step    int
	Runs    int
	Feature string
	Seed    int64
	Target  *model.HypothesisLine
	// RandomTarget draws the target line from the seed instead of Target.
	RandomTarget bool
}

type LearningCurveSummary struct {
	RunID        string
	ArtifactsDir string
	Points       []model.CurvePoint
	Skipped      []int
	Complete     bool
}

type BiasVarianceRequest struct {
	RunID      string
	N          int
	Runs       int
	Seed       int64
	Target     *model.HypothesisLine
	ShowSample bool
}

type NonlinearRequest struct {
	RunID   string
	N       int
	Runs    int
	Seed    int64
	Feature string
	// Target defaults to a random quadratic drawn from the seed.
	Target     *model.QuadraticTarget
	ShowSample bool
}

type BatchSummary struct {
	RunID        string
	ArtifactsDir string
	Segments     []model.Segment
	Contours     int
	Degenerate   int
	Failed       int
	Complete     bool
}

type RunsRequest struct {
	Limit int
}

type RunItem struct {
	RunID        string        `json:"run_id"`
	Kind         model.RunKind `json:"kind"`
	CreatedAtUTC string        `json:"created_at_utc"`
	Feature      string        `json:"feature"`
	Seed         int64         `json:"seed"`
	Runs         int           `json:"runs"`
	Entries      int           `json:"entries"`
	Complete     bool          `json:"complete"`
}

type ExportRequest struct {
	RunID  string
	Latest bool
	OutDir string
}

type ExportSummary struct {
	RunID     string
	Directory string
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind()
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	artifactsDir := opts.ArtifactsDir
	if artifactsDir == "" {
		artifactsDir = defaultArtifactsDir
	}
	exportsDir := opts.ExportsDir
	if exportsDir == "" {
		exportsDir = defaultExportsDir
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	bounds := opts.Bounds
	if bounds == (scheduler.Bounds{}) {
		bounds = scheduler.DefaultBounds()
	}
	m := opts.Model
	if m == nil {
		m = classifier.NewLeastSquares(opts.Memory)
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}

	loop := scheduler.NewLoop(opts.TickRate)
	loopCtx, stopLoop := context.WithCancel(context.Background())
	go func() {
		if err := loop.Run(loopCtx); err != nil {
			logger.Error("scheduler loop", "error", err)
		}
	}()

	return &Client{
		store:        store,
		model:        m,
		loop:         loop,
		scheduler:    scheduler.New(m, loop, scheduler.WithLogger(logger), scheduler.WithBounds(bounds)),
		logger:       logger,
		stopLoop:     stopLoop,
		tickRate:     opts.TickRate,
		artifactsDir: artifactsDir,
		exportsDir:   exportsDir,
	}, nil
}

// Close stops the loop after the task in progress and closes the store.
// Batches still running return ErrLoopClosed.
func (c *Client) Close() error {
	c.stopLoop()
	<-c.loop.Done()
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	c.initMu.Lock()
	defer c.initMu.Unlock()
	if c.initialized {
		return nil
	}
	if err := c.store.Init(ctx); err != nil {
		return err
	}
	c.initialized = true
	return nil
}

// LearningCurve sweeps the sample size and reports the mean in-sample
// mismatch ratio at each step. A cancelled sweep still saves what it plotted.
func (c *Client) LearningCurve(ctx context.Context, req LearningCurveRequest, p Presenter) (LearningCurveSummary, error) {
	if req.From == 0 {
		req.From = 10
	}
	if req.To == 0 {
		req.To = 1000
	}
	if req.Step == 0 {
		req.Step = 10
	}
	if req.Runs == 0 {
		req.Runs = 300
	}
	if req.Feature == "" {
		req.Feature = model.FeatureLinear.String()
	}
	if req.RandomTarget && req.Target != nil {
		return LearningCurveSummary{}, errors.New("use either target or random target")
	}
	kind, err := model.ParseFeatureKind(req.Feature)
	if err != nil {
		return LearningCurveSummary{}, err
	}
	if err := c.Init(ctx); err != nil {
		return LearningCurveSummary{}, err
	}

	seed := resolveSeed(req.Seed)
	target := DefaultCurveTarget
	switch {
	case req.Target != nil:
		target = *req.Target
	case req.RandomTarget:
		target = trial.RandomLine(rand.New(rand.NewSource(seed)))
	}

	runID := req.RunID
	if runID == "" {
		runID = NewRunID(model.RunKindLearningCurve)
	}
	createdAt := time.Now().UTC().Format(time.RFC3339Nano)
	sink := presenter.NewCurveStore(c.store, model.LearningCurve{
		ID:           runID,
		Feature:      kind.String(),
		From:         req.From,
		To:           req.To,
		Step:         req.Step,
		Runs:         req.Runs,
		CreatedAtUTC: createdAt,
	})

	result, runErr := c.scheduler.Sweep(ctx, scheduler.SweepConfig{
		ID:     runID,
		From:   req.From,
		To:     req.To,
		Step:   req.Step,
		Runs:   req.Runs,
		Target: target,
		Kind:   kind,
		Seed:   seed + 1,
	}, presenter.Fanout{sink, orDiscard(p)})
	if !result.Started {
		return LearningCurveSummary{RunID: runID}, runErr
	}

	curve, err := sink.Finish(context.Background(), result)
	if err != nil {
		return LearningCurveSummary{RunID: runID}, errors.Join(runErr, err)
	}
	runDir, err := c.record(stats.RunArtifacts{
		Config: stats.RunConfig{
			RunID:        runID,
			Kind:         model.RunKindLearningCurve,
			Feature:      kind.String(),
			From:         req.From,
			To:           req.To,
			Step:         req.Step,
			Runs:         req.Runs,
			Seed:         seed,
			RandomTarget: req.RandomTarget,
			Target:       &target,
			TickRate:     c.tickRate,
		},
		Curve: &curve,
	}, len(curve.Points), curve.Complete, createdAt)
	if err != nil {
		return LearningCurveSummary{RunID: runID}, errors.Join(runErr, err)
	}

	return LearningCurveSummary{
		RunID:        runID,
		ArtifactsDir: runDir,
		Points:       result.Points,
		Skipped:      result.Skipped,
		Complete:     result.Complete,
	}, runErr
}

// BiasVariance draws one fitted boundary per run at a fixed sample size,
// after the target line itself.
func (c *Client) BiasVariance(ctx context.Context, req BiasVarianceRequest, p Presenter) (BatchSummary, error) {
	if req.N == 0 {
		req.N = 20
	}
	if req.Runs == 0 {
		req.Runs = 50
	}
	if err := c.Init(ctx); err != nil {
		return BatchSummary{}, err
	}

	seed := resolveSeed(req.Seed)
	randomTarget := req.Target == nil
	var target model.HypothesisLine
	if randomTarget {
		target = trial.RandomLine(rand.New(rand.NewSource(seed)))
	} else {
		target = *req.Target
	}

	runID := req.RunID
	if runID == "" {
		runID = NewRunID(model.RunKindBiasVariance)
	}
	createdAt := time.Now().UTC().Format(time.RFC3339Nano)
	sink := presenter.NewBatchStore(c.store, model.BoundaryBatch{
		ID:           runID,
		Kind:         model.RunKindBiasVariance,
		Mode:         scheduler.FixedBoundary.String(),
		Feature:      model.FeatureLinear.String(),
		N:            req.N,
		Runs:         req.Runs,
		Target:       target,
		CreatedAtUTC: createdAt,
	})

	result, runErr := c.scheduler.Fixed(ctx, scheduler.FixedConfig{
		ID:         runID,
		N:          req.N,
		Runs:       req.Runs,
		Mode:       scheduler.FixedBoundary,
		Kind:       model.FeatureLinear,
		Target:     target,
		Seed:       seed + 1,
		ShowSample: req.ShowSample,
	}, presenter.Fanout{sink, orDiscard(p)})

	return c.finishBatch(sink, result, runErr, stats.RunConfig{
		RunID:        runID,
		Kind:         model.RunKindBiasVariance,
		Feature:      model.FeatureLinear.String(),
		Mode:         scheduler.FixedBoundary.String(),
		N:            req.N,
		Runs:         req.Runs,
		Seed:         seed,
		RandomTarget: randomTarget,
		Target:       &target,
		ShowSample:   req.ShowSample,
		TickRate:     c.tickRate,
	}, createdAt)
}

// Nonlinear fits each run with the chosen feature transform and draws its
// decision function on the contour grid, after the target's own contour.
func (c *Client) Nonlinear(ctx context.Context, req NonlinearRequest, p Presenter) (BatchSummary, error) {
	if req.N == 0 {
		req.N = 20
	}
	if req.Runs == 0 {
		req.Runs = 50
	}
	if req.Feature == "" {
		req.Feature = model.FeatureQuadratic.String()
	}
	kind, err := model.ParseFeatureKind(req.Feature)
	if err != nil {
		return BatchSummary{}, err
	}
	if err := c.Init(ctx); err != nil {
		return BatchSummary{}, err
	}

	seed := resolveSeed(req.Seed)
	randomTarget := req.Target == nil
	var target model.QuadraticTarget
	if randomTarget {
		target = trial.RandomQuadratic(rand.New(rand.NewSource(seed)))
	} else {
		target = *req.Target
	}

	runID := req.RunID
	if runID == "" {
		runID = NewRunID(model.RunKindNonlinear)
	}
	createdAt := time.Now().UTC().Format(time.RFC3339Nano)
	sink := presenter.NewBatchStore(c.store, model.BoundaryBatch{
		ID:           runID,
		Kind:         model.RunKindNonlinear,
		Mode:         scheduler.FixedContour.String(),
		Feature:      kind.String(),
		N:            req.N,
		Runs:         req.Runs,
		CreatedAtUTC: createdAt,
	})

	result, runErr := c.scheduler.Fixed(ctx, scheduler.FixedConfig{
		ID:         runID,
		N:          req.N,
		Runs:       req.Runs,
		Mode:       scheduler.FixedContour,
		Kind:       kind,
		Target:     target,
		Seed:       seed + 1,
		ShowSample: req.ShowSample,
	}, presenter.Fanout{sink, orDiscard(p)})

	return c.finishBatch(sink, result, runErr, stats.RunConfig{
		RunID:           runID,
		Kind:            model.RunKindNonlinear,
		Feature:         kind.String(),
		Mode:            scheduler.FixedContour.String(),
		N:               req.N,
		Runs:            req.Runs,
		Seed:            seed,
		RandomTarget:    randomTarget,
		QuadraticTarget: target.Weights[:],
		ShowSample:      req.ShowSample,
		TickRate:        c.tickRate,
	}, createdAt)
}

func (c *Client) finishBatch(sink *presenter.BatchStore, result scheduler.FixedResult, runErr error, cfg stats.RunConfig, createdAt string) (BatchSummary, error) {
	if !result.Started {
		return BatchSummary{RunID: cfg.RunID}, runErr
	}
	batch, err := sink.Finish(context.Background(), result)
	if err != nil {
		return BatchSummary{RunID: cfg.RunID}, errors.Join(runErr, err)
	}
	runDir, err := c.record(stats.RunArtifacts{Config: cfg, Batch: &batch}, len(batch.Segments)+batch.Contours, batch.Complete, createdAt)
	if err != nil {
		return BatchSummary{RunID: cfg.RunID}, errors.Join(runErr, err)
	}
	return BatchSummary{
		RunID:        cfg.RunID,
		ArtifactsDir: runDir,
		Segments:     result.Segments,
		Contours:     result.Contours,
		Degenerate:   result.Degenerate,
		Failed:       result.Failed,
		Complete:     result.Complete,
	}, runErr
}

func (c *Client) record(artifacts stats.RunArtifacts, entries int, complete bool, createdAt string) (string, error) {
	runDir, err := stats.WriteRunArtifacts(c.artifactsDir, artifacts)
	if err != nil {
		return "", fmt.Errorf("write run artifacts: %w", err)
	}
	if err := stats.AppendRunIndex(c.artifactsDir, stats.RunIndexEntry{
		RunID:        artifacts.Config.RunID,
		Kind:         artifacts.Config.Kind,
		Feature:      artifacts.Config.Feature,
		Runs:         artifacts.Config.Runs,
		Seed:         artifacts.Config.Seed,
		Entries:      entries,
		Complete:     complete,
		CreatedAtUTC: createdAt,
	}); err != nil {
		return "", fmt.Errorf("append run index: %w", err)
	}
	c.logger.Info("run recorded", "run_id", artifacts.Config.RunID, "kind", string(artifacts.Config.Kind),
		"entries", entries, "complete", complete)
	return runDir, nil
}

func (c *Client) Runs(_ context.Context, req RunsRequest) ([]RunItem, error) {
	if req.Limit <= 0 {
		req.Limit = 20
	}

	entries, err := stats.ListRunIndex(c.artifactsDir)
	if err != nil {
		return nil, err
	}
	if len(entries) > req.Limit {
		entries = entries[:req.Limit]
	}

	out := make([]RunItem, 0, len(entries))
	for _, e := range entries {
		out = append(out, RunItem{
			RunID:        e.RunID,
			Kind:         e.Kind,
			CreatedAtUTC: e.CreatedAtUTC,
			Feature:      e.Feature,
			Seed:         e.Seed,
			Runs:         e.Runs,
			Entries:      e.Entries,
			Complete:     e.Complete,
		})
	}
	return out, nil
}

func (c *Client) Export(_ context.Context, req ExportRequest) (ExportSummary, error) {
	if req.RunID != "" && req.Latest {
		return ExportSummary{}, errors.New("use either run id or latest")
	}
	if req.RunID == "" && !req.Latest {
		return ExportSummary{}, errors.New("export requires run id or latest")
	}
	if req.OutDir == "" {
		req.OutDir = c.exportsDir
	}

	runID := req.RunID
	if req.Latest {
		entries, err := stats.ListRunIndex(c.artifactsDir)
		if err != nil {
			return ExportSummary{}, err
		}
		if len(entries) == 0 {
			return ExportSummary{}, errors.New("no runs available to export")
		}
		runID = entries[0].RunID
	}

	exportedDir, err := stats.ExportRunArtifacts(c.artifactsDir, runID, req.OutDir)
	if err != nil {
		return ExportSummary{}, err
	}
	return ExportSummary{RunID: runID, Directory: filepath.Clean(exportedDir)}, nil
}

// LearningCurveByID reads a stored curve, including partial ones.
func (c *Client) LearningCurveByID(ctx context.Context, id string) (model.LearningCurve, bool, error) {
	if err := c.Init(ctx); err != nil {
		return model.LearningCurve{}, false, err
	}
	return c.store.GetLearningCurve(ctx, id)
}

func (c *Client) BatchByID(ctx context.Context, id string) (model.BoundaryBatch, bool, error) {
	if err := c.Init(ctx); err != nil {
		return model.BoundaryBatch{}, false, err
	}
	return c.store.GetBoundaryBatch(ctx, id)
}

// ArchivedRun is a run read back from its artifacts directory.
type ArchivedRun struct {
	Config stats.RunConfig    `json:"config"`
	Points []model.CurvePoint `json:"points,omitempty"`
}

// RunFromArtifacts reads a recorded run from the artifacts directory, for
// runs the current store does not hold. Only learning curves carry points.
func (c *Client) RunFromArtifacts(id string) (ArchivedRun, bool, error) {
	cfg, ok, err := stats.ReadRunConfig(c.artifactsDir, id)
	if err != nil || !ok {
		return ArchivedRun{}, ok, err
	}
	run := ArchivedRun{Config: cfg}
	if cfg.Kind == model.RunKindLearningCurve {
		points, _, err := stats.ReadCurveSeries(c.artifactsDir, id)
		if err != nil {
			return ArchivedRun{}, false, fmt.Errorf("read curve series: %w", err)
		}
		run.Points = points
	}
	return run, true, nil
}

// StoredRuns lists every run the store holds, oldest first.
func (c *Client) StoredRuns(ctx context.Context) ([]model.RunRecord, error) {
	if err := c.Init(ctx); err != nil {
		return nil, err
	}
	return c.store.ListRuns(ctx)
}

func orDiscard(p Presenter) Presenter {
	if p == nil {
		return presenter.Discard{}
	}
	return p
}

func resolveSeed(seed int64) int64 {
	if seed != 0 {
		return seed
	}
	return time.Now().UnixNano()
}

// NewRunID returns "<kind>-" followed by eight hex digits.
func NewRunID(kind model.RunKind) string {
	return fmt.Sprintf("%s-%s", kind, uuid.NewString()[:8])
}
