package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"mlvisuals/internal/model"
	"mlvisuals/internal/presenter"
	"mlvisuals/internal/server"
	"mlvisuals/pkg/mlvisuals"
)

// output wraps the presenter a batch command writes to.
type output struct {
	presenter mlvisuals.Presenter
	lines     *presenter.JSONLines
	w         io.Writer
}

func (a *app) output(runID string, jsonOut, showPoints bool) output {
	if jsonOut {
		lines := presenter.NewJSONLines(a.stdout, runID)
		return output{presenter: lines, lines: lines, w: a.stdout}
	}
	p := presenter.ForOutput(a.stdout, runID)
	switch v := p.(type) {
	case *presenter.Table:
		v.ShowPoints(showPoints)
	case *presenter.JSONLines:
		return output{presenter: v, lines: v, w: a.stdout}
	}
	return output{presenter: p, w: a.stdout}
}

// finish closes a JSON lines stream with its done event. Tables get a
// summary line instead.
func (o output) finish(complete bool, runErr error, summary func() string) error {
	if o.lines != nil {
		return o.lines.Done(complete, runErr)
	}
	_, err := fmt.Fprintln(o.w, summary())
	return err
}

func (a *app) learningCurveCmd() *cobra.Command {
	var (
		from, to, step, runs int
		feature              string
		seed                 int64
		randomTarget         bool
		slope, intercept     float64
		jsonOut              bool
	)
	cmd := &cobra.Command{
		Use:   "learning-curve",
		Short: "Sweep the sample size and plot the mean in-sample mismatch ratio",
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags := cmd.Flags()
			if !flags.Changed("from") {
				from = a.cfg.Sweep.From
			}
			if !flags.Changed("to") {
				to = a.cfg.Sweep.To
			}
			if !flags.Changed("step") {
				step = a.cfg.Sweep.Step
			}
			if !flags.Changed("runs") {
				runs = a.cfg.Sweep.Runs
			}
			if !flags.Changed("feature") {
				feature = a.cfg.Sweep.Feature
			}
			var target *model.HypothesisLine
			if flags.Changed("slope") || flags.Changed("intercept") {
				if randomTarget {
					return errors.New("use either --random-target or --slope/--intercept")
				}
				if !flags.Changed("slope") {
					slope = mlvisuals.DefaultCurveTarget.Slope
				}
				if !flags.Changed("intercept") {
					intercept = mlvisuals.DefaultCurveTarget.Intercept
				}
				target = &model.HypothesisLine{Slope: slope, Intercept: intercept}
			}

			return a.withClient(func(client *mlvisuals.Client) error {
				runID := mlvisuals.NewRunID(model.RunKindLearningCurve)
				out := a.output(runID, jsonOut, false)
				summary, runErr := client.LearningCurve(cmd.Context(), mlvisuals.LearningCurveRequest{
					RunID:        runID,
					From:         from,
					To:           to,
					Step:         step,
					Runs:         runs,
					Feature:      feature,
					Seed:         seed,
					Target:       target,
					RandomTarget: randomTarget,
				}, out.presenter)
				if err := out.finish(summary.Complete, runErr, func() string {
					return fmt.Sprintf("run_id=%s steps=%d skipped=%d complete=%t artifacts=%s",
						summary.RunID, len(summary.Points), len(summary.Skipped), summary.Complete, summary.ArtifactsDir)
				}); err != nil {
					return errors.Join(runErr, err)
				}
				return runErr
			})
		},
	}
	f := cmd.Flags()
	f.IntVar(&from, "from", 0, "first sample size (default from config)")
	f.IntVar(&to, "to", 0, "last sample size (default from config)")
	f.IntVar(&step, "step", 0, "sample size increment (default from config)")
	f.IntVar(&runs, "runs", 0, "trials per step (default from config)")
	f.StringVar(&feature, "feature", "", "feature transform: linear|quadratic")
	f.Int64Var(&seed, "seed", 0, "random seed, 0 picks one from the clock")
	f.BoolVar(&randomTarget, "random-target", false, "draw the target line from the seed")
	f.Float64Var(&slope, "slope", 0, "target line slope")
	f.Float64Var(&intercept, "intercept", 0, "target line intercept")
	f.BoolVar(&jsonOut, "json", false, "emit JSON lines even on a terminal")
	return cmd
}

func (a *app) biasVarianceCmd() *cobra.Command {
	var (
		n, runs          int
		seed             int64
		slope, intercept float64
		showSample       bool
		jsonOut          bool
	)
	cmd := &cobra.Command{
		Use:   "bias-variance",
		Short: "Draw one fitted boundary per run at a fixed sample size",
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags := cmd.Flags()
			if !flags.Changed("n") {
				n = a.cfg.Fixed.N
			}
			if !flags.Changed("runs") {
				runs = a.cfg.Fixed.Runs
			}
			var target *model.HypothesisLine
			if flags.Changed("slope") || flags.Changed("intercept") {
				target = &model.HypothesisLine{Slope: slope, Intercept: intercept}
			}

			return a.withClient(func(client *mlvisuals.Client) error {
				runID := mlvisuals.NewRunID(model.RunKindBiasVariance)
				out := a.output(runID, jsonOut, showSample)
				summary, runErr := client.BiasVariance(cmd.Context(), mlvisuals.BiasVarianceRequest{
					RunID:      runID,
					N:          n,
					Runs:       runs,
					Seed:       seed,
					Target:     target,
					ShowSample: showSample,
				}, out.presenter)
				if err := out.finish(summary.Complete, runErr, func() string {
					return batchSummaryLine(summary)
				}); err != nil {
					return errors.Join(runErr, err)
				}
				return runErr
			})
		},
	}
	f := cmd.Flags()
	f.IntVar(&n, "n", 0, "sample size per trial (default from config)")
	f.IntVar(&runs, "runs", 0, "number of trials (default from config)")
	f.Int64Var(&seed, "seed", 0, "random seed, 0 picks one from the clock")
	f.Float64Var(&slope, "slope", 0, "target line slope; random when neither slope nor intercept is set")
	f.Float64Var(&intercept, "intercept", 0, "target line intercept")
	f.BoolVar(&showSample, "show-sample", false, "also emit every sample point")
	f.BoolVar(&jsonOut, "json", false, "emit JSON lines even on a terminal")
	return cmd
}

func (a *app) nonlinearCmd() *cobra.Command {
	var (
		n, runs    int
		seed       int64
		feature    string
		weights    []float64
		showSample bool
		jsonOut    bool
	)
	cmd := &cobra.Command{
		Use:   "nonlinear",
		Short: "Fit a feature transform per run and draw its decision contour",
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags := cmd.Flags()
			if !flags.Changed("n") {
				n = a.cfg.Fixed.N
			}
			if !flags.Changed("runs") {
				runs = a.cfg.Fixed.Runs
			}
			var target *model.QuadraticTarget
			if flags.Changed("weights") {
				if len(weights) != 6 {
					return fmt.Errorf("%w: --weights needs 6 values, got %d", model.ErrInvalidParameter, len(weights))
				}
				target = &model.QuadraticTarget{}
				copy(target.Weights[:], weights)
			}

			return a.withClient(func(client *mlvisuals.Client) error {
				runID := mlvisuals.NewRunID(model.RunKindNonlinear)
				out := a.output(runID, jsonOut, showSample)
				summary, runErr := client.Nonlinear(cmd.Context(), mlvisuals.NonlinearRequest{
					RunID:      runID,
					N:          n,
					Runs:       runs,
					Seed:       seed,
					Feature:    feature,
					Target:     target,
					ShowSample: showSample,
				}, out.presenter)
				if err := out.finish(summary.Complete, runErr, func() string {
					return batchSummaryLine(summary)
				}); err != nil {
					return errors.Join(runErr, err)
				}
				return runErr
			})
		},
	}
	f := cmd.Flags()
	f.IntVar(&n, "n", 0, "sample size per trial (default from config)")
	f.IntVar(&runs, "runs", 0, "number of trials (default from config)")
	f.Int64Var(&seed, "seed", 0, "random seed, 0 picks one from the clock")
	f.StringVar(&feature, "feature", "quadratic", "feature transform: linear|quadratic")
	f.Float64SliceVar(&weights, "weights", nil, "target weights for 1,x,y,xy,x^2,y^2; random when unset")
	f.BoolVar(&showSample, "show-sample", false, "also emit every sample point")
	f.BoolVar(&jsonOut, "json", false, "emit JSON lines even on a terminal")
	return cmd
}

func batchSummaryLine(s mlvisuals.BatchSummary) string {
	return fmt.Sprintf("run_id=%s segments=%d contours=%d degenerate=%d failed=%d complete=%t artifacts=%s",
		s.RunID, len(s.Segments), s.Contours, s.Degenerate, s.Failed, s.Complete, s.ArtifactsDir)
}

func (a *app) runsCmd() *cobra.Command {
	var (
		limit   int
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit <= 0 {
				return errors.New("limit must be > 0")
			}
			return a.withClient(func(client *mlvisuals.Client) error {
				items, err := client.Runs(cmd.Context(), mlvisuals.RunsRequest{Limit: limit})
				if err != nil {
					return err
				}
				if jsonOut {
					enc := json.NewEncoder(a.stdout)
					enc.SetIndent("", "  ")
					return enc.Encode(items)
				}
				if len(items) == 0 {
					fmt.Fprintln(a.stdout, "no runs found")
					return nil
				}
				for _, item := range items {
					fmt.Fprintf(a.stdout, "run_id=%s kind=%s feature=%s runs=%s entries=%s complete=%t created_at=%s\n",
						item.RunID, item.Kind, item.Feature,
						humanize.Comma(int64(item.Runs)), humanize.Comma(int64(item.Entries)),
						item.Complete, item.CreatedAtUTC)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "max runs to list")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "emit runs list as JSON")
	return cmd
}

func (a *app) showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Print a stored run as JSON, falling back to its artifacts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withClient(func(client *mlvisuals.Client) error {
				record, err := lookupRun(cmd.Context(), client, args[0])
				if err != nil {
					return err
				}
				enc := json.NewEncoder(a.stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(record)
			})
		},
	}
}

func lookupRun(ctx context.Context, client *mlvisuals.Client, id string) (any, error) {
	curve, ok, err := client.LearningCurveByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if ok {
		return curve, nil
	}
	batch, ok, err := client.BatchByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if ok {
		return batch, nil
	}
	archived, ok, err := client.RunFromArtifacts(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("run not found: %s", id)
	}
	return archived, nil
}

func (a *app) exportCmd() *cobra.Command {
	var (
		runID  string
		latest bool
		outDir string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Copy a run's artifacts to an export directory",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withClient(func(client *mlvisuals.Client) error {
				summary, err := client.Export(cmd.Context(), mlvisuals.ExportRequest{
					RunID:  runID,
					Latest: latest,
					OutDir: outDir,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(a.stdout, "exported run_id=%s to=%s\n", summary.RunID, summary.Directory)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&runID, "run-id", "", "run id")
	cmd.Flags().BoolVar(&latest, "latest", false, "export the most recent run from the run index")
	cmd.Flags().StringVar(&outDir, "out", "exports", "export output directory")
	return cmd
}

func (a *app) serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve batches over websockets plus health and metrics endpoints",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("addr") {
				addr = a.cfg.Server.Addr
			}
			return a.withClient(func(client *mlvisuals.Client) error {
				srv := server.New(client, server.Options{
					Addr:           addr,
					MetricsEnabled: a.cfg.Observability.MetricsEnabled,
					Logger:         a.logger,
				})
				return srv.Run(cmd.Context())
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	return cmd
}
