package stats

import (
	"os"
	"path/filepath"
	"testing"

	"mlvisuals/internal/model"
)

func TestWriteAndExportRunArtifacts(t *testing.T) {
	baseDir := t.TempDir()
	outDir := filepath.Join(t.TempDir(), "exports")

	runID := "learning-curve-123"
	curve := model.LearningCurve{
		ID:      runID,
		Feature: "linear",
		From:    10,
		To:      30,
		Step:    10,
		Runs:    300,
		Points: []model.CurvePoint{
			{Param: 10, Mean: 0.081, Std: 0.07, Runs: 300},
			{Param: 20, Mean: 0.042, Std: 0.035, Runs: 299, Failed: 1},
		},
		Skipped:  []int{30},
		Complete: true,
	}
	artifacts := RunArtifacts{
		Config: RunConfig{
			RunID:   runID,
			Kind:    model.RunKindLearningCurve,
			Feature: "linear",
			From:    10,
			To:      30,
			Step:    10,
			Runs:    300,
			Seed:    1,
			Target:  &model.HypothesisLine{Slope: -1, Intercept: 0.25},
		},
		Curve: &curve,
	}

	runDir, err := WriteRunArtifacts(baseDir, artifacts)
	if err != nil {
		t.Fatalf("write artifacts: %v", err)
	}

	for _, file := range []string{"config.json", "learning_curve.json", "learning_curve.csv"} {
		if _, err := os.Stat(filepath.Join(runDir, file)); err != nil {
			t.Fatalf("expected file %s: %v", file, err)
		}
	}
	if _, err := os.Stat(filepath.Join(runDir, "boundaries.json")); !os.IsNotExist(err) {
		t.Fatalf("expected no boundaries file for a learning curve, got %v", err)
	}

	exportedDir, err := ExportRunArtifacts(baseDir, runID, outDir)
	if err != nil {
		t.Fatalf("export artifacts: %v", err)
	}
	for _, file := range []string{"config.json", "learning_curve.json", "learning_curve.csv"} {
		if _, err := os.Stat(filepath.Join(exportedDir, file)); err != nil {
			t.Fatalf("expected exported file %s: %v", file, err)
		}
	}

	cfg, ok, err := ReadRunConfig(baseDir, runID)
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	if !ok || cfg.Target == nil || cfg.Target.Intercept != 0.25 {
		t.Fatalf("unexpected config: ok=%t %+v", ok, cfg)
	}
}

func TestCurveSeriesRoundTrip(t *testing.T) {
	baseDir := t.TempDir()
	runDir := filepath.Join(baseDir, "run-1")
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	points := []model.CurvePoint{
		{Param: 10, Mean: 0.1, Std: 0.05, Runs: 300},
		{Param: 20, Mean: 0.0625, Std: 0.03125, Runs: 298, Failed: 2},
	}
	if err := WriteCurveSeries(runDir, points); err != nil {
		t.Fatalf("write series: %v", err)
	}

	loaded, ok, err := ReadCurveSeries(baseDir, "run-1")
	if err != nil {
		t.Fatalf("read series: %v", err)
	}
	if !ok || len(loaded) != len(points) {
		t.Fatalf("unexpected series: ok=%t %+v", ok, loaded)
	}
	for i := range points {
		if loaded[i] != points[i] {
			t.Fatalf("row %d: got %+v want %+v", i, loaded[i], points[i])
		}
	}

	_, ok, err = ReadCurveSeries(baseDir, "missing")
	if err != nil || ok {
		t.Fatalf("expected missing series, ok=%t err=%v", ok, err)
	}
}

func TestRunIndexNewestFirstAndReplace(t *testing.T) {
	baseDir := t.TempDir()

	entries := []RunIndexEntry{
		{RunID: "a", Kind: model.RunKindLearningCurve, CreatedAtUTC: "2026-01-01T00:00:00Z"},
		{RunID: "b", Kind: model.RunKindBiasVariance, CreatedAtUTC: "2026-01-03T00:00:00Z"},
		{RunID: "c", Kind: model.RunKindNonlinear, CreatedAtUTC: "2026-01-02T00:00:00Z"},
	}
	for _, entry := range entries {
		if err := AppendRunIndex(baseDir, entry); err != nil {
			t.Fatalf("append %s: %v", entry.RunID, err)
		}
	}
	if err := AppendRunIndex(baseDir, RunIndexEntry{RunID: "a", Complete: true, CreatedAtUTC: "2026-01-01T00:00:00Z"}); err != nil {
		t.Fatalf("replace a: %v", err)
	}

	index, err := ListRunIndex(baseDir)
	if err != nil {
		t.Fatalf("list index: %v", err)
	}
	if len(index) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(index))
	}
	if index[0].RunID != "b" || index[1].RunID != "c" || index[2].RunID != "a" {
		t.Fatalf("unexpected order: %+v", index)
	}
	if !index[2].Complete {
		t.Fatal("expected replaced entry to be complete")
	}

	if err := AppendRunIndex(baseDir, RunIndexEntry{}); err == nil {
		t.Fatal("expected run id error")
	}
}

func TestListRunIndexMissing(t *testing.T) {
	index, err := ListRunIndex(t.TempDir())
	if err != nil {
		t.Fatalf("list index: %v", err)
	}
	if len(index) != 0 {
		t.Fatalf("expected empty index, got %+v", index)
	}
}
