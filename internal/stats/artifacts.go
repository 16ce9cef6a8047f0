package stats

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"mlvisuals/internal/model"
)

const (
	runIndexFile      = "run_index.json"
	configFile        = "config.json"
	curveFile         = "learning_curve.json"
	curveSeriesFile   = "learning_curve.csv"
	boundariesFile    = "boundaries.json"
	curveSeriesHeader = "param,mean,std,runs,failed"
)

type RunConfig struct {
	RunID           string                `json:"run_id"`
	Kind            model.RunKind         `json:"kind"`
	Feature         string                `json:"feature"`
	Mode            string                `json:"mode,omitempty"`
	From            int                   `json:"from,omitempty"`
	To              int                   `json:"to,omitempty"`
	Step            int                   `json:"step,omitempty"`
	N               int                   `json:"n,omitempty"`
	Runs            int                   `json:"runs"`
	Seed            int64                 `json:"seed"`
	RandomTarget    bool                  `json:"random_target,omitempty"`
	Target          *model.HypothesisLine `json:"target,omitempty"`
	QuadraticTarget []float64             `json:"quadratic_target,omitempty"`
	ShowSample      bool                  `json:"show_sample,omitempty"`
	TickRate        float64               `json:"tick_rate,omitempty"`
}

type RunArtifacts struct {
	Config RunConfig
	Curve  *model.LearningCurve
	Batch  *model.BoundaryBatch
}

type RunIndexEntry struct {
	RunID        string        `json:"run_id"`
	Kind         model.RunKind `json:"kind"`
	Feature      string        `json:"feature"`
	Runs         int           `json:"runs"`
	Seed         int64         `json:"seed"`
	Entries      int           `json:"entries"`
	Complete     bool          `json:"complete"`
	CreatedAtUTC string        `json:"created_at_utc"`
}

func WriteRunArtifacts(baseDir string, artifacts RunArtifacts) (string, error) {
	if artifacts.Config.RunID == "" {
		return "", fmt.Errorf("run id is required")
	}

	runDir := filepath.Join(baseDir, artifacts.Config.RunID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}

	if err := writeJSON(filepath.Join(runDir, configFile), artifacts.Config); err != nil {
		return "", err
	}
	if artifacts.Curve != nil {
		if err := writeJSON(filepath.Join(runDir, curveFile), artifacts.Curve); err != nil {
			return "", err
		}
		if err := WriteCurveSeries(runDir, artifacts.Curve.Points); err != nil {
			return "", err
		}
	}
	if artifacts.Batch != nil {
		if err := writeJSON(filepath.Join(runDir, boundariesFile), artifacts.Batch); err != nil {
			return "", err
		}
	}

	return runDir, nil
}

func AppendRunIndex(baseDir string, entry RunIndexEntry) error {
	if entry.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	index, err := ListRunIndex(baseDir)
	if err != nil {
		return err
	}

	for i := range index {
		if index[i].RunID == entry.RunID {
			index[i] = entry
			return writeJSON(filepath.Join(baseDir, runIndexFile), index)
		}
	}

	index = append(index, entry)
	return writeJSON(filepath.Join(baseDir, runIndexFile), index)
}

// ListRunIndex returns entries newest first.
func ListRunIndex(baseDir string) ([]RunIndexEntry, error) {
	path := filepath.Join(baseDir, runIndexFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunIndexEntry{}, nil
		}
		return nil, err
	}

	var entries []RunIndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}

	type indexedEntry struct {
		entry RunIndexEntry
		idx   int
	}
	indexed := make([]indexedEntry, len(entries))
	for i := range entries {
		indexed[i] = indexedEntry{entry: entries[i], idx: i}
	}
	sort.Slice(indexed, func(i, j int) bool {
		if indexed[i].entry.CreatedAtUTC == indexed[j].entry.CreatedAtUTC {
			// Later appends win ties.
			return indexed[i].idx > indexed[j].idx
		}
		return indexed[i].entry.CreatedAtUTC > indexed[j].entry.CreatedAtUTC
	})

	sorted := make([]RunIndexEntry, 0, len(indexed))
	for _, item := range indexed {
		sorted = append(sorted, item.entry)
	}
	return sorted, nil
}

// ExportRunArtifacts copies whichever run files exist into outDir/runID.
func ExportRunArtifacts(baseDir, runID, outDir string) (string, error) {
	if runID == "" {
		return "", fmt.Errorf("run id is required")
	}

	src := filepath.Join(baseDir, runID)
	if _, err := os.Stat(src); err != nil {
		return "", err
	}

	dst := filepath.Join(outDir, runID)
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return "", err
	}

	if err := copyFile(filepath.Join(src, configFile), filepath.Join(dst, configFile)); err != nil {
		return "", err
	}
	for _, file := range []string{curveFile, curveSeriesFile, boundariesFile} {
		path := filepath.Join(src, file)
		if _, err := os.Stat(path); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return "", err
		}
		if err := copyFile(path, filepath.Join(dst, file)); err != nil {
			return "", err
		}
	}
	return dst, nil
}

func ReadRunConfig(baseDir, runID string) (RunConfig, bool, error) {
	path := filepath.Join(baseDir, runID, configFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return RunConfig{}, false, nil
		}
		return RunConfig{}, false, err
	}

	var cfg RunConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return RunConfig{}, false, err
	}
	return cfg, true, nil
}

func WriteCurveSeries(runDir string, points []model.CurvePoint) error {
	path := filepath.Join(runDir, curveSeriesFile)
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(strings.Split(curveSeriesHeader, ",")); err != nil {
		return err
	}
	for _, point := range points {
		if err := writer.Write([]string{
			strconv.Itoa(point.Param),
			strconv.FormatFloat(point.Mean, 'f', -1, 64),
			strconv.FormatFloat(point.Std, 'f', -1, 64),
			strconv.Itoa(point.Runs),
			strconv.Itoa(point.Failed),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func ReadCurveSeries(baseDir, runID string) ([]model.CurvePoint, bool, error) {
	path := filepath.Join(baseDir, runID, curveSeriesFile)
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return []model.CurvePoint{}, true, nil
		}
		return nil, false, err
	}
	if strings.Join(header, ",") != curveSeriesHeader {
		return nil, false, fmt.Errorf("learning curve header must be %q", curveSeriesHeader)
	}

	points := make([]model.CurvePoint, 0, 100)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, false, err
		}
		point, err := parseCurveRow(record)
		if err != nil {
			return nil, false, err
		}
		points = append(points, point)
	}
	return points, true, nil
}

func parseCurveRow(record []string) (model.CurvePoint, error) {
	var (
		point model.CurvePoint
		err   error
	)
	if point.Param, err = strconv.Atoi(record[0]); err != nil {
		return point, err
	}
	if point.Mean, err = strconv.ParseFloat(record[1], 64); err != nil {
		return point, err
	}
	if point.Std, err = strconv.ParseFloat(record[2], 64); err != nil {
		return point, err
	}
	if point.Runs, err = strconv.Atoi(record[3]); err != nil {
		return point, err
	}
	if point.Failed, err = strconv.Atoi(record[4]); err != nil {
		return point, err
	}
	return point, nil
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
