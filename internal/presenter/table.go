package presenter

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"mlvisuals/internal/model"
	"mlvisuals/internal/scheduler"
)

// Table prints aligned human-readable rows.
type Table struct {
	w          io.Writer
	header     bool
	showPoints bool
}

func NewTable(w io.Writer) *Table {
	return &Table{w: w}
}

// ShowPoints also prints every sample point of a fixed batch.
func (t *Table) ShowPoints(show bool) *Table {
	t.showPoints = show
	return t
}

func (t *Table) PresentStep(_ context.Context, point model.CurvePoint) error {
	if !t.header {
		t.header = true
		if _, err := fmt.Fprintf(t.w, "%8s  %-10s  %-10s  %6s  %6s\n", "n", "mean", "std", "runs", "failed"); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(t.w, "%8s  %-10s  %-10s  %6s  %6s\n",
		humanize.Comma(int64(point.Param)),
		humanize.FtoaWithDigits(point.Mean, 6),
		humanize.FtoaWithDigits(point.Std, 6),
		humanize.Comma(int64(point.Runs)),
		humanize.Comma(int64(point.Failed)),
	)
	return err
}

func (t *Table) PresentGeometry(_ context.Context, g model.Geometry) error {
	label := fmt.Sprintf("trial %s", humanize.Comma(int64(g.Trial)))
	if g.Reference {
		label = "target"
	}
	switch g.Kind {
	case model.GeometrySegment:
		s := g.Segment
		_, err := fmt.Fprintf(t.w, "%-12s line (%.3f, %.3f) -> (%.3f, %.3f)\n", label, s.From.X, s.From.Y, s.To.X, s.To.Y)
		return err
	case model.GeometryContour:
		lo, hi := valueRange(g.Contour.Values)
		_, err := fmt.Fprintf(t.w, "%-12s contour %dx%d range [%.3f, %.3f]\n", label, g.Contour.Size, g.Contour.Size, lo, hi)
		return err
	case model.GeometryPoint:
		if !t.showPoints {
			return nil
		}
		p := g.Point
		_, err := fmt.Fprintf(t.w, "%-12s point (%.3f, %.3f) %+.0f\n", label, p.X, p.Y, p.Label)
		return err
	default:
		return fmt.Errorf("unknown geometry kind %q", g.Kind)
	}
}

func valueRange(values []float64) (float64, float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range values {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return lo, hi
}

// ForOutput picks a Table when w is a terminal and JSON lines otherwise.
func ForOutput(w io.Writer, batchID string) scheduler.Presenter {
	if f, ok := w.(*os.File); ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
		return NewTable(w)
	}
	return NewJSONLines(w, batchID)
}
