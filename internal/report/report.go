// Package report renders sweep summaries as PNG plots and an interactive
// HTML page. Gains are drawn on a logarithmic axis; values that never
// converged are left out of every series.
package report

import (
	"fmt"
	"path/filepath"

	"gonum.org/v1/plot/plotter"

	"github.com/banshee-data/imufusion/internal/fsutil"
	"github.com/banshee-data/imufusion/internal/monitoring"
	"github.com/banshee-data/imufusion/internal/sweep"
)

// Output file names written by Render.
const (
	ConvergencePlot = "convergence.png"
	AccuracyPlot    = "accuracy.png"
	HTMLReport      = "report.html"
)

// Metric selects the per-gain value to plot.
type Metric int

const (
	Convergence Metric = iota
	Accuracy
)

func (m Metric) String() string {
	if m == Accuracy {
		return "accuracy"
	}
	return "convergence"
}

// Title is the chart title for m.
func (m Metric) Title() string {
	if m == Accuracy {
		return "Mean error after convergence"
	}
	return "Convergence time"
}

// Unit is the y axis label for m.
func (m Metric) Unit() string {
	if m == Accuracy {
		return "error (deg)"
	}
	return "time (s)"
}

func (m Metric) value(g sweep.GainSummary, v int) float64 {
	if m == Accuracy {
		return g.AccuracyDeg[v]
	}
	return g.ConvergenceSecs[v]
}

// Series returns one XY set per variant of s, in s.Variants order. Gains
// that are not positive and values equal to sweep.NotConverged are
// skipped.
func Series(s *sweep.Summary, m Metric) []plotter.XYs {
	out := make([]plotter.XYs, len(s.Variants))
	for v := range s.Variants {
		pts := make(plotter.XYs, 0, len(s.Results))
		for _, g := range s.Results {
			if g.Gain <= 0 || v >= len(g.ConvergenceSecs) || v >= len(g.AccuracyDeg) {
				continue
			}
			y := m.value(g, v)
			if y == sweep.NotConverged {
				continue
			}
			pts = append(pts, plotter.XY{X: g.Gain, Y: y})
		}
		out[v] = pts
	}
	return out
}

// Render writes both plots and the HTML page into dir.
func Render(fs fsutil.FileSystem, dir string, s *sweep.Summary, assetsHost string) error {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}
	for _, p := range []struct {
		m    Metric
		name string
	}{
		{Convergence, ConvergencePlot},
		{Accuracy, AccuracyPlot},
	} {
		if err := WritePNG(fs, filepath.Join(dir, p.name), s, p.m); err != nil {
			return fmt.Errorf("%s plot: %w", p.m, err)
		}
	}
	if err := WriteHTML(fs, filepath.Join(dir, HTMLReport), s, assetsHost); err != nil {
		return fmt.Errorf("html report: %w", err)
	}
	monitoring.Logf("report for run %s written to %s", s.RunID, dir)
	return nil
}
