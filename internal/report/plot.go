package report

import (
	"errors"
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/imufusion/internal/fsutil"
	"github.com/banshee-data/imufusion/internal/sweep"
)

// ErrNoData is returned when no variant has a point to draw.
var ErrNoData = errors.New("no converged results to plot")

const (
	plotWidth  = 10 * vg.Inch
	plotHeight = 6 * vg.Inch
)

// NewPlot builds the metric-versus-gain plot of s.
func NewPlot(s *sweep.Summary, m Metric) (*plot.Plot, error) {
	series := Series(s, m)

	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s (%d repetitions, %d samples)", m.Title(), s.Repetitions, s.Samples)
	p.X.Label.Text = "gain"
	p.Y.Label.Text = m.Unit()
	p.X.Scale = plot.LogScale{}
	p.X.Tick.Marker = plot.LogTicks{Prec: -1}
	p.Add(plotter.NewGrid())

	drawn := 0
	for v, pts := range series {
		if len(pts) == 0 {
			continue
		}
		line, points, err := plotter.NewLinePoints(pts)
		if err != nil {
			return nil, fmt.Errorf("%s series: %w", s.Variants[v], err)
		}
		line.Color = plotutil.Color(v)
		line.Width = vg.Points(1.5)
		points.Color = plotutil.Color(v)
		points.Shape = plotutil.Shape(v)
		p.Add(line, points)
		p.Legend.Add(s.Variants[v], line, points)
		drawn++
	}
	if drawn == 0 {
		return nil, ErrNoData
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	return p, nil
}

// WritePNG renders the m plot of s to path.
func WritePNG(fs fsutil.FileSystem, path string, s *sweep.Summary, m Metric) error {
	p, err := NewPlot(s, m)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(plotWidth, plotHeight, "png")
	if err != nil {
		return fmt.Errorf("render png: %w", err)
	}
	f, err := fs.Create(path)
	if err != nil {
		return fmt.Errorf("cannot create png: %w", err)
	}
	if _, err := wt.WriteTo(f); err != nil {
		f.Close()
		return fmt.Errorf("cannot write png: %w", err)
	}
	return f.Close()
}
