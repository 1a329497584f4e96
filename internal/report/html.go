package report

import (
	"bytes"
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/imufusion/internal/fsutil"
	"github.com/banshee-data/imufusion/internal/sweep"
)

// DefaultAssetsHost serves the echarts scripts when no local copy is
// configured.
const DefaultAssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

// NewLineChart builds an interactive metric-versus-gain chart of s.
func NewLineChart(s *sweep.Summary, m Metric, assetsHost string) *charts.Line {
	if assetsHost == "" {
		assetsHost = DefaultAssetsHost
	}
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Fusion gain sweep", Width: "100%", Height: "560px", AssetsHost: assetsHost}),
		charts.WithTitleOpts(opts.Title{Title: m.Title(), Subtitle: fmt.Sprintf("run=%s source=%s repetitions=%d", s.RunID, s.DataSource, s.Repetitions)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "bottom"}),
		charts.WithXAxisOpts(opts.XAxis{Type: "log", Name: "gain", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Type: "value", Name: m.Unit(), NameLocation: "middle", NameGap: 40}),
	)
	for v, pts := range Series(s, m) {
		data := make([]opts.LineData, 0, len(pts))
		for _, p := range pts {
			data = append(data, opts.LineData{Value: []interface{}{p.X, p.Y}})
		}
		line.AddSeries(s.Variants[v], data)
	}
	return line
}

// RenderHTML writes a page with the convergence and accuracy charts of s.
func RenderHTML(w io.Writer, s *sweep.Summary, assetsHost string) error {
	if assetsHost == "" {
		assetsHost = DefaultAssetsHost
	}
	page := components.NewPage()
	page.SetAssetsHost(assetsHost)
	page.PageTitle = fmt.Sprintf("Fusion gain sweep %s", s.RunID)
	page.AddCharts(
		NewLineChart(s, Convergence, assetsHost),
		NewLineChart(s, Accuracy, assetsHost),
	)
	return page.Render(w)
}

// WriteHTML renders the page of s to path.
func WriteHTML(fs fsutil.FileSystem, path string, s *sweep.Summary, assetsHost string) error {
	var buf bytes.Buffer
	if err := RenderHTML(&buf, s, assetsHost); err != nil {
		return fmt.Errorf("failed to render chart: %w", err)
	}
	if err := fs.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
