package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/imufusion/internal/config"
	"github.com/banshee-data/imufusion/internal/fsutil"
	"github.com/banshee-data/imufusion/internal/report"
	"github.com/banshee-data/imufusion/internal/sensordata"
	"github.com/banshee-data/imufusion/internal/sweep"
	"github.com/banshee-data/imufusion/internal/synth"
	"github.com/banshee-data/imufusion/internal/timeutil"
)

const testConfig = `{
  "data_source": "synthetic",
  "gyro_data": "data/gyro.dat",
  "acc_data": "data/acc.dat",
  "mag_data": "data/mag.dat",
  "quat_data": "data/quat.dat",
  "results_dir": "out/quat",
  "euler_dir": "out/euler",
  "gains": [0.1, 1],
  "workers": 2,
  "initial_perturbation_deg": 5
}
`

func newTestFS(t *testing.T) *fsutil.MemoryFileSystem {
	t.Helper()
	fs := fsutil.NewMemoryFileSystem()
	require.NoError(t, fs.WriteFile("sense.json", []byte(testConfig), 0o644))
	return fs
}

func testOptions() options {
	return options{configPath: "sense.json", seed: -1, samples: 200, assetsHost: report.DefaultAssetsHost}
}

func TestRun_Synthetic(t *testing.T) {
	fs := newTestFS(t)
	clock := timeutil.NewMockClock(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))

	require.NoError(t, run(context.Background(), fs, clock, testOptions()))

	for _, f := range []string{
		"out/quat/0/0000.csv",
		"out/quat/0/0001.csv",
		"out/euler/0/0001.csv",
		filepath.Join("out/quat", sweep.ConvergenceFile),
		filepath.Join("out/quat", sweep.AccuracyFile),
		filepath.Join("out/quat", sweep.SummaryFile),
		filepath.Join("out/quat/report", report.ConvergencePlot),
		filepath.Join("out/quat/report", report.AccuracyPlot),
		filepath.Join("out/quat/report", report.HTMLReport),
	} {
		assert.True(t, fs.Exists(f), "missing %s", f)
	}

	s, err := sweep.ReadSummary(fs, "out/quat/summary.json")
	require.NoError(t, err)
	assert.Equal(t, 200, s.Samples)
	assert.Equal(t, []float64{0.1, 1}, s.Gains)
	assert.Equal(t, "synthetic", s.DataSource)
}

func TestRun_Overrides(t *testing.T) {
	fs := newTestFS(t)
	opts := testOptions()
	opts.repetitions = 2
	opts.gains = "0.5"
	opts.reportDir = "-"

	require.NoError(t, run(context.Background(), fs, timeutil.RealClock{}, opts))

	s, err := sweep.ReadSummary(fs, "out/quat/summary.json")
	require.NoError(t, err)
	assert.Equal(t, 2, s.Repetitions)
	assert.Equal(t, []float64{0.5}, s.Gains)
	assert.True(t, fs.Exists("out/quat/1/0000.csv"))
	assert.False(t, fs.Exists("out/quat/report/report.html"))

	opts.reportOnly = "out/quat/summary.json"
	opts.reportDir = ""
	require.NoError(t, run(context.Background(), fs, timeutil.RealClock{}, opts))
	assert.True(t, fs.Exists("out/quat/report/report.html"))
}

func TestRun_Errors(t *testing.T) {
	fs := newTestFS(t)

	opts := testOptions()
	opts.configPath = "missing.json"
	assert.Error(t, run(context.Background(), fs, timeutil.RealClock{}, opts))

	opts = testOptions()
	opts.gains = "a,b"
	assert.Error(t, run(context.Background(), fs, timeutil.RealClock{}, opts))

	opts = testOptions()
	opts.reportOnly = "nope/summary.json"
	assert.Error(t, run(context.Background(), fs, timeutil.RealClock{}, opts))
}

func TestLoadDataset_Recorded(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	p := synth.DefaultParams()
	p.Samples = 50
	p.Still = 10
	d, err := synth.Generate(p)
	require.NoError(t, err)

	paths := sensordata.Paths{GyroData: "g.dat", AccData: "a.dat", MagData: "m.dat", QuatData: "q.dat"}
	require.NoError(t, sensordata.Save(fs, paths, d))

	cfg := config.EmptySweepConfig()
	cfg.DataSource = &[]string{config.DataSourceMadgwick}[0]
	cfg.GyroData, cfg.AccData, cfg.MagData, cfg.QuatData = &paths.GyroData, &paths.AccData, &paths.MagData, &paths.QuatData
	accFromTruth := true
	cfg.AccFromTruth = &accFromTruth

	got, err := loadDataset(fs, cfg, 0)
	require.NoError(t, err)
	require.Equal(t, 50, got.Len())
	assert.InDelta(t, d.Gyro[20].X*3.141592653589793/180, got.Gyro[20].X, 1e-9)
	assert.InDelta(t, -1, got.Acc[0].Z, 1e-9)

	noTruth := paths
	noTruth.QuatData = ""
	cfg.QuatData = &noTruth.QuatData
	cfg.AccFromTruth = nil
	_, err = loadDataset(fs, cfg, 0)
	assert.Error(t, err)
}
