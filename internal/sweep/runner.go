package sweep

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/banshee-data/imufusion/internal/config"
	"github.com/banshee-data/imufusion/internal/fsutil"
	"github.com/banshee-data/imufusion/internal/fusion"
	"github.com/banshee-data/imufusion/internal/monitoring"
	"github.com/banshee-data/imufusion/internal/quaternion"
	"github.com/banshee-data/imufusion/internal/sensordata"
	"github.com/banshee-data/imufusion/internal/timeutil"
	"github.com/banshee-data/imufusion/internal/version"
)

// ErrNoTruth is returned when a dataset has no reference orientation.
var ErrNoTruth = errors.New("dataset has no reference orientation")

// ErrNoGains is returned when the settings name no gain to sweep.
var ErrNoGains = errors.New("no gains to sweep")

// Status is the lifecycle state of a Runner.
type Status string

const (
	StatusIdle     Status = "idle"
	StatusRunning  Status = "running"
	StatusComplete Status = "complete"
	StatusError    Status = "error"
)

// Settings are the resolved parameters of a sweep.
type Settings struct {
	DataSource      string
	Gains           []float64
	Repetitions     int
	Workers         int
	Seed            uint64
	PerturbationDeg float64
	SamplePeriod    float64
	ResultsDir      string
	EulerDir        string
	Filter          fusion.Options

	// MadgwickFrame feeds the Madgwick-original filter frame-converted
	// acc and mag.
	MadgwickFrame bool

	Analysis AnalysisParams
}

// SettingsFromConfig resolves a SweepConfig into Settings.
func SettingsFromConfig(cfg *config.SweepConfig) Settings {
	gains := cfg.Gains
	if len(gains) == 0 {
		gains = LogGrid(cfg.GetGainMin(), cfg.GetGainMax())
	}
	ref := cfg.GetMagRef()
	opts := fusion.DefaultOptions()
	opts.MagReference = quaternion.New(ref[0], ref[1], ref[2], ref[3])
	opts.FieldMin = cfg.GetFieldMin()
	opts.FieldMax = cfg.GetFieldMax()
	opts.RejectField = cfg.GetRejectField()
	opts.LegacyFieldResidual = cfg.GetLegacyFieldResidual()

	return Settings{
		DataSource:      cfg.GetDataSource(),
		Gains:           gains,
		Repetitions:     cfg.GetRepetitions(),
		Workers:         cfg.GetWorkers(),
		Seed:            uint64(cfg.GetSeed()),
		PerturbationDeg: cfg.GetInitialPerturbationDeg(),
		SamplePeriod:    cfg.GetSamplePeriod(),
		ResultsDir:      cfg.GetResultsDir(),
		EulerDir:        cfg.GetEulerDir(),
		Filter:          opts,
		MadgwickFrame:   cfg.IsMadgwickData(),
		Analysis: AnalysisParams{
			SamplePeriod: cfg.GetSamplePeriod(),
			ThresholdDeg: cfg.GetConvergenceThresholdDeg(),
			Window:       cfg.GetConvergenceWindow(),
		},
	}
}

// State is a snapshot of a Runner's progress.
type State struct {
	Status        Status     `json:"status"`
	RunID         string     `json:"run_id,omitempty"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	TotalRuns     int        `json:"total_runs"`
	CompletedRuns int        `json:"completed_runs"`
	Error         string     `json:"error,omitempty"`
}

// Runner executes a sweep. Each gain of a repetition is independent and
// runs on its own goroutine, bounded by Settings.Workers.
type Runner struct {
	fs       fsutil.FileSystem
	clock    timeutil.Clock
	settings Settings

	mu    sync.RWMutex
	state State
}

// NewRunner creates a Runner that writes through fs.
func NewRunner(fs fsutil.FileSystem, clock timeutil.Clock, s Settings) *Runner {
	if s.Workers < 1 {
		s.Workers = 1
	}
	if s.Repetitions < 1 {
		s.Repetitions = 1
	}
	return &Runner{fs: fs, clock: clock, settings: s, state: State{Status: StatusIdle}}
}

// State returns a copy of the current progress.
func (r *Runner) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

func (r *Runner) fail(err error) error {
	r.mu.Lock()
	r.state.Status = StatusError
	r.state.Error = err.Error()
	r.mu.Unlock()
	return err
}

// check rejects inputs a sweep cannot run on.
func (r *Runner) check(d *sensordata.Dataset) error {
	if err := d.Validate(); err != nil {
		return err
	}
	if len(d.Truth) == 0 {
		return ErrNoTruth
	}
	if d.Len() < 2 {
		return fmt.Errorf("%w: need at least 2 samples, have %d", sensordata.ErrSampleCount, d.Len())
	}
	if len(r.settings.Gains) == 0 {
		return ErrNoGains
	}
	return nil
}

// Run sweeps every gain over d for each repetition, writes the per-gain
// CSV files, the aggregated convergence and accuracy files and a JSON
// summary, and returns the summary.
func (r *Runner) Run(ctx context.Context, d *sensordata.Dataset) (*Summary, error) {
	s := r.settings
	if err := r.check(d); err != nil {
		return nil, r.fail(err)
	}

	moData := d
	if s.MadgwickFrame {
		moData = d.FlipX()
	}

	started := r.clock.Now()
	runID := uuid.NewString()
	r.mu.Lock()
	r.state = State{
		Status:    StatusRunning,
		RunID:     runID,
		StartedAt: &started,
		TotalRuns: s.Repetitions * len(s.Gains),
	}
	r.mu.Unlock()
	monitoring.Logf("sweep %s: %d gains x %d repetitions over %d samples", runID, len(s.Gains), s.Repetitions, d.Len())

	reps := make([][]GainResult, s.Repetitions)
	for rep := 0; rep < s.Repetitions; rep++ {
		results, err := r.runRepetition(ctx, rep, d, moData)
		if err != nil {
			return nil, r.fail(fmt.Errorf("repetition %d: %w", rep, err))
		}
		reps[rep] = results
	}

	agg := Aggregate(reps)
	if err := WriteConvergence(r.fs, filepath.Join(s.ResultsDir, ConvergenceFile), agg); err != nil {
		return nil, r.fail(err)
	}
	if err := WriteAccuracy(r.fs, filepath.Join(s.ResultsDir, AccuracyFile), agg); err != nil {
		return nil, r.fail(err)
	}

	completed := r.clock.Now()
	variants := make([]string, len(Variants))
	for i, k := range Variants {
		variants[i] = string(k)
	}
	summary := &Summary{
		RunID:       runID,
		DataSource:  s.DataSource,
		StartedAt:   started,
		CompletedAt: completed,
		Samples:     d.Len(),
		Repetitions: s.Repetitions,
		Variants:    variants,
		Gains:       s.Gains,
		Results:     summarize(agg),
		Version:     version.Version,
	}
	if err := WriteSummary(r.fs, filepath.Join(s.ResultsDir, SummaryFile), summary); err != nil {
		return nil, r.fail(err)
	}

	r.mu.Lock()
	r.state.Status = StatusComplete
	r.state.CompletedAt = &completed
	r.mu.Unlock()
	monitoring.Logf("sweep %s complete in %s", runID, completed.Sub(started))
	return summary, nil
}

func (r *Runner) runRepetition(ctx context.Context, rep int, d, moData *sensordata.Dataset) ([]GainResult, error) {
	s := r.settings
	results := make([]GainResult, len(s.Gains))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.Workers)
	for j, gain := range s.Gains {
		g.Go(func() error {
			q0 := Perturb(d.Truth[0], s.PerturbationDeg, s.Seed, rep, j)
			t, err := RunGain(ctx, d, moData, gain, q0, s.SamplePeriod, s.Filter)
			if err != nil {
				return fmt.Errorf("gain %g: %w", gain, err)
			}
			name := GainFileName(j)
			if err := WriteTrace(r.fs,
				filepath.Join(RepetitionDir(s.ResultsDir, rep), name),
				filepath.Join(RepetitionDir(s.EulerDir, rep), name), t); err != nil {
				return err
			}
			results[j] = Analyze(t, s.Analysis)

			r.mu.Lock()
			r.state.CompletedRuns++
			done, total := r.state.CompletedRuns, r.state.TotalRuns
			r.mu.Unlock()
			monitoring.Debugf("rep %d gain %g done (%d/%d)", rep, gain, done, total)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// RunGain runs every variant at one gain from q0. Row i of the returned
// trace pairs truth[i+1] with the estimates after processing sample i.
// moData is the dataset the Madgwick-original filter sees.
func RunGain(ctx context.Context, d, moData *sensordata.Dataset, gain float64, q0 quaternion.Quaternion, dt float64, opts fusion.Options) (*Trace, error) {
	filters := make([]fusion.Filter, len(Variants))
	for v, kind := range Variants {
		f, err := fusion.New(kind, gain, opts)
		if err != nil {
			return nil, err
		}
		filters[v] = f
	}

	n := d.Len()
	t := NewTrace(gain, n-1)
	est := make([]quaternion.Quaternion, len(filters))
	for v := range est {
		est[v] = q0
	}
	for i := 0; i < n-1; i++ {
		if i%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		for v, f := range filters {
			src := d
			if Variants[v] == fusion.KindMadgwickOriginal {
				src = moData
			}
			est[v] = fusion.Step(f, src.Sample(i, dt), est[v])
		}
		t.Append(d.Truth[i+1], est)
	}
	return t, nil
}

// Perturb rotates q by a random axis and an angle drawn uniformly from
// [-maxDeg, maxDeg]. The draw depends only on seed, rep and index.
func Perturb(q quaternion.Quaternion, maxDeg float64, seed uint64, rep, index int) quaternion.Quaternion {
	if maxDeg == 0 {
		return q
	}
	src := rand.NewPCG(seed, uint64(rep)<<32|uint64(index))
	unit := distuv.Uniform{Min: -1, Max: 1, Src: src}
	axis := r3.Vec{X: unit.Rand(), Y: unit.Rand(), Z: unit.Rand()}
	angle := unit.Rand() * maxDeg * math.Pi / 180
	return quaternion.Mul(quaternion.FromAxisAngle(axis, angle), q).Normalized()
}
