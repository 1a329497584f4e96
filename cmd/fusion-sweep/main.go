// Command fusion-sweep runs every fusion filter over a recording for a
// grid of gains and writes per-gain traces, convergence and accuracy
// tables, a JSON summary and a PNG/HTML report.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/banshee-data/imufusion/internal/config"
	"github.com/banshee-data/imufusion/internal/fsutil"
	"github.com/banshee-data/imufusion/internal/monitoring"
	"github.com/banshee-data/imufusion/internal/quaternion"
	"github.com/banshee-data/imufusion/internal/report"
	"github.com/banshee-data/imufusion/internal/sensordata"
	"github.com/banshee-data/imufusion/internal/sweep"
	"github.com/banshee-data/imufusion/internal/synth"
	"github.com/banshee-data/imufusion/internal/timeutil"
	"github.com/banshee-data/imufusion/internal/version"
)

type options struct {
	configPath  string
	repetitions int
	workers     int
	gains       string
	reportDir   string
	assetsHost  string
	seed        int64
	samples     int
	reportOnly  string
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", config.DefaultConfigPath, "sweep configuration (.json or legacy .cfg)")
	flag.IntVar(&opts.repetitions, "repetitions", 0, "override the number of repetitions")
	flag.IntVar(&opts.workers, "workers", 0, "override the number of gains run concurrently")
	flag.StringVar(&opts.gains, "gains", "", "gains to sweep: a,b,c or min:max or start:end:step (default log grid from config)")
	flag.StringVar(&opts.reportDir, "report-dir", "", "directory for the PNG/HTML report (default <results_dir>/report, \"-\" to skip)")
	flag.StringVar(&opts.assetsHost, "assets-host", report.DefaultAssetsHost, "host serving the echarts javascript assets")
	flag.Int64Var(&opts.seed, "seed", -1, "override the perturbation seed")
	flag.IntVar(&opts.samples, "samples", 0, "number of synthetic samples when data_source is synthetic (default generator length)")
	flag.StringVar(&opts.reportOnly, "report-only", "", "render the report for an existing summary.json and exit")
	verbose := flag.Bool("verbose", false, "log per-gain progress")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}
	monitoring.SetVerbose(*verbose)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, fsutil.OSFileSystem{}, timeutil.RealClock{}, opts); err != nil {
		log.Fatalf("fusion-sweep: %v", err)
	}
}

func run(ctx context.Context, fs fsutil.FileSystem, clock timeutil.Clock, opts options) error {
	if opts.reportOnly != "" {
		s, err := sweep.ReadSummary(fs, opts.reportOnly)
		if err != nil {
			return err
		}
		dir := opts.reportDir
		if dir == "" || dir == "-" {
			dir = filepath.Join(filepath.Dir(opts.reportOnly), "report")
		}
		return report.Render(fs, dir, s, opts.assetsHost)
	}

	cfg, err := config.Load(fs, opts.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if opts.repetitions > 0 {
		cfg.Repetitions = &opts.repetitions
	}
	if opts.workers > 0 {
		cfg.Workers = &opts.workers
	}
	if opts.seed >= 0 {
		cfg.Seed = &opts.seed
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	settings := sweep.SettingsFromConfig(cfg)
	if opts.gains != "" {
		gains, err := sweep.ParseGains(opts.gains)
		if err != nil {
			return fmt.Errorf("invalid -gains: %w", err)
		}
		settings.Gains = gains
	}

	d, err := loadDataset(fs, cfg, opts.samples)
	if err != nil {
		return err
	}

	log.Printf("sweeping %d gains x %d repetitions (%s, %d samples)",
		len(settings.Gains), settings.Repetitions, settings.DataSource, d.Len())
	summary, err := sweep.NewRunner(fs, clock, settings).Run(ctx, d)
	if err != nil {
		return err
	}
	log.Printf("run %s written to %s", summary.RunID, settings.ResultsDir)

	if opts.reportDir == "-" {
		return nil
	}
	dir := opts.reportDir
	if dir == "" {
		dir = filepath.Join(settings.ResultsDir, "report")
	}
	return report.Render(fs, dir, summary, opts.assetsHost)
}

// loadDataset reads the configured recording, or generates one when the
// data source is synthetic and no recording exists, and applies the
// configured unit and accelerometer conversions.
func loadDataset(fs fsutil.FileSystem, cfg *config.SweepConfig, samples int) (*sensordata.Dataset, error) {
	paths := sensordata.Paths{
		GyroData: cfg.GetGyroData(),
		AccData:  cfg.GetAccData(),
		MagData:  cfg.GetMagData(),
		QuatData: cfg.GetQuatData(),
	}

	var d *sensordata.Dataset
	var err error
	if cfg.GetDataSource() == "synthetic" && !fs.Exists(paths.GyroData) {
		p := synth.DefaultParams()
		ref := cfg.GetMagRef()
		p.MagReference = quaternion.New(ref[0], ref[1], ref[2], ref[3])
		p.SamplePeriod = cfg.GetSamplePeriod()
		p.GyroDegrees = cfg.GetGyroInDegrees()
		p.Seed = uint64(cfg.GetSeed())
		if samples > 0 {
			p.Samples = samples
			p.Still = min(p.Still, samples/5)
		}
		monitoring.Logf("generating %d synthetic samples", p.Samples)
		d, err = synth.Generate(p)
	} else {
		d, err = sensordata.Load(fs, paths)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load dataset: %w", err)
	}

	if cfg.GetGyroInDegrees() {
		d = d.GyroToRadians()
	}
	if cfg.GetAccFromTruth() {
		if d, err = d.AccFromTruth(); err != nil {
			return nil, err
		}
	}
	if len(d.Truth) == 0 {
		return nil, fmt.Errorf("%w: set quat_data to the reference recording", sweep.ErrNoTruth)
	}
	return d, nil
}
