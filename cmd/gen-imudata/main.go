// Command gen-imudata writes a synthetic recording as tagged .dat files:
// a still period followed by a random walk of the orientation, with
// optional white noise on every sensor.
package main

import (
	"flag"
	"fmt"
	"log"
	"path/filepath"

	"github.com/banshee-data/imufusion/internal/fsutil"
	"github.com/banshee-data/imufusion/internal/sensordata"
	"github.com/banshee-data/imufusion/internal/synth"
	"github.com/banshee-data/imufusion/internal/version"
)

type options struct {
	out    string
	params synth.Params
	walk   string
}

func main() {
	opts := options{params: synth.DefaultParams()}
	p := &opts.params

	flag.StringVar(&opts.out, "out", "data", "output directory for gyro.dat, acc.dat, mag.dat and quat.dat")
	flag.IntVar(&p.Samples, "samples", p.Samples, "number of samples")
	flag.IntVar(&p.Still, "still", p.Still, "leading samples without motion")
	flag.Float64Var(&p.SamplePeriod, "dt", p.SamplePeriod, "sample period in seconds")
	flag.Float64Var(&p.GyroNoise, "gyro-noise", p.GyroNoise, "gyroscope noise sigma in rad/s")
	flag.Float64Var(&p.AccNoise, "acc-noise", p.AccNoise, "accelerometer noise sigma")
	flag.Float64Var(&p.MagNoise, "mag-noise", p.MagNoise, "magnetometer noise sigma")
	flag.StringVar(&opts.walk, "walk", "", "random walk sigma per axis as roll,pitch,yaw in rad (default roll only)")
	flag.BoolVar(&p.GyroDegrees, "gyro-degrees", p.GyroDegrees, "write gyroscope rates in deg/s")
	flag.Uint64Var(&p.Seed, "seed", p.Seed, "random seed")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}
	if err := run(fsutil.OSFileSystem{}, opts); err != nil {
		log.Fatalf("gen-imudata: %v", err)
	}
}

// Paths returns the tagged file names written under dir.
func Paths(dir string) sensordata.Paths {
	return sensordata.Paths{
		GyroData: filepath.Join(dir, "gyro.dat"),
		AccData:  filepath.Join(dir, "acc.dat"),
		MagData:  filepath.Join(dir, "mag.dat"),
		QuatData: filepath.Join(dir, "quat.dat"),
	}
}

func run(fs fsutil.FileSystem, opts options) error {
	if opts.walk != "" {
		sigma, err := parseVec(opts.walk)
		if err != nil {
			return fmt.Errorf("invalid -walk: %w", err)
		}
		opts.params.WalkSigma = sigma
	}

	d, err := synth.Generate(opts.params)
	if err != nil {
		return err
	}
	if err := fs.MkdirAll(opts.out, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := sensordata.Save(fs, Paths(opts.out), d); err != nil {
		return fmt.Errorf("failed to write dataset: %w", err)
	}
	log.Printf("wrote %d samples (%.1f s) to %s", d.Len(), float64(d.Len())*opts.params.SamplePeriod, opts.out)
	return nil
}
