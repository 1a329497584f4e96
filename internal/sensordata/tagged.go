package sensordata

import (
	"bytes"
	"fmt"
	"strconv"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/imufusion/internal/fsutil"
	"github.com/banshee-data/imufusion/internal/keyfile"
	"github.com/banshee-data/imufusion/internal/monitoring"
	"github.com/banshee-data/imufusion/internal/quaternion"
)

const (
	globalSection = "GLOBAL_DATA"
	countKey      = "numSamples"
)

// Paths names the four tagged files of a recording. QuatData may be empty.
type Paths struct {
	GyroData string
	AccData  string
	MagData  string
	QuatData string
}

type stream struct {
	section string
	prefix  string
}

var (
	gyroStream = stream{"GYRO_DATA", "gyro"}
	accStream  = stream{"ACC_DATA", "acc"}
	magStream  = stream{"MAG_DATA", "mag"}
	quatStream = stream{"QUAT_DATA", "quat"}
)

// Load reads a dataset from tagged files. The sample count declared in the
// gyroscope file governs; every other file must hold at least that many
// values per column and longer columns are truncated.
func Load(fs fsutil.FileSystem, p Paths) (*Dataset, error) {
	gyroFile, err := readData(fs, p.GyroData)
	if err != nil {
		return nil, err
	}
	n, err := keyfile.Int(gyroFile, globalSection, countKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read sample count from %s: %w", p.GyroData, err)
	}
	if n < 0 {
		return nil, fmt.Errorf("%w: %s declares %d samples", ErrSampleCount, p.GyroData, n)
	}

	d := &Dataset{}
	if d.Gyro, err = readVectors(gyroFile, gyroStream, n); err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", p.GyroData, err)
	}
	for _, s := range []struct {
		path string
		st   stream
		dst  *[]r3.Vec
	}{
		{p.AccData, accStream, &d.Acc},
		{p.MagData, magStream, &d.Mag},
	} {
		f, err := readData(fs, s.path)
		if err != nil {
			return nil, err
		}
		if *s.dst, err = readVectors(f, s.st, n); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", s.path, err)
		}
	}

	if p.QuatData != "" {
		f, err := readData(fs, p.QuatData)
		if err != nil {
			return nil, err
		}
		cols, err := readColumns(f, quatStream, []string{"w", "x", "y", "z"}, n)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", p.QuatData, err)
		}
		d.Truth = make([]quaternion.Quaternion, n)
		for i := range d.Truth {
			d.Truth[i] = quaternion.New(cols[0][i], cols[1][i], cols[2][i], cols[3][i])
		}
	}

	monitoring.Debugf("loaded %d samples from %s", n, p.GyroData)
	return d, nil
}

// Save writes d as tagged files. Truth is written only when QuatData is
// set and the dataset has one.
func Save(fs fsutil.FileSystem, p Paths, d *Dataset) error {
	if err := d.Validate(); err != nil {
		return err
	}
	n := d.Len()
	for _, s := range []struct {
		path string
		st   stream
		vecs []r3.Vec
	}{
		{p.GyroData, gyroStream, d.Gyro},
		{p.AccData, accStream, d.Acc},
		{p.MagData, magStream, d.Mag},
	} {
		f := newDataFile(n)
		writeColumns(f, s.st, []string{"x", "y", "z"}, func(i int) []float64 {
			v := s.vecs[i]
			return []float64{v.X, v.Y, v.Z}
		}, n)
		if err := writeData(fs, s.path, f); err != nil {
			return err
		}
	}

	if p.QuatData == "" || len(d.Truth) == 0 {
		return nil
	}
	f := newDataFile(n)
	writeColumns(f, quatStream, []string{"w", "x", "y", "z"}, func(i int) []float64 {
		return d.Truth[i].Slice()
	}, n)
	return writeData(fs, p.QuatData, f)
}

func newDataFile(n int) *keyfile.DataFile {
	f := keyfile.NewDataFile()
	f.Set(globalSection, countKey, strconv.Itoa(n))
	return f
}

func readData(fs fsutil.FileSystem, path string) (*keyfile.DataFile, error) {
	raw, err := fs.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read data file: %w", err)
	}
	f, err := keyfile.ParseData(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return f, nil
}

func writeData(fs fsutil.FileSystem, path string, f *keyfile.DataFile) error {
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	if err := fs.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write data file: %w", err)
	}
	return nil
}

func readVectors(f keyfile.Store, st stream, n int) ([]r3.Vec, error) {
	cols, err := readColumns(f, st, []string{"x", "y", "z"}, n)
	if err != nil {
		return nil, err
	}
	out := make([]r3.Vec, n)
	for i := range out {
		out[i] = r3.Vec{X: cols[0][i], Y: cols[1][i], Z: cols[2][i]}
	}
	return out, nil
}

func readColumns(f keyfile.Store, st stream, axes []string, n int) ([][]float64, error) {
	cols := make([][]float64, len(axes))
	for i, axis := range axes {
		key := st.prefix + "_" + axis
		vals, err := keyfile.Floats(f, st.section, key)
		if err != nil {
			return nil, err
		}
		if len(vals) < n {
			return nil, fmt.Errorf("%w: %s/%s has %d of %d", ErrSampleCount, st.section, key, len(vals), n)
		}
		cols[i] = vals[:n]
	}
	return cols, nil
}

func writeColumns(f keyfile.Store, st stream, axes []string, row func(int) []float64, n int) {
	cols := make([][]float64, len(axes))
	for i := range cols {
		cols[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j, v := range row(i) {
			cols[j][i] = v
		}
	}
	for j, axis := range axes {
		keyfile.SetFloats(f, st.section, st.prefix+"_"+axis, cols[j])
	}
}
