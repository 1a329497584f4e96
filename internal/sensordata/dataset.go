// Package sensordata holds recorded or synthetic IMU streams and moves
// them in and out of tagged .dat files.
package sensordata

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/imufusion/internal/fusion"
	"github.com/banshee-data/imufusion/internal/quaternion"
)

// ErrSampleCount is returned when a stream is shorter than the declared
// number of samples or streams disagree in length.
var ErrSampleCount = errors.New("not enough samples")

// Dataset is a set of time-aligned sensor streams. Truth holds the
// reference orientation per sample and may be empty for live recordings.
type Dataset struct {
	Gyro  []r3.Vec
	Acc   []r3.Vec
	Mag   []r3.Vec
	Truth []quaternion.Quaternion
}

// Len returns the number of samples.
func (d *Dataset) Len() int {
	return len(d.Gyro)
}

// Validate checks that every stream has the same length.
func (d *Dataset) Validate() error {
	n := len(d.Gyro)
	if len(d.Acc) != n || len(d.Mag) != n {
		return fmt.Errorf("%w: gyro %d, acc %d, mag %d", ErrSampleCount, n, len(d.Acc), len(d.Mag))
	}
	if len(d.Truth) != 0 && len(d.Truth) != n {
		return fmt.Errorf("%w: gyro %d, quat %d", ErrSampleCount, n, len(d.Truth))
	}
	return nil
}

// Sample returns sample i with the given period.
func (d *Dataset) Sample(i int, dt float64) fusion.Sample {
	return fusion.Sample{Gyro: d.Gyro[i], Acc: d.Acc[i], Mag: d.Mag[i], Dt: dt}
}

// GyroToRadians returns a copy with gyroscope rates converted from deg/s.
func (d *Dataset) GyroToRadians() *Dataset {
	out := d.clone()
	for i, g := range out.Gyro {
		out.Gyro[i] = r3.Scale(math.Pi/180, g)
	}
	return out
}

// FlipX returns a copy with acc and mag rotated 180° about x, the frame
// change between the Madgwick dataset and the convention of the other
// filters. Gyro and truth are left alone.
func (d *Dataset) FlipX() *Dataset {
	out := d.clone()
	for i := range out.Acc {
		out.Acc[i] = fusion.FlipX(out.Acc[i])
		out.Mag[i] = fusion.FlipX(out.Mag[i])
	}
	return out
}

// AccFromTruth returns a copy whose accelerometer stream is gravity
// (0,0,-1) expressed in the sensor frame of each truth orientation.
func (d *Dataset) AccFromTruth() (*Dataset, error) {
	if len(d.Truth) != len(d.Gyro) {
		return nil, fmt.Errorf("%w: ideal accelerometer needs %d truth samples, have %d",
			ErrSampleCount, len(d.Gyro), len(d.Truth))
	}
	out := d.clone()
	down := r3.Vec{Z: -1}
	for i, q := range out.Truth {
		out.Acc[i] = q.RotateInverse(down)
	}
	return out, nil
}

func (d *Dataset) clone() *Dataset {
	return &Dataset{
		Gyro:  append([]r3.Vec(nil), d.Gyro...),
		Acc:   append([]r3.Vec(nil), d.Acc...),
		Mag:   append([]r3.Vec(nil), d.Mag...),
		Truth: append([]quaternion.Quaternion(nil), d.Truth...),
	}
}
