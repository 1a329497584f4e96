// Package synth generates synthetic IMU recordings with a known reference
// orientation: a still period followed by a Wiener-process random walk of
// the Euler angles, with white Gaussian noise on each sensor.
package synth

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/banshee-data/imufusion/internal/quaternion"
	"github.com/banshee-data/imufusion/internal/sensordata"
)

// Params controls the generated trajectory and sensor noise. Noise values
// are standard deviations in the sensor's units.
type Params struct {
	Samples      int
	Still        int // leading samples without motion
	SamplePeriod float64

	// WalkSigma is the per-step standard deviation of the roll, pitch and
	// yaw walks before the 1/sqrt(Samples-Still) scaling.
	WalkSigma r3.Vec

	GyroNoise float64 // rad/s
	AccNoise  float64
	MagNoise  float64

	// MagReference supplies the earth field direction (x and z parts).
	MagReference quaternion.Quaternion

	// GyroDegrees writes angular rates in deg/s.
	GyroDegrees bool

	Seed uint64
}

// DefaultParams returns 500 s at 100 Hz: 100 s still, then a roll walk.
// Only the magnetometer is noisy by default.
func DefaultParams() Params {
	return Params{
		Samples:      50000,
		Still:        10000,
		SamplePeriod: 0.01,
		WalkSigma:    r3.Vec{X: 0.3},
		MagNoise:     0.005,
		MagReference: quaternion.New(0, 0.391801903, 0, 0.920049601),
		GyroDegrees:  true,
		Seed:         1,
	}
}

// Validate checks p for values Generate cannot use.
func (p Params) Validate() error {
	if p.Samples < 2 {
		return fmt.Errorf("samples must be at least 2, got %d", p.Samples)
	}
	if p.Still < 0 || p.Still > p.Samples {
		return fmt.Errorf("still must be between 0 and %d, got %d", p.Samples, p.Still)
	}
	if p.SamplePeriod <= 0 {
		return fmt.Errorf("sample period must be positive, got %f", p.SamplePeriod)
	}
	if p.GyroNoise < 0 || p.AccNoise < 0 || p.MagNoise < 0 {
		return errors.New("noise must be non-negative")
	}
	if math.Hypot(p.MagReference.Imag, p.MagReference.Kmag) == 0 {
		return errors.New("magnetic reference needs a non-zero x or z component")
	}
	return nil
}

// Generate builds a dataset from p. The same Params always yield the same
// dataset.
func Generate(p Params) (*sensordata.Dataset, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid synthetic parameters: %w", err)
	}
	src := rand.NewPCG(p.Seed, p.Seed^0x9e3779b97f4a7c15)

	angles := walk(p, src)
	truth := make([]quaternion.Quaternion, p.Samples)
	truth[0] = quaternion.Identity()
	for i := 1; i < p.Samples; i++ {
		d := r3.Sub(angles[i], angles[i-1])
		step := quaternion.FromEuler(d.X, d.Y, d.Z)
		truth[i] = quaternion.Mul(truth[i-1], step).Normalized()
	}

	bx, bz := p.MagReference.Imag, p.MagReference.Kmag
	h := math.Hypot(bx, bz)
	field := r3.Vec{X: bx / h, Z: bz / h}
	down := r3.Vec{Z: -1}

	gyroNoise := newNoise(p.GyroNoise, src)
	accNoise := newNoise(p.AccNoise, src)
	magNoise := newNoise(p.MagNoise, src)

	d := &sensordata.Dataset{
		Gyro:  make([]r3.Vec, p.Samples),
		Acc:   make([]r3.Vec, p.Samples),
		Mag:   make([]r3.Vec, p.Samples),
		Truth: truth,
	}
	for i, q := range truth {
		var rate r3.Vec
		if i+1 < p.Samples {
			rate = bodyRate(q, truth[i+1], p.SamplePeriod)
		}
		rate = r3.Add(rate, gyroNoise.vec())
		if p.GyroDegrees {
			rate = r3.Scale(180/math.Pi, rate)
		}
		d.Gyro[i] = rate
		d.Acc[i] = r3.Add(q.RotateInverse(down), accNoise.vec())
		d.Mag[i] = r3.Add(q.RotateInverse(field), magNoise.vec())
	}
	return d, nil
}

// walk returns absolute Euler angles: zero during the still period, then
// w[i] = w[i-1] + N(0, sigma)/sqrt(n) per axis.
func walk(p Params, src rand.Source) []r3.Vec {
	out := make([]r3.Vec, p.Samples)
	moving := p.Samples - p.Still
	if moving < 1 {
		return out
	}
	scale := 1 / math.Sqrt(float64(moving))
	steps := [3]distuv.Normal{
		{Mu: 0, Sigma: p.WalkSigma.X, Src: src},
		{Mu: 0, Sigma: p.WalkSigma.Y, Src: src},
		{Mu: 0, Sigma: p.WalkSigma.Z, Src: src},
	}
	draw := func(n distuv.Normal) float64 {
		if n.Sigma == 0 {
			return 0
		}
		return n.Rand() * scale
	}
	for i := p.Still + 1; i < p.Samples; i++ {
		out[i] = r3.Add(out[i-1], r3.Vec{X: draw(steps[0]), Y: draw(steps[1]), Z: draw(steps[2])})
	}
	return out
}

// bodyRate returns the constant body-frame rate that carries q to next
// over dt.
func bodyRate(q, next quaternion.Quaternion, dt float64) r3.Vec {
	rel := quaternion.Mul(q.Conj(), next)
	if rel.Real < 0 {
		rel = quaternion.Scale(-1, rel)
	}
	v := rel.Vector()
	sinHalf := r3.Norm(v)
	if sinHalf == 0 {
		return r3.Vec{}
	}
	angle := 2 * math.Atan2(sinHalf, rel.Real)
	return r3.Scale(angle/(sinHalf*dt), v)
}

type noise struct {
	dist distuv.Normal
	off  bool
}

func newNoise(sigma float64, src rand.Source) noise {
	return noise{dist: distuv.Normal{Mu: 0, Sigma: sigma, Src: src}, off: sigma == 0}
}

func (n noise) vec() r3.Vec {
	if n.off {
		return r3.Vec{}
	}
	return r3.Vec{X: n.dist.Rand(), Y: n.dist.Rand(), Z: n.dist.Rand()}
}
