package fusion

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/imufusion/internal/quaternion"
)

const testDt = 0.01

// earthField is the unit earth magnetic field matching DefaultOptions.
var earthField = r3.Vec{X: 0.391801903, Z: 0.920049601}

// measurements returns the noise-free accelerometer and magnetometer
// readings of a sensor held at orientation q.
func measurements(q quaternion.Quaternion) (acc, mag r3.Vec) {
	return q.RotateInverse(gravity), q.RotateInverse(earthField)
}

func newFilter(t *testing.T, kind Kind, gain float64) Filter {
	t.Helper()
	f, err := New(kind, gain, DefaultOptions())
	require.NoError(t, err)
	return f
}

// perturb rotates q by angle radians about a random axis.
func perturb(rng *rand.Rand, q quaternion.Quaternion, angle float64) quaternion.Quaternion {
	axis := r3.Vec{X: rng.NormFloat64(), Y: rng.NormFloat64(), Z: rng.NormFloat64()}
	return quaternion.Mul(quaternion.FromAxisAngle(axis, angle), q)
}

func runStatic(f Filter, q0, truth quaternion.Quaternion, steps int) quaternion.Quaternion {
	acc, mag := measurements(truth)
	q := q0
	for i := 0; i < steps; i++ {
		q = f.Run(r3.Vec{}, acc, mag, testDt, q)
	}
	return q
}

func TestRun_IdentityScenario(t *testing.T) {
	ref := quaternion.New(0, 0.39, 0, 0.92)
	opts := DefaultOptions()
	opts.MagReference = ref

	for _, kind := range Kinds {
		t.Run(string(kind), func(t *testing.T) {
			f, err := New(kind, 2.0, opts)
			require.NoError(t, err)

			got := f.Run(r3.Vec{}, r3.Vec{Z: -1}, r3.Vec{X: 0.39, Z: 0.92}, testDt, quaternion.Identity())
			if diff := cmp.Diff(quaternion.Identity(), got, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
				t.Errorf("orientation drifted (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRun_YawScenario(t *testing.T) {
	for _, kind := range Kinds {
		t.Run(string(kind), func(t *testing.T) {
			f := newFilter(t, kind, 0)
			acc, mag := measurements(quaternion.Identity())

			q := f.Run(r3.Vec{Z: 1}, acc, mag, 0.1, quaternion.Identity())
			roll, pitch, yaw := q.EulerAngles()
			assert.InDelta(t, 0.1, yaw, 1e-3)
			assert.InDelta(t, 0, roll, 1e-12)
			assert.InDelta(t, 0, pitch, 1e-12)
			assert.InDelta(t, 1, q.Norm(), 1e-12)
		})
	}
}

func TestRun_ZeroResidualIsGyroIntegration(t *testing.T) {
	q := quaternion.FromEuler(0.2, -0.1, 0.7)
	gyro := r3.Vec{X: 0.3, Y: -0.2, Z: 1.0}
	acc, mag := measurements(q)
	want := integrate(q, gyroDerivative(q, gyro), testDt)

	for _, kind := range Kinds {
		t.Run(string(kind), func(t *testing.T) {
			f := newFilter(t, kind, 0.1)
			got := f.Run(gyro, acc, mag, testDt, q)
			// QGD keeps a radial term that only rescales the step.
			assert.Less(t, quaternion.AngleBetween(want, got), 1e-4)
		})
	}
}

func TestRun_GainZeroMatchesGyroIntegrator(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	truth := quaternion.Identity()
	start := perturb(rng, truth, 0.3)

	for _, kind := range Kinds {
		t.Run(string(kind), func(t *testing.T) {
			f := newFilter(t, kind, 0)
			q, ref := start, start
			for i := 0; i < 2000; i++ {
				gyro := r3.Vec{X: math.Sin(float64(i) * 0.01), Y: 0.5 * math.Cos(float64(i)*0.003), Z: 0.2}
				truth = integrate(truth, gyroDerivative(truth, gyro), testDt)
				acc, mag := measurements(truth)
				// Noisy, inconsistent readings must have no effect.
				acc = r3.Add(acc, r3.Vec{X: rng.NormFloat64() * 0.1})
				mag = r3.Add(mag, r3.Vec{Y: rng.NormFloat64() * 0.1})

				q = f.Run(gyro, acc, mag, testDt, q)
				ref = integrate(ref, gyroDerivative(ref, gyro), testDt)
			}
			if diff := cmp.Diff(ref, q, cmpopts.EquateApprox(0, 1e-12)); diff != "" {
				t.Errorf("gain 0 diverged from gyro integration (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRun_StaticConvergence(t *testing.T) {
	tests := []struct {
		kind  Kind
		gain  float64
		steps int
	}{
		{KindMadgwickOriginal, 0.1, 2000},
		{KindWilson, 0.1, 2000},
		{KindQGD, 1, 2000},
		{KindMadgwickRevised, 0.5, 2000},
	}
	truth := quaternion.FromEuler(0.4, -0.3, 1.2)
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			rng := rand.New(rand.NewPCG(42, 1))
			start := perturb(rng, truth, 5*math.Pi/180)
			require.InDelta(t, 5*math.Pi/180, quaternion.AngleBetween(start, truth), 1e-9)

			got := runStatic(newFilter(t, tt.kind, tt.gain), start, truth, tt.steps)
			assert.Less(t, quaternion.AngleBetween(got, truth), 0.01)
		})
	}
}

func TestRun_ConvergenceImprovesWithGain(t *testing.T) {
	tests := []struct {
		kind      Kind
		low, high float64
	}{
		{KindMadgwickOriginal, 0.02, 0.2},
		{KindWilson, 0.02, 0.2},
		{KindQGD, 0.5, 5},
		{KindMadgwickRevised, 0.1, 1},
	}
	truth := quaternion.FromEuler(-0.2, 0.1, -2.0)
	const steps = 100
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			rng := rand.New(rand.NewPCG(5, 9))
			start := perturb(rng, truth, 5*math.Pi/180)
			initial := quaternion.AngleBetween(start, truth)

			lowErr := quaternion.AngleBetween(runStatic(newFilter(t, tt.kind, tt.low), start, truth, steps), truth)
			highErr := quaternion.AngleBetween(runStatic(newFilter(t, tt.kind, tt.high), start, truth, steps), truth)

			assert.Less(t, lowErr, initial)
			assert.Less(t, highErr, lowErr)
			assert.Less(t, highErr, 0.01)
		})
	}
}

func TestRun_DegenerateInputsFallBackToGyro(t *testing.T) {
	gyro := r3.Vec{Z: 0.5}
	q := quaternion.FromEuler(0.1, 0.2, 0.3)
	want := integrate(q, gyroDerivative(q, gyro), testDt)

	for _, kind := range Kinds {
		t.Run(string(kind), func(t *testing.T) {
			f := newFilter(t, kind, 1)
			got := f.Run(gyro, r3.Vec{}, r3.Vec{}, testDt, q)
			assert.False(t, got.IsNaN())
			assert.False(t, f.Last().AccValid)
			assert.False(t, f.Last().MagValid)
			assert.Less(t, quaternion.AngleBetween(want, got), 1e-7)
		})
	}
}

func TestRun_MissingMagnetometerKeepsTilt(t *testing.T) {
	truth := quaternion.FromEuler(0.3, -0.2, 0)
	acc, _ := measurements(truth)
	for _, kind := range Kinds {
		t.Run(string(kind), func(t *testing.T) {
			f := newFilter(t, kind, 0.2)
			q := quaternion.Identity()
			for i := 0; i < 3000; i++ {
				q = f.Run(r3.Vec{}, acc, r3.Vec{}, testDt, q)
			}
			assert.True(t, f.Last().AccValid)
			assert.False(t, f.Last().MagValid)
			roll, pitch, _ := q.EulerAngles()
			assert.InDelta(t, 0.3, roll, 0.02)
			assert.InDelta(t, -0.2, pitch, 0.02)
		})
	}
}

func TestEquivalentMagnetometer(t *testing.T) {
	e, ok := EquivalentMagnetometer(r3.Vec{Z: -2}, r3.Vec{X: 0.39, Z: 0.92})
	require.True(t, ok)
	assert.InDelta(t, 0, e.X, 1e-12)
	assert.InDelta(t, -1, e.Y, 1e-12)
	assert.InDelta(t, 0, e.Z, 1e-12)

	_, ok = EquivalentMagnetometer(r3.Vec{Z: 1}, r3.Vec{Z: 3})
	assert.False(t, ok, "parallel readings have no equivalent")
	_, ok = EquivalentMagnetometer(r3.Vec{}, r3.Vec{X: 1})
	assert.False(t, ok)
}

func TestPredictionsMatchRotation(t *testing.T) {
	q := quaternion.FromEuler(0.5, -0.4, 2.2)
	tests := []struct {
		name string
		got  r3.Vec
		want r3.Vec
	}{
		{"gravity", predictedGravity(q), q.RotateInverse(gravity)},
		{"equivalent", predictedEquivalent(q), q.RotateInverse(equivalentReference)},
		{"half gravity", r3.Scale(2, halfGravity(q)), q.RotateInverse(r3.Vec{Z: 1})},
		{"half west", r3.Scale(2, halfWest(q)), q.RotateInverse(r3.Vec{Y: 1})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, tt.got, cmpopts.EquateApprox(0, 1e-12)); diff != "" {
				t.Errorf("prediction mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

// numericGradient differentiates ½|pred(q)-meas|² by central differences.
func numericGradient(pred func(quaternion.Quaternion) r3.Vec, meas r3.Vec, q quaternion.Quaternion) quaternion.Quaternion {
	const h = 1e-6
	cost := func(q quaternion.Quaternion) float64 {
		return 0.5 * r3.Norm2(r3.Sub(pred(q), meas))
	}
	basis := []quaternion.Quaternion{
		quaternion.New(h, 0, 0, 0),
		quaternion.New(0, h, 0, 0),
		quaternion.New(0, 0, h, 0),
		quaternion.New(0, 0, 0, h),
	}
	var g [4]float64
	for i, b := range basis {
		g[i] = (cost(quaternion.Add(q, b)) - cost(quaternion.Sub(q, b))) / (2 * h)
	}
	return quaternion.New(g[0], g[1], g[2], g[3])
}

func TestJacobiansMatchNumericGradient(t *testing.T) {
	q := quaternion.FromEuler(0.3, 0.6, -1.1)
	meas := r3.Unit(r3.Vec{X: 0.2, Y: -0.5, Z: 0.8})
	mo, err := NewMadgwickOriginal(1, DefaultOptions().MagReference)
	require.NoError(t, err)

	tests := []struct {
		name     string
		analytic quaternion.Quaternion
		numeric  quaternion.Quaternion
	}{
		{"gravity", mulJacobian(gravityJacobian(q), r3.Sub(predictedGravity(q), meas)), numericGradient(predictedGravity, meas, q)},
		{"equivalent", mulJacobian(equivalentJacobian(q), r3.Sub(predictedEquivalent(q), meas)), numericGradient(predictedEquivalent, meas, q)},
		{"field", mulJacobian(mo.fieldJacobian(q), r3.Sub(mo.predictedField(q), meas)), numericGradient(mo.predictedField, meas, q)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.numeric, tt.analytic, cmpopts.EquateApprox(0, 1e-6)); diff != "" {
				t.Errorf("gradient mismatch (-numeric +analytic):\n%s", diff)
			}
		})
	}
}

func TestQGDMatricesAreScaledJacobians(t *testing.T) {
	q := quaternion.FromEuler(-0.7, 0.2, 0.9)
	v := r3.Vec{X: 0.3, Y: -0.1, Z: 0.95}

	tests := []struct {
		name string
		m    []float64
		j    []float64
	}{
		{"accelerometer", accMatrix(q), gravityJacobian(q)},
		{"magnetometer", magMatrix(q), equivalentJacobian(q)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			want := quaternion.Scale(-0.5, mulJacobian(tt.j, v))
			if diff := cmp.Diff(want, mulEmbedded(tt.m, v), cmpopts.EquateApprox(0, 1e-12)); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFlipX(t *testing.T) {
	got := FlipX(r3.Vec{X: 1, Y: 2, Z: 3})
	if diff := cmp.Diff(r3.Vec{X: 1, Y: -2, Z: -3}, got, cmpopts.EquateApprox(0, 1e-12)); diff != "" {
		t.Errorf("FlipX mismatch (-want +got):\n%s", diff)
	}
}

func TestParseKind(t *testing.T) {
	tests := map[string]Kind{
		"wilson":            KindWilson,
		"QGD":               KindQGD,
		" mo ":              KindMadgwickOriginal,
		"madgwick-revised":  KindMadgwickRevised,
		"Madgwick-Original": KindMadgwickOriginal,
	}
	for in, want := range tests {
		got, err := ParseKind(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := ParseKind("kalman")
	assert.True(t, errors.Is(err, ErrUnknownKind))
}

func TestNew_Errors(t *testing.T) {
	opts := DefaultOptions()
	opts.MagReference = quaternion.New(1, 0, 0.5, 0)
	_, err := New(KindMadgwickOriginal, 1, opts)
	assert.True(t, errors.Is(err, ErrMissingReference))

	_, err = New(Kind("nope"), 1, DefaultOptions())
	assert.True(t, errors.Is(err, ErrUnknownKind))

	for _, kind := range Kinds {
		f, err := New(kind, 0.25, DefaultOptions())
		require.NoError(t, err)
		assert.Equal(t, string(kind), f.Name())
		assert.Equal(t, 0.25, f.Gain())
	}
}
