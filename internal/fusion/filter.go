// Package fusion implements quaternion orientation observers that fuse
// gyroscope, accelerometer and magnetometer samples.
//
// Every filter follows the same discrete step: the gyroscope rate predicts
// the quaternion derivative ½·q⊗ω, a variant-specific correction derived
// from the accelerometer and magnetometer is applied, the derivative is
// integrated with a single Euler step and the result is normalized.
// Orientations map the sensor frame onto the earth frame, scalar first.
//
// Filters never fail on sensor data. Degenerate readings drop their share
// of the correction so the estimate falls back to gyroscope integration.
// Instances are not safe for concurrent use; separate instances share no
// state and may run in parallel.
package fusion

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/imufusion/internal/quaternion"
)

// gradientFloor is the gradient norm below which a correction is treated
// as zero instead of being normalized.
const gradientFloor = 1e-9

// ErrMissingReference is returned when a filter that needs a magnetic
// reference is constructed without one.
var ErrMissingReference = errors.New("magnetic reference vector is required")

// Filter is a single orientation observer.
type Filter interface {
	// Name returns the variant name, e.g. "wilson".
	Name() string
	// Gain returns the configured correction gain (beta).
	Gain() float64
	// Run advances orientation q by one sample. gyro is in rad/s, acc and
	// mag in any consistent units and dt in seconds. The returned
	// quaternion has unit norm.
	Run(gyro, acc, mag r3.Vec, dt float64, q quaternion.Quaternion) quaternion.Quaternion
	// Last returns diagnostics of the most recent Run call.
	Last() Diagnostics
}

// Diagnostics holds the per-call scratch of a filter.
type Diagnostics struct {
	// Correction is the normalized gradient for gradient variants, or the
	// pure-quaternion cross-product error for the revised variant.
	Correction quaternion.Quaternion
	// Derivative is the quaternion rate that was integrated.
	Derivative quaternion.Quaternion
	// AccValid and MagValid report whether each sensor contributed.
	AccValid bool
	MagValid bool
}

// Sample is one time step of sensor input.
type Sample struct {
	Gyro r3.Vec
	Acc  r3.Vec
	Mag  r3.Vec
	Dt   float64
}

// Step runs f on s starting from q.
func Step(f Filter, s Sample, q quaternion.Quaternion) quaternion.Quaternion {
	return f.Run(s.Gyro, s.Acc, s.Mag, s.Dt, q)
}

// gravity is the earth-frame direction measured by a resting accelerometer.
var gravity = r3.Vec{Z: -1}

// gyroDerivative returns ½·q⊗(0, ω).
func gyroDerivative(q quaternion.Quaternion, gyro r3.Vec) quaternion.Quaternion {
	return quaternion.Scale(0.5, quaternion.Mul(q, quaternion.FromVector(gyro)))
}

// integrate applies one Euler step and renormalizes.
func integrate(q, qDot quaternion.Quaternion, dt float64) quaternion.Quaternion {
	return quaternion.Add(q, quaternion.Scale(dt, qDot)).Normalized()
}

// unit returns v normalized and whether v had a usable length.
func unit(v r3.Vec) (r3.Vec, bool) {
	n := r3.Norm(v)
	if n == 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		return r3.Vec{}, false
	}
	return r3.Scale(1/n, v), true
}

// normalizeGradient scales g to unit norm. Gradients below gradientFloor
// are returned as zero so rounding noise is not amplified.
func normalizeGradient(g quaternion.Quaternion) quaternion.Quaternion {
	n := g.Norm()
	if n < gradientFloor || math.IsNaN(n) {
		return quaternion.Quaternion{}
	}
	return quaternion.Scale(1/n, g)
}

// EquivalentMagnetometer returns normalize(acc × mag) computed on the
// normalized readings, the magnetometer substitute used by the Wilson and
// QGD variants. Its earth-frame reference is (0, -1, 0). The boolean is
// false when either reading is degenerate or the two are parallel.
func EquivalentMagnetometer(acc, mag r3.Vec) (r3.Vec, bool) {
	a, ok := unit(acc)
	if !ok {
		return r3.Vec{}, false
	}
	m, ok := unit(mag)
	if !ok {
		return r3.Vec{}, false
	}
	return unit(r3.Cross(a, m))
}

// equivalentReference is the earth-frame direction of the equivalent
// magnetometer.
var equivalentReference = r3.Vec{Y: -1}

// predictedGravity returns the sensor-frame gravity direction for q.
func predictedGravity(q quaternion.Quaternion) r3.Vec {
	s, x, y, z := q.Components()
	return r3.Vec{
		X: 2 * (s*y - x*z),
		Y: -2 * (s*x + y*z),
		Z: -s*s + x*x + y*y - z*z,
	}
}

// gravityJacobian is the transposed Jacobian of predictedGravity with
// respect to (s, x, y, z), stored row-major as 4×3.
func gravityJacobian(q quaternion.Quaternion) []float64 {
	s, x, y, z := q.Components()
	return []float64{
		2 * y, -2 * x, -2 * s,
		-2 * z, -2 * s, 2 * x,
		2 * s, -2 * z, 2 * y,
		-2 * x, -2 * y, -2 * z,
	}
}

// mulJacobian returns J·f for a row-major 4×3 J.
func mulJacobian(j []float64, f r3.Vec) quaternion.Quaternion {
	var g mat.VecDense
	g.MulVec(mat.NewDense(4, 3, j), mat.NewVecDense(3, []float64{f.X, f.Y, f.Z}))
	return quaternion.New(g.AtVec(0), g.AtVec(1), g.AtVec(2), g.AtVec(3))
}

// mulEmbedded returns M·(0, v) for a row-major 4×4 M.
func mulEmbedded(m []float64, v r3.Vec) quaternion.Quaternion {
	var g mat.VecDense
	g.MulVec(mat.NewDense(4, 4, m), mat.NewVecDense(4, []float64{0, v.X, v.Y, v.Z}))
	return quaternion.New(g.AtVec(0), g.AtVec(1), g.AtVec(2), g.AtVec(3))
}
