package fusion

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/imufusion/internal/quaternion"
)

// Wilson is the gradient-descent observer that replaces the raw
// magnetometer with the equivalent magnetometer normalize(acc × mag). The
// substitute is horizontal by construction, so no inclination reference is
// needed and magnetic disturbances cannot tilt the estimate.
type Wilson struct {
	gain float64
	last Diagnostics
}

// NewWilson returns a Wilson filter with the given gain.
func NewWilson(gain float64) *Wilson {
	return &Wilson{gain: gain}
}

func (w *Wilson) Name() string      { return string(KindWilson) }
func (w *Wilson) Gain() float64     { return w.gain }
func (w *Wilson) Last() Diagnostics { return w.last }

// Run implements Filter.
func (w *Wilson) Run(gyro, acc, mag r3.Vec, dt float64, q quaternion.Quaternion) quaternion.Quaternion {
	var grad quaternion.Quaternion
	a, accOK := unit(acc)
	e, magOK := EquivalentMagnetometer(acc, mag)

	if accOK {
		grad = mulJacobian(gravityJacobian(q), r3.Sub(predictedGravity(q), a))
		if magOK {
			grad = quaternion.Add(grad, mulJacobian(equivalentJacobian(q), r3.Sub(predictedEquivalent(q), e)))
		}
		grad = normalizeGradient(grad)
	}

	qDot := quaternion.Sub(gyroDerivative(q, gyro), quaternion.Scale(w.gain, grad))
	w.last = Diagnostics{Correction: grad, Derivative: qDot, AccValid: accOK, MagValid: accOK && magOK}
	return integrate(q, qDot, dt)
}

// predictedEquivalent returns the sensor-frame direction of the
// equivalent magnetometer reference (0, -1, 0).
func predictedEquivalent(q quaternion.Quaternion) r3.Vec {
	s, x, y, z := q.Components()
	return r3.Vec{
		X: -2 * (x*y + s*z),
		Y: -s*s + x*x - y*y + z*z,
		Z: 2 * (s*x - y*z),
	}
}

// equivalentJacobian is the transposed Jacobian of predictedEquivalent,
// row-major 4×3.
func equivalentJacobian(q quaternion.Quaternion) []float64 {
	s, x, y, z := q.Components()
	return []float64{
		-2 * z, -2 * s, 2 * x,
		-2 * y, 2 * x, 2 * s,
		-2 * x, -2 * y, -2 * z,
		-2 * s, 2 * z, -2 * y,
	}
}
