package fusion

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/imufusion/internal/quaternion"
)

// MadgwickOriginal is the gradient-descent observer with full accelerometer
// and magnetometer Jacobians and a fixed earth magnetic reference.
type MadgwickOriginal struct {
	gain float64
	// bx and bz are the horizontal and vertical earth field components.
	bx, bz float64

	rejectField    bool
	fieldMin       float64
	fieldMax       float64
	legacyResidual bool

	last Diagnostics
}

// MadgwickOption configures a MadgwickOriginal.
type MadgwickOption func(*MadgwickOriginal)

// WithFieldRejection drops the magnetometer contribution when the raw
// field magnitude lies outside [min, max].
func WithFieldRejection(min, max float64) MadgwickOption {
	return func(m *MadgwickOriginal) {
		m.rejectField = true
		m.fieldMin = min
		m.fieldMax = max
	}
}

// WithLegacyFieldResidual evaluates the magnetometer residual with the
// earlier closed form instead of the form
// whose Jacobian is assembled. Both agree at the identity orientation.
func WithLegacyFieldResidual() MadgwickOption {
	return func(m *MadgwickOriginal) { m.legacyResidual = true }
}

// NewMadgwickOriginal returns a filter with correction gain and earth
// magnetic reference magRef. Only the first and third vector components of
// magRef are used; they are rescaled to unit length. A reference without
// either component fails with ErrMissingReference.
func NewMadgwickOriginal(gain float64, magRef quaternion.Quaternion, opts ...MadgwickOption) (*MadgwickOriginal, error) {
	n := math.Hypot(magRef.Imag, magRef.Kmag)
	if n == 0 || math.IsNaN(n) {
		return nil, ErrMissingReference
	}
	m := &MadgwickOriginal{
		gain: gain,
		bx:   magRef.Imag / n,
		bz:   magRef.Kmag / n,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

func (m *MadgwickOriginal) Name() string      { return string(KindMadgwickOriginal) }
func (m *MadgwickOriginal) Gain() float64     { return m.gain }
func (m *MadgwickOriginal) Last() Diagnostics { return m.last }

// Run implements Filter.
func (m *MadgwickOriginal) Run(gyro, acc, mag r3.Vec, dt float64, q quaternion.Quaternion) quaternion.Quaternion {
	var grad quaternion.Quaternion
	a, accOK := unit(acc)
	mg, magOK := unit(mag)
	if magOK && m.rejectField {
		if n := r3.Norm(mag); n < m.fieldMin || n > m.fieldMax {
			magOK = false
		}
	}

	if accOK {
		grad = mulJacobian(gravityJacobian(q), r3.Sub(predictedGravity(q), a))
		if magOK {
			grad = quaternion.Add(grad, mulJacobian(m.fieldJacobian(q), r3.Sub(m.predictedField(q), mg)))
		}
		grad = normalizeGradient(grad)
	} else {
		magOK = false
	}

	qDot := quaternion.Sub(gyroDerivative(q, gyro), quaternion.Scale(m.gain, grad))
	m.last = Diagnostics{Correction: grad, Derivative: qDot, AccValid: accOK, MagValid: magOK}
	return integrate(q, qDot, dt)
}

// predictedField returns the sensor-frame direction of the reference field.
func (m *MadgwickOriginal) predictedField(q quaternion.Quaternion) r3.Vec {
	s, x, y, z := q.Components()
	bx, bz := m.bx, m.bz
	if m.legacyResidual {
		return r3.Vec{
			X: bx*(s*s+x*x-y*y-z*z) + bz*(-s*y-x*z),
			Y: bx*(-s*z+x*y) + bz*(s*x+y*z),
			Z: bx*(s*y+x*z) + bz*(s*s-x*x-y*y+z*z),
		}
	}
	return r3.Vec{
		X: bx*(s*s+x*x-y*y-z*z) + 2*bz*(x*z-s*y),
		Y: 2*bx*(x*y-s*z) + 2*bz*(y*z+s*x),
		Z: 2*bx*(x*z+s*y) + bz*(s*s-x*x-y*y+z*z),
	}
}

// fieldJacobian is the transposed Jacobian of the reference field
// prediction, row-major 4×3.
func (m *MadgwickOriginal) fieldJacobian(q quaternion.Quaternion) []float64 {
	s, x, y, z := q.Components()
	bx, bz := m.bx, m.bz
	return []float64{
		2 * (bx*s - bz*y), 2 * (bz*x - bx*z), 2 * (bx*y + bz*s),
		2 * (bx*x + bz*z), 2 * (bx*y + bz*s), 2 * (bx*z - bz*x),
		2 * (-bx*y - bz*s), 2 * (bx*x + bz*z), 2 * (bx*s - bz*y),
		2 * (bz*x - bx*z), 2 * (bz*y - bx*s), 2 * (bx*x + bz*z),
	}
}
