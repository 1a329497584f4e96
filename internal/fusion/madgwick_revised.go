package fusion

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/imufusion/internal/quaternion"
)

const (
	defaultInitialRampGain = 10.0
	defaultRampPeriod      = 3.0
	defaultFieldMin        = 0.0
	defaultFieldMax        = 80.0
)

// MadgwickRevised is the cross-product observer in the north-west-up
// convention. The accelerometer is expected to report specific force, so a
// resting sensor reads +z; see WithDownwardAccelerometer.
//
// The error is added to the gyroscope rate scaled by gain·rampedGain,
// where rampedGain starts high and decays linearly to gain over the ramp
// period.
type MadgwickRevised struct {
	gain            float64
	rampedGain      float64
	initialRampGain float64
	rampPeriod      float64
	fieldMin        float64
	fieldMax        float64
	accSign         float64

	last Diagnostics
}

// RevisedOption configures a MadgwickRevised.
type RevisedOption func(*MadgwickRevised)

// WithFieldBounds sets the accepted magnetometer magnitude band.
func WithFieldBounds(min, max float64) RevisedOption {
	return func(m *MadgwickRevised) {
		m.fieldMin = min
		m.fieldMax = max
	}
}

// WithRampPeriod sets the time over which the ramped gain decays.
func WithRampPeriod(period float64) RevisedOption {
	return func(m *MadgwickRevised) { m.rampPeriod = period }
}

// WithInitialRampGain sets the starting ramped gain.
func WithInitialRampGain(g float64) RevisedOption {
	return func(m *MadgwickRevised) { m.initialRampGain = g }
}

// WithDownwardAccelerometer accepts accelerometer readings that point
// along gravity, as the other variants do, negating them internally.
func WithDownwardAccelerometer() RevisedOption {
	return func(m *MadgwickRevised) { m.accSign = -1 }
}

// NewMadgwickRevised returns a revised filter with the given gain.
func NewMadgwickRevised(gain float64, opts ...RevisedOption) *MadgwickRevised {
	m := &MadgwickRevised{
		gain:            gain,
		initialRampGain: defaultInitialRampGain,
		rampPeriod:      defaultRampPeriod,
		fieldMin:        defaultFieldMin,
		fieldMax:        defaultFieldMax,
		accSign:         1,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.Reset()
	return m
}

func (m *MadgwickRevised) Name() string      { return string(KindMadgwickRevised) }
func (m *MadgwickRevised) Gain() float64     { return m.gain }
func (m *MadgwickRevised) Last() Diagnostics { return m.last }

// RampedGain returns the current ramped gain.
func (m *MadgwickRevised) RampedGain() float64 { return m.rampedGain }

// Reset restarts the gain ramp.
func (m *MadgwickRevised) Reset() {
	m.rampedGain = m.initialRampGain
}

// Run implements Filter.
func (m *MadgwickRevised) Run(gyro, acc, mag r3.Vec, dt float64, q quaternion.Quaternion) quaternion.Quaternion {
	acc = r3.Scale(m.accSign, acc)
	m.stepRamp(dt)

	var e r3.Vec
	accOK := acc != (r3.Vec{})
	magOK := m.fieldValid(mag)
	if accOK {
		a, _ := unit(acc)
		e = r3.Cross(a, halfGravity(q))
		if magOK {
			if w, ok := unit(r3.Cross(acc, mag)); ok {
				e = r3.Add(e, r3.Cross(w, halfWest(q)))
			} else {
				magOK = false
			}
		}
		// Halved references keep the error equal to the full cross product.
		e = r3.Scale(2, e)
	} else {
		magOK = false
	}

	omega := r3.Add(gyro, r3.Scale(m.gain*m.rampedGain, e))
	qDot := gyroDerivative(q, omega)
	m.last = Diagnostics{Correction: quaternion.FromVector(e), Derivative: qDot, AccValid: accOK, MagValid: magOK}
	return integrate(q, qDot, dt)
}

// stepRamp moves the ramped gain one sample towards the steady gain.
func (m *MadgwickRevised) stepRamp(dt float64) {
	switch {
	case m.gain == 0:
		m.rampedGain = 0
	case m.rampedGain > m.gain:
		m.rampedGain -= (m.initialRampGain - m.gain) * dt / m.rampPeriod
		if m.rampedGain < m.gain {
			m.rampedGain = m.gain
		}
	default:
		m.rampedGain = m.gain
	}
}

// fieldValid reports whether |mag|² lies inside the configured band.
func (m *MadgwickRevised) fieldValid(mag r3.Vec) bool {
	n2 := r3.Norm2(mag)
	return n2 >= m.fieldMin*m.fieldMin && n2 <= m.fieldMax*m.fieldMax
}

// halfGravity is half the sensor-frame up direction for q.
func halfGravity(q quaternion.Quaternion) r3.Vec {
	s, x, y, z := q.Components()
	return r3.Vec{
		X: x*z - s*y,
		Y: y*z + s*x,
		Z: s*s - 0.5 + z*z,
	}
}

// halfWest is half the sensor-frame west direction for q.
func halfWest(q quaternion.Quaternion) r3.Vec {
	s, x, y, z := q.Components()
	return r3.Vec{
		X: x*y + s*z,
		Y: s*s - 0.5 + y*y,
		Z: y*z - s*x,
	}
}
