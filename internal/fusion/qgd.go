package fusion

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/imufusion/internal/quaternion"
)

// QGD is the quaternion gradient descent observer. The correction is a
// linear map of the embedded accelerometer and equivalent magnetometer
// readings, with 4×4 matrices built from the current orientation.
type QGD struct {
	gain float64

	// Adaptive state used only by RunAdaptive.
	armijo     ArmijoParams
	accGain    float64
	magGain    float64
	prevAccRes float64
	prevMagRes float64
	primed     bool

	last Diagnostics
}

// NewQGD returns a QGD filter with the given gain.
func NewQGD(gain float64) *QGD {
	return &QGD{
		gain:    gain,
		armijo:  DefaultArmijoParams(),
		accGain: gain,
		magGain: gain,
	}
}

// WithArmijoParams replaces the step-size strategy parameters used by
// RunAdaptive.
func (g *QGD) WithArmijoParams(p ArmijoParams) *QGD {
	g.armijo = p
	return g
}

func (g *QGD) Name() string      { return string(KindQGD) }
func (g *QGD) Gain() float64     { return g.gain }
func (g *QGD) Last() Diagnostics { return g.last }

// AdaptiveGains returns the accelerometer and magnetometer gains currently
// used by RunAdaptive.
func (g *QGD) AdaptiveGains() (acc, mag float64) { return g.accGain, g.magGain }

// Run implements Filter.
func (g *QGD) Run(gyro, acc, mag r3.Vec, dt float64, q quaternion.Quaternion) quaternion.Quaternion {
	accTerm, magTerm, accOK, magOK := g.terms(acc, mag, q)
	grad := normalizeGradient(quaternion.Add(accTerm, magTerm))

	qDot := quaternion.Sub(gyroDerivative(q, gyro), quaternion.Scale(g.gain, grad))
	g.last = Diagnostics{Correction: grad, Derivative: qDot, AccValid: accOK, MagValid: magOK}
	return integrate(q, qDot, dt)
}

// RunAdaptive is Run with separate accelerometer and magnetometer gains
// tuned every call by ArmijoStep from the change in residual norms. With
// equal gains it reduces to Run with that gain.
func (g *QGD) RunAdaptive(gyro, acc, mag r3.Vec, dt float64, q quaternion.Quaternion) quaternion.Quaternion {
	accTerm, magTerm, accOK, magOK := g.terms(acc, mag, q)

	accRes, magRes := g.residuals(acc, mag, q)
	if g.primed {
		rate := r3.Norm(gyro)
		g.accGain = ArmijoStep(g.armijo, g.accGain, g.prevAccRes, accRes, rate)
		g.magGain = ArmijoStep(g.armijo, g.magGain, g.prevMagRes, magRes, rate)
	}
	g.prevAccRes, g.prevMagRes, g.primed = accRes, magRes, true

	weighted := quaternion.Add(quaternion.Scale(g.accGain, accTerm), quaternion.Scale(g.magGain, magTerm))
	grad := quaternion.Scale((g.accGain+g.magGain)/2, normalizeGradient(weighted))

	qDot := quaternion.Sub(gyroDerivative(q, gyro), grad)
	g.last = Diagnostics{Correction: grad, Derivative: qDot, AccValid: accOK, MagValid: magOK}
	return integrate(q, qDot, dt)
}

// terms returns M_a·(0, acc) and M_m·(0, mag_eq). M_m takes the
// equivalent magnetometer rather than the raw reading, so the field's
// inclination never pulls on tilt.
func (g *QGD) terms(acc, mag r3.Vec, q quaternion.Quaternion) (accTerm, magTerm quaternion.Quaternion, accOK, magOK bool) {
	a, accOK := unit(acc)
	if !accOK {
		return accTerm, magTerm, false, false
	}
	accTerm = mulEmbedded(accMatrix(q), a)
	if e, ok := EquivalentMagnetometer(acc, mag); ok {
		magTerm = mulEmbedded(magMatrix(q), e)
		magOK = true
	}
	return accTerm, magTerm, accOK, magOK
}

// residuals returns |predicted - measured| for gravity and the equivalent
// magnetometer. Missing readings give zero.
func (g *QGD) residuals(acc, mag r3.Vec, q quaternion.Quaternion) (accRes, magRes float64) {
	if a, ok := unit(acc); ok {
		accRes = r3.Norm(r3.Sub(predictedGravity(q), a))
	}
	if e, ok := EquivalentMagnetometer(acc, mag); ok {
		magRes = r3.Norm(r3.Sub(predictedEquivalent(q), e))
	}
	return accRes, magRes
}

// accMatrix is M_a, row-major 4×4.
func accMatrix(q quaternion.Quaternion) []float64 {
	s, x, y, z := q.Components()
	return []float64{
		0, -y, x, s,
		0, z, s, -x,
		0, -s, z, -y,
		0, x, y, z,
	}
}

// magMatrix is M_m, row-major 4×4.
func magMatrix(q quaternion.Quaternion) []float64 {
	s, x, y, z := q.Components()
	return []float64{
		0, z, s, -x,
		0, y, -x, -s,
		0, x, y, z,
		0, s, -z, y,
	}
}

// ArmijoParams tunes ArmijoStep.
type ArmijoParams struct {
	// Ceiling is the gain restored after a residual decrease.
	Ceiling float64
	// Floor is the gain below which halving stops.
	Floor float64
	// Tolerance scales the allowed residual increase: 0.001·gain·Tolerance.
	Tolerance float64
	// MotionThreshold is the gyroscope rate norm (rad/s) above which the
	// gain is forced to MotionGain.
	MotionThreshold float64
	MotionGain      float64
}

// DefaultArmijoParams returns the step-size constants of the QGD paper.
func DefaultArmijoParams() ArmijoParams {
	return ArmijoParams{
		Ceiling:         200,
		Floor:           1,
		Tolerance:       3.0 / 8.0,
		MotionThreshold: 0.05,
		MotionGain:      2,
	}
}

// ArmijoStep returns the next gain given the previous and current residual
// norms and the gyroscope rate norm. A residual that did not grow beyond
// the tolerance resets the gain to the ceiling, a residual that grew halves
// it, and motion overrides both with a fixed moderate gain.
func ArmijoStep(p ArmijoParams, gain, prevResidual, residual, gyroRate float64) float64 {
	d := residual - prevResidual - 0.001*gain*p.Tolerance
	switch {
	case d <= 0 && gain <= p.Ceiling:
		gain = p.Ceiling
	case d > 0 && gain > p.Floor:
		gain /= 2
	}
	if gyroRate > p.MotionThreshold {
		gain = p.MotionGain
	}
	if math.IsNaN(gain) {
		return p.Floor
	}
	return gain
}
