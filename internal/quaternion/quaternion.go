// Package quaternion provides the Hamilton quaternion value type used for
// orientation estimates and for embedding 3-vector sensor readings.
//
// Quaternion is a named gonum quat.Number, so Real is the scalar part and
// Imag, Jmag, Kmag are the vector components (s, x, y, z). All operations
// have value semantics. Norms are recomputed on demand.
package quaternion

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Quaternion is a scalar-first quaternion (s, x, y, z).
type Quaternion quat.Number

// New returns the quaternion (s, x, y, z).
func New(s, x, y, z float64) Quaternion {
	return Quaternion{Real: s, Imag: x, Jmag: y, Kmag: z}
}

// Identity returns the rotation-free unit quaternion (1, 0, 0, 0).
func Identity() Quaternion {
	return Quaternion{Real: 1}
}

// FromVector embeds v as a pure quaternion (0, v).
func FromVector(v r3.Vec) Quaternion {
	return Quaternion{Imag: v.X, Jmag: v.Y, Kmag: v.Z}
}

// FromAxisAngle returns the rotation of angle radians about axis. The axis is
// normalized first; a zero axis yields the identity.
func FromAxisAngle(axis r3.Vec, angle float64) Quaternion {
	n := r3.Norm(axis)
	if n == 0 {
		return Identity()
	}
	sin, cos := math.Sincos(angle / 2)
	u := r3.Scale(sin/n, axis)
	return Quaternion{Real: cos, Imag: u.X, Jmag: u.Y, Kmag: u.Z}
}

// FromEuler builds a unit quaternion from ZYX (yaw, pitch, roll) angles in
// radians. It is the inverse of EulerAngles.
func FromEuler(roll, pitch, yaw float64) Quaternion {
	sr, cr := math.Sincos(roll / 2)
	sp, cp := math.Sincos(pitch / 2)
	sy, cy := math.Sincos(yaw / 2)
	return Quaternion{
		Real: cr*cp*cy + sr*sp*sy,
		Imag: sr*cp*cy - cr*sp*sy,
		Jmag: cr*sp*cy + sr*cp*sy,
		Kmag: cr*cp*sy - sr*sp*cy,
	}
}

// Components returns (s, x, y, z).
func (q Quaternion) Components() (s, x, y, z float64) {
	return q.Real, q.Imag, q.Jmag, q.Kmag
}

// Slice returns the components as a 4-element slice in (s, x, y, z) order.
func (q Quaternion) Slice() []float64 {
	return []float64{q.Real, q.Imag, q.Jmag, q.Kmag}
}

// Vector returns the vector part.
func (q Quaternion) Vector() r3.Vec {
	return r3.Vec{X: q.Imag, Y: q.Jmag, Z: q.Kmag}
}

// Mul returns the Hamilton product p⊗q.
func Mul(p, q Quaternion) Quaternion {
	return Quaternion(quat.Mul(quat.Number(p), quat.Number(q)))
}

// Add returns p+q.
func Add(p, q Quaternion) Quaternion {
	return Quaternion(quat.Add(quat.Number(p), quat.Number(q)))
}

// Sub returns p-q.
func Sub(p, q Quaternion) Quaternion {
	return Quaternion(quat.Sub(quat.Number(p), quat.Number(q)))
}

// Scale returns f·q.
func Scale(f float64, q Quaternion) Quaternion {
	return Quaternion(quat.Scale(f, quat.Number(q)))
}

// Dot returns the four-dimensional inner product of p and q.
func Dot(p, q Quaternion) float64 {
	return p.Real*q.Real + p.Imag*q.Imag + p.Jmag*q.Jmag + p.Kmag*q.Kmag
}

// Cross treats p and q as pure vectors and returns (0, p×q).
func Cross(p, q Quaternion) Quaternion {
	return FromVector(r3.Cross(p.Vector(), q.Vector()))
}

// Conj returns the conjugate (s, -x, -y, -z).
func (q Quaternion) Conj() Quaternion {
	return Quaternion(quat.Conj(quat.Number(q)))
}

// NormSquared returns s²+x²+y²+z².
func (q Quaternion) NormSquared() float64 {
	return Dot(q, q)
}

// Norm returns the Euclidean norm of q.
func (q Quaternion) Norm() float64 {
	return math.Sqrt(q.NormSquared())
}

// Normalized returns q scaled to unit norm. A quaternion whose squared norm
// is exactly zero is returned unchanged.
func (q Quaternion) Normalized() Quaternion {
	n2 := q.NormSquared()
	if n2 == 0 {
		return q
	}
	return Scale(1/math.Sqrt(n2), q)
}

// Inverse returns q⁻¹. The zero quaternion is returned unchanged.
func (q Quaternion) Inverse() Quaternion {
	n2 := q.NormSquared()
	if n2 == 0 {
		return q
	}
	return Scale(1/n2, q.Conj())
}

// Rotate returns the vector part of q⊗v⊗q*.
func (q Quaternion) Rotate(v r3.Vec) r3.Vec {
	return Mul(Mul(q, FromVector(v)), q.Conj()).Vector()
}

// RotateInverse returns the vector part of q*⊗v⊗q. For a sensor-to-earth
// orientation q this maps an earth-frame vector into the sensor frame.
func (q Quaternion) RotateInverse(v r3.Vec) r3.Vec {
	return Mul(Mul(q.Conj(), FromVector(v)), q).Vector()
}

// EulerAngles returns the ZYX roll, pitch and yaw of a unit quaternion in
// radians. The result is meaningless for non-unit input.
func (q Quaternion) EulerAngles() (roll, pitch, yaw float64) {
	s, x, y, z := q.Components()
	roll = math.Atan2(2*(s*x+y*z), 1-2*(x*x+y*y))
	sinp := 2 * (s*y - z*x)
	switch {
	case sinp >= 1:
		pitch = math.Pi / 2
	case sinp <= -1:
		pitch = -math.Pi / 2
	default:
		pitch = math.Asin(sinp)
	}
	yaw = math.Atan2(2*(s*z+x*y), 1-2*(y*y+z*z))
	return roll, pitch, yaw
}

// EulerDegrees is EulerAngles converted to degrees.
func (q Quaternion) EulerDegrees() (roll, pitch, yaw float64) {
	r, p, y := q.EulerAngles()
	return r * 180 / math.Pi, p * 180 / math.Pi, y * 180 / math.Pi
}

// AngleBetween returns the rotation angle in radians separating the unit
// orientations p and q. Antipodal quaternions are treated as equal.
func AngleBetween(p, q Quaternion) float64 {
	d := math.Abs(Dot(p.Normalized(), q.Normalized()))
	if d > 1 {
		d = 1
	}
	return 2 * math.Acos(d)
}

// IsNaN reports whether any component of q is NaN.
func (q Quaternion) IsNaN() bool {
	return quat.IsNaN(quat.Number(q))
}
