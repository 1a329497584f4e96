package quaternion

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

var approx = cmpopts.EquateApprox(0, 1e-9)

func randomUnit(rng *rand.Rand) Quaternion {
	return New(rng.NormFloat64(), rng.NormFloat64(), rng.NormFloat64(), rng.NormFloat64()).Normalized()
}

func TestMul_HamiltonBasis(t *testing.T) {
	i := New(0, 1, 0, 0)
	j := New(0, 0, 1, 0)
	k := New(0, 0, 0, 1)

	tests := []struct {
		name string
		got  Quaternion
		want Quaternion
	}{
		{"ij=k", Mul(i, j), k},
		{"ji=-k", Mul(j, i), Scale(-1, k)},
		{"jk=i", Mul(j, k), i},
		{"ki=j", Mul(k, i), j},
		{"ii=-1", Mul(i, i), New(-1, 0, 0, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, tt.got, approx); diff != "" {
				t.Errorf("product mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestMul_MatchesScalarVectorForm(t *testing.T) {
	p := New(0.3, -1.2, 0.5, 2.0)
	q := New(-0.7, 0.4, 1.1, -0.2)

	got := Mul(p, q)
	sv := p.Real*q.Real - r3.Dot(p.Vector(), q.Vector())
	vv := r3.Add(r3.Add(r3.Scale(p.Real, q.Vector()), r3.Scale(q.Real, p.Vector())), r3.Cross(p.Vector(), q.Vector()))

	assert.InDelta(t, sv, got.Real, 1e-12)
	assert.InDelta(t, vv.X, got.Imag, 1e-12)
	assert.InDelta(t, vv.Y, got.Jmag, 1e-12)
	assert.InDelta(t, vv.Z, got.Kmag, 1e-12)
}

func TestNormalized_UnitNormRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for n := 0; n < 500; n++ {
		q := New(rng.NormFloat64()*100, rng.NormFloat64(), rng.NormFloat64()*1e-3, rng.NormFloat64()*7)
		if q.NormSquared() == 0 {
			continue
		}
		assert.InDelta(t, 1.0, q.Normalized().Norm(), 1e-9)
	}
}

func TestNormalized_ZeroLeftUnchanged(t *testing.T) {
	var zero Quaternion
	assert.Equal(t, zero, zero.Normalized())
	assert.Equal(t, zero, zero.Inverse())
}

func TestMul_InverseIsIdentity(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))
	for n := 0; n < 200; n++ {
		q := randomUnit(rng)
		if diff := cmp.Diff(Identity(), Mul(q, q.Inverse()), approx); diff != "" {
			t.Fatalf("q⊗q⁻¹ not identity (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff(Identity(), Mul(q.Conj(), q), approx); diff != "" {
			t.Fatalf("q*⊗q not identity (-want +got):\n%s", diff)
		}
	}
}

func TestFromAxisAngle(t *testing.T) {
	q := FromAxisAngle(r3.Vec{Z: 2}, math.Pi/2)
	want := New(math.Cos(math.Pi/4), 0, 0, math.Sin(math.Pi/4))
	if diff := cmp.Diff(want, q, approx); diff != "" {
		t.Errorf("axis-angle mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, Identity(), FromAxisAngle(r3.Vec{}, 1.0))
}

func TestRotate(t *testing.T) {
	q := FromAxisAngle(r3.Vec{Z: 1}, math.Pi/2)
	got := q.Rotate(r3.Vec{X: 1})
	assert.InDelta(t, 0, got.X, 1e-12)
	assert.InDelta(t, 1, got.Y, 1e-12)
	assert.InDelta(t, 0, got.Z, 1e-12)

	back := q.RotateInverse(got)
	assert.InDelta(t, 1, back.X, 1e-12)
	assert.InDelta(t, 0, back.Y, 1e-12)
}

func TestCross(t *testing.T) {
	got := Cross(New(5, 1, 0, 0), New(-3, 0, 1, 0))
	assert.Equal(t, New(0, 0, 0, 1), got)
}

func TestEulerAngles(t *testing.T) {
	tests := []struct {
		name             string
		roll, pitch, yaw float64
	}{
		{"identity", 0, 0, 0},
		{"yaw only", 0, 0, 0.1},
		{"roll only", -0.7, 0, 0},
		{"pitch only", 0, 0.4, 0},
		{"mixed", 0.3, -0.2, 2.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := FromEuler(tt.roll, tt.pitch, tt.yaw)
			require.InDelta(t, 1.0, q.Norm(), 1e-12)
			r, p, y := q.EulerAngles()
			assert.InDelta(t, tt.roll, r, 1e-9)
			assert.InDelta(t, tt.pitch, p, 1e-9)
			assert.InDelta(t, tt.yaw, y, 1e-9)
		})
	}
}

func TestEulerAngles_YawMatchesAxisAngle(t *testing.T) {
	_, _, yaw := FromAxisAngle(r3.Vec{Z: 1}, 0.25).EulerAngles()
	assert.InDelta(t, 0.25, yaw, 1e-12)

	_, _, deg := FromAxisAngle(r3.Vec{Z: 1}, math.Pi/4).EulerDegrees()
	assert.InDelta(t, 45, deg, 1e-9)
}

func TestAngleBetween(t *testing.T) {
	p := Identity()
	q := FromAxisAngle(r3.Vec{X: 1, Y: 1}, 0.2)
	assert.InDelta(t, 0.2, AngleBetween(p, q), 1e-9)
	assert.InDelta(t, 0.2, AngleBetween(p, Scale(-1, q)), 1e-9)
	assert.InDelta(t, 0, AngleBetween(q, q), 1e-7)
}
