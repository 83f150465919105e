package spatial

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stereocalib/internal/errkind"
)

func TestRodriguesRoundTrip(t *testing.T) {
	for _, rv := range []r3.Vector{
		{X: 0.1, Y: -0.2, Z: 0.3},
		{X: 0, Y: 0, Z: 0},
		{X: 1e-14, Y: 0, Z: 0},
		{X: 0, Y: 2.5, Z: 0},
		{X: math.Pi, Y: 0, Z: 0},
		{X: 0, Y: 0, Z: -math.Pi / 2},
	} {
		r := RotationFromVector(rv)
		assert.InDelta(t, 1.0, r.Det(), 1e-12, "rv %v", rv)
		assert.True(t, r.Mul(r.Transpose()).ApproxEqual(Identity3(), 1e-12), "rv %v", rv)

		back := RotationFromVector(r.RotationVector())
		assert.True(t, back.ApproxEqual(r, 1e-9), "rv %v", rv)
	}

	rv := r3.Vector{X: 0.1, Y: -0.2, Z: 0.3}
	got := RotationFromVector(rv).RotationVector()
	assert.InDelta(t, rv.X, got.X, 1e-12)
	assert.InDelta(t, rv.Y, got.Y, 1e-12)
	assert.InDelta(t, rv.Z, got.Z, 1e-12)
}

func TestRotationAboutZ(t *testing.T) {
	r := RotationFromVector(r3.Vector{Z: math.Pi / 2})
	p := r.MulVec(r3.Vector{X: 1})
	assert.InDelta(t, 0, p.X, 1e-12)
	assert.InDelta(t, 1, p.Y, 1e-12)
}

func TestTransformInverseCompose(t *testing.T) {
	tr := NewTransform(r3.Vector{X: 0.05, Y: 0.3, Z: -0.1}, r3.Vector{X: -60, Y: 2, Z: 5})
	id := tr.Compose(tr.Inverse())
	assert.True(t, id.ApproxEqual(IdentityTransform(), 1e-12, 1e-9))

	p := r3.Vector{X: 10, Y: -4, Z: 300}
	back := tr.Inverse().Apply(tr.Apply(p))
	assert.InDelta(t, 0, back.Sub(p).Norm(), 1e-9)

	m := tr.Matrix4()
	q := m.Apply(p)
	assert.InDelta(t, 0, q.Sub(tr.Apply(p)).Norm(), 1e-9)
	assert.True(t, TransformFromMatrix4(m).ApproxEqual(tr, 0, 0))

	inv, ok := m.Inverse()
	require.True(t, ok)
	assert.True(t, inv.ApproxEqual(tr.Inverse().Matrix4(), 1e-9))
	assert.True(t, m.Mul(inv).ApproxEqual(Identity4(), 1e-9))
}

func TestGenericConstructors(t *testing.T) {
	rot32 := []float32{1, 0, 0, 0, 1, 0, 0, 0, 1}
	trans32 := []float32{1, 2, 3}
	t32, err := TransformFrom(rot32, trans32)
	require.NoError(t, err)

	t64, err := TransformFrom([]float64{0, 0, 0}, []float64{1, 2, 3})
	require.NoError(t, err)
	assert.True(t, t32.ApproxEqual(t64, 1e-12, 1e-6))

	_, err = TransformFrom([]float64{1, 2}, []float64{1, 2, 3})
	assert.True(t, errkind.Is(err, errkind.InvalidInput))
	_, err = Matrix3From([]float32{1})
	assert.True(t, errkind.Is(err, errkind.InvalidInput))
	_, err = Matrix4From(make([]float64, 12))
	assert.True(t, errkind.Is(err, errkind.InvalidInput))
}

func TestOrthonormalize(t *testing.T) {
	r := RotationFromVector(r3.Vector{X: 0.2, Y: 0.1})
	noisy := r
	noisy[0][1] += 1e-4
	noisy[2][2] -= 1e-4
	fixed := noisy.Orthonormalize()
	assert.InDelta(t, 1, fixed.Det(), 1e-12)
	assert.True(t, fixed.ApproxEqual(r, 1e-3))
}

func TestMatrix3Inverse(t *testing.T) {
	m := Matrix3{{800, 0, 320}, {0, 810, 240}, {0, 0, 1}}
	inv, ok := m.Inverse()
	require.True(t, ok)
	assert.True(t, m.Mul(inv).ApproxEqual(Identity3(), 1e-12))

	_, ok = Matrix3{}.Inverse()
	assert.False(t, ok)

	v := r3.Vector{X: 1, Y: 2, Z: 3}
	w := r3.Vector{X: -3, Y: 0.5, Z: 2}
	assert.InDelta(t, 0, Skew(v).MulVec(w).Sub(v.Cross(w)).Norm(), 1e-12)
}

func TestMedianTransform(t *testing.T) {
	ts := []Transform{
		NewTransform(r3.Vector{X: 0.1}, r3.Vector{X: 1}),
		NewTransform(r3.Vector{X: 0.2}, r3.Vector{X: 2}),
		NewTransform(r3.Vector{X: 0.9}, r3.Vector{X: 100}),
	}
	med, err := MedianTransform(ts)
	require.NoError(t, err)
	assert.InDelta(t, 0.2, med.RotationVector().X, 1e-9)
	assert.InDelta(t, 2, med.Translation.X, 1e-12)

	_, err = MedianTransform(nil)
	assert.True(t, errkind.Is(err, errkind.InputEmpty))
}

func TestQuaternionRoundTrip(t *testing.T) {
	for _, rv := range []r3.Vector{
		{X: 0.1, Y: -0.2, Z: 0.3},
		{},
		{X: math.Pi - 1e-3},
		{Y: 3},
		{Z: -2.9},
	} {
		r := RotationFromVector(rv)
		q := QuaternionFromRotation(r)
		assert.GreaterOrEqual(t, q.Real, 0.0)
		assert.True(t, RotationFromQuaternion(q).ApproxEqual(r, 1e-9), "rv %v", rv)
	}
}

func TestInterpolateTransform(t *testing.T) {
	a := NewTransform(r3.Vector{Z: 0.2}, r3.Vector{X: 0, Y: 10})
	b := NewTransform(r3.Vector{Z: 0.6}, r3.Vector{X: 4, Y: 10})

	assert.True(t, InterpolateTransform(a, b, 0).ApproxEqual(a, 1e-9, 1e-9))
	assert.True(t, InterpolateTransform(a, b, 1).ApproxEqual(b, 1e-9, 1e-9))

	mid := InterpolateTransform(a, b, 0.5)
	assert.True(t, mid.ApproxEqual(NewTransform(r3.Vector{Z: 0.4}, r3.Vector{X: 2, Y: 10}), 1e-9, 1e-9))

	// Beyond the end the motion continues at the same rate.
	ext := InterpolateTransform(a, b, 1.5)
	assert.True(t, ext.ApproxEqual(NewTransform(r3.Vector{Z: 0.8}, r3.Vector{X: 6, Y: 10}), 1e-9, 1e-9))
}
