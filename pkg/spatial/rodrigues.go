package spatial

import (
	"math"

	"github.com/golang/geo/r3"
)

// RotationFromVector converts a rotation vector (unit axis scaled by the angle
// in radians) into a rotation matrix.
func RotationFromVector(rv r3.Vector) Matrix3 {
	theta := rv.Norm()
	if theta < 1e-12 {
		// first order: I + [rv]x
		s := Skew(rv)
		for i := 0; i < 3; i++ {
			s[i][i] = 1
		}
		return s
	}
	k := rv.Mul(1 / theta)
	c, s := math.Cos(theta), math.Sin(theta)
	kx := Skew(k)
	out := Identity3().Scale(c)
	outer := Matrix3{
		{k.X * k.X, k.X * k.Y, k.X * k.Z},
		{k.Y * k.X, k.Y * k.Y, k.Y * k.Z},
		{k.Z * k.X, k.Z * k.Y, k.Z * k.Z},
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i][j] += (1-c)*outer[i][j] + s*kx[i][j]
		}
	}
	return out
}

// RotationVector converts a rotation matrix into axis * angle form. The matrix
// is orthonormalised first, so slightly non-orthogonal input is accepted.
func (m Matrix3) RotationVector() r3.Vector {
	r := m.Orthonormalize()
	v := r3.Vector{
		X: r[2][1] - r[1][2],
		Y: r[0][2] - r[2][0],
		Z: r[1][0] - r[0][1],
	}
	s := v.Norm() * 0.5
	c := (r[0][0] + r[1][1] + r[2][2] - 1) * 0.5
	c = math.Max(-1, math.Min(1, c))

	if s < 1e-5 {
		if c > 0 {
			return r3.Vector{}
		}
		// angle is pi: recover the axis from the diagonal of (R + I) / 2
		x := math.Sqrt(math.Max((r[0][0]+1)*0.5, 0))
		y := math.Sqrt(math.Max((r[1][1]+1)*0.5, 0))
		z := math.Sqrt(math.Max((r[2][2]+1)*0.5, 0))
		if r[0][1] < 0 {
			y = -y
		}
		if r[0][2] < 0 {
			z = -z
		}
		if math.Abs(x) < math.Abs(y) && math.Abs(x) < math.Abs(z) && (r[1][2] > 0) != (y*z > 0) {
			z = -z
		}
		axis := r3.Vector{X: x, Y: y, Z: z}
		return axis.Normalize().Mul(math.Pi)
	}

	theta := math.Atan2(s, c)
	return v.Mul(0.5 * theta / s)
}
