package spatial

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
)

// QuaternionFromRotation returns the unit quaternion of a rotation matrix,
// with a non-negative real part.
func QuaternionFromRotation(m Matrix3) quat.Number {
	var q quat.Number
	tr := m[0][0] + m[1][1] + m[2][2]
	switch {
	case tr > 0:
		s := 2 * math.Sqrt(tr+1)
		q = quat.Number{Real: s / 4, Imag: (m[2][1] - m[1][2]) / s, Jmag: (m[0][2] - m[2][0]) / s, Kmag: (m[1][0] - m[0][1]) / s}
	case m[0][0] > m[1][1] && m[0][0] > m[2][2]:
		s := 2 * math.Sqrt(1+m[0][0]-m[1][1]-m[2][2])
		q = quat.Number{Real: (m[2][1] - m[1][2]) / s, Imag: s / 4, Jmag: (m[0][1] + m[1][0]) / s, Kmag: (m[0][2] + m[2][0]) / s}
	case m[1][1] > m[2][2]:
		s := 2 * math.Sqrt(1+m[1][1]-m[0][0]-m[2][2])
		q = quat.Number{Real: (m[0][2] - m[2][0]) / s, Imag: (m[0][1] + m[1][0]) / s, Jmag: s / 4, Kmag: (m[1][2] + m[2][1]) / s}
	default:
		s := 2 * math.Sqrt(1+m[2][2]-m[0][0]-m[1][1])
		q = quat.Number{Real: (m[1][0] - m[0][1]) / s, Imag: (m[0][2] + m[2][0]) / s, Jmag: (m[1][2] + m[2][1]) / s, Kmag: s / 4}
	}
	if q.Real < 0 {
		q = quat.Scale(-1, q)
	}
	return quat.Scale(1/quat.Abs(q), q)
}

// RotationFromQuaternion returns the rotation matrix of q, which is normalised first.
func RotationFromQuaternion(q quat.Number) Matrix3 {
	q = quat.Scale(1/quat.Abs(q), q)
	w, x, y, z := q.Real, q.Imag, q.Jmag, q.Kmag
	return Matrix3{
		{1 - 2*(y*y+z*z), 2 * (x*y - w*z), 2 * (x*z + w*y)},
		{2 * (x*y + w*z), 1 - 2*(x*x+z*z), 2 * (y*z - w*x)},
		{2 * (x*z - w*y), 2 * (y*z + w*x), 1 - 2*(x*x+y*y)},
	}
}

// Slerp interpolates along the shorter arc from a to b. t outside [0, 1]
// extrapolates at the same angular rate.
func Slerp(a, b quat.Number, t float64) quat.Number {
	if a.Real*b.Real+a.Imag*b.Imag+a.Jmag*b.Jmag+a.Kmag*b.Kmag < 0 {
		b = quat.Scale(-1, b)
	}
	delta := quat.Mul(quat.Conj(a), b)
	return quat.Mul(a, quat.Pow(delta, quat.Number{Real: t}))
}

// InterpolateTransform blends two rigid transforms: slerp on the rotation and
// linear on the translation. t = 0 gives a and t = 1 gives b.
func InterpolateTransform(a, b Transform, t float64) Transform {
	qa := QuaternionFromRotation(a.Rotation)
	qb := QuaternionFromRotation(b.Rotation)
	return Transform{
		Rotation:    RotationFromQuaternion(Slerp(qa, qb, t)),
		Translation: a.Translation.Add(b.Translation.Sub(a.Translation).Mul(t)),
	}
}
