// Package spatial provides the fixed-size matrix and rigid transform types
// shared by the calibration, triangulation and tracking code. All types have
// value semantics; nothing here is mutated through a pointer.
package spatial

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"stereocalib/internal/errkind"
)

// Float is the set of element types accepted at the API boundary. Values are
// always widened to float64 for computation.
type Float interface {
	~float32 | ~float64
}

// Matrix3 is a row-major 3x3 matrix.
type Matrix3 [3][3]float64

// Identity3 returns the 3x3 identity.
func Identity3() Matrix3 {
	return Matrix3{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
}

// Matrix3From builds a Matrix3 from 9 row-major values.
func Matrix3From[T Float](vals []T) (Matrix3, error) {
	var m Matrix3
	if len(vals) != 9 {
		return m, errkind.New(errkind.InvalidInput, "3x3 matrix needs 9 values, got %d", len(vals))
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			m[i][j] = float64(vals[3*i+j])
		}
	}
	return m, nil
}

// VectorFrom builds an r3.Vector from 3 values.
func VectorFrom[T Float](vals []T) (r3.Vector, error) {
	if len(vals) != 3 {
		return r3.Vector{}, errkind.New(errkind.InvalidInput, "3-vector needs 3 values, got %d", len(vals))
	}
	return r3.Vector{X: float64(vals[0]), Y: float64(vals[1]), Z: float64(vals[2])}, nil
}

// Matrix3FromDense copies the top-left 3x3 block of d.
func Matrix3FromDense(d mat.Matrix) Matrix3 {
	var m Matrix3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			m[i][j] = d.At(i, j)
		}
	}
	return m
}

// Dense returns m as a gonum matrix.
func (m Matrix3) Dense() *mat.Dense {
	return mat.NewDense(3, 3, m.Slice())
}

// Slice returns the 9 values in row-major order.
func (m Matrix3) Slice() []float64 {
	return []float64{
		m[0][0], m[0][1], m[0][2],
		m[1][0], m[1][1], m[1][2],
		m[2][0], m[2][1], m[2][2],
	}
}

// Mul returns m*n.
func (m Matrix3) Mul(n Matrix3) Matrix3 {
	var out Matrix3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i][j] = m[i][0]*n[0][j] + m[i][1]*n[1][j] + m[i][2]*n[2][j]
		}
	}
	return out
}

// MulVec returns m*v.
func (m Matrix3) MulVec(v r3.Vector) r3.Vector {
	return r3.Vector{
		X: m[0][0]*v.X + m[0][1]*v.Y + m[0][2]*v.Z,
		Y: m[1][0]*v.X + m[1][1]*v.Y + m[1][2]*v.Z,
		Z: m[2][0]*v.X + m[2][1]*v.Y + m[2][2]*v.Z,
	}
}

// Transpose returns the transpose of m.
func (m Matrix3) Transpose() Matrix3 {
	var out Matrix3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i][j] = m[j][i]
		}
	}
	return out
}

// Scale returns s*m.
func (m Matrix3) Scale(s float64) Matrix3 {
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			m[i][j] *= s
		}
	}
	return m
}

// Det returns the determinant of m.
func (m Matrix3) Det() float64 {
	return m[0][0]*(m[1][1]*m[2][2]-m[1][2]*m[2][1]) -
		m[0][1]*(m[1][0]*m[2][2]-m[1][2]*m[2][0]) +
		m[0][2]*(m[1][0]*m[2][1]-m[1][1]*m[2][0])
}

// Inverse returns the inverse of m. ok is false when m is singular.
func (m Matrix3) Inverse() (inv Matrix3, ok bool) {
	det := m.Det()
	if det == 0 || math.IsNaN(det) {
		return inv, false
	}
	inv[0][0] = (m[1][1]*m[2][2] - m[1][2]*m[2][1]) / det
	inv[0][1] = (m[0][2]*m[2][1] - m[0][1]*m[2][2]) / det
	inv[0][2] = (m[0][1]*m[1][2] - m[0][2]*m[1][1]) / det
	inv[1][0] = (m[1][2]*m[2][0] - m[1][0]*m[2][2]) / det
	inv[1][1] = (m[0][0]*m[2][2] - m[0][2]*m[2][0]) / det
	inv[1][2] = (m[0][2]*m[1][0] - m[0][0]*m[1][2]) / det
	inv[2][0] = (m[1][0]*m[2][1] - m[1][1]*m[2][0]) / det
	inv[2][1] = (m[0][1]*m[2][0] - m[0][0]*m[2][1]) / det
	inv[2][2] = (m[0][0]*m[1][1] - m[0][1]*m[1][0]) / det
	return inv, true
}

// Col returns column j as a vector.
func (m Matrix3) Col(j int) r3.Vector {
	return r3.Vector{X: m[0][j], Y: m[1][j], Z: m[2][j]}
}

// SetCol returns m with column j replaced by v.
func (m Matrix3) SetCol(j int, v r3.Vector) Matrix3 {
	m[0][j], m[1][j], m[2][j] = v.X, v.Y, v.Z
	return m
}

// Skew returns the cross-product matrix [v]x, so that Skew(v).MulVec(w) == v.Cross(w).
func Skew(v r3.Vector) Matrix3 {
	return Matrix3{
		{0, -v.Z, v.Y},
		{v.Z, 0, -v.X},
		{-v.Y, v.X, 0},
	}
}

// Orthonormalize returns the rotation closest to m in the Frobenius norm.
func (m Matrix3) Orthonormalize() Matrix3 {
	var svd mat.SVD
	if !svd.Factorize(m.Dense(), mat.SVDFull) {
		return m
	}
	var u, v, r mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	r.Mul(&u, v.T())
	if mat.Det(&r) < 0 {
		// flip the axis of the smallest singular value
		for i := 0; i < 3; i++ {
			u.Set(i, 2, -u.At(i, 2))
		}
		r.Mul(&u, v.T())
	}
	return Matrix3FromDense(&r)
}

// ApproxEqual reports whether every element of m and n differs by at most tol.
func (m Matrix3) ApproxEqual(n Matrix3, tol float64) bool {
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			if math.Abs(m[i][j]-n[i][j]) > tol {
				return false
			}
		}
	}
	return true
}
