package spatial

import (
	"math"
	"sort"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"stereocalib/internal/errkind"
)

// Matrix4 is a row-major 4x4 homogeneous matrix, as recorded by tracking systems.
type Matrix4 [4][4]float64

// Identity4 returns the 4x4 identity.
func Identity4() Matrix4 {
	return Matrix4{{1, 0, 0, 0}, {0, 1, 0, 0}, {0, 0, 1, 0}, {0, 0, 0, 1}}
}

// Matrix4From builds a Matrix4 from 16 row-major values.
func Matrix4From[T Float](vals []T) (Matrix4, error) {
	var m Matrix4
	if len(vals) != 16 {
		return m, errkind.New(errkind.InvalidInput, "4x4 matrix needs 16 values, got %d", len(vals))
	}
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			m[i][j] = float64(vals[4*i+j])
		}
	}
	return m, nil
}

// Mul returns m*n.
func (m Matrix4) Mul(n Matrix4) Matrix4 {
	var out Matrix4
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			for k := 0; k < 4; k++ {
				out[i][j] += m[i][k] * n[k][j]
			}
		}
	}
	return out
}

// Apply transforms the point p as a homogeneous point.
func (m Matrix4) Apply(p r3.Vector) r3.Vector {
	x := m[0][0]*p.X + m[0][1]*p.Y + m[0][2]*p.Z + m[0][3]
	y := m[1][0]*p.X + m[1][1]*p.Y + m[1][2]*p.Z + m[1][3]
	z := m[2][0]*p.X + m[2][1]*p.Y + m[2][2]*p.Z + m[2][3]
	w := m[3][0]*p.X + m[3][1]*p.Y + m[3][2]*p.Z + m[3][3]
	if w != 1 && w != 0 {
		return r3.Vector{X: x / w, Y: y / w, Z: z / w}
	}
	return r3.Vector{X: x, Y: y, Z: z}
}

// Inverse returns the general inverse of m. ok is false when m is singular.
func (m Matrix4) Inverse() (Matrix4, bool) {
	d := mat.NewDense(4, 4, m.Slice())
	var inv mat.Dense
	if err := inv.Inverse(d); err != nil {
		return Matrix4{}, false
	}
	var out Matrix4
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			out[i][j] = inv.At(i, j)
		}
	}
	return out, true
}

// Slice returns the 16 values in row-major order.
func (m Matrix4) Slice() []float64 {
	out := make([]float64, 0, 16)
	for i := 0; i < 4; i++ {
		out = append(out, m[i][:]...)
	}
	return out
}

// ApproxEqual reports whether every element of m and n differs by at most tol.
func (m Matrix4) ApproxEqual(n Matrix4, tol float64) bool {
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			if math.Abs(m[i][j]-n[i][j]) > tol {
				return false
			}
		}
	}
	return true
}

// Transform is a rigid transform x' = R x + t.
type Transform struct {
	Rotation    Matrix3
	Translation r3.Vector
}

// IdentityTransform returns the transform that leaves points unchanged.
func IdentityTransform() Transform {
	return Transform{Rotation: Identity3()}
}

// NewTransform builds a transform from a rotation vector (axis * angle) and a translation.
func NewTransform(rotationVector, translation r3.Vector) Transform {
	return Transform{Rotation: RotationFromVector(rotationVector), Translation: translation}
}

// TransformFrom builds a transform from either a 3-value rotation vector or a
// 9-value row-major rotation matrix, plus a 3-value translation.
func TransformFrom[T Float](rotation, translation []T) (Transform, error) {
	t, err := VectorFrom(translation)
	if err != nil {
		return Transform{}, err
	}
	switch len(rotation) {
	case 3:
		rv, _ := VectorFrom(rotation)
		return NewTransform(rv, t), nil
	case 9:
		r, _ := Matrix3From(rotation)
		return Transform{Rotation: r, Translation: t}, nil
	default:
		return Transform{}, errkind.New(errkind.InvalidInput,
			"rotation needs 3 (vector) or 9 (matrix) values, got %d", len(rotation))
	}
}

// TransformFromMatrix4 takes the rotation and translation blocks of m.
func TransformFromMatrix4(m Matrix4) Transform {
	var t Transform
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			t.Rotation[i][j] = m[i][j]
		}
	}
	t.Translation = r3.Vector{X: m[0][3], Y: m[1][3], Z: m[2][3]}
	return t
}

// Matrix4 returns t as a homogeneous matrix.
func (t Transform) Matrix4() Matrix4 {
	m := Identity4()
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			m[i][j] = t.Rotation[i][j]
		}
	}
	m[0][3], m[1][3], m[2][3] = t.Translation.X, t.Translation.Y, t.Translation.Z
	return m
}

// Apply transforms a point.
func (t Transform) Apply(p r3.Vector) r3.Vector {
	return t.Rotation.MulVec(p).Add(t.Translation)
}

// ApplyDirection rotates a direction; the translation is ignored.
func (t Transform) ApplyDirection(v r3.Vector) r3.Vector {
	return t.Rotation.MulVec(v)
}

// Compose returns the transform that applies u first and then t.
func (t Transform) Compose(u Transform) Transform {
	return Transform{
		Rotation:    t.Rotation.Mul(u.Rotation),
		Translation: t.Rotation.MulVec(u.Translation).Add(t.Translation),
	}
}

// Inverse returns the inverse rigid transform.
func (t Transform) Inverse() Transform {
	rt := t.Rotation.Transpose()
	return Transform{Rotation: rt, Translation: rt.MulVec(t.Translation).Mul(-1)}
}

// RotationVector returns the rotation as axis * angle.
func (t Transform) RotationVector() r3.Vector {
	return t.Rotation.RotationVector()
}

// ApproxEqual compares rotations and translations element-wise.
func (t Transform) ApproxEqual(u Transform, rotTol, transTol float64) bool {
	return t.Rotation.ApproxEqual(u.Rotation, rotTol) &&
		math.Abs(t.Translation.X-u.Translation.X) <= transTol &&
		math.Abs(t.Translation.Y-u.Translation.Y) <= transTol &&
		math.Abs(t.Translation.Z-u.Translation.Z) <= transTol
}

// MedianTransform returns the transform whose rotation vector and translation
// are the component-wise medians of ts.
func MedianTransform(ts []Transform) (Transform, error) {
	if len(ts) == 0 {
		return Transform{}, errkind.New(errkind.InputEmpty, "median of zero transforms")
	}
	comps := make([][]float64, 6)
	for _, t := range ts {
		rv := t.RotationVector()
		vals := []float64{rv.X, rv.Y, rv.Z, t.Translation.X, t.Translation.Y, t.Translation.Z}
		for i, v := range vals {
			comps[i] = append(comps[i], v)
		}
	}
	med := make([]float64, 6)
	for i, c := range comps {
		sort.Float64s(c)
		med[i] = stat.Quantile(0.5, stat.Empirical, c, nil)
	}
	return NewTransform(
		r3.Vector{X: med[0], Y: med[1], Z: med[2]},
		r3.Vector{X: med[3], Y: med[4], Z: med[5]},
	), nil
}
