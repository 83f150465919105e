// Package triangulate reconstructs 3D points in the left camera frame from
// undistorted left/right pixel pairs of a calibrated stereo rig.
package triangulate

import (
	"math"
	"strings"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"

	"stereocalib/internal/errkind"
	"stereocalib/pkg/camera"
	"stereocalib/pkg/spatial"
)

// Pair is one feature seen in both cameras, in undistorted pixel coordinates.
type Pair struct {
	Left, Right r2.Point
}

// Rig is a calibrated stereo pair. RightToLeft maps right camera coordinates
// into left camera coordinates; its translation is the right optical centre
// seen from the left camera.
type Rig struct {
	Left, Right camera.Intrinsics
	RightToLeft spatial.Transform
}

// NewRig builds a Rig from row-major 3x3 intrinsic matrices, a rotation given
// as 3 (vector) or 9 (matrix) values and a 3-value translation. float32 input
// is widened to float64.
func NewRig[T spatial.Float](leftIntrinsic, rightIntrinsic, rotation, translation []T) (Rig, error) {
	left, err := camera.IntrinsicsFrom(leftIntrinsic)
	if err != nil {
		return Rig{}, errkind.Wrap(err, errkind.InvalidInput, "left intrinsics")
	}
	right, err := camera.IntrinsicsFrom(rightIntrinsic)
	if err != nil {
		return Rig{}, errkind.Wrap(err, errkind.InvalidInput, "right intrinsics")
	}
	r2l, err := spatial.TransformFrom(rotation, translation)
	if err != nil {
		return Rig{}, errkind.Wrap(err, errkind.InvalidInput, "right-to-left transform")
	}
	return Rig{Left: left, Right: right, RightToLeft: r2l}, nil
}

// CheckValid checks both intrinsics.
func (r Rig) CheckValid() error {
	if err := r.Left.CheckValid(); err != nil {
		return errkind.Wrap(err, errkind.InvalidInput, "left intrinsics")
	}
	if err := r.Right.CheckValid(); err != nil {
		return errkind.Wrap(err, errkind.InvalidInput, "right intrinsics")
	}
	return nil
}

// Method selects a triangulation algorithm.
type Method int

const (
	// Geometric takes the midpoint of the closest approach of the two rays
	// and rejects pairs whose rays miss each other by more than twice the
	// tolerance.
	Geometric Method = iota
	// IterativeSVD solves Hartley's iteratively reweighted linear system and
	// never rejects a pair.
	IterativeSVD
)

func (m Method) String() string {
	switch m {
	case Geometric:
		return "geometric"
	case IterativeSVD:
		return "svd"
	default:
		return "unknown"
	}
}

// ParseMethod converts a config value into a Method.
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(s) {
	case "", "geometric", "midpoint":
		return Geometric, nil
	case "svd", "iterative", "iterativesvd":
		return IterativeSVD, nil
	default:
		return Geometric, errkind.New(errkind.InvalidInput, "unknown triangulation method %q", s)
	}
}

// Result holds the reconstructed points in the left camera frame. Indices[i]
// is the input pair that produced Points[i]; RayDistances[i] is the closest
// approach of its two rays, zero for the SVD method.
type Result struct {
	Points       []r3.Vector
	Indices      []int
	RayDistances []float64
}

// Len returns the number of reconstructed points.
func (r Result) Len() int {
	return len(r.Points)
}

// Triangulate runs the chosen method over all pairs. The tolerance only
// applies to the geometric method.
func Triangulate(method Method, pairs []Pair, rig Rig, tolerance float64) (Result, error) {
	if err := rig.CheckValid(); err != nil {
		return Result{}, err
	}
	switch method {
	case Geometric:
		return TriangulateGeometric(pairs, rig, tolerance), nil
	case IterativeSVD:
		return TriangulateSVD(pairs, rig), nil
	default:
		return Result{}, errkind.New(errkind.InvalidInput, "unknown triangulation method %d", int(method))
	}
}

// TriangulateGeometric reconstructs every pair whose rays pass within
// 2*tolerance of each other. Rejected pairs are left out of the result.
func TriangulateGeometric(pairs []Pair, rig Rig, tolerance float64) Result {
	var res Result
	for i, pair := range pairs {
		p, dist := GeometricPoint(pair, rig)
		if !(dist <= 2*tolerance) {
			continue
		}
		res.Points = append(res.Points, p)
		res.Indices = append(res.Indices, i)
		res.RayDistances = append(res.RayDistances, dist)
	}
	return res
}

// GeometricPoint returns the midpoint of the closest approach of the two
// back-projected rays of pair, and the distance between the rays there.
func GeometricPoint(pair Pair, rig Rig) (r3.Vector, float64) {
	p0 := r3.Vector{}
	u := rig.Left.Ray(pair.Left)
	q0 := rig.RightToLeft.Translation
	v := rig.RightToLeft.ApplyDirection(rig.Right.Ray(pair.Right))

	w0 := p0.Sub(q0)
	a := u.Dot(u)
	b := u.Dot(v)
	c := v.Dot(v)
	d := u.Dot(w0)
	e := v.Dot(w0)
	denom := a*c - b*b

	var sc, tc float64
	if math.Abs(denom) < 1e-15*a*c {
		// Parallel rays: hold the left ray at its origin.
		sc = 0
		tc = e / c
	} else {
		sc = (b*e - c*d) / denom
		tc = (a*e - b*d) / denom
	}
	onLeft := p0.Add(u.Mul(sc))
	onRight := q0.Add(v.Mul(tc))
	return onLeft.Add(onRight).Mul(0.5), onLeft.Sub(onRight).Norm()
}
