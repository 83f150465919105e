package triangulate

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"stereocalib/pkg/spatial"
)

const (
	svdIterations = 10
	svdEpsilon    = 1e-11
)

// projection is a 3x4 camera matrix [R|t] acting on normalised coordinates.
type projection [3][4]float64

func projectionFrom(t spatial.Transform) projection {
	var p projection
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			p[i][j] = t.Rotation[i][j]
		}
	}
	p[0][3], p[1][3], p[2][3] = t.Translation.X, t.Translation.Y, t.Translation.Z
	return p
}

func (p projection) depth(x r3.Vector) float64 {
	return p[2][0]*x.X + p[2][1]*x.Y + p[2][2]*x.Z + p[2][3]
}

// TriangulateSVD reconstructs every pair with IterativeSVDPoint.
func TriangulateSVD(pairs []Pair, rig Rig) Result {
	res := Result{
		Points:       make([]r3.Vector, len(pairs)),
		Indices:      make([]int, len(pairs)),
		RayDistances: make([]float64, len(pairs)),
	}
	for i, pair := range pairs {
		res.Points[i] = IterativeSVDPoint(pair, rig)
		res.Indices[i] = i
	}
	return res
}

// IterativeSVDPoint solves the linear triangulation of pair, reweighting each
// camera's equations by the inverse depth of the previous estimate until the
// weights settle or 10 iterations have run.
func IterativeSVDPoint(pair Pair, rig Rig) r3.Vector {
	left := projectionFrom(spatial.IdentityTransform())
	right := projectionFrom(rig.RightToLeft.Inverse())
	ul := rig.Left.Normalize(pair.Left)
	ur := rig.Right.Normalize(pair.Right)

	wl, wr := 1.0, 1.0
	var x r3.Vector
	for i := 0; i < svdIterations; i++ {
		x = linearSolve(ul, left, wl, ur, right, wr)
		dl, dr := left.depth(x), right.depth(x)
		if math.Abs(wl-dl) <= svdEpsilon && math.Abs(wr-dr) <= svdEpsilon {
			break
		}
		wl, wr = dl, dr
	}
	return x
}

// linearSolve solves the 4x3 least-squares system of two weighted views.
func linearSolve(ul r2.Point, pl projection, wl float64, ur r2.Point, pr projection, wr float64) r3.Vector {
	a := mat.NewDense(4, 3, nil)
	b := mat.NewDense(4, 1, nil)
	rows := []struct {
		coord float64
		row   int
		p     projection
		w     float64
	}{
		{ul.X, 0, pl, wl},
		{ul.Y, 1, pl, wl},
		{ur.X, 0, pr, wr},
		{ur.Y, 1, pr, wr},
	}
	for i, r := range rows {
		for j := 0; j < 3; j++ {
			a.Set(i, j, (r.coord*r.p[2][j]-r.p[r.row][j])/r.w)
		}
		b.Set(i, 0, -(r.coord*r.p[2][3]-r.p[r.row][3])/r.w)
	}

	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDThin) {
		return r3.Vector{X: math.NaN(), Y: math.NaN(), Z: math.NaN()}
	}
	rank := svd.Rank(1e-15)
	if rank == 0 {
		return r3.Vector{X: math.NaN(), Y: math.NaN(), Z: math.NaN()}
	}
	var x mat.Dense
	svd.SolveTo(&x, b, rank)
	return r3.Vector{X: x.At(0, 0), Y: x.At(1, 0), Z: x.At(2, 0)}
}
