package calib

import (
	"image"
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"stereocalib/internal/errkind"
	"stereocalib/internal/models"
	"stereocalib/pkg/camera"
	"stereocalib/pkg/spatial"
)

// normalization returns the similarity that moves the centroid of pts to the
// origin and scales their mean distance to sqrt(2).
func normalization(pts []r2.Point) spatial.Matrix3 {
	var c r2.Point
	for _, p := range pts {
		c = c.Add(p)
	}
	c = c.Mul(1 / float64(len(pts)))
	mean := 0.0
	for _, p := range pts {
		mean += p.Sub(c).Norm()
	}
	mean /= float64(len(pts))
	s := 1.0
	if mean > 0 {
		s = math.Sqrt2 / mean
	}
	return spatial.Matrix3{
		{s, 0, -s * c.X},
		{0, s, -s * c.Y},
		{0, 0, 1},
	}
}

func applyHomography(h spatial.Matrix3, p r2.Point) r2.Point {
	v := h.MulVec(r3.Vector{X: p.X, Y: p.Y, Z: 1})
	return r2.Point{X: v.X / v.Z, Y: v.Y / v.Z}
}

// findHomography estimates H with dst ~ H src by the normalised direct linear
// transform.
func findHomography(src, dst []r2.Point) (spatial.Matrix3, error) {
	if len(src) != len(dst) {
		return spatial.Matrix3{}, errkind.New(errkind.CountMismatch, "%d source and %d target points", len(src), len(dst))
	}
	if len(src) < 4 {
		return spatial.Matrix3{}, errkind.New(errkind.InvalidInput, "homography needs 4 points, got %d", len(src))
	}
	ts, td := normalization(src), normalization(dst)

	a := mat.NewDense(2*len(src), 9, nil)
	for i := range src {
		s := applyHomography(ts, src[i])
		d := applyHomography(td, dst[i])
		a.SetRow(2*i, []float64{-s.X, -s.Y, -1, 0, 0, 0, d.X * s.X, d.X * s.Y, d.X})
		a.SetRow(2*i+1, []float64{0, 0, 0, -s.X, -s.Y, -1, d.Y * s.X, d.Y * s.Y, d.Y})
	}
	var ata mat.Dense
	ata.Mul(a.T(), a)
	var svd mat.SVD
	if !svd.Factorize(&ata, mat.SVDFull) {
		return spatial.Matrix3{}, errkind.New(errkind.InvalidInput, "homography factorisation failed")
	}
	var v mat.Dense
	svd.VTo(&v)
	var hn spatial.Matrix3
	for i := 0; i < 9; i++ {
		hn[i/3][i%3] = v.At(i, 8)
	}

	tdInv, ok := td.Inverse()
	if !ok {
		return spatial.Matrix3{}, errkind.New(errkind.InvalidInput, "degenerate target points")
	}
	h := tdInv.Mul(hn).Mul(ts)
	if h[2][2] != 0 {
		h = h.Scale(1 / h[2][2])
	}
	return h, nil
}

func planarPoints(v models.View) []r2.Point {
	pts := make([]r2.Point, len(v.ObjectPoints))
	for i, p := range v.ObjectPoints {
		pts[i] = r2.Point{X: p.X, Y: p.Y}
	}
	return pts
}

// initIntrinsics estimates focal lengths from the view homographies with the
// principal point at the image centre. With a degenerate set of views the
// focal length falls back to the larger image dimension.
func initIntrinsics(views []models.View, size image.Point, fixAspect bool) (camera.Intrinsics, error) {
	in := camera.Intrinsics{Cx: float64(size.X-1) / 2, Cy: float64(size.Y-1) / 2}
	center := spatial.Matrix3{{1, 0, -in.Cx}, {0, 1, -in.Cy}, {0, 0, 1}}

	a := mat.NewDense(2*len(views), 2, nil)
	b := mat.NewDense(2*len(views), 1, nil)
	for i, v := range views {
		if !v.IsPlanar() {
			return in, errkind.New(errkind.InvalidInput, "closed-form initialisation needs a planar target; view %q is not", v.Name)
		}
		h, err := findHomography(planarPoints(v), v.ImagePoints)
		if err != nil {
			return in, errkind.Wrapf(err, errkind.InvalidInput, "view %q", v.Name)
		}
		h = center.Mul(h)
		h1, h2 := h.Col(0), h.Col(1)
		d1, d2 := h1.Add(h2).Mul(0.5), h1.Sub(h2).Mul(0.5)
		h1, h2, d1, d2 = h1.Normalize(), h2.Normalize(), d1.Normalize(), d2.Normalize()

		a.SetRow(2*i, []float64{h1.X * h2.X, h1.Y * h2.Y})
		b.Set(2*i, 0, -h1.Z*h2.Z)
		a.SetRow(2*i+1, []float64{d1.X * d2.X, d1.Y * d2.Y})
		b.Set(2*i+1, 0, -d1.Z*d2.Z)
	}

	var svd mat.SVD
	var f mat.Dense
	if svd.Factorize(a, mat.SVDThin) {
		if rank := svd.Rank(1e-12); rank > 0 {
			svd.SolveTo(&f, b, rank)
		}
	}
	fallback := float64(max(size.X, size.Y))
	in.Fx, in.Fy = fallback, fallback
	if r, _ := f.Dims(); r == 2 {
		fx, fy := math.Sqrt(math.Abs(1/f.At(0, 0))), math.Sqrt(math.Abs(1/f.At(1, 0)))
		if isUsableFocal(fx) && isUsableFocal(fy) {
			in.Fx, in.Fy = fx, fy
		}
	}
	if fixAspect {
		mean := (in.Fx + in.Fy) / 2
		in.Fx, in.Fy = mean, mean
	}
	return in, nil
}

func isUsableFocal(f float64) bool {
	return f > 0 && !math.IsInf(f, 0) && !math.IsNaN(f)
}

// poseFromHomography recovers the target-to-camera transform of a planar view
// whose image points are already in normalised camera coordinates.
func poseFromHomography(objectXY, normalized []r2.Point) (spatial.Transform, error) {
	h, err := findHomography(objectXY, normalized)
	if err != nil {
		return spatial.Transform{}, err
	}
	h1, h2, h3 := h.Col(0), h.Col(1), h.Col(2)
	scale := 2 / (h1.Norm() + h2.Norm())
	if math.IsInf(scale, 0) || math.IsNaN(scale) {
		return spatial.Transform{}, errkind.New(errkind.InvalidInput, "degenerate homography")
	}
	r1, r2v, t := h1.Mul(scale), h2.Mul(scale), h3.Mul(scale)
	if t.Z < 0 {
		r1, r2v, t = r1.Mul(-1), r2v.Mul(-1), t.Mul(-1)
	}
	var rot spatial.Matrix3
	rot = rot.SetCol(0, r1).SetCol(1, r2v).SetCol(2, r1.Cross(r2v))
	return spatial.Transform{Rotation: rot.Orthonormalize(), Translation: t}, nil
}

// initPose estimates the target-to-camera transform of one view seen through model.
func initPose(v models.View, model *camera.Model) (spatial.Transform, error) {
	if !v.IsPlanar() {
		return spatial.Transform{}, errkind.New(errkind.InvalidInput,
			"extrinsic initialisation needs a planar target; view %q is not", v.Name)
	}
	normalized := make([]r2.Point, len(v.ImagePoints))
	for i, p := range v.ImagePoints {
		normalized[i] = model.Distortion.Undistort(model.Intrinsics.Normalize(p))
	}
	pose, err := poseFromHomography(planarPoints(v), normalized)
	if err != nil {
		return pose, errkind.Wrapf(err, errkind.InvalidInput, "view %q", v.Name)
	}
	return pose, nil
}
