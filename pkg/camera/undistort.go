package camera

import (
	"github.com/golang/geo/r2"
	"gonum.org/v1/gonum/mat"

	"stereocalib/internal/errkind"
)

// Undistort maps an observed pixel to ideal pinhole coordinates. When crop is
// non-nil and the ideal point falls outside it, both coordinates are replaced
// with the crop sentinel. The model is only read.
func Undistort(p r2.Point, model *Model, crop *CropBounds) r2.Point {
	ideal := model.UndistortPixel(p)
	if crop != nil && !crop.Contains(ideal) {
		return crop.SentinelPoint()
	}
	return ideal
}

// UndistortPoints undistorts every point of pts into a new slice.
func UndistortPoints(pts []r2.Point, model *Model, crop *CropBounds) []r2.Point {
	out := make([]r2.Point, len(pts))
	for i, p := range pts {
		out[i] = Undistort(p, model, crop)
	}
	return out
}

// UndistortMatrix undistorts an N x 2 matrix of pixels, one point per row, and
// returns a new N x 2 matrix.
func UndistortMatrix(pts mat.Matrix, model *Model, crop *CropBounds) (*mat.Dense, error) {
	rows, cols := pts.Dims()
	if cols != 2 {
		return nil, errkind.New(errkind.InvalidInput, "point matrix must be N x 2, got %d x %d", rows, cols)
	}
	if rows == 0 {
		return nil, errkind.New(errkind.InputEmpty, "no points to undistort")
	}
	out := mat.NewDense(rows, 2, nil)
	for i := 0; i < rows; i++ {
		p := Undistort(r2.Point{X: pts.At(i, 0), Y: pts.At(i, 1)}, model, crop)
		out.Set(i, 0, p.X)
		out.Set(i, 1, p.Y)
	}
	return out, nil
}
