//go:build !no_cgo

package detect

import (
	"image"

	"github.com/golang/geo/r2"
	"gocv.io/x/gocv"

	"stereocalib/internal/errkind"
)

// ChessboardFinder is the OpenCV corner search: an adaptive-threshold
// chessboard search on the greyscale image followed by an 11x11 sub-pixel
// refinement.
type ChessboardFinder struct {
	// Flags are passed to FindChessboardCorners
	Flags gocv.CalibCBFlag

	// Criteria terminate the sub-pixel refinement
	Criteria gocv.TermCriteria
}

// NewChessboardFinder returns a finder with the adaptive-threshold search and
// 30 iterations or 0.001 px of refinement.
func NewChessboardFinder() *ChessboardFinder {
	return &ChessboardFinder{
		Flags:    gocv.CalibCBAdaptiveThresh,
		Criteria: gocv.NewTermCriteria(gocv.MaxIter+gocv.EPS, 30, 0.001),
	}
}

// FindCorners implements CornerFinder.
func (f *ChessboardFinder) FindCorners(img image.Image, pattern image.Point) ([]r2.Point, error) {
	frame, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, errkind.Wrap(err, errkind.InvalidInput, "converting image")
	}
	defer frame.Close() //nolint:errcheck

	gray := gocv.NewMat()
	defer gray.Close() //nolint:errcheck
	gocv.CvtColor(frame, &gray, gocv.ColorRGBToGray)

	corners := gocv.NewMat()
	defer corners.Close() //nolint:errcheck
	if !gocv.FindChessboardCorners(gray, pattern, &corners, f.Flags) {
		return nil, nil
	}
	gocv.CornerSubPix(gray, &corners, image.Pt(11, 11), image.Pt(-1, -1), f.Criteria)

	vec := gocv.NewPoint2fVectorFromMat(corners)
	defer vec.Close()
	found := vec.ToPoints()
	out := make([]r2.Point, len(found))
	for i, p := range found {
		out[i] = r2.Point{X: float64(p.X), Y: float64(p.Y)}
	}
	return out, nil
}
