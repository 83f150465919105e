// Package detect finds chessboard corner correspondences in calibration images.
package detect

import (
	"image"

	"github.com/golang/geo/r3"

	"stereocalib/internal/errkind"
)

// Grid describes a chessboard target by its internal corner counts and the
// physical size of one square.
type Grid struct {
	Width      int     `yaml:"width"`
	Height     int     `yaml:"height"`
	SquareSize float64 `yaml:"squareSize"`
}

// Validate checks the grid has at least 2x2 corners and a positive square size.
func (g Grid) Validate() error {
	if g.Width < 2 || g.Height < 2 {
		return errkind.New(errkind.InvalidInput, "chessboard needs at least 2x2 internal corners, got %dx%d",
			g.Width, g.Height)
	}
	if !(g.SquareSize > 0) {
		return errkind.New(errkind.InvalidInput, "square size must be positive, got %v", g.SquareSize)
	}
	return nil
}

// Size returns the internal corner counts as a pattern size.
func (g Grid) Size() image.Point {
	return image.Pt(g.Width, g.Height)
}

// NumCorners returns Width * Height.
func (g Grid) NumCorners() int {
	return g.Width * g.Height
}

// ObjectPoints returns the corner positions on the z = 0 plane of the target,
// row by row, in the order a corner search reports them.
func (g Grid) ObjectPoints() []r3.Vector {
	pts := make([]r3.Vector, 0, g.NumCorners())
	for row := 0; row < g.Height; row++ {
		for col := 0; col < g.Width; col++ {
			pts = append(pts, r3.Vector{
				X: float64(col) * g.SquareSize,
				Y: float64(row) * g.SquareSize,
			})
		}
	}
	return pts
}
