// Package visualization draws diagnostic overlays of detected and projected
// points and plots temporal calibration sweeps.
package visualization

import (
	"image"
	"image/color"
	"math"

	"github.com/fogleman/gg"
	"github.com/golang/geo/r2"
)

var (
	// FoundColor marks corners of a complete detection
	FoundColor = color.RGBA{R: 0, G: 220, B: 0, A: 255}

	// MissingColor marks corners of an incomplete detection
	MissingColor = color.RGBA{R: 230, G: 0, B: 0, A: 255}

	// ProjectedColor marks projected model points
	ProjectedColor = color.RGBA{R: 255, G: 200, B: 0, A: 255}
)

// DrawCorners draws detected chessboard corners onto a copy of img. Corners are
// joined in detection order, so a complete detection shows the row-major
// zig-zag of the grid. The first corner is drawn larger to show orientation.
func DrawCorners(img image.Image, corners []r2.Point, found bool) image.Image {
	dc := gg.NewContextForImage(img)
	c := MissingColor
	if found {
		c = FoundColor
	}
	dc.SetColor(c)
	dc.SetLineWidth(1)
	for i := 1; i < len(corners); i++ {
		dc.DrawLine(corners[i-1].X, corners[i-1].Y, corners[i].X, corners[i].Y)
	}
	dc.Stroke()

	for i, p := range corners {
		radius := 3.0
		if i == 0 {
			radius = 6
		}
		dc.DrawCircle(p.X, p.Y, radius)
		dc.Stroke()
	}
	return dc.Image()
}

// DrawPoints draws filled markers at every point inside the image onto a copy
// of img. NaN and off-image points, such as cropped projections, are skipped.
// It returns the number of markers drawn.
func DrawPoints(img image.Image, points []r2.Point, c color.Color, radius float64) (image.Image, int) {
	dc := gg.NewContextForImage(img)
	dc.SetColor(c)
	bounds := img.Bounds()
	drawn := 0
	for _, p := range points {
		if math.IsNaN(p.X) || math.IsNaN(p.Y) {
			continue
		}
		if p.X < float64(bounds.Min.X) || p.Y < float64(bounds.Min.Y) ||
			p.X >= float64(bounds.Max.X) || p.Y >= float64(bounds.Max.Y) {
			continue
		}
		dc.DrawCircle(p.X, p.Y, radius)
		dc.Fill()
		drawn++
	}
	return dc.Image(), drawn
}

// DrawLabel writes text at the top left corner of a copy of img.
func DrawLabel(img image.Image, text string, c color.Color) image.Image {
	dc := gg.NewContextForImage(img)
	dc.SetColor(c)
	dc.DrawString(text, 10, 20)
	return dc.Image()
}
