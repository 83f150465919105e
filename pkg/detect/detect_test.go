package detect

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stereocalib/internal/errkind"
	"stereocalib/internal/logging"
)

// fakeFinder reports a full grid for images whose top-left pixel is white, a
// partial grid for grey, and nothing for black.
type fakeFinder struct {
	searched []image.Rectangle
}

func (f *fakeFinder) FindCorners(img image.Image, pattern image.Point) ([]r2.Point, error) {
	f.searched = append(f.searched, img.Bounds())
	r, _, _, _ := img.At(img.Bounds().Min.X, img.Bounds().Min.Y).RGBA()
	n := pattern.X * pattern.Y
	switch {
	case r == 0:
		return nil, nil
	case r < 0xffff:
		n--
	}
	scale := float64(img.Bounds().Dx()) / 100
	corners := make([]r2.Point, n)
	for i := range corners {
		corners[i] = r2.Point{X: float64(10+i%pattern.X) * scale, Y: float64(10+i/pattern.X) * scale}
	}
	return corners, nil
}

func solid(w, h int, c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func writePNG(t *testing.T, dir, name string, img image.Image) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
	return path
}

var grid = Grid{Width: 14, Height: 10, SquareSize: 3.0}

func TestGrid(t *testing.T) {
	require.NoError(t, grid.Validate())
	pts := grid.ObjectPoints()
	require.Len(t, pts, 140)
	assert.Equal(t, 0.0, pts[0].X)
	assert.Equal(t, 39.0, pts[13].X)
	assert.Equal(t, 3.0, pts[14].Y)
	assert.Equal(t, 27.0, pts[139].Y)
	for _, p := range pts {
		assert.Zero(t, p.Z)
	}

	assert.True(t, errkind.Is(Grid{Width: 1, Height: 5, SquareSize: 1}.Validate(), errkind.InvalidInput))
	assert.True(t, errkind.Is(Grid{Width: 3, Height: 5}.Validate(), errkind.InvalidInput))
}

func TestDetectFoundOnlyWithFullGrid(t *testing.T) {
	d, err := NewDetector(grid, &fakeFinder{}, WithLogger(logging.NewTestLogger(t)))
	require.NoError(t, err)

	view, err := d.Detect(solid(100, 80, color.White), "left.png")
	require.NoError(t, err)
	assert.Len(t, view.ImagePoints, 140)
	assert.Len(t, view.ObjectPoints, 140)
	require.NoError(t, view.Validate())

	_, err = d.Detect(solid(100, 80, color.Gray{Y: 128}), "partial.png")
	assert.True(t, errkind.Is(err, errkind.CountMismatch))
	assert.True(t, errkind.KindOf(err).Recoverable())

	_, err = d.Detect(solid(100, 80, color.Black), "none.png")
	assert.True(t, errkind.Is(err, errkind.DetectionFailure))
}

func TestDetectScale(t *testing.T) {
	finder := &fakeFinder{}
	d, err := NewDetector(grid, finder, WithScale(2))
	require.NoError(t, err)

	view, err := d.Detect(solid(100, 80, color.White), "small.png")
	require.NoError(t, err)
	require.Len(t, finder.searched, 1)
	assert.Equal(t, image.Rect(0, 0, 200, 160), finder.searched[0])
	assert.InDelta(t, 10, view.ImagePoints[0].X, 1e-12)
	assert.InDelta(t, 10, view.ImagePoints[0].Y, 1e-12)
}

func TestScaleCacheReuse(t *testing.T) {
	d, err := NewDetector(grid, &fakeFinder{}, WithScale(2))
	require.NoError(t, err)

	first := d.scratch.upscale(solid(100, 80, color.White), 2)
	second := d.scratch.upscale(solid(100, 80, color.Black), 2)
	assert.Same(t, first, second)
	r, _, _, _ := second.At(0, 0).RGBA()
	assert.Zero(t, r)

	gray := image.NewGray(image.Rect(0, 0, 100, 80))
	assert.IsType(t, &image.Gray{}, d.scratch.upscale(gray, 2))
	assert.Equal(t, 2, d.scratch.len())

	resized := d.scratch.upscale(solid(50, 40, color.White), 2)
	assert.NotSame(t, first, resized)
	assert.Equal(t, image.Rect(0, 0, 100, 80), resized.Bounds())

	d.Reset()
	assert.Zero(t, d.scratch.len())
}

func TestDetectStereoPair(t *testing.T) {
	dir := t.TempDir()
	debug := filepath.Join(dir, "debug")
	d, err := NewDetector(grid, &fakeFinder{}, WithDebugDir(debug))
	require.NoError(t, err)

	left := []string{
		writePNG(t, dir, "l0.png", solid(100, 80, color.White)),
		writePNG(t, dir, "l1.png", solid(100, 80, color.White)),
		writePNG(t, dir, "l2.png", solid(100, 80, color.Black)),
	}
	right := []string{
		writePNG(t, dir, "r0.png", solid(100, 80, color.White)),
		writePNG(t, dir, "r1.png", solid(100, 80, color.Gray{Y: 100})),
		writePNG(t, dir, "r2.png", solid(100, 80, color.White)),
	}

	res, err := d.DetectStereoFiles(left, right)
	require.NoError(t, err)
	assert.Len(t, res.Left, 1)
	assert.Len(t, res.Right, 1)
	assert.Equal(t, []int{1, 2}, res.FailedPairs)
	assert.Equal(t, image.Pt(100, 80), res.LeftSize)
	assert.Error(t, res.Err)

	_, err = os.Stat(filepath.Join(debug, "l0.corners.png"))
	assert.NoError(t, err)

	_, err = d.DetectStereoFiles(left, right[:2])
	assert.True(t, errkind.Is(err, errkind.SizeMismatch))
}

func TestDetectFiles(t *testing.T) {
	dir := t.TempDir()
	d, err := NewDetector(grid, &fakeFinder{})
	require.NoError(t, err)

	_, err = d.DetectFiles(nil)
	assert.True(t, errkind.Is(err, errkind.InputEmpty))

	good := writePNG(t, dir, "a.png", solid(100, 80, color.White))
	bad := writePNG(t, dir, "b.png", solid(100, 80, color.Black))
	res, err := d.DetectFiles([]string{good, bad, good})
	require.NoError(t, err)
	assert.Len(t, res.Views, 2)
	assert.Equal(t, []string{bad}, res.Failed)
	buf := res.Buffers()
	assert.Equal(t, []int{140, 140}, buf.PointCounts)

	_, err = d.DetectFiles([]string{bad, bad})
	assert.True(t, errkind.Is(err, errkind.InputEmpty))

	other := writePNG(t, dir, "c.png", solid(120, 80, color.White))
	_, err = d.DetectFiles([]string{good, other})
	assert.True(t, errkind.Is(err, errkind.SizeMismatch))
}
