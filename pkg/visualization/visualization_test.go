package visualization

import (
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func blank(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	return img
}

func TestDrawPointsSkipsCropped(t *testing.T) {
	img := blank(64, 48)
	pts := []r2.Point{
		{X: 10, Y: 10},
		{X: math.NaN(), Y: math.NaN()},
		{X: -100, Y: -100},
		{X: 70, Y: 10},
		{X: 30, Y: 30},
	}
	out, drawn := DrawPoints(img, pts, ProjectedColor, 2)
	assert.Equal(t, 2, drawn)
	assert.Equal(t, img.Bounds(), out.Bounds())

	r, g, b, _ := out.At(10, 10).RGBA()
	pr, pg, pb, _ := ProjectedColor.RGBA()
	assert.Equal(t, []uint32{pr, pg, pb}, []uint32{r, g, b})

	r, g, b, _ = img.At(10, 10).RGBA()
	assert.Equal(t, []uint32{0xffff, 0xffff, 0xffff}, []uint32{r, g, b}, "input must not be modified")
}

func TestDrawCornersAndSave(t *testing.T) {
	img := blank(40, 40)
	out := DrawCorners(img, []r2.Point{{X: 5, Y: 5}, {X: 20, Y: 5}, {X: 5, Y: 20}}, true)
	out = DrawLabel(out, "found", color.Black)

	dir := t.TempDir()
	for _, name := range []string{"a.png", "sub/b.jpg"} {
		path := filepath.Join(dir, name)
		require.NoError(t, SaveImage(out, path))
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Positive(t, info.Size())
	}
	assert.Error(t, SaveImage(out, filepath.Join(dir, "c.gif")))
	assert.Equal(t, filepath.Join(dir, "left_000042.png"), FrameFilename(dir, "left", 42))
}

func TestPlotLagSweep(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sweep.png")
	lags := []float64{0, 10, 20, 30}
	scores := []float64{4, 2, 1, 3}
	require.NoError(t, PlotLagSweep("lag", lags, scores, 20, path))
	_, err := os.Stat(path)
	require.NoError(t, err)

	assert.Error(t, PlotLagSweep("lag", lags, scores[:2], 20, path))
	assert.Error(t, PlotLagSweep("lag", nil, nil, 0, path))
}
