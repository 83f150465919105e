package camera

import (
	"math"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"stereocalib/internal/errkind"
	"stereocalib/pkg/spatial"
)

func testModel() *Model {
	d, _ := NewDistortion(-0.21, 0.12, 0.001, -0.0015, -0.02)
	return &Model{
		Intrinsics: Intrinsics{Fx: 1040, Fy: 1035, Cx: 962, Cy: 541},
		Distortion: d,
	}
}

func TestIntrinsicsMatrix(t *testing.T) {
	in := Intrinsics{Fx: 800, Fy: 810, Cx: 320, Cy: 240}
	back, err := IntrinsicsFromMatrix(in.Matrix())
	require.NoError(t, err)
	assert.Equal(t, in, back)

	bad := in.Matrix()
	bad[2][2] = 2
	_, err = IntrinsicsFromMatrix(bad)
	assert.True(t, errkind.Is(err, errkind.InvalidInput))

	_, err = IntrinsicsFromMatrix(spatial.Matrix3{{0, 0, 1}, {0, 1, 1}, {0, 0, 1}})
	assert.Error(t, err)

	f32, err := IntrinsicsFrom([]float32{800, 0, 320, 0, 810, 240, 0, 0, 1})
	require.NoError(t, err)
	assert.Equal(t, in, f32)
}

func TestNewDistortion(t *testing.T) {
	d4, err := NewDistortion(0.1, 0.2, 0.3, 0.4)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.1, 0.2, 0.3, 0.4}, d4.Coefficients())
	require.NoError(t, d4.CheckValid())

	d0, err := NewDistortion()
	require.NoError(t, err)
	assert.True(t, d0.IsZero())
	assert.Len(t, d0.Coefficients(), 5)

	_, err = NewDistortion(1, 2, 3)
	assert.True(t, errkind.Is(err, errkind.InvalidInput))

	assert.Error(t, Distortion{Count: 3}.CheckValid())
	assert.Error(t, Distortion{Count: 4, K3: 1}.CheckValid())
}

func TestUndistortRoundTrip(t *testing.T) {
	model := testModel()
	for _, ideal := range []r2.Point{
		{X: 962, Y: 541},
		{X: 100, Y: 80},
		{X: 1800, Y: 1000},
		{X: 500, Y: 900},
	} {
		observed := model.DistortPixel(ideal)
		back := Undistort(observed, model, nil)
		assert.InDelta(t, ideal.X, back.X, 1e-6, "ideal %v", ideal)
		assert.InDelta(t, ideal.Y, back.Y, 1e-6, "ideal %v", ideal)
	}
}

func TestUndistortCropping(t *testing.T) {
	model := testModel()
	crop := &CropBounds{XLow: 0, XHigh: 1919, YLow: 0, YHigh: 1079, Sentinel: -100}

	inside := Undistort(r2.Point{X: 900, Y: 500}, model, crop)
	assert.False(t, crop.IsSentinel(inside))

	model.Distortion.K1 = 0
	model.Distortion.K2 = 0
	model.Distortion.K3 = 0
	model.Distortion.P1 = 0
	model.Distortion.P2 = 0
	outside := Undistort(r2.Point{X: 2500, Y: 500}, model, crop)
	assert.Equal(t, r2.Point{X: -100, Y: -100}, outside)

	nanCrop := NewScreenCrop(1920, 1080, math.NaN())
	assert.True(t, nanCrop.IsSentinel(Undistort(r2.Point{X: -5, Y: 5}, model, nanCrop)))
}

func TestUndistortCallShapes(t *testing.T) {
	model := testModel()
	pts := []r2.Point{{X: 10, Y: 20}, {X: 960, Y: 540}, {X: 1500, Y: 300}}

	batch := UndistortPoints(pts, model, nil)
	require.Len(t, batch, 3)

	m := mat.NewDense(3, 2, nil)
	for i, p := range pts {
		m.Set(i, 0, p.X)
		m.Set(i, 1, p.Y)
	}
	out, err := UndistortMatrix(m, model, nil)
	require.NoError(t, err)

	for i, p := range pts {
		single := Undistort(p, model, nil)
		assert.Equal(t, single, batch[i])
		assert.Equal(t, single.X, out.At(i, 0))
		assert.Equal(t, single.Y, out.At(i, 1))
	}

	_, err = UndistortMatrix(mat.NewDense(2, 3, nil), model, nil)
	assert.True(t, errkind.Is(err, errkind.InvalidInput))
}

func TestProjectPoint(t *testing.T) {
	model := &Model{Intrinsics: Intrinsics{Fx: 500, Fy: 500, Cx: 320, Cy: 240}, Distortion: ZeroDistortion(5)}
	p := model.ProjectPoint(r3.Vector{X: 10, Y: -20, Z: 100})
	assert.InDelta(t, 370, p.X, 1e-12)
	assert.InDelta(t, 140, p.Y, 1e-12)
	assert.Equal(t, p, model.ProjectIdeal(r3.Vector{X: 10, Y: -20, Z: 100}))

	behind := model.ProjectPoint(r3.Vector{X: 0, Y: 0, Z: -1})
	assert.True(t, math.IsNaN(behind.X))

	ray := model.Intrinsics.Ray(p)
	assert.InDelta(t, 0.1, ray.X, 1e-12)
	assert.InDelta(t, -0.2, ray.Y, 1e-12)
}
