// Package camera models a pinhole camera with Brown-Conrady lens distortion in
// the coefficient order k1, k2, p1, p2[, k3].
package camera

import (
	"fmt"
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"

	"stereocalib/internal/errkind"
	"stereocalib/pkg/spatial"
)

// ErrNoIntrinsics is returned when intrinsics are missing or degenerate.
var ErrNoIntrinsics = errkind.New(errkind.InvalidInput, "camera intrinsic parameters are not available")

// Intrinsics holds the pinhole parameters of [[fx,0,cx],[0,fy,cy],[0,0,1]].
type Intrinsics struct {
	Fx float64 `yaml:"fx"`
	Fy float64 `yaml:"fy"`
	Cx float64 `yaml:"cx"`
	Cy float64 `yaml:"cy"`
}

// CheckValid checks that the focal lengths are positive and finite.
func (in Intrinsics) CheckValid() error {
	if !(in.Fx > 0) || !(in.Fy > 0) || math.IsInf(in.Fx, 0) || math.IsInf(in.Fy, 0) {
		return errkind.Wrap(ErrNoIntrinsics, errkind.InvalidInput,
			fmt.Sprintf("invalid focal lengths fx=%v fy=%v", in.Fx, in.Fy))
	}
	if math.IsNaN(in.Cx) || math.IsNaN(in.Cy) {
		return errkind.Wrap(ErrNoIntrinsics, errkind.InvalidInput, "principal point is NaN")
	}
	return nil
}

// Matrix returns the 3x3 intrinsic matrix.
func (in Intrinsics) Matrix() spatial.Matrix3 {
	return spatial.Matrix3{
		{in.Fx, 0, in.Cx},
		{0, in.Fy, in.Cy},
		{0, 0, 1},
	}
}

// IntrinsicsFromMatrix reads fx, fy, cx, cy from an intrinsic matrix.
func IntrinsicsFromMatrix(m spatial.Matrix3) (Intrinsics, error) {
	in := Intrinsics{Fx: m[0][0], Fy: m[1][1], Cx: m[0][2], Cy: m[1][2]}
	if m[2][0] != 0 || m[2][1] != 0 || m[2][2] != 1 {
		return in, errkind.New(errkind.InvalidInput, "intrinsic matrix bottom row must be [0 0 1], got %v", m[2])
	}
	return in, in.CheckValid()
}

// IntrinsicsFrom builds Intrinsics from 9 row-major float32 or float64 values.
func IntrinsicsFrom[T spatial.Float](vals []T) (Intrinsics, error) {
	m, err := spatial.Matrix3From(vals)
	if err != nil {
		return Intrinsics{}, err
	}
	return IntrinsicsFromMatrix(m)
}

// Normalize maps a pixel to the normalised image plane (z = 1).
func (in Intrinsics) Normalize(p r2.Point) r2.Point {
	return r2.Point{X: (p.X - in.Cx) / in.Fx, Y: (p.Y - in.Cy) / in.Fy}
}

// Denormalize maps a normalised image point to pixels.
func (in Intrinsics) Denormalize(p r2.Point) r2.Point {
	return r2.Point{X: p.X*in.Fx + in.Cx, Y: p.Y*in.Fy + in.Cy}
}

// Ray returns the back-projected direction of a pixel in the camera frame.
func (in Intrinsics) Ray(p r2.Point) r3.Vector {
	n := in.Normalize(p)
	return r3.Vector{X: n.X, Y: n.Y, Z: 1}
}

// Model pairs intrinsics with the distortion of the same lens.
type Model struct {
	Intrinsics Intrinsics `yaml:"intrinsics"`
	Distortion Distortion `yaml:"distortion"`
}

// CheckValid validates both parts of the model.
func (m *Model) CheckValid() error {
	if m == nil {
		return ErrNoIntrinsics
	}
	if err := m.Intrinsics.CheckValid(); err != nil {
		return err
	}
	return m.Distortion.CheckValid()
}

// ProjectPoint projects a point in the camera frame to a distorted pixel.
// Points on or behind the image plane project to NaN.
func (m *Model) ProjectPoint(p r3.Vector) r2.Point {
	if !(p.Z > 0) {
		return r2.Point{X: math.NaN(), Y: math.NaN()}
	}
	n := m.Distortion.Distort(r2.Point{X: p.X / p.Z, Y: p.Y / p.Z})
	return m.Intrinsics.Denormalize(n)
}

// ProjectIdeal projects a point in the camera frame without distortion.
func (m *Model) ProjectIdeal(p r3.Vector) r2.Point {
	if !(p.Z > 0) {
		return r2.Point{X: math.NaN(), Y: math.NaN()}
	}
	return m.Intrinsics.Denormalize(r2.Point{X: p.X / p.Z, Y: p.Y / p.Z})
}

// DistortPixel maps an ideal pixel to the pixel the lens would observe.
func (m *Model) DistortPixel(ideal r2.Point) r2.Point {
	n := m.Distortion.Distort(m.Intrinsics.Normalize(ideal))
	return m.Intrinsics.Denormalize(n)
}

// UndistortPixel maps an observed pixel to its ideal pinhole pixel.
func (m *Model) UndistortPixel(observed r2.Point) r2.Point {
	n := m.Distortion.Undistort(m.Intrinsics.Normalize(observed))
	return m.Intrinsics.Denormalize(n)
}

// CropBounds is an inclusive screen rectangle. Points outside it are replaced
// by Sentinel in both coordinates.
type CropBounds struct {
	XLow     float64 `yaml:"xLow"`
	XHigh    float64 `yaml:"xHigh"`
	YLow     float64 `yaml:"yLow"`
	YHigh    float64 `yaml:"yHigh"`
	Sentinel float64 `yaml:"sentinel"`
}

// NewScreenCrop returns bounds covering a width x height image.
func NewScreenCrop(width, height int, sentinel float64) *CropBounds {
	return &CropBounds{XLow: 0, XHigh: float64(width - 1), YLow: 0, YHigh: float64(height - 1), Sentinel: sentinel}
}

// Contains reports whether p is inside the bounds. NaN coordinates are outside.
func (c *CropBounds) Contains(p r2.Point) bool {
	return p.X >= c.XLow && p.X <= c.XHigh && p.Y >= c.YLow && p.Y <= c.YHigh
}

// SentinelPoint returns the crop value in both coordinates.
func (c *CropBounds) SentinelPoint() r2.Point {
	return r2.Point{X: c.Sentinel, Y: c.Sentinel}
}

// IsSentinel reports whether p carries the crop value. A NaN sentinel is matched by NaN.
func (c *CropBounds) IsSentinel(p r2.Point) bool {
	if math.IsNaN(c.Sentinel) {
		return math.IsNaN(p.X) && math.IsNaN(p.Y)
	}
	return p.X == c.Sentinel && p.Y == c.Sentinel
}
