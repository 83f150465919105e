// Package projection projects 3D points onto both images of a calibrated
// stereo rig, with optional back-face culling and screen cropping.
package projection

import (
	"strings"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"

	"stereocalib/internal/errkind"
	"stereocalib/pkg/camera"
	"stereocalib/pkg/spatial"
)

// DefaultVisibilityThreshold is the largest dot(normal, view direction) a
// point may have and still face the camera.
const DefaultVisibilityThreshold = -0.1

// Space names the frame the input points are expressed in.
type Space int

const (
	// LensSpace points are already in the left camera frame.
	LensSpace Space = iota
	// ObjectSpace points are in a model frame; Extrinsic maps model to left camera.
	ObjectSpace
	// WorldSpace points are in the tracking world; Extrinsic is the left
	// camera-to-world pose and is inverted before use.
	WorldSpace
)

var spaceNames = []string{"lens", "object", "world"}

func (s Space) String() string {
	if s < 0 || int(s) >= len(spaceNames) {
		return "unknown"
	}
	return spaceNames[s]
}

// ParseSpace converts a config value into a Space.
func ParseSpace(s string) (Space, error) {
	for i, name := range spaceNames {
		if strings.EqualFold(s, name) {
			return Space(i), nil
		}
	}
	return LensSpace, errkind.New(errkind.InvalidInput, "unknown coordinate space %q", s)
}

// Rig is a calibrated stereo pair with its lens models.
type Rig struct {
	Left, Right camera.Model
	RightToLeft spatial.Transform
}

// CheckValid checks both lens models.
func (r *Rig) CheckValid() error {
	if err := r.Left.CheckValid(); err != nil {
		return errkind.Wrap(err, errkind.InvalidInput, "left camera")
	}
	if err := r.Right.CheckValid(); err != nil {
		return errkind.Wrap(err, errkind.InvalidInput, "right camera")
	}
	return nil
}

// Options controls one projection call.
type Options struct {
	// Space is the frame of the input points and normals
	Space Space

	// Extrinsic moves ObjectSpace and WorldSpace input into the left camera
	Extrinsic spatial.Transform

	// Crop, when set, replaces points whose undistorted projection is off
	// screen with the crop sentinel, per image
	Crop *camera.CropBounds

	// ViewDirection is the camera viewing direction in the left camera frame;
	// the zero vector means +Z
	ViewDirection r3.Vector

	// VisibilityThreshold overrides DefaultVisibilityThreshold when non-zero
	VisibilityThreshold float64
}

func (o Options) toLens() spatial.Transform {
	switch o.Space {
	case ObjectSpace:
		return o.Extrinsic
	case WorldSpace:
		return o.Extrinsic.Inverse()
	default:
		return spatial.IdentityTransform()
	}
}

func (o Options) viewDirection() r3.Vector {
	if o.ViewDirection == (r3.Vector{}) {
		return r3.Vector{Z: 1}
	}
	return o.ViewDirection.Normalize()
}

func (o Options) threshold() float64 {
	if o.VisibilityThreshold == 0 {
		return DefaultVisibilityThreshold
	}
	return o.VisibilityThreshold
}

// Result holds the projections. Left[i] and Right[i] are the distorted pixels
// of Points[i], the input point Indices[i] moved into the left camera frame.
// Normals is only filled by ProjectVisible.
type Result struct {
	Left, Right []r2.Point
	Points      []r3.Vector
	Normals     []r3.Vector
	Indices     []int
}

// Len returns the number of projected points.
func (r Result) Len() int {
	return len(r.Left)
}

// Project projects every point through both cameras.
func Project(points []r3.Vector, rig *Rig, opts Options) (Result, error) {
	if err := rig.CheckValid(); err != nil {
		return Result{}, err
	}
	toLens := opts.toLens()
	toRight := rig.RightToLeft.Inverse()
	res := newResult(len(points), false)
	for i, p := range points {
		res.add(rig, toRight, opts.Crop, i, toLens.Apply(p), r3.Vector{}, false)
	}
	return res, nil
}

// ProjectVisible projects only the points whose normal faces the camera,
// dot(normal, view direction) below the visibility threshold. Culled points
// are absent from every output slice; no visible points is a valid result.
func ProjectVisible(points, normals []r3.Vector, rig *Rig, opts Options) (Result, error) {
	if len(points) != len(normals) {
		return Result{}, errkind.New(errkind.SizeMismatch, "%d points but %d normals", len(points), len(normals))
	}
	if err := rig.CheckValid(); err != nil {
		return Result{}, err
	}
	toLens := opts.toLens()
	view := opts.viewDirection()
	threshold := opts.threshold()

	visible := make([]int, 0, len(points))
	lensNormals := make([]r3.Vector, len(normals))
	for i, n := range normals {
		lensNormals[i] = toLens.ApplyDirection(n)
		if lensNormals[i].Dot(view) < threshold {
			visible = append(visible, i)
		}
	}

	toRight := rig.RightToLeft.Inverse()
	res := newResult(len(visible), true)
	for _, i := range visible {
		res.add(rig, toRight, opts.Crop, i, toLens.Apply(points[i]), lensNormals[i], true)
	}
	return res, nil
}

func newResult(n int, withNormals bool) Result {
	res := Result{
		Left:    make([]r2.Point, 0, n),
		Right:   make([]r2.Point, 0, n),
		Points:  make([]r3.Vector, 0, n),
		Indices: make([]int, 0, n),
	}
	if withNormals {
		res.Normals = make([]r3.Vector, 0, n)
	}
	return res
}

func (r *Result) add(rig *Rig, toRight spatial.Transform, crop *camera.CropBounds, index int, lens, normal r3.Vector, withNormal bool) {
	right := toRight.Apply(lens)
	r.Left = append(r.Left, projectOne(&rig.Left, lens, crop))
	r.Right = append(r.Right, projectOne(&rig.Right, right, crop))
	r.Points = append(r.Points, lens)
	r.Indices = append(r.Indices, index)
	if withNormal {
		r.Normals = append(r.Normals, normal)
	}
}

// projectOne projects p through model. With a crop, the decision uses the
// undistorted projection so distortion extrapolation cannot pull an off-screen
// point onto the screen.
func projectOne(model *camera.Model, p r3.Vector, crop *camera.CropBounds) r2.Point {
	if crop != nil && !crop.Contains(model.ProjectIdeal(p)) {
		return crop.SentinelPoint()
	}
	return model.ProjectPoint(p)
}
