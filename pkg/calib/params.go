package calib

import (
	"github.com/golang/geo/r3"

	"stereocalib/pkg/camera"
	"stereocalib/pkg/spatial"
)

// Flags select which intrinsic parameters a solve may change.
type Flags uint

const (
	// UseIntrinsicGuess starts from the supplied intrinsics instead of a
	// closed-form initialisation.
	UseIntrinsicGuess Flags = 1 << iota
	// FixPrincipalPoint keeps cx and cy.
	FixPrincipalPoint
	// FixAspectRatio keeps fy/fx.
	FixAspectRatio
	// ZeroTangentDist forces p1 = p2 = 0.
	ZeroTangentDist
	// FixK3 keeps k3.
	FixK3
	// FixIntrinsic keeps every intrinsic and distortion parameter; only
	// extrinsics are solved.
	FixIntrinsic
)

// Has reports whether every flag in g is set.
func (f Flags) Has(g Flags) bool {
	return f&g == g
}

const (
	idxFx = iota
	idxFy
	idxCx
	idxCy
	idxK1
	idxK2
	idxP1
	idxP2
	idxK3
	numIntrinsic
)

type intrinsicVector [numIntrinsic]float64

func vectorFromModel(m camera.Model) intrinsicVector {
	return intrinsicVector{
		m.Intrinsics.Fx, m.Intrinsics.Fy, m.Intrinsics.Cx, m.Intrinsics.Cy,
		m.Distortion.K1, m.Distortion.K2, m.Distortion.P1, m.Distortion.P2, m.Distortion.K3,
	}
}

func (v intrinsicVector) model(count int) camera.Model {
	return camera.Model{
		Intrinsics: camera.Intrinsics{Fx: v[idxFx], Fy: v[idxFy], Cx: v[idxCx], Cy: v[idxCy]},
		Distortion: camera.Distortion{
			K1: v[idxK1], K2: v[idxK2], P1: v[idxP1], P2: v[idxP2], K3: v[idxK3], Count: count,
		},
	}
}

// intrinsicLayout maps the free intrinsic parameters of one camera into a
// parameter vector.
type intrinsicLayout struct {
	base   intrinsicVector
	free   []int
	aspect float64
	count  int
}

func newIntrinsicLayout(m camera.Model, flags Flags) intrinsicLayout {
	l := intrinsicLayout{base: vectorFromModel(m), count: m.Distortion.Count}
	if flags.Has(ZeroTangentDist) {
		l.base[idxP1], l.base[idxP2] = 0, 0
	}
	if l.count == 4 {
		l.base[idxK3] = 0
	}
	if flags.Has(FixIntrinsic) {
		return l
	}

	l.free = append(l.free, idxFx)
	if flags.Has(FixAspectRatio) {
		l.aspect = l.base[idxFy] / l.base[idxFx]
	} else {
		l.free = append(l.free, idxFy)
	}
	if !flags.Has(FixPrincipalPoint) {
		l.free = append(l.free, idxCx, idxCy)
	}
	l.free = append(l.free, idxK1, idxK2)
	if !flags.Has(ZeroTangentDist) {
		l.free = append(l.free, idxP1, idxP2)
	}
	if l.count == 5 && !flags.Has(FixK3) {
		l.free = append(l.free, idxK3)
	}
	return l
}

func (l intrinsicLayout) size() int {
	return len(l.free)
}

func (l intrinsicLayout) pack(dst []float64) {
	for i, idx := range l.free {
		dst[i] = l.base[idx]
	}
}

func (l intrinsicLayout) unpack(params []float64) camera.Model {
	v := l.base
	for i, idx := range l.free {
		v[idx] = params[i]
	}
	if l.aspect > 0 {
		v[idxFy] = v[idxFx] * l.aspect
	}
	return v.model(l.count)
}

const poseSize = 6

func packPose(dst []float64, t spatial.Transform) {
	rv := t.RotationVector()
	dst[0], dst[1], dst[2] = rv.X, rv.Y, rv.Z
	dst[3], dst[4], dst[5] = t.Translation.X, t.Translation.Y, t.Translation.Z
}

func unpackPose(params []float64) spatial.Transform {
	return spatial.NewTransform(
		r3.Vector{X: params[0], Y: params[1], Z: params[2]},
		r3.Vector{X: params[3], Y: params[4], Z: params[5]},
	)
}
