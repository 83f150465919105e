package camera

import (
	"math"

	"github.com/golang/geo/r2"

	"stereocalib/internal/errkind"
)

// Distortion holds Brown-Conrady coefficients. Count is the length of the
// coefficient vector of the lens model (4 without k3, 5 with it); K3 is
// always zero for the 4-coefficient model.
type Distortion struct {
	K1    float64 `yaml:"k1"`
	K2    float64 `yaml:"k2"`
	P1    float64 `yaml:"p1"`
	P2    float64 `yaml:"p2"`
	K3    float64 `yaml:"k3"`
	Count int     `yaml:"count"`
}

// NewDistortion builds a distortion from 4 or 5 coefficients. An empty list is
// the zero 5-coefficient model.
func NewDistortion(coeffs ...float64) (Distortion, error) {
	switch len(coeffs) {
	case 0:
		return Distortion{Count: 5}, nil
	case 4:
		return Distortion{K1: coeffs[0], K2: coeffs[1], P1: coeffs[2], P2: coeffs[3], Count: 4}, nil
	case 5:
		return Distortion{K1: coeffs[0], K2: coeffs[1], P1: coeffs[2], P2: coeffs[3], K3: coeffs[4], Count: 5}, nil
	default:
		return Distortion{}, errkind.New(errkind.InvalidInput,
			"distortion needs 4 or 5 coefficients, got %d", len(coeffs))
	}
}

// ZeroDistortion returns a distortion with every coefficient zero.
func ZeroDistortion(count int) Distortion {
	return Distortion{Count: count}
}

// CheckValid checks the coefficient count.
func (d Distortion) CheckValid() error {
	if d.Count != 4 && d.Count != 5 {
		return errkind.New(errkind.InvalidInput, "distortion model must have 4 or 5 coefficients, has %d", d.Count)
	}
	if d.Count == 4 && d.K3 != 0 {
		return errkind.New(errkind.InvalidInput, "4-coefficient distortion has non-zero k3")
	}
	return nil
}

// Coefficients returns the coefficient vector, Count values long.
func (d Distortion) Coefficients() []float64 {
	if d.Count == 4 {
		return []float64{d.K1, d.K2, d.P1, d.P2}
	}
	return []float64{d.K1, d.K2, d.P1, d.P2, d.K3}
}

// IsZero reports whether the model leaves points unchanged.
func (d Distortion) IsZero() bool {
	return d.K1 == 0 && d.K2 == 0 && d.P1 == 0 && d.P2 == 0 && d.K3 == 0
}

// Distort applies the forward model to a normalised image point:
//
//	x' = x(1 + k1 r² + k2 r⁴ + k3 r⁶) + 2 p1 x y + p2 (r² + 2x²)
//	y' = y(1 + k1 r² + k2 r⁴ + k3 r⁶) + p1 (r² + 2y²) + 2 p2 x y
func (d Distortion) Distort(p r2.Point) r2.Point {
	x, y := p.X, p.Y
	rsq := x*x + y*y
	radial := 1 + rsq*(d.K1+rsq*(d.K2+rsq*d.K3))
	return r2.Point{
		X: x*radial + 2*d.P1*x*y + d.P2*(rsq+2*x*x),
		Y: y*radial + d.P1*(rsq+2*y*y) + 2*d.P2*x*y,
	}
}

const (
	undistortIterations = 20
	undistortTolerance  = 1e-12
)

// Undistort inverts the forward model with Newton-Raphson iterations starting
// at the distorted point. Extreme input far outside the valid region of the
// model may converge to a meaningless point; callers that care crop the result.
func (d Distortion) Undistort(p r2.Point) r2.Point {
	if d.IsZero() {
		return p
	}
	xd, yd := p.X, p.Y
	xu, yu := xd, yd
	for i := 0; i < undistortIterations; i++ {
		rsq := xu*xu + yu*yu
		r4 := rsq * rsq
		radial := 1 + d.K1*rsq + d.K2*r4 + d.K3*r4*rsq

		ex := xu*radial + 2*d.P1*xu*yu + d.P2*(rsq+2*xu*xu) - xd
		ey := yu*radial + d.P1*(rsq+2*yu*yu) + 2*d.P2*xu*yu - yd
		if ex*ex+ey*ey < undistortTolerance*undistortTolerance {
			break
		}

		dRadial := d.K1 + 2*d.K2*rsq + 3*d.K3*r4
		dRdx := 2 * xu * dRadial
		dRdy := 2 * yu * dRadial

		jxx := radial + xu*dRdx + 2*d.P1*yu + 6*d.P2*xu
		jxy := xu*dRdy + 2*d.P1*xu + 2*d.P2*yu
		jyx := yu*dRdx + 2*d.P1*xu + 2*d.P2*yu
		jyy := radial + yu*dRdy + 6*d.P1*yu + 2*d.P2*xu

		det := jxx*jyy - jxy*jyx
		if det == 0 || math.IsNaN(det) {
			break
		}
		xu -= (jyy*ex - jxy*ey) / det
		yu -= (-jyx*ex + jxx*ey) / det
	}
	return r2.Point{X: xu, Y: yu}
}
