// Package models holds the plain data types shared between the detector, the
// calibrators, the persistence layer and the per-frame pipeline.
package models

import (
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"

	"stereocalib/internal/errkind"
)

// View is the correspondence set of one successful detection on one image
type View struct {
	// Name identifies the source image of the view
	Name string `yaml:"name"`

	// ObjectPoints are the target points in the target's own frame
	ObjectPoints []r3.Vector `yaml:"objectPoints"`

	// ImagePoints are the observed pixels, in the same order as ObjectPoints
	ImagePoints []r2.Point `yaml:"imagePoints"`
}

// Validate checks that the view holds matching, non-empty point lists.
func (v View) Validate() error {
	if len(v.ObjectPoints) == 0 {
		return errkind.New(errkind.InputEmpty, "view %q has no points", v.Name)
	}
	if len(v.ObjectPoints) != len(v.ImagePoints) {
		return errkind.New(errkind.CountMismatch, "view %q has %d object points and %d image points",
			v.Name, len(v.ObjectPoints), len(v.ImagePoints))
	}
	return nil
}

// IsPlanar reports whether every object point lies on z = 0.
func (v View) IsPlanar() bool {
	for _, p := range v.ObjectPoints {
		if p.Z != 0 {
			return false
		}
	}
	return true
}

// PointBuffers is the flattened form of a list of views. View i occupies the
// range starting at the sum of the first i counts in both point buffers.
type PointBuffers struct {
	// ImagePoints holds every observed pixel of every view
	ImagePoints []r2.Point `yaml:"imagePoints"`

	// ObjectPoints holds every target point of every view
	ObjectPoints []r3.Vector `yaml:"objectPoints"`

	// PointCounts holds the number of points of each view
	PointCounts []int `yaml:"pointCounts"`
}

// Flatten concatenates views into point buffers, preserving order.
func Flatten(views []View) PointBuffers {
	var buf PointBuffers
	for _, v := range views {
		buf.ImagePoints = append(buf.ImagePoints, v.ImagePoints...)
		buf.ObjectPoints = append(buf.ObjectPoints, v.ObjectPoints...)
		buf.PointCounts = append(buf.PointCounts, len(v.ObjectPoints))
	}
	return buf
}

// NumViews returns the number of views in the buffers.
func (b PointBuffers) NumViews() int {
	return len(b.PointCounts)
}

// Views splits the buffers back into views. The counts must sum to the
// length of both point buffers.
func (b PointBuffers) Views() ([]View, error) {
	if len(b.ImagePoints) != len(b.ObjectPoints) {
		return nil, errkind.New(errkind.CountMismatch, "%d image points but %d object points",
			len(b.ImagePoints), len(b.ObjectPoints))
	}
	total := 0
	for i, c := range b.PointCounts {
		if c <= 0 {
			return nil, errkind.New(errkind.InvalidInput, "view %d has point count %d", i, c)
		}
		total += c
	}
	if total != len(b.ImagePoints) {
		return nil, errkind.New(errkind.CountMismatch, "point counts sum to %d but buffers hold %d points",
			total, len(b.ImagePoints))
	}

	views := make([]View, len(b.PointCounts))
	start := 0
	for i, c := range b.PointCounts {
		views[i] = View{
			ObjectPoints: append([]r3.Vector(nil), b.ObjectPoints[start:start+c]...),
			ImagePoints:  append([]r2.Point(nil), b.ImagePoints[start:start+c]...),
		}
		start += c
	}
	return views, nil
}
