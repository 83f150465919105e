package detect

import (
	"image"
	"path/filepath"
	"strings"

	"github.com/golang/geo/r2"
	"go.uber.org/zap"

	"stereocalib/internal/errkind"
	"stereocalib/internal/logging"
	"stereocalib/internal/models"
	"stereocalib/pkg/visualization"
)

// CornerFinder locates the internal corners of a chessboard pattern. It
// returns the corners it found in row-major order, refined to sub-pixel
// accuracy; fewer corners than pattern.X*pattern.Y, or none, means the board
// was not found. An error is only returned when the image cannot be processed.
type CornerFinder interface {
	FindCorners(img image.Image, pattern image.Point) ([]r2.Point, error)
}

// Detector runs a CornerFinder on images of one chessboard target.
type Detector struct {
	grid     Grid
	scale    int
	finder   CornerFinder
	debugDir string
	logger   *zap.SugaredLogger

	scratch scaleCache
}

// Option configures a Detector.
type Option func(*Detector)

// WithScale upscales images by an integer factor before the corner search.
// Found corners are scaled back to the original image.
func WithScale(scale int) Option {
	return func(d *Detector) {
		if scale > 1 {
			d.scale = scale
		}
	}
}

// WithDebugDir writes every image with its detected corners drawn onto it to
// dir. It does not change detection results.
func WithDebugDir(dir string) Option {
	return func(d *Detector) {
		d.debugDir = dir
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(d *Detector) {
		d.logger = logger
	}
}

// NewDetector returns a Detector for grid using finder.
func NewDetector(grid Grid, finder CornerFinder, opts ...Option) (*Detector, error) {
	if err := grid.Validate(); err != nil {
		return nil, err
	}
	if finder == nil {
		return nil, errkind.New(errkind.InvalidInput, "no corner finder")
	}
	d := &Detector{grid: grid, scale: 1, finder: finder}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = logging.OrNop(d.logger)
	return d, nil
}

// Grid returns the target the detector searches for.
func (d *Detector) Grid() Grid {
	return d.grid
}

// Detect searches img for the full grid. The name labels the resulting view
// and the debug image. A board with any corner missing is reported as a
// CountMismatch, a board that was not found at all as a DetectionFailure.
func (d *Detector) Detect(img image.Image, name string) (models.View, error) {
	search := img
	if d.scale > 1 {
		search = d.scratch.upscale(img, d.scale)
	}

	corners, err := d.finder.FindCorners(search, d.grid.Size())
	if err != nil {
		return models.View{}, errkind.Wrapf(err, errkind.DetectionFailure, "searching %s", name)
	}
	if d.scale > 1 {
		for i, c := range corners {
			corners[i] = c.Mul(1 / float64(d.scale))
		}
	}

	found := len(corners) == d.grid.NumCorners()
	d.writeDebug(img, name, corners, found)

	switch {
	case len(corners) == 0:
		return models.View{}, errkind.New(errkind.DetectionFailure, "no chessboard in %s", name)
	case !found:
		return models.View{}, errkind.New(errkind.CountMismatch, "found %d of %d corners in %s",
			len(corners), d.grid.NumCorners(), name)
	}
	return models.View{
		Name:         name,
		ObjectPoints: d.grid.ObjectPoints(),
		ImagePoints:  corners,
	}, nil
}

func (d *Detector) writeDebug(img image.Image, name string, corners []r2.Point, found bool) {
	if d.debugDir == "" {
		return
	}
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	path := filepath.Join(d.debugDir, base+".corners.png")
	if err := visualization.SaveImage(visualization.DrawCorners(img, corners, found), path); err != nil {
		d.logger.Warnw("could not write debug image", "path", path, "error", err)
	}
}

// Reset drops the cached upscaling buffers.
func (d *Detector) Reset() {
	d.scratch.clear()
}
