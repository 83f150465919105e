// Package calib estimates camera intrinsics, lens distortion and extrinsics
// from chessboard correspondences, for one camera or a stereo pair.
//
// Every solve is a Levenberg-Marquardt minimisation of the reprojection error.
// Without an intrinsic guess a single camera is calibrated in three passes:
// principal point and aspect ratio fixed, then only the principal point
// fixed, then fully free, each pass seeded from the previous one.
package calib

import (
	"image"
	"math"

	"go.uber.org/zap"

	"stereocalib/internal/errkind"
	"stereocalib/internal/logging"
	"stereocalib/internal/models"
	"stereocalib/pkg/camera"
	"stereocalib/pkg/spatial"
)

// Calibrator solves single-camera and stereo calibrations for images of one size.
type Calibrator struct {
	imageSize       image.Point
	distortionCount int
	maxIterations   int
	tolerance       float64
	logger          *zap.SugaredLogger
}

// Option configures a Calibrator.
type Option func(*Calibrator)

// WithDistortionCount selects the 4 (k1,k2,p1,p2) or 5 (k1,k2,p1,p2,k3)
// coefficient lens model for cameras without a guess. The default is 4.
func WithDistortionCount(n int) Option {
	return func(c *Calibrator) {
		c.distortionCount = n
	}
}

// WithMaxIterations bounds the iterations of every solve.
func WithMaxIterations(n int) Option {
	return func(c *Calibrator) {
		c.maxIterations = n
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(c *Calibrator) {
		c.logger = logger
	}
}

// NewCalibrator returns a Calibrator for images of the given size.
func NewCalibrator(imageSize image.Point, opts ...Option) (*Calibrator, error) {
	c := &Calibrator{
		imageSize:       imageSize,
		distortionCount: 4,
		maxIterations:   100,
		tolerance:       1e-10,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.OrNop(c.logger)
	if imageSize.X <= 0 || imageSize.Y <= 0 {
		return nil, errkind.New(errkind.InvalidInput, "invalid image size %v", imageSize)
	}
	if c.distortionCount != 4 && c.distortionCount != 5 {
		return nil, errkind.New(errkind.InvalidInput, "distortion model must have 4 or 5 coefficients, not %d", c.distortionCount)
	}
	if c.maxIterations <= 0 {
		return nil, errkind.New(errkind.InvalidInput, "max iterations must be positive")
	}
	return c, nil
}

// ImageSize returns the image size the calibrator was built for.
func (c *Calibrator) ImageSize() image.Point {
	return c.imageSize
}

// Result is a single-camera calibration.
type Result struct {
	// Model holds the fitted intrinsics and distortion
	Model camera.Model

	// Extrinsics holds the target-to-camera transform of each view
	Extrinsics []spatial.Transform

	// RMS is the root mean square pixel distance over all points
	RMS float64

	// PerViewRMS is the RMS of each view
	PerViewRMS []float64

	// Iterations is the number of solver iterations
	Iterations int
}

// MultiPassResult is the outcome of CalibrateMultiPass.
type MultiPassResult struct {
	Result

	// PassRMS holds the RMS of the three intrinsic passes
	PassRMS [3]float64
}

func (c *Calibrator) settings() lmSettings {
	return lmSettings{maxIterations: c.maxIterations, tolerance: c.tolerance}
}

func checkViews(views []models.View) error {
	if len(views) == 0 {
		return errkind.New(errkind.InputEmpty, "no views to calibrate")
	}
	for _, v := range views {
		if err := v.Validate(); err != nil {
			return err
		}
		if len(v.ObjectPoints) < 4 {
			return errkind.New(errkind.InvalidInput, "view %q has %d points, at least 4 are needed", v.Name, len(v.ObjectPoints))
		}
	}
	return nil
}

// Calibrate fits a camera to the views. Without UseIntrinsicGuess the guess
// is ignored and the intrinsics start from a closed-form estimate with no
// distortion; FixIntrinsic requires a guess. The guess is not modified.
func (c *Calibrator) Calibrate(views []models.View, guess *camera.Model, flags Flags) (*Result, error) {
	if err := checkViews(views); err != nil {
		return nil, err
	}

	var start camera.Model
	switch {
	case flags.Has(UseIntrinsicGuess) || flags.Has(FixIntrinsic):
		if err := guess.CheckValid(); err != nil {
			return nil, errkind.Wrap(err, errkind.InvalidInput, "intrinsic guess")
		}
		start = *guess
	default:
		in, err := initIntrinsics(views, c.imageSize, flags.Has(FixAspectRatio))
		if err != nil {
			return nil, err
		}
		start = camera.Model{Intrinsics: in, Distortion: camera.ZeroDistortion(c.distortionCount)}
	}

	poses := make([]spatial.Transform, len(views))
	for i, v := range views {
		pose, err := initPose(v, &start)
		if err != nil {
			return nil, err
		}
		poses[i] = pose
	}
	return c.refine(views, start, poses, flags), nil
}

// refine jointly solves the free intrinsics of model and the view poses.
func (c *Calibrator) refine(views []models.View, model camera.Model, poses []spatial.Transform, flags Flags) *Result {
	layout := newIntrinsicLayout(model, flags)
	nIntr := layout.size()
	params := make([]float64, nIntr+poseSize*len(views))
	layout.pack(params)
	for i, pose := range poses {
		packPose(params[nIntr+poseSize*i:], pose)
	}

	nPoints := countPoints(views)
	residuals := func(dst, x []float64) {
		m := layout.unpack(x[:nIntr])
		k := 0
		for i, v := range views {
			pose := unpackPose(x[nIntr+poseSize*i:])
			k += viewResiduals(dst[k:], v, &m, pose)
		}
	}
	res := levenbergMarquardt(residuals, 2*nPoints, params, c.settings())

	out := &Result{
		Model:      layout.unpack(res.params[:nIntr]),
		Extrinsics: make([]spatial.Transform, len(views)),
		Iterations: res.iterations,
	}
	for i := range views {
		out.Extrinsics[i] = unpackPose(res.params[nIntr+poseSize*i:])
	}
	out.RMS, out.PerViewRMS = ReprojectionError(views, &out.Model, out.Extrinsics)
	return out
}

// CalibrateMultiPass runs the three intrinsic passes followed by a full pass
// seeded from the third. Every pass RMS is logged; only the full pass result
// is returned, with the pass errors alongside.
func (c *Calibrator) CalibrateMultiPass(views []models.View) (*MultiPassResult, error) {
	pass1, err := c.Calibrate(views, nil, FixPrincipalPoint|FixAspectRatio)
	if err != nil {
		return nil, err
	}
	pass2 := c.refine(views, pass1.Model, pass1.Extrinsics, FixPrincipalPoint)
	pass3 := c.refine(views, pass2.Model, pass2.Extrinsics, 0)
	c.logger.Infow("intrinsic passes done",
		"views", len(views),
		"pass1RMS", pass1.RMS,
		"pass2RMS", pass2.RMS,
		"pass3RMS", pass3.RMS)

	full, err := c.Calibrate(views, &pass3.Model, UseIntrinsicGuess)
	switch {
	case err != nil:
		c.logger.Warnw("full calibration pass failed, keeping third pass", "error", err)
		full = pass3
	case !(full.RMS <= pass3.RMS):
		// The full pass restarts the extrinsics and can settle higher.
		full = pass3
	}
	c.logger.Infow("full calibration pass done", "rms", full.RMS, "iterations", full.Iterations)
	return &MultiPassResult{Result: *full, PassRMS: [3]float64{pass1.RMS, pass2.RMS, pass3.RMS}}, nil
}

// SolveExtrinsics fits the target-to-camera transform of every view with the
// model held fixed, returning the transforms and the per-view RMS.
func (c *Calibrator) SolveExtrinsics(views []models.View, model *camera.Model) ([]spatial.Transform, []float64, error) {
	if err := checkViews(views); err != nil {
		return nil, nil, err
	}
	if err := model.CheckValid(); err != nil {
		return nil, nil, err
	}
	poses := make([]spatial.Transform, len(views))
	perView := make([]float64, len(views))
	for i, v := range views {
		start, err := initPose(v, model)
		if err != nil {
			return nil, nil, err
		}
		res := c.refine([]models.View{v}, *model, []spatial.Transform{start}, FixIntrinsic)
		poses[i] = res.Extrinsics[0]
		perView[i] = res.RMS
	}
	return poses, perView, nil
}

// ReprojectionError returns the RMS pixel distance between the observed points
// and their reprojection over all views, and the RMS of each view.
func ReprojectionError(views []models.View, model *camera.Model, extrinsics []spatial.Transform) (float64, []float64) {
	perView := make([]float64, len(views))
	total, count := 0.0, 0
	var r []float64
	for i, v := range views {
		if cap(r) < 2*len(v.ObjectPoints) {
			r = make([]float64, 2*len(v.ObjectPoints))
		}
		r = r[:2*len(v.ObjectPoints)]
		viewResiduals(r, v, model, extrinsics[i])
		sq := sumSquares(r)
		perView[i] = math.Sqrt(sq / float64(len(v.ObjectPoints)))
		total += sq
		count += len(v.ObjectPoints)
	}
	if count == 0 {
		return 0, perView
	}
	return math.Sqrt(total / float64(count)), perView
}

// viewResiduals writes the x and y reprojection residuals of every point of v
// into dst and returns the number written.
func viewResiduals(dst []float64, v models.View, model *camera.Model, pose spatial.Transform) int {
	for j, p := range v.ObjectPoints {
		px := model.ProjectPoint(pose.Apply(p))
		dst[2*j] = px.X - v.ImagePoints[j].X
		dst[2*j+1] = px.Y - v.ImagePoints[j].Y
	}
	return 2 * len(v.ObjectPoints)
}

func countPoints(views []models.View) int {
	n := 0
	for _, v := range views {
		n += len(v.ObjectPoints)
	}
	return n
}
