package calib

import (
	"math"

	"stereocalib/internal/errkind"
	"stereocalib/internal/models"
	"stereocalib/pkg/camera"
	"stereocalib/pkg/spatial"
)

// StereoOptions selects the stereo calibration mode.
type StereoOptions struct {
	// FixedIntrinsics keeps Left and Right and only solves the extrinsics
	// and the stereo geometry
	FixedIntrinsics bool

	// Left and Right are the known cameras in fixed-intrinsics mode. They are
	// not modified.
	Left, Right *camera.Model
}

// StereoResult is a stereo calibration. Transforms map points from the frame
// named first into the frame named second: RightToLeft takes right camera
// coordinates to left camera coordinates.
type StereoResult struct {
	// Left and Right are the final camera models
	Left, Right camera.Model

	// RightToLeft is the joint-solve transform, the inverse of LeftToRight
	RightToLeft spatial.Transform

	// LeftToRight is the joint-solve transform as the solver estimates it
	LeftToRight spatial.Transform

	// PerViewRightToLeft holds the transform recomputed from each view alone
	PerViewRightToLeft []spatial.Transform

	// MedianRightToLeft is the component-wise median of PerViewRightToLeft
	MedianRightToLeft spatial.Transform

	// LeftExtrinsics and RightExtrinsics hold the per-view target-to-camera
	// transforms refitted with the final intrinsics
	LeftExtrinsics, RightExtrinsics []spatial.Transform

	// LeftPerViewRMS and RightPerViewRMS are the per-view errors of that refit
	LeftPerViewRMS, RightPerViewRMS []float64

	// Essential and Fundamental relate left to right image points:
	// xRᵀ E xL = 0 in normalised coordinates and pRᵀ F pL = 0 in pixels
	Essential, Fundamental spatial.Matrix3

	// RMS is the joint reprojection error over both cameras
	RMS float64

	// LeftPassRMS and RightPassRMS hold the intrinsic pass errors when the
	// intrinsics were free
	LeftPassRMS, RightPassRMS [3]float64
}

func checkStereoViews(left, right []models.View) error {
	if len(left) == 0 || len(right) == 0 {
		return errkind.New(errkind.InputEmpty, "no stereo views to calibrate")
	}
	if len(left) != len(right) {
		return errkind.New(errkind.SizeMismatch, "%d left views but %d right views", len(left), len(right))
	}
	for i := range left {
		if len(left[i].ObjectPoints) != len(right[i].ObjectPoints) {
			return errkind.New(errkind.SizeMismatch, "view %d has %d left points but %d right points",
				i, len(left[i].ObjectPoints), len(right[i].ObjectPoints))
		}
	}
	return nil
}

// CalibrateStereo calibrates a stereo pair from positionally matched left and
// right views of the same target poses.
//
// With free intrinsics each camera is first calibrated on its own by
// CalibrateMultiPass and the joint solve refines both; with fixed intrinsics
// only the extrinsics are solved. A second extrinsics-only pass per camera
// then gives the per-view errors and per-view right-to-left transforms.
func (c *Calibrator) CalibrateStereo(left, right []models.View, opts StereoOptions) (*StereoResult, error) {
	if err := checkStereoViews(left, right); err != nil {
		return nil, err
	}
	if err := checkViews(left); err != nil {
		return nil, err
	}
	if err := checkViews(right); err != nil {
		return nil, err
	}

	res := &StereoResult{}
	var leftPoses, rightPoses []spatial.Transform
	flags := UseIntrinsicGuess
	if opts.FixedIntrinsics {
		flags = FixIntrinsic
		if err := opts.Left.CheckValid(); err != nil {
			return nil, errkind.Wrap(err, errkind.InvalidInput, "left camera")
		}
		if err := opts.Right.CheckValid(); err != nil {
			return nil, errkind.Wrap(err, errkind.InvalidInput, "right camera")
		}
		res.Left, res.Right = *opts.Left, *opts.Right
		var err error
		if leftPoses, _, err = c.SolveExtrinsics(left, &res.Left); err != nil {
			return nil, errkind.Wrap(err, errkind.KindOf(err), "left camera")
		}
		if rightPoses, _, err = c.SolveExtrinsics(right, &res.Right); err != nil {
			return nil, errkind.Wrap(err, errkind.KindOf(err), "right camera")
		}
	} else {
		lres, err := c.CalibrateMultiPass(left)
		if err != nil {
			return nil, errkind.Wrap(err, errkind.KindOf(err), "left camera")
		}
		rres, err := c.CalibrateMultiPass(right)
		if err != nil {
			return nil, errkind.Wrap(err, errkind.KindOf(err), "right camera")
		}
		res.Left, res.Right = lres.Model, rres.Model
		res.LeftPassRMS, res.RightPassRMS = lres.PassRMS, rres.PassRMS
		leftPoses, rightPoses = lres.Extrinsics, rres.Extrinsics
	}

	relatives := make([]spatial.Transform, len(left))
	for i := range left {
		relatives[i] = rightPoses[i].Compose(leftPoses[i].Inverse())
	}
	leftToRight, err := spatial.MedianTransform(relatives)
	if err != nil {
		return nil, err
	}

	c.solveStereo(res, left, right, leftPoses, leftToRight, flags)
	res.RightToLeft = res.LeftToRight.Inverse()
	c.logger.Infow("stereo solve done", "views", len(left), "rms", res.RMS, "fixedIntrinsics", opts.FixedIntrinsics)

	if err := c.perViewStereo(res, left, right); err != nil {
		return nil, err
	}

	res.Essential = EssentialMatrix(res.LeftToRight)
	res.Fundamental = FundamentalMatrix(res.Essential, res.Left.Intrinsics, res.Right.Intrinsics)
	return res, nil
}

// solveStereo jointly refines the free intrinsics of both cameras, the left
// target poses and the left-to-right transform.
func (c *Calibrator) solveStereo(
	res *StereoResult,
	left, right []models.View,
	leftPoses []spatial.Transform,
	leftToRight spatial.Transform,
	flags Flags,
) {
	leftLayout := newIntrinsicLayout(res.Left, flags)
	rightLayout := newIntrinsicLayout(res.Right, flags)
	nl, nr := leftLayout.size(), rightLayout.size()
	posesAt := nl + nr
	relAt := posesAt + poseSize*len(left)

	params := make([]float64, relAt+poseSize)
	leftLayout.pack(params)
	rightLayout.pack(params[nl:])
	for i, pose := range leftPoses {
		packPose(params[posesAt+poseSize*i:], pose)
	}
	packPose(params[relAt:], leftToRight)

	nPoints := countPoints(left) + countPoints(right)
	residuals := func(dst, x []float64) {
		lm := leftLayout.unpack(x[:nl])
		rm := rightLayout.unpack(x[nl:posesAt])
		rel := unpackPose(x[relAt:])
		k := 0
		for i := range left {
			pose := unpackPose(x[posesAt+poseSize*i:])
			k += viewResiduals(dst[k:], left[i], &lm, pose)
			k += viewResiduals(dst[k:], right[i], &rm, rel.Compose(pose))
		}
	}
	out := levenbergMarquardt(residuals, 2*nPoints, params, c.settings())

	res.Left = leftLayout.unpack(out.params[:nl])
	res.Right = rightLayout.unpack(out.params[nl:posesAt])
	res.LeftToRight = unpackPose(out.params[relAt:])
	res.RMS = math.Sqrt(out.cost / float64(nPoints))
}

// perViewStereo refits each camera's extrinsics with the final intrinsics and
// derives one right-to-left transform per view.
func (c *Calibrator) perViewStereo(res *StereoResult, left, right []models.View) error {
	var err error
	res.LeftExtrinsics, res.LeftPerViewRMS, err = c.SolveExtrinsics(left, &res.Left)
	if err != nil {
		return err
	}
	res.RightExtrinsics, res.RightPerViewRMS, err = c.SolveExtrinsics(right, &res.Right)
	if err != nil {
		return err
	}
	res.PerViewRightToLeft = make([]spatial.Transform, len(left))
	for i := range left {
		res.PerViewRightToLeft[i] = res.LeftExtrinsics[i].Compose(res.RightExtrinsics[i].Inverse())
	}
	res.MedianRightToLeft, err = spatial.MedianTransform(res.PerViewRightToLeft)
	if err != nil {
		return err
	}
	for i, rms := range res.LeftPerViewRMS {
		c.logger.Debugw("per-view error", "view", i, "left", rms, "right", res.RightPerViewRMS[i])
	}
	return nil
}

// EssentialMatrix returns [t]x R for the left-to-right transform x_R = R x_L + t.
func EssentialMatrix(leftToRight spatial.Transform) spatial.Matrix3 {
	return spatial.Skew(leftToRight.Translation).Mul(leftToRight.Rotation)
}

// FundamentalMatrix returns K_R^-T E K_L^-1, scaled so F[2][2] = 1 when it is
// not zero.
func FundamentalMatrix(essential spatial.Matrix3, left, right camera.Intrinsics) spatial.Matrix3 {
	kl, okL := left.Matrix().Inverse()
	kr, okR := right.Matrix().Inverse()
	if !okL || !okR {
		return spatial.Matrix3{}
	}
	f := kr.Transpose().Mul(essential).Mul(kl)
	if f[2][2] != 0 {
		f = f.Scale(1 / f[2][2])
	}
	return f
}
