// Package reconstruction runs the per-frame pipeline of a tracked stereo
// endoscope: picked stereo features are triangulated into tracker world
// coordinates, world points are projected back onto the video, and the
// results are validated against gold standard points.
package reconstruction

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"stereocalib/internal/errkind"
	"stereocalib/internal/logging"
	"stereocalib/pkg/calibio"
	"stereocalib/pkg/camera"
	"stereocalib/pkg/projection"
	"stereocalib/pkg/tracking"
	"stereocalib/pkg/triangulate"
)

// Params holds the pipeline configuration.
type Params struct {
	// CalibrationDir holds the stereo calibration files: one each of
	// *.left.intrinsic.txt, *.right.intrinsic.txt, *.r2l.txt and
	// *.handeye.txt.
	CalibrationDir string

	// RecordingDir holds the frame map log, the video file and one
	// sub-directory of timestamped tracking matrices per tracked body.
	RecordingDir string

	// DistortionCount is the number of distortion coefficients expected in
	// the intrinsic files, 4 or 5. Zero accepts either.
	DistortionCount int

	// VideoExtension is the extension of the recorded video file.
	VideoExtension string

	// TrackerIndex selects the tracker the camera is mounted on.
	TrackerIndex int

	// ReferenceIndex selects a reference tracker world points are expressed
	// relative to. Negative uses the tracker's own world frame.
	ReferenceIndex int

	// LagMilliseconds is the latency between video and tracking. Zero leaves
	// the matcher without lag correction.
	LagMilliseconds float64

	// VideoLeadsTracking sets the sign of LagMilliseconds.
	VideoLeadsTracking bool

	// TimingTolerance is the largest timing error a frame may carry before
	// its pose is rejected. Zero accepts every frame.
	TimingTolerance time.Duration

	// Method selects the triangulation method.
	Method triangulate.Method

	// Tolerance is half the largest ray distance the geometric method accepts.
	Tolerance float64

	// Crop, when set, marks projections outside the screen with its sentinel.
	Crop *camera.CropBounds

	// VisibilityThreshold overrides the projection default when non-zero.
	VisibilityThreshold float64

	// AmbiguityRatio flags a gold standard classification as ambiguous when
	// the second nearest gold point is within this factor of the nearest.
	AmbiguityRatio float64

	// SaveIntermediaryResults determines whether overlays and plots are written.
	SaveIntermediaryResults bool

	// IntermediaryDir is where intermediary results are written.
	IntermediaryDir string
}

// Reconstructor ties a stereo calibration to a tracked recording.
//
// The pipeline consists of:
// 1. Loading the stereo calibration and the recording
// 2. Triangulating picked stereo features into world points
// 3. Projecting world points onto the video frames
// 4. Validating world points against gold standard points
// 5. Sweeping the video lag to find the best temporal calibration
type Reconstructor struct {
	// params stores the pipeline configuration
	params *Params

	logger *zap.SugaredLogger

	// calibration and matcher are set by Load
	calibration *calibio.StereoCalibration
	matcher     *tracking.Matcher

	// rig and projector are derived from the calibration
	rig       triangulate.Rig
	projector projection.Rig

	// metrics stores the outcome of the last Validate call
	metrics ValidationMetrics
}

// NewReconstructor creates a reconstructor. Load must run before any other
// step. A nil logger discards output.
func NewReconstructor(params *Params, logger *zap.SugaredLogger) *Reconstructor {
	return &Reconstructor{
		params: params,
		logger: logging.OrNop(logger),
	}
}

// Load reads the stereo calibration and initialises the frame/pose matcher.
func (r *Reconstructor) Load() error {
	cal, err := calibio.LoadStereoCalibration(r.params.CalibrationDir, r.params.DistortionCount)
	if err != nil {
		return errors.Wrap(err, "loading calibration")
	}

	var opts []tracking.Option
	opts = append(opts, tracking.WithLogger(r.logger.Named("matcher")))
	if r.params.VideoExtension != "" {
		opts = append(opts, tracking.WithVideoExtension(r.params.VideoExtension))
	}
	matcher := tracking.NewMatcher(opts...)
	if err := matcher.Initialize(r.params.RecordingDir); err != nil {
		return errors.Wrap(err, "loading recording")
	}
	return r.Use(cal, matcher)
}

// Use sets an already loaded calibration and matcher. The hand-eye transform
// of the calibration is applied to the camera tracker, and the configured lag
// to every tracker.
func (r *Reconstructor) Use(cal *calibio.StereoCalibration, matcher *tracking.Matcher) error {
	rig := triangulate.Rig{
		Left:        cal.Left.Intrinsics,
		Right:       cal.Right.Intrinsics,
		RightToLeft: cal.RightToLeft,
	}
	if err := rig.CheckValid(); err != nil {
		return err
	}
	if err := matcher.SetCameraToTracker(r.params.TrackerIndex, cal.HandEye); err != nil {
		return errors.Wrap(err, "setting hand-eye transform")
	}
	if r.params.ReferenceIndex >= matcher.NumTrackers() {
		return errkind.New(errkind.InvalidInput, "reference tracker %d out of range [0, %d)",
			r.params.ReferenceIndex, matcher.NumTrackers())
	}
	if r.params.LagMilliseconds != 0 {
		if err := matcher.SetVideoLagMilliseconds(r.params.LagMilliseconds, r.params.VideoLeadsTracking, -1); err != nil {
			return err
		}
	}

	r.calibration = cal
	r.matcher = matcher
	r.rig = rig
	r.projector = projection.Rig{Left: cal.Left, Right: cal.Right, RightToLeft: cal.RightToLeft}

	r.logger.Infow("pipeline ready",
		"trackers", matcher.NumTrackers(),
		"tracker", r.params.TrackerIndex,
		"reference", r.params.ReferenceIndex,
		"method", r.params.Method.String())
	return nil
}

// Matcher returns the loaded matcher, nil before Load.
func (r *Reconstructor) Matcher() *tracking.Matcher {
	return r.matcher
}

// Calibration returns the loaded calibration, nil before Load.
func (r *Reconstructor) Calibration() *calibio.StereoCalibration {
	return r.calibration
}

// GetMetrics returns the metrics of the last Validate call.
func (r *Reconstructor) GetMetrics() ValidationMetrics {
	return r.metrics
}

func (r *Reconstructor) checkLoaded() error {
	if r.matcher == nil || r.calibration == nil {
		return errkind.New(errkind.NotReady, "pipeline is not loaded")
	}
	return nil
}

// CameraPose returns the left camera pose in world coordinates for a frame.
// Frames whose timing error exceeds the tolerance are rejected.
func (r *Reconstructor) CameraPose(frame int) (tracking.Match, error) {
	if err := r.checkLoaded(); err != nil {
		return tracking.Match{}, err
	}
	match, err := r.matcher.CameraTrackingMatrix(frame, r.params.TrackerIndex, r.params.ReferenceIndex)
	if err != nil {
		return tracking.Match{}, err
	}
	if r.params.TimingTolerance > 0 {
		if err := match.CheckTiming(r.params.TimingTolerance); err != nil {
			return match, errkind.Wrapf(err, errkind.TimingRejection, "frame %d", frame)
		}
	}
	return match, nil
}

func (r *Reconstructor) ensureIntermediaryDir() error {
	if !r.params.SaveIntermediaryResults {
		return nil
	}
	if err := os.MkdirAll(r.params.IntermediaryDir, 0o755); err != nil {
		return errors.Wrap(err, "creating intermediary directory")
	}
	return nil
}
