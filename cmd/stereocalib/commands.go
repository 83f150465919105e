//go:build !no_cgo

package main

import (
	"fmt"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"

	"stereocalib/internal/files"
	"stereocalib/internal/models"
	"stereocalib/pkg/calib"
	"stereocalib/pkg/calibio"
	"stereocalib/pkg/camera"
	"stereocalib/pkg/config"
	"stereocalib/pkg/detect"
	"stereocalib/pkg/reconstruction"
	"stereocalib/pkg/spatial"
	"stereocalib/pkg/tracking"
	"stereocalib/pkg/video"
)

func (st *state) initConfigAction(c *cli.Context) error {
	path := c.String(flagOutput)
	if err := config.CreateDefaultConfigFile(path); err != nil {
		return err
	}
	st.logger.Infow("default configuration written", "file", path)
	return nil
}

func (st *state) detector() (*detect.Detector, error) {
	opts := []detect.Option{
		detect.WithScale(st.cfg.Chessboard.ScaleFactor),
		detect.WithLogger(st.logger.Named("detect")),
	}
	if st.cfg.Output.DebugDir != "" {
		opts = append(opts, detect.WithDebugDir(st.cfg.Output.DebugDir))
	}
	return detect.NewDetector(st.cfg.Grid(), detect.NewChessboardFinder(), opts...)
}

func (st *state) calibrateAction(c *cli.Context) error {
	d, err := st.detector()
	if err != nil {
		return err
	}
	left, err := files.List(c.String(flagLeft), files.ImageExtensions, st.cfg.SortOrder())
	if err != nil {
		return err
	}
	outDir, prefix := c.String(flagOutput), c.String(flagPrefix)
	calibOpts := []calib.Option{
		calib.WithDistortionCount(st.cfg.Calibration.DistortionCoefficients),
		calib.WithMaxIterations(st.cfg.Calibration.MaxIterations),
		calib.WithLogger(st.logger.Named("calib")),
	}

	if c.String(flagRight) == "" {
		return st.calibrateMono(d, left, calibOpts, outDir, prefix)
	}
	right, err := files.List(c.String(flagRight), files.ImageExtensions, st.cfg.SortOrder())
	if err != nil {
		return err
	}
	return st.calibrateStereo(c, d, left, right, calibOpts, outDir, prefix)
}

func (st *state) calibrateMono(d *detect.Detector, images []string, opts []calib.Option, outDir, prefix string) error {
	batch, err := d.DetectFiles(images)
	if err != nil {
		return err
	}
	cal, err := calib.NewCalibrator(batch.ImageSize, opts...)
	if err != nil {
		return err
	}
	res, err := cal.CalibrateMultiPass(batch.Views)
	if err != nil {
		return err
	}

	base := filepath.Join(outDir, prefix)
	err = multierr.Combine(
		calibio.WriteIntrinsicFile(base+".intrinsic.txt", res.Model),
		calibio.WriteExtrinsicsFile(base+".extrinsics.txt", res.Extrinsics),
		calibio.SavePointBuffers(base+".points.yaml", batch.Buffers()),
	)
	if err != nil {
		return err
	}
	st.logger.Infow("camera calibrated",
		"views", len(batch.Views),
		"dropped", len(batch.Failed),
		"rms", res.RMS,
		"passRMS", res.PassRMS,
		"dir", outDir)
	return nil
}

func readIntrinsics(dir string, distortionCount int) (*camera.Model, *camera.Model, error) {
	leftPath, err := files.FindOne(dir, calibio.LeftIntrinsicPattern)
	if err != nil {
		return nil, nil, err
	}
	rightPath, err := files.FindOne(dir, calibio.RightIntrinsicPattern)
	if err != nil {
		return nil, nil, err
	}
	left, err := calibio.ReadIntrinsicFile(leftPath, distortionCount)
	if err != nil {
		return nil, nil, err
	}
	right, err := calibio.ReadIntrinsicFile(rightPath, distortionCount)
	if err != nil {
		return nil, nil, err
	}
	return &left, &right, nil
}

func (st *state) calibrateStereo(c *cli.Context, d *detect.Detector, left, right []string, opts []calib.Option, outDir, prefix string) error {
	batch, err := d.DetectStereoFiles(left, right)
	if err != nil {
		return err
	}
	if batch.LeftSize != batch.RightSize {
		return errors.Errorf("left images are %v but right images are %v", batch.LeftSize, batch.RightSize)
	}
	cal, err := calib.NewCalibrator(batch.LeftSize, opts...)
	if err != nil {
		return err
	}

	stereoOpts := calib.StereoOptions{FixedIntrinsics: st.cfg.Calibration.FixedIntrinsics}
	if dir := c.String(flagFixedIntrinsics); dir != "" {
		stereoOpts.FixedIntrinsics = true
		if stereoOpts.Left, stereoOpts.Right, err = readIntrinsics(dir, st.cfg.Calibration.DistortionCoefficients); err != nil {
			return err
		}
	}
	if stereoOpts.FixedIntrinsics && stereoOpts.Left == nil {
		return errors.Errorf("fixed intrinsics need --%s", flagFixedIntrinsics)
	}
	res, err := cal.CalibrateStereo(batch.Left, batch.Right, stereoOpts)
	if err != nil {
		return err
	}

	handEye := spatial.Identity4()
	if path := c.String(flagHandEye); path != "" {
		if handEye, err = calibio.ReadMatrix4File(path); err != nil {
			return err
		}
	}
	base := filepath.Join(outDir, prefix)
	err = multierr.Combine(
		calibio.SaveStereoCalibration(outDir, prefix, &calibio.StereoCalibration{
			Left:        res.Left,
			Right:       res.Right,
			RightToLeft: res.RightToLeft,
			HandEye:     handEye,
		}),
		calibio.SaveViewExtrinsics(outDir, prefix, res.LeftExtrinsics, res.RightExtrinsics),
		calibio.WriteRightToLeftFile(base+".median_r2l.txt", res.MedianRightToLeft),
		calibio.WriteExtrinsicsFile(base+".view_r2l.txt", res.PerViewRightToLeft),
		calibio.SavePointBuffers(base+".left.points.yaml", models.Flatten(batch.Left)),
		calibio.SavePointBuffers(base+".right.points.yaml", models.Flatten(batch.Right)),
	)
	if err != nil {
		return err
	}
	st.logger.Infow("stereo pair calibrated",
		"pairs", len(batch.Left),
		"dropped", len(batch.FailedPairs),
		"rms", res.RMS,
		"fixedIntrinsics", stereoOpts.FixedIntrinsics,
		"dir", outDir)
	return nil
}

func (st *state) pipeline(c *cli.Context) (*reconstruction.Reconstructor, error) {
	params, err := st.cfg.PipelineParams(c.String(flagCalibration), c.String(flagRecording))
	if err != nil {
		return nil, err
	}
	r := reconstruction.NewReconstructor(params, st.logger.Named("pipeline"))
	if err := r.Load(); err != nil {
		return nil, err
	}
	return r, nil
}

func printMatrix(title string, m spatial.Matrix4) {
	fmt.Println(title)
	for _, row := range m {
		fmt.Printf("  %12.6f %12.6f %12.6f %12.6f\n", row[0], row[1], row[2], row[3])
	}
}

func (st *state) matchAction(c *cli.Context) error {
	r, err := st.pipeline(c)
	if err != nil {
		return err
	}
	frame := c.Int(flagFrame)
	tracker := c.Int(flagTracker)
	if tracker < 0 {
		tracker = st.cfg.Tracking.TrackerIndex
	}

	var match tracking.Match
	if c.Bool(flagInterpolate) {
		match, err = r.Matcher().InterpolatedTrackerMatrix(frame, tracker)
	} else {
		match, err = r.Matcher().TrackerMatrix(frame, tracker)
	}
	if err != nil {
		return err
	}
	printMatrix(fmt.Sprintf("Tracker %d at frame %d (timing error %v):", tracker, frame, match.TimingError), match.Pose)

	cam, err := r.CameraPose(frame)
	if err != nil {
		return err
	}
	printMatrix(fmt.Sprintf("Camera at frame %d (timing error %v):", frame, cam.TimingError), cam.Pose)
	return nil
}

func (st *state) triangulateAction(c *cli.Context) error {
	r, err := st.pipeline(c)
	if err != nil {
		return err
	}
	picks, err := calibio.LoadPickedObjects(c.String(flagPicked))
	if err != nil {
		return err
	}
	res, err := r.TriangulatePicked(picks)
	if err != nil {
		return err
	}
	if err := calibio.SavePickedObjects(c.String(flagOutput), res.PickedObjects()); err != nil {
		return err
	}

	goldFile := c.String(flagGold)
	if goldFile == "" {
		return nil
	}
	goldObjs, err := calibio.LoadPickedObjects(goldFile)
	if err != nil {
		return err
	}
	metrics, err := r.Validate(res.WorldPoints(), reconstruction.GoldStandardPoints(goldObjs))
	if err != nil {
		return err
	}

	fmt.Printf("\nValidation against gold standard:\n")
	fmt.Printf("=================================\n")
	fmt.Printf("Points: %d (%d ambiguous)\n", metrics.Count, metrics.Ambiguous)
	fmt.Printf("RMSE: %.4f mm\n", metrics.RMSE)
	fmt.Printf("Mean error: %.4f mm\n", metrics.MeanError)
	fmt.Printf("Median error: %.4f mm\n", metrics.MedianError)
	fmt.Printf("Max error: %.4f mm\n", metrics.MaxError)
	return nil
}

func (st *state) projectAction(c *cli.Context) (err error) {
	r, err := st.pipeline(c)
	if err != nil {
		return err
	}
	objs, err := calibio.LoadPickedObjects(c.String(flagPoints))
	if err != nil {
		return err
	}
	points := reconstruction.GoldStandardPoints(objs)
	if len(points) == 0 {
		return errors.Errorf("%s holds no world points", c.String(flagPoints))
	}

	videoFile := c.String(flagVideo)
	if videoFile == "" {
		videoFile = r.Matcher().VideoFile()
	}
	capture, err := video.OpenCapture(videoFile)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, capture.Close())
	}()

	_, err = r.ProjectVideo(capture, points, nil, c.String(flagOutput))
	return err
}

func (st *state) lagSweepAction(c *cli.Context) error {
	r, err := st.pipeline(c)
	if err != nil {
		return err
	}
	picks, err := calibio.LoadPickedObjects(c.String(flagPicked))
	if err != nil {
		return err
	}
	lags := tracking.LagRange(c.Float64(flagStart), c.Float64(flagStop), c.Float64(flagStep))
	sweep, err := r.TemporalCalibration(picks, c.Int(flagID), lags)
	if err != nil {
		return err
	}
	fmt.Printf("Best lag: %.1f ms (variance %.6f mm², %d frames)\n",
		sweep.BestLagMs, sweep.Scores[sweep.BestIndex], sweep.Counts[sweep.BestIndex])
	return nil
}
