package reconstruction

import (
	"math"
	"path/filepath"

	"github.com/golang/geo/r3"

	"stereocalib/internal/errkind"
	"stereocalib/internal/models"
	"stereocalib/pkg/spatial"
	"stereocalib/pkg/tracking"
	"stereocalib/pkg/triangulate"
	"stereocalib/pkg/visualization"
)

// LagSweepPlot is the file name of the temporal calibration plot.
const LagSweepPlot = "lag_sweep.png"

// TemporalCalibration finds the video lag that holds a fixed feature still in
// world coordinates. picks must hold stereo picks of the feature with the
// given ID over many frames; every trial lag triangulates the feature on
// each frame and the lag with the smallest spread wins. The winning lag is
// left applied to every tracker.
func (r *Reconstructor) TemporalCalibration(picks []models.PickedObject, id int, lagsMs []float64) (*tracking.LagSweep, error) {
	if err := r.checkLoaded(); err != nil {
		return nil, err
	}
	pairs, _, err := pairPicks(picks)
	if err != nil {
		return nil, err
	}
	byFrame := map[int]stereoPick{}
	var frames []int
	for _, sp := range pairs {
		if sp.left.ID != id {
			continue
		}
		byFrame[sp.left.FrameNumber] = sp
		frames = append(frames, sp.left.FrameNumber)
	}
	if len(frames) < 2 {
		return nil, errkind.New(errkind.InputEmpty, "feature %d is picked on %d stereo frames, need 2", id, len(frames))
	}

	point := func(frame int) (r3.Vector, bool) {
		pose, err := r.CameraPose(frame)
		if err != nil {
			return r3.Vector{}, false
		}
		vertices := r.undistortedPairs(byFrame[frame])
		tri, err := triangulate.Triangulate(r.params.Method, vertices[:1], r.rig, r.params.Tolerance)
		if err != nil || tri.Len() == 0 {
			return r3.Vector{}, false
		}
		return spatial.TransformFromMatrix4(pose.Pose).Apply(tri.Points[0]), true
	}

	sweep, err := r.matcher.SweepLag(lagsMs, r.params.VideoLeadsTracking, -1, frames, point)
	if err != nil {
		return nil, err
	}
	r.params.LagMilliseconds = sweep.BestLagMs

	if err := r.plotSweep(sweep); err != nil {
		r.logger.Warnw("lag sweep plot failed", "error", err)
	}
	return sweep, nil
}

func (r *Reconstructor) plotSweep(sweep *tracking.LagSweep) error {
	if !r.params.SaveIntermediaryResults {
		return nil
	}
	if err := r.ensureIntermediaryDir(); err != nil {
		return err
	}
	var lags, scores []float64
	for i, s := range sweep.Scores {
		if math.IsInf(s, 0) {
			continue
		}
		lags = append(lags, sweep.LagsMs[i])
		scores = append(scores, s)
	}
	return visualization.PlotLagSweep("Temporal calibration", lags, scores, sweep.BestLagMs,
		filepath.Join(r.params.IntermediaryDir, LagSweepPlot))
}
