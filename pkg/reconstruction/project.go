package reconstruction

import (
	"fmt"
	"image"
	"path/filepath"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"stereocalib/internal/errkind"
	"stereocalib/internal/models"
	"stereocalib/pkg/projection"
	"stereocalib/pkg/spatial"
	"stereocalib/pkg/tracking"
	"stereocalib/pkg/video"
	"stereocalib/pkg/visualization"
)

const overlayRadius = 4

// ProjectWorldPoints projects world points onto both screens of a frame,
// using the camera pose matched to that frame. With normals, points facing
// away from the camera are culled.
func (r *Reconstructor) ProjectWorldPoints(frame int, points, normals []r3.Vector) (projection.Result, tracking.Match, error) {
	pose, err := r.CameraPose(frame)
	if err != nil {
		return projection.Result{}, pose, err
	}
	opts := projection.Options{
		Space:               projection.WorldSpace,
		Extrinsic:           spatial.TransformFromMatrix4(pose.Pose),
		Crop:                r.params.Crop,
		VisibilityThreshold: r.params.VisibilityThreshold,
	}
	var res projection.Result
	if normals != nil {
		res, err = projection.ProjectVisible(points, normals, &r.projector, opts)
	} else {
		res, err = projection.Project(points, &r.projector, opts)
	}
	return res, pose, err
}

// RenderOverlay draws the projections of one channel onto img.
func RenderOverlay(img image.Image, res projection.Result, channel models.Channel) (image.Image, int) {
	var pts []r2.Point
	switch channel {
	case models.LeftChannel:
		pts = res.Left
	case models.RightChannel:
		pts = res.Right
	}
	return visualization.DrawPoints(img, pts, visualization.ProjectedColor, overlayRadius)
}

// OverlaySummary counts the frames of a ProjectVideo run.
type OverlaySummary struct {
	Frames           int
	Written          int
	TimingRejections int
	PointsDrawn      int
}

// ProjectVideo projects world points onto every frame of src and writes one
// overlay image per frame to outDir. Even frames show the left projections,
// odd frames the right. Frames missing from the frame map are skipped; frames
// rejected on timing are written with a label and no points.
func (r *Reconstructor) ProjectVideo(src video.FrameSource, points, normals []r3.Vector, outDir string) (*OverlaySummary, error) {
	if err := r.checkLoaded(); err != nil {
		return nil, err
	}
	sum := &OverlaySummary{}
	err := video.Each(src, func(frame int, img image.Image) error {
		sum.Frames++
		if _, ok := r.matcher.FrameMap().Timestamp(frame); !ok {
			r.logger.Debugw("frame not in frame map", "frame", frame)
			return nil
		}
		res, pose, err := r.ProjectWorldPoints(frame, points, normals)
		switch {
		case errkind.Is(err, errkind.TimingRejection):
			sum.TimingRejections++
			img = visualization.DrawLabel(img, fmt.Sprintf("timing error %v", pose.TimingError), visualization.MissingColor)
		case err != nil:
			return err
		default:
			var drawn int
			img, drawn = RenderOverlay(img, res, tracking.FrameChannel(frame))
			sum.PointsDrawn += drawn
		}
		if err := visualization.SaveImage(img, visualization.FrameFilename(outDir, "overlay", frame)); err != nil {
			return err
		}
		sum.Written++
		return nil
	})
	if err != nil {
		return sum, errors.Wrap(err, "projecting video")
	}

	r.logger.Infow("video projected",
		"frames", sum.Frames,
		"written", sum.Written,
		"timingRejections", sum.TimingRejections,
		"points", sum.PointsDrawn,
		"dir", filepath.Clean(outDir))
	return sum, nil
}
