package reconstruction

import (
	"sort"
	"time"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"

	"stereocalib/internal/errkind"
	"stereocalib/internal/models"
	"stereocalib/pkg/camera"
	"stereocalib/pkg/spatial"
	"stereocalib/pkg/triangulate"
)

// WorldPoint is one triangulated picked feature.
type WorldPoint struct {
	// ID and Frame identify the left pick the point came from
	ID    int
	Frame int

	// Vertex indexes the polyline vertex, zero for point picks
	Vertex int

	// Lens is the point in the left camera frame
	Lens r3.Vector

	// World is the point in tracker world (or reference) coordinates
	World r3.Vector

	// RayDistance is the closest approach of the two rays
	RayDistance float64

	// TimingError is the timing error of the camera pose used
	TimingError time.Duration
}

// PickedResult is the outcome of TriangulatePicked.
type PickedResult struct {
	Points []WorldPoint

	// Unpaired counts left picks with no matching right pick
	Unpaired int

	// GeometricRejections counts vertices whose rays diverged
	GeometricRejections int

	// TimingRejections counts picks on frames with too large a timing error
	TimingRejections int
}

// WorldPoints returns the world coordinates of every point.
func (p *PickedResult) WorldPoints() []r3.Vector {
	out := make([]r3.Vector, len(p.Points))
	for i, wp := range p.Points {
		out[i] = wp.World
	}
	return out
}

// PickedObjects converts the result to world channel picked objects.
func (p *PickedResult) PickedObjects() []models.PickedObject {
	out := make([]models.PickedObject, len(p.Points))
	for i, wp := range p.Points {
		out[i] = models.PickedObject{
			ID:          wp.ID,
			FrameNumber: wp.Frame,
			Channel:     models.WorldChannel,
			Points:      []r3.Vector{wp.World},
		}
	}
	return out
}

type stereoPick struct {
	left, right models.PickedObject
}

type pickKey struct {
	id, stereoFrame int
}

// pairPicks pairs every left pick with the right pick of the same ID on the
// same stereo frame (frames 2k and 2k+1 of interleaved video). Non-screen
// picks are ignored. It returns the pairs in left frame then ID order and
// the number of left picks left unpaired.
func pairPicks(picks []models.PickedObject) ([]stereoPick, int, error) {
	rights := map[pickKey]models.PickedObject{}
	for _, p := range picks {
		if p.Channel != models.RightChannel {
			continue
		}
		if err := p.Validate(); err != nil {
			return nil, 0, err
		}
		key := pickKey{p.ID, p.FrameNumber / 2}
		if _, dup := rights[key]; dup {
			return nil, 0, errkind.New(errkind.InvalidInput, "right pick %d appears twice on frame %d", p.ID, p.FrameNumber)
		}
		rights[key] = p
	}

	var pairs []stereoPick
	unpaired := 0
	for _, p := range picks {
		if p.Channel != models.LeftChannel {
			continue
		}
		if err := p.Validate(); err != nil {
			return nil, 0, err
		}
		right, ok := rights[pickKey{p.ID, p.FrameNumber / 2}]
		if !ok || len(right.Points) != len(p.Points) || right.IsLine != p.IsLine {
			unpaired++
			continue
		}
		pairs = append(pairs, stereoPick{left: p, right: right})
	}
	sort.SliceStable(pairs, func(i, j int) bool {
		if pairs[i].left.FrameNumber != pairs[j].left.FrameNumber {
			return pairs[i].left.FrameNumber < pairs[j].left.FrameNumber
		}
		return pairs[i].left.ID < pairs[j].left.ID
	})
	return pairs, unpaired, nil
}

// undistortedPairs undistorts every vertex of a stereo pick.
func (r *Reconstructor) undistortedPairs(sp stereoPick) []triangulate.Pair {
	out := make([]triangulate.Pair, len(sp.left.Points))
	for i := range sp.left.Points {
		l, rt := sp.left.Points[i], sp.right.Points[i]
		out[i] = triangulate.Pair{
			Left:  camera.Undistort(r2.Point{X: l.X, Y: l.Y}, &r.calibration.Left, nil),
			Right: camera.Undistort(r2.Point{X: rt.X, Y: rt.Y}, &r.calibration.Right, nil),
		}
	}
	return out
}

// TriangulatePicked reconstructs the world position of every stereo picked
// feature. Each left pick is paired with the right pick of the same ID on the
// same stereo frame, undistorted, triangulated in the left lens frame and
// moved to world coordinates with the camera pose of the left frame.
func (r *Reconstructor) TriangulatePicked(picks []models.PickedObject) (*PickedResult, error) {
	if err := r.checkLoaded(); err != nil {
		return nil, err
	}
	pairs, unpaired, err := pairPicks(picks)
	if err != nil {
		return nil, err
	}
	if len(pairs) == 0 {
		return nil, errkind.New(errkind.InputEmpty, "no stereo picked pairs among %d picks", len(picks))
	}

	res := &PickedResult{Unpaired: unpaired}
	for _, sp := range pairs {
		pose, err := r.CameraPose(sp.left.FrameNumber)
		if errkind.Is(err, errkind.TimingRejection) {
			res.TimingRejections++
			r.logger.Debugw("pick rejected on timing", "id", sp.left.ID, "frame", sp.left.FrameNumber, "timingError", pose.TimingError)
			continue
		}
		if err != nil {
			return nil, err
		}

		vertices := r.undistortedPairs(sp)
		tri, err := triangulate.Triangulate(r.params.Method, vertices, r.rig, r.params.Tolerance)
		if err != nil {
			return nil, err
		}
		res.GeometricRejections += len(vertices) - tri.Len()
		toWorld := spatial.TransformFromMatrix4(pose.Pose)
		for k, lens := range tri.Points {
			res.Points = append(res.Points, WorldPoint{
				ID:          sp.left.ID,
				Frame:       sp.left.FrameNumber,
				Vertex:      tri.Indices[k],
				Lens:        lens,
				World:       toWorld.Apply(lens),
				RayDistance: tri.RayDistances[k],
				TimingError: pose.TimingError,
			})
		}
	}

	r.logger.Infow("picked points triangulated",
		"points", len(res.Points),
		"unpaired", res.Unpaired,
		"geometricRejections", res.GeometricRejections,
		"timingRejections", res.TimingRejections)
	return res, nil
}
