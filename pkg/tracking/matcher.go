package tracking

import (
	"math"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"stereocalib/internal/errkind"
	"stereocalib/internal/files"
	"stereocalib/internal/logging"
	"stereocalib/pkg/spatial"
)

// DefaultVideoExtension is the extension of the recorded video file.
const DefaultVideoExtension = ".264"

// State is the lifecycle state of a Matcher.
type State int

const (
	// Uninitialized has no frame map or tracking data loaded.
	Uninitialized State = iota
	// Ready answers queries without any lag correction.
	Ready
	// ReadyWithLag answers queries with a lag correction applied.
	ReadyWithLag
)

func (s State) String() string {
	switch s {
	case Ready:
		return "ready"
	case ReadyWithLag:
		return "ready with lag"
	default:
		return "uninitialized"
	}
}

// Match is the tracker pose resolved for one video frame.
type Match struct {
	// Pose is the matched tracker (or camera) pose
	Pose spatial.Matrix4

	// RecordedTimestamp is the timestamp of the matched tracker record
	RecordedTimestamp int64

	// VideoTimestamp is the frame timestamp after lag correction
	VideoTimestamp int64

	// TimingError is RecordedTimestamp - VideoTimestamp
	TimingError time.Duration
}

// Within reports whether the timing error magnitude is at most tolerance.
func (m Match) Within(tolerance time.Duration) bool {
	return m.TimingError <= tolerance && m.TimingError >= -tolerance
}

// CheckTiming returns a TimingRejection error when the match is not Within tolerance.
func (m Match) CheckTiming(tolerance time.Duration) error {
	if m.Within(tolerance) {
		return nil
	}
	return errkind.New(errkind.TimingRejection, "timing error %v exceeds %v", m.TimingError, tolerance)
}

// Matcher resolves tracker poses for video frames. The loaded data is read
// only; lag and hand-eye settings may change at any time.
type Matcher struct {
	videoExtension string
	logger         *zap.SugaredLogger

	state     State
	frameMap  *FrameMap
	trackers  []*Sequence
	handEye   []spatial.Matrix4
	lags      []time.Duration
	videoFile string
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithVideoExtension sets the extension of the video file Initialize expects.
func WithVideoExtension(ext string) Option {
	return func(m *Matcher) {
		m.videoExtension = ext
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(m *Matcher) {
		m.logger = logger
	}
}

// NewMatcher returns an uninitialised matcher.
func NewMatcher(opts ...Option) *Matcher {
	m := &Matcher{videoExtension: DefaultVideoExtension}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = logging.OrNop(m.logger)
	if !strings.HasPrefix(m.videoExtension, ".") {
		m.videoExtension = "." + m.videoExtension
	}
	return m
}

// Initialize loads a recording directory: exactly one frame map log (a .log
// file whose name contains "framemap"), exactly one video file and at least
// one tracking sub-directory. Tracker indices follow the lexicographic order
// of the sub-directories. On failure the matcher is left Uninitialized and
// the error has kind NotReady.
func (m *Matcher) Initialize(dir string) error {
	m.reset()

	frameMapPath, err := findFrameMap(dir)
	if err != nil {
		return errkind.Wrap(err, errkind.NotReady, "frame map")
	}
	frameMap, err := LoadFrameMap(frameMapPath)
	if err != nil {
		return errkind.Wrap(err, errkind.NotReady, "frame map")
	}
	videoFile, err := files.FindOne(dir, "*"+m.videoExtension)
	if err != nil {
		return errkind.Wrap(err, errkind.NotReady, "video file")
	}

	subdirs, err := files.Subdirectories(dir)
	if err != nil {
		return errkind.Wrap(err, errkind.NotReady, "tracking directories")
	}
	var trackers []*Sequence
	for _, sub := range subdirs {
		if !IsTrackingDir(sub) {
			continue
		}
		seq, err := LoadSequence(sub)
		if err != nil {
			return errkind.Wrap(err, errkind.NotReady, "tracking directory")
		}
		trackers = append(trackers, seq)
	}
	if len(trackers) == 0 {
		return errkind.New(errkind.NotReady, "no tracking matrix directories in %s", dir)
	}

	m.frameMap = frameMap
	m.trackers = trackers
	m.videoFile = videoFile
	m.handEye = make([]spatial.Matrix4, len(trackers))
	for i := range m.handEye {
		m.handEye[i] = spatial.Identity4()
	}
	m.lags = make([]time.Duration, len(trackers))
	m.state = Ready

	names := make([]string, len(trackers))
	for i, t := range trackers {
		names[i] = t.Name
	}
	m.logger.Infow("matcher initialised",
		"frames", frameMap.Len(),
		"trackers", names,
		"video", filepath.Base(videoFile))
	return nil
}

func (m *Matcher) reset() {
	m.state = Uninitialized
	m.frameMap = nil
	m.trackers = nil
	m.handEye = nil
	m.lags = nil
	m.videoFile = ""
}

func findFrameMap(dir string) (string, error) {
	logs, err := files.List(dir, []string{".log"}, files.Lexicographic)
	if err != nil {
		return "", errkind.Wrapf(err, errkind.DiscoveryAmbiguity, "no frame map log in %s", dir)
	}
	var found []string
	for _, p := range logs {
		if strings.Contains(strings.ToLower(filepath.Base(p)), "framemap") {
			found = append(found, p)
		}
	}
	switch len(found) {
	case 1:
		return found[0], nil
	case 0:
		return "", errkind.New(errkind.DiscoveryAmbiguity, "no frame map log in %s", dir)
	default:
		return "", errkind.New(errkind.DiscoveryAmbiguity, "%d frame map logs in %s: %v", len(found), dir, found)
	}
}

// State returns the lifecycle state.
func (m *Matcher) State() State {
	return m.state
}

// VideoFile returns the video file found by Initialize.
func (m *Matcher) VideoFile() string {
	return m.videoFile
}

// NumTrackers returns the number of loaded tracking sequences.
func (m *Matcher) NumTrackers() int {
	return len(m.trackers)
}

// FrameMap returns the loaded frame map, nil before Initialize.
func (m *Matcher) FrameMap() *FrameMap {
	return m.frameMap
}

// Sequence returns the pose history of a tracker.
func (m *Matcher) Sequence(tracker int) (*Sequence, error) {
	if err := m.checkTracker(tracker); err != nil {
		return nil, err
	}
	return m.trackers[tracker], nil
}

func (m *Matcher) checkReady() error {
	if m.state == Uninitialized {
		return errkind.New(errkind.NotReady, "matcher is not initialised")
	}
	return nil
}

func (m *Matcher) checkTracker(tracker int) error {
	if err := m.checkReady(); err != nil {
		return err
	}
	if tracker < 0 || tracker >= len(m.trackers) {
		return errkind.New(errkind.InvalidInput, "tracker index %d out of range [0, %d)", tracker, len(m.trackers))
	}
	return nil
}

// SetCameraToTracker sets the hand-eye transform of a tracker: the pose of
// the camera in the frame of the tracked body.
func (m *Matcher) SetCameraToTracker(tracker int, handEye spatial.Matrix4) error {
	if err := m.checkTracker(tracker); err != nil {
		return err
	}
	m.handEye[tracker] = handEye
	return nil
}

// SetVideoLagMilliseconds sets the latency between video and tracking for
// one tracker, or for all trackers when tracker is -1. When video leads
// tracking the effective video timestamp is the frame timestamp plus lag,
// otherwise minus lag. The setting replaces any earlier one.
func (m *Matcher) SetVideoLagMilliseconds(lag float64, videoLeadsTracking bool, tracker int) error {
	if err := m.checkReady(); err != nil {
		return err
	}
	offset := time.Duration(math.Round(lag * float64(time.Millisecond)))
	if !videoLeadsTracking {
		offset = -offset
	}
	if tracker == -1 {
		for i := range m.lags {
			m.lags[i] = offset
		}
	} else {
		if err := m.checkTracker(tracker); err != nil {
			return err
		}
		m.lags[tracker] = offset
	}
	m.state = ReadyWithLag
	m.logger.Debugw("video lag set", "lagMs", lag, "videoLeads", videoLeadsTracking, "tracker", tracker)
	return nil
}

// VideoLag returns the signed offset added to frame timestamps of a tracker.
func (m *Matcher) VideoLag(tracker int) (time.Duration, error) {
	if err := m.checkTracker(tracker); err != nil {
		return 0, err
	}
	return m.lags[tracker], nil
}

func (m *Matcher) videoTimestamp(frame, tracker int) (int64, error) {
	ts, ok := m.frameMap.Timestamp(frame)
	if !ok {
		return 0, errkind.New(errkind.InvalidInput, "frame %d is not in the frame map", frame)
	}
	return ts + int64(m.lags[tracker]), nil
}

// TrackerMatrix returns the recorded pose of tracker nearest in time to the
// lag-corrected timestamp of frame. It never rejects a match; callers judge
// it by its timing error.
func (m *Matcher) TrackerMatrix(frame, tracker int) (Match, error) {
	if err := m.checkTracker(tracker); err != nil {
		return Match{}, err
	}
	video, err := m.videoTimestamp(frame, tracker)
	if err != nil {
		return Match{}, err
	}
	seq := m.trackers[tracker]
	rec := seq.Records[seq.Nearest(video)]
	return Match{
		Pose:              rec.Pose,
		RecordedTimestamp: rec.Timestamp,
		VideoTimestamp:    video,
		TimingError:       time.Duration(rec.Timestamp - video),
	}, nil
}

// InterpolatedTrackerMatrix is TrackerMatrix with the pose interpolated to
// the exact video timestamp. The timing error still refers to the nearest
// record.
func (m *Matcher) InterpolatedTrackerMatrix(frame, tracker int) (Match, error) {
	match, err := m.TrackerMatrix(frame, tracker)
	if err != nil {
		return Match{}, err
	}
	match.Pose = m.trackers[tracker].Interpolate(match.VideoTimestamp).Matrix4()
	return match, nil
}

// CameraTrackingMatrix returns the camera pose for a frame: the tracker pose
// composed with the tracker's hand-eye transform, expressed relative to the
// reference tracker when reference is not negative. The timing error is the
// larger in magnitude of the two matches.
func (m *Matcher) CameraTrackingMatrix(frame, tracker, reference int) (Match, error) {
	match, err := m.TrackerMatrix(frame, tracker)
	if err != nil {
		return Match{}, err
	}
	match.Pose = match.Pose.Mul(m.handEye[tracker])
	if reference < 0 {
		return match, nil
	}

	ref, err := m.TrackerMatrix(frame, reference)
	if err != nil {
		return Match{}, err
	}
	inv, ok := ref.Pose.Inverse()
	if !ok {
		return Match{}, errkind.New(errkind.InvalidInput, "reference pose of tracker %d at frame %d is singular", reference, frame)
	}
	match.Pose = inv.Mul(match.Pose)
	if abs(ref.TimingError) > abs(match.TimingError) {
		match.TimingError = ref.TimingError
	}
	return match, nil
}

func abs(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
