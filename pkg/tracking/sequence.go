package tracking

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/pkg/errors"

	"stereocalib/internal/errkind"
	"stereocalib/pkg/calibio"
	"stereocalib/pkg/spatial"
)

var trackingFileRE = regexp.MustCompile(`^(\d{19})\.txt$`)

// Record is one pose reported by the tracker.
type Record struct {
	Timestamp int64
	Pose      spatial.Matrix4
}

// Sequence is the pose history of one tracked body, in timestamp order.
type Sequence struct {
	Name    string
	Records []Record
}

// IsTrackingDir reports whether dir holds at least one file and only
// regular files named <19 digit timestamp>.txt.
func IsTrackingDir(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) == 0 {
		return false
	}
	for _, entry := range entries {
		if !entry.Type().IsRegular() || !trackingFileRE.MatchString(entry.Name()) {
			return false
		}
	}
	return true
}

// LoadSequence reads every timestamp file of a tracking directory.
func LoadSequence(dir string) (*Sequence, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "reading tracking directory %s", dir)
	}
	seq := &Sequence{Name: filepath.Base(dir)}
	for _, entry := range entries {
		m := trackingFileRE.FindStringSubmatch(entry.Name())
		if m == nil || !entry.Type().IsRegular() {
			continue
		}
		ts, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return nil, errkind.Wrapf(err, errkind.ParseFailure, "timestamp of %s", entry.Name())
		}
		pose, err := calibio.ReadMatrix4File(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		seq.Records = append(seq.Records, Record{Timestamp: ts, Pose: pose})
	}
	if len(seq.Records) == 0 {
		return nil, errkind.New(errkind.InputEmpty, "no tracking matrices in %s", dir)
	}
	sort.Slice(seq.Records, func(i, j int) bool {
		return seq.Records[i].Timestamp < seq.Records[j].Timestamp
	})
	return seq, nil
}

// Nearest returns the index of the record closest in time to ts. Ties go to
// the earlier record.
func (s *Sequence) Nearest(ts int64) int {
	i := sort.Search(len(s.Records), func(i int) bool {
		return s.Records[i].Timestamp >= ts
	})
	switch {
	case i == 0:
		return 0
	case i == len(s.Records):
		return i - 1
	case s.Records[i].Timestamp-ts < ts-s.Records[i-1].Timestamp:
		return i
	default:
		return i - 1
	}
}

// Interpolate returns the pose at ts, interpolated between the bracketing
// records or extrapolated from the first or last two.
func (s *Sequence) Interpolate(ts int64) spatial.Transform {
	if len(s.Records) == 1 {
		return spatial.TransformFromMatrix4(s.Records[0].Pose)
	}
	i := sort.Search(len(s.Records), func(i int) bool {
		return s.Records[i].Timestamp >= ts
	})
	switch {
	case i == 0:
		i = 1
	case i == len(s.Records):
		i = len(s.Records) - 1
	}
	a, b := s.Records[i-1], s.Records[i]
	t := float64(ts-a.Timestamp) / float64(b.Timestamp-a.Timestamp)
	return spatial.InterpolateTransform(spatial.TransformFromMatrix4(a.Pose), spatial.TransformFromMatrix4(b.Pose), t)
}
