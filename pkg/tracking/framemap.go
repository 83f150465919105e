// Package tracking matches video frames to the poses recorded by an optical
// tracker, by hardware timestamp.
package tracking

import (
	"bufio"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"stereocalib/internal/errkind"
	"stereocalib/internal/models"
)

// FrameMap maps video frame numbers to hardware timestamps in nanoseconds.
type FrameMap struct {
	timestamps map[int]int64
	frames     []int
}

// ParseFrameMap reads a frame map log. Each line holds the frame number, the
// sequence number, the channel and the timestamp; '#' starts a comment line.
// Later lines for the same frame number replace earlier ones.
func ParseFrameMap(r io.Reader) (*FrameMap, error) {
	fm := &FrameMap{timestamps: map[int]int64{}}
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 4 {
			return nil, errkind.New(errkind.ParseFailure, "frame map line %d has %d fields, expected 4", lineNo, len(fields))
		}
		frame, err := strconv.Atoi(fields[0])
		if err != nil {
			return nil, errkind.Wrapf(err, errkind.ParseFailure, "frame map line %d frame number", lineNo)
		}
		ts, err := strconv.ParseInt(fields[3], 10, 64)
		if err != nil {
			return nil, errkind.Wrapf(err, errkind.ParseFailure, "frame map line %d timestamp", lineNo)
		}
		if _, seen := fm.timestamps[frame]; !seen {
			fm.frames = append(fm.frames, frame)
		}
		fm.timestamps[frame] = ts
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "reading frame map")
	}
	if len(fm.frames) == 0 {
		return nil, errkind.New(errkind.InputEmpty, "frame map holds no frames")
	}
	sort.Ints(fm.frames)
	return fm, nil
}

// LoadFrameMap parses the frame map log at path.
func LoadFrameMap(path string) (*FrameMap, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening frame map %s", path)
	}
	defer f.Close()
	fm, err := ParseFrameMap(f)
	if err != nil {
		return nil, errkind.Wrapf(err, errkind.KindOf(err), "%s", path)
	}
	return fm, nil
}

// Timestamp returns the timestamp of a frame.
func (fm *FrameMap) Timestamp(frame int) (int64, bool) {
	ts, ok := fm.timestamps[frame]
	return ts, ok
}

// Frames returns the mapped frame numbers in ascending order.
func (fm *FrameMap) Frames() []int {
	return append([]int(nil), fm.frames...)
}

// Len returns the number of mapped frames.
func (fm *FrameMap) Len() int {
	return len(fm.frames)
}

// FrameChannel returns the camera of a frame of interleaved stereo video:
// even frames are left, odd frames right.
func FrameChannel(frame int) models.Channel {
	if frame%2 == 0 {
		return models.LeftChannel
	}
	return models.RightChannel
}
