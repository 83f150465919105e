// Package video reads decoded frames sequentially from a recording.
package video

import (
	"image"
	"io"

	"github.com/pkg/errors"

	"stereocalib/internal/errkind"
)

// FrameSource yields decoded frames in order. Read returns io.EOF after the
// last frame.
type FrameSource interface {
	Read() (image.Image, error)
	FrameCount() int
	Close() error
}

// FrameFunc handles one frame. Returning io.EOF stops the iteration without error.
type FrameFunc func(frame int, img image.Image) error

// Each reads src to the end, calling fn with the zero-based frame number of
// every frame.
func Each(src FrameSource, fn FrameFunc) error {
	for frame := 0; ; frame++ {
		img, err := src.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return errors.Wrapf(err, "reading frame %d", frame)
		}
		if err := fn(frame, img); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}

// Seek reads and discards frames until the next Read returns frame n,
// counting from a source that has not been read yet.
func Seek(src FrameSource, n int) error {
	if n < 0 {
		return errkind.New(errkind.InvalidInput, "negative frame %d", n)
	}
	for i := 0; i < n; i++ {
		if _, err := src.Read(); err != nil {
			if errors.Is(err, io.EOF) {
				return errkind.New(errkind.InvalidInput, "frame %d is past the end of the video (%d frames)", n, i)
			}
			return errors.Wrapf(err, "skipping frame %d", i)
		}
	}
	return nil
}

// SliceSource serves frames held in memory.
type SliceSource struct {
	frames []image.Image
	next   int
}

// NewSliceSource returns a source over frames.
func NewSliceSource(frames []image.Image) *SliceSource {
	return &SliceSource{frames: frames}
}

// Read returns the next frame.
func (s *SliceSource) Read() (image.Image, error) {
	if s.next >= len(s.frames) {
		return nil, io.EOF
	}
	img := s.frames[s.next]
	s.next++
	return img, nil
}

// FrameCount returns the number of frames.
func (s *SliceSource) FrameCount() int {
	return len(s.frames)
}

// Close does nothing.
func (s *SliceSource) Close() error {
	return nil
}
