//go:build !no_cgo

package video

import (
	"image"
	"io"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"gocv.io/x/gocv"
)

// Capture decodes a video file with OpenCV.
type Capture struct {
	vc    *gocv.VideoCapture
	img   gocv.Mat
	count int
}

// OpenCapture opens a video file.
func OpenCapture(path string) (*Capture, error) {
	vc, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening video %s", path)
	}
	if !vc.IsOpened() {
		return nil, multierr.Append(errors.Errorf("cannot decode video %s", path), vc.Close())
	}
	return &Capture{
		vc:    vc,
		img:   gocv.NewMat(),
		count: int(vc.Get(gocv.VideoCaptureFrameCount)),
	}, nil
}

// Read decodes the next frame.
func (c *Capture) Read() (image.Image, error) {
	if ok := c.vc.Read(&c.img); !ok || c.img.Empty() {
		return nil, io.EOF
	}
	return c.img.ToImage()
}

// FrameCount returns the frame count reported by the container, which may be
// an estimate for raw streams.
func (c *Capture) FrameCount() int {
	return c.count
}

// Close releases the decoder.
func (c *Capture) Close() error {
	return multierr.Append(c.img.Close(), c.vc.Close())
}
