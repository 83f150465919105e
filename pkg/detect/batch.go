package detect

import (
	"image"
	// Registered decoders for calibration images.
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"

	"stereocalib/internal/errkind"
	"stereocalib/internal/models"
)

// BatchResult is the outcome of detecting the grid in a list of images.
type BatchResult struct {
	// Views holds one correspondence set per successful image, in input order
	Views []models.View

	// Failed lists the images that were dropped
	Failed []string

	// ImageSize is the common size of every image in the batch
	ImageSize image.Point

	// Err aggregates the per-image failures
	Err error
}

// Buffers returns the views as flattened point buffers.
func (r *BatchResult) Buffers() models.PointBuffers {
	return models.Flatten(r.Views)
}

// LoadImage decodes a PNG, JPEG, BMP or TIFF file.
func LoadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	defer f.Close() //nolint:errcheck
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, errkind.Wrapf(err, errkind.ParseFailure, "decoding %s", path)
	}
	return img, nil
}

// DetectFiles runs Detect on every image. Images where the board is not
// found are dropped. All images must have the same size. The call fails if
// paths is empty or no image succeeds.
func (d *Detector) DetectFiles(paths []string) (*BatchResult, error) {
	if len(paths) == 0 {
		return nil, errkind.New(errkind.InputEmpty, "no images to search")
	}
	d.Reset()
	res := &BatchResult{}
	for i, path := range paths {
		img, err := LoadImage(path)
		if err != nil {
			return nil, err
		}
		size := img.Bounds().Size()
		if i == 0 {
			res.ImageSize = size
		} else if size != res.ImageSize {
			return nil, errkind.New(errkind.SizeMismatch, "%s is %v, expected %v", path, size, res.ImageSize)
		}

		view, err := d.Detect(img, filepath.Base(path))
		if err != nil {
			if !errkind.KindOf(err).Recoverable() {
				return nil, err
			}
			d.logger.Debugw("chessboard not found", "image", path, "error", err)
			res.Failed = append(res.Failed, path)
			res.Err = multierr.Append(res.Err, err)
			continue
		}
		res.Views = append(res.Views, view)
	}

	d.logger.Infow("chessboard detection done", "found", len(res.Views), "failed", len(res.Failed))
	if len(res.Views) == 0 {
		return nil, errkind.Wrapf(res.Err, errkind.InputEmpty, "chessboard not found in any of %d images", len(paths))
	}
	return res, nil
}

// StereoBatchResult is the outcome of detecting the grid in left/right image pairs.
type StereoBatchResult struct {
	// Left and Right hold one view per pair where both sides succeeded
	Left, Right []models.View

	// FailedPairs holds the indices of the dropped pairs
	FailedPairs []int

	// LeftSize and RightSize are the image sizes of each channel
	LeftSize, RightSize image.Point

	// Err aggregates the per-image failures
	Err error
}

// DetectStereoFiles runs Detect on left/right image pairs matched by
// position. A pair is kept only when the board is found on both sides, so the
// left and right views stay positionally matched.
func (d *Detector) DetectStereoFiles(left, right []string) (*StereoBatchResult, error) {
	if len(left) == 0 || len(right) == 0 {
		return nil, errkind.New(errkind.InputEmpty, "no stereo images to search")
	}
	if len(left) != len(right) {
		return nil, errkind.New(errkind.SizeMismatch, "%d left images but %d right images", len(left), len(right))
	}

	d.Reset()
	res := &StereoBatchResult{}
	for i := range left {
		lv, lsize, lerr := d.detectFile(left[i])
		rv, rsize, rerr := d.detectFile(right[i])
		for _, err := range []error{lerr, rerr} {
			if err != nil && !errkind.KindOf(err).Recoverable() {
				return nil, err
			}
		}
		if i == 0 {
			res.LeftSize, res.RightSize = lsize, rsize
		} else if lsize != res.LeftSize || rsize != res.RightSize {
			return nil, errkind.New(errkind.SizeMismatch, "pair %d is %v/%v, expected %v/%v",
				i, lsize, rsize, res.LeftSize, res.RightSize)
		}
		if lerr != nil || rerr != nil {
			d.logger.Debugw("chessboard pair dropped", "left", left[i], "right", right[i])
			res.FailedPairs = append(res.FailedPairs, i)
			res.Err = multierr.Combine(res.Err, lerr, rerr)
			continue
		}
		res.Left = append(res.Left, lv)
		res.Right = append(res.Right, rv)
	}

	d.logger.Infow("stereo chessboard detection done", "pairs", len(res.Left), "failed", len(res.FailedPairs))
	if len(res.Left) == 0 {
		return nil, errkind.Wrapf(res.Err, errkind.InputEmpty, "chessboard not found in any of %d pairs", len(left))
	}
	return res, nil
}

func (d *Detector) detectFile(path string) (models.View, image.Point, error) {
	img, err := LoadImage(path)
	if err != nil {
		return models.View{}, image.Point{}, err
	}
	view, err := d.Detect(img, filepath.Base(path))
	return view, img.Bounds().Size(), err
}
