package visualization

import (
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// SaveImage writes img to filename as PNG or JPEG depending on the extension.
// Missing parent directories are created.
func SaveImage(img image.Image, filename string) (err error) {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return errors.Wrapf(err, "creating directory for %s", filename)
	}
	file, err := os.Create(filename)
	if err != nil {
		return errors.Wrapf(err, "creating %s", filename)
	}
	defer func() {
		err = multierr.Combine(err, file.Close())
	}()

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		err = jpeg.Encode(file, img, &jpeg.Options{Quality: 90})
	case ".png":
		err = png.Encode(file, img)
	default:
		return errors.Errorf("unsupported image extension in %s", filename)
	}
	return errors.Wrapf(err, "encoding %s", filename)
}

// FrameFilename returns the overlay file name for a video frame.
func FrameFilename(dir, prefix string, frame int) string {
	return filepath.Join(dir, fmt.Sprintf("%s_%06d.png", prefix, frame))
}
