package detect

import (
	"image"

	"golang.org/x/image/draw"
)

// pixelKind tags the element type of an upscaling buffer.
type pixelKind int

const (
	pixelRGBA pixelKind = iota
	pixelGray
)

func kindOf(img image.Image) pixelKind {
	switch img.(type) {
	case *image.Gray, *image.Gray16:
		return pixelGray
	default:
		return pixelRGBA
	}
}

// scaleCache holds one upscaling buffer per pixel kind. A buffer is reused
// while images of the same size keep arriving and dropped when the size
// changes. The owning Detector clears it at the start of every batch.
type scaleCache struct {
	bufs map[pixelKind]draw.Image
}

// upscale enlarges img by an integer factor with nearest-neighbour sampling
// into the cached buffer for its pixel kind. The result is only valid until
// the next call.
func (c *scaleCache) upscale(img image.Image, scale int) image.Image {
	b := img.Bounds()
	rect := image.Rect(b.Min.X*scale, b.Min.Y*scale, b.Max.X*scale, b.Max.Y*scale)
	kind := kindOf(img)

	if c.bufs == nil {
		c.bufs = make(map[pixelKind]draw.Image)
	}
	dst, ok := c.bufs[kind]
	if !ok || dst.Bounds() != rect {
		switch kind {
		case pixelGray:
			dst = image.NewGray(rect)
		default:
			dst = image.NewRGBA(rect)
		}
		c.bufs[kind] = dst
	}
	draw.NearestNeighbor.Scale(dst, rect, img, b, draw.Src, nil)
	return dst
}

// len returns the number of cached buffers.
func (c *scaleCache) len() int {
	return len(c.bufs)
}

func (c *scaleCache) clear() {
	c.bufs = nil
}
