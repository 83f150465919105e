package video

import (
	"image"
	"image/color"
	"io"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stereocalib/internal/errkind"
)

func frames(n int) []image.Image {
	out := make([]image.Image, n)
	for i := range out {
		img := image.NewGray(image.Rect(0, 0, 2, 2))
		img.SetGray(0, 0, color.Gray{Y: uint8(i)})
		out[i] = img
	}
	return out
}

func frameValue(img image.Image) uint8 {
	return img.(*image.Gray).GrayAt(0, 0).Y
}

func TestEach(t *testing.T) {
	src := NewSliceSource(frames(4))
	assert.Equal(t, 4, src.FrameCount())

	var seen []int
	require.NoError(t, Each(src, func(frame int, img image.Image) error {
		assert.Equal(t, uint8(frame), frameValue(img))
		seen = append(seen, frame)
		return nil
	}))
	assert.Equal(t, []int{0, 1, 2, 3}, seen)

	_, err := src.Read()
	assert.ErrorIs(t, err, io.EOF)
	assert.NoError(t, src.Close())
}

func TestEachStops(t *testing.T) {
	count := 0
	require.NoError(t, Each(NewSliceSource(frames(5)), func(frame int, img image.Image) error {
		count++
		if frame == 1 {
			return io.EOF
		}
		return nil
	}))
	assert.Equal(t, 2, count)

	boom := errors.New("boom")
	err := Each(NewSliceSource(frames(5)), func(int, image.Image) error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestSeek(t *testing.T) {
	src := NewSliceSource(frames(5))
	require.NoError(t, Seek(src, 3))
	img, err := src.Read()
	require.NoError(t, err)
	assert.Equal(t, uint8(3), frameValue(img))

	err = Seek(NewSliceSource(frames(2)), 4)
	assert.True(t, errkind.Is(err, errkind.InvalidInput))
	err = Seek(NewSliceSource(frames(2)), -1)
	assert.True(t, errkind.Is(err, errkind.InvalidInput))
}
