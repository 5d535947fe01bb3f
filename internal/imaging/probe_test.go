package imaging

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"
)

func testImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	return img
}

func TestProbe(t *testing.T) {
	var jpegBuf, pngBuf, bmpBuf bytes.Buffer
	require.NoError(t, jpeg.Encode(&jpegBuf, testImage(32, 16), nil))
	require.NoError(t, png.Encode(&pngBuf, testImage(8, 4)))
	require.NoError(t, bmp.Encode(&bmpBuf, testImage(5, 7)))

	assert.Equal(t, Info{Format: "jpeg", Width: 32, Height: 16}, Probe(jpegBuf.Bytes()))
	assert.Equal(t, Info{Format: "png", Width: 8, Height: 4}, Probe(pngBuf.Bytes()))
	assert.Equal(t, Info{Format: "bmp", Width: 5, Height: 7}, Probe(bmpBuf.Bytes()))
}

func TestProbeUnknown(t *testing.T) {
	assert.Equal(t, Info{Format: UnknownFormat}, Probe([]byte("definitely not an image")))
	assert.Equal(t, Info{Format: UnknownFormat}, Probe(nil))
}
