package imaging

import (
	"bytes"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const UnknownFormat = "unknown"

type Info struct {
	Format string
	Width  int
	Height int
}

// Probe reads only the image header. Payloads that are not a recognised image
// report UnknownFormat with zero dimensions.
func Probe(data []byte) Info {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Info{Format: UnknownFormat}
	}
	return Info{Format: format, Width: cfg.Width, Height: cfg.Height}
}
