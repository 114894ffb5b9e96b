package imageproc

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // register decoders for image.Decode
	_ "image/jpeg" //
	"image/png"

	"github.com/disintegration/imaging"
)

// Upsample scales the image up by factor and re-encodes it as PNG. Used
// once when the premium API rejects an image as too small; never recursive.
func Upsample(content []byte, factor int) ([]byte, error) {
	if factor < 2 {
		factor = 2
	}
	img, _, err := image.Decode(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("decode for upsample: %w", err)
	}
	bounds := img.Bounds()
	resized := imaging.Resize(img, bounds.Dx()*factor, bounds.Dy()*factor, imaging.Lanczos)

	var buf bytes.Buffer
	if err := png.Encode(&buf, resized); err != nil {
		return nil, fmt.Errorf("encode upsampled image: %w", err)
	}
	return buf.Bytes(), nil
}

// Dimensions reports the pixel width and height of the image header
// without decoding the full pixel data.
func Dimensions(content []byte) (w, h int, err error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(content))
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}
