package media

import (
	"fmt"
	"image"
	"image/png"
	"io"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
)

type encodeFunc func(w io.Writer, img image.Image, quality int) error

// encoders re-encode by detected format. PNG is lossless, so quality does
// not apply there and the encoder spends maximum effort on compression.
var encoders = map[Format]encodeFunc{
	FormatJPEG: func(w io.Writer, img image.Image, quality int) error {
		return imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(quality))
	},
	FormatPNG: func(w io.Writer, img image.Image, _ int) error {
		return imaging.Encode(w, img, imaging.PNG, imaging.PNGCompressionLevel(png.BestCompression))
	},
	FormatWebP: func(w io.Writer, img image.Image, quality int) error {
		return webp.Encode(w, img, &webp.Options{Quality: float32(quality)})
	},
}

// Recompress writes img to w in format f at the given quality.
func Recompress(w io.Writer, img image.Image, f Format, quality int) error {
	enc, ok := encoders[f]
	if !ok {
		return fmt.Errorf("no encoder for %q", f)
	}
	if quality < 1 || quality > 100 {
		return fmt.Errorf("quality %d out of range", quality)
	}
	if err := enc(w, img, quality); err != nil {
		return fmt.Errorf("encode %s: %w", f, err)
	}
	return nil
}
