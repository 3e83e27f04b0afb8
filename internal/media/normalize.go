package media

import (
	"fmt"
	"image"
	"os"

	"github.com/disintegration/imaging"

	// WEBP decoding for image.Decode and image.DecodeConfig.
	_ "golang.org/x/image/webp"
)

// Bounds is the largest width and height a persisted image may have.
type Bounds struct {
	Width  int
	Height int
}

func (l Limits) Bounds() Bounds {
	return Bounds{Width: l.MaxWidth, Height: l.MaxHeight}
}

func (b Bounds) contains(w, h int) bool {
	return w <= b.Width && h <= b.Height
}

// FitSize returns the dimensions an image of w x h takes after fitting into
// b. Images already inside b keep their size; nothing is ever enlarged.
func FitSize(w, h int, b Bounds) (int, int) {
	if b.contains(w, h) {
		return w, h
	}
	// Scale by whichever side overshoots more, rounding the other side.
	if w*b.Height >= h*b.Width {
		nh := (h*b.Width + w/2) / w
		return b.Width, max(nh, 1)
	}
	nw := (w*b.Height + h/2) / h
	return max(nw, 1), b.Height
}

// Normalize fits img into b, preserving aspect ratio. An image already
// within b is returned unchanged, which also makes Normalize idempotent.
func Normalize(img image.Image, b Bounds) image.Image {
	r := img.Bounds()
	if b.contains(r.Dx(), r.Dy()) {
		return img
	}
	w, h := FitSize(r.Dx(), r.Dy(), b)
	return imaging.Resize(img, w, h, imaging.Lanczos)
}

// decodeImage fully decodes the staged file, applying EXIF orientation so
// that geometry checks see the image the way viewers will.
func decodeImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, err := imaging.Decode(f, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return img, nil
}

// Dimensions reads only the header of the image at path.
func Dimensions(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, fmt.Errorf("decode config: %w", err)
	}
	return cfg.Width, cfg.Height, nil
}
