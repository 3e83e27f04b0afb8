package media

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io/fs"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/chai2010/webp"
)

// testImage draws a gradient with deterministic noise so that encoders have
// something realistic to compress.
func testImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	rng := rand.New(rand.NewSource(int64(w*7919 + h)))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			n := uint8(rng.Intn(24))
			img.Set(x, y, color.RGBA{
				R: uint8(x*255/max(w-1, 1)) ^ n,
				G: uint8(y*255/max(h-1, 1)) ^ n,
				B: uint8((x+y)*255/max(w+h-2, 1)),
				A: 255,
			})
		}
	}
	return img
}

func jpegBytes(t *testing.T, w, h, quality int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, testImage(w, h), &jpeg.Options{Quality: quality}); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	return buf.Bytes()
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, testImage(w, h)); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func webpBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := webp.Encode(&buf, testImage(w, h), &webp.Options{Quality: 90}); err != nil {
		t.Fatalf("encode webp: %v", err)
	}
	return buf.Bytes()
}

func newTestRouter(t *testing.T) *Router {
	t.Helper()
	r := NewRouter(filepath.Join(t.TempDir(), "uploads"), "/uploads")
	if err := r.EnsureDirs(); err != nil {
		t.Fatalf("EnsureDirs: %v", err)
	}
	return r
}

// countFiles returns the number of regular files below dir.
func countFiles(t *testing.T, dir string) int {
	t.Helper()
	n := 0
	err := filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			n++
		}
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		t.Fatalf("walk %s: %v", dir, err)
	}
	return n
}

func assertNoFiles(t *testing.T, r *Router) {
	t.Helper()
	if n := countFiles(t, r.BaseDir()); n != 0 {
		t.Errorf("expected no files under %s, found %d", r.BaseDir(), n)
	}
}

func assertKind(t *testing.T, err error, want Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", want)
	}
	if got := KindOf(err); got != want {
		t.Fatalf("expected kind %s, got %s (%v)", want, got, err)
	}
}
