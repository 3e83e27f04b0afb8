package media

import (
	"fmt"
	"io"
	"os"

	"github.com/gabriel-vasile/mimetype"
)

// signaturePrefix bounds how much of a file is read to identify it.
const signaturePrefix = 3072

// signatureFormats are the detected MIME types that may be persisted.
var signatureFormats = map[string]Format{
	"image/jpeg": FormatJPEG,
	"image/png":  FormatPNG,
	"image/webp": FormatWebP,
}

// detectFormat identifies the file at path from its leading bytes. It returns
// "" along with the detected MIME type when the content is not an accepted
// image, walking up the MIME hierarchy so that e.g. APNG resolves to PNG.
func detectFormat(path string) (Format, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", "", err
	}
	defer f.Close()

	mt, err := mimetype.DetectReader(io.LimitReader(f, signaturePrefix))
	if err != nil {
		return "", "", err
	}
	for m := mt; m != nil; m = m.Parent() {
		if format, ok := signatureFormats[m.String()]; ok {
			return format, mt.String(), nil
		}
	}
	return "", mt.String(), nil
}

// validateSignature records the true format of s. On a mismatch the working
// file is removed at once: it never becomes a candidate for commit.
func validateSignature(s *StagedAsset) error {
	format, detected, err := detectFormat(s.Path)
	if err != nil {
		return assetError(KindIO, s, fmt.Errorf("read signature: %w", err))
	}
	if format == "" {
		if rmErr := os.Remove(s.Path); rmErr != nil && !os.IsNotExist(rmErr) {
			return assetError(KindIO, s, fmt.Errorf("remove rejected file: %w", rmErr))
		}
		return assetError(KindInvalidFormat, s, fmt.Errorf("content is %s", detected))
	}
	s.Format = format
	return nil
}
