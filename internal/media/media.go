// Package media is the image ingestion pipeline behind listing photo and
// avatar uploads.
//
// A batch of client-submitted files is admitted against count, declared
// type and size ceilings, written to a per-batch staging directory,
// re-identified from its leading bytes, fitted into the configured
// bounds, re-encoded, and finally promoted into its category directory.
// Either every file of a batch is promoted or none is.
package media

import (
	"fmt"
	"strings"
)

// Category selects the destination namespace of a batch.
type Category string

const (
	CategoryProduct Category = "product"
	CategoryAvatar  Category = "avatar"
)

// Categories lists every category in directory creation order.
var Categories = []Category{CategoryProduct, CategoryAvatar}

func (c Category) Valid() bool {
	return c == CategoryProduct || c == CategoryAvatar
}

// Format is a binary image format identified from file content.
type Format string

const (
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
	FormatWebP Format = "webp"
)

// Ext returns the file extension, without dot, used for persisted files.
func (f Format) Ext() string {
	if f == FormatJPEG {
		return "jpg"
	}
	return string(f)
}

func (f Format) ContentType() string {
	return "image/" + string(f)
}

// declaredTypes maps the client-declared content types that pass the
// intake gate. Acceptance here is never sufficient on its own.
var declaredTypes = map[string]bool{
	"image/jpeg": true,
	"image/jpg":  true,
	"image/png":  true,
	"image/webp": true,
}

func declaredAllowed(contentType string) bool {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	return declaredTypes[ct]
}

// Limits are the per-request ceilings applied to a batch.
type Limits struct {
	MaxFileSize   int64 // bytes per file
	MaxBatchCount int   // files per product batch; avatar batches are always 1
	MaxWidth      int
	MaxHeight     int
	Quality       int // 1-100
}

const (
	DefaultMaxFileSize   = 5 << 20 // 5 MiB
	DefaultMaxBatchCount = 5
	DefaultMaxDimension  = 2000
	DefaultQuality       = 85

	// Upper bounds accepted from configuration. Their product stays far
	// below the int64 range, so request ceilings derived from them cannot
	// overflow.
	MaxFileSizeLimit   = 1 << 30 // 1 GiB
	MaxBatchCountLimit = 100
)

func DefaultLimits() Limits {
	return Limits{
		MaxFileSize:   DefaultMaxFileSize,
		MaxBatchCount: DefaultMaxBatchCount,
		MaxWidth:      DefaultMaxDimension,
		MaxHeight:     DefaultMaxDimension,
		Quality:       DefaultQuality,
	}
}

// Validate reports the first field that cannot drive a batch.
func (l Limits) Validate() error {
	switch {
	case l.MaxFileSize <= 0 || l.MaxFileSize > MaxFileSizeLimit:
		return fmt.Errorf("media: max file size must be within 1-%d, got %d", MaxFileSizeLimit, l.MaxFileSize)
	case l.MaxBatchCount <= 0 || l.MaxBatchCount > MaxBatchCountLimit:
		return fmt.Errorf("media: max batch count must be within 1-%d, got %d", MaxBatchCountLimit, l.MaxBatchCount)
	case l.MaxWidth <= 0 || l.MaxHeight <= 0:
		return fmt.Errorf("media: max dimensions must be positive, got %dx%d", l.MaxWidth, l.MaxHeight)
	case l.Quality < 1 || l.Quality > 100:
		return fmt.Errorf("media: quality must be within 1-100, got %d", l.Quality)
	}
	return nil
}

// BatchLimit returns how many files a batch of category c may carry.
func (l Limits) BatchLimit(c Category) int {
	if c == CategoryAvatar {
		return 1
	}
	return l.MaxBatchCount
}

// RawAsset is one client-submitted file. It only lives for the request.
type RawAsset struct {
	Name        string // original client filename, never used for storage
	ContentType string // client-declared, advisory
	Size        int64  // client-declared length; the larger of Size and len(Data) is enforced
	Data        []byte
}

func (a RawAsset) declaredSize() int64 {
	if a.Size > int64(len(a.Data)) {
		return a.Size
	}
	return int64(len(a.Data))
}

// StagedAsset is an asset inside a batch's staging directory.
type StagedAsset struct {
	Index  int
	ID     string
	Name   string
	Path   string
	Format Format
	Width  int
	Height int
	Bytes  int64
}

// PersistedAsset is a committed asset in its category directory.
type PersistedAsset struct {
	URL    string `json:"url"`
	Path   string `json:"-"`
	Format Format `json:"format"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Bytes  int64  `json:"bytes"`
}

// Result is the outcome of a committed batch, in input order.
type Result struct {
	BatchID  string
	Category Category
	Assets   []PersistedAsset
}

func (r *Result) URLs() []string {
	urls := make([]string, len(r.Assets))
	for i, a := range r.Assets {
		urls[i] = a.URL
	}
	return urls
}
