package media

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const stagingDirName = ".staging"

// Router places assets on disk. Each category owns one directory under the
// base dir, and every batch stages into its own directory under
// <base>/.staging so that promotion is a same-filesystem link.
type Router struct {
	baseDir   string // e.g. "./uploads"
	urlPrefix string // e.g. "/uploads"
}

func NewRouter(baseDir, urlPrefix string) *Router {
	return &Router{baseDir: filepath.Clean(baseDir), urlPrefix: strings.TrimRight(urlPrefix, "/")}
}

func (r *Router) BaseDir() string { return r.baseDir }

// EnsureDirs creates the category and staging directories if absent.
func (r *Router) EnsureDirs() error {
	for _, c := range Categories {
		if err := os.MkdirAll(r.Dir(c), 0o755); err != nil {
			return fmt.Errorf("media: mkdir %s: %w", c, err)
		}
	}
	if err := os.MkdirAll(r.stagingRoot(), 0o700); err != nil {
		return fmt.Errorf("media: mkdir staging: %w", err)
	}
	return nil
}

// PurgeStaging removes batch directories left behind by a previous process.
// It must only run before the pipeline starts accepting batches.
func (r *Router) PurgeStaging() (int, error) {
	entries, err := os.ReadDir(r.stagingRoot())
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("media: read staging: %w", err)
	}
	removed := 0
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(r.stagingRoot(), e.Name())); err != nil {
			return removed, fmt.Errorf("media: purge staging %s: %w", e.Name(), err)
		}
		removed++
	}
	return removed, nil
}

func (r *Router) Dir(c Category) string {
	return filepath.Join(r.baseDir, string(c))
}

// NewID returns a random opaque identifier. It never depends on anything the
// client sent, so it cannot collide with or disclose the original filename.
func (r *Router) NewID() string {
	return uuid.NewString()
}

// FinalName names a persisted file after its detected format.
func (r *Router) FinalName(id string, f Format) string {
	return id + "." + f.Ext()
}

func (r *Router) URL(c Category, name string) string {
	return r.urlPrefix + "/" + string(c) + "/" + name
}

// Resolve maps a URL produced by URL back to its path on disk. Anything that
// does not name a plain file directly inside a category directory is refused.
func (r *Router) Resolve(url string) (string, error) {
	rest, ok := strings.CutPrefix(url, r.urlPrefix+"/")
	if !ok {
		return "", fmt.Errorf("media: url %q outside %s", url, r.urlPrefix)
	}
	cat, name, ok := strings.Cut(rest, "/")
	if !ok || !Category(cat).Valid() {
		return "", fmt.Errorf("media: url %q has no category", url)
	}
	if name == "" || strings.HasPrefix(name, ".") || strings.ContainsAny(name, `/\`) || filepath.Base(name) != name {
		return "", fmt.Errorf("media: url %q has invalid name", url)
	}
	return filepath.Join(r.Dir(Category(cat)), name), nil
}

func (r *Router) stagingRoot() string {
	return filepath.Join(r.baseDir, stagingDirName)
}

func (r *Router) stagingDir(batchID string) string {
	return filepath.Join(r.stagingRoot(), batchID)
}

func (r *Router) rawPath(dir, id string) string {
	return filepath.Join(dir, id+".upload")
}
