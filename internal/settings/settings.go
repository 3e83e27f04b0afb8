// Package settings holds the process-wide site settings: feature flags,
// maintenance mode and upload limits. Values are cached for a TTL and
// revalidated from a Loader; when revalidation fails the last known value
// stays in effect.
package settings

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/campusmarket/backend/internal/media"
)

// Keys stored in the site_settings table.
const (
	KeyMaintenanceMode = "maintenance_mode"
	KeyUploadsEnabled  = "uploads_enabled"
	KeyMaxFileSize     = "max_file_size"
	KeyMaxBatchCount   = "max_batch_count"
	KeyMaxImageWidth   = "max_image_width"
	KeyMaxImageHeight  = "max_image_height"
	KeyImageQuality    = "image_quality"
)

const (
	DefaultTTL  = 30 * time.Second
	loadTimeout = 3 * time.Second
)

type Settings struct {
	MaintenanceMode bool
	UploadsEnabled  bool
	Limits          media.Limits
}

func Defaults() Settings {
	return Settings{UploadsEnabled: true, Limits: media.DefaultLimits()}
}

// Loader returns the raw key/value settings.
type Loader interface {
	LoadSettings(ctx context.Context) (map[string]string, error)
}

// Store caches Settings. The zero value is not usable; call NewStore.
type Store struct {
	loader   Loader
	ttl      time.Duration
	defaults Settings
	now      func() time.Time

	mu        sync.RWMutex
	current   Settings
	checkedAt time.Time // last revalidation attempt, successful or not
	loaded    bool      // at least one load succeeded

	group singleflight.Group
}

// NewStore returns a Store serving defaults until the first successful load.
func NewStore(loader Loader, defaults Settings, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{loader: loader, ttl: ttl, defaults: defaults, current: defaults, now: time.Now}
}

// Get returns the current settings, revalidating them when the TTL has
// passed. Concurrent callers share one revalidation.
func (s *Store) Get(ctx context.Context) Settings {
	if cur, fresh := s.snapshot(); fresh || s.loader == nil {
		return cur
	}

	v, _, _ := s.group.Do("revalidate", func() (any, error) {
		// A revalidation may have finished between the check above and here.
		if cur, fresh := s.snapshot(); fresh {
			return cur, nil
		}
		return s.revalidate(ctx), nil
	})
	return v.(Settings)
}

func (s *Store) snapshot() (Settings, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current, !s.checkedAt.IsZero() && s.now().Sub(s.checkedAt) < s.ttl
}

func (s *Store) revalidate(ctx context.Context) Settings {
	// The load is shared by every waiting caller, so it must not be cut
	// short by the one request that happened to start it.
	lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
	defer cancel()

	raw, err := s.loader.LoadSettings(lctx)
	var next Settings
	if err == nil {
		next, err = Parse(raw, s.defaults)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkedAt = s.now()
	if err != nil {
		slog.Warn("settings revalidation failed, keeping last known values", "error", err, "loaded", s.loaded)
		return s.current
	}
	s.current = next
	s.loaded = true
	return next
}

// Parse overlays raw values on base. Unknown keys are ignored; a malformed
// known key or an unusable combination of limits is an error.
func Parse(raw map[string]string, base Settings) (Settings, error) {
	out := base
	for key, val := range raw {
		val = strings.TrimSpace(val)
		var err error
		switch key {
		case KeyMaintenanceMode:
			out.MaintenanceMode, err = strconv.ParseBool(val)
		case KeyUploadsEnabled:
			out.UploadsEnabled, err = strconv.ParseBool(val)
		case KeyMaxFileSize:
			out.Limits.MaxFileSize, err = strconv.ParseInt(val, 10, 64)
		case KeyMaxBatchCount:
			out.Limits.MaxBatchCount, err = strconv.Atoi(val)
		case KeyMaxImageWidth:
			out.Limits.MaxWidth, err = strconv.Atoi(val)
		case KeyMaxImageHeight:
			out.Limits.MaxHeight, err = strconv.Atoi(val)
		case KeyImageQuality:
			out.Limits.Quality, err = strconv.Atoi(val)
		}
		if err != nil {
			return base, fmt.Errorf("settings: %s=%q: %w", key, val, err)
		}
	}
	if err := out.Limits.Validate(); err != nil {
		return base, fmt.Errorf("settings: %w", err)
	}
	return out, nil
}
