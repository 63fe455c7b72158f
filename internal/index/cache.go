package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/wesm/cursor-history/internal/logging"
)

// DefaultTTL is how long a cached index is trusted without
// any filesystem change.
const DefaultTTL = 10 * time.Minute

// ErrVersionMismatch is returned by Load when the cache file was
// written with a different layout version.
var ErrVersionMismatch = errors.New("cache version mismatch")

// Cache persists an Index as a JSON file and decides when it
// must be rebuilt.
type Cache struct {
	path    string
	builder *Builder
	ttl     time.Duration
	now     func() time.Time
}

// NewCache returns a Cache stored at path that rebuilds with
// builder. A ttl of zero or less disables expiry by age.
func NewCache(path string, builder *Builder, ttl time.Duration) *Cache {
	return &Cache{
		path:    path,
		builder: builder,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Path returns the cache file location.
func (c *Cache) Path() string {
	return c.path
}

// Load reads and decodes the cache file without any freshness
// check.
func (c *Cache) Load() (Index, error) {
	f, err := os.Open(c.path)
	if err != nil {
		return Index{}, fmt.Errorf("opening cache: %w", err)
	}
	defer f.Close()

	var idx Index
	if err := json.NewDecoder(f).Decode(&idx); err != nil {
		return Index{}, fmt.Errorf("decoding cache %s: %w", c.path, err)
	}
	if idx.Version != Version {
		return Index{}, fmt.Errorf(
			"%w: file has %d, want %d",
			ErrVersionMismatch, idx.Version, Version,
		)
	}
	if idx.Sessions == nil {
		idx.Sessions = []Session{}
	}
	return idx, nil
}

// Stale reports whether idx must be rebuilt, with a short
// reason when it must.
func (c *Cache) Stale(idx Index) (bool, string) {
	if idx.Version != Version {
		return true, "version changed"
	}
	if !slices.Equal(idx.Roots, c.builder.Roots()) {
		return true, "projects roots changed"
	}
	if c.ttl > 0 && c.now().Sub(idx.BuiltAt) > c.ttl {
		return true, "ttl expired"
	}

	for _, root := range idx.Roots {
		if _, ok := idx.Watched[root]; ok {
			continue
		}
		if _, err := os.Stat(root); err == nil {
			return true, "projects root appeared: " + root
		}
	}
	for dir, recorded := range idx.Watched {
		info, err := os.Stat(dir)
		if err != nil {
			return true, "watched dir missing: " + dir
		}
		mtime := info.ModTime()
		if mtime.After(idx.BuiltAt) || !mtime.Equal(recorded) {
			return true, "watched dir changed: " + dir
		}
	}
	return false, ""
}

// LoadOrBuild returns the cached index when it is fresh and
// rebuilds it otherwise. rebuilt reports which happened. If the
// rebuilt index cannot be saved, it is still returned along
// with the write error.
func (c *Cache) LoadOrBuild(ctx context.Context) (idx Index, rebuilt bool, err error) {
	idx, err = c.Load()
	if err != nil {
		logging.Debug().Err(err).Msg("cache unusable, rebuilding")
		idx, err = c.Rebuild(ctx)
		return idx, true, err
	}
	if stale, reason := c.Stale(idx); stale {
		logging.Debug().Str("reason", reason).
			Msg("cache stale, rebuilding")
		idx, err = c.Rebuild(ctx)
		return idx, true, err
	}
	return idx, false, nil
}

// Rebuild builds a fresh index and writes it to the cache file.
// On a write failure the index is returned with the error.
func (c *Cache) Rebuild(ctx context.Context) (Index, error) {
	idx, _, err := c.builder.Build(ctx)
	if err != nil {
		return Index{}, err
	}
	if err := c.Save(idx); err != nil {
		logging.Warn().Err(err).Str("path", c.path).
			Msg("cache not written")
		return idx, err
	}
	return idx, nil
}

// Save writes idx atomically: the cache directory is created
// owner-only, the file is written to a temp file in the same
// directory, synced, and renamed into place with mode 0600.
// Concurrent writers do not lock; the last rename wins.
func (c *Cache) Save(idx Index) error {
	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating cache dir: %w", err)
	}
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding index: %w", err)
	}
	return writeFileAtomic(c.path, data)
}

// writeFileAtomic writes data to a temp file next to path and
// renames it over path.
func writeFileAtomic(path string, data []byte) error {
	tmpFile, err := os.CreateTemp(
		filepath.Dir(path), "."+filepath.Base(path)+".tmp-*",
	)
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	// Clean up the temp file on any error.
	defer func() {
		if tmpFile != nil {
			tmpFile.Close()
			os.Remove(tmpPath)
		}
	}()

	if err := tmpFile.Chmod(0o600); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming cache file: %w", err)
	}

	tmpFile = nil
	return nil
}
