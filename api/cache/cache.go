// Package cache is a small on-disk TTL cache. Entries are gob encoded, one
// file per key, below the user cache directory.
package cache

import (
	"encoding/gob"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var (
	// DefaultTTL is how long an entry stays fresh.
	DefaultTTL = 24 * time.Hour

	// DefaultDir is the root of every cache namespace.
	DefaultDir string
)

func init() {
	cacheHome, err := os.UserCacheDir()
	if err != nil {
		DefaultDir = filepath.Join(os.TempDir(), "litrev")
	} else {
		DefaultDir = filepath.Join(cacheHome, "litrev")
	}
}

type Entry[T any] struct {
	Value     T
	CreatedAt time.Time
}

type Cache[T any] struct {
	dir string
	ttl time.Duration
	now func() time.Time
}

// New returns a cache stored in DefaultDir/namespace.
func New[T any](namespace string) *Cache[T] {
	return &Cache[T]{
		dir: filepath.Join(DefaultDir, normalizeKey(namespace)),
		ttl: DefaultTTL,
		now: time.Now,
	}
}

// WithDir moves the cache to dir.
func (c *Cache[T]) WithDir(dir string) *Cache[T] {
	c.dir = dir
	return c
}

// WithTTL changes how long entries stay fresh.
func (c *Cache[T]) WithTTL(d time.Duration) *Cache[T] {
	c.ttl = d
	return c
}

// normalizeKey maps a key to a single safe file name.
func normalizeKey(key string) string {
	normalized := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') ||
			(r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') ||
			r == '-' || r == '_' || r == '.' {
			return r
		}
		return '_'
	}, key)

	for strings.Contains(normalized, "..") {
		normalized = strings.ReplaceAll(normalized, "..", ".")
	}
	return normalized
}

func (c *Cache[T]) path(key string) string {
	return filepath.Join(c.dir, normalizeKey(key)+".gob")
}

// Get returns a fresh entry for key.
func (c *Cache[T]) Get(key string) (T, bool) {
	var zero T
	entry, err := c.loadEntry(c.path(key))
	if err != nil || c.now().Sub(entry.CreatedAt) >= c.ttl {
		return zero, false
	}
	return entry.Value, true
}

// Set stores value under key.
func (c *Cache[T]) Set(key string, value T) error {
	return c.saveEntry(c.path(key), Entry[T]{Value: value, CreatedAt: c.now()})
}

// GetOrSet returns the cached value for key, calling fn and storing its
// result when the entry is missing, stale, or forceUpdate is set. A failed
// write still returns the value together with the write error.
func (c *Cache[T]) GetOrSet(key string, fn func() (T, error), forceUpdate bool) (T, error) {
	if !forceUpdate {
		if v, ok := c.Get(key); ok {
			return v, nil
		}
	}
	value, err := fn()
	if err != nil {
		var zero T
		return zero, err
	}
	return value, c.Set(key, value)
}

func (c *Cache[T]) loadEntry(path string) (*Entry[T], error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entry Entry[T]
	if err := gob.NewDecoder(f).Decode(&entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

func (c *Cache[T]) saveEntry(path string, entry Entry[T]) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return gob.NewEncoder(f).Encode(entry)
}

// Clear removes every entry of the cache.
func (c *Cache[T]) Clear() error {
	return os.RemoveAll(c.dir)
}
