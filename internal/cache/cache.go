// Package cache implements the content-addressed on-disk artifact cache
// described in spec.md §4.2: sharded layout keyed by digest, GC by age, and
// a full purge.
package cache

import (
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	homedir "github.com/mitchellh/go-homedir"
)

const dirName = "mcpshield"

// EnvCacheRoot overrides the cache root directory outright.
const EnvCacheRoot = "MCPSHIELD_CACHE_ROOT"

// EnvXDGCacheHome is the standard XDG cache root override.
const EnvXDGCacheHome = "XDG_CACHE_HOME"

// Cache is a content-addressed store rooted at a resolved directory.
type Cache struct {
	root string
}

// New resolves the cache root following §4.2's first-match-wins order:
// explicit override env var, XDG cache root, OS-specific per-user caches
// directory, then a .cache fallback under the home directory.
func New() (*Cache, error) {
	root, err := ResolveRoot()
	if err != nil {
		return nil, err
	}
	return &Cache{root: root}, nil
}

// NewAt pins the cache to an explicit root, bypassing directory resolution
// (used by tests and by callers that already know the root).
func NewAt(root string) *Cache {
	return &Cache{root: root}
}

// ResolveRoot implements the §4.2 directory-resolution order.
func ResolveRoot() (string, error) {
	if override := os.Getenv(EnvCacheRoot); override != "" {
		return override, nil
	}

	if xdg := os.Getenv(EnvXDGCacheHome); xdg != "" {
		return filepath.Join(xdg, dirName), nil
	}

	if base, err := os.UserCacheDir(); err == nil && base != "" {
		return filepath.Join(base, dirName), nil
	}

	home, err := homedir.Dir()
	if err != nil {
		return "", fmt.Errorf("resolve cache root: %w", err)
	}
	return filepath.Join(home, ".cache", dirName), nil
}

// Root returns the resolved cache root directory.
func (c *Cache) Root() string { return c.root }

// safeHash returns the base64url form of the raw hash bytes decoded from a
// standard-base64 hash part, with padding stripped.
func safeHash(hashPart string) (string, error) {
	raw, err := decodeHashPart(hashPart)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(base64.URLEncoding.EncodeToString(raw), "="), nil
}

// decodeHashPart tolerates both padded and unpadded standard base64, since
// digest.Format always emits padded standard base64 but legacy/foreign
// digests may not.
func decodeHashPart(hashPart string) ([]byte, error) {
	if raw, err := base64.StdEncoding.DecodeString(hashPart); err == nil {
		return raw, nil
	}
	return base64.RawStdEncoding.DecodeString(hashPart)
}

func shardOf(safe string) string {
	if len(safe) < 2 {
		return "00"
	}
	return safe[:2]
}

// paths returns the canonical write path plus any legacy read-compatible
// path for a digest.
func (c *Cache) paths(digestStr string) (safePath string, legacyPath string, err error) {
	idx := strings.Index(digestStr, "-")
	if idx <= 0 {
		return "", "", fmt.Errorf("malformed digest %q", digestStr)
	}
	algo := digestStr[:idx]
	hashPart := digestStr[idx+1:]

	safe, err := safeHash(hashPart)
	if err != nil {
		return "", "", fmt.Errorf("malformed digest %q: %w", digestStr, err)
	}

	shard := shardOf(safe)
	safePath = filepath.Join(c.root, shard, fmt.Sprintf("%s-%s", algo, safe))
	legacyPath = filepath.Join(c.root, shard, fmt.Sprintf("%s-%s", algo, hashPart))
	return safePath, legacyPath, nil
}

// Has reports whether digestStr has a cached artifact.
func (c *Cache) Has(digestStr string) bool {
	_, ok := c.lookup(digestStr)
	return ok
}

func (c *Cache) lookup(digestStr string) (string, bool) {
	safePath, legacyPath, err := c.paths(digestStr)
	if err != nil {
		return "", false
	}
	if _, err := os.Stat(safePath); err == nil {
		return safePath, true
	}
	if _, err := os.Stat(legacyPath); err == nil {
		return legacyPath, true
	}
	return "", false
}

// Get returns the path to the cached artifact for digestStr, or "" if not
// present. It checks the safe layout first, then the legacy layout.
func (c *Cache) Get(digestStr string) (string, bool) {
	return c.lookup(digestStr)
}

// Put copies sourcePath into the cache slot for digestStr, creating parent
// directories as needed. Put is idempotent: calling it again with the same
// digest overwrites the slot with equivalent bytes.
func (c *Cache) Put(digestStr string, sourcePath string) (string, error) {
	safePath, _, err := c.paths(digestStr)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(safePath), 0o755); err != nil {
		return "", fmt.Errorf("create cache shard dir: %w", err)
	}

	tmp := safePath + ".tmp"
	if err := copyFile(sourcePath, tmp); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("stage cache entry: %w", err)
	}

	if err := os.Rename(tmp, safePath); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("publish cache entry: %w", err)
	}

	return safePath, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}

// Cleanup walks the cache tree and deletes files whose mtime is older than
// now - maxAge. A missing root is not an error.
func (c *Cache) Cleanup(maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge)
	removed := 0

	err := filepath.Walk(c.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() {
			return nil
		}
		if info.ModTime().Before(cutoff) {
			if rmErr := os.Remove(path); rmErr == nil {
				removed++
			}
		}
		return nil
	})

	if err != nil && !os.IsNotExist(err) {
		return removed, fmt.Errorf("cleanup cache: %w", err)
	}
	return removed, nil
}

// Purge removes all files and directories under root, including root
// itself.
func (c *Cache) Purge() (int, error) {
	removed := 0

	err := filepath.Walk(c.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if !info.IsDir() {
			removed++
		}
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return removed, fmt.Errorf("walk cache for purge: %w", err)
	}

	if err := os.RemoveAll(c.root); err != nil {
		return removed, fmt.Errorf("purge cache root: %w", err)
	}
	return removed, nil
}
