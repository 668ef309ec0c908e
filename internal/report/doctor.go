package report

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mcpshield/mcpshield/internal/cache"
	"github.com/mcpshield/mcpshield/internal/lockfile"
	"github.com/mcpshield/mcpshield/internal/models"
	"github.com/mcpshield/mcpshield/internal/policy"
)

// Doctor runs a read-only diagnostic over local state: the resolved cache
// root and its entry count, lockfile presence/validity, and policy
// presence/validity. It never mutates anything on disk.
func Doctor(c *cache.Cache, store *lockfile.Store, pol *models.Policy, policyPresent bool) (models.DoctorResult, error) {
	result := models.DoctorResult{
		CacheRoot: c.Root(),
	}

	count, err := countCacheEntries(c.Root())
	if err != nil {
		result.Problems = append(result.Problems, fmt.Sprintf("cache: %v", err))
	}
	result.CacheEntryCount = count

	result.LockfileExists = store.Exists()
	if result.LockfileExists {
		lock, err := store.Read()
		if err != nil {
			result.Problems = append(result.Problems, fmt.Sprintf("lockfile: %v", err))
		} else {
			validation := lockfile.Validate(lock)
			result.LockfileValid = validation.Valid
			result.Problems = append(result.Problems, validation.Errors...)
		}
	}

	result.PolicyPresent = policyPresent
	if policyPresent {
		validation := policy.Validate(pol)
		result.PolicyValid = validation.Valid
		result.Problems = append(result.Problems, validation.Errors...)
	}

	return result, nil
}

// countCacheEntries walks the cache root and counts regular files,
// tolerating a root that doesn't exist yet (a fresh, empty cache).
func countCacheEntries(root string) (int, error) {
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return 0, nil
	}

	count := 0
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			count++
		}
		return nil
	})
	return count, err
}
