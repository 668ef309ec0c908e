package lockfile

import (
	"fmt"

	"github.com/mcpshield/mcpshield/internal/models"
)

// ValidationResult is the outcome of Validate.
type ValidationResult struct {
	Valid  bool
	Errors []string
}

// Validate applies the structural fallback described in spec.md §4.9: no
// lockfile JSON-schema is shipped in this revision, so validation checks
// the presence of version, that servers is a mapping, and per-entry
// presence of namespace, version, a boolean verified, and fetchedAt.
func Validate(lock models.Lockfile) ValidationResult {
	var errs []string

	if lock.Version == "" {
		errs = append(errs, "version is required")
	}
	if lock.Servers == nil {
		errs = append(errs, "servers must be present (may be empty)")
	}

	for namespace, entry := range lock.Servers {
		if entry.Namespace == "" {
			errs = append(errs, fmt.Sprintf("servers[%q]: namespace is required", namespace))
		} else if entry.Namespace != namespace {
			errs = append(errs, fmt.Sprintf("servers[%q]: entry.namespace %q does not match its map key", namespace, entry.Namespace))
		}
		if entry.Version == "" {
			errs = append(errs, fmt.Sprintf("servers[%q]: version is required", namespace))
		}
		if entry.FetchedAt.IsZero() {
			errs = append(errs, fmt.Sprintf("servers[%q]: fetchedAt is required", namespace))
		}
		for i, a := range entry.Artifacts {
			if a.URL == "" {
				errs = append(errs, fmt.Sprintf("servers[%q].artifacts[%d]: url is required", namespace, i))
			}
			if a.Digest == "" {
				errs = append(errs, fmt.Sprintf("servers[%q].artifacts[%d]: digest is required", namespace, i))
			}
		}
	}

	return ValidationResult{Valid: len(errs) == 0, Errors: errs}
}
