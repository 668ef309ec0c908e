// Package resolver translates a kind@identifier@version package reference
// into a downloaded, digest-verified artifact on disk, per spec.md §4.3.
// Each supported PackageKind gets its own resolve/download implementation;
// the orchestrator dispatches by kind (§9's "trait with per-kind
// implementations").
package resolver

import (
	"context"

	"github.com/mcpshield/mcpshield/internal/mcperr"
	"github.com/mcpshield/mcpshield/internal/models"
)

// Resolved is an Artifact plus the on-disk path of its downloaded bytes.
type Resolved struct {
	Artifact models.Artifact
	Path     string
	Digest   string
	Size     int64
}

// Resolver resolves and downloads one package kind.
type Resolver interface {
	// Resolve fetches registry metadata for pkg and returns the artifact
	// descriptor (URL, declared integrity, declared size) without
	// downloading its bytes.
	Resolve(ctx context.Context, pkg models.Package) (models.Artifact, error)

	// Download streams the artifact at destDir, verifying its integrity
	// against artifact.Integrity when declared.
	Download(ctx context.Context, artifact models.Artifact, destDir string) (Resolved, error)
}

// Options configures resolvers constructed by New.
type Options struct {
	NPMRegistryBaseURL  string
	PyPIRegistryBaseURL string
	Offline             bool
	Download            DownloadConfig
}

// DefaultOptions returns conservative defaults matching §4.3/§5.
func DefaultOptions() Options {
	return Options{
		NPMRegistryBaseURL:  DefaultNPMRegistry,
		PyPIRegistryBaseURL: DefaultPyPIRegistry,
		Download:            DefaultDownloadConfig(),
	}
}

// ForKind returns the Resolver responsible for kind, or an error for
// kinds the pipeline declares unsupported (nuget, mcpb).
func ForKind(kind models.PackageKind, opts Options) (Resolver, error) {
	switch kind {
	case models.PackageKindNPM:
		return newNPMResolver(opts), nil
	case models.PackageKindPyPI:
		return newPyPIResolver(opts), nil
	case models.PackageKindOCI:
		return newOCIResolver(opts), nil
	case models.PackageKindNuGet, models.PackageKindMCPB:
		return nil, mcperr.User("package kind %q is recorded but not resolved by this pipeline", kind)
	default:
		return nil, mcperr.User("unknown package kind %q", kind)
	}
}

// Supported reports whether kind currently resolves and pins artifacts
// end-to-end. It says nothing about whether the kind is also scanned;
// use Scannable for that (oci resolves and pins but is never scanned).
func Supported(kind models.PackageKind) bool {
	switch kind {
	case models.PackageKindNPM, models.PackageKindPyPI, models.PackageKindOCI:
		return true
	default:
		return false
	}
}

// Scannable reports whether kind's downloaded bytes are analyzed by the
// static scanner. §3/§4.7 declare oci unsupported at the scan stage even
// though it resolves and pins like any other kind.
func Scannable(kind models.PackageKind) bool {
	return kind == models.PackageKindNPM || kind == models.PackageKindPyPI
}
