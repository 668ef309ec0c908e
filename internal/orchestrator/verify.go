package orchestrator

import (
	"context"
	"errors"
	"os"
	"sort"

	"github.com/mcpshield/mcpshield/internal/mcperr"
	"github.com/mcpshield/mcpshield/internal/models"
	"github.com/mcpshield/mcpshield/internal/observability/metrics"
	"github.com/mcpshield/mcpshield/internal/resolver"
)

// Verify checks every pinned artifact's digest against its cached or
// freshly downloaded bytes (spec.md §4.12). It never rewrites the
// lockfile and never runs the scanner; a cache hit on re-download heals
// the cache but changes nothing else.
func Verify(ctx context.Context, deps *Deps) (models.VerifyResult, error) {
	ctx = ctxOrBackground(ctx)

	if !deps.Lockfile.Exists() {
		return models.VerifyResult{}, mcperr.User("no lockfile present; run add before verify")
	}
	lock, err := deps.Lockfile.Read()
	if err != nil {
		return models.VerifyResult{}, err
	}

	namespaces := make([]string, 0, len(lock.Servers))
	for ns := range lock.Servers {
		namespaces = append(namespaces, ns)
	}
	sort.Strings(namespaces)

	var results []models.VerifyArtifactResult
	drifted := false

	for _, ns := range namespaces {
		entry := lock.Servers[ns]
		for _, art := range entry.Artifacts {
			r := verifyArtifact(ctx, deps, ns, art)
			if r.Status == "drift" {
				drifted = true
			}
			results = append(results, r)
		}
	}

	return models.VerifyResult{Results: results, Drifted: drifted}, verifyExitError(results)
}

// verifyExitError implements §7's "Verify is strict" exit contract: any
// drift, download/resolution error, or offline cache miss against a pinned
// artifact yields a non-zero exit, not just digest drift.
func verifyExitError(results []models.VerifyArtifactResult) error {
	for _, r := range results {
		if r.Status == "drift" {
			return mcperr.Integrity("artifact %s digest drifted: expected %s, got %s", r.URL, r.ExpectedDigest, r.ActualDigest)
		}
	}
	for _, r := range results {
		if r.Status == "offline_miss" {
			return mcperr.User("artifact %s is not cached and offline mode is set", r.URL)
		}
	}
	for _, r := range results {
		if r.Status == "error" {
			return mcperr.Network(0, errors.New(r.Detail), "verify failed for %s", r.URL)
		}
	}
	return nil
}

// verifyArtifact resolves art's current digest (cache-first, then a fresh
// download under offline-miss rules) and compares it against the pinned
// expectation.
func verifyArtifact(ctx context.Context, deps *Deps, ns string, art models.LockedArtifact) models.VerifyArtifactResult {
	base := models.VerifyArtifactResult{
		Namespace:      ns,
		URL:            art.URL,
		ExpectedDigest: art.Digest,
	}

	if _, ok := deps.Cache.Get(art.Digest); ok {
		base.Status = "match"
		base.ActualDigest = art.Digest
		return base
	}

	if deps.Offline {
		base.Status = "offline_miss"
		base.Detail = "artifact not cached and offline mode is set"
		return base
	}

	if !resolver.Supported(art.Kind) {
		base.Status = "error"
		base.Detail = "package kind is recorded but not resolved by this pipeline"
		return base
	}

	res, err := resolver.ForKind(art.Kind, deps.ResolverOptions)
	if err != nil {
		base.Status = "error"
		base.Detail = err.Error()
		return base
	}

	tmpDir, err := os.MkdirTemp("", "mcpshield-verify-*")
	if err != nil {
		base.Status = "error"
		base.Detail = err.Error()
		return base
	}
	defer os.RemoveAll(tmpDir)

	downloaded, err := res.Download(ctx, models.Artifact{URL: art.URL, Kind: art.Kind}, tmpDir)
	metrics.RecordDownload(string(art.Kind), err)
	if err != nil {
		base.Status = "error"
		base.Detail = err.Error()
		return base
	}

	base.ActualDigest = downloaded.Digest
	if downloaded.Digest != art.Digest {
		base.Status = "drift"
		return base
	}

	if _, err := deps.Cache.Put(downloaded.Digest, downloaded.Path); err != nil {
		base.Status = "error"
		base.Detail = err.Error()
		return base
	}

	base.Status = "match"
	return base
}
