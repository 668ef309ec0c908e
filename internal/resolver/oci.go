package resolver

import (
	"context"
	"encoding/hex"
	"os"
	"strings"

	"github.com/google/go-containerregistry/pkg/crane"
	"github.com/google/go-containerregistry/pkg/name"

	"github.com/mcpshield/mcpshield/internal/digest"
	"github.com/mcpshield/mcpshield/internal/mcperr"
	"github.com/mcpshield/mcpshield/internal/models"
)

// ociResolver resolves and pins oci-kind packages to a manifest digest.
// It never scans an image's layers: §3/§4.7 declare oci unsupported at the
// scan stage, so Download only needs to fetch and hash the manifest, not
// the image's content.
type ociResolver struct {
	offline bool
}

func newOCIResolver(opts Options) *ociResolver {
	return &ociResolver{offline: opts.Offline}
}

// Resolve parses pkg.Identifier as an image reference (repo[:tag] or
// repo@sha256:...) and resolves it to the registry's current manifest
// digest, mirroring the provenance pinning the artifact package did for
// npx-launched images.
func (r *ociResolver) Resolve(ctx context.Context, pkg models.Package) (models.Artifact, error) {
	if r.offline {
		return models.Artifact{}, mcperr.Network(0, nil, "oci digest lookup attempted while offline")
	}

	imageRef := pkg.Identifier
	if pkg.Version != "" && !strings.ContainsAny(pkg.Identifier, "@") {
		imageRef = pkg.Identifier + ":" + pkg.Version
	}

	ref, err := name.ParseReference(imageRef)
	if err != nil {
		return models.Artifact{}, mcperr.User("invalid oci image reference %q: %v", imageRef, err)
	}

	registryDigest, err := crane.Digest(ref.String())
	if err != nil {
		return models.Artifact{}, mcperr.Network(0, err, "resolve oci digest for %s", imageRef)
	}

	integrity, err := ociDigestToWireForm(registryDigest)
	if err != nil {
		return models.Artifact{}, mcperr.Unexpected(err, "convert oci digest %s", registryDigest)
	}

	return models.Artifact{
		URL:       canonicalOCIReference(ref.Context().Name(), registryDigest),
		Integrity: integrity,
		Kind:      models.PackageKindOCI,
	}, nil
}

// Download fetches the image's raw manifest (not its layers, since oci
// artifacts are never scanned) and writes it to destDir under its digest,
// verifying the bytes it received hash to the digest Resolve declared.
func (r *ociResolver) Download(ctx context.Context, artifact models.Artifact, destDir string) (Resolved, error) {
	if r.offline {
		return Resolved{}, mcperr.Network(0, nil, "oci manifest fetch attempted while offline")
	}

	manifest, err := crane.Manifest(artifact.URL)
	if err != nil {
		return Resolved{}, mcperr.Network(0, err, "fetch oci manifest for %s", artifact.URL)
	}

	algo := digest.AlgoSHA256
	if artifact.Integrity != "" {
		if parsedAlgo, _, err := digest.Parse(artifact.Integrity); err == nil {
			algo = parsedAlgo
		}
	}

	computed, err := digest.ComputeReader(strings.NewReader(string(manifest)), algo)
	if err != nil {
		return Resolved{}, mcperr.Unexpected(err, "hash oci manifest for %s", artifact.URL)
	}

	if artifact.Integrity != "" && artifact.Integrity != computed {
		return Resolved{}, mcperr.Integrity("oci manifest digest mismatch for %s: declared %s, computed %s", artifact.URL, artifact.Integrity, computed)
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return Resolved{}, mcperr.Unexpected(err, "create download directory")
	}

	tmp, err := os.CreateTemp(destDir, "mcpshield-oci-manifest-*.json")
	if err != nil {
		return Resolved{}, mcperr.Unexpected(err, "create temp manifest file")
	}
	if _, err := tmp.Write(manifest); err != nil {
		tmp.Close()
		removeFile(tmp.Name())
		return Resolved{}, mcperr.Unexpected(err, "write oci manifest")
	}
	tmp.Close()

	return Resolved{
		Artifact: artifact,
		Path:     tmp.Name(),
		Digest:   computed,
		Size:     int64(len(manifest)),
	}, nil
}

// ociDigestToWireForm converts a registry digest ("sha256:<hex>") into this
// pipeline's "<algo>-<base64-standard>" wire form, so oci artifacts hash
// identically to npm/pypi artifacts in the lockfile and cache.
func ociDigestToWireForm(registryDigest string) (string, error) {
	algo, hexSum, ok := strings.Cut(registryDigest, ":")
	if !ok {
		return "", mcperr.Unexpected(nil, "malformed registry digest %q: expected \"algo:hex\"", registryDigest)
	}
	raw, err := hex.DecodeString(hexSum)
	if err != nil {
		return "", mcperr.Unexpected(err, "decode digest hex for %q", registryDigest)
	}
	return digest.Format(digest.Algo(algo), raw), nil
}

// canonicalOCIReference renders a digest-pinned reference as repo@digest,
// the stable form other stages re-resolve against regardless of which tag
// an operator originally named.
func canonicalOCIReference(repo, registryDigest string) string {
	return repo + "@" + registryDigest
}
