package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mcpshield/mcpshield/internal/digest"
	"github.com/mcpshield/mcpshield/internal/mcperr"
	"github.com/mcpshield/mcpshield/internal/models"
)

// DefaultNPMRegistry is the public npm registry base URL.
const DefaultNPMRegistry = "https://registry.npmjs.org"

type npmResolver struct {
	baseURL  string
	offline  bool
	http     *http.Client
	download DownloadConfig
}

func newNPMResolver(opts Options) *npmResolver {
	base := opts.NPMRegistryBaseURL
	if base == "" {
		base = DefaultNPMRegistry
	}
	return &npmResolver{
		baseURL:  strings.TrimRight(base, "/"),
		offline:  opts.Offline,
		http:     &http.Client{Timeout: 15 * time.Second},
		download: opts.Download,
	}
}

// SplitNameVersion separates an npm identifier at its last "@", tolerating
// a leading "@" on scoped package names ("@scope/name" has no version
// suffix if that is the only "@").
func SplitNameVersion(identifier string) (name string, version string) {
	idx := strings.LastIndex(identifier, "@")
	if idx <= 0 {
		return identifier, ""
	}
	return identifier[:idx], identifier[idx+1:]
}

type npmDistTags map[string]string

type npmVersionDist struct {
	Tarball   string `json:"tarball"`
	Integrity string `json:"integrity"`
	ShaSum    string `json:"shasum"`
}

type npmVersionDoc struct {
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies"`
	PeerDependencies map[string]string `json:"peerDependencies"`
	Scripts         map[string]string `json:"scripts"`
	Dist            npmVersionDist    `json:"dist"`
}

type npmPackumentDoc struct {
	Name     string                   `json:"name"`
	DistTags npmDistTags              `json:"dist-tags"`
	Versions map[string]npmVersionDoc `json:"versions"`
}

// FetchPackument retrieves the full npm packument for a package name.
func (r *npmResolver) fetchPackument(ctx context.Context, name string) (npmPackumentDoc, error) {
	if r.offline {
		return npmPackumentDoc{}, mcperr.Network(0, nil, "npm metadata lookup attempted while offline")
	}

	endpoint := fmt.Sprintf("%s/%s", r.baseURL, url.PathEscape(name))
	if strings.HasPrefix(name, "@") {
		// Scoped packages keep their slash un-escaped in the registry path.
		parts := strings.SplitN(name, "/", 2)
		if len(parts) == 2 {
			endpoint = fmt.Sprintf("%s/%s/%s", r.baseURL, url.PathEscape(parts[0]), url.PathEscape(parts[1]))
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return npmPackumentDoc{}, mcperr.Unexpected(err, "build npm metadata request")
	}

	resp, err := r.http.Do(req)
	if err != nil {
		return npmPackumentDoc{}, mcperr.Network(0, err, "npm metadata request failed for %s", name)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return npmPackumentDoc{}, mcperr.NotFound("npm package %q not found", name)
	}
	if resp.StatusCode != http.StatusOK {
		return npmPackumentDoc{}, mcperr.Network(resp.StatusCode, nil, "npm registry returned status %d for %s", resp.StatusCode, name)
	}

	var doc npmPackumentDoc
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return npmPackumentDoc{}, mcperr.Unexpected(err, "decode npm packument for %s", name)
	}
	return doc, nil
}

// Resolve fetches the npm packument, follows a dist-tag if version names one
// instead of a concrete semver, and returns the selected version's artifact.
func (r *npmResolver) Resolve(ctx context.Context, pkg models.Package) (models.Artifact, error) {
	name, parsedVersion := SplitNameVersion(pkg.Identifier)
	version := pkg.Version
	if version == "" {
		version = parsedVersion
	}

	doc, err := r.fetchPackument(ctx, name)
	if err != nil {
		return models.Artifact{}, err
	}

	if version == "" {
		if latest, ok := doc.DistTags["latest"]; ok {
			version = latest
		}
	} else if resolved, ok := doc.DistTags[version]; ok {
		version = resolved
	}

	versionDoc, ok := doc.Versions[version]
	if !ok {
		return models.Artifact{}, mcperr.NotFound("npm package %q has no version %q", name, version)
	}
	if versionDoc.Dist.Tarball == "" {
		return models.Artifact{}, mcperr.Unexpected(nil, "npm package %q@%s has no dist.tarball", name, version)
	}

	integrity := versionDoc.Dist.Integrity
	if integrity == "" && versionDoc.Dist.ShaSum != "" {
		integrity = "sha1-" + versionDoc.Dist.ShaSum
	}

	return models.Artifact{
		URL:       versionDoc.Dist.Tarball,
		Integrity: integrity,
		Kind:      models.PackageKindNPM,
	}, nil
}

// Download streams artifact to destDir, enforcing the declared size cap
// before any network read and verifying integrity after the fact.
func (r *npmResolver) Download(ctx context.Context, artifact models.Artifact, destDir string) (Resolved, error) {
	if r.offline {
		return Resolved{}, mcperr.Network(0, nil, "npm download attempted while offline")
	}

	cfg := r.download
	if artifact.DeclaredSize > 0 && cfg.MaxSize > 0 && artifact.DeclaredSize > cfg.MaxSize {
		return Resolved{}, mcperr.SizeLimit("declared size %d exceeds cap %d", artifact.DeclaredSize, cfg.MaxSize)
	}

	algo := digest.AlgoSHA512
	if artifact.Integrity != "" {
		if parsedAlgo, _, err := digest.Parse(artifact.Integrity); err == nil {
			algo = parsedAlgo
		}
	}
	cfg.Algo = algo

	result, err := downloadStream(ctx, artifact.URL, destDir, cfg)
	if err != nil {
		return Resolved{}, err
	}

	if artifact.Integrity != "" && !strings.HasPrefix(artifact.Integrity, "sha1-") {
		if artifact.Integrity != result.Digest {
			removeFile(result.Path)
			return Resolved{}, mcperr.Integrity("npm artifact integrity mismatch: declared %s, computed %s", artifact.Integrity, result.Digest)
		}
	}

	return Resolved{Artifact: artifact, Path: result.Path, Digest: result.Digest, Size: result.Size}, nil
}
