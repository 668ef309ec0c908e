package resolver

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/mcpshield/mcpshield/internal/digest"
	"github.com/mcpshield/mcpshield/internal/mcperr"
	"github.com/mcpshield/mcpshield/internal/models"
)

func hexToCanonicalDigest(algo digest.Algo, hexDigest string) (string, error) {
	raw, err := hex.DecodeString(hexDigest)
	if err != nil {
		return "", err
	}
	return digest.Format(algo, raw), nil
}

// DefaultPyPIRegistry is the public PyPI JSON API base URL.
const DefaultPyPIRegistry = "https://pypi.org/pypi"

type pypiResolver struct {
	baseURL  string
	offline  bool
	http     *http.Client
	download DownloadConfig
}

func newPyPIResolver(opts Options) *pypiResolver {
	base := opts.PyPIRegistryBaseURL
	if base == "" {
		base = DefaultPyPIRegistry
	}
	return &pypiResolver{
		baseURL:  strings.TrimRight(base, "/"),
		offline:  opts.Offline,
		http:     &http.Client{Timeout: 15 * time.Second},
		download: opts.Download,
	}
}

type pypiDigests struct {
	SHA256 string `json:"sha256"`
}

type pypiURLEntry struct {
	PackageType string      `json:"packagetype"`
	URL         string      `json:"url"`
	Digests     pypiDigests `json:"digests"`
	Size        int64       `json:"size"`
}

type pypiProjectDoc struct {
	Info struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"info"`
	URLs []pypiURLEntry `json:"urls"`
}

// Resolve fetches PyPI project metadata and picks, in preference order, a
// source distribution, then a wheel, then the first declared artifact.
func (r *pypiResolver) Resolve(ctx context.Context, pkg models.Package) (models.Artifact, error) {
	if r.offline {
		return models.Artifact{}, mcperr.Network(0, nil, "pypi metadata lookup attempted while offline")
	}

	name := pkg.Identifier
	endpoint := fmt.Sprintf("%s/%s/json", r.baseURL, url.PathEscape(name))
	if pkg.Version != "" {
		endpoint = fmt.Sprintf("%s/%s/%s/json", r.baseURL, url.PathEscape(name), url.PathEscape(pkg.Version))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return models.Artifact{}, mcperr.Unexpected(err, "build pypi metadata request")
	}

	resp, err := r.http.Do(req)
	if err != nil {
		return models.Artifact{}, mcperr.Network(0, err, "pypi metadata request failed for %s", name)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return models.Artifact{}, mcperr.NotFound("pypi package %q not found", name)
	}
	if resp.StatusCode != http.StatusOK {
		return models.Artifact{}, mcperr.Network(resp.StatusCode, nil, "pypi registry returned status %d for %s", resp.StatusCode, name)
	}

	var doc pypiProjectDoc
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return models.Artifact{}, mcperr.Unexpected(err, "decode pypi project doc for %s", name)
	}
	if len(doc.URLs) == 0 {
		return models.Artifact{}, mcperr.NotFound("pypi package %q@%s has no release files", name, doc.Info.Version)
	}

	entry := selectPyPIEntry(doc.URLs)

	// PyPI declares sha256 digests as plain hex; re-encode onto our
	// canonical "<algo>-<base64>" form so it's directly comparable to the
	// digest engine's output.
	integrity := ""
	if entry.Digests.SHA256 != "" {
		if canonical, err := hexToCanonicalDigest(digest.AlgoSHA256, entry.Digests.SHA256); err == nil {
			integrity = canonical
		}
	}

	return models.Artifact{
		URL:          entry.URL,
		Integrity:    integrity,
		DeclaredSize: entry.Size,
		Kind:         models.PackageKindPyPI,
	}, nil
}

// selectPyPIEntry prefers a source distribution, then a wheel, then the
// first entry in a stable order.
func selectPyPIEntry(entries []pypiURLEntry) pypiURLEntry {
	sorted := make([]pypiURLEntry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return rank(sorted[i].PackageType) < rank(sorted[j].PackageType)
	})
	return sorted[0]
}

func rank(packageType string) int {
	switch packageType {
	case "sdist":
		return 0
	case "bdist_wheel":
		return 1
	default:
		return 2
	}
}

// Download streams artifact to destDir. PyPI declares a plain hex sha256
// digest (not algorithm-prefixed base64), so integrity is recomputed in the
// pypi digest's hex form for comparison rather than via digest.Format.
func (r *pypiResolver) Download(ctx context.Context, artifact models.Artifact, destDir string) (Resolved, error) {
	if r.offline {
		return Resolved{}, mcperr.Network(0, nil, "pypi download attempted while offline")
	}

	cfg := r.download
	if artifact.DeclaredSize > 0 && cfg.MaxSize > 0 && artifact.DeclaredSize > cfg.MaxSize {
		return Resolved{}, mcperr.SizeLimit("declared size %d exceeds cap %d", artifact.DeclaredSize, cfg.MaxSize)
	}
	cfg.Algo = digest.AlgoSHA256

	result, err := downloadStream(ctx, artifact.URL, destDir, cfg)
	if err != nil {
		return Resolved{}, err
	}

	if artifact.Integrity != "" && artifact.Integrity != result.Digest {
		removeFile(result.Path)
		return Resolved{}, mcperr.Integrity("pypi artifact integrity mismatch: declared %s, computed %s", artifact.Integrity, result.Digest)
	}

	return Resolved{Artifact: artifact, Path: result.Path, Digest: result.Digest, Size: result.Size}, nil
}
