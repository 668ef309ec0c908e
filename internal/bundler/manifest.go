// Package bundler assembles a lockfile, its signature, and the active
// policy into a single distributable zip, so a pinned project can be
// verified on another machine without re-running add/scan there.
package bundler

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/mcpshield/mcpshield/internal/version"
)

const (
	lockfileEntryName  = "mcp.lock.json"
	signatureEntryName = "mcp.lock.json.sig"
	publicKeyEntryName = "public.key"
	policyEntryName    = "policy.yaml"
	readmeEntryName    = "README.txt"
	manifestEntryName  = "manifest.json"
)

// Manifest lists every file a bundle carries along with its hash, so a
// verifier can detect a bundle that was edited after signing without
// re-deriving the signature.
type Manifest struct {
	ToolVersion   string         `json:"tool_version"`
	Files         []ManifestFile `json:"files"`
	LockfileHash  string         `json:"lockfile_hash"`
	SignatureHash string         `json:"signature_hash"`
	CanonVersion  string         `json:"canon_version,omitempty"`
}

// ManifestFile is one entry inside a Manifest.
type ManifestFile struct {
	Name   string `json:"name"`
	SHA256 string `json:"sha256"`
	Size   int64  `json:"size"`
}

// GenerateManifest hashes every file named in opts and returns the
// resulting Manifest, with Files sorted for deterministic JSON output.
func GenerateManifest(opts BundleOptions, canonVersion string) (*Manifest, error) {
	manifest := &Manifest{
		ToolVersion:  version.BuildVersion(),
		Files:        []ManifestFile{},
		CanonVersion: canonVersion,
	}

	lockHash, lockSize, err := hashFile(opts.LockfilePath)
	if err != nil {
		return nil, fmt.Errorf("hash lockfile: %w", err)
	}
	manifest.LockfileHash = lockHash
	manifest.Files = append(manifest.Files, ManifestFile{Name: lockfileEntryName, SHA256: lockHash, Size: lockSize})

	sigHash, sigSize, err := hashFile(opts.SignaturePath)
	if err != nil {
		return nil, fmt.Errorf("hash signature: %w", err)
	}
	manifest.SignatureHash = sigHash
	manifest.Files = append(manifest.Files, ManifestFile{Name: signatureEntryName, SHA256: sigHash, Size: sigSize})

	if opts.PublicKeyPath != "" {
		if hash, size, err := hashFile(opts.PublicKeyPath); err == nil {
			manifest.Files = append(manifest.Files, ManifestFile{Name: publicKeyEntryName, SHA256: hash, Size: size})
		}
	}

	if opts.PolicyPath != "" {
		if hash, size, err := hashFile(opts.PolicyPath); err == nil {
			manifest.Files = append(manifest.Files, ManifestFile{Name: policyEntryName, SHA256: hash, Size: size})
		}
	}

	sort.Slice(manifest.Files, func(i, j int) bool {
		return manifest.Files[i].Name < manifest.Files[j].Name
	})

	return manifest, nil
}

// ToJSON renders m with stable key ordering and indentation, so two calls
// over the same manifest produce identical bytes.
func (m *Manifest) ToJSON() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

func hashFile(path string) (string, int64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", 0, err
	}
	sum := sha256.Sum256(data)
	return fmt.Sprintf("%x", sum), int64(len(data)), nil
}
