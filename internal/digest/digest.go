// Package digest implements the streaming digest engine described in
// spec.md §4.1: algorithm-prefixed compute/verify over files without
// loading them fully into memory, plus human-readable drift reports.
package digest

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"

	"github.com/mcpshield/mcpshield/internal/mcperr"
)

// Algo is a supported digest algorithm token, as it appears in the
// "<algo>-<base64>" wire form.
type Algo string

const (
	AlgoSHA256 Algo = "sha256"
	AlgoSHA512 Algo = "sha512"
)

// NewHash returns a fresh hash.Hash for algo, for callers that need to tee
// bytes through a hash incrementally rather than via Compute/ComputeReader.
func NewHash(algo Algo) (hash.Hash, error) {
	return newHash(algo)
}

func newHash(algo Algo) (hash.Hash, error) {
	switch algo {
	case AlgoSHA256:
		return sha256.New(), nil
	case AlgoSHA512:
		return sha512.New(), nil
	default:
		return nil, fmt.Errorf("unsupported digest algorithm %q", algo)
	}
}

// Compute streams path through algo and returns "<algo>-<base64-standard>".
func Compute(path string, algo Algo) (string, error) {
	h, err := newHash(algo)
	if err != nil {
		return "", err
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}

	return Format(algo, h.Sum(nil)), nil
}

// ComputeReader streams r through algo, for sources that aren't plain files
// (e.g. a pipe from a download already being written to disk elsewhere).
func ComputeReader(r io.Reader, algo Algo) (string, error) {
	h, err := newHash(algo)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("hash stream: %w", err)
	}
	return Format(algo, h.Sum(nil)), nil
}

// Format renders an algorithm and raw digest bytes as "<algo>-<base64>".
func Format(algo Algo, sum []byte) string {
	return fmt.Sprintf("%s-%s", algo, base64.StdEncoding.EncodeToString(sum))
}

// Parse splits a canonical digest string into its algorithm and the
// base64-encoded hash part.
func Parse(digest string) (Algo, string, error) {
	idx := strings.Index(digest, "-")
	if idx <= 0 {
		return "", "", fmt.Errorf("malformed digest %q: expected \"<algo>-<base64>\"", digest)
	}
	algo := Algo(digest[:idx])
	hashPart := digest[idx+1:]
	if hashPart == "" {
		return "", "", fmt.Errorf("malformed digest %q: empty hash part", digest)
	}
	return algo, hashPart, nil
}

// VerifyResult is the outcome of Verify.
type VerifyResult struct {
	Valid  bool
	Actual string
}

// Verify parses the algorithm from expected's prefix, computes the digest
// of path using that algorithm, and compares.
func Verify(path string, expected string) (VerifyResult, error) {
	algo, _, err := Parse(expected)
	if err != nil {
		return VerifyResult{}, mcperr.New(mcperr.KindIntegrity, err, "invalid expected digest")
	}

	actual, err := Compute(path, algo)
	if err != nil {
		return VerifyResult{}, err
	}

	return VerifyResult{Valid: actual == expected, Actual: actual}, nil
}

// DriftReport renders a human-readable description of an artifact whose
// pinned digest no longer matches its upstream bytes.
func DriftReport(namespace, oldDigest, newDigest, url string) string {
	return fmt.Sprintf(
		"drift detected for %s: pinned digest %s no longer matches %s (now %s)",
		namespace, oldDigest, url, newDigest,
	)
}
