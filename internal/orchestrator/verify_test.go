package orchestrator

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/mcpshield/mcpshield/internal/cache"
	"github.com/mcpshield/mcpshield/internal/digest"
	"github.com/mcpshield/mcpshield/internal/lockfile"
	"github.com/mcpshield/mcpshield/internal/models"
	"github.com/mcpshield/mcpshield/internal/resolver"
)

func TestVerifyRequiresExistingLockfile(t *testing.T) {
	deps := &Deps{Cache: cache.NewAt(t.TempDir()), Lockfile: lockfile.New(filepath.Join(t.TempDir(), "mcp.lock.json"))}
	_, err := Verify(context.Background(), deps)
	if err == nil {
		t.Fatal("expected an error when no lockfile is present")
	}
}

func TestVerifyMatchFromCache(t *testing.T) {
	c := cache.NewAt(t.TempDir())
	path := writeBytesFile(t, []byte("artifact bytes"))
	sum, err := digest.Compute(path, digest.AlgoSHA512)
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	if _, err := c.Put(sum, path); err != nil {
		t.Fatalf("cache put: %v", err)
	}

	entry := models.LockfileEntry{
		Namespace: "io.github.acme/tool",
		Version:   "1.0.0",
		FetchedAt: time.Now(),
		Artifacts: []models.LockedArtifact{{Kind: models.PackageKindNPM, URL: "https://registry.npmjs.org/acme-tool.tgz", Digest: sum}},
	}
	store := seedLockfile(t, entry)

	deps := &Deps{Cache: c, Lockfile: store}
	result, err := Verify(context.Background(), deps)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if result.Drifted {
		t.Fatal("expected no drift")
	}
	if len(result.Results) != 1 || result.Results[0].Status != "match" {
		t.Fatalf("expected a single match result, got %+v", result.Results)
	}
}

func TestVerifyOfflineMissWhenUncached(t *testing.T) {
	entry := models.LockfileEntry{
		Namespace: "io.github.acme/tool",
		Version:   "1.0.0",
		FetchedAt: time.Now(),
		Artifacts: []models.LockedArtifact{{Kind: models.PackageKindNPM, URL: "https://registry.npmjs.org/acme-tool.tgz", Digest: "sha512-missing"}},
	}
	store := seedLockfile(t, entry)

	deps := &Deps{Cache: cache.NewAt(t.TempDir()), Lockfile: store, Offline: true}
	result, err := Verify(context.Background(), deps)
	if err == nil {
		t.Fatal("expected a non-zero-exit error for an offline cache miss")
	}
	if result.Results[0].Status != "offline_miss" {
		t.Fatalf("expected offline_miss, got %q", result.Results[0].Status)
	}
}

func TestVerifyDetectsDriftAndHealsOnMatch(t *testing.T) {
	originalBytes := []byte("original bytes")
	originalPath := writeBytesFile(t, originalBytes)
	originalSum, err := digest.Compute(originalPath, digest.AlgoSHA512)
	if err != nil {
		t.Fatalf("digest: %v", err)
	}

	driftedBytes := []byte("drifted bytes, much longer than the original")

	mux := http.NewServeMux()
	mux.HandleFunc("/acme-tool.tgz", func(w http.ResponseWriter, r *http.Request) {
		w.Write(driftedBytes)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	entry := models.LockfileEntry{
		Namespace: "io.github.acme/tool",
		Version:   "1.0.0",
		FetchedAt: time.Now(),
		Artifacts: []models.LockedArtifact{{Kind: models.PackageKindNPM, URL: server.URL + "/acme-tool.tgz", Digest: originalSum}},
	}
	store := seedLockfile(t, entry)

	deps := &Deps{
		Cache:    cache.NewAt(t.TempDir()),
		Lockfile: store,
		ResolverOptions: resolver.Options{
			Download: resolver.DownloadConfig{AllowPrivateHosts: true, MaxSize: resolver.DefaultMaxArtifactSize},
		},
	}

	result, err := Verify(context.Background(), deps)
	if err == nil {
		t.Fatal("expected a non-zero-exit error when drift is detected")
	}
	if !result.Drifted {
		t.Fatal("expected drift to be detected")
	}
	if result.Results[0].Status != "drift" {
		t.Fatalf("expected drift status, got %q", result.Results[0].Status)
	}
}

func TestVerifyHealsCacheOnMatchingRedownload(t *testing.T) {
	bodyBytes := []byte("stable artifact bytes")
	path := writeBytesFile(t, bodyBytes)
	sum, err := digest.Compute(path, digest.AlgoSHA512)
	if err != nil {
		t.Fatalf("digest: %v", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/acme-tool.tgz", func(w http.ResponseWriter, r *http.Request) {
		w.Write(bodyBytes)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	entry := models.LockfileEntry{
		Namespace: "io.github.acme/tool",
		Version:   "1.0.0",
		FetchedAt: time.Now(),
		Artifacts: []models.LockedArtifact{{Kind: models.PackageKindNPM, URL: server.URL + "/acme-tool.tgz", Digest: sum}},
	}
	store := seedLockfile(t, entry)

	c := cache.NewAt(t.TempDir())
	deps := &Deps{
		Cache:    c,
		Lockfile: store,
		ResolverOptions: resolver.Options{
			Download: resolver.DownloadConfig{AllowPrivateHosts: true, MaxSize: resolver.DefaultMaxArtifactSize},
		},
	}

	if _, err := Verify(context.Background(), deps); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if _, ok := c.Get(sum); !ok {
		t.Fatal("expected the cache to be healed after a matching re-download")
	}
}
