package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/mcpshield/mcpshield/internal/cache"
	"github.com/mcpshield/mcpshield/internal/digest"
	"github.com/mcpshield/mcpshield/internal/lockfile"
	"github.com/mcpshield/mcpshield/internal/models"
	"github.com/mcpshield/mcpshield/internal/registry"
	"github.com/mcpshield/mcpshield/internal/resolver"
)

type npmPackumentDoc struct {
	Name     string                    `json:"name"`
	DistTags map[string]string         `json:"dist-tags"`
	Versions map[string]npmVersionDoc  `json:"versions"`
}

type npmVersionDoc struct {
	Dist npmVersionDist `json:"dist"`
}

type npmVersionDist struct {
	Tarball   string `json:"tarball"`
	Integrity string `json:"integrity"`
}

func newTestDeps(t *testing.T, registryURL, npmURL string) *Deps {
	t.Helper()
	return &Deps{
		Registry: registry.New(registry.WithBaseURL(registryURL)),
		Cache:    cache.NewAt(t.TempDir()),
		Lockfile: lockfile.New(filepath.Join(t.TempDir(), "mcp.lock.json")),
		ResolverOptions: resolver.Options{
			NPMRegistryBaseURL: npmURL,
			Download: resolver.DownloadConfig{
				AllowPrivateHosts: true,
				MaxSize:           resolver.DefaultMaxArtifactSize,
			},
		},
	}
}

func TestAddHappyPath(t *testing.T) {
	tarballBytes := []byte("console.log('hello')")
	expectedDigest, err := digest.ComputeReader(bytes.NewReader(tarballBytes), digest.AlgoSHA512)
	if err != nil {
		t.Fatalf("compute digest: %v", err)
	}

	var tarballServer *httptest.Server
	npmMux := http.NewServeMux()
	npmMux.HandleFunc("/acme-tool", func(w http.ResponseWriter, r *http.Request) {
		doc := npmPackumentDoc{
			Name:     "acme-tool",
			DistTags: map[string]string{"latest": "1.0.0"},
			Versions: map[string]npmVersionDoc{
				"1.0.0": {Dist: npmVersionDist{Tarball: tarballServer.URL + "/acme-tool.tgz", Integrity: expectedDigest}},
			},
		}
		json.NewEncoder(w).Encode(doc)
	})
	npmServer := httptest.NewServer(npmMux)
	defer npmServer.Close()

	tarballMux := http.NewServeMux()
	tarballMux.HandleFunc("/acme-tool.tgz", func(w http.ResponseWriter, r *http.Request) {
		w.Write(tarballBytes)
	})
	tarballServer = httptest.NewServer(tarballMux)
	defer tarballServer.Close()

	regMux := http.NewServeMux()
	regMux.HandleFunc("/v0/servers/io.github.acme/tool", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"name":          "io.github.acme/tool",
			"version":       "1.0.0",
			"repositoryUrl": "https://github.com/acme/tool",
			"verification":  "official",
			"packages": []map[string]interface{}{
				{"type": "npm", "identifier": "acme-tool", "version": "1.0.0"},
			},
		})
	})
	regServer := httptest.NewServer(regMux)
	defer regServer.Close()

	deps := newTestDeps(t, regServer.URL, npmServer.URL)

	result, err := Add(context.Background(), deps, "io.github.acme/tool", AddOptions{})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if !result.Verified {
		t.Fatal("expected verified result from an official registry claim")
	}
	if len(result.Entry.Artifacts) != 1 {
		t.Fatalf("expected one locked artifact, got %+v", result.Entry.Artifacts)
	}
	if result.Entry.Artifacts[0].Digest != expectedDigest {
		t.Fatalf("unexpected locked digest: %q", result.Entry.Artifacts[0].Digest)
	}

	entry, ok, err := deps.Lockfile.GetServer("io.github.acme/tool")
	if err != nil || !ok {
		t.Fatalf("expected entry to be pinned, ok=%v err=%v", ok, err)
	}
	if entry.Version != "1.0.0" {
		t.Fatalf("unexpected pinned version: %q", entry.Version)
	}
}

func TestAddRejectsInvalidNamespace(t *testing.T) {
	deps := newTestDeps(t, "http://unused.invalid", "http://unused.invalid")
	_, err := Add(context.Background(), deps, "not a namespace", AddOptions{})
	if err == nil {
		t.Fatal("expected an error for an invalid namespace")
	}
}

func TestAddNotFoundMapsToUserError(t *testing.T) {
	regServer := httptest.NewServer(http.NotFoundHandler())
	defer regServer.Close()

	deps := newTestDeps(t, regServer.URL, "http://unused.invalid")
	_, err := Add(context.Background(), deps, "io.github.acme/missing", AddOptions{})
	if err == nil {
		t.Fatal("expected a not-found error")
	}
}

func TestAddBlockedByPolicyNonInteractiveFails(t *testing.T) {
	regMux := http.NewServeMux()
	regMux.HandleFunc("/v0/servers/io.github.acme/tool", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"name":    "io.github.acme/tool",
			"version": "1.0.0",
		})
	})
	regServer := httptest.NewServer(regMux)
	defer regServer.Close()

	deps := newTestDeps(t, regServer.URL, "http://unused.invalid")
	_, err := Add(context.Background(), deps, "io.github.acme/tool", AddOptions{
		Policy: &models.Policy{
			Version: "1.0",
			Global:  &models.GlobalPolicy{DenyUnverified: true},
		},
	})
	if err == nil {
		t.Fatal("expected a policy block for an unverified namespace")
	}
}

func TestAddBlockedByPolicyInteractiveOverride(t *testing.T) {
	regMux := http.NewServeMux()
	regMux.HandleFunc("/v0/servers/io.github.acme/tool", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"name":    "io.github.acme/tool",
			"version": "1.0.0",
		})
	})
	regServer := httptest.NewServer(regMux)
	defer regServer.Close()

	deps := newTestDeps(t, regServer.URL, "http://unused.invalid")
	deps.Confirm = func(msg string) bool { return true }
	deps.Approver = "operator@example.com"

	result, err := Add(context.Background(), deps, "io.github.acme/tool", AddOptions{
		Interactive: true,
		Policy: &models.Policy{
			Version: "1.0",
			Global:  &models.GlobalPolicy{DenyUnverified: true},
		},
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if !result.PolicyOverridden {
		t.Fatal("expected the policy block to be recorded as overridden")
	}
	if result.Entry.ApprovedBy != "operator@example.com" {
		t.Fatalf("unexpected approver: %q", result.Entry.ApprovedBy)
	}
	if result.Entry.ApprovedAt == nil {
		t.Fatal("expected ApprovedAt to be stamped")
	}
}

func TestAddAbortsWhenOverrideDeclined(t *testing.T) {
	regMux := http.NewServeMux()
	regMux.HandleFunc("/v0/servers/io.github.acme/tool", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"name":    "io.github.acme/tool",
			"version": "1.0.0",
		})
	})
	regServer := httptest.NewServer(regMux)
	defer regServer.Close()

	deps := newTestDeps(t, regServer.URL, "http://unused.invalid")
	deps.Confirm = func(msg string) bool { return false }

	_, err := Add(context.Background(), deps, "io.github.acme/tool", AddOptions{
		Interactive: true,
		Policy: &models.Policy{
			Version: "1.0",
			Global:  &models.GlobalPolicy{DenyUnverified: true},
		},
	})
	if err == nil {
		t.Fatal("expected an abort error when the override is declined")
	}
}
