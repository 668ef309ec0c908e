package lockfile

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/mcpshield/mcpshield/internal/models"
)

func TestReadMissingReturnsEmptyLockfile(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "mcp.lock.json"))
	if s.Exists() {
		t.Fatal("expected Exists() == false")
	}
	lock, err := s.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if lock.Version != models.LockfileCurrentVersion {
		t.Fatalf("expected default version, got %q", lock.Version)
	}
	if lock.Servers == nil || len(lock.Servers) != 0 {
		t.Fatalf("expected empty servers map, got %+v", lock.Servers)
	}
}

func TestAddServerThenGetServer(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "mcp.lock.json"))

	entry := models.LockfileEntry{
		Namespace: "io.github.acme/tool",
		Version:   "1.0.0",
		Verified:  true,
		FetchedAt: time.Now(),
		Artifacts: []models.LockedArtifact{
			{Kind: models.PackageKindNPM, URL: "https://registry.npmjs.org/tool/-/tool-1.0.0.tgz", Digest: "sha256-abc"},
		},
	}
	if err := s.AddServer(entry); err != nil {
		t.Fatalf("AddServer: %v", err)
	}
	if !s.Exists() {
		t.Fatal("expected lockfile to exist after AddServer")
	}

	got, ok, err := s.GetServer("io.github.acme/tool")
	if err != nil || !ok {
		t.Fatalf("GetServer: ok=%v err=%v", ok, err)
	}
	if got.Version != "1.0.0" {
		t.Fatalf("expected version 1.0.0, got %q", got.Version)
	}
}

func TestRemoveServer(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "mcp.lock.json"))
	entry := models.LockfileEntry{Namespace: "io.github.acme/tool", Version: "1.0.0", FetchedAt: time.Now()}
	if err := s.AddServer(entry); err != nil {
		t.Fatalf("AddServer: %v", err)
	}
	if err := s.RemoveServer("io.github.acme/tool"); err != nil {
		t.Fatalf("RemoveServer: %v", err)
	}
	_, ok, err := s.GetServer("io.github.acme/tool")
	if err != nil {
		t.Fatalf("GetServer: %v", err)
	}
	if ok {
		t.Fatal("expected server to be removed")
	}
}

func TestRemoveAbsentServerIsNotAnError(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "mcp.lock.json"))
	if err := s.RemoveServer("io.github.nobody/tool"); err != nil {
		t.Fatalf("expected no error removing absent server, got %v", err)
	}
}

func TestWriteCanonicalizesArtifactOrder(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "mcp.lock.json"))
	entry := models.LockfileEntry{
		Namespace: "io.github.acme/tool",
		Version:   "1.0.0",
		FetchedAt: time.Now(),
		Artifacts: []models.LockedArtifact{
			{Kind: models.PackageKindPyPI, URL: "https://pypi.org/z"},
			{Kind: models.PackageKindNPM, URL: "https://registry.npmjs.org/a"},
			{Kind: models.PackageKindNPM, URL: "https://registry.npmjs.org/b"},
		},
	}
	if err := s.AddServer(entry); err != nil {
		t.Fatalf("AddServer: %v", err)
	}
	lock, err := s.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	got := lock.Servers["io.github.acme/tool"].Artifacts
	if len(got) != 3 || got[0].Kind != models.PackageKindNPM || got[0].URL != "https://registry.npmjs.org/a" {
		t.Fatalf("expected artifacts sorted by (kind, url), got %+v", got)
	}
}

func TestWriteSetsVersionAndGeneratedAt(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "mcp.lock.json"))
	lock := models.Lockfile{Servers: map[string]models.LockfileEntry{}}
	if err := s.Write(lock); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := s.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.Version != models.LockfileCurrentVersion {
		t.Fatalf("expected version defaulted, got %q", got.Version)
	}
	if got.GeneratedAt.IsZero() {
		t.Fatal("expected generatedAt to be stamped")
	}
}
