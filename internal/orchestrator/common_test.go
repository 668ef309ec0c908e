package orchestrator

import (
	"os"
	"path/filepath"
	"testing"
)

// writeBytesFile writes data to a fresh temp file and returns its path, for
// tests that need a local file to digest or cache without going through a
// full tarball.
func writeBytesFile(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "artifact.bin")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	return path
}
