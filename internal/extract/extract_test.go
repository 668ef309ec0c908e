package extract

import (
	"archive/tar"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
)

func buildTarGz(t *testing.T, entries []tar.Header, bodies map[string]string) string {
	t.Helper()

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	for i := range entries {
		h := entries[i]
		body := bodies[h.Name]
		h.Size = int64(len(body))
		if err := tw.WriteHeader(&h); err != nil {
			t.Fatalf("write header: %v", err)
		}
		if len(body) > 0 {
			if _, err := tw.Write([]byte(body)); err != nil {
				t.Fatalf("write body: %v", err)
			}
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("close tar: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("close gzip: %v", err)
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "archive.tgz")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write archive: %v", err)
	}
	return path
}

func TestTarGzExtractsRegularFiles(t *testing.T) {
	archive := buildTarGz(t, []tar.Header{
		{Name: "package/", Typeflag: tar.TypeDir, Mode: 0o755},
		{Name: "package/index.js", Typeflag: tar.TypeReg, Mode: 0o644},
	}, map[string]string{"package/index.js": "module.exports = {}"})

	dest := t.TempDir()
	result, err := TarGz(archive, dest)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if result.FilesWritten != 1 {
		t.Fatalf("expected 1 file written, got %d", result.FilesWritten)
	}

	contents, err := os.ReadFile(filepath.Join(dest, "package", "index.js"))
	if err != nil {
		t.Fatalf("read extracted file: %v", err)
	}
	if string(contents) != "module.exports = {}" {
		t.Fatalf("unexpected contents: %q", contents)
	}
}

func TestTarGzRejectsAbsolutePath(t *testing.T) {
	archive := buildTarGz(t, []tar.Header{
		{Name: "/etc/passwd", Typeflag: tar.TypeReg, Mode: 0o644},
	}, map[string]string{"/etc/passwd": "pwned"})

	if _, err := TarGz(archive, t.TempDir()); err == nil {
		t.Fatalf("expected absolute-path entry to be rejected")
	}
}

func TestTarGzRejectsParentTraversal(t *testing.T) {
	archive := buildTarGz(t, []tar.Header{
		{Name: "../../etc/passwd", Typeflag: tar.TypeReg, Mode: 0o644},
	}, map[string]string{"../../etc/passwd": "pwned"})

	if _, err := TarGz(archive, t.TempDir()); err == nil {
		t.Fatalf("expected traversal entry to be rejected")
	}
}

func TestTarGzRejectsSymlinkEscape(t *testing.T) {
	archive := buildTarGz(t, []tar.Header{
		{Name: "package/evil-link", Typeflag: tar.TypeSymlink, Linkname: "../../../etc/passwd", Mode: 0o777},
	}, nil)

	if _, err := TarGz(archive, t.TempDir()); err == nil {
		t.Fatalf("expected symlink entry to be rejected")
	}
}

func TestTarGzRejectsBackslashTraversal(t *testing.T) {
	archive := buildTarGz(t, []tar.Header{
		{Name: `package\..\..\etc\passwd`, Typeflag: tar.TypeReg, Mode: 0o644},
	}, map[string]string{`package\..\..\etc\passwd`: "pwned"})

	if _, err := TarGz(archive, t.TempDir()); err == nil {
		t.Fatalf("expected backslash traversal entry to be rejected on non-windows hosts")
	}
}

func TestTarGzWarnsOnUnknownEntryType(t *testing.T) {
	archive := buildTarGz(t, []tar.Header{
		{Name: "package/fifo", Typeflag: tar.TypeFifo, Mode: 0o644},
	}, nil)

	result, err := TarGz(archive, t.TempDir())
	if err != nil {
		t.Fatalf("expected fifo entries to be skipped with a warning, got error: %v", err)
	}
	if len(result.Findings) != 1 {
		t.Fatalf("expected 1 finding for unknown entry type, got %d", len(result.Findings))
	}
}
