// Package extract safely unpacks downloaded npm/pypi tarballs, rejecting
// archive entries that would escape the destination directory via path
// traversal, absolute paths, or symlink/hardlink tricks, per spec.md §4.3.
package extract

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/mcpshield/mcpshield/internal/mcperr"
	"github.com/mcpshield/mcpshield/internal/models"
)

// MaxEntries caps the number of entries a single archive may contain, as a
// crude defense against archive bombs that don't trip the byte-size cap.
const MaxEntries = 100_000

// MaxEntrySize caps the decompressed size of a single regular-file entry.
const MaxEntrySize = 200 * 1024 * 1024

// Result reports what an extraction did, including any entries it skipped.
type Result struct {
	FilesWritten int
	Findings     []models.Finding
}

// TarGz unpacks a gzip-compressed tar archive at srcPath into destDir,
// creating destDir if necessary. destDir must already be an absolute,
// resolved path; every archive entry is validated to stay within it.
func TarGz(srcPath, destDir string) (*Result, error) {
	f, err := os.Open(srcPath)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, mcperr.Integrity("archive is not valid gzip: %v", err)
	}
	defer gz.Close()

	return extractTar(gz, destDir)
}

func extractTar(r io.Reader, destDir string) (*Result, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, fmt.Errorf("create destination: %w", err)
	}

	cleanDest, err := filepath.Abs(filepath.Clean(destDir))
	if err != nil {
		return nil, fmt.Errorf("resolve destination: %w", err)
	}

	tr := tar.NewReader(r)
	result := &Result{}

	for i := 0; ; i++ {
		if i > MaxEntries {
			return result, mcperr.SizeLimit("archive contains more than %d entries", MaxEntries)
		}

		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return result, fmt.Errorf("read archive entry: %w", err)
		}

		target, err := securePath(cleanDest, header.Name)
		if err != nil {
			return result, mcperr.PathTraversal("%v", err)
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return result, fmt.Errorf("create directory %s: %w", header.Name, err)
			}

		case tar.TypeReg, tar.TypeRegA:
			if header.Size > MaxEntrySize {
				return result, mcperr.SizeLimit("archive entry %s exceeds %d bytes", header.Name, MaxEntrySize)
			}
			if err := writeRegular(target, tr, header.Size); err != nil {
				return result, fmt.Errorf("write entry %s: %w", header.Name, err)
			}
			result.FilesWritten++

		case tar.TypeSymlink, tar.TypeLink:
			return result, mcperr.PathTraversal("archive entry %q is a %s, which is not permitted", header.Name, linkKind(header.Typeflag))

		default:
			result.Findings = append(result.Findings, models.Finding{
				RuleID:   "archive-unknown-entry-type",
				Severity: models.SeverityLow,
				Category: "archive",
				Message:  fmt.Sprintf("skipped unsupported archive entry %q (type %d)", header.Name, header.Typeflag),
			})
		}
	}

	return result, nil
}

func linkKind(t byte) string {
	if t == tar.TypeSymlink {
		return "symlink"
	}
	return "hardlink"
}

func writeRegular(target string, r io.Reader, size int64) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer out.Close()

	limited := io.LimitReader(r, size+1)
	n, err := io.Copy(out, limited)
	if err != nil {
		return err
	}
	if n > size {
		return fmt.Errorf("entry declared size %d but contained more data", size)
	}
	return nil
}

// securePath resolves an archive entry name against destDir, rejecting any
// form of traversal: absolute paths, "..", and (on non-Windows hosts)
// backslash-separated traversal sequences that some archivers smuggle past
// naive slash-only checks.
func securePath(destDir, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("archive entry has empty name")
	}

	if runtime.GOOS != "windows" && strings.Contains(name, "\\") {
		return "", fmt.Errorf("archive entry %q contains backslash path separators", name)
	}

	if filepath.IsAbs(name) {
		return "", fmt.Errorf("archive entry %q is an absolute path", name)
	}

	cleanName := filepath.Clean(name)
	if cleanName == ".." || strings.HasPrefix(cleanName, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("archive entry %q escapes destination", name)
	}

	target := filepath.Join(destDir, cleanName)
	rel, err := filepath.Rel(destDir, target)
	if err != nil {
		return "", fmt.Errorf("resolve archive entry %q: %w", name, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return "", fmt.Errorf("archive entry %q escapes destination", name)
	}

	return target, nil
}
