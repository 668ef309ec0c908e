package lockfile

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mcpshield/mcpshield/internal/mcperr"
)

// writeAtomic implements the durable write protocol of spec.md §4.9: write
// to a sibling temp file, fsync it, rename onto the target, best-effort
// fsync the parent directory, and unlink the temp file on any failure so a
// partial final file is never left behind.
//
// Grounded on the teacher's tmp-file-then-rename pattern already used by
// internal/cache.Put, generalized with the fsync calls the lockfile's
// durability requirement adds.
func writeAtomic(targetPath string, data []byte, perm os.FileMode) (err error) {
	dir := filepath.Dir(targetPath)
	tmpPath := filepath.Join(dir, fmt.Sprintf(".%s.tmp.%d", filepath.Base(targetPath), os.Getpid()))

	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return mcperr.Unexpected(err, "create temp lockfile")
	}
	defer func() {
		if err != nil {
			os.Remove(tmpPath)
		}
	}()

	if _, err = f.Write(data); err != nil {
		f.Close()
		return mcperr.Unexpected(err, "write temp lockfile")
	}
	if err = f.Sync(); err != nil {
		f.Close()
		return mcperr.Unexpected(err, "fsync temp lockfile")
	}
	if err = f.Close(); err != nil {
		return mcperr.Unexpected(err, "close temp lockfile")
	}

	if err = os.Rename(tmpPath, targetPath); err != nil {
		return mcperr.Unexpected(err, "rename temp lockfile onto target")
	}

	if dirFile, dirErr := os.Open(dir); dirErr == nil {
		_ = dirFile.Sync()
		dirFile.Close()
	}

	return nil
}
