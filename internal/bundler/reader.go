package bundler

import (
	"archive/zip"
	"fmt"
	"io"
)

// ExtractLockfileAndSignature opens a zip built by CreateBundle and
// returns the raw bytes of its lockfile and signature entries.
func ExtractLockfileAndSignature(bundlePath string) (lockBytes, sigBytes []byte, err error) {
	r, err := zip.OpenReader(bundlePath)
	if err != nil {
		return nil, nil, fmt.Errorf("open bundle: %w", err)
	}
	defer r.Close()

	for _, f := range r.File {
		switch f.Name {
		case lockfileEntryName:
			lockBytes, err = readZipEntry(f)
		case signatureEntryName:
			sigBytes, err = readZipEntry(f)
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read %s from bundle: %w", f.Name, err)
		}
	}

	if lockBytes == nil {
		return nil, nil, fmt.Errorf("bundle is missing %s", lockfileEntryName)
	}
	if sigBytes == nil {
		return nil, nil, fmt.Errorf("bundle is missing %s", signatureEntryName)
	}
	return lockBytes, sigBytes, nil
}

func readZipEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
