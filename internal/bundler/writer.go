package bundler

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// BundleOptions names the files CreateBundle zips together.
type BundleOptions struct {
	LockfilePath  string
	SignaturePath string
	PublicKeyPath string
	PolicyPath    string
	OutputPath    string
}

// zipEpoch is written as every entry's modified time so two bundles built
// from identical inputs produce byte-identical zip files.
var zipEpoch = time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)

// CreateBundle writes opts' files plus manifest and readmeContent to a zip
// at opts.OutputPath, in a fixed entry order so the output is deterministic.
func CreateBundle(opts BundleOptions, readmeContent string, manifest *Manifest) error {
	outputFile, err := os.Create(opts.OutputPath)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer outputFile.Close()

	zipWriter := zip.NewWriter(outputFile)
	defer zipWriter.Close()

	if manifest != nil {
		manifestJSON, err := manifest.ToJSON()
		if err != nil {
			return fmt.Errorf("serialize manifest: %w", err)
		}
		if err := addStringToZip(zipWriter, string(manifestJSON), manifestEntryName); err != nil {
			return fmt.Errorf("add manifest: %w", err)
		}
	}

	if err := addFileToZip(zipWriter, opts.LockfilePath, lockfileEntryName); err != nil {
		return fmt.Errorf("add lockfile: %w", err)
	}
	if err := addFileToZip(zipWriter, opts.SignaturePath, signatureEntryName); err != nil {
		return fmt.Errorf("add signature: %w", err)
	}

	if opts.PolicyPath != "" {
		if _, err := os.Stat(opts.PolicyPath); err == nil {
			if err := addFileToZip(zipWriter, opts.PolicyPath, policyEntryName); err != nil {
				return fmt.Errorf("add policy: %w", err)
			}
		}
	}

	if opts.PublicKeyPath != "" {
		if _, err := os.Stat(opts.PublicKeyPath); err == nil {
			if err := addFileToZip(zipWriter, opts.PublicKeyPath, publicKeyEntryName); err != nil {
				return fmt.Errorf("add public key: %w", err)
			}
		}
	}

	if err := addStringToZip(zipWriter, readmeContent, readmeEntryName); err != nil {
		return fmt.Errorf("add README: %w", err)
	}

	return nil
}

func addFileToZip(zw *zip.Writer, srcPath, destName string) error {
	file, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return err
	}

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	header.Name = filepath.Base(destName)
	header.Method = zip.Deflate
	header.Modified = zipEpoch

	writer, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}

	_, err = io.Copy(writer, file)
	return err
}

func addStringToZip(zw *zip.Writer, content, filename string) error {
	header := &zip.FileHeader{
		Name:     filename,
		Method:   zip.Deflate,
		Modified: zipEpoch,
	}

	writer, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}

	_, err = writer.Write([]byte(content))
	return err
}
