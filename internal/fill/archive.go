package fill

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ErrArchive indicates the bundling step failed. The generated documents
// are left in place; only the single-artifact delivery is affected.
var ErrArchive = errors.New("failed to bundle outputs")

// ArchiveName builds the deterministic archive file name for a session.
func ArchiveName(sessionID, templateName string) string {
	if templateName != "" {
		return fmt.Sprintf("filled_%s_%s.zip", templateName, sessionID)
	}
	return fmt.Sprintf("filled_%s.zip", sessionID)
}

// bundle zips the named outputs from sessionDir into outputDir and returns
// the archive path. Intermediates stay in place; the caller removes the
// work area once the archive exists.
func (e *Engine) bundle(sessionDir string, outputs []string, sessionID, templateName, outputDir string) (string, error) {
	if outputDir == "" {
		outputDir = e.workDir
	}
	if err := os.MkdirAll(outputDir, 0o750); err != nil {
		return "", fmt.Errorf("%w: %v", ErrArchive, err)
	}

	archivePath := filepath.Join(outputDir, ArchiveName(sessionID, templateName))
	f, err := os.Create(archivePath)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrArchive, err)
	}

	zw := zip.NewWriter(f)
	for _, name := range outputs {
		if err := addFile(zw, filepath.Join(sessionDir, name), name); err != nil {
			zw.Close()
			f.Close()
			os.Remove(archivePath)
			return "", fmt.Errorf("%w: %v", ErrArchive, err)
		}
	}
	if err := zw.Close(); err != nil {
		f.Close()
		os.Remove(archivePath)
		return "", fmt.Errorf("%w: %v", ErrArchive, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(archivePath)
		return "", fmt.Errorf("%w: %v", ErrArchive, err)
	}
	return archivePath, nil
}

func addFile(zw *zip.Writer, path, name string) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := zw.Create(name)
	if err != nil {
		return err
	}
	_, err = io.Copy(dst, src)
	return err
}
