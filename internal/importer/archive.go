package importer

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ErrExportNotFound means the archive holds no export.xml in a known location.
var ErrExportNotFound = errors.New("export.xml not found in archive")

// Locations of export.xml inside the zip the Health app produces.
var exportCandidates = []string{
	"export.xml",
	"apple_health_export/export.xml",
}

// ExtractExport copies export.xml out of the zip at zipPath into dir and
// returns the extracted path.
func ExtractExport(zipPath, dir string) (string, error) {
	zr, err := zip.OpenReader(zipPath)
	if err != nil {
		return "", fmt.Errorf("open archive: %w", err)
	}
	defer zr.Close()

	files := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		files[f.Name] = f
	}

	for _, name := range exportCandidates {
		f, ok := files[name]
		if !ok {
			continue
		}
		dst := filepath.Join(dir, filepath.FromSlash(name))
		if err := extractFile(f, dst); err != nil {
			return "", err
		}
		return dst, nil
	}
	return "", ErrExportNotFound
}

func extractFile(f *zip.File, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create extract dir: %w", err)
	}

	src, err := f.Open()
	if err != nil {
		return fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer src.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return fmt.Errorf("extract %s: %w", f.Name, err)
	}
	return out.Close()
}
