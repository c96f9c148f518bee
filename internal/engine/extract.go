package engine

import (
	"archive/tar"
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ulikunitz/xz"

	"github.com/fabrictools/rulescan/core/errors"
)

// extractArchive unpacks the subset of an engine release archive that the
// installation needs: the executable and the auxiliary data directory.
// Every other entry is discarded. The whole archive is screened for
// parent-traversal entries before anything is written.
//
// Windows assets ship as .zip, the others as .tar.xz.
func extractArchive(archivePath, installDir, execName, dataDirName string) error {
	switch {
	case strings.HasSuffix(archivePath, ".zip"):
		return extractZip(archivePath, installDir, execName, dataDirName)
	case strings.HasSuffix(archivePath, ".tar.xz"):
		return extractTarXZ(archivePath, installDir, execName, dataDirName)
	default:
		return errors.NewArchive(filepath.Base(archivePath), "unsupported archive format")
	}
}

// checkEntryName rejects entry names carrying a parent-traversal segment.
func checkEntryName(name string) error {
	for _, segment := range strings.Split(filepath.ToSlash(name), "/") {
		if segment == ".." {
			return errors.NewArchive(name, "parent traversal segment")
		}
	}
	return nil
}

// wantedEntry maps an archive entry name to its install-relative
// destination, or ok=false for entries that are discarded. Entries may be
// nested under a top-level release folder inside the archive.
func wantedEntry(name, execName, dataDirName string) (string, bool) {
	clean := strings.Trim(filepath.ToSlash(name), "/")
	parts := strings.Split(clean, "/")

	for i, part := range parts {
		if part == execName && i == len(parts)-1 {
			return execName, true
		}
		if part == dataDirName && i < len(parts)-1 {
			// Preserve the data directory's internal structure.
			return filepath.Join(parts[i:]...), true
		}
	}
	return "", false
}

func extractZip(archivePath, installDir, execName, dataDirName string) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return errors.NewArchive(filepath.Base(archivePath), err.Error())
	}
	defer r.Close()

	// Screen every entry before writing any file.
	for _, f := range r.File {
		if err := checkEntryName(f.Name); err != nil {
			return err
		}
	}

	for _, f := range r.File {
		rel, ok := wantedEntry(f.Name, execName, dataDirName)
		if !ok || f.FileInfo().IsDir() {
			continue
		}
		if err := writeEntry(filepath.Join(installDir, rel), f, execName == rel); err != nil {
			return err
		}
	}
	return nil
}

func writeEntry(dest string, f *zip.File, executable bool) error {
	rc, err := f.Open()
	if err != nil {
		return errors.NewArchive(f.Name, err.Error())
	}
	defer rc.Close()

	return writeFile(dest, rc, executable)
}

func extractTarXZ(archivePath, installDir, execName, dataDirName string) error {
	// First pass screens names so nothing is written from an archive
	// carrying a traversal entry.
	if err := scanTarXZ(archivePath); err != nil {
		return err
	}

	in, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer in.Close()

	xzr, err := xz.NewReader(in)
	if err != nil {
		return errors.NewArchive(filepath.Base(archivePath), err.Error())
	}

	tr := tar.NewReader(xzr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return errors.NewArchive(filepath.Base(archivePath), err.Error())
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		rel, ok := wantedEntry(hdr.Name, execName, dataDirName)
		if !ok {
			continue
		}
		if err := writeFile(filepath.Join(installDir, rel), tr, rel == execName); err != nil {
			return err
		}
	}
	return nil
}

func scanTarXZ(archivePath string) error {
	in, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer in.Close()

	xzr, err := xz.NewReader(in)
	if err != nil {
		return errors.NewArchive(filepath.Base(archivePath), err.Error())
	}

	tr := tar.NewReader(xzr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.NewArchive(filepath.Base(archivePath), err.Error())
		}
		if err := checkEntryName(hdr.Name); err != nil {
			return err
		}
	}
}

func writeFile(dest string, r io.Reader, executable bool) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	mode := os.FileMode(0644)
	if executable {
		mode = 0755
	}

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("creating file: %w", err)
	}

	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return fmt.Errorf("writing file: %w", err)
	}
	return out.Close()
}
