// Package archive turns directory trees and database dumps into
// deterministically named artifact files.
package archive

import (
	"archive/tar"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/gzip"

	"backupbot/internal/domain"
)

// TimeFormat is the sortable timestamp every artifact name starts with.
const TimeFormat = "20060102T150405"

const (
	ExtTarGz = ".tar.gz"
	ExtSQL   = ".sql"
)

type Writer struct {
	now func() time.Time
}

func NewWriter() *Writer {
	return &Writer{now: time.Now}
}

// NewWriterWithClock exists for tests that need a fixed timestamp.
func NewWriterWithClock(now func() time.Time) *Writer {
	return &Writer{now: now}
}

// ReservePath creates destDir if needed and claims a collision-free
// artifact path named <timestamp>-<target><ext>. The file is created empty
// so that a second reservation within the same clock tick picks a
// disambiguated name instead of overwriting.
func (w *Writer) ReservePath(destDir, target, ext string) (string, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create artifact directory: %w", err)
	}

	stamp := w.now().Format(TimeFormat)
	base := fmt.Sprintf("%s-%s", stamp, target)

	for attempt := 0; ; attempt++ {
		name := base
		if attempt > 0 {
			name = fmt.Sprintf("%s-%d", base, attempt)
		}
		path := filepath.Join(destDir, name+ext)

		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err != nil {
			if os.IsExist(err) {
				continue
			}
			return "", fmt.Errorf("failed to create artifact file: %w", err)
		}
		f.Close()
		return path, nil
	}
}

// ArchiveDir writes the full recursive contents of srcDir, permissions and
// structure preserved, into one tar.gz artifact under destDir.
func (w *Writer) ArchiveDir(srcDir, destDir, target string) (string, error) {
	info, err := os.Stat(srcDir)
	if err != nil || !info.IsDir() {
		return "", fmt.Errorf("%w: %s", domain.ErrPathNotFound, srcDir)
	}

	path, err := w.ReservePath(destDir, target, ExtTarGz)
	if err != nil {
		return "", err
	}

	if err := tarDirectory(srcDir, path); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}

// PlaceFile moves srcFile into destDir under the deterministic artifact
// name.
func (w *Writer) PlaceFile(srcFile, destDir, target, ext string) (string, error) {
	path, err := w.ReservePath(destDir, target, ext)
	if err != nil {
		return "", err
	}

	if err := os.Rename(srcFile, path); err != nil {
		// Rename fails across filesystems, fall back to a copy.
		if err := copyFile(srcFile, path); err != nil {
			os.Remove(path)
			return "", fmt.Errorf("failed to place artifact: %w", err)
		}
		os.Remove(srcFile)
	}
	return path, nil
}

func tarDirectory(srcDir, destPath string) error {
	out, err := os.OpenFile(destPath, os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open artifact file: %w", err)
	}

	writeErr := writeTarGz(srcDir, out)
	closeErr := out.Close()

	if writeErr != nil {
		return writeErr
	}
	if closeErr != nil {
		return fmt.Errorf("failed to finalize %s: %w", destPath, closeErr)
	}
	return nil
}

// writeTarGz streams srcDir as a gzipped tar into w. Buffered data only
// hits w when the writers close, so close errors are write errors and
// propagate.
func writeTarGz(srcDir string, w io.Writer) error {
	gzipWriter, err := gzip.NewWriterLevel(w, gzip.BestCompression)
	if err != nil {
		return fmt.Errorf("failed to create gzip writer: %w", err)
	}
	tarWriter := tar.NewWriter(gzipWriter)

	err = filepath.WalkDir(srcDir, func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if path == srcDir {
			return nil
		}

		info, err := entry.Info()
		if err != nil {
			return err
		}

		link := ""
		if info.Mode()&fs.ModeSymlink != 0 {
			if link, err = os.Readlink(path); err != nil {
				return err
			}
		}

		header, err := tar.FileInfoHeader(info, link)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(rel)

		if err := tarWriter.WriteHeader(header); err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()

		_, err = io.Copy(tarWriter, f)
		return err
	})

	if closeErr := tarWriter.Close(); err == nil {
		err = closeErr
	}
	if closeErr := gzipWriter.Close(); err == nil {
		err = closeErr
	}

	if err != nil {
		return fmt.Errorf("failed to archive %s: %w", srcDir, err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}
