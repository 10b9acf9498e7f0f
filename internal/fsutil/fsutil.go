// Package fsutil provides the filesystem operations used by the corpus
// pipelines: enumeration of group folders and images, atomic writes, and
// copy or move of records with rollback.
//
// Every function takes an afero.Fs so the engines run unchanged against the
// OS filesystem in production and an in-memory filesystem in tests.
package fsutil

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/afero"

	"github.com/tphakala/corpusprep/internal/errors"
)

// HiddenPrefix marks resource-fork files left behind by macOS copies.
// Files starting with it are never treated as corpus records.
const HiddenPrefix = "._"

const (
	// DirPermissions is used for every directory the pipelines create
	DirPermissions = 0o755
	// FilePermissions is used for label and manifest files
	FilePermissions = 0o644
)

// ImageExtensions lists the accepted image extensions, compared case-insensitively
var ImageExtensions = []string{".jpg", ".jpeg", ".png"}

// IsImage reports whether name is a non-hidden file with an accepted image extension
func IsImage(name string) bool {
	if strings.HasPrefix(name, HiddenPrefix) {
		return false
	}
	return slices.Contains(ImageExtensions, strings.ToLower(filepath.Ext(name)))
}

// ListDirs returns the names of the sub-directories of root, sorted.
// Dot-directories are skipped.
func ListDirs(fsys afero.Fs, root string) ([]string, error) {
	entries, err := afero.ReadDir(fsys, root)
	if err != nil {
		return nil, errors.New(err).
			Component("fsutil").
			Category(errors.CategoryFileIO).
			Context("operation", "list_dirs").
			Context("path", root).
			Build()
	}

	var dirs []string
	for _, entry := range entries {
		if entry.IsDir() && !strings.HasPrefix(entry.Name(), ".") {
			dirs = append(dirs, entry.Name())
		}
	}
	slices.Sort(dirs)
	return dirs, nil
}

// ListFiles returns the names of regular files in dir accepted by keep, sorted.
// A nil keep accepts every file.
func ListFiles(fsys afero.Fs, dir string, keep func(name string) bool) ([]string, error) {
	entries, err := afero.ReadDir(fsys, dir)
	if err != nil {
		return nil, errors.New(err).
			Component("fsutil").
			Category(errors.CategoryFileIO).
			Context("operation", "list_files").
			Context("path", dir).
			Build()
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if keep != nil && !keep(entry.Name()) {
			continue
		}
		files = append(files, entry.Name())
	}
	slices.Sort(files)
	return files, nil
}

// ListImages returns the image file names directly inside dir, sorted
func ListImages(fsys afero.Fs, dir string) ([]string, error) {
	return ListFiles(fsys, dir, IsImage)
}

// EnsureDir creates dir and its parents. An existing directory is success.
func EnsureDir(fsys afero.Fs, dir string) error {
	if err := fsys.MkdirAll(dir, DirPermissions); err != nil {
		return errors.New(err).
			Component("fsutil").
			Category(errors.CategoryFileIO).
			Context("operation", "mkdir").
			Context("path", dir).
			Build()
	}
	return nil
}

// DirExists reports whether path exists and is a directory
func DirExists(fsys afero.Fs, path string) bool {
	ok, err := afero.DirExists(fsys, path)
	return err == nil && ok
}

// RemoveDirIfEmpty removes dir when it has no entries left. It reports
// whether the directory was removed. A directory that no longer exists is
// not an error, so the call is safe to repeat.
func RemoveDirIfEmpty(fsys afero.Fs, dir string) (bool, error) {
	if !Exists(fsys, dir) {
		return false, nil
	}
	empty, err := afero.IsEmpty(fsys, dir)
	if err != nil {
		return false, errors.FileError(err, dir)
	}
	if !empty {
		return false, nil
	}
	if err := fsys.Remove(dir); err != nil {
		if errors.Is(err, fs.ErrNotExist) || os.IsNotExist(err) {
			return false, nil
		}
		return false, errors.FileError(err, dir)
	}
	return true, nil
}

// AtomicWriteFile writes data to a temporary file next to path and renames
// it over path, so readers see either the old or the new content.
func AtomicWriteFile(fsys afero.Fs, path string, data []byte, perm os.FileMode) error {
	return atomicWrite(fsys, path, perm, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

// atomicWrite streams content produced by write into a temporary file and
// renames it into place
func atomicWrite(fsys afero.Fs, targetPath string, perm os.FileMode, write func(io.Writer) error) error {
	dir := filepath.Dir(targetPath)
	tempFile, err := afero.TempFile(fsys, dir, "."+filepath.Base(targetPath)+".tmp-*")
	if err != nil {
		return errors.New(err).
			Component("fsutil").
			Category(errors.CategoryFileIO).
			Context("operation", "create_temp").
			FileContext(targetPath).
			Build()
	}
	tempPath := tempFile.Name()

	success := false
	defer func() {
		if !success {
			_ = tempFile.Close()
			_ = fsys.Remove(tempPath)
		}
	}()

	if err := write(tempFile); err != nil {
		return errors.FileError(err, targetPath)
	}
	if err := tempFile.Sync(); err != nil {
		return errors.FileError(err, targetPath)
	}
	if err := tempFile.Close(); err != nil {
		return errors.FileError(err, targetPath)
	}
	if err := fsys.Chmod(tempPath, perm); err != nil {
		return errors.FileError(err, targetPath)
	}
	if err := fsys.Rename(tempPath, targetPath); err != nil {
		return errors.New(err).
			Component("fsutil").
			Category(errors.CategoryFileIO).
			Context("operation", "rename").
			FileContext(targetPath).
			Build()
	}

	success = true
	return nil
}

// CopyFile copies src to dst atomically, keeping the source mode and
// modification time.
func CopyFile(fsys afero.Fs, src, dst string) error {
	info, err := fsys.Stat(src)
	if err != nil {
		return errors.FileError(err, src)
	}

	in, err := fsys.Open(src)
	if err != nil {
		return errors.FileError(err, src)
	}
	defer in.Close()

	if err := atomicWrite(fsys, dst, info.Mode().Perm(), func(w io.Writer) error {
		_, err := io.Copy(w, in)
		return err
	}); err != nil {
		return err
	}

	mtime := info.ModTime()
	if err := fsys.Chtimes(dst, mtime, mtime); err != nil {
		return errors.FileError(err, dst)
	}
	return nil
}

// Exists reports whether path exists
func Exists(fsys afero.Fs, path string) bool {
	ok, err := afero.Exists(fsys, path)
	return err == nil && ok
}
