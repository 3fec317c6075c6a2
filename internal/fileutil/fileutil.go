package fileutil

import (
	"errors"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
)

// CompressedSidecars are the extensions of compressed copies kept next to an
// artifact.
var CompressedSidecars = []string{".gz", ".gzip"}

// RemoveIfExists deletes path, treating a missing file as success. It
// reports whether a file was removed.
func RemoveIfExists(path string) (bool, error) {
	err := os.Remove(path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}

// RemoveSidecars deletes path+ext for each ext and returns the files removed.
// Failures are joined; every extension is attempted.
func RemoveSidecars(path string, exts ...string) ([]string, error) {
	var (
		removed []string
		errs    []error
	)
	for _, ext := range exts {
		target := path + ext
		ok, err := RemoveIfExists(target)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			removed = append(removed, target)
		}
	}
	return removed, errors.Join(errs...)
}

// RemoveWithSidecars deletes path together with its ".gz" sidecar.
func RemoveWithSidecars(path string) ([]string, error) {
	var removed []string
	ok, err := RemoveIfExists(path)
	if ok {
		removed = append(removed, path)
	}
	more, sideErr := RemoveSidecars(path, ".gz")
	return append(removed, more...), errors.Join(err, sideErr)
}

// Readable opens path for reading and returns its file info when that works.
func Readable(path string) (fs.FileInfo, bool) {
	f, err := os.Open(path)
	if err != nil {
		return nil, false
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil || info.IsDir() {
		return nil, false
	}
	return info, true
}

// FileURL converts a local path to a file:// URL.
func FileURL(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(path)}
	return u.String()
}
