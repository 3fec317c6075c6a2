package jobqueue

import (
	"errors"
	"io/fs"
	"os"

	"ebookconverter/internal/candidates"
)

// ShouldBuild decides whether an artifact needs building. Types without
// inputs always build, as do missing artifacts. When the candidate is
// strictly older than the artifact only a forced build proceeds; an equal or
// newer candidate means the artifact is stale.
func ShouldBuild(requiresSource bool, artifactPath string, candidate *candidates.Candidate, forced bool) (bool, string, error) {
	if !requiresSource || candidate == nil {
		return true, "no source required", nil
	}
	info, err := os.Stat(artifactPath)
	if errors.Is(err, fs.ErrNotExist) {
		return true, "artifact does not exist", nil
	}
	if err != nil {
		return false, "", err
	}
	if !info.Mode().IsRegular() {
		return true, "artifact is not a regular file", nil
	}
	if candidate.Modified.Before(info.ModTime()) {
		if forced {
			return true, "build requested", nil
		}
		return false, "artifact newer than source", nil
	}
	return true, "artifact out of date", nil
}
