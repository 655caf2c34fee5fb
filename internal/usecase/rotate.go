package usecase

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
)

// Rotator keeps a bounded, ordered history of artifacts per backup target
// directory. Artifacts carry an age rank in their name: the newest is
// ".v0", older artifacts count up, and everything beyond maxVersions is
// evicted oldest first.
type Rotator struct {
	logger Logger
}

func NewRotator(logger Logger) *Rotator {
	return &Rotator{logger: logger}
}

var rankSuffix = regexp.MustCompile(`\.v\d+$`)

// tempSuffix marks the intermediate step of the two-phase rename, so no
// two artifacts ever share a final name mid-sequence.
const tempSuffix = ".rotating~"

type artifact struct {
	current string // file name on disk
	stem    string // name without rank and extension
	ext     string
	modTime time.Time
}

// Rotate renumbers the artifacts in dir by age and deletes the oldest
// artifacts beyond maxVersions. Running it twice without a new artifact is
// a no-op. Returns the final file names, newest first.
func (r *Rotator) Rotate(dir string, maxVersions int) ([]string, error) {
	artifacts, err := listArtifacts(dir)
	if err != nil {
		return nil, err
	}
	if len(artifacts) == 0 {
		return nil, nil
	}

	// Oldest first; the embedded timestamp makes the name a stable
	// tiebreaker for equal mod times.
	sort.Slice(artifacts, func(i, j int) bool {
		if artifacts[i].modTime.Equal(artifacts[j].modTime) {
			return artifacts[i].stem < artifacts[j].stem
		}
		return artifacts[i].modTime.Before(artifacts[j].modTime)
	})

	if excess := len(artifacts) - maxVersions; maxVersions > 0 && excess > 0 {
		for _, old := range artifacts[:excess] {
			r.logger.Infof("Evicting old artifact %s", old.current)
			if err := os.Remove(filepath.Join(dir, old.current)); err != nil {
				return nil, fmt.Errorf("failed to evict %s: %w", old.current, err)
			}
		}
		artifacts = artifacts[excess:]
	}

	// Two-phase rename: move everything that needs a new name aside
	// first, then to its final name.
	type pending struct{ from, to string }
	var renames []pending

	finals := make([]string, 0, len(artifacts))
	for i, a := range artifacts {
		rank := len(artifacts) - 1 - i
		final := fmt.Sprintf("%s.v%d%s", a.stem, rank, a.ext)
		finals = append(finals, final)
		if a.current != final {
			renames = append(renames, pending{from: a.current, to: final})
		}
	}

	for _, rn := range renames {
		if err := os.Rename(filepath.Join(dir, rn.from), filepath.Join(dir, rn.to+tempSuffix)); err != nil {
			return nil, fmt.Errorf("failed to rename %s: %w", rn.from, err)
		}
	}
	for _, rn := range renames {
		if err := os.Rename(filepath.Join(dir, rn.to+tempSuffix), filepath.Join(dir, rn.to)); err != nil {
			return nil, fmt.Errorf("failed to rename %s: %w", rn.to, err)
		}
	}

	// Newest first in the result.
	for i, j := 0, len(finals)-1; i < j; i, j = i+1, j-1 {
		finals[i], finals[j] = finals[j], finals[i]
	}
	return finals, nil
}

func listArtifacts(dir string) ([]artifact, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact directory: %w", err)
	}

	var artifacts []artifact
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		// A crash between the two rename phases leaves temp names
		// behind; treat them as the artifacts they were about to become.
		name = strings.TrimSuffix(name, tempSuffix)

		stem, ext, ok := splitArtifactName(name)
		if !ok {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", entry.Name(), err)
		}

		artifacts = append(artifacts, artifact{
			current: entry.Name(),
			stem:    stem,
			ext:     ext,
			modTime: info.ModTime(),
		})
	}
	return artifacts, nil
}

func splitArtifactName(name string) (stem, ext string, ok bool) {
	switch {
	case strings.HasSuffix(name, ".tar.gz"):
		stem, ext = strings.TrimSuffix(name, ".tar.gz"), ".tar.gz"
	case strings.HasSuffix(name, ".sql"):
		stem, ext = strings.TrimSuffix(name, ".sql"), ".sql"
	default:
		return "", "", false
	}
	stem = rankSuffix.ReplaceAllString(stem, "")
	return stem, ext, true
}
