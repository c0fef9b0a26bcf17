package download

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"mator/internal/domain"
	"mator/internal/engine"
)

// invalidFilenameChars matches characters that are invalid in most
// filesystems.
var invalidFilenameChars = regexp.MustCompile(`[<>:"/\\|?*]`)

// sanitizeFilename reduces a declared torrent path to a usable local
// filename: basename only, invalid characters replaced, with a
// timestamp-derived fallback when nothing usable remains.
func sanitizeFilename(name string, now time.Time) string {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	if base == "" || base == "." || base == ".." || base == "/" {
		return fmt.Sprintf("download-%d", now.Unix())
	}
	return invalidFilenameChars.ReplaceAllString(base, "_")
}

// candidatePaths returns the ordered locations where the downloaded
// artifact may exist under the save directory: the declared first-file
// path, a sanitized-basename variant, and the torrent display name.
// Engines sometimes materialize files under names that diverge from the
// declared metadata path, so the order is a preference, not a guarantee.
func candidatePaths(meta engine.Metadata, saveDir string, now time.Time) []string {
	var candidates []string
	if len(meta.Files) > 0 {
		first := meta.Files[0].Path
		if first != "" {
			candidates = append(candidates, filepath.Join(saveDir, filepath.FromSlash(first)))
		}
		candidates = append(candidates, filepath.Join(saveDir, sanitizeFilename(first, now)))
	}
	if meta.Name != "" {
		candidates = append(candidates, filepath.Join(saveDir, meta.Name))
	}
	return candidates
}

// fileAt reports the size of the regular, non-empty file at path.
func fileAt(path string) (int64, bool) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() || info.Size() == 0 {
		return 0, false
	}
	return info.Size(), true
}

// resolveArtifact locates the downloaded file after a transfer completes:
// first the candidate paths in preference order, then a scan of the save
// directory for any regular non-empty file. The failure message carries
// the directory listing to aid diagnosis of engine naming mismatches.
func resolveArtifact(meta engine.Metadata, saveDir string, now time.Time) (string, int64, *domain.Failure) {
	for _, candidate := range candidatePaths(meta, saveDir, now) {
		if size, ok := fileAt(candidate); ok {
			return candidate, size, nil
		}
	}

	entries, err := os.ReadDir(saveDir)
	if err == nil {
		for _, entry := range entries {
			if !entry.Type().IsRegular() {
				continue
			}
			full := filepath.Join(saveDir, entry.Name())
			if size, ok := fileAt(full); ok {
				return full, size, nil
			}
		}
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	return "", 0, domain.Failf(domain.FailureFileNotFound,
		"The downloaded file could not be located. Files present: %v", names)
}
