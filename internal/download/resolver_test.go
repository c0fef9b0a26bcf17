package download

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"mator/internal/domain"
	"mator/internal/engine"
)

var fixedNow = time.Unix(1700000000, 0)

func writeArtifact(t *testing.T, dir, name, content string) string {
	t.Helper()
	full := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", name, err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return full
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: "file.txt", want: "file.txt"},
		{name: "nested path", in: "show/season/episode.mkv", want: "episode.mkv"},
		{name: "windows separators", in: `show\episode.mkv`, want: "episode.mkv"},
		{name: "invalid characters", in: "a<b>c|d?.txt", want: "a_b_c_d_.txt"},
		{name: "colon and quote", in: `name: "the file"`, want: `name_ _the file_`},
		{name: "empty", in: "", want: "download-1700000000"},
		{name: "dot", in: ".", want: "download-1700000000"},
		{name: "dotdot", in: "..", want: "download-1700000000"},
		{name: "root", in: "/", want: "download-1700000000"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := sanitizeFilename(tc.in, fixedNow); got != tc.want {
				t.Fatalf("sanitizeFilename(%q): expected %q, got %q", tc.in, tc.want, got)
			}
		})
	}
}

func TestCandidatePaths(t *testing.T) {
	meta := engine.Metadata{
		Name: "Display Name",
		Files: []engine.FileInfo{
			{Path: "show/episode?.mkv", Length: 100},
		},
	}

	got := candidatePaths(meta, "/downloads", fixedNow)
	want := []string{
		filepath.Join("/downloads", "show", "episode?.mkv"),
		filepath.Join("/downloads", "episode_.mkv"),
		filepath.Join("/downloads", "Display Name"),
	}
	if len(got) != len(want) {
		t.Fatalf("Expected %d candidates, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Candidate %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestCandidatePathsSparseMetadata(t *testing.T) {
	// No declared path and no display name leaves only the timestamp
	// fallback.
	meta := engine.Metadata{Files: []engine.FileInfo{{Path: ""}}}

	got := candidatePaths(meta, "/downloads", fixedNow)
	if len(got) != 1 {
		t.Fatalf("Expected a single fallback candidate, got %v", got)
	}
	if got[0] != filepath.Join("/downloads", "download-1700000000") {
		t.Fatalf("Unexpected fallback candidate %q", got[0])
	}

	if got := candidatePaths(engine.Metadata{}, "/downloads", fixedNow); len(got) != 0 {
		t.Fatalf("Expected no candidates for empty metadata, got %v", got)
	}
}

func TestResolveArtifactPrefersDeclaredPath(t *testing.T) {
	dir := t.TempDir()
	declared := writeArtifact(t, dir, filepath.Join("show", "episode.mkv"), "declared")
	writeArtifact(t, dir, "episode.mkv", "sanitized variant")

	meta := engine.Metadata{
		Name:  "show",
		Files: []engine.FileInfo{{Path: "show/episode.mkv"}},
	}

	path, size, fail := resolveArtifact(meta, dir, fixedNow)
	if fail != nil {
		t.Fatalf("Expected resolution to succeed, got %v", fail)
	}
	if path != declared {
		t.Fatalf("Expected declared path %q, got %q", declared, path)
	}
	if size != int64(len("declared")) {
		t.Fatalf("Expected size %d, got %d", len("declared"), size)
	}
}

func TestResolveArtifactSanitizedVariant(t *testing.T) {
	dir := t.TempDir()
	sanitized := writeArtifact(t, dir, "episode_.mkv", "content")

	meta := engine.Metadata{Files: []engine.FileInfo{{Path: "show/episode?.mkv"}}}

	path, _, fail := resolveArtifact(meta, dir, fixedNow)
	if fail != nil {
		t.Fatalf("Expected resolution to succeed, got %v", fail)
	}
	if path != sanitized {
		t.Fatalf("Expected sanitized path %q, got %q", sanitized, path)
	}
}

func TestResolveArtifactSkipsEmptyCandidates(t *testing.T) {
	dir := t.TempDir()
	writeArtifact(t, dir, "episode.mkv", "")
	display := writeArtifact(t, dir, "Display Name", "real content")

	meta := engine.Metadata{
		Name:  "Display Name",
		Files: []engine.FileInfo{{Path: "episode.mkv"}},
	}

	path, _, fail := resolveArtifact(meta, dir, fixedNow)
	if fail != nil {
		t.Fatalf("Expected resolution to succeed, got %v", fail)
	}
	if path != display {
		t.Fatalf("Expected the non-empty display-name file %q, got %q", display, path)
	}
}

func TestResolveArtifactDirectoryScanFallback(t *testing.T) {
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "partial"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeArtifact(t, dir, "zero.bin", "")
	unexpected := writeArtifact(t, dir, "unexpected.bin", "scan finds me")

	meta := engine.Metadata{
		Name:  "missing-name",
		Files: []engine.FileInfo{{Path: "missing/declared.bin"}},
	}

	path, size, fail := resolveArtifact(meta, dir, fixedNow)
	if fail != nil {
		t.Fatalf("Expected the scan fallback to succeed, got %v", fail)
	}
	if path != unexpected {
		t.Fatalf("Expected scanned file %q, got %q", unexpected, path)
	}
	if size != int64(len("scan finds me")) {
		t.Fatalf("Expected size %d, got %d", len("scan finds me"), size)
	}
}

func TestResolveArtifactNotFoundListsDirectory(t *testing.T) {
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "incomplete"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeArtifact(t, dir, "zero.bin", "")

	meta := engine.Metadata{Files: []engine.FileInfo{{Path: "declared.bin"}}}

	_, _, fail := resolveArtifact(meta, dir, fixedNow)
	if fail == nil {
		t.Fatal("Expected resolution to fail")
	}
	if fail.Kind != domain.FailureFileNotFound {
		t.Fatalf("Expected kind %s, got %s", domain.FailureFileNotFound, fail.Kind)
	}
	if !strings.Contains(fail.Message, "incomplete") || !strings.Contains(fail.Message, "zero.bin") {
		t.Fatalf("Expected the directory listing in the message, got %q", fail.Message)
	}
}
