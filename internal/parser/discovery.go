package parser

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/wesm/cursor-history/internal/logging"
)

// TranscriptsDirName is the per-project subdirectory holding
// session transcripts.
const TranscriptsDirName = "agent-transcripts"

// DiscoveredFile holds a discovered transcript file.
type DiscoveredFile struct {
	Path   string
	Folder string // encoded project folder name
	Format Format
}

// Discovery is the result of scanning one projects root.
type Discovery struct {
	Files []DiscoveredFile
	// ProjectDirs and TranscriptDirs list the directories that
	// were read, for staleness checks.
	ProjectDirs    []string
	TranscriptDirs []string
}

// DiscoverCursorSessions finds all transcript files under a
// Cursor projects dir laid out as
// <projectsDir>/<encoded>/agent-transcripts/<id>.{jsonl,txt}.
// All discovered paths are validated to resolve within the
// canonical projectsDir, preventing symlink escapes. Unreadable
// directories are skipped.
func DiscoverCursorSessions(projectsDir string) Discovery {
	var d Discovery
	if projectsDir == "" {
		return d
	}

	// Canonicalize root once for containment checks.
	resolvedRoot, err := filepath.EvalSymlinks(projectsDir)
	if err != nil {
		logging.Debug().Err(err).Str("root", projectsDir).
			Msg("projects dir unavailable")
		return d
	}

	entries, err := os.ReadDir(projectsDir)
	if err != nil {
		logging.Warn().Err(err).Str("root", projectsDir).
			Msg("reading projects dir")
		return d
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		// Reject symlinked project directory entries.
		if entry.Type()&os.ModeSymlink != 0 {
			continue
		}

		projectDir := filepath.Join(projectsDir, entry.Name())
		d.ProjectDirs = append(d.ProjectDirs, projectDir)

		transcriptsDir := filepath.Join(
			projectDir, TranscriptsDirName,
		)
		resolvedDir, err := filepath.EvalSymlinks(transcriptsDir)
		if err != nil {
			continue
		}
		if !isContainedIn(resolvedDir, resolvedRoot) {
			continue
		}

		transcripts, err := os.ReadDir(transcriptsDir)
		if err != nil {
			logging.Warn().Err(err).Str("dir", transcriptsDir).
				Msg("reading transcripts dir")
			continue
		}
		d.TranscriptDirs = append(d.TranscriptDirs, transcriptsDir)

		for _, sf := range transcripts {
			if sf.IsDir() {
				continue
			}
			format, ok := FormatOf(sf.Name())
			if !ok {
				continue
			}
			fullPath := filepath.Join(transcriptsDir, sf.Name())
			if !IsRegularFile(fullPath) {
				continue
			}
			d.Files = append(d.Files, DiscoveredFile{
				Path:   fullPath,
				Folder: entry.Name(),
				Format: format,
			})
		}
	}

	sort.Slice(d.Files, func(i, j int) bool {
		return d.Files[i].Path < d.Files[j].Path
	})
	sort.Strings(d.ProjectDirs)
	sort.Strings(d.TranscriptDirs)
	return d
}

// IsRegularFile reports whether path is a regular file (not
// a symlink, directory, or special file).
func IsRegularFile(path string) bool {
	info, err := os.Lstat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular()
}

// isContainedIn returns true if child is a path strictly
// under root. Both paths must be absolute / canonical.
func isContainedIn(child, root string) bool {
	rel, err := filepath.Rel(root, child)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." &&
		!strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
