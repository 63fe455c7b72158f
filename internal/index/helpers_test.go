package index

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/wesm/cursor-history/internal/parser"
	"github.com/wesm/cursor-history/internal/testjsonl"
)

// testTree is a projects root plus a fake filesystem root that
// encoded folder names resolve against.
type testTree struct {
	t        *testing.T
	projects string
	fsRoot   string
}

func newTestTree(t *testing.T) *testTree {
	t.Helper()
	base := t.TempDir()
	tr := &testTree{
		t:        t,
		projects: filepath.Join(base, "projects"),
		fsRoot:   filepath.Join(base, "fs"),
	}
	for _, d := range []string{tr.projects, tr.fsRoot} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", d, err)
		}
	}
	return tr
}

// workspace creates a directory below the fake filesystem root.
func (tr *testTree) workspace(rel string) string {
	tr.t.Helper()
	p := filepath.Join(tr.fsRoot, filepath.FromSlash(rel))
	if err := os.MkdirAll(p, 0o755); err != nil {
		tr.t.Fatalf("mkdir %s: %v", p, err)
	}
	return p
}

// transcript writes <projects>/<folder>/agent-transcripts/<name>
// and sets its mtime.
func (tr *testTree) transcript(
	folder, name, content string, mtime time.Time,
) string {
	tr.t.Helper()
	dir := filepath.Join(tr.projects, folder, parser.TranscriptsDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		tr.t.Fatalf("mkdir %s: %v", dir, err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		tr.t.Fatalf("write %s: %v", path, err)
	}
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		tr.t.Fatalf("chtimes %s: %v", path, err)
	}
	return path
}

// age pushes the mtime of every directory under the projects
// root into the past so that a following build sees them as
// settled.
func (tr *testTree) age() {
	tr.t.Helper()
	old := time.Now().Add(-time.Hour)
	err := filepath.WalkDir(tr.projects,
		func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return os.Chtimes(path, old, old)
			}
			return nil
		})
	if err != nil {
		tr.t.Fatalf("aging tree: %v", err)
	}
}

// touch sets the mtime of a directory under the projects root.
func (tr *testTree) touch(rel string, mtime time.Time) {
	tr.t.Helper()
	p := filepath.Join(tr.projects, filepath.FromSlash(rel))
	if err := os.Chtimes(p, mtime, mtime); err != nil {
		tr.t.Fatalf("chtimes %s: %v", p, err)
	}
}

func (tr *testTree) builder(opts ...BuilderOption) *Builder {
	opts = append([]BuilderOption{WithResolverRoot(tr.fsRoot)}, opts...)
	return NewBuilder([]string{tr.projects}, opts...)
}

// seedStandard writes three sessions across two resolvable
// workspaces plus one session in a workspace that no longer
// exists.
func (tr *testTree) seedStandard(base time.Time) {
	tr.t.Helper()
	tr.workspace("Users/alice/app")
	tr.workspace("Users/bob/api")

	tr.transcript("Users-alice-app", "s1.jsonl", testjsonl.JoinJSONL(
		testjsonl.CursorUserJSON("Fix login bug"),
		testjsonl.CursorAssistantJSON("Looking into it."),
		testjsonl.CursorToolUseJSON("read_file"),
	), base.Add(3*time.Hour))
	tr.transcript("Users-alice-app", "s2.txt", testjsonl.NewTextBuilder().
		User("Add caching").
		Assistant("Done.").
		String(), base.Add(2*time.Hour))
	tr.transcript("Users-bob-api", "s3.jsonl", testjsonl.JoinJSONL(
		testjsonl.CursorUserJSON("Write API docs"),
	), base.Add(time.Hour))
	tr.transcript("Users-ghost-gone", "s4.jsonl", testjsonl.JoinJSONL(
		testjsonl.CursorUserJSON("lost"),
	), base)
}

var testBase = time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

func sessionIDs(sessions []Session) []string {
	ids := make([]string, len(sessions))
	for i, s := range sessions {
		ids[i] = s.ID
	}
	return ids
}

func ptr[T any](v T) *T {
	return &v
}
