package parser

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wesm/cursor-history/internal/logging"
)

func generateLargeString(size int) string {
	return strings.Repeat("x", size)
}

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// createTestFile writes content to a fresh temp dir.
func createTestFile(t *testing.T, name, content string) string {
	t.Helper()
	return writeFile(t, filepath.Join(t.TempDir(), name), content)
}

// mkdirs creates each slash-separated relative dir under root.
func mkdirs(t *testing.T, root string, dirs ...string) {
	t.Helper()
	for _, d := range dirs {
		require.NoError(t,
			os.MkdirAll(filepath.Join(root, filepath.FromSlash(d)), 0o755))
	}
}

// writeTranscript lays out
// <projects>/<folder>/agent-transcripts/<name>.
func writeTranscript(
	t *testing.T, projects, folder, name, content string,
) string {
	t.Helper()
	return writeFile(t,
		filepath.Join(projects, folder, TranscriptsDirName, name), content)
}

func assertTranscript(t *testing.T, got, want Transcript) {
	t.Helper()
	if got != want {
		t.Errorf("transcript = %+v, want %+v", got, want)
	}
}

// captureLog collects debug output until the test ends.
func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	logging.SetOutput(&buf)
	logging.SetLevel("debug")
	t.Cleanup(func() {
		logging.SetOutput(os.Stderr)
		logging.SetLevel("warn")
	})
	return &buf
}

func assertLogContains(t *testing.T, buf *bytes.Buffer, substrs ...string) {
	t.Helper()
	for _, s := range substrs {
		if !strings.Contains(buf.String(), s) {
			t.Errorf("log missing %q, got: %q", s, buf.String())
		}
	}
}
