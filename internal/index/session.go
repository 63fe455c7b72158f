// Package index builds, caches, and watches the session index: one
// record per Cursor agent transcript, with its reconstructed
// workspace, conversation metrics, and model attribution.
package index

import (
	"slices"
	"strings"
	"time"

	"github.com/wesm/cursor-history/internal/parser"
)

// Version is bumped whenever the cached JSON layout or the
// meaning of a field changes. Caches with another version are
// rebuilt.
const Version = 1

// Session is the indexed record for one transcript.
//
// InputTokens and OutputTokens are estimates: user and assistant
// text length divided by parser.CharsPerToken.
type Session struct {
	ID             string        `json:"id"`
	Workspace      string        `json:"workspace"`
	Resolved       bool          `json:"resolved"`
	Folder         string        `json:"folder"`
	Format         parser.Format `json:"format"`
	Modified       time.Time     `json:"modified"`
	Messages       int           `json:"messages"`
	ToolCalls      int           `json:"tool_calls"`
	Summary        string        `json:"summary"`
	Size           int64         `json:"size"`
	TranscriptPath string        `json:"transcript_path"`
	InputTokens    int           `json:"input_tokens"`
	OutputTokens   int           `json:"output_tokens"`

	// Set only when the tracking DB knows the session.
	Model     *string `json:"model,omitempty"`
	CodeEdits *int    `json:"code_edits,omitempty"`
}

// ModelName returns the attributed model or "".
func (s Session) ModelName() string {
	if s.Model == nil {
		return ""
	}
	return *s.Model
}

// Index is one complete snapshot of all sessions under a set of
// projects roots.
type Index struct {
	Version int       `json:"version"`
	BuiltAt time.Time `json:"built_at"`
	Roots   []string  `json:"roots"`
	// Watched maps every projects root, project dir, and
	// agent-transcripts dir read during the build to its mtime.
	Watched map[string]time.Time `json:"watched"`
	// Sessions are ordered by Modified descending, then ID.
	Sessions []Session `json:"sessions"`
}

// sortSessions orders sessions newest first with ID as the
// tie-breaker.
func sortSessions(sessions []Session) {
	slices.SortFunc(sessions, func(a, b Session) int {
		if c := b.Modified.Compare(a.Modified); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}
