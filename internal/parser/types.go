package parser

import (
	"path/filepath"
	"strings"
)

// Format identifies which transcript encoding produced a
// session. Exactly two encodings exist.
type Format string

const (
	// FormatJSONL is the structured encoding: one JSON message
	// object per line.
	FormatJSONL Format = "jsonl"
	// FormatText is the legacy plain-text encoding with
	// "user:" / "assistant:" role markers.
	FormatText Format = "txt"
)

// FormatOf returns the transcript format for a file name based
// on its extension.
func FormatOf(name string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jsonl":
		return FormatJSONL, true
	case ".txt":
		return FormatText, true
	default:
		return "", false
	}
}

// SessionIDFromPath returns the session ID for a transcript
// path: the file name without its extension.
func SessionIDFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// RoleType identifies the role of a message sender.
type RoleType string

const (
	RoleUser      RoleType = "user"
	RoleAssistant RoleType = "assistant"
)

// Transcript holds the facts extracted from one transcript file
// in a single pass.
//
// InputTokens and OutputTokens are estimates derived from a
// fixed characters-per-token ratio over user and assistant text
// respectively. They are not tokenizer-accurate counts.
type Transcript struct {
	Summary      string
	Messages     int
	ToolCalls    int
	InputTokens  int
	OutputTokens int
}
