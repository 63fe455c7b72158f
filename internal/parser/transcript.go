package parser

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/mattn/go-runewidth"

	"github.com/wesm/cursor-history/internal/logging"
)

const (
	// CharsPerToken is the fixed ratio used for token
	// estimates.
	CharsPerToken = 4

	// MaxSummaryWidth bounds the summary in display columns,
	// including the ellipsis tail.
	MaxSummaryWidth = 200

	summaryTail = "..."

	// maxTranscriptSize is the largest transcript we read.
	// Cursor transcripts are typically well under 1 MB.
	maxTranscriptSize = 64 << 20
)

var markupRe = regexp.MustCompile(`<[^>]+>`)

// ParseTranscript reads one transcript and extracts its summary,
// counts, and token estimates. The format is chosen by file
// extension. A missing, unreadable, or unrecognized file yields
// a zero Transcript; the error is only logged.
func ParseTranscript(path string) Transcript {
	format, ok := FormatOf(path)
	if !ok {
		logging.Debug().Str("path", path).
			Msg("skipping transcript with unknown extension")
		return Transcript{}
	}

	f, err := openTranscript(path)
	if err != nil {
		logging.Debug().Err(err).Msg("transcript unreadable")
		return Transcript{}
	}
	defer f.Close()

	var st transcriptStats
	switch format {
	case FormatJSONL:
		err = parseJSONL(f, &st)
	case FormatText:
		err = parseText(f, &st)
	}
	if err != nil {
		// Keep whatever was read before the failure.
		logging.Warn().Err(err).Str("path", path).
			Msg("transcript read interrupted")
	}
	return st.result()
}

// openTranscript opens a transcript for reading without
// following a symlink at the final path component, and rejects
// non-regular or oversized files.
func openTranscript(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDONLY|noFollow, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// Stat the open fd, not the path, so the checks apply to
	// the file we actually read.
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		f.Close()
		return nil, fmt.Errorf(
			"skip %s: not a regular file", path,
		)
	}
	if info.Size() > maxTranscriptSize {
		f.Close()
		return nil, fmt.Errorf(
			"skip %s: file too large (%d bytes, max %d)",
			path, info.Size(), maxTranscriptSize,
		)
	}
	return f, nil
}

// readTranscriptText reads a whole plain-text transcript,
// replacing invalid UTF-8 sequences.
func readTranscriptText(r io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxTranscriptSize))
	if err != nil {
		return "", err
	}
	return strings.ToValidUTF8(string(data), "�"), nil
}

// transcriptStats accumulates metrics while a transcript is
// read. Both format parsers feed the same structure.
type transcriptStats struct {
	summary     string
	messages    int
	toolCalls   int
	inputChars  int
	outputChars int
}

// addMessage records one message and attributes text length to
// the input (user) or output (everything else) side.
func (s *transcriptStats) addMessage(role RoleType, textLen int) {
	s.messages++
	s.addText(role, textLen)
}

func (s *transcriptStats) addText(role RoleType, textLen int) {
	if role == RoleUser {
		s.inputChars += textLen
	} else {
		s.outputChars += textLen
	}
}

func (s *transcriptStats) addToolCall() {
	s.toolCalls++
}

// offerSummary sets the summary from raw text if none is set
// yet and the cleaned text is non-empty. Reports whether the
// summary was taken.
func (s *transcriptStats) offerSummary(raw string) bool {
	if s.summary != "" {
		return false
	}
	cleaned := cleanText(raw)
	if cleaned == "" {
		return false
	}
	s.summary = truncateSummary(cleaned)
	return true
}

func (s *transcriptStats) result() Transcript {
	return Transcript{
		Summary:      s.summary,
		Messages:     s.messages,
		ToolCalls:    s.toolCalls,
		InputTokens:  s.inputChars / CharsPerToken,
		OutputTokens: s.outputChars / CharsPerToken,
	}
}

// cleanText strips XML/HTML tags and collapses whitespace.
func cleanText(text string) string {
	return strings.Join(
		strings.Fields(markupRe.ReplaceAllString(text, "")), " ",
	)
}

// truncateSummary bounds s to MaxSummaryWidth display columns.
// runewidth cuts on rune boundaries, so multi-byte characters
// are never split.
func truncateSummary(s string) string {
	return runewidth.Truncate(s, MaxSummaryWidth, summaryTail)
}

// charCount counts characters, not bytes, so token estimates do
// not inflate for non-ASCII text.
func charCount(s string) int {
	return utf8.RuneCountInString(s)
}
