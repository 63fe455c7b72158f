package parser

import (
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/wesm/cursor-history/internal/logging"
)

// PreviewKind tags a rendered preview line.
type PreviewKind string

const (
	PreviewUser      PreviewKind = "user"
	PreviewAssistant PreviewKind = "assistant"
	PreviewTool      PreviewKind = "tool"
)

const previewMaxWidth = 150

// PreviewLine is one line of a conversation excerpt.
type PreviewLine struct {
	Kind PreviewKind `json:"kind"`
	Text string      `json:"text"`
}

// Preview renders up to limit lines of a transcript as a
// conversation excerpt. truncated is true when more lines were
// available. Unreadable files yield no lines.
func Preview(path string, limit int) (lines []PreviewLine, truncated bool) {
	if limit <= 0 {
		return nil, false
	}
	all := previewLines(path)
	if len(all) > limit {
		return all[:limit], true
	}
	return all, false
}

func previewLines(path string) []PreviewLine {
	format, ok := FormatOf(path)
	if !ok {
		return nil
	}
	f, err := openTranscript(path)
	if err != nil {
		logging.Debug().Err(err).Msg("preview unavailable")
		return nil
	}
	defer f.Close()

	var out []PreviewLine
	add := func(kind PreviewKind, text string) {
		text = cleanText(text)
		if text == "" {
			return
		}
		out = append(out, PreviewLine{
			Kind: kind,
			Text: runewidth.Truncate(text, previewMaxWidth, summaryTail),
		})
	}

	switch format {
	case FormatJSONL:
		lr := newLineReader(f, maxLineSize)
		for _, line := range lr.lines() {
			cl, ok := decodeCursorLine(line)
			if !ok {
				continue
			}
			kind := PreviewAssistant
			if cl.role == RoleUser {
				kind = PreviewUser
			}
			if len(cl.texts) > 0 {
				add(kind, cl.texts[0])
			}
			for _, name := range cl.toolNames {
				add(PreviewTool, toolCallMarker+" "+name)
			}
		}
	case FormatText:
		text, err := readTranscriptText(f)
		if err != nil {
			return out
		}
		for _, b := range splitCursorBlocks(strings.Split(text, "\n")) {
			if b.role == RoleUser {
				add(PreviewUser, extractUserQuery(b.lines))
				continue
			}
			prose, _, tools := extractAssistantContent(b.lines)
			add(PreviewAssistant, prose)
			for _, name := range tools {
				add(PreviewTool, toolCallMarker+" "+name)
			}
		}
	}
	return out
}

// SearchText returns the conversational text of a transcript:
// text parts for structured transcripts, and every line except
// role markers for plain-text ones. Unreadable files yield "".
func SearchText(path string) string {
	format, ok := FormatOf(path)
	if !ok {
		return ""
	}
	f, err := openTranscript(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	var sb strings.Builder
	switch format {
	case FormatJSONL:
		lr := newLineReader(f, maxLineSize)
		for _, line := range lr.lines() {
			cl, ok := decodeCursorLine(line)
			if !ok {
				continue
			}
			for _, t := range cl.texts {
				sb.WriteString(t)
				sb.WriteByte('\n')
			}
		}
	case FormatText:
		text, err := readTranscriptText(f)
		if err != nil {
			return ""
		}
		for _, line := range strings.Split(text, "\n") {
			if _, ok := roleMarker(strings.TrimSpace(line)); ok {
				continue
			}
			sb.WriteString(line)
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

// CountMatches returns the number of non-overlapping,
// case-insensitive occurrences of query in the transcript's
// SearchText. An empty query never matches.
func CountMatches(path, query string) int {
	if query == "" {
		return 0
	}
	text := SearchText(path)
	if text == "" {
		return 0
	}
	return strings.Count(
		strings.ToLower(text), strings.ToLower(query),
	)
}
