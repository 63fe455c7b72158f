package parser

import (
	"io"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/wesm/cursor-history/internal/logging"
)

// cursorLine is the part of a structured transcript line the
// indexer cares about.
type cursorLine struct {
	role      RoleType
	texts     []string
	toolNames []string
}

// decodeCursorLine extracts role, text parts, and tool-use parts
// from one JSONL line. ok is false for invalid JSON.
//
// Lines look like
//
//	{"role":"user","message":{"content":[{"type":"text","text":"..."}]}}
//
// Content may also be a bare string.
func decodeCursorLine(line string) (cursorLine, bool) {
	if !gjson.Valid(line) {
		return cursorLine{}, false
	}
	root := gjson.Parse(line)
	if !root.IsObject() {
		return cursorLine{}, false
	}

	cl := cursorLine{role: RoleType(root.Get("role").Str)}
	content := root.Get("message.content")
	if content.Type == gjson.String {
		if content.Str != "" {
			cl.texts = append(cl.texts, content.Str)
		}
		return cl, true
	}

	content.ForEach(func(_, block gjson.Result) bool {
		switch block.Get("type").Str {
		case "text":
			if text := block.Get("text").Str; text != "" {
				cl.texts = append(cl.texts, text)
			}
		case "tool_use":
			cl.toolNames = append(
				cl.toolNames, block.Get("name").Str,
			)
		}
		return true
	})
	return cl, true
}

// parseJSONL feeds a structured transcript into st. Each valid
// line is one message; invalid lines are skipped without
// affecting the rest of the file.
func parseJSONL(r io.Reader, st *transcriptStats) error {
	lr := newLineReader(r, maxLineSize)
	invalid, firstInvalid := 0, 0

	for n, line := range lr.lines() {
		if strings.TrimSpace(line) == "" {
			continue
		}
		cl, ok := decodeCursorLine(line)
		if !ok {
			if invalid == 0 {
				firstInvalid = n
			}
			invalid++
			continue
		}

		textLen := 0
		for _, t := range cl.texts {
			textLen += charCount(t)
		}
		st.addMessage(cl.role, textLen)
		for range cl.toolNames {
			st.addToolCall()
		}

		if cl.role == RoleUser {
			for _, t := range cl.texts {
				if st.offerSummary(t) {
					break
				}
			}
		}
	}

	if invalid > 0 || lr.Oversized() > 0 {
		logging.Debug().
			Int("invalid_lines", invalid).
			Int("first_invalid", firstInvalid).
			Int("oversized_lines", lr.Oversized()).
			Msg("skipped transcript lines")
	}
	return lr.Err()
}
