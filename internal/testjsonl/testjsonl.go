// Package testjsonl provides shared fixture builders for Cursor
// transcript test data in both the structured (JSONL) and the
// plain-text encodings. Used by the parser, index, and query
// test packages.
package testjsonl

import (
	"encoding/json"
	"strings"
)

// TextPart returns a text content part.
func TextPart(text string) map[string]any {
	return map[string]any{"type": "text", "text": text}
}

// ToolUsePart returns a tool-invocation content part.
func ToolUsePart(name string, input map[string]any) map[string]any {
	if input == nil {
		input = map[string]any{}
	}
	return map[string]any{
		"type":  "tool_use",
		"name":  name,
		"input": input,
	}
}

// CursorLineJSON returns one structured transcript line with
// the given role and content parts.
func CursorLineJSON(role string, parts ...map[string]any) string {
	if parts == nil {
		parts = []map[string]any{}
	}
	return mustMarshal(map[string]any{
		"role": role,
		"message": map[string]any{
			"content": parts,
		},
	})
}

// CursorUserJSON returns a user line with a single text part.
func CursorUserJSON(text string) string {
	return CursorLineJSON("user", TextPart(text))
}

// CursorAssistantJSON returns an assistant line with a single
// text part.
func CursorAssistantJSON(text string) string {
	return CursorLineJSON("assistant", TextPart(text))
}

// CursorToolUseJSON returns an assistant line with one
// tool-invocation part per name.
func CursorToolUseJSON(names ...string) string {
	parts := make([]map[string]any, 0, len(names))
	for _, n := range names {
		parts = append(parts, ToolUsePart(n, nil))
	}
	return CursorLineJSON("assistant", parts...)
}

// JoinJSONL joins lines with newlines and adds a trailing
// newline.
func JoinJSONL(lines ...string) string {
	return strings.Join(lines, "\n") + "\n"
}

// TextBuilder constructs plain-text transcripts using a fluent
// API.
type TextBuilder struct {
	lines []string
}

// NewTextBuilder returns a new empty TextBuilder.
func NewTextBuilder() *TextBuilder {
	return &TextBuilder{}
}

// User appends a user block wrapping query in <user_query>
// tags.
func (b *TextBuilder) User(query string) *TextBuilder {
	b.lines = append(b.lines,
		"user:",
		"<user_query>",
		query,
		"</user_query>",
		"",
	)
	return b
}

// UserPlain appends a user block without tags.
func (b *TextBuilder) UserPlain(lines ...string) *TextBuilder {
	b.lines = append(b.lines, "user:")
	b.lines = append(b.lines, lines...)
	b.lines = append(b.lines, "")
	return b
}

// Assistant appends an assistant block with prose lines.
func (b *TextBuilder) Assistant(lines ...string) *TextBuilder {
	b.lines = append(b.lines, "assistant:")
	b.lines = append(b.lines, lines...)
	b.lines = append(b.lines, "")
	return b
}

// ToolCall appends a tool call line with indented parameters
// to the current block.
func (b *TextBuilder) ToolCall(name string, params ...string) *TextBuilder {
	b.lines = append(b.lines, "[Tool call] "+name)
	for _, p := range params {
		b.lines = append(b.lines, "  "+p)
	}
	return b
}

// ToolResult appends a tool result with indented body lines to
// the current block.
func (b *TextBuilder) ToolResult(body ...string) *TextBuilder {
	b.lines = append(b.lines, "[Tool result]")
	for _, l := range body {
		b.lines = append(b.lines, "  "+l)
	}
	return b
}

// Raw appends a line verbatim.
func (b *TextBuilder) Raw(line string) *TextBuilder {
	b.lines = append(b.lines, line)
	return b
}

// String returns the transcript with a trailing newline.
func (b *TextBuilder) String() string {
	return strings.Join(b.lines, "\n") + "\n"
}

func mustMarshal(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(b)
}
