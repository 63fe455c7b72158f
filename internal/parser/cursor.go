package parser

import (
	"io"
	"regexp"
	"strings"
)

const (
	toolCallMarker   = "[Tool call]"
	toolResultMarker = "[Tool result]"
	thinkingMarker   = "[Thinking]"
)

var userQueryRe = regexp.MustCompile(
	`(?s)<user_query>\s*(.*?)\s*</user_query>`,
)

// parseText feeds a plain-text transcript into st. Each
// "user:" or "assistant:" marker line is one message and each
// "[Tool call]" line is one tool call. The summary is the first
// <user_query> block, else the first plain line of a user
// block, else the first non-empty line of the file.
func parseText(r io.Reader, st *transcriptStats) error {
	text, err := readTranscriptText(r)
	if err != nil {
		return err
	}

	if m := userQueryRe.FindStringSubmatch(text); m != nil {
		st.offerSummary(m[1])
	}

	var role RoleType
	firstLine := ""
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)

		if r, ok := roleMarker(trimmed); ok {
			role = r
			st.addMessage(role, 0)
			continue
		}
		if firstLine == "" && trimmed != "" {
			firstLine = trimmed
		}
		if strings.HasPrefix(trimmed, toolCallMarker) {
			st.addToolCall()
		}
		if role == "" {
			continue
		}

		st.addText(role, charCount(line))
		if role == RoleUser && trimmed != "" &&
			!strings.HasPrefix(trimmed, "<") {
			st.offerSummary(trimmed)
		}
	}

	if firstLine != "" {
		st.offerSummary(firstLine)
	}
	return nil
}

// roleMarker reports whether a trimmed line is a role marker.
func roleMarker(trimmed string) (RoleType, bool) {
	switch trimmed {
	case "user:":
		return RoleUser, true
	case "assistant:":
		return RoleAssistant, true
	}
	return "", false
}

// cursorBlock represents a raw block of lines between role
// markers in a plain-text transcript.
type cursorBlock struct {
	role  RoleType
	lines []string
}

// splitCursorBlocks splits lines into blocks delimited by
// "user:" or "assistant:" on a line by itself. Lines before the
// first marker are dropped.
func splitCursorBlocks(lines []string) []cursorBlock {
	var blocks []cursorBlock
	var current *cursorBlock

	for _, line := range lines {
		if role, ok := roleMarker(strings.TrimSpace(line)); ok {
			if current != nil {
				blocks = append(blocks, *current)
			}
			current = &cursorBlock{role: role}
			continue
		}
		if current != nil {
			current.lines = append(current.lines, line)
		}
	}
	if current != nil {
		blocks = append(blocks, *current)
	}
	return blocks
}

// extractUserQuery extracts text from <user_query> tags.
// Falls back to joining all lines if no tags are found.
func extractUserQuery(lines []string) string {
	text := strings.Join(lines, "\n")
	if m := userQueryRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(text)
}

// extractAssistantContent parses assistant block lines into the
// visible prose, whether a thinking block was present, and the
// names of tools called. Thinking, tool call, and tool result
// bodies are the indented lines that follow their marker.
func extractAssistantContent(
	lines []string,
) (string, bool, []string) {
	var textParts []string
	var toolNames []string
	hasThinking := false

	i := 0
	for i < len(lines) {
		trimmed := strings.TrimSpace(lines[i])

		switch {
		case strings.HasPrefix(trimmed, thinkingMarker):
			hasThinking = true
		case strings.HasPrefix(trimmed, toolCallMarker):
			toolNames = append(toolNames, strings.TrimSpace(
				strings.TrimPrefix(trimmed, toolCallMarker),
			))
		case strings.HasPrefix(trimmed, toolResultMarker):
		default:
			textParts = append(textParts, lines[i])
			i++
			continue
		}

		// Skip the marker's body.
		i++
		for i < len(lines) && !isBlockBodyEnd(lines[i]) {
			i++
		}
	}

	content := strings.TrimSpace(strings.Join(textParts, "\n"))
	return content, hasThinking, toolNames
}

// isBlockBodyEnd reports whether line ends the body of a
// thinking, tool call, or tool result block: any non-empty line
// starting at the left margin does.
func isBlockBodyEnd(line string) bool {
	if line == "" {
		return false
	}
	return line[0] != ' ' && line[0] != '\t'
}
