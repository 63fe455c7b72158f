package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/mattn/go-runewidth"

	"github.com/wesm/cursor-history/internal/index"
	"github.com/wesm/cursor-history/internal/parser"
	"github.com/wesm/cursor-history/internal/query"
	"github.com/wesm/cursor-history/internal/timeutil"
)

const (
	shortIDLen      = 8
	summaryColWidth = 60
	workspaceWidth  = 40
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	labelStyle  = lipgloss.NewStyle().Bold(true).Width(12)
	titleStyle  = lipgloss.NewStyle().Bold(true).Underline(true)

	previewStyles = map[parser.PreviewKind]lipgloss.Style{
		parser.PreviewUser:      lipgloss.NewStyle().Foreground(lipgloss.Color("12")),
		parser.PreviewAssistant: lipgloss.NewStyle(),
		parser.PreviewTool:      mutedStyle,
	}
)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(mutedStyle).
		Headers(headers...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
}

// shortID keeps the first shortIDLen runes of id. Stems are
// arbitrary file names, so bytes would split characters.
func shortID(id string) string {
	r := []rune(id)
	if len(r) <= shortIDLen {
		return id
	}
	return string(r[:shortIDLen])
}

// clip keeps the tail of long workspace paths, where the
// project name lives.
func clip(s string, width int) string {
	if runewidth.StringWidth(s) <= width {
		return s
	}
	r := []rune(s)
	for runewidth.StringWidth(string(r)) > width-3 {
		r = r[1:]
	}
	return "..." + string(r)
}

func workspaceLabel(s index.Session) string {
	ws := clip(s.Workspace, workspaceWidth)
	if !s.Resolved {
		return ws + "?"
	}
	return ws
}

func modelLabel(s index.Session) string {
	if name := s.ModelName(); name != "" {
		return name
	}
	return "-"
}

func sessionRow(s index.Session) []string {
	return []string{
		shortID(s.ID),
		timeutil.Display(s.Modified),
		workspaceLabel(s),
		strconv.Itoa(s.Messages),
		strconv.Itoa(s.ToolCalls),
		modelLabel(s),
		runewidth.Truncate(s.Summary, summaryColWidth, "..."),
	}
}

var sessionHeaders = []string{
	"ID", "MODIFIED", "WORKSPACE", "MSGS", "TOOLS", "MODEL", "SUMMARY",
}

func renderSessions(sessions []index.Session) string {
	t := newTable(sessionHeaders...)
	for _, s := range sessions {
		t.Row(sessionRow(s)...)
	}
	return t.String()
}

func renderHits(hits []query.Hit) string {
	t := newTable(append([]string{"MATCHES"}, sessionHeaders...)...)
	for _, h := range hits {
		t.Row(append(
			[]string{strconv.Itoa(h.Matches)}, sessionRow(h.Session)...,
		)...)
	}
	return t.String()
}

func renderSession(s index.Session, preview []parser.PreviewLine, truncated bool) string {
	var sb strings.Builder
	field := func(label, value string) {
		sb.WriteString(labelStyle.Render(label))
		sb.WriteString(value)
		sb.WriteByte('\n')
	}
	workspace := s.Workspace
	if !s.Resolved {
		workspace += " " + mutedStyle.Render("(unresolved)")
	}

	field("ID", s.ID)
	field("Workspace", workspace)
	field("Modified", timeutil.Display(s.Modified))
	field("Format", string(s.Format))
	field("Messages", strconv.Itoa(s.Messages))
	field("Tool calls", strconv.Itoa(s.ToolCalls))
	field("Tokens", fmt.Sprintf(
		"~%d in / ~%d out", s.InputTokens, s.OutputTokens,
	))
	field("Size", formatBytes(s.Size))
	if s.Model != nil {
		field("Model", modelLabel(s))
	}
	if s.CodeEdits != nil {
		field("Code edits", strconv.Itoa(*s.CodeEdits))
	}
	field("Summary", s.Summary)
	field("Transcript", s.TranscriptPath)

	if len(preview) > 0 {
		sb.WriteByte('\n')
		sb.WriteString(titleStyle.Render("Preview"))
		sb.WriteByte('\n')
		for _, line := range preview {
			sb.WriteString(previewStyles[line.Kind].Render(
				fmt.Sprintf("%-9s %s", line.Kind, line.Text),
			))
			sb.WriteByte('\n')
		}
		if truncated {
			sb.WriteString(mutedStyle.Render("..."))
			sb.WriteByte('\n')
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func renderStats(st query.Stats) string {
	var sb strings.Builder
	section := func(title, body string) {
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(titleStyle.Render(title))
		sb.WriteByte('\n')
		sb.WriteString(body)
	}

	totals := newTable("SESSIONS", "MESSAGES", "TOOLS", "SIZE",
		"TOKENS IN", "TOKENS OUT", "CODE EDITS", "UNRESOLVED")
	totals.Row(
		strconv.Itoa(st.Sessions),
		strconv.Itoa(st.Messages),
		strconv.Itoa(st.ToolCalls),
		formatBytes(st.Bytes),
		strconv.Itoa(st.InputTokens),
		strconv.Itoa(st.OutputTokens),
		strconv.Itoa(st.CodeEdits),
		strconv.Itoa(st.Unresolved),
	)
	section("Totals", totals.String())

	if len(st.Workspaces) > 0 {
		t := newTable("WORKSPACE", "SESSIONS", "MESSAGES")
		for _, ws := range st.Workspaces {
			label := clip(ws.Workspace, workspaceWidth)
			if !ws.Resolved {
				label += "?"
			}
			t.Row(label,
				strconv.Itoa(ws.Sessions), strconv.Itoa(ws.Messages))
		}
		section("Workspaces", t.String())
	}

	if len(st.Weeks) > 0 {
		t := newTable("WEEK", "STARTS", "SESSIONS", "MESSAGES")
		for _, wk := range st.Weeks {
			t.Row(wk.Week, wk.Start.Format("2006-01-02"),
				strconv.Itoa(wk.Sessions), strconv.Itoa(wk.Messages))
		}
		section("Activity by week", t.String())
	}

	if len(st.Models) > 0 {
		t := newTable("MODEL", "SESSIONS", "CODE EDITS")
		for _, m := range st.Models {
			t.Row(m.Model,
				strconv.Itoa(m.Sessions), strconv.Itoa(m.CodeEdits))
		}
		section("Models", t.String())
	}

	if len(st.Top) > 0 {
		section("Largest sessions", renderSessions(st.Top))
	}
	return sb.String()
}

func formatBytes(b int64) string {
	switch {
	case b >= 1<<30:
		return fmt.Sprintf("%.1f GB", float64(b)/(1<<30))
	case b >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(b)/(1<<20))
	case b >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(b)/(1<<10))
	default:
		return fmt.Sprintf("%d B", b)
	}
}
