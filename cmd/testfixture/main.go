package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/wesm/cursor-history/internal/parser"
	"github.com/wesm/cursor-history/internal/testjsonl"
)

type sessionSpec struct {
	workspace string
	id        string
	format    parser.Format
	turns     int
	tools     int
	model     string
	edits     int
}

var specs = []sessionSpec{
	{"code/project-alpha", "a1f0c2d4-small-2", parser.FormatJSONL, 1, 0, "", 0},
	{"code/project-alpha", "a1f0c2d4-small-5", parser.FormatText, 3, 1, "gpt-5", 4},
	{"code/project.beta", "b2e1d3c5-mixed-6", parser.FormatJSONL, 3, 2, "claude-4-sonnet", 12},
	{"code/project.beta", "b2e1d3c5-medium-100", parser.FormatJSONL, 50, 20, "gpt-5", 40},
	{"code/project-gamma/web", "c3d2e4f6-large-1500", parser.FormatText, 750, 200, "", 0},
	{"code/project-delta", "d4c3f5a7-xlarge-5500", parser.FormatJSONL, 2750, 900, "claude-4-sonnet", 300},
}

const trackingSchema = `
CREATE TABLE ai_code_hashes (
	hash TEXT PRIMARY KEY,
	source TEXT,
	fileExtension TEXT,
	fileName TEXT,
	requestId TEXT,
	conversationId TEXT,
	timestamp INTEGER,
	model TEXT,
	createdAt INTEGER
)`

func main() {
	out := flag.String("out", "", "output directory")
	flag.Parse()
	if *out == "" {
		fmt.Fprintln(os.Stderr, "usage: testfixture -out <dir>")
		os.Exit(1)
	}

	root, err := filepath.Abs(*out)
	if err != nil {
		log.Fatalf("resolving output dir: %v", err)
	}
	if err := os.RemoveAll(root); err != nil {
		log.Fatalf("removing existing fixture: %v", err)
	}
	projects := filepath.Join(root, "projects")
	dbPath := filepath.Join(root, "ai-code-tracking.db")

	base := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)
	for i, spec := range specs {
		if err := createSessionFixture(root, spec, i, base); err != nil {
			log.Fatalf("creating fixture %s: %v", spec.id, err)
		}
		fmt.Printf("  %s: %d turns, %d tool calls\n",
			spec.id, spec.turns, spec.tools)
	}
	// A project whose workspace no longer exists.
	if err := writeTranscript(projects, "Users-nobody-deleted-repo",
		"e5b4a6c8-orphan.jsonl", testjsonl.JoinJSONL(
			testjsonl.CursorUserJSON("Where did this repo go?"),
		), base.Add(-24*time.Hour)); err != nil {
		log.Fatalf("creating orphan fixture: %v", err)
	}

	if err := writeTrackingDB(dbPath); err != nil {
		log.Fatalf("writing tracking db: %v", err)
	}

	fmt.Printf("\nFixture tree written to %s\n", root)
	fmt.Printf("  CURSOR_PROJECTS_DIR=%s\n", projects)
	fmt.Printf("  CURSOR_TRACKING_DB=%s\n", dbPath)
}

// encodeFolder applies Cursor's project folder encoding.
func encodeFolder(path string) string {
	p := strings.TrimPrefix(filepath.ToSlash(path), "/")
	return strings.NewReplacer("/", "-", ".", "-").Replace(p)
}

func createSessionFixture(
	root string, spec sessionSpec, index int, base time.Time,
) error {
	workspace := filepath.Join(root, "fs", filepath.FromSlash(spec.workspace))
	if err := os.MkdirAll(workspace, 0o755); err != nil {
		return fmt.Errorf("creating workspace: %w", err)
	}

	var content string
	if spec.format == parser.FormatText {
		content = generateText(spec)
	} else {
		content = generateJSONL(spec)
	}
	modified := base.Add(time.Duration(index) * 24 * time.Hour)
	return writeTranscript(
		filepath.Join(root, "projects"), encodeFolder(workspace),
		spec.id+"."+string(spec.format), content, modified,
	)
}

func writeTranscript(
	projects, folder, name, content string, modified time.Time,
) error {
	dir := filepath.Join(projects, folder, parser.TranscriptsDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating transcripts dir: %w", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("writing transcript: %w", err)
	}
	return os.Chtimes(path, modified, modified)
}

func generateJSONL(spec sessionSpec) string {
	lines := make([]string, 0, spec.turns*2+spec.tools)
	for i := range spec.turns {
		lines = append(lines,
			testjsonl.CursorUserJSON(userContent(spec, i)),
			testjsonl.CursorAssistantJSON(assistantContent(i, spec.turns)),
		)
		if i < spec.tools {
			lines = append(lines, testjsonl.CursorToolUseJSON(toolName(i)))
		}
	}
	return testjsonl.JoinJSONL(lines...)
}

func generateText(spec sessionSpec) string {
	tb := testjsonl.NewTextBuilder()
	for i := range spec.turns {
		tb.User(userContent(spec, i))
		tb.Assistant(assistantContent(i, spec.turns))
		if i < spec.tools {
			tb.ToolCall(toolName(i), "path: src/main.go")
			tb.ToolResult("ok")
		}
	}
	return tb.String()
}

func toolName(i int) string {
	names := []string{"read_file", "edit_file", "run_terminal_cmd", "grep"}
	return names[i%len(names)]
}

func userContent(spec sessionSpec, idx int) string {
	if idx == 0 {
		return fmt.Sprintf("First message for %s", spec.workspace)
	}
	return fmt.Sprintf(
		"User message %d of %d. "+
			"Please help me with this task. "+
			"I need to understand how the code works.",
		idx, spec.turns,
	)
}

func assistantContent(idx, total int) string {
	return fmt.Sprintf(
		"Assistant response %d of %d. "+
			"Here is my analysis of the code. "+
			"The implementation follows standard patterns "+
			"and uses well-known libraries. "+
			"Let me explain the key components.",
		idx, total,
	)
}

func writeTrackingDB(path string) error {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return err
	}
	defer db.Close()

	if _, err := db.Exec(trackingSchema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	n := 0
	for _, spec := range specs {
		if spec.model == "" {
			continue
		}
		for range spec.edits {
			n++
			if _, err := tx.Exec(
				`INSERT INTO ai_code_hashes
				 (hash, source, conversationId, model)
				 VALUES (?, 'composer', ?, ?)`,
				fmt.Sprintf("fixture-%d", n), spec.id, spec.model,
			); err != nil {
				return fmt.Errorf("inserting edit: %w", err)
			}
		}
	}
	return tx.Commit()
}
