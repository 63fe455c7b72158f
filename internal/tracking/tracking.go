// Package tracking reads model attribution from Cursor's AI code
// tracking database. Cursor logs one ai_code_hashes row per code
// edit, tagged with the conversation and the model that made it.
package tracking

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/wesm/cursor-history/internal/logging"
)

// DefaultPath returns the tracking database location under the
// user's home directory, or "" if the home directory is unknown.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(
		home, ".cursor", "ai-tracking", "ai-code-tracking.db",
	)
}

const attributionQuery = `
	SELECT conversationId, model, COUNT(*) AS edits
	FROM ai_code_hashes
	WHERE conversationId IS NOT NULL
	GROUP BY conversationId, model
	ORDER BY edits DESC, model`

// Attribution is the tracking data for one conversation.
type Attribution struct {
	// Model is the named model with the most edits. Empty when
	// no row for the conversation names a model.
	Model string
	// CodeEdits sums edits across all models.
	CodeEdits int
}

// Store is an in-memory snapshot of per-conversation
// attribution. A nil *Store is a valid empty store.
type Store struct {
	byID map[string]Attribution
}

// Open loads attribution from the database at dbPath, read-only.
// A missing, locked, or foreign database yields an empty store;
// the problem is logged, never returned.
func Open(ctx context.Context, dbPath string) *Store {
	s := &Store{byID: map[string]Attribution{}}
	if dbPath == "" {
		return s
	}
	if _, err := os.Stat(dbPath); err != nil {
		logging.Debug().Err(err).Str("db", dbPath).
			Msg("tracking db unavailable")
		return s
	}

	db, err := openTrackingDB(dbPath)
	if err != nil {
		logging.Warn().Err(err).Msg("tracking db skipped")
		return s
	}
	defer db.Close()

	byID, err := loadAttribution(ctx, db)
	if err != nil {
		logging.Warn().Err(err).Str("db", dbPath).
			Msg("tracking db skipped")
		return s
	}
	s.byID = byID
	logging.Debug().Int("conversations", len(byID)).
		Str("db", dbPath).Msg("loaded tracking db")
	return s
}

// FromMap builds a Store from prepared attributions.
func FromMap(m map[string]Attribution) *Store {
	byID := make(map[string]Attribution, len(m))
	for k, v := range m {
		byID[k] = v
	}
	return &Store{byID: byID}
}

// Lookup returns the attribution for a conversation ID.
func (s *Store) Lookup(id string) (Attribution, bool) {
	if s == nil {
		return Attribution{}, false
	}
	a, ok := s.byID[id]
	return a, ok
}

// Len returns the number of attributed conversations.
func (s *Store) Len() int {
	if s == nil {
		return 0
	}
	return len(s.byID)
}

func openTrackingDB(dbPath string) (*sql.DB, error) {
	// The file: prefix makes the driver honor mode=ro.
	dsn := "file:" + dbPath +
		"?mode=ro&_busy_timeout=2000"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf(
			"opening tracking db %s: %w", dbPath, err,
		)
	}
	return db, nil
}

func loadAttribution(
	ctx context.Context, db *sql.DB,
) (map[string]Attribution, error) {
	rows, err := db.QueryContext(ctx, attributionQuery)
	if err != nil {
		return nil, fmt.Errorf("querying ai_code_hashes: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]Attribution)
	for rows.Next() {
		var (
			id    string
			model sql.NullString
			edits int
		)
		if err := rows.Scan(&id, &model, &edits); err != nil {
			return nil, fmt.Errorf("scanning ai_code_hashes: %w", err)
		}
		// Rows arrive by edit count, so the first model seen
		// for a conversation is its top model.
		a, seen := byID[id]
		if !seen || (a.Model == "" && model.Valid) {
			a.Model = model.String
		}
		a.CodeEdits += edits
		byID[id] = a
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading ai_code_hashes: %w", err)
	}
	return byID, nil
}
