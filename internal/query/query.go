// Package query answers list, search, show, and stats requests
// over a loaded index. Every operation is a read; the index is
// never modified.
package query

import (
	"errors"
	"fmt"
	"strings"

	"github.com/wesm/cursor-history/internal/index"
)

// NoLimit asks List for every matching record.
const NoLimit = -1

var (
	// ErrNotFound is returned when no session matches.
	ErrNotFound = errors.New("session not found")
	// ErrAmbiguous is returned when a prefix matches more than
	// one session. The concrete error is *AmbiguousError.
	ErrAmbiguous = errors.New("ambiguous session prefix")
	// ErrInvalidFilter is returned for malformed query
	// arguments.
	ErrInvalidFilter = errors.New("invalid filter")
)

// AmbiguousError lists the sessions an ID prefix matched.
type AmbiguousError struct {
	Prefix  string
	Matches []index.Session
}

func (e *AmbiguousError) Error() string {
	ids := make([]string, len(e.Matches))
	for i, s := range e.Matches {
		ids[i] = s.ID
	}
	return fmt.Sprintf(
		"%v: %q matches %d sessions (%s)",
		ErrAmbiguous, e.Prefix, len(e.Matches),
		strings.Join(ids, ", "),
	)
}

func (e *AmbiguousError) Is(target error) bool {
	return target == ErrAmbiguous
}

// Engine serves queries over one index snapshot.
type Engine struct {
	idx index.Index
}

// New returns an Engine over idx.
func New(idx index.Index) *Engine {
	return &Engine{idx: idx}
}

// ListOptions filters List results.
type ListOptions struct {
	// Workspace is a case-insensitive substring of the
	// workspace path. Empty matches everything.
	Workspace string
	// Limit caps the result. 0 returns nothing and NoLimit
	// returns every match.
	Limit int
}

// List returns sessions in index order, newest first.
func (e *Engine) List(opts ListOptions) ([]index.Session, error) {
	if opts.Limit < NoLimit {
		return nil, fmt.Errorf(
			"%w: limit %d", ErrInvalidFilter, opts.Limit,
		)
	}
	out := []index.Session{}
	if opts.Limit == 0 {
		return out, nil
	}

	needle := strings.ToLower(opts.Workspace)
	for _, s := range e.idx.Sessions {
		if needle != "" &&
			!strings.Contains(strings.ToLower(s.Workspace), needle) {
			continue
		}
		out = append(out, s)
		if opts.Limit != NoLimit && len(out) == opts.Limit {
			break
		}
	}
	return out, nil
}

// Show returns the session whose ID equals prefix, or else the
// only session whose ID starts with it.
func (e *Engine) Show(prefix string) (index.Session, error) {
	if prefix == "" {
		return index.Session{}, fmt.Errorf(
			"%w: empty session prefix", ErrInvalidFilter,
		)
	}

	var matches []index.Session
	for _, s := range e.idx.Sessions {
		if s.ID == prefix {
			return s, nil
		}
		if strings.HasPrefix(s.ID, prefix) {
			matches = append(matches, s)
		}
	}

	switch len(matches) {
	case 0:
		return index.Session{}, fmt.Errorf(
			"%w: %q", ErrNotFound, prefix,
		)
	case 1:
		return matches[0], nil
	default:
		return index.Session{}, &AmbiguousError{
			Prefix: prefix, Matches: matches,
		}
	}
}
