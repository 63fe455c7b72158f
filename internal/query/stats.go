package query

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"github.com/wesm/cursor-history/internal/index"
	"github.com/wesm/cursor-history/internal/timeutil"
)

// DefaultTopN is the usual size of the top-sessions list.
const DefaultTopN = 5

// Stats aggregates an index.
type Stats struct {
	Sessions     int   `json:"sessions"`
	Messages     int   `json:"messages"`
	ToolCalls    int   `json:"tool_calls"`
	Bytes        int64 `json:"bytes"`
	InputTokens  int   `json:"input_tokens"`
	OutputTokens int   `json:"output_tokens"`
	CodeEdits    int   `json:"code_edits"`
	Unresolved   int   `json:"unresolved"`

	Workspaces []WorkspaceStats `json:"workspaces"`
	Weeks      []WeekBucket     `json:"weeks"`
	Models     []ModelCount     `json:"models"`
	Top        []index.Session  `json:"top"`
}

// WorkspaceStats groups sessions by workspace.
type WorkspaceStats struct {
	Workspace string `json:"workspace"`
	Resolved  bool   `json:"resolved"`
	Sessions  int    `json:"sessions"`
	Messages  int    `json:"messages"`
}

// WeekBucket counts activity in one ISO week, in UTC.
type WeekBucket struct {
	Week     string    `json:"week"`
	Start    time.Time `json:"start"`
	Sessions int       `json:"sessions"`
	Messages int       `json:"messages"`
}

// ModelCount counts attributed sessions per model.
type ModelCount struct {
	Model     string `json:"model"`
	Sessions  int    `json:"sessions"`
	CodeEdits int    `json:"code_edits"`
}

// Stats computes totals, per-workspace groups ordered by
// message count, weekly buckets in ascending order, per-model
// counts, and the topN sessions by message count. A topN below
// one leaves Top empty.
func (e *Engine) Stats(topN int) Stats {
	st := Stats{
		Workspaces: []WorkspaceStats{},
		Weeks:      []WeekBucket{},
		Models:     []ModelCount{},
		Top:        []index.Session{},
	}

	byWorkspace := map[string]*WorkspaceStats{}
	byWeek := map[time.Time]*WeekBucket{}
	byModel := map[string]*ModelCount{}

	for _, s := range e.idx.Sessions {
		st.Sessions++
		st.Messages += s.Messages
		st.ToolCalls += s.ToolCalls
		st.Bytes += s.Size
		st.InputTokens += s.InputTokens
		st.OutputTokens += s.OutputTokens
		if s.CodeEdits != nil {
			st.CodeEdits += *s.CodeEdits
		}
		if !s.Resolved {
			st.Unresolved++
		}

		ws, ok := byWorkspace[s.Workspace]
		if !ok {
			ws = &WorkspaceStats{
				Workspace: s.Workspace, Resolved: s.Resolved,
			}
			byWorkspace[s.Workspace] = ws
		}
		ws.Sessions++
		ws.Messages += s.Messages

		mod := s.Modified.UTC()
		start := timeutil.WeekStart(mod)
		wk, ok := byWeek[start]
		if !ok {
			wk = &WeekBucket{
				Week: timeutil.WeekLabel(mod), Start: start,
			}
			byWeek[start] = wk
		}
		wk.Sessions++
		wk.Messages += s.Messages

		if name := s.ModelName(); name != "" {
			mc, ok := byModel[name]
			if !ok {
				mc = &ModelCount{Model: name}
				byModel[name] = mc
			}
			mc.Sessions++
			if s.CodeEdits != nil {
				mc.CodeEdits += *s.CodeEdits
			}
		}
	}

	for _, ws := range byWorkspace {
		st.Workspaces = append(st.Workspaces, *ws)
	}
	slices.SortFunc(st.Workspaces, func(a, b WorkspaceStats) int {
		if c := cmp.Compare(b.Messages, a.Messages); c != 0 {
			return c
		}
		return strings.Compare(a.Workspace, b.Workspace)
	})

	for _, wk := range byWeek {
		st.Weeks = append(st.Weeks, *wk)
	}
	slices.SortFunc(st.Weeks, func(a, b WeekBucket) int {
		return a.Start.Compare(b.Start)
	})

	for _, mc := range byModel {
		st.Models = append(st.Models, *mc)
	}
	slices.SortFunc(st.Models, func(a, b ModelCount) int {
		if c := cmp.Compare(b.Sessions, a.Sessions); c != 0 {
			return c
		}
		return strings.Compare(a.Model, b.Model)
	})

	if topN > 0 {
		top := slices.Clone(e.idx.Sessions)
		slices.SortStableFunc(top, func(a, b index.Session) int {
			return cmp.Compare(b.Messages, a.Messages)
		})
		st.Top = append(st.Top, top[:min(topN, len(top))]...)
	}
	return st
}
