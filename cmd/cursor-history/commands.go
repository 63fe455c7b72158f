package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/wesm/cursor-history/internal/index"
	"github.com/wesm/cursor-history/internal/logging"
	"github.com/wesm/cursor-history/internal/parser"
	"github.com/wesm/cursor-history/internal/query"
	"github.com/wesm/cursor-history/internal/timeutil"
)

const (
	defaultListLimit    = 50
	defaultPreviewLines = 10
)

func newListCommand(a *app) *cobra.Command {
	var opts query.ListOptions
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			idx, err := a.loadIndex(cmd.Context())
			if err != nil {
				return err
			}
			sessions, err := query.New(idx).List(opts)
			if err != nil {
				return err
			}
			if a.jsonOut {
				return a.writeJSON(sessions)
			}
			if len(sessions) == 0 {
				fmt.Fprintln(a.stdout, "No sessions found.")
				return nil
			}
			fmt.Fprintln(a.stdout, renderSessions(sessions))
			return nil
		},
	}
	cmd.Flags().StringVarP(&opts.Workspace, "workspace", "w", "",
		"Only sessions whose workspace path contains this text")
	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", defaultListLimit,
		"Maximum number of sessions (-1 for all)")
	return cmd
}

func newSearchCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "search QUERY",
		Short: "Search transcript text, case-insensitively",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := a.loadIndex(cmd.Context())
			if err != nil {
				return err
			}
			hits, err := query.New(idx).Search(
				cmd.Context(), strings.Join(args, " "),
			)
			if err != nil {
				return err
			}
			if a.jsonOut {
				return a.writeJSON(hits)
			}
			if len(hits) == 0 {
				fmt.Fprintln(a.stdout, "No matching sessions.")
				return nil
			}
			fmt.Fprintln(a.stdout, renderHits(hits))
			return nil
		},
	}
}

// showResult is the JSON shape of the show command.
type showResult struct {
	Session          index.Session        `json:"session"`
	Preview          []parser.PreviewLine `json:"preview"`
	PreviewTruncated bool                 `json:"preview_truncated"`
}

func newShowCommand(a *app) *cobra.Command {
	var previewLines int
	cmd := &cobra.Command{
		Use:   "show ID_PREFIX",
		Short: "Show one session by ID or unique ID prefix",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := a.loadIndex(cmd.Context())
			if err != nil {
				return err
			}
			s, err := query.New(idx).Show(args[0])
			if err != nil {
				return err
			}
			preview, truncated := parser.Preview(
				s.TranscriptPath, previewLines,
			)
			if a.jsonOut {
				if preview == nil {
					preview = []parser.PreviewLine{}
				}
				return a.writeJSON(showResult{
					Session:          s,
					Preview:          preview,
					PreviewTruncated: truncated,
				})
			}
			fmt.Fprintln(a.stdout, renderSession(s, preview, truncated))
			return nil
		},
	}
	cmd.Flags().IntVarP(&previewLines, "preview", "p", defaultPreviewLines,
		"Conversation lines to preview (0 to skip)")
	return cmd
}

func newStatsCommand(a *app) *cobra.Command {
	var topN int
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize sessions by workspace, week, and model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			idx, err := a.loadIndex(cmd.Context())
			if err != nil {
				return err
			}
			st := query.New(idx).Stats(topN)
			if a.jsonOut {
				return a.writeJSON(st)
			}
			fmt.Fprintln(a.stdout, renderStats(st))
			return nil
		},
	}
	cmd.Flags().IntVar(&topN, "top", query.DefaultTopN,
		"Number of largest sessions to list")
	return cmd
}

// indexResult is the JSON shape of the index command.
type indexResult struct {
	Path       string    `json:"path"`
	BuiltAt    time.Time `json:"built_at"`
	Sessions   int       `json:"sessions"`
	Unresolved int       `json:"unresolved"`
}

func summarize(path string, idx index.Index) indexResult {
	r := indexResult{
		Path:     path,
		BuiltAt:  idx.BuiltAt,
		Sessions: len(idx.Sessions),
	}
	for _, s := range idx.Sessions {
		if !s.Resolved {
			r.Unresolved++
		}
	}
	return r
}

func newIndexCommand(a *app) *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Rebuild the index cache",
		Long: `Rebuild the index cache now. With --watch, keep running and
rebuild whenever a transcript changes, until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			var opts []index.BuilderOption
			if !a.jsonOut && isTerminal(a.stderr) {
				opts = append(opts, index.WithProgress(a.printProgress))
			}
			c := a.cache(opts...)

			idx, err := c.Rebuild(ctx)
			if err != nil {
				return fmt.Errorf("building index: %w", err)
			}
			if err := a.report(c.Path(), idx); err != nil {
				return err
			}
			if !watch {
				return nil
			}

			if !a.jsonOut {
				fmt.Fprintln(a.stderr,
					"Watching for changes. Press Ctrl-C to stop.")
			}
			return index.WatchCache(ctx, c, index.DefaultDebounce,
				func(idx index.Index, err error) {
					if err != nil {
						logging.Warn().Err(err).Msg("rebuild failed")
						return
					}
					if err := a.report(c.Path(), idx); err != nil {
						logging.Warn().Err(err).Msg("reporting rebuild")
					}
				})
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", false,
		"Keep running and rebuild on transcript changes")
	return cmd
}

func (a *app) report(path string, idx index.Index) error {
	r := summarize(path, idx)
	if a.jsonOut {
		return a.writeJSON(r)
	}
	fmt.Fprintf(a.stdout,
		"Indexed %d sessions (%d unresolved) at %s -> %s\n",
		r.Sessions, r.Unresolved, timeutil.Display(r.BuiltAt), r.Path,
	)
	return nil
}

func (a *app) printProgress(p index.Progress) {
	switch p.Phase {
	case index.PhaseParsing:
		fmt.Fprintf(a.stderr,
			"\r  %d/%d transcripts (%.0f%%) · %d messages",
			p.Parsed, p.Total, p.Fraction()*100, p.Messages,
		)
	case index.PhaseDone:
		if p.Total > 0 {
			fmt.Fprintln(a.stderr)
		}
	}
}

// isTerminal reports whether w is a terminal. The progress line
// rewrites itself with "\r", which only makes sense there.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
