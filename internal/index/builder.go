package index

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/wesm/cursor-history/internal/logging"
	"github.com/wesm/cursor-history/internal/parser"
	"github.com/wesm/cursor-history/internal/tracking"
)

const maxWorkers = 8

// Attributor supplies model attribution by session ID.
// *tracking.Store implements it.
type Attributor interface {
	Lookup(id string) (tracking.Attribution, bool)
}

// Builder produces an Index from one or more Cursor projects
// roots. A Builder holds no state between builds.
type Builder struct {
	roots        []string
	resolverRoot string
	workers      int
	openAttr     AttributionSource
	now          func() time.Time
	onProgress   ProgressFunc
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// AttributionSource opens the attribution used by one build.
// It is called once per Build that has sessions to attribute,
// so rows added between builds are seen.
type AttributionSource func(ctx context.Context) Attributor

// WithAttribution merges model and code-edit attribution into
// every record whose ID a is able to look up. The same a serves
// every build.
func WithAttribution(a Attributor) BuilderOption {
	return WithAttributionSource(func(context.Context) Attributor { return a })
}

// WithAttributionSource is like WithAttribution but reopens the
// attribution for each build.
func WithAttributionSource(open AttributionSource) BuilderOption {
	return func(b *Builder) { b.openAttr = open }
}

// WithResolverRoot sets the directory encoded folder names are
// resolved against. Defaults to the filesystem root.
func WithResolverRoot(root string) BuilderOption {
	return func(b *Builder) { b.resolverRoot = root }
}

// WithWorkers sets the parse worker count. Values below 1 keep
// the default.
func WithWorkers(n int) BuilderOption {
	return func(b *Builder) {
		if n > 0 {
			b.workers = n
		}
	}
}

// WithClock overrides the clock used for BuiltAt.
func WithClock(now func() time.Time) BuilderOption {
	return func(b *Builder) { b.now = now }
}

// WithProgress registers a progress callback. It is invoked
// from the goroutine running Build.
func WithProgress(fn ProgressFunc) BuilderOption {
	return func(b *Builder) { b.onProgress = fn }
}

// NewBuilder creates a Builder for the given projects roots.
// Empty roots are ignored; the rest are cleaned.
func NewBuilder(roots []string, opts ...BuilderOption) *Builder {
	b := &Builder{
		workers: min(max(runtime.NumCPU(), 2), maxWorkers),
		now:     time.Now,
	}
	for _, r := range roots {
		if r != "" {
			b.roots = append(b.roots, filepath.Clean(r))
		}
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Roots returns the cleaned projects roots.
func (b *Builder) Roots() []string {
	return append([]string(nil), b.roots...)
}

type buildJob struct {
	sess Session
	err  error
}

// Build discovers, parses, and merges every transcript under the
// builder's roots. Problems with individual files are counted in
// BuildStats and logged, never returned; the only error is
// cancellation of ctx.
func (b *Builder) Build(ctx context.Context) (Index, BuildStats, error) {
	// Taken before discovery: a change racing the build must
	// leave the result stale.
	builtAt := b.now().UTC()
	t0 := time.Now()

	b.progress(Progress{Phase: PhaseDiscovering})

	idx := Index{
		Version:  Version,
		BuiltAt:  builtAt,
		Roots:    b.Roots(),
		Watched:  make(map[string]time.Time),
		Sessions: []Session{},
	}

	var files []parser.DiscoveredFile
	for _, root := range b.roots {
		d := parser.DiscoverCursorSessions(root)
		b.watch(idx.Watched, root)
		for _, dir := range d.ProjectDirs {
			b.watch(idx.Watched, dir)
		}
		for _, dir := range d.TranscriptDirs {
			b.watch(idx.Watched, dir)
		}
		files = append(files, d.Files...)
	}

	var stats BuildStats
	stats.Discovered = len(files)
	logging.Debug().
		Int("files", len(files)).
		Int("roots", len(b.roots)).
		Dur("took", time.Since(t0).Round(time.Millisecond)).
		Msg("discovery finished")

	workspaces := b.resolveFolders(files)

	results := b.startWorkers(ctx, files, workspaces)
	sessions := b.collect(results, len(files), &stats)
	if err := ctx.Err(); err != nil {
		return Index{}, stats, fmt.Errorf("building index: %w", err)
	}

	sessions, stats.Duplicates = dedupe(sessions)

	attr := b.attribution(ctx, len(sessions))
	for i := range sessions {
		attribute(attr, &sessions[i])
		if !sessions[i].Resolved {
			stats.Unresolved++
		}
	}
	sortSessions(sessions)
	idx.Sessions = append(idx.Sessions, sessions...)
	stats.Indexed = len(idx.Sessions)

	logging.Info().
		Int("discovered", stats.Discovered).
		Int("indexed", stats.Indexed).
		Int("duplicates", stats.Duplicates).
		Int("unresolved", stats.Unresolved).
		Int("failed", stats.Failed).
		Int("dropped", stats.Dropped()).
		Dur("took", time.Since(t0).Round(time.Millisecond)).
		Msg("index built")
	return idx, stats, nil
}

func (b *Builder) progress(p Progress) {
	if b.onProgress != nil {
		b.onProgress(p)
	}
}

// watch records the mtime of dir if it can be stat'ed.
func (b *Builder) watch(watched map[string]time.Time, dir string) {
	info, err := os.Stat(dir)
	if err != nil {
		return
	}
	watched[dir] = info.ModTime().UTC()
}

// resolveFolders resolves each distinct encoded folder once with
// a single memoizing Resolver.
func (b *Builder) resolveFolders(
	files []parser.DiscoveredFile,
) map[string]parser.Workspace {
	resolver := parser.NewResolver(b.resolverRoot)
	out := make(map[string]parser.Workspace)
	for _, f := range files {
		if _, ok := out[f.Folder]; ok {
			continue
		}
		ws := resolver.Resolve(f.Folder)
		if !ws.Resolved {
			logging.Debug().Str("folder", f.Folder).
				Msg("workspace not resolved")
		}
		out[f.Folder] = ws
	}
	return out
}

// startWorkers fans out file processing across a worker pool
// and returns a channel of results.
func (b *Builder) startWorkers(
	ctx context.Context,
	files []parser.DiscoveredFile,
	workspaces map[string]parser.Workspace,
) <-chan buildJob {
	jobs := make(chan parser.DiscoveredFile, len(files))
	results := make(chan buildJob, len(files))

	for range b.workers {
		go func() {
			for file := range jobs {
				if err := ctx.Err(); err != nil {
					results <- buildJob{err: err}
					continue
				}
				results <- processFile(file, workspaces[file.Folder])
			}
		}()
	}

	for _, f := range files {
		jobs <- f
	}
	close(jobs)
	return results
}

// collect drains the results channel.
func (b *Builder) collect(
	results <-chan buildJob, total int, stats *BuildStats,
) []Session {
	progress := Progress{Phase: PhaseParsing, Total: total}
	b.progress(progress)

	sessions := make([]Session, 0, total)
	for range total {
		r := <-results
		switch {
		case r.err == nil:
			progress.parsed(r.sess)
			sessions = append(sessions, r.sess)
		case errors.Is(r.err, context.Canceled),
			errors.Is(r.err, context.DeadlineExceeded):
			progress.skipped()
		default:
			progress.skipped()
			stats.Failed++
			logging.Warn().Err(r.err).Msg("transcript skipped")
		}
		b.progress(progress)
	}

	progress.Phase = PhaseDone
	b.progress(progress)
	return sessions
}

func processFile(
	file parser.DiscoveredFile, ws parser.Workspace,
) buildJob {
	info, err := os.Stat(file.Path)
	if err != nil {
		return buildJob{
			err: fmt.Errorf("stat %s: %w", file.Path, err),
		}
	}

	t := parser.ParseTranscript(file.Path)
	return buildJob{sess: Session{
		ID:             parser.SessionIDFromPath(file.Path),
		Workspace:      ws.Path,
		Resolved:       ws.Resolved,
		Folder:         file.Folder,
		Format:         file.Format,
		Modified:       info.ModTime().UTC(),
		Messages:       t.Messages,
		ToolCalls:      t.ToolCalls,
		Summary:        t.Summary,
		Size:           info.Size(),
		TranscriptPath: file.Path,
		InputTokens:    t.InputTokens,
		OutputTokens:   t.OutputTokens,
	}}
}

func (b *Builder) attribution(ctx context.Context, sessions int) Attributor {
	if b.openAttr == nil || sessions == 0 {
		return nil
	}
	return b.openAttr(ctx)
}

func attribute(attr Attributor, s *Session) {
	if attr == nil {
		return
	}
	a, ok := attr.Lookup(s.ID)
	if !ok {
		return
	}
	if a.Model != "" {
		model := a.Model
		s.Model = &model
	}
	edits := a.CodeEdits
	s.CodeEdits = &edits
}

// dedupe keeps one record per session ID and reports how many
// were dropped. The newest transcript wins; on equal mtimes the
// structured format is preferred, then the smaller path.
func dedupe(sessions []Session) ([]Session, int) {
	best := make(map[string]int, len(sessions))
	out := make([]Session, 0, len(sessions))
	dropped := 0
	for _, s := range sessions {
		i, seen := best[s.ID]
		if !seen {
			best[s.ID] = len(out)
			out = append(out, s)
			continue
		}
		dropped++
		if preferred(s, out[i]) {
			out[i] = s
		}
	}
	return out, dropped
}

// preferred reports whether a should replace b.
func preferred(a, b Session) bool {
	if !a.Modified.Equal(b.Modified) {
		return a.Modified.After(b.Modified)
	}
	if a.Format != b.Format {
		return a.Format == parser.FormatJSONL
	}
	return a.TranscriptPath < b.TranscriptPath
}
