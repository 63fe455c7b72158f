package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/wesm/cursor-history/internal/config"
	"github.com/wesm/cursor-history/internal/index"
	"github.com/wesm/cursor-history/internal/logging"
	"github.com/wesm/cursor-history/internal/tracking"
)

// app carries the state shared by every subcommand.
type app struct {
	stdout io.Writer
	stderr io.Writer

	rebuild bool
	jsonOut bool
	cfg     config.Config
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:   "cursor-history",
		Short: "Browse and search Cursor agent sessions",
		Long: `cursor-history indexes the agent transcripts Cursor keeps under
~/.cursor/projects and answers list, search, show, and stats queries
from a cached index that is rebuilt when transcripts change.

Environment variables:
  CURSOR_PROJECTS_DIR       Cursor projects directory
  CURSOR_HISTORY_DATA_DIR   Data directory (config.json, index cache)
  CURSOR_HISTORY_CACHE      Index cache file
  CURSOR_TRACKING_DB        Cursor AI code tracking database
  CURSOR_HISTORY_TTL        Maximum cache age, e.g. 10m (0 disables)
  CURSOR_HISTORY_LOG_LEVEL  debug, info, warn, error, or off`,
		Version: fmt.Sprintf(
			"%s (commit %s, built %s)", version, commit, buildDate,
		),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.loadConfig(cmd.Flags())
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.BoolVar(&a.rebuild, "rebuild", false,
		"Rebuild the index before answering")
	pf.BoolVar(&a.jsonOut, "json", false,
		"Print results as indented JSON")
	config.RegisterFlags(pf)

	root.AddCommand(
		newListCommand(a),
		newSearchCommand(a),
		newShowCommand(a),
		newStatsCommand(a),
		newIndexCommand(a),
	)
	return root
}

func (a *app) loadConfig(fs *pflag.FlagSet) error {
	cfg, err := config.Load(fs)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logging.SetLevel(cfg.LogLevel)
	a.cfg = cfg
	return nil
}

// cache wires the configured roots, tracking DB, and cache file.
func (a *app) cache(opts ...index.BuilderOption) *index.Cache {
	opts = append([]index.BuilderOption{
		index.WithAttributionSource(a.openTracking),
	}, opts...)
	builder := index.NewBuilder(a.cfg.ProjectsDirs, opts...)
	return index.NewCache(a.cfg.CachePath, builder, a.cfg.TTL)
}

// loadIndex returns the cached index, rebuilding it when stale
// or when --rebuild was given.
func (a *app) loadIndex(ctx context.Context) (index.Index, error) {
	c := a.cache()
	var (
		idx index.Index
		err error
	)
	if a.rebuild {
		idx, err = c.Rebuild(ctx)
	} else {
		idx, _, err = c.LoadOrBuild(ctx)
	}
	// A built index that could not be saved is still usable.
	if err != nil {
		if idx.Version != index.Version {
			return index.Index{}, fmt.Errorf("loading index: %w", err)
		}
		logging.Warn().Err(err).Msg("index cache not saved")
	}
	return idx, nil
}

func (a *app) writeJSON(v any) error {
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}
	return nil
}

// openTracking reads the tracking DB. Builds call it once each,
// so a fresh cache never touches the DB and a watch rebuild sees
// rows written since the last one.
func (a *app) openTracking(ctx context.Context) index.Attributor {
	return tracking.Open(ctx, a.cfg.TrackingDB)
}
