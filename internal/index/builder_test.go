package index

import (
	"context"
	"encoding/json"
	"errors"
	"maps"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesm/cursor-history/internal/parser"
	"github.com/wesm/cursor-history/internal/testjsonl"
	"github.com/wesm/cursor-history/internal/tracking"
)

func TestBuild(t *testing.T) {
	tr := newTestTree(t)
	tr.seedStandard(testBase)

	attr := tracking.FromMap(map[string]tracking.Attribution{
		"s1": {Model: "gpt-5", CodeEdits: 4},
		"s3": {CodeEdits: 2},
	})
	idx, stats, err := tr.builder(WithAttribution(attr)).
		Build(context.Background())
	require.NoError(t, err)

	assert.Equal(t, BuildStats{
		Discovered: 4, Indexed: 4, Unresolved: 1,
	}, stats)
	assert.Equal(t, Version, idx.Version)
	assert.Equal(t, []string{tr.projects}, idx.Roots)
	assert.Equal(t, []string{"s1", "s2", "s3", "s4"}, sessionIDs(idx.Sessions))

	aliceDir := filepath.Join(tr.projects, "Users-alice-app", parser.TranscriptsDirName)
	want := Session{
		ID:             "s1",
		Workspace:      filepath.Join(tr.fsRoot, "Users", "alice", "app"),
		Resolved:       true,
		Folder:         "Users-alice-app",
		Format:         parser.FormatJSONL,
		Modified:       testBase.Add(3 * time.Hour),
		Messages:       3,
		ToolCalls:      1,
		Summary:        "Fix login bug",
		TranscriptPath: filepath.Join(aliceDir, "s1.jsonl"),
		InputTokens:    3,
		OutputTokens:   4,
		Model:          ptr("gpt-5"),
		CodeEdits:      ptr(4),
	}
	got := idx.Sessions[0]
	if diff := cmp.Diff(want, got,
		cmpopts.IgnoreFields(Session{}, "Size"),
	); diff != "" {
		t.Errorf("session mismatch (-want +got):\n%s", diff)
	}
	assert.Positive(t, got.Size)

	s2 := idx.Sessions[1]
	assert.Equal(t, parser.FormatText, s2.Format)
	assert.Equal(t, "Add caching", s2.Summary)
	assert.Nil(t, s2.Model)
	assert.Nil(t, s2.CodeEdits)

	s3 := idx.Sessions[2]
	assert.Nil(t, s3.Model, "attribution without a model name")
	assert.Equal(t, ptr(2), s3.CodeEdits)

	s4 := idx.Sessions[3]
	assert.False(t, s4.Resolved)
	assert.Equal(t, "Users-ghost-gone", s4.Workspace)

	assert.Contains(t, idx.Watched, tr.projects)
	assert.Contains(t, idx.Watched, aliceDir)
	assert.Contains(t, idx.Watched, filepath.Join(tr.projects, "Users-alice-app"))
}

func TestBuildEmpty(t *testing.T) {
	tr := newTestTree(t)
	idx, stats, err := tr.builder().Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, BuildStats{}, stats)
	assert.NotNil(t, idx.Sessions)
	assert.Empty(t, idx.Sessions)

	missing := NewBuilder([]string{filepath.Join(t.TempDir(), "nope")})
	idx, _, err = missing.Build(context.Background())
	require.NoError(t, err)
	assert.Empty(t, idx.Sessions)
	assert.Empty(t, idx.Watched)
}

func TestBuildIsDeterministic(t *testing.T) {
	tr := newTestTree(t)
	tr.seedStandard(testBase)
	// Same mtime, distinct IDs: ordered by ID.
	tr.transcript("Users-bob-api", "a.jsonl", "{}\n", testBase)
	tr.transcript("Users-bob-api", "b.jsonl", "{}\n", testBase)

	clock := func() time.Time { return testBase }
	idx1, _, err := tr.builder(WithWorkers(1), WithClock(clock)).
		Build(context.Background())
	require.NoError(t, err)
	idx2, _, err := tr.builder(WithWorkers(8), WithClock(clock)).
		Build(context.Background())
	require.NoError(t, err)

	j1, err := json.Marshal(idx1)
	require.NoError(t, err)
	j2, err := json.Marshal(idx2)
	require.NoError(t, err)
	assert.JSONEq(t, string(j1), string(j2))

	assert.Equal(t,
		[]string{"s1", "s2", "s3", "a", "b", "s4"},
		sessionIDs(idx1.Sessions),
	)
}

func TestBuildDuplicates(t *testing.T) {
	tests := []struct {
		name     string
		jsonlAt  time.Duration
		txtAt    time.Duration
		wantFmt  parser.Format
		wantFrom string
	}{
		{"newer text wins", 0, time.Minute, parser.FormatText, "b"},
		{"newer jsonl wins", time.Minute, 0, parser.FormatJSONL, "a"},
		{"tie prefers jsonl", 0, 0, parser.FormatJSONL, "a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := newTestTree(t)
			tr.transcript("a", "dup.jsonl", testjsonl.JoinJSONL(
				testjsonl.CursorUserJSON("from jsonl"),
			), testBase.Add(tt.jsonlAt))
			tr.transcript("b", "dup.txt", "user:\nfrom txt\n",
				testBase.Add(tt.txtAt))

			idx, stats, err := tr.builder().Build(context.Background())
			require.NoError(t, err)
			require.Len(t, idx.Sessions, 1)
			assert.Equal(t, 1, stats.Duplicates)
			assert.Equal(t, 2, stats.Discovered)
			assert.Equal(t, tt.wantFmt, idx.Sessions[0].Format)
			assert.Equal(t, tt.wantFrom, idx.Sessions[0].Folder)
		})
	}

	t.Run("tie same format prefers smaller path", func(t *testing.T) {
		tr := newTestTree(t)
		tr.transcript("zz", "dup.jsonl", "{}\n", testBase)
		tr.transcript("aa", "dup.jsonl", "{}\n", testBase)

		idx, _, err := tr.builder().Build(context.Background())
		require.NoError(t, err)
		require.Len(t, idx.Sessions, 1)
		assert.Equal(t, "aa", idx.Sessions[0].Folder)
	})
}

func TestBuildCancelled(t *testing.T) {
	tr := newTestTree(t)
	tr.seedStandard(testBase)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := tr.builder().Build(ctx)
	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
}

func TestBuildProgress(t *testing.T) {
	tr := newTestTree(t)
	tr.seedStandard(testBase)

	var updates []Progress
	_, _, err := tr.builder(WithProgress(func(p Progress) {
		updates = append(updates, p)
	})).Build(context.Background())
	require.NoError(t, err)

	require.NotEmpty(t, updates)
	assert.Equal(t, PhaseDiscovering, updates[0].Phase)
	last := updates[len(updates)-1]
	assert.Equal(t, PhaseDone, last.Phase)
	assert.Equal(t, 4, last.Total)
	assert.Equal(t, 4, last.Parsed)
	assert.Zero(t, last.Skipped)
	assert.Equal(t, 3+2+1+1, last.Messages)
}

func TestProcessFileMissing(t *testing.T) {
	job := processFile(parser.DiscoveredFile{
		Path:   filepath.Join(t.TempDir(), "gone.jsonl"),
		Folder: "x",
		Format: parser.FormatJSONL,
	}, parser.Workspace{Path: "x"})
	assert.Error(t, job.err)
}

func TestNewBuilderCleansRoots(t *testing.T) {
	b := NewBuilder([]string{"", "/a/b/", "/c/../d"})
	assert.Equal(t,
		[]string{filepath.Clean("/a/b"), filepath.Clean("/d")},
		b.Roots(),
	)
}

func TestBuildReopensAttribution(t *testing.T) {
	tr := newTestTree(t)
	tr.seedStandard(testBase)

	rows := map[string]tracking.Attribution{}
	opens := 0
	b := tr.builder(WithAttributionSource(func(context.Context) Attributor {
		opens++
		return tracking.FromMap(maps.Clone(rows))
	}))
	ctx := context.Background()

	idx, _, err := b.Build(ctx)
	require.NoError(t, err)
	assert.Nil(t, idx.Sessions[0].Model)

	// Rows written after the first build must show up in the next.
	rows["s1"] = tracking.Attribution{Model: "gpt-5", CodeEdits: 1}
	idx, _, err = b.Build(ctx)
	require.NoError(t, err)
	assert.Equal(t, "s1", idx.Sessions[0].ID)
	assert.Equal(t, ptr("gpt-5"), idx.Sessions[0].Model)
	assert.Equal(t, ptr(1), idx.Sessions[0].CodeEdits)
	assert.Equal(t, 2, opens)
}

func TestBuildSkipsAttributionWithoutSessions(t *testing.T) {
	tr := newTestTree(t)
	opened := false
	_, _, err := tr.builder(WithAttributionSource(
		func(context.Context) Attributor {
			opened = true
			return nil
		},
	)).Build(context.Background())
	require.NoError(t, err)
	assert.False(t, opened)
}
