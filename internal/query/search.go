package query

import (
	"context"
	"fmt"
	"runtime"
	"sort"

	"github.com/wesm/cursor-history/internal/index"
	"github.com/wesm/cursor-history/internal/parser"
)

const maxSearchWorkers = 8

// Hit is a session whose transcript contains the query.
type Hit struct {
	Session index.Session `json:"session"`
	Matches int           `json:"matches"`
}

type searchJob struct {
	pos     int
	matches int
}

// Search scans every transcript for q, case-insensitively, and
// returns the sessions that contain it ordered by match count,
// then index order. An empty query, or one that matches
// nothing, yields an empty result.
func (e *Engine) Search(ctx context.Context, q string) ([]Hit, error) {
	hits := []Hit{}
	if q == "" || len(e.idx.Sessions) == 0 {
		return hits, nil
	}

	sessions := e.idx.Sessions
	workers := min(max(runtime.NumCPU(), 2), maxSearchWorkers)
	jobs := make(chan int, len(sessions))
	results := make(chan searchJob, len(sessions))

	for range workers {
		go func() {
			for pos := range jobs {
				if ctx.Err() != nil {
					results <- searchJob{pos: pos}
					continue
				}
				results <- searchJob{
					pos: pos,
					matches: parser.CountMatches(
						sessions[pos].TranscriptPath, q,
					),
				}
			}
		}()
	}
	for i := range sessions {
		jobs <- i
	}
	close(jobs)

	counts := make([]int, len(sessions))
	for range sessions {
		r := <-results
		counts[r.pos] = r.matches
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("searching: %w", err)
	}

	for i, n := range counts {
		if n > 0 {
			hits = append(hits, Hit{Session: sessions[i], Matches: n})
		}
	}
	// Stable keeps index order among equal counts.
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Matches > hits[j].Matches
	})
	return hits, nil
}
