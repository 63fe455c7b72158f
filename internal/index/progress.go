package index

// Phase names the stage a build is in.
type Phase string

const (
	PhaseDiscovering Phase = "discovering"
	PhaseParsing     Phase = "parsing"
	PhaseDone        Phase = "done"
)

// Progress is a snapshot of a running build. Total is zero
// until discovery has finished.
type Progress struct {
	Phase    Phase `json:"phase"`
	Total    int   `json:"total"`
	Parsed   int   `json:"parsed"`
	Skipped  int   `json:"skipped"`
	Messages int   `json:"messages"`
}

// Fraction returns the share of discovered transcripts handled
// so far, in [0, 1]. Skipped files count as handled.
func (p Progress) Fraction() float64 {
	if p.Total <= 0 {
		return 0
	}
	return min(float64(p.Parsed)/float64(p.Total), 1)
}

// Remaining returns how many transcripts are still queued.
func (p Progress) Remaining() int {
	return max(p.Total-p.Parsed, 0)
}

func (p *Progress) parsed(sess Session) {
	p.Parsed++
	p.Messages += sess.Messages
}

func (p *Progress) skipped() {
	p.Parsed++
	p.Skipped++
}

// ProgressFunc receives progress snapshots. It is called from
// the building goroutine and must not block for long.
type ProgressFunc func(Progress)

// BuildStats summarizes one build.
//
// Discovered counts transcript files found on disk and Indexed
// the records in the result. Duplicates are files dropped in
// favor of another file with the same session ID; Failed are
// files that vanished or could not be read after discovery.
type BuildStats struct {
	Discovered int `json:"discovered"`
	Indexed    int `json:"indexed"`
	Duplicates int `json:"duplicates"`
	Unresolved int `json:"unresolved"`
	Failed     int `json:"failed"`
}

// Dropped returns how many discovered files did not make it
// into the index.
func (s BuildStats) Dropped() int {
	return s.Duplicates + s.Failed
}
