package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProgressFraction(t *testing.T) {
	tests := []struct {
		name      string
		p         Progress
		fraction  float64
		remaining int
	}{
		{"before discovery", Progress{Phase: PhaseDiscovering}, 0, 0},
		{"nothing parsed", Progress{Total: 8}, 0, 8},
		{"partly parsed", Progress{Total: 8, Parsed: 2}, 0.25, 6},
		{"skips count as handled", Progress{Total: 3, Parsed: 3, Skipped: 1}, 1, 0},
		{"overshoot is clamped", Progress{Total: 2, Parsed: 5}, 1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.fraction, tt.p.Fraction(), 1e-9)
			assert.Equal(t, tt.remaining, tt.p.Remaining())
		})
	}
}

func TestProgressCounters(t *testing.T) {
	p := Progress{Phase: PhaseParsing, Total: 3}
	p.parsed(Session{ID: "a", Messages: 4})
	p.skipped()
	p.parsed(Session{ID: "b", Messages: 1})

	assert.Equal(t, Progress{
		Phase: PhaseParsing, Total: 3, Parsed: 3, Skipped: 1, Messages: 5,
	}, p)
	assert.Zero(t, p.Remaining())
}

func TestBuildStatsDropped(t *testing.T) {
	s := BuildStats{Discovered: 7, Indexed: 4, Duplicates: 2, Failed: 1}
	assert.Equal(t, 3, s.Dropped())
	assert.Equal(t, s.Discovered, s.Indexed+s.Dropped())
	assert.Zero(t, BuildStats{}.Dropped())
}
