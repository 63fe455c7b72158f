package parser

import (
	"bufio"
	"io"
	"iter"
)

const (
	readBufSize = 64 * 1024
	maxLineSize = 16 * 1024 * 1024
)

// lineReader yields the non-blank lines of a transcript. Lines
// longer than maxLen are dropped and counted instead of failing
// the whole file.
type lineReader struct {
	br        *bufio.Reader
	maxLen    int
	pending   []byte
	lineNo    int
	oversized int
	err       error
}

func newLineReader(r io.Reader, maxLen int) *lineReader {
	return &lineReader{
		br:     bufio.NewReaderSize(r, readBufSize),
		maxLen: maxLen,
	}
}

// lines yields each non-blank line with its 1-based line
// number. Iteration ends at EOF or on the first read error,
// which Err reports.
func (lr *lineReader) lines() iter.Seq2[int, string] {
	return func(yield func(int, string) bool) {
		for {
			line, fits, err := lr.readLine()
			if err != nil {
				if err != io.EOF {
					lr.err = err
				}
				return
			}
			lr.lineNo++
			if !fits {
				lr.oversized++
				continue
			}
			if len(line) == 0 {
				continue
			}
			if !yield(lr.lineNo, string(line)) {
				return
			}
		}
	}
}

// readLine returns the next line without its terminator. fits is
// false when the line exceeded maxLen, in which case the rest of
// it has been consumed and discarded.
func (lr *lineReader) readLine() (line []byte, fits bool, err error) {
	lr.pending = lr.pending[:0]
	fits = true
	for {
		chunk, more, err := lr.br.ReadLine()
		if err != nil {
			// A final line without a newline still counts.
			if err == io.EOF && (len(lr.pending) > 0 || !fits) {
				return lr.pending, fits, nil
			}
			return nil, false, err
		}
		if fits {
			lr.pending = append(lr.pending, chunk...)
			if len(lr.pending) > lr.maxLen {
				fits = false
				lr.pending = lr.pending[:0]
			}
		}
		if !more {
			return lr.pending, fits, nil
		}
	}
}

// Err returns the read error that ended iteration, if any.
func (lr *lineReader) Err() error {
	return lr.err
}

// Oversized returns how many lines were dropped for length.
func (lr *lineReader) Oversized() int {
	return lr.oversized
}
