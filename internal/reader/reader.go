// Package reader yields replay entries from a line-oriented log file.
package reader

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/JakeFAU/replaydiff/internal/replay"
)

const maxLineBytes = 4 * 1024 * 1024

// Reader reads one payload per non-blank line.
type Reader struct {
	closer  io.Closer
	scanner *bufio.Scanner
	line    int
}

// Open opens the log file at path.
func Open(path string) (*Reader, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("replay log path is required")
	}
	file, err := os.Open(path) // #nosec G304 -- path is operator supplied
	if err != nil {
		return nil, fmt.Errorf("open replay log: %w", err)
	}
	r := New(file)
	r.closer = file
	return r, nil
}

// New wraps an arbitrary reader.
func New(src io.Reader) *Reader {
	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	return &Reader{scanner: scanner}
}

// ReadBatch returns up to n trimmed, non-blank entries. Blank lines do not
// count toward n. An empty slice with a nil error means the input is
// exhausted.
func (r *Reader) ReadBatch(n int) ([]replay.Entry, error) {
	if n <= 0 {
		return nil, fmt.Errorf("batch size must be > 0")
	}
	batch := make([]replay.Entry, 0, n)
	for len(batch) < n && r.scanner.Scan() {
		r.line++
		payload := strings.TrimSpace(r.scanner.Text())
		if payload == "" {
			continue
		}
		batch = append(batch, replay.Entry{Payload: payload})
	}
	if err := r.scanner.Err(); err != nil {
		return batch, fmt.Errorf("read replay log line %d: %w", r.line+1, err)
	}
	return batch, nil
}

// Lines reports how many lines have been consumed so far.
func (r *Reader) Lines() int {
	return r.line
}

// Close releases the underlying file, if any.
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	if err := r.closer.Close(); err != nil {
		return fmt.Errorf("close replay log: %w", err)
	}
	return nil
}
