package cli

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
)

// ErrInputCancelled is returned when input is canceled by context.
var ErrInputCancelled = errors.New("input canceled")

// LineReader provides context-aware line reading. A single goroutine scans
// the underlying reader so a cancelled read never loses the next line.
type LineReader struct {
	src   io.Reader
	lines chan line
	once  sync.Once
}

type line struct {
	err  error
	text string
}

// NewLineReader creates a reader over r.
func NewLineReader(r io.Reader) *LineReader {
	if r == nil {
		panic("reader cannot be nil")
	}
	return &LineReader{
		src:   r,
		lines: make(chan line),
	}
}

func (r *LineReader) start() {
	go func() {
		scanner := bufio.NewScanner(r.src)
		for scanner.Scan() {
			r.lines <- line{text: scanner.Text()}
		}
		err := scanner.Err()
		if err == nil {
			err = io.EOF
		}
		for {
			r.lines <- line{err: err}
		}
	}()
}

// ReadLine returns the next trimmed line, ErrInputCancelled if ctx ends
// first, or io.EOF once input is exhausted.
func (r *LineReader) ReadLine(ctx context.Context) (string, error) {
	if ctx.Err() != nil {
		return "", ErrInputCancelled
	}
	r.once.Do(r.start)

	select {
	case <-ctx.Done():
		return "", ErrInputCancelled
	case l := <-r.lines:
		if l.err != nil {
			return "", l.err
		}
		return strings.TrimSpace(l.text), nil
	}
}
