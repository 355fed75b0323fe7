// Package chunker cuts a text stream into fixed-size, overlapping windows
// without holding the whole document in memory.
package chunker

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
)

// ErrInvalidWindow is returned for a size/overlap pair that cannot produce
// forward progress.
var ErrInvalidWindow = errors.New("chunker: invalid window")

// readRunes is how many runes are pulled from the reader per refill.
const readRunes = 4096

// Scanner yields windows of exactly size runes (the last one may be
// shorter). Consecutive windows share overlap runes. Use it like
// bufio.Scanner:
//
//	sc, _ := chunker.NewScanner(r, 500, 100)
//	for sc.Scan() {
//		use(sc.Index(), sc.Text())
//	}
//	if err := sc.Err(); err != nil { ... }
type Scanner struct {
	r       *bufio.Reader
	closer  io.Closer
	size    int
	overlap int

	buf []rune
	eof bool
	err error

	text  string
	index int
	count int
}

// NewScanner validates the window and wraps r.
func NewScanner(r io.Reader, size, overlap int) (*Scanner, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: size must be positive, got %d", ErrInvalidWindow, size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: overlap must be in [0, %d), got %d", ErrInvalidWindow, size, overlap)
	}
	return &Scanner{
		r:       bufio.NewReader(r),
		size:    size,
		overlap: overlap,
		buf:     make([]rune, 0, size+readRunes),
		index:   -1,
	}, nil
}

// Open returns a scanner over the file at path. Opening the same file again
// restarts the sequence from the beginning. Call Close when done.
func Open(path string, size, overlap int) (*Scanner, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	sc, err := NewScanner(f, size, overlap)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	sc.closer = f
	return sc, nil
}

// Scan advances to the next window. It returns false at the end of input or
// on a read error; check Err to tell them apart.
func (s *Scanner) Scan() bool {
	for {
		if len(s.buf) >= s.size {
			s.emit(s.size)
			// keep only the overlap plus whatever was read past the window
			step := s.size - s.overlap
			n := copy(s.buf, s.buf[step:])
			s.buf = s.buf[:n]
			return true
		}
		if s.err != nil {
			s.text = ""
			return false
		}
		if s.eof {
			// any remainder is the last window, even when it is only the
			// overlap carried from the previous one
			if len(s.buf) > 0 {
				s.emit(len(s.buf))
				s.buf = s.buf[:0]
				return true
			}
			s.text = ""
			return false
		}
		s.fill()
	}
}

func (s *Scanner) emit(n int) {
	s.text = string(s.buf[:n])
	s.index = s.count
	s.count++
}

func (s *Scanner) fill() {
	for i := 0; i < readRunes; i++ {
		r, _, err := s.r.ReadRune()
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.eof = true
			} else {
				s.err = err
			}
			return
		}
		s.buf = append(s.buf, r)
	}
}

// Text returns the window produced by the last successful Scan.
func (s *Scanner) Text() string { return s.text }

// Index is the zero-based position of the current window.
func (s *Scanner) Index() int { return s.index }

// Err returns the first non-EOF read error.
func (s *Scanner) Err() error { return s.err }

// Close releases the file opened by Open. It is a no-op for scanners built
// with NewScanner.
func (s *Scanner) Close() error {
	if s.closer == nil {
		return nil
	}
	err := s.closer.Close()
	s.closer = nil
	return err
}
