package chunker

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"
)

func collect(t *testing.T, text string, size, overlap int) []string {
	t.Helper()
	sc, err := NewScanner(strings.NewReader(text), size, overlap)
	if err != nil {
		t.Fatalf("NewScanner(%d, %d) failed: %v", size, overlap, err)
	}
	var out []string
	for sc.Scan() {
		if sc.Index() != len(out) {
			t.Fatalf("Expected index %d, got %d", len(out), sc.Index())
		}
		out = append(out, sc.Text())
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	return out
}

func reassemble(chunks []string, overlap int) string {
	var b strings.Builder
	for i, c := range chunks {
		if i == 0 {
			b.WriteString(c)
			continue
		}
		r := []rune(c)
		b.WriteString(string(r[overlap:]))
	}
	return b.String()
}

func TestScanner_Windows(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		size     int
		overlap  int
		expected []string
	}{
		{
			name:     "overlapping windows",
			text:     "ABCDEFGHIJ",
			size:     4,
			overlap:  2,
			expected: []string{"ABCD", "CDEF", "EFGH", "GHIJ", "IJ"},
		},
		{
			name:     "exact boundary keeps overlap tail",
			text:     "ABCDEF",
			size:     4,
			overlap:  2,
			expected: []string{"ABCD", "CDEF", "EF"},
		},
		{
			name:     "short tail after last window",
			text:     "ABCDE",
			size:     4,
			overlap:  2,
			expected: []string{"ABCD", "CDE"},
		},
		{
			name:     "zero overlap is disjoint",
			text:     "ABCDEFGHIJ",
			size:     4,
			overlap:  0,
			expected: []string{"ABCD", "EFGH", "IJ"},
		},
		{
			name:     "exact multiple with zero overlap",
			text:     "ABCDEFGH",
			size:     4,
			overlap:  0,
			expected: []string{"ABCD", "EFGH"},
		},
		{
			name:     "document shorter than size",
			text:     "abc",
			size:     10,
			overlap:  3,
			expected: []string{"abc"},
		},
		{
			name:     "document equal to size",
			text:     "abcd",
			size:     4,
			overlap:  1,
			expected: []string{"abcd", "d"},
		},
		{
			name:     "document equal to size without overlap",
			text:     "abcd",
			size:     4,
			overlap:  0,
			expected: []string{"abcd"},
		},
		{
			name:     "empty document",
			text:     "",
			size:     4,
			overlap:  2,
			expected: nil,
		},
		{
			name:     "multibyte runes count as one character",
			text:     "héllo wörld",
			size:     5,
			overlap:  1,
			expected: []string{"héllo", "o wör", "rld"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := collect(t, tt.text, tt.size, tt.overlap)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("Expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestScanner_Invariants(t *testing.T) {
	// larger than one refill so windows straddle reads
	doc := strings.Repeat("The quick brown fox jumps over the lazy dog.\n", 400)

	for _, w := range []struct{ size, overlap int }{
		{1, 0}, {7, 3}, {100, 0}, {500, 100}, {300, 299}, {5000, 17},
	} {
		chunks := collect(t, doc, w.size, w.overlap)
		if len(chunks) == 0 {
			t.Fatalf("size=%d overlap=%d: expected chunks", w.size, w.overlap)
		}

		for i, c := range chunks {
			n := utf8.RuneCountInString(c)
			if i < len(chunks)-1 && n != w.size {
				t.Errorf("size=%d overlap=%d: chunk %d has %d runes", w.size, w.overlap, i, n)
			}
			if i > 0 {
				prev := []rune(chunks[i-1])
				cur := []rune(c)
				if string(prev[len(prev)-w.overlap:]) != string(cur[:w.overlap]) {
					t.Errorf("size=%d overlap=%d: chunks %d and %d do not overlap", w.size, w.overlap, i-1, i)
				}
			}
		}

		if got := reassemble(chunks, w.overlap); got != doc {
			t.Errorf("size=%d overlap=%d: reassembled document differs (len %d vs %d)", w.size, w.overlap, len(got), len(doc))
		}
	}
}

func TestScanner_ReassembleSmall(t *testing.T) {
	doc := "ABCDEFGHIJ"
	for size := 1; size <= 12; size++ {
		for overlap := 0; overlap < size; overlap++ {
			chunks := collect(t, doc, size, overlap)
			if got := reassemble(chunks, overlap); got != doc {
				t.Errorf("size=%d overlap=%d: got %q from %q", size, overlap, got, chunks)
			}
		}
	}
}

func TestNewScanner_InvalidWindow(t *testing.T) {
	tests := []struct {
		name          string
		size, overlap int
	}{
		{"zero size", 0, 0},
		{"negative size", -1, 0},
		{"negative overlap", 4, -1},
		{"overlap equals size", 4, 4},
		{"overlap exceeds size", 4, 9},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewScanner(strings.NewReader("x"), tt.size, tt.overlap)
			if !errors.Is(err, ErrInvalidWindow) {
				t.Errorf("Expected ErrInvalidWindow, got %v", err)
			}
		})
	}
}

type failingReader struct {
	data string
	done bool
}

func (f *failingReader) Read(p []byte) (int, error) {
	if !f.done {
		f.done = true
		return copy(p, f.data), nil
	}
	return 0, io.ErrUnexpectedEOF
}

func TestScanner_ReadError(t *testing.T) {
	sc, err := NewScanner(&failingReader{data: "ABCDEF"}, 4, 0)
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for sc.Scan() {
		got = append(got, sc.Text())
	}
	if !errors.Is(sc.Err(), io.ErrUnexpectedEOF) {
		t.Fatalf("Expected read error, got %v", sc.Err())
	}
	if !reflect.DeepEqual(got, []string{"ABCD"}) {
		t.Errorf("Expected only the complete window before the error, got %q", got)
	}
	if sc.Scan() {
		t.Error("Scan after error should keep returning false")
	}
}

func TestOpen_Restartable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.txt")
	content := strings.Repeat("line of text\n", 50)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	read := func() []string {
		sc, err := Open(path, 64, 16)
		if err != nil {
			t.Fatalf("Open failed: %v", err)
		}
		defer func() {
			if err := sc.Close(); err != nil {
				t.Errorf("Close failed: %v", err)
			}
		}()
		var out []string
		for sc.Scan() {
			out = append(out, sc.Text())
		}
		if err := sc.Err(); err != nil {
			t.Fatalf("Scan failed: %v", err)
		}
		return out
	}

	first, second := read(), read()
	if !reflect.DeepEqual(first, second) {
		t.Error("Expected identical sequences from two reads of the same file")
	}
	if reassemble(first, 16) != content {
		t.Error("Expected file content to reassemble")
	}
}

func TestOpen_MissingFile(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "nope.txt"), 4, 1); err == nil {
		t.Error("Expected error for missing file")
	}
}

// bufferedWindows is the whole-string form of the window rule: emit while the
// buffer holds a full window, then whatever is left.
func bufferedWindows(text string, size, overlap int) []string {
	var out []string
	buf := []rune(text)
	for len(buf) >= size {
		out = append(out, string(buf[:size]))
		buf = buf[size-overlap:]
	}
	if len(buf) > 0 {
		out = append(out, string(buf))
	}
	return out
}

func TestScanner_MatchesBufferedWindows(t *testing.T) {
	docs := []string{
		"",
		"ABCDEFGHIJ",
		"ABCDEFGH",
		"line one\nline two\nline three\n",
		strings.Repeat("ab\n", 3000),
	}
	for _, doc := range docs {
		for size := 1; size <= 9; size++ {
			for overlap := 0; overlap < size; overlap++ {
				got := collect(t, doc, size, overlap)
				want := bufferedWindows(doc, size, overlap)
				if !reflect.DeepEqual(got, want) {
					t.Errorf("len=%d size=%d overlap=%d: got %d chunks, want %d", len(doc), size, overlap, len(got), len(want))
				}
			}
		}
	}
}
