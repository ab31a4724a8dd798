package csv

// streaming.go cleans up raw input before it reaches the CSV parser:
//
//   - bomReader drops a leading UTF-8 byte order mark written by Windows tools
//   - utf8Sanitizer replaces invalid UTF-8 bytes with '?'
//   - CountingReader records how many bytes were consumed
//
// All three work on the stream as it is read, so memory stays constant no
// matter how large the input is. Use Wrap to apply them in the right order.

import (
	"bufio"
	"bytes"
	"io"
	"unicode/utf8"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// bomReader strips a UTF-8 BOM from the start of the stream.
type bomReader struct {
	br      *bufio.Reader
	checked bool
}

// SkipBOM returns a reader that omits a leading UTF-8 BOM, if present.
func SkipBOM(r io.Reader) io.Reader {
	return &bomReader{br: bufio.NewReader(r)}
}

func (r *bomReader) Read(p []byte) (int, error) {
	if !r.checked {
		r.checked = true
		if head, err := r.br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
			if _, err := r.br.Discard(len(utf8BOM)); err != nil {
				return 0, err
			}
		}
	}
	return r.br.Read(p)
}

// utf8Sanitizer rewrites invalid UTF-8 in place. A multi-byte sequence split
// across two reads is held back until the rest of it arrives.
type utf8Sanitizer struct {
	r       io.Reader
	pending []byte
}

// SanitizeUTF8 returns a reader that replaces every invalid UTF-8 byte with
// '?'. The replacement is a single byte so output never grows.
func SanitizeUTF8(r io.Reader) io.Reader {
	return &utf8Sanitizer{r: r, pending: make([]byte, 0, utf8.UTFMax)}
}

func (s *utf8Sanitizer) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	n := copy(p, s.pending)
	s.pending = s.pending[:0]

	var err error
	if n < len(p) {
		var m int
		m, err = s.r.Read(p[n:])
		n += m
	}
	atEOF := err != nil

	w := 0
	for i := 0; i < n; {
		c := p[i]
		if c < utf8.RuneSelf {
			p[w] = c
			w++
			i++
			continue
		}
		if !atEOF && !utf8.FullRune(p[i:n]) {
			s.pending = append(s.pending, p[i:n]...)
			break
		}
		r, size := utf8.DecodeRune(p[i:n])
		if r == utf8.RuneError && size == 1 {
			p[w] = '?'
			w++
			i++
			continue
		}
		copy(p[w:], p[i:i+size])
		w += size
		i += size
	}

	return w, err
}

// CountingReader tracks the number of bytes read through it.
type CountingReader struct {
	r         io.Reader
	bytesRead int64
}

// NewCountingReader wraps r.
func NewCountingReader(r io.Reader) *CountingReader {
	return &CountingReader{r: r}
}

func (c *CountingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.bytesRead += int64(n)
	return n, err
}

// BytesRead returns the bytes consumed so far.
func (c *CountingReader) BytesRead() int64 {
	return c.bytesRead
}

// Wrap strips the BOM, sanitizes UTF-8 and counts the cleaned bytes.
// The BOM check must see the raw leading bytes, so it runs first.
func Wrap(r io.Reader) *CountingReader {
	return NewCountingReader(SanitizeUTF8(SkipBOM(r)))
}
