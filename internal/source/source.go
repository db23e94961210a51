// Package source provides htmlstream.Source implementations over strings,
// readers and growing files.
package source

import (
	"io"
	"unicode/utf8"

	"github.com/SawyerHood/openai-html-stream/internal/htmlstream"
)

// DefaultChunkSize is the read size used when a non-positive size is given.
const DefaultChunkSize = 4096

// FromString splits s into deltas of at most size runes. A non-positive size
// yields s as a single delta.
func FromString(s string, size int) htmlstream.Source {
	return func(yield func(string, error) bool) {
		if s == "" {
			return
		}
		if size <= 0 {
			yield(s, nil)
			return
		}
		rest := s
		for rest != "" {
			end, runes := 0, 0
			for end < len(rest) && runes < size {
				_, n := utf8.DecodeRuneInString(rest[end:])
				end += n
				runes++
			}
			if !yield(rest[:end], nil) {
				return
			}
			rest = rest[end:]
		}
	}
}

// FromReader yields what each Read returns, at most size bytes at a time.
// A multi-byte character split across reads is held back until it is
// complete.
func FromReader(r io.Reader, size int) htmlstream.Source {
	if size <= 0 {
		size = DefaultChunkSize
	}
	return func(yield func(string, error) bool) {
		var aligner runeAligner
		buf := make([]byte, size)
		for {
			n, err := r.Read(buf)
			if n > 0 {
				if text := aligner.push(buf[:n]); text != "" {
					if !yield(text, nil) {
						return
					}
				}
			}
			if err == io.EOF {
				if text := aligner.flush(); text != "" {
					yield(text, nil)
				}
				return
			}
			if err != nil {
				yield("", err)
				return
			}
		}
	}
}

// runeAligner keeps an incomplete trailing UTF-8 sequence between pushes.
type runeAligner struct {
	pending []byte
}

func (a *runeAligner) push(p []byte) string {
	data := append(a.pending, p...)
	cut := incompleteTail(data)
	a.pending = append([]byte(nil), data[cut:]...)
	return string(data[:cut])
}

// flush returns whatever is held back, complete or not.
func (a *runeAligner) flush() string {
	s := string(a.pending)
	a.pending = nil
	return s
}

// incompleteTail returns the index where a trailing partial rune starts, or
// len(b) when b ends on a rune boundary.
func incompleteTail(b []byte) int {
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if utf8.RuneStart(b[i]) {
			if utf8.FullRune(b[i:]) {
				return len(b)
			}
			return i
		}
	}
	return len(b)
}
