// Package stream segments an incremental text stream into sentences sized
// for speech synthesis.
package stream

import "unicode/utf8"

const (
	DefaultMinChars = 10
	DefaultMaxChars = 200
)

func isMinorBreak(r rune) bool {
	switch r {
	case ',', '，', ';', '；':
		return true
	}
	return false
}

func isSentenceEnd(r rune) bool {
	switch r {
	case '.', '!', '?', '。', '！', '？', '\n':
		return true
	}
	return false
}

// SentenceBuffer accumulates text deltas and hands out sentences. Lengths
// are counted in runes. Every sentence it returns is an exact slice of the
// input, so concatenating all output plus Flush reproduces the input.
// A multi-byte character split across fragments is held back until the
// rest of it arrives.
type SentenceBuffer struct {
	MinChars int
	MaxChars int

	buf     []rune
	partial []byte
}

func New(minChars, maxChars int) *SentenceBuffer {
	if minChars <= 0 {
		minChars = DefaultMinChars
	}
	if maxChars < minChars {
		maxChars = minChars
	}
	return &SentenceBuffer{MinChars: minChars, MaxChars: maxChars}
}

// Push appends fragment and returns every sentence that became complete.
func (b *SentenceBuffer) Push(fragment string) []string {
	if fragment == "" {
		return nil
	}
	b.appendRunes(fragment)

	var out []string
	for {
		cut := b.cutPoint()
		if cut <= 0 {
			break
		}
		out = append(out, string(b.buf[:cut]))
		b.buf = b.buf[cut:]
	}
	return out
}

// appendRunes decodes fragment after any held-back bytes. An incomplete
// trailing character stays in partial.
func (b *SentenceBuffer) appendRunes(fragment string) {
	data := []byte(fragment)
	if len(b.partial) > 0 {
		data = append(b.partial, data...)
		b.partial = nil
	}
	for len(data) > 0 {
		if !utf8.FullRune(data) {
			b.partial = append([]byte(nil), data...)
			return
		}
		r, size := utf8.DecodeRune(data)
		b.buf = append(b.buf, r)
		data = data[size:]
	}
}

// Flush drains whatever is left, even below MinChars, including bytes of
// a character that never completed.
func (b *SentenceBuffer) Flush() string {
	rest := string(b.buf) + string(b.partial)
	b.buf = b.buf[:0]
	b.partial = nil
	return rest
}

// Len reports the number of buffered runes.
func (b *SentenceBuffer) Len() int {
	return len(b.buf)
}

// cutPoint picks the earliest minor break whose prefix reaches MinChars,
// then the earliest sentence end under the same rule, then a forced cut at
// MaxChars. Zero means keep buffering.
func (b *SentenceBuffer) cutPoint() int {
	limit := len(b.buf)
	if limit > b.MaxChars {
		limit = b.MaxChars
	}
	for i := b.MinChars - 1; i < limit; i++ {
		if i >= 0 && isMinorBreak(b.buf[i]) {
			return i + 1
		}
	}
	for i := b.MinChars - 1; i < limit; i++ {
		if i >= 0 && isSentenceEnd(b.buf[i]) {
			return i + 1
		}
	}
	if len(b.buf) >= b.MaxChars {
		return b.MaxChars
	}
	return 0
}
