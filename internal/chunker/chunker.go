// Package chunker splits extracted text into overlapping segments for
// embedding.
package chunker

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// LengthFunc measures a piece of text in the chunker's unit.
type LengthFunc func(string) int

// CharLength counts runes.
func CharLength(s string) int {
	return utf8.RuneCountInString(s)
}

// TokenLength counts cl100k_base tokens, the encoding used by the OpenAI
// embedding models.
func TokenLength() (LengthFunc, error) {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("failed to get tiktoken encoding: %w", err)
	}
	return func(s string) int {
		return len(enc.Encode(s, nil, nil))
	}, nil
}

// DefaultSeparators are tried in order: paragraph, line, sentence, word.
// When none applies the text is cut between runes.
var DefaultSeparators = []string{"\n\n", "\n", ". ", "! ", "? ", "; ", " "}

type Chunker struct {
	size       int
	overlap    int
	length     LengthFunc
	separators []string
}

type Option func(*Chunker)

func WithLengthFunc(fn LengthFunc) Option {
	return func(c *Chunker) {
		if fn != nil {
			c.length = fn
		}
	}
}

func WithSeparators(seps ...string) Option {
	return func(c *Chunker) {
		c.separators = seps
	}
}

// New returns a Chunker producing chunks of at most size units that share
// roughly overlap units with their neighbour.
func New(size, overlap int, opts ...Option) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("chunk overlap must be in [0, %d), got %d", size, overlap)
	}
	c := &Chunker{
		size:       size,
		overlap:    overlap,
		length:     CharLength,
		separators: DefaultSeparators,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Span is a byte range [Start, End) of the split text.
type Span struct {
	Start int
	End   int
}

// Split returns the chunks of text in order. Separators stay attached to
// the piece they end, so every chunk is a verbatim span of text. Blank
// input yields no chunks.
func (c *Chunker) Split(text string) []string {
	spans := c.Spans(text)
	out := make([]string, len(spans))
	for i, sp := range spans {
		out[i] = text[sp.Start:sp.End]
	}
	return out
}

// Spans is Split reporting byte offsets instead of strings.
func (c *Chunker) Spans(text string) []Span {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return c.split(text, 0, c.separators)
}

type piece struct {
	start, end int
	length     int
}

func (c *Chunker) split(text string, base int, seps []string) []Span {
	sep, rest := "", []string(nil)
	for i, s := range seps {
		if strings.Contains(text, s) {
			sep, rest = s, seps[i+1:]
			break
		}
	}

	var parts []string
	if sep == "" {
		parts = strings.Split(text, "")
	} else {
		parts = strings.SplitAfter(text, sep)
	}

	var out []Span
	var fitting []piece
	off := base
	for _, p := range parts {
		if p == "" {
			continue
		}
		start := off
		off += len(p)

		l := c.length(p)
		if l <= c.size {
			fitting = append(fitting, piece{start: start, end: off, length: l})
			continue
		}
		if len(fitting) > 0 {
			out = append(out, c.merge(text, base, fitting)...)
			fitting = nil
		}
		if sep == "" {
			// a single rune longer than size under a custom length function
			out = append(out, Span{Start: start, End: off})
			continue
		}
		out = append(out, c.split(p, start, rest)...)
	}
	if len(fitting) > 0 {
		out = append(out, c.merge(text, base, fitting)...)
	}
	return out
}

// merge packs consecutive pieces into chunks no longer than size. After a
// chunk is emitted, pieces are dropped from the front until at most overlap
// units remain and the next piece fits.
func (c *Chunker) merge(text string, base int, pieces []piece) []Span {
	var out []Span
	var window []piece
	total := 0

	emit := func() {
		sp := Span{Start: window[0].start, End: window[len(window)-1].end}
		if strings.TrimSpace(text[sp.Start-base:sp.End-base]) != "" {
			out = append(out, sp)
		}
	}

	for _, p := range pieces {
		if total+p.length > c.size && len(window) > 0 {
			emit()
			for len(window) > 0 && (total > c.overlap || total+p.length > c.size) {
				total -= window[0].length
				window = window[1:]
			}
		}
		window = append(window, p)
		total += p.length
	}
	if len(window) > 0 {
		emit()
	}
	return out
}
