package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// assertCovers checks that spans are ordered, that each starts no later
// than the end of the previous one apart from whitespace, and that together
// they reach every non-space character of text.
func assertCovers(t *testing.T, text string, spans []Span) {
	t.Helper()
	prevStart, coveredEnd := -1, 0
	for i, sp := range spans {
		require.Greater(t, sp.Start, prevStart, "span %d does not advance", i)
		require.LessOrEqual(t, sp.End, len(text))
		if sp.Start > coveredEnd {
			assert.Empty(t, strings.TrimSpace(text[coveredEnd:sp.Start]), "gap before span %d", i)
		}
		prevStart = sp.Start
		coveredEnd = max(coveredEnd, sp.End)
	}
	assert.Empty(t, strings.TrimSpace(text[coveredEnd:]), "uncovered tail")
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		overlap int
		wantErr bool
	}{
		{"valid", 1000, 200, false},
		{"zero overlap", 10, 0, false},
		{"zero size", 0, 0, true},
		{"negative overlap", 10, -1, true},
		{"overlap equals size", 10, 10, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.size, tt.overlap)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSplit_Empty(t *testing.T) {
	c, err := New(100, 10)
	require.NoError(t, err)
	assert.Empty(t, c.Split(""))
	assert.Empty(t, c.Split(" \n\t\n "))
}

func TestSplit_ShortTextIsOneChunk(t *testing.T) {
	c, err := New(1000, 200)
	require.NoError(t, err)
	text := "A short document.\n\nWith two paragraphs."
	assert.Equal(t, []string{text}, c.Split(text))
}

func TestSplit_PrefersParagraphs(t *testing.T) {
	c, err := New(30, 0)
	require.NoError(t, err)

	text := "First paragraph here.\n\nSecond paragraph here.\n\nThird one."
	chunks := c.Split(text)
	assert.Equal(t, []string{
		"First paragraph here.\n\n",
		"Second paragraph here.\n\n",
		"Third one.",
	}, chunks)
}

func TestSplit_FallsBackToWordsThenRunes(t *testing.T) {
	c, err := New(10, 0)
	require.NoError(t, err)

	chunks := c.Split("alpha beta gamma")
	assert.Equal(t, []string{"alpha ", "beta gamma"}, chunks)

	chunks = c.Split("abcdefghijklmnopqrstuvwxyz")
	assert.Equal(t, []string{"abcdefghij", "klmnopqrst", "uvwxyz"}, chunks)
}

func TestSplit_Overlap(t *testing.T) {
	c, err := New(20, 10)
	require.NoError(t, err)

	text := "one two three four five six seven eight nine ten"
	chunks := c.Split(text)
	require.Greater(t, len(chunks), 1)

	assert.Equal(t, []string{
		"one two three four ",
		"four five six seven ",
		"six seven eight ",
		"eight nine ten",
	}, chunks)
	for i := 1; i < len(chunks); i++ {
		first := strings.Fields(chunks[i])[0]
		assert.Contains(t, strings.Fields(chunks[i-1]), first, "chunk %d should overlap chunk %d", i, i-1)
	}
	assertCovers(t, text, c.Spans(text))
}

func TestSplit_Properties(t *testing.T) {
	para := "The quick brown fox jumps over the lazy dog. It was not amused! Why would it be? " +
		"Foxes are like that; dogs know it.\n"
	long := strings.Repeat(para, 40) + "\n\n" + strings.Repeat("x", 250) + "\n\nTail paragraph."

	tests := []struct {
		name    string
		size    int
		overlap int
	}{
		{"default", 1000, 200},
		{"small", 50, 10},
		{"no overlap", 120, 0},
		{"tiny", 5, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.size, tt.overlap)
			require.NoError(t, err)

			spans := c.Spans(long)
			require.NotEmpty(t, spans)
			for _, sp := range spans {
				ch := long[sp.Start:sp.End]
				assert.LessOrEqual(t, CharLength(ch), tt.size)
				assert.NotEmpty(t, strings.TrimSpace(ch))
			}
			assertCovers(t, long, spans)
			assert.Len(t, c.Split(long), len(spans))
		})
	}
}

func TestSplit_Deterministic(t *testing.T) {
	c, err := New(40, 8)
	require.NoError(t, err)
	text := strings.Repeat("Sentence number one. Another sentence follows. ", 20)
	assert.Equal(t, c.Split(text), c.Split(text))
}

func TestSplit_CustomLength(t *testing.T) {
	words := func(s string) int { return len(strings.Fields(s)) }
	c, err := New(3, 1, WithLengthFunc(words), WithSeparators(" "))
	require.NoError(t, err)

	chunks := c.Split("a b c d e f g")
	for _, ch := range chunks {
		assert.LessOrEqual(t, words(ch), 3)
	}
	assert.Equal(t, "a b c ", chunks[0])
	assertCovers(t, "a b c d e f g", c.Spans("a b c d e f g"))
}

func TestCharLength(t *testing.T) {
	assert.Equal(t, 5, CharLength("héllo"))
	assert.Equal(t, 0, CharLength(""))
}
