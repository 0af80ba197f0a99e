package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/studywise/pkg/tokenizer"
)

type countingTokenizer struct {
	tokenizer.Tokenizer
	encodes int
}

func (c *countingTokenizer) Encode(text string) []int {
	c.encodes++
	return c.Tokenizer.Encode(text)
}

func words(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = "w" + strings.Repeat("x", i%7) + string(rune('a'+i%26))
	}
	return strings.Join(parts, " ")
}

func TestNew_RejectsNonAdvancingWindow(t *testing.T) {
	tok := &countingTokenizer{Tokenizer: tokenizer.NewWords()}

	_, err := New(tok, Options{ChunkSize: 100, Overlap: 100})
	require.ErrorIs(t, err, ErrInvalidConfig)
	assert.Zero(t, tok.encodes, "validation must happen before tokenizing")

	_, err = New(tok, Options{ChunkSize: 10, Overlap: 20})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(tok, Options{ChunkSize: 0, Overlap: 0})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(tok, Options{ChunkSize: 10, Overlap: -1})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(nil, DefaultOptions())
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestChunk_Empty(t *testing.T) {
	c, err := New(tokenizer.NewWords(), DefaultOptions())
	require.NoError(t, err)

	chunks, err := c.Chunk("   \n\t ")
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestChunk_ShortTextSingleWindow(t *testing.T) {
	c, err := New(tokenizer.NewWords(), DefaultOptions())
	require.NoError(t, err)

	chunks, err := c.Chunk("photosynthesis converts light into chemical energy")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "photosynthesis converts light into chemical energy", chunks[0].Text)
	assert.Equal(t, 0, chunks[0].StartToken)
	assert.Equal(t, 6, chunks[0].EndToken)
}

func TestChunk_CoverageAndOverlap(t *testing.T) {
	cases := []struct {
		name    string
		tokens  int
		size    int
		overlap int
	}{
		{"defaults", 1000, 384, 50},
		{"exact multiple", 30, 10, 0},
		{"one token step", 25, 5, 4},
		{"smaller than window", 7, 10, 3},
		{"uneven tail", 101, 20, 7},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, err := New(tokenizer.NewWords(), Options{ChunkSize: tc.size, Overlap: tc.overlap})
			require.NoError(t, err)

			chunks, err := c.Chunk(words(tc.tokens))
			require.NoError(t, err)
			require.NotEmpty(t, chunks)

			step := tc.size - tc.overlap
			assert.Len(t, chunks, (tc.tokens+step-1)/step)

			covered := make([]bool, tc.tokens)
			for i, ch := range chunks {
				assert.Equal(t, i, ch.Index)
				assert.LessOrEqual(t, ch.EndToken-ch.StartToken, tc.size)
				for j := ch.StartToken; j < ch.EndToken; j++ {
					covered[j] = true
				}
				if i > 0 && ch.EndToken-ch.StartToken == tc.size {
					prev := chunks[i-1]
					assert.Equal(t, tc.overlap, prev.EndToken-ch.StartToken)
				}
			}
			for i, ok := range covered {
				assert.True(t, ok, "token %d not covered", i)
			}
		})
	}
}

func TestChunk_TokenizesOnce(t *testing.T) {
	tok := &countingTokenizer{Tokenizer: tokenizer.NewWords()}
	c, err := New(tok, Options{ChunkSize: 4, Overlap: 1})
	require.NoError(t, err)

	_, err = c.Chunk(words(40))
	require.NoError(t, err)
	assert.Equal(t, 1, tok.encodes)
}

func TestChunk_DetokenizesWindows(t *testing.T) {
	c, err := New(tokenizer.NewWords(), Options{ChunkSize: 3, Overlap: 1})
	require.NoError(t, err)

	chunks, err := c.Chunk("a b c d e f g")
	require.NoError(t, err)

	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}
	assert.Equal(t, []string{"a b c", "c d e", "e f g", "g"}, texts)
}
