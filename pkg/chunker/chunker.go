package chunker

import (
	"errors"
	"fmt"

	"github.com/nikhilbhutani/studywise/pkg/tokenizer"
)

const (
	DefaultChunkSize = 384
	DefaultOverlap   = 50
)

// ErrInvalidConfig is returned when the window would never advance.
var ErrInvalidConfig = errors.New("invalid chunker configuration")

type Options struct {
	ChunkSize int // window length in tokens
	Overlap   int // tokens shared by adjacent windows
}

func DefaultOptions() Options {
	return Options{ChunkSize: DefaultChunkSize, Overlap: DefaultOverlap}
}

func (o Options) Validate() error {
	if o.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidConfig, o.ChunkSize)
	}
	if o.Overlap < 0 {
		return fmt.Errorf("%w: overlap must not be negative, got %d", ErrInvalidConfig, o.Overlap)
	}
	if o.Overlap >= o.ChunkSize {
		return fmt.Errorf("%w: overlap %d must be smaller than chunk size %d", ErrInvalidConfig, o.Overlap, o.ChunkSize)
	}
	return nil
}

// Chunk is a token window of the source text. StartToken is inclusive, EndToken exclusive.
type Chunk struct {
	Text       string
	Index      int
	StartToken int
	EndToken   int
}

type Chunker struct {
	tok  tokenizer.Tokenizer
	opts Options
}

func New(tok tokenizer.Tokenizer, opts Options) (*Chunker, error) {
	if tok == nil {
		return nil, fmt.Errorf("%w: tokenizer is required", ErrInvalidConfig)
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Chunker{tok: tok, opts: opts}, nil
}

func (c *Chunker) Options() Options { return c.opts }

// Chunk tokenizes text once and slides a ChunkSize window across it,
// advancing ChunkSize-Overlap tokens per step.
func (c *Chunker) Chunk(text string) ([]Chunk, error) {
	if err := c.opts.Validate(); err != nil {
		return nil, err
	}

	tokens := c.tok.Encode(text)
	if len(tokens) == 0 {
		return nil, nil
	}

	step := c.opts.ChunkSize - c.opts.Overlap
	chunks := make([]Chunk, 0, (len(tokens)+step-1)/step)
	for start := 0; start < len(tokens); start += step {
		end := min(start+c.opts.ChunkSize, len(tokens))
		chunks = append(chunks, Chunk{
			Text:       c.tok.Decode(tokens[start:end]),
			Index:      len(chunks),
			StartToken: start,
			EndToken:   end,
		})
	}
	return chunks, nil
}
