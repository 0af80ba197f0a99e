package embedding

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/studywise/internal/llm"
	"github.com/nikhilbhutani/studywise/internal/logger"
)

type fakeGateway struct {
	requests []llm.EmbeddingRequest
	dim      func(call int) int
	short    bool
	err      error
}

func (f *fakeGateway) Chat(context.Context, llm.ChatRequest) (*llm.ChatResponse, error) {
	return nil, errors.New("not used")
}

func (f *fakeGateway) Provider(string) (llm.Provider, error) { return nil, llm.ErrProviderNotConfigured }

func (f *fakeGateway) Embed(_ context.Context, req llm.EmbeddingRequest) (*llm.EmbeddingResponse, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	d := 3
	if f.dim != nil {
		d = f.dim(len(f.requests))
	}
	n := len(req.Input)
	if f.short {
		n--
	}
	out := make([][]float32, n)
	for i := range out {
		out[i] = make([]float32, d)
		out[i][0] = float32(len(req.Input[i]))
	}
	return &llm.EmbeddingResponse{Embeddings: out}, nil
}

func texts(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = string(make([]byte, i%50+1))
	}
	return out
}

func TestEmbed_BatchesOfHundred(t *testing.T) {
	gw := &fakeGateway{}
	svc := NewService(gw, "gemini", "text-embedding-004", logger.Nop())

	in := texts(250)
	vecs, err := svc.Embed(context.Background(), in, RetrievalDocument)
	require.NoError(t, err)
	require.Len(t, vecs, 250)

	require.Len(t, gw.requests, 3)
	assert.Len(t, gw.requests[0].Input, 100)
	assert.Len(t, gw.requests[1].Input, 100)
	assert.Len(t, gw.requests[2].Input, 50)
	for _, req := range gw.requests {
		assert.Equal(t, llm.TaskRetrievalDocument, req.TaskType)
		assert.Equal(t, "gemini", req.Provider)
	}
	for i, v := range vecs {
		assert.Equal(t, float32(len(in[i])), v[0], "order preserved at %d", i)
	}
	assert.Equal(t, 3, svc.Dimension())
}

func TestEmbed_Empty(t *testing.T) {
	gw := &fakeGateway{}
	vecs, err := NewService(gw, "gemini", "m", logger.Nop()).Embed(context.Background(), nil, RetrievalQuery)
	require.NoError(t, err)
	assert.Nil(t, vecs)
	assert.Empty(t, gw.requests)
}

func TestEmbed_CountMismatch(t *testing.T) {
	gw := &fakeGateway{short: true}
	_, err := NewService(gw, "gemini", "m", logger.Nop()).Embed(context.Background(), texts(3), RetrievalQuery)
	assert.ErrorIs(t, err, ErrCountMismatch)
}

func TestEmbed_DimensionChangeFails(t *testing.T) {
	gw := &fakeGateway{dim: func(call int) int { return 3 + call - 1 }}
	svc := NewService(gw, "gemini", "m", logger.Nop(), WithBatchSize(2))

	_, err := svc.Embed(context.Background(), texts(4), RetrievalDocument)
	assert.ErrorIs(t, err, ErrDimensionChanged)
}

func TestEmbed_PinnedDimension(t *testing.T) {
	gw := &fakeGateway{}
	svc := NewService(gw, "gemini", "m", logger.Nop(), WithDimension(768))

	_, err := svc.Embed(context.Background(), texts(1), RetrievalQuery)
	assert.ErrorIs(t, err, ErrDimensionChanged)
}

func TestEmbed_GatewayError(t *testing.T) {
	boom := errors.New("quota")
	_, err := NewService(&fakeGateway{err: boom}, "gemini", "m", logger.Nop()).
		Embed(context.Background(), texts(1), RetrievalQuery)
	assert.ErrorIs(t, err, boom)
}
