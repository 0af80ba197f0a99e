package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAI_ChatSendsZeroTemperature(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer gsk", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, hasTemp := body["temperature"]
		assert.True(t, hasTemp, "temperature 0 must reach the wire")

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"model": "llama-3.1-8b-instant",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "QUESTION"}}],
			"usage": {"prompt_tokens": 1000000, "completion_tokens": 0, "total_tokens": 1000000}
		}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider("groq", "gsk", srv.URL+"/v1")
	resp, err := p.ChatCompletion(context.Background(), ChatRequest{
		Model:       "llama-3.1-8b-instant",
		Messages:    []Message{{Role: "user", Content: "route this"}},
		Temperature: Float(0),
	})
	require.NoError(t, err)
	assert.Equal(t, "groq", resp.Provider)
	assert.Equal(t, "QUESTION", resp.Content)
	assert.InDelta(t, 0.05, resp.CostUSD, 1e-9)
}

func TestOpenAI_EmbeddingsFollowIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"object": "list",
			"data": [
				{"object": "embedding", "index": 1, "embedding": [0, 1]},
				{"object": "embedding", "index": 0, "embedding": [1, 0]}
			],
			"model": "text-embedding-3-small",
			"usage": {"prompt_tokens": 4, "total_tokens": 4}
		}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider("openai", "sk", srv.URL+"/v1")
	resp, err := p.GenerateEmbedding(context.Background(), EmbeddingRequest{Input: []string{"a", "b"}})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0}, {0, 1}}, resp.Embeddings)
	assert.Equal(t, "text-embedding-3-small", resp.Model)
}
