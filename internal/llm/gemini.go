package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"
)

// GeminiProvider calls the Gemini API through the genai SDK.
type GeminiProvider struct {
	client *genai.Client
}

// NewGeminiProvider builds a client for the Gemini API. An empty baseURL
// keeps the SDK default endpoint.
func NewGeminiProvider(ctx context.Context, baseURL, apiKey string) (*GeminiProvider, error) {
	cc := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: strings.TrimRight(baseURL, "/") + "/"}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &GeminiProvider{client: client}, nil
}

func (p *GeminiProvider) Name() string { return "gemini" }

// geminiContents splits chat messages into the system instruction and the turn list.
func geminiContents(msgs []Message) (*genai.Content, []*genai.Content) {
	var system *genai.Content
	var contents []*genai.Content
	for _, m := range msgs {
		switch m.Role {
		case "system":
			system = genai.NewContentFromText(m.Content, genai.RoleUser)
		case "assistant":
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	return system, contents
}

func (p *GeminiProvider) ChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	start := time.Now()

	system, contents := geminiContents(req.Messages)
	gcfg := &genai.GenerateContentConfig{
		SystemInstruction: system,
		MaxOutputTokens:   int32(req.MaxTokens),
		StopSequences:     req.Stop,
	}
	if req.Temperature != nil {
		gcfg.Temperature = genai.Ptr(float32(*req.Temperature))
	}

	gResp, err := p.client.Models.GenerateContent(ctx, req.Model, contents, gcfg)
	if err != nil {
		return nil, fmt.Errorf("gemini chat: %w", err)
	}

	var sb strings.Builder
	if len(gResp.Candidates) > 0 && gResp.Candidates[0].Content != nil {
		for _, part := range gResp.Candidates[0].Content.Parts {
			sb.WriteString(part.Text)
		}
	}

	model := gResp.ModelVersion
	if model == "" {
		model = req.Model
	}
	var in, out, total int
	if u := gResp.UsageMetadata; u != nil {
		in, out, total = int(u.PromptTokenCount), int(u.CandidatesTokenCount), int(u.TotalTokenCount)
	}
	return &ChatResponse{
		Provider:     "gemini",
		Model:        model,
		Content:      sb.String(),
		InputTokens:  in,
		OutputTokens: out,
		TotalTokens:  total,
		CostUSD:      CalculateCost(req.Model, in, out),
		LatencyMs:    time.Since(start).Milliseconds(),
	}, nil
}

func (p *GeminiProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*EmbeddingResponse, error) {
	model := req.Model
	if model == "" {
		model = "text-embedding-004"
	}

	contents := make([]*genai.Content, len(req.Input))
	for i, text := range req.Input {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}
	ecfg := &genai.EmbedContentConfig{TaskType: string(req.TaskType)}

	gResp, err := p.client.Models.EmbedContent(ctx, model, contents, ecfg)
	if err != nil {
		return nil, fmt.Errorf("gemini embed: %w", err)
	}
	if len(gResp.Embeddings) != len(req.Input) {
		return nil, fmt.Errorf("gemini embed: got %d vectors for %d inputs", len(gResp.Embeddings), len(req.Input))
	}

	embeddings := make([][]float32, len(gResp.Embeddings))
	for i, e := range gResp.Embeddings {
		embeddings[i] = e.Values
	}
	return &EmbeddingResponse{
		Provider:   "gemini",
		Model:      model,
		Embeddings: embeddings,
	}, nil
}
