package ai

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/printdesk/printdesk/internal/config"
)

// Client talks to the Gemini API. It is safe for concurrent use.
type Client struct {
	genai      *genai.Client
	model      string
	embedModel string
	dimension  int32
	sequential bool
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithSequentialEmbedding switches Embed from one batched call to
// one-at-a-time calls throttled by a rate limiter. Slower, but a single
// oversized batch can't trip provider quotas halfway through an ingestion
// run.
func WithSequentialEmbedding(callsPerSecond float64) ClientOption {
	return func(c *Client) {
		c.sequential = true
		if callsPerSecond > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(callsPerSecond), 1)
		}
	}
}

// WithDimension overrides the embedding output dimensionality.
func WithDimension(dim int32) ClientOption {
	return func(c *Client) {
		if dim > 0 {
			c.dimension = dim
		}
	}
}

// NewClient creates a Client from process configuration. The genai SDK
// reads GEMINI_API_KEY from the environment.
func NewClient(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...ClientOption) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	gc, err := genai.NewClient(ctx, &genai.ClientConfig{Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}

	c := &Client{
		genai:      gc,
		model:      cfg.ModelName,
		embedModel: cfg.EmbedderModel,
		dimension:  768,
		limiter:    rate.NewLimiter(rate.Limit(1), 1),
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Embed returns one vector per input text, in input order. An empty input
// returns an empty slice without touching the provider.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	if c.sequential {
		return c.embedSequential(ctx, texts)
	}
	return c.embedBatch(ctx, texts)
}

// embedBatch sends all texts in a single EmbedContent call.
func (c *Client) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}

	resp, err := c.genai.Models.EmbedContent(ctx, c.embedModel, contents, c.embedConfig())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbedding, err)
	}

	return vectorsFromResponse(resp, len(texts))
}

// embedSequential issues one call per text behind the rate limiter. Any
// failure aborts the whole operation so callers never see a partial result.
func (c *Client) embedSequential(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))
	for i, text := range texts {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: rate limiter: %v", ErrEmbedding, err)
		}

		resp, err := c.genai.Models.EmbedContent(ctx, c.embedModel,
			[]*genai.Content{genai.NewContentFromText(text, genai.RoleUser)},
			c.embedConfig())
		if err != nil {
			return nil, fmt.Errorf("%w: input %d: %v", ErrEmbedding, i, err)
		}

		vs, err := vectorsFromResponse(resp, 1)
		if err != nil {
			return nil, fmt.Errorf("input %d: %w", i, err)
		}
		vectors = append(vectors, vs[0])
	}
	return vectors, nil
}

func (c *Client) embedConfig() *genai.EmbedContentConfig {
	dim := c.dimension
	return &genai.EmbedContentConfig{OutputDimensionality: &dim}
}

// vectorsFromResponse validates that the provider returned exactly want
// non-empty vectors and extracts them in order.
func vectorsFromResponse(resp *genai.EmbedContentResponse, want int) ([][]float32, error) {
	if resp == nil || len(resp.Embeddings) != want {
		got := 0
		if resp != nil {
			got = len(resp.Embeddings)
		}
		return nil, fmt.Errorf("%w: got %d embeddings, want %d", ErrEmbedding, got, want)
	}

	vectors := make([][]float32, want)
	for i, emb := range resp.Embeddings {
		if emb == nil || len(emb.Values) == 0 {
			return nil, fmt.Errorf("%w: empty vector at index %d", ErrEmbedding, i)
		}
		vectors[i] = emb.Values
	}
	return vectors, nil
}

// Complete runs one completion call. Declared tools are offered to the
// model as function declarations; chosen calls come back in
// Completion.ToolCalls.
func (c *Client) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	cfg := &genai.GenerateContentConfig{}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if len(req.Tools) > 0 {
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: toFunctionDecls(req.Tools)}}
	}

	resp, err := c.genai.Models.GenerateContent(ctx, c.model, genai.Text(req.Prompt), cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCompletion, err)
	}

	return completionFromResponse(resp), nil
}

// toFunctionDecls converts tool declarations to the genai schema form.
func toFunctionDecls(tools []ToolDecl) []*genai.FunctionDeclaration {
	decls := make([]*genai.FunctionDeclaration, len(tools))
	for i, tool := range tools {
		properties := make(map[string]*genai.Schema, len(tool.Params))
		var required []string
		for _, p := range tool.Params {
			properties[p.Name] = &genai.Schema{
				Type:        genai.TypeString,
				Description: p.Description,
			}
			if p.Required {
				required = append(required, p.Name)
			}
		}

		decl := &genai.FunctionDeclaration{
			Name:        tool.Name,
			Description: tool.Description,
		}
		if len(properties) > 0 {
			decl.Parameters = &genai.Schema{
				Type:       genai.TypeObject,
				Properties: properties,
				Required:   required,
			}
		}
		decls[i] = decl
	}
	return decls
}

// completionFromResponse flattens the first candidate into text plus tool
// calls.
func completionFromResponse(resp *genai.GenerateContentResponse) *Completion {
	out := &Completion{}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return out
	}

	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil {
			continue
		}
		if part.Text != "" {
			out.Text += part.Text
		}
		if part.FunctionCall != nil {
			out.ToolCalls = append(out.ToolCalls, ToolCall{
				Name: part.FunctionCall.Name,
				Args: part.FunctionCall.Args,
			})
		}
	}
	return out
}
