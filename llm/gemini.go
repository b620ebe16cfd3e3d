// Google Gemini Provider implementation using official google.golang.org/genai SDK.
//
// Information Hiding:
// - API authentication and client creation
// - Request/response format for Gemini API
// - System instruction handling via config
// - Streaming via official SDK iterator

package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/richinex/quizforge/remote"
	"google.golang.org/genai"
)

// GeminiProvider implements the Provider interface for Google Gemini.
type GeminiProvider struct {
	client      *genai.Client
	model       string
	maxTokens   int32
	temperature float32
	initErr     error // Stores client initialization error for deferred reporting
}

// NewGeminiProvider creates a new Gemini provider.
// If client initialization fails, the error is stored and returned on first use.
func NewGeminiProvider(apiKey, model string, maxTokens uint32, temperature float32) *GeminiProvider {
	ctx := context.Background()
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return &GeminiProvider{
			client:      nil,
			model:       model,
			maxTokens:   int32(maxTokens),
			temperature: temperature,
			initErr:     fmt.Errorf("failed to initialize Gemini client: %w", err),
		}
	}

	return &GeminiProvider{
		client:      client,
		model:       model,
		maxTokens:   int32(maxTokens),
		temperature: temperature,
		initErr:     nil,
	}
}

// Name returns the provider name.
func (p *GeminiProvider) Name() string {
	return "gemini"
}

// Model returns the current model.
func (p *GeminiProvider) Model() string {
	return p.model
}

// Generate sends a prompt and returns the full completion.
func (p *GeminiProvider) Generate(ctx context.Context, req Request) (Response, error) {
	if err := p.ready(); err != nil {
		return Response{}, err
	}

	contents, config := p.buildRequest(req)

	response, err := p.client.Models.GenerateContent(ctx, p.model, contents, config)
	if err != nil {
		return Response{}, classifyGeminiError(err)
	}

	content := response.Text()
	if content == "" {
		return Response{}, remote.WrapKind(remote.KindParse,
			fmt.Errorf("empty response from Gemini"))
	}

	return Response{Content: content, Usage: geminiUsage(response.UsageMetadata)}, nil
}

// GenerateStream streams the completion.
func (p *GeminiProvider) GenerateStream(ctx context.Context, req Request, onChunk func(string)) (Response, error) {
	if err := p.ready(); err != nil {
		return Response{}, err
	}

	contents, config := p.buildRequest(req)

	var content string
	var usage *TokenUsage
	// GenerateContentStream returns iter.Seq2[*GenerateContentResponse, error]
	for response, err := range p.client.Models.GenerateContentStream(ctx, p.model, contents, config) {
		if err != nil {
			return Response{}, classifyGeminiError(err)
		}

		if response.UsageMetadata != nil {
			usage = geminiUsage(response.UsageMetadata)
		}

		text := response.Text()
		if text != "" {
			content += text
			if onChunk != nil {
				onChunk(text)
			}
		}

		if ctx.Err() != nil {
			return Response{}, ctx.Err()
		}
	}

	return Response{Content: content, Usage: usage}, nil
}

func (p *GeminiProvider) ready() error {
	if p.initErr != nil {
		return p.initErr
	}
	if p.client == nil {
		return fmt.Errorf("gemini client not initialized")
	}
	return nil
}

func (p *GeminiProvider) buildRequest(req Request) ([]*genai.Content, *genai.GenerateContentConfig) {
	contents := []*genai.Content{
		genai.NewContentFromText(req.Prompt, genai.RoleUser),
	}

	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(p.temperature),
		MaxOutputTokens: p.maxTokens,
	}

	if req.System != "" {
		config.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}

	return contents, config
}

func geminiUsage(meta *genai.GenerateContentResponseUsageMetadata) *TokenUsage {
	if meta == nil {
		return nil
	}
	return &TokenUsage{
		PromptTokens:     uint32(meta.PromptTokenCount),
		CompletionTokens: uint32(meta.CandidatesTokenCount),
		TotalTokens:      uint32(meta.TotalTokenCount),
	}
}

// classifyGeminiError tags SDK errors for the call layer.
func classifyGeminiError(err error) error {
	var apierr genai.APIError
	if errors.As(err, &apierr) {
		kind := classifyStatus(apierr.Code)
		return remote.WrapKind(kind, fmt.Errorf("gemini request failed: %w", err))
	}
	return fmt.Errorf("gemini request failed: %w", err)
}

// Verify GeminiProvider implements Provider
var _ Provider = (*GeminiProvider)(nil)
