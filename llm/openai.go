// OpenAI Provider implementation using sashabaranov/go-openai.
//
// Information Hiding:
// - API endpoint and authentication
// - Chat completion request/response format
// - Streaming via SSE hidden behind the SDK

package llm

import (
	"context"
	"errors"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"
	"github.com/richinex/quizforge/remote"
)

// OpenAIProvider implements the Provider interface for OpenAI.
type OpenAIProvider struct {
	client      *openai.Client
	name        string
	model       string
	maxTokens   int
	temperature float32
}

// NewOpenAIProvider creates a new OpenAI provider.
func NewOpenAIProvider(apiKey, model string, maxTokens uint32, temperature float32) *OpenAIProvider {
	return &OpenAIProvider{
		client:      openai.NewClient(apiKey),
		name:        "openai",
		model:       model,
		maxTokens:   int(maxTokens),
		temperature: temperature,
	}
}

// newOpenAICompatProvider builds a provider against an OpenAI-compatible
// endpoint. DeepSeek reuses this with its own base URL.
func newOpenAICompatProvider(name, apiKey, baseURL, model string, maxTokens uint32, temperature float32) *OpenAIProvider {
	config := openai.DefaultConfig(apiKey)
	config.BaseURL = baseURL
	return &OpenAIProvider{
		client:      openai.NewClientWithConfig(config),
		name:        name,
		model:       model,
		maxTokens:   int(maxTokens),
		temperature: temperature,
	}
}

// Name returns the provider name.
func (p *OpenAIProvider) Name() string {
	return p.name
}

// Model returns the current model.
func (p *OpenAIProvider) Model() string {
	return p.model
}

// Generate sends a prompt and returns the full completion.
func (p *OpenAIProvider) Generate(ctx context.Context, req Request) (Response, error) {
	resp, err := p.client.CreateChatCompletion(ctx, p.buildRequest(req, false))
	if err != nil {
		return Response{}, p.classifyError(err)
	}

	if len(resp.Choices) == 0 {
		return Response{}, remote.WrapKind(remote.KindParse,
			fmt.Errorf("%s returned no choices", p.name))
	}

	return Response{
		Content: resp.Choices[0].Message.Content,
		Usage: &TokenUsage{
			PromptTokens:     uint32(resp.Usage.PromptTokens),
			CompletionTokens: uint32(resp.Usage.CompletionTokens),
			TotalTokens:      uint32(resp.Usage.TotalTokens),
		},
	}, nil
}

// GenerateStream streams the completion.
func (p *OpenAIProvider) GenerateStream(ctx context.Context, req Request, onChunk func(string)) (Response, error) {
	stream, err := p.client.CreateChatCompletionStream(ctx, p.buildRequest(req, true))
	if err != nil {
		return Response{}, p.classifyError(err)
	}
	defer stream.Close()

	var content string
	var usage *TokenUsage
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Response{}, p.classifyError(err)
		}

		if len(chunk.Choices) > 0 {
			delta := chunk.Choices[0].Delta.Content
			if delta != "" {
				content += delta
				if onChunk != nil {
					onChunk(delta)
				}
			}
		}

		// Usage arrives on the final chunk when IncludeUsage is set.
		if chunk.Usage != nil {
			usage = &TokenUsage{
				PromptTokens:     uint32(chunk.Usage.PromptTokens),
				CompletionTokens: uint32(chunk.Usage.CompletionTokens),
				TotalTokens:      uint32(chunk.Usage.TotalTokens),
			}
		}
	}

	return Response{Content: content, Usage: usage}, nil
}

func (p *OpenAIProvider) buildRequest(req Request, stream bool) openai.ChatCompletionRequest {
	messages := []openai.ChatCompletionMessage{}
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Prompt,
	})

	out := openai.ChatCompletionRequest{
		Model:       p.model,
		Messages:    messages,
		MaxTokens:   p.maxTokens,
		Temperature: p.temperature,
	}
	if stream {
		out.Stream = true
		out.StreamOptions = &openai.StreamOptions{IncludeUsage: true}
	}
	return out
}

// classifyError tags SDK errors for the call layer.
func (p *OpenAIProvider) classifyError(err error) error {
	var apierr *openai.APIError
	if errors.As(err, &apierr) {
		kind := classifyStatus(apierr.HTTPStatusCode)
		return remote.WrapKind(kind, fmt.Errorf("%s request failed: %w", p.name, err))
	}
	var reqerr *openai.RequestError
	if errors.As(err, &reqerr) {
		kind := classifyStatus(reqerr.HTTPStatusCode)
		return remote.WrapKind(kind, fmt.Errorf("%s request failed: %w", p.name, err))
	}
	return fmt.Errorf("%s request failed: %w", p.name, err)
}

// Verify OpenAIProvider implements Provider
var _ Provider = (*OpenAIProvider)(nil)
