// DeepSeek Provider implementation.
//
// DeepSeek exposes an OpenAI-compatible API, so this delegates to the
// OpenAI client pointed at the DeepSeek endpoint.

package llm

const deepseekBaseURL = "https://api.deepseek.com/v1"

// NewDeepSeekProvider creates a new DeepSeek provider.
func NewDeepSeekProvider(apiKey, model string, maxTokens uint32, temperature float32) *OpenAIProvider {
	return newOpenAICompatProvider("deepseek", apiKey, deepseekBaseURL, model, maxTokens, temperature)
}
