package llm

import (
	"fmt"
	"strings"
)

// ollamaPrefixes are common open-source model families served locally.
var ollamaPrefixes = []string{"llama", "codellama", "phi", "qwen", "mistral", "deepseek"}

// NewClient picks a provider implementation from the model name. OpenAI
// models (gpt-*, o1*, o3*, o4*) use the Responses API; claude-* models use
// the Anthropic Messages API; open-source model families (or an explicit
// "ollama:" prefix) go to a local Ollama server at ollamaHost; "mock"
// returns a scripted client for dry runs.
func NewClient(model, openAIKey, anthropicKey, ollamaHost string) (Client, error) {
	switch {
	case model == "mock":
		return NewMockClient(), nil
	case strings.HasPrefix(model, "ollama:"):
		return NewOllamaClient(ollamaHost, strings.TrimPrefix(model, "ollama:")), nil
	case strings.HasPrefix(model, "claude"):
		if anthropicKey == "" {
			return nil, fmt.Errorf("model %s requires an Anthropic API key", model)
		}
		return NewAnthropicClient(anthropicKey, model), nil
	case strings.HasPrefix(model, "gpt") ||
		strings.HasPrefix(model, "o1") ||
		strings.HasPrefix(model, "o3") ||
		strings.HasPrefix(model, "o4"):
		if openAIKey == "" {
			return nil, fmt.Errorf("model %s requires an OpenAI API key", model)
		}
		return NewOpenAIClient(openAIKey, model), nil
	default:
		for _, prefix := range ollamaPrefixes {
			if strings.HasPrefix(model, prefix) {
				return NewOllamaClient(ollamaHost, model), nil
			}
		}
		return nil, fmt.Errorf("unsupported model %q", model)
	}
}
