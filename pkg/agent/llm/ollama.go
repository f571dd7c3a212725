package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/ollama/ollama/api"

	"checkin/pkg/gateway"
)

// OllamaClient implements Client against a local Ollama server for offline
// runs with open-source models. Like the Anthropic adapter it replays
// conversation history keyed by the response ids it handed out, since the
// chat API keeps no server-side state.
type OllamaClient struct {
	client *api.Client
	model  string

	mu       sync.Mutex
	seq      int64
	sessions map[string][]api.Message
}

// NewOllamaClient creates a client for the given server URL and model. An
// empty or unparsable URL falls back to the standard local address.
func NewOllamaClient(hostURL, model string) *OllamaClient {
	parsed, err := url.Parse(hostURL)
	if hostURL == "" || err != nil {
		parsed, _ = url.Parse("http://localhost:11434")
	}
	return &OllamaClient{
		client:   api.NewClient(parsed, http.DefaultClient),
		model:    model,
		sessions: make(map[string][]api.Message),
	}
}

// ModelName implements Client.
func (c *OllamaClient) ModelName() string {
	return c.model
}

// Respond implements Client.
func (c *OllamaClient) Respond(ctx context.Context, req Request) (Response, error) {
	var history []api.Message
	if req.PreviousResponseID != "" {
		c.mu.Lock()
		history = append(history, c.sessions[req.PreviousResponseID]...)
		c.mu.Unlock()
	}

	// Tool results become role "tool" messages; the instructions are resent
	// as a leading system message on every call rather than stored.
	for _, out := range req.ToolOutputs {
		history = append(history, api.Message{Role: "tool", Content: out.Output, ToolCallID: out.CallID})
	}
	if req.Input != "" {
		history = append(history, api.Message{Role: "user", Content: req.Input})
	} else if len(req.ToolOutputs) == 0 {
		history = append(history, api.Message{Role: "user", Content: "continue"})
	}

	messages := history
	if req.Instructions != "" {
		messages = append([]api.Message{{Role: "system", Content: req.Instructions}}, history...)
	}

	stream := false
	chat := &api.ChatRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   &stream,
	}
	if len(req.Tools) > 0 {
		chat.Tools = ollamaTools(req.Tools)
	}

	var last api.ChatResponse
	err := c.client.Chat(ctx, chat, func(resp api.ChatResponse) error {
		last = resp
		return nil
	})
	if err != nil {
		return Response{}, fmt.Errorf("ollama chat call failed: %w", err)
	}

	c.mu.Lock()
	c.seq++
	id := fmt.Sprintf("ollama-%d", c.seq)
	c.mu.Unlock()

	out := Response{ID: id, OutputText: last.Message.Content}
	for i := range last.Message.ToolCalls {
		call := &last.Message.ToolCalls[i]
		callID := call.ID
		if callID == "" {
			callID = fmt.Sprintf("%s-call-%d", id, i)
		}
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			CallID:    callID,
			Name:      call.Function.Name,
			Arguments: marshalArguments(call.Function.Arguments.ToMap()),
		})
	}

	history = append(history, last.Message)
	c.mu.Lock()
	c.sessions[id] = history
	if req.PreviousResponseID != "" {
		delete(c.sessions, req.PreviousResponseID)
	}
	c.mu.Unlock()

	return out, nil
}

// ollamaTools maps the generic function schemas into the api's typed tool
// form. Nested object properties are flattened to their top-level fields.
func ollamaTools(tools []gateway.ToolSchema) api.Tools {
	out := make(api.Tools, 0, len(tools))
	for _, tool := range tools {
		fn := api.ToolFunction{
			Name:        tool.Name,
			Description: tool.Description,
		}
		fn.Parameters.Type = "object"
		if t, ok := tool.Parameters["type"].(string); ok && t != "" {
			fn.Parameters.Type = t
		}
		if required, ok := tool.Parameters["required"].([]any); ok {
			for _, field := range required {
				if name, ok := field.(string); ok {
					fn.Parameters.Required = append(fn.Parameters.Required, name)
				}
			}
		}
		if props, ok := tool.Parameters["properties"].(map[string]any); ok {
			fn.Parameters.Properties = api.NewToolPropertiesMap()
			for name, raw := range props {
				fn.Parameters.Properties.Set(name, ollamaProperty(raw))
			}
		}
		out = append(out, api.Tool{Type: "function", Function: fn})
	}
	return out
}

func ollamaProperty(raw any) api.ToolProperty {
	var prop api.ToolProperty
	m, ok := raw.(map[string]any)
	if !ok {
		return prop
	}
	if t, ok := m["type"].(string); ok && t != "" {
		prop.Type = api.PropertyType{t}
	}
	if d, ok := m["description"].(string); ok {
		prop.Description = d
	}
	if enum, ok := m["enum"].([]any); ok {
		prop.Enum = enum
	}
	return prop
}

// marshalArguments renders parsed tool-call arguments back into the raw JSON
// string the agent loop expects on the wire.
func marshalArguments(args map[string]any) string {
	raw, err := json.Marshal(args)
	if err != nil {
		return "{}"
	}
	return string(raw)
}
