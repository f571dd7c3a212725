package llm

import (
	"context"
	"fmt"
	"sync"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const anthropicMaxTokens = 4096

// AnthropicClient implements Client on the Anthropic Messages API. The API
// has no server-side response chaining, so the client replays conversation
// history keyed by the response ids it handed out.
type AnthropicClient struct {
	client anthropic.Client
	model  string

	mu       sync.Mutex
	sessions map[string][]anthropic.MessageParam
}

// NewAnthropicClient creates a Messages API client for the given model.
func NewAnthropicClient(apiKey, model string) *AnthropicClient {
	return &AnthropicClient{
		client:   anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:    model,
		sessions: make(map[string][]anthropic.MessageParam),
	}
}

// ModelName implements Client.
func (c *AnthropicClient) ModelName() string {
	return c.model
}

// Respond implements Client.
func (c *AnthropicClient) Respond(ctx context.Context, req Request) (Response, error) {
	var history []anthropic.MessageParam
	if req.PreviousResponseID != "" {
		c.mu.Lock()
		history = append(history, c.sessions[req.PreviousResponseID]...)
		c.mu.Unlock()
	}

	var blocks []anthropic.ContentBlockParamUnion
	for _, out := range req.ToolOutputs {
		blocks = append(blocks, anthropic.NewToolResultBlock(out.CallID, out.Output, false))
	}
	if req.Input != "" {
		blocks = append(blocks, anthropic.NewTextBlock(req.Input))
	}
	if len(blocks) == 0 {
		blocks = append(blocks, anthropic.NewTextBlock("continue"))
	}
	history = append(history, anthropic.NewUserMessage(blocks...))

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: anthropicMaxTokens,
		Messages:  history,
	}
	if req.Instructions != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.Instructions}}
	}
	if len(req.Tools) > 0 {
		tools := make([]anthropic.ToolUnionParam, 0, len(req.Tools))
		for _, tool := range req.Tools {
			schema := anthropic.ToolInputSchemaParam{}
			if props, ok := tool.Parameters["properties"]; ok {
				schema.Properties = props
			}
			if required, ok := tool.Parameters["required"].([]any); ok {
				for _, field := range required {
					if name, ok := field.(string); ok {
						schema.Required = append(schema.Required, name)
					}
				}
			}
			tools = append(tools, anthropic.ToolUnionParam{
				OfTool: &anthropic.ToolParam{
					Name:        tool.Name,
					Description: anthropic.String(tool.Description),
					InputSchema: schema,
				},
			})
		}
		params.Tools = tools
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return Response{}, fmt.Errorf("messages API call failed: %w", err)
	}

	out := Response{ID: msg.ID}
	for _, content := range msg.Content {
		switch block := content.AsAny().(type) {
		case anthropic.TextBlock:
			out.OutputText += block.Text
		case anthropic.ToolUseBlock:
			out.ToolCalls = append(out.ToolCalls, ToolCall{
				CallID:    block.ID,
				Name:      block.Name,
				Arguments: string(block.Input),
			})
		}
	}

	// Record the full exchange under the new response id so the next turn
	// can chain onto it.
	history = append(history, msg.ToParam())
	c.mu.Lock()
	c.sessions[msg.ID] = history
	if req.PreviousResponseID != "" {
		delete(c.sessions, req.PreviousResponseID)
	}
	c.mu.Unlock()

	return out, nil
}
