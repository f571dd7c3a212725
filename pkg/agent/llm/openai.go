package llm

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
)

// OpenAIClient implements Client on the OpenAI Responses API. Conversation
// continuity uses the API's native previous_response_id chaining.
type OpenAIClient struct {
	client openai.Client
	model  string
}

// NewOpenAIClient creates a Responses API client for the given model.
func NewOpenAIClient(apiKey, model string) *OpenAIClient {
	return &OpenAIClient{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

// ModelName implements Client.
func (c *OpenAIClient) ModelName() string {
	return c.model
}

// Respond implements Client.
func (c *OpenAIClient) Respond(ctx context.Context, req Request) (Response, error) {
	params := responses.ResponseNewParams{
		Model: c.model,
	}
	if req.Instructions != "" {
		params.Instructions = openai.String(req.Instructions)
	}
	if req.PreviousResponseID != "" {
		params.PreviousResponseID = openai.String(req.PreviousResponseID)
	}

	if len(req.ToolOutputs) > 0 {
		items := make([]responses.ResponseInputItemUnionParam, 0, len(req.ToolOutputs)+1)
		for _, out := range req.ToolOutputs {
			items = append(items, responses.ResponseInputItemParamOfFunctionCallOutput(out.CallID, out.Output))
		}
		if req.Input != "" {
			items = append(items, responses.ResponseInputItemParamOfMessage(req.Input, responses.EasyInputMessageRoleUser))
		}
		params.Input = responses.ResponseNewParamsInputUnion{OfInputItemList: items}
	} else {
		params.Input = responses.ResponseNewParamsInputUnion{OfString: openai.String(req.Input)}
	}

	if len(req.Tools) > 0 {
		tools := make([]responses.ToolUnionParam, 0, len(req.Tools))
		for _, tool := range req.Tools {
			tools = append(tools, responses.ToolUnionParam{
				OfFunction: &responses.FunctionToolParam{
					Name:        tool.Name,
					Description: openai.String(tool.Description),
					Parameters:  openai.FunctionParameters(tool.Parameters),
					Strict:      openai.Bool(true),
				},
			})
		}
		params.Tools = tools
	}
	if req.ToolChoice != "" {
		params.ToolChoice = responses.ResponseNewParamsToolChoiceUnion{
			OfToolChoiceMode: openai.Opt(responses.ToolChoiceOptions(req.ToolChoice)),
		}
	}

	resp, err := c.client.Responses.New(ctx, params)
	if err != nil {
		return Response{}, fmt.Errorf("responses API call failed: %w", err)
	}
	if resp == nil {
		return Response{}, fmt.Errorf("empty response from responses API")
	}

	out := Response{ID: resp.ID, OutputText: resp.OutputText()}
	for i := range resp.Output {
		item := &resp.Output[i]
		if item.Type != "function_call" {
			continue
		}
		call := item.AsFunctionCall()
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			CallID:    call.CallID,
			Name:      call.Name,
			Arguments: call.Arguments,
		})
	}
	return out, nil
}
