// Package llm defines the chat-model boundary and its client implementations.
// The wire shape mirrors the Responses API: a request carries input text (or
// tool outputs), instructions, a previous response id for conversational
// continuity, and function-call tool schemas; a response carries text output
// and/or requested tool calls.
package llm

import (
	"context"

	"checkin/pkg/gateway"
)

// ToolCall is one function call requested by the model. Arguments is the raw
// JSON string as returned on the wire; callers parse it themselves so parse
// failures stay visible.
type ToolCall struct {
	CallID    string `json:"call_id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolOutput feeds one executed tool call's result back to the model.
type ToolOutput struct {
	CallID string `json:"call_id"`
	Output string `json:"output"`
}

// Request is one chat-model round trip.
type Request struct {
	// Input is the user-facing text for this turn. Ignored for entries
	// carried in ToolOutputs-only follow-ups when empty.
	Input string
	// Instructions is the stage's system prompt.
	Instructions string
	// PreviousResponseID chains this request onto the prior model response.
	PreviousResponseID string
	// Tools is the function-call schema set the model may use.
	Tools []gateway.ToolSchema
	// ToolChoice optionally forces tool use ("auto", "required", "none").
	ToolChoice string
	// ToolOutputs carries executed tool results for a follow-up request.
	ToolOutputs []ToolOutput
}

// Response is the model's reply to one Request.
type Response struct {
	ID         string
	OutputText string
	ToolCalls  []ToolCall
}

// Client is implemented per model provider.
type Client interface {
	// Respond performs one model round trip.
	Respond(ctx context.Context, req Request) (Response, error)
	// ModelName returns the configured model identifier.
	ModelName() string
}
