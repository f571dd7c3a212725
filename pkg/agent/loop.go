// Package agent implements the bounded tool-use loop that drives one goal
// against one chat model. Stage handlers wrap it with their own tool subsets,
// prompts, and result post-processing.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"checkin/pkg/agent/llm"
	"checkin/pkg/gateway"
	"checkin/pkg/logx"
	"checkin/pkg/metrics"
	"checkin/pkg/utils"
)

// NoFinalAnswer is returned as Result.Final when the model-call budget runs
// out before the model produces a text answer.
const NoFinalAnswer = `{"status":"NO_FINAL_ANSWER","message":"model call budget exhausted before a final answer"}`

// defaultMaxModelCalls bounds the loop when options leave the budget unset.
const defaultMaxModelCalls = 6

// ToolBroker is the tool surface the loop needs from the gateway.
type ToolBroker interface {
	ChatModelTools(ctx context.Context) ([]gateway.ToolSchema, error)
	CallTool(ctx context.Context, name string, args map[string]any) (*gateway.Envelope, error)
}

// Options configures one loop run. Retry ceilings are part of the surface for
// stage configs that set them even though the loop only enforces the call
// budget.
type Options struct {
	// AllowedTools restricts the catalog to these names. Nil means every
	// tool; a non-nil empty slice means none.
	AllowedTools []string
	// BlockedTools removes these names from the catalog.
	BlockedTools []string
	// SystemPrompt is sent as instructions on every model call.
	SystemPrompt string
	// ContinuePrompt is the user text for follow-up turns that carry no tool
	// outputs.
	ContinuePrompt string
	// NotesTemplate renders the computed-notes message; "{notes}" is replaced
	// with the newline-joined note list.
	NotesTemplate string
	// MaxModelCalls is the model-call budget. Zero means the default.
	MaxModelCalls int
	// EnforceToolUse re-prompts once with ContinuePrompt if the first model
	// call returns a bare text answer without having used any tool.
	EnforceToolUse bool
	// ToolChoice is passed through to the model ("auto", "required", "none").
	ToolChoice string
	// MaxRetries and MaxInvalidArgs are accepted but not enforced; the call
	// budget is the loop's only circuit breaker.
	MaxRetries     int
	MaxInvalidArgs int
}

// Step is one entry of the loop's ordered trace.
type Step struct {
	Type      string `json:"type"` // list_tools, model_call, tool_call, parse_error
	Tool      string `json:"tool,omitempty"`
	Args      string `json:"args,omitempty"`
	Result    string `json:"result,omitempty"`
	Error     string `json:"error,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`
	EstTokens int    `json:"est_tokens,omitempty"`
}

// Result is the outcome of one loop run. Steps is the full audit trail; Final
// is the model's text/JSON answer or the NoFinalAnswer sentinel.
type Result struct {
	Goal  string `json:"goal"`
	Steps []Step `json:"steps"`
	Final string `json:"final"`
}

// Loop drives goals against one model/broker pair. Safe for concurrent use.
type Loop struct {
	broker  ToolBroker
	client  llm.Client
	counter *utils.TokenCounter
	logger  *logx.Logger
	stage   string
}

// NewLoop creates a loop. The stage label tags metrics; a nil token counter
// falls back to character-based estimates.
func NewLoop(broker ToolBroker, client llm.Client, counter *utils.TokenCounter, stage string) *Loop {
	return &Loop{
		broker:  broker,
		client:  client,
		counter: counter,
		logger:  logx.NewLogger("agent"),
		stage:   stage,
	}
}

// Run executes the bounded tool-use cycle for one goal. Tool invocation
// errors abort the run and propagate; argument parse errors are recorded in
// the trace and the call proceeds with empty arguments.
func (l *Loop) Run(ctx context.Context, goal string, opts Options) (Result, error) {
	res := Result{Goal: goal}

	tools, err := l.broker.ChatModelTools(ctx)
	if err != nil {
		return res, fmt.Errorf("failed to build tool schemas: %w", err)
	}
	tools = filterTools(tools, opts.AllowedTools, opts.BlockedTools)
	res.Steps = append(res.Steps, Step{
		Type:   "list_tools",
		Result: fmt.Sprintf("%d tools available", len(tools)),
	})

	budget := opts.MaxModelCalls
	if budget <= 0 {
		budget = defaultMaxModelCalls
	}

	var (
		previousID     string
		pendingOutputs []llm.ToolOutput
		notes          []string
		toolUsed       bool
		reprompted     bool
		firstCall      = true
	)

	for budget > 0 {
		req := llm.Request{
			Instructions:       opts.SystemPrompt,
			PreviousResponseID: previousID,
			Tools:              tools,
			ToolChoice:         opts.ToolChoice,
		}
		switch {
		case firstCall:
			req.Input = goal
		case len(pendingOutputs) > 0:
			req.Input = renderNotes(opts.NotesTemplate, notes)
			req.ToolOutputs = pendingOutputs
		default:
			req.Input = opts.ContinuePrompt
		}
		firstCall = false
		pendingOutputs = nil

		est := l.estimateTokens(req)
		res.Steps = append(res.Steps, Step{
			Type:      "model_call",
			Result:    fmt.Sprintf("budget %d remaining", budget),
			EstTokens: est,
		})
		metrics.ModelCalls.WithLabelValues(l.client.ModelName(), l.stage).Inc()
		metrics.ModelTokens.WithLabelValues(l.client.ModelName(), l.stage).Add(float64(est))

		resp, err := l.client.Respond(ctx, req)
		budget--
		if err != nil {
			return res, fmt.Errorf("model call failed: %w", err)
		}
		previousID = resp.ID

		if len(resp.ToolCalls) == 0 {
			if opts.EnforceToolUse && !toolUsed && !reprompted && budget > 0 {
				reprompted = true
				l.logger.Debug("model answered without tool use, re-prompting")
				continue
			}
			res.Final = resp.OutputText
			return res, nil
		}

		for _, call := range resp.ToolCalls {
			args := map[string]any{}
			if strings.TrimSpace(call.Arguments) != "" {
				if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
					res.Steps = append(res.Steps, Step{
						Type:  "parse_error",
						Tool:  call.Name,
						Args:  call.Arguments,
						Error: err.Error(),
					})
					l.logger.Warn("tool %s arguments did not parse, using empty object: %v", call.Name, err)
					args = map[string]any{}
				}
			}

			callStart := time.Now()
			env, err := l.broker.CallTool(ctx, call.Name, args)
			metrics.ToolDuration.WithLabelValues(call.Name).Observe(time.Since(callStart).Seconds())
			if err != nil {
				metrics.ToolInvocations.WithLabelValues(call.Name, "error").Inc()
				res.Steps = append(res.Steps, Step{
					Type:  "tool_call",
					Tool:  call.Name,
					Args:  call.Arguments,
					Error: err.Error(),
				})
				return res, fmt.Errorf("tool %s failed: %w", call.Name, err)
			}
			toolUsed = true
			text := env.Text()
			outcome := "ok"
			if env.IsError {
				outcome = "tool_error"
			}
			metrics.ToolInvocations.WithLabelValues(call.Name, outcome).Inc()
			res.Steps = append(res.Steps, Step{
				Type:    "tool_call",
				Tool:    call.Name,
				Args:    call.Arguments,
				Result:  text,
				IsError: env.IsError,
			})
			notes = append(notes, fmt.Sprintf("%s(%s) => %s", call.Name, call.Arguments, text))
			pendingOutputs = append(pendingOutputs, llm.ToolOutput{CallID: call.CallID, Output: text})
		}

		if budget == 0 {
			break
		}
	}

	res.Final = NoFinalAnswer
	return res, nil
}

func (l *Loop) estimateTokens(req llm.Request) int {
	text := req.Instructions + "\n" + req.Input
	for _, out := range req.ToolOutputs {
		text += "\n" + out.Output
	}
	return l.counter.CountTokens(text)
}

func renderNotes(template string, notes []string) string {
	joined := strings.Join(notes, "\n")
	if template == "" {
		return joined
	}
	return strings.ReplaceAll(template, "{notes}", joined)
}

func filterTools(tools []gateway.ToolSchema, allowed, blocked []string) []gateway.ToolSchema {
	allowedSet := make(map[string]bool, len(allowed))
	for _, name := range allowed {
		allowedSet[name] = true
	}
	blockedSet := make(map[string]bool, len(blocked))
	for _, name := range blocked {
		blockedSet[name] = true
	}

	out := make([]gateway.ToolSchema, 0, len(tools))
	for _, tool := range tools {
		if allowed != nil && !allowedSet[tool.Name] {
			continue
		}
		if blockedSet[tool.Name] {
			continue
		}
		out = append(out, tool)
	}
	return out
}
