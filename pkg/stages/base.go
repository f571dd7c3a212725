// Package stages implements the per-stage agents. Each handler wraps the
// agent loop with a fixed allowed-tool list and stage prompts, extracts a
// structured object from the loop's final answer, and classifies it into a
// normalized stage response.
package stages

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"checkin/pkg/agent"
	"checkin/pkg/agent/llm"
	"checkin/pkg/config"
	"checkin/pkg/logx"
	"checkin/pkg/metrics"
	"checkin/pkg/proto"
	"checkin/pkg/utils"
)

// Handler runs one turn of one stage against the session.
type Handler interface {
	Stage() proto.Stage
	HandleStage(ctx context.Context, session *proto.SessionState, goal string) *proto.StageResponse
}

// Deps carries the shared collaborators every stage handler needs.
type Deps struct {
	Broker  agent.ToolBroker
	Client  llm.Client
	Counter *utils.TokenCounter
	Cfg     *config.Config
}

// base is the shared handler core: prompt config, allowed tools, and the
// loop-run-then-extract flow.
type base struct {
	stage        proto.Stage
	allowedTools []string
	enforce      bool
	prompts      config.StagePrompts
	maxCalls     int
	loop         *agent.Loop
	logger       *logx.Logger
}

func newBase(deps Deps, stage proto.Stage, allowedTools []string, enforce bool) (*base, error) {
	prompts, err := deps.Cfg.StagePrompts(stage)
	if err != nil {
		return nil, err
	}
	return &base{
		stage:        stage,
		allowedTools: allowedTools,
		enforce:      enforce,
		prompts:      prompts,
		maxCalls:     deps.Cfg.MaxModelCalls,
		loop:         agent.NewLoop(deps.Broker, deps.Client, deps.Counter, string(stage)),
		logger:       logx.NewLogger("stage." + strings.ToLower(string(stage))),
	}, nil
}

func (b *base) Stage() proto.Stage {
	return b.stage
}

// run executes the agent loop and parses the final answer into an object.
func (b *base) run(ctx context.Context, goal string) (agent.Result, map[string]any, error) {
	res, err := b.loop.Run(ctx, goal, agent.Options{
		AllowedTools:   b.allowedTools,
		SystemPrompt:   b.prompts.System,
		ContinuePrompt: b.prompts.Continue,
		NotesTemplate:  b.prompts.NotesTemplate,
		MaxModelCalls:  b.maxCalls,
		EnforceToolUse: b.enforce,
		ToolChoice:     b.prompts.ToolChoice,
	})
	if err != nil {
		return res, nil, err
	}
	return res, extractObject(res.Final), nil
}

// fail converts a loop or tool error into the stage's FAILED response.
func (b *base) fail(err error) *proto.StageResponse {
	b.logger.Error("stage turn failed: %v", err)
	return proto.Failed(b.stage, err.Error())
}

// observe records the turn's outcome metrics. Call with the start time.
func observe(stage proto.Stage, start time.Time, resp *proto.StageResponse) *proto.StageResponse {
	metrics.StageRuns.WithLabelValues(string(stage), string(resp.Status)).Inc()
	metrics.StageDuration.WithLabelValues(string(stage)).Observe(time.Since(start).Seconds())
	return resp
}

// extractObject pulls a JSON object out of the loop's final answer. The model
// may return the object directly, wrap it in a JSON string, or bury it in
// surrounding prose; all three shapes are handled, anything else yields an
// empty object.
func extractObject(final string) map[string]any {
	text := strings.TrimSpace(final)
	if text == "" {
		return map[string]any{}
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(text), &obj); err == nil {
		return obj
	}

	var wrapped string
	if err := json.Unmarshal([]byte(text), &wrapped); err == nil {
		if err := json.Unmarshal([]byte(wrapped), &obj); err == nil {
			return obj
		}
	}

	if start, end := strings.Index(text, "{"), strings.LastIndex(text, "}"); start >= 0 && end > start {
		if err := json.Unmarshal([]byte(text[start:end+1]), &obj); err == nil {
			return obj
		}
	}
	return map[string]any{}
}

// objString returns the first non-empty string value among the given keys.
func objString(obj map[string]any, keys ...string) string {
	for _, key := range keys {
		if v, ok := obj[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

func objBool(obj map[string]any, key string) bool {
	v, _ := obj[key].(bool)
	return v
}

func objSlice(obj map[string]any, key string) []any {
	v, _ := obj[key].([]any)
	return v
}

func objMap(obj map[string]any, key string) map[string]any {
	v, _ := obj[key].(map[string]any)
	return v
}

// NewHandlers builds the full stage handler registry. PROCESS_CHECK_IN has no
// handler on purpose; the orchestrator reports it as unconfigured.
func NewHandlers(deps Deps) (map[proto.Stage]Handler, error) {
	handlers := map[proto.Stage]Handler{}
	builders := []func(Deps) (Handler, error){
		NewBeginConversation,
		NewTripIdentification,
		NewJourneyIdentification,
		NewJourneySelection,
		NewValidateProcessCheckin,
		NewCheckinAcceptance,
		NewBoardingPass,
		NewRegulatoryDetails,
		NewAncillaryCatalogue,
	}
	for _, build := range builders {
		h, err := build(deps)
		if err != nil {
			return nil, fmt.Errorf("failed to build stage handlers: %w", err)
		}
		handlers[h.Stage()] = h
	}
	return handlers, nil
}
