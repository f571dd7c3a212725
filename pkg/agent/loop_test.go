package agent

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"checkin/pkg/agent/llm"
	"checkin/pkg/gateway"
)

// fakeBroker serves a static catalog and canned per-tool results while
// recording invocation order.
type fakeBroker struct {
	tools   []gateway.ToolSchema
	results map[string]string
	errs    map[string]error
	calls   []string
}

func (f *fakeBroker) ChatModelTools(context.Context) ([]gateway.ToolSchema, error) {
	return f.tools, nil
}

func (f *fakeBroker) CallTool(_ context.Context, name string, _ map[string]any) (*gateway.Envelope, error) {
	f.calls = append(f.calls, name)
	if err := f.errs[name]; err != nil {
		return nil, err
	}
	result, ok := f.results[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", gateway.ErrToolNotFound, name)
	}
	return &gateway.Envelope{Content: []gateway.ContentItem{{Type: "text", Text: result}}}, nil
}

func newFakeBroker(tools ...string) *fakeBroker {
	f := &fakeBroker{results: map[string]string{}, errs: map[string]error{}}
	for _, name := range tools {
		f.tools = append(f.tools, gateway.ToolSchema{Name: name, Parameters: map[string]any{"type": "object"}})
		f.results[name] = `{"ok":true}`
	}
	return f
}

func TestRunToolCycleProducesFinalAnswer(t *testing.T) {
	broker := newFakeBroker("lookup")
	client := llm.NewMockClient(
		llm.Response{ID: "r1", ToolCalls: []llm.ToolCall{{CallID: "c1", Name: "lookup", Arguments: `{"q":"x"}`}}},
		llm.Response{ID: "r2", OutputText: `{"answer":42}`},
	)
	loop := NewLoop(broker, client, nil, "test")

	res, err := loop.Run(context.Background(), "find x", Options{
		NotesTemplate: "notes: {notes}",
		MaxModelCalls: 4,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"answer":42}`, res.Final)
	assert.Equal(t, []string{"lookup"}, broker.calls)

	// Second request chains onto the first response and carries the tool
	// output plus the rendered notes.
	reqs := client.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, "find x", reqs[0].Input)
	assert.Equal(t, "r1", reqs[1].PreviousResponseID)
	require.Len(t, reqs[1].ToolOutputs, 1)
	assert.Equal(t, "c1", reqs[1].ToolOutputs[0].CallID)
	assert.Equal(t, "notes: lookup({\"q\":\"x\"}) => {\"ok\":true}", reqs[1].Input)

	// Trace: list_tools seed, two model calls, one tool call.
	require.Len(t, res.Steps, 4)
	assert.Equal(t, "list_tools", res.Steps[0].Type)
	assert.Equal(t, "tool_call", res.Steps[2].Type)
}

func TestRunSequentialToolOrder(t *testing.T) {
	broker := newFakeBroker("first", "second")
	client := llm.NewMockClient(
		llm.Response{ToolCalls: []llm.ToolCall{
			{CallID: "c1", Name: "first", Arguments: `{}`},
			{CallID: "c2", Name: "second", Arguments: `{}`},
		}},
		llm.Response{OutputText: "done"},
	)
	loop := NewLoop(broker, client, nil, "test")

	res, err := loop.Run(context.Background(), "go", Options{MaxModelCalls: 4})
	require.NoError(t, err)
	assert.Equal(t, "done", res.Final)
	assert.Equal(t, []string{"first", "second"}, broker.calls)
}

func TestRunArgumentParseErrorIsNonFatal(t *testing.T) {
	broker := newFakeBroker("lookup")
	client := llm.NewMockClient(
		llm.Response{ToolCalls: []llm.ToolCall{{CallID: "c1", Name: "lookup", Arguments: `not json`}}},
		llm.Response{OutputText: "done"},
	)
	loop := NewLoop(broker, client, nil, "test")

	res, err := loop.Run(context.Background(), "go", Options{MaxModelCalls: 4})
	require.NoError(t, err)
	assert.Equal(t, "done", res.Final)
	assert.Equal(t, []string{"lookup"}, broker.calls)

	var parseSteps int
	for _, step := range res.Steps {
		if step.Type == "parse_error" {
			parseSteps++
		}
	}
	assert.Equal(t, 1, parseSteps)
}

func TestRunToolErrorPropagates(t *testing.T) {
	broker := newFakeBroker("lookup")
	broker.errs["lookup"] = errors.New("backend down")
	client := llm.NewMockClient(
		llm.Response{ToolCalls: []llm.ToolCall{{CallID: "c1", Name: "lookup", Arguments: `{}`}}},
	)
	loop := NewLoop(broker, client, nil, "test")

	_, err := loop.Run(context.Background(), "go", Options{MaxModelCalls: 4})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backend down")
}

func TestRunBudgetExhaustionReturnsSentinel(t *testing.T) {
	broker := newFakeBroker("lookup")
	client := llm.NewMockClient(
		llm.Response{ToolCalls: []llm.ToolCall{{CallID: "c1", Name: "lookup", Arguments: `{}`}}},
	)
	loop := NewLoop(broker, client, nil, "test")

	res, err := loop.Run(context.Background(), "go", Options{MaxModelCalls: 1})
	require.NoError(t, err)
	assert.Equal(t, NoFinalAnswer, res.Final)
}

func TestRunEnforceToolUseRepromptsOnce(t *testing.T) {
	broker := newFakeBroker("lookup")
	client := llm.NewMockClient(
		llm.Response{OutputText: "I'd rather just answer"},
		llm.Response{ToolCalls: []llm.ToolCall{{CallID: "c1", Name: "lookup", Arguments: `{}`}}},
		llm.Response{OutputText: "done"},
	)
	loop := NewLoop(broker, client, nil, "test")

	res, err := loop.Run(context.Background(), "go", Options{
		MaxModelCalls:  5,
		EnforceToolUse: true,
		ContinuePrompt: "use the tools",
	})
	require.NoError(t, err)
	assert.Equal(t, "done", res.Final)

	reqs := client.Requests()
	require.Len(t, reqs, 3)
	assert.Equal(t, "use the tools", reqs[1].Input)
}

func TestRunAllowedToolFilter(t *testing.T) {
	broker := newFakeBroker("a", "b", "c")
	client := llm.NewMockClient(llm.Response{OutputText: "done"})
	loop := NewLoop(broker, client, nil, "test")

	_, err := loop.Run(context.Background(), "go", Options{
		AllowedTools: []string{"b"},
		BlockedTools: []string{"c"},
	})
	require.NoError(t, err)

	reqs := client.Requests()
	require.Len(t, reqs, 1)
	require.Len(t, reqs[0].Tools, 1)
	assert.Equal(t, "b", reqs[0].Tools[0].Name)

	// A non-nil empty allow list yields no tools at all.
	client = llm.NewMockClient(llm.Response{OutputText: "done"})
	loop = NewLoop(broker, client, nil, "test")
	_, err = loop.Run(context.Background(), "go", Options{AllowedTools: []string{}})
	require.NoError(t, err)
	assert.Empty(t, client.Requests()[0].Tools)
}
