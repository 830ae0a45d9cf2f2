package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/backoffice-suite/boar/pkg/llm"
)

type scriptedModel struct {
	responses []*llms.ContentResponse
	calls     int
	seen      [][]llms.MessageContent
}

func (m *scriptedModel) GenerateContent(_ context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	m.seen = append(m.seen, messages)
	i := m.calls
	m.calls++
	if i >= len(m.responses) {
		i = len(m.responses) - 1
	}
	return m.responses[i], nil
}

func (m *scriptedModel) Call(_ context.Context, _ string, _ ...llms.CallOption) (string, error) {
	return "", nil
}

func textResponse(content string) *llms.ContentResponse {
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: content}}}
}

func toolResponse(calls ...llms.ToolCall) *llms.ContentResponse {
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{ToolCalls: calls}}}
}

func toolCall(id, name, arguments string) llms.ToolCall {
	return llms.ToolCall{
		ID:   id,
		Type: "function",
		FunctionCall: &llms.FunctionCall{
			Name:      name,
			Arguments: arguments,
		},
	}
}

func newLoopFixture(t *testing.T, model llms.Model) (*Loop, *Registry, *llm.Memory) {
	t.Helper()
	registry := NewRegistry()
	memory := llm.NewMemory(llm.DefaultMemoryCapacity)
	loop := NewLoop(llm.NewWithModel(model, "fake"), registry, memory)
	return loop, registry, memory
}

func TestLoopMergesContextDefaults(t *testing.T) {
	model := &scriptedModel{responses: []*llms.ContentResponse{
		toolResponse(toolCall("c1", "get_employee_info", `{}`)),
		textResponse("You are Omar."),
	}}
	loop, registry, memory := newLoopFixture(t, model)

	var gotArgs map[string]interface{}
	require.NoError(t, registry.Register("get_employee_info", "Profile lookup",
		map[string]interface{}{"employee_id": prop("integer", "id")},
		[]string{"employee_id"},
		func(_ context.Context, args map[string]interface{}) (interface{}, error) {
			gotArgs = args
			return map[string]interface{}{"name": "Omar"}, nil
		}))

	reply, err := loop.Run(context.Background(), "u1", "system", "who am I?",
		map[string]interface{}{"employee_id": int64(42)}, llm.LanguageEnglish)
	require.NoError(t, err)
	assert.Equal(t, "You are Omar.", reply)
	assert.Equal(t, 2, model.calls)
	assert.Equal(t, int64(42), gotArgs["employee_id"])

	// the user message carries the identity suffix for the model
	first := model.seen[0]
	last := first[len(first)-1]
	text, ok := last.Parts[0].(llms.TextContent)
	require.True(t, ok)
	assert.Contains(t, text.Text, "[employee_id: 42]")

	// memory holds the clean user message, not the annotated one
	history := memory.History("u1")
	require.Len(t, history, 2)
	assert.Equal(t, "who am I?", history[0].Content)
	assert.Equal(t, "You are Omar.", history[1].Content)
}

func TestLoopExecutesToolCallsInOrder(t *testing.T) {
	model := &scriptedModel{responses: []*llms.ContentResponse{
		toolResponse(
			toolCall("c1", "first", `{}`),
			toolCall("c2", "second", `{}`),
		),
		textResponse("done"),
	}}
	loop, registry, _ := newLoopFixture(t, model)

	var order []string
	record := func(name string) HandlerFunc {
		return func(context.Context, map[string]interface{}) (interface{}, error) {
			order = append(order, name)
			return "ok", nil
		}
	}
	require.NoError(t, registry.Register("first", "a", map[string]interface{}{}, nil, record("first")))
	require.NoError(t, registry.Register("second", "b", map[string]interface{}{}, nil, record("second")))

	_, err := loop.Run(context.Background(), "u1", "system", "go", nil, llm.LanguageEnglish)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, order)

	// both results come back bundled in one tool turn
	second := model.seen[1]
	toolTurn := second[len(second)-1]
	assert.Equal(t, llms.ChatMessageTypeTool, toolTurn.Role)
	assert.Len(t, toolTurn.Parts, 2)
}

func TestLoopExhaustionReturnsApology(t *testing.T) {
	model := &scriptedModel{responses: []*llms.ContentResponse{
		toolResponse(toolCall("c1", "noisy", `{}`)),
	}}
	loop, registry, _ := newLoopFixture(t, model)
	require.NoError(t, registry.Register("noisy", "loops forever", map[string]interface{}{}, nil,
		func(context.Context, map[string]interface{}) (interface{}, error) {
			return "again", nil
		}))

	reply, err := loop.Run(context.Background(), "u1", "system", "go", nil, llm.LanguageEnglish)
	require.NoError(t, err)
	assert.Equal(t, exhaustedEN, reply)
	assert.Equal(t, maxToolIterations, model.calls)

	replyAR, err := loop.Run(context.Background(), "u2", "system", "اذهب", nil, llm.LanguageArabic)
	require.NoError(t, err)
	assert.Equal(t, exhaustedAR, replyAR)
}

func TestLoopExhaustionKeepsLastModelText(t *testing.T) {
	// every round carries tool calls alongside interim text; the reply on
	// exhaustion is that text, not the canned apology
	interim := &llms.ContentResponse{Choices: []*llms.ContentChoice{{
		Content:   "Still gathering your records.",
		ToolCalls: []llms.ToolCall{toolCall("c1", "noisy", `{}`)},
	}}}
	model := &scriptedModel{responses: []*llms.ContentResponse{interim}}
	loop, registry, memory := newLoopFixture(t, model)
	require.NoError(t, registry.Register("noisy", "loops forever", map[string]interface{}{}, nil,
		func(context.Context, map[string]interface{}) (interface{}, error) {
			return "again", nil
		}))

	reply, err := loop.Run(context.Background(), "u1", "system", "go", nil, llm.LanguageEnglish)
	require.NoError(t, err)
	assert.Equal(t, "Still gathering your records.", reply)
	assert.Equal(t, maxToolIterations, model.calls)

	history := memory.History("u1")
	require.Len(t, history, 2)
	assert.Equal(t, "Still gathering your records.", history[1].Content)
}

func TestLoopToolFailureFeedsErrorBack(t *testing.T) {
	model := &scriptedModel{responses: []*llms.ContentResponse{
		toolResponse(toolCall("c1", "flaky", `{}`)),
		textResponse("Sorry, that lookup failed."),
	}}
	loop, registry, _ := newLoopFixture(t, model)
	require.NoError(t, registry.Register("flaky", "fails", map[string]interface{}{}, nil,
		func(context.Context, map[string]interface{}) (interface{}, error) {
			return nil, assert.AnError
		}))

	reply, err := loop.Run(context.Background(), "u1", "system", "go", nil, llm.LanguageEnglish)
	require.NoError(t, err)
	assert.Equal(t, "Sorry, that lookup failed.", reply)

	toolTurn := model.seen[1][len(model.seen[1])-1]
	resp, ok := toolTurn.Parts[0].(llms.ToolCallResponse)
	require.True(t, ok)
	assert.Contains(t, resp.Content, "error")
}

func TestLoopDisabledLLM(t *testing.T) {
	loop, _, _ := newLoopFixture(t, nil)
	_, err := loop.Run(context.Background(), "u1", "system", "go", nil, llm.LanguageEnglish)
	assert.ErrorIs(t, err, llm.ErrUnavailable)
}

func TestRegistryValidatesArguments(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register("echo", "echoes",
		map[string]interface{}{"value": prop("string", "value to echo")},
		[]string{"value"},
		func(_ context.Context, args map[string]interface{}) (interface{}, error) {
			return args["value"], nil
		}))

	out, err := registry.Execute(context.Background(), "echo", map[string]interface{}{"value": "hi"})
	require.NoError(t, err)
	assert.Equal(t, `"hi"`, out)

	_, err = registry.Execute(context.Background(), "echo", map[string]interface{}{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid arguments")

	_, err = registry.Execute(context.Background(), "echo", map[string]interface{}{"value": 7})
	require.Error(t, err)

	_, err = registry.Execute(context.Background(), "nope", nil)
	require.Error(t, err)
}

func TestRegistryDefinitions(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register("b_tool", "second", map[string]interface{}{}, nil, nil))
	require.NoError(t, registry.Register("a_tool", "first",
		map[string]interface{}{"x": prop("integer", "x")}, []string{"x"}, nil))

	defs := registry.Definitions()
	require.Len(t, defs, 2)
	// registration order, not alphabetical
	assert.Equal(t, "b_tool", defs[0].Function.Name)
	assert.Equal(t, "function", defs[0].Type)

	params, ok := defs[1].Function.Parameters.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, []string{"x"}, params["required"])
}
