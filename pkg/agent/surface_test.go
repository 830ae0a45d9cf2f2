package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

type fakeResolver struct {
	bindings map[string]int64
}

func (r *fakeResolver) Resolve(_ context.Context, externalID string) (int64, error) {
	return r.bindings[externalID], nil
}

func TestChatUnboundIdentity(t *testing.T) {
	loop, _, _ := newLoopFixture(t, &scriptedModel{responses: []*llms.ContentResponse{textResponse("hi")}})
	surface := NewSurface(&fakeResolver{bindings: map[string]int64{}}, loop)

	reply, err := surface.Chat(context.Background(), "stranger", "show my tasks")
	require.NoError(t, err)
	assert.Equal(t, pleaseLinkEN, reply)

	replyAR, err := surface.Chat(context.Background(), "stranger", "أرني مهامي")
	require.NoError(t, err)
	assert.Equal(t, pleaseLinkAR, replyAR)
}

func TestChatBoundIdentityInjectsContext(t *testing.T) {
	model := &scriptedModel{responses: []*llms.ContentResponse{
		toolResponse(toolCall("c1", "get_my_tasks", `{}`)),
		textResponse("You have no open tasks."),
	}}
	loop, registry, _ := newLoopFixture(t, model)

	var gotArgs map[string]interface{}
	require.NoError(t, registry.Register("get_my_tasks", "tasks",
		map[string]interface{}{"employee_id": prop("integer", "id")},
		[]string{"employee_id"},
		func(_ context.Context, args map[string]interface{}) (interface{}, error) {
			gotArgs = args
			return map[string]interface{}{"tasks": []interface{}{}}, nil
		}))

	surface := NewSurface(&fakeResolver{bindings: map[string]int64{"7777777": 42}}, loop)
	reply, err := surface.Chat(context.Background(), "7777777", "show my tasks")
	require.NoError(t, err)
	assert.Equal(t, "You have no open tasks.", reply)
	assert.Equal(t, int64(42), gotArgs["employee_id"])

	// system prompt is the English one for an English message
	system := model.seen[0][0]
	text, ok := system.Parts[0].(llms.TextContent)
	require.True(t, ok)
	assert.Equal(t, systemPromptEN, text.Text)
}

func TestChatArabicGetsArabicSystemPrompt(t *testing.T) {
	model := &scriptedModel{responses: []*llms.ContentResponse{textResponse("تم")}}
	loop, _, _ := newLoopFixture(t, model)
	surface := NewSurface(&fakeResolver{bindings: map[string]int64{"u": 42}}, loop)

	_, err := surface.Chat(context.Background(), "u", "أرني ملفي الشخصي")
	require.NoError(t, err)

	system := model.seen[0][0]
	text, ok := system.Parts[0].(llms.TextContent)
	require.True(t, ok)
	assert.Equal(t, systemPromptAR, text.Text)
}
