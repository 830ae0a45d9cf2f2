package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/tmc/langchaingo/llms"

	"github.com/backoffice-suite/boar/pkg/llm"
)

// maxToolIterations caps the tool-calling rounds in one turn; with the
// final answer that bounds LLM invocations at maxToolIterations+1.
const maxToolIterations = 5

const (
	exhaustedEN = "I'm sorry, I couldn't complete that request. Please try rephrasing or ask for something simpler."
	exhaustedAR = "عذراً، لم أتمكن من إكمال هذا الطلب. حاول إعادة صياغته أو اطلب شيئاً أبسط."
)

// Loop drives the tool-calling conversation for one turn.
type Loop struct {
	llm      *llm.Client
	registry *Registry
	memory   *llm.Memory
	logger   *slog.Logger
}

func NewLoop(llmClient *llm.Client, registry *Registry, memory *llm.Memory) *Loop {
	return &Loop{
		llm:      llmClient,
		registry: registry,
		memory:   memory,
		logger:   slog.Default().With("component", "agent-loop"),
	}
}

// Run executes one conversational turn for externalID. defaults supplies
// context values (employee_id, external_id) merged into tool calls whose
// required arguments the model left out.
func (l *Loop) Run(ctx context.Context, externalID, system, userMessage string, defaults map[string]interface{}, lang llm.Language) (string, error) {
	if !l.llm.Enabled() {
		return "", llm.ErrUnavailable
	}

	// the model sees the caller identity inline so it can fill arguments
	annotated := userMessage
	if id, ok := defaults["employee_id"]; ok {
		annotated = fmt.Sprintf("%s [employee_id: %v]", userMessage, id)
	}

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, system),
	}
	for _, turn := range l.memory.History(externalID) {
		role := llms.ChatMessageTypeHuman
		if turn.Role == llm.RoleAssistant {
			role = llms.ChatMessageTypeAI
		}
		messages = append(messages, llms.TextParts(role, turn.Content))
	}
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, annotated))

	defs := l.registry.Definitions()
	lastContent := ""
	for iteration := 0; iteration < maxToolIterations; iteration++ {
		resp, err := l.llm.GenerateMessages(ctx, messages, defs)
		if err != nil {
			return "", err
		}
		choice := resp.Choices[0]
		if choice.Content != "" {
			lastContent = choice.Content
		}

		if len(choice.ToolCalls) == 0 {
			l.remember(externalID, userMessage, choice.Content)
			return choice.Content, nil
		}

		// echo the model's tool-call turn back into the transcript
		assistantTurn := llms.MessageContent{Role: llms.ChatMessageTypeAI}
		for _, call := range choice.ToolCalls {
			assistantTurn.Parts = append(assistantTurn.Parts, call)
		}
		messages = append(messages, assistantTurn)

		// execute in emission order, respond as one bundled turn
		toolTurn := llms.MessageContent{Role: llms.ChatMessageTypeTool}
		for _, call := range choice.ToolCalls {
			content := l.executeCall(ctx, call, defaults)
			toolTurn.Parts = append(toolTurn.Parts, llms.ToolCallResponse{
				ToolCallID: call.ID,
				Name:       call.FunctionCall.Name,
				Content:    content,
			})
		}
		messages = append(messages, toolTurn)
	}

	// budget exhausted: hand back whatever text the model last produced,
	// apologize only when there is none
	l.logger.Warn("Tool-calling loop exhausted", "external_id", externalID, "iterations", maxToolIterations)
	reply := lastContent
	if reply == "" {
		reply = exhaustedEN
		if lang == llm.LanguageArabic {
			reply = exhaustedAR
		}
	}
	l.remember(externalID, userMessage, reply)
	return reply, nil
}

// executeCall runs one tool call. Failures come back as an error payload
// for the model rather than aborting the turn.
func (l *Loop) executeCall(ctx context.Context, call llms.ToolCall, defaults map[string]interface{}) string {
	name := call.FunctionCall.Name

	args := map[string]interface{}{}
	if call.FunctionCall.Arguments != "" {
		if err := json.Unmarshal([]byte(call.FunctionCall.Arguments), &args); err != nil {
			l.logger.Warn("Malformed tool arguments", "tool", name, "error", err)
			return errorPayload(fmt.Sprintf("malformed arguments: %v", err))
		}
	}
	l.mergeDefaults(name, args, defaults)

	result, err := l.registry.Execute(ctx, name, args)
	if err != nil {
		l.logger.Warn("Tool execution failed", "tool", name, "error", err)
		return errorPayload(err.Error())
	}
	return result
}

// mergeDefaults fills required arguments the model omitted from the
// session context.
func (l *Loop) mergeDefaults(name string, args, defaults map[string]interface{}) {
	tool := l.registry.Get(name)
	if tool == nil {
		return
	}
	for _, field := range tool.Required {
		if _, present := args[field]; present {
			continue
		}
		if value, ok := defaults[field]; ok {
			args[field] = value
		}
	}
}

func (l *Loop) remember(externalID, userMessage, reply string) {
	l.memory.Append(externalID, llm.RoleUser, userMessage)
	l.memory.Append(externalID, llm.RoleAssistant, reply)
}

func errorPayload(message string) string {
	raw, _ := json.Marshal(map[string]string{"error": message})
	return string(raw)
}
