// Package agent hosts the conversational surface: a tool registry the
// LLM can call into, the bounded tool-calling loop, and per-user session
// handling.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tmc/langchaingo/llms"
)

// HandlerFunc executes one tool call. The returned value is serialized to
// JSON before it goes back to the model.
type HandlerFunc func(ctx context.Context, args map[string]interface{}) (interface{}, error)

// Tool is one registered capability.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
	Required    []string
	Handler     HandlerFunc

	schema *jsonschema.Schema
}

// Registry holds the tool catalog. Registration happens once at startup;
// reads are lock-free afterwards.
type Registry struct {
	tools map[string]*Tool
	order []string
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Tool)}
}

// Register adds a tool. parameters is a JSON-schema object describing the
// arguments; required names the mandatory ones.
func (r *Registry) Register(name, description string, parameters map[string]interface{}, required []string, handler HandlerFunc) error {
	schemaDoc := map[string]interface{}{
		"type":       "object",
		"properties": parameters,
	}
	if len(required) > 0 {
		schemaDoc["required"] = required
	}
	raw, err := json.Marshal(schemaDoc)
	if err != nil {
		return fmt.Errorf("tool %s: invalid parameter schema: %w", name, err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name+".json", strings.NewReader(string(raw))); err != nil {
		return fmt.Errorf("tool %s: %w", name, err)
	}
	schema, err := compiler.Compile(name + ".json")
	if err != nil {
		return fmt.Errorf("tool %s: invalid parameter schema: %w", name, err)
	}

	if _, exists := r.tools[name]; !exists {
		r.order = append(r.order, name)
	}
	r.tools[name] = &Tool{
		Name:        name,
		Description: description,
		Parameters:  parameters,
		Required:    required,
		Handler:     handler,
		schema:      schema,
	}
	return nil
}

// Get returns the tool or nil.
func (r *Registry) Get(name string) *Tool {
	return r.tools[name]
}

// Names returns tool names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Definitions renders the catalog in the shape the LLM provider expects.
func (r *Registry) Definitions() []llms.Tool {
	defs := make([]llms.Tool, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		params := map[string]interface{}{
			"type":       "object",
			"properties": t.Parameters,
		}
		if len(t.Required) > 0 {
			params["required"] = t.Required
		}
		defs = append(defs, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  params,
			},
		})
	}
	return defs
}

// Execute validates args against the tool's schema and runs the handler.
// The result is returned as a JSON string for the tool-response turn.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]interface{}) (string, error) {
	tool := r.tools[name]
	if tool == nil {
		return "", fmt.Errorf("unknown tool %q", name)
	}

	// the validator wants plain JSON types
	normalized, err := normalizeArgs(args)
	if err != nil {
		return "", fmt.Errorf("tool %s: %w", name, err)
	}
	if err := tool.schema.Validate(normalized); err != nil {
		return "", fmt.Errorf("tool %s: invalid arguments: %w", name, err)
	}

	result, err := tool.Handler(ctx, args)
	if err != nil {
		return "", err
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("tool %s: unserializable result: %w", name, err)
	}
	return string(raw), nil
}

func normalizeArgs(args map[string]interface{}) (interface{}, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, err
	}
	var out interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
