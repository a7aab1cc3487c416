package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/haasonsaas/relay/pkg/models"
)

// Tool is an executable capability the model can invoke during a run.
type Tool interface {
	// Name returns the tool name used in function calling. Alphanumerics
	// and underscores only.
	Name() string

	// Description tells the model what the tool does and when to use it.
	Description() string

	// Schema returns the JSON Schema for the tool's arguments.
	Schema() json.RawMessage

	// Execute runs the tool. Arguments have already been validated against
	// Schema. Errors become error tool-results, not run failures.
	Execute(ctx context.Context, arguments json.RawMessage) (string, error)
}

// ToolDescriptor is the wire-shaped view of a tool handed to providers.
type ToolDescriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Schema      json.RawMessage `json:"schema"`
}

type registeredTool struct {
	tool   Tool
	schema *jsonschema.Schema
}

// Registry holds the tools available to agent runs. Tools flagged as
// sensitive are routed through the approval gate before execution.
//
// Thread Safety:
// Registry is safe for concurrent use; registration normally happens once
// at startup.
type Registry struct {
	mu        sync.RWMutex
	tools     map[string]registeredTool
	sensitive map[string]struct{}
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:     make(map[string]registeredTool),
		sensitive: make(map[string]struct{}),
	}
}

// Register adds a tool, compiling its schema for argument validation.
// Registering a second tool with the same name is an error.
func (r *Registry) Register(t Tool) error {
	if t == nil {
		return fmt.Errorf("tool is nil")
	}
	name := t.Name()
	if name == "" {
		return fmt.Errorf("tool has empty name")
	}

	schema, err := compileSchema(name, t.Schema())
	if err != nil {
		return fmt.Errorf("failed to compile schema for tool %s: %w", name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %s already registered", name)
	}
	r.tools[name] = registeredTool{tool: t, schema: schema}
	return nil
}

// RequireApproval flags tools whose calls must pass the human approval gate.
// Unknown names are accepted so config can flag tools registered later.
func (r *Registry) RequireApproval(names ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, name := range names {
		if name = strings.TrimSpace(name); name != "" {
			r.sensitive[name] = struct{}{}
		}
	}
}

// RequiresApproval reports whether a tool is flagged as sensitive.
func (r *Registry) RequiresApproval(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sensitive[name]
	return ok
}

// Get returns a registered tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rt, ok := r.tools[name]
	if !ok {
		return nil, false
	}
	return rt.tool, true
}

// Descriptors returns all registered tools in name order, shaped for a
// provider request.
func (r *Registry) Descriptors() []ToolDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ToolDescriptor, 0, len(r.tools))
	for _, rt := range r.tools {
		out = append(out, ToolDescriptor{
			Name:        rt.tool.Name(),
			Description: rt.tool.Description(),
			Schema:      rt.tool.Schema(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Execute resolves and runs a tool call. The returned string is always the
// text to feed back to the model as the tool result; isError marks results
// produced by unknown tools, invalid arguments, or execution failures.
func (r *Registry) Execute(ctx context.Context, call models.ToolCall) (result string, isError bool) {
	r.mu.RLock()
	rt, ok := r.tools[call.Name]
	r.mu.RUnlock()
	if !ok {
		return fmt.Sprintf("error: unknown tool %q", call.Name), true
	}

	if err := validateArguments(rt.schema, call.Arguments); err != nil {
		return fmt.Sprintf("error: invalid arguments for %s: %v", call.Name, err), true
	}

	out, err := rt.tool.Execute(ctx, call.Arguments)
	if err != nil {
		return fmt.Sprintf("error: %v", err), true
	}
	return out, false
}

func compileSchema(name string, raw json.RawMessage) (*jsonschema.Schema, error) {
	if len(raw) == 0 {
		raw = json.RawMessage(`{"type":"object"}`)
	}
	compiler := jsonschema.NewCompiler()
	url := name + ".schema.json"
	if err := compiler.AddResource(url, strings.NewReader(string(raw))); err != nil {
		return nil, err
	}
	return compiler.Compile(url)
}

func validateArguments(schema *jsonschema.Schema, raw json.RawMessage) error {
	if len(raw) == 0 {
		raw = json.RawMessage(`{}`)
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("arguments are not valid JSON: %w", err)
	}
	return schema.Validate(v)
}
