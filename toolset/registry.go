package toolset

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/martinemde/turnwheel/runloop"
)

// Handler executes one tool call with already-validated arguments.
type Handler func(ctx context.Context, run runloop.RunContext, arguments json.RawMessage) (string, error)

// RegisteredTool pairs a tool definition with its handler and compiled
// argument schema.
type RegisteredTool struct {
	Definition runloop.ToolDefinition
	Handler    Handler
	schema     *jsonschema.Schema
}

// Registry manages tool registration and lookup. It is safe for concurrent
// use.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*RegisteredTool
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*RegisteredTool)}
}

// Register adds or replaces a tool. The definition's Parameters are
// compiled as a JSON Schema; a definition with no Parameters accepts any
// arguments.
func (r *Registry) Register(def runloop.ToolDefinition, handler Handler) error {
	if def.Name == "" {
		return fmt.Errorf("register tool: empty name")
	}
	if handler == nil {
		return fmt.Errorf("register tool %s: nil handler", def.Name)
	}

	var schema *jsonschema.Schema
	if def.Parameters != nil {
		compiled, err := compileSchema(def.Name, def.Parameters)
		if err != nil {
			return fmt.Errorf("register tool %s: %w", def.Name, err)
		}
		schema = compiled
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[def.Name] = &RegisteredTool{Definition: def, Handler: handler, schema: schema}
	return nil
}

// Unregister removes a tool.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// Get returns a registered tool by name, or nil.
func (r *Registry) Get(name string) *RegisteredTool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// Definitions returns all tool definitions sorted by name, for the model
// configuration.
func (r *Registry) Definitions() []runloop.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]runloop.ToolDefinition, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, t.Definition)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Names returns the sorted names of all registered tools.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// compileSchema round-trips the parameter map through JSON so the compiler
// sees canonical types.
func compileSchema(name string, parameters map[string]any) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(parameters)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	resource := name + ".schema.json"
	if err := c.AddResource(resource, doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := c.Compile(resource)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

// validateArguments checks raw call arguments against the tool's schema.
func (t *RegisteredTool) validateArguments(arguments json.RawMessage) error {
	if t.schema == nil {
		return nil
	}
	var payload any
	if len(arguments) == 0 {
		payload = map[string]any{}
	} else if err := json.Unmarshal(arguments, &payload); err != nil {
		return fmt.Errorf("arguments are not valid JSON: %w", err)
	}
	return t.schema.Validate(payload)
}
