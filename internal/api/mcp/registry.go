package mcp

import (
	"context"
	"encoding/json"
	"fmt"
)

// Handler executes a single tool call. Arguments arrive as the raw JSON of
// the tools/call "arguments" object; the handler owns all deep validation and
// returns a JSON-serialisable result or an error.
type Handler func(ctx context.Context, args json.RawMessage) (interface{}, error)

// Descriptor declares one tool: its name, human description, advisory input
// schema, and the handler that implements it.
//
// The input schema is surfaced to clients via tools/list so they can build
// call UIs; the registry does not enforce it before invoking the handler.
// Keeping pre-validation loose and handler-side checking strict lets the
// registry stay generic over heterogeneous tool shapes.
type Descriptor struct {
	Name        string
	Description string
	InputSchema map[string]interface{}
	Handler     Handler
}

// UnknownToolError is returned by Dispatch when no tool has the given name.
type UnknownToolError struct {
	Name string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("unknown tool: %s", e.Name)
}

// Registry is a static mapping from tool name to descriptor. It is built once
// at process start, before any dispatch runs, and is read-only thereafter, so
// it needs no synchronization.
type Registry struct {
	byName  map[string]*Descriptor
	ordered []*Descriptor
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*Descriptor)}
}

// Register adds a tool descriptor. It must only be called during startup,
// never concurrently with dispatch. Registering a duplicate name or a
// descriptor without a handler is a programming error and panics.
func (r *Registry) Register(d Descriptor) {
	if d.Name == "" {
		panic("mcp: tool descriptor requires a name")
	}
	if d.Handler == nil {
		panic(fmt.Sprintf("mcp: tool %q requires a handler", d.Name))
	}
	if _, exists := r.byName[d.Name]; exists {
		panic(fmt.Sprintf("mcp: tool %q registered twice", d.Name))
	}
	desc := d
	r.byName[d.Name] = &desc
	r.ordered = append(r.ordered, &desc)
}

// List returns the registered tools in registration order, in the shape the
// tools/list method reports them.
func (r *Registry) List() []Tool {
	tools := make([]Tool, 0, len(r.ordered))
	for _, d := range r.ordered {
		tools = append(tools, Tool{
			Name:        d.Name,
			Description: d.Description,
			InputSchema: d.InputSchema,
		})
	}
	return tools
}

// Len reports the number of registered tools.
func (r *Registry) Len() int {
	return len(r.ordered)
}

// Dispatch invokes the named tool with the given raw arguments. It returns
// *UnknownToolError when the name is not registered; any other error comes
// from the handler itself.
func (r *Registry) Dispatch(ctx context.Context, name string, args json.RawMessage) (interface{}, error) {
	d, ok := r.byName[name]
	if !ok {
		return nil, &UnknownToolError{Name: name}
	}
	return d.Handler(ctx, args)
}
