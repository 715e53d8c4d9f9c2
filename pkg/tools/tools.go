package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownTool is returned by Lookup for names that were never
	// registered.
	ErrUnknownTool = errors.New("unknown tool")
	// ErrDuplicateTool is returned by Register when the name is taken.
	ErrDuplicateTool = errors.New("duplicate tool")
)

// InvokeFunc runs a tool with the oracle's argument and returns the
// observation.
type InvokeFunc func(ctx context.Context, query string) (string, error)

// Tool is a named capability the oracle may call.
type Tool struct {
	Name        string
	Description string
	Invoke      InvokeFunc
}

// Registry holds the available tools in registration order. It is filled at
// startup and read-only afterwards.
type Registry struct {
	tools []Tool
	index map[string]int
}

// NewRegistry creates a new, empty registry.
func NewRegistry() *Registry {
	return &Registry{
		index: make(map[string]int),
	}
}

// Register adds a tool to the registry.
func (r *Registry) Register(t Tool) error {
	name := strings.TrimSpace(t.Name)
	if name == "" {
		return errors.New("tool name is empty")
	}
	if t.Invoke == nil {
		return fmt.Errorf("tool %q has no invoke function", name)
	}
	if _, ok := r.index[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, name)
	}
	t.Name = name
	r.index[name] = len(r.tools)
	r.tools = append(r.tools, t)
	return nil
}

// Lookup returns a tool by name.
func (r *Registry) Lookup(name string) (Tool, error) {
	i, ok := r.index[strings.TrimSpace(name)]
	if !ok {
		return Tool{}, &UnknownToolError{Name: name, Valid: r.Names()}
	}
	return r.tools[i], nil
}

// List returns all registered tools in registration order.
func (r *Registry) List() []Tool {
	out := make([]Tool, len(r.tools))
	copy(out, r.tools)
	return out
}

// Names returns the registered tool names in registration order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.tools))
	for i, t := range r.tools {
		names[i] = t.Name
	}
	return names
}

// Len returns the number of registered tools.
func (r *Registry) Len() int { return len(r.tools) }

// UnknownToolError names the tool that was asked for and the valid ones.
type UnknownToolError struct {
	Name  string
	Valid []string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("Unknown tool %q. Valid tools are: %s", e.Name, strings.Join(e.Valid, ", "))
}

func (e *UnknownToolError) Is(target error) bool { return target == ErrUnknownTool }
