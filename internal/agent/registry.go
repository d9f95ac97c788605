package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/haasonsaas/quill/internal/llm"
)

const (
	// MaxToolNameLength bounds tool names registered or invoked.
	MaxToolNameLength = 256

	// MaxToolInputSize bounds the argument payload of a single call.
	MaxToolInputSize = 1 << 20 // 1MB
)

// Tool is one executable capability exposed to the model.
type Tool interface {
	// Name returns the tool identifier used in function calling.
	Name() string

	// Description tells the model what the tool does.
	Description() string

	// Schema returns the JSON Schema for the tool's arguments.
	Schema() json.RawMessage

	// Execute runs the tool. Failures the model should see are returned as
	// a ToolResult with IsError set; a non-nil error means the call itself
	// could not be made.
	Execute(ctx context.Context, input json.RawMessage) (*ToolResult, error)
}

// ToolResult is the output of a tool execution before it is bound to a call
// ID.
type ToolResult struct {
	Content string
	IsError bool
}

// Registry holds the tools available to the agent and validates arguments
// against each tool's declared schema before invocation.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	schemas map[string]*jsonschema.Schema
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:   make(map[string]Tool),
		schemas: make(map[string]*jsonschema.Schema),
	}
}

// Register adds a tool. The tool's schema is compiled eagerly so a broken
// schema fails at startup, not on first call.
func (r *Registry) Register(tool Tool) error {
	name := tool.Name()
	if name == "" || len(name) > MaxToolNameLength {
		return fmt.Errorf("invalid tool name %q", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %q already registered", name)
	}

	var schema *jsonschema.Schema
	if raw := tool.Schema(); len(raw) > 0 {
		compiler := jsonschema.NewCompiler()
		url := name + ".schema.json"
		if err := compiler.AddResource(url, bytes.NewReader(raw)); err != nil {
			return fmt.Errorf("tool %q schema: %w", name, err)
		}
		compiled, err := compiler.Compile(url)
		if err != nil {
			return fmt.Errorf("tool %q schema: %w", name, err)
		}
		schema = compiled
	}

	r.tools[name] = tool
	r.schemas[name] = schema
	return nil
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// Names returns registered tool names, sorted.
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

// Specs returns the tool catalog in the shape the model consumes, sorted by
// name for stable prompts.
func (r *Registry) Specs() []llm.ToolSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	specs := make([]llm.ToolSpec, 0, len(r.tools))
	for _, tool := range r.tools {
		specs = append(specs, llm.ToolSpec{
			Name:        tool.Name(),
			Description: tool.Description(),
			Schema:      tool.Schema(),
		})
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs
}

// Execute validates arguments and runs the named tool. A missing tool or
// invalid arguments come back as an error-flagged ToolResult so the model
// can adapt; only infrastructure failures return a Go error.
func (r *Registry) Execute(ctx context.Context, name string, input json.RawMessage) (*ToolResult, error) {
	if len(input) > MaxToolInputSize {
		return &ToolResult{
			Content: fmt.Sprintf("tool arguments exceed %d bytes", MaxToolInputSize),
			IsError: true,
		}, nil
	}

	tool, ok := r.Get(name)
	if !ok {
		return &ToolResult{
			Content: fmt.Sprintf("tool not found: %s", name),
			IsError: true,
		}, nil
	}

	r.mu.RLock()
	schema := r.schemas[name]
	r.mu.RUnlock()

	if schema != nil {
		var v any
		args := input
		if len(args) == 0 {
			args = json.RawMessage("{}")
		}
		if err := json.Unmarshal(args, &v); err != nil {
			return &ToolResult{
				Content: fmt.Sprintf("invalid tool arguments: %v", err),
				IsError: true,
			}, nil
		}
		if err := schema.Validate(v); err != nil {
			return &ToolResult{
				Content: fmt.Sprintf("tool arguments do not match schema: %v", err),
				IsError: true,
			}, nil
		}
	}

	return tool.Execute(ctx, input)
}
