// Package tool defines the uniform tool-invocation contract consumed by the
// Agent loop: an immutable name/description/parameter schema and an
// asynchronous Execute that reports failure inside a ToolResult rather than
// by returning an error.
package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/Reynold-degenracy/EverMemoryArchive/internal/core/message"
)

// Property is one named, ordered entry of a tool's JSON-Schema parameters.
// Schema carries the property-level schema fragment (type, description,
// enum, items, ...); Name is not repeated inside it.
type Property struct {
	Name   string
	Schema map[string]any
}

// Parameters is a tool's JSON-Schema "object" parameter description whose
// properties keep declaration order — the order the Agent falls back to
// when mapping a tool call's args onto positional arguments.
type Parameters struct {
	Properties []Property
	Required   []string
}

// Names returns the declared property names in order.
func (p Parameters) Names() []string {
	names := make([]string, len(p.Properties))
	for i, prop := range p.Properties {
		names[i] = prop.Name
	}
	return names
}

// MarshalJSON renders the parameters as a JSON-Schema object, preserving
// property declaration order (plain map[string]any in Go does not).
func (p Parameters) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"type":"object","properties":{`)
	for i, prop := range p.Properties {
		if i > 0 {
			buf.WriteByte(',')
		}
		nameJSON, err := json.Marshal(prop.Name)
		if err != nil {
			return nil, err
		}
		schemaJSON, err := json.Marshal(prop.Schema)
		if err != nil {
			return nil, err
		}
		buf.Write(nameJSON)
		buf.WriteByte(':')
		buf.Write(schemaJSON)
	}
	buf.WriteString(`}`)
	if len(p.Required) > 0 {
		reqJSON, err := json.Marshal(p.Required)
		if err != nil {
			return nil, err
		}
		buf.WriteString(`,"required":`)
		buf.Write(reqJSON)
	}
	buf.WriteString(`}`)
	return buf.Bytes(), nil
}

// Tool is the uniform invocation interface for every tool the Agent can call.
type Tool interface {
	Name() string
	Description() string
	Parameters() Parameters
	// Execute invokes the tool. It reports ordinary failure via a ToolResult
	// with Success=false and Error set; the returned error is reserved for
	// exceptional conditions the caller must convert into a ToolResult
	// (spec §4.3.c: "convert any thrown exception into ToolResult{...}").
	Execute(ctx context.Context, args map[string]any) (message.ToolResult, error)
}

// Definition is a tool's wire shape, as handed to an LLMClient.
type Definition struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Parameters  Parameters `json:"parameters"`
}

// Registry indexes registered tools by name.
type Registry interface {
	Register(t Tool) error
	Unregister(name string) error
	Get(name string) (Tool, bool)
	List() []Definition
	Has(name string) bool
}

// InMemoryRegistry is a mutex-guarded in-process Registry.
type InMemoryRegistry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewInMemoryRegistry builds an empty registry.
func NewInMemoryRegistry() *InMemoryRegistry {
	return &InMemoryRegistry{tools: make(map[string]Tool)}
}

func (r *InMemoryRegistry) Register(t Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := t.Name()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %s already registered", name)
	}
	r.tools[name] = t
	return nil
}

func (r *InMemoryRegistry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; !exists {
		return fmt.Errorf("tool %s not found", name)
	}
	delete(r.tools, name)
	return nil
}

func (r *InMemoryRegistry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, exists := r.tools[name]
	return t, exists
}

func (r *InMemoryRegistry) List() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]Definition, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, Definition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	return defs
}

func (r *InMemoryRegistry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.tools[name]
	return exists
}
