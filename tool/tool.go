// Package tool implements the tool contract and concurrent executor of
// spec §4.4: a tool declares a JSON Schema input, an executor function, and
// the executor runs all tool calls from one assistant turn concurrently
// while preserving tool-call order in the appended results.
package tool

import (
	"context"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/relaycore/agentcore/message"
)

// CancelToken lets a running tool observe cancellation without importing
// context directly into every tool implementation; it is backed by a
// context.Context in practice (see Executor.Run).
type CancelToken interface {
	Done() <-chan struct{}
	Err() error
}

// UpdateFunc streams incremental progress from a tool while it runs. A tool
// may call it any number of times; the executor forwards each call as a
// tool_execution_update event. Partial results sent this way may be
// discarded if the call is later cancelled.
type UpdateFunc func(partial any)

// Result is what a tool returns on success.
type Result struct {
	Content []message.ContentBlock
	Details any
}

// Tool is the contract every tool implementation satisfies.
type Tool interface {
	Name() string
	Label() string
	Description() string
	Parameters() map[string]any
	Execute(ctx context.Context, callID string, args map[string]any, cancel CancelToken, onUpdate UpdateFunc) (Result, error)
}

// Registry holds tool definitions and, optionally, compiled JSON Schema
// validators for their arguments. Validation is optional because spec §4.4
// notes it is "available when the runtime is not sandbox-restricted" — a
// caller embedding this core in a constrained environment may disable it.
type Registry struct {
	tools    map[string]Tool
	order    []string
	schemas  map[string]*jsonschema.Schema
	validate bool
}

// NewRegistry builds a registry from a list of tools, compiling each tool's
// JSON Schema when validate is true. A schema compile failure is returned
// immediately rather than deferred to first use, so misconfiguration is
// caught at startup.
func NewRegistry(tools []Tool, validate bool) (*Registry, error) {
	r := &Registry{
		tools:    make(map[string]Tool, len(tools)),
		schemas:  make(map[string]*jsonschema.Schema, len(tools)),
		validate: validate,
	}
	for _, t := range tools {
		if t == nil || t.Name() == "" {
			continue
		}
		if _, exists := r.tools[t.Name()]; exists {
			continue
		}
		r.tools[t.Name()] = t
		r.order = append(r.order, t.Name())

		if !validate {
			continue
		}
		schema, err := compileSchema(t.Name(), t.Parameters())
		if err != nil {
			return nil, err
		}
		r.schemas[t.Name()] = schema
	}
	return r, nil
}

func compileSchema(name string, params map[string]any) (*jsonschema.Schema, error) {
	if len(params) == 0 {
		return nil, nil
	}
	resourceName := name + "-params.json"
	c := jsonschema.NewCompiler()
	if err := c.AddResource(resourceName, params); err != nil {
		return nil, err
	}
	return c.Compile(resourceName)
}

// Names returns tool names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Get looks up a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Validate checks args against the tool's compiled schema, if any. A tool
// with no parameters, or a registry built with validate=false, always
// succeeds.
func (r *Registry) Validate(name string, args map[string]any) error {
	schema, ok := r.schemas[name]
	if !ok || schema == nil {
		return nil
	}
	return schema.Validate(args)
}
