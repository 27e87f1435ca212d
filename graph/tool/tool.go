// Package tool defines side-effecting tools that a chat model may propose and
// the catalog that validates and executes those proposals.
package tool

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/deepakparameswar/csflow/graph/model"
)

// Tool is an external function offered to a chat model.
//
// The model only ever sees Name, Description and Schema. Call receives
// arguments that already passed schema validation when invoked through a
// Catalog. Implementations should be safe to retry.
type Tool interface {
	// Name is the identifier the model uses to request the tool.
	Name() string

	// Description tells the model what the tool does.
	Description() string

	// Schema is the JSON Schema of the argument object.
	Schema() map[string]interface{}

	// Call executes the tool.
	Call(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error)
}

var (
	// ErrUnknownTool is returned when a call names a tool the catalog does not hold.
	ErrUnknownTool = errors.New("unknown tool")

	// ErrInvalidArguments is returned when call arguments fail schema validation.
	ErrInvalidArguments = errors.New("invalid tool arguments")
)

// New returns a Tool backed by fn.
func New(name, description string, schema map[string]interface{}, fn func(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error)) Tool {
	return &funcTool{name: name, description: description, schema: schema, fn: fn}
}

type funcTool struct {
	name        string
	description string
	schema      map[string]interface{}
	fn          func(context.Context, map[string]interface{}) (map[string]interface{}, error)
}

func (f *funcTool) Name() string                   { return f.name }
func (f *funcTool) Description() string            { return f.description }
func (f *funcTool) Schema() map[string]interface{} { return f.schema }

func (f *funcTool) Call(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
	return f.fn(ctx, input)
}

// Catalog is a fixed set of tools with compiled argument schemas.
//
// It is immutable after construction and safe for concurrent use.
type Catalog struct {
	tools map[string]entry
	names []string
}

type entry struct {
	tool   Tool
	schema *model.Schema
}

// NewCatalog compiles every tool's schema. Empty or duplicate names and
// schemas that do not compile are errors.
func NewCatalog(tools ...Tool) (*Catalog, error) {
	c := &Catalog{tools: make(map[string]entry, len(tools))}
	for _, t := range tools {
		name := t.Name()
		if name == "" {
			return nil, errors.New("tool name cannot be empty")
		}
		if _, dup := c.tools[name]; dup {
			return nil, fmt.Errorf("duplicate tool: %s", name)
		}
		doc := t.Schema()
		if doc == nil {
			doc = map[string]interface{}{"type": "object"}
		}
		schema, err := model.NewSchema(name, doc)
		if err != nil {
			return nil, fmt.Errorf("tool %s: %w", name, err)
		}
		c.tools[name] = entry{tool: t, schema: schema}
		c.names = append(c.names, name)
	}
	sort.Strings(c.names)
	return c, nil
}

// Specs describes the tools to a chat model, sorted by name.
func (c *Catalog) Specs() []model.ToolSpec {
	specs := make([]model.ToolSpec, 0, len(c.names))
	for _, name := range c.names {
		e := c.tools[name]
		specs = append(specs, model.ToolSpec{
			Name:        name,
			Description: e.tool.Description(),
			Schema:      e.schema.Doc(),
		})
	}
	return specs
}

// Names returns the tool names, sorted.
func (c *Catalog) Names() []string {
	return append([]string(nil), c.names...)
}

// Lookup returns the named tool.
func (c *Catalog) Lookup(name string) (Tool, bool) {
	e, ok := c.tools[name]
	return e.tool, ok
}

// Call validates args against the tool's schema and invokes the tool.
func (c *Catalog) Call(ctx context.Context, name string, args map[string]interface{}) (map[string]interface{}, error) {
	e, ok := c.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	if args == nil {
		args = map[string]interface{}{}
	}
	if err := e.schema.Validate(args); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidArguments, name, err)
	}
	out, err := e.tool.Call(ctx, args)
	if err != nil {
		return nil, fmt.Errorf("tool %s: %w", name, err)
	}
	return out, nil
}
