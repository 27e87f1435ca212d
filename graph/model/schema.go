package model

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Schema is a compiled JSON Schema with the document it was compiled from.
//
// It validates structured model replies and tool arguments.
type Schema struct {
	name     string
	doc      map[string]interface{}
	compiled *jsonschema.Schema
}

// NewSchema compiles doc. The name identifies the schema in prompts and errors.
func NewSchema(name string, doc map[string]interface{}) (*Schema, error) {
	// Round-trip through JSON so Go literals such as []string are seen as
	// plain JSON arrays by the compiler.
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal schema %s: %w", name, err)
	}
	var schemaDoc any
	if err := json.Unmarshal(raw, &schemaDoc); err != nil {
		return nil, fmt.Errorf("unmarshal schema %s: %w", name, err)
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource(name+".json", schemaDoc); err != nil {
		return nil, fmt.Errorf("add schema resource %s: %w", name, err)
	}
	compiled, err := c.Compile(name + ".json")
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", name, err)
	}
	return &Schema{name: name, doc: doc, compiled: compiled}, nil
}

// MustSchema is like NewSchema but panics on error. Use it for package-level
// schemas built from literals.
func MustSchema(name string, doc map[string]interface{}) *Schema {
	s, err := NewSchema(name, doc)
	if err != nil {
		panic(err)
	}
	return s
}

// Name returns the schema name.
func (s *Schema) Name() string { return s.name }

// Doc returns the schema document.
func (s *Schema) Doc() map[string]interface{} { return s.doc }

// Validate checks a decoded JSON value against the schema.
func (s *Schema) Validate(v any) error {
	return s.compiled.Validate(normalize(v))
}

// normalize converts v into the generic JSON shape (map[string]any, []any,
// float64) the validator expects.
func normalize(v any) any {
	raw, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return v
	}
	return out
}
