package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"websearch-mcp/internal/domain"
)

// SchemaValidatingTool wraps a Tool with JSON Schema validation.
// On Execute, it validates params against the compiled schema before delegating.
type SchemaValidatingTool struct {
	inner  domain.Tool
	schema *jsonschema.Schema
}

// WithSchemaValidation wraps a tool so that Execute validates params against
// the tool's JSON Schema before forwarding to the inner tool.
// Returns error if the schema fails to compile.
func WithSchemaValidation(t domain.Tool) (domain.Tool, error) {
	raw := t.Schema().Parameters
	if len(raw) == 0 || string(raw) == "null" {
		return t, nil // no schema to validate against
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("add schema resource for %q: %w", t.Name(), err)
	}
	compiled, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema for %q: %w", t.Name(), err)
	}

	return &SchemaValidatingTool{inner: t, schema: compiled}, nil
}

func (s *SchemaValidatingTool) Name() string              { return s.inner.Name() }
func (s *SchemaValidatingTool) Description() string       { return s.inner.Description() }
func (s *SchemaValidatingTool) Schema() domain.ToolSchema { return s.inner.Schema() }

// Execute validates params and delegates to the wrapped tool. A missing
// required property is reported as ErrMissingParameter, any other violation
// as ErrInvalidParams.
func (s *SchemaValidatingTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	if len(params) == 0 {
		params = json.RawMessage("{}")
	}

	var v interface{}
	if err := json.Unmarshal(params, &v); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON: %v", domain.ErrInvalidParams, err)
	}

	if err := s.schema.Validate(v); err != nil {
		return nil, schemaError(err)
	}

	return s.inner.Execute(ctx, params)
}

func schemaError(err error) error {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return fmt.Errorf("%w: schema validation failed: %v", domain.ErrInvalidParams, err)
	}

	leaf := ve
	for len(leaf.Causes) > 0 {
		leaf = leaf.Causes[0]
	}
	if strings.HasSuffix(leaf.KeywordLocation, "/required") {
		return fmt.Errorf("%w: %s", domain.ErrMissingParameter, strings.TrimPrefix(leaf.Message, "missing properties: "))
	}
	return fmt.Errorf("%w: %s: %s", domain.ErrInvalidParams, leaf.InstanceLocation, leaf.Message)
}
