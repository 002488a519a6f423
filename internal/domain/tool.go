package domain

import (
	"context"
	"encoding/json"
)

// ToolSchema describes a tool for the catalog served to protocol clients.
type ToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"inputSchema"`
}

// ToolResult is the outcome of executing a tool. Failures are reported as
// errors from Execute, never as a result.
type ToolResult struct {
	CallID  string `json:"call_id,omitempty"`
	Content string `json:"content"`
}

// Tool is the interface every tool must implement.
type Tool interface {
	Name() string
	Description() string
	Schema() ToolSchema
	Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error)
}

// ToolExecutor is the tool catalog: schemas to advertise and lookup by name.
type ToolExecutor interface {
	Get(name string) (Tool, error)
	Schemas() []ToolSchema
}
