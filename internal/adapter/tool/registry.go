package tool

import (
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strings"
	"sync"

	"websearch-mcp/internal/domain"
)

// Tool names as accepted by MCP clients.
var toolNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

// Registry is the catalog of tools served to clients. Tools are kept
// ordered by name so listings are stable.
type Registry struct {
	mu     sync.RWMutex
	tools  []domain.Tool
	logger *slog.Logger
}

// NewRegistry creates an empty registry. With a non-nil logger, Register
// wraps each tool with schema validation and logs schemas that fail to compile.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{logger: logger}
}

func compareName(t domain.Tool, name string) int {
	return strings.Compare(t.Name(), name)
}

// Register adds t to the catalog.
func (r *Registry) Register(t domain.Tool) error {
	name := t.Name()
	if !toolNamePattern.MatchString(name) {
		return fmt.Errorf("%w: tool name %q", domain.ErrInvalidInput, name)
	}

	if r.logger != nil {
		if wrapped, err := WithSchemaValidation(t); err != nil {
			r.logger.Warn("schema validation disabled for tool", "tool", name, "error", err)
		} else {
			t = wrapped
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	i, found := slices.BinarySearchFunc(r.tools, name, compareName)
	if found {
		return fmt.Errorf("tool %q already registered", name)
	}
	r.tools = slices.Insert(r.tools, i, t)
	return nil
}

// Get looks a tool up by name.
func (r *Registry) Get(name string) (domain.Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if i, found := slices.BinarySearchFunc(r.tools, name, compareName); found {
		return r.tools[i], nil
	}
	return nil, domain.NewDomainError("Registry.Get", domain.ErrToolNotFound, fmt.Sprintf("tool '%s'", name))
}

// List returns the registered tools ordered by name.
func (r *Registry) List() []domain.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.tools)
}

// Schemas returns the catalog entries ordered by tool name.
func (r *Registry) Schemas() []domain.ToolSchema {
	tools := r.List()
	schemas := make([]domain.ToolSchema, len(tools))
	for i, t := range tools {
		schemas[i] = t.Schema()
	}
	return schemas
}

var _ domain.ToolExecutor = (*Registry)(nil)
