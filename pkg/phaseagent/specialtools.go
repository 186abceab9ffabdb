package phaseagent

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/fctr-io/okta-query-engine/pkg/llmagent"
	"github.com/fctr-io/okta-query-engine/pkg/models"
	"github.com/fctr-io/okta-query-engine/pkg/router"
	"github.com/fctr-io/okta-query-engine/pkg/sandbox"
)

// ToolParameter is one named input a special tool accepts (spec.md
// §4.6's {name, required, description} metadata).
type ToolParameter struct {
	Name        string
	Required    bool
	Description string
}

// ToolFunc is a pre-registered, self-contained analysis: given extracted
// parameters and a tenant API client, return a ready-to-display markdown
// summary. Unlike a Plan step's generated code, this is operator-written
// Go, so it runs directly — never through the sandbox.
type ToolFunc func(ctx context.Context, api *sandbox.TenantAPIClient, params map[string]any) (string, error)

// ToolDescriptor is one registered special tool's full metadata plus its
// invokable function (spec.md §4.6 "Special-Tools handler"). Category
// groups tools for `GET /available-tools`'s "sorted by category and tool
// name" requirement (spec.md §6.1); it plays no role in dispatch.
type ToolDescriptor struct {
	Operation  string
	EntityName string
	Category   string
	Operations []string
	Summary    string
	Parameters []ToolParameter
	Invoke     ToolFunc
}

// Registry is the startup-populated, read-only map-of-name-to-descriptor
// special-tools registry, grounded on the teacher's
// pkg/config/sub_agent_registry.go (a registry built once at startup and
// looked up by name thereafter, never mutated during request handling).
type Registry struct {
	mu    sync.RWMutex
	tools map[string]ToolDescriptor
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]ToolDescriptor)}
}

// Register adds a tool descriptor, keyed by its Operation name. Intended
// to be called only during startup wiring, before any query is served.
func (r *Registry) Register(d ToolDescriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[d.Operation] = d
}

// Resolve looks up a registered tool by operation name.
func (r *Registry) Resolve(operation string) (ToolDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.tools[operation]
	return d, ok
}

// AllTools returns every registered descriptor, sorted by category then
// operation name, for `GET /available-tools` (spec.md §6.1).
func (r *Registry) AllTools() []ToolDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ToolDescriptor, 0, len(r.tools))
	for _, d := range r.tools {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].Operation < out[j].Operation
	})
	return out
}

// RouterDescriptors flattens the registry into the subset the Router's
// classification prompt needs, so pkg/router never has to know about
// ToolFunc or parameter extraction.
func (r *Registry) RouterDescriptors() []router.ToolDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]router.ToolDescriptor, 0, len(r.tools))
	for _, d := range r.tools {
		out = append(out, router.ToolDescriptor{EntityName: d.EntityName, Operations: d.Operations, Summary: d.Summary})
	}
	return out
}

const toolExtractionInstructions = `You are analyzing a user query to determine which special tool to use
and extract its parameters.

AVAILABLE SPECIAL TOOLS:
%s

USER QUERY: %q

Identify which tool operation matches the user's intent and extract every
parameter value from the query text (use exact substrings — email
addresses, app names, group names as written).

Respond with a JSON object: {"tool_operation": "...", "parameters": {},
"reasoning": "..."}`

type toolExtractionWire struct {
	ToolOperation string         `json:"tool_operation"`
	Parameters    map[string]any `json:"parameters"`
	Reasoning     string         `json:"reasoning"`
}

var toolExtractionSchema = llmagent.Schema{
	"type":     "object",
	"required": []any{"tool_operation", "parameters", "reasoning"},
	"properties": map[string]any{
		"tool_operation": map[string]any{"type": "string"},
		"parameters":     map[string]any{"type": "object"},
		"reasoning":      map[string]any{"type": "string"},
	},
}

func formatToolsForExtraction(tools map[string]ToolDescriptor) string {
	var sb strings.Builder
	for _, d := range tools {
		sb.WriteString(fmt.Sprintf("Operation: %s\nDescription: %s\nParameters:\n", d.Operation, d.Summary))
		for _, p := range d.Parameters {
			req := "OPTIONAL"
			if p.Required {
				req = "REQUIRED"
			}
			sb.WriteString(fmt.Sprintf("  - %s (%s): %s\n", p.Name, req, p.Description))
		}
	}
	return sb.String()
}

// Handler runs the Special-Tools phase (spec.md §4.6): pick the matching
// operation and its parameters with one LLM call, invoke the registered
// function, and return its pre-formatted markdown directly.
type Handler struct {
	client   llmagent.AgentClient
	registry *Registry
	api      *sandbox.TenantAPIClient
}

// NewHandler builds a Handler backed by an AgentClient, a populated
// Registry, and the tenant API client registered tools invoke.
func NewHandler(client llmagent.AgentClient, registry *Registry, api *sandbox.TenantAPIClient) *Handler {
	return &Handler{client: client, registry: registry, api: api}
}

// Run picks a matching special tool for query, extracts its parameters,
// and invokes it, returning the tool's markdown summary verbatim.
func (h *Handler) Run(ctx context.Context, correlationID, query string) (string, error) {
	h.registry.mu.RLock()
	toolsCopy := make(map[string]ToolDescriptor, len(h.registry.tools))
	for k, v := range h.registry.tools {
		toolsCopy[k] = v
	}
	h.registry.mu.RUnlock()

	if len(toolsCopy) == 0 {
		return "", models.WrapError(models.ErrCodeGenerationFailed, "no special tools are registered", nil)
	}

	prompt := fmt.Sprintf(toolExtractionInstructions, formatToolsForExtraction(toolsCopy), query)
	result, err := h.client.Run(ctx, correlationID, "special_tools_extraction", prompt, query, toolExtractionSchema)
	if err != nil {
		return "", models.WrapError(models.ErrCodeGenerationFailed, "special tool parameter extraction failed", err)
	}

	var wire toolExtractionWire
	if err := json.Unmarshal(result.Output, &wire); err != nil {
		return "", models.WrapError(models.ErrCodeOutputUnparseable, "special tool extraction output did not parse", err)
	}

	tool, ok := h.registry.Resolve(wire.ToolOperation)
	if !ok {
		return "", models.WrapError(models.ErrCodeGenerationFailed, "no registered special tool matches operation "+wire.ToolOperation, nil)
	}

	for _, p := range tool.Parameters {
		if p.Required {
			if _, present := wire.Parameters[p.Name]; !present {
				return "", models.WrapError(models.ErrCodeGenerationFailed, "special tool "+tool.Operation+" is missing required parameter "+p.Name, nil)
			}
		}
	}

	return tool.Invoke(ctx, h.api, wire.Parameters)
}
