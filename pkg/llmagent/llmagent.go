// Package llmagent is the LLM Agent Wrapper (C3): a single call shape for
// every agent in the pipeline — "given a system prompt, a user message,
// and typed dependencies, return a typed structured output and a token
// usage report" (spec.md §4.3).
//
// Grounded on the teacher's pkg/agent/llm_client.go (LLMClient interface,
// conversation message roles, Usage reporting) adapted from tarsy's
// streaming-chunk contract to a single structured-result call, and on
// BaSui01-agentflow's llm/provider.go (Provider interface, ChatRequest/
// ChatResponse/ChatUsage shapes) for the request/response field layout.
package llmagent

import (
	"context"
	"log/slog"
	"time"

	"github.com/fctr-io/okta-query-engine/pkg/models"
	"github.com/fctr-io/okta-query-engine/pkg/tokencount"
)

// Message roles, matching the teacher's pkg/agent/llm_client.go constants.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a conversation sent to the provider.
type Message struct {
	Role    string
	Content string
}

// Usage reports token consumption for one agent call (spec.md §4.3).
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// Deps carries the typed, call-specific values a prompt template needs
// (catalog subset, prior artifacts, query text, ...). The agent layer
// treats it opaquely; only the prompt-building caller interprets it.
type Deps map[string]any

// Result is what Run returns on success.
type Result struct {
	Output   []byte // raw JSON, validated against Schema by the caller
	Usage    Usage
	Messages []Message
}

// Schema is a JSON Schema document (as a decoded map) that the provider's
// structured output must validate against.
type Schema map[string]any

// AgentClient is the C3 contract. Implementations own exactly one
// upstream provider connection; callers construct one per provider and
// reuse it.
type AgentClient interface {
	// Run sends systemPrompt/userMessage to the provider and returns a
	// structured JSON result validated against schema. Schema failures
	// surface as models.ErrCodeSchemaViolation, transport failures as
	// models.ErrCodeTransportError, and safety/guardrail refusals as
	// models.ErrCodeContentRefused — no retries happen at this layer
	// (spec.md §4.3: "one try, then fail"; transport retries live in C2).
	Run(ctx context.Context, correlationID, agentName, systemPrompt, userMessage string, schema Schema) (Result, error)
}

// CallLogger logs the observability line spec.md §4.3 requires: every
// call logs tokens in/out at info, and the full rendered prompt at debug.
type CallLogger struct {
	CorrelationID string
}

// LogCall emits the required info/debug log pair around an agent call.
func (l CallLogger) LogCall(agentName, systemPrompt, userMessage string, usage Usage, elapsed time.Duration) {
	slog.Info("agent call completed",
		"correlation_id", l.CorrelationID,
		"agent", agentName,
		"tokens_in", usage.InputTokens,
		"tokens_out", usage.OutputTokens,
		"elapsed_ms", elapsed.Milliseconds(),
	)
	slog.Debug("agent call prompt",
		"correlation_id", l.CorrelationID,
		"agent", agentName,
		"system_prompt", systemPrompt,
		"user_message", userMessage,
	)
}

// crossCheckUsage logs when the provider-reported usage and a local
// tokencount estimate diverge by more than 20% (SPEC_FULL.md §6.3).
func crossCheckUsage(correlationID, agentName, model string, reported Usage, systemPrompt, userMessage, output string) {
	est := tokencount.NewEstimator(model)
	inEstimate, err := est.CountMessages([][2]string{{RoleSystem, systemPrompt}, {RoleUser, userMessage}})
	if err != nil {
		return
	}
	outEstimate, err := est.Count(output)
	if err != nil {
		return
	}
	if tokencount.Diverges(inEstimate, reported.InputTokens, 0.2) || tokencount.Diverges(outEstimate, reported.OutputTokens, 0.2) {
		slog.Warn("token usage estimate diverges from provider report",
			"correlation_id", correlationID,
			"agent", agentName,
			"estimated_in", inEstimate,
			"reported_in", reported.InputTokens,
			"estimated_out", outEstimate,
			"reported_out", reported.OutputTokens,
		)
	}
}

// wrapRunError tags a raw provider error with the right PipelineError
// code, per spec.md §4.3's three-way error taxonomy.
func wrapRunError(code models.ErrCode, message string, err error) error {
	return models.WrapError(code, message, err)
}
