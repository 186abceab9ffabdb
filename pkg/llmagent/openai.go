package llmagent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fctr-io/okta-query-engine/pkg/models"
)

// OpenAIConfig configures an OpenAIClient. BaseURL defaults to the
// standard OpenAI endpoint but accepts any OpenAI-compatible gateway
// (Azure OpenAI, local vLLM, etc.) following BaSui01-agentflow's
// openaicompat provider pattern of a configurable BaseURL.
type OpenAIConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// OpenAIClient implements AgentClient against an OpenAI-compatible chat
// completions endpoint. httpClient should already be wrapped with
// pkg/transport.RetryingTransport so 429/5xx are retried transparently
// beneath this layer, matching spec.md §4.3's "transport retries live in
// C2" boundary.
type OpenAIClient struct {
	httpClient *http.Client
	cfg        OpenAIConfig
}

// NewOpenAIClient builds an OpenAIClient. httpClient must not be nil.
func NewOpenAIClient(httpClient *http.Client, cfg OpenAIConfig) *OpenAIClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com"
	}
	return &OpenAIClient{httpClient: httpClient, cfg: cfg}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type       string         `json:"type"`
	JSONSchema map[string]any `json:"json_schema,omitempty"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type chatChoice struct {
	FinishReason string      `json:"finish_reason"`
	Message      chatMessage `json:"message"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
}

// Run implements AgentClient (spec.md §4.3).
func (c *OpenAIClient) Run(ctx context.Context, correlationID, agentName, systemPrompt, userMessage string, schema Schema) (Result, error) {
	start := time.Now()

	req := chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: RoleSystem, Content: systemPrompt},
			{Role: RoleUser, Content: userMessage},
		},
	}
	if len(schema) > 0 {
		req.ResponseFormat = &responseFormat{
			Type: "json_schema",
			JSONSchema: map[string]any{
				"name":   agentName,
				"schema": map[string]any(schema),
				"strict": true,
			},
		}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return Result{}, wrapRunError(models.ErrCodeTransportError, "failed to marshal agent request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Result{}, wrapRunError(models.ErrCodeTransportError, "failed to build agent request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Result{}, wrapRunError(models.ErrCodeTransportError, fmt.Sprintf("%s: request failed", agentName), err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, wrapRunError(models.ErrCodeTransportError, fmt.Sprintf("%s: failed to read response", agentName), err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		// C2's transport already retried this request to exhaustion and
		// returned its last response rather than an error (see
		// pkg/transport/transport.go) — a 429 reaching this layer means
		// retries are exhausted, not a fresh recoverable rate limit.
		return Result{}, wrapRunError(models.ErrCodeRateLimitExhaust, fmt.Sprintf("%s: rate limited after exhausting retries", agentName), nil)
	}
	if resp.StatusCode >= 400 {
		return Result{}, wrapRunError(models.ErrCodeTransportError, fmt.Sprintf("%s: provider returned HTTP %d: %s", agentName, resp.StatusCode, string(respBody)), nil)
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return Result{}, wrapRunError(models.ErrCodeOutputUnparseable, fmt.Sprintf("%s: unparseable provider response", agentName), err)
	}
	if len(parsed.Choices) == 0 {
		return Result{}, wrapRunError(models.ErrCodeOutputUnparseable, fmt.Sprintf("%s: provider returned no choices", agentName), nil)
	}

	choice := parsed.Choices[0]
	if choice.FinishReason == "content_filter" {
		return Result{}, wrapRunError(models.ErrCodeContentRefused, fmt.Sprintf("%s: provider refused the prompt or output", agentName), nil)
	}

	output := []byte(choice.Message.Content)
	if err := validateAgainstSchema(output, schema); err != nil {
		return Result{}, wrapRunError(models.ErrCodeSchemaViolation, fmt.Sprintf("%s: structured output failed validation", agentName), err)
	}

	usage := Usage{
		InputTokens:  parsed.Usage.PromptTokens,
		OutputTokens: parsed.Usage.CompletionTokens,
		TotalTokens:  parsed.Usage.TotalTokens,
	}

	(CallLogger{CorrelationID: correlationID}).LogCall(agentName, systemPrompt, userMessage, usage, time.Since(start))
	crossCheckUsage(correlationID, agentName, c.cfg.Model, usage, systemPrompt, userMessage, choice.Message.Content)

	return Result{
		Output: output,
		Usage:  usage,
		Messages: []Message{
			{Role: RoleSystem, Content: systemPrompt},
			{Role: RoleUser, Content: userMessage},
			{Role: RoleAssistant, Content: choice.Message.Content},
		},
	}, nil
}
