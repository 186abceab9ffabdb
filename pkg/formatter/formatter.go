// Package formatter is the Result Formatter (C6 final stage): turns a
// query plus its finished StepContext into the response object the
// client renders — a table or a markdown block (spec.md §4.6 "Result
// Formatter").
//
// Grounded on the teacher's pkg/agent/controller/synthesis.go (a final
// agent reading accumulated prior results to produce one summarizing
// output) and pkg/planner's established in-repo shape for a single
// LLM-call agent (instructions template + wire struct + Run method),
// generalized with a token-budget branch spec.md §4.6 requires: small
// results go straight to the LLM, large ones are summarized through a
// generated, sandbox-executed script instead (the same code path
// pkg/executor already exercises, reused here rather than duplicated).
package formatter

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/fctr-io/okta-query-engine/pkg/llmagent"
	"github.com/fctr-io/okta-query-engine/pkg/models"
	"github.com/fctr-io/okta-query-engine/pkg/safety"
	"github.com/fctr-io/okta-query-engine/pkg/sandbox"
	"github.com/fctr-io/okta-query-engine/pkg/tokencount"
)

// Result is the client-facing response object (spec.md §4.6 / §6.1
// `final_result` event payload).
type Result struct {
	DisplayType string // "table" | "markdown"
	Content     any
	Metadata    map[string]any
}

// Formatter produces one Result per completed query.
type Formatter struct {
	client         llmagent.AgentClient
	codeValidator  *safety.CodeValidator
	sandboxRunner  *sandbox.Runner
	tenantAPI      sandbox.TenantAPIConfig
	catalog        *models.Catalog
	llmModel       string
	tokenThreshold int
}

// New builds a Formatter. tokenThreshold is spec.md §4.6's T₁ (default
// ≈1000 tokens) — the cutoff between sending full data straight to the
// LLM and asking it to generate a summarizing script instead.
func New(
	client llmagent.AgentClient,
	codeValidator *safety.CodeValidator,
	sandboxRunner *sandbox.Runner,
	tenantAPI sandbox.TenantAPIConfig,
	catalog *models.Catalog,
	llmModel string,
	tokenThreshold int,
) *Formatter {
	if tokenThreshold <= 0 {
		tokenThreshold = 1000
	}
	return &Formatter{
		client:         client,
		codeValidator:  codeValidator,
		sandboxRunner:  sandboxRunner,
		tenantAPI:      tenantAPI,
		catalog:        catalog,
		llmModel:       llmModel,
		tokenThreshold: tokenThreshold,
	}
}

// Format produces the final Result for query given its finished
// StepContext.
func (f *Formatter) Format(ctx context.Context, correlationID, query string, stepCtx *models.StepContext) (Result, error) {
	artifacts := stepCtx.Ordered()

	if res, ok := fastPathResult(query, artifacts); ok {
		return res, nil
	}

	estimate, err := f.estimateFullDataTokens(artifacts)
	if err != nil {
		// A broken estimator must never block formatting; fall through to
		// the cheaper sample-based path, which is safe at any size.
		estimate = f.tokenThreshold + 1
	}

	if estimate < f.tokenThreshold {
		return f.formatWithFullData(ctx, correlationID, query, artifacts)
	}
	return f.formatWithGeneratedScript(ctx, correlationID, query, artifacts)
}

func (f *Formatter) estimateFullDataTokens(artifacts []models.StepArtifact) (int, error) {
	est := tokencount.NewEstimator(f.llmModel)
	total := 0
	for _, a := range artifacts {
		if !a.Success {
			continue
		}
		body, err := json.Marshal(a.FullData)
		if err != nil {
			return 0, err
		}
		n, err := est.Count(string(body))
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

func (f *Formatter) formatWithFullData(ctx context.Context, correlationID, query string, artifacts []models.StepArtifact) (Result, error) {
	prompt := buildFullDataPrompt(query, artifacts)

	result, err := f.client.Run(ctx, correlationID, "result_formatter_full", prompt, query, formatResponseSchema)
	if err != nil {
		return Result{}, models.WrapError(models.ErrCodeFormatterFailed, "result formatter agent call failed", err)
	}

	var wire formatWire
	if err := json.Unmarshal(result.Output, &wire); err != nil {
		return Result{}, models.WrapError(models.ErrCodeFormatterFailed, "result formatter output did not parse", err)
	}
	return Result{DisplayType: wire.DisplayType, Content: wire.Content, Metadata: wire.Metadata}, nil
}

func (f *Formatter) formatWithGeneratedScript(ctx context.Context, correlationID, query string, artifacts []models.StepArtifact) (Result, error) {
	prompt := buildSampleOnlyPrompt(query, artifacts)

	result, err := f.client.Run(ctx, correlationID, "result_formatter_script", prompt, query, formatScriptSchema)
	if err != nil {
		return Result{}, models.WrapError(models.ErrCodeFormatterFailed, "result formatter script agent call failed", err)
	}

	var wire formatScriptWire
	if err := json.Unmarshal(result.Output, &wire); err != nil {
		return Result{}, models.WrapError(models.ErrCodeFormatterFailed, "result formatter script output did not parse", err)
	}
	if wire.Script == "" {
		return Result{}, models.WrapError(models.ErrCodeFormatterFailed, "result formatter agent returned an empty script", nil)
	}

	if res := f.codeValidator.ValidateCode(wire.Script); !res.OK {
		return Result{}, models.WrapError(models.ErrCodeUnsafeCode, "generated formatting script rejected by safety validator: "+strings.Join(res.Violations, "; "), nil)
	}

	bindings := make(map[string]sandbox.Frame, len(artifacts))
	for _, a := range artifacts {
		if a.Success {
			if rows, ok := a.FullData.([]map[string]any); ok {
				bindings[a.StepSlot] = sandbox.Frame(rows)
			}
		}
	}

	sandboxResult, err := f.sandboxRunner.Execute(ctx, sandbox.Input{
		Script:      wire.Script,
		FullResults: bindings,
		Catalog:     f.catalog,
		API:         f.tenantAPI,
	})
	if err != nil {
		return Result{}, err
	}

	var wireResult formatWire
	if err := json.Unmarshal(sandboxResult.Raw, &wireResult); err != nil {
		return Result{}, models.WrapError(models.ErrCodeFormatterFailed, "generated formatting script did not print a valid response object", err)
	}
	return Result{DisplayType: wireResult.DisplayType, Content: wireResult.Content, Metadata: wireResult.Metadata}, nil
}
