// Package executor is the Step Executor (C5): drives a Plan step by
// step, maintains the StepContext, dispatches SQL steps to the
// relational mirror and API steps to the sandbox, and emits progress.
//
// Directly grounded on the teacher's pkg/queue/executor.go stage loop —
// sequential loop, per-step critical/non-critical fail-fast semantics,
// internal stageResult-shaped types — generalized from "stages of
// agents" to "steps of a Plan", and pkg/agent/context/stage_context.go
// for building bounded context strings from prior results (spec.md
// §4.5).
package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fctr-io/okta-query-engine/pkg/config"
	"github.com/fctr-io/okta-query-engine/pkg/metrics"
	"github.com/fctr-io/okta-query-engine/pkg/models"
	"github.com/fctr-io/okta-query-engine/pkg/safety"
	"github.com/fctr-io/okta-query-engine/pkg/sandbox"
	"github.com/fctr-io/okta-query-engine/pkg/tokencount"
)

// SQLCodeGenerator is the SQL Discovery phase agent's contract from the
// Step Executor's point of view: given a step and the bounded prior
// context, return a single SQL statement.
type SQLCodeGenerator interface {
	GenerateSQL(ctx context.Context, correlationID string, step models.Step, enhancedContext string) (string, error)
}

// APICodeGenerator is the API Discovery phase agent's contract: given a
// step and the bounded prior context, return a generated script plus the
// variable/requirement metadata the agent declared.
type APICodeGenerator interface {
	GenerateScript(ctx context.Context, correlationID string, step models.Step, enhancedContext string) (models.GeneratedCode, error)
}

// ArtifactStore persists per-step metadata for debugging/replay (not the
// in-memory full dataset). Implemented by pkg/database.ProcessStore.
type ArtifactStore interface {
	UpsertStep(ctx context.Context, correlationID string, step models.Step, artifact models.StepArtifact) error
}

// OutputMasker scrubs tenant secrets out of a decoded step result set
// before it is sampled, persisted, or handed to a downstream LLM call
// (Synthesis, the Formatter). Implemented by pkg/masking.Service;
// declared here, at the consumer, for the same reason every other
// collaborator interface in this package is — see pkg/executor/events.go.
type OutputMasker interface {
	MaskRows(rows []map[string]any) []map[string]any
}

// Executor drives one Plan to completion.
type Executor struct {
	cfg      config.ExecutorConfig
	llmModel string

	codeValidator *safety.CodeValidator
	sqlRunner     *SQLRunner
	sandboxRunner *sandbox.Runner
	tenantAPI     sandbox.TenantAPIConfig
	catalog       *models.Catalog

	sqlGen SQLCodeGenerator
	apiGen APICodeGenerator

	store       ArtifactStore
	events      EventPublisher
	artifactLog *ArtifactLog
	masker      OutputMasker
}

// New builds an Executor from its collaborators. store, events, and
// artifactLog may all be nil — each write-path is nil-safe and
// best-effort, matching the teacher's updateSessionProgress/
// publishStageStatus pattern of "log a warning, never abort the chain".
func New(
	cfg config.ExecutorConfig,
	llmModel string,
	codeValidator *safety.CodeValidator,
	sqlRunner *SQLRunner,
	sandboxRunner *sandbox.Runner,
	tenantAPI sandbox.TenantAPIConfig,
	catalog *models.Catalog,
	sqlGen SQLCodeGenerator,
	apiGen APICodeGenerator,
	store ArtifactStore,
	events EventPublisher,
	artifactLog *ArtifactLog,
	masker OutputMasker,
) *Executor {
	return &Executor{
		cfg:           cfg,
		llmModel:      llmModel,
		codeValidator: codeValidator,
		sqlRunner:     sqlRunner,
		sandboxRunner: sandboxRunner,
		tenantAPI:     tenantAPI,
		catalog:       catalog,
		sqlGen:        sqlGen,
		apiGen:        apiGen,
		store:         store,
		events:        events,
		artifactLog:   artifactLog,
		masker:        masker,
	}
}

// Result is the outcome of driving a Plan through Execute.
type Result struct {
	StepContext   *models.StepContext
	Status        models.ProcessStatus
	Err           error
	TokenEstimate int
}

// Execute runs plan's steps in order (spec.md §4.5 "Execution loop").
// isCancelled is polled before each step and whenever ctx itself is
// already done; either firing emits plan_cancelled and stops the loop.
// A critical step's failure emits plan_error and stops the loop
// (fail-fast); a non-critical step's failure is recorded and the loop
// continues.
func (e *Executor) Execute(ctx context.Context, correlationID string, plan *models.Plan, isCancelled func() bool) Result {
	stepCtx := models.NewStepContext()
	logger := slog.With("correlation_id", correlationID)

	for _, step := range plan.Steps {
		if e.cancelled(ctx, isCancelled) {
			logger.Info("plan cancelled before step", "slot", step.Slot())
			e.publishCancelled(ctx, correlationID)
			return Result{StepContext: stepCtx, Status: models.StatusCancelled, Err: models.ErrCancelled, TokenEstimate: e.estimateTokens(stepCtx)}
		}

		artifact, stepErr := e.runStep(ctx, correlationID, step, stepCtx)
		stepCtx.Put(step.Slot(), artifact)
		e.persistStep(ctx, correlationID, step, artifact)
		e.publishStepStatus(ctx, correlationID, step, artifact)

		if stepErr != nil {
			logger.Warn("step failed", "slot", step.Slot(), "critical", step.Critical, "error", stepErr)
			if step.Critical {
				e.publishPlanError(ctx, correlationID, stepErr.Error())
				return Result{StepContext: stepCtx, Status: models.StatusError, Err: stepErr, TokenEstimate: e.estimateTokens(stepCtx)}
			}
		}
	}

	status := models.StatusCompleted
	for _, a := range stepCtx.Ordered() {
		if !a.Success {
			status = models.StatusCompletedWithErrors
			break
		}
	}
	return Result{StepContext: stepCtx, Status: status, TokenEstimate: e.estimateTokens(stepCtx)}
}

func (e *Executor) cancelled(ctx context.Context, isCancelled func() bool) bool {
	if isCancelled != nil && isCancelled() {
		return true
	}
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// runStep builds the enhanced context and dispatches to the tool-specific
// path (spec.md §4.5 steps 1-5).
func (e *Executor) runStep(ctx context.Context, correlationID string, step models.Step, stepCtx *models.StepContext) (models.StepArtifact, error) {
	start := time.Now()
	enhancedContext := buildEnhancedContext(stepCtx.Ordered())

	switch step.Tool {
	case models.ToolSQL:
		return e.runSQLStep(ctx, correlationID, step, enhancedContext, start)
	case models.ToolAPI:
		return e.runAPIStep(ctx, correlationID, step, enhancedContext, stepCtx, start)
	default:
		err := models.WrapError(models.ErrCodeGenerationFailed, fmt.Sprintf("step %d has unknown tool %q", step.Position, step.Tool), nil)
		return errorArtifact(start, err), err
	}
}

func (e *Executor) runSQLStep(ctx context.Context, correlationID string, step models.Step, enhancedContext string, start time.Time) (models.StepArtifact, error) {
	sqlText, err := e.sqlGen.GenerateSQL(ctx, correlationID, step, enhancedContext)
	if err != nil {
		wrapped := models.WrapError(models.ErrCodeGenerationFailed, "sql code-gen failed", err)
		return errorArtifact(start, wrapped), wrapped
	}

	if res := e.codeValidator.ValidateCode(sqlText); !res.OK {
		wrapped := models.WrapError(models.ErrCodeUnsafeCode, "generated SQL rejected by safety validator: "+strings.Join(res.Violations, "; "), nil)
		return errorArtifact(start, wrapped), wrapped
	}

	e.appendGeneratedCode(correlationID, "sql_discovery", step, models.GeneratedCode{SourceText: sqlText})

	rows, err := e.sqlRunner.Run(ctx, sqlText)
	if err != nil {
		return errorArtifact(start, err), err
	}
	return e.successArtifact(start, rows), nil
}

func (e *Executor) runAPIStep(ctx context.Context, correlationID string, step models.Step, enhancedContext string, stepCtx *models.StepContext, start time.Time) (models.StepArtifact, error) {
	gen, err := e.apiGen.GenerateScript(ctx, correlationID, step, enhancedContext)
	if err != nil {
		wrapped := models.WrapError(models.ErrCodeGenerationFailed, "api code-gen failed", err)
		return errorArtifact(start, wrapped), wrapped
	}

	if res := e.codeValidator.ValidateCode(gen.SourceText); !res.OK {
		wrapped := models.WrapError(models.ErrCodeUnsafeCode, "generated script rejected by safety validator: "+strings.Join(res.Violations, "; "), nil)
		return errorArtifact(start, wrapped), wrapped
	}

	e.appendGeneratedCode(correlationID, "api_discovery", step, gen)

	result, err := e.sandboxRunner.Execute(ctx, sandbox.Input{
		Script:      gen.SourceText,
		FullResults: priorResultsFor(stepCtx),
		Catalog:     e.catalog,
		API:         e.tenantAPI,
	})
	if err != nil {
		return errorArtifact(start, err), err
	}

	rows, err := decodeRows(result.Raw)
	if err != nil {
		wrapped := models.WrapError(models.ErrCodeOutputUnparseable, "sandbox output was not a JSON array or object", err)
		return errorArtifact(start, wrapped), wrapped
	}

	artifact := e.successArtifact(start, rows)
	artifact.ElapsedMS = result.ElapsedMS
	return artifact, nil
}

// priorResultsFor converts every already-completed artifact's full data
// into the sandbox's Frame-keyed binding map (spec.md §4.5 "Cross-step
// data flow": `full_results["2_api"]`).
func priorResultsFor(stepCtx *models.StepContext) map[string]sandbox.Frame {
	artifacts := stepCtx.Ordered()
	out := make(map[string]sandbox.Frame, len(artifacts))
	for _, a := range artifacts {
		if !a.Success {
			continue
		}
		if rows, ok := a.FullData.([]map[string]any); ok {
			out[a.StepSlot] = sandbox.Frame(rows)
		}
	}
	return out
}

func decodeRows(raw json.RawMessage) ([]map[string]any, error) {
	var rows []map[string]any
	if err := json.Unmarshal(raw, &rows); err == nil {
		return rows, nil
	}
	var single map[string]any
	if err := json.Unmarshal(raw, &single); err != nil {
		return nil, err
	}
	return []map[string]any{single}, nil
}

func errorArtifact(start time.Time, err error) models.StepArtifact {
	return models.StepArtifact{
		Success:   false,
		Error:     err.Error(),
		ElapsedMS: time.Since(start).Milliseconds(),
		Status:    "error",
	}
}

func (e *Executor) successArtifact(start time.Time, rows []map[string]any) models.StepArtifact {
	if e.masker != nil {
		rows = e.masker.MaskRows(rows)
	}
	sample, schema := buildSample(rows, e.cfg.SampleRowsPerStep, e.cfg.SampleStringChars, e.cfg.SampleListItems)
	return models.StepArtifact{
		FullData:     rows,
		Sample:       sample,
		RecordCount:  len(rows),
		ColumnSchema: schema,
		Success:      true,
		ElapsedMS:    time.Since(start).Milliseconds(),
		Status:       "completed",
	}
}

func (e *Executor) persistStep(ctx context.Context, correlationID string, step models.Step, a models.StepArtifact) {
	if e.store == nil {
		return
	}
	if err := e.store.UpsertStep(ctx, correlationID, step, a); err != nil {
		slog.Warn("failed to persist step artifact", "correlation_id", correlationID, "slot", step.Slot(), "error", err)
	}
}

func (e *Executor) appendGeneratedCode(correlationID, phase string, step models.Step, gen models.GeneratedCode) {
	if e.artifactLog == nil {
		return
	}
	rec := models.ArtifactRecord{
		CorrelationID: correlationID,
		Phase:         phase,
		Slot:          step.Slot(),
		GeneratedCode: gen,
		RecordedAt:    time.Now().Format(time.RFC3339),
	}
	if err := e.artifactLog.Append(rec); err != nil {
		slog.Warn("failed to append artifact record", "correlation_id", correlationID, "slot", step.Slot(), "error", err)
	}
}

func (e *Executor) publishStepStatus(ctx context.Context, correlationID string, step models.Step, a models.StepArtifact) {
	status := "completed"
	if !a.Success {
		status = "error"
	}
	metrics.StepsTotal.WithLabelValues(string(step.Tool), status).Inc()

	if e.events == nil {
		return
	}
	if err := e.events.PublishStepStatus(ctx, correlationID, StepStatusEvent{
		CorrelationID: correlationID,
		Slot:          step.Slot(),
		Position:      step.Position,
		Tool:          string(step.Tool),
		Status:        status,
		RecordCount:   a.RecordCount,
		ElapsedMS:     a.ElapsedMS,
		Error:         a.Error,
	}); err != nil {
		slog.Warn("failed to publish step status", "correlation_id", correlationID, "slot", step.Slot(), "error", err)
	}
}

func (e *Executor) publishPlanError(ctx context.Context, correlationID, message string) {
	if e.events == nil {
		return
	}
	if err := e.events.PublishPlanError(ctx, correlationID, message); err != nil {
		slog.Warn("failed to publish plan error", "correlation_id", correlationID, "error", err)
	}
}

func (e *Executor) publishCancelled(ctx context.Context, correlationID string) {
	if e.events == nil {
		return
	}
	if err := e.events.PublishPlanCancelled(ctx, correlationID); err != nil {
		slog.Warn("failed to publish plan cancelled", "correlation_id", correlationID, "error", err)
	}
}

// estimateTokens computes the token-budget handoff to the Result
// Formatter (spec.md §4.5 "Token-budget mode selection"): a rough count
// of every step's full data, not just the samples.
func (e *Executor) estimateTokens(stepCtx *models.StepContext) int {
	est := tokencount.NewEstimator(e.llmModel)
	total := 0
	for _, a := range stepCtx.Ordered() {
		body, err := json.Marshal(a.FullData)
		if err != nil {
			continue
		}
		n, err := est.Count(string(body))
		if err != nil {
			continue
		}
		total += n
	}
	return total
}
