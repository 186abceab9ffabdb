// Package process is the query driver (C4/C5/C6 orchestration): it turns
// one sanitized query into a plan, then — on first SSE subscription —
// drives that plan through the Step Executor and Result Formatter (or the
// Special-Tools handler), publishing the five SSE events spec.md §6.1
// names and persisting state transitions through pkg/database.ProcessStore.
//
// It replaces the teacher's pkg/session (a bare in-memory CRUD map) with
// the shape the teacher actually uses to run work: pkg/queue/pool.go's
// WorkerPool registers a session's cancel func, runs its stages, and
// unregisters it when done. This package is that same loop, generalized
// from "a pool of worker goroutines polling a queue" to "one goroutine
// per query, started lazily by the first SSE subscriber" — spec.md §6.1
// requires GET /stream-updates/{process_id} to start execution itself
// ("if not already running"), so there is no background worker pool here,
// only the registry (see registry.go) that makes that first-subscriber
// race safe.
package process

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fctr-io/okta-query-engine/pkg/database"
	"github.com/fctr-io/okta-query-engine/pkg/executor"
	"github.com/fctr-io/okta-query-engine/pkg/formatter"
	"github.com/fctr-io/okta-query-engine/pkg/masking"
	"github.com/fctr-io/okta-query-engine/pkg/metrics"
	"github.com/fctr-io/okta-query-engine/pkg/models"
	"github.com/fctr-io/okta-query-engine/pkg/router"
	"github.com/google/uuid"
)

// Store is the persistence contract the driver needs from
// pkg/database.ProcessStore — declared here, at the consumer, for the
// same forward-reference-avoidance reason every other collaborator
// interface in this pipeline is (see pkg/executor/executor.go's
// ArtifactStore/OutputMasker doc comments).
type Store interface {
	CreateProcess(ctx context.Context, q models.Query) error
	GetProcess(ctx context.Context, correlationID string) (*database.ProcessRecord, error)
	SetPlan(ctx context.Context, correlationID string, plan *models.Plan, phase models.Phase) error
	UpdateStatus(ctx context.Context, correlationID string, status models.ProcessStatus) error
	SetResult(ctx context.Context, correlationID, content, displayType string) error
	SetError(ctx context.Context, correlationID, message string) error
}

// EventPublisher is the subset of pkg/events.Publisher the driver calls
// directly: the plan_status/final_result/plan_error/plan_cancelled
// events outside the Step Executor's own publishing scope (see
// pkg/executor/executor.go's EventPublisher and pkg/events/publisher.go).
type EventPublisher interface {
	PublishPlanStatus(ctx context.Context, processID, status, message string) error
	PublishFinalResult(ctx context.Context, processID string, resultContent any, displayType, message string) error
	PublishPlanError(ctx context.Context, correlationID, message string) error
	PublishPlanCancelled(ctx context.Context, correlationID string) error
}

// Classifier is the Router's contract from the driver's point of view.
type Classifier interface {
	Run(ctx context.Context, correlationID, query string) (router.RouteResult, error)
}

// StepRunner is the Step Executor's contract.
type StepRunner interface {
	Execute(ctx context.Context, correlationID string, plan *models.Plan, isCancelled func() bool) executor.Result
}

// ResultFormatter is the Result Formatter's contract.
type ResultFormatter interface {
	Format(ctx context.Context, correlationID, query string, stepCtx *models.StepContext) (formatter.Result, error)
}

// SpecialToolRunner is the Special-Tools handler's contract (spec.md
// §4.6 "Special-Tools handler").
type SpecialToolRunner interface {
	Run(ctx context.Context, correlationID, query string) (string, error)
}

// PlanStep is one entry of PlanResponse.Steps — spec.md §6.1's
// `POST /start-process` response shape.
type PlanStep struct {
	ID        string
	ToolName  string
	Entity    string
	Operation string
	Reason    string
	Critical  bool
	Status    string
}

// PlanResponse is what POST /start-process returns: the freshly-created
// process id plus the plan the Router/Pre-Planner/Planner just produced
// (spec.md §6.1 `{process_id, plan{reasoning, confidence?, steps[...]}}`).
// For a SPECIAL query Steps is empty — "On SPECIAL, execution bypasses
// planning" (spec.md §4.6).
type PlanResponse struct {
	ProcessID  string
	Reasoning  string
	Confidence int
	Steps      []PlanStep
}

// Driver wires one query through Router -> (Pre-Planner+Planner) ->
// Step Executor -> Result Formatter, or Router -> Special-Tools handler,
// per spec.md §5's "Router -> Planner -> Steps in order -> Formatter"
// control flow.
type Driver struct {
	store    Store
	registry *Registry
	events   EventPublisher

	classifier Classifier
	planBuild  PlanBuilder
	steps      StepRunner
	format     ResultFormatter
	special    SpecialToolRunner

	// logMasker is optional — nil means query text is logged unmasked.
	// Matches the teacher's pkg/services/alert_service.go optional-nil
	// collaborator idiom (maskingService *masking.Service).
	logMasker *masking.Service
}

// NewDriver builds a Driver from its collaborators. logMasker may be nil.
func NewDriver(
	store Store,
	registry *Registry,
	events EventPublisher,
	classifier Classifier,
	planBuild PlanBuilder,
	steps StepRunner,
	format ResultFormatter,
	special SpecialToolRunner,
	logMasker *masking.Service,
) *Driver {
	return &Driver{
		store:      store,
		registry:   registry,
		events:     events,
		classifier: classifier,
		planBuild:  planBuild,
		steps:      steps,
		format:     format,
		special:    special,
		logMasker:  logMasker,
	}
}

// StartProcess ingresses a raw query: sanitizes it, persists a new
// process record, classifies it with the Router, and — unless it
// classified SPECIAL — runs the Pre-Planner/Planner to produce a
// validated Plan. It registers the query in the active-process registry
// so a later call to Execute can resume it, but never runs a step itself
// (spec.md §6.1: `POST /start-process` "runs Router + Planner
// synchronously, stores the plan, returns it"; execution starts from
// `GET /stream-updates/{process_id}`).
func (d *Driver) StartProcess(ctx context.Context, rawText, userIdentity string) (PlanResponse, error) {
	correlationID := uuid.New().String()
	logger := slog.With("correlation_id", correlationID)

	sanitized := router.Sanitize(rawText)
	for _, w := range sanitized.Warnings {
		logger.Warn("sanitizer warning", "warning", w)
	}

	logText := rawText
	if d.logMasker != nil {
		logText = d.logMasker.MaskLogLine(rawText)
	}
	logger.Info("process started", "query", logText)

	query := models.Query{
		CorrelationID:  correlationID,
		RawText:        rawText,
		SanitizedText:  sanitized.Sanitized,
		SanitizerWarns: sanitized.Warnings,
		UserIdentity:   userIdentity,
		CreatedAt:      time.Now(),
	}
	if err := d.store.CreateProcess(ctx, query); err != nil {
		return PlanResponse{}, fmt.Errorf("create process: %w", err)
	}

	if err := d.store.UpdateStatus(ctx, correlationID, models.StatusPlanGeneration); err != nil {
		logger.Error("failed to mark process plan_generation", "error", err)
	}
	d.publishPlanStatus(ctx, correlationID, string(models.StatusPlanGeneration), "Classifying query")

	route, err := d.classifier.Run(ctx, correlationID, sanitized.Sanitized)
	if err != nil {
		d.abortPlanning(ctx, correlationID, err)
		return PlanResponse{}, err
	}

	var plan *models.Plan
	if route.Phase == models.PhaseSpecial {
		plan = &models.Plan{Reasoning: route.Reasoning}
	} else {
		plan, err = d.planBuild.Run(ctx, correlationID, sanitized.Sanitized)
		if err != nil {
			d.abortPlanning(ctx, correlationID, err)
			return PlanResponse{}, err
		}
	}

	if err := d.store.SetPlan(ctx, correlationID, plan, route.Phase); err != nil {
		logger.Error("failed to persist plan", "error", err)
	}
	d.publishPlanStatus(ctx, correlationID, string(models.StatusPlanGenerated), "Plan ready")

	d.registry.Register(context.Background(), correlationID, query, route.Phase, plan)

	return toPlanResponse(correlationID, plan), nil
}

// Execute starts (or no-ops on) the execution of an already-planned
// process. Safe to call from every GET /stream-updates request for the
// same process id — only the first call actually runs the pipeline; the
// rest just attach their SSE connection to the events already in flight.
// An id that is neither registered nor known to the store is an error.
func (d *Driver) Execute(correlationID string) error {
	if !d.registry.MarkStarted(correlationID) {
		if _, _, _, _, ok := d.registry.State(correlationID); ok {
			return nil
		}
		// Not registered: a finished process still has its terminal event
		// replayed by the SSE layer, so only an unknown id is an error.
		if _, err := d.store.GetProcess(context.Background(), correlationID); err != nil {
			return fmt.Errorf("process %s is not active: %w", correlationID, err)
		}
		return nil
	}

	ctx, query, phase, plan, ok := d.registry.State(correlationID)
	if !ok {
		return fmt.Errorf("process %s is not active", correlationID)
	}

	if err := d.store.UpdateStatus(ctx, correlationID, models.StatusRunning); err != nil {
		slog.Error("failed to mark process running", "correlation_id", correlationID, "error", err)
	}

	go d.run(ctx, correlationID, query, phase, plan)
	return nil
}

// Cancel requests cancellation of correlationID's planned query, whether
// or not execution has started. Returns false if the process is unknown
// to the registry (still planning, finished, or never created).
func (d *Driver) Cancel(correlationID string) bool {
	return d.registry.Cancel(correlationID)
}

// Lookup returns the persisted ProcessRecord for correlationID.
func (d *Driver) Lookup(ctx context.Context, correlationID string) (*database.ProcessRecord, error) {
	return d.store.GetProcess(ctx, correlationID)
}

func (d *Driver) run(ctx context.Context, correlationID string, query models.Query, phase models.Phase, plan *models.Plan) {
	defer d.registry.Unregister(correlationID)

	if phase == models.PhaseSpecial {
		d.runSpecial(ctx, correlationID, query)
		return
	}

	result := d.steps.Execute(ctx, correlationID, plan, nil)
	if err := d.store.UpdateStatus(context.Background(), correlationID, result.Status); err != nil {
		slog.Error("failed to persist final status", "correlation_id", correlationID, "error", err)
	}

	switch result.Status {
	case models.StatusCancelled:
		metrics.QueriesTotal.WithLabelValues(string(models.StatusCancelled)).Inc()
		// plan_cancelled already published by the Step Executor itself.
		return
	case models.StatusError:
		metrics.QueriesTotal.WithLabelValues(string(models.StatusError)).Inc()
		if err := d.store.SetError(context.Background(), correlationID, result.Err.Error()); err != nil {
			slog.Error("failed to persist error message", "correlation_id", correlationID, "error", err)
		}
		// plan_error already published by the Step Executor itself.
		return
	}

	formatted, err := d.format.Format(ctx, correlationID, query.SanitizedText, result.StepContext)
	if err != nil {
		slog.Error("result formatter failed", "correlation_id", correlationID, "error", err)
		d.failTerminal(correlationID, err)
		return
	}

	d.finish(correlationID, formatted)
}

func (d *Driver) runSpecial(ctx context.Context, correlationID string, query models.Query) {
	content, err := d.special.Run(ctx, correlationID, query.SanitizedText)
	if err != nil {
		slog.Error("special-tools handler failed", "correlation_id", correlationID, "error", err)
		d.failTerminal(correlationID, err)
		return
	}
	if err := d.store.UpdateStatus(context.Background(), correlationID, models.StatusCompleted); err != nil {
		slog.Error("failed to mark special-tools process completed", "correlation_id", correlationID, "error", err)
	}
	d.finish(correlationID, formatter.Result{DisplayType: "markdown", Content: content})
}

func (d *Driver) finish(correlationID string, result formatter.Result) {
	metrics.QueriesTotal.WithLabelValues(string(models.StatusCompleted)).Inc()
	content, err := json.Marshal(result.Content)
	if err != nil {
		slog.Error("failed to marshal final result for persistence", "correlation_id", correlationID, "error", err)
	}
	if err := d.store.SetResult(context.Background(), correlationID, string(content), result.DisplayType); err != nil {
		slog.Error("failed to persist final result", "correlation_id", correlationID, "error", err)
	}
	if d.events == nil {
		return
	}
	if err := d.events.PublishFinalResult(context.Background(), correlationID, result.Content, result.DisplayType, "Query completed."); err != nil {
		slog.Error("failed to publish final_result", "correlation_id", correlationID, "error", err)
	}
}

// failTerminal persists a terminal error and publishes plan_error for a
// failure the Step Executor itself never saw — the Result Formatter, or
// the Special-Tools handler.
func (d *Driver) failTerminal(correlationID string, err error) {
	metrics.QueriesTotal.WithLabelValues(string(models.StatusError)).Inc()
	if dbErr := d.store.SetError(context.Background(), correlationID, err.Error()); dbErr != nil {
		slog.Error("failed to persist error message", "correlation_id", correlationID, "error", dbErr)
	}
	if dbErr := d.store.UpdateStatus(context.Background(), correlationID, models.StatusError); dbErr != nil {
		slog.Error("failed to mark process errored", "correlation_id", correlationID, "error", dbErr)
	}
	if d.events == nil {
		return
	}
	if pubErr := d.events.PublishPlanError(context.Background(), correlationID, userFacingFailureMessage); pubErr != nil {
		slog.Error("failed to publish plan_error", "correlation_id", correlationID, "error", pubErr)
	}
}

// abortPlanning handles a Router/Planner failure that happens before the
// query is ever registered for execution. A cancellation that lands
// mid-planning (the client disconnected while the LLM call was still in
// flight) must still resolve to plan_cancelled, not plan_error — spec.md
// §5 "Cancellation semantics" makes no exception for the planning stage.
func (d *Driver) abortPlanning(ctx context.Context, correlationID string, err error) {
	cancelled := ctx.Err() != nil || errors.Is(err, context.Canceled)

	status := models.StatusError
	if cancelled {
		status = models.StatusCancelled
	}
	metrics.QueriesTotal.WithLabelValues(string(status)).Inc()
	if dbErr := d.store.UpdateStatus(context.Background(), correlationID, status); dbErr != nil {
		slog.Error("failed to mark process terminal after planning failure", "correlation_id", correlationID, "error", dbErr)
	}
	if !cancelled {
		if dbErr := d.store.SetError(context.Background(), correlationID, err.Error()); dbErr != nil {
			slog.Error("failed to persist planning error message", "correlation_id", correlationID, "error", dbErr)
		}
	}

	if d.events != nil {
		if cancelled {
			if pubErr := d.events.PublishPlanCancelled(context.Background(), correlationID); pubErr != nil {
				slog.Error("failed to publish plan_cancelled", "correlation_id", correlationID, "error", pubErr)
			}
		} else if pubErr := d.events.PublishPlanError(context.Background(), correlationID, userFacingFailureMessage); pubErr != nil {
			slog.Error("failed to publish plan_error", "correlation_id", correlationID, "error", pubErr)
		}
	}
}

func (d *Driver) publishPlanStatus(ctx context.Context, correlationID, status, message string) {
	if d.events == nil {
		return
	}
	if err := d.events.PublishPlanStatus(ctx, correlationID, status, message); err != nil {
		slog.Error("failed to publish plan_status", "correlation_id", correlationID, "status", status, "error", err)
	}
}

// userFacingFailureMessage is the deliberately plain terminal message
// spec.md §7 "User-visible failure behavior" specifies verbatim.
const userFacingFailureMessage = "The AI model returned malformed output. Please try again."

func toPlanResponse(correlationID string, plan *models.Plan) PlanResponse {
	steps := make([]PlanStep, 0, len(plan.Steps))
	for _, s := range plan.Steps {
		steps = append(steps, PlanStep{
			ID:        s.Slot(),
			ToolName:  string(s.Tool),
			Entity:    s.Entity,
			Operation: s.Operation,
			Reason:    s.Reasoning,
			Critical:  s.Critical,
			Status:    "pending",
		})
	}
	return PlanResponse{
		ProcessID:  correlationID,
		Reasoning:  plan.Reasoning,
		Confidence: plan.Confidence,
		Steps:      steps,
	}
}
