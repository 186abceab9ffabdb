package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fctr-io/okta-query-engine/pkg/executor"
)

// Publisher adapts a Manager to the typed event-publishing contracts the
// rest of the pipeline calls. It implements executor.EventPublisher
// structurally (pkg/executor never imports this package — see
// pkg/executor/events.go) plus the additional plan_status/final_result
// events spec.md §6.1 names, which are published by the query driver
// (pkg/process) rather than the Step Executor.
type Publisher struct {
	manager *Manager
}

// NewPublisher wraps manager.
func NewPublisher(manager *Manager) *Publisher {
	return &Publisher{manager: manager}
}

func (p *Publisher) broadcast(processID string, typ Type, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", typ, err)
	}
	p.manager.Broadcast(Event{ProcessID: processID, Type: typ, Data: data})
	return nil
}

// PublishPlanStatus emits a plan_status event.
func (p *Publisher) PublishPlanStatus(ctx context.Context, processID, status, message string) error {
	return p.broadcast(processID, TypePlanStatus, PlanStatusPayload{
		ProcessID: processID,
		Status:    status,
		Message:   message,
	})
}

// PublishFinalResult emits the final_result terminal event.
func (p *Publisher) PublishFinalResult(ctx context.Context, processID string, resultContent any, displayType, message string) error {
	return p.broadcast(processID, TypeFinalResult, FinalResultPayload{
		ProcessID:     processID,
		Status:        "completed",
		ResultContent: resultContent,
		DisplayType:   displayType,
		Message:       message,
	})
}

// PublishStepStatus implements executor.EventPublisher: emits a
// step_status_update event for one step transition.
func (p *Publisher) PublishStepStatus(ctx context.Context, correlationID string, payload executor.StepStatusEvent) error {
	var resultSummary string
	if payload.Status == "completed" {
		resultSummary = fmt.Sprintf("%d record(s) in %dms", payload.RecordCount, payload.ElapsedMS)
	}
	return p.broadcast(correlationID, TypeStepStatusUpdate, StepStatusPayload{
		ProcessID:       correlationID,
		StepIndex:       payload.Position,
		Status:          payload.Status,
		OperationStatus: payload.Tool,
		ResultSummary:   resultSummary,
		ErrorMessage:    payload.Error,
	})
}

// PublishPlanError implements executor.EventPublisher: emits the
// plan_error terminal event (spec.md §7's single plain-message terminal
// event for a critical/unrecoverable failure).
func (p *Publisher) PublishPlanError(ctx context.Context, correlationID, message string) error {
	return p.broadcast(correlationID, TypePlanError, PlanErrorPayload{
		ProcessID: correlationID,
		Status:    "error",
		Message:   message,
	})
}

// PublishPlanCancelled implements executor.EventPublisher: emits the
// plan_cancelled terminal event.
func (p *Publisher) PublishPlanCancelled(ctx context.Context, correlationID string) error {
	return p.broadcast(correlationID, TypePlanCancelled, PlanCancelledPayload{
		ProcessID: correlationID,
		Message:   "Query cancelled.",
	})
}
