package executor

import "context"

// StepStatusEvent is one `step_status_update` SSE payload (spec.md §4.5
// step 6).
type StepStatusEvent struct {
	CorrelationID string
	Slot          string
	Position      int
	Tool          string
	Status        string // "running" | "completed" | "error"
	RecordCount   int
	ElapsedMS     int64
	Error         string
}

// EventPublisher is the Step Executor's half of the SSE contract. It is
// declared here, at the consumer, rather than in pkg/events — the same
// shape the teacher's agent.EventPublisher interface is declared in
// pkg/agent and implemented by pkg/events' ConnectionManager, not the
// other way around — so pkg/executor never imports pkg/events.
type EventPublisher interface {
	PublishStepStatus(ctx context.Context, correlationID string, payload StepStatusEvent) error
	PublishPlanError(ctx context.Context, correlationID, message string) error
	PublishPlanCancelled(ctx context.Context, correlationID string) error
}
