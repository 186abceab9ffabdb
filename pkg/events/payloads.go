package events

// PlanStatusPayload is the plan_status event body (spec.md §6.1).
// Emitted once Router+Planner have produced a plan and again whenever
// the query transitions between non-terminal states while running.
type PlanStatusPayload struct {
	ProcessID string `json:"process_id"`
	Status    string `json:"status"`
	Message   string `json:"message"`
}

// StepStatusPayload is the step_status_update event body (spec.md §6.1),
// one per step transition the Step Executor reports.
type StepStatusPayload struct {
	ProcessID       string `json:"process_id"`
	StepIndex       int    `json:"step_index"`
	Status          string `json:"status"` // running | completed | error
	OperationStatus string `json:"operation_status"`
	ResultSummary   string `json:"result_summary,omitempty"`
	ErrorMessage    string `json:"error_message,omitempty"`
}

// FinalResultPayload is the final_result event body (spec.md §6.1), the
// terminal event for a query that ran to completion.
type FinalResultPayload struct {
	ProcessID     string `json:"process_id"`
	Status        string `json:"status"` // always "completed"
	ResultContent any    `json:"result_content"`
	DisplayType   string `json:"display_type"` // markdown | table
	Message       string `json:"message"`
}

// PlanErrorPayload is the plan_error event body (spec.md §6.1 / §7 "Everything
// else: surfaced to the client as plan_error with a user-facing message").
type PlanErrorPayload struct {
	ProcessID string `json:"process_id"`
	Status    string `json:"status"`
	Message   string `json:"message"`
}

// PlanCancelledPayload is the plan_cancelled event body (spec.md §6.1).
type PlanCancelledPayload struct {
	ProcessID string `json:"process_id"`
	Message   string `json:"message"`
}
