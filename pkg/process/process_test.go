package process

import (
	"context"
	"errors"
	"testing"

	"github.com/fctr-io/okta-query-engine/pkg/database"
	"github.com/fctr-io/okta-query-engine/pkg/executor"
	"github.com/fctr-io/okta-query-engine/pkg/formatter"
	"github.com/fctr-io/okta-query-engine/pkg/models"
	"github.com/fctr-io/okta-query-engine/pkg/router"
)

type fakeStore struct {
	processes map[string]models.Query
	statuses  []models.ProcessStatus
	errors    []string
	results   []string
	plan      *models.Plan
}

func newFakeStore() *fakeStore {
	return &fakeStore{processes: make(map[string]models.Query)}
}

func (s *fakeStore) CreateProcess(ctx context.Context, q models.Query) error {
	s.processes[q.CorrelationID] = q
	return nil
}
func (s *fakeStore) GetProcess(ctx context.Context, correlationID string) (*database.ProcessRecord, error) {
	q, ok := s.processes[correlationID]
	if !ok {
		return nil, errors.New("not found")
	}
	return &database.ProcessRecord{CorrelationID: q.CorrelationID}, nil
}
func (s *fakeStore) SetPlan(ctx context.Context, correlationID string, plan *models.Plan, phase models.Phase) error {
	s.plan = plan
	return nil
}
func (s *fakeStore) UpdateStatus(ctx context.Context, correlationID string, status models.ProcessStatus) error {
	s.statuses = append(s.statuses, status)
	return nil
}
func (s *fakeStore) SetResult(ctx context.Context, correlationID, content, displayType string) error {
	s.results = append(s.results, content)
	return nil
}
func (s *fakeStore) SetError(ctx context.Context, correlationID, message string) error {
	s.errors = append(s.errors, message)
	return nil
}

type fakeEvents struct {
	planStatuses []string
	finals       int
	planErrors   []string
	cancelled    int
}

func (e *fakeEvents) PublishPlanStatus(ctx context.Context, processID, status, message string) error {
	e.planStatuses = append(e.planStatuses, status)
	return nil
}
func (e *fakeEvents) PublishFinalResult(ctx context.Context, processID string, resultContent any, displayType, message string) error {
	e.finals++
	return nil
}
func (e *fakeEvents) PublishPlanError(ctx context.Context, correlationID, message string) error {
	e.planErrors = append(e.planErrors, message)
	return nil
}
func (e *fakeEvents) PublishPlanCancelled(ctx context.Context, correlationID string) error {
	e.cancelled++
	return nil
}

type fakeClassifier struct {
	result router.RouteResult
	err    error
}

func (c *fakeClassifier) Run(ctx context.Context, correlationID, query string) (router.RouteResult, error) {
	return c.result, c.err
}

type fakePlanBuilder struct {
	plan *models.Plan
	err  error
}

func (b *fakePlanBuilder) Run(ctx context.Context, correlationID, query string) (*models.Plan, error) {
	return b.plan, b.err
}

type fakeSteps struct {
	result executor.Result
}

func (s *fakeSteps) Execute(ctx context.Context, correlationID string, plan *models.Plan, isCancelled func() bool) executor.Result {
	return s.result
}

type fakeFormatter struct {
	result formatter.Result
	err    error
}

func (f *fakeFormatter) Format(ctx context.Context, correlationID, query string, stepCtx *models.StepContext) (formatter.Result, error) {
	return f.result, f.err
}

type fakeSpecial struct {
	content string
	err     error
}

func (s *fakeSpecial) Run(ctx context.Context, correlationID, query string) (string, error) {
	return s.content, s.err
}

func newTestDriver(store Store, events EventPublisher, classifier Classifier, planBuild PlanBuilder, steps StepRunner, format ResultFormatter, special SpecialToolRunner) *Driver {
	return NewDriver(store, NewRegistry(), events, classifier, planBuild, steps, format, special, nil)
}

func TestStartProcess_SQLOnlyPersistsPlanAndRegisters(t *testing.T) {
	store := newFakeStore()
	events := &fakeEvents{}
	plan := &models.Plan{Steps: []models.Step{{Position: 1, Tool: models.ToolSQL, Entity: "users"}}, Reasoning: "because", Confidence: 80}
	driver := newTestDriver(store, events,
		&fakeClassifier{result: router.RouteResult{Phase: models.PhaseSQLOnly, Reasoning: "sql only"}},
		&fakePlanBuilder{plan: plan},
		&fakeSteps{}, &fakeFormatter{}, &fakeSpecial{})

	resp, err := driver.StartProcess(context.Background(), "how many users?", "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.ProcessID == "" {
		t.Fatalf("expected a process id")
	}
	if len(resp.Steps) != 1 || resp.Steps[0].Status != "pending" {
		t.Fatalf("expected one pending step, got %+v", resp.Steps)
	}
	if driver.registry.Len() != 1 {
		t.Fatalf("expected the query to be registered for later execution")
	}
	if len(events.planStatuses) != 2 {
		t.Fatalf("expected plan_generation and plan_generated events, got %v", events.planStatuses)
	}
}

func TestStartProcess_SpecialPhaseProducesEmptyPlan(t *testing.T) {
	store := newFakeStore()
	events := &fakeEvents{}
	driver := newTestDriver(store, events,
		&fakeClassifier{result: router.RouteResult{Phase: models.PhaseSpecial, Reasoning: "matches a special tool"}},
		&fakePlanBuilder{}, &fakeSteps{}, &fakeFormatter{}, &fakeSpecial{})

	resp, err := driver.StartProcess(context.Background(), "run the lockout report", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.Steps) != 0 {
		t.Fatalf("expected no plan steps for a SPECIAL query, got %+v", resp.Steps)
	}
}

func TestStartProcess_ClassifierFailureAbortsAndPublishesPlanError(t *testing.T) {
	store := newFakeStore()
	events := &fakeEvents{}
	driver := newTestDriver(store, events,
		&fakeClassifier{err: errors.New("llm exploded")},
		&fakePlanBuilder{}, &fakeSteps{}, &fakeFormatter{}, &fakeSpecial{})

	_, err := driver.StartProcess(context.Background(), "anything", "")
	if err == nil {
		t.Fatalf("expected an error")
	}
	if len(events.planErrors) != 1 {
		t.Fatalf("expected exactly one plan_error event, got %d", len(events.planErrors))
	}
	if len(store.statuses) == 0 || store.statuses[len(store.statuses)-1] != models.StatusError {
		t.Fatalf("expected the process to end in status error, got %v", store.statuses)
	}
}

func TestStartProcess_CancelledDuringPlanningPublishesPlanCancelled(t *testing.T) {
	store := newFakeStore()
	events := &fakeEvents{}
	driver := newTestDriver(store, events,
		&fakeClassifier{err: context.Canceled},
		&fakePlanBuilder{}, &fakeSteps{}, &fakeFormatter{}, &fakeSpecial{})

	_, err := driver.StartProcess(context.Background(), "anything", "")
	if err == nil {
		t.Fatalf("expected an error")
	}
	if events.cancelled != 1 {
		t.Fatalf("expected exactly one plan_cancelled event, got %d", events.cancelled)
	}
	if len(events.planErrors) != 0 {
		t.Fatalf("cancellation must not also publish plan_error")
	}
}

func TestRun_CompletedPlanPublishesFinalResult(t *testing.T) {
	store := newFakeStore()
	events := &fakeEvents{}
	stepCtx := models.NewStepContext()
	driver := newTestDriver(store, events,
		&fakeClassifier{}, &fakePlanBuilder{},
		&fakeSteps{result: executor.Result{StepContext: stepCtx, Status: models.StatusCompleted}},
		&fakeFormatter{result: formatter.Result{DisplayType: "table", Content: []map[string]any{{"id": 1}}}},
		&fakeSpecial{})

	query := models.Query{CorrelationID: "corr-1", SanitizedText: "how many users?"}
	driver.run(context.Background(), "corr-1", query, models.PhaseSQLOnly, &models.Plan{})

	if events.finals != 1 {
		t.Fatalf("expected exactly one final_result event, got %d", events.finals)
	}
	if len(store.results) != 1 {
		t.Fatalf("expected the final result to be persisted, got %d", len(store.results))
	}
}

func TestRun_ExecutorErrorDoesNotRePublishPlanError(t *testing.T) {
	store := newFakeStore()
	events := &fakeEvents{}
	stepCtx := models.NewStepContext()
	driver := newTestDriver(store, events,
		&fakeClassifier{}, &fakePlanBuilder{},
		&fakeSteps{result: executor.Result{StepContext: stepCtx, Status: models.StatusError, Err: errors.New("boom")}},
		&fakeFormatter{}, &fakeSpecial{})

	query := models.Query{CorrelationID: "corr-2", SanitizedText: "q"}
	driver.run(context.Background(), "corr-2", query, models.PhaseSQLOnly, &models.Plan{})

	if events.finals != 0 {
		t.Fatalf("expected no final_result event on a failed plan")
	}
	if len(events.planErrors) != 0 {
		t.Fatalf("plan_error is the Step Executor's own responsibility; the driver must not double-publish it, got %d", len(events.planErrors))
	}
	if len(store.errors) != 1 {
		t.Fatalf("expected the error message to be persisted, got %d", len(store.errors))
	}
}

func TestRun_SpecialPhaseInvokesHandlerAndFinishesWithMarkdown(t *testing.T) {
	store := newFakeStore()
	events := &fakeEvents{}
	driver := newTestDriver(store, events,
		&fakeClassifier{}, &fakePlanBuilder{}, &fakeSteps{}, &fakeFormatter{},
		&fakeSpecial{content: "### Lockout report\n..."})

	query := models.Query{CorrelationID: "corr-3", SanitizedText: "run the lockout report"}
	driver.run(context.Background(), "corr-3", query, models.PhaseSpecial, &models.Plan{})

	if events.finals != 1 {
		t.Fatalf("expected exactly one final_result event for a SPECIAL query")
	}
	found := false
	for _, s := range store.statuses {
		if s == models.StatusCompleted {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected the process to be marked completed, got %v", store.statuses)
	}
}

func TestExecute_OnlyStartsOnce(t *testing.T) {
	store := newFakeStore()
	events := &fakeEvents{}
	stepCtx := models.NewStepContext()
	driver := newTestDriver(store, events,
		&fakeClassifier{}, &fakePlanBuilder{},
		&fakeSteps{result: executor.Result{StepContext: stepCtx, Status: models.StatusCompleted}},
		&fakeFormatter{result: formatter.Result{DisplayType: "table", Content: []map[string]any{}}},
		&fakeSpecial{})

	driver.registry.Register(context.Background(), "corr-4", models.Query{CorrelationID: "corr-4"}, models.PhaseSQLOnly, &models.Plan{})

	if err := driver.Execute("corr-4"); err != nil {
		t.Fatalf("unexpected error on first Execute: %v", err)
	}
	// Execute's own MarkStarted call already flipped the flag; a second
	// caller (a reconnecting SSE client hitting the same process id) must
	// see it's already running rather than starting a second run.
	if started := driver.registry.MarkStarted("corr-4"); started {
		t.Fatalf("expected a second MarkStarted to report false")
	}
}

func TestExecute_UnknownProcessErrors(t *testing.T) {
	driver := newTestDriver(newFakeStore(), &fakeEvents{}, &fakeClassifier{}, &fakePlanBuilder{}, &fakeSteps{}, &fakeFormatter{}, &fakeSpecial{})
	if err := driver.Execute("does-not-exist"); err == nil {
		t.Fatalf("expected an error for an unregistered process id")
	}
}
