package executor

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/fctr-io/okta-query-engine/pkg/config"
	"github.com/fctr-io/okta-query-engine/pkg/models"
	"github.com/fctr-io/okta-query-engine/pkg/safety"
	"github.com/fctr-io/okta-query-engine/pkg/sandbox"
)

func sandboxAPIConfigStub() sandbox.TenantAPIConfig {
	return sandbox.TenantAPIConfig{BaseURL: "https://example.okta.com", Token: "test-token", TenantHost: "example.okta.com"}
}

type stubSQLGen struct {
	sql string
	err error
}

func (s *stubSQLGen) GenerateSQL(ctx context.Context, correlationID string, step models.Step, enhancedContext string) (string, error) {
	return s.sql, s.err
}

type stubAPIGen struct {
	gen models.GeneratedCode
	err error
}

func (s *stubAPIGen) GenerateScript(ctx context.Context, correlationID string, step models.Step, enhancedContext string) (models.GeneratedCode, error) {
	return s.gen, s.err
}

type stubStore struct {
	calls []models.StepArtifact
}

func (s *stubStore) UpsertStep(ctx context.Context, correlationID string, step models.Step, artifact models.StepArtifact) error {
	s.calls = append(s.calls, artifact)
	return nil
}

type stubEvents struct {
	statuses  []StepStatusEvent
	errs      []string
	cancelled int
}

func (s *stubEvents) PublishStepStatus(ctx context.Context, correlationID string, payload StepStatusEvent) error {
	s.statuses = append(s.statuses, payload)
	return nil
}
func (s *stubEvents) PublishPlanError(ctx context.Context, correlationID, message string) error {
	s.errs = append(s.errs, message)
	return nil
}
func (s *stubEvents) PublishPlanCancelled(ctx context.Context, correlationID string) error {
	s.cancelled++
	return nil
}

func testCatalog() *models.Catalog {
	return models.NewCatalog(
		[]models.Endpoint{{Entity: "users", Operation: "list", HTTPMethod: "GET", URLPattern: "/api/v1/users"}},
		[]models.Table{{Name: "users", Columns: []models.Column{{Name: "id", Type: "number"}, {Name: "email", Type: "string"}}}},
	)
}

func newTestExecutor(t *testing.T, sqlGen SQLCodeGenerator, apiGen APICodeGenerator, events EventPublisher, store ArtifactStore) *Executor {
	t.Helper()
	cfg := config.ExecutorConfig{SampleRowsPerStep: 5, SampleStringChars: 150, SampleListItems: 3}
	return New(
		cfg,
		"gpt-4o-mini",
		safety.NewCodeValidator(safety.NewDataOpValidator(nil, nil)),
		nil, // sqlRunner unused in these tests (SQL path is exercised through stub failure cases)
		nil, // sandboxRunner unused; API success paths aren't exercised here
		sandboxAPIConfigStub(),
		testCatalog(),
		sqlGen,
		apiGen,
		store,
		events,
		NewArtifactLog(""),
		nil, // masker unused in these tests (masking is verified in pkg/masking)
	)
}

func TestExecute_CriticalFailureAborts(t *testing.T) {
	plan := &models.Plan{Steps: []models.Step{
		{Position: 1, Tool: models.ToolSQL, Entity: "users", Critical: true},
		{Position: 2, Tool: models.ToolSQL, Entity: "users", Critical: false},
	}}

	events := &stubEvents{}
	store := &stubStore{}
	exec := newTestExecutor(t, &stubSQLGen{sql: "not valid"}, &stubAPIGen{}, events, store)

	result := exec.Execute(context.Background(), "corr-1", plan, nil)

	if result.Status != models.StatusError {
		t.Fatalf("expected status error, got %s", result.Status)
	}
	if result.StepContext.Len() != 1 {
		t.Fatalf("expected exactly one step to have run before abort, got %d", result.StepContext.Len())
	}
	if len(events.errs) != 1 {
		t.Fatalf("expected exactly one plan_error event, got %d", len(events.errs))
	}
}

func TestExecute_NonCriticalFailureContinues(t *testing.T) {
	plan := &models.Plan{Steps: []models.Step{
		{Position: 1, Tool: models.ToolSQL, Entity: "users", Critical: false},
		{Position: 2, Tool: models.ToolSQL, Entity: "users", Critical: false},
	}}

	// Both steps generate invalid (non-read-only) SQL so both fail; since
	// neither is critical, the loop must still visit both.
	events := &stubEvents{}
	store := &stubStore{}
	exec := newTestExecutor(t, &stubSQLGen{sql: "DELETE FROM users"}, &stubAPIGen{}, events, store)

	result := exec.Execute(context.Background(), "corr-2", plan, nil)

	if result.Status != models.StatusCompletedWithErrors {
		t.Fatalf("expected completed_with_errors, got %s", result.Status)
	}
	if result.StepContext.Len() != 2 {
		t.Fatalf("expected both steps to have run, got %d", result.StepContext.Len())
	}
	if len(events.errs) != 0 {
		t.Fatalf("non-critical failures must not publish plan_error, got %d", len(events.errs))
	}
}

func TestExecute_CancellationStopsBeforeNextStep(t *testing.T) {
	plan := &models.Plan{Steps: []models.Step{
		{Position: 1, Tool: models.ToolSQL, Entity: "users", Critical: true},
		{Position: 2, Tool: models.ToolSQL, Entity: "users", Critical: true},
	}}

	events := &stubEvents{}
	store := &stubStore{}
	exec := newTestExecutor(t, &stubSQLGen{sql: "DELETE FROM users"}, &stubAPIGen{}, events, store)

	result := exec.Execute(context.Background(), "corr-3", plan, func() bool { return true })

	if result.Status != models.StatusCancelled {
		t.Fatalf("expected cancelled, got %s", result.Status)
	}
	if result.StepContext.Len() != 0 {
		t.Fatalf("expected zero steps to have run, got %d", result.StepContext.Len())
	}
	if events.cancelled != 1 {
		t.Fatalf("expected exactly one plan_cancelled event, got %d", events.cancelled)
	}
}

func TestPriorResultsFor_OnlyIncludesSuccessfulArtifacts(t *testing.T) {
	stepCtx := models.NewStepContext()
	stepCtx.Put("1_sql", models.StepArtifact{Success: true, FullData: []map[string]any{{"id": 1}}})
	stepCtx.Put("2_api", models.StepArtifact{Success: false, Error: "boom"})

	bindings := priorResultsFor(stepCtx)
	if _, ok := bindings["1_sql"]; !ok {
		t.Fatalf("expected successful step's data to be bound")
	}
	if _, ok := bindings["2_api"]; ok {
		t.Fatalf("failed step must not be bound into full_results")
	}
}

func TestDecodeRows_AcceptsArrayOrSingleObject(t *testing.T) {
	arr, err := decodeRows(json.RawMessage(`[{"a":1},{"a":2}]`))
	if err != nil || len(arr) != 2 {
		t.Fatalf("expected 2 rows from array, got %d rows, err=%v", len(arr), err)
	}

	single, err := decodeRows(json.RawMessage(`{"a":1}`))
	if err != nil || len(single) != 1 {
		t.Fatalf("expected 1 row from single object, got %d rows, err=%v", len(single), err)
	}

	if _, err := decodeRows(json.RawMessage(`"not an object"`)); err == nil {
		t.Fatalf("expected an error decoding a bare string")
	}
}

func TestBuildEnhancedContext_BindsSlotNames(t *testing.T) {
	stepCtx := models.NewStepContext()
	stepCtx.Put("1_sql", models.StepArtifact{
		Success:      true,
		RecordCount:  2,
		ColumnSchema: []models.ColumnSchema{{Name: "id", Type: "number"}},
		Sample:       []map[string]any{{"id": 1}},
	})

	out := buildEnhancedContext(stepCtx.Ordered())
	if out == "" {
		t.Fatalf("expected non-empty context")
	}
}
