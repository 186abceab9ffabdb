package formatter

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/fctr-io/okta-query-engine/pkg/llmagent"
	"github.com/fctr-io/okta-query-engine/pkg/models"
	"github.com/fctr-io/okta-query-engine/pkg/safety"
	"github.com/fctr-io/okta-query-engine/pkg/sandbox"
)

type stubAgentClient struct {
	output []byte
	err    error
}

func (s *stubAgentClient) Run(ctx context.Context, correlationID, agentName, systemPrompt, userMessage string, schema llmagent.Schema) (llmagent.Result, error) {
	if s.err != nil {
		return llmagent.Result{}, s.err
	}
	return llmagent.Result{Output: s.output}, nil
}

func newTestFormatter(client llmagent.AgentClient, threshold int) *Formatter {
	return New(
		client,
		safety.NewCodeValidator(safety.NewDataOpValidator(nil, nil)),
		sandbox.NewRunner(sandbox.Config{}),
		sandbox.TenantAPIConfig{},
		models.NewCatalog(nil, nil),
		"gpt-4o-mini",
		threshold,
	)
}

func singleSQLStepContext() *models.StepContext {
	stepCtx := models.NewStepContext()
	stepCtx.Put("1_sql", models.StepArtifact{
		Success:      true,
		RecordCount:  2,
		FullData:     []map[string]any{{"id": "u1"}, {"id": "u2"}},
		ColumnSchema: []models.ColumnSchema{{Name: "id", Type: "string"}},
	})
	return stepCtx
}

func TestFormat_FastPathSkipsLLMForSingleSQLStep(t *testing.T) {
	f := newTestFormatter(&stubAgentClient{err: context.DeadlineExceeded}, 1000)

	res, err := f.Format(context.Background(), "corr-1", "list all users", singleSQLStepContext())
	if err != nil {
		t.Fatalf("unexpected error (fast path must not call the LLM): %v", err)
	}
	if res.DisplayType != "table" {
		t.Fatalf("expected table display type, got %s", res.DisplayType)
	}
}

func TestFormat_AggregationKeywordBypassesFastPath(t *testing.T) {
	body, _ := json.Marshal(formatWire{DisplayType: "markdown", Content: "2 users found"})
	f := newTestFormatter(&stubAgentClient{output: body}, 1000)

	res, err := f.Format(context.Background(), "corr-2", "give me a summary of users per status", singleSQLStepContext())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.DisplayType != "markdown" {
		t.Fatalf("expected the LLM path (markdown) to run since the query requested a summary, got %s", res.DisplayType)
	}
}

func TestFormat_MultiStepUsesFullDataPathUnderThreshold(t *testing.T) {
	body, _ := json.Marshal(formatWire{DisplayType: "table", Content: []map[string]any{{"id": "u1"}}})
	f := newTestFormatter(&stubAgentClient{output: body}, 100000)

	stepCtx := models.NewStepContext()
	stepCtx.Put("1_sql", models.StepArtifact{Success: true, FullData: []map[string]any{{"id": "u1"}}})
	stepCtx.Put("2_api", models.StepArtifact{Success: true, FullData: []map[string]any{{"group": "eng"}}})

	res, err := f.Format(context.Background(), "corr-3", "list users and their group", stepCtx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.DisplayType != "table" {
		t.Fatalf("expected table display type, got %s", res.DisplayType)
	}
}

func TestFastPathResult_RejectsMultiStep(t *testing.T) {
	stepCtx := models.NewStepContext()
	stepCtx.Put("1_sql", models.StepArtifact{Success: true, StepSlot: "1_sql"})
	stepCtx.Put("2_api", models.StepArtifact{Success: true, StepSlot: "2_api"})

	if _, ok := fastPathResult("list users", stepCtx.Ordered()); ok {
		t.Fatalf("fast path must not apply when more than one step ran")
	}
}

func TestFastPathResult_RejectsAPIStep(t *testing.T) {
	stepCtx := models.NewStepContext()
	stepCtx.Put("1_api", models.StepArtifact{Success: true, StepSlot: "1_api"})

	if _, ok := fastPathResult("list users", stepCtx.Ordered()); ok {
		t.Fatalf("fast path must only apply to a single SQL step")
	}
}
