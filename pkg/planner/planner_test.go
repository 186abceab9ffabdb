package planner

import (
	"context"
	"testing"

	"github.com/fctr-io/okta-query-engine/pkg/llmagent"
	"github.com/fctr-io/okta-query-engine/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubClient struct {
	output []byte
	err    error
}

func (s *stubClient) Run(ctx context.Context, correlationID, agentName, systemPrompt, userMessage string, schema llmagent.Schema) (llmagent.Result, error) {
	if s.err != nil {
		return llmagent.Result{}, s.err
	}
	return llmagent.Result{Output: s.output, Usage: llmagent.Usage{TotalTokens: 10}}, nil
}

func testCatalog() *models.Catalog {
	return models.NewCatalog(
		[]models.Endpoint{{ID: "ep1", Entity: "user", Operation: "list", HTTPMethod: "GET", URLPattern: "/api/v1/users"}},
		[]models.Table{{Name: "users", Columns: []models.Column{{Name: "id", Type: "string"}}}},
	)
}

func TestPrePlannerRun(t *testing.T) {
	stub := &stubClient{output: []byte(`{"selected_pairs":[{"entity":"user","operation":"list"}],"selected_tables":["users"],"reasoning":"need both"}`)}
	pp := NewPrePlanner(stub)

	out, err := pp.Run(context.Background(), "corr-1", "list active users", testCatalog())
	require.NoError(t, err)
	assert.Equal(t, []string{"users"}, out.SelectedTables)
	require.Len(t, out.SelectedPairs, 1)
	assert.Equal(t, "user", out.SelectedPairs[0].Entity)
}

func TestNarrowAppliesSelection(t *testing.T) {
	full := testCatalog()
	out := PrePlanOutput{SelectedTables: []string{"users"}}
	narrowed := Narrow(full, out)
	assert.True(t, narrowed.HasTable("users"))
	assert.Empty(t, narrowed.Endpoints)
}

func TestPlannerRunValid(t *testing.T) {
	stub := &stubClient{output: []byte(`{"steps":[{"position":1,"tool":"sql","entity":"users","operation":"","query_context":"fetch active users","critical":true,"reasoning":"sql has the data"}],"reasoning":"simple query","confidence":90}`)}
	pl := NewPlanner(stub)

	plan, err := pl.Run(context.Background(), "corr-1", "list active users", testCatalog())
	require.NoError(t, err)
	require.Len(t, plan.Steps, 1)
	assert.Equal(t, models.ToolSQL, plan.Steps[0].Tool)
	assert.Equal(t, 90, plan.Confidence)
}

func TestPlannerRunEmptyPlanFails(t *testing.T) {
	stub := &stubClient{output: []byte(`{"steps":[],"reasoning":"nothing to do","confidence":10}`)}
	pl := NewPlanner(stub)

	_, err := pl.Run(context.Background(), "corr-1", "do nothing", testCatalog())
	require.Error(t, err)
	assert.Equal(t, models.ErrCodePlanningFailed, models.CodeOf(err))
}

func TestPlannerRunUnknownEndpointFails(t *testing.T) {
	stub := &stubClient{output: []byte(`{"steps":[{"position":1,"tool":"api","entity":"group","operation":"list","critical":true}],"reasoning":"x","confidence":50}`)}
	pl := NewPlanner(stub)

	_, err := pl.Run(context.Background(), "corr-1", "list groups", testCatalog())
	require.Error(t, err)
	assert.Equal(t, models.ErrCodeCatalogMiss, models.CodeOf(err))
}

func TestPlannerRunAgentErrorWrapped(t *testing.T) {
	stub := &stubClient{err: assert.AnError}
	pl := NewPlanner(stub)

	_, err := pl.Run(context.Background(), "corr-1", "x", testCatalog())
	require.Error(t, err)
	assert.Equal(t, models.ErrCodePlanningFailed, models.CodeOf(err))
}
