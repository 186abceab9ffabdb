package models

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessStatusTerminal(t *testing.T) {
	terminal := []ProcessStatus{StatusCompleted, StatusCompletedWithErrors, StatusError, StatusCancelled}
	for _, s := range terminal {
		assert.Truef(t, s.Terminal(), "%s should be terminal", s)
	}
	nonTerminal := []ProcessStatus{StatusIdle, StatusPlanGeneration, StatusPlanGenerated, StatusRunning}
	for _, s := range nonTerminal {
		assert.Falsef(t, s.Terminal(), "%s should not be terminal", s)
	}
}

func testCatalog() *Catalog {
	return NewCatalog(
		[]Endpoint{{ID: "ep1", Entity: "users", Operation: "list", HTTPMethod: "GET", URLPattern: "/api/v1/users"}},
		[]Table{{Name: "users", Columns: []Column{{Name: "id", Type: "string"}}}},
	)
}

func TestCatalogLookupAndSubset(t *testing.T) {
	cat := testCatalog()

	ep, ok := cat.LookupEndpoint("users", "list")
	require.True(t, ok)
	assert.Equal(t, "ep1", ep.ID)

	_, ok = cat.LookupEndpoint("users", "delete")
	assert.False(t, ok)

	assert.True(t, cat.HasTable("users"))
	assert.False(t, cat.HasTable("groups"))

	sub := cat.Subset([]EntityOperation{{Entity: "users", Operation: "list"}}, []string{"users"})
	assert.Len(t, sub.Endpoints, 1)
	assert.Len(t, sub.Tables, 1)

	subEmpty := cat.Subset([]EntityOperation{{Entity: "groups", Operation: "list"}}, []string{"groups"})
	assert.Empty(t, subEmpty.Endpoints)
	assert.Empty(t, subEmpty.Tables)
}

func TestStepSlot(t *testing.T) {
	s := Step{Position: 2, Tool: ToolAPI}
	assert.Equal(t, "2_api", s.Slot())

	s2 := Step{Position: 11, Tool: ToolSQL}
	assert.Equal(t, "11_sql", s2.Slot())
}

func TestPlanValidateEmpty(t *testing.T) {
	p := &Plan{}
	err := p.Validate(testCatalog())
	assert.ErrorIs(t, err, ErrPlanningFailed)
}

func TestPlanValidateOutOfOrder(t *testing.T) {
	p := &Plan{Steps: []Step{
		{Position: 2, Tool: ToolSQL, Entity: "users"},
	}}
	err := p.Validate(testCatalog())
	require.Error(t, err)
	assert.Equal(t, ErrCodeCatalogMiss, CodeOf(err))
}

func TestPlanValidateDuplicatePosition(t *testing.T) {
	p := &Plan{Steps: []Step{
		{Position: 1, Tool: ToolSQL, Entity: "users"},
		{Position: 1, Tool: ToolSQL, Entity: "users"},
	}}
	err := p.Validate(testCatalog())
	require.Error(t, err)
	assert.Equal(t, ErrCodeCatalogMiss, CodeOf(err))
}

func TestPlanValidateUnknownTable(t *testing.T) {
	p := &Plan{Steps: []Step{
		{Position: 1, Tool: ToolSQL, Entity: "ghosts"},
	}}
	err := p.Validate(testCatalog())
	require.Error(t, err)
	assert.Equal(t, ErrCodeCatalogMiss, CodeOf(err))
}

func TestPlanValidateUnknownEndpoint(t *testing.T) {
	p := &Plan{Steps: []Step{
		{Position: 1, Tool: ToolAPI, Entity: "users", Operation: "delete"},
	}}
	err := p.Validate(testCatalog())
	require.Error(t, err)
	assert.Equal(t, ErrCodeCatalogMiss, CodeOf(err))
}

func TestPlanValidateOK(t *testing.T) {
	p := &Plan{Steps: []Step{
		{Position: 1, Tool: ToolSQL, Entity: "users"},
		{Position: 2, Tool: ToolAPI, Entity: "users", Operation: "list"},
	}}
	assert.NoError(t, p.Validate(testCatalog()))
}

func TestStepContextOrdering(t *testing.T) {
	sc := NewStepContext()
	sc.Put("2_api", StepArtifact{Success: true, RecordCount: 3})
	sc.Put("1_sql", StepArtifact{Success: true, RecordCount: 10})

	got := sc.Ordered()
	require.Len(t, got, 2)
	assert.Equal(t, "2_api", got[0].StepSlot)
	assert.Equal(t, "1_sql", got[1].StepSlot)
	assert.Equal(t, 2, sc.Len())

	a, ok := sc.Get("1_sql")
	require.True(t, ok)
	assert.Equal(t, 10, a.RecordCount)

	_, ok = sc.Get("missing")
	assert.False(t, ok)
}

func TestPipelineErrorWrapAndUnwrap(t *testing.T) {
	base := errors.New("connection refused")
	wrapped := WrapError(ErrCodeTransportError, "calling tenant API", base)

	assert.ErrorIs(t, wrapped, base)
	assert.Equal(t, ErrCodeTransportError, CodeOf(wrapped))
	assert.Contains(t, wrapped.Error(), "connection refused")
}

func TestCodeOfNonPipelineError(t *testing.T) {
	assert.Equal(t, ErrCode(""), CodeOf(errors.New("plain")))
}
