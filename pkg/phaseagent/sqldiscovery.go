// Package phaseagent holds the C6 phase agents that sit between the
// Router and the Step Executor: SQL Discovery and API Discovery (which
// satisfy executor.SQLCodeGenerator/executor.APICodeGenerator
// structurally, without importing pkg/executor), the Synthesis Agent,
// and the Special-Tools registry/handler (spec.md §4.6).
//
// Grounded on the teacher's pkg/agent/controller package: each agent is
// a thin, single-purpose struct wrapping one llmagent.AgentClient call
// plus a prompt/schema pair, the same shape as the teacher's
// SingleShotController/SynthesisController.
package phaseagent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fctr-io/okta-query-engine/pkg/llmagent"
	"github.com/fctr-io/okta-query-engine/pkg/models"
)

const sqlDiscoveryInstructions = `You are the SQL Discovery agent for an Okta tenant query engine.
Generate exactly one read-only SQL statement (SELECT, or WITH ... SELECT)
against the relational mirror table named below that satisfies this
step's intent. Never emit INSERT/UPDATE/DELETE/DDL. Reference only the
named table and its columns.

Table: %s
Step intent: %s

%s

Respond with a JSON object: {"sql": "..."}`

type sqlWire struct {
	SQL string `json:"sql"`
}

var sqlSchema = llmagent.Schema{
	"type":       "object",
	"required":   []any{"sql"},
	"properties": map[string]any{"sql": map[string]any{"type": "string"}},
}

// SQLDiscoveryAgent generates a single read-only SQL statement for one
// SQL-tool Step. It structurally satisfies pkg/executor.SQLCodeGenerator.
type SQLDiscoveryAgent struct {
	client llmagent.AgentClient
}

// NewSQLDiscoveryAgent builds a SQLDiscoveryAgent backed by an AgentClient.
func NewSQLDiscoveryAgent(client llmagent.AgentClient) *SQLDiscoveryAgent {
	return &SQLDiscoveryAgent{client: client}
}

// GenerateSQL produces the SQL text for step. Syntactic read-only
// enforcement happens downstream in the executor (pkg/executor/sql.go);
// this agent only prompts for it.
func (a *SQLDiscoveryAgent) GenerateSQL(ctx context.Context, correlationID string, step models.Step, enhancedContext string) (string, error) {
	prompt := fmt.Sprintf(sqlDiscoveryInstructions, step.Entity, step.QueryContext, enhancedContext)

	result, err := a.client.Run(ctx, correlationID, "sql_discovery", prompt, step.QueryContext, sqlSchema)
	if err != nil {
		return "", models.WrapError(models.ErrCodeGenerationFailed, "sql discovery agent call failed", err)
	}

	var wire sqlWire
	if err := json.Unmarshal(result.Output, &wire); err != nil {
		return "", models.WrapError(models.ErrCodeOutputUnparseable, "sql discovery output did not parse", err)
	}
	if wire.SQL == "" {
		return "", models.WrapError(models.ErrCodeGenerationFailed, "sql discovery agent returned empty SQL", nil)
	}
	return wire.SQL, nil
}
