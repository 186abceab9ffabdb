package models

import "sync"

// ColumnSchema records a field name and its inferred type, attached to a
// StepArtifact's sample so later LLM calls can reason about shape without
// seeing full data (spec.md §4.5 "Sample rules").
type ColumnSchema struct {
	Name string
	Type string
}

// StepArtifact is what one executed Step leaves behind: the full result set
// (kept in-memory for generated code to consume), a size-bounded sample
// (the only thing shown to subsequent LLM prompts), and bookkeeping.
type StepArtifact struct {
	FullData     any
	Sample       any
	RecordCount  int
	ColumnSchema []ColumnSchema
	Success      bool
	Error        string
	ElapsedMS    int64

	// StepSlot is this artifact's own key, e.g. "2_api" — duplicated onto
	// the value (not just the map key) so callers can log/emit an artifact
	// without also threading its slot through separately.
	StepSlot string
	Status   string // "running" | "completed" | "error", mirrors step_status_update
}

// StepContext is the shared, grow-only bag of inter-step artifacts for the
// lifetime of one query, keyed by step slot ("2_api", "3_sql", ...). It is
// owned exclusively by the Executor (spec.md §3 "Ownership") but guarded by
// a mutex since the SSE emitter and cancellation poller read it
// concurrently with the execution goroutine.
type StepContext struct {
	mu        sync.RWMutex
	artifacts map[string]StepArtifact
	order     []string
}

// NewStepContext returns an empty StepContext ready for one query's run.
func NewStepContext() *StepContext {
	return &StepContext{artifacts: make(map[string]StepArtifact)}
}

// Put records (or overwrites) the artifact for a slot. StepContext is
// grow-only in practice — the Executor never revisits a completed slot —
// but Put does not itself enforce that; it is a plain keyed store.
func (c *StepContext) Put(slot string, a StepArtifact) {
	a.StepSlot = slot
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.artifacts[slot]; !exists {
		c.order = append(c.order, slot)
	}
	c.artifacts[slot] = a
}

// Get returns the artifact for a slot, if any.
func (c *StepContext) Get(slot string) (StepArtifact, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	a, ok := c.artifacts[slot]
	return a, ok
}

// Ordered returns artifacts in the order their slots were first written —
// the order the Executor's enhanced-context builder concatenates samples in
// (spec.md §4.5 step 1).
func (c *StepContext) Ordered() []StepArtifact {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]StepArtifact, 0, len(c.order))
	for _, slot := range c.order {
		out = append(out, c.artifacts[slot])
	}
	return out
}

// Len reports how many slots have been written so far.
func (c *StepContext) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.order)
}

// GeneratedCode is a transient per-step value produced by a code-gen agent:
// either a SQL string or a script body, plus the variable name the
// executor binds full prior-step data to and any packages the script
// declares it needs. It is persisted only into the artifacts file for
// debugging (spec.md §3).
type GeneratedCode struct {
	SourceText           string
	EntryVariableName    string
	DeclaredRequirements []string
}

// ArtifactRecord is one entry appended to a query's on-disk artifacts file.
// Synthesis reads the file back to see prior phases' work without
// re-prompting them (spec.md §3 "Artifacts file").
type ArtifactRecord struct {
	CorrelationID string
	Phase         string
	Slot          string
	GeneratedCode GeneratedCode
	Artifact      StepArtifact
	RecordedAt    string // RFC3339; stamped by the writer, not this package
}
