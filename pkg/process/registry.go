package process

import (
	"context"
	"sync"

	"github.com/fctr-io/okta-query-engine/pkg/models"
)

// entry is one in-flight query's bookkeeping: the context a client's
// cancel request fires, and the plan/phase the planning stage produced —
// held here so a later GET /stream-updates call (which may land on a
// different request than the one that created the process) can start
// execution without re-planning.
type entry struct {
	ctx    context.Context
	cancel context.CancelFunc
	query  models.Query
	phase  models.Phase
	plan   *models.Plan

	mu      sync.Mutex
	started bool
}

// Registry is the active-process registry spec.md §5/§7 names: a
// concurrent map keyed by correlation id, "last-writer-wins... acceptable
// because keys are unique correlation ids." Backed by sync.Map per that
// explicit directive. Register/Unregister/Cancel are shaped after the
// teacher's pkg/queue/pool.go WorkerPool.RegisterSession/
// UnregisterSession/CancelSession, generalized from "a session's cancel
// func" to "a query's cancel func plus the state its deferred execution
// needs."
type Registry struct {
	active sync.Map // correlation id -> *entry
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register records a freshly-planned query under correlationID, deriving
// a cancellable context from parent. Replaces any prior entry for the
// same id.
func (r *Registry) Register(parent context.Context, correlationID string, query models.Query, phase models.Phase, plan *models.Plan) {
	ctx, cancel := context.WithCancel(parent)
	r.active.Store(correlationID, &entry{
		ctx:    ctx,
		cancel: cancel,
		query:  query,
		phase:  phase,
		plan:   plan,
	})
}

// Unregister drops correlationID's entry, releasing its context. Called
// once a query reaches a terminal state; a query whose planning fails is
// never registered.
func (r *Registry) Unregister(correlationID string) {
	v, ok := r.active.LoadAndDelete(correlationID)
	if !ok {
		return
	}
	v.(*entry).cancel()
}

// Cancel fires correlationID's cancel function. Returns false if the
// process is unknown — already finished, or never registered — which the
// /cancel handler turns into a 404.
func (r *Registry) Cancel(correlationID string) bool {
	v, ok := r.active.Load(correlationID)
	if !ok {
		return false
	}
	v.(*entry).cancel()
	return true
}

// State returns the context and planning output Register stored for
// correlationID, for the driver to resume execution from.
func (r *Registry) State(correlationID string) (ctx context.Context, query models.Query, phase models.Phase, plan *models.Plan, ok bool) {
	v, ok := r.active.Load(correlationID)
	if !ok {
		return nil, models.Query{}, "", nil, false
	}
	e := v.(*entry)
	return e.ctx, e.query, e.phase, e.plan, true
}

// MarkStarted reports whether this call is the first to begin executing
// correlationID's plan. GET /stream-updates may be hit by more than one
// reconnecting client; only the first actually starts the pipeline.
func (r *Registry) MarkStarted(correlationID string) bool {
	v, ok := r.active.Load(correlationID)
	if !ok {
		return false
	}
	e := v.(*entry)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return false
	}
	e.started = true
	return true
}

// Len reports the number of currently-active (registered, not yet
// unregistered) processes.
func (r *Registry) Len() int {
	n := 0
	r.active.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
