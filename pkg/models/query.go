// Package models holds the core data types shared across the pipeline:
// queries, catalogs, plans, steps, and the artifacts produced while a
// plan executes.
package models

import "time"

// Query is the immutable per-request input to the pipeline. It is created
// at ingress, passed by value through every stage, and discarded after the
// final emit.
type Query struct {
	CorrelationID   string
	RawText         string
	SanitizedText   string
	SanitizerWarns  []string
	UserIdentity    string // optional
	CreatedAt       time.Time
	StartedAt       time.Time
	CompletedAt     *time.Time
}

// Phase is the Router's classification of a Query.
type Phase string

const (
	PhaseSQLOnly    Phase = "SQL_ONLY"
	PhaseSQLPlusAPI Phase = "SQL_PLUS_API"
	PhaseSpecial    Phase = "SPECIAL"
)

// ProcessStatus is the query's state-machine status (spec.md §4.5 State machine).
type ProcessStatus string

const (
	StatusIdle                ProcessStatus = "idle"
	StatusPlanGeneration      ProcessStatus = "plan_generation"
	StatusPlanGenerated       ProcessStatus = "plan_generated"
	StatusRunning             ProcessStatus = "running"
	StatusCompleted           ProcessStatus = "completed"
	StatusCompletedWithErrors ProcessStatus = "completed_with_errors"
	StatusError               ProcessStatus = "error"
	StatusCancelled           ProcessStatus = "cancelled"
)

// Terminal reports whether status is one from which no further transition
// is allowed (spec.md §8 invariant 7 — terminality).
func (s ProcessStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCompletedWithErrors, StatusError, StatusCancelled:
		return true
	default:
		return false
	}
}
