package database

import "time"

// ProcessRecord is the control-plane persistence of one Query: its plan,
// status, and timestamps. Full step data never lands here — only the
// metadata needed to reconstruct a terminal-event replay or audit a run
// (spec.md §3 Query/Plan, §4.5 state machine). Translated from the
// teacher's ent/schema AlertSession field set into a GORM model.
type ProcessRecord struct {
	CorrelationID string `gorm:"primaryKey;column:correlation_id"`
	RawText       string
	SanitizedText string
	UserIdentity  string
	Phase         string
	Status        string
	PlanJSON      string `gorm:"type:jsonb"`
	ResultContent string `gorm:"type:text"`
	DisplayType   string
	ErrorMessage  string
	CreatedAt     time.Time
	StartedAt     time.Time
	CompletedAt   *time.Time
}

func (ProcessRecord) TableName() string { return "processes" }

// StepRecord persists one StepArtifact's metadata for a ProcessRecord —
// sample and schema for replay/debugging, never the full in-memory
// dataset (spec.md §3 "persisted only as an artifact for debugging").
type StepRecord struct {
	ID            uint   `gorm:"primaryKey;autoIncrement"`
	CorrelationID string `gorm:"index;column:correlation_id"`
	Slot          string
	Position      int
	Tool          string
	Entity        string
	Operation     string
	Status        string
	SampleJSON    string `gorm:"type:jsonb"`
	ColumnSchema  string `gorm:"type:jsonb"`
	RecordCount   int
	Success       bool
	ErrorMessage  string
	ElapsedMS     int64
	CreatedAt     time.Time
}

func (StepRecord) TableName() string { return "steps" }
