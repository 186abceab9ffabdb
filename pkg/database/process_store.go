package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fctr-io/okta-query-engine/pkg/models"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// ProcessStore is the control-plane persistence gateway for ProcessRecord
// and StepRecord rows, the GORM analogue of the teacher's
// pkg/services/session_service.go.
type ProcessStore struct {
	db *gorm.DB
}

// NewProcessStore wraps a Client for process/step persistence.
func NewProcessStore(client *Client) *ProcessStore {
	return &ProcessStore{db: client.Gorm}
}

// CreateProcess inserts a new ProcessRecord for a freshly-ingressed Query.
func (s *ProcessStore) CreateProcess(ctx context.Context, q models.Query) error {
	rec := ProcessRecord{
		CorrelationID: q.CorrelationID,
		RawText:       q.RawText,
		SanitizedText: q.SanitizedText,
		UserIdentity:  q.UserIdentity,
		Status:        string(models.StatusIdle),
		CreatedAt:     q.CreatedAt,
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrAlreadyExists
		}
		return fmt.Errorf("failed to create process: %w", err)
	}
	return nil
}

// GetProcess retrieves a ProcessRecord by correlation id.
func (s *ProcessStore) GetProcess(ctx context.Context, correlationID string) (*ProcessRecord, error) {
	var rec ProcessRecord
	err := s.db.WithContext(ctx).First(&rec, "correlation_id = ?", correlationID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get process: %w", err)
	}
	return &rec, nil
}

// SetPlan persists the Planner's output and marks the process plan_generated.
func (s *ProcessStore) SetPlan(ctx context.Context, correlationID string, plan *models.Plan, phase models.Phase) error {
	planJSON, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("failed to marshal plan: %w", err)
	}
	res := s.db.WithContext(ctx).Model(&ProcessRecord{}).
		Where("correlation_id = ?", correlationID).
		Updates(map[string]any{
			"plan_json": string(planJSON),
			"phase":     string(phase),
			"status":    string(models.StatusPlanGenerated),
		})
	if res.Error != nil {
		return fmt.Errorf("failed to persist plan: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateStatus transitions a process's status, stamping StartedAt/CompletedAt
// as appropriate (spec.md §4.5 state machine).
func (s *ProcessStore) UpdateStatus(ctx context.Context, correlationID string, status models.ProcessStatus) error {
	updates := map[string]any{"status": string(status)}
	now := time.Now()
	if status == models.StatusRunning {
		updates["started_at"] = now
	}
	if status.Terminal() {
		updates["completed_at"] = now
	}

	res := s.db.WithContext(ctx).Model(&ProcessRecord{}).
		Where("correlation_id = ?", correlationID).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("failed to update process status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetResult persists the Result Formatter's final output.
func (s *ProcessStore) SetResult(ctx context.Context, correlationID, content, displayType string) error {
	res := s.db.WithContext(ctx).Model(&ProcessRecord{}).
		Where("correlation_id = ?", correlationID).
		Updates(map[string]any{"result_content": content, "display_type": displayType})
	if res.Error != nil {
		return fmt.Errorf("failed to persist result: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetError persists a terminal error message for a process.
func (s *ProcessStore) SetError(ctx context.Context, correlationID, message string) error {
	res := s.db.WithContext(ctx).Model(&ProcessRecord{}).
		Where("correlation_id = ?", correlationID).
		Updates(map[string]any{"error_message": message})
	if res.Error != nil {
		return fmt.Errorf("failed to persist error message: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpsertStep persists (or replaces) one step's artifact metadata for
// debugging/replay — never the full in-memory dataset (spec.md §3).
func (s *ProcessStore) UpsertStep(ctx context.Context, correlationID string, step models.Step, a models.StepArtifact) error {
	sampleJSON, err := json.Marshal(a.Sample)
	if err != nil {
		return fmt.Errorf("failed to marshal sample: %w", err)
	}
	schemaJSON, err := json.Marshal(a.ColumnSchema)
	if err != nil {
		return fmt.Errorf("failed to marshal column schema: %w", err)
	}

	rec := StepRecord{
		CorrelationID: correlationID,
		Slot:          step.Slot(),
		Position:      step.Position,
		Tool:          string(step.Tool),
		Entity:        step.Entity,
		Operation:     step.Operation,
		Status:        a.Status,
		SampleJSON:    string(sampleJSON),
		ColumnSchema:  string(schemaJSON),
		RecordCount:   a.RecordCount,
		Success:       a.Success,
		ErrorMessage:  a.Error,
		ElapsedMS:     a.ElapsedMS,
		CreatedAt:     time.Now(),
	}

	err = s.db.WithContext(ctx).
		Where("correlation_id = ? AND slot = ?", correlationID, step.Slot()).
		Assign(rec).
		FirstOrCreate(&StepRecord{}).Error
	if err != nil {
		return fmt.Errorf("failed to upsert step: %w", err)
	}
	return nil
}

// ListSteps returns all persisted steps for a process, ordered by position.
func (s *ProcessStore) ListSteps(ctx context.Context, correlationID string) ([]StepRecord, error) {
	var recs []StepRecord
	err := s.db.WithContext(ctx).
		Where("correlation_id = ?", correlationID).
		Order("position ASC").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list steps: %w", err)
	}
	return recs, nil
}
