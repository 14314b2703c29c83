package models

import "time"

// RunStatus tracks a build run through its lifecycle.
type RunStatus string

const (
	RunStatusPending            RunStatus = "pending"
	RunStatusRunning            RunStatus = "running"
	RunStatusCompleted          RunStatus = "completed"
	RunStatusCompletedWithSkips RunStatus = "completed_with_skips"
	RunStatusFailed             RunStatus = "failed"
)

// BuildRun is the bookkeeping record for one wholesale rebuild of the model.
// Each run owns its output rows; a newer completed run replaces the prior set.
type BuildRun struct {
	ID                string     `json:"id" db:"id" param:"id"`
	TenantID          string     `json:"tenant_id" db:"tenant_id"`
	SpecKey           string     `json:"spec_key" db:"spec_key"`
	SpecVersion       int        `json:"spec_version" db:"spec_version"`
	Status            RunStatus  `json:"status" db:"status"`
	DimensionRowCount int        `json:"dimension_row_count" db:"dimension_row_count"`
	FactRowCount      int        `json:"fact_row_count" db:"fact_row_count"`
	CalendarRowCount  int        `json:"calendar_row_count" db:"calendar_row_count"`
	SkippedRowCount   int        `json:"skipped_row_count" db:"skipped_row_count"`
	FailureReason     *string    `json:"failure_reason,omitempty" db:"failure_reason"`
	StartedAt         time.Time  `json:"started_at" db:"started_at"`
	CompletedAt       *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
}

// RunRowError is a persisted per-row failure from a build run. One bad row
// never aborts the batch (unless fail-fast was requested); it lands here so
// the caller can see exactly which rows were skipped and why.
type RunRowError struct {
	ID        string    `json:"id" db:"id"`
	RunID     string    `json:"run_id" db:"run_id"`
	TenantID  string    `json:"tenant_id" db:"tenant_id"`
	Builder   string    `json:"builder" db:"builder"`
	RowIndex  int       `json:"row_index" db:"row_index"`
	Field     string    `json:"field" db:"field"`
	Message   string    `json:"message" db:"message"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// TriggerRunRequest is the API payload for kicking off a run.
type TriggerRunRequest struct {
	SpecKey  string `json:"spec_key" validate:"required"`
	FailFast bool   `json:"fail_fast"`
}

// RunListResponse wraps a page of build runs.
type RunListResponse struct {
	Items      []BuildRun `json:"items"`
	TotalCount int        `json:"total_count"`
	Page       int        `json:"page"`
	PageSize   int        `json:"page_size"`
}
