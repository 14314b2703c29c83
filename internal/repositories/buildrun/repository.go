// Package buildrun persists the lifecycle of model build runs.
package buildrun

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/aster/pkg/database"
	"github.com/Ramsey-B/aster/pkg/models"
	"github.com/Ramsey-B/aster/pkg/tracing"
)

const runColumns = "id, tenant_id, spec_key, spec_version, status, dimension_row_count, fact_row_count, calendar_row_count, skipped_row_count, failure_reason, started_at, completed_at, created_at"

// Repository handles build run persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new build run repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create records a new run in the running state
func (r *Repository) Create(ctx context.Context, tenantID, specKey string, specVersion int) (*models.BuildRun, error) {
	ctx, span := tracing.StartSpan(ctx, "buildrun.Repository.Create")
	defer span.End()

	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id": tenantID,
		"spec_key":  specKey,
	})

	id := uuid.New().String()
	now := time.Now().UTC()

	run := &models.BuildRun{
		ID:          id,
		TenantID:    tenantID,
		SpecKey:     specKey,
		SpecVersion: specVersion,
		Status:      models.RunStatusRunning,
		StartedAt:   now,
		CreatedAt:   now,
	}

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("build_runs")
	sb.Cols("id", "tenant_id", "spec_key", "spec_version", "status", "started_at", "created_at")
	sb.Values(id, tenantID, specKey, specVersion, run.Status, now, now)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		log.WithError(err).WithFields(map[string]any{"id": id}).Error("Failed to create build run")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create build run")
	}

	log.WithFields(map[string]any{"id": id}).Info("Created build run")
	return run, nil
}

// Complete marks a run finished and records its row counts
func (r *Repository) Complete(ctx context.Context, run *models.BuildRun) error {
	ctx, span := tracing.StartSpan(ctx, "buildrun.Repository.Complete")
	defer span.End()

	now := time.Now().UTC()
	run.CompletedAt = &now

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("build_runs")
	sb.Set(
		sb.Assign("status", run.Status),
		sb.Assign("dimension_row_count", run.DimensionRowCount),
		sb.Assign("fact_row_count", run.FactRowCount),
		sb.Assign("calendar_row_count", run.CalendarRowCount),
		sb.Assign("skipped_row_count", run.SkippedRowCount),
		sb.Assign("completed_at", now),
	)
	sb.Where(
		sb.Equal("id", run.ID),
		sb.Equal("tenant_id", run.TenantID),
	)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": run.ID}).Error("Failed to complete build run")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to complete build run")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"id":     run.ID,
		"status": run.Status,
	}).Info("Completed build run")
	return nil
}

// Fail marks a run failed with the reason the build aborted
func (r *Repository) Fail(ctx context.Context, tenantID, id, reason string) error {
	ctx, span := tracing.StartSpan(ctx, "buildrun.Repository.Fail")
	defer span.End()

	now := time.Now().UTC()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("build_runs")
	sb.Set(
		sb.Assign("status", models.RunStatusFailed),
		sb.Assign("failure_reason", reason),
		sb.Assign("completed_at", now),
	)
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
	)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id}).Error("Failed to mark build run failed")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update build run")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"id":     id,
		"reason": reason,
	}).Warn("Build run failed")
	return nil
}

// Get retrieves a build run by ID
func (r *Repository) Get(ctx context.Context, tenantID, id string) (*models.BuildRun, error) {
	ctx, span := tracing.StartSpan(ctx, "buildrun.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(runColumns)
	sb.From("build_runs")
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
	)

	query, args := sb.Build()
	var run models.BuildRun
	if err := r.db.GetContext(ctx, &run, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("build run %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get build run")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get build run")
	}

	return &run, nil
}

// List retrieves a page of build runs, newest first
func (r *Repository) List(ctx context.Context, tenantID string, specKey string, page, pageSize int) (*models.RunListResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "buildrun.Repository.List")
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 200 {
		pageSize = 50
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(runColumns)
	sb.From("build_runs")
	where := []string{sb.Equal("tenant_id", tenantID)}
	if specKey != "" {
		where = append(where, sb.Equal("spec_key", specKey))
	}
	sb.Where(where...)
	sb.OrderBy("created_at").Desc()
	sb.Limit(pageSize)
	sb.Offset((page - 1) * pageSize)

	query, args := sb.Build()
	runs := []models.BuildRun{}
	if err := r.db.SelectContext(ctx, &runs, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list build runs")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list build runs")
	}

	cb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	cb.Select("COUNT(*)")
	cb.From("build_runs")
	countWhere := []string{cb.Equal("tenant_id", tenantID)}
	if specKey != "" {
		countWhere = append(countWhere, cb.Equal("spec_key", specKey))
	}
	cb.Where(countWhere...)

	countQuery, countArgs := cb.Build()
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, countArgs...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count build runs")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list build runs")
	}

	return &models.RunListResponse{
		Items:      runs,
		TotalCount: total,
		Page:       page,
		PageSize:   pageSize,
	}, nil
}

// ListRowErrors retrieves the persisted per-row failures for a run
func (r *Repository) ListRowErrors(ctx context.Context, tenantID, runID string) ([]models.RunRowError, error) {
	ctx, span := tracing.StartSpan(ctx, "buildrun.Repository.ListRowErrors")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "run_id", "tenant_id", "builder", "row_index", "field", "message", "created_at")
	sb.From("build_run_errors")
	sb.Where(
		sb.Equal("run_id", runID),
		sb.Equal("tenant_id", tenantID),
	)
	sb.OrderBy("builder", "row_index")

	query, args := sb.Build()
	errs := []models.RunRowError{}
	if err := r.db.SelectContext(ctx, &errs, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list run row errors")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list run row errors")
	}

	return errs, nil
}
