// Package warehouse persists the built dimension, fact, and calendar rows.
// Each table holds the current rows per tenant and model table name; a
// completed run replaces the prior row set wholesale inside one transaction.
package warehouse

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"
	"github.com/shopspring/decimal"

	"github.com/Ramsey-B/aster/pkg/database"
	asterrors "github.com/Ramsey-B/aster/pkg/errors"
	"github.com/Ramsey-B/aster/pkg/models"
	"github.com/Ramsey-B/aster/pkg/tracing"
)

// insertBatchSize bounds the number of rows per INSERT statement.
const insertBatchSize = 500

// Repository handles warehouse row persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new warehouse repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// ReplaceDimensionRows swaps in the dimension rows produced by a run. The
// delete and insert happen in one transaction so readers never observe a
// half-replaced dimension.
func (r *Repository) ReplaceDimensionRows(ctx context.Context, tenantID, runID, dimension string, rows []models.DimensionRow) error {
	ctx, span := tracing.StartSpan(ctx, "warehouse.Repository.ReplaceDimensionRows")
	defer span.End()

	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id": tenantID,
		"run_id":    runID,
		"dimension": dimension,
	})

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	del := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	del.DeleteFrom("dimension_rows")
	del.Where(
		del.Equal("tenant_id", tenantID),
		del.Equal("dimension", dimension),
	)

	query, args := del.Build()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		log.WithError(err).Error("Failed to delete prior dimension rows")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to replace dimension rows")
	}

	for start := 0; start < len(rows); start += insertBatchSize {
		end := start + insertBatchSize
		if end > len(rows) {
			end = len(rows)
		}

		ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
		ib.InsertInto("dimension_rows")
		ib.Cols("tenant_id", "run_id", "dimension", "key", "business_key", "attributes")
		for _, row := range rows[start:end] {
			ib.Values(tenantID, runID, dimension, row.Key, row.BusinessKey, database.JSONB[map[string]any]{Data: row.Attributes})
		}

		query, args := ib.Build()
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			log.WithError(err).Error("Failed to insert dimension rows")
			return httperror.NewHTTPError(http.StatusInternalServerError, "failed to replace dimension rows")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to replace dimension rows")
	}

	log.WithFields(map[string]any{"rows": len(rows)}).Info("Replaced dimension rows")
	return nil
}

// ReplaceFactRows swaps in the fact rows produced by a run
func (r *Repository) ReplaceFactRows(ctx context.Context, tenantID, runID, fact string, rows []models.FactRow) error {
	ctx, span := tracing.StartSpan(ctx, "warehouse.Repository.ReplaceFactRows")
	defer span.End()

	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id": tenantID,
		"run_id":    runID,
		"fact":      fact,
	})

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	del := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	del.DeleteFrom("fact_rows")
	del.Where(
		del.Equal("tenant_id", tenantID),
		del.Equal("fact", fact),
	)

	query, args := del.Build()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		log.WithError(err).Error("Failed to delete prior fact rows")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to replace fact rows")
	}

	for start := 0; start < len(rows); start += insertBatchSize {
		end := start + insertBatchSize
		if end > len(rows) {
			end = len(rows)
		}

		ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
		ib.InsertInto("fact_rows")
		ib.Cols("tenant_id", "run_id", "fact", "key", "dimension_keys", "measures")
		for _, row := range rows[start:end] {
			ib.Values(tenantID, runID, fact, row.Key,
				database.JSONB[map[string]string]{Data: row.DimensionKeys},
				database.JSONB[map[string]decimal.Decimal]{Data: row.Measures})
		}

		query, args := ib.Build()
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			log.WithError(err).Error("Failed to insert fact rows")
			return httperror.NewHTTPError(http.StatusInternalServerError, "failed to replace fact rows")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to replace fact rows")
	}

	log.WithFields(map[string]any{"rows": len(rows)}).Info("Replaced fact rows")
	return nil
}

// ReplaceCalendarDays swaps in the calendar produced by a run
func (r *Repository) ReplaceCalendarDays(ctx context.Context, tenantID, runID string, days []models.CalendarDay) error {
	ctx, span := tracing.StartSpan(ctx, "warehouse.Repository.ReplaceCalendarDays")
	defer span.End()

	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id": tenantID,
		"run_id":    runID,
	})

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	del := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	del.DeleteFrom("calendar_days")
	del.Where(del.Equal("tenant_id", tenantID))

	query, args := del.Build()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		log.WithError(err).Error("Failed to delete prior calendar days")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to replace calendar days")
	}

	for start := 0; start < len(days); start += insertBatchSize {
		end := start + insertBatchSize
		if end > len(days) {
			end = len(days)
		}

		ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
		ib.InsertInto("calendar_days")
		ib.Cols("tenant_id", "run_id", "key", "date", "day_of_week", "day_of_month", "day_of_year", "week_of_year", "month", "month_name", "year", "quarter")
		for _, d := range days[start:end] {
			ib.Values(tenantID, runID, d.Key, d.Date, d.DayOfWeek, d.DayOfMonth, d.DayOfYear, d.WeekOfYear, d.Month, d.MonthName, d.Year, d.Quarter)
		}

		query, args := ib.Build()
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			log.WithError(err).Error("Failed to insert calendar days")
			return httperror.NewHTTPError(http.StatusInternalServerError, "failed to replace calendar days")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to replace calendar days")
	}

	log.WithFields(map[string]any{"rows": len(days)}).Info("Replaced calendar days")
	return nil
}

// InsertRowErrors persists the per-row failures accumulated by a run
func (r *Repository) InsertRowErrors(ctx context.Context, tenantID, runID string, rowErrors asterrors.RowErrors) error {
	ctx, span := tracing.StartSpan(ctx, "warehouse.Repository.InsertRowErrors")
	defer span.End()

	if len(rowErrors) == 0 {
		return nil
	}

	now := time.Now().UTC()

	for start := 0; start < len(rowErrors); start += insertBatchSize {
		end := start + insertBatchSize
		if end > len(rowErrors) {
			end = len(rowErrors)
		}

		ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
		ib.InsertInto("build_run_errors")
		ib.Cols("id", "run_id", "tenant_id", "builder", "row_index", "field", "message", "created_at")
		for _, rowErr := range rowErrors[start:end] {
			field := rowErr.Field
			if field == "" {
				field = rowErr.Column
			}
			ib.Values(uuid.New().String(), runID, tenantID, rowErr.Builder, rowErr.Row(), field, rowErr.Message, now)
		}

		query, args := ib.Build()
		if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
			r.logger.WithContext(ctx).WithError(err).Error("Failed to insert run row errors")
			return httperror.NewHTTPError(http.StatusInternalServerError, "failed to insert run row errors")
		}
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"run_id": runID,
		"count":  len(rowErrors),
	}).Info("Persisted run row errors")
	return nil
}
