// Package modelspec persists versioned star-schema definitions.
package modelspec

import (
	"context"
	"encoding/json"
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

const specColumns = "id, tenant_id, key, name, version, definition, created_at, updated_at"

// Repository handles model spec persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new model spec repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create stores a new version of a spec. Versions are immutable; replacing a
// spec inserts the next version rather than mutating the stored definition a
// past run was built from.
func (r *Repository) Create(ctx context.Context, tenantID string, req models.CreateModelSpecRequest) (*models.ModelSpec, error) {
	ctx, span := tracing.StartSpan(ctx, "modelspec.Repository.Create")
	defer span.End()

	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id": tenantID,
		"key":       req.Key,
	})

	definition, err := json.Marshal(req.Definition)
	if err != nil {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "definition is not serializable")
	}

	id := uuid.New().String()
	now := time.Now().UTC()

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("model_specs")
	sb.Cols("id", "tenant_id", "key", "name", "version", "definition", "created_at", "updated_at")
	sb.Values(id, tenantID, req.Key, req.Name,
		sqlbuilder.Raw(fmt.Sprintf("(SELECT COALESCE(MAX(version), 0) + 1 FROM model_specs WHERE tenant_id = %s AND key = %s)", sb.Var(tenantID), sb.Var(req.Key))),
		definition, now, now)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		log.WithError(err).WithFields(map[string]any{"id": id}).Error("Failed to create model spec")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create model spec")
	}

	spec, err := r.GetByKey(ctx, tenantID, req.Key)
	if err != nil {
		return nil, err
	}

	log.WithFields(map[string]any{"id": spec.ID, "version": spec.Version}).Info("Created model spec version")
	return spec, nil
}

// GetByKey retrieves the latest version of a spec
func (r *Repository) GetByKey(ctx context.Context, tenantID, key string) (*models.ModelSpec, error) {
	ctx, span := tracing.StartSpan(ctx, "modelspec.Repository.GetByKey")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(specColumns)
	sb.From("model_specs")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("key", key),
	)
	sb.OrderBy("version").Desc()
	sb.Limit(1)

	query, args := sb.Build()
	var spec models.ModelSpec
	if err := r.db.GetContext(ctx, &spec, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("model spec %s not found", key))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get model spec")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get model spec")
	}

	return &spec, nil
}

// GetVersion retrieves a specific version of a spec
func (r *Repository) GetVersion(ctx context.Context, tenantID, key string, version int) (*models.ModelSpec, error) {
	ctx, span := tracing.StartSpan(ctx, "modelspec.Repository.GetVersion")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(specColumns)
	sb.From("model_specs")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("key", key),
		sb.Equal("version", version),
	)

	query, args := sb.Build()
	var spec models.ModelSpec
	if err := r.db.GetContext(ctx, &spec, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("model spec %s version %d not found", key, version))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get model spec version")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get model spec version")
	}

	return &spec, nil
}

// List retrieves the latest version of every spec for a tenant
func (r *Repository) List(ctx context.Context, tenantID string, page, pageSize int) (*models.ModelSpecListResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "modelspec.Repository.List")
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 200 {
		pageSize = 50
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(specColumns)
	sb.From("model_specs")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		"version = (SELECT MAX(version) FROM model_specs ms WHERE ms.tenant_id = model_specs.tenant_id AND ms.key = model_specs.key)",
	)
	sb.OrderBy("key")
	sb.Limit(pageSize)
	sb.Offset((page - 1) * pageSize)

	query, args := sb.Build()
	specs := []models.ModelSpec{}
	if err := r.db.SelectContext(ctx, &specs, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list model specs")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list model specs")
	}

	cb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	cb.Select("COUNT(DISTINCT key)")
	cb.From("model_specs")
	cb.Where(cb.Equal("tenant_id", tenantID))

	countQuery, countArgs := cb.Build()
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, countArgs...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count model specs")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list model specs")
	}

	return &models.ModelSpecListResponse{
		Items:      specs,
		TotalCount: total,
		Page:       page,
		PageSize:   pageSize,
	}, nil
}

// Delete removes every version of a spec
func (r *Repository) Delete(ctx context.Context, tenantID, key string) error {
	ctx, span := tracing.StartSpan(ctx, "modelspec.Repository.Delete")
	defer span.End()

	db := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	db.DeleteFrom("model_specs")
	db.Where(
		db.Equal("tenant_id", tenantID),
		db.Equal("key", key),
	)

	query, args := db.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"key": key}).Error("Failed to delete model spec")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete model spec")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"key": key}).Info("Deleted model spec")
	return nil
}
