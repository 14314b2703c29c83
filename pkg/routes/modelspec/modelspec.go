package modelspec

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	modelspecrepo "github.com/Ramsey-B/aster/internal/repositories/modelspec"
	"github.com/Ramsey-B/aster/pkg/context"
	"github.com/Ramsey-B/aster/pkg/models"
	"github.com/Ramsey-B/aster/pkg/tracing"
)

var validate = validator.New()

// Register registers model spec routes
func Register(g *echo.Group) {
	g.GET("", ListModelSpecs)
	g.GET("/:key", GetModelSpec)
	g.POST("", CreateModelSpec)
	g.DELETE("/:key", DeleteModelSpec)
}

// ListModelSpecs lists the latest spec versions for a tenant
func ListModelSpecs(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "modelspec.ListModelSpecs")
	defer span.End()

	tenantID := context.GetTenantID(ctx)

	ctx, repo, err := ectoinject.GetContext[*modelspecrepo.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	page, _ := strconv.Atoi(c.QueryParam("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(c.QueryParam("page_size"))
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	resp, err := repo.List(ctx, tenantID, page, pageSize)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, resp)
}

// GetModelSpec gets the latest version of a spec by key, or a specific
// version via the ?version query parameter
func GetModelSpec(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "modelspec.GetModelSpec")
	defer span.End()

	tenantID := context.GetTenantID(ctx)
	key := c.Param("key")

	ctx, repo, err := ectoinject.GetContext[*modelspecrepo.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	if v := c.QueryParam("version"); v != "" {
		version, err := strconv.Atoi(v)
		if err != nil || version < 1 {
			return httperror.NewHTTPError(http.StatusBadRequest, "version must be a positive integer")
		}
		spec, err := repo.GetVersion(ctx, tenantID, key, version)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, spec)
	}

	spec, err := repo.GetByKey(ctx, tenantID, key)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, spec)
}

// CreateModelSpec stores a new version of a spec
func CreateModelSpec(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "modelspec.CreateModelSpec")
	defer span.End()

	tenantID := context.GetTenantID(ctx)

	var req models.CreateModelSpecRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, repo, err := ectoinject.GetContext[*modelspecrepo.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	spec, err := repo.Create(ctx, tenantID, req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, spec)
}

// DeleteModelSpec removes every version of a spec
func DeleteModelSpec(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "modelspec.DeleteModelSpec")
	defer span.End()

	tenantID := context.GetTenantID(ctx)
	key := c.Param("key")

	ctx, repo, err := ectoinject.GetContext[*modelspecrepo.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	if err := repo.Delete(ctx, tenantID, key); err != nil {
		return err
	}

	return c.NoContent(http.StatusNoContent)
}
