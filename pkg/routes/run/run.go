package run

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	buildrunrepo "github.com/Ramsey-B/aster/internal/repositories/buildrun"
	runservice "github.com/Ramsey-B/aster/internal/services/run"
	"github.com/Ramsey-B/aster/pkg/context"
	"github.com/Ramsey-B/aster/pkg/models"
	"github.com/Ramsey-B/aster/pkg/records"
	"github.com/Ramsey-B/aster/pkg/tracing"
)

// Register registers run routes
func Register(g *echo.Group) {
	g.GET("", ListRuns)
	g.GET("/:id", GetRun)
	g.GET("/:id/errors", ListRunErrors)
	g.POST("", TriggerRun)
}

// TriggerRunBody carries a trigger request with an inline source snapshot.
// Snapshots normally arrive over Kafka; the API accepts one directly for
// backfills and ad hoc rebuilds.
type TriggerRunBody struct {
	SpecKey   string           `json:"spec_key"`
	FailFast  bool             `json:"fail_fast"`
	Relations records.Snapshot `json:"relations"`
}

// TriggerRun executes a model build run synchronously
func TriggerRun(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "run.TriggerRun")
	defer span.End()

	tenantID := context.GetTenantID(ctx)

	var body TriggerRunBody
	if err := c.Bind(&body); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if body.SpecKey == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "spec_key is required")
	}
	if len(body.Relations) == 0 {
		return httperror.NewHTTPError(http.StatusBadRequest, "relations must contain at least one source relation")
	}

	ctx, svc, err := ectoinject.GetContext[*runservice.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	run, err := svc.Trigger(ctx, tenantID, models.TriggerRunRequest{
		SpecKey:  body.SpecKey,
		FailFast: body.FailFast,
	}, body.Relations)
	if err != nil {
		// A failed run is still a recorded run; surface it with the reason.
		if run != nil {
			return c.JSON(http.StatusUnprocessableEntity, run)
		}
		return err
	}

	return c.JSON(http.StatusCreated, run)
}

// GetRun gets a build run by ID
func GetRun(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "run.GetRun")
	defer span.End()

	tenantID := context.GetTenantID(ctx)
	id := c.Param("id")

	ctx, repo, err := ectoinject.GetContext[*buildrunrepo.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	run, err := repo.Get(ctx, tenantID, id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, run)
}

// ListRuns lists build runs, newest first
func ListRuns(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "run.ListRuns")
	defer span.End()

	tenantID := context.GetTenantID(ctx)

	ctx, repo, err := ectoinject.GetContext[*buildrunrepo.Repository](ctx)
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

	resp, err := repo.List(ctx, tenantID, c.QueryParam("spec_key"), page, pageSize)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, resp)
}

// ListRunErrors lists the per-row failures recorded for a run
func ListRunErrors(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "run.ListRunErrors")
	defer span.End()

	tenantID := context.GetTenantID(ctx)
	id := c.Param("id")

	ctx, repo, err := ectoinject.GetContext[*buildrunrepo.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	// 404 when the run itself is unknown
	if _, err := repo.Get(ctx, tenantID, id); err != nil {
		return err
	}

	errs, err := repo.ListRowErrors(ctx, tenantID, id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, errs)
}
