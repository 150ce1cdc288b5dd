package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/schoolvax/core"
	"github.com/trezcool/schoolvax/core/drive"
)

type driveApi struct {
	svc      *drive.Service
	validate *validator.Validate
}

type driveQuery struct {
	drive.QueryFilter
	core.Page
}

func registerDriveAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *drive.Service, validate *validator.Validate) {
	api := driveApi{
		svc:      svc,
		validate: validate,
	}

	dg := g.Group("/drives", jwt)
	dg.GET("", api.query)
	dg.POST("", api.create, adminMiddleware())
	dg.GET("/stats", api.stats)
	dg.GET("/:id", api.retrieve)
	dg.PATCH("/:id", api.update, adminMiddleware())
	dg.PATCH("/:id/status", api.setStatus, adminMiddleware())
	dg.DELETE("/:id", api.destroy, adminMiddleware())
}

// Handlers

func (api *driveApi) create(ctx echo.Context) error {
	var data drive.NewDrive
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewDrive")
	}
	if core.CleanString(data.Coordinator) == "" {
		claims, err := getContextClaims(ctx)
		if err != nil {
			return errors.Wrap(err, "getting context claims")
		}
		data.Coordinator = claims.Subject
	}

	drv, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating drive")
	}
	return ctx.JSON(http.StatusCreated, drv)
}

func (api *driveApi) query(ctx echo.Context) error {
	var q driveQuery
	if err := bindQuery(ctx, &q); err != nil {
		return err
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	drives, pagination, err := api.svc.Query(ctx.Request().Context(), &q.QueryFilter, ordering.Orderings, q.Page)
	if err != nil {
		return errors.Wrap(err, "querying drives")
	}
	if drives == nil {
		drives = []drive.Drive{}
	}
	return ctx.JSON(http.StatusOK, ListResponse{Results: drives, Pagination: pagination})
}

func (api *driveApi) stats(ctx echo.Context) error {
	stats, err := api.svc.Stats(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "computing drive stats")
	}
	return ctx.JSON(http.StatusOK, stats)
}

func (api *driveApi) retrieve(ctx echo.Context) error {
	drv, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding drive by ID")
	}
	return ctx.JSON(http.StatusOK, drv)
}

func (api *driveApi) update(ctx echo.Context) error {
	var data drive.UpdateDrive
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateDrive")
	}

	drv, err := api.svc.Update(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating drive")
	}
	return ctx.JSON(http.StatusOK, drv)
}

func (api *driveApi) setStatus(ctx echo.Context) error {
	var data drive.StatusUpdate
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to StatusUpdate")
	}

	drv, err := api.svc.SetStatus(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "changing drive status")
	}
	return ctx.JSON(http.StatusOK, drv)
}

func (api *driveApi) destroy(ctx echo.Context) error {
	id := ctx.Param("id")
	if _, err := api.svc.GetByID(ctx.Request().Context(), id); err != nil {
		return errors.Wrap(err, "finding drive by ID")
	}
	if err := api.svc.Delete(ctx.Request().Context(), id); err != nil {
		return errors.Wrap(err, "deleting drive")
	}
	return ctx.NoContent(http.StatusNoContent)
}
