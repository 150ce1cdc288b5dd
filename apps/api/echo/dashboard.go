package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/schoolvax/core/dashboard"
	"github.com/trezcool/schoolvax/core/drive"
	"github.com/trezcool/schoolvax/core/student"
)

type dashboardApi struct {
	svc *dashboard.Service
}

func registerDashboardAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *dashboard.Service) {
	api := dashboardApi{svc: svc}

	dg := g.Group("/dashboard", jwt)
	dg.GET("/summary", api.summary)
	dg.GET("/today-drives", api.todayDrives)
	dg.GET("/drive-report", api.driveReport)
	dg.GET("/schedule", api.schedule)
	dg.GET("/class-stats", api.classStats)
}

// Handlers

func (api *dashboardApi) summary(ctx echo.Context) error {
	summary, err := api.svc.Summary(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "computing summary")
	}
	return ctx.JSON(http.StatusOK, summary)
}

func (api *dashboardApi) todayDrives(ctx echo.Context) error {
	drives, err := api.svc.TodayDrives(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying today's drives")
	}
	if drives == nil {
		drives = []drive.Drive{}
	}
	return ctx.JSON(http.StatusOK, drives)
}

func (api *dashboardApi) driveReport(ctx echo.Context) error {
	var rng DateRange
	if err := bindQuery(ctx, &rng); err != nil {
		return err
	}

	reports, err := api.svc.DriveReport(ctx.Request().Context(), rng.From, rng.To)
	if err != nil {
		return errors.Wrap(err, "building drive report")
	}
	if reports == nil {
		reports = []dashboard.DriveReport{}
	}
	return ctx.JSON(http.StatusOK, reports)
}

func (api *dashboardApi) schedule(ctx echo.Context) error {
	var rng DateRange
	if err := bindQuery(ctx, &rng); err != nil {
		return err
	}

	drives, err := api.svc.Schedule(ctx.Request().Context(), rng.From, rng.To)
	if err != nil {
		return errors.Wrap(err, "querying schedule")
	}
	if drives == nil {
		drives = []dashboard.ScheduledDrive{}
	}
	return ctx.JSON(http.StatusOK, drives)
}

func (api *dashboardApi) classStats(ctx echo.Context) error {
	stats, err := api.svc.ClassStats(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "computing class stats")
	}
	if stats == nil {
		stats = []student.ClassStats{}
	}
	return ctx.JSON(http.StatusOK, stats)
}
