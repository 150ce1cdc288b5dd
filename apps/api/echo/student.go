package echoapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/schoolvax/core"
	"github.com/trezcool/schoolvax/core/student"
)

var (
	csvFileField   = "file"
	maxUploadBytes = int64(10 << 20)
)

type studentApi struct {
	svc      *student.Service
	validate *validator.Validate
}

type studentQuery struct {
	student.QueryFilter
	core.Page
}

func registerStudentAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *student.Service, validate *validator.Validate) {
	api := studentApi{
		svc:      svc,
		validate: validate,
	}

	sg := g.Group("/students", jwt)
	sg.GET("", api.query)
	sg.POST("", api.create, adminMiddleware())
	sg.DELETE("", api.destroyMultiple, adminMiddleware())
	sg.POST("/bulk", api.createMultiple, adminMiddleware())
	sg.POST("/import", api.importCSV, adminMiddleware())
	sg.GET("/:id", api.retrieve)
	sg.PATCH("/:id", api.update, adminMiddleware())
	sg.DELETE("/:id", api.destroy, adminMiddleware())
	sg.POST("/:id/vaccinations", api.recordVaccination, adminMiddleware())
}

// Handlers

func (api *studentApi) create(ctx echo.Context) error {
	var data student.NewStudent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewStudent")
	}

	std, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating student")
	}
	return ctx.JSON(http.StatusCreated, std)
}

// createMultiple imports a JSON array of students; valid rows are created and invalid ones reported.
func (api *studentApi) createMultiple(ctx echo.Context) error {
	var data []student.NewStudent
	if err := json.NewDecoder(ctx.Request().Body).Decode(&data); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "expected a JSON array of students").SetInternal(err)
	}

	rows := make([]student.ImportRow, 0, len(data))
	for i, ns := range data {
		rows = append(rows, student.ImportRow{Row: i + 1, Student: ns})
	}
	return api.importRows(ctx, rows, nil)
}

// importCSV imports the students of the multipart uploaded CSV `file`.
func (api *studentApi) importCSV(ctx echo.Context) error {
	ctx.Request().Body = http.MaxBytesReader(ctx.Response(), ctx.Request().Body, maxUploadBytes)
	fh, err := ctx.FormFile(csvFileField)
	if err != nil {
		return core.NewValidationError(nil, core.FieldError{Field: csvFileField, Error: "a CSV file is required"})
	}
	f, err := fh.Open()
	if err != nil {
		return errors.Wrap(err, "opening uploaded file")
	}
	defer f.Close()

	rows, rowErrs, err := student.ParseCSV(f)
	if err != nil {
		return errors.Wrap(err, "parsing CSV")
	}
	return api.importRows(ctx, rows, rowErrs)
}

func (api *studentApi) importRows(ctx echo.Context, rows []student.ImportRow, rowErrs []student.ImportRowError) error {
	result, err := api.svc.Import(ctx.Request().Context(), rows)
	if err != nil {
		return errors.Wrap(err, "importing students")
	}
	if len(rowErrs) > 0 {
		result.Total += len(rowErrs)
		result.Errors = append(rowErrs, result.Errors...)
	}

	code := http.StatusCreated
	if result.Imported == 0 && len(result.Errors) > 0 {
		code = http.StatusBadRequest
	}
	return ctx.JSON(code, result)
}

func (api *studentApi) query(ctx echo.Context) error {
	var q studentQuery
	if err := bindQuery(ctx, &q); err != nil {
		return err
	}
	vaccinated, err := boolParam(ctx, "vaccinated")
	if err != nil {
		return err
	}
	q.Vaccinated = vaccinated
	ordering := new(Ordering)
	ordering.Bind(ctx)

	students, pagination, err := api.svc.Query(ctx.Request().Context(), &q.QueryFilter, ordering.Orderings, q.Page)
	if err != nil {
		return errors.Wrap(err, "querying students")
	}
	if students == nil {
		students = []student.Student{}
	}
	return ctx.JSON(http.StatusOK, ListResponse{Results: students, Pagination: pagination})
}

func (api *studentApi) retrieve(ctx echo.Context) error {
	std, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding student by ID")
	}
	return ctx.JSON(http.StatusOK, std)
}

func (api *studentApi) update(ctx echo.Context) error {
	var data student.UpdateStudent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateStudent")
	}

	std, err := api.svc.Update(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating student")
	}
	return ctx.JSON(http.StatusOK, std)
}

func (api *studentApi) recordVaccination(ctx echo.Context) error {
	var data student.NewVaccination
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewVaccination")
	}

	std, err := api.svc.RecordVaccination(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "recording vaccination")
	}
	return ctx.JSON(http.StatusOK, std)
}

func (api *studentApi) destroy(ctx echo.Context) error {
	id := ctx.Param("id")
	if _, err := api.svc.GetByID(ctx.Request().Context(), id); err != nil {
		return errors.Wrap(err, "finding student by ID")
	}
	if err := api.svc.Delete(ctx.Request().Context(), id); err != nil {
		return errors.Wrap(err, "deleting student")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *studentApi) destroyMultiple(ctx echo.Context) error {
	var data DestroyMultipleRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to DestroyMultipleRequest")
	}
	if len(data.IDs) == 0 {
		return ctx.NoContent(http.StatusNoContent)
	}
	if err := api.svc.Delete(ctx.Request().Context(), data.IDs...); err != nil {
		return errors.Wrap(err, "deleting students")
	}
	return ctx.NoContent(http.StatusNoContent)
}
