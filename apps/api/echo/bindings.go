package echoapi

import (
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/schoolvax/core"
)

var orderingParam = "ordering"

type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	data := ctx.QueryParams()
	if len(data) == 0 {
		return
	}
	val, ok := data[orderingParam]
	if !ok || len(val) == 0 || val[0] == "" {
		return
	}

	for _, field := range strings.Split(val[0], ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if field == "" {
			continue
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

// DateRange is the `?from=&to=` query of the reports.
type DateRange struct {
	From core.Date `query:"from"`
	To   core.Date `query:"to"`
}

type (
	ListResponse struct {
		Results    interface{}     `json:"results"`
		Pagination core.Pagination `json:"pagination"`
	}

	DestroyMultipleRequest struct {
		IDs []string `json:"ids"`
	}
)

// bindQuery binds the query params into `i`, reporting malformed values as a 400.
func bindQuery(ctx echo.Context, i interface{}) error {
	return errors.Wrap(ctx.Bind(i), "binding query params")
}

// boolParam parses the optional boolean query param `name`.
func boolParam(ctx echo.Context, name string) (*bool, error) {
	val := core.CleanString(ctx.QueryParam(name))
	if val == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return nil, core.NewValidationError(nil, core.FieldError{Field: name, Error: errors.Wrap(err, "invalid boolean").Error()})
	}
	return &b, nil
}
