package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/schoolvax/core"
	"github.com/trezcool/schoolvax/core/drive"
	"github.com/trezcool/schoolvax/core/student"
)

var (
	errUnauthorized  = echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
	errHttpForbidden = echo.NewHTTPError(http.StatusForbidden, "permission denied")

	requiredText = "this field is required"
)

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		cause := errors.Cause(err)
		if cause == drive.ErrNotFound || cause == student.ErrNotFound {
			cause = echo.NewHTTPError(http.StatusNotFound, cause.Error())
		}

		switch origErr := cause.(type) {
		case *echo.HTTPError:
			if origErr == middleware.ErrJWTMissing {
				code = http.StatusUnauthorized
				message = origErr.Message
				break
			}
			if origErr.Internal != nil {
				if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
					origErr = herr
				}
			}
			code = origErr.Code
			message = origErr.Message
		case validator.ValidationErrors:
			code = http.StatusBadRequest
			message = core.TranslateErrors(origErr, translator)
		case *core.ValidationError:
			code = http.StatusBadRequest
			if len(origErr.Fields) > 0 {
				message = core.TranslateErrors(origErr, translator)
			} else {
				message = origErr.Error()
			}
		case *drive.MissingFieldError:
			fldErrs := make(map[string]string, len(origErr.Fields))
			for _, fld := range origErr.Fields {
				fldErrs[fld] = requiredText
			}
			code = http.StatusBadRequest
			message = fldErrs
		case *drive.SchedulingTooSoonError:
			code = http.StatusBadRequest
			message = map[string]string{"scheduled_date": origErr.Error()}
		case *drive.SchedulingConflictError:
			code = http.StatusBadRequest
			message = echo.Map{
				"error":     origErr.Error(),
				"date":      origErr.Date,
				"classes":   origErr.Classes,
				"conflicts": origErr.DriveIDs,
			}
		case *drive.InvalidTransitionError:
			code = http.StatusBadRequest
			message = echo.Map{
				"error": origErr.Error(),
				"from":  origErr.From,
				"to":    origErr.To,
			}
		default: // any other error is a server error
			code = http.StatusInternalServerError
			msg := http.StatusText(http.StatusInternalServerError)
			message = msg

			var id core.Identity
			if claims, cErr := getContextClaims(ctx); cErr == nil {
				id = claims.Identity()
			}
			logger.Error(msg, errors.Wrap(err, msg), id)

			// shutting down...
			if core.IsShutdown(err) {
				signalShutdown()
			}
		}

		if ctx.Echo().Debug && code == http.StatusInternalServerError {
			message = err.Error()
		}
		if m, ok := message.(string); ok {
			message = echo.Map{"error": m}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, message)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}
